// Package execution routes approved orders to a live or paper adapter,
// applies retry and circuit-breaking policies, and tracks order and
// position state.
package execution

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Mode selects which adapter executes orders.
type Mode string

const (
	ModeLive       Mode = "live"
	ModePaper      Mode = "paper"
	ModeBacktest   Mode = "backtest"
	ModeSimulation Mode = "simulation"
)

// ParseMode normalizes a configured mode string, defaulting to paper.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLive:
		return ModeLive
	case ModeBacktest:
		return ModeBacktest
	case ModeSimulation:
		return ModeSimulation
	default:
		return ModePaper
	}
}

// ModeSwitch is the explicitly-owned trading mode state, injected into
// every component that reads or flips it.
type ModeSwitch struct {
	mu     sync.RWMutex
	mode   Mode
	logger *zap.Logger
}

// NewModeSwitch creates a mode switch starting in the given mode.
func NewModeSwitch(mode Mode, logger *zap.Logger) *ModeSwitch {
	return &ModeSwitch{mode: mode, logger: logger}
}

// Mode returns the current trading mode.
func (m *ModeSwitch) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// Set changes the trading mode.
func (m *ModeSwitch) Set(mode Mode, reason string) {
	m.mu.Lock()
	prev := m.mode
	m.mode = mode
	m.mu.Unlock()

	if prev != mode {
		m.logger.Warn("trading mode changed",
			zap.String("from", string(prev)),
			zap.String("to", string(mode)),
			zap.String("reason", reason),
		)
	}
}

// ForcePaper drops out of live trading. It is one-way: the mode is
// never automatically restored to live.
func (m *ModeSwitch) ForcePaper(reason string) {
	if m.Mode() == ModeLive {
		m.Set(ModePaper, reason)
	}
}
