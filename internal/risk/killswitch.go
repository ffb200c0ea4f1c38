package risk

import (
	"sync"
	"time"

	"github.com/Dev0031/QuantTrader-sub000/internal/observability"
)

// KillSwitch is the global halt flag. Once active it blocks all new
// order approvals until an explicit Deactivate; it never auto-clears.
type KillSwitch struct {
	mu          sync.Mutex
	active      bool
	activatedAt time.Time
	reason      string
}

// NewKillSwitch creates an inactive kill switch.
func NewKillSwitch() *KillSwitch {
	return &KillSwitch{}
}

// Activate trips the switch. Tripping an already-active switch keeps
// the original reason.
func (k *KillSwitch) Activate(reason string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.active {
		return false
	}
	k.active = true
	k.activatedAt = time.Now()
	k.reason = reason
	observability.KillSwitchActive.Set(1)
	return true
}

// Deactivate clears the switch. This is the only way out of Active.
func (k *KillSwitch) Deactivate() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.active = false
	k.reason = ""
	observability.KillSwitchActive.Set(0)
}

// Active returns the switch state and the trip reason.
func (k *KillSwitch) Active() (bool, string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active, k.reason
}

// ActivatedAt returns when the switch was tripped.
func (k *KillSwitch) ActivatedAt() time.Time {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.activatedAt
}

// CheckConditions trips the switch when drawdown breaches the
// configured maximum. It reports whether this call performed the
// Inactive -> Active transition.
func (k *KillSwitch) CheckConditions(drawdownPct, maxDrawdownPct float64, reason string) bool {
	if maxDrawdownPct <= 0 || drawdownPct < maxDrawdownPct {
		return false
	}
	return k.Activate(reason)
}
