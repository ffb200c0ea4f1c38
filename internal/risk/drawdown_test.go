package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDrawdownMonitor_TracksDeclineFromPeak(t *testing.T) {
	d := NewDrawdownMonitor()
	assert.Zero(t, d.Drawdown())

	d.Update(10000)
	d.Update(9500)
	assert.InDelta(t, 5.0, d.Drawdown(), 1e-9)
	assert.Equal(t, 10000.0, d.Peak())
}

func TestDrawdownMonitor_FirstObservationSeedsPeak(t *testing.T) {
	d := NewDrawdownMonitor()

	// An account starting at 5000 has lost nothing; only a decline
	// from its own first observation counts.
	d.Update(5000)
	assert.Zero(t, d.Drawdown(), "first observed equity must not register as a loss")
	assert.Equal(t, 5000.0, d.Peak())

	d.Update(4500)
	assert.InDelta(t, 10.0, d.Drawdown(), 1e-9)
}

func TestDrawdownMonitor_PeakOnlyIncreases(t *testing.T) {
	d := NewDrawdownMonitor()
	d.Update(10000)

	d.Update(12000)
	assert.Equal(t, 12000.0, d.Peak(), "new high should raise the peak")

	d.Update(9000)
	assert.Equal(t, 12000.0, d.Peak(), "decline must not lower the peak")
	assert.InDelta(t, 25.0, d.Drawdown(), 1e-9)

	// Partial recovery shrinks the drawdown but keeps the peak.
	d.Update(11000)
	assert.InDelta(t, 100.0/12.0, d.Drawdown(), 1e-9)
}

func TestDrawdownMonitor_Reset(t *testing.T) {
	d := NewDrawdownMonitor()
	d.Update(10000)
	d.Update(8000)
	assert.InDelta(t, 20.0, d.Drawdown(), 1e-9)

	d.Reset(8000)
	assert.Zero(t, d.Drawdown(), "reset should zero the drawdown")
	assert.Equal(t, 8000.0, d.Peak())
}

func TestDrawdownMonitor_ZeroPeak(t *testing.T) {
	d := NewDrawdownMonitor()
	d.Update(0)
	assert.Zero(t, d.Drawdown(), "zero peak must not divide by zero")
}
