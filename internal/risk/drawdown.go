package risk

import "sync"

// DrawdownMonitor tracks peak equity and the percentage decline from
// it. The peak seeds from the first observed equity and afterwards
// only ever increases, except on explicit Reset. Seeding from a
// configured number instead would report a phantom drawdown on any
// account whose real equity starts below it.
type DrawdownMonitor struct {
	mu      sync.Mutex
	seeded  bool
	peak    float64
	current float64
}

// NewDrawdownMonitor creates a monitor with no observed equity yet.
func NewDrawdownMonitor() *DrawdownMonitor {
	return &DrawdownMonitor{}
}

// Update records the latest equity. The first observation seeds the
// peak; later ones raise it when exceeded.
func (d *DrawdownMonitor) Update(equity float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = equity
	if !d.seeded || equity > d.peak {
		d.peak = equity
		d.seeded = true
	}
}

// Drawdown returns the current decline from peak, in percent. Before
// the first Update there is no peak, so the drawdown is zero.
func (d *DrawdownMonitor) Drawdown() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.seeded || d.peak <= 0 {
		return 0
	}
	dd := (d.peak - d.current) / d.peak * 100
	if dd < 0 {
		return 0
	}
	return dd
}

// Peak returns the tracked peak equity.
func (d *DrawdownMonitor) Peak() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peak
}

// Reset sets the peak to the given equity, zeroing the drawdown.
func (d *DrawdownMonitor) Reset(equity float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seeded = true
	d.peak = equity
	d.current = equity
}
