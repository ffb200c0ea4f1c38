package risk

import "math"

// SizingParams are the inputs to position sizing.
type SizingParams struct {
	Equity     float64
	EntryPrice float64
	StopLoss   float64

	// RiskPct is the signal's requested risk; it is capped at MaxRiskPct.
	RiskPct    float64
	MaxRiskPct float64

	MinOrderSize float64
	MaxOrderSize float64
	Precision    int
}

// PositionSize computes quantity = (equity x risk%) / |entry - stop|,
// clamped to the order size bounds and rounded to the configured
// precision. A non-positive result means the trade cannot be sized.
func PositionSize(p SizingParams) float64 {
	riskPct := p.RiskPct
	if riskPct <= 0 || riskPct > p.MaxRiskPct {
		riskPct = p.MaxRiskPct
	}

	stopDistance := math.Abs(p.EntryPrice - p.StopLoss)
	if stopDistance <= 0 || p.Equity <= 0 {
		return 0
	}

	qty := (p.Equity * riskPct / 100) / stopDistance

	if p.MaxOrderSize > 0 && qty > p.MaxOrderSize {
		qty = p.MaxOrderSize
	}
	if qty < p.MinOrderSize {
		qty = p.MinOrderSize
	}

	return roundTo(qty, p.Precision)
}

func roundTo(v float64, precision int) float64 {
	if precision <= 0 {
		return math.Round(v)
	}
	scale := math.Pow10(precision)
	return math.Round(v*scale) / scale
}
