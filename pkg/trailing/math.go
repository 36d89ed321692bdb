package trailing

import "github.com/shopspring/decimal"

// ToNearest rounds num to the nearest multiple of tickSize, ties to even,
// the way the venue rounds prices. The arithmetic is done in decimal so that
// 1110.6000000000001 on a 0.5 tick lands on 1110.5 and not on float noise.
func ToNearest(num float64, tickSize float64) float64 {
	if tickSize <= 0 {
		return num
	}
	tick := decimal.NewFromFloat(tickSize)
	steps := decimal.NewFromFloat(num).Div(tick).RoundBank(0)
	rounded, _ := steps.Mul(tick).Float64()
	return rounded
}
