package payoff

import "math"

// Grid is the fixed set of spot prices a payoff curve is evaluated at
type Grid []float64

// NewGrid spans [max(0, strike-width), strike+width] with the given number of evenly spaced points
func NewGrid(strike, width float64, points int) Grid {
	if points < 2 {
		points = 2
	}
	lo := math.Max(0, strike-width)
	hi := strike + width
	step := (hi - lo) / float64(points-1)

	g := make(Grid, points)
	for i := range g {
		g[i] = lo + float64(i)*step
	}
	// pin the end point, avoiding accumulated rounding
	g[points-1] = hi
	return g
}

func (g Grid) Min() float64 {
	return g[0]
}

func (g Grid) Max() float64 {
	return g[len(g)-1]
}
