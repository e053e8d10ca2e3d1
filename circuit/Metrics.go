package circuit

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// HPWL returns the half-perimeter wirelength of the placement: for
// each net, the weighted half perimeter of the bounding box of the
// centres of its placed cells. Nets with fewer than two placed cells
// contribute nothing.
func (c *Circuit) HPWL() float64 {
	index := c.Index()
	var total float64

	xs := make([]float64, 0, len(c.Cells))
	ys := make([]float64, 0, len(c.Cells))
	for _, net := range c.Nets {
		xs, ys = xs[:0], ys[:0]
		for _, i := range c.NetCells(net, index) {
			cell := c.Cells[i]
			if !cell.Placed() {
				continue
			}
			centre := cell.Center()
			xs = append(xs, centre.X)
			ys = append(ys, centre.Y)
		}
		if len(xs) < 2 {
			continue
		}

		hp := floats.Max(xs) - floats.Min(xs) + floats.Max(ys) - floats.Min(ys)
		total += net.Weight * hp
	}
	return total
}

// OverlapArea returns the total pairwise overlap area of the placed
// cells
func (c *Circuit) OverlapArea() float64 {
	var total float64
	for i := range c.Cells {
		if !c.Cells[i].Placed() {
			continue
		}
		for j := i + 1; j < len(c.Cells); j++ {
			if !c.Cells[j].Placed() {
				continue
			}
			total += Overlap(c.Cells[i], c.Cells[j])
		}
	}
	return total
}

// Overlap returns the overlap area of two placed cells
func Overlap(a, b Cell) float64 {
	dx := math.Min(a.Position.X+a.Width, b.Position.X+b.Width) -
		math.Max(a.Position.X, b.Position.X)
	dy := math.Min(a.Position.Y+a.Height, b.Position.Y+b.Height) -
		math.Max(a.Position.Y, b.Position.Y)
	if dx <= 0 || dy <= 0 {
		return 0
	}
	return dx * dy
}
