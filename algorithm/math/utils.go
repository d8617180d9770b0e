package math

import (
	"sort"
)

// Point 分段线性函数上的一个节点.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Interpolate 在按 X 升序排列的节点上做线性插值，区间外取端点值.
func Interpolate(points []Point, x float64) float64 {
	n := len(points)
	switch {
	case n == 0:
		return 0
	case x <= points[0].X:
		return points[0].Y
	case x >= points[n-1].X:
		return points[n-1].Y
	}

	up := sort.Search(n, func(i int) bool { return points[i].X >= x })
	hi, lo := points[up], points[up-1]
	if hi.X == x {
		return hi.Y
	}
	w := (x - lo.X) / (hi.X - lo.X)
	return lo.Y + w*(hi.Y-lo.Y)
}

// SortPoints 按 X 升序排序节点.
func SortPoints(points []Point) {
	sort.Slice(points, func(i, j int) bool { return points[i].X < points[j].X })
}
