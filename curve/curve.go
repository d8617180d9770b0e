// Package curve 利率曲线：按期限线性插值零息利率，区间外取端点值.
package curve

import (
	"math"

	algomath "github.com/wyfcoding/exposure/algorithm/math"
	"github.com/wyfcoding/exposure/xerrors"
)

// Curve 由 (期限, 利率) 节点构成的曲线，期限单位为年.
type Curve struct {
	Points []algomath.Point
}

// New 复制并排序节点.
func New(points []algomath.Point) (*Curve, error) {
	if len(points) == 0 {
		return nil, xerrors.Detailf(xerrors.ErrEmptyData, "curve has no points")
	}
	ps := make([]algomath.Point, len(points))
	copy(ps, points)
	algomath.SortPoints(ps)
	return &Curve{Points: ps}, nil
}

// Value 期限 t 处的利率.
func (c *Curve) Value(t float64) float64 {
	return algomath.Interpolate(c.Points, t)
}

// ContDF 连续复利折现因子 exp(-r t).
func (c *Curve) ContDF(t float64) float64 {
	return math.Exp(-c.Value(t) * t)
}

// AnnualDF 年复利折现因子 (1+r)^-t.
func (c *Curve) AnnualDF(t float64) float64 {
	return math.Pow(1+c.Value(t), -t)
}

// ContForward [t1, t2] 上的连续复利远期利率.
func (c *Curve) ContForward(t1, t2 float64) float64 {
	return -math.Log(c.ContDF(t2)/c.ContDF(t1)) / (t2 - t1)
}

// AnnualForward [t1, t2] 上的年复利远期利率.
func (c *Curve) AnnualForward(t1, t2 float64) float64 {
	return math.Pow(c.AnnualDF(t1)/c.AnnualDF(t2), 1/(t2-t1)) - 1
}
