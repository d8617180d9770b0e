package model

import (
	"math"

	algomath "github.com/wyfcoding/exposure/algorithm/math"
	"github.com/wyfcoding/exposure/curve"
	"github.com/wyfcoding/exposure/xerrors"
)

// TypeHW1F Hull-White 单因子短期利率模型.
const TypeHW1F = "hw1f"

const hw1fDeltaT = 0.0001

// HW1F Hull-White 单因子模型: dr = (theta(t) - a r) dt + sigma dW.
type HW1F struct {
	ModelName     string           `json:"name" yaml:"name"`
	TermStructure []algomath.Point `json:"term_structure" yaml:"term_structure"`
	A             []algomath.Point `json:"a" yaml:"a"`
	Sigmas        []algomath.Point `json:"sigmas" yaml:"sigmas"`
	InitialRate   float64          `json:"initial_rate" yaml:"initial_rate"`
	// Thetas 由 Init 根据期限结构计算.
	Thetas []algomath.Point `json:"thetas,omitempty" yaml:"thetas,omitempty"`
}

func (m *HW1F) Name() string { return m.ModelName }
func (m *HW1F) Type() string { return TypeHW1F }
func (m *HW1F) NumberOfVariables() int { return 1 }
func (m *HW1F) NumberOfOutputs() int { return 1 }

// Init 由期限结构拟合漂移项 theta(t) = f(t) + sigma^2/(2a^2) * (1 - e^{-at})^2.
func (m *HW1F) Init() error {
	if len(m.TermStructure) == 0 || len(m.A) == 0 || len(m.Sigmas) == 0 {
		return xerrors.Detailf(xerrors.ErrInvalidInput, "hw1f %q: term_structure, a and sigmas are required", m.ModelName)
	}
	algomath.SortPoints(m.TermStructure)
	algomath.SortPoints(m.A)
	algomath.SortPoints(m.Sigmas)

	crv, err := curve.New(m.TermStructure)
	if err != nil {
		return err
	}

	m.Thetas = make([]algomath.Point, len(m.TermStructure))
	for i, p := range m.TermStructure {
		t := p.X
		a := algomath.Interpolate(m.A, t)
		sigma := algomath.Interpolate(m.Sigmas, t)

		fwd := crv.ContForward(t-hw1fDeltaT, t+hw1fDeltaT)
		x := 1 - math.Exp(-a*t)
		m.Thetas[i] = algomath.Point{X: t, Y: fwd + (sigma*sigma)/(2*a*a)*x*x}
	}
	return nil
}

// PopulateFactors Euler 离散: r_i = r_{i-1} + theta dt - a r_{i-1} dt + sigma sqrt(dt) dW_i.
func (m *HW1F) PopulateFactors(s Slice) error {
	f := s.Factors
	dates := f.Dates()
	for sc := range f.NumScenarios() {
		prev := m.InitialRate
		prevT := 0.0
		for i, t := range dates {
			r := m.InitialRate
			if t != 0 {
				dt := t - prevT
				dW, err := s.Raw.Get(sc, s.RawStart, i)
				if err != nil {
					return err
				}
				r = prev +
					algomath.Interpolate(m.Thetas, t)*dt -
					algomath.Interpolate(m.A, t)*prev*dt +
					algomath.Interpolate(m.Sigmas, t)*math.Sqrt(dt)*dW
			}
			if err := f.Set(sc, s.Start, i, r); err != nil {
				return err
			}
			prev, prevT = r, t
		}
	}
	return nil
}

// shortRate 网格外日期的短期利率 ("martingale" 插值).
// 在不晚于 date 的网格点上加上漂移与以下一步随机数加权的扩散项；date 不早于最后网格点时取最后的值.
func (m *HW1F) shortRate(s Slice, scenario int, date float64) (float64, error) {
	f := s.Factors
	prevIdx, prevR, err := f.LastAtOrBefore(scenario, s.Start, date)
	if err != nil {
		return 0, err
	}
	if prevIdx+1 >= f.Len() {
		return prevR, nil
	}

	dates := f.Dates()
	prevDt, nextDt := dates[prevIdx], dates[prevIdx+1]
	dt := date - prevDt
	if dt == 0 {
		return prevR, nil
	}

	a := -algomath.Interpolate(m.A, date) * prevR * dt
	r1 := algomath.Interpolate(m.Thetas, date) * dt
	r2 := a * prevR * dt

	rawIdx, _, err := s.Raw.LastAtOrBefore(scenario, s.RawStart, date)
	if err != nil {
		return 0, err
	}
	nextX, err := s.Raw.Get(scenario, s.RawStart, rawIdx+1)
	if err != nil {
		return 0, err
	}

	prevSigma := algomath.Interpolate(m.Sigmas, prevDt)
	w := math.Sqrt(dt / (nextDt - prevDt))
	r3 := prevSigma * dt * (w*nextX - 0.5*prevSigma*prevSigma*dt)

	return prevR + r1 + r2 + r3, nil
}

// Value 连续复利零息利率 -ln(P(t, t+term))/term，P = A(t,T) exp(-r B(t,T)).
// term <= 0 时返回短期利率.
func (m *HW1F) Value(s Slice, scenario int, date, term float64) (float64, error) {
	r, err := m.shortRate(s, scenario, date)
	if err != nil {
		return 0, err
	}
	if term <= 0 {
		return r, nil
	}

	p := m.bondA(date, date+term) * math.Exp(-r*m.bondB(date, date+term))
	return -math.Log(p) / term, nil
}

func (m *HW1F) discount(t float64) float64 {
	return math.Exp(-algomath.Interpolate(m.TermStructure, t) * t)
}

func (m *HW1F) instForward(t float64) float64 {
	t1 := t - hw1fDeltaT/2
	t2 := t + hw1fDeltaT/2
	return math.Log(m.discount(t2)/m.discount(t1)) / (t2 - t1)
}

func (m *HW1F) bondA(t, T float64) float64 {
	sigma := algomath.Interpolate(m.Sigmas, t)
	a := algomath.Interpolate(m.A, t)

	v1 := -m.bondB(t, T) * m.instForward(t)
	e := math.Exp(-a*T) - math.Exp(-a*t)
	f := math.Exp(2*a*t) - 1
	v2 := sigma * sigma * e * e * f / (4 * a * a * a)

	return math.Exp(v1-v2) * m.discount(T) / m.discount(t)
}

func (m *HW1F) bondB(t, T float64) float64 {
	a := algomath.Interpolate(m.A, t)
	return (1 - math.Exp(-a*(T-t))) / a
}
