package model

import (
	"math"

	algomath "github.com/wyfcoding/exposure/algorithm/math"
	"github.com/wyfcoding/exposure/xerrors"
)

// TypeBlack 对数正态 (Black) 模型，常用于汇率.
const TypeBlack = "black"

// Black 对数正态因子: S_i = S_{i-1} (1 + r dt + sigma dW sqrt(dt)).
type Black struct {
	ModelName    string           `json:"name" yaml:"name"`
	R            float64          `json:"r" yaml:"r"`
	Sigmas       []algomath.Point `json:"sigmas" yaml:"sigmas"`
	InitialValue float64          `json:"initial_value" yaml:"initial_value"`
}

func (m *Black) Name() string { return m.ModelName }
func (m *Black) Type() string { return TypeBlack }
func (m *Black) NumberOfVariables() int { return 1 }
func (m *Black) NumberOfOutputs() int { return 1 }

func (m *Black) Init() error {
	if len(m.Sigmas) == 0 {
		return xerrors.Detailf(xerrors.ErrInvalidInput, "black %q: sigmas are required", m.ModelName)
	}
	algomath.SortPoints(m.Sigmas)
	return nil
}

func (m *Black) PopulateFactors(s Slice) error {
	f := s.Factors
	dates := f.Dates()
	for sc := range f.NumScenarios() {
		prev := m.InitialValue
		prevT := 0.0
		for i, t := range dates {
			v := m.InitialValue
			if t != 0 {
				dt := t - prevT
				dW, err := s.Raw.Get(sc, s.RawStart, i)
				if err != nil {
					return err
				}
				sigma := algomath.Interpolate(m.Sigmas, t)
				v = prev + prev*(m.R*dt+sigma*dW*math.Sqrt(dt))
			}
			if err := f.Set(sc, s.Start, i, v); err != nil {
				return err
			}
			prev, prevT = v, t
		}
	}
	return nil
}

// Value 插值得到的因子水平，与 term 无关.
func (m *Black) Value(s Slice, scenario int, date, _ float64) (float64, error) {
	_, _, v, err := s.Factors.InterpolateScalar(scenario, s.Start, date, true)
	return v, err
}
