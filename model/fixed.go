package model

// TypeFixed 常数模型.
const TypeFixed = "fixed"

// Fixed 在所有情景与日期上返回同一常数，不占用随机变量与因子列.
type Fixed struct {
	ModelName string  `json:"name" yaml:"name"`
	Constant  float64 `json:"value" yaml:"value"`
}

func (m *Fixed) Name() string { return m.ModelName }
func (m *Fixed) Type() string { return TypeFixed }
func (m *Fixed) Init() error { return nil }
func (m *Fixed) NumberOfVariables() int { return 0 }
func (m *Fixed) NumberOfOutputs() int { return 0 }
func (m *Fixed) PopulateFactors(Slice) error { return nil }

func (m *Fixed) Value(Slice, int, float64, float64) (float64, error) {
	return m.Constant, nil
}
