package model

import (
	"math"
	"sort"

	"github.com/wyfcoding/exposure/xerrors"
)

// LiveModel 一次模拟运行期间，模型与其因子列的只读绑定.
type LiveModel struct {
	Model Model
	Slice Slice
}

// Name 模型名称.
func (lm *LiveModel) Name() string { return lm.Model.Name() }

// NumScenarios 因子立方体的情景数.
func (lm *LiveModel) NumScenarios() int {
	if lm.Slice.Factors == nil {
		return 0
	}
	return lm.Slice.Factors.NumScenarios()
}

// VariableValues 返回模型在 date 的回归特征 (因子列插值，允许外推).
func (lm *LiveModel) VariableValues(scenario int, date float64) ([]float64, error) {
	n := lm.Model.NumberOfVariables()
	values := make([]float64, n)
	for i := range n {
		_, _, v, err := lm.Slice.Factors.InterpolateScalar(scenario, lm.Slice.Start+i, date, true)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// Value 见 Model.Value.
func (lm *LiveModel) Value(scenario int, date, term float64) (float64, error) {
	return lm.Model.Value(lm.Slice, scenario, date, term)
}

// ForwardRate 在 date 观察到的 [start, end] 连续复利远期利率.
func ForwardRate(lm *LiveModel, scenario int, date, start, end float64) (float64, error) {
	short, err := lm.Value(scenario, date, start-date)
	if err != nil {
		return 0, err
	}
	long, err := lm.Value(scenario, date, end-date)
	if err != nil {
		return 0, err
	}

	dfShort := math.Exp(-short * (start - date))
	dfLong := math.Exp(-long * (end - date))
	return -math.Log(dfLong/dfShort) / (end - start), nil
}

// LiveModels 按名称索引的模型视图.
type LiveModels map[string]*LiveModel

// Add 加入模型视图，名称重复时报错.
func (m LiveModels) Add(lm *LiveModel) error {
	name := lm.Name()
	if _, ok := m[name]; ok {
		return xerrors.Detailf(xerrors.ErrDuplicateModel, "model %q", name)
	}
	m[name] = lm
	return nil
}

// Get 按名称查找，不存在时返回 ErrUnresolvedModel.
func (m LiveModels) Get(name string) (*LiveModel, error) {
	lm, ok := m[name]
	if !ok {
		return nil, xerrors.Detailf(xerrors.ErrUnresolvedModel, "model %q", name)
	}
	return lm, nil
}

// Names 排序后的模型名称.
func (m LiveModels) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
