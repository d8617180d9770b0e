// Package model 定义风险因子模型接口、按类型标签注册的实现，以及运行期的只读模型视图.
package model

import (
	"sort"
	"sync"

	"github.com/wyfcoding/exposure/cube"
	"github.com/wyfcoding/exposure/xerrors"
)

// Slice 模型在因子立方体与原始随机数立方体中所占的列.
// 模型从 Raw 的 RawStart 列起读取 NumberOfVariables 列随机数，
// 向 Factors 的 Start 列起写入 NumberOfOutputs 列因子.
type Slice struct {
	Factors  *cube.Cube
	Start    int
	Raw      *cube.Cube
	RawStart int
}

// Model 风险因子模型.
type Model interface {
	Name() string
	Type() string
	// Init 在模拟前调用一次，用于预计算参数.
	Init() error
	NumberOfVariables() int
	NumberOfOutputs() int
	// PopulateFactors 由原始随机数演化出因子路径，写入 s.Factors.
	PopulateFactors(s Slice) error
	// Value 返回 scenario 在 date 时刻、期限为 term 的模型输出 (利率模型为零息利率).
	Value(s Slice, scenario int, date, term float64) (float64, error)
}

// Factory 创建一个零值模型，随后由调用方反序列化填充.
type Factory func() Model

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		TypeHW1F:  func() Model { return &HW1F{} },
		TypeBlack: func() Model { return &Black{} },
		TypeFixed: func() Model { return &Fixed{} },
	}
)

// Register 注册模型类型.
func Register(tag string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[tag] = f
}

// New 按类型标签创建模型.
func New(tag string) (Model, error) {
	registryMu.RLock()
	f, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		return nil, xerrors.Detailf(xerrors.ErrUnknownType, "model type %q", tag)
	}
	return f(), nil
}

// Types 已注册的类型标签.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// SortByName 按名称排序模型. 随机变量列的顺序即相关矩阵的顺序.
func SortByName(models []Model) {
	sort.SliceStable(models, func(i, j int) bool { return models[i].Name() < models[j].Name() })
}
