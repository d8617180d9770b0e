// Package instrument 定义可定价产品接口、按类型标签注册的实现 (普通互换与可赎回互换).
package instrument

import (
	"context"
	"sort"
	"sync"

	"github.com/wyfcoding/exposure/algorithm/finance"
	"github.com/wyfcoding/exposure/cube"
	"github.com/wyfcoding/exposure/logging"
	"github.com/wyfcoding/exposure/model"
	"github.com/wyfcoding/exposure/xerrors"
)

// Result 产品在全部情景上的定价输出.
type Result struct {
	// Cashflows 每个情景按日期升序的现金流.
	Cashflows [][]finance.Cashflow
	// Exercise 行权指示立方体，无期权特征的产品为 nil.
	Exercise *cube.Cube
}

// Instrument 可定价产品.
type Instrument interface {
	Name() string
	Type() string
	// Validate 检查定义的完整性，在定价前调用.
	Validate() error
	// ComputeValues 将各情景在 results 日期上的价值写入第 series 列.
	// opts 作用于内部的 LSM 引擎，无期权特征的产品忽略它.
	ComputeValues(ctx context.Context, series int, results *cube.Cube, live model.LiveModels, opts ...finance.Option) (*Result, error)
}

// Factory 创建一个零值产品，随后由调用方反序列化填充.
type Factory func() Instrument

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		TypeVanillaSwap:  func() Instrument { return &VanillaSwap{} },
		TypeCallableSwap: func() Instrument { return &CallableSwap{} },
	}
)

// Register 注册产品类型.
func Register(tag string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[tag] = f
}

// New 按类型标签创建产品.
func New(tag string) (Instrument, error) {
	registryMu.RLock()
	f, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		return nil, xerrors.Detailf(xerrors.ErrUnknownType, "instrument type %q", tag)
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

func logger() *logging.Logger {
	return logging.Default().Tagged("instrument")
}

func sortLiveModels(models []*model.LiveModel) {
	sort.Slice(models, func(i, j int) bool { return models[i].Name() < models[j].Name() })
}
