// Package simulation 编排一次敞口模拟：随机数立方体、因子立方体、模型视图与产品定价.
package simulation

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/exposure/algorithm/finance"
	"github.com/wyfcoding/exposure/algorithm/sim"
	"github.com/wyfcoding/exposure/cube"
	"github.com/wyfcoding/exposure/instrument"
	"github.com/wyfcoding/exposure/logging"
	"github.com/wyfcoding/exposure/metrics"
	"github.com/wyfcoding/exposure/model"
	"github.com/wyfcoding/exposure/storage"
	"github.com/wyfcoding/exposure/tracing"
	"github.com/wyfcoding/exposure/xerrors"
)

// Exposures 全部产品的定价结果. 切片下标与产品在 Values 中的序列号一致.
type Exposures struct {
	Values    *cube.Cube
	Names     []string
	Cashflows [][][]finance.Cashflow
	// Exercise 无期权特征的产品对应 nil.
	Exercise []*cube.Cube
}

// Controller 模拟控制器. 模型按名称排序，随机变量列与相关矩阵的顺序一致.
type Controller struct {
	models       []model.Model
	correlations []float64
	seed         uint64
	parallelism  int
	base         *logging.Logger
	logger       *logging.Logger
	metrics      *metrics.Metrics
}

// Option 配置 Controller.
type Option func(*Controller)

// WithSeed 随机数种子.
func WithSeed(seed uint64) Option {
	return func(c *Controller) { c.seed = seed }
}

// WithParallelism 并发度，同时作用于随机数生成、产品并发与 LSM 情景分块.
func WithParallelism(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithLogger 设置日志记录器.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) { c.base = l }
}

// WithMetrics 设置指标采集器.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController 创建控制器. models 会被复制并按名称排序.
func NewController(models []model.Model, correlations []float64, opts ...Option) *Controller {
	sorted := append([]model.Model(nil), models...)
	model.SortByName(sorted)

	c := &Controller{models: sorted, correlations: correlations, parallelism: 1}
	for _, opt := range opts {
		opt(c)
	}
	if c.base == nil {
		c.base = logging.Default()
	}
	c.logger = c.base.Tagged("controller")
	return c
}

// Models 按名称排序后的模型.
func (c *Controller) Models() []model.Model { return c.models }

// NumVariables 全部模型的随机变量数.
func (c *Controller) NumVariables() int {
	n := 0
	for _, m := range c.models {
		n += m.NumberOfVariables()
	}
	return n
}

// NumOutputs 全部模型的因子数.
func (c *Controller) NumOutputs() int {
	n := 0
	for _, m := range c.models {
		n += m.NumberOfOutputs()
	}
	return n
}

// CreateRawCube 生成 numPaths 条路径、每个日期上相关的标准正态随机数.
// 序列名为 "模型名 [序号]".
func (c *Controller) CreateRawCube(dates []float64, numPaths int) (*cube.Cube, error) {
	numVars := c.NumVariables()
	variates, err := sim.NewSimulator(c.seed, c.parallelism).NormalVariates(numVars, numPaths*len(dates), c.correlations)
	if err != nil {
		return nil, err
	}

	raw, err := cube.New(variates, dates, numPaths, numVars)
	if err != nil {
		return nil, err
	}
	if err := nameSeries(raw, c.models, model.Model.NumberOfVariables); err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.PathsSimulated.WithLabelValues("raw").Add(float64(numPaths))
	}
	c.logger.Info("raw cube created", "paths", raw.NumScenarios(), "dates", raw.Len(), "series", raw.NumSeries())
	return raw, nil
}

// CreateFactorCube 由随机数立方体演化出各模型的因子路径. 各模型写入互不重叠的列，并发执行.
func (c *Controller) CreateFactorCube(ctx context.Context, raw *cube.Cube) (*cube.Cube, error) {
	factors := cube.NewEmpty(raw.Dates(), raw.NumScenarios(), c.NumOutputs())
	if err := nameSeries(factors, c.models, model.Model.NumberOfOutputs); err != nil {
		return nil, err
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)

	start, rawStart := 0, 0
	for _, m := range c.models {
		s := model.Slice{Factors: factors, Start: start, Raw: raw, RawStart: rawStart}
		g.Go(func() error {
			c.logger.Debug("populating factors", "model", m.Name(), "start", s.Start, "raw_start", s.RawStart)
			return m.PopulateFactors(s)
		})
		start += m.NumberOfOutputs()
		rawStart += m.NumberOfVariables()
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.PathsSimulated.WithLabelValues("factor").Add(float64(factors.NumScenarios()))
	}
	c.logger.Info("factor cube created", "paths", factors.NumScenarios(), "dates", factors.Len(), "series", factors.NumSeries())
	return factors, nil
}

// ComputePaths 生成随机数立方体并演化出因子立方体.
func (c *Controller) ComputePaths(ctx context.Context, dates []float64, numPaths int) (factors, raw *cube.Cube, err error) {
	if raw, err = c.CreateRawCube(dates, numPaths); err != nil {
		return nil, nil, err
	}
	if factors, err = c.CreateFactorCube(ctx, raw); err != nil {
		return nil, nil, err
	}
	return factors, raw, nil
}

// LoadOrCreateRawCube 随机数复用：存储中已有 name 时直接加载 (形状必须匹配)，否则生成并保存.
func (c *Controller) LoadOrCreateRawCube(ctx context.Context, store storage.CubeStore, name string, dates []float64, numPaths int) (*cube.Cube, error) {
	ok, err := store.Exists(ctx, name)
	if err != nil {
		return nil, err
	}

	if ok {
		raw, err := store.LoadCube(ctx, name)
		if err != nil {
			return nil, err
		}
		if err := checkRawShape(raw, dates, numPaths, c.NumVariables()); err != nil {
			return nil, err
		}
		if c.metrics != nil {
			c.metrics.PathsSimulated.WithLabelValues("recycled").Add(float64(numPaths))
		}
		c.logger.InfoContext(ctx, "raw cube recycled", "object", name, "paths", raw.NumScenarios())
		return raw, nil
	}

	raw, err := c.CreateRawCube(dates, numPaths)
	if err != nil {
		return nil, err
	}
	if err := store.SaveCube(ctx, name, raw); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "raw cube saved for reuse", "object", name)
	return raw, nil
}

func checkRawShape(raw *cube.Cube, dates []float64, numPaths, numVars int) error {
	if raw.NumScenarios() != numPaths || raw.NumSeries() != numVars || raw.Len() != len(dates) {
		return xerrors.Detailf(xerrors.ErrDimMismatch, "recycled raw cube is %dx%dx%d, want %dx%dx%d",
			raw.NumScenarios(), raw.Len(), raw.NumSeries(), numPaths, len(dates), numVars)
	}
	for i, d := range raw.Dates() {
		if d != dates[i] {
			return xerrors.Detailf(xerrors.ErrDimMismatch, "recycled raw cube date %d is %v, want %v", i, d, dates[i])
		}
	}
	return nil
}

// CreateLiveModels 为每个模型绑定其在两个立方体中的列. 名称重复时报错.
func (c *Controller) CreateLiveModels(factors, raw *cube.Cube) (model.LiveModels, error) {
	live := make(model.LiveModels, len(c.models))
	start, rawStart := 0, 0
	for _, m := range c.models {
		lm := &model.LiveModel{
			Model: m,
			Slice: model.Slice{Factors: factors, Start: start, Raw: raw, RawStart: rawStart},
		}
		if err := live.Add(lm); err != nil {
			return nil, err
		}
		start += m.NumberOfOutputs()
		rawStart += m.NumberOfVariables()
	}
	c.logger.Debug("live models created", "models", live.Names())
	return live, nil
}

// ComputeExposures 并发为每个产品定价，第 i 个产品写入 results 的第 i 列.
func (c *Controller) ComputeExposures(ctx context.Context, instruments []instrument.Instrument, results *cube.Cube, live model.LiveModels) (*Exposures, error) {
	if results.NumSeries() < len(instruments) {
		return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "results cube has %d series for %d instruments", results.NumSeries(), len(instruments))
	}

	exp := &Exposures{
		Values:    results,
		Names:     make([]string, len(instruments)),
		Cashflows: make([][][]finance.Cashflow, len(instruments)),
		Exercise:  make([]*cube.Cube, len(instruments)),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i, inst := range instruments {
		exp.Names[i] = inst.Name()
		g.Go(func() error {
			ictx, span := tracing.StartInstrument(ctx, inst.Name(), inst.Type())
			defer span.End()

			start := time.Now()
			c.logger.InfoContext(ictx, "computing instrument values", "instrument", inst.Name(), "index", i, "total", len(instruments))

			res, err := inst.ComputeValues(ictx, i, results, live,
				finance.WithLogger(c.base),
				finance.WithMetrics(c.metrics),
				finance.WithParallelism(c.parallelism),
			)
			if err != nil {
				tracing.SetError(ictx, err)
				return xerrors.Wrap(err, xerrors.ErrInternal, fmt.Sprintf("instrument %q", inst.Name()))
			}
			exp.Cashflows[i] = res.Cashflows
			exp.Exercise[i] = res.Exercise

			if c.metrics != nil {
				c.metrics.InstrumentDuration.WithLabelValues(inst.Name(), inst.Type()).Observe(time.Since(start).Seconds())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, name := range exp.Names {
		if err := results.RenameSeries(i, name); err != nil {
			return nil, err
		}
	}
	return exp, nil
}

// ModelValues 在 dates 上对每个模型 (按名称) 与每个期限求 Value，序列名为 "模型名 [期限]".
func ModelValues(live model.LiveModels, dates []float64, numScenarios int, terms []float64) (*cube.Cube, error) {
	names := live.Names()
	out := cube.NewEmpty(dates, numScenarios, len(names)*len(terms))

	for i, name := range names {
		for j, term := range terms {
			if err := out.RenameSeries(i*len(terms)+j, fmt.Sprintf("%s [%v]", name, term)); err != nil {
				return nil, err
			}
		}
	}

	for s := range numScenarios {
		for d, date := range dates {
			for i, name := range names {
				for j, term := range terms {
					v, err := live[name].Value(s, date, term)
					if err != nil {
						return nil, err
					}
					if err := out.Set(s, i*len(terms)+j, d, v); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return out, nil
}

func nameSeries(c *cube.Cube, models []model.Model, width func(model.Model) int) error {
	start := 0
	for _, m := range models {
		for k := range width(m) {
			if err := c.RenameSeries(start+k, fmt.Sprintf("%s [%d]", m.Name(), k)); err != nil {
				return err
			}
		}
		start += width(m)
	}
	return nil
}
