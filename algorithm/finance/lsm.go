package finance

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"

	algomath "github.com/wyfcoding/exposure/algorithm/math"
	"github.com/wyfcoding/exposure/cube"
	"github.com/wyfcoding/exposure/logging"
	"github.com/wyfcoding/exposure/metrics"
	"github.com/wyfcoding/exposure/tracing"
	"github.com/wyfcoding/exposure/xerrors"
)

// Cashflow 某一日期的现金流.
type Cashflow struct {
	Date   float64 `json:"date"`
	Amount float64 `json:"amount"`
}

// SortCashflows 按日期稳定排序.
func SortCashflows(cfs []Cashflow) {
	sort.SliceStable(cfs, func(i, j int) bool { return cfs[i].Date < cfs[j].Date })
}

// Strategy 反向归纳所需的产品回调.
// 当 Engine 的并发度大于 1 时，同一日期内的回调会被并发调用.
type Strategy interface {
	// ModelVariables 返回 date 时每个情景的回归特征，行优先 numScenarios x numVars.
	ModelVariables(date float64) ([]float64, error)
	// ExerciseValue 情景在 date 行权所得的价值.
	ExerciseValue(scenario int, date float64) (float64, error)
	// Cashflows 情景在 (from, to] 内发生的现金流.
	Cashflows(scenario int, from, to float64) ([]Cashflow, error)
}

// Discounter 折现利率: 在 asOf 观察、期限为 term 的连续复利利率.
type Discounter interface {
	Rate(scenario int, asOf, term float64) (float64, error)
}

// Result 反向归纳的输出.
type Result struct {
	// Cashflows 每个情景按日期升序排列的已实现现金流.
	Cashflows [][]Cashflow
	// Exercise 单序列立方体，1 表示该情景在该日期行权.
	Exercise *cube.Cube
}

// Engine Longstaff-Schwartz 最小二乘蒙特卡洛 (LSM) 反向归纳.
type Engine struct {
	name        string
	parallelism int
	logger      *logging.Logger
	metrics     *metrics.Metrics
}

// Option 配置 Engine.
type Option func(*Engine)

// WithName 产品名称，用于日志与指标标签.
func WithName(name string) Option {
	return func(e *Engine) { e.name = name }
}

// WithParallelism 同一日期内按情景分块并发的最大协程数.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithLogger 设置日志记录器.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics 设置指标采集器.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine 创建 LSM 引擎，默认单协程执行.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{name: "unnamed", parallelism: 1}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Default()
	}
	e.logger = e.logger.Tagged("lsm")
	return e
}

// sweep 一次反向归纳的工作状态.
type sweep struct {
	values    *cube.Cube
	exercise  *cube.Cube
	flags     []bool
	dates     []float64
	strategy  Strategy
	discount  Discounter
	cashflows [][]Cashflow

	// 当前日期的暂存数据
	features     []float64
	numVars      int
	exerciseVals []float64
	continuation []float64
	realized     [][]Cashflow
}

// Run 在 values (单序列，日期为升序的决策日期，最后一个为到期日) 上执行反向归纳，原地写入各日期的产品价值.
// exerciseFlags[i] 表示 dates[i] 是否可行权；到期日总是不可行权.
func (e *Engine) Run(ctx context.Context, values *cube.Cube, exerciseFlags []bool, strategy Strategy, discount Discounter) (*Result, error) {
	n := values.Len()
	numScenarios := values.NumScenarios()
	ctx, span := tracing.StartLSM(ctx, e.name, n, numScenarios)
	defer span.End()

	if values.NumSeries() != 1 {
		return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "values cube has %d series, want 1", values.NumSeries())
	}
	if len(exerciseFlags) != n {
		return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "%d exercise flags for %d dates", len(exerciseFlags), n)
	}

	sw := &sweep{
		values:       values,
		exercise:     cube.NewEmpty(values.Dates(), numScenarios, 1),
		flags:        exerciseFlags,
		dates:        values.Dates(),
		strategy:     strategy,
		discount:     discount,
		cashflows:    make([][]Cashflow, numScenarios),
		exerciseVals: make([]float64, numScenarios),
		continuation: make([]float64, numScenarios),
		realized:     make([][]Cashflow, numScenarios),
	}

	if n == 0 || numScenarios == 0 {
		return &Result{Cashflows: sw.cashflows, Exercise: sw.exercise}, nil
	}

	// 到期日价值为 0，到期支付已计入现金流.
	for s := range numScenarios {
		if err := values.Set(s, 0, n-1, 0); err != nil {
			return nil, err
		}
	}

	for d := n - 2; d >= 0; d-- {
		if err := ctx.Err(); err != nil {
			return nil, xerrors.Wrap(err, xerrors.ErrCanceled, "lsm sweep canceled")
		}
		start := time.Now()

		if err := e.step(ctx, sw, d); err != nil {
			tracing.SetError(ctx, err)
			return nil, err
		}

		if e.metrics != nil {
			e.metrics.LSMDateDuration.WithLabelValues(e.name).Observe(time.Since(start).Seconds())
		}
	}

	exercised := 0
	for s := range numScenarios {
		ex, _ := sw.exercise.Scenario(s)
		cfs := sw.cashflows[s]
		for i, v := range ex {
			if v == 1 {
				exercised++
				cfs = truncateAfter(cfs, sw.dates[i])
				break
			}
		}
		SortCashflows(cfs)
		sw.cashflows[s] = cfs
	}
	if e.metrics != nil {
		e.metrics.ExercisesTotal.WithLabelValues(e.name).Add(float64(exercised))
	}
	tracing.SetAttributes(ctx, tracing.ExercisedKey.Int(exercised))
	e.logger.InfoContext(ctx, "lsm sweep finished", "instrument", e.name, "dates", n, "scenarios", numScenarios, "exercised", exercised)

	return &Result{Cashflows: sw.cashflows, Exercise: sw.exercise}, nil
}

// step 处理日期下标 d (早于到期日).
func (e *Engine) step(ctx context.Context, sw *sweep, d int) error {
	dt := sw.dates[d]
	numScenarios := sw.values.NumScenarios()

	features, err := sw.strategy.ModelVariables(dt)
	if err != nil {
		return err
	}
	if len(features)%numScenarios != 0 {
		return xerrors.Detailf(xerrors.ErrDimMismatch, "%d features for %d scenarios", len(features), numScenarios)
	}
	sw.features = features
	sw.numVars = len(features) / numScenarios

	if err := e.forEachScenario(numScenarios, func(s int) error { return sw.continuationValue(s, d) }); err != nil {
		return err
	}

	numITM := 0
	for _, ev := range sw.exerciseVals {
		if ev > 0 {
			numITM++
		}
	}

	itmReg := e.fit(sw, func(s int) bool { return sw.exerciseVals[s] > 0 }, "itm", dt)
	allReg := e.fit(sw, func(int) bool { return true }, "all", dt)

	if err := e.forEachScenario(numScenarios, func(s int) error {
		return sw.decide(s, d, numITM, itmReg, allReg)
	}); err != nil {
		return err
	}

	for s, cfs := range sw.realized {
		sw.cashflows[s] = append(sw.cashflows[s], cfs...)
		sw.realized[s] = nil
	}

	tracing.LSMDateProcessed(ctx, dt, numITM, sw.flags[d])
	e.logger.DebugContext(ctx, "lsm date processed", "instrument", e.name, "date", dt, "itm", numITM, "exercisable", sw.flags[d])
	return nil
}

// continuationValue 计算情景 s 在日期 d 的延续价值：下一个已行权日期 (或到期日) 的价值折现，
// 加上 (dates[d], 该日期] 内全部现金流的折现.
func (sw *sweep) continuationValue(s, d int) error {
	dt := sw.dates[d]
	n := len(sw.dates)

	ev, err := sw.strategy.ExerciseValue(s, dt)
	if err != nil {
		return err
	}
	sw.exerciseVals[s] = ev

	next := d + 1
	for next < n-1 {
		flag, err := sw.exercise.Get(s, 0, next)
		if err != nil {
			return err
		}
		if flag == 1 {
			break
		}
		next++
	}
	nextDt := sw.dates[next]

	nextValue, err := sw.values.Get(s, 0, next)
	if err != nil {
		return err
	}
	rate, err := sw.discount.Rate(s, dt, nextDt-dt)
	if err != nil {
		return err
	}
	cv := nextValue * math.Exp(-rate*(nextDt-dt))

	cfs, err := sw.strategy.Cashflows(s, dt, nextDt)
	if err != nil {
		return err
	}
	// 已实现现金流只记录到下一个网格日期为止，之后的区间由更晚的日期负责.
	gridEnd := sw.dates[d+1]
	var realized []Cashflow
	for _, cf := range cfs {
		term := cf.Date - dt
		r, err := sw.discount.Rate(s, dt, term)
		if err != nil {
			return err
		}
		cv += cf.Amount * math.Exp(-r*term)
		if cf.Date <= gridEnd {
			realized = append(realized, cf)
		}
	}

	sw.continuation[s] = cv
	sw.realized[s] = realized
	return nil
}

// basis 情景 s 的二次基 [x..., x^2...].
func (sw *sweep) basis(s int) []float64 {
	x := sw.features[s*sw.numVars : (s+1)*sw.numVars]
	b := make([]float64, 2*sw.numVars)
	for i, v := range x {
		b[i] = v
		b[sw.numVars+i] = v * v
	}
	return b
}

// fit 对满足 include 的情景拟合 延续价值 ~ [x, x^2, 1]. 样本为空或法方程奇异时退化为零回归器.
func (e *Engine) fit(sw *sweep, include func(int) bool, kind string, date float64) *algomath.LinearRegressor {
	numPredictors := 2 * sw.numVars
	var x, y []float64
	for s := range sw.continuation {
		if !include(s) {
			continue
		}
		x = append(x, sw.basis(s)...)
		y = append(y, sw.continuation[s])
	}

	reg, err := algomath.FitRegressor(x, y, numPredictors)
	if err != nil {
		if !errors.Is(err, xerrors.ErrDegenerateRegression) {
			e.logger.Warn("regression failed", "instrument", e.name, "regressor", kind, "date", date, "error", err)
		}
		if e.metrics != nil {
			e.metrics.RegressionFallbacks.WithLabelValues(e.name, kind).Inc()
		}
		return algomath.ZeroRegressor(numPredictors)
	}
	return reg
}

// decide 情景 s 在日期 d 的行权决策与价值.
func (sw *sweep) decide(s, d, numITM int, itmReg, allReg *algomath.LinearRegressor) error {
	b := sw.basis(s)

	if !sw.flags[d] {
		v, err := allReg.Predict(b)
		if err != nil {
			return err
		}
		return sw.values.Set(s, 0, d, v)
	}

	estimate, err := itmReg.Predict(b)
	if err != nil {
		return err
	}
	ev := sw.exerciseVals[s]
	if numITM == 0 || ev <= estimate {
		return sw.values.Set(s, 0, d, estimate)
	}

	// 行权：清除更晚日期的行权标记与价值.
	for later := d + 1; later < len(sw.dates); later++ {
		if err := sw.exercise.Set(s, 0, later, 0); err != nil {
			return err
		}
		if err := sw.values.Set(s, 0, later, 0); err != nil {
			return err
		}
	}
	if err := sw.exercise.Set(s, 0, d, 1); err != nil {
		return err
	}
	return sw.values.Set(s, 0, d, ev)
}

// forEachScenario 对全部情景执行 fn；并发度大于 1 时按情景分块并发，全部完成后返回.
func (e *Engine) forEachScenario(numScenarios int, fn func(s int) error) error {
	if e.parallelism <= 1 || numScenarios < 2 {
		for s := range numScenarios {
			if err := fn(s); err != nil {
				return err
			}
		}
		return nil
	}

	chunk := (numScenarios + e.parallelism - 1) / e.parallelism
	p := pool.New().WithErrors().WithMaxGoroutines(e.parallelism)
	for lo := 0; lo < numScenarios; lo += chunk {
		hi := min(lo+chunk, numScenarios)
		p.Go(func() error {
			for s := lo; s < hi; s++ {
				if err := fn(s); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return p.Wait()
}

// truncateAfter 丢弃晚于 date 的现金流.
func truncateAfter(cfs []Cashflow, date float64) []Cashflow {
	kept := cfs[:0]
	for _, cf := range cfs {
		if cf.Date <= date {
			kept = append(kept, cf)
		}
	}
	return kept
}
