package instrument

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/wyfcoding/exposure/algorithm/finance"
	"github.com/wyfcoding/exposure/cube"
	"github.com/wyfcoding/exposure/model"
	"github.com/wyfcoding/exposure/xerrors"
)

// TypeCallableSwap 附带赎回日的普通互换.
const TypeCallableSwap = "callable-swap"

const (
	// richDateTolerance 两个日期之差小于该值视为同一日期.
	richDateTolerance = 1e-5
	// maturityCutoff 距到期日不足该值的结果日期不参与反向归纳.
	maturityCutoff = 0.001
)

// RichDate 反向归纳的决策日期.
type RichDate struct {
	Date        float64
	Exercisable bool
}

// addRichDate 合并到已有日期时对可行权标记取或.
func addRichDate(dates []RichDate, date float64, exercisable bool) []RichDate {
	for i := range dates {
		if math.Abs(dates[i].Date-date) < richDateTolerance {
			dates[i].Exercisable = dates[i].Exercisable || exercisable
			return dates
		}
	}
	return append(dates, RichDate{Date: date, Exercisable: exercisable})
}

// RichDates 结果日期 (早于到期日 maturityCutoff 以上)、到期日与赎回日的并集，升序.
// 到期日总是最后一项且不可行权，晚于到期日的赎回日被忽略.
func RichDates(resultDates, callDates []float64, maturity float64) []RichDate {
	var out []RichDate
	for _, d := range resultDates {
		if maturity-d > maturityCutoff {
			out = addRichDate(out, d, false)
		}
	}
	out = addRichDate(out, maturity, false)
	for _, c := range callDates {
		if c > maturity+richDateTolerance {
			continue
		}
		out = addRichDate(out, c, true)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	out[len(out)-1].Exercisable = false
	return out
}

// CallableSwap 持有方可在赎回日终止的互换.
// 产品价值为赎回权的价值：行权所得为标的价值取反，持有期间的现金流同样取反.
type CallableSwap struct {
	InstrumentName        string      `json:"name" yaml:"name"`
	ExposureDiscountModel string      `json:"exposure_discount_model_name" yaml:"exposure_discount_model_name"`
	Underlying            VanillaSwap `json:"underlying" yaml:"underlying"`
	CallDates             []float64   `json:"call_dates" yaml:"call_dates"`
}

func (c *CallableSwap) Name() string { return c.InstrumentName }
func (c *CallableSwap) Type() string { return TypeCallableSwap }

func (c *CallableSwap) Validate() error {
	if err := c.Underlying.Validate(); err != nil {
		return err
	}
	if c.ExposureDiscountModel == "" {
		return xerrors.Detailf(xerrors.ErrInvalidInput, "callable swap %q has no exposure discount model", c.InstrumentName)
	}
	return nil
}

// modelDiscounter 以模型输出的零息利率折现.
type modelDiscounter struct {
	lm *model.LiveModel
}

func (d modelDiscounter) Rate(scenario int, asOf, term float64) (float64, error) {
	return d.lm.Value(scenario, asOf, term)
}

// ComputeValues 在决策日期上执行 LSM，再把价值插值回结果日期 (允许外推).
func (c *CallableSwap) ComputeValues(ctx context.Context, series int, results *cube.Cube, live model.LiveModels, opts ...finance.Option) (*Result, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	discount, err := live.Get(c.ExposureDiscountModel)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrNotFound, c.InstrumentName+": exposure discount model")
	}
	p, err := newPricer(&c.Underlying, live, results.NumScenarios(), -1)
	if err != nil {
		return nil, err
	}

	rich := RichDates(results.Dates(), c.CallDates, c.Underlying.Maturity())
	dates := make([]float64, len(rich))
	flags := make([]bool, len(rich))
	for i, rd := range rich {
		dates[i] = rd.Date
		flags[i] = rd.Exercisable
	}
	logger().DebugContext(ctx, "rich dates built", "instrument", c.InstrumentName, "dates", dates, "exercisable", flags)

	values := cube.NewEmpty(dates, results.NumScenarios(), 1)
	engine := finance.NewEngine(append([]finance.Option{finance.WithName(c.InstrumentName)}, opts...)...)
	res, err := engine.Run(ctx, values, flags, p, modelDiscounter{lm: discount})
	if err != nil {
		return nil, err
	}

	for s := range results.NumScenarios() {
		for d, date := range results.Dates() {
			_, _, v, err := values.InterpolateScalar(s, 0, date, true)
			if err != nil {
				return nil, err
			}
			if err := results.Set(s, series, d, v); err != nil {
				return nil, err
			}
		}
	}

	logger().InfoContext(ctx, "callable swap valued", "instrument", c.InstrumentName,
		"decision_dates", len(dates), "elapsed", time.Since(start))
	return &Result{Cashflows: res.Cashflows, Exercise: res.Exercise}, nil
}
