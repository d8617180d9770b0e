package instrument

import (
	"context"
	"math"

	"github.com/wyfcoding/exposure/algorithm/finance"
	"github.com/wyfcoding/exposure/cube"
	"github.com/wyfcoding/exposure/model"
	"github.com/wyfcoding/exposure/xerrors"
)

// TypeVanillaSwap 普通利率/货币互换.
const TypeVanillaSwap = "vanilla-swap"

// Pay 支付方向的腿，其余取值视为收取.
const Pay = "pay"

// valuationOrigin 现金流区间 (valuationOrigin, +inf) 的起点.
const valuationOrigin = 0.0

// Leg 互换的一条腿.
// 第一期与固定腿支付 FixedValues[t]；浮动腿其余各期支付 远期利率*计息期 + FixedValues[t] (利差).
type Leg struct {
	Notional        float64   `json:"notional" yaml:"notional"`
	PayOrReceive    string    `json:"pay_or_receive" yaml:"pay_or_receive"`
	DiscountModel   string    `json:"discount_model_name" yaml:"discount_model_name"`
	ProjectionModel string    `json:"projection_model_name" yaml:"projection_model_name"`
	FXModel         string    `json:"fx_model_name" yaml:"fx_model_name"`
	PaymentDates    []float64 `json:"payment_dates" yaml:"payment_dates"`
	IsFixed         bool      `json:"is_fixed" yaml:"is_fixed"`
	FixedValues     []float64 `json:"fixed_values" yaml:"fixed_values"`
}

func (l *Leg) sign() float64 {
	if l.PayOrReceive == Pay {
		return -1
	}
	return 1
}

// VanillaSwap 由若干腿组成，价值以全局货币计.
type VanillaSwap struct {
	InstrumentName string `json:"name" yaml:"name"`
	Legs           []Leg  `json:"legs" yaml:"legs"`
}

func (v *VanillaSwap) Name() string { return v.InstrumentName }
func (v *VanillaSwap) Type() string { return TypeVanillaSwap }

// Validate 至少一条腿，每条腿有支付日且 FixedValues 与之等长.
func (v *VanillaSwap) Validate() error {
	if len(v.Legs) == 0 {
		return xerrors.Detailf(xerrors.ErrInvalidInput, "swap %q has no legs", v.InstrumentName)
	}
	for i, l := range v.Legs {
		if len(l.PaymentDates) == 0 {
			return xerrors.Detailf(xerrors.ErrInvalidInput, "swap %q leg %d has no payment dates", v.InstrumentName, i)
		}
		if len(l.FixedValues) != len(l.PaymentDates) {
			return xerrors.Detailf(xerrors.ErrDimMismatch, "swap %q leg %d: %d fixed values for %d payment dates",
				v.InstrumentName, i, len(l.FixedValues), len(l.PaymentDates))
		}
	}
	return nil
}

// Maturity 各腿最后支付日的最大值.
func (v *VanillaSwap) Maturity() float64 {
	m := math.Inf(-1)
	for _, l := range v.Legs {
		m = max(m, l.PaymentDates[len(l.PaymentDates)-1])
	}
	return m
}

// legModels 一条腿引用的模型视图.
type legModels struct {
	discount   *model.LiveModel
	projection *model.LiveModel
	fx         *model.LiveModel
}

// resolve 解析每条腿的模型引用，任何一个不存在都会失败.
func (v *VanillaSwap) resolve(live model.LiveModels) ([]legModels, error) {
	out := make([]legModels, len(v.Legs))
	for i, l := range v.Legs {
		var err error
		if out[i].discount, err = live.Get(l.DiscountModel); err != nil {
			return nil, xerrors.Wrap(err, xerrors.ErrNotFound, v.InstrumentName+": discount model")
		}
		if out[i].projection, err = live.Get(l.ProjectionModel); err != nil {
			return nil, xerrors.Wrap(err, xerrors.ErrNotFound, v.InstrumentName+": projection model")
		}
		if out[i].fx, err = live.Get(l.FXModel); err != nil {
			return nil, xerrors.Wrap(err, xerrors.ErrNotFound, v.InstrumentName+": fx model")
		}
	}
	return out, nil
}

// pricer 绑定了模型视图的互换，满足 finance.Strategy. 只读，可并发使用.
type pricer struct {
	swap         *VanillaSwap
	legs         []legModels
	variables    []*model.LiveModel
	numScenarios int
	// sign 为 -1 时价值与现金流取反 (持有赎回权的一方).
	sign float64
}

func newPricer(v *VanillaSwap, live model.LiveModels, numScenarios int, sign float64) (*pricer, error) {
	legs, err := v.resolve(live)
	if err != nil {
		return nil, err
	}

	// 回归特征取自各腿引用的不同模型，按名称排序.
	seen := make(map[string]bool)
	var vars []*model.LiveModel
	for _, lm := range legs {
		for _, m := range []*model.LiveModel{lm.discount, lm.projection, lm.fx} {
			if !seen[m.Name()] {
				seen[m.Name()] = true
				vars = append(vars, m)
			}
		}
	}
	sortLiveModels(vars)

	return &pricer{swap: v, legs: legs, variables: vars, numScenarios: numScenarios, sign: sign}, nil
}

// ModelVariables 各情景的回归特征，行优先 numScenarios x sum(NumberOfVariables).
func (p *pricer) ModelVariables(date float64) ([]float64, error) {
	numVars := 0
	for _, lm := range p.variables {
		numVars += lm.Model.NumberOfVariables()
	}

	out := make([]float64, 0, numVars*p.numScenarios)
	for s := range p.numScenarios {
		for _, lm := range p.variables {
			vals, err := lm.VariableValues(s, date)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}
	}
	return out, nil
}

// ExerciseValue 即互换在 date 的直接价值.
func (p *pricer) ExerciseValue(scenario int, date float64) (float64, error) {
	v, err := p.value(scenario, date)
	return p.sign * v, err
}

// Cashflows (from, to] 内各腿的支付，已换算为全局货币.
func (p *pricer) Cashflows(scenario int, from, to float64) ([]finance.Cashflow, error) {
	var out []finance.Cashflow
	for i := range p.swap.Legs {
		leg := &p.swap.Legs[i]
		m := p.legs[i]
		for t, end := range leg.PaymentDates {
			if end <= from || end > to {
				continue
			}
			start, period := couponPeriod(leg, t)

			payment := leg.FixedValues[t]
			if t > 0 && !leg.IsFixed {
				fwd, err := m.projection.Value(scenario, start, period)
				if err != nil {
					return nil, err
				}
				payment += fwd * period
			}
			payment *= leg.Notional * leg.sign()

			fx, err := m.fx.Value(scenario, end, 0)
			if err != nil {
				return nil, err
			}
			out = append(out, finance.Cashflow{Date: end, Amount: p.sign * payment * fx})
		}
	}
	return out, nil
}

// value 互换在 date 的解析价值：未来各期支付的折现和，乘以腿的汇率.
func (p *pricer) value(scenario int, date float64) (float64, error) {
	total := 0.0
	for i := range p.swap.Legs {
		v, err := p.legValue(i, scenario, date)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}

func (p *pricer) legValue(i, scenario int, date float64) (float64, error) {
	leg := &p.swap.Legs[i]
	m := p.legs[i]

	v := 0.0
	for t, end := range leg.PaymentDates {
		if end <= date {
			continue
		}
		start, period := couponPeriod(leg, t)
		tau := end - date

		payment := leg.FixedValues[t]
		if t > 0 && !leg.IsFixed {
			var fwd float64
			var err error
			if start > date {
				fwd, err = model.ForwardRate(m.projection, scenario, date, start, end)
			} else {
				// 已定盘的一期
				fwd, err = m.projection.Value(scenario, start, end-start)
			}
			if err != nil {
				return 0, err
			}
			payment += fwd * period
		}
		payment *= leg.Notional

		rate, err := m.discount.Value(scenario, date, tau)
		if err != nil {
			return 0, err
		}
		v += leg.sign() * payment * math.Exp(-tau*rate)
	}

	fx, err := m.fx.Value(scenario, date, 0)
	if err != nil {
		return 0, err
	}
	return v * fx, nil
}

// couponPeriod 第 t 期的起点与计息期，第一期计息期为 0.
func couponPeriod(leg *Leg, t int) (start, period float64) {
	if t == 0 {
		return 0, 0
	}
	start = leg.PaymentDates[t-1]
	return start, leg.PaymentDates[t] - start
}

// ComputeValues 逐情景写入各结果日期的解析价值，并给出全部未来现金流.
func (v *VanillaSwap) ComputeValues(ctx context.Context, series int, results *cube.Cube, live model.LiveModels, _ ...finance.Option) (*Result, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	p, err := newPricer(v, live, results.NumScenarios(), 1)
	if err != nil {
		return nil, err
	}

	cashflows := make([][]finance.Cashflow, results.NumScenarios())
	for s := range results.NumScenarios() {
		if err := ctx.Err(); err != nil {
			return nil, xerrors.Wrap(err, xerrors.ErrCanceled, v.InstrumentName+": valuation canceled")
		}

		cfs, err := p.Cashflows(s, valuationOrigin, math.Inf(1))
		if err != nil {
			return nil, err
		}
		finance.SortCashflows(cfs)
		cashflows[s] = cfs

		for d, date := range results.Dates() {
			val, err := p.value(s, date)
			if err != nil {
				return nil, err
			}
			if err := results.Set(s, series, d, val); err != nil {
				return nil, err
			}
		}
	}

	logger().DebugContext(ctx, "vanilla swap valued", "instrument", v.InstrumentName, "scenarios", results.NumScenarios())
	return &Result{Cashflows: cashflows}, nil
}
