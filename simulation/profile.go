package simulation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/wyfcoding/exposure/algorithm/finance"
	"github.com/wyfcoding/exposure/cube"
	"github.com/wyfcoding/exposure/money"
	"github.com/wyfcoding/exposure/xerrors"
)

// DefaultQuantile PFE 默认分位数.
const DefaultQuantile = 0.95

// Profile 单个产品的敞口曲线.
// EE 为正敞口均值，ENE 为负敞口均值，PFE 为正敞口的经验分位数.
type Profile struct {
	Instrument string    `json:"instrument"`
	Quantile   float64   `json:"quantile"`
	Dates      []float64 `json:"dates"`
	EE         []float64 `json:"ee"`
	ENE        []float64 `json:"ene"`
	PFE        []float64 `json:"pfe"`
}

// Profiles 按序列计算敞口曲线，序列名即产品名.
func Profiles(values *cube.Cube, quantile float64) ([]Profile, error) {
	if quantile <= 0 || quantile > 1 {
		return nil, xerrors.Detailf(xerrors.ErrInvalidInput, "quantile %v outside (0, 1]", quantile)
	}
	numScenarios := values.NumScenarios()
	if numScenarios == 0 {
		return nil, xerrors.Detailf(xerrors.ErrEmptyData, "values cube has no scenarios")
	}

	dates := values.Dates()
	profiles := make([]Profile, values.NumSeries())
	pos := make([]float64, numScenarios)
	neg := make([]float64, numScenarios)

	for n, name := range values.SeriesNames() {
		p := Profile{
			Instrument: name,
			Quantile:   quantile,
			Dates:      append([]float64(nil), dates...),
			EE:         make([]float64, len(dates)),
			ENE:        make([]float64, len(dates)),
			PFE:        make([]float64, len(dates)),
		}
		for d := range dates {
			for s := range numScenarios {
				v, err := values.Get(s, n, d)
				if err != nil {
					return nil, err
				}
				pos[s] = math.Max(v, 0)
				neg[s] = math.Min(v, 0)
			}
			p.EE[d] = stat.Mean(pos, nil)
			p.ENE[d] = stat.Mean(neg, nil)

			sort.Float64s(pos)
			p.PFE[d] = stat.Quantile(quantile, stat.Empirical, pos, nil)
		}
		profiles[n] = p
	}
	return profiles, nil
}

// CashflowSummary 某一支付日上全部情景的现金流合计与均值.
type CashflowSummary struct {
	Date  float64     `json:"date"`
	Total money.Money `json:"total"`
	Mean  money.Money `json:"mean"`
}

// SummarizeCashflows 按支付日汇总一个产品各情景的现金流，日期升序.
func SummarizeCashflows(cashflows [][]finance.Cashflow) []CashflowSummary {
	totals := make(map[float64]money.Money)
	for _, scenario := range cashflows {
		for _, cf := range scenario {
			t, ok := totals[cf.Date]
			if !ok {
				t = money.Zero()
			}
			totals[cf.Date] = t.AddFloat(cf.Amount)
		}
	}

	out := make([]CashflowSummary, 0, len(totals))
	for date, total := range totals {
		out = append(out, CashflowSummary{Date: date, Total: total, Mean: total.DivInt(len(cashflows))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
