package instrument

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/exposure/algorithm/finance"
	"github.com/wyfcoding/exposure/cube"
	"github.com/wyfcoding/exposure/model"
	"github.com/wyfcoding/exposure/xerrors"
)

func flatLive(t *testing.T) model.LiveModels {
	t.Helper()
	live := model.LiveModels{}
	for _, m := range []*model.Fixed{
		{ModelName: "usd", Constant: 0.05},
		{ModelName: "libor", Constant: 0.04},
		{ModelName: "fx", Constant: 1},
		{ModelName: "ois", Constant: 0.10},
	} {
		require.NoError(t, live.Add(&model.LiveModel{Model: m}))
	}
	return live
}

// testSwap 收取固定 3%，支付浮动 (首期 1%).
func testSwap() VanillaSwap {
	return VanillaSwap{
		InstrumentName: "swap",
		Legs: []Leg{
			{
				Notional: 100, PayOrReceive: "receive",
				DiscountModel: "usd", ProjectionModel: "libor", FXModel: "fx",
				PaymentDates: []float64{1, 2}, IsFixed: true, FixedValues: []float64{0.03, 0.03},
			},
			{
				Notional: 100, PayOrReceive: Pay,
				DiscountModel: "usd", ProjectionModel: "libor", FXModel: "fx",
				PaymentDates: []float64{1, 2}, FixedValues: []float64{0.01, 0},
			},
		},
	}
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{TypeCallableSwap, TypeVanillaSwap}, Types())

	inst, err := New(TypeVanillaSwap)
	require.NoError(t, err)
	assert.Equal(t, TypeVanillaSwap, inst.Type())

	_, err = New("swaption")
	assert.True(t, errors.Is(err, xerrors.ErrUnknownType))
}

func TestVanillaSwapValidate(t *testing.T) {
	assert.True(t, errors.Is((&VanillaSwap{InstrumentName: "x"}).Validate(), xerrors.ErrInvalidInput))

	sw := testSwap()
	sw.Legs[1].FixedValues = []float64{0}
	assert.True(t, errors.Is(sw.Validate(), xerrors.ErrDimMismatch))

	sw = testSwap()
	assert.NoError(t, sw.Validate())
	assert.Equal(t, 2.0, sw.Maturity())
}

func TestVanillaSwapComputeValues(t *testing.T) {
	sw := testSwap()
	results := cube.NewEmpty([]float64{0, 1.5, 2}, 2, 2)

	res, err := sw.ComputeValues(context.Background(), 1, results, flatLive(t))
	require.NoError(t, err)
	assert.Nil(t, res.Exercise)

	want := []float64{
		3*math.Exp(-0.05) + 3*math.Exp(-0.1) - (1*math.Exp(-0.05) + 4*math.Exp(-0.1)),
		-1 * math.Exp(-0.025),
		0,
	}
	for s := range 2 {
		for d := range want {
			got, err := results.Get(s, 1, d)
			require.NoError(t, err)
			assert.InDelta(t, want[d], got, 1e-9, "scenario %d date %d", s, d)

			untouched, _ := results.Get(s, 0, d)
			assert.Zero(t, untouched)
		}
		assert.Equal(t, []finance.Cashflow{
			{Date: 1, Amount: 3}, {Date: 1, Amount: -1},
			{Date: 2, Amount: 3}, {Date: 2, Amount: -4},
		}, roundCashflows(res.Cashflows[s]))
	}
}

func roundCashflows(cfs []finance.Cashflow) []finance.Cashflow {
	out := make([]finance.Cashflow, len(cfs))
	for i, cf := range cfs {
		out[i] = finance.Cashflow{Date: cf.Date, Amount: math.Round(cf.Amount*1e9) / 1e9}
	}
	return out
}

func TestVanillaSwapUnresolvedModel(t *testing.T) {
	sw := testSwap()
	sw.Legs[0].ProjectionModel = "missing"

	_, err := sw.ComputeValues(context.Background(), 0, cube.NewEmpty([]float64{0}, 1, 1), flatLive(t))
	assert.True(t, errors.Is(err, xerrors.ErrUnresolvedModel))
}

func TestRichDates(t *testing.T) {
	rich := RichDates([]float64{0, 0.5, 1.0, 1.9995}, []float64{0.5, 1.000001, 3}, 2)
	assert.Equal(t, []RichDate{
		{Date: 0},
		{Date: 0.5, Exercisable: true},
		{Date: 1.0, Exercisable: true},
		{Date: 2},
	}, rich)

	rich = RichDates([]float64{0, 1}, []float64{2, 1}, 2)
	assert.Equal(t, []RichDate{{Date: 0}, {Date: 1, Exercisable: true}, {Date: 2}}, rich)
}

func TestCallableSwapExercisesWhenCallIsWorthMore(t *testing.T) {
	cs := &CallableSwap{
		InstrumentName:        "callable",
		ExposureDiscountModel: "ois",
		Underlying:            testSwap(),
		CallDates:             []float64{1},
	}
	results := cube.NewEmpty([]float64{0, 0.5, 1.5, 2}, 3, 1)

	res, err := cs.ComputeValues(context.Background(), 0, results, flatLive(t), finance.WithParallelism(2))
	require.NoError(t, err)

	ev := math.Exp(-0.05)
	v05 := (ev - 2) * math.Exp(-0.05)
	v0 := (ev - 2) * math.Exp(-0.1)
	want := []float64{v0, v05, 0, 0}

	require.NotNil(t, res.Exercise)
	assert.Equal(t, []float64{0, 0.5, 1, 1.5, 2}, res.Exercise.Dates())
	for s := range 3 {
		got, err := results.Scenario(s)
		require.NoError(t, err)
		assert.InDeltaSlice(t, want, got, 1e-9)

		ex, err := res.Exercise.Scenario(s)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0, 1, 0, 0}, ex)

		assert.Equal(t, []finance.Cashflow{{Date: 1, Amount: -3}, {Date: 1, Amount: 1}}, roundCashflows(res.Cashflows[s]))
	}
}

func TestCallableSwapValidate(t *testing.T) {
	cs := &CallableSwap{InstrumentName: "c", Underlying: testSwap()}
	assert.True(t, errors.Is(cs.Validate(), xerrors.ErrInvalidInput))

	cs.ExposureDiscountModel = "nowhere"
	_, err := cs.ComputeValues(context.Background(), 0, cube.NewEmpty([]float64{0}, 1, 1), flatLive(t))
	assert.True(t, errors.Is(err, xerrors.ErrUnresolvedModel))
}
