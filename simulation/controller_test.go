package simulation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	algomath "github.com/wyfcoding/exposure/algorithm/math"
	"github.com/wyfcoding/exposure/cube"
	"github.com/wyfcoding/exposure/instrument"
	"github.com/wyfcoding/exposure/model"
	"github.com/wyfcoding/exposure/storage"
	"github.com/wyfcoding/exposure/xerrors"
)

func blackModel(t *testing.T, name string, initial float64) *model.Black {
	t.Helper()
	m := &model.Black{ModelName: name, R: 0.01, Sigmas: []algomath.Point{{X: 0, Y: 0.2}}, InitialValue: initial}
	require.NoError(t, m.Init())
	return m
}

func testController(t *testing.T, opts ...Option) *Controller {
	t.Helper()
	models := []model.Model{
		blackModel(t, "fx-b", 2),
		&model.Fixed{ModelName: "k", Constant: 1},
		blackModel(t, "fx-a", 1),
	}
	return NewController(models, []float64{1, 0.3, 0.3, 1}, opts...)
}

func TestControllerCubes(t *testing.T) {
	c := testController(t, WithSeed(42), WithParallelism(2))

	names := make([]string, 0, 3)
	for _, m := range c.Models() {
		names = append(names, m.Name())
	}
	assert.Equal(t, []string{"fx-a", "fx-b", "k"}, names)
	assert.Equal(t, 2, c.NumVariables())
	assert.Equal(t, 2, c.NumOutputs())

	dates := []float64{0, 0.5, 1}
	factors, raw, err := c.ComputePaths(context.Background(), dates, 10)
	require.NoError(t, err)

	assert.Equal(t, 10, raw.NumScenarios())
	assert.Equal(t, 3, raw.Len())
	assert.Equal(t, []string{"fx-a [0]", "fx-b [0]"}, raw.SeriesNames())
	assert.Equal(t, []string{"fx-a [0]", "fx-b [0]"}, factors.SeriesNames())

	for s := range 10 {
		a, err := factors.Get(s, 0, 0)
		require.NoError(t, err)
		b, err := factors.Get(s, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, 1.0, a)
		assert.Equal(t, 2.0, b)
	}

	live, err := c.CreateLiveModels(factors, raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"fx-a", "fx-b", "k"}, live.Names())
	assert.Equal(t, 1, live["fx-b"].Slice.Start)
	assert.Equal(t, 1, live["fx-b"].Slice.RawStart)
}

func TestControllerDeterministicAcrossParallelism(t *testing.T) {
	dates := []float64{0, 0.25, 0.5, 1}
	r1, err := testController(t, WithSeed(7), WithParallelism(1)).CreateRawCube(dates, 3000)
	require.NoError(t, err)
	r8, err := testController(t, WithSeed(7), WithParallelism(8)).CreateRawCube(dates, 3000)
	require.NoError(t, err)
	assert.Equal(t, r1.Data(), r8.Data())

	other, err := testController(t, WithSeed(8)).CreateRawCube(dates, 3000)
	require.NoError(t, err)
	assert.NotEqual(t, r1.Data(), other.Data())
}

func TestControllerDuplicateModel(t *testing.T) {
	c := NewController([]model.Model{
		&model.Fixed{ModelName: "k", Constant: 1},
		&model.Fixed{ModelName: "k", Constant: 2},
	}, nil)
	_, err := c.CreateLiveModels(nil, nil)
	assert.True(t, errors.Is(err, xerrors.ErrDuplicateModel))
}

func fixedController() *Controller {
	return NewController([]model.Model{
		&model.Fixed{ModelName: "usd", Constant: 0.05},
		&model.Fixed{ModelName: "libor", Constant: 0.04},
		&model.Fixed{ModelName: "fx", Constant: 1},
		&model.Fixed{ModelName: "ois", Constant: 0.10},
	}, nil, WithParallelism(2))
}

func testSwap(name string) instrument.VanillaSwap {
	return instrument.VanillaSwap{
		InstrumentName: name,
		Legs: []instrument.Leg{
			{
				Notional: 100, PayOrReceive: "receive",
				DiscountModel: "usd", ProjectionModel: "libor", FXModel: "fx",
				PaymentDates: []float64{1, 2}, IsFixed: true, FixedValues: []float64{0.03, 0.03},
			},
			{
				Notional: 100, PayOrReceive: instrument.Pay,
				DiscountModel: "usd", ProjectionModel: "libor", FXModel: "fx",
				PaymentDates: []float64{1, 2}, FixedValues: []float64{0.01, 0},
			},
		},
	}
}

func TestComputeExposures(t *testing.T) {
	ctx := context.Background()
	c := fixedController()
	dates := []float64{0, 0.5, 1.5, 2}

	factors, raw, err := c.ComputePaths(ctx, dates, 3)
	require.NoError(t, err)
	live, err := c.CreateLiveModels(factors, raw)
	require.NoError(t, err)

	vanilla := testSwap("vanilla")
	callable := &instrument.CallableSwap{
		InstrumentName:        "callable",
		ExposureDiscountModel: "ois",
		Underlying:            testSwap("underlying"),
		CallDates:             []float64{1},
	}
	instruments := []instrument.Instrument{&vanilla, callable}

	results := cube.NewEmpty(dates, 3, len(instruments))
	exp, err := c.ComputeExposures(ctx, instruments, results, live)
	require.NoError(t, err)

	assert.Equal(t, []string{"vanilla", "callable"}, exp.Names)
	assert.Equal(t, exp.Names, results.SeriesNames())
	assert.Nil(t, exp.Exercise[0])
	require.NotNil(t, exp.Exercise[1])
	assert.Len(t, exp.Cashflows[0], 3)
	assert.Len(t, exp.Cashflows[0][0], 4)
	assert.Len(t, exp.Cashflows[1][0], 2)

	v0, err := results.Get(0, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 2*math.Exp(-0.05)-math.Exp(-0.1), v0, 1e-9)

	c0, err := results.Get(2, 1, 0)
	require.NoError(t, err)
	assert.InDelta(t, (math.Exp(-0.05)-2)*math.Exp(-0.1), c0, 1e-9)
}

func TestComputeExposuresErrors(t *testing.T) {
	ctx := context.Background()
	c := fixedController()
	live, err := c.CreateLiveModels(nil, nil)
	require.NoError(t, err)

	a, b := testSwap("a"), testSwap("b")
	_, err = c.ComputeExposures(ctx, []instrument.Instrument{&a, &b}, cube.NewEmpty([]float64{0}, 1, 1), live)
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))

	a.Legs[0].DiscountModel = "missing"
	_, err = c.ComputeExposures(ctx, []instrument.Instrument{&a}, cube.NewEmpty([]float64{0}, 1, 1), live)
	assert.True(t, errors.Is(err, xerrors.ErrUnresolvedModel))
}

func TestModelValues(t *testing.T) {
	live := model.LiveModels{}
	require.NoError(t, live.Add(&model.LiveModel{Model: &model.Fixed{ModelName: "usd", Constant: 0.05}}))
	require.NoError(t, live.Add(&model.LiveModel{Model: &model.Fixed{ModelName: "libor", Constant: 0.04}}))

	out, err := ModelValues(live, []float64{0, 1}, 2, []float64{1, 2.5})
	require.NoError(t, err)
	assert.Equal(t, []string{"libor [1]", "libor [2.5]", "usd [1]", "usd [2.5]"}, out.SeriesNames())

	for s := range 2 {
		v, err := out.Vector(s, 1)
		require.NoError(t, err)
		assert.Equal(t, []float64{0.04, 0.04, 0.05, 0.05}, v)
	}
}

func TestLoadOrCreateRawCube(t *testing.T) {
	ctx := context.Background()
	backend, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	store := storage.NewJSONStore(backend)
	dates := []float64{0, 0.5, 1}

	c := testController(t, WithSeed(3))
	first, err := c.LoadOrCreateRawCube(ctx, store, "raw.json", dates, 5)
	require.NoError(t, err)
	ok, err := store.Exists(ctx, "raw.json")
	require.NoError(t, err)
	assert.True(t, ok)

	// 不同种子也应复用已保存的随机数.
	recycled, err := testController(t, WithSeed(99)).LoadOrCreateRawCube(ctx, store, "raw.json", dates, 5)
	require.NoError(t, err)
	assert.Equal(t, first.Data(), recycled.Data())
	assert.Equal(t, first.SeriesNames(), recycled.SeriesNames())

	_, err = c.LoadOrCreateRawCube(ctx, store, "raw.json", dates, 6)
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))

	_, err = c.LoadOrCreateRawCube(ctx, store, "raw.json", []float64{0, 0.5, 2}, 5)
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))
}
