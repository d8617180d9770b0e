package model

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	algomath "github.com/wyfcoding/exposure/algorithm/math"
	"github.com/wyfcoding/exposure/cube"
	"github.com/wyfcoding/exposure/xerrors"
)

var testDates = []float64{0, 0.5, 1}

func oneScenarioSlice(t *testing.T, draws []float64) Slice {
	t.Helper()
	raw, err := cube.New(draws, testDates, 1, 1)
	require.NoError(t, err)
	return Slice{
		Factors: cube.NewEmpty(testDates, 1, 1),
		Raw:     raw,
	}
}

func TestRegistry(t *testing.T) {
	for _, tag := range []string{TypeHW1F, TypeBlack, TypeFixed} {
		m, err := New(tag)
		require.NoError(t, err)
		assert.Equal(t, tag, m.Type())
	}
	assert.Equal(t, []string{TypeBlack, TypeFixed, TypeHW1F}, Types())

	_, err := New("sabr")
	assert.True(t, errors.Is(err, xerrors.ErrUnknownType))
}

func TestSortByName(t *testing.T) {
	models := []Model{&Fixed{ModelName: "zar"}, &Black{ModelName: "eur"}, &HW1F{ModelName: "usd"}}
	SortByName(models)
	assert.Equal(t, "eur", models[0].Name())
	assert.Equal(t, "usd", models[1].Name())
	assert.Equal(t, "zar", models[2].Name())
}

func TestBlackPopulateFactors(t *testing.T) {
	m := &Black{ModelName: "fx", R: 0.01, Sigmas: []algomath.Point{{X: 0, Y: 0.1}}, InitialValue: 2}
	require.NoError(t, m.Init())

	s := oneScenarioSlice(t, []float64{9, 0.2, -0.1})
	require.NoError(t, m.PopulateFactors(s))

	s1 := 2 * (1 + 0.01*0.5 + 0.1*0.2*math.Sqrt(0.5))
	s2 := s1 * (1 + 0.01*0.5 - 0.1*0.1*math.Sqrt(0.5))
	assert.InDeltaSlice(t, []float64{2, s1, s2}, s.Factors.Data(), 1e-12)

	v, err := m.Value(s, 0, 0.75, 123)
	require.NoError(t, err)
	assert.InDelta(t, (s1+s2)/2, v, 1e-12)

	v, err = m.Value(s, 0, 5, 0)
	require.NoError(t, err)
	assert.InDelta(t, s2, v, 1e-12)
}

func TestBlackInitRequiresSigmas(t *testing.T) {
	assert.True(t, errors.Is((&Black{}).Init(), xerrors.ErrInvalidInput))
}

func flatHW1F(t *testing.T) *HW1F {
	t.Helper()
	m := &HW1F{
		ModelName:     "usd",
		TermStructure: []algomath.Point{{X: 0.5, Y: 0.03}, {X: 1, Y: 0.03}, {X: 5, Y: 0.03}},
		A:             []algomath.Point{{X: 0, Y: 0.1}},
		Sigmas:        []algomath.Point{{X: 0, Y: 0.01}},
		InitialRate:   0.03,
	}
	require.NoError(t, m.Init())
	return m
}

func TestHW1FThetas(t *testing.T) {
	m := flatHW1F(t)
	require.Len(t, m.Thetas, 3)
	for _, th := range m.Thetas {
		x := 1 - math.Exp(-0.1*th.X)
		want := 0.03 + (0.01*0.01)/(2*0.1*0.1)*x*x
		assert.InDelta(t, want, th.Y, 1e-9, "t=%v", th.X)
	}
}

func TestHW1FPopulateFactors(t *testing.T) {
	m := flatHW1F(t)
	s := oneScenarioSlice(t, []float64{0, 0.5, -1})
	require.NoError(t, m.PopulateFactors(s))

	theta := func(tt float64) float64 { return algomath.Interpolate(m.Thetas, tt) }
	r1 := 0.03 + theta(0.5)*0.5 - 0.1*0.03*0.5 + 0.01*math.Sqrt(0.5)*0.5
	r2 := r1 + theta(1)*0.5 - 0.1*r1*0.5 + 0.01*math.Sqrt(0.5)*-1
	assert.InDeltaSlice(t, []float64{0.03, r1, r2}, s.Factors.Data(), 1e-12)
}

func TestHW1FValue(t *testing.T) {
	m := flatHW1F(t)
	s := oneScenarioSlice(t, []float64{0, 0.5, -1})
	require.NoError(t, m.PopulateFactors(s))

	t.Run("zero rate at origin reproduces the curve", func(t *testing.T) {
		v, err := m.Value(s, 0, 0, 1)
		require.NoError(t, err)
		assert.InDelta(t, 0.03, v, 1e-9)
	})

	t.Run("non positive term returns the short rate", func(t *testing.T) {
		r1, _ := s.Factors.Get(0, 0, 1)
		v, err := m.Value(s, 0, 0.5, 0)
		require.NoError(t, err)
		assert.Equal(t, r1, v)
	})

	t.Run("off grid short rate", func(t *testing.T) {
		r0 := 0.03
		date, dt := 0.25, 0.25
		a := -0.1 * r0 * dt
		want := r0 + algomath.Interpolate(m.Thetas, date)*dt + a*r0*dt +
			0.01*dt*(math.Sqrt(dt/0.5)*0.5-0.5*0.01*0.01*dt)

		v, err := m.Value(s, 0, date, 0)
		require.NoError(t, err)
		assert.InDelta(t, want, v, 1e-12)
	})

	t.Run("beyond the grid keeps the last rate", func(t *testing.T) {
		r2, _ := s.Factors.Get(0, 0, 2)
		v, err := m.Value(s, 0, 3, 0)
		require.NoError(t, err)
		assert.Equal(t, r2, v)
	})

	t.Run("before the grid fails", func(t *testing.T) {
		_, err := m.Value(s, 0, -1, 1)
		assert.True(t, errors.Is(err, xerrors.ErrDateBeforeStart))
	})
}

func TestHW1FInitValidation(t *testing.T) {
	assert.True(t, errors.Is((&HW1F{ModelName: "x"}).Init(), xerrors.ErrInvalidInput))
}

func TestFixed(t *testing.T) {
	m := &Fixed{ModelName: "one", Constant: 1}
	assert.Zero(t, m.NumberOfVariables())
	assert.Zero(t, m.NumberOfOutputs())
	require.NoError(t, m.PopulateFactors(Slice{}))
	v, err := m.Value(Slice{}, 3, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}
