package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/exposure/cube"
	"github.com/wyfcoding/exposure/xerrors"
)

func TestLiveModelsAddGet(t *testing.T) {
	live := LiveModels{}
	require.NoError(t, live.Add(&LiveModel{Model: &Fixed{ModelName: "one", Constant: 1}}))
	require.NoError(t, live.Add(&LiveModel{Model: &Fixed{ModelName: "zero"}}))

	err := live.Add(&LiveModel{Model: &Fixed{ModelName: "one", Constant: 2}})
	assert.True(t, errors.Is(err, xerrors.ErrDuplicateModel))

	lm, err := live.Get("one")
	require.NoError(t, err)
	v, err := lm.Value(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	_, err = live.Get("missing")
	assert.True(t, errors.Is(err, xerrors.ErrUnresolvedModel))

	assert.Equal(t, []string{"one", "zero"}, live.Names())
}

func TestLiveModelVariableValues(t *testing.T) {
	dates := []float64{0, 1}
	// two scenarios, two series; the model owns series 1
	factors, err := cube.New([]float64{
		9, 1, 9, 3,
		9, 5, 9, 9,
	}, dates, 2, 2)
	require.NoError(t, err)

	lm := &LiveModel{
		Model: &Black{ModelName: "fx"},
		Slice: Slice{Factors: factors, Start: 1},
	}
	assert.Equal(t, 2, lm.NumScenarios())

	v, err := lm.VariableValues(0, 0.5)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2}, v, 1e-12)

	v, err = lm.VariableValues(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{9}, v)

	fixed := &LiveModel{Model: &Fixed{ModelName: "k"}}
	v, err = fixed.VariableValues(0, 1)
	require.NoError(t, err)
	assert.Empty(t, v)
	assert.Zero(t, fixed.NumScenarios())
}

func TestForwardRate(t *testing.T) {
	lm := &LiveModel{Model: &Fixed{ModelName: "flat", Constant: 0.04}}
	f, err := ForwardRate(lm, 0, 1, 1.5, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.04, f, 1e-12)
}
