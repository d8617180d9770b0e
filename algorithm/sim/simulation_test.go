package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/wyfcoding/exposure/xerrors"
)

func column(data []float64, numVars, col int) []float64 {
	out := make([]float64, 0, len(data)/numVars)
	for i := col; i < len(data); i += numVars {
		out = append(out, data[i])
	}
	return out
}

func TestNormalVariatesCorrelation(t *testing.T) {
	const n = 40000
	corr := []float64{
		1, 0.8, -0.3,
		0.8, 1, 0,
		-0.3, 0, 1,
	}

	x, err := NewSimulator(42, 4).NormalVariates(3, n, corr)
	require.NoError(t, err)
	require.Len(t, x, 3*n)

	a, b, c := column(x, 3, 0), column(x, 3, 1), column(x, 3, 2)
	assert.InDelta(t, 0.8, stat.Correlation(a, b, nil), 0.03)
	assert.InDelta(t, -0.3, stat.Correlation(a, c, nil), 0.03)

	mean, std := stat.MeanStdDev(a, nil)
	assert.InDelta(t, 0, mean, 0.03)
	assert.InDelta(t, 1, std, 0.03)
}

func TestNormalVariatesDeterministic(t *testing.T) {
	corr := []float64{1, 0.5, 0.5, 1}

	x1, err := NewSimulator(7, 1).NormalVariates(2, 10000, corr)
	require.NoError(t, err)
	x2, err := NewSimulator(7, 8).NormalVariates(2, 10000, corr)
	require.NoError(t, err)
	assert.Equal(t, x1, x2)

	x3, err := NewSimulator(8, 1).NormalVariates(2, 10000, corr)
	require.NoError(t, err)
	assert.NotEqual(t, x1, x3)
}

func TestNormalVariatesIdentity(t *testing.T) {
	// With the identity correlation the draws are the independent normals themselves.
	x, err := NewSimulator(1, 1).NormalVariates(1, 5, []float64{1})
	require.NoError(t, err)
	assert.Len(t, x, 5)
}

func TestNormalVariatesErrors(t *testing.T) {
	_, err := NewSimulator(1, 1).NormalVariates(2, 10, []float64{1})
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))

	_, err = NewSimulator(1, 1).NormalVariates(2, 10, []float64{1, 2, 2, 1})
	assert.True(t, errors.Is(err, xerrors.ErrNotPositiveDefinite))

	x, err := NewSimulator(1, 1).NormalVariates(0, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, x)
}
