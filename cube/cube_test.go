package cube

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/exposure/xerrors"
)

func sampleCube(t *testing.T) *Cube {
	t.Helper()
	// 2 scenarios, 3 dates, 2 series; value = 100*s + 10*d + n.
	dates := []float64{0.5, 1, 2}
	c := NewEmpty(dates, 2, 2)
	for s := range 2 {
		for d := range 3 {
			for n := range 2 {
				require.NoError(t, c.Set(s, n, d, float64(100*s+10*d+n)))
			}
		}
	}
	return c
}

func TestNewValidatesLength(t *testing.T) {
	_, err := New(make([]float64, 5), []float64{1, 2}, 1, 3)
	assert.True(t, errors.Is(err, xerrors.ErrDataLength))

	c, err := New(make([]float64, 6), []float64{1, 2}, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2"}, c.SeriesNames())
}

func TestLayout(t *testing.T) {
	c := sampleCube(t)
	// index = scenario*(|D|*N) + dateIndex*N + series
	assert.Equal(t, 121.0, c.Data()[1*3*2+2*2+1])
	assert.Equal(t, 10.0, c.Data()[0*3*2+1*2+0])
}

func TestGetSetRoundTrip(t *testing.T) {
	c := NewEmpty([]float64{1, 2, 3}, 3, 2)
	for s := range 3 {
		for d := range 3 {
			for n := range 2 {
				v := float64(s*7 + d*3 + n)
				require.NoError(t, c.Set(s, n, d, v))
				got, err := c.Get(s, n, d)
				require.NoError(t, err)
				assert.Equal(t, v, got)
			}
		}
	}
}

func TestIndexErrors(t *testing.T) {
	c := sampleCube(t)
	for _, idx := range [][3]int{{2, 0, 0}, {0, 2, 0}, {0, 0, 3}, {-1, 0, 0}} {
		_, err := c.Get(idx[0], idx[1], idx[2])
		assert.True(t, errors.Is(err, xerrors.ErrIndexOutOfRange), "%v", idx)
	}
	assert.True(t, errors.Is(c.Set(0, 5, 0, 1), xerrors.ErrIndexOutOfRange))
	assert.True(t, errors.Is(c.RenameSeries(2, "x"), xerrors.ErrIndexOutOfRange))
	_, err := c.Date(3)
	assert.True(t, errors.Is(err, xerrors.ErrIndexOutOfRange))
}

func TestDateIndexOf(t *testing.T) {
	c := sampleCube(t)
	cases := []struct {
		date  float64
		idx   int
		found bool
	}{
		{0.1, 0, false},
		{0.5, 0, true},
		{0.7, 1, false},
		{1, 1, true},
		{1.5, 2, false},
		{2, 2, true},
		{3, 3, false},
	}
	for _, tc := range cases {
		idx, found := c.DateIndexOf(tc.date)
		assert.Equal(t, tc.idx, idx, "date %v", tc.date)
		assert.Equal(t, tc.found, found, "date %v", tc.date)
	}
}

func TestLastAtOrBefore(t *testing.T) {
	c := sampleCube(t)

	idx, v, err := c.LastAtOrBefore(1, 1, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 111.0, v)

	idx, v, err = c.LastAtOrBefore(1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 121.0, v)

	idx, _, err = c.LastAtOrBefore(0, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	_, _, err = c.LastAtOrBefore(0, 0, 0.1)
	assert.True(t, errors.Is(err, xerrors.ErrDateBeforeStart))
}

func TestInterpolateScalar(t *testing.T) {
	c := sampleCube(t)

	t.Run("grid date is exact", func(t *testing.T) {
		lo, hi, v, err := c.InterpolateScalar(1, 0, 1, false)
		require.NoError(t, err)
		assert.Equal(t, 1, lo)
		assert.Equal(t, 1, hi)
		assert.Equal(t, 110.0, v)
	})

	t.Run("between grid dates", func(t *testing.T) {
		lo, hi, v, err := c.InterpolateScalar(0, 1, 1.25, false)
		require.NoError(t, err)
		assert.Equal(t, 1, lo)
		assert.Equal(t, 2, hi)
		// 11 + (21-11)/(2-1)*(1.25-1)
		assert.InDelta(t, 13.5, v, 1e-12)
	})

	t.Run("before first date", func(t *testing.T) {
		_, _, _, err := c.InterpolateScalar(0, 0, 0.1, false)
		assert.True(t, errors.Is(err, xerrors.ErrDateBeforeStart))

		_, _, v, err := c.InterpolateScalar(0, 0, 0.1, true)
		require.NoError(t, err)
		assert.Equal(t, 0.0, v)
	})

	t.Run("after last date", func(t *testing.T) {
		_, _, _, err := c.InterpolateScalar(1, 1, 5, false)
		assert.True(t, errors.Is(err, xerrors.ErrDateAfterEnd))

		_, _, v, err := c.InterpolateScalar(1, 1, 5, true)
		require.NoError(t, err)
		assert.Equal(t, 121.0, v)
	})
}

func TestInterpolateVector(t *testing.T) {
	c := sampleCube(t)

	_, _, v, err := c.InterpolateVector(1, 0.75, false)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{105, 106}, v, 1e-12)

	// the returned vector is a copy
	v[0] = -1
	got, _ := c.Get(1, 0, 0)
	assert.Equal(t, 100.0, got)

	_, _, _, err = c.InterpolateVector(1, 3, false)
	assert.True(t, errors.Is(err, xerrors.ErrDateAfterEnd))
}

func TestScenarioSlice(t *testing.T) {
	c := sampleCube(t)
	s, err := c.Scenario(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 101, 110, 111, 120, 121}, s)
}

func TestJSONRoundTrip(t *testing.T) {
	c := sampleCube(t)
	require.NoError(t, c.RenameSeries(1, "fx"))

	b, err := json.Marshal(c)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	for _, key := range []string{"data", "dates", "time_series_names", "num_scenarios", "num_series"} {
		assert.Contains(t, raw, key)
	}

	var back Cube
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, c.Data(), back.Data())
	assert.Equal(t, c.Dates(), back.Dates())
	assert.Equal(t, []string{"0", "fx"}, back.SeriesNames())
	assert.Equal(t, 2, back.NumScenarios())
}

func TestJSONRejectsBadLength(t *testing.T) {
	var c Cube
	err := json.Unmarshal([]byte(`{"data":[1,2,3],"dates":[1],"time_series_names":["a"],"num_scenarios":1,"num_series":1}`), &c)
	assert.True(t, errors.Is(err, xerrors.ErrDataLength))
}
