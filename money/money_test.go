package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumIsExact(t *testing.T) {
	amounts := make([]float64, 1000)
	for i := range amounts {
		amounts[i] = 0.1
	}
	assert.Equal(t, "100.000000", Sum(amounts...).String())
}

func TestArithmetic(t *testing.T) {
	m := New(10).AddFloat(2.5).Sub(New(0.5)).Mul(2)
	assert.Equal(t, "24.00", m.Format(2))
	assert.Equal(t, "8.000000", m.DivInt(3).Format(6))
	assert.True(t, New(1).DivInt(0).IsZero())
	assert.True(t, Zero().Add(New(3)).Equal(New(3)))
	assert.InDelta(t, 24.0, m.ToFloat(), 1e-12)
}

func TestJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Total Money `json:"total"`
	}{Total: New(1.25)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":"1.250000"}`, string(b))

	var m Money
	require.NoError(t, json.Unmarshal([]byte(`"3.5"`), &m))
	assert.True(t, m.Equal(New(3.5)))

	_, err = NewFromString("abc")
	assert.Error(t, err)
}
