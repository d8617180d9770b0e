// Package money 提供基于 shopspring/decimal 的现金流金额累加，避免大量情景求和时的浮点误差累积.
package money

import (
	"github.com/shopspring/decimal"
)

// DefaultPlaces 输出时保留的小数位.
const DefaultPlaces int32 = 6

// Money 高精度金额.
type Money struct {
	value decimal.Decimal
}

// Zero 零金额.
func Zero() Money { return Money{value: decimal.Zero} }

// New 从 float64 创建 Money.
func New(val float64) Money {
	return Money{value: decimal.NewFromFloat(val)}
}

// NewFromString 从字符串解析金额.
func NewFromString(val string) (Money, error) {
	d, err := decimal.NewFromString(val)
	if err != nil {
		return Money{}, err
	}
	return Money{value: d}, nil
}

// Sum 累加一组浮点金额.
func Sum(amounts ...float64) Money {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	return Money{value: total}
}

// Add 加法.
func (m Money) Add(other Money) Money {
	return Money{value: m.value.Add(other.value)}
}

// AddFloat 加上一个浮点金额.
func (m Money) AddFloat(v float64) Money {
	return Money{value: m.value.Add(decimal.NewFromFloat(v))}
}

// Sub 减法.
func (m Money) Sub(other Money) Money {
	return Money{value: m.value.Sub(other.value)}
}

// Mul 乘法.
func (m Money) Mul(factor float64) Money {
	return Money{value: m.value.Mul(decimal.NewFromFloat(factor))}
}

// DivInt 除以整数 (如情景数)，n 为 0 时返回零.
func (m Money) DivInt(n int) Money {
	if n == 0 {
		return Zero()
	}
	return Money{value: m.value.Div(decimal.NewFromInt(int64(n)))}
}

// IsZero 是否为零.
func (m Money) IsZero() bool { return m.value.IsZero() }

// Equal 数值相等.
func (m Money) Equal(other Money) bool { return m.value.Equal(other.value) }

// ToFloat 转换为 float64.
func (m Money) ToFloat() float64 {
	f, _ := m.value.Float64()
	return f
}

// String 返回保留 DefaultPlaces 位小数的字符串.
func (m Money) String() string {
	return m.value.StringFixed(DefaultPlaces)
}

// Format 格式化为指定位数的字符串.
func (m Money) Format(places int32) string {
	return m.value.StringFixed(places)
}

// MarshalJSON 以十进制字符串输出，保持精度.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON 接受字符串或数字.
func (m *Money) UnmarshalJSON(b []byte) error {
	return m.value.UnmarshalJSON(b)
}
