// Package cube 提供按 情景 x 日期 x 序列 组织的三维浮点存储，以及精确查找与插值查找.
//
// 数据以一维切片保存，索引为 scenario*(len(dates)*numSeries) + dateIdx*numSeries + series.
// 日期须严格递增，构造时不做检查.
package cube

import (
	"sort"
	"strconv"

	"github.com/wyfcoding/exposure/xerrors"
)

// Cube 三维数据立方体.
type Cube struct {
	data         []float64
	dates        []float64
	seriesNames  []string
	numScenarios int
	numSeries    int
}

// New 以现有数据创建 Cube，len(data) 必须等于 len(dates)*numScenarios*numSeries.
func New(data, dates []float64, numScenarios, numSeries int) (*Cube, error) {
	if len(data) != len(dates)*numScenarios*numSeries {
		return nil, xerrors.Detailf(xerrors.ErrDataLength, "len(data)=%d, dates=%d scenarios=%d series=%d",
			len(data), len(dates), numScenarios, numSeries)
	}
	return &Cube{
		data:         data,
		dates:        dates,
		seriesNames:  defaultNames(numSeries),
		numScenarios: numScenarios,
		numSeries:    numSeries,
	}, nil
}

// NewEmpty 创建全零 Cube.
func NewEmpty(dates []float64, numScenarios, numSeries int) *Cube {
	return &Cube{
		data:         make([]float64, len(dates)*numScenarios*numSeries),
		dates:        dates,
		seriesNames:  defaultNames(numSeries),
		numScenarios: numScenarios,
		numSeries:    numSeries,
	}
}

func defaultNames(n int) []string {
	names := make([]string, n)
	for i := range n {
		names[i] = strconv.Itoa(i)
	}
	return names
}

// NumScenarios 情景数.
func (c *Cube) NumScenarios() int { return c.numScenarios }

// NumSeries 序列数.
func (c *Cube) NumSeries() int { return c.numSeries }

// Len 日期数.
func (c *Cube) Len() int { return len(c.dates) }

// Dates 日期网格，调用方不得修改.
func (c *Cube) Dates() []float64 { return c.dates }

// Data 底层数据，调用方不得修改.
func (c *Cube) Data() []float64 { return c.data }

// SeriesNames 序列名称.
func (c *Cube) SeriesNames() []string { return c.seriesNames }

// Date 返回第 i 个网格日期.
func (c *Cube) Date(i int) (float64, error) {
	if i < 0 || i >= len(c.dates) {
		return 0, xerrors.Detailf(xerrors.ErrIndexOutOfRange, "date index %d of %d", i, len(c.dates))
	}
	return c.dates[i], nil
}

// RenameSeries 修改第 i 个序列的名称.
func (c *Cube) RenameSeries(i int, name string) error {
	if i < 0 || i >= c.numSeries {
		return xerrors.Detailf(xerrors.ErrIndexOutOfRange, "series %d of %d", i, c.numSeries)
	}
	c.seriesNames[i] = name
	return nil
}

func (c *Cube) offset(scenario, series, dateIdx int) (int, error) {
	if scenario < 0 || scenario >= c.numScenarios ||
		series < 0 || series >= c.numSeries ||
		dateIdx < 0 || dateIdx >= len(c.dates) {
		return 0, xerrors.Detailf(xerrors.ErrIndexOutOfRange, "scenario=%d series=%d date=%d in %dx%dx%d",
			scenario, series, dateIdx, c.numScenarios, len(c.dates), c.numSeries)
	}
	return scenario*len(c.dates)*c.numSeries + dateIdx*c.numSeries + series, nil
}

// Get 读取 (scenario, series, dateIdx) 处的值.
func (c *Cube) Get(scenario, series, dateIdx int) (float64, error) {
	i, err := c.offset(scenario, series, dateIdx)
	if err != nil {
		return 0, err
	}
	return c.data[i], nil
}

// Set 写入 (scenario, series, dateIdx) 处的值.
func (c *Cube) Set(scenario, series, dateIdx int, v float64) error {
	i, err := c.offset(scenario, series, dateIdx)
	if err != nil {
		return err
	}
	c.data[i] = v
	return nil
}

// Vector 返回 (scenario, dateIdx) 处全部序列的切片视图.
func (c *Cube) Vector(scenario, dateIdx int) ([]float64, error) {
	i, err := c.offset(scenario, 0, dateIdx)
	if err != nil {
		return nil, err
	}
	return c.data[i : i+c.numSeries], nil
}

// Scenario 返回某情景的全部数据 (日期 x 序列) 的切片视图.
func (c *Cube) Scenario(scenario int) ([]float64, error) {
	if scenario < 0 || scenario >= c.numScenarios {
		return nil, xerrors.Detailf(xerrors.ErrIndexOutOfRange, "scenario %d of %d", scenario, c.numScenarios)
	}
	width := len(c.dates) * c.numSeries
	return c.data[scenario*width : (scenario+1)*width], nil
}

// DateIndexOf 二分查找日期. 命中时返回其下标与 true，否则返回插入点与 false.
func (c *Cube) DateIndexOf(date float64) (int, bool) {
	i := sort.SearchFloat64s(c.dates, date)
	return i, i < len(c.dates) && c.dates[i] == date
}

// LastAtOrBefore 返回不晚于 date 的最后一个网格日期下标及其值 (阶梯函数语义).
func (c *Cube) LastAtOrBefore(scenario, series int, date float64) (int, float64, error) {
	i, found := c.DateIndexOf(date)
	if !found {
		if i == 0 {
			return 0, 0, xerrors.Detailf(xerrors.ErrDateBeforeStart, "date %g", date)
		}
		i--
	}
	v, err := c.Get(scenario, series, i)
	if err != nil {
		return 0, 0, err
	}
	return i, v, nil
}

// bracket 返回包围 date 的网格下标 (down, up) 及插值权重.
// 日期落在网格点上时 down == up.
func (c *Cube) bracket(date float64, allowExtrapolation bool) (down, up int, w float64, err error) {
	n := len(c.dates)
	if n == 0 {
		return 0, 0, 0, xerrors.Detailf(xerrors.ErrIndexOutOfRange, "cube has no dates")
	}

	i, found := c.DateIndexOf(date)
	switch {
	case found:
		return i, i, 0, nil
	case i == 0:
		if !allowExtrapolation {
			return 0, 0, 0, xerrors.Detailf(xerrors.ErrDateBeforeStart, "date %g, first grid date %g", date, c.dates[0])
		}
		return 0, 0, 0, nil
	case i == n:
		if !allowExtrapolation {
			return 0, 0, 0, xerrors.Detailf(xerrors.ErrDateAfterEnd, "date %g, last grid date %g", date, c.dates[n-1])
		}
		return n - 1, n - 1, 0, nil
	}

	down, up = i-1, i
	w = (date - c.dates[down]) / (c.dates[up] - c.dates[down])
	return down, up, w, nil
}

// InterpolateScalar 线性插值读取单个序列.
// 返回包围日期的下标 (down, up) 与插值结果；不允许外推时，网格外的日期返回日期范围错误，
// 允许外推时取最近端点的值.
func (c *Cube) InterpolateScalar(scenario, series int, date float64, allowExtrapolation bool) (int, int, float64, error) {
	down, up, w, err := c.bracket(date, allowExtrapolation)
	if err != nil {
		return 0, 0, 0, err
	}

	lo, err := c.Get(scenario, series, down)
	if err != nil {
		return 0, 0, 0, err
	}
	if down == up {
		return down, up, lo, nil
	}

	hi, err := c.Get(scenario, series, up)
	if err != nil {
		return 0, 0, 0, err
	}
	return down, up, lo + w*(hi-lo), nil
}

// InterpolateVector 与 InterpolateScalar 相同，但对全部序列逐项插值.
func (c *Cube) InterpolateVector(scenario int, date float64, allowExtrapolation bool) (int, int, []float64, error) {
	down, up, w, err := c.bracket(date, allowExtrapolation)
	if err != nil {
		return 0, 0, nil, err
	}

	lo, err := c.Vector(scenario, down)
	if err != nil {
		return 0, 0, nil, err
	}

	res := make([]float64, c.numSeries)
	copy(res, lo)
	if down == up {
		return down, up, res, nil
	}

	hi, _ := c.Vector(scenario, up)
	for i := range res {
		res[i] += w * (hi[i] - res[i])
	}
	return down, up, res, nil
}
