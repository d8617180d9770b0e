package cube

import (
	"encoding/json"

	"github.com/wyfcoding/exposure/xerrors"
)

// storageForm Cube 的持久化/交换格式.
type storageForm struct {
	Data            []float64 `json:"data"`
	Dates           []float64 `json:"dates"`
	TimeSeriesNames []string  `json:"time_series_names"`
	NumScenarios    int       `json:"num_scenarios"`
	NumSeries       int       `json:"num_series"`
}

// MarshalJSON 实现 json.Marshaler.
func (c *Cube) MarshalJSON() ([]byte, error) {
	return json.Marshal(storageForm{
		Data:            c.data,
		Dates:           c.dates,
		TimeSeriesNames: c.seriesNames,
		NumScenarios:    c.numScenarios,
		NumSeries:       c.numSeries,
	})
}

// UnmarshalJSON 实现 json.Unmarshaler，并校验数据长度.
func (c *Cube) UnmarshalJSON(b []byte) error {
	var f storageForm
	if err := json.Unmarshal(b, &f); err != nil {
		return xerrors.Wrap(err, xerrors.ErrInvalidArg, "decode cube")
	}

	decoded, err := New(f.Data, f.Dates, f.NumScenarios, f.NumSeries)
	if err != nil {
		return err
	}
	switch len(f.TimeSeriesNames) {
	case 0:
	case f.NumSeries:
		decoded.seriesNames = f.TimeSeriesNames
	default:
		return xerrors.Detailf(xerrors.ErrDataLength, "%d series names for %d series", len(f.TimeSeriesNames), f.NumSeries)
	}

	*c = *decoded
	return nil
}
