package statistic

import (
	"fmt"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/shopspring/decimal"

	readings "thermo-cloud/internal/readings/domain"
)

const (
	avgPlaces      = 2
	sketchAccuracy = 0.01
	quantileP50    = 0.5
	quantileP95    = 0.95
)

// Options tune a calculation.
type Options struct {
	Location  *time.Location
	Quantiles bool
}

// Calculate aggregates rows per sensor. Rows must be ordered newest first; on ties the
// first occurrence in that order wins, so extremes carry the most recent time they occurred.
func Calculate(rows []readings.Reading, opts Options) (Snapshot, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Timestamp.After(rows[i-1].Timestamp) {
			return nil, ErrUnorderedReadings
		}
	}

	snap := EmptySnapshot()
	for _, sensor := range readings.Sensors {
		stat, err := calculateSensor(rows, sensor, loc, opts.Quantiles)
		if err != nil {
			return nil, fmt.Errorf("statistic: %s: %w", sensor, err)
		}
		snap[sensor] = stat
	}
	return snap, nil
}

func calculateSensor(rows []readings.Reading, sensor readings.Sensor, loc *time.Location, quantiles bool) (*SensorStatistic, error) {
	var (
		stat   *SensorStatistic
		sum    = decimal.Zero
		sketch *ddsketch.DDSketch
	)
	if quantiles {
		s, err := ddsketch.NewDefaultDDSketch(sketchAccuracy)
		if err != nil {
			return nil, err
		}
		sketch = s
	}

	for _, row := range rows {
		v := row.Value(sensor)
		if v == nil {
			continue
		}
		val := *v
		if stat == nil {
			at := extremeAt(val, row.Timestamp, loc)
			stat = &SensorStatistic{Min: at, Max: at, Current: val}
		}
		if val < stat.Min.Val {
			stat.Min = extremeAt(val, row.Timestamp, loc)
		}
		if val > stat.Max.Val {
			stat.Max = extremeAt(val, row.Timestamp, loc)
		}
		stat.Count++
		sum = sum.Add(decimal.NewFromFloat(val))
		if sketch != nil {
			if err := sketch.Add(val); err != nil {
				return nil, err
			}
		}
	}
	if stat == nil {
		return nil, nil
	}

	stat.Avg, _ = sum.Div(decimal.NewFromInt(int64(stat.Count))).Round(avgPlaces).Float64()
	if sketch != nil {
		p50, err := quantile(sketch, quantileP50)
		if err != nil {
			return nil, err
		}
		p95, err := quantile(sketch, quantileP95)
		if err != nil {
			return nil, err
		}
		stat.P50, stat.P95 = &p50, &p95
	}
	return stat, nil
}

func extremeAt(val float64, ts time.Time, loc *time.Location) Extreme {
	return Extreme{
		Val:  val,
		Time: ts.In(loc).Format(readings.ShortTimeLayout),
		TS:   readings.FormatTimestamp(ts, loc),
	}
}

func quantile(sketch *ddsketch.DDSketch, q float64) (float64, error) {
	v, err := sketch.GetValueAtQuantile(q)
	if err != nil {
		return 0, err
	}
	rounded, _ := decimal.NewFromFloat(v).Round(avgPlaces).Float64()
	return rounded, nil
}
