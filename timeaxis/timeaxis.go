/*
Copyright © 2019 the spacetime authors.
This file is part of spacetime.

spacetime is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

spacetime is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with spacetime.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package timeaxis builds and parses the time coordinate of a data cube.
// Time axes are stored as numeric offsets with CF-style units
// (for example "seconds since 2000-01-31 00:00:00"). An axis without
// units is a plain index axis.
package timeaxis

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrNoTimestamps is returned when a time axis does not hold a
// recognizable timestamp sequence.
var ErrNoTimestamps = errors.New("timeaxis: time axis does not hold timestamps")

// unitsLayout is the layout used for the reference date in units strings
// created by this package.
const unitsLayout = "2006-01-02 15:04:05"

// referenceLayouts are the accepted layouts for the reference date of a
// units string.
var referenceLayouts = []string{
	unitsLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Axis is a time coordinate.
type Axis struct {
	// Values are the offsets of each time step from the reference date in
	// Units, or the step indices if Units is empty.
	Values []float64

	// Units is a CF-style units string: "<unit> since <date>".
	Units string
}

// Index returns a plain index axis of length n: 0, 1, ..., n-1.
func Index(n int) Axis {
	v := make([]float64, n)
	for i := range v {
		v[i] = float64(i)
	}
	return Axis{Values: v}
}

// FromTimes returns an axis holding ts encoded as seconds since ts[0].
func FromTimes(ts []time.Time) Axis {
	if len(ts) == 0 {
		return Axis{}
	}
	ref := ts[0].UTC()
	a := Axis{
		Values: make([]float64, len(ts)),
		Units:  "seconds since " + ref.Format(unitsLayout),
	}
	for i, t := range ts {
		a.Values[i] = math.Round(t.Sub(ref).Seconds())
	}
	return a
}

// Build returns a calendar time axis of the given length, starting at start
// and stepping by step units of scale. Day axes advance from start itself;
// month and year axes are anchored to period ends: the first time step
// is the first month (or year) end at or after start.
func Build(start time.Time, length int, scale Scale, step int) (Axis, error) {
	if length < 0 {
		return Axis{}, fmt.Errorf("timeaxis: negative axis length %d", length)
	}
	if step < 1 {
		return Axis{}, fmt.Errorf("timeaxis: step must be >= 1 but is %d", step)
	}
	ts := make([]time.Time, length)
	switch scale {
	case Day:
		for i := range ts {
			ts[i] = start.AddDate(0, 0, i*step)
		}
	case Month:
		for i := range ts {
			ts[i] = monthEnd(start.Year(), start.Month()+time.Month(i*step), start)
		}
	case Year:
		for i := range ts {
			ts[i] = monthEnd(start.Year()+i*step, time.December, start)
		}
	default:
		return Axis{}, fmt.Errorf("timeaxis: invalid scale %q", scale)
	}
	return FromTimes(ts), nil
}

// monthEnd returns the last day of month m of year y, keeping the
// time of day of clock. Months outside 1-12 are normalized.
func monthEnd(y int, m time.Month, clock time.Time) time.Time {
	return time.Date(y, m+1, 0, clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), clock.Location())
}

// Len returns the number of time steps.
func (a Axis) Len() int { return len(a.Values) }

// IsTimestamps reports whether a holds a recognizable timestamp sequence.
func (a Axis) IsTimestamps() bool {
	_, _, err := ParseUnits(a.Units)
	return err == nil
}

// Times decodes the axis into timestamps.
func (a Axis) Times() ([]time.Time, error) {
	return Parse(a.Values, a.Units)
}

// Subset returns the time steps at the given indices, keeping the units.
func (a Axis) Subset(indices []int) Axis {
	o := Axis{Values: make([]float64, len(indices)), Units: a.Units}
	for i, j := range indices {
		o.Values[i] = a.Values[j]
	}
	return o
}

// Parse decodes raw time values with the given units string into
// timestamps.
func Parse(values []float64, units string) ([]time.Time, error) {
	step, ref, err := ParseUnits(units)
	if err != nil {
		return nil, err
	}
	o := make([]time.Time, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: invalid value %g at index %d", ErrNoTimestamps, v, i)
		}
		o[i] = ref.Add(time.Duration(math.Round(v * float64(step))))
	}
	return o, nil
}

// ParseUnits parses a units string of the form "<unit> since <date>",
// returning the duration of one unit and the reference date.
func ParseUnits(units string) (time.Duration, time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, fmt.Errorf("%w: units %q are not of the form '<unit> since <date>'", ErrNoTimestamps, units)
	}
	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "seconds", "second", "secs", "sec", "s":
		step = time.Second
	case "minutes", "minute", "mins", "min":
		step = time.Minute
	case "hours", "hour", "hrs", "hr", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("%w: unsupported time unit %q", ErrNoTimestamps, parts[0])
	}
	ref := strings.TrimSpace(parts[1])
	for _, layout := range referenceLayouts {
		if t, err := time.Parse(layout, ref); err == nil {
			return step, t, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("%w: invalid reference date %q", ErrNoTimestamps, ref)
}
