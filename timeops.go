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

package spacetime

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/spacetime/timeaxis"
	"gonum.org/v1/gonum/floats"
)

// Selection specifies which time steps of a cube to keep.
type Selection struct {
	// From and To are the inclusive bounds of the time range.
	// Zero values leave the range open on that side.
	From, To time.Time

	// If Scale is set, only time steps whose calendar element at that
	// scale (day of month, month or year) equals Element are kept.
	Scale   timeaxis.Scale
	Element int
}

// SelectTime returns a new cube holding only the time steps matching s.
// The cube must have a timestamp time axis.
func (c *Cube) SelectTime(s Selection) (*Cube, error) {
	ts, err := c.Times()
	if err != nil {
		return nil, err
	}
	if s.Scale != "" {
		if _, err := timeaxis.ParseScale(string(s.Scale)); err != nil {
			return nil, err
		}
	}
	var idx []int
	for i, t := range ts {
		if !s.From.IsZero() && t.Before(s.From) {
			continue
		}
		if !s.To.IsZero() && t.After(s.To) {
			continue
		}
		if s.Scale != "" && s.Scale.Element(t) != s.Element {
			continue
		}
		idx = append(idx, i)
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("spacetime: no time steps in %s match the selection", c.Path)
	}
	data := make([]*sparse.DenseArray, len(c.Data))
	for v, d := range c.Data {
		data[v] = takeSteps(d, idx)
	}
	return c.withData(c.Time.Subset(idx), data), nil
}

// takeSteps copies the given time steps of a [time, lat, lon] array.
func takeSteps(d *sparse.DenseArray, idx []int) *sparse.DenseArray {
	ny, nx := d.Shape[1], d.Shape[2]
	o := sparse.ZerosDense(len(idx), ny, nx)
	n := ny * nx
	for i, t := range idx {
		copy(o.Elements[i*n:(i+1)*n], d.Elements[t*n:(t+1)*n])
	}
	return o
}

// Aggregation methods for ScaleTime.
const (
	Mean = "mean"
	Max  = "max"
)

// ScaleTime resamples the cube to the given calendar scale, combining the
// time steps within each period with method, which is either Mean or Max.
// No-data values are converted to NaN first and a period containing any
// NaN is NaN. Periods run contiguously from the one holding the first
// time step to the one holding the last; empty periods are NaN. Each
// period is labelled by its last day.
func (c *Cube) ScaleTime(scale timeaxis.Scale, method string) (*Cube, error) {
	scale, err := timeaxis.ParseScale(string(scale))
	if err != nil {
		return nil, err
	}
	var agg func([]float64) float64
	switch strings.ToLower(method) {
	case Mean:
		agg = func(v []float64) float64 { return floats.Sum(v) / float64(len(v)) }
	case Max:
		agg = floats.Max
	default:
		return nil, fmt.Errorf("spacetime: invalid time scaling method %q; valid methods are %s and %s", method, Mean, Max)
	}
	ts, err := c.Times()
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, fmt.Errorf("spacetime: cube %s has no time steps", c.Path)
	}

	// Group time steps by period.
	var (
		labels  []time.Time
		members [][]int
	)
	last := scale.Start(ts[len(ts)-1])
	for p := scale.Start(ts[0]); !p.After(last); p = scale.Next(p) {
		next := scale.Next(p)
		var m []int
		for i, t := range ts {
			if !t.Before(p) && t.Before(next) {
				m = append(m, i)
			}
		}
		labels = append(labels, scale.Label(p))
		members = append(members, m)
	}

	_, ny, nx := c.Dims()
	n := ny * nx
	data := make([]*sparse.DenseArray, len(c.Data))
	for v, d := range c.Data {
		o := sparse.ZerosDense(len(labels), ny, nx)
		nodata := c.MissingOf(v)
		for k, m := range members {
			vals := make([]float64, len(m))
			for j := 0; j < n; j++ {
				o.Elements[k*n+j] = combine(d, nodata, m, j, n, vals, agg)
			}
		}
		data[v] = o
	}
	return c.withData(timeaxis.FromTimes(labels), data), nil
}

// combine aggregates pixel j of time steps m.
func combine(d *sparse.DenseArray, nodata float64, m []int, j, n int, vals []float64, agg func([]float64) float64) float64 {
	if len(m) == 0 {
		return math.NaN()
	}
	for i, t := range m {
		v := d.Elements[t*n+j]
		if v == nodata || math.IsNaN(v) {
			return math.NaN()
		}
		vals[i] = v
	}
	return agg(vals)
}
