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
	"time"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/spacetime/raster"
	"github.com/spatialmodel/spacetime/timeaxis"
)

// SingleVarName is the name under which the data of a single-array cube
// is stored.
const SingleVarName = "value"

// Cube is a persisted (time, lat, lon) data cube with one or more
// variables.
type Cube struct {
	// Path is the file the cube was loaded from, if any.
	Path string

	Time     timeaxis.Axis
	Lat, Lon []float64

	// VarNames are the variable names, or nil for a single-array cube.
	VarNames []string

	// Data holds one [time, lat, lon] array per variable.
	Data []*sparse.DenseArray

	// Missing holds the no-data value of each variable, in the order of
	// Data.
	Missing []float64

	// SpatialRef is the projection in WKT or Proj4 format.
	SpatialRef string

	Transform raster.GeoTransform

	// Policy is the layout the cube was assembled with.
	Policy Policy

	// Attributes are extra key-value pairs stored with the cube.
	Attributes map[string]string
}

// Projection implements raster.Handle.
func (c *Cube) Projection() string { return c.SpatialRef }

// GeoTransform implements raster.Handle.
func (c *Cube) GeoTransform() raster.GeoTransform { return c.Transform }

// Size implements raster.Handle.
func (c *Cube) Size() (width, height int) { return len(c.Lon), len(c.Lat) }

// BandCount implements raster.Handle. Each time step of a variable is
// one band.
func (c *Cube) BandCount() int { return c.Time.Len() }

// NoData implements raster.Handle. It returns the no-data value of the
// first variable.
func (c *Cube) NoData() (float64, bool) { return c.MissingOf(0), true }

// MissingOf returns the no-data value of variable i, or DefaultNoData if
// none is recorded.
func (c *Cube) MissingOf(i int) float64 {
	if i < 0 || i >= len(c.Missing) {
		return DefaultNoData
	}
	return c.Missing[i]
}

// Names returns the names of the stored variables.
func (c *Cube) Names() []string {
	if c.VarNames == nil {
		return []string{SingleVarName}
	}
	return c.VarNames
}

// Var returns the [time, lat, lon] data of the named variable.
func (c *Cube) Var(name string) (*sparse.DenseArray, error) {
	for i, n := range c.Names() {
		if n == name {
			return c.Data[i], nil
		}
	}
	return nil, fmt.Errorf("spacetime: cube has no variable %q; variables are %v", name, c.Names())
}

// Dims returns the lengths of the time, lat and lon dimensions.
func (c *Cube) Dims() (nt, ny, nx int) { return c.Time.Len(), len(c.Lat), len(c.Lon) }

// Times decodes the time axis.
func (c *Cube) Times() ([]time.Time, error) {
	t, err := c.Time.Times()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingTimeAxis, err)
	}
	return t, nil
}

// Metadata describes the geospatial metadata of the cube.
func (c *Cube) Metadata() (*raster.Metadata, error) { return raster.Describe(c) }

// EPSG returns the EPSG code of the cube projection, if known.
func (c *Cube) EPSG() string {
	m, err := c.Metadata()
	if err != nil {
		return ""
	}
	return m.EPSG
}

// Units returns the units of the lat and lon coordinates, if known.
func (c *Cube) Units() string {
	m, err := c.Metadata()
	if err != nil {
		return ""
	}
	return m.Units
}

// Corner returns the upper-left corner as (lat, lon).
func (c *Cube) Corner() (lat, lon float64) { return c.Transform.Corner() }

// PixelSize returns the pixel width.
func (c *Cube) PixelSize() float64 { return c.Transform.PixelSize() }

// inferPolicy returns the layout for re-emitting the cube: named variables
// keep one output per variable and a single array collapses onto time.
func (c *Cube) inferPolicy() Policy {
	if len(c.VarNames) > 0 {
		return VarTime
	}
	return TimeTime
}

// Assembly re-emits the cube as an assembly without copying or altering
// its data. It fails with ErrMissingTimeAxis unless the time axis holds
// timestamps.
func (c *Cube) Assembly() (*Assembly, error) {
	if !c.Time.IsTimestamps() {
		return nil, fmt.Errorf("%w: cube %s has time units %q", ErrMissingTimeAxis, c.Path, c.Time.Units)
	}
	if len(c.Data) == 0 {
		return nil, fmt.Errorf("spacetime: cube %s has no data", c.Path)
	}
	nt, ny, nx := c.Dims()
	if len(c.Data) != len(c.Names()) {
		return nil, fmt.Errorf("%w: cube %s has %d data arrays for %d variables", ErrShapeMismatch, c.Path, len(c.Data), len(c.Names()))
	}
	a := &Assembly{
		Policy:     c.inferPolicy(),
		Time:       c.Time,
		Attributes: c.Attributes,
	}
	if a.Policy.MultiVar() {
		a.VarNames = append([]string(nil), c.VarNames...)
	}
	for i, d := range c.Data {
		if !sameShape(d.Shape, []int{nt, ny, nx}) {
			return nil, fmt.Errorf("%w: variable %s has shape %v but the cube is %v",
				ErrShapeMismatch, c.Names()[i], d.Shape, []int{nt, ny, nx})
		}
		a.Outputs = append(a.Outputs, Output{Meta: c, Data: d, NoData: c.MissingOf(i)})
	}
	return a, nil
}

// withData returns a copy of c with a new time axis and data arrays.
func (c *Cube) withData(t timeaxis.Axis, data []*sparse.DenseArray) *Cube {
	o := *c
	o.Path = ""
	o.Time = t
	o.Data = data
	return &o
}
