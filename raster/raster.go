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

// Package raster reads multi-band gridded files and exposes their bands,
// projections and geotransforms. Lightweight per-band layers and composite
// virtual rasters allow metadata to be queried for any grouping of bands
// without copying pixel data.
package raster

import (
	"fmt"

	"github.com/ctessum/sparse"
)

// GeoTransform maps pixel indices to projected coordinates. The
// coefficients are in the order x0, dx, rx, y0, ry, dy, where (x0, y0) is
// the upper-left corner of the upper-left pixel, dx and dy are the pixel
// dimensions (dy is typically negative) and rx and ry are rotation terms.
type GeoTransform [6]float64

// PixelSize returns the pixel width.
func (g GeoTransform) PixelSize() float64 { return g[1] }

// Corner returns the upper-left corner as (lat, lon), or (y, x) for
// projected grids.
func (g GeoTransform) Corner() (lat, lon float64) { return g[3], g[0] }

// Lat returns the y coordinate of each of the height rows.
func (g GeoTransform) Lat(height int) []float64 {
	o := make([]float64, height)
	for i := range o {
		o[i] = g[3] + float64(i)*g[5]
	}
	return o
}

// Lon returns the x coordinate of each of the width columns.
func (g GeoTransform) Lon(width int) []float64 {
	o := make([]float64, width)
	for j := range o {
		o[j] = g[0] + float64(j)*g[1]
	}
	return o
}

// A Handle can be queried for geospatial metadata.
type Handle interface {
	// Projection returns the spatial reference in WKT or Proj4 format,
	// or an empty string if it is unknown.
	Projection() string
	GeoTransform() GeoTransform

	// Size returns the raster dimensions in pixels.
	Size() (width, height int)

	BandCount() int

	// NoData returns the no-data value and whether one is set.
	NoData() (float64, bool)
}

// A Source is one opened raster file.
type Source interface {
	Handle

	// Name identifies the source, typically by its file name.
	Name() string

	// Band returns the values of band i (zero-based) as a
	// [height, width] array. The returned array must not be modified.
	Band(i int) (*sparse.DenseArray, error)

	// Layer returns a virtual handle to band i.
	Layer(i int) *Layer
}

// Layer is a virtual handle to a single band of a Source.
type Layer struct {
	src  Source
	band int
}

// NewLayer returns a handle to band i of src.
func NewLayer(src Source, i int) *Layer {
	return &Layer{src: src, band: i}
}

// Source returns the source the layer belongs to.
func (l *Layer) Source() Source { return l.src }

// Index returns the zero-based band index of the layer within its source.
func (l *Layer) Index() int { return l.band }

// Data reads the band values.
func (l *Layer) Data() (*sparse.DenseArray, error) { return l.src.Band(l.band) }

// Projection implements Handle.
func (l *Layer) Projection() string { return l.src.Projection() }

// GeoTransform implements Handle.
func (l *Layer) GeoTransform() GeoTransform { return l.src.GeoTransform() }

// Size implements Handle.
func (l *Layer) Size() (width, height int) { return l.src.Size() }

// BandCount implements Handle. A layer always holds one band.
func (l *Layer) BandCount() int { return 1 }

// NoData implements Handle.
func (l *Layer) NoData() (float64, bool) { return l.src.NoData() }

func (l *Layer) String() string { return fmt.Sprintf("%s[%d]", l.src.Name(), l.band) }

// VRT is a composite virtual raster: a logical stack of handles
// in which each member contributes its bands as separate bands.
// Metadata other than the band count is taken from the first member.
type VRT struct {
	members []Handle
}

// BuildVRT returns a composite of the given handles, in order. All
// members must have the same raster size.
func BuildVRT(members ...Handle) (*VRT, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("raster: cannot build a virtual raster with no members")
	}
	w0, h0 := members[0].Size()
	for i, m := range members[1:] {
		if w, h := m.Size(); w != w0 || h != h0 {
			return nil, fmt.Errorf("raster: virtual raster member %d is %dx%d but member 0 is %dx%d",
				i+1, w, h, w0, h0)
		}
	}
	return &VRT{members: append([]Handle(nil), members...)}, nil
}

// Members returns the handles the composite was built from.
func (v *VRT) Members() []Handle { return v.members }

// Projection implements Handle.
func (v *VRT) Projection() string { return v.members[0].Projection() }

// GeoTransform implements Handle.
func (v *VRT) GeoTransform() GeoTransform { return v.members[0].GeoTransform() }

// Size implements Handle.
func (v *VRT) Size() (width, height int) { return v.members[0].Size() }

// BandCount implements Handle.
func (v *VRT) BandCount() int {
	n := 0
	for _, m := range v.members {
		n += m.BandCount()
	}
	return n
}

// NoData implements Handle. It returns the no-data value of the first
// member that declares one.
func (v *VRT) NoData() (float64, bool) {
	for _, m := range v.members {
		if nd, ok := m.NoData(); ok {
			return nd, true
		}
	}
	return 0, false
}

// Leaves returns the members of v in band order, with nested composites
// expanded.
func (v *VRT) Leaves() []Handle {
	var o []Handle
	for _, m := range v.members {
		if c, ok := m.(*VRT); ok {
			o = append(o, c.Leaves()...)
		} else {
			o = append(o, m)
		}
	}
	return o
}
