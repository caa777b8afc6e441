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

package raster

import (
	"fmt"

	"github.com/ctessum/sparse"
)

// MemSource is a Source whose bands are held in memory.
type MemSource struct {
	name       string
	projection string
	gt         GeoTransform
	bands      []*sparse.DenseArray
	width      int
	height     int

	nodata    float64
	hasNoData bool
}

// NewMemSource creates a source from the given bands, each of which
// must be a two-dimensional [height, width] array. All bands must have
// the same shape.
func NewMemSource(name, projection string, gt GeoTransform, bands ...*sparse.DenseArray) (*MemSource, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("raster: source %s has no bands", name)
	}
	s := &MemSource{
		name:       name,
		projection: projection,
		gt:         gt,
		bands:      bands,
	}
	for i, b := range bands {
		if len(b.Shape) != 2 {
			return nil, fmt.Errorf("raster: source %s band %d has %d dimensions; it should have 2", name, i, len(b.Shape))
		}
		if i == 0 {
			s.height, s.width = b.Shape[0], b.Shape[1]
			continue
		}
		if b.Shape[0] != s.height || b.Shape[1] != s.width {
			return nil, fmt.Errorf("raster: source %s band %d has shape %v but band 0 has shape [%d %d]",
				name, i, b.Shape, s.height, s.width)
		}
	}
	return s, nil
}

// SetNoData sets the no-data value of the source.
func (s *MemSource) SetNoData(v float64) {
	s.nodata = v
	s.hasNoData = true
}

// Name implements Source.
func (s *MemSource) Name() string { return s.name }

// Projection implements Handle.
func (s *MemSource) Projection() string { return s.projection }

// GeoTransform implements Handle.
func (s *MemSource) GeoTransform() GeoTransform { return s.gt }

// Size implements Handle.
func (s *MemSource) Size() (width, height int) { return s.width, s.height }

// BandCount implements Handle.
func (s *MemSource) BandCount() int { return len(s.bands) }

// NoData implements Handle.
func (s *MemSource) NoData() (float64, bool) { return s.nodata, s.hasNoData }

// Band implements Source.
func (s *MemSource) Band(i int) (*sparse.DenseArray, error) {
	if i < 0 || i >= len(s.bands) {
		return nil, fmt.Errorf("raster: band %d out of range for source %s with %d bands", i, s.name, len(s.bands))
	}
	return s.bands[i], nil
}

// Layer implements Source.
func (s *MemSource) Layer(i int) *Layer { return NewLayer(s, i) }
