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
	"math"
	"regexp"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// Metadata is a summary of the geospatial information of a Handle.
type Metadata struct {
	Projection string

	// SR is the parsed projection. It is nil if the projection is unknown
	// or is given only as an EPSG code.
	SR *proj.SR

	// EPSG is the projection authority code in the form "EPSG:4326", or
	// an empty string if none is known.
	EPSG string

	// Units are the units of the projected coordinates.
	Units string

	GeoTransform  GeoTransform
	Width, Height int
	Bands         int

	NoData    float64
	HasNoData bool
}

var (
	epsgCode      = regexp.MustCompile(`^(?i)epsg:(\d+)$`)
	wktAuthority  = regexp.MustCompile(`AUTHORITY\[\s*"(?i:epsg)"\s*,\s*"?(\d+)"?\s*\]`)
	proj4InitEPSG = regexp.MustCompile(`\+init=(?i:epsg):(\d+)`)
)

// Describe collects the metadata of h. It returns an error if the
// projection cannot be parsed.
func Describe(h Handle) (*Metadata, error) {
	m := &Metadata{
		Projection:   strings.TrimSpace(h.Projection()),
		GeoTransform: h.GeoTransform(),
		Bands:        h.BandCount(),
	}
	m.Width, m.Height = h.Size()
	m.NoData, m.HasNoData = h.NoData()

	switch {
	case m.Projection == "":
	case epsgCode.MatchString(m.Projection):
		m.EPSG = "EPSG:" + epsgCode.FindStringSubmatch(m.Projection)[1]
	default:
		sr, err := proj.Parse(m.Projection)
		if err != nil {
			return nil, fmt.Errorf("raster: parsing projection %q: %v", m.Projection, err)
		}
		m.SR = sr
		m.Units = sr.Units
		if m.Units == "" && sr.Name == "longlat" {
			m.Units = "degree"
		}
		m.EPSG = epsgFromText(m.Projection)
	}
	return m, nil
}

// epsgFromText extracts the EPSG code of the outermost coordinate system
// of a WKT or Proj4 string. In WKT, the outermost AUTHORITY is the last one.
func epsgFromText(p string) string {
	if m := wktAuthority.FindAllStringSubmatch(p, -1); len(m) > 0 {
		return "EPSG:" + m[len(m)-1][1]
	}
	if m := proj4InitEPSG.FindStringSubmatch(p); m != nil {
		return "EPSG:" + m[1]
	}
	return ""
}

// Lat returns the y coordinate of each row.
func (m *Metadata) Lat() []float64 { return m.GeoTransform.Lat(m.Height) }

// Lon returns the x coordinate of each column.
func (m *Metadata) Lon() []float64 { return m.GeoTransform.Lon(m.Width) }

// PixelSize returns the pixel width.
func (m *Metadata) PixelSize() float64 { return m.GeoTransform.PixelSize() }

// Corner returns the upper-left corner as (lat, lon).
func (m *Metadata) Corner() (lat, lon float64) { return m.GeoTransform.Corner() }

// Bounds returns the footprint of the raster, ignoring rotation terms.
func (m *Metadata) Bounds() *geom.Bounds {
	g := m.GeoTransform
	x1 := g[0] + float64(m.Width)*g[1]
	y1 := g[3] + float64(m.Height)*g[5]
	return &geom.Bounds{
		Min: geom.Point{X: math.Min(g[0], x1), Y: math.Min(g[3], y1)},
		Max: geom.Point{X: math.Max(g[0], x1), Y: math.Max(g[3], y1)},
	}
}
