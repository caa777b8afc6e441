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
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// OpenNetCDF reads a NetCDF classic file as a raster source.
// Every floating point variable whose two innermost dimensions are
// [lat, lon] contributes its 2D slabs as bands, in header order.
// The geotransform is taken from the "geotransform" global attribute if
// present and is otherwise derived from the lat and lon coordinate
// variables. The whole file is read into memory.
func OpenNetCDF(path string) (*MemSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("raster: opening NetCDF file: %v", err)
	}
	defer f.Close()
	nc, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("raster: opening NetCDF file %s: %v", path, err)
	}

	var bands []*sparse.DenseArray
	var firstVar string
	for _, v := range nc.Header.Variables() {
		dims := nc.Header.Dimensions(v)
		n := len(dims)
		if n < 2 || dims[n-2] != "lat" || dims[n-1] != "lon" {
			continue
		}
		data, err := ReadFloatVar(nc, v)
		if err != nil {
			return nil, fmt.Errorf("raster: reading variable %s from %s: %v", v, path, err)
		}
		if data == nil {
			continue
		}
		if firstVar == "" {
			firstVar = v
		}
		lengths := nc.Header.Lengths(v)
		ny, nx := lengths[n-2], lengths[n-1]
		for off := 0; off+ny*nx <= len(data); off += ny * nx {
			b := sparse.ZerosDense(ny, nx)
			copy(b.Elements, data[off:off+ny*nx])
			bands = append(bands, b)
		}
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("raster: NetCDF file %s has no variables with dimensions [lat, lon]", path)
	}

	gt, err := netCDFGeoTransform(nc)
	if err != nil {
		return nil, fmt.Errorf("raster: %s: %v", path, err)
	}
	src, err := NewMemSource(path, netCDFProjection(nc), gt, bands...)
	if err != nil {
		return nil, err
	}
	for _, a := range []string{"_FillValue", "missing_value", "missing"} {
		if v, ok := FloatAttribute(nc.Header, firstVar, a); ok {
			src.SetNoData(v)
			break
		}
	}
	return src, nil
}

// ReadFloatVar reads a whole floating point variable as float64 values.
// It returns nil if the variable is not floating point.
func ReadFloatVar(nc *cdf.File, v string) ([]float64, error) {
	r := nc.Reader(v, nil, nil)
	if r == nil {
		return nil, fmt.Errorf("no variable named %s", v)
	}
	buf := r.Zero(-1)
	switch buf.(type) {
	case []float32, []float64:
	default:
		return nil, nil
	}
	if _, err := r.Read(buf); err != nil {
		return nil, err
	}
	switch d := buf.(type) {
	case []float64:
		return d, nil
	case []float32:
		o := make([]float64, len(d))
		for i, v := range d {
			o[i] = float64(v)
		}
		return o, nil
	}
	panic("unreachable")
}

// FloatAttribute returns the first value of a numeric attribute.
func FloatAttribute(h *cdf.Header, v, a string) (float64, bool) {
	switch x := h.GetAttribute(v, a).(type) {
	case []float64:
		if len(x) > 0 {
			return x[0], true
		}
	case []float32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int16:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	}
	return 0, false
}

// StringAttribute returns the value of a text attribute.
func StringAttribute(h *cdf.Header, v, a string) (string, bool) {
	s, ok := h.GetAttribute(v, a).(string)
	return s, ok
}

func netCDFProjection(nc *cdf.File) string {
	for _, c := range []struct{ v, a string }{
		{"spatial_ref", "spatial_ref"},
		{"spatial_ref", "crs_wkt"},
		{"crs", "spatial_ref"},
		{"crs", "crs_wkt"},
		{"", "spatial_ref"},
		{"", "crs_wkt"},
	} {
		if s, ok := StringAttribute(nc.Header, c.v, c.a); ok && s != "" {
			return s
		}
	}
	return ""
}

func netCDFGeoTransform(nc *cdf.File) (GeoTransform, error) {
	var gt GeoTransform
	if a, ok := nc.Header.GetAttribute("", "geotransform").([]float64); ok && len(a) == 6 {
		copy(gt[:], a)
		return gt, nil
	}
	lat, err := ReadFloatVar(nc, "lat")
	if err != nil {
		return gt, fmt.Errorf("reading lat: %v", err)
	}
	lon, err := ReadFloatVar(nc, "lon")
	if err != nil {
		return gt, fmt.Errorf("reading lon: %v", err)
	}
	if len(lat) == 0 || len(lon) == 0 {
		return gt, fmt.Errorf("missing lat or lon coordinates")
	}
	gt = GeoTransform{lon[0], 1, 0, lat[0], 0, 1}
	if len(lon) > 1 {
		gt[1] = lon[1] - lon[0]
	}
	if len(lat) > 1 {
		gt[5] = lat[1] - lat[0]
	}
	return gt, nil
}
