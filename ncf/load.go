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

package ncf

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/spacetime"
	"github.com/spatialmodel/spacetime/raster"
)

// Load reads a cube from the NetCDF file at path. Every floating point
// variable with dimensions [time, lat, lon] is a cube variable; a file
// whose only such variable is named "value" is a single-array cube.
func Load(path string) (*spacetime.Cube, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ncf: %v", err)
	}
	defer f.Close()
	nc, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("ncf: opening %s: %v", path, err)
	}

	c := &spacetime.Cube{
		Path:       path,
		Attributes: make(map[string]string),
	}
	if c.Time.Values, err = coordVar(nc, TimeDim); err != nil {
		return nil, fmt.Errorf("ncf: %s: %v", path, err)
	}
	c.Time.Units, _ = raster.StringAttribute(nc.Header, TimeDim, "units")
	if c.Lat, err = coordVar(nc, LatDim); err != nil {
		return nil, fmt.Errorf("ncf: %s: %v", path, err)
	}
	if c.Lon, err = coordVar(nc, LonDim); err != nil {
		return nil, fmt.Errorf("ncf: %s: %v", path, err)
	}
	c.SpatialRef, _ = raster.StringAttribute(nc.Header, SpatialRef, SpatialRef)

	if gt, ok := nc.Header.GetAttribute("", GeoTransformAttr).([]float64); ok && len(gt) == 6 {
		copy(c.Transform[:], gt)
	} else {
		c.Transform = raster.GeoTransform{0, 1, 0, 0, 0, 1}
		if len(c.Lon) > 0 {
			c.Transform[0] = c.Lon[0]
		}
		if len(c.Lat) > 0 {
			c.Transform[3] = c.Lat[0]
		}
		if len(c.Lon) > 1 {
			c.Transform[1] = c.Lon[1] - c.Lon[0]
		}
		if len(c.Lat) > 1 {
			c.Transform[5] = c.Lat[1] - c.Lat[0]
		}
	}

	var names []string
	for _, v := range nc.Header.Variables() {
		if reserved[v] {
			continue
		}
		dims := nc.Header.Dimensions(v)
		if len(dims) != 3 || dims[0] != TimeDim || dims[1] != LatDim || dims[2] != LonDim {
			continue
		}
		data, err := raster.ReadFloatVar(nc, v)
		if err != nil {
			return nil, fmt.Errorf("ncf: reading variable %s from %s: %v", v, path, err)
		}
		if data == nil {
			continue
		}
		nodata := spacetime.DefaultNoData
		for _, a := range []string{"_FillValue", "missing"} {
			if nd, ok := raster.FloatAttribute(nc.Header, v, a); ok {
				nodata = nd
				break
			}
		}
		d := sparse.ZerosDense(len(c.Time.Values), len(c.Lat), len(c.Lon))
		if len(data) != len(d.Elements) {
			return nil, fmt.Errorf("ncf: variable %s in %s has %d values; want %d", v, path, len(data), len(d.Elements))
		}
		d.Elements = data
		names = append(names, v)
		c.Data = append(c.Data, d)
		c.Missing = append(c.Missing, nodata)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("ncf: %s has no variables with dimensions [%s, %s, %s]", path, TimeDim, LatDim, LonDim)
	}
	if len(names) > 1 || names[0] != spacetime.SingleVarName {
		c.VarNames = names
	}

	files, _ := raster.StringAttribute(nc.Header, "", OrganizeFilesAttr)
	bands, _ := raster.StringAttribute(nc.Header, "", OrganizeBandsAttr)
	if p, err := spacetime.ParsePolicy(files, bands); err == nil {
		c.Policy = p
	} else if c.VarNames != nil {
		c.Policy = spacetime.VarTime
	} else {
		c.Policy = spacetime.TimeTime
	}

	for _, a := range nc.Header.Attributes("") {
		switch a {
		case GeoTransformAttr, OrganizeFilesAttr, OrganizeBandsAttr:
			continue
		}
		if s, ok := raster.StringAttribute(nc.Header, "", a); ok {
			c.Attributes[a] = s
		}
	}
	return c, nil
}

// coordVar reads a one-dimensional coordinate variable.
func coordVar(nc *cdf.File, v string) ([]float64, error) {
	if dims := nc.Header.Dimensions(v); len(dims) != 1 {
		return nil, fmt.Errorf("missing coordinate variable %s", v)
	}
	d, err := raster.ReadFloatVar(nc, v)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %v", v, err)
	}
	if d == nil {
		return nil, fmt.Errorf("coordinate variable %s is not floating point", v)
	}
	return d, nil
}
