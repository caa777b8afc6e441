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
	"path/filepath"
	"strings"
)

// Open opens the raster file at path, choosing the reader by file extension.
func Open(path string) (Source, error) {
	var (
		s   *MemSource
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".nc", ".nc4", ".ncf", ".cdf", ".netcdf":
		s, err = OpenNetCDF(path)
	case ".tif", ".tiff":
		s, err = OpenTIFF(path)
	default:
		return nil, fmt.Errorf("raster: unsupported file type %q for %s; supported types are NetCDF (.nc) and TIFF (.tif)",
			filepath.Ext(path), path)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenAll opens each of the given paths.
func OpenAll(paths ...string) ([]Source, error) {
	o := make([]Source, len(paths))
	for i, p := range paths {
		s, err := Open(p)
		if err != nil {
			return nil, err
		}
		o[i] = s
	}
	return o, nil
}
