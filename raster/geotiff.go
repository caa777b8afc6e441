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
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// GeoTIFF tags and keys.
const (
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagModelTransform  = 34264
	tagGeoKeyDirectory = 34735

	keyRasterType      = 1025
	keyGeographicType  = 2048
	keyProjectedCSType = 3072

	rasterPixelIsPoint = 2
	userDefined        = 32767
)

// TIFF field types.
const (
	tiffShort  = 3
	tiffLong   = 4
	tiffDouble = 12
)

// geoTags is the georeferencing stored in the first image directory of
// a GeoTIFF file.
type geoTags struct {
	GeoTransform GeoTransform
	HasTransform bool

	// EPSG is the code of the projected or geographic coordinate
	// system, or 0 if none is given.
	EPSG int
}

// readGeoTags reads the GeoTIFF tags of the first image in r.
func readGeoTags(r io.ReaderAt) (*geoTags, error) {
	var hdr [8]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("reading TIFF header: %v", err)
	}
	var bo binary.ByteOrder
	switch string(hdr[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("invalid TIFF byte order %q", hdr[:2])
	}
	if bo.Uint16(hdr[2:4]) != 42 {
		return nil, fmt.Errorf("not a classic TIFF file")
	}
	ifd := int64(bo.Uint32(hdr[4:8]))

	var nb [2]byte
	if _, err := r.ReadAt(nb[:], ifd); err != nil {
		return nil, fmt.Errorf("reading image directory: %v", err)
	}
	n := int(bo.Uint16(nb[:]))
	entries := make([]byte, n*12)
	if _, err := r.ReadAt(entries, ifd+2); err != nil {
		return nil, fmt.Errorf("reading image directory: %v", err)
	}

	var scale, tiepoint, transform []float64
	var keys []uint16
	for i := 0; i < n; i++ {
		e := entries[i*12 : (i+1)*12]
		tag := bo.Uint16(e[0:2])
		switch tag {
		case tagModelPixelScale, tagModelTiepoint, tagModelTransform, tagGeoKeyDirectory:
		default:
			continue
		}
		typ := bo.Uint16(e[2:4])
		count := int(bo.Uint32(e[4:8]))
		if count > 1<<16 {
			return nil, fmt.Errorf("tag %d has %d values", tag, count)
		}
		var size int
		switch typ {
		case tiffShort:
			size = 2
		case tiffLong:
			size = 4
		case tiffDouble:
			size = 8
		default:
			return nil, fmt.Errorf("tag %d has unsupported type %d", tag, typ)
		}
		b := make([]byte, count*size)
		if len(b) <= 4 {
			copy(b, e[8:12])
		} else if _, err := r.ReadAt(b, int64(bo.Uint32(e[8:12]))); err != nil {
			return nil, fmt.Errorf("reading tag %d: %v", tag, err)
		}
		switch {
		case tag == tagGeoKeyDirectory && typ == tiffShort:
			keys = make([]uint16, count)
			for j := range keys {
				keys[j] = bo.Uint16(b[2*j:])
			}
		case typ == tiffDouble:
			v := make([]float64, count)
			for j := range v {
				v[j] = math.Float64frombits(bo.Uint64(b[8*j:]))
			}
			switch tag {
			case tagModelPixelScale:
				scale = v
			case tagModelTiepoint:
				tiepoint = v
			case tagModelTransform:
				transform = v
			}
		}
	}

	g := new(geoTags)
	pointRaster := false
	if len(keys) >= 4 {
		nkeys := int(keys[3])
		for k := 0; k < nkeys && 4+4*k+3 < len(keys); k++ {
			id, loc, val := keys[4+4*k], keys[4+4*k+1], keys[4+4*k+3]
			if loc != 0 {
				continue
			}
			switch id {
			case keyRasterType:
				pointRaster = val == rasterPixelIsPoint
			case keyProjectedCSType:
				if val != userDefined {
					g.EPSG = int(val)
				}
			case keyGeographicType:
				if val != userDefined && g.EPSG == 0 {
					g.EPSG = int(val)
				}
			}
		}
	}

	switch {
	case len(scale) >= 2 && len(tiepoint) >= 6:
		i, j, x, y := tiepoint[0], tiepoint[1], tiepoint[3], tiepoint[4]
		sx, sy := scale[0], scale[1]
		g.GeoTransform = GeoTransform{x - i*sx, sx, 0, y + j*sy, 0, -sy}
		g.HasTransform = true
	case len(transform) >= 16:
		g.GeoTransform = GeoTransform{transform[3], transform[0], transform[1], transform[7], transform[4], transform[5]}
		g.HasTransform = true
	}
	if g.HasTransform && pointRaster {
		gt := &g.GeoTransform
		gt[0] -= (gt[1] + gt[2]) / 2
		gt[3] -= (gt[4] + gt[5]) / 2
	}
	return g, nil
}
