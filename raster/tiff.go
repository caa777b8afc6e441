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
	"bufio"
	"fmt"
	"image"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/tiff"
)

// OpenTIFF reads a TIFF image as a raster source. Grayscale and paletted
// images have one band, RGB images three and images with an alpha
// channel four. The geotransform and projection are taken from GeoTIFF
// tags when the file has them. Otherwise the geotransform is read from a
// world file next to the image (".tfw" or ".wld") and the projection from
// a ".prj" file. Without any of these the geotransform is the pixel grid
// itself.
func OpenTIFF(path string) (*MemSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("raster: opening TIFF file: %v", err)
	}
	defer f.Close()
	tags, err := readGeoTags(f)
	if err != nil {
		return nil, fmt.Errorf("raster: reading GeoTIFF tags from %s: %v", path, err)
	}
	img, err := tiff.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("raster: decoding TIFF file %s: %v", path, err)
	}
	bands := imageBands(img)

	gt, georeferenced := tags.GeoTransform, tags.HasTransform
	base := strings.TrimSuffix(path, filepath.Ext(path))
	if !georeferenced {
		if gt, georeferenced, err = worldFile(base); err != nil {
			return nil, err
		}
	}
	if !georeferenced {
		logrus.WithField("path", path).Warn("TIFF file has no georeferencing; using pixel coordinates")
	}

	var projection string
	if tags.EPSG != 0 {
		projection = fmt.Sprintf("EPSG:%d", tags.EPSG)
	} else {
		for _, ext := range []string{".prj", ".PRJ"} {
			if b, err := ioutil.ReadFile(base + ext); err == nil {
				projection = strings.TrimSpace(string(b))
				break
			}
		}
	}
	return NewMemSource(path, projection, gt, bands...)
}

// worldFile reads the world file for the image with the given base path,
// if one exists.
func worldFile(base string) (GeoTransform, bool, error) {
	for _, ext := range []string{".tfw", ".TFW", ".wld", ".WLD"} {
		f, err := os.Open(base + ext)
		if err != nil {
			continue
		}
		gt, err := ReadWorldFile(f)
		f.Close()
		if err != nil {
			return GeoTransform{}, false, fmt.Errorf("raster: reading world file %s: %v", base+ext, err)
		}
		return gt, true, nil
	}
	return GeoTransform{0, 1, 0, 0, 0, 1}, false, nil
}

// imageBands splits an image into per-channel [height, width] arrays.
func imageBands(img image.Image) []*sparse.DenseArray {
	r := img.Bounds()
	w, h := r.Dx(), r.Dy()
	var n int
	switch img.(type) {
	case *image.Gray, *image.Gray16, *image.Paletted:
		n = 1
	case *image.NRGBA, *image.NRGBA64:
		n = 4
	default:
		n = 3
	}
	bands := make([]*sparse.DenseArray, n)
	for i := range bands {
		bands[i] = sparse.ZerosDense(h, w)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			switch im := img.(type) {
			case *image.Gray:
				bands[0].Set(float64(im.GrayAt(r.Min.X+x, r.Min.Y+y).Y), y, x)
			case *image.Gray16:
				bands[0].Set(float64(im.Gray16At(r.Min.X+x, r.Min.Y+y).Y), y, x)
			case *image.Paletted:
				bands[0].Set(float64(im.ColorIndexAt(r.Min.X+x, r.Min.Y+y)), y, x)
			case *image.NRGBA:
				p := im.NRGBAAt(r.Min.X+x, r.Min.Y+y)
				setAll(bands, y, x, float64(p.R), float64(p.G), float64(p.B), float64(p.A))
			case *image.NRGBA64:
				p := im.NRGBA64At(r.Min.X+x, r.Min.Y+y)
				setAll(bands, y, x, float64(p.R), float64(p.G), float64(p.B), float64(p.A))
			default:
				cr, cg, cb, _ := img.At(r.Min.X+x, r.Min.Y+y).RGBA()
				setAll(bands, y, x, float64(cr>>8), float64(cg>>8), float64(cb>>8))
			}
		}
	}
	return bands
}

func setAll(bands []*sparse.DenseArray, y, x int, v ...float64) {
	for i, b := range bands {
		b.Set(v[i], y, x)
	}
}

// ReadWorldFile parses an ESRI world file, whose six lines hold the
// pixel x size, the row and column rotations, the pixel y size and the
// coordinates of the center of the upper-left pixel. The returned
// geotransform refers to the upper-left corner of that pixel.
func ReadWorldFile(f io.Reader) (GeoTransform, error) {
	var v []float64
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		x, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return GeoTransform{}, err
		}
		v = append(v, x)
	}
	if err := s.Err(); err != nil {
		return GeoTransform{}, err
	}
	if len(v) != 6 {
		return GeoTransform{}, fmt.Errorf("world file has %d values; it should have 6", len(v))
	}
	a, d, b, e, c, ff := v[0], v[1], v[2], v[3], v[4], v[5]
	return GeoTransform{c - a/2 - b/2, a, b, ff - d/2 - e/2, d, e}, nil
}
