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
	"bytes"
	"encoding/binary"
	"image"
	"io/ioutil"
	"os"
	"path/filepath"
	"math"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
	"github.com/kr/pretty"
	"golang.org/x/image/tiff"
)

const (
	longlat = "+proj=longlat +datum=WGS84 +no_defs"
	wgs84   = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`
)

func band(h, w int, v ...float64) *sparse.DenseArray {
	b := sparse.ZerosDense(h, w)
	copy(b.Elements, v)
	return b
}

func testSource(t *testing.T, name string, nbands int) *MemSource {
	bands := make([]*sparse.DenseArray, nbands)
	for i := range bands {
		bands[i] = band(2, 3, float64(i), 1, 2, 3, 4, 5)
	}
	s, err := NewMemSource(name, longlat, GeoTransform{-100, 0.5, 0, 40, 0, -0.5}, bands...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestGeoTransform(t *testing.T) {
	gt := GeoTransform{-100, 0.5, 0, 40, 0, -0.25}
	if lat := gt.Lat(3); !reflect.DeepEqual(lat, []float64{40, 39.75, 39.5}) {
		t.Errorf("lat: %v", lat)
	}
	if lon := gt.Lon(2); !reflect.DeepEqual(lon, []float64{-100, -99.5}) {
		t.Errorf("lon: %v", lon)
	}
	if lat, lon := gt.Corner(); lat != 40 || lon != -100 {
		t.Errorf("corner: %g, %g", lat, lon)
	}
}

func TestMemSource(t *testing.T) {
	s := testSource(t, "a", 2)
	if s.BandCount() != 2 {
		t.Errorf("band count: %d", s.BandCount())
	}
	if w, h := s.Size(); w != 3 || h != 2 {
		t.Errorf("size: %dx%d", w, h)
	}
	l := s.Layer(1)
	if l.BandCount() != 1 || l.Index() != 1 || l.Source() != Source(s) {
		t.Errorf("layer: %v", l)
	}
	d, err := l.Data()
	if err != nil {
		t.Fatal(err)
	}
	if d.Get(0, 0) != 1 {
		t.Errorf("layer data: %v", d.Elements)
	}
	if _, err := s.Band(2); err == nil {
		t.Error("expected an out of range error")
	}
	if _, err := NewMemSource("bad", "", GeoTransform{}, band(2, 3), band(3, 2)); err == nil {
		t.Error("expected a shape error")
	}
}

func TestBuildVRT(t *testing.T) {
	a := testSource(t, "a", 2)
	b := testSource(t, "b", 3)
	v, err := BuildVRT(a.Layer(0), a.Layer(1), b)
	if err != nil {
		t.Fatal(err)
	}
	if v.BandCount() != 5 {
		t.Errorf("band count: %d", v.BandCount())
	}
	if v.GeoTransform() != a.GeoTransform() || v.Projection() != longlat {
		t.Error("metadata should come from the first member")
	}
	if len(v.Members()) != 3 {
		t.Errorf("members: %d", len(v.Members()))
	}

	c, err := NewMemSource("c", longlat, GeoTransform{}, band(3, 3))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := BuildVRT(a, c); err == nil {
		t.Error("expected a size mismatch error")
	}
	if _, err := BuildVRT(); err == nil {
		t.Error("expected an error for no members")
	}
}

func TestDescribe(t *testing.T) {
	mk := func(projection string) Handle {
		s, err := NewMemSource("x", projection, GeoTransform{-100, 0.5, 0, 40, 0, -0.5}, band(2, 3))
		if err != nil {
			t.Fatal(err)
		}
		s.SetNoData(-9999)
		return s
	}
	tests := []struct {
		projection  string
		epsg, units string
	}{
		{projection: longlat, units: "degree"},
		{projection: wgs84, epsg: "EPSG:4326", units: "degree"},
		{projection: "EPSG:32615", epsg: "EPSG:32615"},
		{projection: "+proj=utm +zone=15 +datum=WGS84 +units=m +no_defs", units: "m"},
		{projection: ""},
	}
	for _, test := range tests {
		t.Run(test.projection, func(t *testing.T) {
			m, err := Describe(mk(test.projection))
			if err != nil {
				t.Fatal(err)
			}
			if m.EPSG != test.epsg {
				t.Errorf("epsg: %q != %q", m.EPSG, test.epsg)
			}
			if m.Units != test.units {
				t.Errorf("units: %q != %q", m.Units, test.units)
			}
			if m.Width != 3 || m.Height != 2 || m.Bands != 1 {
				t.Errorf("dims: %d %d %d", m.Width, m.Height, m.Bands)
			}
			if !m.HasNoData || m.NoData != -9999 {
				t.Errorf("nodata: %g %v", m.NoData, m.HasNoData)
			}
			if m.PixelSize() != 0.5 {
				t.Errorf("pixel size: %g", m.PixelSize())
			}
			want := &geom.Bounds{Min: geom.Point{X: -100, Y: 39}, Max: geom.Point{X: -98.5, Y: 40}}
			if b := m.Bounds(); !reflect.DeepEqual(b, want) {
				t.Error(pretty.Diff(b, want))
			}
		})
	}
	if _, err := Describe(mk("not a projection")); err == nil {
		t.Error("expected a projection parsing error")
	}
}

func TestOpenNetCDF(t *testing.T) {
	dir, err := ioutil.TempDir("", "raster")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "test.nc")

	h := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{2, 2, 3})
	h.AddVariable("lat", []string{"lat"}, []float32{0})
	h.AddVariable("lon", []string{"lon"}, []float32{0})
	h.AddVariable("pm", []string{"time", "lat", "lon"}, []float32{0})
	h.AddAttribute("pm", "_FillValue", []float32{-1})
	h.AddVariable("spatial_ref", []string{}, []int32{0})
	h.AddAttribute("spatial_ref", "spatial_ref", longlat)
	h.Define()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	nc, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}
	for v, d := range map[string][]float32{
		"lat": {45, 44},
		"lon": {-90, -89, -88},
		"pm":  {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	} {
		end := nc.Header.Lengths(v)
		if _, err := nc.Writer(v, make([]int, len(end)), end).Write(d); err != nil {
			t.Fatal(err)
		}
	}
	f.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.BandCount() != 2 {
		t.Fatalf("band count: %d", s.BandCount())
	}
	b1, err := s.Band(1)
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{6, 7, 8, 9, 10, 11}; !reflect.DeepEqual(b1.Elements, want) {
		t.Errorf("band 1: %v != %v", b1.Elements, want)
	}
	if gt, want := s.GeoTransform(), (GeoTransform{-90, 1, 0, 45, 0, -1}); gt != want {
		t.Errorf("geotransform: %v != %v", gt, want)
	}
	if s.Projection() != longlat {
		t.Errorf("projection: %q", s.Projection())
	}
	if nd, ok := s.NoData(); !ok || nd != -1 {
		t.Errorf("nodata: %g, %v", nd, ok)
	}
}

func TestOpenTIFF(t *testing.T) {
	dir, err := ioutil.TempDir("", "raster")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	img := image.NewGray(image.Rect(0, 0, 3, 2))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 10)
	}
	f, err := os.Create(filepath.Join(dir, "test.tif"))
	if err != nil {
		t.Fatal(err)
	}
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
	f.Close()
	tfw := "0.5\n0\n0\n-0.5\n100.25\n50.25\n"
	if err := ioutil.WriteFile(filepath.Join(dir, "test.tfw"), []byte(tfw), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, "test.prj"), []byte(wgs84+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(filepath.Join(dir, "test.tif"))
	if err != nil {
		t.Fatal(err)
	}
	if s.BandCount() != 1 {
		t.Fatalf("band count: %d", s.BandCount())
	}
	b, err := s.Band(0)
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{0, 10, 20, 30, 40, 50}; !reflect.DeepEqual(b.Elements, want) {
		t.Errorf("band: %v != %v", b.Elements, want)
	}
	if gt, want := s.GeoTransform(), (GeoTransform{100, 0.5, 0, 50.5, 0, -0.5}); gt != want {
		t.Errorf("geotransform: %v != %v", gt, want)
	}
	if s.Projection() != wgs84 {
		t.Errorf("projection: %q", s.Projection())
	}
}

// tiffEntry is an image directory entry of a test TIFF file.
type tiffEntry struct {
	tag, typ uint16
	count    uint32
	data     []byte
}

func shortEntry(tag uint16, v ...uint16) tiffEntry {
	e := tiffEntry{tag: tag, typ: tiffShort, count: uint32(len(v)), data: make([]byte, 2*len(v))}
	for i, x := range v {
		binary.LittleEndian.PutUint16(e.data[2*i:], x)
	}
	return e
}

func longEntry(tag uint16, v uint32) tiffEntry {
	e := tiffEntry{tag: tag, typ: tiffLong, count: 1, data: make([]byte, 4)}
	binary.LittleEndian.PutUint32(e.data, v)
	return e
}

func doubleEntry(tag uint16, v ...float64) tiffEntry {
	e := tiffEntry{tag: tag, typ: tiffDouble, count: uint32(len(v)), data: make([]byte, 8*len(v))}
	for i, x := range v {
		binary.LittleEndian.PutUint64(e.data[8*i:], math.Float64bits(x))
	}
	return e
}

// grayTIFF encodes an uncompressed 8-bit grayscale image with the given
// extra directory entries.
func grayTIFF(w, h int, pix []byte, extra ...tiffEntry) []byte {
	le := binary.LittleEndian
	entries := append([]tiffEntry{
		shortEntry(256, uint16(w)),
		shortEntry(257, uint16(h)),
		shortEntry(258, 8),
		shortEntry(259, 1),
		shortEntry(262, 1),
		longEntry(273, 0),
		shortEntry(277, 1),
		shortEntry(278, uint16(h)),
		longEntry(279, uint32(len(pix))),
	}, extra...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	dataStart := 8 + 2 + 12*len(entries) + 4
	data := append([]byte(nil), pix...)
	if len(data)%2 == 1 {
		data = append(data, 0)
	}
	var ifd bytes.Buffer
	b2, b4 := make([]byte, 2), make([]byte, 4)
	le.PutUint16(b2, uint16(len(entries)))
	ifd.Write(b2)
	for _, e := range entries {
		if e.tag == 273 {
			le.PutUint32(e.data, uint32(dataStart))
		}
		le.PutUint16(b2, e.tag)
		ifd.Write(b2)
		le.PutUint16(b2, e.typ)
		ifd.Write(b2)
		le.PutUint32(b4, e.count)
		ifd.Write(b4)
		if len(e.data) <= 4 {
			v := make([]byte, 4)
			copy(v, e.data)
			ifd.Write(v)
			continue
		}
		le.PutUint32(b4, uint32(dataStart+len(data)))
		ifd.Write(b4)
		data = append(data, e.data...)
	}
	ifd.Write(make([]byte, 4))

	out := []byte{'I', 'I', 42, 0, 8, 0, 0, 0}
	out = append(out, ifd.Bytes()...)
	return append(out, data...)
}

func TestOpenGeoTIFF(t *testing.T) {
	dir, err := ioutil.TempDir("", "raster")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	pix := []byte{0, 10, 20, 30, 40, 50}

	tests := []struct {
		name       string
		tags       []tiffEntry
		gt         GeoTransform
		projection string
	}{
		{
			name: "area",
			tags: []tiffEntry{
				doubleEntry(tagModelPixelScale, 0.5, 0.25, 0),
				doubleEntry(tagModelTiepoint, 0, 0, 0, -100, 40, 0),
				shortEntry(tagGeoKeyDirectory, 1, 1, 0, 2, 1025, 0, 1, 1, 2048, 0, 1, 4326),
			},
			gt:         GeoTransform{-100, 0.5, 0, 40, 0, -0.25},
			projection: "EPSG:4326",
		},
		{
			name: "point",
			tags: []tiffEntry{
				doubleEntry(tagModelPixelScale, 0.5, 0.5, 0),
				doubleEntry(tagModelTiepoint, 1, 1, 0, -99.5, 39.5, 0),
				shortEntry(tagGeoKeyDirectory, 1, 1, 0, 2, 1025, 0, 1, 2, 3072, 0, 1, 32615),
			},
			gt:         GeoTransform{-100.25, 0.5, 0, 40.25, 0, -0.5},
			projection: "EPSG:32615",
		},
		{
			name: "transform",
			tags: []tiffEntry{
				doubleEntry(tagModelTransform, 2, 0, 0, 500000, 0, -2, 0, 4000000, 0, 0, 0, 0, 0, 0, 0, 1),
			},
			gt: GeoTransform{500000, 2, 0, 4000000, 0, -2},
		},
		{
			name: "none",
			gt:   GeoTransform{0, 1, 0, 0, 0, 1},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(dir, test.name+".tif")
			if err := ioutil.WriteFile(path, grayTIFF(3, 2, pix, test.tags...), 0644); err != nil {
				t.Fatal(err)
			}
			s, err := Open(path)
			if err != nil {
				t.Fatal(err)
			}
			if s.GeoTransform() != test.gt {
				t.Errorf("geotransform: %v != %v", s.GeoTransform(), test.gt)
			}
			if s.Projection() != test.projection {
				t.Errorf("projection: %q != %q", s.Projection(), test.projection)
			}
			b, err := s.Band(0)
			if err != nil {
				t.Fatal(err)
			}
			if want := []float64{0, 10, 20, 30, 40, 50}; !reflect.DeepEqual(b.Elements, want) {
				t.Errorf("band: %v != %v", b.Elements, want)
			}
		})
	}
}

func TestReadWorldFileInvalid(t *testing.T) {
	if _, err := ReadWorldFile(strings.NewReader("1\n2\n3\n")); err == nil {
		t.Error("expected an error for a short world file")
	}
	if _, err := ReadWorldFile(strings.NewReader("1\n2\nx\n4\n5\n6\n")); err == nil {
		t.Error("expected a parse error")
	}
}

func TestOpenUnsupported(t *testing.T) {
	if _, err := Open("data.shp"); err == nil {
		t.Error("expected an unsupported file type error")
	}
}
