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

package spacetimeutil

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/spacetime"
	"github.com/spatialmodel/spacetime/ncf"
	"github.com/tealeg/xlsx"
)

const wgs84 = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`

func init() {
	Cfg.Set("LogLevel", "warning")
	Log.SetLevel(logrus.WarnLevel)
}

// writeSource writes a NetCDF raster with nbands bands of 2x3 pixels.
// Pixel i of band b has the value offset + 6b + i.
func writeSource(t *testing.T, path string, nbands int, offset float32) {
	h := cdf.NewHeader([]string{"band", "lat", "lon"}, []int{nbands, 2, 3})
	h.AddVariable("lat", []string{"lat"}, []float32{0})
	h.AddVariable("lon", []string{"lon"}, []float32{0})
	h.AddVariable("data", []string{"band", "lat", "lon"}, []float32{0})
	h.AddVariable("spatial_ref", []string{}, []int32{0})
	h.AddAttribute("spatial_ref", "spatial_ref", wgs84)
	h.Define()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	nc, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}
	data := make([]float32, nbands*6)
	for i := range data {
		data[i] = offset + float32(i)
	}
	for v, d := range map[string][]float32{
		"lat":  {40, 39.5},
		"lon":  {-100, -99.5, -99},
		"data": data,
	} {
		end := nc.Header.Lengths(v)
		if _, err := nc.Writer(v, make([]int, len(end)), end).Write(d); err != nil {
			t.Fatal(err)
		}
	}
}

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "spacetimeutil")
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func execute(t *testing.T, args ...string) {
	Root.SetArgs(args)
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
}

// makeCube assembles two 3-band sources as variables "a" and "b" with
// monthly time steps starting in January 2000.
func makeCube(t *testing.T, dir, output string) {
	a := filepath.Join(dir, "a.nc")
	b := filepath.Join(dir, "b.nc")
	writeSource(t, a, 3, 0)
	writeSource(t, b, 3, 100)
	Cfg.Set("Sources", []string{a, b})
	Cfg.Set("OrganizeFiles", "var")
	Cfg.Set("OrganizeBands", "time")
	Cfg.Set("VarNames", []string{"a", "b"})
	Cfg.Set("Time.Start", "2000-01-01")
	Cfg.Set("Time.Scale", "month")
	Cfg.Set("Time.Step", 1)
	Cfg.Set("OutputFile", output)
	execute(t, "make")
}

func TestMake(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "cube.nc")
	makeCube(t, dir, out)

	c, err := ncf.Load(out)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(c.VarNames, []string{"a", "b"}) {
		t.Errorf("names: %v", c.VarNames)
	}
	if c.Policy != spacetime.VarTime {
		t.Errorf("policy: %v", c.Policy)
	}
	ts, err := c.Times()
	if err != nil {
		t.Fatal(err)
	}
	want := []time.Time{
		time.Date(2000, time.January, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2000, time.February, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2000, time.March, 31, 0, 0, 0, 0, time.UTC),
	}
	for i := range want {
		if !ts[i].Equal(want[i]) {
			t.Errorf("time %d: %v != %v", i, ts[i], want[i])
		}
	}
	if v := c.Data[1].Get(2, 1, 0); v != 115 {
		t.Errorf("value: %g", v)
	}
}

func TestMakeInvalid(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	a := filepath.Join(dir, "a.nc")
	b := filepath.Join(dir, "b.nc")
	writeSource(t, a, 2, 0)
	writeSource(t, b, 3, 0)
	out := filepath.Join(dir, "cube.nc")
	tr := NewTransfer(Log, 0)
	defer tr.Close()

	_, err := Make(context.Background(), tr, Job{
		Sources:       []string{a, b},
		OrganizeFiles: "var",
		OrganizeBands: "time",
		OutputFile:    out,
	})
	if err == nil {
		t.Error("expected a band count error")
	}
	_, err = Make(context.Background(), tr, Job{
		Sources:       []string{a},
		OrganizeFiles: "space",
		OrganizeBands: "time",
		OutputFile:    out,
	})
	if err == nil {
		t.Error("expected an invalid policy error")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("output written after a failed assembly")
	}
}

func TestCubeCommands(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	cube := filepath.Join(dir, "cube.nc")
	makeCube(t, dir, cube)
	Cfg.Set("InputCube", cube)

	t.Run("remake", func(t *testing.T) {
		out := filepath.Join(dir, "remade.nc")
		Cfg.Set("OutputFile", out)
		execute(t, "remake")
		c1, err := ncf.Load(cube)
		if err != nil {
			t.Fatal(err)
		}
		c2, err := ncf.Load(out)
		if err != nil {
			t.Fatal(err)
		}
		for i := range c1.Data {
			if !reflect.DeepEqual(c1.Data[i].Elements, c2.Data[i].Elements) {
				t.Errorf("variable %d changed", i)
			}
		}
	})

	t.Run("resample", func(t *testing.T) {
		out := filepath.Join(dir, "yearly.nc")
		Cfg.Set("OutputFile", out)
		Cfg.Set("Resample.Scale", "year")
		Cfg.Set("Resample.Method", "max")
		execute(t, "resample")
		c, err := ncf.Load(out)
		if err != nil {
			t.Fatal(err)
		}
		if nt, _, _ := c.Dims(); nt != 1 {
			t.Fatalf("time steps: %d", nt)
		}
		if v := c.Data[0].Get(0, 0, 0); v != 12 {
			t.Errorf("max: %g", v)
		}
	})

	t.Run("select", func(t *testing.T) {
		out := filepath.Join(dir, "selected.nc")
		Cfg.Set("OutputFile", out)
		Cfg.Set("Select.From", "2000-02-01")
		Cfg.Set("Select.To", "")
		Cfg.Set("Select.Scale", "")
		execute(t, "select")
		c, err := ncf.Load(out)
		if err != nil {
			t.Fatal(err)
		}
		if nt, _, _ := c.Dims(); nt != 2 {
			t.Fatalf("time steps: %d", nt)
		}
		if v := c.Data[0].Get(0, 0, 0); v != 6 {
			t.Errorf("first value: %g", v)
		}
	})

	t.Run("info", func(t *testing.T) {
		b := new(bytes.Buffer)
		Root.SetOutput(b)
		defer Root.SetOutput(nil)
		execute(t, "info")
		for _, want := range []string{
			"policy:     files=var, bands=time",
			"dims:       time=3 lat=2 lon=3",
			"epsg:       EPSG:4326",
			"variable:   b min=100 max=117 valid=18 nodata=-9999",
			"time:       2000-01-31 00:00:00 to 2000-03-31 00:00:00",
		} {
			if !strings.Contains(b.String(), want) {
				t.Errorf("output is missing %q:\n%s", want, b.String())
			}
		}
	})

	t.Run("export csv", func(t *testing.T) {
		out := filepath.Join(dir, "records.csv")
		Cfg.Set("Export.OutputFile", out)
		Cfg.Set("Export.Format", "")
		execute(t, "export")
		b, err := ioutil.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(string(b)), "\n")
		if len(lines) != 1+2*3*2*3 {
			t.Fatalf("lines: %d", len(lines))
		}
		if lines[0] != "lat,lon,variable,time,value" {
			t.Errorf("header: %s", lines[0])
		}
		if want := "40,-100,a,2000-02-29T00:00:00Z,6"; lines[2] != want {
			t.Errorf("row: %s != %s", lines[2], want)
		}
	})

	t.Run("export xlsx", func(t *testing.T) {
		out := filepath.Join(dir, "records.xlsx")
		Cfg.Set("Export.OutputFile", out)
		execute(t, "export")
		f, err := xlsx.OpenFile(out)
		if err != nil {
			t.Fatal(err)
		}
		rows := f.Sheets[0].Rows
		if len(rows) != 1+2*3*2*3 {
			t.Fatalf("rows: %d", len(rows))
		}
		var header []string
		for _, c := range rows[0].Cells {
			header = append(header, c.String())
		}
		if want := []string{"lat", "lon", "variable", "time", "value"}; !reflect.DeepEqual(header, want) {
			t.Errorf("header: %v != %v", header, want)
		}
	})
}

func TestBatch(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	a := filepath.Join(dir, "a.nc")
	b := filepath.Join(dir, "b.nc")
	writeSource(t, a, 2, 0)
	writeSource(t, b, 2, 50)
	jobs := `
[[Job]]
Sources = ["` + a + `", "` + b + `"]
OrganizeFiles = "time"
OrganizeBands = "time"
OutputFile = "` + filepath.Join(dir, "series.nc") + `"
[Job.Time]
Start = "2001-06-01"
Scale = "day"
Step = 2

[[Job]]
Sources = ["` + a + `", "` + b + `"]
OrganizeFiles = "time"
OrganizeBands = "var"
VarNames = ["x", "y"]
NoData = -1.0
OutputFile = "` + filepath.Join(dir, "vars.nc") + `"
`
	path := filepath.Join(dir, "jobs.toml")
	if err := ioutil.WriteFile(path, []byte(jobs), 0644); err != nil {
		t.Fatal(err)
	}
	execute(t, "batch", path)

	series, err := ncf.Load(filepath.Join(dir, "series.nc"))
	if err != nil {
		t.Fatal(err)
	}
	ts, err := series.Times()
	if err != nil {
		t.Fatal(err)
	}
	if len(ts) != 4 || !ts[3].Equal(time.Date(2001, time.June, 7, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("times: %v", ts)
	}
	if series.VarNames != nil {
		t.Errorf("names: %v", series.VarNames)
	}

	vars, err := ncf.Load(filepath.Join(dir, "vars.nc"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(vars.VarNames, []string{"x", "y"}) {
		t.Errorf("names: %v", vars.VarNames)
	}
	if !reflect.DeepEqual(vars.Missing, []float64{-1, -1}) {
		t.Errorf("nodata: %v", vars.Missing)
	}
	if v := vars.Data[1].Get(1, 0, 0); v != 56 {
		t.Errorf("value: %g", v)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	os.Mkdir("testbucket", os.ModePerm)
	defer os.RemoveAll("testbucket")

	makeCube(t, dir, "file://testbucket/cube.nc")
	if _, err := os.Stat(filepath.Join("testbucket", "cube.nc")); err != nil {
		t.Fatal(err)
	}
	local := filepath.Join(dir, "local.nc")
	tr := NewTransfer(Log, 0)
	defer tr.Close()
	c, err := Remake(context.Background(), tr, "file://testbucket/cube.nc", local)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(c.VarNames, []string{"a", "b"}) {
		t.Errorf("names: %v", c.VarNames)
	}
}

func TestDownloadHTTP(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	writeSource(t, filepath.Join(dir, "src.nc"), 1, 0)
	for _, f := range []string{"img.tif", "img.tfw", "img.prj"} {
		if err := ioutil.WriteFile(filepath.Join(dir, f), []byte(f), 0644); err != nil {
			t.Fatal(err)
		}
	}
	srv := httptest.NewServer(http.FileServer(http.Dir(dir)))
	defer srv.Close()

	tr := NewTransfer(Log, 0)
	defer tr.Close()
	ctx := context.Background()

	if p, err := tr.Download(ctx, "/dev/null"); err != nil || p != "/dev/null" {
		t.Errorf("local path: %s, %v", p, err)
	}
	p, err := tr.Download(ctx, srv.URL+"/img.tif")
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"img.tif", "img.tfw", "img.prj"} {
		if _, err := os.Stat(filepath.Join(filepath.Dir(p), f)); err != nil {
			t.Errorf("missing downloaded file %s", f)
		}
	}
	src, err := tr.OpenSources(ctx, []string{srv.URL + "/src.nc"})
	if err != nil {
		t.Fatal(err)
	}
	if src[0].BandCount() != 1 {
		t.Errorf("band count: %d", src[0].BandCount())
	}
	if _, err := tr.Download(ctx, srv.URL+"/missing.nc"); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestExportFormat(t *testing.T) {
	tests := []struct {
		format, output, want string
		err                  bool
	}{
		{format: "", output: "x.csv", want: CSV},
		{format: "", output: "x.XLSX", want: XLSX},
		{format: "xlsx", output: "x.csv", want: XLSX},
		{format: "", output: "x.txt", err: true},
		{format: "parquet", output: "x.csv", err: true},
	}
	for _, test := range tests {
		f, err := exportFormat(test.format, test.output)
		if (err != nil) != test.err {
			t.Errorf("%+v: error %v", test, err)
		}
		if f != test.want {
			t.Errorf("%+v: %s", test, f)
		}
	}
}

func TestVersion(t *testing.T) {
	b := new(bytes.Buffer)
	Root.SetOutput(b)
	defer Root.SetOutput(nil)
	execute(t, "version")
	if want := "spacetime v" + spacetime.Version + "\n"; b.String() != want {
		t.Errorf("%q != %q", b.String(), want)
	}
}
