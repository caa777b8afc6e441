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
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/spacetime"
	"github.com/spatialmodel/spacetime/ncf"
	"github.com/spatialmodel/spacetime/raster"
	"github.com/spatialmodel/spacetime/timeaxis"
	"github.com/spf13/cast"
	"gonum.org/v1/gonum/floats"
)

// TimeConfig describes a calendar time axis.
type TimeConfig struct {
	// Start is the first date of the axis. If it is empty, the cube
	// gets a plain index time axis.
	Start string

	// Scale is one of "day", "month" or "year".
	Scale string

	// Step is the number of Scale units between time steps.
	Step int
}

// Axis returns the time axis of length n, or nil if no start date is set.
func (tc TimeConfig) Axis(n int) (*timeaxis.Axis, error) {
	if tc.Start == "" {
		return nil, nil
	}
	start, err := cast.ToTimeE(tc.Start)
	if err != nil {
		return nil, fmt.Errorf("spacetimeutil: invalid start date %q: %v", tc.Start, err)
	}
	scale, err := timeaxis.ParseScale(tc.Scale)
	if err != nil {
		return nil, err
	}
	step := tc.Step
	if step == 0 {
		step = 1
	}
	a, err := timeaxis.Build(start, n, scale, step)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Job describes one cube to be assembled from raster files.
type Job struct {
	// Sources are the raster files, as local paths or URLs.
	Sources []string

	// OrganizeFiles and OrganizeBands set the layout policy; each is
	// "time" or "var".
	OrganizeFiles string
	OrganizeBands string

	VarNames []string

	// NoData is the no-data value for sources that do not declare one.
	// If nil, spacetime.DefaultNoData is used.
	NoData *float64

	Time TimeConfig

	OutputFile string
}

// timeSteps returns the length of the time axis that assembling sources
// with policy p produces.
func timeSteps(sources []raster.Source, p spacetime.Policy) int {
	if len(sources) == 0 {
		return 0
	}
	switch p {
	case spacetime.TimeTime:
		n := 0
		for _, s := range sources {
			n += s.BandCount()
		}
		return n
	case spacetime.TimeVar:
		return len(sources)
	case spacetime.VarTime:
		return sources[0].BandCount()
	default:
		return 1
	}
}

// OpenSources downloads any remote paths and opens them as rasters.
func (t *Transfer) OpenSources(ctx context.Context, paths []string) ([]raster.Source, error) {
	o := make([]raster.Source, len(paths))
	for i, p := range paths {
		local, err := t.Download(ctx, p)
		if err != nil {
			return nil, err
		}
		if o[i], err = raster.Open(local); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// load loads the cube at path, downloading it first if necessary.
func (t *Transfer) load(ctx context.Context, path string) (*spacetime.Cube, error) {
	if path == "" {
		return nil, fmt.Errorf("spacetimeutil: no input cube specified")
	}
	local, err := t.Download(ctx, path)
	if err != nil {
		return nil, err
	}
	return ncf.Load(local)
}

// write persists in to output through the assembler.
func (t *Transfer) write(ctx context.Context, a *spacetime.Assembler, in spacetime.Input, output string) (*spacetime.Cube, error) {
	if output == "" {
		return nil, fmt.Errorf("spacetimeutil: no output file specified")
	}
	local, err := t.Output(output)
	if err != nil {
		return nil, err
	}
	c, err := a.Make(in, &ncf.Writer{Path: local, Log: t.log()})
	if err != nil {
		t.uploads = nil
		return nil, err
	}
	if err := t.Upload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (t *Transfer) assembler(nodata *float64) *spacetime.Assembler {
	cfg := spacetime.DefaultConfig()
	if nodata != nil {
		cfg.NoData = *nodata
	}
	a := spacetime.NewAssembler(cfg)
	a.Log = t.log()
	return a
}

// Make assembles the sources of job into a cube and writes it to
// job.OutputFile.
func Make(ctx context.Context, t *Transfer, job Job) (*spacetime.Cube, error) {
	p, err := spacetime.ParsePolicy(job.OrganizeFiles, job.OrganizeBands)
	if err != nil {
		return nil, err
	}
	if len(job.Sources) == 0 {
		return nil, fmt.Errorf("spacetimeutil: no source files specified")
	}
	sources, err := t.OpenSources(ctx, job.Sources)
	if err != nil {
		return nil, err
	}
	axis, err := job.Time.Axis(timeSteps(sources, p))
	if err != nil {
		return nil, err
	}
	in := spacetime.RawSources{
		Sources:  sources,
		Policy:   p,
		VarNames: job.VarNames,
		Time:     axis,
	}
	return t.write(ctx, t.assembler(job.NoData), in, job.OutputFile)
}

// Remake loads the cube at input and writes it unchanged to output.
func Remake(ctx context.Context, t *Transfer, input, output string) (*spacetime.Cube, error) {
	c, err := t.load(ctx, input)
	if err != nil {
		return nil, err
	}
	return t.write(ctx, t.assembler(nil), spacetime.ExistingCube{Cube: c}, output)
}

// Resample loads the cube at input, aggregates it to the given calendar
// scale with method and writes the result to output.
func Resample(ctx context.Context, t *Transfer, input, output, scale, method string) (*spacetime.Cube, error) {
	s, err := timeaxis.ParseScale(scale)
	if err != nil {
		return nil, err
	}
	c, err := t.load(ctx, input)
	if err != nil {
		return nil, err
	}
	r, err := c.ScaleTime(s, strings.ToLower(method))
	if err != nil {
		return nil, err
	}
	return t.write(ctx, t.assembler(nil), spacetime.ExistingCube{Cube: r}, output)
}

// Select loads the cube at input, keeps the time steps matching sel
// and writes the result to output.
func Select(ctx context.Context, t *Transfer, input, output string, sel spacetime.Selection) (*spacetime.Cube, error) {
	c, err := t.load(ctx, input)
	if err != nil {
		return nil, err
	}
	s, err := c.SelectTime(sel)
	if err != nil {
		return nil, err
	}
	return t.write(ctx, t.assembler(nil), spacetime.ExistingCube{Cube: s}, output)
}

// Batch runs the make jobs described in the TOML file at path.
// Jobs run in order and the first failure stops the batch.
func Batch(ctx context.Context, t *Transfer, path string) ([]*spacetime.Cube, error) {
	var b struct {
		Job []Job
	}
	if _, err := toml.DecodeFile(path, &b); err != nil {
		return nil, fmt.Errorf("spacetimeutil: reading batch file: %v", err)
	}
	if len(b.Job) == 0 {
		return nil, fmt.Errorf("spacetimeutil: batch file %s has no jobs", path)
	}
	var o []*spacetime.Cube
	for i, job := range b.Job {
		t.log().WithFields(logrus.Fields{
			"job":    i,
			"output": job.OutputFile,
		}).Info("running batch job")
		c, err := Make(ctx, t, job)
		if err != nil {
			return o, fmt.Errorf("spacetimeutil: batch job %d (%s): %v", i, job.OutputFile, err)
		}
		o = append(o, c)
	}
	return o, nil
}

// Info writes a description of the cube at input to w.
func Info(ctx context.Context, t *Transfer, input string, w io.Writer) error {
	c, err := t.load(ctx, input)
	if err != nil {
		return err
	}
	nt, ny, nx := c.Dims()
	fmt.Fprintf(w, "cube:       %s\n", input)
	fmt.Fprintf(w, "policy:     %v\n", c.Policy)
	fmt.Fprintf(w, "dims:       time=%d lat=%d lon=%d\n", nt, ny, nx)
	if ts, err := c.Times(); err == nil && len(ts) > 0 {
		fmt.Fprintf(w, "time:       %s to %s\n", ts[0].Format("2006-01-02 15:04:05"), ts[len(ts)-1].Format("2006-01-02 15:04:05"))
	} else {
		fmt.Fprintf(w, "time:       index\n")
	}
	lat, lon := c.Corner()
	fmt.Fprintf(w, "corner:     lat=%g lon=%g\n", lat, lon)
	fmt.Fprintf(w, "pixel size: %g\n", c.PixelSize())
	fmt.Fprintf(w, "epsg:       %s\n", c.EPSG())
	fmt.Fprintf(w, "units:      %s\n", c.Units())
	for i, name := range c.Names() {
		min, max, n := dataRange(c.Data[i].Elements, c.MissingOf(i))
		fmt.Fprintf(w, "variable:   %s min=%g max=%g valid=%d nodata=%g\n", name, min, max, n, c.MissingOf(i))
	}
	keys := make([]string, 0, len(c.Attributes))
	for k := range c.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "attribute:  %s=%s\n", k, c.Attributes[k])
	}
	return nil
}

// dataRange returns the minimum and maximum of the valid values in d and
// the number of valid values.
func dataRange(d []float64, nodata float64) (min, max float64, n int) {
	valid := make([]float64, 0, len(d))
	for _, v := range d {
		if v != nodata && !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return math.NaN(), math.NaN(), 0
	}
	return floats.Min(valid), floats.Max(valid), len(valid)
}
