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

// Package spacetime assembles collections of multi-band raster files into
// (time, lat, lon) data cubes. A layout Policy decides whether files and
// the bands within them become time steps or variables.
package spacetime

import (
	"fmt"
	"math"
	"strconv"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/spacetime/raster"
	"github.com/spatialmodel/spacetime/timeaxis"
	"gonum.org/v1/gonum/floats"
)

// DefaultNoData is the no-data value used when the sources do not
// declare one.
const DefaultNoData = -9999.

// geoTransformTolerance is the absolute tolerance for comparing
// geotransform coefficients across sources.
const geoTransformTolerance = 1e-9

// Config holds the defaults used during assembly.
type Config struct {
	// NoData is the no-data value recorded for outputs whose sources
	// do not declare one.
	NoData float64

	// VarName returns the default name of the i-th variable when the
	// caller does not supply names.
	VarName func(i int) string
}

// DefaultConfig returns a Config with NoData set to DefaultNoData and
// variables named by their zero-based position.
func DefaultConfig() Config {
	return Config{NoData: DefaultNoData, VarName: strconv.Itoa}
}

// Output is one assembled variable.
type Output struct {
	// Meta is a handle for querying the geospatial metadata of the
	// sources that make up this output.
	Meta raster.Handle

	// Data has dimensions [time, lat, lon].
	Data *sparse.DenseArray

	NoData float64
}

// Assembly is the result of arranging raster sources into a cube.
type Assembly struct {
	Policy  Policy
	Outputs []Output

	// VarNames holds one name per output, or is nil when the policy
	// produces a single array.
	VarNames []string

	Time timeaxis.Axis

	// Attributes are extra key-value pairs to be stored with the cube.
	Attributes map[string]string
}

// Shape returns the [time, lat, lon] dimensions shared by all outputs.
func (a *Assembly) Shape() []int { return a.Outputs[0].Data.Shape }

// Assembler arranges raster sources into cubes.
type Assembler struct {
	Config Config

	// Log receives progress messages. If nil, the standard logrus
	// logger is used.
	Log logrus.FieldLogger
}

// NewAssembler returns an Assembler with the given configuration.
func NewAssembler(c Config) *Assembler {
	return &Assembler{Config: c, Log: logrus.StandardLogger()}
}

func (a *Assembler) log() logrus.FieldLogger {
	if a.Log == nil {
		return logrus.StandardLogger()
	}
	return a.Log
}

func (a *Assembler) varName(i int) string {
	if a.Config.VarName == nil {
		return strconv.Itoa(i)
	}
	return a.Config.VarName(i)
}

// Assemble arranges the bands of sources into a cube according to p.
// varNames optionally names the variables of multi-variable layouts and
// t optionally supplies the time axis; when t is nil an index axis is
// used. All validation happens before any data is read.
func (a *Assembler) Assemble(sources []raster.Source, p Policy, varNames []string, t *timeaxis.Axis) (*Assembly, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("spacetime: no raster sources to assemble")
	}
	if err := a.checkExtents(sources); err != nil {
		return nil, err
	}

	counts := bandCounts(sources)
	a.log().WithFields(logrus.Fields{
		"policy":  p.String(),
		"sources": len(sources),
		"bands":   counts,
	}).Info("assembling cube")

	var (
		outs []Output
		err  error
	)
	switch p {
	case TimeTime:
		outs, err = a.timeTime(sources, counts)
	case TimeVar:
		outs, err = a.timeVar(sources, counts)
	case VarVar:
		outs, err = a.varVar(sources, counts)
	case VarTime:
		outs, err = a.varTime(sources, counts)
	}
	if err != nil {
		return nil, err
	}

	asm := &Assembly{Policy: p, Outputs: outs}
	if p.MultiVar() {
		if asm.VarNames, err = a.names(varNames, len(outs)); err != nil {
			return nil, err
		}
	} else if len(varNames) > 0 {
		a.log().WithField("names", varNames).Warn("ignoring variable names for a single-array layout")
	}

	nt := outs[0].Data.Shape[0]
	if t == nil {
		asm.Time = timeaxis.Index(nt)
	} else if t.Len() != nt {
		return nil, fmt.Errorf("%w: time axis has %d steps but the %v layout produces %d", ErrTimeAxisLength, t.Len(), p, nt)
	} else {
		asm.Time = *t
	}

	a.log().WithFields(logrus.Fields{
		"outputs": len(outs),
		"shape":   outs[0].Data.Shape,
	}).Info("assembled cube")
	return asm, nil
}

// names returns the caller's variable names or the configured defaults.
func (a *Assembler) names(varNames []string, n int) ([]string, error) {
	if len(varNames) == 0 {
		o := make([]string, n)
		for i := range o {
			o[i] = a.varName(i)
		}
		return o, nil
	}
	if len(varNames) != n {
		return nil, fmt.Errorf("%w: %d variable names given for %d variables", ErrShapeMismatch, len(varNames), n)
	}
	seen := make(map[string]bool, n)
	for _, v := range varNames {
		if seen[v] {
			return nil, fmt.Errorf("spacetime: duplicate variable name %q", v)
		}
		seen[v] = true
	}
	return append([]string(nil), varNames...), nil
}

// checkExtents makes sure all sources share the raster size and
// geotransform of the first source. Differing projections only produce
// a warning.
func (a *Assembler) checkExtents(sources []raster.Source) error {
	if _, err := raster.Describe(sources[0]); err != nil {
		return fmt.Errorf("spacetime: source 0 (%s): %v", sources[0].Name(), err)
	}
	w0, h0 := sources[0].Size()
	gt0 := sources[0].GeoTransform()
	p0 := sources[0].Projection()
	for i, s := range sources {
		if s.BandCount() < 1 {
			return &BandCountError{Source: i, Want: 1, Got: s.BandCount()}
		}
		if i == 0 {
			continue
		}
		if w, h := s.Size(); w != w0 || h != h0 {
			return fmt.Errorf("%w: source %d (%s) is %dx%d pixels but source 0 is %dx%d",
				ErrExtentMismatch, i, s.Name(), w, h, w0, h0)
		}
		gt := s.GeoTransform()
		if !floats.EqualApprox(gt[:], gt0[:], geoTransformTolerance) {
			return fmt.Errorf("%w: source %d (%s) has geotransform %v but source 0 has %v",
				ErrExtentMismatch, i, s.Name(), gt, gt0)
		}
		if s.Projection() != p0 {
			a.log().WithFields(logrus.Fields{
				"source": i,
				"name":   s.Name(),
			}).Warn("source projection differs from source 0")
		}
	}
	return nil
}

// equalCounts returns a BandCountError for the first source whose band
// count differs from the first one.
func equalCounts(counts []int) error {
	for i, c := range counts {
		if c != counts[0] {
			return &BandCountError{Source: i, Want: counts[0], Got: c}
		}
	}
	return nil
}

// output pairs data with its metadata. The leading axis of data follows
// the band order of meta; values matching a member's own no-data value
// are rewritten to the no-data value of the output.
func (a *Assembler) output(meta raster.Handle, data *sparse.DenseArray) Output {
	o := Output{Meta: meta, Data: data, NoData: a.Config.NoData}
	if v, ok := meta.NoData(); ok {
		o.NoData = v
	}
	vrt, ok := meta.(*raster.VRT)
	if !ok || len(data.Shape) < 3 {
		return o
	}
	n := data.Shape[len(data.Shape)-1] * data.Shape[len(data.Shape)-2]
	off := 0
	for _, m := range vrt.Leaves() {
		end := off + m.BandCount()*n
		if end > len(data.Elements) {
			break
		}
		if nd, ok := m.NoData(); ok && !sameNoData(nd, o.NoData) {
			for i := off; i < end; i++ {
				if sameNoData(data.Elements[i], nd) {
					data.Elements[i] = o.NoData
				}
			}
		}
		off = end
	}
	return o
}

func sameNoData(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

// timeTime puts every band of every source on one time axis.
func (a *Assembler) timeTime(sources []raster.Source, counts []int) ([]Output, error) {
	groups, err := SplitLayers(flatLayers(sources), counts)
	if err != nil {
		return nil, err
	}
	data, err := MergeData(groups)
	if err != nil {
		return nil, err
	}
	meta, err := MergeMeta(groups)
	if err != nil {
		return nil, err
	}
	all, err := concat(data)
	if err != nil {
		return nil, err
	}
	vrt, err := raster.BuildVRT(meta...)
	if err != nil {
		return nil, err
	}
	return []Output{a.output(vrt, all)}, nil
}

// timeVar makes one time step per source and one variable per band.
func (a *Assembler) timeVar(sources []raster.Source, counts []int) ([]Output, error) {
	if err := equalCounts(counts); err != nil {
		return nil, err
	}
	groups, err := SplitLayers(flatLayers(sources), counts)
	if err != nil {
		return nil, err
	}
	data, err := MergeData(groups)
	if err != nil {
		return nil, err
	}
	byVar := transposeGroups(groups)
	meta, err := MergeMeta(byVar)
	if err != nil {
		return nil, err
	}
	// [source, band, lat, lon] to [band, source, lat, lon]
	s, err := stack(data)
	if err != nil {
		return nil, err
	}
	vars, err := SplitArray(swapLeading(s), ones(counts[0]), true)
	if err != nil {
		return nil, err
	}
	o := make([]Output, len(vars))
	for i, v := range vars {
		o[i] = a.output(meta[i], v)
	}
	return o, nil
}

// varVar makes one variable per single-band source, with one time step.
func (a *Assembler) varVar(sources []raster.Source, counts []int) ([]Output, error) {
	for i, c := range counts {
		if c != 1 {
			return nil, &BandCountError{Source: i, Want: 1, Got: c}
		}
	}
	layers := flatLayers(sources)
	groups, err := SplitLayers(layers, counts)
	if err != nil {
		return nil, err
	}
	meta, err := MergeMeta(groups)
	if err != nil {
		return nil, err
	}
	all, err := MergeData([][]*raster.Layer{layers})
	if err != nil {
		return nil, err
	}
	vars, err := SplitArray(all[0], counts, true)
	if err != nil {
		return nil, err
	}
	o := make([]Output, len(vars))
	for i, v := range vars {
		o[i] = a.output(meta[i], withTimeAxis(v))
	}
	return o, nil
}

// varTime makes one variable per source, with its bands as time steps.
func (a *Assembler) varTime(sources []raster.Source, counts []int) ([]Output, error) {
	if err := equalCounts(counts); err != nil {
		return nil, err
	}
	groups, err := SplitLayers(flatLayers(sources), counts)
	if err != nil {
		return nil, err
	}
	data, err := MergeData(groups)
	if err != nil {
		return nil, err
	}
	meta, err := MergeMeta(groups)
	if err != nil {
		return nil, err
	}
	o := make([]Output, len(data))
	for i, d := range data {
		o[i] = a.output(meta[i], d)
	}
	return o, nil
}

// withTimeAxis inserts a leading axis of length 1.
func withTimeAxis(a *sparse.DenseArray) *sparse.DenseArray {
	o := sparse.ZerosDense(append([]int{1}, a.Shape...)...)
	copy(o.Elements, a.Elements)
	return o
}

// concat joins arrays along their leading axis.
func concat(arrays []*sparse.DenseArray) (*sparse.DenseArray, error) {
	inner := arrays[0].Shape[1:]
	n := 0
	for i, a := range arrays {
		if !sameShape(a.Shape[1:], inner) {
			return nil, fmt.Errorf("%w: array %d has shape %v but array 0 has shape %v",
				ErrShapeMismatch, i, a.Shape, arrays[0].Shape)
		}
		n += a.Shape[0]
	}
	o := sparse.ZerosDense(append([]int{n}, inner...)...)
	off := 0
	for _, a := range arrays {
		copy(o.Elements[off:], a.Elements)
		off += len(a.Elements)
	}
	return o, nil
}

func ones(n int) []int {
	o := make([]int, n)
	for i := range o {
		o[i] = 1
	}
	return o
}
