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

// Package ncf persists data cubes as NetCDF classic files and loads them
// back.
package ncf

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/ctessum/cdf"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/spacetime"
	"github.com/spatialmodel/spacetime/raster"
)

// Names of the dimensions and coordinate variables.
const (
	TimeDim    = "time"
	LatDim     = "lat"
	LonDim     = "lon"
	SpatialRef = "spatial_ref"
)

// Names of global attributes.
const (
	GeoTransformAttr  = "geotransform"
	OrganizeFilesAttr = "organize_files"
	OrganizeBandsAttr = "organize_bands"
)

var reserved = map[string]bool{TimeDim: true, LatDim: true, LonDim: true, SpatialRef: true}

// Writer writes assemblies to a NetCDF file.
type Writer struct {
	Path string

	// Log receives progress messages. If nil, the standard logrus
	// logger is used.
	Log logrus.FieldLogger
}

// NewWriter returns a Writer for the file at path.
func NewWriter(path string) *Writer {
	return &Writer{Path: path, Log: logrus.StandardLogger()}
}

func (w *Writer) log() logrus.FieldLogger {
	if w.Log == nil {
		return logrus.StandardLogger()
	}
	return w.Log
}

// WriteCube implements spacetime.Writer. The assembly is fully validated
// before the file is created, and the file only appears at w.Path once
// all data has been written.
func (w *Writer) WriteCube(a *spacetime.Assembly) (*spacetime.Cube, error) {
	names, err := validate(a)
	if err != nil {
		return nil, err
	}
	m, err := raster.Describe(a.Outputs[0].Meta)
	if err != nil {
		return nil, fmt.Errorf("ncf: %v", err)
	}
	nt, ny, nx := a.Shape()[0], a.Shape()[1], a.Shape()[2]

	h := cdf.NewHeader([]string{TimeDim, LatDim, LonDim}, []int{nt, ny, nx})
	h.AddVariable(TimeDim, []string{TimeDim}, []float64{0})
	h.AddAttribute(TimeDim, "long_name", "time")
	if a.Time.Units != "" {
		h.AddAttribute(TimeDim, "units", a.Time.Units)
	}
	latUnits, lonUnits := coordUnits(m.Units)
	h.AddVariable(LatDim, []string{LatDim}, []float32{0})
	h.AddVariable(LonDim, []string{LonDim}, []float32{0})
	if latUnits != "" {
		h.AddAttribute(LatDim, "units", latUnits)
		h.AddAttribute(LonDim, "units", lonUnits)
	}
	h.AddVariable(SpatialRef, []string{}, []int32{0})
	if m.Projection != "" {
		h.AddAttribute(SpatialRef, SpatialRef, m.Projection)
	}
	for i, v := range names {
		h.AddVariable(v, []string{TimeDim, LatDim, LonDim}, []float32{0})
		if m.EPSG != "" {
			h.AddAttribute(v, "code", m.EPSG)
		}
		nd := []float32{float32(a.Outputs[i].NoData)}
		h.AddAttribute(v, "missing", nd)
		h.AddAttribute(v, "_FillValue", nd)
		h.AddAttribute(v, "grid_mapping", SpatialRef)
	}
	h.AddAttribute("", GeoTransformAttr, m.GeoTransform[:])
	h.AddAttribute("", OrganizeFilesAttr, a.Policy.Files.String())
	h.AddAttribute("", OrganizeBandsAttr, a.Policy.Bands.String())
	keys := make([]string, 0, len(a.Attributes))
	for k := range a.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == GeoTransformAttr || k == OrganizeFilesAttr || k == OrganizeBandsAttr || a.Attributes[k] == "" {
			continue
		}
		h.AddAttribute("", k, a.Attributes[k])
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return nil, fmt.Errorf("ncf: invalid header for %s: %v", w.Path, errs[0])
	}

	dir := filepath.Dir(w.Path)
	ff, err := ioutil.TempFile(dir, "."+filepath.Base(w.Path))
	if err != nil {
		return nil, fmt.Errorf("ncf: creating %s: %v", w.Path, err)
	}
	tmp := ff.Name()
	defer os.Remove(tmp)
	f, err := cdf.Create(ff, h)
	if err != nil {
		ff.Close()
		return nil, fmt.Errorf("ncf: creating %s: %v", w.Path, err)
	}

	if err := writeVar(f, TimeDim, a.Time.Values); err != nil {
		ff.Close()
		return nil, fmt.Errorf("ncf: writing %s: %v", TimeDim, err)
	}
	if err := writeVar(f, LatDim, to32(m.Lat())); err != nil {
		ff.Close()
		return nil, fmt.Errorf("ncf: writing %s: %v", LatDim, err)
	}
	if err := writeVar(f, LonDim, to32(m.Lon())); err != nil {
		ff.Close()
		return nil, fmt.Errorf("ncf: writing %s: %v", LonDim, err)
	}
	if err := writeVar(f, SpatialRef, []int32{0}); err != nil {
		ff.Close()
		return nil, fmt.Errorf("ncf: writing %s: %v", SpatialRef, err)
	}
	for i, v := range names {
		if err := writeVar(f, v, to32(a.Outputs[i].Data.Elements)); err != nil {
			ff.Close()
			return nil, fmt.Errorf("ncf: writing variable %s: %v", v, err)
		}
	}
	if err := ff.Close(); err != nil {
		return nil, fmt.Errorf("ncf: closing %s: %v", w.Path, err)
	}
	if err := os.Rename(tmp, w.Path); err != nil {
		return nil, fmt.Errorf("ncf: %v", err)
	}
	w.log().WithFields(logrus.Fields{
		"path":      w.Path,
		"variables": names,
		"shape":     a.Shape(),
	}).Info("wrote cube")
	return Load(w.Path)
}

// validate checks the assembly and returns the variable names to write.
func validate(a *spacetime.Assembly) ([]string, error) {
	if err := a.Policy.Validate(); err != nil {
		return nil, err
	}
	if len(a.Outputs) == 0 {
		return nil, fmt.Errorf("ncf: assembly has no outputs")
	}
	shape := a.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("%w: ncf: data has shape %v; it should be [time, lat, lon]", spacetime.ErrShapeMismatch, shape)
	}
	for i, d := range shape {
		if d < 1 {
			return nil, fmt.Errorf("%w: ncf: dimension %d of shape %v is empty", spacetime.ErrShapeMismatch, i, shape)
		}
	}
	for i, o := range a.Outputs {
		if len(o.Data.Shape) != 3 || o.Data.Shape[0] != shape[0] || o.Data.Shape[1] != shape[1] || o.Data.Shape[2] != shape[2] {
			return nil, fmt.Errorf("%w: ncf: output %d has shape %v but output 0 has shape %v",
				spacetime.ErrShapeMismatch, i, o.Data.Shape, shape)
		}
		if o.Meta == nil {
			return nil, fmt.Errorf("ncf: output %d has no metadata", i)
		}
	}
	if a.Time.Len() != shape[0] {
		return nil, fmt.Errorf("%w: ncf: %d time values for %d time steps", spacetime.ErrTimeAxisLength, a.Time.Len(), shape[0])
	}

	if !a.Policy.MultiVar() {
		if len(a.Outputs) != 1 {
			return nil, fmt.Errorf("ncf: single-array layout has %d outputs", len(a.Outputs))
		}
		return []string{spacetime.SingleVarName}, nil
	}
	if len(a.VarNames) != len(a.Outputs) {
		return nil, fmt.Errorf("%w: ncf: %d variable names for %d outputs", spacetime.ErrShapeMismatch, len(a.VarNames), len(a.Outputs))
	}
	seen := make(map[string]bool)
	for _, v := range a.VarNames {
		switch {
		case v == "":
			return nil, fmt.Errorf("ncf: empty variable name")
		case reserved[v]:
			return nil, fmt.Errorf("ncf: variable name %q is reserved", v)
		case seen[v]:
			return nil, fmt.Errorf("ncf: duplicate variable name %q", v)
		}
		seen[v] = true
	}
	return a.VarNames, nil
}

// coordUnits returns the units of the lat and lon coordinates.
func coordUnits(u string) (lat, lon string) {
	if u == "degree" || u == "degrees" {
		return "degrees_north", "degrees_east"
	}
	return u, u
}

// writeVar writes the whole of variable v.
func writeVar(f *cdf.File, v string, data interface{}) error {
	end := f.Header.Lengths(v)
	start := make([]int, len(end))
	_, err := f.Writer(v, start, end).Write(data)
	if err == io.EOF {
		// Writes that end exactly at the end of the variable report EOF.
		return nil
	}
	return err
}

func to32(v []float64) []float32 {
	o := make([]float32, len(v))
	for i, x := range v {
		o[i] = float32(x)
	}
	return o
}
