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

package spacetime

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/spacetime/internal/hash"
	"github.com/spatialmodel/spacetime/raster"
	"github.com/spatialmodel/spacetime/timeaxis"
)

// HashAttribute is the name of the attribute holding the content hash of
// an assembly.
const HashAttribute = "assembly_hash"

// Input is the input to Make: either RawSources or ExistingCube.
type Input interface {
	isInput()
}

// RawSources are raster sources to be assembled into a new cube.
type RawSources struct {
	Sources []raster.Source
	Policy  Policy

	// VarNames optionally names the variables of multi-variable layouts.
	VarNames []string

	// Time optionally supplies the time axis.
	Time *timeaxis.Axis
}

// ExistingCube is a cube to be written again without changing its data.
type ExistingCube struct {
	Cube *Cube
}

func (RawSources) isInput()   {}
func (ExistingCube) isInput() {}

// A Writer persists assemblies.
type Writer interface {
	// WriteCube persists a and returns the persisted cube.
	WriteCube(a *Assembly) (*Cube, error)
}

// Make assembles in and persists it with w. Nothing is written if
// assembly fails.
func (a *Assembler) Make(in Input, w Writer) (*Cube, error) {
	var (
		asm *Assembly
		err error
	)
	switch in := in.(type) {
	case RawSources:
		asm, err = a.Assemble(in.Sources, in.Policy, in.VarNames, in.Time)
	case ExistingCube:
		if in.Cube == nil {
			return nil, fmt.Errorf("spacetime: nil cube")
		}
		a.log().WithFields(logrus.Fields{
			"cube":      in.Cube.Path,
			"variables": in.Cube.Names(),
		}).Info("re-emitting existing cube")
		asm, err = in.Cube.Assembly()
	default:
		return nil, fmt.Errorf("spacetime: invalid input type %T", in)
	}
	if err != nil {
		return nil, err
	}
	asm.Attributes = withHash(asm)
	return w.WriteCube(asm)
}

// withHash returns a copy of the assembly attributes with the
// content hash of the assembly added.
func withHash(a *Assembly) map[string]string {
	attrs := make(map[string]string, len(a.Attributes)+1)
	for k, v := range a.Attributes {
		if k != HashAttribute {
			attrs[k] = v
		}
	}
	type content struct {
		Policy   string
		VarNames []string
		Time     timeaxis.Axis
		Shape    []int
		Data     [][]float64
		NoData   []float64
	}
	c := content{
		Policy:   a.Policy.String(),
		VarNames: a.VarNames,
		Time:     a.Time,
		Shape:    a.Shape(),
	}
	for _, o := range a.Outputs {
		c.Data = append(c.Data, o.Data.Elements)
		c.NoData = append(c.NoData, o.NoData)
	}
	attrs[HashAttribute] = hash.Hash(c)
	return attrs
}
