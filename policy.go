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
	"strings"
)

// FileLayout specifies which cube axis the input files are mapped onto.
type FileLayout int

// BandLayout specifies which cube axis the bands within each file are
// mapped onto.
type BandLayout int

// File layouts. The zero value is invalid so that a partially
// specified Policy is rejected.
const (
	_ FileLayout = iota
	FilesToTime
	FilesToVar
)

// Band layouts.
const (
	_ BandLayout = iota
	BandsToTime
	BandsToVar
)

func (l FileLayout) String() string {
	switch l {
	case FilesToTime:
		return "time"
	case FilesToVar:
		return "var"
	}
	return fmt.Sprintf("FileLayout(%d)", int(l))
}

func (l BandLayout) String() string {
	switch l {
	case BandsToTime:
		return "time"
	case BandsToVar:
		return "var"
	}
	return fmt.Sprintf("BandLayout(%d)", int(l))
}

// Policy is the pair of layout directives that selects how raster sources
// and their bands are arranged in a cube.
type Policy struct {
	Files FileLayout
	Bands BandLayout
}

// The four supported policies.
var (
	TimeTime = Policy{Files: FilesToTime, Bands: BandsToTime}
	TimeVar  = Policy{Files: FilesToTime, Bands: BandsToVar}
	VarVar   = Policy{Files: FilesToVar, Bands: BandsToVar}
	VarTime  = Policy{Files: FilesToVar, Bands: BandsToTime}
)

// ParsePolicy creates a Policy from its textual form, where files and
// bands are each either "time" or "var".
func ParsePolicy(files, bands string) (Policy, error) {
	var p Policy
	switch strings.ToLower(strings.TrimSpace(files)) {
	case "time":
		p.Files = FilesToTime
	case "var":
		p.Files = FilesToVar
	}
	switch strings.ToLower(strings.TrimSpace(bands)) {
	case "time":
		p.Bands = BandsToTime
	case "var":
		p.Bands = BandsToVar
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("%w: organize files %q, organize bands %q; valid values are \"time\" and \"var\"",
			ErrUnsupportedPolicy, files, bands)
	}
	return p, nil
}

// Validate returns ErrUnsupportedPolicy unless p is one of the four
// supported combinations.
func (p Policy) Validate() error {
	switch p {
	case TimeTime, TimeVar, VarVar, VarTime:
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnsupportedPolicy, p)
}

// MultiVar reports whether the policy produces one output per variable.
// Only files-to-time with bands-to-time collapses everything onto a single
// time axis.
func (p Policy) MultiVar() bool { return p != TimeTime }

func (p Policy) String() string {
	return fmt.Sprintf("files=%v, bands=%v", p.Files, p.Bands)
}
