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
	"errors"
	"fmt"
)

// Errors returned by cube assembly. All of them abort the assembly before
// anything is written.
var (
	// ErrShapeMismatch is returned when a sequence cannot be split into
	// groups of the requested sizes.
	ErrShapeMismatch = errors.New("spacetime: shape mismatch")

	// ErrInconsistentBandCount is returned when sources disagree on band
	// count under a layout that requires them to agree.
	ErrInconsistentBandCount = errors.New("spacetime: inconsistent band count")

	// ErrUnsupportedPolicy is returned for a layout that is not one of the
	// four supported combinations.
	ErrUnsupportedPolicy = errors.New("spacetime: unsupported layout policy")

	// ErrMissingTimeAxis is returned when an existing cube does not have
	// a timestamp time axis.
	ErrMissingTimeAxis = errors.New("spacetime: missing time axis")

	// ErrExtentMismatch is returned when sources do not share the same
	// raster size and geotransform.
	ErrExtentMismatch = errors.New("spacetime: extent mismatch")

	// ErrTimeAxisLength is returned when a time axis does not match the
	// number of time steps in the assembled data.
	ErrTimeAxisLength = errors.New("spacetime: time axis length mismatch")
)

// BandCountError reports a source whose band count differs from what the
// layout requires.
type BandCountError struct {
	// Source is the index of the offending source.
	Source int

	// Want is the required band count and Got is the actual one.
	Want, Got int
}

func (e *BandCountError) Error() string {
	return fmt.Sprintf("%v: source %d has %d band(s) but %d are required", ErrInconsistentBandCount, e.Source, e.Got, e.Want)
}

// Unwrap allows errors.Is(err, ErrInconsistentBandCount).
func (e *BandCountError) Unwrap() error { return ErrInconsistentBandCount }
