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

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/spacetime/raster"
)

// MergeData reads the bands of each group and stacks them along a new
// leading axis, so a group of k [height, width] bands becomes one
// [k, height, width] array. Group count and order are preserved.
func MergeData(groups [][]*raster.Layer) ([]*sparse.DenseArray, error) {
	o := make([]*sparse.DenseArray, len(groups))
	for i, g := range groups {
		arrays := make([]*sparse.DenseArray, len(g))
		for j, l := range g {
			d, err := l.Data()
			if err != nil {
				return nil, fmt.Errorf("spacetime: reading %v: %v", l, err)
			}
			arrays[j] = d
		}
		s, err := stack(arrays)
		if err != nil {
			return nil, fmt.Errorf("spacetime: merging group %d: %v", i, err)
		}
		o[i] = s
	}
	return o, nil
}

// MergeMeta builds one composite virtual raster per group, with the
// group's layers as separate bands in order. Group count and order match
// MergeData for the same input.
func MergeMeta(groups [][]*raster.Layer) ([]raster.Handle, error) {
	o := make([]raster.Handle, len(groups))
	for i, g := range groups {
		h := make([]raster.Handle, len(g))
		for j, l := range g {
			h[j] = l
		}
		v, err := raster.BuildVRT(h...)
		if err != nil {
			return nil, fmt.Errorf("spacetime: merging metadata for group %d: %v", i, err)
		}
		o[i] = v
	}
	return o, nil
}

// stack joins arrays of identical shape along a new leading axis.
func stack(arrays []*sparse.DenseArray) (*sparse.DenseArray, error) {
	if len(arrays) == 0 {
		return nil, fmt.Errorf("%w: nothing to stack", ErrShapeMismatch)
	}
	inner := arrays[0].Shape
	for i, a := range arrays[1:] {
		if !sameShape(a.Shape, inner) {
			return nil, fmt.Errorf("%w: array %d has shape %v but array 0 has shape %v",
				ErrShapeMismatch, i+1, a.Shape, inner)
		}
	}
	o := sparse.ZerosDense(append([]int{len(arrays)}, inner...)...)
	n := len(arrays[0].Elements)
	for i, a := range arrays {
		copy(o.Elements[i*n:(i+1)*n], a.Elements)
	}
	return o, nil
}

// swapLeading exchanges the first two axes of a, so an array of shape
// [a, b, ...] becomes [b, a, ...].
func swapLeading(a *sparse.DenseArray) *sparse.DenseArray {
	if len(a.Shape) < 2 {
		panic(fmt.Errorf("spacetime: cannot swap axes of an array with shape %v", a.Shape))
	}
	n0, n1 := a.Shape[0], a.Shape[1]
	shape := append([]int{n1, n0}, a.Shape[2:]...)
	o := sparse.ZerosDense(shape...)
	inner := 1
	for _, d := range a.Shape[2:] {
		inner *= d
	}
	for i := 0; i < n0; i++ {
		for j := 0; j < n1; j++ {
			src := (i*n1 + j) * inner
			dst := (j*n0 + i) * inner
			copy(o.Elements[dst:dst+inner], a.Elements[src:src+inner])
		}
	}
	return o
}

// transposeGroups turns S groups of B items into B groups of S items.
// All groups must have the same length.
func transposeGroups(groups [][]*raster.Layer) [][]*raster.Layer {
	if len(groups) == 0 {
		return nil
	}
	o := make([][]*raster.Layer, len(groups[0]))
	for j := range o {
		o[j] = make([]*raster.Layer, len(groups))
		for i, g := range groups {
			o[j][i] = g[j]
		}
	}
	return o
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
