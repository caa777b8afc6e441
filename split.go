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

// splitBounds returns the cumulative group boundaries for partitioning a
// sequence of n items into runs of the given lengths: group i spans
// [bounds[i], bounds[i+1]).
func splitBounds(n int, runLengths []int) ([]int, error) {
	bounds := make([]int, len(runLengths)+1)
	for i, r := range runLengths {
		if r < 0 {
			return nil, fmt.Errorf("%w: negative run length %d at position %d", ErrShapeMismatch, r, i)
		}
		bounds[i+1] = bounds[i] + r
	}
	if bounds[len(runLengths)] != n {
		return nil, fmt.Errorf("%w: run lengths %v sum to %d but there are %d items",
			ErrShapeMismatch, runLengths, bounds[len(runLengths)], n)
	}
	return bounds, nil
}

// SplitLayers partitions layers into contiguous groups of the given
// lengths, preserving order.
func SplitLayers(layers []*raster.Layer, runLengths []int) ([][]*raster.Layer, error) {
	b, err := splitBounds(len(layers), runLengths)
	if err != nil {
		return nil, err
	}
	o := make([][]*raster.Layer, len(runLengths))
	for i := range o {
		o[i] = layers[b[i]:b[i+1]]
	}
	return o, nil
}

// SplitHandles partitions handles into contiguous groups of the given
// lengths, preserving order.
func SplitHandles(handles []raster.Handle, runLengths []int) ([][]raster.Handle, error) {
	b, err := splitBounds(len(handles), runLengths)
	if err != nil {
		return nil, err
	}
	o := make([][]raster.Handle, len(runLengths))
	for i := range o {
		o[i] = handles[b[i]:b[i+1]]
	}
	return o, nil
}

// SplitArray partitions a along its leading axis into contiguous blocks of
// the given lengths. If squeeze is true, the leading axis of any block with
// length 1 is removed; no other axis is affected.
func SplitArray(a *sparse.DenseArray, runLengths []int, squeeze bool) ([]*sparse.DenseArray, error) {
	if len(a.Shape) == 0 {
		return nil, fmt.Errorf("%w: cannot split a scalar array", ErrShapeMismatch)
	}
	b, err := splitBounds(a.Shape[0], runLengths)
	if err != nil {
		return nil, err
	}
	inner := a.Shape[1:]
	stride := 1
	for _, d := range inner {
		stride *= d
	}
	o := make([]*sparse.DenseArray, len(runLengths))
	for i, r := range runLengths {
		var shape []int
		if squeeze && r == 1 {
			shape = append(shape, inner...)
		} else {
			shape = append([]int{r}, inner...)
		}
		blk := sparse.ZerosDense(shape...)
		copy(blk.Elements, a.Elements[b[i]*stride:b[i+1]*stride])
		o[i] = blk
	}
	return o, nil
}

// bandCounts returns the band count of each source.
func bandCounts(sources []raster.Source) []int {
	o := make([]int, len(sources))
	for i, s := range sources {
		o[i] = s.BandCount()
	}
	return o
}

// flatLayers returns a handle to every band of every source, in
// source-then-band order.
func flatLayers(sources []raster.Source) []*raster.Layer {
	var o []*raster.Layer
	for _, s := range sources {
		for j := 0; j < s.BandCount(); j++ {
			o = append(o, s.Layer(j))
		}
	}
	return o
}
