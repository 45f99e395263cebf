// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

// Package gridsample samples 2D feature maps at continuous coordinates with bilinear interpolation.
//
// Coordinates are in [-1, 1] and refer to the borders of the map (not the centers of its border cells),
// and the map is extended by one cell on each side by linear extrapolation, so samples between the
// center of a border cell and the border continue the slope of the map instead of fading to zero.
package gridsample

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
)

// Bilinear samples tensor, shaped [batch, channels, height, width], at the coordinates in grid, shaped
// [batch, outHeight, outWidth, 2], where grid[..., 0] is the horizontal coordinate (along width) and
// grid[..., 1] the vertical one (along height), both in [-1, 1].
//
// It returns the samples shaped [batch, channels, outHeight, outWidth]. Axes of size 1 are extended by
// replication. Coordinates out of [-1, 1] are extrapolated from the border cells.
func Bilinear(tensor, grid *Node) *Node {
	if tensor.Rank() != 4 {
		exceptions.Panicf("gridsample.Bilinear: tensor must be shaped [batch, channels, height, width], got %s",
			tensor.Shape())
	}
	if !tensor.DType().IsFloat() {
		exceptions.Panicf("gridsample.Bilinear: tensor must be a float, got dtype %s", tensor.DType())
	}
	dims := tensor.Shape().Dimensions
	batchSize, numChannels, height, width := dims[0], dims[1], dims[2], dims[3]
	if grid.Rank() != 4 || grid.Shape().Dimensions[0] != batchSize || grid.Shape().Dimensions[3] != 2 {
		exceptions.Panicf("gridsample.Bilinear: grid must be shaped [%d, outHeight, outWidth, 2], got %s",
			batchSize, grid.Shape())
	}
	if grid.DType() != tensor.DType() {
		grid = ConvertDType(grid, tensor.DType())
	}

	// [batch, height+2, width+2, channels], so Gather picks channel vectors.
	padded := extrapolateBorders(extrapolateBorders(tensor, 2), 3)
	padded = TransposeAllAxes(padded, 0, 2, 3, 1)

	posX := paddedPosition(Squeeze(SliceAxis(grid, -1, AxisElem(0)), -1), width)
	posY := paddedPosition(Squeeze(SliceAxis(grid, -1, AxisElem(1)), -1), height)
	x0 := StopGradient(ClipScalar(Floor(posX), 0, float64(width)))
	y0 := StopGradient(ClipScalar(Floor(posY), 0, float64(height)))
	x1, y1 := AddScalar(x0, 1), AddScalar(y0, 1)

	outDims := grid.Shape().Dimensions[:3]
	batchIndices := Iota(grid.Graph(), shapes.Make(dtypes.Int32, outDims...), 0)
	pick := func(y, x *Node) *Node {
		indices := Stack([]*Node{batchIndices, ConvertDType(y, dtypes.Int32), ConvertDType(x, dtypes.Int32)}, -1)
		return Gather(padded, indices)
	}
	valueDims := append(append([]int{}, outDims...), numChannels)
	weightX := BroadcastToDims(ExpandAxes(Sub(posX, x0), -1), valueDims...)
	weightY := BroadcastToDims(ExpandAxes(Sub(posY, y0), -1), valueDims...)

	top := lerp(pick(y0, x0), pick(y0, x1), weightX)
	bottom := lerp(pick(y1, x0), pick(y1, x1), weightX)
	samples := lerp(top, bottom, weightY)
	return TransposeAllAxes(samples, 0, 3, 1, 2)
}

// extrapolateBorders adds one element at each end of the axis, continuing the slope of the two
// elements next to it. An axis of size 1 is replicated.
func extrapolateBorders(x *Node, axis int) *Node {
	size := x.Shape().Dimensions[axis]
	first := SliceAxis(x, axis, AxisRange(0, 1))
	last := SliceAxis(x, axis, AxisRange(size-1, size))
	if size == 1 {
		return Concatenate([]*Node{first, x, last}, axis)
	}
	second := SliceAxis(x, axis, AxisRange(1, 2))
	beforeLast := SliceAxis(x, axis, AxisRange(size-2, size-1))
	before := Sub(MulScalar(first, 2), second)
	after := Sub(MulScalar(last, 2), beforeLast)
	return Concatenate([]*Node{before, x, after}, axis)
}

// paddedPosition converts coordinates in [-1, 1] to continuous indices of the extrapolated axis, where
// cell i of the original axis has its center at i+1: ((coord + 1)·size + 1) / 2.
func paddedPosition(coord *Node, size int) *Node {
	return DivScalar(AddScalar(MulScalar(AddScalar(coord, 1), float64(size)), 1), 2)
}

func lerp(a, b, weight *Node) *Node {
	return Add(a, Mul(weight, Sub(b, a)))
}
