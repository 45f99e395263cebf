// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

// Package quantize implements quantization-aware layers: the weights are kept in full precision
// for training, but the forward pass uses them rounded to a uniform grid of levels spanning their
// dynamic range, so the model learns to cope with the precision it will be stored with.
//
// The rounding uses a straight-through estimator: the gradient flows as if no rounding had happened.
package quantize

import (
	"slices"

	"github.com/audioinr/vinr/pkg/ml/layers/ste"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/graph"
)

const (
	// FullPrecisionBits is the number of bits that means "no quantization": values are used as is.
	FullPrecisionBits = 16

	// MinRange is the floor of the dynamic range (max - min) of a quantization group, used
	// when all values of the group are (nearly) the same.
	MinRange = 1e-8

	// RangeBits is the number of bits used to store each of the min and max of a quantization group.
	RangeBits = 16
)

// Levels returns the number of quantization levels used for numBits.
//
// Notice it is numBits², not 2^numBits: with 8 bits there are 64 levels.
func Levels(numBits int) int {
	return numBits * numBits
}

// NormalizeAxes converts negative axes to positive ones for the given rank.
// It returns false if any axis is out of range or repeated.
func NormalizeAxes(rank int, axes []int) ([]int, bool) {
	normalized := make([]int, 0, len(axes))
	for _, axis := range axes {
		if axis < 0 {
			axis += rank
		}
		if axis < 0 || axis >= rank || slices.Contains(normalized, axis) {
			return nil, false
		}
		normalized = append(normalized, axis)
	}
	return normalized, true
}

func quantizationAxes(x *graph.Node, axes []int) []int {
	if len(axes) == 0 {
		axes = []int{-1}
	}
	if x.Rank() == 0 {
		exceptions.Panicf("quantize: cannot quantize a scalar, x.shape=%s", x.Shape())
	}
	normalized, ok := NormalizeAxes(x.Rank(), axes)
	if !ok {
		exceptions.Panicf("quantize: invalid quantization axes %v for x.shape=%s", axes, x.Shape())
	}
	return normalized
}

// Quantize rounds x to Levels(numBits) uniformly spaced values spanning the [min, max] range of each
// quantization group. The groups are formed by reducing over axes (default is the last axis).
//
// For numBits == FullPrecisionBits x is returned unchanged. Half precision inputs are quantized in
// float32 and converted back, so MinRange doesn't underflow to 0.
//
// There is no gradient through the rounding, see FakeQuantize for the straight-through version.
func Quantize(x *graph.Node, numBits int, axes ...int) *graph.Node {
	if numBits == FullPrecisionBits {
		return x
	}
	if numBits < 2 || numBits > FullPrecisionBits {
		exceptions.Panicf("quantize.Quantize: numBits must be in [2, %d], got %d", FullPrecisionBits, numBits)
	}
	if !x.DType().IsFloat() {
		exceptions.Panicf("quantize.Quantize: x must be a float, got dtype %s", x.DType())
	}
	if dtype := x.DType(); dtype == dtypes.Float16 || dtype == dtypes.BFloat16 {
		return graph.ConvertDType(Quantize(graph.ConvertDType(x, dtypes.Float32), numBits, axes...), dtype)
	}
	axes = quantizationAxes(x, axes)
	minV := graph.ReduceAndKeep(x, graph.ReduceMin, axes...)
	maxV := graph.ReduceAndKeep(x, graph.ReduceMax, axes...)
	scale := graph.DivScalar(graph.MaxScalar(graph.Sub(maxV, minV), MinRange), float64(Levels(numBits)-1))
	steps := graph.Round(graph.Div(graph.Sub(x, minV), scale))
	return graph.Add(graph.Mul(steps, scale), minV)
}

// FakeQuantize returns Quantize(x, numBits, axes...) in the forward pass, with the gradient
// flowing straight through to x.
func FakeQuantize(x *graph.Node, numBits int, axes ...int) *graph.Node {
	if numBits == FullPrecisionBits {
		return x
	}
	return ste.StraightThrough(Quantize(x, numBits, axes...), x)
}
