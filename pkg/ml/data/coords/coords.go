// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

// Package coords generates the input coordinates and the target frames used to fit implicit neural
// representations of signals.
package coords

import (
	"math"
	"math/bits"

	"github.com/audioinr/vinr/pkg/support/configerr"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"gonum.org/v1/gonum/floats"
)

// Linspace returns n evenly spaced values from min to max, both included.
// For n == 1 it returns [min].
func Linspace(min, max float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{min}
	}
	return floats.Span(make([]float64, n), min, max)
}

// Grid returns the coordinates of a regular grid with the given sizes, with each axis spanning [-1, 1].
//
// The returned tensor is shaped [sizes..., len(sizes)], and the point at index (i_0, i_1, ...) has the
// coordinates (Linspace(-1, 1, sizes[0])[i_0], Linspace(-1, 1, sizes[1])[i_1], ...).
func Grid(sizes ...int) (*tensors.Tensor, error) {
	if len(sizes) == 0 {
		return nil, configerr.Errorf("coords.Grid: at least one axis size is required")
	}
	numPoints := 1
	axes := make([][]float64, len(sizes))
	for ii, size := range sizes {
		if size < 1 {
			return nil, configerr.Errorf("coords.Grid: axis sizes must be >= 1, got %v", sizes)
		}
		numPoints *= size
		axes[ii] = Linspace(-1, 1, size)
	}

	rank := len(sizes)
	data := make([]float32, numPoints*rank)
	index := make([]int, rank)
	for point := range numPoints {
		for axis, idx := range index {
			data[point*rank+axis] = float32(axes[axis][idx])
		}
		// Row-major increment of the index.
		for axis := rank - 1; axis >= 0; axis-- {
			index[axis]++
			if index[axis] < sizes[axis] {
				break
			}
			index[axis] = 0
		}
	}
	dims := append(append([]int{}, sizes...), rank)
	return tensors.FromFlatDataAndDimensions(data, dims...), nil
}

// NumPhaseChannels returns the number of channels used by BinaryPhase for n positions: ceil(log2(n)).
func NumPhaseChannels(n int) int {
	if n < 2 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// BinaryPhase returns the coordinates of n positions t = 0, 1, ..., n-1, encoded as NumPhaseChannels(n)
// sawtooth channels of increasing period: channel i is (t mod 2^(i+1)) / (2^(i+1) - 1) · 2 - 1.
//
// The returned tensor is shaped [n, NumPhaseChannels(n)], with values in [-1, 1].
func BinaryPhase(n int) (*tensors.Tensor, error) {
	if n < 2 {
		return nil, configerr.Errorf("coords.BinaryPhase: at least 2 positions are required, got %d", n)
	}
	numChannels := NumPhaseChannels(n)
	data := make([]float32, n*numChannels)
	for t := range n {
		for ii := range numChannels {
			period := 1 << (ii + 1)
			data[t*numChannels+ii] = float32(float64(t%period)/float64(period-1)*2 - 1)
		}
	}
	return tensors.FromFlatDataAndDimensions(data, n, numChannels), nil
}

// Frames reshapes samples into frames of upscale consecutive samples, which are the targets of a model
// with upscale outputs per coordinate.
//
// Trailing samples that don't fill a frame are dropped, and the values are normalized by the peak absolute
// value (unless all samples are zero). The returned tensor is shaped [len(samples)/upscale, upscale].
func Frames(samples []float32, upscale int) (*tensors.Tensor, error) {
	if upscale < 1 {
		return nil, configerr.Errorf("coords.Frames: upscale must be >= 1, got %d", upscale)
	}
	numFrames := len(samples) / upscale
	if numFrames == 0 {
		return nil, configerr.Errorf("coords.Frames: %d samples are not enough for a frame of %d", len(samples), upscale)
	}
	data := make([]float32, numFrames*upscale)
	copy(data, samples)
	var peak float64
	for _, v := range data {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	if peak > 0 {
		for ii, v := range data {
			data[ii] = float32(float64(v) / peak)
		}
	}
	return tensors.FromFlatDataAndDimensions(data, numFrames, upscale), nil
}
