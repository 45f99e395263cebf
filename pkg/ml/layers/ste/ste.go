// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

// Package ste implements the straight-through estimator (STE): the forward pass uses
// a hard (usually discrete, non-differentiable) value, while the backward pass
// propagates the gradient as if a soft (differentiable) surrogate had been used.
//
// It is used by the codebook grids (hard argmax selection vs. softmax-weighted selection) and
// by the quantized layers (rounded weights vs. raw weights).
package ste

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
)

// StraightThrough returns a node whose value is exactly hard, but whose gradient is routed
// to soft. No gradient flows into hard.
//
// It is computed as StopGradient(hard) + (soft - StopGradient(soft)): the second term is
// an exact zero for finite values, so the output doesn't drift from hard.
//
// hard and soft must have the same shape.
func StraightThrough(hard, soft *graph.Node) *graph.Node {
	if !hard.Shape().Equal(soft.Shape()) {
		exceptions.Panicf("ste.StraightThrough requires hard and soft with the same shape, got hard.shape=%s, soft.shape=%s",
			hard.Shape(), soft.Shape())
	}
	zero := graph.Sub(soft, graph.StopGradient(soft))
	return graph.Add(graph.StopGradient(hard), zero)
}

// Round rounds x to the nearest integer (ties to even) in the forward pass, and passes the
// gradient through unchanged.
func Round(x *graph.Node) *graph.Node {
	return StraightThrough(graph.Round(x), x)
}
