// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

package codebook

import (
	"fmt"
	"slices"
	"strings"

	"github.com/audioinr/vinr/pkg/support/configerr"
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"k8s.io/klog/v2"
)

// Reduce defines how the outputs of the grids of a MultiResolution encoder are combined.
type Reduce string

const (
	// SumReduce adds the outputs of the grids element-wise.
	SumReduce Reduce = "sum"

	// CatReduce concatenates the outputs of the grids.
	CatReduce Reduce = "cat"
)

// ParseReduce converts a name (case-insensitive) to a Reduce, or returns a configuration error.
func ParseReduce(name string) (Reduce, error) {
	switch r := Reduce(strings.ToLower(name)); r {
	case SumReduce, CatReduce:
		return r, nil
	}
	return "", configerr.Errorf("codebook: unknown grid reduce %q, valid values are %q and %q", name, SumReduce, CatReduce)
}

// DefaultResolutions used by MultiResolution: 2^7, 2^9 and 2^11 cells.
var DefaultResolutions = []int{1 << 7, 1 << 9, 1 << 11}

// MultiResolutionConfig is created with NewMultiResolution.
type MultiResolutionConfig struct {
	ctx         *context.Context
	resolutions []int
	bitWidth    int
	codeSize    int
	cubic       bool
	reduce      string
}

// NewMultiResolution creates the configuration of a MultiResolution encoder.
// Call MultiResolutionConfig.Done to validate it and create the grids.
//
// The defaults are DefaultResolutions, a code size of 4, sum reduction, and the bitwidth and
// interpolation defaults of NewGrid.
func NewMultiResolution(ctx *context.Context) *MultiResolutionConfig {
	return &MultiResolutionConfig{
		ctx:         ctx,
		resolutions: slices.Clone(DefaultResolutions),
		bitWidth:    context.GetParamOr(ctx, ParamBitWidth, 6),
		codeSize:    4,
		cubic:       context.GetParamOr(ctx, ParamCubic, false),
		reduce:      string(SumReduce),
	}
}

// Resolutions sets the resolutions of the grids, one grid per resolution.
func (c *MultiResolutionConfig) Resolutions(resolutions ...int) *MultiResolutionConfig {
	c.resolutions = slices.Clone(resolutions)
	return c
}

// BitWidth sets the bitwidth of the indices of all grids.
func (c *MultiResolutionConfig) BitWidth(bitWidth int) *MultiResolutionConfig {
	c.bitWidth = bitWidth
	return c
}

// CodeSize sets the code size of all grids.
func (c *MultiResolutionConfig) CodeSize(codeSize int) *MultiResolutionConfig {
	c.codeSize = codeSize
	return c
}

// Cubic selects cubic interpolation for all grids.
func (c *MultiResolutionConfig) Cubic(cubic bool) *MultiResolutionConfig {
	c.cubic = cubic
	return c
}

// Reduce sets how the grids' outputs are combined: "sum" or "cat".
// Any other value makes Done fail.
func (c *MultiResolutionConfig) Reduce(reduce string) *MultiResolutionConfig {
	c.reduce = reduce
	return c
}

// Done validates the configuration and creates the grids, in the sub-scopes "grid_0", "grid_1", ...
//
// The whole configuration is validated before any grid is created, so on error no variables are left
// in the context.
func (c *MultiResolutionConfig) Done() (*MultiResolution, error) {
	reduce, err := ParseReduce(c.reduce)
	if err != nil {
		return nil, err
	}
	if len(c.resolutions) == 0 {
		return nil, configerr.Errorf("codebook: MultiResolution requires at least one grid")
	}
	configs := make([]*GridConfig, len(c.resolutions))
	for ii, resolution := range c.resolutions {
		configs[ii] = NewGrid(c.ctx.Inf("grid_%d", ii), resolution).
			BitWidth(c.bitWidth).CodeSize(c.codeSize).Cubic(c.cubic)
		if err := configs[ii].validate(); err != nil {
			return nil, err
		}
	}
	encoder := &MultiResolution{reduce: reduce}
	for _, cfg := range configs {
		grid, err := cfg.Done()
		if err != nil {
			return nil, err
		}
		encoder.grids = append(encoder.grids, grid)
	}
	klog.V(1).Infof("codebook.MultiResolution %q: resolutions=%v, reduce=%s, %d bits estimated",
		c.ctx.Scope(), c.resolutions, reduce, encoder.BitSize())
	return encoder, nil
}

// MustDone is like Done, but panics on error.
func (c *MultiResolutionConfig) MustDone() *MultiResolution {
	encoder, err := c.Done()
	if err != nil {
		panic(err)
	}
	return encoder
}

// MultiResolution is a positional encoder built from several codebook grids of different
// resolutions, all sampled at the same coordinate.
type MultiResolution struct {
	grids  []*Grid
	reduce Reduce
}

// Grids returns the grids of the encoder, in increasing order of configuration.
func (enc *MultiResolution) Grids() []*Grid { return enc.grids }

// ReduceMode returns how the grids' outputs are combined.
func (enc *MultiResolution) ReduceMode() Reduce { return enc.reduce }

// String implements fmt.Stringer.
func (enc *MultiResolution) String() string {
	resolutions := make([]int, len(enc.grids))
	for ii, grid := range enc.grids {
		resolutions[ii] = grid.Resolution()
	}
	return fmt.Sprintf("codebook.MultiResolution(resolutions=%v, reduce=%s)", resolutions, enc.reduce)
}

// EncodingDim returns the number of features produced by the grids.
func (enc *MultiResolution) EncodingDim() int {
	if enc.reduce == SumReduce {
		return enc.grids[0].CodeSize()
	}
	var dim int
	for _, grid := range enc.grids {
		dim += grid.CodeSize()
	}
	return dim
}

// OutputDim returns the number of features of Apply's output, for an input with inDim channels
// besides the coordinate channel.
func (enc *MultiResolution) OutputDim(inDim int) int {
	return inDim + enc.EncodingDim()
}

// Encode samples all grids at the coordinates and combines them, returning shape coords.shape + [EncodingDim()].
func (enc *MultiResolution) Encode(coords *Node) *Node {
	outputs := make([]*Node, len(enc.grids))
	for ii, grid := range enc.grids {
		outputs[ii] = grid.Apply(coords)
	}
	if enc.reduce == SumReduce {
		sum := outputs[0]
		for _, output := range outputs[1:] {
			sum = Add(sum, output)
		}
		return sum
	}
	return Concatenate(outputs, -1)
}

// Apply encodes x, shaped [..., channels]: its last channel is the coordinate in [-1, 1] sampled
// by every grid, and the remaining channels are concatenated after the grids' features.
//
// The output is shaped [..., OutputDim(channels-1)].
func (enc *MultiResolution) Apply(x *Node) *Node {
	if x.Rank() < 1 {
		exceptions.Panicf("codebook.MultiResolution: input must have rank >= 1, got %s", x.Shape())
	}
	channels := x.Shape().Dimensions[x.Rank()-1]
	coords := SliceAxis(x, -1, AxisRange(channels-1))
	coords = Squeeze(coords, -1)
	features := enc.Encode(coords)
	if channels == 1 {
		return features
	}
	rest := SliceAxis(x, -1, AxisRange(0, channels-1))
	return Concatenate([]*Node{features, rest}, -1)
}

// BitSize returns the sum of the grids' estimated bit sizes.
func (enc *MultiResolution) BitSize() int {
	var bits int
	for _, grid := range enc.grids {
		bits += grid.BitSize()
	}
	return bits
}
