// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

// Package codebook implements learned codebook grids: one-dimensional grids whose cells don't
// store their own vectors, but an index into a small shared codebook of vectors.
//
// During training the index of each cell is represented by a vector of logits over the
// codebook entries. The forward pass uses the hard choice (argmax) while the gradient
// flows as if the softmax-weighted average of the codebook rows had been used (see package ste).
// At serialization time each cell costs only bitwidth bits.
//
// Grid samples a continuous coordinate in [-1, 1] with linear or cubic interpolation of the
// cell vectors, and MultiResolution combines several grids into a positional encoder.
package codebook

import (
	"fmt"

	"github.com/audioinr/vinr/pkg/ml/layers/ste"
	"github.com/audioinr/vinr/pkg/support/configerr"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"k8s.io/klog/v2"
)

const (
	// ParamBitWidth is the hyperparameter with the default number of bits of the grid cells' indices.
	// The codebook has 2^bitwidth entries.
	// The default is 6 (int), so 64 codebook entries.
	ParamBitWidth = "codebook_bitwidth"

	// ParamCodeSize is the hyperparameter with the default size of each codebook vector.
	// The default is 4 (int).
	ParamCodeSize = "codebook_code_size"

	// ParamCubic is the hyperparameter that selects cubic interpolation by default, instead of linear.
	// The default is false (bool).
	ParamCubic = "codebook_cubic"

	// CodebookBits is the number of bits used to account for each codebook value.
	CodebookBits = 16

	// InitStdDev is the standard deviation of the normal initialization of the codebook and the indices' logits.
	InitStdDev = 0.01
)

// GridConfig is created with NewGrid, and can be configured with its methods or by setting the
// corresponding hyperparameters in the context.
type GridConfig struct {
	ctx                *context.Context
	resolution         int
	bitWidth, codeSize int
	cubic              bool
	dtype              dtypes.DType
}

// NewGrid creates the configuration of a Grid with the given resolution (number of cells).
// Call GridConfig.Done to validate it and create the grid variables in ctx.
//
// The defaults are read from the context hyperparameters ParamBitWidth, ParamCodeSize and ParamCubic.
func NewGrid(ctx *context.Context, resolution int) *GridConfig {
	return &GridConfig{
		ctx:        ctx,
		resolution: resolution,
		bitWidth:   context.GetParamOr(ctx, ParamBitWidth, 6),
		codeSize:   context.GetParamOr(ctx, ParamCodeSize, 4),
		cubic:      context.GetParamOr(ctx, ParamCubic, false),
		dtype:      dtypes.Float32,
	}
}

// BitWidth sets the number of bits of each cell's index. The codebook will have 2^bitWidth entries.
func (c *GridConfig) BitWidth(bitWidth int) *GridConfig {
	c.bitWidth = bitWidth
	return c
}

// CodeSize sets the dimension of each codebook vector, and hence of the grid output.
func (c *GridConfig) CodeSize(codeSize int) *GridConfig {
	c.codeSize = codeSize
	return c
}

// Cubic selects cubic interpolation (if true) or linear interpolation (if false) between grid cells.
func (c *GridConfig) Cubic(cubic bool) *GridConfig {
	c.cubic = cubic
	return c
}

// DType sets the dtype of the variables. The default is Float32.
func (c *GridConfig) DType(dtype dtypes.DType) *GridConfig {
	c.dtype = dtype
	return c
}

func (c *GridConfig) validate() error {
	if c.bitWidth < 1 || c.bitWidth > 16 {
		return configerr.Errorf("codebook: bitwidth must be in [1, 16], got %d", c.bitWidth)
	}
	if c.codeSize < 1 {
		return configerr.Errorf("codebook: code size must be >= 1, got %d", c.codeSize)
	}
	minResolution := 2
	if c.cubic {
		minResolution = 3
	}
	if c.resolution < minResolution {
		return configerr.Errorf("codebook: resolution must be >= %d for %s interpolation, got %d",
			minResolution, interpolationName(c.cubic), c.resolution)
	}
	if !c.dtype.IsFloat() {
		return configerr.Errorf("codebook: dtype must be a float, got %s", c.dtype)
	}
	return nil
}

func interpolationName(cubic bool) string {
	if cubic {
		return "cubic"
	}
	return "linear"
}

// Done validates the configuration and creates the grid variables.
// It returns an error wrapping configerr.ErrConfiguration if the configuration is invalid, in which
// case no variables are created.
func (c *GridConfig) Done() (*Grid, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	grid := &Grid{
		resolution: c.resolution,
		bitWidth:   c.bitWidth,
		codeSize:   c.codeSize,
		cubic:      c.cubic,
		scope:      c.ctx.Scope(),
	}
	err := configerr.Catch(func() {
		ctx := c.ctx.WithInitializer(initializers.RandomNormalFn(c.ctx, InitStdDev))
		grid.codebook = ctx.VariableWithShape("codebook", shapes.Make(c.dtype, grid.NumCodes(), c.codeSize))
		grid.indices = ctx.VariableWithShape("indices", shapes.Make(c.dtype, c.resolution, grid.NumCodes()))
	})
	if err != nil {
		return nil, err
	}
	klog.V(2).Infof("codebook.Grid %q: resolution=%d, codes=%d x %d, %s interpolation",
		grid.scope, grid.resolution, grid.NumCodes(), grid.codeSize, interpolationName(grid.cubic))
	return grid, nil
}

// MustDone is like Done, but panics on error.
func (c *GridConfig) MustDone() *Grid {
	grid, err := c.Done()
	if err != nil {
		panic(err)
	}
	return grid
}

// Grid is a one-dimensional grid of cells, each cell holding a (learned) index into a codebook
// of vectors. It is created with NewGrid.
//
// It owns two variables in its context scope:
//
//   - "codebook": shaped [2^bitWidth, codeSize].
//   - "indices": the selection logits, shaped [resolution, 2^bitWidth]. Row r holds the unnormalized
//     log-weights of cell r over the codebook entries.
type Grid struct {
	resolution, bitWidth, codeSize int
	cubic                          bool
	scope                          string

	codebook, indices *context.Variable
}

// Resolution returns the number of cells of the grid.
func (grid *Grid) Resolution() int { return grid.resolution }

// BitWidth returns the number of bits of each cell's index.
func (grid *Grid) BitWidth() int { return grid.bitWidth }

// CodeSize returns the dimension of the codebook vectors, which is also the output dimension.
func (grid *Grid) CodeSize() int { return grid.codeSize }

// NumCodes returns the number of codebook entries, 2^bitWidth.
func (grid *Grid) NumCodes() int { return 1 << grid.bitWidth }

// IsCubic returns whether the grid uses cubic interpolation.
func (grid *Grid) IsCubic() bool { return grid.cubic }

// CodebookVar returns the variable holding the codebook.
func (grid *Grid) CodebookVar() *context.Variable { return grid.codebook }

// IndicesVar returns the variable holding the selection logits.
func (grid *Grid) IndicesVar() *context.Variable { return grid.indices }

// String implements fmt.Stringer.
func (grid *Grid) String() string {
	return fmt.Sprintf("codebook.Grid(scope=%q, resolution=%d, bitwidth=%d, code_size=%d, %s)",
		grid.scope, grid.resolution, grid.bitWidth, grid.codeSize, interpolationName(grid.cubic))
}

// BitSize returns the estimated size in bits of the serialized grid: the codebook stored with
// CodebookBits per value, plus one bitWidth index per cell.
func (grid *Grid) BitSize() int {
	return CodebookBits*grid.codebook.Shape().Size() + grid.resolution*grid.bitWidth
}

// HardRows returns the hard grid rows, shaped [resolution, codeSize]: each row is the codebook
// entry at the argmax of the cell's logits.
func (grid *Grid) HardRows(g *Graph) *Node {
	codebook := grid.codebook.ValueGraph(g)
	logits := grid.indices.ValueGraph(g)
	picks := ExpandAxes(ArgMax(logits, -1), -1)
	return Gather(codebook, picks)
}

// SoftRows returns the soft grid rows, shaped [resolution, codeSize]: each row is the average of
// the codebook entries weighted by the softmax of the cell's logits.
func (grid *Grid) SoftRows(g *Graph) *Node {
	codebook := grid.codebook.ValueGraph(g)
	logits := grid.indices.ValueGraph(g)
	return Einsum("rc,cd->rd", Softmax(logits, -1), codebook)
}

// Rows returns the effective grid rows, shaped [resolution, codeSize]: the value is the one of
// HardRows, but the gradient is the one of SoftRows.
func (grid *Grid) Rows(g *Graph) *Node {
	return ste.StraightThrough(grid.HardRows(g), grid.SoftRows(g))
}

// Apply samples the grid at the given coordinates, expected to be in [-1, 1].
//
// coords can have any shape, and the output has shape coords.shape + [codeSize].
// Coordinates out of range are not clipped, only the cell indices are.
func (grid *Grid) Apply(coords *Node) *Node {
	return grid.Sample(grid.Rows(coords.Graph()), coords)
}

// ApplyHard is like Apply, but samples only the hard rows: no gradient flows to the selection logits.
func (grid *Grid) ApplyHard(coords *Node) *Node {
	return grid.Sample(grid.HardRows(coords.Graph()), coords)
}

// ApplySoft is like Apply, but samples the soft rows, for forward and backward.
func (grid *Grid) ApplySoft(coords *Node) *Node {
	return grid.Sample(grid.SoftRows(coords.Graph()), coords)
}

// Sample interpolates rows, shaped [resolution, codeSize], at coords in [-1, 1].
// It uses the grid's interpolation mode.
func (grid *Grid) Sample(rows, coords *Node) *Node {
	if rows.Rank() != 2 || rows.Shape().Dimensions[0] != grid.resolution {
		exceptions.Panicf("codebook.Grid.Sample: rows must be shaped [%d, codeSize], got %s", grid.resolution, rows.Shape())
	}
	if coords.DType() != rows.DType() {
		coords = ConvertDType(coords, rows.DType())
	}
	if grid.cubic {
		return sampleCubic(rows, coords)
	}
	return sampleLinear(rows, coords)
}

// cellPosition rescales coords from [-1, 1] to [0, resolution-1].
func cellPosition(coords *Node, resolution int) *Node {
	return MulScalar(AddScalar(coords, 1), 0.5*float64(resolution-1))
}

// cellIndex clips the (already integer valued) position to [low, high]. No gradient flows through it.
func cellIndex(pos *Node, low, high int) *Node {
	return StopGradient(ClipScalar(pos, float64(low), float64(high)))
}

// gatherRows picks the rows at the given indices (float valued), returning shape indices.shape + [codeSize].
func gatherRows(rows, indices *Node) *Node {
	picks := ExpandAxes(ConvertDType(indices, dtypes.Int32), -1)
	return Gather(rows, picks)
}

// interpolationWeight returns the interpolation weight of the right cell, broadcast to the sampled rows.
func interpolationWeight(pos, left *Node, codeSize int) *Node {
	w := ExpandAxes(Sub(pos, left), -1)
	dims := append(w.Shape().Clone().Dimensions[:w.Rank()-1], codeSize)
	return BroadcastToDims(w, dims...)
}

// sampleLinear: left and right may coincide at the grid borders -- then the weight is 0 or both
// sides hold the same row.
func sampleLinear(rows, coords *Node) *Node {
	resolution, codeSize := rows.Shape().Dimensions[0], rows.Shape().Dimensions[1]
	pos := cellPosition(coords, resolution)
	left := cellIndex(Floor(pos), 0, resolution-2)
	right := cellIndex(Ceil(pos), 1, resolution-1)
	w := interpolationWeight(pos, left, codeSize)
	leftValue := gatherRows(rows, left)
	rightValue := gatherRows(rows, right)
	return Add(Mul(OneMinus(w), leftValue), Mul(w, rightValue))
}

// sampleCubic uses a Catmull-Rom like blend of the 4 cells around the position.
func sampleCubic(rows, coords *Node) *Node {
	resolution, codeSize := rows.Shape().Dimensions[0], rows.Shape().Dimensions[1]
	pos := cellPosition(coords, resolution)
	left := cellIndex(Floor(pos), 0, resolution-2)
	right := cellIndex(Ceil(pos), 1, resolution-1)
	leftLeft := cellIndex(Floor(AddScalar(pos, -1)), 0, resolution-3)
	rightRight := cellIndex(Ceil(AddScalar(pos, 1)), 2, resolution-1)
	w := interpolationWeight(pos, left, codeSize)

	l := gatherRows(rows, left)
	r := gatherRows(rows, right)
	ll := gatherRows(rows, leftLeft)
	rr := gatherRows(rows, rightRight)

	// out = L + 0.5*w*(R - LL + w*(2*LL - 5*L + 4*R - RR + w*(3*(L-R) + RR - LL)))
	inner := Sub(Add(MulScalar(Sub(l, r), 3), rr), ll)
	inner = Add(Sub(Add(Sub(MulScalar(ll, 2), MulScalar(l, 5)), MulScalar(r, 4)), rr), Mul(w, inner))
	inner = Add(Sub(r, ll), Mul(w, inner))
	return Add(l, Mul(MulScalar(w, 0.5), inner))
}
