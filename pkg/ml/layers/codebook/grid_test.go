// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

package codebook

import (
	"flag"
	"fmt"
	"testing"

	"github.com/audioinr/vinr/pkg/support/configerr"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/support/xslices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	_ "github.com/gomlx/gomlx/backends/default"
)

var flagPlot = flag.Bool("plot", false, "output plots of the grid interpolation tests.")

// rampGrid creates a grid with 4 codes of size 1, holding the values 0, 10, 20, 30, and
// selection logits such that cell r picks code r.
func rampGrid(t *testing.T, ctx *context.Context, cubic bool) *Grid {
	grid, err := NewGrid(ctx, 4).BitWidth(2).CodeSize(1).Cubic(cubic).Done()
	require.NoError(t, err)
	require.NoError(t, grid.CodebookVar().SetValue(tensors.FromValue([][]float32{{0}, {10}, {20}, {30}})))
	logits := make([][]float32, 4)
	for r := range logits {
		logits[r] = make([]float32, 4)
		logits[r][r] = 1
	}
	require.NoError(t, grid.IndicesVar().SetValue(tensors.FromValue(logits)))
	return grid
}

func TestGridConfig(t *testing.T) {
	for name, cfgFn := range map[string]func(ctx *context.Context) *GridConfig{
		"resolution 1":       func(ctx *context.Context) *GridConfig { return NewGrid(ctx, 1) },
		"cubic resolution 2": func(ctx *context.Context) *GridConfig { return NewGrid(ctx, 2).Cubic(true) },
		"bitwidth 0":         func(ctx *context.Context) *GridConfig { return NewGrid(ctx, 8).BitWidth(0) },
		"code size 0":        func(ctx *context.Context) *GridConfig { return NewGrid(ctx, 8).CodeSize(0) },
		"int dtype":          func(ctx *context.Context) *GridConfig { return NewGrid(ctx, 8).DType(dtypes.Int32) },
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.New()
			grid, err := cfgFn(ctx).Done()
			require.ErrorIs(t, err, configerr.ErrConfiguration)
			require.Nil(t, grid)
			require.Zero(t, ctx.NumVariables())
		})
	}

	t.Run("defaults", func(t *testing.T) {
		ctx := context.New()
		grid := NewGrid(ctx, 128).MustDone()
		assert.Equal(t, 6, grid.BitWidth())
		assert.Equal(t, 64, grid.NumCodes())
		assert.Equal(t, 4, grid.CodeSize())
		assert.False(t, grid.IsCubic())
		assert.Equal(t, []int{64, 4}, grid.CodebookVar().Shape().Dimensions)
		assert.Equal(t, []int{128, 64}, grid.IndicesVar().Shape().Dimensions)
		assert.Equal(t, 2, ctx.NumVariables())
	})

	t.Run("hyperparameters", func(t *testing.T) {
		ctx := context.New()
		ctx.SetParams(map[string]any{ParamBitWidth: 3, ParamCodeSize: 2, ParamCubic: true})
		grid := NewGrid(ctx, 16).MustDone()
		assert.Equal(t, 8, grid.NumCodes())
		assert.Equal(t, 2, grid.CodeSize())
		assert.True(t, grid.IsCubic())
	})
}

func TestGridBitSize(t *testing.T) {
	ctx := context.New()
	grid := NewGrid(ctx.In("a"), 128).MustDone()
	assert.Equal(t, 16*64*4+128*6, grid.BitSize())

	previous := 0
	for ii, resolution := range []int{2, 3, 16, 128, 1000, 2048} {
		bits := NewGrid(ctx.Inf("res_%d", ii), resolution).MustDone().BitSize()
		assert.Greaterf(t, bits, previous, "resolution=%d", resolution)
		previous = bits
	}
}

func TestGridInterpolation(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	coords := []float32{-1, -1.0 / 3.0, 0, 0.5, 1, 2}
	for _, cubic := range []bool{false, true} {
		t.Run(interpolationName(cubic), func(t *testing.T) {
			ctx := context.New()
			grid := rampGrid(t, ctx, cubic)
			got := context.MustExecOnce(backend, ctx, func(ctx *context.Context, x *Node) *Node {
				return grid.Apply(x)
			}, coords)
			require.Equal(t, []int{len(coords), 1}, got.Shape().Dimensions)
			// Positions are 0, 1, 1.5, 2.25, 3 and 4.5. Coordinates out of [-1, 1] are extrapolated
			// from the border cells.
			want := [][]float32{{0}, {10}, {15}, {22.5}, {30}}
			if cubic {
				// Next to the border the right-right cell is clamped to the last cell.
				want[3][0] = 22.734375
			}
			values := got.Value().([][]float32)
			require.Truef(t, xslices.SlicesInDelta(values[:5], want, 1e-4), "got %v, want %v", values, want)
			if !cubic {
				assert.InDelta(t, 45.0, values[5][0], 1e-4)
			}
		})
	}
}

func TestGridBoundaries(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	for _, cubic := range []bool{false, true} {
		ctx := context.New()
		grid := NewGrid(ctx, 128).Cubic(cubic).MustDone()
		outputs := context.MustExecOnceN(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
			rows := grid.HardRows(g)
			first := SliceAxis(rows, 0, AxisElem(0))
			last := SliceAxis(rows, 0, AxisElem(grid.Resolution()-1))
			return []*Node{grid.Apply(Const(g, []float32{-1, 1})), Concatenate([]*Node{first, last}, 0)}
		})
		got := outputs[0].Value().([][]float32)
		want := outputs[1].Value().([][]float32)
		require.Truef(t, xslices.SlicesInDelta(got, want, 1e-6),
			"%s: grid borders should be exactly the first and last rows: got %v, want %v",
			interpolationName(cubic), got, want)
	}
}

func TestGridStraightThrough(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	coords := make([]float32, 101)
	for ii := range coords {
		coords[ii] = -1.2 + 2.4*float32(ii)/100
	}
	for _, cubic := range []bool{false, true} {
		t.Run(interpolationName(cubic), func(t *testing.T) {
			ctx := context.New()
			ctx.SetParam(context.ParamInitialSeed, int64(7))
			grid := NewGrid(ctx, 32).BitWidth(3).CodeSize(2).Cubic(cubic).MustDone()
			outputs := context.MustExecOnceN(backend, ctx, func(ctx *context.Context, x *Node) []*Node {
				g := x.Graph()
				logits := grid.IndicesVar().ValueGraph(g)
				codebook := grid.CodebookVar().ValueGraph(g)
				// A linear loss: its gradient w.r.t. the sampled values doesn't depend on them.
				lossShape := shapes.Make(dtypes.Float32, x.Shape().Dimensions[0], grid.CodeSize())
				lossWeights := Sin(MulScalar(IotaFull(g, lossShape), 3.7))
				out, hard, soft := grid.Apply(x), grid.ApplyHard(x), grid.ApplySoft(x)
				lossFn := func(y *Node) *Node { return ReduceAllSum(Mul(y, lossWeights)) }
				grads := Gradient(lossFn(out), logits, codebook)
				softGrads := Gradient(lossFn(soft), logits, codebook)
				return []*Node{out, hard, soft, grads[0], softGrads[0], grads[1], softGrads[1]}
			}, coords)

			out := tensors.MustCopyFlatData[float32](outputs[0])
			hard := tensors.MustCopyFlatData[float32](outputs[1])
			soft := tensors.MustCopyFlatData[float32](outputs[2])
			require.Equal(t, hard, out, "forward value must be exactly the hard selection")
			require.False(t, xslices.SlicesInDelta(soft, hard, 1e-9), "soft and hard selections should differ")

			logitsGrad := tensors.MustCopyFlatData[float32](outputs[3])
			softLogitsGrad := tensors.MustCopyFlatData[float32](outputs[4])
			require.True(t, xslices.SlicesInDelta(logitsGrad, softLogitsGrad, 1e-6),
				"gradient w.r.t. the logits must be the one of the soft selection")
			codebookGrad := tensors.MustCopyFlatData[float32](outputs[5])
			softCodebookGrad := tensors.MustCopyFlatData[float32](outputs[6])
			require.True(t, xslices.SlicesInDelta(codebookGrad, softCodebookGrad, 1e-6),
				"gradient w.r.t. the codebook must be the one of the soft selection")

			if *flagPlot {
				plotCurves(t, fmt.Sprintf("codebook_%s", interpolationName(cubic)), coords, out, soft)
			}
		})
	}
}

func plotCurves(t *testing.T, title string, coords, hard, soft []float32) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "coordinate"
	p.Y.Label.Text = "code[0]"
	for ii, values := range [][]float32{hard, soft} {
		xys := make(plotter.XYs, len(coords))
		for jj, coord := range coords {
			// Only the first element of each code is plotted.
			xys[jj].X, xys[jj].Y = float64(coord), float64(values[jj*len(values)/len(coords)])
		}
		line, err := plotter.NewLine(xys)
		require.NoError(t, err)
		if ii == 1 {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(line)
	}
	require.NoError(t, p.Save(12*vg.Inch, 6*vg.Inch, title+".png"))
}
