// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

package vinr

import (
	"math"
	"testing"

	"github.com/audioinr/vinr/pkg/ml/data/coords"
	"github.com/audioinr/vinr/pkg/ml/layers/actfn"
	"github.com/audioinr/vinr/pkg/ml/layers/quantize"
	"github.com/audioinr/vinr/pkg/support/configerr"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

func smallConfig(inDim, outDim int) Config {
	cfg := DefaultConfig(inDim, outDim)
	cfg.NumHiddenLayers = 1
	cfg.HiddenDim = 4
	return cfg
}

func TestConfigFromContext(t *testing.T) {
	ctx := context.New()
	cfg := ConfigFromContext(ctx, 3, 8)
	assert.Equal(t, DefaultConfig(3, 8), cfg)
	assert.Equal(t, 3, cfg.NumHiddenLayers)
	assert.Equal(t, 64, cfg.HiddenDim)
	assert.Equal(t, "gelu", cfg.Activation)
	assert.Equal(t, 8, cfg.NumBits)
	assert.Equal(t, "sum", cfg.GridReduce)

	ctx.SetParams(map[string]any{
		ParamNumHiddenLayers:  2,
		ParamHiddenDim:        32,
		actfn.ParamActivation: "swish",
		quantize.ParamNumBits: 6,
		ParamGridReduce:       "cat",
	})
	cfg = ConfigFromContext(ctx, 3, 8)
	assert.Equal(t, Config{InDim: 3, OutDim: 8, NumHiddenLayers: 2, HiddenDim: 32, Activation: "swish",
		NumBits: 6, GridReduce: "cat"}, cfg)
}

func TestConfigErrors(t *testing.T) {
	for name, modify := range map[string]func(cfg *Config){
		"unknown activation":  func(cfg *Config) { cfg.Activation = "sigmoidish" },
		"unknown grid reduce": func(cfg *Config) { cfg.GridReduce = "mean" },
		"1 bit":               func(cfg *Config) { cfg.NumBits = 1 },
		"17 bits":             func(cfg *Config) { cfg.NumBits = 17 },
		"zero hidden dim":     func(cfg *Config) { cfg.HiddenDim = 0 },
		"negative layers":     func(cfg *Config) { cfg.NumHiddenLayers = -1 },
		"zero outDim":         func(cfg *Config) { cfg.OutDim = 0 },
		"invalid resolution":  func(cfg *Config) { cfg.GridResolutions = []int{16, 1} },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := smallConfig(1, 2)
			modify(&cfg)
			ctx := context.New()
			m, err := NewGridVINR(ctx, cfg)
			require.ErrorIs(t, err, configerr.ErrConfiguration)
			require.Nil(t, m)
			require.Zero(t, ctx.NumVariables())
			require.Panics(t, func() { MustNewGridVINR(ctx, cfg) })
		})
	}

	// VINR doesn't use the grids, but it requires at least one input channel.
	cfg := smallConfig(0, 2)
	ctx := context.New()
	_, err := NewVINR(ctx, cfg)
	require.ErrorIs(t, err, configerr.ErrConfiguration)
	cfg = smallConfig(1, 2)
	cfg.Activation = "unknown"
	_, err = NewVINR(ctx, cfg)
	require.ErrorIs(t, err, configerr.ErrConfiguration)
	require.Zero(t, ctx.NumVariables())
}

func TestBitSize(t *testing.T) {
	// Per layer with 8 bits and a single quantization group: 32 + W·8 + 32 + b·8.
	// Layers: 3x4 -> 192, 4x4 -> 224, 4x2 -> 144.
	ctx := context.New()
	m := MustNewVINR(ctx.In("vinr"), smallConfig(3, 2))
	require.Len(t, m.Layers(), 3)
	assert.Equal(t, 192+224+144, m.BitSize())

	// Same with 16 bits: no quantization.
	cfg := smallConfig(3, 2)
	cfg.NumBits = 16
	m = MustNewVINR(ctx.In("vinr16"), cfg)
	assert.Equal(t, 16*((12+4)+(16+4)+(8+2)), m.BitSize())

	// GridVINR: the first layer takes the 4 grid features plus the extra input channel (5x4 -> 256),
	// and the default grids add 3·(16·64·4) + (128+512+2048)·6 bits.
	grid := MustNewGridVINR(ctx.In("grid"), smallConfig(1, 2))
	assert.Equal(t, 256+224+144+3*(16*64*4)+(128+512+2048)*6, grid.BitSize())

	report := grid.Report(10)
	assert.Equal(t, grid.BitSize(), report.TotalBits())
	require.Len(t, report.Entries(), 6)
	assert.InDelta(t, float64(grid.BitSize())/10/1000, report.Kbps(), 1e-9)
	assert.Equal(t, m.BitSize(), MustNewVINR(ctx.In("again"), cfg).Report(1).TotalBits())
}

func TestLearnableActivations(t *testing.T) {
	cfg := smallConfig(2, 1)
	cfg.Activation = "SWISH"
	ctx := context.New()
	m := MustNewVINR(ctx, cfg)
	// 3 linear layers with weights and biases, plus one β per activation.
	assert.Equal(t, 3*2+2, ctx.NumVariables())
	assert.NotNil(t, ctx.InspectVariable("/activation_1", "beta"))
	// β isn't accounted in the bit size.
	assert.Equal(t, 32+8*8+32+4*8+224+32+4*8+32+8, m.BitSize())
}

func TestOutputBounded(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	const numFrames = 200
	phase := must.M1(coords.BinaryPhase(numFrames))
	numChannels := coords.NumPhaseChannels(numFrames)

	t.Run("VINR", func(t *testing.T) {
		ctx := context.New()
		ctx.SetParam(context.ParamInitialSeed, int64(3))
		cfg := smallConfig(numChannels, 4)
		cfg.Activation = actfn.Relu
		m := MustNewVINR(ctx, cfg)
		// Large inputs saturate the tanh, but never beyond 1.
		got := context.MustExecOnce(backend, ctx, func(ctx *context.Context, x *Node) *Node {
			return m.Apply(MulScalar(x, 1000))
		}, phase)
		require.Equal(t, []int{numFrames, 4}, got.Shape().Dimensions)
		for _, v := range tensors.MustCopyFlatData[float32](got) {
			require.False(t, math.IsNaN(float64(v)))
			require.LessOrEqual(t, math.Abs(float64(v)), 1.0)
		}
	})

	t.Run("GridVINR", func(t *testing.T) {
		ctx := context.New()
		ctx.SetParam(context.ParamInitialSeed, int64(5))
		cfg := smallConfig(0, 4)
		cfg.GridReduce = "cat"
		cfg.GridResolutions = []int{8, 32}
		m := MustNewGridVINR(ctx, cfg)
		grid := must.M1(coords.Grid(numFrames))
		got := context.MustExecOnce(backend, ctx, func(ctx *context.Context, x *Node) *Node {
			return m.Apply(x)
		}, grid)
		require.Equal(t, []int{numFrames, 4}, got.Shape().Dimensions)
		for _, v := range tensors.MustCopyFlatData[float32](got) {
			require.LessOrEqual(t, math.Abs(float64(v)), 1.0)
		}

		require.Panics(t, func() {
			_ = context.MustExecOnce(backend, ctx, func(ctx *context.Context, x *Node) *Node {
				return m.Apply(x)
			}, phase)
		}, "GridVINR with InDim=0 only accepts the coordinate channel")
	})
}
