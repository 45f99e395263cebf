// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

package posenc

import (
	"math"
	"testing"

	"github.com/audioinr/vinr/pkg/support/configerr"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

func TestFrequencyMatrix(t *testing.T) {
	assert.Equal(t, [][]float32{
		{1, 2, 4, 0, 0},
		{0, 0, 0, 1, 2},
	}, FrequencyMatrix([]int{3, 2}))
}

func TestConfig(t *testing.T) {
	for name, cfgFn := range map[string]func(ctx *context.Context) *Config{
		"zero inDim":        func(ctx *context.Context) *Config { return New(ctx, 0) },
		"zero frequencies":  func(ctx *context.Context) *Config { return New(ctx, 2).NumFrequencies(3, 0) },
		"wrong num entries": func(ctx *context.Context) *Config { return New(ctx, 3).NumFrequencies(3, 2) },
	} {
		ctx := context.New()
		_, err := cfgFn(ctx).Done()
		require.ErrorIsf(t, err, configerr.ErrConfiguration, "case %q", name)
		require.Zerof(t, ctx.NumVariables(), "case %q", name)
	}

	ctx := context.New()
	ctx.SetParam(ParamNumFrequencies, 4)
	enc := New(ctx, 2).MustDone()
	assert.Equal(t, 16, enc.OutputDim())
	assert.False(t, enc.FrequenciesVar().Trainable)
	enc = New(ctx.In("trainable"), 2).NumFrequencies(3).IncludeInputs(true).Trainable(true).MustDone()
	assert.Equal(t, 2+12, enc.OutputDim())
	assert.True(t, enc.FrequenciesVar().Trainable)
}

func TestApply(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	enc := New(ctx, 2).NumFrequencies(2, 1).IncludeInputs(true).MustDone()
	got := context.MustExecOnce(backend, ctx, func(ctx *context.Context, x *Node) *Node {
		return enc.Apply(x)
	}, [][]float32{{0.5, -0.25}})
	require.Equal(t, []int{1, enc.OutputDim()}, got.Shape().Dimensions)

	mapped := []float64{0.5, 1, -0.25}
	want := []float64{0.5, -0.25}
	for _, m := range mapped {
		want = append(want, math.Cos(m))
	}
	for _, m := range mapped {
		want = append(want, math.Sin(m))
	}
	row := got.Value().([][]float32)[0]
	for ii := range want {
		assert.InDeltaf(t, want[ii], float64(row[ii]), 1e-6, "feature %d", ii)
	}
}
