// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

// Package squeeze implements a squeeze-and-excitation gate over the feature axis:
//
//	y = x · sigmoid(W2 · relu(W1 · x))
//
// See "Squeeze-and-Excitation Networks", Hu et al. 2017, https://arxiv.org/abs/1709.01507
package squeeze

import (
	"math"

	"github.com/audioinr/vinr/pkg/support/configerr"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/nn"
)

// ParamReduction is the hyperparameter with the default reduction factor of the hidden width.
// The default is 4 (int).
const ParamReduction = "squeeze_reduction"

// Config is created with New.
type Config struct {
	ctx       *context.Context
	channels  int
	reduction int
	dtype     dtypes.DType
}

// New configures a squeeze-and-excitation gate for inputs with the given number of channels (last axis).
func New(ctx *context.Context, channels int) *Config {
	return &Config{
		ctx:       ctx,
		channels:  channels,
		reduction: context.GetParamOr(ctx, ParamReduction, 4),
		dtype:     dtypes.Float32,
	}
}

// Reduction sets the factor by which the hidden width is reduced: hidden = channels / reduction.
func (c *Config) Reduction(reduction int) *Config {
	c.reduction = reduction
	return c
}

// DType sets the dtype of the variables. The default is Float32.
func (c *Config) DType(dtype dtypes.DType) *Config {
	c.dtype = dtype
	return c
}

// Done validates the configuration and creates the variables "squeeze" [channels, hidden] and
// "excite" [hidden, channels]. Both are initialized in U(±1/sqrt(fan_in)).
func (c *Config) Done() (*SE, error) {
	if c.channels < 1 || c.reduction < 1 {
		return nil, configerr.Errorf("squeeze: channels and reduction must be >= 1, got channels=%d, reduction=%d",
			c.channels, c.reduction)
	}
	hidden := c.channels / c.reduction
	if hidden < 1 {
		return nil, configerr.Errorf("squeeze: channels/reduction must be >= 1, got %d/%d",
			c.channels, c.reduction)
	}
	se := &SE{channels: c.channels, hidden: hidden}
	err := configerr.Catch(func() {
		bound := 1 / math.Sqrt(float64(c.channels))
		se.squeeze = c.ctx.WithInitializer(initializers.RandomUniformFn(c.ctx, -bound, bound)).
			VariableWithShape("squeeze", shapes.Make(c.dtype, c.channels, hidden))
		bound = 1 / math.Sqrt(float64(hidden))
		se.excite = c.ctx.WithInitializer(initializers.RandomUniformFn(c.ctx, -bound, bound)).
			VariableWithShape("excite", shapes.Make(c.dtype, hidden, c.channels))
	})
	if err != nil {
		return nil, err
	}
	return se, nil
}

// MustDone is like Done, but panics on error.
func (c *Config) MustDone() *SE {
	se, err := c.Done()
	if err != nil {
		panic(err)
	}
	return se
}

// SE is a squeeze-and-excitation gate, without biases.
type SE struct {
	channels, hidden int
	squeeze, excite  *context.Variable
}

// Hidden returns the hidden width.
func (se *SE) Hidden() int { return se.hidden }

// SqueezeVar returns the variable of the first projection, shaped [channels, hidden].
func (se *SE) SqueezeVar() *context.Variable { return se.squeeze }

// ExciteVar returns the variable of the second projection, shaped [hidden, channels].
func (se *SE) ExciteVar() *context.Variable { return se.excite }

// Gate returns sigmoid(W2 · relu(W1 · x)), with the same shape as x.
func (se *SE) Gate(x *Node) *Node {
	if x.Rank() < 1 || x.Shape().Dimensions[x.Rank()-1] != se.channels {
		exceptions.Panicf("squeeze.SE: input must be shaped [..., %d], got %s", se.channels, x.Shape())
	}
	g := x.Graph()
	h := nn.Dense(x, se.squeeze.ValueGraph(g), nil, activations.TypeRelu)
	return Sigmoid(nn.Dense(h, se.excite.ValueGraph(g), nil))
}

// Apply gates x, shaped [..., channels].
func (se *SE) Apply(x *Node) *Node {
	return Mul(x, se.Gate(x))
}
