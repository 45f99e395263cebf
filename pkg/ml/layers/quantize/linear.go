// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

package quantize

import (
	"fmt"
	"math"
	"slices"

	"github.com/audioinr/vinr/pkg/support/configerr"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/gomlx/gomlx/pkg/ml/nn"
	"k8s.io/klog/v2"
)

const (
	// ParamNumBits is the hyperparameter with the default number of bits of quantized layers.
	// The default is 8 (int). The value FullPrecisionBits (16) disables quantization.
	ParamNumBits = "quantize_num_bits"
)

// LinearConfig is created with NewLinear, and can be configured with its methods or by setting the
// corresponding hyperparameters in the context.
type LinearConfig struct {
	ctx           *context.Context
	inDim, outDim int
	numBits       int
	quantAxes     []int
	dtype         dtypes.DType
}

// NewLinear creates the configuration of a quantization-aware linear layer, that maps
// inputs with inDim features to outDim features.
// Call LinearConfig.Done to validate it and create the layer variables in ctx.
//
// The default number of bits is read from the context hyperparameter ParamNumBits.
func NewLinear(ctx *context.Context, inDim, outDim int) *LinearConfig {
	return &LinearConfig{
		ctx:       ctx,
		inDim:     inDim,
		outDim:    outDim,
		numBits:   context.GetParamOr(ctx, ParamNumBits, 8),
		quantAxes: []int{-2, -1},
		dtype:     dtypes.Float32,
	}
}

// NumBits sets the number of bits of the weights and biases.
// It must be in [2, 16], and 16 (FullPrecisionBits) disables quantization.
func (c *LinearConfig) NumBits(numBits int) *LinearConfig {
	c.numBits = numBits
	return c
}

// QuantAxes sets the axes of the weights matrix (shaped [inDim, outDim]) reduced to find each
// quantization group's range. The default is (-2, -1): the whole matrix is one group.
//
// The biases are always quantized over their only axis.
func (c *LinearConfig) QuantAxes(axes ...int) *LinearConfig {
	c.quantAxes = slices.Clone(axes)
	return c
}

// DType sets the dtype of the variables. The default is Float32.
func (c *LinearConfig) DType(dtype dtypes.DType) *LinearConfig {
	c.dtype = dtype
	return c
}

func (c *LinearConfig) validate() ([]int, error) {
	if c.inDim < 1 || c.outDim < 1 {
		return nil, configerr.Errorf("quantize.Linear: inDim and outDim must be >= 1, got inDim=%d, outDim=%d",
			c.inDim, c.outDim)
	}
	if c.numBits < 2 || c.numBits > FullPrecisionBits {
		return nil, configerr.Errorf("quantize.Linear: numBits must be in [2, %d], got %d",
			FullPrecisionBits, c.numBits)
	}
	if len(c.quantAxes) == 0 {
		return nil, configerr.Errorf("quantize.Linear: at least one quantization axis is required")
	}
	axes, ok := NormalizeAxes(2, c.quantAxes)
	if !ok {
		return nil, configerr.Errorf("quantize.Linear: invalid quantization axes %v for the weights matrix of rank 2",
			c.quantAxes)
	}
	if !c.dtype.IsFloat() {
		return nil, configerr.Errorf("quantize.Linear: dtype must be a float, got %s", c.dtype)
	}
	return axes, nil
}

// Done validates the configuration and creates the layer variables "weights" and "biases".
// Both are initialized uniformly in ±1/sqrt(inDim).
//
// It returns an error wrapping configerr.ErrConfiguration if the configuration is invalid, in which
// case no variables are created.
func (c *LinearConfig) Done() (*Linear, error) {
	axes, err := c.validate()
	if err != nil {
		return nil, err
	}
	layer := &Linear{
		inDim:     c.inDim,
		outDim:    c.outDim,
		numBits:   c.numBits,
		quantAxes: axes,
		scope:     c.ctx.Scope(),
	}
	bound := 1 / math.Sqrt(float64(c.inDim))
	err = configerr.Catch(func() {
		ctx := c.ctx.WithInitializer(initializers.RandomUniformFn(c.ctx, -bound, bound))
		layer.weights = ctx.VariableWithShape("weights", shapes.Make(c.dtype, c.inDim, c.outDim))
		layer.biases = ctx.VariableWithShape("biases", shapes.Make(c.dtype, c.outDim))
	})
	if err != nil {
		return nil, err
	}
	klog.V(2).Infof("quantize.Linear %q: %d -> %d, %d bits, %d bits estimated",
		layer.scope, layer.inDim, layer.outDim, layer.numBits, layer.BitSize())
	return layer, nil
}

// MustDone is like Done, but panics on error.
func (c *LinearConfig) MustDone() *Linear {
	layer, err := c.Done()
	if err != nil {
		panic(err)
	}
	return layer
}

// Linear is a quantization-aware linear layer: y = x·Wq + bq, where Wq and bq are the weights and
// biases quantized (see FakeQuantize) to the configured number of bits.
type Linear struct {
	inDim, outDim int
	numBits       int
	quantAxes     []int
	scope         string

	weights, biases *context.Variable
}

// InDim returns the number of input features.
func (layer *Linear) InDim() int { return layer.inDim }

// OutDim returns the number of output features.
func (layer *Linear) OutDim() int { return layer.outDim }

// NumBits returns the number of bits of the weights and biases.
func (layer *Linear) NumBits() int { return layer.numBits }

// IsFullPrecision returns whether quantization is disabled.
func (layer *Linear) IsFullPrecision() bool { return layer.numBits == FullPrecisionBits }

// WeightsVar returns the variable with the full precision weights, shaped [inDim, outDim].
func (layer *Linear) WeightsVar() *context.Variable { return layer.weights }

// BiasesVar returns the variable with the full precision biases, shaped [outDim].
func (layer *Linear) BiasesVar() *context.Variable { return layer.biases }

// String implements fmt.Stringer.
func (layer *Linear) String() string {
	return fmt.Sprintf("quantize.Linear(scope=%q, %d->%d, bits=%d, axes=%v)",
		layer.scope, layer.inDim, layer.outDim, layer.numBits, layer.quantAxes)
}

// Weights returns the weights used in the forward pass: quantized, with straight-through gradients.
func (layer *Linear) Weights(g *graph.Graph) *graph.Node {
	return FakeQuantize(layer.weights.ValueGraph(g), layer.numBits, layer.quantAxes...)
}

// Biases returns the biases used in the forward pass: quantized, with straight-through gradients.
func (layer *Linear) Biases(g *graph.Graph) *graph.Node {
	return FakeQuantize(layer.biases.ValueGraph(g), layer.numBits)
}

// Apply the layer to x, shaped [..., inDim]. The output is shaped [..., outDim].
func (layer *Linear) Apply(x *graph.Node) *graph.Node {
	if x.Rank() < 1 || x.Shape().Dimensions[x.Rank()-1] != layer.inDim {
		exceptions.Panicf("quantize.Linear %q: input must be shaped [..., %d], got %s",
			layer.scope, layer.inDim, x.Shape())
	}
	g := x.Graph()
	return nn.Dense(x, layer.Weights(g), layer.Biases(g))
}

// NumGroups returns the number of quantization groups of the weights: the number of
// elements of the weights' max reduced over the quantization axes.
func (layer *Linear) NumGroups() int {
	dims := []int{layer.inDim, layer.outDim}
	groups := 1
	for axis, dim := range dims {
		if !slices.Contains(layer.quantAxes, axis) {
			groups *= dim
		}
	}
	return groups
}

// BitSize returns the estimated size in bits of the serialized layer.
//
// At full precision every parameter takes 16 bits. Otherwise every parameter takes numBits, plus the
// min and max of each quantization group at RangeBits each. The biases form a single group.
func (layer *Linear) BitSize() int {
	numWeights := layer.inDim * layer.outDim
	numBiases := layer.outDim
	if layer.IsFullPrecision() {
		return FullPrecisionBits * (numWeights + numBiases)
	}
	return 2*RangeBits*layer.NumGroups() + numWeights*layer.numBits +
		2*RangeBits + numBiases*layer.numBits
}
