// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

// Package siren implements sinusoidal representation networks (SIREN), the full precision baseline
// for the quantized implicit neural representations.
//
// See "Implicit Neural Representations with Periodic Activation Functions", Sitzmann et al. 2020,
// https://arxiv.org/abs/2006.09661
package siren

import (
	"fmt"
	"math"

	"github.com/audioinr/vinr/pkg/support/configerr"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/gomlx/gomlx/pkg/ml/nn"
	"k8s.io/klog/v2"
)

const (
	// ParamFirstOmega0 is the hyperparameter with the default frequency factor ω₀ of the first sine layer.
	// The default is 30 (float64).
	ParamFirstOmega0 = "siren_first_omega_0"

	// ParamHiddenOmega0 is the hyperparameter with the default frequency factor ω₀ of the hidden sine layers.
	// The default is 30 (float64).
	ParamHiddenOmega0 = "siren_hidden_omega_0"

	// ParameterBits is the number of bits used to account for each parameter: they are not quantized.
	ParameterBits = 16

	// DefaultOmega0 is the default frequency factor of all sine layers.
	DefaultOmega0 = 30.0
)

// SineLayerConfig is created with NewSineLayer.
type SineLayerConfig struct {
	ctx           *context.Context
	inDim, outDim int
	first         bool
	useBias       bool
	omega0        float64
	dtype         dtypes.DType
}

// NewSineLayer configures a layer that computes sin(ω₀·(x·W + b)). Call SineLayerConfig.Done to create it.
func NewSineLayer(ctx *context.Context, inDim, outDim int) *SineLayerConfig {
	return &SineLayerConfig{
		ctx:     ctx,
		inDim:   inDim,
		outDim:  outDim,
		useBias: true,
		omega0:  context.GetParamOr(ctx, ParamHiddenOmega0, DefaultOmega0),
		dtype:   dtypes.Float32,
	}
}

// First marks the layer as the first of the network, which changes the weights initialization to U(±1/inDim).
func (c *SineLayerConfig) First(first bool) *SineLayerConfig {
	c.first = first
	return c
}

// Omega0 sets the frequency factor ω₀.
func (c *SineLayerConfig) Omega0(omega0 float64) *SineLayerConfig {
	c.omega0 = omega0
	return c
}

// UseBias sets whether the layer has biases. Default is true.
func (c *SineLayerConfig) UseBias(useBias bool) *SineLayerConfig {
	c.useBias = useBias
	return c
}

// DType sets the dtype of the variables. The default is Float32.
func (c *SineLayerConfig) DType(dtype dtypes.DType) *SineLayerConfig {
	c.dtype = dtype
	return c
}

func (c *SineLayerConfig) validate() error {
	if c.inDim < 1 || c.outDim < 1 {
		return configerr.Errorf("siren: inDim and outDim must be >= 1, got inDim=%d, outDim=%d", c.inDim, c.outDim)
	}
	if !(c.omega0 > 0) {
		return configerr.Errorf("siren: omega0 must be > 0, got %g", c.omega0)
	}
	if !c.dtype.IsFloat() {
		return configerr.Errorf("siren: dtype must be a float, got %s", c.dtype)
	}
	return nil
}

// WeightsBound returns the bound of the uniform initialization of the weights.
func (c *SineLayerConfig) WeightsBound() float64 {
	if c.first {
		return 1 / float64(c.inDim)
	}
	return math.Sqrt(6/float64(c.inDim)) / c.omega0
}

// Done validates the configuration and creates the layer variables "weights" and, if
// enabled, "biases".
func (c *SineLayerConfig) Done() (*SineLayer, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	layer := &SineLayer{inDim: c.inDim, outDim: c.outDim, omega0: c.omega0, first: c.first}
	err := configerr.Catch(func() {
		layer.weights, layer.biases = denseVariables(c.ctx, c.dtype, c.inDim, c.outDim, c.WeightsBound(), c.useBias)
	})
	if err != nil {
		return nil, err
	}
	return layer, nil
}

// MustDone is like Done, but panics on error.
func (c *SineLayerConfig) MustDone() *SineLayer {
	layer, err := c.Done()
	if err != nil {
		panic(err)
	}
	return layer
}

// denseVariables creates the weights [inDim, outDim] initialized in U(±weightsBound) and, if useBias,
// the biases [outDim] initialized in U(±1/sqrt(inDim)).
func denseVariables(ctx *context.Context, dtype dtypes.DType, inDim, outDim int, weightsBound float64, useBias bool) (
	weights, biases *context.Variable) {
	weights = ctx.WithInitializer(initializers.RandomUniformFn(ctx, -weightsBound, weightsBound)).
		VariableWithShape("weights", shapes.Make(dtype, inDim, outDim))
	if useBias {
		biasBound := 1 / math.Sqrt(float64(inDim))
		biases = ctx.WithInitializer(initializers.RandomUniformFn(ctx, -biasBound, biasBound)).
			VariableWithShape("biases", shapes.Make(dtype, outDim))
	}
	return
}

// dense computes x·W + b over the last axis of x.
func dense(x *Node, weights, biases *context.Variable) *Node {
	g := x.Graph()
	var b *Node
	if biases != nil {
		b = biases.ValueGraph(g)
	}
	return nn.Dense(x, weights.ValueGraph(g), b)
}

func numParams(weights, biases *context.Variable) int {
	n := weights.Shape().Size()
	if biases != nil {
		n += biases.Shape().Size()
	}
	return n
}

// SineLayer computes sin(ω₀·(x·W + b)).
type SineLayer struct {
	inDim, outDim   int
	omega0          float64
	first           bool
	weights, biases *context.Variable
}

// Omega0 returns the frequency factor of the layer.
func (layer *SineLayer) Omega0() float64 { return layer.omega0 }

// WeightsVar returns the weights variable, shaped [inDim, outDim].
func (layer *SineLayer) WeightsVar() *context.Variable { return layer.weights }

// BiasesVar returns the biases variable, shaped [outDim], or nil if the layer has no biases.
func (layer *SineLayer) BiasesVar() *context.Variable { return layer.biases }

// Apply the layer to x, shaped [..., inDim].
func (layer *SineLayer) Apply(x *Node) *Node {
	if x.Rank() < 1 || x.Shape().Dimensions[x.Rank()-1] != layer.inDim {
		exceptions.Panicf("siren.SineLayer: input must be shaped [..., %d], got %s", layer.inDim, x.Shape())
	}
	return Sin(MulScalar(dense(x, layer.weights, layer.biases), layer.omega0))
}

// BitSize returns the size of the parameters stored at ParameterBits each.
func (layer *SineLayer) BitSize() int {
	return ParameterBits * numParams(layer.weights, layer.biases)
}

// Config is created with New, and configures a Siren network.
type Config struct {
	ctx                       *context.Context
	inDim, outDim             int
	numHiddenLayers           int
	hiddenDim                 int
	firstOmega0, hiddenOmega0 float64
	dtype                     dtypes.DType
}

// New configures a Siren network: a first sine layer (inDim -> hiddenDim), numHiddenLayers sine layers
// (hiddenDim -> hiddenDim) and a linear head (hiddenDim -> outDim) followed by tanh.
//
// Call Config.Done to create it.
func New(ctx *context.Context, inDim, outDim, numHiddenLayers, hiddenDim int) *Config {
	return &Config{
		ctx:             ctx,
		inDim:           inDim,
		outDim:          outDim,
		numHiddenLayers: numHiddenLayers,
		hiddenDim:       hiddenDim,
		firstOmega0:     context.GetParamOr(ctx, ParamFirstOmega0, DefaultOmega0),
		hiddenOmega0:    context.GetParamOr(ctx, ParamHiddenOmega0, DefaultOmega0),
		dtype:           dtypes.Float32,
	}
}

// FirstOmega0 sets ω₀ of the first sine layer.
func (c *Config) FirstOmega0(omega0 float64) *Config {
	c.firstOmega0 = omega0
	return c
}

// HiddenOmega0 sets ω₀ of the hidden sine layers, also used in the initialization of the head.
func (c *Config) HiddenOmega0(omega0 float64) *Config {
	c.hiddenOmega0 = omega0
	return c
}

// DType sets the dtype of the variables. The default is Float32.
func (c *Config) DType(dtype dtypes.DType) *Config {
	c.dtype = dtype
	return c
}

// Done validates the whole configuration and creates the layers, in the scopes "sine_0", "sine_1", ...
// and "head".
func (c *Config) Done() (*Siren, error) {
	if c.numHiddenLayers < 0 {
		return nil, configerr.Errorf("siren: numHiddenLayers must be >= 0, got %d", c.numHiddenLayers)
	}
	if c.outDim < 1 || c.hiddenDim < 1 {
		return nil, configerr.Errorf("siren: outDim and hiddenDim must be >= 1, got outDim=%d, hiddenDim=%d",
			c.outDim, c.hiddenDim)
	}
	configs := make([]*SineLayerConfig, 0, c.numHiddenLayers+1)
	configs = append(configs, NewSineLayer(c.ctx.In("sine_0"), c.inDim, c.hiddenDim).
		First(true).Omega0(c.firstOmega0).DType(c.dtype))
	for ii := range c.numHiddenLayers {
		configs = append(configs, NewSineLayer(c.ctx.Inf("sine_%d", ii+1), c.hiddenDim, c.hiddenDim).
			Omega0(c.hiddenOmega0).DType(c.dtype))
	}
	for _, cfg := range configs {
		if err := cfg.validate(); err != nil {
			return nil, err
		}
	}

	net := &Siren{inDim: c.inDim, outDim: c.outDim}
	for _, cfg := range configs {
		layer, err := cfg.Done()
		if err != nil {
			return nil, err
		}
		net.layers = append(net.layers, layer)
	}
	headBound := math.Sqrt(6/float64(c.hiddenDim)) / c.hiddenOmega0
	err := configerr.Catch(func() {
		net.headWeights, net.headBiases = denseVariables(c.ctx.In("head"), c.dtype, c.hiddenDim, c.outDim, headBound, true)
	})
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("siren %q: %d -> %d x %d sine layers -> %d, %d bits",
		c.ctx.Scope(), c.inDim, len(net.layers), c.hiddenDim, c.outDim, net.BitSize())
	return net, nil
}

// MustDone is like Done, but panics on error.
func (c *Config) MustDone() *Siren {
	net, err := c.Done()
	if err != nil {
		panic(err)
	}
	return net
}

// Siren is a sinusoidal representation network, with outputs in [-1, 1].
type Siren struct {
	inDim, outDim           int
	layers                  []*SineLayer
	headWeights, headBiases *context.Variable
}

// Layers returns the sine layers of the network, not including the linear head.
func (net *Siren) Layers() []*SineLayer { return net.layers }

// String implements fmt.Stringer.
func (net *Siren) String() string {
	return fmt.Sprintf("siren.Siren(%d->%d, %d sine layers)", net.inDim, net.outDim, len(net.layers))
}

// Apply the network to x, shaped [..., inDim]. The output is shaped [..., outDim].
func (net *Siren) Apply(x *Node) *Node {
	for _, layer := range net.layers {
		x = layer.Apply(x)
	}
	return Tanh(dense(x, net.headWeights, net.headBiases))
}

// BitSize returns the size of all parameters, at ParameterBits each.
func (net *Siren) BitSize() int {
	bits := ParameterBits * numParams(net.headWeights, net.headBiases)
	for _, layer := range net.layers {
		bits += layer.BitSize()
	}
	return bits
}
