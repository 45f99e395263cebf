// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

// Package vinr implements compressed implicit neural representations of signals: networks that map the
// coordinates of a signal to its values, with quantization-aware layers so that the trained weights are
// the compressed representation.
//
// Two models are provided:
//
//   - VINR: a stack of quantized linear layers applied to the raw coordinates.
//   - GridVINR: the same stack, applied to the coordinates first encoded by learnable multi-resolution
//     codebook grids (see package codebook).
//
// Both end in tanh, so the outputs are in [-1, 1], and both report their storage size in bits with BitSize.
package vinr

import (
	"fmt"

	"github.com/audioinr/vinr/pkg/ml/bitsize"
	"github.com/audioinr/vinr/pkg/ml/layers/actfn"
	"github.com/audioinr/vinr/pkg/ml/layers/codebook"
	"github.com/audioinr/vinr/pkg/ml/layers/quantize"
	"github.com/audioinr/vinr/pkg/support/configerr"
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"k8s.io/klog/v2"
)

const (
	// ParamNumHiddenLayers is the hyperparameter with the default number of hidden layers. The default is 3.
	ParamNumHiddenLayers = "vinr_num_hidden_layers"

	// ParamHiddenDim is the hyperparameter with the default width of the hidden layers. The default is 64.
	ParamHiddenDim = "vinr_hidden_dim"

	// ParamGridReduce is the hyperparameter with the default reduction of the GridVINR grids: "sum" or "cat".
	ParamGridReduce = "vinr_grid_reduce"
)

// Config holds the architecture of the models.
type Config struct {
	// InDim is the number of input channels. For GridVINR it doesn't include the coordinate channel, so
	// its inputs have InDim+1 channels.
	InDim int

	// OutDim is the number of outputs per coordinate.
	OutDim int

	NumHiddenLayers int
	HiddenDim       int

	// Activation is one of actfn.Names().
	Activation string

	// NumBits of the quantized layers, in [2, 16]. 16 disables quantization.
	NumBits int

	// GridReduce is how GridVINR combines its grids: "sum" or "cat".
	GridReduce string

	// GridResolutions of GridVINR. If empty, codebook.DefaultResolutions is used.
	GridResolutions []int
}

// DefaultConfig returns the default architecture for the given input and output dimensions.
func DefaultConfig(inDim, outDim int) Config {
	return Config{
		InDim:           inDim,
		OutDim:          outDim,
		NumHiddenLayers: 3,
		HiddenDim:       64,
		Activation:      actfn.Gelu,
		NumBits:         8,
		GridReduce:      string(codebook.SumReduce),
	}
}

// ConfigFromContext returns DefaultConfig overridden by the hyperparameters set in the context:
// ParamNumHiddenLayers, ParamHiddenDim, actfn.ParamActivation, quantize.ParamNumBits and ParamGridReduce.
func ConfigFromContext(ctx *context.Context, inDim, outDim int) Config {
	cfg := DefaultConfig(inDim, outDim)
	cfg.NumHiddenLayers = context.GetParamOr(ctx, ParamNumHiddenLayers, cfg.NumHiddenLayers)
	cfg.HiddenDim = context.GetParamOr(ctx, ParamHiddenDim, cfg.HiddenDim)
	cfg.Activation = context.GetParamOr(ctx, actfn.ParamActivation, cfg.Activation)
	cfg.NumBits = context.GetParamOr(ctx, quantize.ParamNumBits, cfg.NumBits)
	cfg.GridReduce = context.GetParamOr(ctx, ParamGridReduce, cfg.GridReduce)
	return cfg
}

// validate checks the parts of the configuration shared by both models. minInDim is the smallest
// accepted InDim.
func (cfg Config) validate(minInDim int) error {
	if cfg.InDim < minInDim {
		return configerr.Errorf("vinr: InDim must be >= %d, got %d", minInDim, cfg.InDim)
	}
	if cfg.OutDim < 1 || cfg.HiddenDim < 1 {
		return configerr.Errorf("vinr: OutDim and HiddenDim must be >= 1, got OutDim=%d, HiddenDim=%d",
			cfg.OutDim, cfg.HiddenDim)
	}
	if cfg.NumHiddenLayers < 0 {
		return configerr.Errorf("vinr: NumHiddenLayers must be >= 0, got %d", cfg.NumHiddenLayers)
	}
	if cfg.NumBits < 2 || cfg.NumBits > quantize.FullPrecisionBits {
		return configerr.Errorf("vinr: NumBits must be in [2, %d], got %d", quantize.FullPrecisionBits, cfg.NumBits)
	}
	if _, err := actfn.Normalize(cfg.Activation); err != nil {
		return err
	}
	return nil
}

// layer is one step of the network.
type layer interface {
	Apply(x *Node) *Node
}

// network is the sequence of quantized linear layers and activations shared by both models.
type network struct {
	sequence []layer
}

// newNetwork creates Linear(inDim, hidden) → [act, Linear(hidden, hidden)] × NumHiddenLayers →
// act → Linear(hidden, out), with the linear layers in the scopes "layer_<i>" and the activations in
// "activation_<i>".
//
// The configuration must have been validated.
func newNetwork(ctx *context.Context, cfg Config, inDim int) (*network, error) {
	net := &network{}
	numLinear := 0
	addLinear := func(in, out int) error {
		l, err := quantize.NewLinear(ctx.Inf("layer_%d", numLinear), in, out).NumBits(cfg.NumBits).Done()
		if err != nil {
			return err
		}
		numLinear++
		net.sequence = append(net.sequence, l)
		return nil
	}
	numActivations := 0
	addActivation := func() error {
		act, err := actfn.New(ctx.Inf("activation_%d", numActivations), cfg.Activation)
		if err != nil {
			return err
		}
		numActivations++
		net.sequence = append(net.sequence, act)
		return nil
	}

	if err := addLinear(inDim, cfg.HiddenDim); err != nil {
		return nil, err
	}
	for range cfg.NumHiddenLayers {
		if err := addActivation(); err != nil {
			return nil, err
		}
		if err := addLinear(cfg.HiddenDim, cfg.HiddenDim); err != nil {
			return nil, err
		}
	}
	if err := addActivation(); err != nil {
		return nil, err
	}
	if err := addLinear(cfg.HiddenDim, cfg.OutDim); err != nil {
		return nil, err
	}
	return net, nil
}

func (net *network) apply(x *Node) *Node {
	for _, l := range net.sequence {
		x = l.Apply(x)
	}
	return Tanh(x)
}

// bitSize sums the layers that have a storage size. Activations, including the learnable ones, are
// not accounted.
func (net *network) bitSize() int {
	var bits int
	for _, l := range net.sequence {
		if sizer, ok := l.(bitsize.Sizer); ok {
			bits += sizer.BitSize()
		}
	}
	return bits
}

func (net *network) linearLayers() []*quantize.Linear {
	var linears []*quantize.Linear
	for _, l := range net.sequence {
		if linear, ok := l.(*quantize.Linear); ok {
			linears = append(linears, linear)
		}
	}
	return linears
}

// VINR is a quantized implicit neural representation applied directly to its input coordinates.
type VINR struct {
	cfg Config
	net *network
}

// NewVINR creates the model in the context scope.
//
// It returns an error wrapping configerr.ErrConfiguration for an invalid configuration (e.g.: unknown
// activation), in which case no variables are created.
func NewVINR(ctx *context.Context, cfg Config) (*VINR, error) {
	if err := cfg.validate(1); err != nil {
		return nil, err
	}
	net, err := newNetwork(ctx, cfg, cfg.InDim)
	if err != nil {
		return nil, err
	}
	m := &VINR{cfg: cfg, net: net}
	klog.V(1).Infof("vinr.VINR %q: %d -> %d x %d (%s, %d bits) -> %d, %d bits estimated",
		ctx.Scope(), cfg.InDim, cfg.NumHiddenLayers, cfg.HiddenDim, cfg.Activation, cfg.NumBits, cfg.OutDim,
		m.BitSize())
	return m, nil
}

// MustNewVINR is like NewVINR, but panics on error.
func MustNewVINR(ctx *context.Context, cfg Config) *VINR {
	m, err := NewVINR(ctx, cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// Config returns the model configuration.
func (m *VINR) Config() Config { return m.cfg }

// Layers returns the quantized linear layers of the model.
func (m *VINR) Layers() []*quantize.Linear { return m.net.linearLayers() }

// String implements fmt.Stringer.
func (m *VINR) String() string {
	return fmt.Sprintf("vinr.VINR(%d->%d, %d hidden layers of %d, %s, %d bits)",
		m.cfg.InDim, m.cfg.OutDim, m.cfg.NumHiddenLayers, m.cfg.HiddenDim, m.cfg.Activation, m.cfg.NumBits)
}

// Apply the model to x, shaped [..., InDim]. The output is shaped [..., OutDim], with values in [-1, 1].
func (m *VINR) Apply(x *Node) *Node {
	return m.net.apply(x)
}

// BitSize returns the estimated storage size of the model.
func (m *VINR) BitSize() int {
	return m.net.bitSize()
}

// Report returns a bit size report of the model, for a signal with the given duration in seconds.
func (m *VINR) Report(seconds float64) *bitsize.Report {
	r := bitsize.NewReport(m.String())
	for ii, l := range m.Layers() {
		r.Add(fmt.Sprintf("layer_%d", ii), l)
	}
	return r.Duration(seconds)
}

// GridVINR is a quantized implicit neural representation applied to its input coordinates encoded by
// multi-resolution codebook grids.
type GridVINR struct {
	cfg     Config
	encoder *codebook.MultiResolution
	net     *network
}

// NewGridVINR creates the model in the context scope, with the grids in the sub-scope "encoder".
//
// It returns an error wrapping configerr.ErrConfiguration for an invalid configuration (e.g.: unknown
// GridReduce or activation), in which case no variables are created.
func NewGridVINR(ctx *context.Context, cfg Config) (*GridVINR, error) {
	if err := cfg.validate(0); err != nil {
		return nil, err
	}
	resolutions := cfg.GridResolutions
	if len(resolutions) == 0 {
		resolutions = codebook.DefaultResolutions
	}
	encoder, err := codebook.NewMultiResolution(ctx.In("encoder")).
		Resolutions(resolutions...).
		Reduce(cfg.GridReduce).
		Done()
	if err != nil {
		return nil, err
	}
	net, err := newNetwork(ctx, cfg, encoder.OutputDim(cfg.InDim))
	if err != nil {
		return nil, err
	}
	m := &GridVINR{cfg: cfg, encoder: encoder, net: net}
	klog.V(1).Infof("vinr.GridVINR %q: %s, %d -> %d x %d (%s, %d bits) -> %d, %d bits estimated",
		ctx.Scope(), encoder, encoder.OutputDim(cfg.InDim), cfg.NumHiddenLayers, cfg.HiddenDim, cfg.Activation,
		cfg.NumBits, cfg.OutDim, m.BitSize())
	return m, nil
}

// MustNewGridVINR is like NewGridVINR, but panics on error.
func MustNewGridVINR(ctx *context.Context, cfg Config) *GridVINR {
	m, err := NewGridVINR(ctx, cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// Config returns the model configuration.
func (m *GridVINR) Config() Config { return m.cfg }

// Encoder returns the multi-resolution grids encoder.
func (m *GridVINR) Encoder() *codebook.MultiResolution { return m.encoder }

// Layers returns the quantized linear layers of the model.
func (m *GridVINR) Layers() []*quantize.Linear { return m.net.linearLayers() }

// String implements fmt.Stringer.
func (m *GridVINR) String() string {
	return fmt.Sprintf("vinr.GridVINR(%d+1->%d, %s, %d hidden layers of %d, %s, %d bits)",
		m.cfg.InDim, m.cfg.OutDim, m.encoder, m.cfg.NumHiddenLayers, m.cfg.HiddenDim, m.cfg.Activation,
		m.cfg.NumBits)
}

// Apply the model to x, shaped [..., InDim+1], where the last channel is the coordinate in [-1, 1]
// sampled by the grids. The output is shaped [..., OutDim], with values in [-1, 1].
func (m *GridVINR) Apply(x *Node) *Node {
	if x.Rank() < 1 || x.Shape().Dimensions[x.Rank()-1] != m.cfg.InDim+1 {
		exceptions.Panicf("vinr.GridVINR: input must be shaped [..., %d] (the last channel is the coordinate), got %s",
			m.cfg.InDim+1, x.Shape())
	}
	return m.net.apply(m.encoder.Apply(x))
}

// BitSize returns the estimated storage size of the model, grids included.
func (m *GridVINR) BitSize() int {
	return m.net.bitSize() + m.encoder.BitSize()
}

// Report returns a bit size report of the model, for a signal with the given duration in seconds.
func (m *GridVINR) Report(seconds float64) *bitsize.Report {
	r := bitsize.NewReport(m.String())
	for ii, grid := range m.encoder.Grids() {
		r.Add(fmt.Sprintf("grid_%d (%d)", ii, grid.Resolution()), grid)
	}
	for ii, l := range m.Layers() {
		r.Add(fmt.Sprintf("layer_%d", ii), l)
	}
	return r.Duration(seconds)
}
