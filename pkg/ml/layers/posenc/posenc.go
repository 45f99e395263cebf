// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

// Package posenc implements Fourier feature positional encodings: each input channel i is projected on the
// frequencies 2^0, 2^1, ..., 2^(n_i - 1), and the encoding is the cosine and sine of the projections.
package posenc

import (
	"fmt"

	"github.com/audioinr/vinr/pkg/support/configerr"
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/nn"
	"k8s.io/klog/v2"
)

// ParamNumFrequencies is the hyperparameter with the default number of frequencies per input channel.
// The default is 10 (int).
const ParamNumFrequencies = "posenc_num_frequencies"

// Config is created with New.
type Config struct {
	ctx           *context.Context
	inDim         int
	numFreqs      []int
	includeInputs bool
	trainable     bool
}

// New configures a positional encoding for inputs shaped [..., inDim].
// By default every channel uses the same number of frequencies, given by ParamNumFrequencies.
func New(ctx *context.Context, inDim int) *Config {
	c := &Config{ctx: ctx, inDim: inDim}
	n := context.GetParamOr(ctx, ParamNumFrequencies, 10)
	if inDim > 0 {
		c.numFreqs = make([]int, inDim)
		for ii := range c.numFreqs {
			c.numFreqs[ii] = n
		}
	}
	return c
}

// NumFrequencies sets the number of frequencies of each input channel.
// If only one value is given, it's used for all channels.
func (c *Config) NumFrequencies(numFreqs ...int) *Config {
	if len(numFreqs) == 1 && c.inDim > 1 {
		n := numFreqs[0]
		numFreqs = make([]int, c.inDim)
		for ii := range numFreqs {
			numFreqs[ii] = n
		}
	}
	c.numFreqs = numFreqs
	return c
}

// IncludeInputs sets whether the raw inputs are prepended to the encoding. Default is false.
func (c *Config) IncludeInputs(include bool) *Config {
	c.includeInputs = include
	return c
}

// Trainable sets whether the frequency matrix is trained. Default is false.
func (c *Config) Trainable(trainable bool) *Config {
	c.trainable = trainable
	return c
}

// Done validates the configuration and creates the variable "frequencies", shaped [inDim, Σ n_i].
func (c *Config) Done() (*Encoding, error) {
	if c.inDim < 1 {
		return nil, configerr.Errorf("posenc: inDim must be >= 1, got %d", c.inDim)
	}
	if len(c.numFreqs) != c.inDim {
		return nil, configerr.Errorf("posenc: got %d numbers of frequencies for %d input channels",
			len(c.numFreqs), c.inDim)
	}
	total := 0
	for ii, n := range c.numFreqs {
		if n < 1 {
			return nil, configerr.Errorf("posenc: number of frequencies of channel %d must be >= 1, got %d", ii, n)
		}
		total += n
	}

	enc := &Encoding{inDim: c.inDim, numFreqs: total, includeInputs: c.includeInputs}
	err := configerr.Catch(func() {
		enc.frequencies = c.ctx.VariableWithValue("frequencies", FrequencyMatrix(c.numFreqs)).
			SetTrainable(c.trainable)
	})
	if err != nil {
		return nil, err
	}
	klog.V(2).Infof("posenc %q: %d channels, %d frequencies, output dim %d",
		c.ctx.Scope(), c.inDim, total, enc.OutputDim())
	return enc, nil
}

// MustDone is like Done, but panics on error.
func (c *Config) MustDone() *Encoding {
	enc, err := c.Done()
	if err != nil {
		panic(err)
	}
	return enc
}

// FrequencyMatrix returns the matrix [len(numFreqs), Σ numFreqs] whose columns are 2^j·e_i, for each
// channel i and j in [0, numFreqs[i]).
func FrequencyMatrix(numFreqs []int) [][]float32 {
	total := 0
	for _, n := range numFreqs {
		total += n
	}
	m := make([][]float32, len(numFreqs))
	for ii := range m {
		m[ii] = make([]float32, total)
	}
	col := 0
	for ii, n := range numFreqs {
		freq := float32(1)
		for range n {
			m[ii][col] = freq
			freq *= 2
			col++
		}
	}
	return m
}

// Encoding is a Fourier features positional encoding.
type Encoding struct {
	inDim, numFreqs int
	includeInputs   bool
	frequencies     *context.Variable
}

// FrequenciesVar returns the frequency matrix variable.
func (enc *Encoding) FrequenciesVar() *context.Variable { return enc.frequencies }

// OutputDim returns the size of the last axis of the encoding.
func (enc *Encoding) OutputDim() int {
	dim := 2 * enc.numFreqs
	if enc.includeInputs {
		dim += enc.inDim
	}
	return dim
}

// String implements fmt.Stringer.
func (enc *Encoding) String() string {
	return fmt.Sprintf("posenc.Encoding(%d->%d)", enc.inDim, enc.OutputDim())
}

// Apply encodes x, shaped [..., inDim], returning [..., OutputDim()] with the features
// [x (if included), cos(x·F), sin(x·F)].
func (enc *Encoding) Apply(x *Node) *Node {
	if x.Rank() < 1 || x.Shape().Dimensions[x.Rank()-1] != enc.inDim {
		exceptions.Panicf("posenc.Encoding: input must be shaped [..., %d], got %s", enc.inDim, x.Shape())
	}
	freqs := enc.frequencies.ValueGraph(x.Graph())
	if freqs.DType() != x.DType() {
		freqs = ConvertDType(freqs, x.DType())
	}
	mapped := nn.Dense(x, freqs, nil)
	parts := make([]*Node, 0, 3)
	if enc.includeInputs {
		parts = append(parts, x)
	}
	parts = append(parts, Cos(mapped), Sin(mapped))
	return Concatenate(parts, -1)
}
