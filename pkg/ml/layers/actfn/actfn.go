// Copyright 2026 The VINR Authors. SPDX-License-Identifier: Apache-2.0

// Package actfn provides the activation functions used by the implicit neural representation models,
// selected by name.
//
// Most are stateless and simply wrap package activations, but some (swish) own learnable
// parameters, so activations are created with New in a context scope before being applied.
package actfn

import (
	"fmt"
	"slices"
	"strings"

	"github.com/audioinr/vinr/pkg/support/configerr"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
)

// ParamActivation is the context hyperparameter with the default activation name.
// It's the same key used by package activations, but it accepts the names in Names.
const ParamActivation = activations.ParamActivation

// Clip6 is the upper bound of the clipped activations (relu6, gelu6 and swish).
const Clip6 = 6.0

// Known activation names.
const (
	Relu      = "relu"
	Relu6     = "relu6"
	Leaky     = "leaky"
	Leaky01   = "leaky01"
	Gelu      = "gelu"
	Gelu6     = "gelu6"
	Sin       = "sin"
	Swish     = "swish"
	HardSwish = "hardswish"
	Softplus  = "softplus"
	Tanh      = "tanh"
	Selu      = "selu"
)

var stateless = map[string]func(x *graph.Node) *graph.Node{
	Relu:  activations.Relu,
	Relu6: func(x *graph.Node) *graph.Node { return graph.ClipScalar(x, 0, Clip6) },
	Leaky: func(x *graph.Node) *graph.Node { return activations.LeakyReluWith(x, 0.01) },
	Leaky01: func(x *graph.Node) *graph.Node {
		return activations.LeakyReluWith(x, 0.1)
	},
	Gelu:      activations.Gelu,
	Gelu6:     func(x *graph.Node) *graph.Node { return graph.MinScalar(activations.Gelu(x), Clip6) },
	Sin:       graph.Sin,
	HardSwish: activations.HardSwish,
	Softplus:  graph.Softplus,
	Tanh:      graph.Tanh,
	Selu:      activations.Selu,
}

// Names returns the sorted list of known activation names.
func Names() []string {
	names := make([]string, 0, len(stateless)+1)
	for name := range stateless {
		names = append(names, name)
	}
	names = append(names, Swish)
	slices.Sort(names)
	return names
}

// Normalize returns the canonical (lower case) activation name, or a configuration error if the name is unknown.
func Normalize(name string) (string, error) {
	canonical := strings.ToLower(strings.TrimSpace(name))
	if _, found := stateless[canonical]; found || canonical == Swish {
		return canonical, nil
	}
	return "", configerr.Errorf("actfn: unknown activation function %q, valid values are %v", name, Names())
}

// Activation is an activation function created with New.
type Activation struct {
	name string
	fn   func(x *graph.Node) *graph.Node
	beta *context.Variable
}

// New creates the activation with the given name (case-insensitive) in the context scope.
//
// For swish it creates the variable "beta", a learnable scalar initialized to 1.
// Unknown names return a configuration error, and no variables are created.
func New(ctx *context.Context, name string) (*Activation, error) {
	canonical, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	act := &Activation{name: canonical}
	if canonical != Swish {
		act.fn = stateless[canonical]
		return act, nil
	}
	err = configerr.Catch(func() {
		act.beta = ctx.VariableWithValue("beta", float32(1))
	})
	if err != nil {
		return nil, err
	}
	act.fn = act.swish
	return act, nil
}

// MustNew is like New, but panics on error.
func MustNew(ctx *context.Context, name string) *Activation {
	act, err := New(ctx, name)
	if err != nil {
		panic(err)
	}
	return act
}

// Name returns the canonical name of the activation.
func (act *Activation) Name() string { return act.name }

// String implements fmt.Stringer.
func (act *Activation) String() string { return fmt.Sprintf("actfn.Activation(%s)", act.name) }

// Beta returns the learnable variable of the swish activation, or nil for other activations.
func (act *Activation) Beta() *context.Variable { return act.beta }

// Apply the activation to x.
func (act *Activation) Apply(x *graph.Node) *graph.Node {
	return act.fn(x)
}

// swish returns x·sigmoid(β·x), clipped at Clip6.
func (act *Activation) swish(x *graph.Node) *graph.Node {
	beta := act.beta.ValueGraph(x.Graph())
	if beta.DType() != x.DType() {
		beta = graph.ConvertDType(beta, x.DType())
	}
	return graph.MinScalar(graph.Mul(x, graph.Sigmoid(graph.Mul(beta, x))), Clip6)
}
