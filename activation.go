package colorgan_go

import (
	"gorgonia.org/gorgonia"
)

// ActivationFunc Just an alias to Gorgonia'a api_gen.go - https://github.com/gorgonia/gorgonia/blob/master/api_gen.go#L1
type ActivationFunc func(a *gorgonia.Node, opts ...ActivationOptions) (*gorgonia.Node, error)

func NoActivation(a *gorgonia.Node, opts ...ActivationOptions) (*gorgonia.Node, error) { return a, nil }
func Tanh(a *gorgonia.Node, opts ...ActivationOptions) (*gorgonia.Node, error)         { return gorgonia.Tanh(a) }
func Rectify(a *gorgonia.Node, opts ...ActivationOptions) (*gorgonia.Node, error)      { return gorgonia.Rectify(a) }

// LeakyRectify LeakyReLU. Default slope for negative values is 0.2
func LeakyRectify(a *gorgonia.Node, opts ...ActivationOptions) (*gorgonia.Node, error) {
	for i := range opts {
		// First i-th option with provided non-zero 'Alpha' would be considered for use.
		if opts[i].Alpha != 0 {
			return gorgonia.LeakyRelu(a, opts[i].Alpha)
		}
	}
	return gorgonia.LeakyRelu(a, 0.2)
}

// ActivationOptions Struct for holding options for certain activation functions.
type ActivationOptions struct {
	Alpha float64
}
