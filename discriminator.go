package colorgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// DiscriminatorNet Abstraction for discriminator part of GAN. It's simple convolutional neural network actually: output is a map of logits, one per image patch.
type DiscriminatorNet struct {
	private *Network
}

// Discriminator Constructor for DiscriminatorNet
func Discriminator(name string, Layers ...*Layer) *DiscriminatorNet {
	return &DiscriminatorNet{private: &Network{
		Name:   name,
		Layers: Layers,
	}}
}

// DefineDiscriminator Defines discriminator's learnables on graph g
//
// inChannels - number of channels of input: grayscale channel plus color channels
//
func DefineDiscriminator(g *gorgonia.ExprGraph, name string, inChannels int, kernels []KernelSpec) (*DiscriminatorNet, error) {
	if len(kernels) == 0 {
		return nil, fmt.Errorf("Discriminator must have one layer atleast")
	}
	layers := make([]*Layer, 0, len(kernels)+1)
	channels := inChannels
	for i, spec := range kernels {
		layers = append(layers, NewConvLayer(g, fmt.Sprintf("%s_%d", name, i), channels, spec, false, i != 0, LeakyRectify))
		channels = spec.Filters
	}
	// Logits
	layers = append(layers, NewConvLayer(g, fmt.Sprintf("%s_%d", name, len(kernels)), channels, KernelSpec{Filters: 1, Stride: 1}, false, false, NoActivation))
	return Discriminator(name, layers...), nil
}

// Out Returns reference to output node
func (net *DiscriminatorNet) Out() *gorgonia.Node {
	return net.private.out
}

// Learnables Returns learnables nodes
func (net *DiscriminatorNet) Learnables() gorgonia.Nodes {
	return net.private.Learnables()
}

// Params Returns learnables nodes keyed by stable names
func (net *DiscriminatorNet) Params() map[string]*gorgonia.Node {
	return net.private.Params()
}

// Fwd Initializates feedforward for provided input
//
// input - Input node
//
func (net *DiscriminatorNet) Fwd(input *gorgonia.Node) error {
	if err := net.private.Fwd(input); err != nil {
		return errors.Wrap(err, "[Discriminator]")
	}
	return nil
}

// Reuse Applies discriminator with the same learnables to another input
//
// input - Input node
// scope - unique prefix for names of created nodes
//
func (net *DiscriminatorNet) Reuse(input *gorgonia.Node, scope string) (*gorgonia.Node, error) {
	out, err := net.private.Reuse(input, scope)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator]")
	}
	return out, nil
}
