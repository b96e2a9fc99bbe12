package colorgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// GeneratorNet Encoder-decoder (U-Net) generator.
//
// Encoder - downsampling layers
// Decoder - upsampling layers. Output of i-th decoder layer is concatenated with output of encoder layer #(len(Encoder)-2-i)
// Output - final layer mapping to color channels
// out - alias to activated output of Output layer
//
type GeneratorNet struct {
	Name    string
	Encoder []*Layer
	Decoder []*Layer
	Output  *Layer
	out     *gorgonia.Node
}

// DefineGenerator Defines generator's learnables on graph g
//
// inChannels - number of channels of input (grayscale) images
// outChannels - number of channels of generated (color) images
//
func DefineGenerator(g *gorgonia.ExprGraph, name string, inChannels, outChannels int, encoder, decoder []KernelSpec) (*GeneratorNet, error) {
	if len(encoder) == 0 {
		return nil, fmt.Errorf("Generator must have one encoder layer atleast")
	}
	if len(decoder) != len(encoder)-1 {
		return nil, fmt.Errorf("Generator with %d encoder layers must have %d decoder layers, but got %d", len(encoder), len(encoder)-1, len(decoder))
	}
	net := &GeneratorNet{
		Name:    name,
		Encoder: make([]*Layer, len(encoder)),
		Decoder: make([]*Layer, len(decoder)),
	}
	channels := inChannels
	for i, spec := range encoder {
		// No normalization right after the input
		net.Encoder[i] = NewConvLayer(g, fmt.Sprintf("%s_encoder_%d", name, i), channels, spec, false, i != 0, LeakyRectify)
		channels = spec.Filters
	}
	for i, spec := range decoder {
		net.Decoder[i] = NewConvLayer(g, fmt.Sprintf("%s_decoder_%d", name, i), channels, spec, true, true, Rectify)
		channels = spec.Filters + encoder[len(encoder)-2-i].Filters
	}
	net.Output = &Layer{
		WeightNode:   gorgonia.NewTensor(g, Dtype, 4, gorgonia.WithShape(outChannels, channels, 1, 1), gorgonia.WithName(name+"_output_w"), gorgonia.WithInit(gorgonia.Gaussian(0, weightsStdDev))),
		Type:         LayerConvolutional,
		Activation:   Tanh,
		KernelHeight: 1,
		KernelWidth:  1,
		Padding:      []int{0, 0},
		Stride:       []int{1, 1},
		Dilation:     []int{1, 1},
	}
	return net, nil
}

// Out Returns reference to output node
func (net *GeneratorNet) Out() *gorgonia.Node {
	return net.out
}

// Layers Returns all layers: encoder, decoder and output ones
func (net *GeneratorNet) Layers() []*Layer {
	layers := make([]*Layer, 0, len(net.Encoder)+len(net.Decoder)+1)
	layers = append(layers, net.Encoder...)
	layers = append(layers, net.Decoder...)
	if net.Output != nil {
		layers = append(layers, net.Output)
	}
	return layers
}

// Learnables Returns learnables nodes
func (net *GeneratorNet) Learnables() gorgonia.Nodes {
	return (&Network{Layers: net.Layers()}).Learnables()
}

// Params Returns learnables nodes keyed by stable names
func (net *GeneratorNet) Params() map[string]*gorgonia.Node {
	return (&Network{Name: net.Name, Layers: net.Layers()}).Params()
}

// Fwd Initializates feedforward for provided input
//
// input - Input node [batch, inChannels, height, width]
//
func (net *GeneratorNet) Fwd(input *gorgonia.Node) error {
	if len(net.Encoder) == 0 {
		return fmt.Errorf("Generator must have one encoder layer atleast")
	}
	if net.Output == nil {
		return fmt.Errorf("Generator's output layer is nil")
	}
	skips := make([]*gorgonia.Node, len(net.Encoder))
	last := input
	for i, l := range net.Encoder {
		name := fmt.Sprintf("%s_encoder_%d", net.Name, i)
		nonActivated, err := l.Fwd(last, name)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("[Generator, Encoder layer #%d] Can't feedforward input before activation", i))
		}
		activated, err := l.Activation(nonActivated)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't apply activation function to non-activated output of Generator's encoder layer #%d", i))
		}
		gorgonia.WithName(name + "_activated")(activated)
		skips[i] = activated
		last = activated
	}
	for i, l := range net.Decoder {
		name := fmt.Sprintf("%s_decoder_%d", net.Name, i)
		nonActivated, err := l.Fwd(last, name)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("[Generator, Decoder layer #%d] Can't feedforward input before activation", i))
		}
		activated, err := l.Activation(nonActivated)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't apply activation function to non-activated output of Generator's decoder layer #%d", i))
		}
		gorgonia.WithName(name + "_activated")(activated)
		skipIdx := len(net.Encoder) - 2 - i
		last, err = gorgonia.Concat(1, activated, skips[skipIdx])
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't concatenate output of Generator's decoder layer #%d with output of encoder layer #%d", i, skipIdx))
		}
		gorgonia.WithName(name + "_skip")(last)
	}
	nonActivated, err := net.Output.Fwd(last, net.Name+"_output")
	if err != nil {
		return errors.Wrap(err, "[Generator, Output layer] Can't feedforward input before activation")
	}
	out, err := net.Output.Activation(nonActivated)
	if err != nil {
		return errors.Wrap(err, "Can't apply activation function to non-activated output of Generator's output layer")
	}
	gorgonia.WithName(net.Name + "_out")(out)
	net.out = out
	return nil
}
