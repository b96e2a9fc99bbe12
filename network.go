package colorgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// Network Abstraction for neural network.
//
// Name - prefix for names of nodes created by feedforward
// Layers - simple sequence of layers
// out - alias to activated output of last layer
//
type Network struct {
	Name   string
	Layers []*Layer
	out    *gorgonia.Node
}

// Out Returns reference to output node
func (net *Network) Out() *gorgonia.Node {
	return net.out
}

// Learnables Returns learnables nodes
func (net *Network) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 3*len(net.Layers))
	for _, l := range net.Layers {
		if l != nil {
			learnables = append(learnables, l.Learnables()...)
		}
	}
	return learnables
}

// Params Returns learnables nodes keyed by stable names: "<network>/<layer index>/<weight|scale|shift>"
func (net *Network) Params() map[string]*gorgonia.Node {
	params := make(map[string]*gorgonia.Node, 3*len(net.Layers))
	for i, l := range net.Layers {
		if l == nil {
			continue
		}
		if l.WeightNode != nil {
			params[fmt.Sprintf("%s/%d/weight", net.Name, i)] = l.WeightNode
		}
		if l.ScaleNode != nil {
			params[fmt.Sprintf("%s/%d/scale", net.Name, i)] = l.ScaleNode
		}
		if l.ShiftNode != nil {
			params[fmt.Sprintf("%s/%d/shift", net.Name, i)] = l.ShiftNode
		}
	}
	return params
}

// Fwd Initializates feedforward for provided input
//
// input - Input node
//
func (net *Network) Fwd(input *gorgonia.Node) error {
	out, err := net.forward(input, net.Name)
	if err != nil {
		return err
	}
	net.out = out
	return nil
}

// Reuse Applies the same layers (and the same learnables) to another input. Output of network is not changed.
//
// input - Input node
// scope - unique prefix for names of created nodes
//
func (net *Network) Reuse(input *gorgonia.Node, scope string) (*gorgonia.Node, error) {
	if net.out == nil {
		return nil, fmt.Errorf("Network '%s' must be feedforwarded once before reusing", net.Name)
	}
	return net.forward(input, scope)
}

func (net *Network) forward(input *gorgonia.Node, scope string) (*gorgonia.Node, error) {
	if scope == "" {
		scope = "network"
	}
	if len(net.Layers) == 0 {
		return nil, fmt.Errorf("Network must have one layer atleast")
	}
	lastActivatedLayer := input
	for i := range net.Layers {
		if net.Layers[i] == nil {
			return nil, fmt.Errorf("Network's layer #%d is nil", i)
		}
		// Feedforward input through i-th layer
		layerNonActivated, err := net.Layers[i].Fwd(lastActivatedLayer, fmt.Sprintf("%s_%d", scope, i))
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[Network, Layer #%d] Can't feedforward input before activation", i))
		}
		// Activate i-th layer's output
		layerActivated, err := net.Layers[i].Activation(layerNonActivated)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't apply activation function to non-activated output of Network's layer #%d", i))
		}
		gorgonia.WithName(fmt.Sprintf("%s_activated_%d", scope, i))(layerActivated)
		lastActivatedLayer = layerActivated
	}
	return lastActivatedLayer, nil
}
