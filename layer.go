package colorgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer Convolution block: [upsample] => conv => [batch normalization] => [dropout]. Activation is applied by Network
type Layer struct {
	WeightNode *gorgonia.Node
	ScaleNode  *gorgonia.Node
	ShiftNode  *gorgonia.Node
	Activation ActivationFunc
	Type       LayerType

	KernelHeight int
	KernelWidth  int
	Padding      []int
	Stride       []int
	Dilation     []int

	BatchNorm bool
	Dropout   float64
}

type LayerType uint16

const (
	LayerConvolutional = LayerType(iota)
	// LayerUpsampleConvolutional Nearest neighbour upsampling by factor of 2 followed by stride-1 convolution
	LayerUpsampleConvolutional
)

const (
	batchNormMomentum = 0.9
	batchNormEpsilon  = 1e-5
	weightsStdDev     = 0.02
)

// Fwd Initializates feedforward for provided input. Output is not activated yet.
//
// input - Input node
// name - prefix for names of created nodes. Must be unique inside of graph
//
func (l *Layer) Fwd(input *gorgonia.Node, name string) (*gorgonia.Node, error) {
	if l.WeightNode == nil {
		return nil, fmt.Errorf("Layer '%s' has nil weight node", name)
	}
	x := input
	var err error
	switch l.Type {
	case LayerConvolutional:
		break
	case LayerUpsampleConvolutional:
		x, err = gorgonia.Upsample2D(x, 2)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't upsample input of layer '%s'", name))
		}
	default:
		return nil, fmt.Errorf("Layer's type '%d' (uint16) is not handled", l.Type)
	}
	conv, err := gorgonia.Conv2d(x, l.WeightNode, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride, l.Dilation)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't convolve[2D] input by kernel of layer '%s'", name))
	}
	gorgonia.WithName(name + "_conv")(conv)
	out := conv
	if l.BatchNorm {
		if l.ScaleNode == nil || l.ShiftNode == nil {
			return nil, fmt.Errorf("Layer '%s' has batch normalization enabled, but its scale or shift node is nil", name)
		}
		out, _, _, _, err = gorgonia.BatchNorm(conv, l.ScaleNode, l.ShiftNode, batchNormMomentum, batchNormEpsilon)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't normalize output of layer '%s'", name))
		}
		gorgonia.WithName(name + "_bn")(out)
	}
	if l.Dropout > 0 {
		out, err = gorgonia.Dropout(out, l.Dropout)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't apply dropout to output of layer '%s'", name))
		}
		gorgonia.WithName(name + "_dropout")(out)
	}
	return out, nil
}

// Learnables Returns learnables nodes of the layer
func (l *Layer) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 3)
	if l.WeightNode != nil {
		learnables = append(learnables, l.WeightNode)
	}
	if l.ScaleNode != nil {
		learnables = append(learnables, l.ScaleNode)
	}
	if l.ShiftNode != nil {
		learnables = append(learnables, l.ShiftNode)
	}
	return learnables
}

// NewConvLayer Creates convolution block for provided spec with weights defined on graph g
//
// name - unique name of weights node
// inChannels - number of channels of block's input
// upsample - whether block should upsample its input instead of downsampling by stride
//
func NewConvLayer(g *gorgonia.ExprGraph, name string, inChannels int, spec KernelSpec, upsample bool, batchNorm bool, activation ActivationFunc) *Layer {
	stride := spec.Stride
	layerType := LayerConvolutional
	if upsample {
		// Upsampling does the spatial work, so convolution itself keeps the size
		if spec.Stride == 2 {
			layerType = LayerUpsampleConvolutional
		}
		stride = 1
	}
	kernel, padding := kernelGeometry(stride)
	shp := tensor.Shape{spec.Filters, inChannels, kernel, kernel}
	w := gorgonia.NewTensor(g, Dtype, 4, gorgonia.WithShape(shp...), gorgonia.WithName(name+"_w"), gorgonia.WithInit(gorgonia.Gaussian(0, weightsStdDev)))
	layer := &Layer{
		WeightNode:   w,
		Type:         layerType,
		Activation:   activation,
		KernelHeight: kernel,
		KernelWidth:  kernel,
		Padding:      []int{padding, padding},
		Stride:       []int{stride, stride},
		Dilation:     []int{1, 1},
		BatchNorm:    batchNorm,
		Dropout:      spec.Dropout,
	}
	if batchNorm {
		// Per-channel parameters, broadcasted over batch and spatial dimensions
		layer.ScaleNode = gorgonia.NewTensor(g, Dtype, 4, gorgonia.WithShape(1, spec.Filters, 1, 1), gorgonia.WithName(name+"_gamma"), gorgonia.WithInit(gorgonia.Ones()))
		layer.ShiftNode = gorgonia.NewTensor(g, Dtype, 4, gorgonia.WithShape(1, spec.Filters, 1, 1), gorgonia.WithName(name+"_beta"), gorgonia.WithInit(gorgonia.Zeroes()))
	}
	return layer
}

// shareLayer Copies layer onto graph g. New nodes are bound to the same values as the original ones, so updates of the original weights are visible through the copy
func shareLayer(g *gorgonia.ExprGraph, l *Layer, suffix string) (*Layer, error) {
	if l.WeightNode == nil {
		return nil, fmt.Errorf("Can't share layer with nil weight node")
	}
	if l.BatchNorm && (l.ScaleNode == nil || l.ShiftNode == nil) {
		return nil, fmt.Errorf("Can't share layer '%s' with nil batch normalization nodes", l.WeightNode.Name())
	}
	copied := &Layer{
		Activation:   l.Activation,
		Type:         l.Type,
		KernelHeight: l.KernelHeight,
		KernelWidth:  l.KernelWidth,
		Padding:      l.Padding,
		Stride:       l.Stride,
		Dilation:     l.Dilation,
		BatchNorm:    l.BatchNorm,
		Dropout:      l.Dropout,
	}
	copied.WeightNode = sharedNode(g, l.WeightNode, suffix)
	if l.ScaleNode != nil {
		copied.ScaleNode = sharedNode(g, l.ScaleNode, suffix)
	}
	if l.ShiftNode != nil {
		copied.ShiftNode = sharedNode(g, l.ShiftNode, suffix)
	}
	return copied, nil
}

func sharedNode(g *gorgonia.ExprGraph, n *gorgonia.Node, suffix string) *gorgonia.Node {
	return gorgonia.NewTensor(g, n.Dtype(), n.Dims(), gorgonia.WithShape(n.Shape()...), gorgonia.WithName(n.Name()+suffix), gorgonia.WithValue(n.Value()))
}
