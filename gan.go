package colorgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// GAN Conditional GAN: discriminator judges generator's output paired with generator's input.
//
// generatorPart - reference to Generator
// discriminatorPart - reference to Discriminator
// modifiedDiscriminator - copy of structure of Discriminator defined on Generator's graph. Its learnables share values with Discriminator's learnables and are ignored during the Generator training
//
type GAN struct {
	generatorPart     *GeneratorNet
	discriminatorPart *DiscriminatorNet

	modifiedDiscriminator *DiscriminatorNet

	out           *gorgonia.Node
	learnablesGen gorgonia.Nodes
}

// NewGAN Defines GAN on the graph where Generator is defined. Discriminator must be feedforwarded on its own graph already
func NewGAN(g *gorgonia.ExprGraph, definedGenerator *GeneratorNet, definedDiscriminator *DiscriminatorNet) (*GAN, error) {
	if definedDiscriminator.Out() == nil {
		return nil, fmt.Errorf("Discriminator must be feedforwarded before GAN is defined")
	}
	layers := definedDiscriminator.private.Layers
	definedGAN := GAN{
		generatorPart:         definedGenerator,
		discriminatorPart:     definedDiscriminator,
		modifiedDiscriminator: Discriminator("gan_"+definedDiscriminator.private.Name, make([]*Layer, len(layers))...),
		learnablesGen:         definedGenerator.Learnables(),
	}
	// Discriminator part for GAN
	for i, l := range layers {
		if l == nil {
			return nil, fmt.Errorf("Discriminator's Layer %d is nil", i)
		}
		copied, err := shareLayer(g, l, "_gan")
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't copy Discriminator's layer #%d", i))
		}
		definedGAN.modifiedDiscriminator.private.Layers[i] = copied
	}
	return &definedGAN, nil
}

// Out Returns reference to output node (logits of discriminator part)
func (net *GAN) Out() *gorgonia.Node {
	return net.out
}

// GeneratorOut Returns reference to output node of generator part
func (net *GAN) GeneratorOut() *gorgonia.Node {
	return net.generatorPart.Out()
}

// GeneratorLearnables Returns learnables nodes of generator part
func (net *GAN) GeneratorLearnables() gorgonia.Nodes {
	return net.learnablesGen
}

// Learnables Returns learnables nodes of generator part and nodes of discriminator part. Only generator ones should be updated by solver
func (net *GAN) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, len(net.learnablesGen)+3*len(net.modifiedDiscriminator.private.Layers))
	learnables = append(learnables, net.learnablesGen...)
	learnables = append(learnables, net.modifiedDiscriminator.Learnables()...)
	return learnables
}

// Fwd Initializates feedforward for discriminator part of GAN
//
// condition - node holding Generator's input. Discriminator part receives it concatenated with Generator's output along channels axis
//
func (net *GAN) Fwd(condition *gorgonia.Node) error {
	if net.generatorPart.Out() == nil {
		return fmt.Errorf("Generator must be feedforwarded before GAN")
	}
	pair, err := gorgonia.Concat(1, condition, net.generatorPart.Out())
	if err != nil {
		return errors.Wrap(err, "Can't concatenate Generator's input and output [GAN]")
	}
	gorgonia.WithName("gan_discriminator_input")(pair)
	if err := net.modifiedDiscriminator.Fwd(pair); err != nil {
		return errors.Wrap(err, "[GAN]")
	}
	net.out = net.modifiedDiscriminator.Out()
	return nil
}
