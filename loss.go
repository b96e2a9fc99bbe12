package colorgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

type LossReduction uint16

const (
	LossReductionSum = LossReduction(iota)
	LossReductionMean
)

func reduce(n *gorgonia.Node, reduction []LossReduction) (*gorgonia.Node, error) {
	reductionDefault := LossReductionMean
	if len(reduction) != 0 {
		reductionDefault = reduction[0]
	}
	switch reductionDefault {
	case LossReductionSum:
		return gorgonia.Sum(n)
	case LossReductionMean:
		return gorgonia.Mean(n)
	default:
		return nil, fmt.Errorf("Reduction type %d is not supported", reductionDefault)
	}
}

// SigmoidCrossEntropyWithLogits Binary cross entropy computed on logits instead of probabilities.
// For logits X and labels Z it is: softplus(X) - X*Z, which equals -Z*log(sigmoid(X)) - (1-Z)*log(1-sigmoid(X))
// Default reduction is 'mean'
func SigmoidCrossEntropyWithLogits(logits, labels *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	softplus, err := gorgonia.Softplus(logits)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(1+exp(X))")
	}
	hprod, err := gorgonia.HadamardProd(logits, labels)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X.*Z)")
	}
	sub, err := gorgonia.Sub(softplus, hprod)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x-y)")
	}
	return reduce(sub, reduction)
}

// L1Loss See ref. https://en.wikipedia.org/wiki/Least_absolute_deviations
// Default reduction is 'mean'
func L1Loss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	sub, err := gorgonia.Sub(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	abs, err := gorgonia.Abs(sub)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do |x|")
	}
	return reduce(abs, reduction)
}

// constantLike Creates node of the same shape as provided one filled with value. It's not learnable
func constantLike(n *gorgonia.Node, name string, value float64) *gorgonia.Node {
	return gorgonia.NewTensor(n.Graph(), n.Dtype(), n.Dims(), gorgonia.WithShape(n.Shape()...), gorgonia.WithName(name), gorgonia.WithInit(gorgonia.ValuesOf(value)))
}
