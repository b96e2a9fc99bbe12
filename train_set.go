package colorgan_go

import (
	"fmt"

	"github.com/LdDl/colorgan-go/colorspace"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// TrainSet Batch prepared for feeding networks
//
// Color - images in natural units of color space (RGB in [0, 1] or L*a*b*), [batch, 3, size, size]
// Gray - generator's input normalized to [-1, 1], [batch, 1, size, size]
// Target - Color normalized to [-1, 1]
// DataLength - number of images in batch
//
type TrainSet struct {
	Color      *tensor.Dense
	Gray       *tensor.Dense
	Target     *tensor.Dense
	DataLength int
}

// NewTrainSet Prepares RGB batch [batch, 3, size, size] with values in [0, 1] for provided color space
func NewTrainSet(rgb *tensor.Dense, space colorspace.Space) (*TrainSet, error) {
	if rgb == nil || rgb.Shape().Dims() != 4 {
		return nil, fmt.Errorf("Batch must be [batch, 3, height, width] tensor")
	}
	gray, err := colorspace.RGBToGray(rgb)
	if err != nil {
		return nil, errors.Wrap(err, "Can't convert batch to grayscale")
	}
	gray, err = colorspace.Preprocess(gray, space)
	if err != nil {
		return nil, errors.Wrap(err, "Can't normalize grayscale batch")
	}
	color := rgb
	if space == colorspace.LAB {
		color, err = colorspace.RGBToLAB(rgb)
		if err != nil {
			return nil, errors.Wrap(err, "Can't convert batch to LAB")
		}
	}
	target, err := colorspace.Preprocess(color, space)
	if err != nil {
		return nil, errors.Wrap(err, "Can't normalize batch")
	}
	return &TrainSet{
		Color:      color,
		Gray:       gray,
		Target:     target,
		DataLength: rgb.Shape()[0],
	}, nil
}
