package colorgan_go

import (
	"fmt"
	"math"

	"github.com/LdDl/colorgan-go/colorspace"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// abToleranceFactor Ratio of a/b tolerance to L tolerance of pixelwise accuracy
const abToleranceFactor = 2.2

// PixelwiseAccuracy Share of pixels whose colors are close enough. Both batches are in natural units of space.
// Colors are compared in rounded L*a*b*: pixel matches when |ΔL| <= thresh, |Δa| <= 2.2*thresh and |Δb| <= 2.2*thresh
func PixelwiseAccuracy(expected, generated *tensor.Dense, space colorspace.Space, thresh float64) (float64, error) {
	if !expected.Shape().Eq(generated.Shape()) {
		return 0, fmt.Errorf("Batches must have same shape, but got %v and %v", expected.Shape(), generated.Shape())
	}
	if expected.Shape().Dims() != 4 || expected.Shape()[1] != 3 {
		return 0, fmt.Errorf("Batches must be [batch, 3, height, width], but got %v", expected.Shape())
	}
	realLab, err := toLAB(expected, space)
	if err != nil {
		return 0, errors.Wrap(err, "Can't convert expected batch")
	}
	fakeLab, err := toLAB(generated, space)
	if err != nil {
		return 0, errors.Wrap(err, "Can't convert generated batch")
	}
	r := realLab.Float64s()
	f := fakeLab.Float64s()
	shp := expected.Shape()
	batch, plane := shp[0], shp[2]*shp[3]
	if batch*plane == 0 {
		return 0, fmt.Errorf("Batches are empty")
	}
	abThresh := abToleranceFactor * thresh
	matched := 0
	for b := 0; b < batch; b++ {
		base := b * 3 * plane
		for i := 0; i < plane; i++ {
			dl := math.Abs(math.Round(r[base+i]) - math.Round(f[base+i]))
			da := math.Abs(math.Round(r[base+plane+i]) - math.Round(f[base+plane+i]))
			db := math.Abs(math.Round(r[base+2*plane+i]) - math.Round(f[base+2*plane+i]))
			if dl <= thresh && da <= abThresh && db <= abThresh {
				matched++
			}
		}
	}
	return float64(matched) / float64(batch*plane), nil
}

func toLAB(t *tensor.Dense, space colorspace.Space) (*tensor.Dense, error) {
	if space == colorspace.LAB {
		return t, nil
	}
	return colorspace.RGBToLAB(t)
}

// LossRecord Losses observed at some step of training
type LossRecord struct {
	Step    int64
	Epoch   int
	DisReal float64
	DisFake float64
	Gen     float64
}

// LossHistory Losses observed at logging steps
type LossHistory []LossRecord

// Mean Returns average of records. Step and epoch are the ones of the last record
func (h LossHistory) Mean() LossRecord {
	mean := LossRecord{}
	if len(h) == 0 {
		return mean
	}
	for _, r := range h {
		mean.DisReal += r.DisReal
		mean.DisFake += r.DisFake
		mean.Gen += r.Gen
	}
	n := float64(len(h))
	mean.DisReal /= n
	mean.DisFake /= n
	mean.Gen /= n
	mean.Step = h[len(h)-1].Step
	mean.Epoch = h[len(h)-1].Epoch
	return mean
}

// ForEpoch Returns records of provided epoch
func (h LossHistory) ForEpoch(epoch int) LossHistory {
	records := make(LossHistory, 0)
	for _, r := range h {
		if r.Epoch == epoch {
			records = append(records, r)
		}
	}
	return records
}
