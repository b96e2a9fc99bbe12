// Package colorspace converts batches of images between RGB, grayscale and CIE L*a*b*.
//
// Batches are *tensor.Dense of float64 in [batch, channels, height, width] layout.
// RGB values are in [0, 1], L is in [0, 100], a and b are roughly in [-110, 110].
package colorspace

import (
	"fmt"
	"image"
	"math"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Space is a color space of model's targets.
type Space int

const (
	RGB Space = iota
	LAB
)

func (s Space) String() string {
	switch s {
	case RGB:
		return "rgb"
	case LAB:
		return "lab"
	default:
		return fmt.Sprintf("Space(%d)", int(s))
	}
}

// Parse returns the Space for its name, case-insensitive.
func Parse(name string) (Space, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "rgb":
		return RGB, nil
	case "lab":
		return LAB, nil
	default:
		return RGB, errors.Errorf("Unknown color space '%s', it must be \"rgb\" or \"lab\"", name)
	}
}

const (
	// go-colorful keeps L*a*b* scaled down by 100.
	labScale = 100.0
	// abRange is the half-width of the a and b channels.
	abRange = 110.0
)

// Luma weights of ITU-R BT.601.
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// batchData returns the backing data of a 4D float64 tensor with the expected number of channels.
func batchData(t *tensor.Dense, channels int) ([]float64, tensor.Shape, error) {
	if t == nil {
		return nil, nil, errors.New("Tensor is nil")
	}
	shp := t.Shape()
	if shp.Dims() != 4 {
		return nil, nil, errors.Errorf("Tensor must have shape [batch, channels, height, width], but got %v", shp)
	}
	if channels > 0 && shp[1] != channels {
		return nil, nil, errors.Errorf("Tensor must have %d channels, but got shape %v", channels, shp)
	}
	if t.Dtype() != tensor.Float64 {
		return nil, nil, errors.Errorf("Tensor must be float64, but got %v", t.Dtype())
	}
	if !t.IsMaterializable() {
		return t.Float64s(), shp, nil
	}
	mat, ok := t.Materialize().(*tensor.Dense)
	if !ok {
		return nil, nil, errors.New("Can't materialize tensor")
	}
	return mat.Float64s(), shp, nil
}

// RGBToGray converts [B, 3, H, W] RGB batch to [B, 1, H, W] luma.
func RGBToGray(rgb *tensor.Dense) (*tensor.Dense, error) {
	src, shp, err := batchData(rgb, 3)
	if err != nil {
		return nil, errors.Wrap(err, "Can't convert RGB to grayscale")
	}
	batch, plane := shp[0], shp[2]*shp[3]
	dst := make([]float64, batch*plane)
	for b := 0; b < batch; b++ {
		r := src[b*3*plane : b*3*plane+plane]
		g := src[b*3*plane+plane : b*3*plane+2*plane]
		bl := src[b*3*plane+2*plane : b*3*plane+3*plane]
		out := dst[b*plane : (b+1)*plane]
		for i := range out {
			out[i] = lumaR*r[i] + lumaG*g[i] + lumaB*bl[i]
		}
	}
	return tensor.New(tensor.WithShape(batch, 1, shp[2], shp[3]), tensor.WithBacking(dst)), nil
}

// RGBToLAB converts [B, 3, H, W] sRGB batch to L*a*b* under D65.
func RGBToLAB(rgb *tensor.Dense) (*tensor.Dense, error) {
	src, shp, err := batchData(rgb, 3)
	if err != nil {
		return nil, errors.Wrap(err, "Can't convert RGB to LAB")
	}
	dst := make([]float64, len(src))
	forEachPixel(shp, func(c0, c1, c2 int) {
		l, a, b := colorful.Color{R: src[c0], G: src[c1], B: src[c2]}.Lab()
		dst[c0], dst[c1], dst[c2] = l*labScale, a*labScale, b*labScale
	})
	return tensor.New(tensor.WithShape(shp.Clone()...), tensor.WithBacking(dst)), nil
}

// LABToRGB converts [B, 3, H, W] L*a*b* batch back to sRGB, clamping out of gamut colors.
func LABToRGB(lab *tensor.Dense) (*tensor.Dense, error) {
	src, shp, err := batchData(lab, 3)
	if err != nil {
		return nil, errors.Wrap(err, "Can't convert LAB to RGB")
	}
	dst := make([]float64, len(src))
	forEachPixel(shp, func(c0, c1, c2 int) {
		c := colorful.Lab(src[c0]/labScale, src[c1]/labScale, src[c2]/labScale).Clamped()
		dst[c0], dst[c1], dst[c2] = c.R, c.G, c.B
	})
	return tensor.New(tensor.WithShape(shp.Clone()...), tensor.WithBacking(dst)), nil
}

// forEachPixel calls fn with indices of the three channel values of every pixel.
func forEachPixel(shp tensor.Shape, fn func(c0, c1, c2 int)) {
	batch, plane := shp[0], shp[2]*shp[3]
	for b := 0; b < batch; b++ {
		base := b * 3 * plane
		for i := 0; i < plane; i++ {
			fn(base+i, base+plane+i, base+2*plane+i)
		}
	}
}

// Preprocess maps a batch in natural units of space to [-1, 1].
// Single channel batches are treated as grayscale in [0, 1].
func Preprocess(t *tensor.Dense, space Space) (*tensor.Dense, error) {
	return mapChannels(t, space, func(channel int, gray bool, v float64) float64 {
		switch {
		case gray, space == RGB:
			return v*2 - 1
		case channel == 0:
			return v/50 - 1
		default:
			return v / abRange
		}
	})
}

// Postprocess is the inverse of Preprocess.
func Postprocess(t *tensor.Dense, space Space) (*tensor.Dense, error) {
	return mapChannels(t, space, func(channel int, gray bool, v float64) float64 {
		switch {
		case gray, space == RGB:
			return (v + 1) / 2
		case channel == 0:
			return (v + 1) * 50
		default:
			return v * abRange
		}
	})
}

func mapChannels(t *tensor.Dense, space Space, fn func(channel int, gray bool, v float64) float64) (*tensor.Dense, error) {
	src, shp, err := batchData(t, 0)
	if err != nil {
		return nil, err
	}
	channels := shp[1]
	if channels != 1 && channels != 3 {
		return nil, errors.Errorf("Tensor must have 1 or 3 channels, but got shape %v", shp)
	}
	plane := shp[2] * shp[3]
	dst := make([]float64, len(src))
	for i, v := range src {
		channel := (i / plane) % channels
		dst[i] = fn(channel, channels == 1, v)
	}
	return tensor.New(tensor.WithShape(shp.Clone()...), tensor.WithBacking(dst)), nil
}

// ToRGB converts a batch in natural units of space to RGB. Grayscale batches are returned as is.
func ToRGB(t *tensor.Dense, space Space) (*tensor.Dense, error) {
	if t.Shape().Dims() == 4 && t.Shape()[1] == 3 && space == LAB {
		return LABToRGB(t)
	}
	return t, nil
}

// ToImages renders every image of a batch in natural units of space.
func ToImages(t *tensor.Dense, space Space) ([]*image.NRGBA, error) {
	rgb, err := ToRGB(t, space)
	if err != nil {
		return nil, err
	}
	src, shp, err := batchData(rgb, 0)
	if err != nil {
		return nil, errors.Wrap(err, "Can't render images")
	}
	batch, channels, height, width := shp[0], shp[1], shp[2], shp[3]
	if channels != 1 && channels != 3 {
		return nil, errors.Errorf("Tensor must have 1 or 3 channels, but got shape %v", shp)
	}
	plane := height * width
	images := make([]*image.NRGBA, batch)
	for b := 0; b < batch; b++ {
		img := image.NewNRGBA(image.Rect(0, 0, width, height))
		base := b * channels * plane
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				pos := y*img.Stride + x*4
				for c := 0; c < 3; c++ {
					channel := c
					if channels == 1 {
						channel = 0
					}
					img.Pix[pos+c] = toByte(src[base+channel*plane+y*width+x])
				}
				img.Pix[pos+3] = 255
			}
		}
		images[b] = img
	}
	return images, nil
}

func toByte(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}
