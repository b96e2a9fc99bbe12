package colorspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// twoPixels is a [1, 3, 1, 2] batch: pure red and white.
func twoPixels() *tensor.Dense {
	return tensor.New(tensor.WithShape(1, 3, 1, 2), tensor.WithBacking([]float64{
		1, 1, // R
		0, 1, // G
		0, 1, // B
	}))
}

func TestParse(t *testing.T) {
	s, err := Parse("LAB")
	require.NoError(t, err)
	assert.Equal(t, LAB, s)
	s, err = Parse(" rgb ")
	require.NoError(t, err)
	assert.Equal(t, RGB, s)
	assert.Equal(t, "lab", LAB.String())
	_, err = Parse("hsv")
	assert.EqualError(t, err, `Unknown color space 'hsv', it must be "rgb" or "lab"`)
}

func TestRGBToGray(t *testing.T) {
	gray, err := RGBToGray(twoPixels())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 2}, []int(gray.Shape()))
	assert.InDeltaSlice(t, []float64{0.299, 1}, gray.Float64s(), 1e-9)

	_, err = RGBToGray(tensor.New(tensor.WithShape(1, 1, 1, 2), tensor.WithBacking([]float64{0, 1})))
	assert.Error(t, err)
}

func TestLABRoundTrip(t *testing.T) {
	lab, err := RGBToLAB(twoPixels())
	require.NoError(t, err)
	data := lab.Float64s()
	// White: L=100, a=b=0
	assert.InDelta(t, 100, data[1], 0.01)
	assert.InDelta(t, 0, data[3], 0.05)
	assert.InDelta(t, 0, data[5], 0.05)
	// Red: L about 53, a about 80, b about 67
	assert.InDelta(t, 53.2, data[0], 0.5)
	assert.InDelta(t, 80.1, data[2], 0.5)
	assert.InDelta(t, 67.2, data[4], 0.5)

	rgb, err := LABToRGB(lab)
	require.NoError(t, err)
	assert.InDeltaSlice(t, twoPixels().Float64s(), rgb.Float64s(), 1e-4)
}

func TestPreprocessRange(t *testing.T) {
	lab := tensor.New(tensor.WithShape(1, 3, 1, 2), tensor.WithBacking([]float64{
		0, 100, // L
		-110, 110, // a
		0, 55, // b
	}))
	norm, err := Preprocess(lab, LAB)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-1, 1, -1, 1, 0, 0.5}, norm.Float64s(), 1e-12)

	back, err := Postprocess(norm, LAB)
	require.NoError(t, err)
	assert.InDeltaSlice(t, lab.Float64s(), back.Float64s(), 1e-9)

	norm, err = Preprocess(twoPixels(), RGB)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 1, -1, 1, -1, 1}, norm.Float64s(), 1e-12)

	// Grayscale is always normalized like RGB
	gray := tensor.New(tensor.WithShape(1, 1, 1, 2), tensor.WithBacking([]float64{0, 0.5}))
	norm, err = Preprocess(gray, LAB)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-1, 0}, norm.Float64s(), 1e-12)
}

func TestToImages(t *testing.T) {
	images, err := ToImages(twoPixels(), RGB)
	require.NoError(t, err)
	require.Len(t, images, 1)
	img := images[0]
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, []uint8{255, 0, 0, 255, 255, 255, 255, 255}, img.Pix)

	lab, err := RGBToLAB(twoPixels())
	require.NoError(t, err)
	images, err = ToImages(lab, LAB)
	require.NoError(t, err)
	assert.Equal(t, []uint8{255, 0, 0, 255, 255, 255, 255, 255}, images[0].Pix)

	gray := tensor.New(tensor.WithShape(1, 1, 1, 2), tensor.WithBacking([]float64{0, 2}))
	images, err = ToImages(gray, LAB)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 0, 255, 255, 255, 255, 255}, images[0].Pix)
}
