package colorgan_go

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/LdDl/colorgan-go/colorspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// labBatch returns [1, 3, 2, 2] batch with the same L, a and b in every pixel
func labBatch(l, a, b float64) *tensor.Dense {
	data := make([]float64, 12)
	for i := 0; i < 4; i++ {
		data[i], data[4+i], data[8+i] = l, a, b
	}
	return tensor.New(tensor.WithShape(1, 3, 2, 2), tensor.WithBacking(data))
}

func TestPixelwiseAccuracy(t *testing.T) {
	target := labBatch(50, 10, -10)
	acc, err := PixelwiseAccuracy(target, target, colorspace.LAB, 2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, acc)

	fake := labBatch(50, 10, -10)
	data := fake.Float64s()
	data[0] += 5     // L of pixel 0 is far
	data[4+1] += 4.4 // a of pixel 1 is within 2.2*thresh
	data[8+2] -= 5   // b of pixel 2 is far
	acc, err = PixelwiseAccuracy(target, fake, colorspace.LAB, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, acc, 1e-12)

	// Values are rounded before comparison
	fake = labBatch(52.4, 10, -10)
	acc, err = PixelwiseAccuracy(target, fake, colorspace.LAB, 2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, acc)

	_, err = PixelwiseAccuracy(target, tensor.New(tensor.WithShape(1, 3, 1, 4), tensor.WithBacking(make([]float64, 12))), colorspace.LAB, 2)
	assert.Error(t, err)
}

func TestPixelwiseAccuracyRGB(t *testing.T) {
	black := tensor.New(tensor.WithShape(1, 3, 1, 2), tensor.WithBacking(make([]float64, 6)))
	fake := tensor.New(tensor.WithShape(1, 3, 1, 2), tensor.WithBacking([]float64{0, 1, 0, 1, 0, 1}))
	acc, err := PixelwiseAccuracy(black, fake, colorspace.RGB, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, acc, 1e-12)
}

func TestLossHistory(t *testing.T) {
	h := LossHistory{
		{Step: 10, Epoch: 0, DisReal: 1, DisFake: 2, Gen: 30},
		{Step: 20, Epoch: 0, DisReal: 3, DisFake: 4, Gen: 10},
		{Step: 30, Epoch: 1, DisReal: 5, DisFake: 6, Gen: 50},
	}
	mean := h.ForEpoch(0).Mean()
	assert.Equal(t, LossRecord{Step: 20, Epoch: 0, DisReal: 2, DisFake: 3, Gen: 20}, mean)
	assert.Len(t, h.ForEpoch(1), 1)
	assert.Empty(t, h.ForEpoch(2))
	assert.Equal(t, LossRecord{}, LossHistory{}.Mean())

	fname := filepath.Join(t.TempDir(), "losses.png")
	require.NoError(t, PlotLosses(h, fname))
	assert.FileExists(t, fname)
	assert.Error(t, PlotLosses(nil, fname))
}

func TestLosses(t *testing.T) {
	g := gorgonia.NewGraph()
	logits := gorgonia.NewTensor(g, Dtype, 1, gorgonia.WithShape(2), gorgonia.WithName("logits"), gorgonia.WithValue(tensor.New(tensor.WithShape(2), tensor.WithBacking([]float64{0, 2}))))
	labels := gorgonia.NewTensor(g, Dtype, 1, gorgonia.WithShape(2), gorgonia.WithName("labels"), gorgonia.WithValue(tensor.New(tensor.WithShape(2), tensor.WithBacking([]float64{1, 0}))))
	target := gorgonia.NewTensor(g, Dtype, 1, gorgonia.WithShape(2), gorgonia.WithName("target"), gorgonia.WithValue(tensor.New(tensor.WithShape(2), tensor.WithBacking([]float64{1, -1}))))

	sce, err := SigmoidCrossEntropyWithLogits(logits, labels)
	require.NoError(t, err)
	sceSum, err := SigmoidCrossEntropyWithLogits(logits, labels, LossReductionSum)
	require.NoError(t, err)
	l1, err := L1Loss(logits, target)
	require.NoError(t, err)
	var sceVal, sceSumVal, l1Val gorgonia.Value
	gorgonia.Read(sce, &sceVal)
	gorgonia.Read(sceSum, &sceSumVal)
	gorgonia.Read(l1, &l1Val)

	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	// softplus(x) - x*z
	expected := (math.Log(2) + math.Log(1+math.Exp(2))) / 2
	got, err := scalarValue(sceVal)
	require.NoError(t, err)
	assert.InDelta(t, expected, got, 1e-9)
	got, err = scalarValue(sceSumVal)
	require.NoError(t, err)
	assert.InDelta(t, 2*expected, got, 1e-9)
	got, err = scalarValue(l1Val)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, 1e-9)
}
