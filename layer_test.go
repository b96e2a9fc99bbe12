package colorgan_go

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestConvLayerBatchNorm(t *testing.T) {
	g := gorgonia.NewGraph()
	l := NewConvLayer(g, "block", 3, KernelSpec{Filters: 4, Stride: 2}, false, true, LeakyRectify)
	require.NotNil(t, l.ScaleNode)
	require.NotNil(t, l.ShiftNode)
	// One scale and one shift per output channel, whatever the batch size is
	assert.Equal(t, tensor.Shape{1, 4, 1, 1}, l.ScaleNode.Shape())
	assert.Equal(t, tensor.Shape{1, 4, 1, 1}, l.ShiftNode.Shape())
	assert.Equal(t, []float64{1, 1, 1, 1}, l.ScaleNode.Value().Data())
	assert.Equal(t, []float64{0, 0, 0, 0}, l.ShiftNode.Value().Data())
	assert.Len(t, l.Learnables(), 3)

	rng := rand.New(rand.NewSource(3))
	data := make([]float64, 5*3*8*8)
	for i := range data {
		data[i] = rng.NormFloat64()*2 + 1
	}
	x := gorgonia.NewTensor(g, Dtype, 4, gorgonia.WithShape(5, 3, 8, 8), gorgonia.WithName("x"), gorgonia.WithValue(tensor.New(tensor.WithShape(5, 3, 8, 8), tensor.WithBacking(data))))
	out, err := l.Fwd(x, "block")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, 4, 4, 4}, out.Shape())
	var outVal gorgonia.Value
	gorgonia.Read(out, &outVal)
	cost, err := gorgonia.Mean(out)
	require.NoError(t, err)
	_, err = gorgonia.Grad(cost, l.Learnables()...)
	require.NoError(t, err)

	vm := gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(l.Learnables()...))
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	// Initial scale of 1 and shift of 0 keep every channel normalized to zero mean
	values := outVal.Data().([]float64)
	plane := 4 * 4
	for c := 0; c < 4; c++ {
		sum := 0.0
		for b := 0; b < 5; b++ {
			offset := (b*4 + c) * plane
			for _, v := range values[offset : offset+plane] {
				sum += v
			}
		}
		assert.InDelta(t, 0, sum/float64(5*plane), 1e-6, "channel #%d", c)
	}
	grad, err := l.ScaleNode.Grad()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 4, 1, 1}, grad.Shape())
}

func TestConvLayerWithoutBatchNorm(t *testing.T) {
	g := gorgonia.NewGraph()
	l := NewConvLayer(g, "head", 8, KernelSpec{Filters: 2, Stride: 2}, true, false, Tanh)
	assert.Nil(t, l.ScaleNode)
	assert.Nil(t, l.ShiftNode)
	assert.Equal(t, LayerUpsampleConvolutional, l.Type)
	assert.Equal(t, []int{1, 1}, l.Stride)
	assert.Len(t, l.Learnables(), 1)
}
