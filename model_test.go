package colorgan_go

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/LdDl/colorgan-go/colorspace"
	"github.com/LdDl/colorgan-go/datasets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// writeCifar10 writes perFile random records into every file of CIFAR-10
func writeCifar10(t *testing.T, baseDir string, perFile int) {
	dir := filepath.Join(baseDir, datasets.C10SubDir)
	require.NoError(t, os.MkdirAll(dir, 0o777))
	rng := rand.New(rand.NewSource(1))
	names := []string{"test_batch.bin"}
	for i := 1; i <= 5; i++ {
		names = append(names, fmt.Sprintf("data_batch_%d.bin", i))
	}
	for _, name := range names {
		raw := make([]byte, perFile*(1+3*32*32))
		rng.Read(raw)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), raw, 0o644))
	}
}

func tinyOptions(t *testing.T) *Options {
	opts := DefaultOptions()
	opts.DatasetPath = t.TempDir()
	writeCifar10(t, opts.DatasetPath, 2)
	opts.Download = false
	opts.CheckpointPath = t.TempDir()
	opts.SamplesPath = t.TempDir()
	opts.BatchSize = 2
	opts.Epochs = 1
	opts.LogInterval = 1
	opts.SampleInterval = 2
	opts.SaveInterval = 0
	opts.Progress = false
	opts.Workers = 2
	opts.TestSamples = 1
	opts.Topology = &Topology{
		ImageSize: 32,
		Encoder: []KernelSpec{
			{4, 1, 0}, // 32x32
			{8, 2, 0}, // 16x16
			{8, 2, 0}, // 8x8
		},
		Decoder: []KernelSpec{
			{8, 2, 0.5}, // 16x16
			{4, 2, 0},   // 32x32
		},
		Discriminator: []KernelSpec{
			{4, 2, 0}, // 16x16
			{8, 2, 0}, // 8x8
		},
	}
	return opts
}

func randomRGB(batch, size int, seed int64) *tensor.Dense {
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, batch*3*size*size)
	for i := range data {
		data[i] = rng.Float64()
	}
	return tensor.New(tensor.WithShape(batch, 3, size, size), tensor.WithBacking(data))
}

func TestModelSample(t *testing.T) {
	model, err := NewModel(tinyOptions(t))
	require.NoError(t, err)
	defer model.Close()
	assert.Contains(t, model.Summary(), "Generator")
	assert.Equal(t, "COLGAN_cifar10", model.Name)

	batch, err := NewTrainSet(randomRGB(2, 32, 1), colorspace.LAB)
	require.NoError(t, err)
	out, err := model.Sample(batch.Gray)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 32, 32}, []int(out.Shape()))
	for _, v := range out.Float64s() {
		require.True(t, v >= -1 && v <= 1, "value %v is out of tanh range", v)
	}

	_, err = model.Sample(tensor.New(tensor.WithShape(1, 1, 32, 32), tensor.WithBacking(make([]float64, 32*32))))
	assert.Error(t, err)
}

func TestModelStepUpdatesSharedWeights(t *testing.T) {
	model, err := NewModel(tinyOptions(t))
	require.NoError(t, err)
	defer model.Close()

	batch, err := NewTrainSet(randomRGB(2, 32, 2), colorspace.LAB)
	require.NoError(t, err)
	before, err := captureVariables(model.params())
	require.NoError(t, err)

	// No updates without training
	_, fake, err := model.trainStep(batch, false)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 32, 32}, []int(fake.Shape()))
	same, err := captureVariables(model.params())
	require.NoError(t, err)
	assert.Equal(t, before, same)

	rec, _, err := model.trainStep(batch, true)
	require.NoError(t, err)
	for _, v := range []float64{rec.DisReal, rec.DisFake, rec.Gen} {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		assert.Greater(t, v, 0.0)
	}
	after, err := captureVariables(model.params())
	require.NoError(t, err)
	assert.NotEqual(t, before["generator/0/weight"].Data, after["generator/0/weight"].Data)
	assert.NotEqual(t, before["discriminator/0/weight"].Data, after["discriminator/0/weight"].Data)

	// Copy of Discriminator on GAN graph sees updated values
	for i, l := range model.discriminator.private.Layers {
		copied := model.gan.modifiedDiscriminator.private.Layers[i]
		assert.Equal(t, l.WeightNode.Value().Data(), copied.WeightNode.Value().Data(), "layer #%d", i)
	}
}

func TestModelTrainResumeAndTest(t *testing.T) {
	opts := tinyOptions(t)
	model, err := NewModel(opts)
	require.NoError(t, err)

	// 10 training images and batch of 2
	require.NoError(t, model.Train(context.Background()))
	assert.Equal(t, int64(5), model.Step())
	assert.Equal(t, 1, model.Epoch())
	assert.Len(t, model.History(), 5)
	assert.FileExists(t, filepath.Join(model.Dir(), OptionsFile))
	assert.FileExists(t, filepath.Join(model.Dir(), "losses.png"))
	assert.FileExists(t, filepath.Join(opts.SamplesPath, model.Name, "train-2.png"))
	assert.FileExists(t, filepath.Join(opts.SamplesPath, model.Name, "train-4.png"))
	trained, err := captureVariables(model.params())
	require.NoError(t, err)
	model.Close()

	restored, err := NewModel(opts)
	require.NoError(t, err)
	defer restored.Close()
	loaded, err := restored.Load()
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, int64(5), restored.Step())
	assert.Equal(t, 1, restored.Epoch())
	vars, err := captureVariables(restored.params())
	require.NoError(t, err)
	assert.Equal(t, trained, vars)

	// Training is already done for all epochs
	require.NoError(t, restored.Train(context.Background()))
	assert.Equal(t, int64(5), restored.Step())

	report, err := restored.Test(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Batches)
	assert.True(t, report.Accuracy >= 0 && report.Accuracy <= 1)
	assert.Greater(t, report.Gen, 0.0)
	assert.FileExists(t, filepath.Join(opts.SamplesPath, restored.Name, "test-5-0.png"))
}

func TestModelTrainCancelled(t *testing.T) {
	opts := tinyOptions(t)
	model, err := NewModel(opts)
	require.NoError(t, err)
	defer model.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = model.Train(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	latest, err := LatestCheckpoint(model.Dir())
	require.NoError(t, err)
	assert.NotEmpty(t, latest)
}

func TestModelTestWithoutCheckpoint(t *testing.T) {
	model, err := NewModel(tinyOptions(t))
	require.NoError(t, err)
	defer model.Close()
	loaded, err := model.Load()
	require.NoError(t, err)
	assert.False(t, loaded)
	_, err = model.Test(context.Background())
	assert.Error(t, err)
}

func TestModelLoadsWithDifferentBatchSize(t *testing.T) {
	opts := tinyOptions(t)
	model, err := NewModel(opts)
	require.NoError(t, err)
	_, err = model.Save()
	require.NoError(t, err)
	saved, err := captureVariables(model.params())
	require.NoError(t, err)
	model.Close()

	// Batch normalization parameters are per channel
	opts.BatchSize = 3
	other, err := NewModel(opts)
	require.NoError(t, err)
	defer other.Close()
	loaded, err := other.Load()
	require.NoError(t, err)
	assert.True(t, loaded)
	vars, err := captureVariables(other.params())
	require.NoError(t, err)
	assert.Equal(t, saved, vars)

	batch, err := NewTrainSet(randomRGB(3, 32, 4), colorspace.LAB)
	require.NoError(t, err)
	out, err := other.Sample(batch.Gray)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 32, 32}, []int(out.Shape()))
}

func TestModelHistoryHoldsLossesAfterUpdates(t *testing.T) {
	opts := tinyOptions(t)
	// Single deterministic step over every training image
	opts.BatchSize = 10
	opts.Augment = false
	opts.SampleInterval = 0
	opts.Topology.Decoder[0].Dropout = 0
	model, err := NewModel(opts)
	require.NoError(t, err)
	defer model.Close()
	require.NoError(t, model.Train(context.Background()))
	require.Len(t, model.History(), 1)
	logged := model.History()[0]
	assert.Equal(t, int64(1), logged.Step)

	src, err := datasets.LoadCifar10(opts.DatasetPath, true)
	require.NoError(t, err)
	require.Equal(t, 10, src.Len())
	imgSize := 3 * 32 * 32
	data := make([]float64, src.Len()*imgSize)
	for i := 0; i < src.Len(); i++ {
		require.NoError(t, src.Read(i, data[i*imgSize:(i+1)*imgSize]))
	}
	batch, err := NewTrainSet(tensor.New(tensor.WithShape(10, 3, 32, 32), tensor.WithBacking(data)), colorspace.LAB)
	require.NoError(t, err)
	rec, _, err := model.trainStep(batch, false)
	require.NoError(t, err)
	assert.InDelta(t, rec.DisReal, logged.DisReal, 1e-6)
	assert.InDelta(t, rec.DisFake, logged.DisFake, 1e-6)
	assert.InDelta(t, rec.Gen, logged.Gen, 1e-6)
}
