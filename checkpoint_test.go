package colorgan_go

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestSaveCheckpointKeepsLatest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "COLGAN_test")
	latest, err := LatestCheckpoint(dir)
	require.NoError(t, err)
	assert.Empty(t, latest)

	for step := int64(1); step <= 4; step++ {
		ckpt := &Checkpoint{
			Step:  step * 10,
			Epoch: int(step),
			RunID: "run",
			History: []LossRecord{
				{Step: step * 10, DisReal: 0.5, DisFake: 0.25, Gen: 10},
			},
			Variables: map[string]CheckpointTensor{
				"generator/0/weight": {Shape: []int{2}, Data: []float64{float64(step), -float64(step)}},
			},
		}
		_, err := SaveCheckpoint(dir, "COLGAN_test", ckpt, 2)
		require.NoError(t, err)
	}

	state, err := ReadCheckpointState(dir)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "COLGAN_test-40.ckpt", state.Latest)
	assert.Equal(t, []string{"COLGAN_test-30.ckpt", "COLGAN_test-40.ckpt"}, state.All)
	_, err = os.Stat(filepath.Join(dir, "COLGAN_test-10.ckpt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "COLGAN_test-20.ckpt"))
	assert.True(t, os.IsNotExist(err))

	latest, err = LatestCheckpoint(dir)
	require.NoError(t, err)
	ckpt, err := ReadCheckpoint(latest)
	require.NoError(t, err)
	assert.Equal(t, int64(40), ckpt.Step)
	assert.Equal(t, 4, ckpt.Epoch)
	assert.Equal(t, "run", ckpt.RunID)
	assert.Len(t, ckpt.History, 1)
	assert.Equal(t, []float64{4, -4}, ckpt.Variables["generator/0/weight"].Data)
	assert.Equal(t, 2, ckpt.NumParameters())
	assert.Equal(t, []string{"generator/0/weight"}, ckpt.VariableNames())
}

func TestSaveCheckpointSameStep(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		_, err := SaveCheckpoint(dir, "m", &Checkpoint{Step: 5}, 3)
		require.NoError(t, err)
	}
	state, err := ReadCheckpointState(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"m-5.ckpt"}, state.All)
}

func TestReadCheckpointErrors(t *testing.T) {
	_, err := ReadCheckpoint(filepath.Join(t.TempDir(), "missing.ckpt"))
	assert.Error(t, err)

	fname := filepath.Join(t.TempDir(), "broken.ckpt")
	require.NoError(t, os.WriteFile(fname, []byte("not a checkpoint"), 0o644))
	_, err = ReadCheckpoint(fname)
	assert.Error(t, err)
}

func TestRestoreVariablesInPlace(t *testing.T) {
	g := gorgonia.NewGraph()
	w := gorgonia.NewTensor(g, Dtype, 2, gorgonia.WithShape(2, 2), gorgonia.WithName("w"), gorgonia.WithValue(tensor.New(tensor.WithShape(2, 2), tensor.WithBacking([]float64{1, 2, 3, 4}))))
	// Node on another graph bound to the same value
	shared := sharedNode(gorgonia.NewGraph(), w, "_copy")
	params := map[string]*gorgonia.Node{"net/0/weight": w}

	vars, err := captureVariables(params)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, vars["net/0/weight"].Shape)
	assert.Equal(t, []float64{1, 2, 3, 4}, vars["net/0/weight"].Data)

	saved := map[string]CheckpointTensor{"net/0/weight": {Shape: []int{2, 2}, Data: []float64{5, 6, 7, 8}}}
	require.NoError(t, restoreVariables(params, saved))
	assert.Equal(t, []float64{5, 6, 7, 8}, w.Value().Data())
	assert.Equal(t, []float64{5, 6, 7, 8}, shared.Value().Data())
	// Captured values are copies
	assert.Equal(t, []float64{1, 2, 3, 4}, vars["net/0/weight"].Data)

	err = restoreVariables(params, map[string]CheckpointTensor{"net/0/weight": {Shape: []int{4}, Data: []float64{1, 2, 3, 4}}})
	assert.Error(t, err)
	err = restoreVariables(params, map[string]CheckpointTensor{"other": {Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}}})
	assert.Error(t, err)
}
