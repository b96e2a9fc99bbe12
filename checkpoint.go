package colorgan_go

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const (
	// CheckpointStateFile Name of the file listing checkpoints of a directory
	CheckpointStateFile = "checkpoint"
	// OptionsFile Name of the file holding options of the model beside its checkpoints
	OptionsFile = "options.yaml"
)

// CheckpointTensor Saved value of a learnable
type CheckpointTensor struct {
	Shape []int
	Data  []float64
}

// Checkpoint Saved training state
type Checkpoint struct {
	Step      int64
	Epoch     int
	RunID     string
	Created   time.Time
	History   []LossRecord
	Variables map[string]CheckpointTensor
}

// CheckpointState Content of the CheckpointStateFile: latest checkpoint and all the retained ones, oldest first
type CheckpointState struct {
	Latest string   `yaml:"latest"`
	All    []string `yaml:"all"`
}

func checkpointFileName(name string, step int64) string {
	return fmt.Sprintf("%s-%d.ckpt", name, step)
}

// ReadCheckpointState Reads state of checkpoints directory. Returns nil state if there are no checkpoints yet
func ReadCheckpointState(dir string) (*CheckpointState, error) {
	data, err := os.ReadFile(filepath.Join(dir, CheckpointStateFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "Can't read checkpoint state")
	}
	state := &CheckpointState{}
	if err := yaml.Unmarshal(data, state); err != nil {
		return nil, errors.Wrap(err, "Can't parse checkpoint state")
	}
	return state, nil
}

func writeCheckpointState(dir string, state *CheckpointState) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "Can't marshal checkpoint state")
	}
	return atomicWrite(filepath.Join(dir, CheckpointStateFile), func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// LatestCheckpoint Returns path to the latest checkpoint of directory or empty string if there is no checkpoint
func LatestCheckpoint(dir string) (string, error) {
	state, err := ReadCheckpointState(dir)
	if err != nil {
		return "", err
	}
	if state == nil || state.Latest == "" {
		return "", nil
	}
	return filepath.Join(dir, state.Latest), nil
}

// SaveCheckpoint Writes checkpoint to directory and keeps only the latest 'keep' checkpoints
func SaveCheckpoint(dir, name string, ckpt *Checkpoint, keep int) (string, error) {
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return "", errors.Wrap(err, fmt.Sprintf("Can't create checkpoint directory '%s'", dir))
	}
	fname := checkpointFileName(name, ckpt.Step)
	fpath := filepath.Join(dir, fname)
	err := atomicWrite(fpath, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(ckpt)
	})
	if err != nil {
		return "", errors.Wrap(err, fmt.Sprintf("Can't write checkpoint '%s'", fpath))
	}

	state, err := ReadCheckpointState(dir)
	if err != nil {
		return "", err
	}
	if state == nil {
		state = &CheckpointState{}
	}
	all := make([]string, 0, len(state.All)+1)
	for _, f := range state.All {
		if f != fname {
			all = append(all, f)
		}
	}
	all = append(all, fname)
	if keep > 0 && len(all) > keep {
		for _, old := range all[:len(all)-keep] {
			if err := os.Remove(filepath.Join(dir, old)); err != nil && !os.IsNotExist(err) {
				return "", errors.Wrap(err, fmt.Sprintf("Can't remove old checkpoint '%s'", old))
			}
		}
		all = all[len(all)-keep:]
	}
	state.All = all
	state.Latest = fname
	if err := writeCheckpointState(dir, state); err != nil {
		return "", err
	}
	return fpath, nil
}

// ReadCheckpoint Reads checkpoint file
func ReadCheckpoint(fpath string) (*Checkpoint, error) {
	f, err := os.Open(fpath)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't open checkpoint '%s'", fpath))
	}
	defer f.Close()
	ckpt := &Checkpoint{}
	if err := gob.NewDecoder(f).Decode(ckpt); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't decode checkpoint '%s'", fpath))
	}
	return ckpt, nil
}

// NumParameters Returns total number of values stored in checkpoint
func (ckpt *Checkpoint) NumParameters() int {
	total := 0
	for _, v := range ckpt.Variables {
		total += len(v.Data)
	}
	return total
}

// VariableNames Returns sorted names of saved variables
func (ckpt *Checkpoint) VariableNames() []string {
	names := make([]string, 0, len(ckpt.Variables))
	for name := range ckpt.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// captureVariables Copies current values of learnables
func captureVariables(params map[string]*gorgonia.Node) (map[string]CheckpointTensor, error) {
	vars := make(map[string]CheckpointTensor, len(params))
	for name, n := range params {
		data, err := nodeData(n)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't read variable '%s'", name))
		}
		copied := make([]float64, len(data))
		copy(copied, data)
		vars[name] = CheckpointTensor{Shape: []int(n.Shape().Clone()), Data: copied}
	}
	return vars, nil
}

// restoreVariables Copies saved values into learnables in place, so every node bound to the same value sees them
func restoreVariables(params map[string]*gorgonia.Node, vars map[string]CheckpointTensor) error {
	for name, n := range params {
		saved, ok := vars[name]
		if !ok {
			return fmt.Errorf("Variable '%s' is missing in checkpoint", name)
		}
		if !n.Shape().Eq(tensor.Shape(saved.Shape)) {
			return fmt.Errorf("Variable '%s' has shape %v, but checkpoint has %v", name, n.Shape(), saved.Shape)
		}
		data, err := nodeData(n)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't access variable '%s'", name))
		}
		if len(data) != len(saved.Data) {
			return fmt.Errorf("Variable '%s' has %d values, but checkpoint has %d", name, len(data), len(saved.Data))
		}
		copy(data, saved.Data)
	}
	return nil
}

func nodeData(n *gorgonia.Node) ([]float64, error) {
	dense, ok := n.Value().(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("Node '%s' has no dense value", n.Name())
	}
	data, ok := dense.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("Node '%s' holds %v values, float64 expected", n.Name(), dense.Dtype())
	}
	return data, nil
}

// atomicWrite Writes file through temporary one, so readers never see partial content
func atomicWrite(fpath string, write func(f *os.File) error) error {
	tmp := fpath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, fpath)
}
