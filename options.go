package colorgan_go

import (
	"fmt"
	"os"

	"github.com/LdDl/colorgan-go/colorspace"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	ModeTrain = "train"
	ModeTest  = "test"
)

// Options Training and evaluation settings
type Options struct {
	Mode           string `yaml:"mode"`
	Seed           int64  `yaml:"seed"`
	Dataset        string `yaml:"dataset"`
	DatasetPath    string `yaml:"dataset_path"`
	Download       bool   `yaml:"download"`
	CheckpointPath string `yaml:"checkpoint_path"`
	SamplesPath    string `yaml:"samples_path"`
	// ColorSpace Space of generator's output: "rgb" or "lab"
	ColorSpace string `yaml:"color_space"`

	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"lr"`
	Beta1        float64 `yaml:"beta1"`
	// L1Weight Weight of L1 distance between generated and real images in generator's loss
	L1Weight float64 `yaml:"l1_weight"`
	// RealLabel Target for real images in discriminator's loss (one-sided label smoothing)
	RealLabel float64 `yaml:"real_label"`
	Augment   bool    `yaml:"augment"`
	// AccuracyThreshold Threshold (in L units) of pixelwise accuracy
	AccuracyThreshold float64 `yaml:"acc_thresh"`

	LogInterval     int  `yaml:"log_interval"`
	SampleInterval  int  `yaml:"sample_interval"`
	SaveInterval    int  `yaml:"save_interval"`
	KeepCheckpoints int  `yaml:"keep_checkpoints"`
	TestSamples     int  `yaml:"test_samples"`
	Workers         int  `yaml:"workers"`
	Progress        bool `yaml:"progress"`

	// Topology Overrides layers configuration of the dataset when set
	Topology *Topology `yaml:"topology,omitempty"`
}

// DefaultOptions Returns options for training on CIFAR-10
func DefaultOptions() *Options {
	return &Options{
		Mode:              ModeTrain,
		Seed:              0,
		Dataset:           DatasetCifar10,
		DatasetPath:       "./dataset/cifar10",
		Download:          true,
		CheckpointPath:    "./checkpoints",
		SamplesPath:       "./samples",
		ColorSpace:        "lab",
		Epochs:            30,
		BatchSize:         16,
		LearningRate:      2e-4,
		Beta1:             0.5,
		L1Weight:          100.0,
		RealLabel:         0.9,
		Augment:           true,
		AccuracyThreshold: 2.0,
		LogInterval:       10,
		SampleInterval:    1000,
		SaveInterval:      1000,
		KeepCheckpoints:   3,
		TestSamples:       8,
		Workers:           0,
		Progress:          true,
	}
}

// LoadOptions Reads options from YAML file on top of defaults
func LoadOptions(fname string) (*Options, error) {
	opts := DefaultOptions()
	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't read options file '%s'", fname))
	}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't parse options file '%s'", fname))
	}
	return opts, nil
}

// Save Writes options to YAML file
func (opts *Options) Save(fname string) error {
	data, err := yaml.Marshal(opts)
	if err != nil {
		return errors.Wrap(err, "Can't marshal options")
	}
	if err := os.WriteFile(fname, data, 0o644); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't write options file '%s'", fname))
	}
	return nil
}

// Space Returns parsed color space
func (opts *Options) Space() (colorspace.Space, error) {
	return colorspace.Parse(opts.ColorSpace)
}

// NetworkTopology Returns topology override or the one registered for the dataset
func (opts *Options) NetworkTopology() (Topology, error) {
	if opts.Topology != nil {
		return *opts.Topology, nil
	}
	return TopologyFor(opts.Dataset)
}

// Validate Checks options for consistency
func (opts *Options) Validate() error {
	if opts.Mode != ModeTrain && opts.Mode != ModeTest {
		return fmt.Errorf("Mode must be '%s' or '%s', but got '%s'", ModeTrain, ModeTest, opts.Mode)
	}
	topology, err := opts.NetworkTopology()
	if err != nil {
		return err
	}
	if err := topology.Validate(); err != nil {
		return errors.Wrap(err, "Invalid topology")
	}
	if _, err := opts.Space(); err != nil {
		return err
	}
	if opts.CheckpointPath == "" {
		return fmt.Errorf("Checkpoint path must be set")
	}
	if opts.BatchSize <= 0 {
		return fmt.Errorf("Batch size must be positive, but got %d", opts.BatchSize)
	}
	if opts.Epochs < 0 {
		return fmt.Errorf("Number of epochs can't be negative, but got %d", opts.Epochs)
	}
	if opts.LearningRate <= 0 {
		return fmt.Errorf("Learning rate must be positive, but got %v", opts.LearningRate)
	}
	if opts.Beta1 < 0 || opts.Beta1 >= 1 {
		return fmt.Errorf("Beta1 must be in [0, 1), but got %v", opts.Beta1)
	}
	if opts.L1Weight < 0 {
		return fmt.Errorf("L1 weight can't be negative, but got %v", opts.L1Weight)
	}
	if opts.RealLabel <= 0 || opts.RealLabel > 1 {
		return fmt.Errorf("Real label must be in (0, 1], but got %v", opts.RealLabel)
	}
	if opts.AccuracyThreshold <= 0 {
		return fmt.Errorf("Accuracy threshold must be positive, but got %v", opts.AccuracyThreshold)
	}
	if opts.KeepCheckpoints <= 0 {
		return fmt.Errorf("Number of checkpoints to keep must be positive, but got %d", opts.KeepCheckpoints)
	}
	return nil
}

// ModelName Returns name of the model used for checkpoints: COLGAN_<dataset>
func (opts *Options) ModelName() string {
	return "COLGAN_" + opts.Dataset
}
