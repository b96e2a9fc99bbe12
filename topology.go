package colorgan_go

import (
	"fmt"
	"sort"

	"github.com/LdDl/colorgan-go/datasets"
)

// KernelSpec Declarative description of a single convolution block.
//
// Filters - number of output channels
// Stride - 1 keeps spatial size, 2 halves it (encoder, discriminator) or doubles it (decoder)
// Dropout - dropout probability applied after normalization. Zero disables dropout
//
type KernelSpec struct {
	Filters int     `yaml:"filters"`
	Stride  int     `yaml:"stride"`
	Dropout float64 `yaml:"dropout"`
}

// Topology Layer configuration of generator (encoder/decoder) and discriminator for square images of ImageSize.
type Topology struct {
	ImageSize     int          `yaml:"image_size"`
	Encoder       []KernelSpec `yaml:"encoder"`
	Decoder       []KernelSpec `yaml:"decoder"`
	Discriminator []KernelSpec `yaml:"discriminator"`
}

const (
	DatasetCifar10   = datasets.Cifar10Name
	DatasetPlaces365 = datasets.Places365Name
)

var topologies = map[string]func() Topology{
	DatasetCifar10:   Cifar10Topology,
	DatasetPlaces365: Places365Topology,
}

// Cifar10Topology Topology for 32x32 images
func Cifar10Topology() Topology {
	return Topology{
		ImageSize: 32,
		Encoder: []KernelSpec{
			{64, 1, 0},  // [batch, ch, 32, 32] => [batch, 64, 32, 32]
			{128, 2, 0}, // [batch, 64, 32, 32] => [batch, 128, 16, 16]
			{256, 2, 0}, // [batch, 128, 16, 16] => [batch, 256, 8, 8]
			{512, 2, 0}, // [batch, 256, 8, 8] => [batch, 512, 4, 4]
			{512, 2, 0}, // [batch, 512, 4, 4] => [batch, 512, 2, 2]
		},
		Decoder: []KernelSpec{
			{512, 2, 0.5}, // [batch, 512, 2, 2] => [batch, 512, 4, 4]
			{256, 2, 0},   // [batch, 512, 4, 4] => [batch, 256, 8, 8]
			{128, 2, 0},   // [batch, 256, 8, 8] => [batch, 128, 16, 16]
			{64, 2, 0},    // [batch, 128, 16, 16] => [batch, 64, 32, 32]
		},
		Discriminator: []KernelSpec{
			{64, 2, 0},  // [batch, ch, 32, 32] => [batch, 64, 16, 16]
			{128, 2, 0}, // [batch, 64, 16, 16] => [batch, 128, 8, 8]
			{256, 2, 0}, // [batch, 128, 8, 8] => [batch, 256, 4, 4]
			{512, 1, 0}, // [batch, 256, 4, 4] => [batch, 512, 4, 4]
		},
	}
}

// Places365Topology Topology for 256x256 images
func Places365Topology() Topology {
	return Topology{
		ImageSize: 256,
		Encoder: []KernelSpec{
			{64, 1, 0},  // [batch, ch, 256, 256] => [batch, 64, 256, 256]
			{64, 2, 0},  // [batch, 64, 256, 256] => [batch, 64, 128, 128]
			{128, 2, 0}, // [batch, 64, 128, 128] => [batch, 128, 64, 64]
			{256, 2, 0}, // [batch, 128, 64, 64] => [batch, 256, 32, 32]
			{512, 2, 0}, // [batch, 256, 32, 32] => [batch, 512, 16, 16]
			{512, 2, 0}, // [batch, 512, 16, 16] => [batch, 512, 8, 8]
			{512, 2, 0}, // [batch, 512, 8, 8] => [batch, 512, 4, 4]
			{512, 2, 0}, // [batch, 512, 4, 4] => [batch, 512, 2, 2]
		},
		Decoder: []KernelSpec{
			{512, 2, 0.5}, // [batch, 512, 2, 2] => [batch, 512, 4, 4]
			{512, 2, 0.5}, // [batch, 512, 4, 4] => [batch, 512, 8, 8]
			{512, 2, 0.5}, // [batch, 512, 8, 8] => [batch, 512, 16, 16]
			{256, 2, 0},   // [batch, 512, 16, 16] => [batch, 256, 32, 32]
			{128, 2, 0},   // [batch, 256, 32, 32] => [batch, 128, 64, 64]
			{64, 2, 0},    // [batch, 128, 64, 64] => [batch, 64, 128, 128]
			{64, 2, 0},    // [batch, 64, 128, 128] => [batch, 64, 256, 256]
		},
		Discriminator: []KernelSpec{
			{64, 2, 0},  // [batch, ch, 256, 256] => [batch, 64, 128, 128]
			{128, 2, 0}, // [batch, 64, 128, 128] => [batch, 128, 64, 64]
			{256, 2, 0}, // [batch, 128, 64, 64] => [batch, 256, 32, 32]
			{512, 2, 0}, // [batch, 256, 32, 32] => [batch, 512, 16, 16]
			{512, 2, 0}, // [batch, 512, 16, 16] => [batch, 512, 8, 8]
			{512, 2, 0}, // [batch, 512, 8, 8] => [batch, 512, 4, 4]
		},
	}
}

// TopologyFor Returns topology registered for the dataset
func TopologyFor(dataset string) (Topology, error) {
	fn, ok := topologies[dataset]
	if !ok {
		return Topology{}, fmt.Errorf("No topology for dataset '%s' (known: %v)", dataset, KnownDatasets())
	}
	return fn(), nil
}

// KnownDatasets Returns sorted names of datasets having a topology
func KnownDatasets() []string {
	names := make([]string, 0, len(topologies))
	for name := range topologies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate Checks that encoder and decoder mirror each other so every decoder output can be concatenated with its skip connection
func (t Topology) Validate() error {
	if t.ImageSize <= 0 {
		return fmt.Errorf("Image size must be positive, but got %d", t.ImageSize)
	}
	if len(t.Encoder) == 0 {
		return fmt.Errorf("Encoder must have one layer atleast")
	}
	if len(t.Discriminator) == 0 {
		return fmt.Errorf("Discriminator must have one layer atleast")
	}
	if len(t.Decoder) != len(t.Encoder)-1 {
		return fmt.Errorf("Decoder must have exactly %d layers for %d encoder layers, but got %d", len(t.Encoder)-1, len(t.Encoder), len(t.Decoder))
	}
	check := func(part string, specs []KernelSpec) error {
		for i, k := range specs {
			if k.Filters <= 0 {
				return fmt.Errorf("%s layer #%d: filters must be positive, but got %d", part, i, k.Filters)
			}
			if k.Stride != 1 && k.Stride != 2 {
				return fmt.Errorf("%s layer #%d: stride must be 1 or 2, but got %d", part, i, k.Stride)
			}
			if k.Dropout < 0 || k.Dropout >= 1 {
				return fmt.Errorf("%s layer #%d: dropout must be in [0, 1), but got %v", part, i, k.Dropout)
			}
		}
		return nil
	}
	if err := check("encoder", t.Encoder); err != nil {
		return err
	}
	if err := check("decoder", t.Decoder); err != nil {
		return err
	}
	if err := check("discriminator", t.Discriminator); err != nil {
		return err
	}

	encoderSizes, err := downsampledSizes(t.ImageSize, t.Encoder)
	if err != nil {
		return fmt.Errorf("Encoder: %s", err)
	}
	if _, err := downsampledSizes(t.ImageSize, t.Discriminator); err != nil {
		return fmt.Errorf("Discriminator: %s", err)
	}
	size := encoderSizes[len(encoderSizes)-1]
	for i, k := range t.Decoder {
		size *= k.Stride
		skip := encoderSizes[len(t.Encoder)-2-i]
		if size != skip {
			return fmt.Errorf("Decoder layer #%d produces %dx%d, but skip connection from encoder layer #%d is %dx%d", i, size, size, len(t.Encoder)-2-i, skip, skip)
		}
	}
	if size != t.ImageSize {
		return fmt.Errorf("Generator produces %dx%d images, but %dx%d expected", size, size, t.ImageSize, t.ImageSize)
	}
	return nil
}

// DiscriminatorPatchSize Returns spatial size of discriminator's output (logits) map
func (t Topology) DiscriminatorPatchSize() int {
	size := t.ImageSize
	for _, k := range t.Discriminator {
		size /= k.Stride
	}
	return size
}

func downsampledSizes(imageSize int, specs []KernelSpec) ([]int, error) {
	sizes := make([]int, len(specs))
	size := imageSize
	for i, k := range specs {
		if size%k.Stride != 0 {
			return nil, fmt.Errorf("Layer #%d can't downsample %dx%d by stride %d", i, size, size, k.Stride)
		}
		size /= k.Stride
		sizes[i] = size
	}
	return sizes, nil
}

// kernelGeometry Returns kernel side and padding for provided stride.
// Stride 2 => 4x4 kernel with padding 1 (halves the size), stride 1 => 3x3 kernel with padding 1 (keeps the size)
func kernelGeometry(stride int) (int, int) {
	if stride == 2 {
		return 4, 1
	}
	return 3, 1
}
