package datasets

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	Cifar10Name = "cifar10"

	C10Url     = "https://www.cs.toronto.edu/~kriz/cifar-10-binary.tar.gz"
	C10TarName = "cifar-10-binary.tar.gz"
	C10SubDir  = "cifar-10-batches-bin"
	c10SHA256  = "c4a38c50a1bc5f3a1c5537f2155ab9d68f9f25eb1ed8d9ddda3db29a59bca1dd"

	// Cifar10Size is the side of CIFAR-10 images.
	Cifar10Size = 32

	c10ImageBytes  = 3 * Cifar10Size * Cifar10Size
	c10RecordBytes = 1 + c10ImageBytes
	c10TrainFiles  = 5
)

// Cifar10 holds one partition of CIFAR-10 in memory.
// Labels are kept but not used for colorization.
type Cifar10 struct {
	training bool
	images   []byte
	labels   []byte
}

// LoadCifar10 reads the training (data_batch_1..5.bin) or testing (test_batch.bin)
// partition from baseDir/cifar-10-batches-bin.
func LoadCifar10(baseDir string, training bool) (*Cifar10, error) {
	files := []string{"test_batch.bin"}
	if training {
		files = files[:0]
		for i := 1; i <= c10TrainFiles; i++ {
			files = append(files, fmt.Sprintf("data_batch_%d.bin", i))
		}
	}
	ds := &Cifar10{training: training}
	for _, name := range files {
		dataFile := filepath.Join(baseDir, C10SubDir, name)
		raw, err := os.ReadFile(dataFile)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't open data file '%s'", dataFile)
		}
		if len(raw)%c10RecordBytes != 0 {
			return nil, errors.Errorf("Data file '%s' has %d bytes, which is not a multiple of record size %d", dataFile, len(raw), c10RecordBytes)
		}
		for pos := 0; pos < len(raw); pos += c10RecordBytes {
			ds.labels = append(ds.labels, raw[pos])
			ds.images = append(ds.images, raw[pos+1:pos+c10RecordBytes]...)
		}
	}
	if len(ds.labels) == 0 {
		return nil, errors.Errorf("No CIFAR-10 examples found in '%s'", filepath.Join(baseDir, C10SubDir))
	}
	return ds, nil
}

func (ds *Cifar10) Name() string {
	if ds.training {
		return Cifar10Name + "-train"
	}
	return Cifar10Name + "-test"
}

func (ds *Cifar10) Len() int  { return len(ds.labels) }
func (ds *Cifar10) Size() int { return Cifar10Size }

// Label returns the class of image idx.
func (ds *Cifar10) Label(idx int) int { return int(ds.labels[idx]) }

// Read implements Source. CIFAR-10 records are already planar (all R, then G, then B).
func (ds *Cifar10) Read(idx int, dst []float64) error {
	if idx < 0 || idx >= ds.Len() {
		return errors.Errorf("Index %d is out of range [0, %d)", idx, ds.Len())
	}
	if len(dst) != c10ImageBytes {
		return errors.Errorf("Destination must have %d values, but got %d", c10ImageBytes, len(dst))
	}
	src := ds.images[idx*c10ImageBytes : (idx+1)*c10ImageBytes]
	for i, b := range src {
		dst[i] = float64(b) / 255
	}
	return nil
}
