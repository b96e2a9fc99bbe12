// Package datasets reads colorization training data: CIFAR-10 binary batches and Places365 image folders.
//
// Every dataset is a Source of square RGB images. An Iterator turns a Source into fixed-size
// batches shaped [batch, 3, size, size] with values in [0, 1].
package datasets

import (
	"context"
	"math/rand"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gorgonia.org/tensor"
)

// Source is a random-access collection of square RGB images.
type Source interface {
	// Name of the dataset and its partition, e.g. "cifar10-train".
	Name() string
	// Len is the number of images.
	Len() int
	// Size is the side of every image.
	Size() int
	// Read writes image idx into dst in [channel, row, column] order with values in [0, 1].
	// len(dst) is 3*Size()*Size(). Read must be safe for concurrent use.
	Read(idx int, dst []float64) error
}

// IteratorConfig configures an Iterator.
type IteratorConfig struct {
	BatchSize int
	// Shuffle the order of images.
	Shuffle bool
	// Augment flips images horizontally at random.
	Augment bool
	// Workers reading images in parallel. Defaults to runtime.NumCPU().
	Workers int
	Seed    int64
}

// Iterator yields one epoch of batches. The last partial batch is dropped, since the
// networks are built for a fixed batch size.
type Iterator struct {
	src     Source
	config  IteratorConfig
	order   []int
	pos     int
	rng     *rand.Rand
	batch   *tensor.Dense
	err     error
	imgSize int
}

// NewIterator creates an Iterator over one pass of src.
func NewIterator(src Source, config IteratorConfig) (*Iterator, error) {
	if config.BatchSize <= 0 {
		return nil, errors.Errorf("Batch size must be positive, but got %d", config.BatchSize)
	}
	if src.Len() < config.BatchSize {
		return nil, errors.Errorf("Dataset %s has %d images, which is less than batch size %d", src.Name(), src.Len(), config.BatchSize)
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	it := &Iterator{
		src:     src,
		config:  config,
		order:   make([]int, src.Len()),
		rng:     rand.New(rand.NewSource(config.Seed)),
		imgSize: 3 * src.Size() * src.Size(),
	}
	for i := range it.order {
		it.order[i] = i
	}
	if config.Shuffle {
		it.rng.Shuffle(len(it.order), func(i, j int) {
			it.order[i], it.order[j] = it.order[j], it.order[i]
		})
	}
	return it, nil
}

// NumBatches returns the number of batches in the epoch.
func (it *Iterator) NumBatches() int {
	return len(it.order) / it.config.BatchSize
}

// Next loads the next batch. It returns false at the end of the epoch or on error, see Err.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.err != nil || it.pos+it.config.BatchSize > len(it.order) {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.err = err
		return false
	}
	indices := it.order[it.pos : it.pos+it.config.BatchSize]
	// rng is not safe for concurrent use, so flips are drawn up-front.
	flips := make([]bool, len(indices))
	if it.config.Augment {
		for i := range flips {
			flips[i] = it.rng.Intn(2) == 1
		}
	}
	data := make([]float64, len(indices)*it.imgSize)
	size := it.src.Size()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(it.config.Workers)
	for i, idx := range indices {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dst := data[i*it.imgSize : (i+1)*it.imgSize]
			if err := it.src.Read(idx, dst); err != nil {
				return errors.Wrapf(err, "Can't read image %d of %s", idx, it.src.Name())
			}
			if flips[i] {
				FlipHorizontal(dst, 3, size, size)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		it.err = err
		return false
	}
	it.batch = tensor.New(tensor.WithShape(len(indices), 3, size, size), tensor.WithBacking(data))
	it.pos += it.config.BatchSize
	return true
}

// Batch returns the batch loaded by the last successful Next.
func (it *Iterator) Batch() *tensor.Dense {
	return it.batch
}

// Err returns the error that stopped the iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// FlipHorizontal mirrors a [channels, height, width] image in place.
func FlipHorizontal(img []float64, channels, height, width int) {
	for c := 0; c < channels; c++ {
		for y := 0; y < height; y++ {
			row := img[(c*height+y)*width : (c*height+y+1)*width]
			for i, j := 0, width-1; i < j; i, j = i+1, j-1 {
				row[i], row[j] = row[j], row[i]
			}
		}
	}
}
