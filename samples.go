package colorgan_go

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/LdDl/colorgan-go/colorspace"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const (
	sampleGridPadding = 2
	// small images are scaled up in grids to be visible
	sampleMinSide = 128
)

// SaveSampleGrid Writes grid of images to file. Every row of grid is one batch: grayscale inputs, real images, generated images, ...
func SaveSampleGrid(fname string, rows ...[]*image.NRGBA) error {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return fmt.Errorf("Nothing to draw")
	}
	cols := len(rows[0])
	bounds := rows[0][0].Bounds()
	cellW, cellH := bounds.Dx(), bounds.Dy()
	scale := 1
	for cellW*scale < sampleMinSide {
		scale *= 2
	}
	cellW, cellH = cellW*scale, cellH*scale
	grid := imaging.New(cols*(cellW+sampleGridPadding)+sampleGridPadding, len(rows)*(cellH+sampleGridPadding)+sampleGridPadding, color.White)
	for r, row := range rows {
		if len(row) != cols {
			return fmt.Errorf("Row #%d has %d images, but %d expected", r, len(row), cols)
		}
		for c, img := range row {
			cell := image.Image(img)
			if scale > 1 {
				cell = imaging.Resize(img, cellW, cellH, imaging.NearestNeighbor)
			}
			pos := image.Pt(sampleGridPadding+c*(cellW+sampleGridPadding), sampleGridPadding+r*(cellH+sampleGridPadding))
			grid = imaging.Paste(grid, cell, pos)
		}
	}
	if err := os.MkdirAll(filepath.Dir(fname), 0o777); err != nil {
		return errors.Wrap(err, "Can't create directory for samples")
	}
	if err := imaging.Save(grid, fname); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't save samples to '%s'", fname))
	}
	return nil
}

// saveSamples Draws grayscale inputs, real images and generated images of batch
//
// generated - generator's output normalized to [-1, 1]
//
func saveSamples(fname string, batch *TrainSet, generated *tensor.Dense, space colorspace.Space) error {
	gray, err := colorspace.Postprocess(batch.Gray, space)
	if err != nil {
		return errors.Wrap(err, "Can't denormalize grayscale batch")
	}
	fake, err := colorspace.Postprocess(generated, space)
	if err != nil {
		return errors.Wrap(err, "Can't denormalize generated batch")
	}
	grayImages, err := colorspace.ToImages(gray, colorspace.RGB)
	if err != nil {
		return err
	}
	realImages, err := colorspace.ToImages(batch.Color, space)
	if err != nil {
		return err
	}
	fakeImages, err := colorspace.ToImages(fake, space)
	if err != nil {
		return err
	}
	return SaveSampleGrid(fname, grayImages, realImages, fakeImages)
}
