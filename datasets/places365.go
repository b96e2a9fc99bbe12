package datasets

import (
	"bufio"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

const (
	Places365Name = "places365"

	// Places365Size is the side images are cropped and resized to.
	Places365Size = 256

	places365TrainDir  = "data_256"
	places365TrainList = "places365_train_standard.txt"
	places365TestDir   = "val_256"
	places365TestList  = "places365_val.txt"
)

// Places365 lists image files of one partition. Images are decoded on Read.
type Places365 struct {
	training bool
	files    []string
	size     int
}

// LoadPlaces365 lists images of baseDir/data_256 (training) or baseDir/val_256 (testing).
// If the matching list file (places365_train_standard.txt or places365_val.txt) exists,
// its first column names the images, otherwise the directory is walked.
func LoadPlaces365(baseDir string, training bool) (*Places365, error) {
	imgDir, listFile := places365TestDir, places365TestList
	if training {
		imgDir, listFile = places365TrainDir, places365TrainList
	}
	imgDir = filepath.Join(baseDir, imgDir)
	listPath := filepath.Join(baseDir, listFile)

	var files []string
	var err error
	if _, statErr := os.Stat(listPath); statErr == nil {
		files, err = readFileList(listPath, imgDir)
	} else {
		files, err = walkImages(imgDir)
	}
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("No Places365 images found in '%s'", imgDir)
	}
	return &Places365{training: training, files: files, size: Places365Size}, nil
}

func readFileList(listPath, imgDir string) ([]string, error) {
	f, err := os.Open(listPath)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open list file '%s'", listPath)
	}
	defer f.Close()
	var files []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		files = append(files, filepath.Join(imgDir, strings.TrimPrefix(fields[0], "/")))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "Can't read list file '%s'", listPath)
	}
	return files, nil
}

func walkImages(imgDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(imgDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "Can't list images in '%s'", imgDir)
	}
	sort.Strings(files)
	return files, nil
}

func (ds *Places365) Name() string {
	if ds.training {
		return Places365Name + "-train"
	}
	return Places365Name + "-test"
}

func (ds *Places365) Len() int  { return len(ds.files) }
func (ds *Places365) Size() int { return ds.size }

// Path returns the file of image idx.
func (ds *Places365) Path(idx int) string { return ds.files[idx] }

// Read implements Source: the image is center-cropped to a square and resized.
func (ds *Places365) Read(idx int, dst []float64) error {
	if idx < 0 || idx >= ds.Len() {
		return errors.Errorf("Index %d is out of range [0, %d)", idx, ds.Len())
	}
	img, err := imaging.Open(ds.files[idx])
	if err != nil {
		return errors.Wrapf(err, "Can't decode '%s'", ds.files[idx])
	}
	fitted := imaging.Fill(img, ds.size, ds.size, imaging.Center, imaging.Lanczos)
	return imageToPlanar(fitted, dst)
}

// imageToPlanar writes RGB values of img into dst in [channel, row, column] order.
func imageToPlanar(img *image.NRGBA, dst []float64) error {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	if len(dst) != 3*plane {
		return errors.Errorf("Destination has %d values, but %d are required for %dx%d image", len(dst), 3*plane, width, height)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pos := y*img.Stride + x*4
			for c := 0; c < 3; c++ {
				dst[c*plane+y*width+x] = float64(img.Pix[pos+c]) / 255
			}
		}
	}
	return nil
}
