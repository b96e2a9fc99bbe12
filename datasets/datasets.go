package datasets

import (
	"context"

	"github.com/pkg/errors"
)

// New returns the training or testing partition of the named dataset found in path.
// CIFAR-10 is downloaded first when download is set.
func New(ctx context.Context, name, path string, training, download bool) (Source, error) {
	switch name {
	case Cifar10Name:
		if download {
			if err := DownloadCifar10(ctx, path, true); err != nil {
				return nil, errors.Wrap(err, "Can't download CIFAR-10")
			}
		}
		return LoadCifar10(path, training)
	case Places365Name:
		return LoadPlaces365(path, training)
	default:
		return nil, errors.Errorf("Unknown dataset '%s'", name)
	}
}
