package datasets

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// DownloadCifar10 downloads and extracts CIFAR-10 into baseDir, unless
// baseDir/cifar-10-batches-bin exists already.
func DownloadCifar10(ctx context.Context, baseDir string, showProgressBar bool) error {
	return downloadAndUntarIfMissing(ctx, C10Url, baseDir, C10TarName, C10SubDir, c10SHA256, showProgressBar)
}

func downloadAndUntarIfMissing(ctx context.Context, url, baseDir, tarName, subDir, checkHash string, showProgressBar bool) error {
	if _, err := os.Stat(filepath.Join(baseDir, subDir)); err == nil {
		return nil
	}
	if err := os.MkdirAll(baseDir, 0o777); err != nil {
		return errors.Wrapf(err, "Can't create directory '%s'", baseDir)
	}
	tarPath := filepath.Join(baseDir, tarName)
	if _, err := os.Stat(tarPath); err != nil {
		klog.Infof("Downloading %s to %s", url, tarPath)
		if err := download(ctx, url, tarPath, showProgressBar); err != nil {
			return err
		}
	}
	if err := verifySHA256(tarPath, checkHash); err != nil {
		return err
	}
	klog.Infof("Extracting %s", tarPath)
	return untarGz(tarPath, baseDir)
}

func download(ctx context.Context, url, filePath string, showProgressBar bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrapf(err, "Can't create request for '%s'", url)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "Can't download '%s'", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("Can't download '%s': %s", url, resp.Status)
	}
	tmpPath := filePath + ".part"
	file, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "Can't create file '%s'", tmpPath)
	}
	var w io.Writer = file
	if showProgressBar {
		bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(filePath))
		defer bar.Close()
		w = io.MultiWriter(file, bar)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		file.Close()
		return errors.Wrapf(err, "Can't download '%s' to '%s'", url, tmpPath)
	}
	if err := file.Close(); err != nil {
		return errors.Wrapf(err, "Can't close '%s'", tmpPath)
	}
	return errors.Wrapf(os.Rename(tmpPath, filePath), "Can't rename '%s'", tmpPath)
}

func verifySHA256(filePath, want string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errors.Wrapf(err, "Can't open '%s'", filePath)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return errors.Wrapf(err, "Can't hash '%s'", filePath)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != want {
		return errors.Errorf("File '%s' has sha256 %s, but %s is expected. Remove it and download again", filePath, got, want)
	}
	return nil
}

func untarGz(tarPath, baseDir string) error {
	f, err := os.Open(tarPath)
	if err != nil {
		return errors.Wrapf(err, "Can't open '%s'", tarPath)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "Can't read gzip '%s'", tarPath)
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "Can't read tar '%s'", tarPath)
		}
		target := filepath.Join(baseDir, hdr.Name)
		if !insideDir(baseDir, target) {
			return errors.Errorf("Tar entry '%s' escapes '%s'", hdr.Name, baseDir)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o777); err != nil {
				return errors.Wrapf(err, "Can't create '%s'", target)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o777); err != nil {
				return errors.Wrapf(err, "Can't create '%s'", filepath.Dir(target))
			}
			out, err := os.Create(target)
			if err != nil {
				return errors.Wrapf(err, "Can't create '%s'", target)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return errors.Wrapf(err, "Can't extract '%s'", target)
			}
			if err := out.Close(); err != nil {
				return errors.Wrapf(err, "Can't close '%s'", target)
			}
		}
	}
}

// insideDir Checks whether target is dir itself or located under it
func insideDir(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
