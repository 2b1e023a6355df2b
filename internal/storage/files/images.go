package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	apierrors "github.com/datadesk/datadesk/internal/errors"
)

// cacheDir holds resized image renditions inside the data directory.
const cacheDir = "cache"

type imageSize struct {
	width, height int
}

// Named rendition sizes. Resizing preserves aspect ratio, so these are
// bounding boxes, not exact dimensions.
var imageSizes = map[string]imageSize{
	"thumbnail": {width: 150, height: 150},
	"medium":    {width: 600, height: 600},
}

// canResize reports whether the asset's format can be decoded and
// re-encoded for resizing.
func canResize(relativePath string) bool {
	switch strings.ToLower(filepath.Ext(relativePath)) {
	case ".jpg", ".jpeg", ".png", ".gif":
		return true
	}
	return false
}

// Resized returns the absolute path of a resized rendition of an image
// asset, generating and caching it under root/cache on first use.
// Assets in formats that cannot be re-encoded are returned unresized.
func (s *Service) Resized(relativePath, size string) (string, error) {
	dims, ok := imageSizes[size]
	if !ok {
		return "", apierrors.BadRequest(fmt.Sprintf("unknown image size %q", size))
	}
	src, err := s.Resolve(relativePath)
	if err != nil {
		return "", err
	}
	if !canResize(relativePath) {
		return src, nil
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apierrors.FileNotFound(relativePath)
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	cached := filepath.Join(s.root, cacheDir, size, filepath.Base(src))

	s.resizeMu.Lock()
	defer s.resizeMu.Unlock()

	// Reuse the rendition unless the source changed since it was made.
	if info, err := os.Stat(cached); err == nil && info.ModTime().After(srcInfo.ModTime()) {
		return cached, nil
	}

	img, err := imaging.Open(src)
	if err != nil {
		return "", apierrors.BadRequest(fmt.Sprintf("cannot decode image %q", relativePath)).Wrap(err)
	}
	resized := imaging.Fit(img, dims.width, dims.height, imaging.Lanczos)
	if err := os.MkdirAll(filepath.Dir(cached), 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := imaging.Save(resized, cached); err != nil {
		return "", fmt.Errorf("failed to save resized image: %w", err)
	}
	return cached, nil
}

// dropRenditions removes the cached renditions of an asset, if any.
func (s *Service) dropRenditions(name string) {
	for size := range imageSizes {
		_ = os.Remove(filepath.Join(s.root, cacheDir, size, name))
	}
}
