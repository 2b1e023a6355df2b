// Package files stores uploaded assets under the data directory and
// reassembles chunked uploads. Assets are addressed by relative paths of
// the form "files/<name>", which is what record file fields hold.
package files

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/datadesk/datadesk/internal/errors"
)

// Dir is the asset directory name inside the data directory.
const Dir = "files"

// Service stores assets on disk under root/files.
type Service struct {
	root string

	// resizeMu keeps concurrent requests from generating the same
	// rendition twice.
	resizeMu sync.Mutex
}

// NewService creates the asset directory if needed.
func NewService(root string) (*Service, error) {
	if err := os.MkdirAll(filepath.Join(root, Dir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create files directory: %w", err)
	}
	return &Service{root: root}, nil
}

// Root returns the data directory the service stores under.
func (s *Service) Root() string {
	return s.root
}

// Save decodes a base64 data URL and writes it as a new asset. The
// returned relative path is what record file fields should store. prefix
// is used to build a name when fileName is empty.
func (s *Service) Save(dataURL, prefix, fileName string) (string, error) {
	mimeType, data, err := decodeDataURL(dataURL)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(fileName)
	if ext == "" {
		ext = extensionForMIME(mimeType)
	}
	name := assetName(fileName, prefix, ext)

	if err := os.WriteFile(filepath.Join(s.root, Dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return filepath.Join(Dir, name), nil
}

// Resolve turns a relative asset path into an absolute one, rejecting
// anything that escapes the data directory.
func (s *Service) Resolve(relativePath string) (string, error) {
	clean := filepath.Clean(relativePath)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", apierrors.BadRequest(fmt.Sprintf("invalid file path %q", relativePath))
	}
	return filepath.Join(s.root, clean), nil
}

// AsDataURL reads an asset back as a base64 data URL.
func (s *Service) AsDataURL(relativePath string) (string, error) {
	if relativePath == "" {
		return "", nil
	}
	full, err := s.Resolve(relativePath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apierrors.FileNotFound(relativePath)
		}
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	mimeType := MIMEForExtension(strings.ToLower(filepath.Ext(relativePath)))
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Delete removes an asset. Deleting a missing or empty path is not an
// error so records can be cleaned up idempotently.
func (s *Service) Delete(relativePath string) error {
	if relativePath == "" {
		return nil
	}
	full, err := s.Resolve(relativePath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	s.dropRenditions(filepath.Base(full))
	return nil
}

// decodeDataURL splits a "data:<mime>;base64,<payload>" URL into its MIME
// type and decoded payload.
func decodeDataURL(dataURL string) (string, []byte, error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return "", nil, apierrors.FileUpload("invalid file format")
	}
	parts := strings.SplitN(dataURL, ",", 2)
	if len(parts) != 2 {
		return "", nil, apierrors.FileUpload("invalid file data format")
	}
	mimeType := strings.TrimPrefix(parts[0], "data:")
	mimeType = strings.Split(mimeType, ";")[0]
	data, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, apierrors.FileUpload("failed to decode file data")
	}
	return mimeType, data, nil
}

// assetName builds the stored file name. Names carry a nanosecond
// timestamp so repeated uploads of the same file never clash.
func assetName(fileName, prefix, ext string) string {
	ts := time.Now().UnixNano()
	safe := SanitizeFileName(fileName)
	if safe == "" {
		return fmt.Sprintf("%s_%d_%s%s", prefix, ts, uuid.NewString(), ext)
	}
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(safe, ext), ts, ext)
}

// SanitizeFileName strips directories and replaces characters that are
// unsafe in file names.
func SanitizeFileName(fileName string) string {
	if fileName == "" {
		return ""
	}
	fileName = filepath.Base(fileName)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\\', '/', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, fileName)
}

var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".aac":  "audio/aac",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".ogv":  "video/ogg",
	".mov":  "video/quicktime",
}

// MIMEForExtension maps a lowercased extension to its MIME type,
// defaulting to application/octet-stream.
func MIMEForExtension(ext string) string {
	if m, ok := mimeByExt[ext]; ok {
		return m
	}
	return "application/octet-stream"
}

var extByMIME = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
	"text/csv":        ".csv",
	"audio/mpeg":      ".mp3",
	"audio/wav":       ".wav",
	"audio/ogg":       ".ogg",
	"audio/aac":       ".aac",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/ogg":       ".ogv",
	"video/quicktime": ".mov",

	"application/msword":       ".doc",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       ".xlsx",
}

// extensionForMIME is the reverse mapping, used when an upload has no
// file name to take the extension from.
func extensionForMIME(mimeType string) string {
	return extByMIME[mimeType]
}
