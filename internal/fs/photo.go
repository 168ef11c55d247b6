// Package fs loads photo files from disk for story submission.
package fs

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"storysync/internal/story"
)

// sniffLen is how many leading bytes http.DetectContentType considers.
const sniffLen = 512

// ErrNotImage is returned when a file's content is not an image.
var ErrNotImage = errors.New("not an image")

// PhotoLoader reads photos from the real filesystem.
type PhotoLoader struct{}

func NewPhotoLoader() *PhotoLoader {
	return &PhotoLoader{}
}

// Resolve validates rawPath and returns its absolute form. Only regular
// files are accepted; symlinks are not followed.
func (l *PhotoLoader) Resolve(rawPath string) (string, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat path: %w", err)
	}

	mode := info.Mode()
	switch {
	case mode.IsRegular():
		return absPath, nil
	case mode.IsDir():
		return "", fmt.Errorf("photo is a directory: %s", absPath)
	case mode&os.ModeSymlink != 0:
		return "", fmt.Errorf("symlinks not supported: %s", absPath)
	case mode&os.ModeDevice != 0:
		return "", fmt.Errorf("device files not supported: %s", absPath)
	default:
		return "", fmt.Errorf("unsupported file type %s: %s", mode.Type(), absPath)
	}
}

// Load reads the photo at rawPath. The content type is sniffed from the
// bytes, not taken from the extension.
func (l *PhotoLoader) Load(rawPath string) (*story.Photo, error) {
	path, err := l.Resolve(rawPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening photo: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading photo: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: photo is empty: %s", story.ErrInvalidStory, path)
	}

	contentType := http.DetectContentType(data[:min(len(data), sniffLen)])
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotImage, path, contentType)
	}

	return &story.Photo{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}
