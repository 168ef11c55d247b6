package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"storysync/internal/story"
)

// pngHeader is the 8-byte PNG signature followed by an IHDR chunk start.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestPhotoLoader_Load(t *testing.T) {
	dir := t.TempDir()
	l := NewPhotoLoader()

	t.Run("png", func(t *testing.T) {
		path := writeFile(t, dir, "cat.png", pngHeader)

		photo, err := l.Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if photo.Name != "cat.png" || photo.ContentType != "image/png" || len(photo.Data) != len(pngHeader) {
			t.Errorf("Load() = %+v", photo)
		}
	})

	t.Run("extension does not decide the type", func(t *testing.T) {
		path := writeFile(t, dir, "notes.jpg", []byte("just some text"))

		if _, err := l.Load(path); !errors.Is(err, ErrNotImage) {
			t.Errorf("Load() error = %v, want ErrNotImage", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeFile(t, dir, "empty.png", nil)

		if _, err := l.Load(path); !errors.Is(err, story.ErrInvalidStory) {
			t.Errorf("Load() error = %v, want ErrInvalidStory", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := l.Load(filepath.Join(dir, "nope.png")); err == nil {
			t.Error("Load() of a missing file succeeded")
		}
	})
}

func TestPhotoLoader_Resolve(t *testing.T) {
	dir := t.TempDir()
	l := NewPhotoLoader()
	target := writeFile(t, dir, "real.png", pngHeader)

	t.Run("relative path becomes absolute", func(t *testing.T) {
		t.Chdir(dir)

		got, err := l.Resolve("real.png")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !filepath.IsAbs(got) || filepath.Base(got) != "real.png" {
			t.Errorf("Resolve() = %q", got)
		}
	})

	t.Run("directory", func(t *testing.T) {
		if _, err := l.Resolve(dir); err == nil {
			t.Error("Resolve() accepted a directory")
		}
	})

	t.Run("symlink", func(t *testing.T) {
		link := filepath.Join(dir, "link.png")
		if err := os.Symlink(target, link); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
		if _, err := l.Resolve(link); err == nil {
			t.Error("Resolve() followed a symlink")
		}
	})
}
