package train

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TextCache stores extracted text per training file so repeat training runs
// skip extraction. Each entry is a plain text file whose first line records
// the source's size and mtime; an entry whose header no longer matches the
// source on disk is stale and ignored.
type TextCache struct {
	dir string
}

func NewTextCache(dir string) *TextCache {
	return &TextCache{dir: dir}
}

func (c *TextCache) entryPath(sourcePath string) string {
	name := filepath.Base(sourcePath)
	return filepath.Join(c.dir, name+".txt")
}

func sourceStamp(sourcePath string) (string, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("size=%d mtime=%d", info.Size(), info.ModTime().Unix()), nil
}

// Get returns the cached text for sourcePath, or ok=false when there is no
// entry or the entry is stale.
func (c *TextCache) Get(sourcePath string) (string, bool) {
	raw, err := os.ReadFile(c.entryPath(sourcePath))
	if err != nil {
		return "", false
	}
	header, body, found := strings.Cut(string(raw), "\n")
	if !found {
		return "", false
	}
	stamp, err := sourceStamp(sourcePath)
	if err != nil || header != stamp {
		return "", false
	}
	return body, true
}

// Put writes the extracted text for sourcePath. Failures are returned so the
// caller can log them, but a failed cache write never fails a training run.
func (c *TextCache) Put(sourcePath, text string) error {
	stamp, err := sourceStamp(sourcePath)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	return os.WriteFile(c.entryPath(sourcePath), []byte(stamp+"\n"+text), 0o644)
}
