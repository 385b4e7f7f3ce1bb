package batch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Cache is a parameter-addressed store for expensive outputs. The key is
// a pure function of the inputs that produced an artifact, so "is this
// already computed" is a single lookup instead of output-file existence
// checks scattered through the pipeline.
type Cache struct {
	// Dir is the cache root directory
	Dir string

	// ForceRefresh makes Get miss unconditionally, recomputing every
	// artifact while still recording the new results
	ForceRefresh bool
}

// NewCache opens (and creates if needed) a cache rooted at dir.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Cache{Dir: dir}, nil
}

// Key derives the cache key for a set of parameters. Equal parameter
// lists always produce equal keys, and any change to any parameter
// produces a different key.
func Key(params ...string) string {
	h := sha256.Sum256([]byte(strings.Join(params, "\x00")))
	return hex.EncodeToString(h[:16])
}

// Get reports whether an artifact for key exists and returns its path.
// A forced refresh never hits.
func (c *Cache) Get(key string) (string, bool) {
	if c.ForceRefresh {
		return "", false
	}
	path := filepath.Join(c.Dir, key)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Put copies the artifact at srcPath into the cache under key and
// returns the cached path.
func (c *Cache) Put(key, srcPath string) (string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dstPath := filepath.Join(c.Dir, key)
	tmp := dstPath + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("caching %s: %w", srcPath, err)
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, dstPath); err != nil {
		return "", err
	}
	return dstPath, nil
}
