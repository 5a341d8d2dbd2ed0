package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	blobExt   = ".json"
	tmpPrefix = ".pagenotes-tmp-"
)

// blobFile is the on-disk envelope. Keys are arbitrary strings (URLs), so the
// file name is a digest and the key travels inside the file.
type blobFile struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// FS implements KeyValueStore with one file per key in a directory.
type FS struct {
	root string // absolute path to the data directory
}

// NewFS creates a new FS store rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute data directory.
func (f *FS) Root() string {
	return f.root
}

// FileName returns the file name (relative to Root) that holds key.
func FileName(key string) string {
	return checksum([]byte(key)) + blobExt
}

func (f *FS) pathFor(key string) string {
	return filepath.Join(f.root, FileName(key))
}

// Get returns the value stored under key, or def.
func (f *FS) Get(key, def string) (string, error) {
	b, err := readBlob(f.pathFor(key))
	if errors.Is(err, os.ErrNotExist) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	if b.Key != key {
		return "", fmt.Errorf("storage: digest collision for key %q", key)
	}
	return b.Value, nil
}

// Set atomically writes value: tmp file → fsync → rename.
func (f *FS) Set(key, value string) error {
	content, err := json.Marshal(blobFile{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}

	tmp, err := os.CreateTemp(f.root, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, f.pathFor(key)); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes the file holding key.
func (f *FS) Delete(key string) error {
	if err := os.Remove(f.pathFor(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete %q: %w", key, err)
	}
	return nil
}

// ListKeys reads every blob file in the directory and returns their keys,
// sorted. Unreadable files are skipped.
func (f *FS) ListKeys() ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if !isBlobName(e.Name()) || e.IsDir() {
			continue
		}
		b, err := readBlob(filepath.Join(f.root, e.Name()))
		if err != nil {
			continue
		}
		keys = append(keys, b.Key)
	}
	slices.Sort(keys)
	return keys, nil
}

// KeyOf returns the key stored in the blob file at path.
func KeyOf(path string) (string, error) {
	b, err := readBlob(path)
	if err != nil {
		return "", err
	}
	return b.Key, nil
}

func isBlobName(name string) bool {
	return strings.HasSuffix(name, blobExt) && !strings.HasPrefix(name, tmpPrefix)
}

func readBlob(path string) (*blobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b blobFile
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", filepath.Base(path), err)
	}
	return &b, nil
}

func checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
