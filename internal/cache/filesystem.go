package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/colthorp/teampulse-go/internal/core"
)

// FilesystemBackend stores one JSON file per key on disk.
// Directory layout: <root>/<namespace>/<sha256 of key>.json
//
// Ticket keys carry a whole email set and outgrow filename limits, so files are
// named by hash and the key itself is read back from the stored envelope.
type FilesystemBackend struct {
	root      string
	writeLock sync.Mutex
}

// NewFilesystemBackend creates a new filesystem-based cache backend.
func NewFilesystemBackend(root string) *FilesystemBackend {
	if root == "" {
		root = filepath.Join(core.CacheRoot(), "files")
	}
	return &FilesystemBackend{root: root}
}

// Path returns the filesystem path for key.
func (b *FilesystemBackend) Path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(b.root, Namespace(key), hex.EncodeToString(sum[:])+".json")
}

// Read returns the file contents for key. A missing file is a miss.
func (b *FilesystemBackend) Read(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(b.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Write persists data atomically. ttl is ignored; Store enforces expiry.
func (b *FilesystemBackend) Write(key string, data []byte, _ time.Duration) error {
	path := b.Path(key)

	b.writeLock.Lock()
	defer b.writeLock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Delete removes the file for key.
func (b *FilesystemBackend) Delete(key string) error {
	err := os.Remove(b.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Keys walks the cache directory and returns keys with the given prefix, sorted.
func (b *FilesystemBackend) Keys(prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		key, ok := envelopeKey(path)
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *FilesystemBackend) Close() error { return nil }

// envelopeKey reads the key recorded in the Entry stored at path.
// Files that are not envelopes are skipped.
func envelopeKey(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var head struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.Key == "" {
		return "", false
	}
	return head.Key, true
}
