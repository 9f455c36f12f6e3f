package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mrz1836/satchel/internal/fileutil"
)

const cacheFilePermissions = 0o600

// ErrCorruptCache indicates the cache file is malformed JSON.
var ErrCorruptCache = errors.New("cache file is corrupted")

// FileStorage persists a BalanceCache as JSON.
type FileStorage struct {
	path string
}

// NewFileStorage creates a new file-based cache storage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Save writes the cache atomically.
func (s *FileStorage) Save(cache *BalanceCache) error {
	cache.mu.RLock()
	data, err := json.MarshalIndent(cache, "", "  ")
	cache.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}

	if err := fileutil.WriteAtomic(s.path, data, cacheFilePermissions); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return nil
}

// Load reads the cache from the filesystem.
// Returns an empty cache if the file doesn't exist. A corrupt file is
// moved aside and an empty cache is returned along with ErrCorruptCache.
func (s *FileStorage) Load() (*BalanceCache, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewBalanceCache(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache file: %w", err)
	}

	var cache BalanceCache
	if err := json.Unmarshal(data, &cache); err != nil {
		corruptPath, renameErr := fileutil.MoveAside(s.path, "corrupt")
		if renameErr != nil {
			return NewBalanceCache(), fmt.Errorf("%w: %w (also failed to move file: %w)", ErrCorruptCache, err, renameErr)
		}
		return NewBalanceCache(), fmt.Errorf("%w: %w (moved to %s)", ErrCorruptCache, err, corruptPath)
	}

	if cache.Entries == nil {
		cache.Entries = make(map[string]BalanceCacheEntry)
	}
	return &cache, nil
}

// Delete removes the cache file.
func (s *FileStorage) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing cache file: %w", err)
	}
	return nil
}

// Path returns the cache file path.
func (s *FileStorage) Path() string {
	return s.path
}
