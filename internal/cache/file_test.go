package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testNetwork = "testnet4"
	testAddress = "tb1q6rz28mcfaxtmd6v789l9rrlrusdprr9pqcpvkl"
)

func TestBalanceCache_GetSet(t *testing.T) {
	t.Parallel()
	c := NewBalanceCache()

	_, ok, _ := c.Get(testNetwork, testAddress)
	assert.False(t, ok)
	assert.True(t, c.IsStale(testNetwork, testAddress, DefaultStaleness))

	c.Set(BalanceCacheEntry{Network: testNetwork, Address: testAddress, Confirmed: 5000, TxCount: 2})

	entry, ok, age := c.Get(testNetwork, testAddress)
	require.True(t, ok)
	assert.Equal(t, uint64(5000), entry.Confirmed)
	assert.Less(t, age, time.Minute)
	assert.False(t, c.IsStale(testNetwork, testAddress, DefaultStaleness))

	// Same address on another network is a different entry.
	_, ok, _ = c.Get("mainnet", testAddress)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Size())

	c.Delete(testNetwork, testAddress)
	assert.Equal(t, 0, c.Size())
}

func TestBalanceCache_Prune(t *testing.T) {
	t.Parallel()
	c := NewBalanceCache()
	c.Set(BalanceCacheEntry{Network: testNetwork, Address: "old", UpdatedAt: time.Now().Add(-time.Hour)})
	c.Set(BalanceCacheEntry{Network: testNetwork, Address: "new"})

	assert.True(t, c.IsStale(testNetwork, "old", DefaultStaleness))
	assert.Equal(t, 1, c.Prune(10*time.Minute))
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestFileStorage_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cache", "balances.json")
	storage := NewFileStorage(path)
	assert.Equal(t, path, storage.Path())

	empty, err := storage.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Size())

	c := NewBalanceCache()
	c.Set(BalanceCacheEntry{Network: testNetwork, Address: testAddress, Confirmed: 1200, Unconfirmed: -200, TxCount: 3})
	require.NoError(t, storage.Save(c))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(cacheFilePermissions), info.Mode().Perm())

	loaded, err := storage.Load()
	require.NoError(t, err)
	entry, ok, _ := loaded.Get(testNetwork, testAddress)
	require.True(t, ok)
	assert.Equal(t, uint64(1200), entry.Confirmed)
	assert.Equal(t, int64(-200), entry.Unconfirmed)
	assert.Equal(t, uint64(3), entry.TxCount)

	require.NoError(t, storage.Delete())
	require.NoError(t, storage.Delete())
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileStorage_Corrupt(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "balances.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	c, err := NewFileStorage(path).Load()
	require.ErrorIs(t, err, ErrCorruptCache)
	require.NotNil(t, c)
	assert.Equal(t, 0, c.Size())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "balances.json.corrupt."))
}
