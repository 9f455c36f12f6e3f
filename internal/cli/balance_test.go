package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/cache"
	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

func TestRunBalance_JSON(t *testing.T) {
	balanceRefresh = false
	env := newTestEnv(t, output.FormatJSON)
	a := env.testKey(t, 0, wallet.Receiving, 0).Address()
	b := env.testKey(t, 0, wallet.Receiving, 1).Address()
	env.backend.fund(a, 40000)
	env.backend.fund(b, 2000, 3000)

	require.NoError(t, runBalance(env.cmd, []string{a, " " + b + " "}))

	var resp BalanceResponse
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &resp))
	assert.Equal(t, "testnet4", resp.Network)
	assert.Equal(t, "0.00045000", resp.Total)
	require.Len(t, resp.Balances, 2)
	assert.Equal(t, a, resp.Balances[0].Address)
	assert.Equal(t, uint64(5000), resp.Balances[1].Total)
	assert.Empty(t, resp.Errors)
}

func TestRunBalance_SingleFailure(t *testing.T) {
	balanceRefresh = false
	env := newTestEnv(t, output.FormatText)
	a := env.testKey(t, 0, wallet.Receiving, 0).Address()
	env.backend.failStats[a] = true

	err := runBalance(env.cmd, []string{a})
	require.ErrorIs(t, err, satchelerr.ErrQuery)
	assert.Equal(t, a, satchelerr.Detail(err, "address"))
	assert.Empty(t, env.out.String())
}

func TestRunBalance_PartialAndInvalid(t *testing.T) {
	balanceRefresh = false
	env := newTestEnv(t, output.FormatText)
	a := env.testKey(t, 0, wallet.Receiving, 0).Address()
	env.backend.fund(a, 1500)

	require.NoError(t, runBalance(env.cmd, []string{a, "bc1qnotvalid"}))

	text := env.out.String()
	assert.Contains(t, text, a)
	assert.Contains(t, text, "Total: 0.00001500 (testnet4)")
	assert.Contains(t, text, "⚠️")
}

func TestRunBalance_StaleCache(t *testing.T) {
	balanceRefresh = false
	env := newTestEnv(t, output.FormatText)
	a := env.testKey(t, 0, wallet.Receiving, 0).Address()

	bc := cache.NewBalanceCache()
	bc.Set(cache.BalanceCacheEntry{
		Network:   "testnet4",
		Address:   a,
		Confirmed: 9000,
		TxCount:   1,
		UpdatedAt: time.Now().Add(-time.Hour),
	})
	env.cc.WithCache(bc)
	env.backend.failStats[a] = true

	require.NoError(t, runBalance(env.cmd, []string{a}))
	assert.Contains(t, env.out.String(), "0.00009000 *")
	assert.Contains(t, env.out.String(), "Cached value")
}

func TestRunBalance_FreshCacheSkipsQuery(t *testing.T) {
	env := newTestEnv(t, output.FormatJSON)
	a := env.testKey(t, 0, wallet.Receiving, 0).Address()

	bc := cache.NewBalanceCache()
	bc.Set(cache.BalanceCacheEntry{Network: "testnet4", Address: a, Confirmed: 700, TxCount: 1})
	env.cc.WithCache(bc)
	env.backend.failStats[a] = true

	balanceRefresh = false
	require.NoError(t, runBalance(env.cmd, []string{a}))
	assert.Contains(t, env.out.String(), `"cached": true`)

	balanceRefresh = true
	t.Cleanup(func() { balanceRefresh = false })
	env.out.Reset()
	require.NoError(t, runBalance(env.cmd, []string{a}), "failed refresh falls back to the cached entry")
	assert.Contains(t, env.out.String(), `"stale": true`)
}

func TestFormatSignedBTC(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "0.00000000", formatSignedBTC(0))
	assert.Equal(t, "0.00001000", formatSignedBTC(1000))
	assert.Equal(t, "-0.00001000", formatSignedBTC(-1000))
}
