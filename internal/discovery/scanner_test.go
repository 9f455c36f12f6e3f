package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

//nolint:gochecknoglobals // BIP39 standard test vector constant
var testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// errMockNetwork is returned by failing mock queries.
var errMockNetwork = errors.New("mock network error")

// mockStats is a test double for chain.StatsReader.
type mockStats struct {
	mu       sync.Mutex
	byAddr   map[string]*chain.AddressStats
	failAddr map[string]bool
	failAll  bool
	calls    []string
	onQuery  func(address string)
}

func newMockStats() *mockStats {
	return &mockStats{
		byAddr:   make(map[string]*chain.AddressStats),
		failAddr: make(map[string]bool),
	}
}

func (m *mockStats) SetStats(address string, stats chain.AddressStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats.Address = address
	m.byAddr[address] = &stats
}

func (m *mockStats) SetFunded(address string, sats uint64) {
	m.SetStats(address, chain.AddressStats{Funded: sats, TxCount: 1})
}

func (m *mockStats) FailOn(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAddr[address] = true
}

func (m *mockStats) AddressStats(_ context.Context, address string) (*chain.AddressStats, error) {
	m.mu.Lock()
	m.calls = append(m.calls, address)
	onQuery := m.onQuery
	fail := m.failAll || m.failAddr[address]
	stats, ok := m.byAddr[address]
	m.mu.Unlock()

	if onQuery != nil {
		onQuery(address)
	}
	if fail {
		return nil, errMockNetwork
	}
	if !ok {
		return &chain.AddressStats{Address: address}, nil
	}
	out := *stats
	return &out, nil
}

func (m *mockStats) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type testWallet struct {
	seed   []byte
	engine *wallet.Engine
}

func newTestWallet(t *testing.T) *testWallet {
	t.Helper()
	seed, err := wallet.MnemonicToSeed(testMnemonic, "")
	require.NoError(t, err)
	engine, err := wallet.NewEngine(chain.TestNet4)
	require.NoError(t, err)
	return &testWallet{seed: seed, engine: engine}
}

func (w *testWallet) addr(t *testing.T, ct wallet.ChainType, index uint32) string {
	t.Helper()
	address, err := w.engine.DeriveAddress(w.seed, 0, ct, index)
	require.NoError(t, err)
	return address
}

func testOptions(gap int) *Options {
	opts := DefaultOptions()
	opts.GapLimit = gap
	opts.Metrics = metrics.New()
	return opts
}

func TestNewScanner(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)

	scanner := NewScanner(newMockStats(), w.engine, nil)
	require.NotNil(t, scanner)
	assert.Equal(t, DefaultGapLimit, scanner.opts.GapLimit)
	assert.True(t, scanner.opts.ScanChange)
	assert.Equal(t, DefaultMaxConsecutiveErrors, scanner.opts.MaxConsecutiveErrors)
}

func TestOptions_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*Options)
		wantErr error
	}{
		{"defaults", func(*Options) {}, nil},
		{"zero gap", func(o *Options) { o.GapLimit = 0 }, ErrInvalidGapLimit},
		{"negative gap", func(o *Options) { o.GapLimit = -1 }, ErrInvalidGapLimit},
		{"negative error limit", func(o *Options) { o.MaxConsecutiveErrors = -1 }, satchelerr.ErrInvalidInput},
		{"hardened account", func(o *Options) { o.Account = chain.HardenedKeyOffset }, satchelerr.ErrDerivation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := DefaultOptions()
			tt.modify(opts)
			err := opts.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestScan_GapLimitTwoFundedAtZero(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)
	stats := newMockStats()
	stats.SetFunded(w.addr(t, wallet.Receiving, 0), 50000)

	result, err := NewScanner(stats, w.engine, testOptions(2)).Scan(context.Background(), w.seed)
	require.NoError(t, err)

	assert.Equal(t, 3, result.ReceivingChain.Scanned)
	assert.Equal(t, 2, result.ChangeChain.Scanned)
	assert.Equal(t, 5, result.AddressesScanned())
	assert.Equal(t, uint32(1), result.ReceivingChain.NextIndex)
	assert.Equal(t, uint32(0), result.ChangeChain.NextIndex)

	require.Len(t, result.Receiving, 1)
	active := result.Receiving[0]
	assert.Equal(t, w.addr(t, wallet.Receiving, 0), active.Address)
	assert.Equal(t, "m/44'/1'/0'/0/0", active.Path)
	assert.Equal(t, uint64(50000), active.Balance)
	assert.Empty(t, result.Change)
	assert.Equal(t, uint64(50000), result.TotalBalance)
	assert.True(t, result.HasFunds())

	// Receiving chain is finished before the change chain starts.
	require.Len(t, stats.calls, 5)
	assert.Equal(t, w.addr(t, wallet.Receiving, 2), stats.calls[2])
	assert.Equal(t, w.addr(t, wallet.Change, 0), stats.calls[3])
}

func TestScan_GapLimitBound(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)

	tests := []struct {
		name       string
		lastFunded uint32
		gap        int
	}{
		{"funded at 0 gap 1", 0, 1},
		{"funded at 3 gap 2", 3, 2},
		{"funded at 6 gap 4", 6, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stats := newMockStats()
			stats.SetFunded(w.addr(t, wallet.Receiving, tt.lastFunded), 1000)

			opts := testOptions(tt.gap)
			opts.ScanChange = false
			result, err := NewScanner(stats, w.engine, opts).Scan(context.Background(), w.seed)
			require.NoError(t, err)

			// Addresses below lastFunded are unused, so the gap may close
			// before reaching it.
			bound := int(tt.lastFunded) + tt.gap + 1
			assert.LessOrEqual(t, result.ReceivingChain.Scanned, bound)
			assert.Equal(t, stats.CallCount(), result.ReceivingChain.Scanned)
		})
	}
}

func TestScan_ContiguousActivityScansToBound(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)
	stats := newMockStats()
	for i := uint32(0); i <= 4; i++ {
		stats.SetFunded(w.addr(t, wallet.Receiving, i), 1000)
	}

	opts := testOptions(3)
	opts.ScanChange = false
	result, err := NewScanner(stats, w.engine, opts).Scan(context.Background(), w.seed)
	require.NoError(t, err)
	assert.Equal(t, 4+3+1, result.ReceivingChain.Scanned)
	assert.Len(t, result.Receiving, 5)
	assert.Equal(t, uint64(5000), result.TotalBalance)
}

func TestScan_HistoricalSpendResetsCounter(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)
	stats := newMockStats()
	stats.SetStats(w.addr(t, wallet.Receiving, 0), chain.AddressStats{Funded: 7000, Spent: 7000, TxCount: 2})
	stats.SetFunded(w.addr(t, wallet.Receiving, 2), 9000)

	opts := testOptions(2)
	opts.ScanChange = false
	result, err := NewScanner(stats, w.engine, opts).Scan(context.Background(), w.seed)
	require.NoError(t, err)

	assert.Equal(t, 5, result.ReceivingChain.Scanned)
	require.Len(t, result.Receiving, 2)
	assert.Zero(t, result.Receiving[0].Balance)
	assert.Equal(t, uint64(2), result.Receiving[0].TxCount)
	assert.False(t, result.Receiving[0].Funded())

	funded := result.Funded()
	require.Len(t, funded, 1)
	assert.Equal(t, uint32(2), funded[0].Index)
	assert.Equal(t, uint32(3), result.ReceivingChain.NextIndex)
}

func TestScan_MempoolActivityCountsAsUsed(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)
	stats := newMockStats()
	stats.SetStats(w.addr(t, wallet.Receiving, 0), chain.AddressStats{MempoolFunded: 1500, MempoolTx: 1})

	opts := testOptions(1)
	opts.ScanChange = false
	result, err := NewScanner(stats, w.engine, opts).Scan(context.Background(), w.seed)
	require.NoError(t, err)
	require.Len(t, result.Receiving, 1)
	assert.Equal(t, uint64(1500), result.Receiving[0].Balance)
}

func TestScan_ChangeChain(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)
	stats := newMockStats()
	stats.SetFunded(w.addr(t, wallet.Receiving, 0), 1000)
	stats.SetFunded(w.addr(t, wallet.Change, 1), 2500)

	result, err := NewScanner(stats, w.engine, testOptions(2)).Scan(context.Background(), w.seed)
	require.NoError(t, err)

	require.Len(t, result.Change, 1)
	change := result.Change[0]
	assert.Equal(t, wallet.Change, change.Chain)
	assert.Equal(t, "m/44'/1'/0'/1/1", change.Path)
	assert.Equal(t, 4, result.ChangeChain.Scanned)
	assert.Equal(t, uint32(2), result.ChangeChain.NextIndex)
	assert.Equal(t, uint64(3500), result.TotalBalance)

	all := result.Active()
	require.Len(t, all, 2)
	assert.Equal(t, wallet.Receiving, all[0].Chain)
	assert.Equal(t, wallet.Change, all[1].Chain)
}

func TestScan_ActiveAddressCarriesKey(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)
	stats := newMockStats()
	stats.SetFunded(w.addr(t, wallet.Receiving, 1), 1000)

	result, err := NewScanner(stats, w.engine, testOptions(2)).Scan(context.Background(), w.seed)
	require.NoError(t, err)
	require.Len(t, result.Receiving, 1)

	key := result.Receiving[0].Key
	require.NotNil(t, key)
	assert.Equal(t, result.Receiving[0].Address, key.Address())
	assert.Equal(t, result.Receiving[0].Path, key.Path())
	priv, err := key.PrivateKey()
	require.NoError(t, err)
	assert.NotNil(t, priv)
}

func TestScan_QueryFailureCountsAsUnused(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)
	stats := newMockStats()
	stats.SetFunded(w.addr(t, wallet.Receiving, 0), 1000)
	failing := w.addr(t, wallet.Receiving, 1)
	stats.FailOn(failing)

	opts := testOptions(2)
	opts.ScanChange = false
	result, err := NewScanner(stats, w.engine, opts).Scan(context.Background(), w.seed)
	require.NoError(t, err)

	assert.Equal(t, 3, result.ReceivingChain.Scanned)
	require.Len(t, result.Errors, 1)
	qe := result.Errors[0]
	assert.Equal(t, failing, qe.Address)
	assert.Equal(t, "m/44'/1'/0'/0/1", qe.Path)
	assert.Equal(t, uint32(1), qe.Index)
	require.ErrorIs(t, qe, satchelerr.ErrQuery)
	require.ErrorIs(t, qe, errMockNetwork)
	assert.Equal(t, failing, satchelerr.Detail(qe, "address"))
}

func TestScan_ConsecutiveErrorsAbort(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)
	stats := newMockStats()
	stats.failAll = true

	opts := testOptions(20)
	opts.MaxConsecutiveErrors = 3
	result, err := NewScanner(stats, w.engine, opts).Scan(context.Background(), w.seed)
	require.ErrorIs(t, err, ErrTooManyQueryErrors)
	assert.Nil(t, result)
	assert.Equal(t, 3, stats.CallCount())
	assert.Equal(t, "receiving", satchelerr.Detail(err, "chain"))
}

func TestScan_ErrorLimitDisabled(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)
	stats := newMockStats()
	stats.failAll = true

	opts := testOptions(4)
	opts.MaxConsecutiveErrors = 0
	opts.ScanChange = false
	result, err := NewScanner(stats, w.engine, opts).Scan(context.Background(), w.seed)
	require.NoError(t, err)
	assert.Len(t, result.Errors, 4)
	assert.Empty(t, result.Receiving)
}

func TestScan_StrictErrors(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)
	stats := newMockStats()
	failing := w.addr(t, wallet.Receiving, 1)
	stats.FailOn(failing)

	opts := testOptions(5)
	opts.StrictErrors = true
	_, err := NewScanner(stats, w.engine, opts).Scan(context.Background(), w.seed)
	require.ErrorIs(t, err, satchelerr.ErrQuery)
	assert.Equal(t, failing, satchelerr.Detail(err, "address"))
	assert.Equal(t, 2, stats.CallCount())
}

func TestScan_Canceled(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)
	stats := newMockStats()
	ctx, cancel := context.WithCancel(context.Background())
	stats.onQuery = func(string) { cancel() }

	_, err := NewScanner(stats, w.engine, testOptions(20)).Scan(ctx, w.seed)
	require.ErrorIs(t, err, ErrScanCanceled)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stats.CallCount())
}

func TestScan_InvalidInput(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)

	_, err := NewScanner(newMockStats(), w.engine, nil).Scan(context.Background(), nil)
	require.ErrorIs(t, err, ErrInvalidSeed)

	_, err = NewScanner(newMockStats(), w.engine, testOptions(0)).Scan(context.Background(), w.seed)
	require.ErrorIs(t, err, ErrInvalidGapLimit)

	_, err = NewScanner(newMockStats(), w.engine, nil).Scan(context.Background(), []byte{1, 2, 3})
	require.ErrorIs(t, err, satchelerr.ErrDerivation)
}

func TestScan_ParallelMatchesSequential(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)
	stats := newMockStats()
	stats.SetFunded(w.addr(t, wallet.Receiving, 0), 1000)
	stats.SetFunded(w.addr(t, wallet.Receiving, 2), 2000)
	stats.SetFunded(w.addr(t, wallet.Change, 0), 3000)

	sequential, err := NewScanner(stats, w.engine, testOptions(3)).Scan(context.Background(), w.seed)
	require.NoError(t, err)

	opts := testOptions(3)
	opts.ParallelChains = true
	parallel, err := NewScanner(stats, w.engine, opts).Scan(context.Background(), w.seed)
	require.NoError(t, err)

	assert.Equal(t, sequential.Receiving, parallel.Receiving)
	assert.Equal(t, sequential.Change, parallel.Change)
	assert.Equal(t, sequential.ReceivingChain, parallel.ReceivingChain)
	assert.Equal(t, sequential.ChangeChain, parallel.ChangeChain)
	assert.Equal(t, sequential.TotalBalance, parallel.TotalBalance)
}

// blockingStats fails every address except hold, whose query waits for
// the scan context to end.
type blockingStats struct {
	hold string
}

func (b *blockingStats) AddressStats(ctx context.Context, address string) (*chain.AddressStats, error) {
	if address == b.hold {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, errMockNetwork
}

func TestScan_ParallelFailureStopsOtherChain(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)
	stats := &blockingStats{hold: w.addr(t, wallet.Change, 0)}

	opts := testOptions(20)
	opts.MaxConsecutiveErrors = 2
	opts.ParallelChains = true
	result, err := NewScanner(stats, w.engine, opts).Scan(context.Background(), w.seed)
	require.ErrorIs(t, err, ErrTooManyQueryErrors)
	assert.Nil(t, result)
	assert.Equal(t, "receiving", satchelerr.Detail(err, "chain"))
}

// recordingDeriver keeps every key it hands out.
type recordingDeriver struct {
	engine *wallet.Engine
	mu     sync.Mutex
	keys   map[string]*wallet.DerivedKey
}

func (d *recordingDeriver) Derive(seed []byte, account uint32, ct wallet.ChainType, index uint32) (*wallet.DerivedKey, error) {
	key, err := d.engine.Derive(seed, account, ct, index)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[key.Address()] = key
	return key, nil
}

func TestScan_ZeroesKeysOfInactiveAddresses(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)
	stats := newMockStats()
	funded := w.addr(t, wallet.Receiving, 0)
	failing := w.addr(t, wallet.Receiving, 1)
	stats.SetFunded(funded, 1000)
	stats.FailOn(failing)

	deriver := &recordingDeriver{engine: w.engine, keys: make(map[string]*wallet.DerivedKey)}
	opts := testOptions(2)
	opts.ScanChange = false
	result, err := NewScanner(stats, deriver, opts).Scan(context.Background(), w.seed)
	require.NoError(t, err)
	require.Len(t, result.Receiving, 1)

	_, err = result.Receiving[0].Key.(*wallet.DerivedKey).PrivateKey()
	require.NoError(t, err)

	require.Len(t, deriver.keys, 3)
	for address, key := range deriver.keys {
		if address == funded {
			continue
		}
		_, err := key.PrivateKey()
		require.ErrorIs(t, err, wallet.ErrKeyZeroed, address)
	}
}

func TestScan_ProgressAndMetrics(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)
	stats := newMockStats()
	stats.SetFunded(w.addr(t, wallet.Receiving, 0), 1000)
	stats.FailOn(w.addr(t, wallet.Change, 0))

	var phases []string
	opts := testOptions(1)
	opts.ProgressCallback = func(u ProgressUpdate) { phases = append(phases, u.Phase) }

	_, err := NewScanner(stats, w.engine, opts).Scan(context.Background(), w.seed)
	require.NoError(t, err)
	assert.Contains(t, phases, "found")
	assert.Contains(t, phases, "error")
	assert.Equal(t, "done", phases[len(phases)-1])

	snap, err := opts.Metrics.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.AddressesScanned)
	assert.Equal(t, int64(1), snap.QueryFailures)
}

func TestScan_Deterministic(t *testing.T) {
	t.Parallel()
	w := newTestWallet(t)
	stats := newMockStats()
	stats.SetFunded(w.addr(t, wallet.Receiving, 1), 1000)

	first, err := NewScanner(stats, w.engine, testOptions(2)).Scan(context.Background(), w.seed)
	require.NoError(t, err)
	second, err := NewScanner(stats, w.engine, testOptions(2)).Scan(context.Background(), w.seed)
	require.NoError(t, err)
	assert.Equal(t, first.Receiving[0].Address, second.Receiving[0].Address)
	assert.Equal(t, first.AddressesScanned(), second.AddressesScanned())
}
