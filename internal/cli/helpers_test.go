package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/chain/btc"
	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/wallet"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var errMockNetwork = errors.New("mock network error")

// mockBackend is a test double for ChainBackend.
type mockBackend struct {
	mu         sync.Mutex
	stats      map[string]chain.AddressStats
	utxos      map[string][]chain.UTXO
	failStats  map[string]bool
	broadcasts [][]byte
	nextTx     int
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		stats:     make(map[string]chain.AddressStats),
		utxos:     make(map[string][]chain.UTXO),
		failStats: make(map[string]bool),
	}
}

func (m *mockBackend) fund(address string, amounts ...uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTx++
	var total uint64
	for i, a := range amounts {
		total += a
		m.utxos[address] = append(m.utxos[address], chain.UTXO{
			TxID:      fmt.Sprintf("%064x", m.nextTx),
			Vout:      uint32(i), //nolint:gosec // small test values
			Amount:    a,
			Address:   address,
			Confirmed: true,
		})
	}
	s := m.stats[address]
	s.Funded += total
	s.TxCount++
	m.stats[address] = s
}

func (m *mockBackend) AddressStats(_ context.Context, address string) (*chain.AddressStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStats[address] {
		return nil, errMockNetwork
	}
	s := m.stats[address]
	s.Address = address
	return &s, nil
}

func (m *mockBackend) ListUTXOs(_ context.Context, address string) ([]chain.UTXO, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chain.UTXO(nil), m.utxos[address]...), nil
}

func (m *mockBackend) Broadcast(_ context.Context, rawTx []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, append([]byte(nil), rawTx...))
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return "", err
	}
	return tx.TxHash().String(), nil
}

func (m *mockBackend) Name() string { return "mock" }

func (m *mockBackend) FeeQuote(_ context.Context) (*btc.FeeQuote, error) {
	return &btc.FeeQuote{Fastest: 20, HalfHour: 10, Hour: 5, Economy: 2, Minimum: 1, Source: "mock"}, nil
}

func (m *mockBackend) broadcastCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.broadcasts)
}

// testEnv is a command wired to a mock backend with captured output.
type testEnv struct {
	cmd     *cobra.Command
	cc      *CommandContext
	backend *mockBackend
	out     *bytes.Buffer
	errOut  *bytes.Buffer
}

func newTestEnv(t *testing.T, format output.Format) *testEnv {
	t.Helper()

	cfg := config.Defaults()
	cfg.Home = t.TempDir()
	cfg.Cache.Enabled = false
	cfg.Fees.UseEstimator = false
	cfg.Logging.File = ""

	env := &testEnv{
		backend: newMockBackend(),
		out:     &bytes.Buffer{},
		errOut:  &bytes.Buffer{},
	}
	env.cc = NewCommandContext(cfg, config.NullLogger(), output.NewFormatter(format, env.out)).WithChain(env.backend)
	env.cc.Metrics = metrics.New()

	env.cmd = &cobra.Command{}
	env.cmd.SetContext(context.Background())
	env.cmd.SetOut(env.out)
	env.cmd.SetErr(env.errOut)
	SetCmdContext(env.cmd, env.cc)
	return env
}

// testKey derives a key of the test mnemonic on the env's network.
func (e *testEnv) testKey(t *testing.T, account uint32, ct wallet.ChainType, index uint32) *wallet.DerivedKey {
	t.Helper()
	engine, err := e.cc.Engine()
	require.NoError(t, err)
	seed, err := wallet.MnemonicToSeed(testMnemonic, "")
	require.NoError(t, err)
	key, err := engine.Derive(seed, account, ct, index)
	require.NoError(t, err)
	return key
}

// withMnemonic supplies the test mnemonic through the environment.
func withMnemonic(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvMnemonic, testMnemonic)
}

// withMockPrompts replaces prompt functions and restores them on cleanup.
func withMockPrompts(t *testing.T, secrets []string, confirm bool) *[]string {
	t.Helper()
	origSecret := promptSecretFn
	origConfirm := promptConfirmFn
	t.Cleanup(func() {
		promptSecretFn = origSecret
		promptConfirmFn = origConfirm
	})

	var asked []string
	promptSecretFn = func(prompt string) ([]byte, error) {
		asked = append(asked, prompt)
		if len(secrets) == 0 {
			return nil, errors.New("no more secrets")
		}
		s := secrets[0]
		secrets = secrets[1:]
		return []byte(s), nil
	}
	promptConfirmFn = func(question string) bool {
		asked = append(asked, question)
		return confirm
	}
	return &asked
}
