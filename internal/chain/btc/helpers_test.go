package btc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/wallet"
)

//nolint:gochecknoglobals // BIP39 standard test vector constant
var testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

const (
	// BIP84 m/84'/0'/0'/0/0 and m/84'/0'/0'/0/1 for testMnemonic.
	testAddr0 = "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu"
	testAddr1 = "bc1qnjg0jd8228aq7egyzacy8cys3knf9xvrerkf9g"
	// BIP84 m/84'/0'/0'/1/0.
	testChangeAddr = "bc1q8c6fshw2dlwun7ekn9qwf37cu2rn755upcp6el"
	// Satoshi's genesis coinbase address, a P2PKH recipient.
	testP2PKHAddr = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
)

func testNetwork() chain.Network {
	return chain.MainNet.WithPurpose(84)
}

func testKey(t *testing.T, ct wallet.ChainType, index uint32) *wallet.DerivedKey {
	t.Helper()
	seed, err := wallet.MnemonicToSeed(testMnemonic, "")
	require.NoError(t, err)
	engine, err := wallet.NewEngine(testNetwork())
	require.NoError(t, err)
	key, err := engine.Derive(seed, 0, ct, index)
	require.NoError(t, err)
	return key
}

// fakeTxID returns a deterministic, well-formed txid.
func fakeTxID(n int) string {
	return fmt.Sprintf("%064x", n+1)
}

func utxoFor(key *wallet.DerivedKey, n int, amount uint64) chain.UTXO {
	return chain.UTXO{
		TxID:      fakeTxID(n),
		Vout:      uint32(n % 4), //nolint:gosec // small test values
		Amount:    amount,
		Address:   key.Address(),
		Confirmed: true,
		Key:       key,
	}
}

func plainUTXO(n int, amount uint64) chain.UTXO {
	return chain.UTXO{
		TxID:    fakeTxID(n),
		Vout:    0,
		Amount:  amount,
		Address: testAddr0,
	}
}
