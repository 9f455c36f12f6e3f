// Package chain provides the network configuration value and the shared
// types passed between the wallet core components: unspent outputs,
// address statistics and the chain query contracts.
package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"

	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// BIP44 constants.
const (
	PurposeBIP44      uint32 = 44
	CoinTypeBTC       uint32 = 0
	CoinTypeTestnet   uint32 = 1
	DefaultDustLimit  uint64 = 546
	DefaultGapLimit          = 20
	HardenedKeyOffset uint32 = 0x80000000
)

// Network is the explicit configuration threaded through derivation,
// address encoding, selection and the chain client. It replaces any
// process-wide constants so several networks can coexist.
type Network struct {
	Name      string
	Params    *chaincfg.Params
	Purpose   uint32
	CoinType  uint32
	DustLimit uint64 // satoshis
	APIURL    string // default Esplora base URL
}

// testNet4Params shares the testnet3 encodings (tb1 bech32, tpub/tprv) under its own name.
var testNet4Params = func() chaincfg.Params {
	p := chaincfg.TestNet3Params
	p.Name = "testnet4"
	p.DefaultPort = "48333"
	return p
}()

// Known networks.
var (
	MainNet = Network{
		Name:      "mainnet",
		Params:    &chaincfg.MainNetParams,
		Purpose:   PurposeBIP44,
		CoinType:  CoinTypeBTC,
		DustLimit: DefaultDustLimit,
		APIURL:    "https://mempool.space/api",
	}

	TestNet3 = Network{
		Name:      "testnet3",
		Params:    &chaincfg.TestNet3Params,
		Purpose:   PurposeBIP44,
		CoinType:  CoinTypeTestnet,
		DustLimit: DefaultDustLimit,
		APIURL:    "https://mempool.space/testnet/api",
	}

	TestNet4 = Network{
		Name:      "testnet4",
		Params:    &testNet4Params,
		Purpose:   PurposeBIP44,
		CoinType:  CoinTypeTestnet,
		DustLimit: DefaultDustLimit,
		APIURL:    "https://mempool.space/testnet4/api",
	}

	SigNet = Network{
		Name:      "signet",
		Params:    &chaincfg.SigNetParams,
		Purpose:   PurposeBIP44,
		CoinType:  CoinTypeTestnet,
		DustLimit: DefaultDustLimit,
		APIURL:    "https://mempool.space/signet/api",
	}

	RegTest = Network{
		Name:      "regtest",
		Params:    &chaincfg.RegressionNetParams,
		Purpose:   PurposeBIP44,
		CoinType:  CoinTypeTestnet,
		DustLimit: DefaultDustLimit,
		APIURL:    "http://127.0.0.1:3002/api",
	}
)

// Networks returns all known networks in display order.
func Networks() []Network {
	return []Network{MainNet, TestNet4, TestNet3, SigNet, RegTest}
}

// ParseNetwork resolves a network by name. "testnet" is an alias for testnet4.
func ParseNetwork(name string) (Network, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "testnet", "test":
		return TestNet4, nil
	case "main", "bitcoin":
		return MainNet, nil
	}
	for _, net := range Networks() {
		if net.Name == n {
			return net, nil
		}
	}
	return Network{}, satchelerr.WithDetails(satchelerr.ErrUnknownNetwork, map[string]string{"network": name})
}

// String returns the network name.
func (n Network) String() string {
	return n.Name
}

// IsZero reports whether n is the zero value.
func (n Network) IsZero() bool {
	return n.Params == nil
}

// WithPurpose returns a copy using a different BIP43 purpose.
func (n Network) WithPurpose(purpose uint32) Network {
	n.Purpose = purpose
	return n
}

// WithDustLimit returns a copy using a different dust limit.
func (n Network) WithDustLimit(dust uint64) Network {
	n.DustLimit = dust
	return n
}

// WithAPIURL returns a copy pointed at a different Esplora instance.
func (n Network) WithAPIURL(url string) Network {
	n.APIURL = strings.TrimRight(url, "/")
	return n
}

// Validate checks the network value is usable.
func (n Network) Validate() error {
	if n.Params == nil {
		return satchelerr.WithDetails(satchelerr.ErrUnknownNetwork, map[string]string{"reason": "missing chain params"})
	}
	if n.Purpose >= HardenedKeyOffset || n.CoinType >= HardenedKeyOffset {
		return satchelerr.WithDetails(satchelerr.ErrDerivation, map[string]string{
			"purpose":   fmt.Sprint(n.Purpose),
			"coin_type": fmt.Sprint(n.CoinType),
		})
	}
	return nil
}

// KeySource is a signing key owned by the derivation tree. UTXOs carry
// a reference to one so transactions can be signed without re-deriving.
type KeySource interface {
	PrivateKey() (*btcec.PrivateKey, error)
	PublicKey() *btcec.PublicKey
	Path() string
	Address() string
}

// UTXO represents an unspent transaction output.
type UTXO struct {
	TxID         string
	Vout         uint32
	Amount       uint64 // satoshis
	ScriptPubKey []byte
	Address      string
	Confirmed    bool
	BlockHeight  int64
	Key          KeySource `json:"-"`
}

// Outpoint returns the "txid:vout" identity of the output.
func (u UTXO) Outpoint() string {
	return fmt.Sprintf("%s:%d", u.TxID, u.Vout)
}

// AddressStats is the activity summary of a single address.
type AddressStats struct {
	Address       string
	Funded        uint64 // confirmed funded sum
	Spent         uint64 // confirmed spent sum
	TxCount       uint64 // confirmed transaction count
	MempoolFunded uint64
	MempoolSpent  uint64
	MempoolTx     uint64
}

// Balance returns funded minus spent including mempool, saturating at zero.
func (s AddressStats) Balance() uint64 {
	in := s.Funded + s.MempoolFunded
	out := s.Spent + s.MempoolSpent
	if out >= in {
		return 0
	}
	return in - out
}

// ConfirmedBalance returns the confirmed funded minus spent, saturating at zero.
func (s AddressStats) ConfirmedBalance() uint64 {
	if s.Spent >= s.Funded {
		return 0
	}
	return s.Funded - s.Spent
}

// TotalTxCount returns confirmed plus mempool transactions.
func (s AddressStats) TotalTxCount() uint64 {
	return s.TxCount + s.MempoolTx
}

// Used reports whether the address has ever appeared in a transaction.
func (s AddressStats) Used() bool {
	return s.TotalTxCount() > 0 || s.Balance() > 0
}

// StatsReader queries address activity.
type StatsReader interface {
	AddressStats(ctx context.Context, address string) (*AddressStats, error)
}

// UTXOLister lists unspent outputs for an address.
type UTXOLister interface {
	ListUTXOs(ctx context.Context, address string) ([]UTXO, error)
}

// Broadcaster submits a finalized transaction and returns its id.
type Broadcaster interface {
	Broadcast(ctx context.Context, rawTx []byte) (string, error)
	Name() string
}

// QueryService is the full chain collaborator used by the wallet core.
type QueryService interface {
	StatsReader
	UTXOLister
	Broadcaster
}
