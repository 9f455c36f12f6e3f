// Package utxostore collects the unspent outputs of a wallet's active
// addresses into an in-memory pool for coin selection. A pool belongs to
// one scan and is never persisted; after a broadcast it is stale.
package utxostore

import (
	"sync"
	"time"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/wallet"
)

// StoredUTXO is a collected output together with the derivation metadata
// of the address that owns it.
type StoredUTXO struct {
	chain.UTXO

	Path  string           `json:"path"`
	Chain wallet.ChainType `json:"chain"`

	// Pool-local state
	Spent     bool      `json:"spent"`
	SpentTxID string    `json:"spent_txid,omitempty"` // txid that spent this UTXO
	FirstSeen time.Time `json:"first_seen"`
}

// Key returns the unique identifier for this UTXO (txid:vout).
func (u *StoredUTXO) Key() string {
	return u.Outpoint()
}

// AddressMetadata stores information about a collected address.
type AddressMetadata struct {
	Address        string           `json:"address"`
	DerivationPath string           `json:"derivation_path"`
	Chain          wallet.ChainType `json:"chain"`
	Index          uint32           `json:"index"`
	UTXOCount      int              `json:"utxo_count"`
	Balance        uint64           `json:"balance"`
	LastScanned    time.Time        `json:"last_scanned"`

	key chain.KeySource
}

// Pool holds the outputs of one collection pass in collection order.
// It is safe for concurrent use.
type Pool struct {
	mu        sync.RWMutex
	order     []string
	utxos     map[string]*StoredUTXO      // key: txid:vout
	addresses map[string]*AddressMetadata // key: address
	addrOrder []string
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{
		utxos:     make(map[string]*StoredUTXO),
		addresses: make(map[string]*AddressMetadata),
	}
}

// AddAddress records an address. Existing metadata is replaced but the
// address keeps its original position.
func (p *Pool) AddAddress(meta *AddressMetadata) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.addresses[meta.Address]; !ok {
		p.addrOrder = append(p.addrOrder, meta.Address)
	}
	p.addresses[meta.Address] = meta
}

// AddUTXO adds an output. It reports false when the outpoint is already
// in the pool.
func (p *Pool) AddUTXO(u *StoredUTXO) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := u.Key()
	if _, ok := p.utxos[key]; ok {
		return false
	}
	if u.FirstSeen.IsZero() {
		u.FirstSeen = time.Now()
	}
	p.utxos[key] = u
	p.order = append(p.order, key)
	return true
}

// All returns every output, spent or not, in collection order.
func (p *Pool) All() []StoredUTXO {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]StoredUTXO, 0, len(p.order))
	for _, key := range p.order {
		out = append(out, *p.utxos[key])
	}
	return out
}

// Available returns the unspent outputs in collection order, ready for
// coin selection.
func (p *Pool) Available() []chain.UTXO {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]chain.UTXO, 0, len(p.order))
	for _, key := range p.order {
		if u := p.utxos[key]; !u.Spent {
			out = append(out, u.UTXO)
		}
	}
	return out
}

// Total returns the sum of unspent outputs in satoshis.
func (p *Pool) Total() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var total uint64
	for _, u := range p.utxos {
		if !u.Spent {
			total += u.Amount
		}
	}
	return total
}

// Len returns the number of unspent outputs.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, u := range p.utxos {
		if !u.Spent {
			n++
		}
	}
	return n
}

// Addresses returns the collected addresses in collection order.
func (p *Pool) Addresses() []AddressMetadata {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]AddressMetadata, 0, len(p.addrOrder))
	for _, addr := range p.addrOrder {
		out = append(out, *p.addresses[addr])
	}
	return out
}

// KeyFor returns the key owning address. Pool implements btc.KeyRing.
func (p *Pool) KeyFor(address string) (chain.KeySource, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	meta, ok := p.addresses[address]
	if !ok || meta.key == nil {
		return nil, false
	}
	return meta.key, true
}

// MarkSpent flags the given outpoints as spent by txid and returns how
// many were found.
func (p *Pool) MarkSpent(outpoints []string, txid string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, op := range outpoints {
		if u, ok := p.utxos[op]; ok && !u.Spent {
			u.Spent = true
			u.SpentTxID = txid
			n++
		}
	}
	return n
}
