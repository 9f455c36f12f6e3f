package utxostore

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/discovery"
	"github.com/mrz1836/satchel/internal/metrics"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// CollectorOptions configures a Collector.
type CollectorOptions struct {
	// FundedOnly skips active addresses whose scanned balance is zero.
	FundedOnly bool

	// Logger receives debug output; nil disables logging.
	Logger *zerolog.Logger

	// Metrics receives collection metrics; nil uses metrics.Global.
	Metrics *metrics.Metrics
}

// Collector gathers the unspent outputs of active addresses.
type Collector struct {
	lister  chain.UTXOLister
	opts    CollectorOptions
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewCollector creates a collector querying lister.
func NewCollector(lister chain.UTXOLister, opts *CollectorOptions) *Collector {
	c := &Collector{
		lister:  lister,
		logger:  zerolog.Nop(),
		metrics: metrics.Global,
	}
	if opts != nil {
		c.opts = *opts
		if opts.Logger != nil {
			c.logger = opts.Logger.With().Str("component", "utxostore").Logger()
		}
		if opts.Metrics != nil {
			c.metrics = opts.Metrics
		}
	}
	return c
}

// scriptKey is implemented by keys that know their locking script.
type scriptKey interface {
	ScriptPubKey() []byte
}

// Collect queries the unspent outputs of every active address in the
// given order and attaches the owning key to each. A failed query aborts
// collection; no partial pool is returned.
func (c *Collector) Collect(ctx context.Context, active []discovery.ActiveAddress) (*Pool, error) {
	pool := NewPool()

	for _, addr := range active {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if c.opts.FundedOnly && !addr.Funded() {
			continue
		}
		if addr.Key == nil {
			return nil, satchelerr.WithDetails(satchelerr.ErrSigning, map[string]string{
				"address": addr.Address,
				"path":    addr.Path,
				"reason":  "active address has no key",
			})
		}

		utxos, err := c.lister.ListUTXOs(ctx, addr.Address)
		if err != nil {
			return nil, satchelerr.WithDetails(satchelerr.WithCause(satchelerr.ErrQuery, err), map[string]string{
				"address": addr.Address,
				"path":    addr.Path,
			})
		}

		meta := &AddressMetadata{
			Address:        addr.Address,
			DerivationPath: addr.Path,
			Chain:          addr.Chain,
			Index:          addr.Index,
			LastScanned:    time.Now(),
			key:            addr.Key,
		}

		var script []byte
		if sk, ok := addr.Key.(scriptKey); ok {
			script = sk.ScriptPubKey()
		}

		for _, u := range utxos {
			if u.Address != "" && u.Address != addr.Address {
				return nil, satchelerr.WithDetails(satchelerr.ErrQuery, map[string]string{
					"address":  addr.Address,
					"outpoint": u.Outpoint(),
					"reason":   fmt.Sprintf("output reported for %s", u.Address),
				})
			}
			u.Address = addr.Address
			u.Key = addr.Key
			if len(u.ScriptPubKey) == 0 {
				u.ScriptPubKey = script
			}

			if pool.AddUTXO(&StoredUTXO{UTXO: u, Path: addr.Path, Chain: addr.Chain}) {
				meta.UTXOCount++
				meta.Balance += u.Amount
			}
		}
		pool.AddAddress(meta)
		c.metrics.RecordUTXOs(meta.UTXOCount)

		c.logger.Debug().
			Str("address", addr.Address).
			Str("path", addr.Path).
			Int("utxos", meta.UTXOCount).
			Uint64("balance", meta.Balance).
			Msg("collected outputs")
	}

	return pool, nil
}
