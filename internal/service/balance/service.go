// Package balance checks the balance of individual addresses, with an
// optional display cache in front of the chain query service.
package balance

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/satchel/internal/cache"
	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

const defaultMaxConcurrent = 4

// Config holds the configuration for the balance service.
type Config struct {
	Stats   chain.StatsReader
	Network chain.Network

	// Cache is optional; nil always queries the chain.
	Cache cache.Cache

	// Staleness is how long a cached entry is served; zero uses cache.DefaultStaleness.
	Staleness time.Duration

	Logger  *zerolog.Logger
	Metrics *metrics.Metrics
}

// Service provides balance lookups.
type Service struct {
	stats     chain.StatsReader
	net       chain.Network
	cache     cache.Cache
	staleness time.Duration
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewService creates a new balance service.
func NewService(cfg *Config) *Service {
	s := &Service{
		stats:     cfg.Stats,
		net:       cfg.Network,
		cache:     cfg.Cache,
		staleness: cfg.Staleness,
		logger:    zerolog.Nop(),
		metrics:   cfg.Metrics,
	}
	if s.staleness <= 0 {
		s.staleness = cache.DefaultStaleness
	}
	if cfg.Logger != nil {
		s.logger = cfg.Logger.With().Str("component", "balance").Logger()
	}
	if s.metrics == nil {
		s.metrics = metrics.Global
	}
	return s
}

// FetchBalance returns the balance of a single address. A fresh cache
// entry is served without a query; when the query fails a cached entry
// of any age is returned marked Stale with the failure in Error.
func (s *Service) FetchBalance(ctx context.Context, req *FetchRequest) (result *FetchResult, err error) {
	defer func() { s.metrics.RecordWalletOp("balance", err) }()

	if err := wallet.ValidateAddress(req.Address, s.net); err != nil {
		return nil, err
	}

	if s.cache != nil && !req.ForceRefresh && !s.cache.IsStale(s.net.Name, req.Address, s.staleness) {
		if entry, ok, _ := s.cache.Get(s.net.Name, req.Address); ok {
			return s.fromCache(entry, false), nil
		}
	}

	fetchCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	stats, err := s.stats.AddressStats(fetchCtx, req.Address)
	if err != nil {
		if s.cache != nil {
			if entry, ok, age := s.cache.Get(s.net.Name, req.Address); ok {
				s.logger.Warn().Err(err).Str("address", req.Address).Dur("age", age).Msg("serving stale balance")
				res := s.fromCache(entry, true)
				res.Error = err
				return res, nil
			}
		}
		return nil, satchelerr.WithDetails(satchelerr.WithCause(satchelerr.ErrQuery, err), map[string]string{
			"address": req.Address,
		})
	}
	if stats.Address == "" {
		stats.Address = req.Address
	}

	result = resultFromStats(s.net, stats)
	if s.cache != nil {
		s.cache.Set(cache.BalanceCacheEntry{
			Network:     s.net.Name,
			Address:     req.Address,
			Confirmed:   result.Confirmed,
			Unconfirmed: result.Unconfirmed,
			TxCount:     result.TxCount,
			UpdatedAt:   result.UpdatedAt,
		})
	}
	return result, nil
}

// FetchBalances fetches balances for multiple addresses concurrently.
// Results keep the order of req.Addresses.
func (s *Service) FetchBalances(ctx context.Context, req *FetchBatchRequest) *FetchBatchResult {
	out := &FetchBatchResult{Results: make([]*FetchResult, len(req.Addresses))}

	maxConcurrent := req.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, address := range req.Addresses {
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				mu.Lock()
				out.Errors = append(out.Errors, ctx.Err())
				mu.Unlock()
				return
			}
			defer func() { <-sem }()

			res, err := s.FetchBalance(ctx, &FetchRequest{
				Address:      address,
				ForceRefresh: req.ForceRefresh,
				Timeout:      req.Timeout,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Errors = append(out.Errors, err)
				return
			}
			out.Results[i] = res
		}()
	}

	wg.Wait()
	return out
}

func (s *Service) fromCache(entry *cache.BalanceCacheEntry, stale bool) *FetchResult {
	total := entry.Confirmed
	if entry.Unconfirmed >= 0 {
		total += uint64(entry.Unconfirmed)
	} else if uint64(-entry.Unconfirmed) < total {
		total -= uint64(-entry.Unconfirmed)
	} else {
		total = 0
	}
	return &FetchResult{
		Network:     entry.Network,
		Address:     entry.Address,
		Confirmed:   entry.Confirmed,
		Unconfirmed: entry.Unconfirmed,
		Total:       total,
		TxCount:     entry.TxCount,
		Used:        entry.TxCount > 0 || total > 0,
		Cached:      true,
		Stale:       stale,
		UpdatedAt:   entry.UpdatedAt,
	}
}
