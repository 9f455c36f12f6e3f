// Package transaction sends payments from a wallet account: it scans the
// account, collects its unspent outputs, selects inputs, builds and signs
// the transaction and broadcasts it.
package transaction

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/chain/btc"
	"github.com/mrz1836/satchel/internal/discovery"
	"github.com/mrz1836/satchel/internal/metrics"
	scansvc "github.com/mrz1836/satchel/internal/service/discovery"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Config holds dependencies for the transaction service.
type Config struct {
	Chain  ChainClient
	Engine *wallet.Engine

	// Fees is optional; without it sends need an explicit fee rate or
	// fall back to btc.DefaultFeeRate.
	Fees FeeEstimator

	// Broadcaster overrides Chain for broadcasting.
	Broadcaster chain.Broadcaster

	Logger  *zerolog.Logger
	Metrics *metrics.Metrics
}

// Service provides transaction sending functionality.
type Service struct {
	net         chain.Network
	engine      *wallet.Engine
	scanner     *scansvc.Service
	fees        FeeEstimator
	broadcaster chain.Broadcaster
	selector    *btc.Selector
	builder     *btc.Builder
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// NewService creates a new transaction service.
func NewService(cfg *Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "send").Logger()
	}
	var broadcaster chain.Broadcaster = cfg.Chain
	if cfg.Broadcaster != nil {
		broadcaster = cfg.Broadcaster
	}
	net := cfg.Engine.Network()

	return &Service{
		net:    net,
		engine: cfg.Engine,
		scanner: scansvc.NewService(&scansvc.Config{
			Chain:   cfg.Chain,
			Engine:  cfg.Engine,
			Logger:  cfg.Logger,
			Metrics: m,
		}),
		fees:        cfg.Fees,
		broadcaster: broadcaster,
		selector:    btc.NewSelector(net),
		builder:     btc.NewBuilder(net, cfg.Logger),
		logger:      logger,
		metrics:     m,
	}
}

// Send pays the request's recipients from the account. The account is
// scanned and its outputs collected fresh on every call. A scan with any
// failed address query is refused, since it may miss inputs or hand out
// a used change address.
func (s *Service) Send(ctx context.Context, req *SendRequest) (result *SendResult, err error) {
	defer func() { s.metrics.RecordWalletOp("send", err) }()

	targets, err := s.targets(req)
	if err != nil {
		return nil, err
	}

	feeRate, feeSource, err := s.feeRate(ctx, req)
	if err != nil {
		return nil, err
	}

	scan, err := s.scanner.Scan(ctx, &scansvc.ScanRequest{
		Seed:                 req.Seed,
		Account:              req.Account,
		GapLimit:             req.GapLimit,
		MaxConsecutiveErrors: req.MaxConsecutiveErrors,
	})
	if err != nil {
		return nil, err
	}
	if err := incompleteScan(scan.Scan.Errors); err != nil {
		return nil, err
	}
	pool := scan.Pool
	if pool.Len() == 0 {
		return nil, satchelerr.WithSuggestion(satchelerr.ErrNoUTXOs, "no unspent outputs found on any address of this account")
	}

	var sel *btc.Selection
	var changeAddress string
	if req.SweepAll() {
		sel, err = s.selector.SelectAll(pool.Available(), targets[0].Address, feeRate)
	} else {
		changeAddress, err = s.changeAddress(req, scan)
		if err != nil {
			return nil, err
		}
		sel, err = s.selector.Select(pool.Available(), targets, feeRate, changeAddress)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Debug().
		Int("inputs", len(sel.Inputs)).
		Int("outputs", len(sel.Outputs)).
		Uint64("fee", sel.Fee).
		Int("vsize", sel.VSize).
		Msg("inputs selected")

	signed, err := s.builder.Build(sel, pool)
	if err != nil {
		return nil, err
	}

	result = newSendResult(s.net, req, sel, signed, feeSource)
	if req.DryRun {
		result.Status = StatusDryRun
		return result, nil
	}

	if err := s.broadcast(ctx, signed.Raw, signed.TxID); err != nil {
		return nil, err
	}

	outpoints := make([]string, len(sel.Inputs))
	for i, in := range sel.Inputs {
		outpoints[i] = in.Outpoint()
	}
	result.Spent = outpoints
	marked := pool.MarkSpent(outpoints, signed.TxID)

	s.logger.Info().
		Str("txid", signed.TxID).
		Int("spent", marked).
		Str("amount", chain.FormatBTC(result.Amount)).
		Str("fee", chain.FormatBTC(result.Fee)).
		Msg("transaction broadcast")
	return result, nil
}

// Publish broadcasts a dry-run result, typically once the user has
// confirmed it, and marks it broadcast.
func (s *Service) Publish(ctx context.Context, res *SendResult) (err error) {
	defer func() { s.metrics.RecordWalletOp("publish", err) }()

	if res == nil || res.Status != StatusDryRun {
		return satchelerr.WithSuggestion(satchelerr.ErrInvalidInput, "only a dry-run result can be published")
	}
	raw, err := hex.DecodeString(res.Hex)
	if err != nil {
		return satchelerr.WithCause(satchelerr.ErrInvalidInput, err)
	}
	if err := s.broadcast(ctx, raw, res.TxID); err != nil {
		return err
	}
	res.Status = StatusBroadcast

	s.logger.Info().Str("txid", res.TxID).Msg("transaction published")
	return nil
}

func (s *Service) broadcast(ctx context.Context, raw []byte, localTxID string) error {
	txid, err := s.broadcaster.Broadcast(ctx, raw)
	if err != nil {
		return satchelerr.WithDetails(err, map[string]string{"txid": localTxID})
	}
	if txid != "" && txid != localTxID {
		s.logger.Warn().Str("local", localTxID).Str("remote", txid).Msg("broadcast returned a different txid")
	}
	return nil
}

// incompleteScan reports failed address queries as a query error
// naming the first failure.
func incompleteScan(failures []*discovery.QueryError) error {
	if len(failures) == 0 {
		return nil
	}
	first := failures[0]
	return satchelerr.WithSuggestion(
		satchelerr.WithDetails(satchelerr.WithCause(satchelerr.ErrQuery, first), map[string]string{
			"address":        first.Address,
			"path":           first.Path,
			"failed_queries": strconv.Itoa(len(failures)),
		}),
		"the account scan was incomplete; retry when the chain service is reachable",
	)
}

// targets validates recipients and parses their amounts.
func (s *Service) targets(req *SendRequest) ([]btc.Target, error) {
	recipients := req.recipients()
	if len(recipients) == 0 {
		return nil, satchelerr.WithSuggestion(satchelerr.ErrInvalidInput, "at least one recipient is required")
	}
	if req.SweepAll() && len(recipients) > 1 {
		return nil, satchelerr.WithSuggestion(satchelerr.ErrInvalidInput, "sweeping supports a single recipient")
	}

	targets := make([]btc.Target, 0, len(recipients))
	for i, r := range recipients {
		if err := wallet.ValidateAddress(r.Address, s.net); err != nil {
			return nil, satchelerr.WithDetails(err, map[string]string{"recipient": strconv.Itoa(i)})
		}
		if i == 0 && req.SweepAll() {
			targets = append(targets, btc.Target{Address: r.Address})
			continue
		}
		amount, err := chain.ParseBTC(r.AmountStr)
		if err != nil {
			return nil, satchelerr.WithDetails(err, map[string]string{"recipient": strconv.Itoa(i), "amount": r.AmountStr})
		}
		targets = append(targets, btc.Target{Address: r.Address, Amount: amount})
	}
	return targets, nil
}

// feeRate returns the explicit rate or the estimator's rate for the
// requested priority. An unavailable estimator falls back to the default.
func (s *Service) feeRate(ctx context.Context, req *SendRequest) (uint64, string, error) {
	if req.FeeRate > 0 {
		if req.FeeRate > btc.MaxFeeRate {
			return 0, "", satchelerr.WithSuggestion(
				satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{"fee_rate": strconv.FormatUint(req.FeeRate, 10)}),
				fmt.Sprintf("fee rate must not exceed %d sat/vB", btc.MaxFeeRate),
			)
		}
		return req.FeeRate, "explicit", nil
	}

	priority, err := btc.ParseFeePriority(req.FeePriority)
	if err != nil {
		return 0, "", err
	}
	if s.fees == nil {
		return btc.DefaultFeeRate, "default", nil
	}

	quote, err := s.fees.FeeQuote(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		s.logger.Warn().Err(err).Msg("fee quote failed, using default rate")
		return btc.DefaultFeeRate, "default", nil
	}
	return quote.Rate(priority), quote.Source, nil
}

// changeAddress returns the override or the first unused change address.
func (s *Service) changeAddress(req *SendRequest, scan *scansvc.ScanResult) (string, error) {
	if req.ChangeAddress != "" {
		if err := wallet.ValidateAddress(req.ChangeAddress, s.net); err != nil {
			return "", satchelerr.Wrap(err, "change address")
		}
		return req.ChangeAddress, nil
	}
	return s.engine.DeriveAddress(req.Seed, req.Account, wallet.Change, scan.Scan.ChangeChain.NextIndex)
}

func newSendResult(net chain.Network, req *SendRequest, sel *btc.Selection, signed *btc.SignedTx, feeSource string) *SendResult {
	res := &SendResult{
		TxID:      signed.TxID,
		Hex:       signed.Hex,
		Network:   net.Name,
		Status:    StatusBroadcast,
		Fee:       sel.Fee,
		FeeRate:   sel.FeeRate,
		FeeSource: feeSource,
		VSize:     signed.VSize,
		Change:    sel.Change,
		Inputs:    len(sel.Inputs),
		Sweep:     req.SweepAll(),
	}
	for _, out := range sel.Outputs {
		if out.IsChange {
			res.ChangeAddress = out.Address
			continue
		}
		res.Recipients = append(res.Recipients, out.Address)
		res.Amount += out.Amount
	}
	return res
}
