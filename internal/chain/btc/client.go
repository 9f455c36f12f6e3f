// Package btc implements the segwit transaction side of the wallet core:
// an Esplora (mempool.space) chain query client, fee estimation, coin
// selection and P2WPKH transaction building and signing.
package btc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/rs/zerolog"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

const (
	// defaultTimeout is the default HTTP request timeout.
	defaultTimeout = 30 * time.Second

	// maxResponseBody caps how much of a response is read.
	maxResponseBody int64 = 4 << 20

	// maxErrorBody caps how much of an error response is kept as the reason.
	maxErrorBody int64 = 1 << 10
)

// Endpoint labels used for rate limiting, metrics and logs.
const (
	endpointAddress   = "address_stats"
	endpointUTXO      = "utxo"
	endpointBroadcast = "broadcast"
	endpointFees      = "fees"
)

// ClientOptions contains optional configuration for the Esplora client.
type ClientOptions struct {
	// BaseURL overrides the network's default API URL.
	BaseURL string

	// HTTPClient overrides the HTTP client (tests inject a mock transport).
	HTTPClient *http.Client

	// Timeout is the per-request timeout when HTTPClient is nil.
	Timeout time.Duration

	// RateLimiter throttles requests; nil uses chain.DefaultRateLimiter.
	RateLimiter *chain.RateLimiter

	// Retry overrides the retry policy.
	Retry *chain.RetryConfig

	// Metrics receives request metrics; nil uses metrics.Global.
	Metrics *metrics.Metrics

	// Logger receives debug output; nil disables logging.
	Logger *zerolog.Logger

	// DefaultFeeRate is returned by FeeQuote when no estimate is available.
	DefaultFeeRate uint64
}

// Client talks to an Esplora REST API. It implements chain.QueryService.
type Client struct {
	net            chain.Network
	baseURL        string
	host           string
	httpClient     *http.Client
	limiter        *chain.RateLimiter
	retry          chain.RetryConfig
	metrics        *metrics.Metrics
	logger         zerolog.Logger
	defaultFeeRate uint64
}

var _ chain.QueryService = (*Client)(nil)

// NewClient creates a client for net.
func NewClient(net chain.Network, opts *ClientOptions) (*Client, error) {
	if err := net.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		net:            net,
		baseURL:        strings.TrimRight(net.APIURL, "/"),
		httpClient:     &http.Client{Timeout: defaultTimeout},
		limiter:        chain.DefaultRateLimiter(),
		retry:          chain.DefaultRetryConfig(),
		metrics:        metrics.Global,
		logger:         zerolog.Nop(),
		defaultFeeRate: DefaultFeeRate,
	}

	if opts != nil {
		c.applyOptions(opts)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil || u.Host == "" {
		return nil, satchelerr.WithDetails(satchelerr.ErrConfigInvalid, map[string]string{"api_url": c.baseURL})
	}
	c.host = u.Host
	return c, nil
}

func (c *Client) applyOptions(opts *ClientOptions) {
	if opts.BaseURL != "" {
		c.baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		c.httpClient = opts.HTTPClient
	} else if opts.Timeout > 0 {
		c.httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.RateLimiter != nil {
		c.limiter = opts.RateLimiter
	}
	if opts.Retry != nil {
		c.retry = *opts.Retry
	}
	if opts.Metrics != nil {
		c.metrics = opts.Metrics
	}
	if opts.Logger != nil {
		c.logger = opts.Logger.With().Str("component", "esplora").Logger()
	}
	if opts.DefaultFeeRate > 0 {
		c.defaultFeeRate = opts.DefaultFeeRate
	}
}

// Name returns the broadcaster name.
func (c *Client) Name() string { return "esplora" }

// Network returns the client's network.
func (c *Client) Network() chain.Network { return c.net }

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// esploraStats mirrors chain_stats / mempool_stats.
type esploraStats struct {
	FundedTxoSum uint64 `json:"funded_txo_sum"`
	SpentTxoSum  uint64 `json:"spent_txo_sum"`
	TxCount      uint64 `json:"tx_count"`
}

type esploraAddress struct {
	Address      string       `json:"address"`
	ChainStats   esploraStats `json:"chain_stats"`
	MempoolStats esploraStats `json:"mempool_stats"`
}

type esploraUTXO struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  uint64 `json:"value"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
}

// AddressStats returns funded/spent sums and transaction counts.
func (c *Client) AddressStats(ctx context.Context, address string) (*chain.AddressStats, error) {
	if err := wallet.ValidateAddress(address, c.net); err != nil {
		return nil, err
	}

	var resp esploraAddress
	if err := c.getJSON(ctx, endpointAddress, "/address/"+address, &resp); err != nil {
		return nil, err
	}

	return &chain.AddressStats{
		Address:       address,
		Funded:        resp.ChainStats.FundedTxoSum,
		Spent:         resp.ChainStats.SpentTxoSum,
		TxCount:       resp.ChainStats.TxCount,
		MempoolFunded: resp.MempoolStats.FundedTxoSum,
		MempoolSpent:  resp.MempoolStats.SpentTxoSum,
		MempoolTx:     resp.MempoolStats.TxCount,
	}, nil
}

// ListUTXOs returns the unspent outputs of an address, confirmed and unconfirmed.
func (c *Client) ListUTXOs(ctx context.Context, address string) ([]chain.UTXO, error) {
	if err := wallet.ValidateAddress(address, c.net); err != nil {
		return nil, err
	}

	var resp []esploraUTXO
	if err := c.getJSON(ctx, endpointUTXO, "/address/"+address+"/utxo", &resp); err != nil {
		return nil, err
	}

	utxos := make([]chain.UTXO, 0, len(resp))
	for _, u := range resp {
		if len(u.TxID) != 64 {
			return nil, fmt.Errorf("%w: malformed txid %q", satchelerr.ErrQuery, u.TxID)
		}
		utxos = append(utxos, chain.UTXO{
			TxID:        u.TxID,
			Vout:        u.Vout,
			Amount:      u.Value,
			Address:     address,
			Confirmed:   u.Status.Confirmed,
			BlockHeight: u.Status.BlockHeight,
		})
	}
	return utxos, nil
}

// Broadcast posts the serialized transaction and returns the txid.
// A transaction the node already knows is treated as success.
func (c *Client) Broadcast(ctx context.Context, rawTx []byte) (string, error) {
	body, err := c.request(ctx, endpointBroadcast, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx", strings.NewReader(hex.EncodeToString(rawTx)))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "text/plain")
		return req, nil
	})
	c.metrics.RecordBroadcast(err)

	if err != nil {
		reason := satchelerr.Detail(err, "reason")
		if isAlreadyBroadcasted(reason) {
			if txid, idErr := txIDFromRaw(rawTx); idErr == nil {
				c.logger.Debug().Str("txid", txid).Msg("transaction already known to node")
				return txid, nil
			}
		}
		if !chain.IsRetryable(err) && satchelerr.Is(err, satchelerr.ErrNetworkError) {
			return "", satchelerr.WithDetails(satchelerr.WithCause(satchelerr.ErrBroadcast, err), map[string]string{
				"reason": reason,
			})
		}
		return "", err
	}

	txid := strings.TrimSpace(string(body))
	if len(txid) != 64 {
		return "", satchelerr.WithDetails(satchelerr.ErrBroadcast, map[string]string{"reason": "unexpected response: " + truncate(txid, 80)})
	}
	return txid, nil
}

// getJSON performs a GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, out any) error {
	body, err := c.request(ctx, endpoint, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", satchelerr.ErrQuery, endpoint, err)
	}
	return nil
}

// request runs one logical call with rate limiting, retries and metrics.
func (c *Client) request(ctx context.Context, endpoint string, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	cfg := c.retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Debug().Str("endpoint", endpoint).Int("attempt", attempt).Dur("delay", delay).Err(err).Msg("retrying request")
	}

	return chain.RetryWithConfig(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx, c.host); err != nil {
			return nil, err
		}

		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		start := time.Now()
		body, err := c.do(req)
		c.metrics.RecordRPCCall(endpoint, time.Since(start), err)
		c.logger.Debug().Str("endpoint", endpoint).Str("path", req.URL.Path).Dur("took", time.Since(start)).Err(err).Msg("esplora request")
		return body, err
	})
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, chain.WrapRetryable(fmt.Errorf("%w: %w", satchelerr.ErrNetworkError, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return nil, chain.WrapRetryable(fmt.Errorf("%w: reading response: %w", satchelerr.ErrNetworkError, err))
		}
		return body, nil
	}

	reason, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	statusErr := satchelerr.WithDetails(satchelerr.ErrNetworkError, map[string]string{
		"status": fmt.Sprint(resp.StatusCode),
		"reason": strings.TrimSpace(string(reason)),
	})

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if wait := chain.ParseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
			c.logger.Debug().Dur("retry_after", wait).Msg("rate limited by server")
		}
		return nil, fmt.Errorf("%w: %w", chain.ErrRateLimited, statusErr)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, chain.WrapRetryable(statusErr)
	default:
		return nil, statusErr
	}
}

// txIDFromRaw computes the txid of a serialized transaction.
func txIDFromRaw(rawTx []byte) (string, error) {
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return "", err
	}
	return tx.TxHash().String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
