package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/cache"
	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/chain/btc"
	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/wallet"
)

type cmdContextKey struct{}

// CommandContext holds dependencies for CLI commands. Chain, Broadcaster
// and Cache are built from the configuration on first use unless set.
type CommandContext struct {
	Cfg     *config.Config
	Log     *config.Logger
	Fmt     *output.Formatter
	Metrics *metrics.Metrics

	Chain       ChainBackend
	Broadcaster chain.Broadcaster
	Cache       cache.Cache

	cacheStore *cache.FileStorage
}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(cfg *config.Config, logger *config.Logger, formatter *output.Formatter) *CommandContext {
	return &CommandContext{
		Cfg:     cfg,
		Log:     logger,
		Fmt:     formatter,
		Metrics: metrics.Global,
	}
}

// WithChain sets the chain backend.
func (c *CommandContext) WithChain(b ChainBackend) *CommandContext {
	c.Chain = b
	return c
}

// WithBroadcaster sets the broadcaster used by tx send.
func (c *CommandContext) WithBroadcaster(b chain.Broadcaster) *CommandContext {
	c.Broadcaster = b
	return c
}

// WithCache sets the balance cache.
func (c *CommandContext) WithCache(balanceCache cache.Cache) *CommandContext {
	c.Cache = balanceCache
	return c
}

// SetCmdContext attaches cc to the command's context.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the command's CommandContext, or nil.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cc, _ := ctx.Value(cmdContextKey{}).(*CommandContext)
	return cc
}

// contextWithTimeout returns a timeout context rooted in the command context.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, d)
}

// Network resolves the configured network.
func (c *CommandContext) Network() (chain.Network, error) {
	return c.Cfg.ChainNetwork()
}

// Engine returns a derivation engine for the configured network.
func (c *CommandContext) Engine() (*wallet.Engine, error) {
	net, err := c.Network()
	if err != nil {
		return nil, err
	}
	return wallet.NewEngine(net)
}

// ChainBackend returns the chain backend, creating an Esplora client for
// the configured network on first use.
func (c *CommandContext) ChainBackend() (ChainBackend, error) {
	if c.Chain != nil {
		return c.Chain, nil
	}
	net, err := c.Network()
	if err != nil {
		return nil, err
	}
	client, err := c.newClient(net, "")
	if err != nil {
		return nil, err
	}
	c.Chain = client
	return client, nil
}

// TxBroadcaster returns the broadcaster for sends: the chain backend,
// followed by one client per configured fallback URL.
func (c *CommandContext) TxBroadcaster() (chain.Broadcaster, error) {
	if c.Broadcaster != nil {
		return c.Broadcaster, nil
	}
	primary, err := c.ChainBackend()
	if err != nil {
		return nil, err
	}
	if len(c.Cfg.Network.FallbackURLs) == 0 {
		c.Broadcaster = primary
		return primary, nil
	}

	net, err := c.Network()
	if err != nil {
		return nil, err
	}
	bs := []chain.Broadcaster{primary}
	for _, u := range c.Cfg.Network.FallbackURLs {
		if u = config.SanitizeURL(u); u == "" {
			continue
		}
		client, err := c.newClient(net, u)
		if err != nil {
			return nil, err
		}
		bs = append(bs, client)
	}
	c.Broadcaster = btc.NewFallbackBroadcaster(c.Log.Zerolog(), bs...)
	return c.Broadcaster, nil
}

// BalanceCache returns the display cache, loading it from disk on first
// use. It returns nil when caching is disabled.
func (c *CommandContext) BalanceCache() cache.Cache {
	if c.Cache != nil || !c.Cfg.Cache.Enabled {
		return c.Cache
	}

	c.cacheStore = cache.NewFileStorage(c.Cfg.CachePath())
	loaded, err := c.cacheStore.Load()
	if err != nil {
		c.Log.Debug("balance cache: %v", err)
	}
	if loaded == nil {
		loaded = cache.NewBalanceCache()
	}
	c.Cache = loaded
	return c.Cache
}

// saveCache writes back a cache loaded by BalanceCache.
func (c *CommandContext) saveCache() {
	if c.cacheStore == nil {
		return
	}
	bc, ok := c.Cache.(*cache.BalanceCache)
	if !ok {
		return
	}
	bc.Prune(24 * time.Hour)
	if err := c.cacheStore.Save(bc); err != nil {
		c.Log.Error("saving balance cache: %v", err)
	}
}

// logMetrics writes a summary of the run's chain activity to the debug log.
func (c *CommandContext) logMetrics() {
	if c.Metrics == nil {
		return
	}
	snap, err := c.Metrics.Snapshot()
	if err != nil || snap.RPCCallsTotal == 0 {
		return
	}
	c.Log.Debug("chain requests: %d (%d failed, avg %.1f ms), addresses scanned: %d, query failures: %d, utxos: %d, broadcasts: %d",
		snap.RPCCallsTotal, snap.RPCErrorsTotal, snap.RPCLatencyAvgMs(),
		snap.AddressesScanned, snap.QueryFailures, snap.UTXOsCollected, snap.Broadcasts)
}

func (c *CommandContext) newClient(net chain.Network, baseURL string) (*btc.Client, error) {
	retry := chain.DefaultRetryConfig()
	if c.Cfg.Network.RetryAttempts > 0 {
		retry.MaxAttempts = c.Cfg.Network.RetryAttempts
	}
	return btc.NewClient(net, &btc.ClientOptions{
		BaseURL:        baseURL,
		Timeout:        c.Cfg.Timeout(),
		RateLimiter:    chain.NewRateLimiter(c.Cfg.Network.RateLimit, c.Cfg.Network.RateBurst),
		Retry:          &retry,
		Metrics:        c.Metrics,
		Logger:         c.Log.Zerolog(),
		DefaultFeeRate: c.Cfg.Fees.DefaultRate,
	})
}
