package config

import (
	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/chain/btc"
	"github.com/mrz1836/satchel/internal/discovery"
)

// DefaultNetwork is the network used when none is configured.
const DefaultNetwork = "testnet4"

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.satchel",
		Network: NetworkConfig{
			Name:           DefaultNetwork,
			TimeoutSeconds: 30,
			RateLimit:      5,
			RateBurst:      10,
			RetryAttempts:  3,
		},
		Derivation: DerivationConfig{
			Purpose:              chain.PurposeBIP44,
			DefaultAccount:       0,
			GapLimit:             discovery.DefaultGapLimit,
			MaxConsecutiveErrors: discovery.DefaultMaxConsecutiveErrors,
		},
		Fees: FeesConfig{
			DefaultRate:  btc.DefaultFeeRate,
			MaxRate:      btc.MaxFeeRate,
			Priority:     string(btc.PriorityHalfHour),
			UseEstimator: true,
		},
		Cache: CacheConfig{
			Enabled:          true,
			StalenessSeconds: 300,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.satchel/satchel.log",
		},
	}
}
