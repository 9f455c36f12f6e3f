package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Environment variable names.
const (
	EnvHome         = "SATCHEL_HOME"
	EnvNetwork      = "SATCHEL_NETWORK"
	EnvAPIURL       = "SATCHEL_API_URL"
	EnvGapLimit     = "SATCHEL_GAP_LIMIT"
	EnvAccount      = "SATCHEL_ACCOUNT"
	EnvFeeRate      = "SATCHEL_FEE_RATE"
	EnvOutputFormat = "SATCHEL_OUTPUT_FORMAT"
	EnvVerbose      = "SATCHEL_VERBOSE"
	EnvLogLevel     = "SATCHEL_LOG_LEVEL"
	EnvMnemonic     = "SATCHEL_MNEMONIC" // #nosec G101 -- false positive, this is a const name not a credential
)

// ApplyEnvironment applies environment variable overrides to the
// configuration. Unparseable numeric values are ignored.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvNetwork); v != "" {
		cfg.Network.Name = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.Network.APIURL = SanitizeURL(v)
	}

	if v := os.Getenv(EnvGapLimit); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.Derivation.GapLimit = n
		}
	}

	if v := os.Getenv(EnvAccount); v != "" {
		if n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 31); err == nil {
			cfg.Derivation.DefaultAccount = uint32(n)
		}
	}

	if v := os.Getenv(EnvFeeRate); v != "" {
		if n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64); err == nil && n > 0 {
			cfg.Fees.DefaultRate = n
			cfg.Fees.UseEstimator = false
		}
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL cleans a URL pasted by a user: surrounding whitespace,
// control and space characters and trailing slashes are removed. A
// value that does not parse as an absolute URL is returned empty.
func SanitizeURL(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	cleaned = strings.TrimRight(cleaned, "/")

	u, err := url.Parse(cleaned)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return cleaned
}
