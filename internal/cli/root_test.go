package cli

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/output"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// resetGlobals restores the root flags and state after a test.
func resetGlobals(t *testing.T) {
	t.Helper()
	reset := func() {
		cleanup()
		homeDir, outputFormat, networkName, verbose = "", "auto", "", false
		cfg, logger, formatter = nil, nil, nil
	}
	reset()
	t.Cleanup(reset)
}

func writeTestConfig(t *testing.T, mutate func(*config.Config)) string {
	t.Helper()
	home := t.TempDir()
	c := config.Defaults()
	c.Logging.File = filepath.Join(home, "satchel.log")
	if mutate != nil {
		mutate(c)
	}
	require.NoError(t, config.Save(c, config.Path(home)))
	return home
}

func TestInitGlobals_Precedence(t *testing.T) {
	resetGlobals(t)
	home := writeTestConfig(t, func(c *config.Config) {
		c.Network.Name = "signet"
		c.Derivation.GapLimit = 30
		c.Output.DefaultFormat = "text"
	})
	t.Setenv(config.EnvHome, "")
	t.Setenv(config.EnvGapLimit, "40")
	t.Setenv(config.EnvNetwork, "regtest")

	homeDir = home
	networkName = "mainnet"
	outputFormat = "json"

	require.NoError(t, initGlobals())

	assert.Equal(t, home, Config().Home)
	assert.Equal(t, "mainnet", Config().Network.Name, "flag beats environment and file")
	assert.Equal(t, 40, Config().Derivation.GapLimit, "environment beats file")
	assert.Equal(t, output.FormatJSON, Formatter().Format())
	require.NotNil(t, Logger())
	assert.Equal(t, filepath.Join(home, "satchel.log"), Logger().Path())
}

func TestInitGlobals_HomeFromEnvironment(t *testing.T) {
	resetGlobals(t)
	home := writeTestConfig(t, func(c *config.Config) { c.Derivation.DefaultAccount = 3 })
	t.Setenv(config.EnvHome, home)

	require.NoError(t, initGlobals())
	assert.Equal(t, uint32(3), Config().Derivation.DefaultAccount)
}

func TestInitGlobals_Verbose(t *testing.T) {
	resetGlobals(t)
	homeDir = writeTestConfig(t, nil)
	verbose = true

	require.NoError(t, initGlobals())
	assert.True(t, Config().Output.Verbose)
	assert.Equal(t, config.LogLevelDebug, Logger().Level())
}

func TestInitGlobals_InvalidNetwork(t *testing.T) {
	resetGlobals(t)
	homeDir = writeTestConfig(t, nil)
	networkName = "litecoin"

	err := initGlobals()
	require.ErrorIs(t, err, satchelerr.ErrConfigInvalid)
	assert.Equal(t, "litecoin", satchelerr.Detail(err, "network.name"))
}

func TestExitCode(t *testing.T) {
	t.Parallel()
	assert.Equal(t, satchelerr.ExitSuccess, ExitCode(nil))
	assert.Equal(t, satchelerr.ExitFunds, ExitCode(satchelerr.ErrInsufficientFunds))
	assert.Equal(t, satchelerr.ExitGeneral, ExitCode(errors.New("boom")))
}

func TestCommandTree(t *testing.T) {
	t.Parallel()

	for _, path := range [][]string{
		{"wallet", "scan"},
		{"address", "derive"},
		{"addresses", "xpub"},
		{"address", "find"},
		{"balance"},
		{"receive"},
		{"tx", "send"},
		{"version"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.NotNil(t, cmd.RunE, path)
	}
}
