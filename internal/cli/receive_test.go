package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

func resetReceiveFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		receiveIndex, receiveAccount, receiveAmount, receiveLabel = 0, 0, "", ""
		receiveNoQR, receivePassphrase = false, false
	}
	reset()
	t.Cleanup(reset)
}

func TestRunReceive_NextUnused(t *testing.T) {
	withMnemonic(t)
	withMockPrompts(t, nil, false)
	resetReceiveFlags(t)

	env := newTestEnv(t, output.FormatJSON)
	env.cc.Cfg.Derivation.GapLimit = 3
	env.backend.fund(env.testKey(t, 0, wallet.Receiving, 0).Address(), 1000)
	env.backend.fund(env.testKey(t, 0, wallet.Receiving, 1).Address(), 1000)
	receiveAmount, receiveLabel = "0.0015", "invoice 42"

	require.NoError(t, runReceive(env.cmd, nil))

	var resp ReceiveResponse
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &resp))
	want := env.testKey(t, 0, wallet.Receiving, 2)
	assert.True(t, resp.Scanned)
	assert.Equal(t, uint32(2), resp.Index)
	assert.Equal(t, want.Address(), resp.Address)
	assert.Equal(t, want.Path(), resp.Path)
	assert.Equal(t, "bitcoin:"+want.Address()+"?amount=0.0015&label=invoice%2042", resp.URI)
}

func TestRunReceive_ExplicitIndexSkipsScan(t *testing.T) {
	withMnemonic(t)
	withMockPrompts(t, nil, false)
	resetReceiveFlags(t)

	env := newTestEnv(t, output.FormatText)
	env.cmd.Flags().Uint32Var(&receiveIndex, "index", 0, "")
	require.NoError(t, env.cmd.Flags().Set("index", "7"))
	receiveNoQR = true
	// A scan would fail on this address.
	env.backend.failStats[env.testKey(t, 0, wallet.Receiving, 0).Address()] = true

	require.NoError(t, runReceive(env.cmd, nil))

	want := env.testKey(t, 0, wallet.Receiving, 7)
	assert.Contains(t, env.out.String(), "Address: "+want.Address())
	assert.Contains(t, env.out.String(), "URI:     bitcoin:"+want.Address())
}

func TestRunReceive_InvalidAmount(t *testing.T) {
	resetReceiveFlags(t)
	env := newTestEnv(t, output.FormatText)
	receiveAmount = "lots"

	err := runReceive(env.cmd, nil)
	require.ErrorIs(t, err, satchelerr.ErrInvalidAmount)
}
