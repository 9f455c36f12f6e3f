package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/chain"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

func TestDeriveAddressFromXpub_MatchesSeed(t *testing.T) {
	t.Parallel()
	seed := getTestSeed(t)

	for _, net := range []chain.Network{chain.MainNet.WithPurpose(84), chain.TestNet4} {
		t.Run(net.Name, func(t *testing.T) {
			t.Parallel()
			engine := newTestEngine(t, net)
			xpub, err := engine.AccountXpub(seed, 0)
			require.NoError(t, err)

			for _, ct := range []ChainType{Receiving, Change} {
				for index := uint32(0); index < 3; index++ {
					want, err := engine.DeriveAddress(seed, 0, ct, index)
					require.NoError(t, err)
					got, err := DeriveAddressFromXpub(xpub, net, ct, index)
					require.NoError(t, err)
					assert.Equal(t, want, got, "%s/%d", ct, index)
				}
			}
		})
	}
}

func TestDeriveAddressFromXpub_Errors(t *testing.T) {
	t.Parallel()
	seed := getTestSeed(t)
	xpub, err := newTestEngine(t, chain.MainNet).AccountXpub(seed, 0)
	require.NoError(t, err)

	tests := []struct {
		name  string
		xpub  string
		net   chain.Network
		ct    ChainType
		index uint32
	}{
		{"garbage", "xpub-not-a-key", chain.MainNet, Receiving, 0},
		{"wrong network", xpub, chain.TestNet4, Receiving, 0},
		{"bad chain", xpub, chain.MainNet, ChainType(2), 0},
		{"hardened index", xpub, chain.MainNet, Receiving, chain.HardenedKeyOffset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DeriveAddressFromXpub(tt.xpub, tt.net, tt.ct, tt.index)
			require.ErrorIs(t, err, satchelerr.ErrDerivation)
		})
	}
}
