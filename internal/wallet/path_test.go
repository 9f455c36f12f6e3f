package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

func TestParsePath_Valid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input string
		want  Path
		canon string
	}{
		{"m/44'/1'/0'/0/5", Path{44, 1, 0, Receiving, 5}, "m/44'/1'/0'/0/5"},
		{"m/84h/0h/2h/1/0", Path{84, 0, 2, Change, 0}, "m/84'/0'/2'/1/0"},
		{" M/44H/0'/2147483647'/1/2147483647 ", Path{44, 0, 2147483647, Change, 2147483647}, "m/44'/0'/2147483647'/1/2147483647"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePath(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.canon, got.String())
		})
	}
}

func TestParsePath_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing root", "44'/1'/0'/0/0"},
		{"too short", "m/44'/1'/0'"},
		{"too long", "m/44'/1'/0'/0/0/0"},
		{"unhardened purpose", "m/44/1'/0'/0/0"},
		{"hardened chain", "m/44'/1'/0'/0'/0"},
		{"hardened index", "m/44'/1'/0'/0/0'"},
		{"chain out of range", "m/44'/1'/0'/2/0"},
		{"index overflow", "m/44'/1'/0'/0/2147483648"},
		{"account overflow", "m/44'/1'/2147483648'/0/0"},
		{"not a number", "m/44'/x'/0'/0/0"},
		{"negative", "m/44'/1'/0'/0/-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParsePath(tt.input)
			require.ErrorIs(t, err, satchelerr.ErrDerivation)
		})
	}
}

func TestPathChildIndexes(t *testing.T) {
	t.Parallel()
	p := Path{Purpose: 44, CoinType: 1, Account: 3, Chain: Change, Index: 7}
	assert.Equal(t, []uint32{0x8000002C, 0x80000001, 0x80000003, 1, 7}, p.ChildIndexes())
}

func TestChainType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "receiving", Receiving.String())
	assert.Equal(t, "change", Change.String())
	assert.Equal(t, "chain(7)", ChainType(7).String())

	ct, err := ParseChainType("internal")
	require.NoError(t, err)
	assert.Equal(t, Change, ct)

	ct, err = ParseChainType("0")
	require.NoError(t, err)
	assert.Equal(t, Receiving, ct)

	_, err = ParseChainType("sideways")
	require.ErrorIs(t, err, satchelerr.ErrInvalidInput)

	text, err := Change.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "change", string(text))

	var decoded ChainType
	require.NoError(t, decoded.UnmarshalText([]byte("receiving")))
	assert.Equal(t, Receiving, decoded)
	require.Error(t, decoded.UnmarshalText([]byte("nope")))
}
