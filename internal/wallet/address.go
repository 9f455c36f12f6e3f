package wallet

import (
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"github.com/mrz1836/satchel/internal/chain"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// AddressForPubKey encodes HASH160(compressed pubkey) as a native segwit
// v0 address for net.
func AddressForPubKey(pub *btcec.PublicKey, net chain.Network) (*btcutil.AddressWitnessPubKeyHash, error) {
	return btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), net.Params)
}

// DecodeAddress parses an address and checks it belongs to net.
func DecodeAddress(address string, net chain.Network) (btcutil.Address, error) {
	address = strings.TrimSpace(address)
	details := map[string]string{"address": address, "network": net.Name}

	addr, err := btcutil.DecodeAddress(address, net.Params)
	if err != nil {
		return nil, satchelerr.WithDetails(satchelerr.WithCause(satchelerr.ErrInvalidAddress, err), details)
	}
	if !addr.IsForNet(net.Params) {
		return nil, satchelerr.WithSuggestion(
			satchelerr.WithDetails(satchelerr.ErrInvalidAddress, details),
			"the address belongs to a different network",
		)
	}
	return addr, nil
}

// ValidateAddress reports whether address is valid for net.
func ValidateAddress(address string, net chain.Network) error {
	_, err := DecodeAddress(address, net)
	return err
}

// ScriptForAddress returns the locking script paying to address.
func ScriptForAddress(address string, net chain.Network) ([]byte, error) {
	addr, err := DecodeAddress(address, net)
	if err != nil {
		return nil, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, satchelerr.WithDetails(satchelerr.WithCause(satchelerr.ErrInvalidAddress, err), map[string]string{"address": address})
	}
	return script, nil
}

// IsWitnessPubKeyHash reports whether address is a P2WPKH address on net.
func IsWitnessPubKeyHash(address string, net chain.Network) bool {
	addr, err := DecodeAddress(address, net)
	if err != nil {
		return false
	}
	_, ok := addr.(*btcutil.AddressWitnessPubKeyHash)
	return ok
}
