package wallet

import (
	"strconv"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"github.com/mrz1836/satchel/internal/chain"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// DeriveAddressFromXpub derives the address at chain/index below an
// account-level extended public key, without private key material.
func DeriveAddressFromXpub(xpub string, net chain.Network, ct ChainType, index uint32) (string, error) {
	rel := "xpub/" + strconv.FormatUint(uint64(ct), 10) + "/" + strconv.FormatUint(uint64(index), 10)
	if !ct.Valid() || index >= hdkeychain.HardenedKeyStart {
		return "", satchelerr.WithDetails(satchelerr.ErrDerivation, map[string]string{
			"path":   rel,
			"reason": "component out of range",
		})
	}

	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return "", satchelerr.WithDetails(satchelerr.WithCause(satchelerr.ErrDerivation, err), map[string]string{"reason": "invalid extended key"})
	}
	if !key.IsForNet(net.Params) {
		return "", satchelerr.WithDetails(satchelerr.ErrDerivation, map[string]string{
			"network": net.Name,
			"reason":  "extended key belongs to a different network",
		})
	}
	if key.IsPrivate() {
		if key, err = key.Neuter(); err != nil {
			return "", derivationError(rel, err)
		}
	}

	chainKey, err := key.Derive(uint32(ct))
	if err != nil {
		return "", derivationError(rel, err)
	}
	child, err := chainKey.Derive(index)
	if err != nil {
		return "", derivationError(rel, err)
	}
	pub, err := child.ECPubKey()
	if err != nil {
		return "", derivationError(rel, err)
	}
	addr, err := AddressForPubKey(pub, net)
	if err != nil {
		return "", derivationError(rel, err)
	}
	return addr.EncodeAddress(), nil
}
