package wallet

import (
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"github.com/mrz1836/satchel/internal/chain"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// ErrKeyZeroed is returned when a DerivedKey is used after Zero.
var ErrKeyZeroed = errors.New("key material has been zeroed")

// DerivedKey is a leaf key of the derivation tree together with its
// path and the P2WPKH address and script it controls. It is never
// mutated after derivation except by Zero.
type DerivedKey struct {
	path      Path
	priv      *btcec.PrivateKey
	pub       *btcec.PublicKey
	chainCode []byte
	address   string
	script    []byte
}

// PrivateKey returns the signing key.
func (k *DerivedKey) PrivateKey() (*btcec.PrivateKey, error) {
	if k.priv == nil {
		return nil, ErrKeyZeroed
	}
	return k.priv, nil
}

// PublicKey returns the public key.
func (k *DerivedKey) PublicKey() *btcec.PublicKey { return k.pub }

// PubKeyHex returns the compressed public key in hex.
func (k *DerivedKey) PubKeyHex() string { return hex.EncodeToString(k.pub.SerializeCompressed()) }

// ChainCode returns a copy of the BIP32 chain code.
func (k *DerivedKey) ChainCode() []byte { return append([]byte(nil), k.chainCode...) }

// Path returns the canonical path string.
func (k *DerivedKey) Path() string { return k.path.String() }

// DerivationPath returns the structured path.
func (k *DerivedKey) DerivationPath() Path { return k.path }

// Address returns the encoded address.
func (k *DerivedKey) Address() string { return k.address }

// ScriptPubKey returns a copy of the locking script paying to this key.
func (k *DerivedKey) ScriptPubKey() []byte { return append([]byte(nil), k.script...) }

// Zero wipes the private key and chain code.
func (k *DerivedKey) Zero() {
	if k.priv != nil {
		k.priv.Zero()
		k.priv = nil
	}
	ZeroBytes(k.chainCode)
}

var _ chain.KeySource = (*DerivedKey)(nil)

// Engine derives keys for one network. Derivation is a pure function of
// the seed, the network and the path: nothing is cached between calls.
type Engine struct {
	net chain.Network
}

// NewEngine returns an engine bound to net.
func NewEngine(net chain.Network) (*Engine, error) {
	if err := net.Validate(); err != nil {
		return nil, err
	}
	return &Engine{net: net}, nil
}

// Network returns the engine's network.
func (e *Engine) Network() chain.Network {
	return e.net
}

// Path builds the path for (account, chain, index) under the network's
// purpose and coin type.
func (e *Engine) Path(account uint32, ct ChainType, index uint32) Path {
	return Path{
		Purpose:  e.net.Purpose,
		CoinType: e.net.CoinType,
		Account:  account,
		Chain:    ct,
		Index:    index,
	}
}

// Derive returns the key and address at m/purpose'/coin'/account'/chain/index.
func (e *Engine) Derive(seed []byte, account uint32, ct ChainType, index uint32) (*DerivedKey, error) {
	return e.DeriveAtPath(seed, e.Path(account, ct, index))
}

// DeriveAtPath derives the key for an explicit path.
func (e *Engine) DeriveAtPath(seed []byte, p Path) (*DerivedKey, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	key, err := e.walk(seed, p.ChildIndexes(), p.String())
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, derivationError(p.String(), err)
	}
	pub := priv.PubKey()

	addr, err := AddressForPubKey(pub, e.net)
	if err != nil {
		return nil, derivationError(p.String(), err)
	}
	script, err := ScriptForAddress(addr.EncodeAddress(), e.net)
	if err != nil {
		return nil, derivationError(p.String(), err)
	}

	return &DerivedKey{
		path:      p,
		priv:      priv,
		pub:       pub,
		chainCode: append([]byte(nil), key.ChainCode()...),
		address:   addr.EncodeAddress(),
		script:    script,
	}, nil
}

// DeriveAddress returns only the address at the given position.
func (e *Engine) DeriveAddress(seed []byte, account uint32, ct ChainType, index uint32) (string, error) {
	key, err := e.Derive(seed, account, ct, index)
	if err != nil {
		return "", err
	}
	defer key.Zero()
	return key.Address(), nil
}

// AccountXpub returns the extended public key of m/purpose'/coin'/account'
// for watch-only use.
func (e *Engine) AccountXpub(seed []byte, account uint32) (string, error) {
	p := e.Path(account, Receiving, 0)
	if err := p.Validate(); err != nil {
		return "", err
	}
	prefix := "m/" + strconv.FormatUint(uint64(p.Purpose), 10) + "'/" +
		strconv.FormatUint(uint64(p.CoinType), 10) + "'/" +
		strconv.FormatUint(uint64(p.Account), 10) + "'"

	key, err := e.walk(seed, p.ChildIndexes()[:3], prefix)
	if err != nil {
		return "", err
	}
	defer key.Zero()

	pub, err := key.Neuter()
	if err != nil {
		return "", derivationError(prefix, err)
	}
	return pub.String(), nil
}

// walk derives from the master key down the given child indexes.
func (e *Engine) walk(seed []byte, children []uint32, path string) (*hdkeychain.ExtendedKey, error) {
	if len(seed) < hdkeychain.MinSeedBytes || len(seed) > hdkeychain.MaxSeedBytes {
		return nil, satchelerr.WithDetails(satchelerr.ErrDerivation, map[string]string{
			"path":     path,
			"seed_len": strconv.Itoa(len(seed)),
			"reason":   "seed must be between 16 and 64 bytes",
		})
	}

	key, err := hdkeychain.NewMaster(seed, e.net.Params)
	if err != nil {
		return nil, derivationError(path, err)
	}

	for _, child := range children {
		next, err := key.Derive(child)
		key.Zero()
		if err != nil {
			return nil, derivationError(path, err)
		}
		key = next
	}
	return key, nil
}

func derivationError(path string, cause error) error {
	return satchelerr.WithDetails(satchelerr.WithCause(satchelerr.ErrDerivation, cause), map[string]string{"path": path})
}
