package btc

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/rs/zerolog"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// TxVersion is the version of built transactions.
const TxVersion = 2

// KeyRing resolves the signing key owning an address.
type KeyRing interface {
	KeyFor(address string) (chain.KeySource, bool)
}

// KeyMap is a KeyRing backed by a map keyed by address.
type KeyMap map[string]chain.KeySource

// KeyFor implements KeyRing.
func (m KeyMap) KeyFor(address string) (chain.KeySource, bool) {
	k, ok := m[address]
	return k, ok
}

// SignedTx is a finalized, fully signed transaction.
type SignedTx struct {
	Tx    *wire.MsgTx
	Raw   []byte
	Hex   string
	TxID  string
	VSize int64
}

// Builder assembles and signs P2WPKH transactions.
type Builder struct {
	net    chain.Network
	logger zerolog.Logger
}

// NewBuilder returns a builder for net. A nil logger disables logging.
func NewBuilder(net chain.Network, logger *zerolog.Logger) *Builder {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "txbuilder").Logger()
	}
	return &Builder{net: net, logger: l}
}

// Build creates the transaction described by sel and signs every input.
// Each input is signed with the key attached to its UTXO, or the key
// keys holds for its address when none is attached. Outputs keep the order of sel.Outputs. Either every input
// is signed and the serialized transaction is returned, or nothing is.
func (b *Builder) Build(sel *Selection, keys KeyRing) (*SignedTx, error) {
	if sel == nil || len(sel.Inputs) == 0 {
		return nil, satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{"reason": "selection has no inputs"})
	}
	if len(sel.Outputs) == 0 {
		return nil, satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{"reason": "selection has no outputs"})
	}
	if in, out := sel.InputTotal(), sel.OutputTotal(); in < out || in-out != sel.Fee {
		return nil, satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{
			"reason": fmt.Sprintf("inputs %d do not equal outputs %d plus fee %d", in, out, sel.Fee),
		})
	}

	tx := wire.NewMsgTx(TxVersion)
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	signers := make([]chain.KeySource, len(sel.Inputs))
	scripts := make([][]byte, len(sel.Inputs))

	for i, utxo := range sel.Inputs {
		hash, err := chainhash.NewHashFromStr(utxo.TxID)
		if err != nil {
			return nil, signingError(utxo, fmt.Errorf("invalid txid: %w", err))
		}

		key, err := b.resolveKey(utxo, keys)
		if err != nil {
			return nil, err
		}

		script := utxo.ScriptPubKey
		if len(script) == 0 {
			if script, err = wallet.ScriptForAddress(utxo.Address, b.net); err != nil {
				return nil, signingError(utxo, err)
			}
		}

		op := wire.NewOutPoint(hash, utxo.Vout)
		tx.AddTxIn(wire.NewTxIn(op, nil, nil))
		fetcher.AddPrevOut(*op, wire.NewTxOut(int64(utxo.Amount), script)) //nolint:gosec // bounded by total supply
		signers[i] = key
		scripts[i] = script
	}

	for _, out := range sel.Outputs {
		script := out.Script
		if len(script) == 0 {
			var err error
			if script, err = wallet.ScriptForAddress(out.Address, b.net); err != nil {
				return nil, err
			}
		}
		tx.AddTxOut(wire.NewTxOut(int64(out.Amount), script)) //nolint:gosec // bounded by total supply
	}

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	witnesses := make([]wire.TxWitness, len(sel.Inputs))
	for i, utxo := range sel.Inputs {
		w, err := signInput(tx, sigHashes, i, utxo, scripts[i], signers[i])
		if err != nil {
			return nil, err
		}
		witnesses[i] = w
	}
	for i := range tx.TxIn {
		tx.TxIn[i].Witness = witnesses[i]
	}

	if err := VerifyScripts(tx, fetcher); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	if err := tx.Serialize(&buf); err != nil {
		return nil, satchelerr.WithCause(satchelerr.ErrSigning, err)
	}

	signed := &SignedTx{
		Tx:    tx,
		Raw:   buf.Bytes(),
		Hex:   hex.EncodeToString(buf.Bytes()),
		TxID:  tx.TxHash().String(),
		VSize: virtualSize(tx),
	}
	b.logger.Debug().
		Str("txid", signed.TxID).
		Int("inputs", len(tx.TxIn)).
		Int("outputs", len(tx.TxOut)).
		Int64("vsize", signed.VSize).
		Stringer("fee", amountOf(sel.Fee)).
		Msg("transaction built")
	return signed, nil
}

// resolveKey finds the key for an input and checks it owns the address.
func (b *Builder) resolveKey(utxo chain.UTXO, keys KeyRing) (chain.KeySource, error) {
	key := utxo.Key
	if key == nil && keys != nil {
		if k, ok := keys.KeyFor(utxo.Address); ok {
			key = k
		}
	}
	if key == nil {
		return nil, signingError(utxo, fmt.Errorf("no key for address %s", utxo.Address))
	}
	if key.Address() != utxo.Address {
		return nil, signingError(utxo, fmt.Errorf("key %s owns %s", key.Path(), key.Address()))
	}
	return key, nil
}

func signInput(tx *wire.MsgTx, sigHashes *txscript.TxSigHashes, idx int, utxo chain.UTXO, script []byte, key chain.KeySource) (wire.TxWitness, error) {
	priv, err := key.PrivateKey()
	if err != nil {
		return nil, signingError(utxo, err)
	}

	witness, err := txscript.WitnessSignature(tx, sigHashes, idx, int64(utxo.Amount), script, txscript.SigHashAll, priv, true) //nolint:gosec // bounded by total supply
	if err != nil {
		return nil, signingError(utxo, err)
	}
	return witness, nil
}

// VerifyScripts runs every input of tx through the script engine.
func VerifyScripts(tx *wire.MsgTx, prevOuts txscript.PrevOutputFetcher) error {
	sigHashes := txscript.NewTxSigHashes(tx, prevOuts)
	for i, in := range tx.TxIn {
		prev := prevOuts.FetchPrevOutput(in.PreviousOutPoint)
		if prev == nil {
			return satchelerr.WithDetails(satchelerr.ErrSigning, map[string]string{
				"outpoint": in.PreviousOutPoint.String(),
				"reason":   "missing previous output",
			})
		}
		vm, err := txscript.NewEngine(prev.PkScript, tx, i, txscript.StandardVerifyFlags, nil, sigHashes, prev.Value, prevOuts)
		if err == nil {
			err = vm.Execute()
		}
		if err != nil {
			return satchelerr.WithDetails(satchelerr.WithCause(satchelerr.ErrSigning, err), map[string]string{
				"outpoint": in.PreviousOutPoint.String(),
			})
		}
	}
	return nil
}

// virtualSize is ceil(weight / 4).
func virtualSize(tx *wire.MsgTx) int64 {
	base := int64(tx.SerializeSizeStripped())
	total := int64(tx.SerializeSize())
	weight := base*3 + total
	return (weight + 3) / 4
}

func signingError(utxo chain.UTXO, cause error) error {
	details := map[string]string{
		"outpoint": utxo.Outpoint(),
		"address":  utxo.Address,
	}
	if utxo.Key != nil {
		details["path"] = utxo.Key.Path()
	}
	return satchelerr.WithDetails(satchelerr.WithCause(satchelerr.ErrSigning, cause), details)
}
