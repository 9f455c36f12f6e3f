package wallet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// MaxIndex is the largest non-hardened child index.
const MaxIndex = hdkeychain.HardenedKeyStart - 1

// ChainType selects the external (receiving) or internal (change) chain.
type ChainType uint32

const (
	// Receiving is the external chain handed out to payers.
	Receiving ChainType = 0
	// Change is the internal chain used for transaction change.
	Change ChainType = 1
)

// String returns "receiving" or "change".
func (c ChainType) String() string {
	switch c {
	case Receiving:
		return "receiving"
	case Change:
		return "change"
	default:
		return "chain(" + strconv.FormatUint(uint64(c), 10) + ")"
	}
}

// MarshalText encodes the chain by name.
func (c ChainType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a chain name.
func (c *ChainType) UnmarshalText(text []byte) error {
	ct, err := ParseChainType(string(text))
	if err != nil {
		return err
	}
	*c = ct
	return nil
}

// Valid reports whether c is one of the two defined chains.
func (c ChainType) Valid() bool {
	return c == Receiving || c == Change
}

// ParseChainType accepts "receiving", "external", "0", "change", "internal" or "1".
func ParseChainType(s string) (ChainType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "receiving", "receive", "external", "0":
		return Receiving, nil
	case "change", "internal", "1":
		return Change, nil
	}
	return 0, satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{"chain": s})
}

// Path is a five-level BIP44 style path
// m / purpose' / coin' / account' / chain / index.
type Path struct {
	Purpose  uint32
	CoinType uint32
	Account  uint32
	Chain    ChainType
	Index    uint32
}

// String renders the canonical form, e.g. m/44'/1'/0'/0/5.
func (p Path) String() string {
	return fmt.Sprintf("m/%d'/%d'/%d'/%d/%d", p.Purpose, p.CoinType, p.Account, p.Chain, p.Index)
}

// Validate enforces the component ranges: hardened components must be
// below the hardened offset before it is applied, the chain must be 0
// or 1 and the index must be non-hardened.
func (p Path) Validate() error {
	check := func(name string, v uint32) error {
		if v >= hdkeychain.HardenedKeyStart {
			return satchelerr.WithDetails(satchelerr.ErrDerivation, map[string]string{
				"path":      p.String(),
				"component": name,
				"value":     strconv.FormatUint(uint64(v), 10),
				"reason":    "component out of range",
			})
		}
		return nil
	}

	if err := check("purpose", p.Purpose); err != nil {
		return err
	}
	if err := check("coin_type", p.CoinType); err != nil {
		return err
	}
	if err := check("account", p.Account); err != nil {
		return err
	}
	if !p.Chain.Valid() {
		return satchelerr.WithDetails(satchelerr.ErrDerivation, map[string]string{
			"path":      p.String(),
			"component": "chain",
			"reason":    "chain must be 0 or 1",
		})
	}
	return check("index", p.Index)
}

// ChildIndexes returns the raw child numbers with hardened offsets applied.
func (p Path) ChildIndexes() []uint32 {
	return []uint32{
		hdkeychain.HardenedKeyStart + p.Purpose,
		hdkeychain.HardenedKeyStart + p.CoinType,
		hdkeychain.HardenedKeyStart + p.Account,
		uint32(p.Chain),
		p.Index,
	}
}

// ParsePath parses "m/44'/1'/0'/0/5". Hardened components may be marked
// with ' or h; the first three must be hardened and the last two must not.
func ParsePath(s string) (Path, error) {
	fail := func(reason string) (Path, error) {
		return Path{}, satchelerr.WithDetails(satchelerr.ErrDerivation, map[string]string{
			"path":   s,
			"reason": reason,
		})
	}

	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 6 || (parts[0] != "m" && parts[0] != "M") {
		return fail("expected m/purpose'/coin'/account'/chain/index")
	}

	values := make([]uint32, 5)
	for i, part := range parts[1:] {
		hardened := strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h") || strings.HasSuffix(part, "H")
		if hardened {
			part = part[:len(part)-1]
		}
		if wantHardened := i < 3; hardened != wantHardened {
			if wantHardened {
				return fail(fmt.Sprintf("component %d must be hardened", i+1))
			}
			return fail(fmt.Sprintf("component %d must not be hardened", i+1))
		}

		v, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return fail(fmt.Sprintf("component %d is not a number", i+1))
		}
		values[i] = uint32(v)
	}

	p := Path{
		Purpose:  values[0],
		CoinType: values[1],
		Account:  values[2],
		Chain:    ChainType(values[3]),
		Index:    values[4],
	}
	if err := p.Validate(); err != nil {
		return Path{}, err
	}
	return p, nil
}
