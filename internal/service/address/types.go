package address

import "github.com/mrz1836/satchel/internal/wallet"

// MaxDeriveCount bounds a single range request.
const MaxDeriveCount = 1000

// AddressInfo holds display information for a derived address.
type AddressInfo struct {
	Address string           `json:"address"`
	Path    string           `json:"path"`
	Chain   wallet.ChainType `json:"chain"`
	Index   uint32           `json:"index"`
	PubKey  string           `json:"pubkey,omitempty"`
}

// DeriveRequest specifies a contiguous range of addresses on one chain.
// When Seed is nil the addresses are derived from Xpub instead.
type DeriveRequest struct {
	Seed    []byte
	Xpub    string
	Account uint32
	Chain   wallet.ChainType
	Start   uint32
	Count   int
}
