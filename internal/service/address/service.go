// Package address provides address derivation and lookup for a wallet account.
package address

import (
	"context"
	"strconv"

	"github.com/mrz1836/satchel/internal/discovery"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Service provides address derivation operations.
type Service struct {
	engine *wallet.Engine
}

// NewService creates a new address service instance.
func NewService(engine *wallet.Engine) *Service {
	return &Service{engine: engine}
}

// Derive returns req.Count consecutive addresses starting at req.Start.
func (s *Service) Derive(req *DeriveRequest) ([]AddressInfo, error) {
	if req.Count <= 0 || req.Count > MaxDeriveCount {
		return nil, satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{
			"count": strconv.Itoa(req.Count),
			"max":   strconv.Itoa(MaxDeriveCount),
		})
	}
	if uint64(req.Start)+uint64(req.Count) > uint64(wallet.MaxIndex)+1 {
		return nil, satchelerr.WithDetails(satchelerr.ErrDerivation, map[string]string{
			"start":  strconv.FormatUint(uint64(req.Start), 10),
			"reason": "range exceeds the non-hardened index space",
		})
	}
	if req.Seed == nil {
		return s.deriveFromXpub(req)
	}

	out := make([]AddressInfo, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		index := req.Start + uint32(i) //nolint:gosec // bounded by MaxDeriveCount
		key, err := s.engine.Derive(req.Seed, req.Account, req.Chain, index)
		if err != nil {
			return nil, err
		}
		out = append(out, AddressInfo{
			Address: key.Address(),
			Path:    key.Path(),
			Chain:   req.Chain,
			Index:   index,
			PubKey:  key.PubKeyHex(),
		})
		key.Zero()
	}
	return out, nil
}

func (s *Service) deriveFromXpub(req *DeriveRequest) ([]AddressInfo, error) {
	if req.Xpub == "" {
		return nil, satchelerr.WithSuggestion(satchelerr.ErrInvalidInput, "no seed or xpub available for address derivation")
	}

	out := make([]AddressInfo, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		index := req.Start + uint32(i) //nolint:gosec // bounded by MaxDeriveCount
		addr, err := wallet.DeriveAddressFromXpub(req.Xpub, s.engine.Network(), req.Chain, index)
		if err != nil {
			return nil, err
		}
		out = append(out, AddressInfo{
			Address: addr,
			Path:    s.engine.Path(req.Account, req.Chain, index).String(),
			Chain:   req.Chain,
			Index:   index,
		})
	}
	return out, nil
}

// Xpub returns the account-level extended public key.
func (s *Service) Xpub(seed []byte, account uint32) (string, error) {
	return s.engine.AccountXpub(seed, account)
}

// Find locates the path of address among the first maxIndex+1 indices
// of both chains. No chain queries are made.
func (s *Service) Find(ctx context.Context, seed []byte, account uint32, address string, maxIndex uint32) (*AddressInfo, error) {
	opts := discovery.DefaultOptions()
	opts.Account = account

	key, err := discovery.NewScanner(nil, s.engine, opts).FindAddress(ctx, seed, address, maxIndex)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	p := key.DerivationPath()
	return &AddressInfo{
		Address: key.Address(),
		Path:    p.String(),
		Chain:   p.Chain,
		Index:   p.Index,
		PubKey:  key.PubKeyHex(),
	}, nil
}
