package discovery

import (
	"context"
	"strconv"
	"strings"

	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// FindAddress searches indices 0..maxIndex of both chains of the
// configured account for address. It derives keys only and makes no
// chain queries. The returned key owns the address.
func (s *Scanner) FindAddress(ctx context.Context, seed []byte, address string, maxIndex uint32) (*wallet.DerivedKey, error) {
	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}
	address = strings.TrimSpace(address)

	for index := uint32(0); index <= maxIndex; index++ {
		if ctx.Err() != nil {
			return nil, scanCanceled(ctx)
		}
		for _, ct := range []wallet.ChainType{wallet.Receiving, wallet.Change} {
			key, err := s.deriver.Derive(seed, s.opts.Account, ct, index)
			if err != nil {
				return nil, err
			}
			if key.Address() == address {
				s.logger.Debug().Str("address", address).Str("path", key.Path()).Msg("address found")
				return key, nil
			}
		}
		if index == maxIndex {
			break
		}
	}

	return nil, satchelerr.WithDetails(ErrAddressNotFound, map[string]string{
		"address":   address,
		"account":   strconv.FormatUint(uint64(s.opts.Account), 10),
		"max_index": strconv.FormatUint(uint64(maxIndex), 10),
	})
}
