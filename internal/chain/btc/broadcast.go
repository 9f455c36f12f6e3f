package btc

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mrz1836/satchel/internal/chain"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// alreadyKnownReasons are node rejection messages meaning the transaction
// is already in the mempool or a block.
var alreadyKnownReasons = []string{
	"already in mempool",
	"txn-already-known",
	"txn-already-in-mempool",
	"already in block chain",
	"transaction already exists",
}

func isAlreadyBroadcasted(reason string) bool {
	reason = strings.ToLower(reason)
	for _, r := range alreadyKnownReasons {
		if strings.Contains(reason, r) {
			return true
		}
	}
	return false
}

// FallbackBroadcaster tries each broadcaster in order until one accepts
// the transaction. A rejection by the ledger (ErrBroadcast) is final and
// is not retried against the next endpoint.
type FallbackBroadcaster struct {
	broadcasters []chain.Broadcaster
	logger       zerolog.Logger
}

var _ chain.Broadcaster = (*FallbackBroadcaster)(nil)

// NewFallbackBroadcaster returns a broadcaster over bs.
func NewFallbackBroadcaster(logger *zerolog.Logger, bs ...chain.Broadcaster) *FallbackBroadcaster {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &FallbackBroadcaster{broadcasters: bs, logger: l}
}

// Name returns the broadcaster name.
func (f *FallbackBroadcaster) Name() string { return "fallback" }

// Broadcast sends rawTx to the first broadcaster that accepts it.
func (f *FallbackBroadcaster) Broadcast(ctx context.Context, rawTx []byte) (string, error) {
	if len(f.broadcasters) == 0 {
		return "", satchelerr.WithDetails(satchelerr.ErrBroadcast, map[string]string{"reason": "no broadcasters configured"})
	}

	var errs []error
	for _, b := range f.broadcasters {
		txid, err := b.Broadcast(ctx, rawTx)
		if err == nil {
			return txid, nil
		}
		if satchelerr.Is(err, satchelerr.ErrBroadcast) || ctx.Err() != nil {
			return "", err
		}
		f.logger.Warn().Str("broadcaster", b.Name()).Err(err).Msg("broadcast failed, trying next")
		errs = append(errs, err)
	}
	return "", satchelerr.WithCause(satchelerr.ErrBroadcast, errors.Join(errs...))
}
