package transaction

import (
	"context"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/chain/btc"
)

// ChainClient is the chain access a send needs: address stats for the
// scan, unspent outputs for collection and broadcast.
type ChainClient interface {
	chain.QueryService
}

// FeeEstimator supplies recommended fee rates. *btc.Client implements it.
type FeeEstimator interface {
	FeeQuote(ctx context.Context) (*btc.FeeQuote, error)
}

var _ FeeEstimator = (*btc.Client)(nil)
