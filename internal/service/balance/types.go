package balance

import (
	"time"

	"github.com/mrz1836/satchel/internal/chain"
)

// FetchRequest asks for the balance of one address.
type FetchRequest struct {
	Address      string
	ForceRefresh bool
	Timeout      time.Duration
}

// FetchResult is the balance of one address in satoshis.
type FetchResult struct {
	Network     string    `json:"network"`
	Address     string    `json:"address"`
	Confirmed   uint64    `json:"confirmed"`
	Unconfirmed int64     `json:"unconfirmed"`
	Total       uint64    `json:"total"`
	TxCount     uint64    `json:"tx_count"`
	Used        bool      `json:"used"`
	Cached      bool      `json:"cached"`
	Stale       bool      `json:"stale"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Error is the fetch failure when a stale cached value was returned instead.
	Error error `json:"-"`
}

// FetchBatchRequest asks for the balances of several addresses.
type FetchBatchRequest struct {
	Addresses     []string
	ForceRefresh  bool
	Timeout       time.Duration
	MaxConcurrent int
}

// FetchBatchResult holds per-address results in request order. A failed
// address has a nil entry in Results and its error in Errors.
type FetchBatchResult struct {
	Results []*FetchResult
	Errors  []error
}

// Total sums the totals of all successful results.
func (r *FetchBatchResult) Total() uint64 {
	var sum uint64
	for _, res := range r.Results {
		if res != nil {
			sum += res.Total
		}
	}
	return sum
}

func resultFromStats(net chain.Network, stats *chain.AddressStats) *FetchResult {
	return &FetchResult{
		Network:     net.Name,
		Address:     stats.Address,
		Confirmed:   stats.ConfirmedBalance(),
		Unconfirmed: int64(stats.MempoolFunded) - int64(stats.MempoolSpent), //nolint:gosec // mempool sums are far below int64 range
		Total:       stats.Balance(),
		TxCount:     stats.TotalTxCount(),
		Used:        stats.Used(),
		UpdatedAt:   time.Now(),
	}
}
