package transaction

import (
	"strings"

	"github.com/mrz1836/satchel/internal/chain"
)

// Recipient is one payment of a send.
type Recipient struct {
	Address   string
	AmountStr string // decimal coin amount, e.g. "0.0004"
}

// SendRequest describes a payment from a wallet account.
type SendRequest struct {
	Seed    []byte
	Account uint32

	// To and AmountStr give the primary recipient. AmountStr "all"
	// sweeps every collected output to To.
	To        string
	AmountStr string

	// Recipients are paid after To, in order.
	Recipients []Recipient

	// FeeRate in sat/vB; zero uses the estimator at FeePriority.
	FeeRate     uint64
	FeePriority string

	// ChangeAddress overrides the first unused change address of the account.
	ChangeAddress string

	// GapLimit for the discovery scan; zero uses the default.
	GapLimit int

	// MaxConsecutiveErrors for the discovery scan; zero uses the default
	// and negative disables the limit.
	MaxConsecutiveErrors int

	// DryRun builds and signs without broadcasting.
	DryRun bool
}

// SweepAll returns true if the amount is "all".
func (r *SendRequest) SweepAll() bool {
	return chain.IsAmountAll(r.AmountStr)
}

func (r *SendRequest) recipients() []Recipient {
	var out []Recipient
	if strings.TrimSpace(r.To) != "" || r.AmountStr != "" {
		out = append(out, Recipient{Address: r.To, AmountStr: r.AmountStr})
	}
	return append(out, r.Recipients...)
}

// Send statuses.
const (
	StatusBroadcast = "broadcast"
	StatusDryRun    = "dry-run"
)

// SendResult represents the outcome of a send.
type SendResult struct {
	TxID          string   `json:"txid"`
	Hex           string   `json:"hex"`
	Network       string   `json:"network"`
	Status        string   `json:"status"`
	Recipients    []string `json:"recipients"`
	Amount        uint64   `json:"amount"`
	Fee           uint64   `json:"fee"`
	FeeRate       uint64   `json:"fee_rate"`
	FeeSource     string   `json:"fee_source"`
	VSize         int64    `json:"vsize"`
	Change        uint64   `json:"change"`
	ChangeAddress string   `json:"change_address,omitempty"`
	Inputs        int      `json:"inputs"`
	Spent         []string `json:"spent,omitempty"`
	Sweep         bool     `json:"sweep"`
}
