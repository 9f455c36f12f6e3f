package btc

import (
	"cmp"
	"math"
	"slices"
	"strconv"

	"github.com/btcsuite/btcd/wire"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Target is a payment the transaction must make.
type Target struct {
	Address string
	Amount  uint64 // satoshis
}

// Output is one output of a selection, in final transaction order.
type Output struct {
	Address  string `json:"address"`
	Amount   uint64 `json:"amount"`
	Script   []byte `json:"-"`
	IsChange bool   `json:"is_change"`
}

// Selection is the result of coin selection: the inputs to spend, the
// outputs to create (targets in caller order, change last) and the fee.
// InputTotal() == OutputTotal() + Fee always holds.
type Selection struct {
	Inputs  []chain.UTXO
	Outputs []Output

	// Fee is the absolute fee paid: EstimatedFee plus any absorbed dust.
	Fee uint64
	// EstimatedFee is VSize × FeeRate.
	EstimatedFee uint64
	VSize        int
	FeeRate      uint64

	// Change is the change output value, 0 when none was emitted.
	Change uint64
	// ChangeIndex is the position of the change output, or -1.
	ChangeIndex int
}

// InputTotal sums the selected inputs.
func (s *Selection) InputTotal() uint64 {
	var total uint64
	for _, in := range s.Inputs {
		total += in.Amount
	}
	return total
}

// OutputTotal sums all outputs including change.
func (s *Selection) OutputTotal() uint64 {
	var total uint64
	for _, out := range s.Outputs {
		total += out.Amount
	}
	return total
}

// HasChange reports whether a change output was emitted.
func (s *Selection) HasChange() bool {
	return s.ChangeIndex >= 0
}

// Selector picks inputs for payments on one network.
type Selector struct {
	net chain.Network
}

// NewSelector returns a selector for net.
func NewSelector(net chain.Network) *Selector {
	return &Selector{net: net}
}

// Select chooses inputs from pool covering targets plus fee at feeRate
// sat/vB. Inputs are taken largest first (ties keep pool order) and the
// fee is re-estimated after every addition. Change above the dust
// threshold is paid to changeAddress as the last output; smaller change
// is left to the fee.
//
//nolint:gocognit // Selection loop mirrors the fee re-estimation steps
func (s *Selector) Select(pool []chain.UTXO, targets []Target, feeRate uint64, changeAddress string) (*Selection, error) {
	if feeRate == 0 {
		return nil, satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{"fee_rate": "0"})
	}

	outs, targetSum, err := s.targetOutputs(targets)
	if err != nil {
		return nil, err
	}

	changeScript, err := wallet.ScriptForAddress(changeAddress, s.net)
	if err != nil {
		return nil, satchelerr.Wrap(err, "change address")
	}
	changeDust := DustThreshold(changeScript, s.net.DustLimit)
	txOuts := wireOutputs(outs)

	candidates := spendable(pool)
	var inputs []chain.UTXO
	var inSum uint64

	for _, utxo := range candidates {
		inputs = append(inputs, utxo)
		inSum += utxo.Amount

		vsizeChange := EstimateVSize(len(inputs), txOuts, len(changeScript))
		feeChange := FeeForVSize(vsizeChange, feeRate)
		if inSum >= targetSum+feeChange && inSum-targetSum-feeChange > changeDust {
			change := inSum - targetSum - feeChange
			outputs := append(slices.Clone(outs), Output{
				Address:  changeAddress,
				Amount:   change,
				Script:   changeScript,
				IsChange: true,
			})
			return &Selection{
				Inputs:       inputs,
				Outputs:      outputs,
				Fee:          feeChange,
				EstimatedFee: feeChange,
				VSize:        vsizeChange,
				FeeRate:      feeRate,
				Change:       change,
				ChangeIndex:  len(outputs) - 1,
			}, nil
		}

		vsize := EstimateVSize(len(inputs), txOuts, 0)
		fee := FeeForVSize(vsize, feeRate)
		if inSum >= targetSum+fee {
			return &Selection{
				Inputs:       inputs,
				Outputs:      slices.Clone(outs),
				Fee:          inSum - targetSum,
				EstimatedFee: fee,
				VSize:        vsize,
				FeeRate:      feeRate,
				ChangeIndex:  -1,
			}, nil
		}
	}

	required := targetSum + FeeForVSize(EstimateVSize(max(len(inputs), 1), txOuts, 0), feeRate)
	return nil, insufficientFunds(required, inSum)
}

// SelectAll spends every spendable output of pool to a single address,
// paying the fee out of the swept amount. No change output is created.
func (s *Selector) SelectAll(pool []chain.UTXO, address string, feeRate uint64) (*Selection, error) {
	if feeRate == 0 {
		return nil, satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{"fee_rate": "0"})
	}

	script, err := wallet.ScriptForAddress(address, s.net)
	if err != nil {
		return nil, err
	}

	inputs := spendable(pool)
	if len(inputs) == 0 {
		return nil, satchelerr.ErrNoUTXOs
	}
	total, ok := chain.SumAmounts(inputs)
	if !ok {
		return nil, satchelerr.WithDetails(satchelerr.ErrInvalidAmount, map[string]string{"reason": "input sum overflows"})
	}

	out := Output{Address: address, Script: script}
	vsize := EstimateVSize(len(inputs), wireOutputs([]Output{out}), 0)
	fee := FeeForVSize(vsize, feeRate)
	dust := DustThreshold(script, s.net.DustLimit)
	if total <= fee || total-fee < dust {
		return nil, insufficientFunds(fee+dust, total)
	}

	out.Amount = total - fee
	return &Selection{
		Inputs:       inputs,
		Outputs:      []Output{out},
		Fee:          fee,
		EstimatedFee: fee,
		VSize:        vsize,
		FeeRate:      feeRate,
		ChangeIndex:  -1,
	}, nil
}

// targetOutputs validates targets and converts them to outputs.
func (s *Selector) targetOutputs(targets []Target) ([]Output, uint64, error) {
	if len(targets) == 0 {
		return nil, 0, satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{"reason": "no targets"})
	}

	outs := make([]Output, 0, len(targets))
	var sum uint64
	for _, t := range targets {
		script, err := wallet.ScriptForAddress(t.Address, s.net)
		if err != nil {
			return nil, 0, err
		}
		if dust := DustThreshold(script, s.net.DustLimit); t.Amount < dust {
			return nil, 0, satchelerr.WithDetails(satchelerr.ErrAmountTooSmall, map[string]string{
				"address": t.Address,
				"amount":  strconv.FormatUint(t.Amount, 10),
				"dust":    strconv.FormatUint(dust, 10),
			})
		}
		if t.Amount > math.MaxUint64-sum {
			return nil, 0, satchelerr.WithDetails(satchelerr.ErrInvalidAmount, map[string]string{"reason": "target sum overflows"})
		}
		sum += t.Amount
		outs = append(outs, Output{Address: t.Address, Amount: t.Amount, Script: script})
	}
	return outs, sum, nil
}

// spendable drops zero-value and duplicate outpoints and orders the rest
// largest first; equal values keep their pool order.
func spendable(pool []chain.UTXO) []chain.UTXO {
	seen := make(map[string]struct{}, len(pool))
	out := make([]chain.UTXO, 0, len(pool))
	for _, u := range pool {
		if u.Amount == 0 {
			continue
		}
		op := u.Outpoint()
		if _, dup := seen[op]; dup {
			continue
		}
		seen[op] = struct{}{}
		out = append(out, u)
	}

	slices.SortStableFunc(out, func(a, b chain.UTXO) int {
		return cmp.Compare(b.Amount, a.Amount)
	})
	return out
}

func wireOutputs(outs []Output) []*wire.TxOut {
	txOuts := make([]*wire.TxOut, len(outs))
	for i, o := range outs {
		txOuts[i] = wire.NewTxOut(int64(o.Amount), o.Script) //nolint:gosec // bounded by total supply
	}
	return txOuts
}

func insufficientFunds(required, available uint64) error {
	return satchelerr.WithSuggestion(
		satchelerr.WithDetails(satchelerr.ErrInsufficientFunds, map[string]string{
			"required":  chain.FormatBTC(required),
			"available": chain.FormatBTC(available),
		}),
		"lower the amount or the fee rate, or fund the wallet",
	)
}
