package chain

import (
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// SatoshisPerBTC is the number of smallest units in one coin.
const SatoshisPerBTC = 100_000_000

// btcDecimals is the number of decimal places of a coin amount.
const btcDecimals = 8

// AmountAll is the keyword that requests sweeping the whole balance.
const AmountAll = "all"

// IsAmountAll reports whether the amount string requests a sweep.
func IsAmountAll(amount string) bool {
	return strings.EqualFold(strings.TrimSpace(amount), AmountAll)
}

// ParseBTC parses a decimal coin amount ("0.0004") into satoshis.
// More than eight decimal places, negative values and values that
// overflow a uint64 are rejected.
func ParseBTC(amount string) (uint64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, satchelerr.ErrInvalidAmount
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, satchelerr.WithCause(satchelerr.ErrInvalidAmount, err)
	}
	if d.IsNegative() {
		return 0, satchelerr.WithDetails(satchelerr.ErrInvalidAmount, map[string]string{"amount": amount})
	}

	sats := d.Shift(btcDecimals)
	if !sats.IsInteger() {
		return 0, satchelerr.WithSuggestion(
			satchelerr.WithDetails(satchelerr.ErrInvalidAmount, map[string]string{"amount": amount}),
			"amounts support at most 8 decimal places",
		)
	}

	bi := sats.BigInt()
	if !bi.IsUint64() {
		return 0, satchelerr.WithDetails(satchelerr.ErrInvalidAmount, map[string]string{"amount": amount})
	}
	return bi.Uint64(), nil
}

// ParseSatoshis parses an integer satoshi amount.
func ParseSatoshis(amount string) (uint64, error) {
	bi, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
	if !ok || bi.Sign() < 0 || !bi.IsUint64() {
		return 0, satchelerr.WithDetails(satchelerr.ErrInvalidAmount, map[string]string{"amount": amount})
	}
	return bi.Uint64(), nil
}

// FormatBTC renders satoshis as a fixed eight-decimal coin amount.
func FormatBTC(sats uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(sats), -btcDecimals).StringFixed(btcDecimals)
}

// FormatBTCTrimmed renders satoshis without trailing zeros ("0.0004").
func FormatBTCTrimmed(sats uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(sats), -btcDecimals).String()
}

// SumAmounts adds UTXO values, reporting false on overflow.
func SumAmounts(utxos []UTXO) (uint64, bool) {
	var total uint64
	for _, u := range utxos {
		if u.Amount > math.MaxUint64-total {
			return 0, false
		}
		total += u.Amount
	}
	return total, true
}
