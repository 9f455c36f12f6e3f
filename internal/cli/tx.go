package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/chain/btc"
	"github.com/mrz1836/satchel/internal/discovery"
	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/service/transaction"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	txTo            string
	txAmount        string
	txPay           []string
	txFeeRate       uint64
	txPriority      string
	txChangeAddress string
	txDryRun        bool
	txYes           bool
	txAccount       uint32
	txGap           int
	txMaxErrors     int
	txPassphrase    bool
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Send transactions",
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var txSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a payment from the account",
	Long: `Send a payment from the wallet account.

The account is scanned and its unspent outputs collected before every
send. Inputs are chosen largest first until the payment and fee are
covered; change goes to the first unused change address unless
--change-address is given. A change amount at or below the dust limit is
added to the fee instead.

A send is refused when any address query of the account scan fails,
since the scan could have missed inputs or a used change address.

Use --amount all to sweep every output to a single address.

Examples:
  satchel tx send --to tb1q... --amount 0.001
  satchel tx send --to tb1q... --amount all --fee-rate 3
  satchel tx send --pay tb1qa...=0.001 --pay tb1qb...=0.002 --dry-run`,
	RunE: runTxSend,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(txCmd)
	txCmd.AddCommand(txSendCmd)

	txSendCmd.Flags().StringVar(&txTo, "to", "", "recipient address")
	txSendCmd.Flags().StringVar(&txAmount, "amount", "", "amount in BTC, or \"all\" to sweep")
	txSendCmd.Flags().StringArrayVar(&txPay, "pay", nil, "additional recipient as address=amount (repeatable)")
	txSendCmd.Flags().Uint64Var(&txFeeRate, "fee-rate", 0, "fee rate in sat/vB (default: estimated)")
	txSendCmd.Flags().StringVar(&txPriority, "priority", "", "fee estimate: fastest, halfhour, hour, economy, minimum (default from config)")
	txSendCmd.Flags().StringVar(&txChangeAddress, "change-address", "", "override the change address")
	txSendCmd.Flags().BoolVar(&txDryRun, "dry-run", false, "build and sign without broadcasting")
	txSendCmd.Flags().BoolVarP(&txYes, "yes", "y", false, "broadcast without confirmation")
	txSendCmd.Flags().Uint32Var(&txAccount, "account", 0, "account index (default from config)")
	txSendCmd.Flags().IntVar(&txGap, "gap", 0, "gap limit for the account scan (default from config)")
	txSendCmd.Flags().IntVar(&txMaxErrors, "max-errors", 0, "consecutive query failures tolerated per chain, -1 for no limit (default from config)")
	txSendCmd.Flags().BoolVar(&txPassphrase, "passphrase", false, "prompt for a BIP39 passphrase")

	_ = txSendCmd.RegisterFlagCompletionFunc("priority", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return feePriorities(), cobra.ShellCompDirectiveNoFileComp
	})
}

//nolint:gocognit,gocyclo // CLI command handler with validation, setup, and output
func runTxSend(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	recipients, err := parsePayFlags(txPay)
	if err != nil {
		return err
	}

	req := &transaction.SendRequest{
		Account:       cc.Cfg.Derivation.DefaultAccount,
		To:            strings.TrimSpace(txTo),
		AmountStr:     strings.TrimSpace(txAmount),
		Recipients:    recipients,
		FeeRate:       txFeeRate,
		FeePriority:   cc.Cfg.Fees.Priority,
		ChangeAddress: strings.TrimSpace(txChangeAddress),
		GapLimit:      cc.Cfg.Derivation.GapLimit,
		DryRun:        txDryRun,

		MaxConsecutiveErrors: cc.Cfg.Derivation.MaxConsecutiveErrors,
	}
	if cmd.Flags().Changed("account") {
		req.Account = txAccount
	}
	if cmd.Flags().Changed("gap") {
		req.GapLimit = txGap
	}
	if cmd.Flags().Changed("max-errors") {
		req.MaxConsecutiveErrors = txMaxErrors
	}
	if req.MaxConsecutiveErrors == 0 {
		req.MaxConsecutiveErrors = -1
	}
	if txPriority != "" {
		req.FeePriority = txPriority
	}
	if req.FeeRate == 0 && !cc.Cfg.Fees.UseEstimator {
		req.FeeRate = cc.Cfg.Fees.DefaultRate
	}
	if cc.Cfg.Fees.MaxRate > 0 && req.FeeRate > cc.Cfg.Fees.MaxRate {
		return satchelerr.WithSuggestion(
			satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{"fee_rate": strconv.FormatUint(req.FeeRate, 10)}),
			fmt.Sprintf("the configured maximum is %d sat/vB", cc.Cfg.Fees.MaxRate),
		)
	}

	confirm := !txDryRun && !txYes
	if confirm && cc.Fmt.IsJSON() {
		return satchelerr.WithSuggestion(satchelerr.ErrInvalidInput, "pass --yes to broadcast without a confirmation prompt, or --dry-run")
	}

	svc, err := newTransactionService(cc)
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, discovery.DefaultTimeout)
	defer cancel()

	req.DryRun = txDryRun || confirm
	var result *transaction.SendResult
	err = withSeed(txPassphrase, func(seed []byte) error {
		req.Seed = seed
		var sendErr error
		result, sendErr = svc.Send(ctx, req)
		return sendErr
	})
	if err != nil {
		return err
	}

	if confirm {
		writeSendText(cmd.ErrOrStderr(), result)
		outln(cmd.ErrOrStderr())
		if !promptConfirmFn("Broadcast this transaction?") {
			return satchelerr.WithDetails(satchelerr.ErrCanceled, map[string]string{"txid": result.TxID})
		}
		if err := svc.Publish(ctx, result); err != nil {
			return err
		}
	}

	return cc.Fmt.Render(result, func(w io.Writer) error {
		writeSendText(w, result)
		return nil
	})
}

func newTransactionService(cc *CommandContext) (*transaction.Service, error) {
	engine, err := cc.Engine()
	if err != nil {
		return nil, err
	}
	backend, err := cc.ChainBackend()
	if err != nil {
		return nil, err
	}
	broadcaster, err := cc.TxBroadcaster()
	if err != nil {
		return nil, err
	}

	txCfg := &transaction.Config{
		Chain:       backend,
		Engine:      engine,
		Broadcaster: broadcaster,
		Logger:      cc.Log.Zerolog(),
		Metrics:     cc.Metrics,
	}
	if cc.Cfg.Fees.UseEstimator {
		txCfg.Fees = backend
	}
	return transaction.NewService(txCfg), nil
}

// parsePayFlags parses address=amount pairs.
func parsePayFlags(values []string) ([]transaction.Recipient, error) {
	recipients := make([]transaction.Recipient, 0, len(values))
	for _, v := range values {
		addr, amount, ok := strings.Cut(v, "=")
		addr, amount = strings.TrimSpace(addr), strings.TrimSpace(amount)
		if !ok || addr == "" || amount == "" {
			return nil, satchelerr.WithSuggestion(
				satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{"pay": v}),
				"use --pay <address>=<amount>",
			)
		}
		recipients = append(recipients, transaction.Recipient{Address: addr, AmountStr: amount})
	}
	return recipients, nil
}

func writeSendText(w io.Writer, r *transaction.SendResult) {
	switch r.Status {
	case transaction.StatusBroadcast:
		output.Success(w, "Transaction broadcast on %s", r.Network)
	default:
		out(w, "Transaction built on %s (not broadcast)\n", r.Network)
	}
	outln(w)
	out(w, "  TxID:     %s\n", r.TxID)
	for _, addr := range r.Recipients {
		out(w, "  To:       %s\n", addr)
	}
	out(w, "  Amount:   %s\n", chain.FormatBTC(r.Amount))
	out(w, "  Fee:      %s (%d sat/vB, %s, %d vB)\n", chain.FormatBTC(r.Fee), r.FeeRate, r.FeeSource, r.VSize)
	if r.ChangeAddress != "" {
		out(w, "  Change:   %s to %s\n", chain.FormatBTC(r.Change), r.ChangeAddress)
	}
	out(w, "  Inputs:   %d\n", r.Inputs)
	if r.Status == transaction.StatusDryRun {
		outln(w)
		out(w, "  Raw:      %s\n", r.Hex)
	}
}

// feePriorities lists the accepted --priority values.
func feePriorities() []string {
	return []string{
		string(btc.PriorityFastest), string(btc.PriorityHalfHour), string(btc.PriorityHour),
		string(btc.PriorityEconomy), string(btc.PriorityMinimum),
	}
}
