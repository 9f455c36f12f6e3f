package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/discovery"
	"github.com/mrz1836/satchel/internal/output"
	scansvc "github.com/mrz1836/satchel/internal/service/discovery"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	scanAccount    uint32
	scanGap        int
	scanMaxErrors  int
	scanStrict     bool
	scanParallel   bool
	scanSkipUTXOs  bool
	scanPassphrase bool
)

// walletCmd is the parent command for wallet operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Inspect an HD wallet account",
}

// walletScanCmd discovers the active addresses of an account.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var walletScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover used addresses and unspent outputs",
	Long: `Scan the receiving and change chains of an account.

Each chain is walked from index 0 until gap-limit consecutive addresses
have no transaction history. The unspent outputs of every active address
are then collected in scan order.

A failed address query is reported and counted as unused; after
--max-errors failures in a row the scan stops with an error. --strict
stops at the first failure.

Examples:
  satchel wallet scan
  satchel wallet scan --account 1 --gap 50
  satchel wallet scan --skip-utxos -o json`,
	RunE: runWalletScan,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletScanCmd)

	walletScanCmd.Flags().Uint32Var(&scanAccount, "account", 0, "account index (default from config)")
	walletScanCmd.Flags().IntVar(&scanGap, "gap", 0, "gap limit (default from config)")
	walletScanCmd.Flags().IntVar(&scanMaxErrors, "max-errors", 0, "consecutive query failures tolerated per chain, -1 for no limit (default from config)")
	walletScanCmd.Flags().BoolVar(&scanStrict, "strict", false, "stop at the first failed query")
	walletScanCmd.Flags().BoolVar(&scanParallel, "parallel", false, "scan both chains concurrently")
	walletScanCmd.Flags().BoolVar(&scanSkipUTXOs, "skip-utxos", false, "only discover addresses")
	walletScanCmd.Flags().BoolVar(&scanPassphrase, "passphrase", false, "prompt for a BIP39 passphrase")
}

// ScanResponse is the output of wallet scan.
type ScanResponse struct {
	Network          string                  `json:"network"`
	Account          uint32                  `json:"account"`
	Active           []ScanAddressResponse   `json:"active"`
	NextReceiveIndex uint32                  `json:"next_receive_index"`
	NextChangeIndex  uint32                  `json:"next_change_index"`
	AddressesScanned int                     `json:"addresses_scanned"`
	TotalBalance     string                  `json:"total_balance"`
	UTXOs            []ScanUTXOResponse      `json:"utxos,omitempty"`
	Errors           []*discovery.QueryError `json:"errors,omitempty"`
	DurationMs       int64                   `json:"duration_ms"`
}

// ScanAddressResponse is one active address.
type ScanAddressResponse struct {
	Address string           `json:"address"`
	Path    string           `json:"path"`
	Chain   wallet.ChainType `json:"chain"`
	Index   uint32           `json:"index"`
	Balance string           `json:"balance"`
	TxCount uint64           `json:"tx_count"`
}

// ScanUTXOResponse is one collected output.
type ScanUTXOResponse struct {
	Outpoint  string `json:"outpoint"`
	Address   string `json:"address"`
	Path      string `json:"path"`
	Amount    string `json:"amount"`
	Confirmed bool   `json:"confirmed"`
}

func runWalletScan(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	account := cc.Cfg.Derivation.DefaultAccount
	if cmd.Flags().Changed("account") {
		account = scanAccount
	}
	gap := cc.Cfg.Derivation.GapLimit
	if cmd.Flags().Changed("gap") {
		if scanGap <= 0 {
			return satchelerr.WithSuggestion(discovery.ErrInvalidGapLimit, "--gap must be positive")
		}
		gap = scanGap
	}
	maxErrors := cc.Cfg.Derivation.MaxConsecutiveErrors
	if cmd.Flags().Changed("max-errors") {
		maxErrors = scanMaxErrors
	}
	if maxErrors == 0 {
		maxErrors = -1
	}

	engine, err := cc.Engine()
	if err != nil {
		return err
	}
	backend, err := cc.ChainBackend()
	if err != nil {
		return err
	}

	req := &scansvc.ScanRequest{
		Account:              account,
		GapLimit:             gap,
		MaxConsecutiveErrors: maxErrors,
		StrictErrors:         scanStrict,
		ParallelChains:       scanParallel,
		SkipUTXOs:            scanSkipUTXOs,
	}
	if !cc.Fmt.IsJSON() && !scanParallel {
		req.Progress = scanProgress(cmd.ErrOrStderr())
	}

	svc := scansvc.NewService(&scansvc.Config{
		Chain:   backend,
		Engine:  engine,
		Logger:  cc.Log.Zerolog(),
		Metrics: cc.Metrics,
	})

	ctx, cancel := contextWithTimeout(cmd, discovery.DefaultTimeout)
	defer cancel()

	var result *scansvc.ScanResult
	err = withSeed(scanPassphrase, func(seed []byte) error {
		req.Seed = seed
		var scanErr error
		result, scanErr = svc.Scan(ctx, req)
		return scanErr
	})
	if err != nil {
		return err
	}

	response := buildScanResponse(result)
	return cc.Fmt.Render(response, func(w io.Writer) error {
		writeScanText(w, response, !scanSkipUTXOs)
		return nil
	})
}

// scanProgress reports found addresses and query failures as they happen.
func scanProgress(w io.Writer) discovery.ProgressCallback {
	return func(u discovery.ProgressUpdate) {
		switch u.Phase {
		case "found", "error":
			out(w, "  %s\n", u.Message)
		case "done":
			out(w, "  %s chain: %d addresses scanned\n", u.Chain, u.AddressesScanned)
		}
	}
}

func buildScanResponse(result *scansvc.ScanResult) ScanResponse {
	scan := result.Scan
	response := ScanResponse{
		Network:          result.Network,
		Account:          scan.Account,
		NextReceiveIndex: scan.ReceivingChain.NextIndex,
		NextChangeIndex:  scan.ChangeChain.NextIndex,
		AddressesScanned: scan.AddressesScanned(),
		TotalBalance:     chain.FormatBTC(scan.TotalBalance),
		Errors:           scan.Errors,
		DurationMs:       scan.Duration.Milliseconds(),
	}

	for _, a := range scan.Active() {
		response.Active = append(response.Active, ScanAddressResponse{
			Address: a.Address,
			Path:    a.Path,
			Chain:   a.Chain,
			Index:   a.Index,
			Balance: chain.FormatBTC(a.Balance),
			TxCount: a.TxCount,
		})
	}

	if result.Pool != nil {
		for _, u := range result.Pool.All() {
			response.UTXOs = append(response.UTXOs, ScanUTXOResponse{
				Outpoint:  u.Outpoint(),
				Address:   u.Address,
				Path:      u.Path,
				Amount:    chain.FormatBTC(u.Amount),
				Confirmed: u.Confirmed,
			})
		}
	}
	return response
}

func writeScanText(w io.Writer, r ScanResponse, withUTXOs bool) {
	outln(w)
	out(w, "Account %d on %s\n\n", r.Account, r.Network)

	if len(r.Active) == 0 {
		outln(w, "No used addresses found.")
	} else {
		tbl := output.NewTable("PATH", "ADDRESS", "TXS", "BALANCE").AlignRight(2, 3)
		for _, a := range r.Active {
			tbl.AddRow(a.Path, a.Address, fmt.Sprint(a.TxCount), a.Balance)
		}
		_ = tbl.Render(w)
	}

	if withUTXOs && len(r.UTXOs) > 0 {
		outln(w)
		tbl := output.NewTable("OUTPOINT", "PATH", "AMOUNT").AlignRight(2)
		for _, u := range r.UTXOs {
			tbl.AddRow(u.Outpoint, u.Path, u.Amount)
		}
		_ = tbl.Render(w)
	}

	outln(w)
	out(w, "Total balance:      %s\n", r.TotalBalance)
	out(w, "Addresses scanned:  %d\n", r.AddressesScanned)
	out(w, "Next receive index: %d\n", r.NextReceiveIndex)
	out(w, "Next change index:  %d\n", r.NextChangeIndex)

	if len(r.Errors) > 0 {
		outln(w)
		output.Warn(w, "%d address queries failed and were counted as unused:", len(r.Errors))
		for _, e := range r.Errors {
			out(w, "  %s\n", e.Error())
		}
	}
}
