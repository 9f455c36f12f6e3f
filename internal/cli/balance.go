package cli

import (
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/service/balance"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var balanceRefresh bool

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var balanceCmd = &cobra.Command{
	Use:   "balance <address>...",
	Short: "Show the balance of addresses",
	Long: `Query the balance of one or more addresses.

Results are cached for display; a cached value is shown when it is still
fresh, or marked stale when the network is unavailable. Sends never use
cached balances.

Examples:
  satchel balance tb1q...
  satchel balance tb1q... tb1q... --refresh`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBalance,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().BoolVar(&balanceRefresh, "refresh", false, "ignore cached balances")
}

// BalanceResponse is the output of balance.
type BalanceResponse struct {
	Network  string                 `json:"network"`
	Balances []*balance.FetchResult `json:"balances"`
	Total    string                 `json:"total"`
	Errors   []string               `json:"errors,omitempty"`
}

func runBalance(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)

	net, err := cc.Network()
	if err != nil {
		return err
	}
	backend, err := cc.ChainBackend()
	if err != nil {
		return err
	}

	svc := balance.NewService(&balance.Config{
		Stats:     backend,
		Network:   net,
		Cache:     cc.BalanceCache(),
		Staleness: cc.Cfg.CacheStaleness(),
		Logger:    cc.Log.Zerolog(),
		Metrics:   cc.Metrics,
	})

	addresses := make([]string, len(args))
	for i, a := range args {
		addresses[i] = strings.TrimSpace(a)
	}

	batch := svc.FetchBalances(cmd.Context(), &balance.FetchBatchRequest{
		Addresses:    addresses,
		ForceRefresh: balanceRefresh,
		Timeout:      cc.Cfg.Timeout(),
	})

	response := BalanceResponse{
		Network: net.Name,
		Total:   chain.FormatBTC(batch.Total()),
	}
	for _, res := range batch.Results {
		if res != nil {
			response.Balances = append(response.Balances, res)
		}
	}
	for _, e := range batch.Errors {
		response.Errors = append(response.Errors, e.Error())
	}

	// A single address has nothing partial to show.
	if len(addresses) == 1 && len(batch.Errors) > 0 {
		return batch.Errors[0]
	}

	return cc.Fmt.Render(response, func(w io.Writer) error {
		writeBalanceText(w, response)
		return nil
	})
}

func writeBalanceText(w io.Writer, r BalanceResponse) {
	tbl := output.NewTable("ADDRESS", "CONFIRMED", "UNCONFIRMED", "TXS").AlignRight(1, 2, 3)
	stale := false
	for _, b := range r.Balances {
		confirmed := chain.FormatBTC(b.Confirmed)
		if b.Stale {
			confirmed += " *"
			stale = true
		}
		tbl.AddRow(b.Address, confirmed, formatSignedBTC(b.Unconfirmed), strconv.FormatUint(b.TxCount, 10))
	}
	if tbl.Len() > 0 {
		_ = tbl.Render(w)
		outln(w)
	}
	out(w, "Total: %s (%s)\n", r.Total, r.Network)

	if stale {
		outln(w, "* Cached value, the network query failed")
	}
	for _, e := range r.Errors {
		output.Warn(w, "%s", e)
	}
}

func formatSignedBTC(v int64) string {
	if v < 0 {
		return "-" + chain.FormatBTC(uint64(-v))
	}
	return chain.FormatBTC(uint64(v))
}
