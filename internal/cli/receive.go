package cli

import (
	"io"
	"strings"

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
	receiveIndex      uint32
	receiveAccount    uint32
	receiveAmount     string
	receiveLabel      string
	receiveNoQR       bool
	receivePassphrase bool
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Show a fresh receiving address",
	Long: `Show the first unused receiving address of the account.

The receiving chain is scanned to find the index after the last used
address. With --index the address is derived directly, without a scan.
On a terminal a QR code of the BIP21 payment URI is printed as well.

Examples:
  satchel receive
  satchel receive --amount 0.0015 --label "invoice 42"
  satchel receive --index 7 --no-qr`,
	RunE: runReceive,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveCmd.Flags().Uint32Var(&receiveIndex, "index", 0, "derive this receiving index instead of scanning")
	receiveCmd.Flags().Uint32Var(&receiveAccount, "account", 0, "account index (default from config)")
	receiveCmd.Flags().StringVar(&receiveAmount, "amount", "", "requested amount in BTC")
	receiveCmd.Flags().StringVar(&receiveLabel, "label", "", "label for the payment URI")
	receiveCmd.Flags().BoolVar(&receiveNoQR, "no-qr", false, "do not print a QR code")
	receiveCmd.Flags().BoolVar(&receivePassphrase, "passphrase", false, "prompt for a BIP39 passphrase")
}

// ReceiveResponse is the output of receive.
type ReceiveResponse struct {
	Network string `json:"network"`
	Address string `json:"address"`
	Path    string `json:"path"`
	Index   uint32 `json:"index"`
	URI     string `json:"uri"`
	Scanned bool   `json:"scanned"`
}

func runReceive(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	var amount uint64
	if a := strings.TrimSpace(receiveAmount); a != "" {
		var err error
		if amount, err = chain.ParseBTC(a); err != nil {
			return err
		}
	}

	account := cc.Cfg.Derivation.DefaultAccount
	if cmd.Flags().Changed("account") {
		account = receiveAccount
	}

	engine, err := cc.Engine()
	if err != nil {
		return err
	}

	response := ReceiveResponse{Network: engine.Network().Name}
	err = withSeed(receivePassphrase, func(seed []byte) error {
		index := receiveIndex
		if !cmd.Flags().Changed("index") {
			next, scanErr := nextReceiveIndex(cmd, cc, engine, seed, account)
			if scanErr != nil {
				return scanErr
			}
			index = next
			response.Scanned = true
		}

		key, deriveErr := engine.Derive(seed, account, wallet.Receiving, index)
		if deriveErr != nil {
			return deriveErr
		}
		defer key.Zero()

		response.Address = key.Address()
		response.Path = key.Path()
		response.Index = index
		return nil
	})
	if err != nil {
		return err
	}
	response.URI = output.PaymentURI(response.Address, amount, receiveLabel)

	return cc.Fmt.Render(response, func(w io.Writer) error {
		outln(w)
		out(w, "  Address: %s\n", response.Address)
		out(w, "  Path:    %s\n", response.Path)
		out(w, "  URI:     %s\n", response.URI)
		outln(w)
		if receiveNoQR {
			return nil
		}
		return output.RenderQR(w, response.URI, output.DefaultQRConfig())
	})
}

// nextReceiveIndex scans the account and returns the index after the
// last used receiving address.
func nextReceiveIndex(cmd *cobra.Command, cc *CommandContext, engine *wallet.Engine, seed []byte, account uint32) (uint32, error) {
	backend, err := cc.ChainBackend()
	if err != nil {
		return 0, err
	}

	ctx, cancel := contextWithTimeout(cmd, discovery.DefaultTimeout)
	defer cancel()

	result, err := scansvc.NewService(&scansvc.Config{
		Chain:   backend,
		Engine:  engine,
		Logger:  cc.Log.Zerolog(),
		Metrics: cc.Metrics,
	}).Scan(ctx, &scansvc.ScanRequest{
		Seed:      seed,
		Account:   account,
		GapLimit:  cc.Cfg.Derivation.GapLimit,
		SkipUTXOs: true,
	})
	if err != nil {
		return 0, satchelerr.WithSuggestion(err, "use --index to derive an address without scanning")
	}
	return result.Scan.ReceivingChain.NextIndex, nil
}
