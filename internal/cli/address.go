package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/discovery"
	"github.com/mrz1836/satchel/internal/output"
	addresssvc "github.com/mrz1836/satchel/internal/service/address"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	addrAccount    uint32
	addrChange     bool
	addrStart      uint32
	addrCount      int
	addrXpub       string
	addrShowPubKey bool
	addrMaxIndex   uint32
	addrPassphrase bool
)

// addressCmd is the parent command for address operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var addressCmd = &cobra.Command{
	Use:     "address",
	Aliases: []string{"addresses"},
	Short:   "Derive and locate wallet addresses",
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var addressDeriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Derive a range of addresses",
	Long: `Derive addresses of an account without querying the network.

With --xpub the addresses come from an account extended public key and
no mnemonic is needed.

Examples:
  satchel address derive --count 10
  satchel address derive --change --start 20 --count 5
  satchel address derive --xpub tpubDC...`,
	RunE: runAddressDerive,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var addressXpubCmd = &cobra.Command{
	Use:   "xpub",
	Short: "Show the account extended public key",
	RunE:  runAddressXpub,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var addressFindCmd = &cobra.Command{
	Use:   "find <address>",
	Short: "Find the derivation path of an address",
	Long: `Search both chains of an account for an address, offline.

Indexes 0 through --max-index are derived on each chain.`,
	Args: cobra.ExactArgs(1),
	RunE: runAddressFind,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(addressCmd)
	addressCmd.AddCommand(addressDeriveCmd, addressXpubCmd, addressFindCmd)

	for _, c := range []*cobra.Command{addressDeriveCmd, addressXpubCmd, addressFindCmd} {
		c.Flags().Uint32Var(&addrAccount, "account", 0, "account index (default from config)")
		c.Flags().BoolVar(&addrPassphrase, "passphrase", false, "prompt for a BIP39 passphrase")
	}

	addressDeriveCmd.Flags().BoolVar(&addrChange, "change", false, "derive change addresses")
	addressDeriveCmd.Flags().Uint32Var(&addrStart, "start", 0, "first address index")
	addressDeriveCmd.Flags().IntVar(&addrCount, "count", 1, "number of addresses")
	addressDeriveCmd.Flags().StringVar(&addrXpub, "xpub", "", "derive from an account extended public key")
	addressDeriveCmd.Flags().BoolVar(&addrShowPubKey, "pubkey", false, "include public keys")

	addressFindCmd.Flags().Uint32Var(&addrMaxIndex, "max-index", discovery.DefaultMaxFindIndex, "highest index to check on each chain")
}

func addressAccount(cmd *cobra.Command, cc *CommandContext) uint32 {
	if cmd.Flags().Changed("account") {
		return addrAccount
	}
	return cc.Cfg.Derivation.DefaultAccount
}

func runAddressDerive(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	engine, err := cc.Engine()
	if err != nil {
		return err
	}
	svc := addresssvc.NewService(engine)

	req := &addresssvc.DeriveRequest{
		Xpub:    strings.TrimSpace(addrXpub),
		Account: addressAccount(cmd, cc),
		Chain:   wallet.Receiving,
		Start:   addrStart,
		Count:   addrCount,
	}
	if addrChange {
		req.Chain = wallet.Change
	}

	var infos []addresssvc.AddressInfo
	if req.Xpub != "" {
		infos, err = svc.Derive(req)
	} else {
		err = withSeed(addrPassphrase, func(seed []byte) error {
			req.Seed = seed
			var deriveErr error
			infos, deriveErr = svc.Derive(req)
			return deriveErr
		})
	}
	if err != nil {
		return err
	}

	if !addrShowPubKey {
		for i := range infos {
			infos[i].PubKey = ""
		}
	}

	return cc.Fmt.Render(infos, func(w io.Writer) error {
		headers := []string{"PATH", "ADDRESS"}
		if addrShowPubKey {
			headers = append(headers, "PUBKEY")
		}
		tbl := output.NewTable(headers...)
		for _, info := range infos {
			row := []string{info.Path, info.Address}
			if addrShowPubKey {
				row = append(row, info.PubKey)
			}
			tbl.AddRow(row...)
		}
		return tbl.Render(w)
	})
}

// XpubResponse is the output of address xpub.
type XpubResponse struct {
	Network string `json:"network"`
	Account uint32 `json:"account"`
	Path    string `json:"path"`
	Xpub    string `json:"xpub"`
}

func runAddressXpub(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	engine, err := cc.Engine()
	if err != nil {
		return err
	}
	account := addressAccount(cmd, cc)
	net := engine.Network()

	var xpub string
	err = withSeed(addrPassphrase, func(seed []byte) error {
		var xpubErr error
		xpub, xpubErr = addresssvc.NewService(engine).Xpub(seed, account)
		return xpubErr
	})
	if err != nil {
		return err
	}

	response := XpubResponse{
		Network: net.Name,
		Account: account,
		Path:    fmt.Sprintf("m/%d'/%d'/%d'", net.Purpose, net.CoinType, account),
		Xpub:    xpub,
	}
	return cc.Fmt.Render(response, func(w io.Writer) error {
		out(w, "%s  %s\n", response.Path, response.Xpub)
		return nil
	})
}

func runAddressFind(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)

	engine, err := cc.Engine()
	if err != nil {
		return err
	}
	target := strings.TrimSpace(args[0])
	if err := wallet.ValidateAddress(target, engine.Network()); err != nil {
		return err
	}

	var info *addresssvc.AddressInfo
	err = withSeed(addrPassphrase, func(seed []byte) error {
		var findErr error
		info, findErr = addresssvc.NewService(engine).Find(cmd.Context(), seed, addressAccount(cmd, cc), target, addrMaxIndex)
		return findErr
	})
	if err != nil {
		if satchelerr.Is(err, discovery.ErrAddressNotFound) {
			return satchelerr.WithSuggestion(err, "try a larger --max-index, another --account or the --passphrase flag")
		}
		return err
	}

	return cc.Fmt.Render(info, func(w io.Writer) error {
		out(w, "%s  %s (%s chain, index %d)\n", info.Address, info.Path, info.Chain, info.Index)
		return nil
	})
}
