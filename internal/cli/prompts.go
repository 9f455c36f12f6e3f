package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/crypto"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Prompt hooks, replaced in tests.
//
//nolint:gochecknoglobals // Test seams for interactive input
var (
	promptSecretFn  = promptSecret
	promptConfirmFn = promptConfirm
	promptStdin     io.Reader = os.Stdin
)

// out is a helper for CLI output that ignores write errors (standard pattern for CLI tools).
//
//nolint:errcheck // CLI output writes to stdout are intentionally unchecked
func out(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}

// outln is a helper for CLI output with newline.
//
//nolint:errcheck // CLI output writes to stdout are intentionally unchecked
func outln(w io.Writer, args ...any) {
	fmt.Fprintln(w, args...)
}

// promptSecret reads a line without echo when stdin is a terminal.
// The caller is responsible for zeroing the returned bytes after use.
func promptSecret(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	if f, ok := promptStdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // G115: Fd() returns uintptr
		secret, err := term.ReadPassword(int(f.Fd())) //nolint:gosec // G115: Fd() returns uintptr
		outln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		return secret, nil
	}

	line, err := bufio.NewReader(promptStdin).ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// promptConfirm asks a yes/no question, defaulting to no.
func promptConfirm(question string) bool {
	out(os.Stderr, "%s [y/N]: ", question)

	line, err := bufio.NewReader(promptStdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	response := strings.ToLower(strings.TrimSpace(line))
	return response == "y" || response == "yes"
}

// loadSeed reads the mnemonic from SATCHEL_MNEMONIC or a hidden prompt,
// optionally prompts for the BIP39 passphrase, and returns the seed in
// locked memory. The caller must Destroy it.
func loadSeed(withPassphrase bool) (*crypto.SecureBytes, error) {
	mnemonic := os.Getenv(config.EnvMnemonic)
	if mnemonic == "" {
		raw, err := promptSecretFn("Enter mnemonic (words separated by spaces): ")
		if err != nil {
			return nil, err
		}
		mnemonic = string(raw)
		wallet.ZeroBytes(raw)
	}
	mnemonic = wallet.NormalizeMnemonicInput(mnemonic)
	if mnemonic == "" {
		return nil, satchelerr.WithSuggestion(satchelerr.ErrInvalidMnemonic,
			fmt.Sprintf("set %s or enter the phrase when prompted", config.EnvMnemonic))
	}

	if err := wallet.ValidateMnemonic(mnemonic); err != nil {
		if typos := wallet.DetectTypos(mnemonic); len(typos) > 0 {
			return nil, satchelerr.WithSuggestion(err, wallet.FormatTypoSuggestions(typos))
		}
		return nil, satchelerr.WithSuggestion(err, "check for missing words or the word order")
	}

	var passphrase string
	if withPassphrase {
		raw, err := promptSecretFn("BIP39 passphrase: ")
		if err != nil {
			return nil, err
		}
		passphrase = string(raw)
		wallet.ZeroBytes(raw)
	}

	seed, err := wallet.MnemonicToSeed(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	return crypto.TakeSecureBytes(seed), nil
}

// withSeed loads the seed and runs fn with it, wiping it afterwards.
func withSeed(withPassphrase bool, fn func(seed []byte) error) error {
	seed, err := loadSeed(withPassphrase)
	if err != nil {
		return err
	}
	defer seed.Destroy()
	return seed.Use(fn)
}
