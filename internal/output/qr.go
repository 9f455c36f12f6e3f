package output

import (
	"io"
	"net/url"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"rsc.io/qr"

	"github.com/mrz1836/satchel/internal/chain"
)

// QRConfig configures QR code rendering.
type QRConfig struct {
	// Level is the error correction level.
	Level qr.Level
	// QuietZone is the number of empty blocks around the QR code.
	QuietZone int
	// HalfBlocks uses half-height blocks for a more compact display.
	HalfBlocks bool
}

// DefaultQRConfig returns defaults for terminal QR rendering.
func DefaultQRConfig() QRConfig {
	return QRConfig{
		Level:      qr.M,
		QuietZone:  1,
		HalfBlocks: true,
	}
}

// PaymentURI builds a BIP21 payment URI. A zero amount and an empty label
// are omitted.
func PaymentURI(address string, amount uint64, label string) string {
	params := url.Values{}
	if amount > 0 {
		params.Set("amount", chain.FormatBTCTrimmed(amount))
	}
	if label != "" {
		params.Set("label", label)
	}

	uri := "bitcoin:" + address
	if len(params) > 0 {
		uri += "?" + strings.ReplaceAll(params.Encode(), "+", "%20")
	}
	return uri
}

// RenderQR renders data as a QR code when w is a terminal. Other writers
// receive no output.
func RenderQR(w io.Writer, data string, cfg QRConfig) error {
	if !IsTerminal(w) {
		return nil
	}
	renderQR(w, data, cfg)
	return nil
}

func renderQR(w io.Writer, data string, cfg QRConfig) {
	qrterminal.GenerateWithConfig(data, qrterminal.Config{
		Level:          cfg.Level,
		Writer:         w,
		QuietZone:      cfg.QuietZone,
		HalfBlocks:     cfg.HalfBlocks,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
	})
}
