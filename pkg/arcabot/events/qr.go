package events

import (
	"encoding/base64"
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"
)

// QRDataURL renders code as a 256px PNG data URL.
func QRDataURL(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// RenderTerminal writes code to w as QR block art. When the code cannot be
// encoded the raw code is written instead.
func RenderTerminal(w io.Writer, botID, code string) error {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		_, werr := fmt.Fprintf(w, "pairing code for %s: %s\n", botID, code)
		return werr
	}
	_, err = fmt.Fprintf(w, "\nScan with WhatsApp (Linked Devices) to pair bot %s:\n\n%s\n", botID, qr.ToSmallString(false))
	return err
}
