// Package wifi renders the venue WiFi credentials as a scannable QR
// image. Pure formatting: it holds no state and talks to nothing.
package wifi

import (
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrNoCredentials is returned when the SSID is empty and there is
// nothing to encode yet.
var ErrNoCredentials = errors.New("wifi: no credentials configured")

// escaper backslash-escapes the characters that are meta characters
// in the WIFI: payload grammar.
var escaper = strings.NewReplacer(
	`\`, `\\`,
	`;`, `\;`,
	`,`, `\,`,
	`:`, `\:`,
	`"`, `\"`,
)

// EncodeNetwork formats the standard WPA credential payload
// (WIFI:T:WPA;S:<ssid>;P:<password>;;) a phone camera joins from.
func EncodeNetwork(ssid, password string) string {
	return fmt.Sprintf("WIFI:T:WPA;S:%s;P:%s;;", escaper.Replace(ssid), escaper.Replace(password))
}

// QRPNG renders the credential payload as a PNG of the given edge
// size in pixels.
func QRPNG(ssid, password string, size int) ([]byte, error) {
	if ssid == "" {
		return nil, ErrNoCredentials
	}
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(EncodeNetwork(ssid, password), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("wifi: failed to render QR image: %w", err)
	}
	return png, nil
}
