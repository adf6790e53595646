package wifi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/wifi"
)

func TestEncodeNetwork(t *testing.T) {
	tests := []struct {
		name     string
		ssid     string
		password string
		want     string
	}{
		{
			name:     "plain credentials",
			ssid:     "VenueGuest",
			password: "letmein",
			want:     "WIFI:T:WPA;S:VenueGuest;P:letmein;;",
		},
		{
			name:     "meta characters escaped",
			ssid:     `Back;stage`,
			password: `pass:with,all"of\them`,
			want:     `WIFI:T:WPA;S:Back\;stage;P:pass\:with\,all\"of\\them;;`,
		},
		{
			name:     "empty password still renders",
			ssid:     "OpenNet",
			password: "",
			want:     "WIFI:T:WPA;S:OpenNet;P:;;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wifi.EncodeNetwork(tt.ssid, tt.password))
		})
	}
}

func TestQRPNG(t *testing.T) {
	// Act
	png, err := wifi.QRPNG("VenueGuest", "letmein", 0)

	// Assert: default size kicks in and the output is a PNG
	require.NoError(t, err)
	require.True(t, len(png) > 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func TestQRPNG_NoSSID(t *testing.T) {
	_, err := wifi.QRPNG("", "irrelevant", 256)
	assert.ErrorIs(t, err, wifi.ErrNoCredentials)
}
