// Package identity derives and persists the stable per-device
// identifier every other component keys on. The identifier is a
// liveness aid, not a security boundary: a cleared state directory
// silently yields a brand new identity.
package identity

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const deviceIDFile = "device_id"

// Provider hands out the device identifier, generating and persisting
// one on first use.
type Provider struct {
	stateDir string
	cached   string
}

// NewProvider creates a Provider rooted at the given state directory.
func NewProvider(stateDir string) *Provider {
	if stateDir == "" {
		panic("state directory cannot be empty for identity.Provider")
	}
	return &Provider{stateDir: stateDir}
}

// DeviceID returns the stable identifier for this device. The first
// call generates a random uuid and persists it; later calls return the
// same value. Persistence failures are logged and tolerated; the
// identity then simply lasts for the process lifetime only.
func (p *Provider) DeviceID() string {
	if p.cached != "" {
		return p.cached
	}

	path := filepath.Join(p.stateDir, deviceIDFile)
	if raw, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(raw))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			p.cached = id
			return p.cached
		}
		logrus.WithField("path", path).Warn("Stored device id is malformed, generating a new one")
	}

	p.cached = uuid.NewString()
	if err := os.MkdirAll(p.stateDir, 0o700); err != nil {
		logrus.WithError(err).WithField("dir", p.stateDir).Warn("Failed to create state directory, device id will not persist")
		return p.cached
	}
	if err := os.WriteFile(path, []byte(p.cached+"\n"), 0o600); err != nil {
		logrus.WithError(err).WithField("path", path).Warn("Failed to persist device id")
	}
	return p.cached
}
