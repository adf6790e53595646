package bootstrap

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// stationEnvFile is the persisted credential file in the state
// directory, written after a successful interactive entry.
const stationEnvFile = "station.env"

// Config holds everything the station binary needs. The backend
// endpoint and access key resolve in priority order: process
// environment (including a .env file), then the persisted station.env
// in the state directory, then interactive entry. No network calls
// happen before one of those sources yields the endpoint.
type Config struct {
	BackendAddr     string
	BackendPassword string
	BackendDB       int
	EventKey        string
	KeyPrefix       string
	ServerPort      string
	LogLevel        string
	AppEnv          string
	StateDir        string
	RecentMessages  int
	Heartbeat       time.Duration
	AutoConnect     bool

	// Archive database, used by the archiver worker. Archival on the
	// station side is enabled only when ArchiveEnabled is set.
	ArchiveEnabled bool
	DBUser         string
	DBPassword     string
	DBHost         string
	DBPort         string
	DBName         string
}

// LoadConfig resolves the configuration. interactive controls whether
// a missing endpoint may be prompted for on stdin; the archiver binary
// passes false and fails instead.
func LoadConfig(interactive bool) (*Config, error) {
	// A .env next to the binary is the build/environment source.
	_ = godotenv.Load()

	cfg := &Config{
		BackendAddr:     os.Getenv("BACKEND_ADDR"),
		BackendPassword: os.Getenv("BACKEND_KEY"),
		EventKey:        os.Getenv("EVENT_KEY"),
		KeyPrefix:       os.Getenv("KEY_PREFIX"),
		ServerPort:      os.Getenv("SERVER_PORT"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		AppEnv:          os.Getenv("APP_ENV"),
		StateDir:        os.Getenv("STATE_DIR"),
		DBUser:          os.Getenv("DB_USER"),
		DBPassword:      os.Getenv("DB_PASSWORD"),
		DBHost:          os.Getenv("DB_HOST"),
		DBPort:          os.Getenv("DB_PORT"),
		DBName:          os.Getenv("DB_NAME"),
	}
	cfg.BackendDB, _ = strconv.Atoi(os.Getenv("BACKEND_DB"))
	cfg.RecentMessages, _ = strconv.Atoi(os.Getenv("RECENT_MESSAGES"))
	if secs, _ := strconv.Atoi(os.Getenv("PRESENCE_HEARTBEAT_SECONDS")); secs > 0 {
		cfg.Heartbeat = time.Duration(secs) * time.Second
	}
	cfg.AutoConnect = os.Getenv("AUTO_CONNECT") != "false"
	cfg.ArchiveEnabled = os.Getenv("ARCHIVE_ENABLED") == "true"

	if cfg.StateDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = "."
		}
		cfg.StateDir = filepath.Join(base, "bout-station")
	}

	// Second source: credentials persisted by an earlier interactive
	// entry.
	if cfg.BackendAddr == "" {
		persisted := filepath.Join(cfg.StateDir, stationEnvFile)
		if err := godotenv.Load(persisted); err == nil {
			cfg.BackendAddr = os.Getenv("BACKEND_ADDR")
			cfg.BackendPassword = os.Getenv("BACKEND_KEY")
			logrus.WithField("path", persisted).Info("Loaded backend credentials from state directory")
		}
	}

	// Last source: ask the operator.
	if cfg.BackendAddr == "" && interactive {
		if err := promptForCredentials(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.BackendAddr == "" {
		return nil, fmt.Errorf("backend endpoint not configured: set BACKEND_ADDR or run interactively")
	}
	if cfg.BackendPassword == "" {
		logrus.Warn("No backend access key configured, connecting unauthenticated")
	}

	// Defaults.
	if cfg.EventKey == "" {
		cfg.EventKey = "global_event"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "bout:"
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.RecentMessages <= 0 {
		cfg.RecentMessages = 50
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// promptForCredentials reads the endpoint and access key from stdin
// and persists them for the next start. A persistence failure only
// means the operator is asked again next time.
func promptForCredentials(cfg *Config) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Backend endpoint (host:port): ")
	addr, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read backend endpoint: %w", err)
	}
	cfg.BackendAddr = strings.TrimSpace(addr)
	if cfg.BackendAddr == "" {
		return fmt.Errorf("backend endpoint is required")
	}

	fmt.Print("Backend access key (empty for none): ")
	key, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read backend access key: %w", err)
	}
	cfg.BackendPassword = strings.TrimSpace(key)

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		logrus.WithError(err).Warn("Failed to create state directory, credentials will not persist")
		return nil
	}
	path := filepath.Join(cfg.StateDir, stationEnvFile)
	content := fmt.Sprintf("BACKEND_ADDR=%s\nBACKEND_KEY=%s\n", cfg.BackendAddr, cfg.BackendPassword)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		logrus.WithError(err).WithField("path", path).Warn("Failed to persist backend credentials")
	}
	return nil
}
