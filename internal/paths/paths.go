package paths

import (
	"os"
	"path/filepath"
)

// File names inside the data directory.
const (
	SocketFile = "wppgwd.sock"
	SQLiteFile = "wppgw.db"
	BoltFile   = "wppgw.bolt"
	LogFile    = "wppgwd.log"
)

// BaseDir returns ~/.wppgw, or $WPPGW_HOME when set.
func BaseDir() string {
	if v := os.Getenv("WPPGW_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wppgw")
}

// SocketPath returns the daemon UDS socket path.
func SocketPath() string {
	return filepath.Join(BaseDir(), SocketFile)
}

// SQLitePath returns the default sqlite store path.
func SQLitePath() string {
	return filepath.Join(BaseDir(), SQLiteFile)
}

// BoltPath returns the default bbolt store path.
func BoltPath() string {
	return filepath.Join(BaseDir(), BoltFile)
}

// LogDir returns the log directory.
func LogDir() string {
	return filepath.Join(BaseDir(), "logs")
}

// LogPath returns the daemon log file path.
func LogPath() string {
	return filepath.Join(LogDir(), LogFile)
}

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// ResolveConfig picks the config path: flag, then $WPPGW_CONFIG, then ConfigPath.
func ResolveConfig(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if v := os.Getenv("WPPGW_CONFIG"); v != "" {
		return v
	}
	return ConfigPath()
}

// EnsureDir creates the data directory tree with proper permissions.
func EnsureDir() error {
	for _, d := range []string{BaseDir(), LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
