package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBaseDirDefault(t *testing.T) {
	t.Setenv("WPPGW_HOME", "")
	home, _ := os.UserHomeDir()
	if got, want := BaseDir(), filepath.Join(home, ".wppgw"); got != want {
		t.Errorf("BaseDir() = %q, want %q", got, want)
	}
}

func TestBaseDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WPPGW_HOME", dir)
	if got := SocketPath(); got != filepath.Join(dir, "wppgwd.sock") {
		t.Errorf("SocketPath() = %q", got)
	}
	if got := LogPath(); !strings.HasSuffix(got, filepath.Join("logs", "wppgwd.log")) {
		t.Errorf("LogPath() = %q, want suffix logs/wppgwd.log", got)
	}
}

func TestResolveConfig(t *testing.T) {
	t.Setenv("WPPGW_HOME", "/data")
	t.Setenv("WPPGW_CONFIG", "")
	if got := ResolveConfig("/etc/wppgw.toml"); got != "/etc/wppgw.toml" {
		t.Errorf("flag override = %q", got)
	}
	if got := ResolveConfig(""); got != filepath.Join("/data", "config.toml") {
		t.Errorf("default = %q", got)
	}
	t.Setenv("WPPGW_CONFIG", "/run/cfg.toml")
	if got := ResolveConfig(""); got != "/run/cfg.toml" {
		t.Errorf("env override = %q", got)
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gw")
	t.Setenv("WPPGW_HOME", dir)

	if err := EnsureDir(); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(LogDir())
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("log dir is not a directory")
	}
}
