package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "wppgwd.log")

	logger, err := New(path, "wppgwd", zapcore.InfoLevel)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("hello", zap.String("tenant", "t1"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	for _, want := range []string{`"msg":"hello"`, `"tenant":"t1"`, `"service":"wppgwd"`, `"ts":`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %s", line, want)
		}
	}
}

func TestNewRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.log")

	logger, err := New(path, "wppgwd", zapcore.WarnLevel)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("quiet")
	_ = logger.Sync()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "quiet") {
		t.Error("info entry written below configured level")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	l := zap.NewExample()
	if OrNop(l) != l {
		t.Error("OrNop replaced a non-nil logger")
	}
}
