package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wppgw/internal/bus"
	"github.com/matheus3301/wppgw/internal/chat"
	"github.com/matheus3301/wppgw/internal/config"
	"github.com/matheus3301/wppgw/internal/gateway"
	"github.com/matheus3301/wppgw/internal/gateway/gatewaytest"
	"github.com/matheus3301/wppgw/internal/model"
	"github.com/matheus3301/wppgw/internal/provision"
	"github.com/matheus3301/wppgw/internal/store"
	"github.com/matheus3301/wppgw/internal/sync"
	"github.com/matheus3301/wppgw/internal/tenant"
)

func newManager(t *testing.T) (*tenant.Manager, *gatewaytest.Server) {
	t.Helper()
	db, _, err := store.OpenMigrated(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	fake := gatewaytest.New(t)
	logger := zap.NewNop()
	b := bus.New()
	gw := gateway.New(fake.Config(), logger)
	hour := config.Duration{Duration: time.Hour}
	m := tenant.NewManager(context.Background(), tenant.Deps{
		Gateway:     gw,
		Provisioner: provision.New(gw, 10*time.Millisecond, logger),
		Pipeline:    chat.New(gw, logger),
		Sync:        sync.New(db, b, logger),
		Bus:         b,
		Polling:     config.PollingConfig{ConnectedInterval: hour, ConnectingInterval: hour, DisconnectedInterval: hour},
		Logger:      logger,
	})
	t.Cleanup(m.StopAll)
	return m, fake
}

func post(t *testing.T, srv *httptest.Server, path, apikey, body string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apikey != "" {
		req.Header.Set("apikey", apikey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	return resp.StatusCode
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func connecting(t *testing.T, m *tenant.Manager, id string) *tenant.Tenant {
	t.Helper()
	tn, err := m.Open(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tn.RequestConnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	return tn
}

func TestConnectionUpdateTriggersPoll(t *testing.T) {
	m, fake := newManager(t)
	tn := connecting(t, m, "t1")
	s := New(m, "", zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer func() { _ = s.Stop(context.Background()) }()

	fake.SetState("tenant-t1", gateway.StateOpen, "5511999999999@s.whatsapp.net")
	// Re-post: an early poll is skipped while the loop's own poll runs.
	waitFor(t, func() bool {
		code := post(t, srv, "/webhook", "", `{"event":"CONNECTION_UPDATE","instance":"tenant-t1","data":{"state":"open"}}`)
		if code != http.StatusAccepted {
			t.Fatalf("status = %d", code)
		}
		return tn.Snapshot().Status == model.Connected
	})
}

func TestQRCodeUpdated(t *testing.T) {
	m, _ := newManager(t)
	tn := connecting(t, m, "t1")
	s := New(m, "", zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer func() { _ = s.Stop(context.Background()) }()

	code := post(t, srv, "/webhook/tenant-t1", "", `{"event":"qrcode.updated","data":{"qrcode":{"code":"2@pushed","base64":"data:image/png;base64,AAAA"}}}`)
	if code != http.StatusAccepted {
		t.Fatalf("status = %d", code)
	}
	waitFor(t, func() bool { return tn.Snapshot().QRCode == "2@pushed" })
}

func TestEventFromPath(t *testing.T) {
	m, _ := newManager(t)
	tn := connecting(t, m, "t1")
	s := New(m, "", zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer func() { _ = s.Stop(context.Background()) }()

	post(t, srv, "/webhook/tenant-t1/qrcode-updated", "", `{"data":{"code":"2@by-path"}}`)
	waitFor(t, func() bool { return tn.Snapshot().QRCode == "2@by-path" })
}

func TestSecret(t *testing.T) {
	m, _ := newManager(t)
	s := New(m, "s3cret", zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body := `{"event":"connection.update","instance":"tenant-t1"}`
	tests := []struct {
		name   string
		header string
		body   string
		want   int
	}{
		{"missing", "", body, http.StatusUnauthorized},
		{"wrong", "nope", body, http.StatusUnauthorized},
		{"header", "s3cret", body, http.StatusAccepted},
		{"in body", "", `{"event":"connection.update","instance":"tenant-t1","apikey":"s3cret"}`, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := post(t, srv, "/webhook", tt.header, tt.body); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIgnoresUnknownAndMalformed(t *testing.T) {
	m, _ := newManager(t)
	s := New(m, "", zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	if got := post(t, srv, "/webhook", "", `{"event":"connection.update","instance":"tenant-nobody"}`); got != http.StatusAccepted {
		t.Errorf("unknown tenant status = %d", got)
	}
	if got := post(t, srv, "/webhook", "", `{"event":"messages.upsert","instance":"random"}`); got != http.StatusAccepted {
		t.Errorf("unknown event status = %d", got)
	}
	if got := post(t, srv, "/webhook", "", `not json`); got != http.StatusBadRequest {
		t.Errorf("malformed status = %d", got)
	}
}

func TestNormalizeEvent(t *testing.T) {
	tests := map[string]string{
		"CONNECTION_UPDATE": EventConnectionUpdate,
		"connection.update": EventConnectionUpdate,
		" qrcode-updated ":  EventQRCodeUpdated,
		"QRCODE_UPDATED":    EventQRCodeUpdated,
		"MESSAGES_UPSERT":   "messages.upsert",
	}
	for in, want := range tests {
		if got := NormalizeEvent(in); got != want {
			t.Errorf("NormalizeEvent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestListenAndServe(t *testing.T) {
	m, _ := newManager(t)
	s := New(m, "", zap.NewNop())
	if err := s.Listen("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()

	resp, err := http.Get("http://" + s.Addr().String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", resp.StatusCode)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Serve returned %v", err)
	}
}
