package api

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

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

type fixture struct {
	fake    *gatewaytest.Server
	manager *tenant.Manager
	client  *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	// Short path to stay under the Unix socket length limit.
	dir, err := os.MkdirTemp("/tmp", "wppgw-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	db, _, err := store.OpenMigrated(context.Background(), filepath.Join(dir, "test.db"))
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

	socketPath := filepath.Join(dir, "d.sock")
	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	srv := grpc.NewServer()
	Register(srv, NewService(m, b, logger))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	return &fixture{fake: fake, manager: m, client: c}
}

// connected drives tenant id to Connected through the fake gateway.
func (f *fixture) connected(t *testing.T, id, phone string) {
	t.Helper()
	f.fake.SetState(model.InstanceName(id), gateway.StateOpen, phone+"@s.whatsapp.net")
	tn, err := f.manager.Open(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for tn.Snapshot().Status != model.Connected {
		if time.Now().After(deadline) {
			t.Fatalf("tenant %s never connected", id)
		}
		tn.Poll(context.Background())
		time.Sleep(5 * time.Millisecond)
	}
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if got := grpcstatus.Code(err); got != code {
		t.Errorf("code = %s (%v), want %s", got, err, code)
	}
}

func TestConnectReturnsQR(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.client.Connect(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != model.Connecting || sess.QRCode == "" || sess.InstanceName != "tenant-t1" {
		t.Fatalf("connect = %+v", sess)
	}

	got, png, err := f.client.Session(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.QRCode != sess.QRCode {
		t.Errorf("qr = %q, want %q", got.QRCode, sess.QRCode)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Errorf("qr png missing or invalid (%d bytes)", len(png))
	}
}

func TestSendAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jid := "5511888888888@s.whatsapp.net"
	f.fake.SetContacts("tenant-t1", []map[string]any{{"remoteJid": jid, "pushName": "Ana", "unreadCount": 2}})
	f.fake.SetMessages("tenant-t1", jid, []map[string]any{
		{"key": map[string]any{"id": "A", "remoteJid": jid}, "message": map[string]any{"conversation": "oi"}, "messageTimestamp": 1700000000},
	})
	f.connected(t, "t1", "5511999999999")

	contacts, err := f.client.Contacts(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != 1 || contacts[0].Name != "Ana" || contacts[0].UnreadCount != 2 {
		t.Errorf("contacts = %+v", contacts)
	}

	msgs, err := f.client.Messages(ctx, "t1", "5511888888888")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != "oi" || !msgs[0].Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("messages = %+v", msgs)
	}

	res, err := f.client.Send(ctx, "t1", "5511888888888", "tudo bem?")
	if err != nil {
		t.Fatal(err)
	}
	if res.ID == "" {
		t.Error("send result without id")
	}
	if sent := f.fake.Sent(); len(sent) != 1 || sent[0].Text != "tudo bem?" {
		t.Errorf("sent = %+v", sent)
	}
}

func TestErrorCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.Send(ctx, "t1", "5511888888888", "oi")
	wantCode(t, err, codes.FailedPrecondition)

	_, err = f.client.Connect(ctx, "not a tenant")
	wantCode(t, err, codes.InvalidArgument)

	_, err = f.client.Connect(ctx, "")
	wantCode(t, err, codes.InvalidArgument)

	err = f.client.StopTenant(ctx, "ghost")
	wantCode(t, err, codes.NotFound)

	f.fake.Fail(gatewaytest.RouteFetchInstances, http.StatusInternalServerError)
	f.fake.Fail(gatewaytest.RouteConnectionState, http.StatusInternalServerError)
	_, err = f.client.Connect(ctx, "t2")
	wantCode(t, err, codes.Unavailable)
}

func TestEmptyBodyIsInvalid(t *testing.T) {
	f := newFixture(t)
	f.connected(t, "t1", "5511999999999")

	_, err := f.client.Send(context.Background(), "t1", "5511888888888", "   ")
	wantCode(t, err, codes.InvalidArgument)
}

func TestListAndStopTenants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.connected(t, "b", "5522222222222")
	if _, _, err := f.client.Session(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	list, err := f.client.Tenants(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].TenantID != "a" || list[1].Status != model.Connected {
		t.Errorf("tenants = %+v", list)
	}

	if err := f.client.StopTenant(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	b, _ := f.manager.Get("b")
	if b.Running() {
		t.Error("tenant b still polling")
	}
}

func TestLogoutDisconnects(t *testing.T) {
	f := newFixture(t)
	f.connected(t, "t1", "5511999999999")

	sess, err := f.client.Logout(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != model.Disconnected || sess.PhoneNumber != "" {
		t.Errorf("after logout = %+v", sess)
	}
}

func TestWatchSession(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan WatchEvent, 16)
	done := make(chan error, 1)
	go func() {
		done <- f.client.Watch(ctx, "t1", func(evt WatchEvent) error {
			events <- evt
			return nil
		})
	}()

	first := <-events
	if first.Kind != "session.snapshot" || first.Session == nil || first.Session.TenantID != "t1" {
		t.Fatalf("first event = %+v", first)
	}

	if _, err := f.client.Connect(ctx, "t1"); err != nil {
		t.Fatal(err)
	}

	for {
		select {
		case evt := <-events:
			if evt.Kind == bus.KindStatusChanged && evt.Session != nil && evt.Session.Status == model.Connecting {
				cancel()
				if err := <-done; err != nil && grpcstatus.Code(err) != codes.Canceled && !errors.Is(err, context.Canceled) {
					t.Errorf("watch returned %v", err)
				}
				return
			}
		case <-ctx.Done():
			t.Fatal("no status change received")
		}
	}
}
