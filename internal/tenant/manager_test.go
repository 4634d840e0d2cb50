package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/matheus3301/wppgw/internal/gateway"
	"github.com/matheus3301/wppgw/internal/model"
)

func TestManagerOpenIsLazyAndShared(t *testing.T) {
	h := newHarness(t)
	m := NewManager(context.Background(), h.deps)
	defer m.StopAll()

	if _, err := m.Get("t1"); !errors.Is(err, ErrUnknownTenant) {
		t.Errorf("Get before Open: %v", err)
	}
	a, err := m.Open(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Open(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("Open returned two actors for one tenant")
	}
	if got, err := m.ByInstance("tenant-t1"); err != nil || got != a {
		t.Errorf("ByInstance = %v, %v", got, err)
	}
}

func TestManagerRejectsInvalidTenant(t *testing.T) {
	h := newHarness(t)
	m := NewManager(context.Background(), h.deps)

	if _, err := m.Open(context.Background(), "bad id"); !errors.Is(err, model.ErrInvalidTenantID) {
		t.Errorf("err = %v, want ErrInvalidTenantID", err)
	}
}

func TestManagerBootstrapRevalidates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, s := range []model.Session{
		{TenantID: "alive", InstanceName: "tenant-alive", Status: model.Connected, PhoneNumber: "5511111111111"},
		{TenantID: "gone", InstanceName: "tenant-gone", Status: model.Connected, PhoneNumber: "5522222222222"},
	} {
		if err := h.db.UpsertSession(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	h.fake.AddInstance("tenant-alive", gateway.StateOpen, "5511111111111@s.whatsapp.net")

	m := NewManager(ctx, h.deps)
	defer m.StopAll()
	if err := m.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		gone, err := m.Get("gone")
		return err == nil && gone.Snapshot().Status == model.Disconnected
	})
	alive, err := m.Get("alive")
	if err != nil {
		t.Fatal(err)
	}
	if s := alive.Snapshot(); s.Status != model.Connected || s.PhoneNumber != "5511111111111" {
		t.Errorf("alive = %+v", s)
	}

	list := m.List()
	if len(list) != 2 || list[0].TenantID != "alive" || list[1].TenantID != "gone" {
		t.Errorf("List = %+v", list)
	}
}

func TestManagerStopOneTenant(t *testing.T) {
	h := newHarness(t)
	m := NewManager(context.Background(), h.deps)
	defer m.StopAll()

	a, _ := m.Open(context.Background(), "a")
	b, _ := m.Open(context.Background(), "b")
	if err := m.Stop("a"); err != nil {
		t.Fatal(err)
	}
	if a.Running() || !b.Running() {
		t.Errorf("running a=%v b=%v, want false true", a.Running(), b.Running())
	}
	if err := m.Stop("zzz"); !errors.Is(err, ErrUnknownTenant) {
		t.Errorf("Stop unknown: %v", err)
	}

	if _, err := m.Open(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if !a.Running() {
		t.Error("reopen did not restart the loop")
	}
}
