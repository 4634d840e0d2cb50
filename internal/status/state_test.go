package status

import (
	"testing"
	"time"

	"github.com/matheus3301/wppgw/internal/bus"
	"github.com/matheus3301/wppgw/internal/model"
)

func TestInitialState(t *testing.T) {
	m := NewMachine("t1", nil)
	if m.Current() != model.Disconnected {
		t.Errorf("initial state = %s, want disconnected", m.Current())
	}
	if got := m.Snapshot().InstanceName; got != "tenant-t1" {
		t.Errorf("instance = %q, want tenant-t1", got)
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from model.Status
		to   model.Status
	}{
		{model.Disconnected, model.Connecting},
		{model.Disconnected, model.Connected},
		{model.Disconnected, model.Disconnected},
		{model.Connecting, model.Connecting},
		{model.Connecting, model.Connected},
		{model.Connecting, model.Disconnected},
		{model.Connected, model.Connected},
		{model.Connected, model.Disconnected},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine("t1", nil)
			walkTo(t, m, tt.from)
			if _, err := m.Apply(model.Session{Status: tt.to}); err != nil {
				t.Errorf("Apply(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

// TestConnectedCannotJumpToConnecting verifies a connected session must
// pass through disconnected before a new handshake starts.
func TestConnectedCannotJumpToConnecting(t *testing.T) {
	m := NewMachine("t1", nil)
	walkTo(t, m, model.Connected)

	if _, err := m.Apply(model.Session{Status: model.Connecting, QRCode: "qr"}); err == nil {
		t.Fatal("Apply(connected -> connecting) should fail")
	}
	if m.Current() != model.Connected {
		t.Errorf("state = %s, want connected (unchanged)", m.Current())
	}
}

func TestApplyClearsQROutsideConnecting(t *testing.T) {
	m := NewMachine("t1", nil)
	if _, err := m.Apply(model.Session{Status: model.Connecting, QRCode: "2@abc"}); err != nil {
		t.Fatal(err)
	}
	if got := m.Snapshot().QRCode; got != "2@abc" {
		t.Fatalf("qr = %q, want 2@abc while connecting", got)
	}

	if _, err := m.Apply(model.Session{Status: model.Connected, QRCode: "stale", PhoneNumber: "5511"}); err != nil {
		t.Fatal(err)
	}
	s := m.Snapshot()
	if s.QRCode != "" {
		t.Errorf("qr = %q, want cleared on connected", s.QRCode)
	}
	if s.PhoneNumber != "5511" {
		t.Errorf("phone = %q, want 5511", s.PhoneNumber)
	}

	if _, err := m.Apply(model.Session{Status: model.Disconnected, PhoneNumber: "5511"}); err != nil {
		t.Fatal(err)
	}
	if s := m.Snapshot(); s.PhoneNumber != "" || s.QRCode != "" {
		t.Errorf("disconnected session carries qr/phone: %+v", s)
	}
}

func TestApplyKeepsIdentity(t *testing.T) {
	m := NewMachine("t1", nil)
	change, err := m.Apply(model.Session{TenantID: "other", InstanceName: "x", Status: model.Connecting})
	if err != nil {
		t.Fatal(err)
	}
	if change.Session.TenantID != "t1" || change.Session.InstanceName != "tenant-t1" {
		t.Errorf("identity overwritten: %+v", change.Session)
	}
	if change.Session.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine("t1", b)
	if _, err := m.Apply(model.Session{Status: model.Connecting, QRCode: "qr"}); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindStatusChanged)
	}
	if evt.Tenant != "t1" {
		t.Errorf("event tenant = %q, want t1", evt.Tenant)
	}
	change, ok := evt.Payload.(Change)
	if !ok {
		t.Fatalf("payload type = %T, want Change", evt.Payload)
	}
	if change.From != model.Disconnected || change.To != model.Connecting {
		t.Errorf("change = %v -> %v, want disconnected -> connecting", change.From, change.To)
	}
}

func TestSelfLoopWithoutChangeIsSilent(t *testing.T) {
	b := bus.New()
	m := NewMachine("t1", b)
	walkTo(t, m, model.Connected)

	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	change, err := m.Apply(model.Session{Status: model.Connected, PhoneNumber: m.Snapshot().PhoneNumber})
	if err != nil {
		t.Fatal(err)
	}
	if change.Changed {
		t.Error("identical self-loop reported as changed")
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %q on unchanged self-loop", evt.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQRRefreshEmitsSessionUpdated(t *testing.T) {
	b := bus.New()
	m := NewMachine("t1", b)
	walkTo(t, m, model.Connecting)

	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	if _, err := m.Apply(model.Session{Status: model.Connecting, QRCode: "fresh"}); err != nil {
		t.Fatal(err)
	}
	evt := <-ch
	if evt.Kind != bus.KindSessionUpdated {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindSessionUpdated)
	}
}

func TestRestore(t *testing.T) {
	m := NewMachine("t1", nil)
	m.Restore(model.Session{TenantID: "t1", Status: model.Connected, PhoneNumber: "5511", QRCode: "old"})

	s := m.Snapshot()
	if s.Status != model.Connected || s.PhoneNumber != "5511" {
		t.Errorf("restored = %+v, want connected with phone", s)
	}
	if s.QRCode != "" {
		t.Errorf("restored qr = %q, want cleared", s.QRCode)
	}

	m.Restore(model.Session{Status: "bogus"})
	if m.Current() != model.Disconnected {
		t.Errorf("restoring invalid status gave %s, want disconnected", m.Current())
	}
}

// TestFullHandshakeLifecycle walks disconnected → connecting → connected →
// disconnected → connecting, the path a tenant takes through a QR login,
// a phone-side logout and a reconnect.
func TestFullHandshakeLifecycle(t *testing.T) {
	m := NewMachine("t1", nil)

	steps := []model.Status{model.Connecting, model.Connected, model.Disconnected, model.Connecting}
	for _, s := range steps {
		if _, err := m.Apply(model.Session{Status: s}); err != nil {
			t.Fatalf("Apply(%s): %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != model.Connecting {
		t.Errorf("final state = %s, want connecting", m.Current())
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target model.Status) {
	t.Helper()
	paths := map[model.Status][]model.Session{
		model.Disconnected: {},
		model.Connecting:   {{Status: model.Connecting, QRCode: "qr"}},
		model.Connected:    {{Status: model.Connecting, QRCode: "qr"}, {Status: model.Connected, PhoneNumber: "5511999999999"}},
	}
	for _, s := range paths[target] {
		if _, err := m.Apply(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
