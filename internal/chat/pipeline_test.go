package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wppgw/internal/gateway"
	"github.com/matheus3301/wppgw/internal/model"
)

// mockGateway records what the pipeline asked for.
type mockGateway struct {
	contacts    []model.Contact
	contactsErr error
	messages    []model.Message
	messagesErr error
	sendErr     error

	sentPeers []string
	sentTexts []string
	fetchPeer string
}

func (m *mockGateway) ListContacts(context.Context, string) ([]model.Contact, error) {
	return m.contacts, m.contactsErr
}

func (m *mockGateway) ListMessages(_ context.Context, _, _, peer string) ([]model.Message, error) {
	m.fetchPeer = peer
	return m.messages, m.messagesErr
}

func (m *mockGateway) SendText(_ context.Context, _, peer, text string) (gateway.SendResult, error) {
	m.sentPeers = append(m.sentPeers, peer)
	m.sentTexts = append(m.sentTexts, text)
	if m.sendErr != nil {
		return gateway.SendResult{}, m.sendErr
	}
	return gateway.SendResult{ID: "MSG1"}, nil
}

var errExhausted = &gateway.ResolutionError{Capability: gateway.CapListContacts}

func TestSendCanonicalizesPeer(t *testing.T) {
	gw := &mockGateway{}
	p := New(gw, zap.NewNop())

	for _, peer := range []string{"5511999999999@suffix", "5511999999999"} {
		if _, err := p.Send(context.Background(), "tenant-t1", peer, "hi"); err != nil {
			t.Fatalf("Send(%q) error = %v", peer, err)
		}
	}
	if len(gw.sentPeers) != 2 || gw.sentPeers[0] != gw.sentPeers[1] || gw.sentPeers[0] != "5511999999999" {
		t.Errorf("peers = %v, want identical bare phones", gw.sentPeers)
	}
}

func TestSendValidation(t *testing.T) {
	gw := &mockGateway{}
	p := New(gw, nil)

	if _, err := p.Send(context.Background(), "i", "5511", "   "); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("blank body err = %v", err)
	}
	if _, err := p.Send(context.Background(), "i", "@s.whatsapp.net", "x"); !errors.Is(err, ErrInvalidPeer) {
		t.Errorf("no phone err = %v", err)
	}
	if len(gw.sentPeers) != 0 {
		t.Error("invalid sends reached the gateway")
	}
}

func TestSendSurfacesFailure(t *testing.T) {
	gw := &mockGateway{sendErr: errExhausted}
	p := New(gw, nil)

	if _, err := p.Send(context.Background(), "i", "5511", "x"); !errors.Is(err, gateway.ErrResolutionExhausted) {
		t.Errorf("err = %v, want exhausted", err)
	}
}

func TestFetchMessagesDegradesToEmpty(t *testing.T) {
	p := New(&mockGateway{messagesErr: errExhausted}, nil)

	msgs := p.FetchMessages(context.Background(), "i", "self", "5511")
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("msgs = %#v, want empty non-nil slice", msgs)
	}
}

func TestFetchMessagesSortsAndDedupes(t *testing.T) {
	base := time.Unix(1700000000, 0).UTC()
	gw := &mockGateway{messages: []model.Message{
		{ID: "b", Timestamp: base.Add(time.Minute)},
		{ID: "a", Timestamp: base},
		{ID: "b", Timestamp: base.Add(time.Minute)},
		{ID: "", Timestamp: base.Add(2 * time.Minute)},
	}}
	p := New(gw, nil)

	msgs := p.FetchMessages(context.Background(), "i", "self", "5511888888888@s.whatsapp.net")
	if gw.fetchPeer != "5511888888888" {
		t.Errorf("fetch peer = %q, want canonical", gw.fetchPeer)
	}
	if len(msgs) != 3 || msgs[0].ID != "a" || msgs[1].ID != "b" || msgs[2].ID != "" {
		t.Errorf("msgs = %+v", msgs)
	}
}

func TestFetchContactsFiltersUnusable(t *testing.T) {
	gw := &mockGateway{contacts: []model.Contact{
		{ID: "5511", Phone: "5511"},
		{Name: "ghost"},
		{ID: "group-1"},
		{Phone: "5522"},
	}}
	p := New(gw, nil)

	got, err := p.FetchContacts(context.Background(), "i")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("got %d contacts, want 3", len(got))
	}
	for _, c := range got {
		if c.Name == "ghost" {
			t.Error("contact without identifiers survived")
		}
	}
}

func TestFetchContactsReturnsResolutionError(t *testing.T) {
	p := New(&mockGateway{contactsErr: errExhausted}, nil)

	got, err := p.FetchContacts(context.Background(), "i")
	if !errors.Is(err, gateway.ErrResolutionExhausted) || got != nil {
		t.Errorf("got %v err %v, want nil and exhausted", got, err)
	}
}
