// Package tenant runs one session actor per tenant: it owns the tenant's
// state machine, polls the gateway and serializes user intents.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wppgw/internal/bus"
	"github.com/matheus3301/wppgw/internal/chat"
	"github.com/matheus3301/wppgw/internal/config"
	"github.com/matheus3301/wppgw/internal/gateway"
	"github.com/matheus3301/wppgw/internal/model"
	"github.com/matheus3301/wppgw/internal/provision"
	"github.com/matheus3301/wppgw/internal/status"
	"github.com/matheus3301/wppgw/internal/sync"
)

// ErrNotConnected is returned by operations that need an authenticated
// session.
var ErrNotConnected = errors.New("session is not connected")

// Gateway is the subset of the gateway client a tenant polls and controls.
type Gateway interface {
	Status(ctx context.Context, instance string) (gateway.InstanceState, error)
	Owner(ctx context.Context, instance string) (string, error)
	Handshake(ctx context.Context, instance string) (gateway.Handshake, error)
	Logout(ctx context.Context, instance string) error
}

// Deps are the collaborators shared by every tenant.
type Deps struct {
	Gateway     Gateway
	Provisioner *provision.Provisioner
	Pipeline    *chat.Pipeline
	Sync        *sync.Synchronizer
	Bus         *bus.Bus
	Polling     config.PollingConfig
	Logger      *zap.Logger
}

// Tenant is the session actor of one tenant.
type Tenant struct {
	id      string
	deps    Deps
	machine *status.Machine
	logger  *zap.Logger

	// op serializes remote operations. Intents wait for it, polls skip.
	op stdsync.Mutex

	mu     stdsync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}
}

// New creates a stopped tenant in state Disconnected.
func New(id string, deps Deps) (*Tenant, error) {
	if err := model.ValidateTenantID(id); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tenant{
		id:      id,
		deps:    deps,
		machine: status.NewMachine(id, deps.Bus),
		logger:  logger.With(zap.String("tenant", id), zap.String("instance", model.InstanceName(id))),
		kick:    make(chan struct{}, 1),
	}, nil
}

// ID returns the tenant ID.
func (t *Tenant) ID() string { return t.id }

// Instance returns the remote instance name.
func (t *Tenant) Instance() string { return model.InstanceName(t.id) }

// Snapshot returns the current session.
func (t *Tenant) Snapshot() model.Session { return t.machine.Snapshot() }

// Restore seeds the live session from the persisted copy. The next poll
// re-validates it.
func (t *Tenant) Restore(s model.Session) {
	t.machine.Restore(s)
}

// RequestConnect provisions the remote instance and moves the session to
// Connecting (QR issued) or Connected. On failure the session is forced to
// Disconnected and the error is returned to the caller.
func (t *Tenant) RequestConnect(ctx context.Context) (model.Session, error) {
	t.op.Lock()
	defer t.op.Unlock()

	next, err := t.deps.Provisioner.EnsureInstance(ctx, t.id)
	if err != nil {
		t.logger.Warn("connect failed", zap.Error(err))
		t.transition(ctx, model.Session{Status: model.Disconnected})
		return t.Snapshot(), err
	}
	t.transition(ctx, next)
	t.reschedule()
	return t.Snapshot(), nil
}

// Poll runs one status check. It returns false without touching the
// gateway when another operation of this tenant is in flight.
func (t *Tenant) Poll(ctx context.Context) bool {
	if !t.op.TryLock() {
		t.logger.Debug("poll skipped, operation in flight")
		return false
	}
	defer t.op.Unlock()
	t.pollLocked(ctx)
	return true
}

// pollLocked maps the remote state onto the session. Any failure,
// including a panic, ends in Disconnected.
func (t *Tenant) pollLocked(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("poll panicked", zap.Any("panic", r))
			t.forceDisconnected(ctx)
		}
	}()

	cur := t.machine.Snapshot()
	st, err := t.deps.Gateway.Status(ctx, t.Instance())
	switch {
	case err != nil:
		t.logger.Warn("status check failed", zap.Error(err))
		t.transition(ctx, model.Session{Status: model.Disconnected})

	case st.Open():
		phone := st.Phone
		if phone == "" {
			phone = cur.PhoneNumber
		}
		if phone == "" {
			phone = t.lookupOwner(ctx)
		}
		t.transition(ctx, model.Session{Status: model.Connected, PhoneNumber: phone})

	case st.Exists && st.State == gateway.StateConnecting && cur.Status == model.Connecting:
		qr := cur.QRCode
		if qr == "" {
			if hs, err := t.deps.Gateway.Handshake(ctx, t.Instance()); err == nil && !hs.Connected {
				qr = hs.QR()
			}
		}
		t.transition(ctx, model.Session{Status: model.Connecting, QRCode: qr})

	default:
		t.transition(ctx, model.Session{Status: model.Disconnected})
	}
}

// lookupOwner asks the gateway for the linked account when the status
// answer carried none. Failures leave the phone unknown until a later poll.
func (t *Tenant) lookupOwner(ctx context.Context) string {
	phone, err := t.deps.Gateway.Owner(ctx, t.Instance())
	if err != nil {
		t.logger.Warn("owner lookup failed", zap.Error(err))
		return ""
	}
	return phone
}

// forceDisconnected is the fallback after a poll panic. The state machine
// is updated before persistence, so a second panic while saving still
// leaves the tenant Disconnected.
func (t *Tenant) forceDisconnected(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("disconnect after panic failed", zap.Any("panic", r))
		}
	}()
	t.transition(ctx, model.Session{Status: model.Disconnected})
}

// RefreshQR replaces the pending QR of a Connecting session, as pushed by
// the gateway. Ignored in any other state.
func (t *Tenant) RefreshQR(ctx context.Context, qr string) bool {
	t.op.Lock()
	defer t.op.Unlock()
	if t.machine.Current() != model.Connecting || qr == "" {
		return false
	}
	t.transition(ctx, model.Session{Status: model.Connecting, QRCode: qr})
	return true
}

// SendMessage sends body to peer. Requires Connected.
func (t *Tenant) SendMessage(ctx context.Context, peer, body string) (gateway.SendResult, error) {
	t.op.Lock()
	defer t.op.Unlock()

	sess := t.machine.Snapshot()
	if sess.Status != model.Connected {
		return gateway.SendResult{}, fmt.Errorf("send to %s: %w", peer, ErrNotConnected)
	}

	res, err := t.deps.Pipeline.Send(ctx, t.Instance(), peer, body)
	if err != nil {
		t.publish(bus.KindSendFailed, map[string]string{"peer": gateway.CanonicalPhone(peer), "error": err.Error()})
		return res, err
	}
	echo := res.Echo(sess.PhoneNumber, peer, body)
	echo.Timestamp = time.Now().UTC()
	t.publish(bus.KindMessageSent, echo)
	return res, nil
}

// Contacts fetches and persists the contact list. While not Connected the
// last persisted list is returned; a failed fetch returns an empty list and
// leaves the persisted contacts untouched.
func (t *Tenant) Contacts(ctx context.Context) []model.Contact {
	t.op.Lock()
	defer t.op.Unlock()

	if t.machine.Current() != model.Connected {
		return nonNil(t.deps.Sync.CachedContacts(ctx, t.id))
	}

	contacts, err := t.deps.Pipeline.FetchContacts(ctx, t.Instance())
	if err != nil {
		t.logger.Warn("contact fetch degraded to empty", zap.Error(err))
		return []model.Contact{}
	}
	t.deps.Sync.SaveContacts(ctx, t.id, contacts)
	return contacts
}

// Messages returns the conversation with peer, empty while not Connected.
func (t *Tenant) Messages(ctx context.Context, peer string) []model.Message {
	t.op.Lock()
	defer t.op.Unlock()

	sess := t.machine.Snapshot()
	if sess.Status != model.Connected {
		return []model.Message{}
	}
	return t.deps.Pipeline.FetchMessages(ctx, t.Instance(), sess.PhoneNumber, peer)
}

// Logout ends the remote session and moves to Disconnected. An instance
// the gateway no longer knows counts as logged out.
func (t *Tenant) Logout(ctx context.Context) error {
	t.op.Lock()
	defer t.op.Unlock()

	if err := t.deps.Gateway.Logout(ctx, t.Instance()); err != nil && gateway.StatusCode(err) != http.StatusNotFound {
		return err
	}
	t.transition(ctx, model.Session{Status: model.Disconnected})
	return nil
}

// transition applies next and persists the result. A Connected session that
// must start a new handshake passes through Disconnected first.
func (t *Tenant) transition(ctx context.Context, next model.Session) {
	from := t.machine.Current()
	if from == model.Connected && next.Status == model.Connecting {
		t.transition(ctx, model.Session{Status: model.Disconnected})
		from = model.Disconnected
	}

	change, err := t.machine.Apply(next)
	if err != nil {
		t.logger.Error("rejected transition", zap.Error(err))
		return
	}
	if change.From != change.To {
		t.logger.Info("session transition",
			zap.String("from", string(change.From)),
			zap.String("to", string(change.To)),
			zap.String("phone", change.Session.PhoneNumber))
	}
	t.deps.Sync.SaveSession(ctx, change.Session)
}

func (t *Tenant) publish(kind string, payload any) {
	if t.deps.Bus == nil {
		return
	}
	t.deps.Bus.Publish(bus.Event{
		Kind:      kind,
		Tenant:    t.id,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

func nonNil(c []model.Contact) []model.Contact {
	if c == nil {
		return []model.Contact{}
	}
	return c
}
