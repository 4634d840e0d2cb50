package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/wppgw/internal/bus"
	"github.com/matheus3301/wppgw/internal/model"
)

// validTransitions defines allowed session transitions. Self-loops are
// re-polls; connected never moves back to connecting without passing
// through disconnected.
var validTransitions = map[model.Status][]model.Status{
	model.Disconnected: {model.Disconnected, model.Connecting, model.Connected},
	model.Connecting:   {model.Connecting, model.Connected, model.Disconnected},
	model.Connected:    {model.Connected, model.Disconnected},
}

// Machine owns the live session of one tenant and enforces its transitions.
type Machine struct {
	mu      sync.RWMutex
	session model.Session
	bus     *bus.Bus
	now     func() time.Time
}

// NewMachine creates a machine for tenantID starting Disconnected.
func NewMachine(tenantID string, b *bus.Bus) *Machine {
	return &Machine{
		session: model.NewSession(tenantID),
		bus:     b,
		now:     time.Now,
	}
}

// Current returns the current status.
func (m *Machine) Current() model.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Status
}

// Snapshot returns a copy of the current session.
func (m *Machine) Snapshot() model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Restore seeds the machine from a persisted session without validating the
// transition or publishing events. The restored status is provisional.
func (m *Machine) Restore(s model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !s.Status.Valid() {
		s.Status = model.Disconnected
	}
	s.TenantID = m.session.TenantID
	s.InstanceName = m.session.InstanceName
	m.session = normalize(s)
}

// Apply moves the session to next. Returns error if the transition is invalid.
func (m *Machine) Apply(next model.Session) (Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.session
	allowed := validTransitions[from.Status]
	if !slices.Contains(allowed, next.Status) {
		return Change{}, fmt.Errorf("invalid transition from %s to %s", from.Status, next.Status)
	}

	next.TenantID = from.TenantID
	next.InstanceName = from.InstanceName
	next = normalize(next)
	next.UpdatedAt = m.now()
	m.session = next

	change := Change{
		From:    from.Status,
		To:      next.Status,
		Session: next,
		Changed: from.Status != next.Status || from.QRCode != next.QRCode || from.PhoneNumber != next.PhoneNumber,
	}

	if m.bus != nil {
		kind := bus.KindSessionUpdated
		if change.From != change.To {
			kind = bus.KindStatusChanged
		}
		if change.Changed {
			m.bus.Publish(bus.Event{
				Kind:      kind,
				Tenant:    next.TenantID,
				Timestamp: next.UpdatedAt,
				Payload:   change,
			})
		}
	}
	return change, nil
}

// normalize enforces the QR and phone invariants for s.Status.
func normalize(s model.Session) model.Session {
	if s.Status != model.Connecting {
		s.QRCode = ""
	}
	if s.Status != model.Connected {
		s.PhoneNumber = ""
	}
	return s
}

// Change is the payload for status change events.
type Change struct {
	From    model.Status
	To      model.Status
	Session model.Session
	Changed bool
}
