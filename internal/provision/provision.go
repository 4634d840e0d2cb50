// Package provision keeps exactly one remote gateway instance per tenant.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wppgw/internal/gateway"
	"github.com/matheus3301/wppgw/internal/model"
)

// DefaultConflictBackoff is the pause before re-reading an instance that
// another actor created concurrently.
const DefaultConflictBackoff = time.Second

// Gateway is the subset of the gateway client used to provision instances.
type Gateway interface {
	Status(ctx context.Context, instance string) (gateway.InstanceState, error)
	Handshake(ctx context.Context, instance string) (gateway.Handshake, error)
	Create(ctx context.Context, instance string) (gateway.Handshake, error)
}

// ProvisioningError reports a failed EnsureInstance.
type ProvisioningError struct {
	TenantID string
	Op       string // status, handshake or create
	Conflict bool   // a creation conflict survived the retry
	Err      error
}

func (e *ProvisioningError) Error() string {
	if e.Conflict {
		return fmt.Sprintf("provision tenant %s: %s: unresolved conflict: %v", e.TenantID, e.Op, e.Err)
	}
	return fmt.Sprintf("provision tenant %s: %s: %v", e.TenantID, e.Op, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// Provisioner creates or adopts the remote instance of a tenant.
type Provisioner struct {
	gw      Gateway
	backoff time.Duration
	logger  *zap.Logger
}

// New creates a provisioner. A non-positive backoff uses
// DefaultConflictBackoff.
func New(gw Gateway, backoff time.Duration, logger *zap.Logger) *Provisioner {
	if backoff <= 0 {
		backoff = DefaultConflictBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{gw: gw, backoff: backoff, logger: logger.Named("provision")}
}

// EnsureInstance returns the session tenantID should move to: Connected
// when the remote session is open, Connecting with a QR otherwise. It is
// idempotent while Connecting: an existing instance only has its handshake
// re-requested, and at most one creation call is issued per invocation.
func (p *Provisioner) EnsureInstance(ctx context.Context, tenantID string) (model.Session, error) {
	if err := model.ValidateTenantID(tenantID); err != nil {
		return model.NewSession(tenantID), &ProvisioningError{TenantID: tenantID, Op: "validate", Err: err}
	}
	return p.ensure(ctx, tenantID, false)
}

func (p *Provisioner) ensure(ctx context.Context, tenantID string, retry bool) (model.Session, error) {
	sess := model.NewSession(tenantID)
	instance := sess.InstanceName
	log := p.logger.With(zap.String("tenant", tenantID), zap.String("instance", instance), zap.Bool("retry", retry))

	st, err := p.gw.Status(ctx, instance)
	if err != nil {
		return sess, &ProvisioningError{TenantID: tenantID, Op: "status", Err: err}
	}

	if st.Exists {
		if st.Open() {
			log.Info("instance already authenticated", zap.String("phone", st.Phone))
			sess.Status = model.Connected
			sess.PhoneNumber = st.Phone
			return sess, nil
		}
		hs, err := p.gw.Handshake(ctx, instance)
		if err != nil {
			return sess, &ProvisioningError{TenantID: tenantID, Op: "handshake", Err: err}
		}
		if hs.Connected {
			sess.Status = model.Connected
			sess.PhoneNumber = st.Phone
			return sess, nil
		}
		log.Info("adopted existing instance", zap.String("remote_state", st.State))
		sess.Status = model.Connecting
		sess.QRCode = hs.QR()
		return sess, nil
	}

	if retry {
		// The conflict said the instance exists but it is still invisible.
		return sess, &ProvisioningError{TenantID: tenantID, Op: "create", Conflict: true, Err: gateway.ErrInstanceConflict}
	}

	hs, err := p.gw.Create(ctx, instance)
	switch {
	case err == nil:
		log.Info("instance created")
		sess.Status = model.Connecting
		sess.QRCode = hs.QR()
		if sess.QRCode == "" {
			if fresh, herr := p.gw.Handshake(ctx, instance); herr == nil {
				sess.QRCode = fresh.QR()
			} else {
				log.Warn("created instance returned no qr", zap.Error(herr))
			}
		}
		return sess, nil

	case errors.Is(err, gateway.ErrInstanceConflict):
		log.Info("instance created concurrently, re-reading", zap.Duration("backoff", p.backoff))
		if err := sleep(ctx, p.backoff); err != nil {
			return sess, &ProvisioningError{TenantID: tenantID, Op: "create", Conflict: true, Err: err}
		}
		return p.ensure(ctx, tenantID, true)

	default:
		return sess, &ProvisioningError{TenantID: tenantID, Op: "create", Err: err}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
