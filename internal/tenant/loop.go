package tenant

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wppgw/internal/model"
)

// Start begins the polling loop. The first check runs immediately, so a
// session restored from storage is re-validated before it is trusted.
func (t *Tenant) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go t.loop(ctx, t.done)
}

// Stop stops the polling loop and waits for it to exit. Other tenants are
// unaffected.
func (t *Tenant) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the polling loop is active.
func (t *Tenant) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func (t *Tenant) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			t.Poll(ctx)
			timer.Reset(t.interval())
		case <-t.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(t.interval())
		case <-ctx.Done():
			t.logger.Debug("poll loop stopped")
			return
		}
	}
}

// reschedule restarts the poll timer with the interval of the current state.
func (t *Tenant) reschedule() {
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

func (t *Tenant) interval() time.Duration {
	p := t.deps.Polling
	var d time.Duration
	switch t.machine.Current() {
	case model.Connected:
		d = p.ConnectedInterval.Duration
	case model.Connecting:
		d = p.ConnectingInterval.Duration
	default:
		d = p.DisconnectedInterval.Duration
	}
	if d <= 0 {
		t.logger.Warn("non-positive poll interval, using 30s", zap.Duration("interval", d))
		d = 30 * time.Second
	}
	return d
}
