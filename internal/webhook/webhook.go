// Package webhook receives push events from the remote gateway. Events only
// hint the tenant runtime: a connection update triggers an early poll and a
// QR update refreshes a pending handshake. Polling stays the source of truth.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	stdsync "sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/matheus3301/wppgw/internal/tenant"
)

// Event names, after normalization.
const (
	EventConnectionUpdate = "connection.update"
	EventQRCodeUpdated    = "qrcode.updated"
)

const maxBodyBytes = 1 << 20

// Payload is the envelope the gateway posts.
type Payload struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	APIKey   string          `json:"apikey"`
	Data     json.RawMessage `json:"data"`
}

type qrData struct {
	QRCode struct {
		Code string `json:"code"`
	} `json:"qrcode"`
	Code string `json:"code"`
}

// Server is the webhook HTTP receiver.
type Server struct {
	manager *tenant.Manager
	secret  string
	logger  *zap.Logger

	httpServer *http.Server
	listener   net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// New creates a receiver. An empty secret accepts every caller.
func New(m *tenant.Manager, secret string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		manager: m,
		secret:  secret,
		logger:  logger.Named("webhook"),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the chi router serving the webhook routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/webhook", s.receive)
	r.Post("/webhook/{instance}", s.receive)
	r.Post("/webhook/{instance}/{event}", s.receive)
	return r
}

// Listen binds addr. Separate from Serve so bind errors surface at startup.
func (s *Server) Listen(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen webhook %s: %w", addr, err)
	}
	s.listener = lis
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve serves requests until Stop. Blocks.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("webhook server not listening")
	}
	s.logger.Info("webhook receiver starting", zap.String("addr", s.listener.Addr().String()))
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the receiver down and waits for triggered polls to finish.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("webhook receiver stopping")
	err := s.httpServer.Shutdown(ctx)
	s.cancel()
	s.wg.Wait()
	return err
}

func (s *Server) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !s.authorized(r.Header.Get("apikey"), p.APIKey) {
		s.logger.Warn("rejected webhook with bad key", zap.String("remote", r.RemoteAddr))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if p.Instance == "" {
		p.Instance = chi.URLParam(r, "instance")
	}
	if p.Event == "" {
		p.Event = chi.URLParam(r, "event")
	}
	s.dispatch(p)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) authorized(header, inBody string) bool {
	if s.secret == "" {
		return true
	}
	for _, k := range []string{header, inBody} {
		if k != "" && subtle.ConstantTimeCompare([]byte(k), []byte(s.secret)) == 1 {
			return true
		}
	}
	return false
}

// dispatch routes one event. Unknown tenants and events are ignored.
func (s *Server) dispatch(p Payload) {
	event := NormalizeEvent(p.Event)
	log := s.logger.With(zap.String("event", event), zap.String("instance", p.Instance))

	t, err := s.manager.ByInstance(p.Instance)
	if err != nil {
		log.Debug("ignoring event for unknown tenant")
		return
	}

	switch event {
	case EventConnectionUpdate:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if !t.Poll(s.ctx) {
				log.Debug("early poll skipped, tenant busy")
			}
		}()
	case EventQRCodeUpdated:
		qr := qrFrom(p.Data)
		if qr == "" {
			log.Debug("qr event without code")
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if t.RefreshQR(s.ctx, qr) {
				log.Info("qr refreshed")
			}
		}()
	default:
		log.Debug("ignoring event")
	}
}

// NormalizeEvent maps CONNECTION_UPDATE and connection-update style names to
// connection.update.
func NormalizeEvent(e string) string {
	e = strings.ToLower(strings.TrimSpace(e))
	return strings.NewReplacer("_", ".", "-", ".").Replace(e)
}

func qrFrom(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var d qrData
	if err := json.Unmarshal(raw, &d); err != nil {
		return ""
	}
	if d.QRCode.Code != "" {
		return d.QRCode.Code
	}
	return d.Code
}
