package api

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/wppgw/internal/bus"
	"github.com/matheus3301/wppgw/internal/chat"
	"github.com/matheus3301/wppgw/internal/gateway"
	"github.com/matheus3301/wppgw/internal/model"
	"github.com/matheus3301/wppgw/internal/tenant"
)

// watchBuffer is the per-watcher event buffer. Slow watchers lose events.
const watchBuffer = 64

// Service implements GatewayServer on top of the tenant manager.
type Service struct {
	manager *tenant.Manager
	bus     *bus.Bus
	logger  *zap.Logger
}

var _ GatewayServer = (*Service)(nil)

// NewService creates a new gateway service.
func NewService(m *tenant.Manager, b *bus.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{manager: m, bus: b, logger: logger}
}

func (s *Service) open(ctx context.Context, req *structpb.Struct) (*tenant.Tenant, error) {
	id := strings.TrimSpace(str(req, "tenant"))
	if id == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "tenant is required")
	}
	t, err := s.manager.Open(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return t, nil
}

func (s *Service) Connect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	t, err := s.open(ctx, req)
	if err != nil {
		return nil, err
	}
	sess, err := t.RequestConnect(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(sessionFields(sess))
}

func (s *Service) GetSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	t, err := s.open(ctx, req)
	if err != nil {
		return nil, err
	}
	return toStruct(sessionFields(t.Snapshot()))
}

func (s *Service) ListContacts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	t, err := s.open(ctx, req)
	if err != nil {
		return nil, err
	}
	contacts := t.Contacts(ctx)
	return toStruct(map[string]any{"contacts": listOf(contacts, contactFields)})
}

func (s *Service) ListMessages(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	t, err := s.open(ctx, req)
	if err != nil {
		return nil, err
	}
	peer := str(req, "peer")
	if peer == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "peer is required")
	}
	msgs := t.Messages(ctx, peer)
	return toStruct(map[string]any{"messages": listOf(msgs, messageFields)})
}

func (s *Service) SendMessage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	t, err := s.open(ctx, req)
	if err != nil {
		return nil, err
	}
	res, err := t.SendMessage(ctx, str(req, "peer"), str(req, "body"))
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(sendResultFields(res))
}

func (s *Service) Logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	t, err := s.open(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := t.Logout(ctx); err != nil {
		return nil, toStatus(err)
	}
	return toStruct(sessionFields(t.Snapshot()))
}

func (s *Service) StopTenant(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := str(req, "tenant")
	if err := s.manager.Stop(id); err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"tenant_id": id, "stopped": true})
}

func (s *Service) ListTenants(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(map[string]any{"sessions": listOf(s.manager.List(), sessionFields)})
}

// WatchSession streams the current session followed by every event of the
// tenant until the client goes away.
func (s *Service) WatchSession(req *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()
	t, err := s.open(ctx, req)
	if err != nil {
		return err
	}

	ch, unsub := s.bus.SubscribeTenant("", t.ID(), watchBuffer)
	defer unsub()

	first, err := toStruct(map[string]any{
		"kind":    "session.snapshot",
		"session": sessionFields(t.Snapshot()),
	})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(first); err != nil {
		return err
	}

	for {
		select {
		case evt := <-ch:
			msg, err := toStruct(eventFields(evt))
			if err != nil {
				s.logger.Warn("dropping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	var (
		resErr *gateway.ResolutionError
		trErr  *gateway.TransportError
	)
	switch {
	case errors.Is(err, model.ErrInvalidTenantID),
		errors.Is(err, chat.ErrEmptyBody),
		errors.Is(err, chat.ErrInvalidPeer):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, tenant.ErrNotConnected):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, tenant.ErrUnknownTenant):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, gateway.ErrInstanceConflict):
		return grpcstatus.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	case errors.As(err, &resErr), errors.As(err, &trErr):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}
