package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/wppgw/internal/gateway"
	"github.com/matheus3301/wppgw/internal/model"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon's Unix domain socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Connect asks the daemon to provision and connect tenant.
func (c *Client) Connect(ctx context.Context, tenantID string) (model.Session, error) {
	out, err := c.call(ctx, MethodConnect, map[string]any{"tenant": tenantID})
	if err != nil {
		return model.Session{}, err
	}
	return sessionFrom(out), nil
}

// Session returns the live session of tenant together with the rendered QR
// PNG, if any.
func (c *Client) Session(ctx context.Context, tenantID string) (model.Session, []byte, error) {
	out, err := c.call(ctx, MethodGetSession, map[string]any{"tenant": tenantID})
	if err != nil {
		return model.Session{}, nil, err
	}
	return sessionFrom(out), qrPNG(out), nil
}

func (c *Client) Contacts(ctx context.Context, tenantID string) ([]model.Contact, error) {
	out, err := c.call(ctx, MethodListContacts, map[string]any{"tenant": tenantID})
	if err != nil {
		return nil, err
	}
	return listFrom(out, "contacts", contactFrom), nil
}

func (c *Client) Messages(ctx context.Context, tenantID, peer string) ([]model.Message, error) {
	out, err := c.call(ctx, MethodListMessages, map[string]any{"tenant": tenantID, "peer": peer})
	if err != nil {
		return nil, err
	}
	return listFrom(out, "messages", messageFrom), nil
}

func (c *Client) Send(ctx context.Context, tenantID, peer, body string) (gateway.SendResult, error) {
	out, err := c.call(ctx, MethodSendMessage, map[string]any{"tenant": tenantID, "peer": peer, "body": body})
	if err != nil {
		return gateway.SendResult{}, err
	}
	return gateway.SendResult{
		ID:        str(out, "id"),
		RemoteJID: str(out, "remote_jid"),
		Status:    str(out, "status"),
	}, nil
}

func (c *Client) Logout(ctx context.Context, tenantID string) (model.Session, error) {
	out, err := c.call(ctx, MethodLogout, map[string]any{"tenant": tenantID})
	if err != nil {
		return model.Session{}, err
	}
	return sessionFrom(out), nil
}

func (c *Client) StopTenant(ctx context.Context, tenantID string) error {
	_, err := c.call(ctx, MethodStopTenant, map[string]any{"tenant": tenantID})
	return err
}

func (c *Client) Tenants(ctx context.Context) ([]model.Session, error) {
	out, err := c.call(ctx, MethodListTenants, map[string]any{})
	if err != nil {
		return nil, err
	}
	return listFrom(out, "sessions", sessionFrom), nil
}

// WatchEvent is one item of a WatchSession stream.
type WatchEvent struct {
	Kind    string
	Session *model.Session // set for session events
	Message *model.Message // set for message.sent
	Data    map[string]any
}

var watchStreamDesc = &grpc.StreamDesc{
	StreamName:    StreamWatchSession,
	ServerStreams: true,
}

// Watch streams events of tenant to fn until ctx is cancelled or fn
// returns an error.
func (c *Client) Watch(ctx context.Context, tenantID string, fn func(WatchEvent) error) error {
	in, err := structpb.NewStruct(map[string]any{"tenant": tenantID})
	if err != nil {
		return err
	}
	stream, err := c.conn.NewStream(ctx, watchStreamDesc, "/"+ServiceName+"/"+StreamWatchSession)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := fn(watchEventFrom(out)); err != nil {
			return err
		}
	}
}

func watchEventFrom(s *structpb.Struct) WatchEvent {
	f := s.GetFields()
	evt := WatchEvent{Kind: str(s, "kind")}
	if v := f["session"].GetStructValue(); v != nil {
		sess := sessionFrom(v)
		evt.Session = &sess
	}
	if v := f["message"].GetStructValue(); v != nil {
		msg := messageFrom(v)
		evt.Message = &msg
	}
	if v := f["data"].GetStructValue(); v != nil {
		evt.Data = v.AsMap()
	}
	return evt
}

// qrPNG decodes the base64 PNG structpb stores for []byte values.
func qrPNG(s *structpb.Struct) []byte {
	v := str(s, "qr_png")
	if v == "" {
		return nil
	}
	png, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil
	}
	return png
}
