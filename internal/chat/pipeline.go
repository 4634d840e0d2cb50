// Package chat moves messages between a tenant and the gateway: outbound
// sends with peer canonicalization and best-effort inbound reads.
package chat

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/matheus3301/wppgw/internal/gateway"
	"github.com/matheus3301/wppgw/internal/model"
)

var (
	// ErrEmptyBody is returned when sending a blank message.
	ErrEmptyBody = errors.New("message body is empty")
	// ErrInvalidPeer is returned when the peer has no phone part.
	ErrInvalidPeer = errors.New("peer has no phone number")
)

// Gateway is the subset of the gateway client used for messaging.
type Gateway interface {
	ListContacts(ctx context.Context, instance string) ([]model.Contact, error)
	ListMessages(ctx context.Context, instance, self, peer string) ([]model.Message, error)
	SendText(ctx context.Context, instance, peer, text string) (gateway.SendResult, error)
}

// Pipeline sends and fetches messages for any tenant instance.
type Pipeline struct {
	gw     Gateway
	logger *zap.Logger
}

// New creates a pipeline over gw.
func New(gw Gateway, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{gw: gw, logger: logger.Named("chat")}
}

// Send delivers body to peer. The sent message is not echoed into any
// conversation; the next fetch returns it from the gateway.
func (p *Pipeline) Send(ctx context.Context, instance, peer, body string) (gateway.SendResult, error) {
	phone := gateway.CanonicalPhone(peer)
	if phone == "" {
		return gateway.SendResult{}, ErrInvalidPeer
	}
	if strings.TrimSpace(body) == "" {
		return gateway.SendResult{}, ErrEmptyBody
	}

	res, err := p.gw.SendText(ctx, instance, phone, body)
	if err != nil {
		p.logger.Warn("send failed",
			zap.String("instance", instance),
			zap.String("peer", phone),
			zap.Error(err))
		return gateway.SendResult{}, err
	}
	p.logger.Debug("message sent",
		zap.String("instance", instance),
		zap.String("peer", phone),
		zap.String("id", res.ID))
	return res, nil
}

// FetchMessages returns the conversation with peer, oldest first. It never
// fails: an unreachable gateway yields an empty conversation.
func (p *Pipeline) FetchMessages(ctx context.Context, instance, self, peer string) []model.Message {
	phone := gateway.CanonicalPhone(peer)
	if phone == "" {
		return []model.Message{}
	}

	msgs, err := p.gw.ListMessages(ctx, instance, self, phone)
	if err != nil {
		p.logger.Warn("message fetch degraded to empty",
			zap.String("instance", instance),
			zap.String("peer", phone),
			zap.Error(err))
		return []model.Message{}
	}

	out := make([]model.Message, 0, len(msgs))
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if m.ID != "" {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// FetchContacts returns the usable contacts of instance: records carrying
// neither an ID nor a phone are dropped. Resolution failures are returned
// so the caller can keep its previous list.
func (p *Pipeline) FetchContacts(ctx context.Context, instance string) ([]model.Contact, error) {
	contacts, err := p.gw.ListContacts(ctx, instance)
	if err != nil {
		return nil, err
	}

	out := make([]model.Contact, 0, len(contacts))
	dropped := 0
	for _, c := range contacts {
		if c.ID == "" && c.Phone == "" {
			dropped++
			continue
		}
		out = append(out, c)
	}
	if dropped > 0 {
		p.logger.Debug("dropped contacts without identifier",
			zap.String("instance", instance),
			zap.Int("dropped", dropped))
	}
	return out, nil
}
