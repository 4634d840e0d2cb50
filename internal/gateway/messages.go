package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"

	"github.com/matheus3301/wppgw/internal/model"
)

var messageCandidates = []candidate[[]model.Message]{
	{
		name: "findMessages.key",
		build: func(p params) request {
			return request{
				method: http.MethodPost,
				path:   instancePath("/chat/findMessages", p.instance),
				body: map[string]any{"where": map[string]any{
					"key": map[string]any{"remoteJid": RemoteJID(p.peer)},
				}},
			}
		},
		decode: decodeMessages,
	},
	{
		name: "findMessages.flat",
		build: func(p params) request {
			return request{
				method: http.MethodPost,
				path:   instancePath("/chat/findMessages", p.instance),
				body:   map[string]any{"where": map[string]any{"remoteJid": RemoteJID(p.peer)}},
			}
		},
		decode: decodeMessages,
	},
	{
		name: "findMessages.get",
		build: func(p params) request {
			return request{
				method: http.MethodGet,
				path:   instancePath("/chat/findMessages", p.instance),
				query:  url.Values{"remoteJid": {RemoteJID(p.peer)}},
			}
		},
		decode: decodeMessages,
	},
}

// ListMessages returns the conversation between self and peer, oldest
// first. Records carrying no usable timestamp are stamped with the fetch
// time.
func (c *Client) ListMessages(ctx context.Context, instance, self, peer string) ([]model.Message, error) {
	p := params{
		instance:  instance,
		self:      CanonicalPhone(self),
		peer:      CanonicalPhone(peer),
		fetchedAt: c.now().UTC(),
	}
	return resolve(ctx, c, CapListMessages, messageCandidates, p)
}

func decodeMessages(p params, doc any) ([]model.Message, error) {
	list, ok := unwrapList(doc)
	if !ok {
		return nil, errors.New("expected message list")
	}
	msgs := make([]model.Message, 0, len(list))
	for _, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		m, ok := mapMessage(p, rec)
		if !ok {
			continue
		}
		msgs = append(msgs, m)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs, nil
}

// mapMessage maps one message record. Records addressed to another chat
// are rejected, since some releases ignore the filter.
func mapMessage(p params, rec map[string]any) (model.Message, bool) {
	if jid := firstString(rec, "key.remoteJid", "remoteJid"); jid != "" && CanonicalPhone(jid) != p.peer {
		return model.Message{}, false
	}

	m := model.Message{
		ID:             firstString(rec, "key.id", "id"),
		ConversationID: p.peer,
		FromMe:         Truthy(firstValue(rec, "key.fromMe", "fromMe")),
		Body:           MessageBody(rec),
		IsRead:         !explicitlyFalse(firstValue(rec, "isRead", "read")),
	}

	if m.Body != "" {
		m.MessageType = model.MessageTypeText
	} else {
		m.MessageType = firstString(rec, "messageType", "type")
	}

	ts, ok := ParseTimestamp(firstValue(rec, "messageTimestamp", "timestamp", "date", "createdAt"))
	if !ok {
		ts = p.fetchedAt
	}
	m.Timestamp = ts

	if m.FromMe {
		m.From, m.To = p.self, p.peer
	} else {
		m.From, m.To = p.peer, p.self
	}
	return m, true
}
