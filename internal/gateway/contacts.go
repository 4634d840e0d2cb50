package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/matheus3301/wppgw/internal/model"
)

var contactCandidates = []candidate[[]model.Contact]{
	{
		name: "findChats",
		build: func(p params) request {
			return request{method: http.MethodPost, path: instancePath("/chat/findChats", p.instance), body: map[string]any{}}
		},
		decode: decodeContacts,
	},
	{
		name: "findChats.get",
		build: func(p params) request {
			return request{method: http.MethodGet, path: instancePath("/chat/findChats", p.instance)}
		},
		decode: decodeContacts,
	},
	{
		name: "findContacts",
		build: func(p params) request {
			return request{
				method: http.MethodPost,
				path:   instancePath("/chat/findContacts", p.instance),
				body:   map[string]any{"where": map[string]any{}},
			}
		},
		decode: decodeContacts,
	},
}

// ListContacts returns the chat peers of instance. Records are mapped as
// is; callers decide which ones are usable.
func (c *Client) ListContacts(ctx context.Context, instance string) ([]model.Contact, error) {
	return resolve(ctx, c, CapListContacts, contactCandidates, params{instance: instance})
}

func decodeContacts(_ params, doc any) ([]model.Contact, error) {
	list, ok := unwrapList(doc)
	if !ok {
		return nil, errors.New("expected contact list")
	}
	contacts := make([]model.Contact, 0, len(list))
	for _, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		contacts = append(contacts, mapContact(rec))
	}
	return contacts, nil
}

// mapContact maps a chat or contact record. The JID fields win over "id",
// which newer releases fill with an internal row key.
func mapContact(rec map[string]any) model.Contact {
	id := CanonicalPhone(firstString(rec, "remoteJid", "jid", "id"))
	phone := CanonicalPhone(firstString(rec, "phone", "number"))
	if phone == "" {
		phone = id
	}

	c := model.Contact{
		ID:             id,
		Phone:          phone,
		Name:           firstString(rec, "name", "pushName", "verifiedName", "notify", "subject"),
		ProfilePicture: firstString(rec, "profilePicUrl", "profilePictureUrl", "imgUrl"),
		UnreadCount:    toInt(firstValue(rec, "unreadCount", "unreadMessages")),
	}
	if c.Name == "" {
		c.Name = phone
	}

	switch last := rec["lastMessage"].(type) {
	case string:
		c.LastMessage = last
	case map[string]any:
		c.LastMessage = MessageBody(last)
		if ts, ok := ParseTimestamp(firstValue(last, "messageTimestamp", "timestamp")); ok {
			c.LastMessageTime = &ts
		}
	}
	if c.LastMessageTime == nil {
		if ts, ok := ParseTimestamp(firstValue(rec, "lastMessageTimestamp", "conversationTimestamp", "lastMessageTime")); ok {
			c.LastMessageTime = &ts
		}
	}
	return c
}
