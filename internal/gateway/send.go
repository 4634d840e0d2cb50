package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/matheus3301/wppgw/internal/model"
)

// SendResult is the gateway acknowledgement of an outbound message.
type SendResult struct {
	ID        string
	RemoteJID string
	Status    string
}

var sendCandidates = []candidate[SendResult]{
	{
		name: "sendText",
		build: func(p params) request {
			return request{
				method: http.MethodPost,
				path:   instancePath("/message/sendText", p.instance),
				body:   map[string]any{"number": p.peer, "text": p.text},
			}
		},
		decode: decodeSendResult,
	},
	{
		name: "sendText.textMessage",
		build: func(p params) request {
			return request{
				method: http.MethodPost,
				path:   instancePath("/message/sendText", p.instance),
				body: map[string]any{
					"number":      p.peer,
					"textMessage": map[string]any{"text": p.text},
				},
			}
		},
		decode: decodeSendResult,
	},
}

// SendText sends a text message from instance to peer. The peer is
// canonicalized first so gateway calls and conversation IDs agree.
func (c *Client) SendText(ctx context.Context, instance, peer, text string) (SendResult, error) {
	p := params{instance: instance, peer: CanonicalPhone(peer), text: text}
	return resolve(ctx, c, CapSendMessage, sendCandidates, p)
}

func decodeSendResult(_ params, doc any) (SendResult, error) {
	obj, ok := doc.(map[string]any)
	if !ok {
		return SendResult{}, errors.New("expected object")
	}
	return SendResult{
		ID:        firstString(obj, "key.id", "id", "messageId"),
		RemoteJID: firstString(obj, "key.remoteJid", "remoteJid"),
		Status:    firstString(obj, "status"),
	}, nil
}

// Echo builds the local view of a sent message. The pipeline never inserts
// it into a conversation; callers may use it for notifications.
func (r SendResult) Echo(self, peer, body string) model.Message {
	return model.Message{
		ID:             r.ID,
		ConversationID: CanonicalPhone(peer),
		From:           CanonicalPhone(self),
		To:             CanonicalPhone(peer),
		Body:           body,
		FromMe:         true,
		MessageType:    model.MessageTypeText,
		IsRead:         true,
	}
}
