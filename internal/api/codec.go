package api

import (
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/wppgw/internal/bus"
	"github.com/matheus3301/wppgw/internal/gateway"
	"github.com/matheus3301/wppgw/internal/model"
	"github.com/matheus3301/wppgw/internal/status"
)

// qrPNGSize is the edge length of rendered QR images, in pixels.
const qrPNGSize = 256

func sessionFields(s model.Session) map[string]any {
	m := map[string]any{
		"tenant_id":     s.TenantID,
		"instance_name": s.InstanceName,
		"status":        string(s.Status),
		"qr_code":       s.QRCode,
		"phone_number":  s.PhoneNumber,
		"updated_at":    formatTime(s.UpdatedAt),
	}
	if s.QRCode != "" {
		if png, err := qrcode.Encode(s.QRCode, qrcode.Medium, qrPNGSize); err == nil {
			m["qr_png"] = png
		}
	}
	return m
}

func contactFields(c model.Contact) map[string]any {
	m := map[string]any{
		"id":              c.ID,
		"name":            c.Name,
		"phone":           c.Phone,
		"profile_picture": c.ProfilePicture,
		"last_message":    c.LastMessage,
		"unread_count":    c.UnreadCount,
	}
	if c.LastMessageTime != nil {
		m["last_message_time"] = formatTime(*c.LastMessageTime)
	}
	return m
}

func messageFields(msg model.Message) map[string]any {
	return map[string]any{
		"id":              msg.ID,
		"conversation_id": msg.ConversationID,
		"from":            msg.From,
		"to":              msg.To,
		"body":            msg.Body,
		"timestamp":       formatTime(msg.Timestamp),
		"from_me":         msg.FromMe,
		"message_type":    msg.MessageType,
		"is_read":         msg.IsRead,
	}
}

func sendResultFields(r gateway.SendResult) map[string]any {
	return map[string]any{
		"id":         r.ID,
		"remote_jid": r.RemoteJID,
		"status":     r.Status,
	}
}

// eventFields flattens a bus event for WatchSession.
func eventFields(evt bus.Event) map[string]any {
	m := map[string]any{
		"kind":      evt.Kind,
		"tenant_id": evt.Tenant,
		"timestamp": formatTime(evt.Timestamp),
	}
	switch p := evt.Payload.(type) {
	case status.Change:
		m["from"] = string(p.From)
		m["session"] = sessionFields(p.Session)
	case model.Message:
		m["message"] = messageFields(p)
	case map[string]any:
		m["data"] = p
	case map[string]string:
		m["data"] = anyMap(p)
	case map[string]int:
		m["data"] = anyMap(p)
	}
	return m
}

func anyMap[V any](in map[string]V) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return s, nil
}

func listOf[T any](items []T, fields func(T) map[string]any) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = fields(it)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// The decoders below are the client-side inverse of the field maps.

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func sessionFrom(s *structpb.Struct) model.Session {
	return model.Session{
		TenantID:     str(s, "tenant_id"),
		InstanceName: str(s, "instance_name"),
		Status:       model.Status(str(s, "status")),
		QRCode:       str(s, "qr_code"),
		PhoneNumber:  str(s, "phone_number"),
		UpdatedAt:    parseTime(str(s, "updated_at")),
	}
}

func contactFrom(s *structpb.Struct) model.Contact {
	c := model.Contact{
		ID:             str(s, "id"),
		Name:           str(s, "name"),
		Phone:          str(s, "phone"),
		ProfilePicture: str(s, "profile_picture"),
		LastMessage:    str(s, "last_message"),
		UnreadCount:    int(s.GetFields()["unread_count"].GetNumberValue()),
	}
	if v := str(s, "last_message_time"); v != "" {
		t := parseTime(v)
		c.LastMessageTime = &t
	}
	return c
}

func messageFrom(s *structpb.Struct) model.Message {
	f := s.GetFields()
	return model.Message{
		ID:             str(s, "id"),
		ConversationID: str(s, "conversation_id"),
		From:           str(s, "from"),
		To:             str(s, "to"),
		Body:           str(s, "body"),
		Timestamp:      parseTime(str(s, "timestamp")),
		FromMe:         f["from_me"].GetBoolValue(),
		MessageType:    str(s, "message_type"),
		IsRead:         f["is_read"].GetBoolValue(),
	}
}

func listFrom[T any](s *structpb.Struct, key string, decode func(*structpb.Struct) T) []T {
	values := s.GetFields()[key].GetListValue().GetValues()
	out := make([]T, 0, len(values))
	for _, v := range values {
		out = append(out, decode(v.GetStructValue()))
	}
	return out
}
