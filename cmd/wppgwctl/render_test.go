package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/wppgw/internal/api"
	"github.com/matheus3301/wppgw/internal/model"
)

func TestRenderSession(t *testing.T) {
	tests := []struct {
		name    string
		sess    model.Session
		showQR  bool
		want    []string
		notWant []string
	}{
		{
			name:    "connected",
			sess:    model.Session{TenantID: "acme", InstanceName: "tenant-acme", Status: model.Connected, PhoneNumber: "5511999999999"},
			want:    []string{"acme", "tenant-acme", "connected", "5511999999999"},
			notWant: []string{"Scan with"},
		},
		{
			name:   "connecting with qr",
			sess:   model.Session{TenantID: "acme", Status: model.Connecting, QRCode: "2@abc,def"},
			showQR: true,
			want:   []string{"connecting", "Scan with", "█"},
		},
		{
			name:    "qr hidden",
			sess:    model.Session{TenantID: "acme", Status: model.Connecting, QRCode: "2@abc,def"},
			want:    []string{"connecting"},
			notWant: []string{"Scan with"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			renderSession(&buf, tt.sess, tt.showQR)
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("output contains %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestRenderContacts(t *testing.T) {
	var buf bytes.Buffer
	renderContacts(&buf, nil)
	if !strings.Contains(buf.String(), "No contacts.") {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	renderContacts(&buf, []model.Contact{
		{ID: "5511888888888", Phone: "5511888888888", Name: "Ana", UnreadCount: 3, LastMessage: "oi\ntudo bem", LastMessageTime: &ts},
	})
	out := buf.String()
	for _, w := range []string{"PHONE", "Ana", "5511888888888", "3", "oi tudo bem"} {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestRenderMessages(t *testing.T) {
	var buf bytes.Buffer
	renderMessages(&buf, []model.Message{
		{From: "5511888888888", Body: "oi", MessageType: model.MessageTypeText},
		{From: "5511999999999", FromMe: true, Body: "ola", MessageType: model.MessageTypeText},
		{From: "5511888888888", MessageType: "image"},
	})
	out := buf.String()
	for _, w := range []string{"5511888888888: oi", "me", "ola", "[image]"} {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestRenderEvent(t *testing.T) {
	var buf bytes.Buffer
	renderEvent(&buf, api.WatchEvent{Kind: "session.status_changed", Session: &model.Session{Status: model.Connected, PhoneNumber: "5511999999999"}})
	renderEvent(&buf, api.WatchEvent{Kind: "message.sent", Message: &model.Message{From: "a", To: "b", Body: "oi"}})
	renderEvent(&buf, api.WatchEvent{Kind: "contacts.synced", Data: map[string]any{"count": 2.0}})
	out := buf.String()
	for _, w := range []string{"session.status_changed", "5511999999999", "a -> b: oi", "contacts.synced", "count:2"} {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 8, "this is…"},
		{"line\nbreak", 20, "line break"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
