package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/skip2/go-qrcode"

	"github.com/matheus3301/wppgw/internal/api"
	"github.com/matheus3301/wppgw/internal/model"
)

var (
	// Styles
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	meStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("212"))
)

func statusStyle(s model.Status) lipgloss.Style {
	switch s {
	case model.Connected:
		return okStyle
	case model.Connecting:
		return warnStyle
	default:
		return errStyle
	}
}

func renderSession(w io.Writer, s model.Session, showQR bool) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Tenant:  "), s.TenantID)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Instance:"), s.InstanceName)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Status:  "), statusStyle(s.Status).Render(string(s.Status)))
	if s.PhoneNumber != "" {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Phone:   "), s.PhoneNumber)
	}
	if !s.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Updated: "), dimStyle.Render(s.UpdatedAt.Local().Format(time.DateTime)))
	}
	if showQR && s.QRCode != "" {
		fmt.Fprintln(w)
		if art, err := terminalQR(s.QRCode); err == nil {
			fmt.Fprint(w, art)
		}
		fmt.Fprintln(w, dimStyle.Render("Scan with WhatsApp > Linked devices"))
	}
}

// terminalQR renders code with half-block characters.
func terminalQR(code string) (string, error) {
	q, err := qrcode.New(code, qrcode.Low)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}

func renderContacts(w io.Writer, contacts []model.Contact) {
	if len(contacts) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No contacts."))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PHONE\tNAME\tUNREAD\tLAST MESSAGE")
	for _, c := range contacts {
		last := truncate(c.LastMessage, 40)
		if c.LastMessageTime != nil {
			last = c.LastMessageTime.Local().Format(time.DateTime) + " " + last
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.Phone, c.Name, c.UnreadCount, last)
	}
	_ = tw.Flush()
}

func renderMessages(w io.Writer, msgs []model.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No messages."))
		return
	}
	for _, m := range msgs {
		who := m.From
		if m.FromMe {
			who = meStyle.Render("me")
		}
		body := m.Body
		if m.MessageType != model.MessageTypeText {
			body = dimStyle.Render("[" + m.MessageType + "]")
		}
		fmt.Fprintf(w, "%s %s: %s\n", dimStyle.Render(m.Timestamp.Local().Format(time.DateTime)), who, body)
	}
}

func renderTenants(w io.Writer, list []model.Session) {
	if len(list) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No tenants."))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TENANT\tSTATUS\tPHONE")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.TenantID, s.Status, s.PhoneNumber)
	}
	_ = tw.Flush()
}

func renderEvent(w io.Writer, evt api.WatchEvent) {
	switch {
	case evt.Session != nil:
		line := fmt.Sprintf("%s %s", labelStyle.Render(evt.Kind), statusStyle(evt.Session.Status).Render(string(evt.Session.Status)))
		if evt.Session.PhoneNumber != "" {
			line += " " + evt.Session.PhoneNumber
		}
		fmt.Fprintln(w, line)
		if evt.Session.QRCode != "" {
			if art, err := terminalQR(evt.Session.QRCode); err == nil {
				fmt.Fprint(w, art)
			}
		}
	case evt.Message != nil:
		fmt.Fprintf(w, "%s %s -> %s: %s\n", labelStyle.Render(evt.Kind), evt.Message.From, evt.Message.To, evt.Message.Body)
	default:
		fmt.Fprintf(w, "%s %v\n", labelStyle.Render(evt.Kind), evt.Data)
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
