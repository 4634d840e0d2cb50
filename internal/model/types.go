package model

import "time"

// Status is the lifecycle state of a tenant's gateway connection.
type Status string

const (
	Disconnected Status = "disconnected"
	Connecting   Status = "connecting"
	Connected    Status = "connected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case Disconnected, Connecting, Connected:
		return true
	}
	return false
}

// Session is the connection state of one tenant.
type Session struct {
	TenantID     string
	InstanceName string
	Status       Status
	QRCode       string // only while Connecting
	PhoneNumber  string // only once Connected
	UpdatedAt    time.Time
}

// NewSession returns the initial Disconnected session for a tenant.
func NewSession(tenantID string) Session {
	return Session{
		TenantID:     tenantID,
		InstanceName: InstanceName(tenantID),
		Status:       Disconnected,
	}
}

// Contact is a remote chat peer known to a tenant.
type Contact struct {
	ID              string // bare phone
	Name            string
	Phone           string
	ProfilePicture  string
	LastMessage     string
	LastMessageTime *time.Time
	UnreadCount     int
}

// Message is a single chat message as exchanged through the gateway.
type Message struct {
	ID             string
	ConversationID string // peer phone
	From           string
	To             string
	Body           string
	Timestamp      time.Time
	FromMe         bool
	MessageType    string
	IsRead         bool
}

// MessageTypeText is the only message type with a normalized body.
const MessageTypeText = "text"
