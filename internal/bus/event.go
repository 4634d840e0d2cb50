package bus

import "time"

// Event kinds published by the tenant runtime.
const (
	KindStatusChanged  = "session.status_changed"
	KindSessionUpdated = "session.updated"
	KindContactsSynced = "contacts.synced"
	KindMessageSent    = "message.sent"
	KindSendFailed     = "message.send_failed"
)

// Event represents a tenant-scoped domain event published on the bus.
type Event struct {
	Kind      string
	Tenant    string
	Timestamp time.Time
	Payload   any
}
