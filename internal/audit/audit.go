package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/smartwatts/device-verification/internal/trust"
)

// EventType labels the terminal outcome of an engine operation.
type EventType string

const (
	EventActivate       EventType = "ACTIVATE"
	EventValidate       EventType = "VALIDATE"
	EventRenew          EventType = "RENEW"
	EventTamperDetected EventType = "TAMPER_DETECTED"
	EventDeny           EventType = "DENY"
)

// Entry is one immutable record in the decision trail. Entries are never
// amended or deleted; corrections are new entries ordered by timestamp.
type Entry struct {
	ID            uuid.UUID
	Event         EventType
	DeviceID      string
	Timestamp     time.Time
	TrustCategory trust.Category
	ReasonCode    string
	Detail        string
}

// Sink is the append-only audit destination. Every terminal outcome of an
// activation, validation or renewal produces exactly one entry.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// Reader exposes the trail for support and dispute handling. Reading never
// mutates the trail.
type Reader interface {
	ListByDevice(ctx context.Context, deviceID string) ([]Entry, error)
}
