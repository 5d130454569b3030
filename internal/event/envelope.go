package event

import (
	"time"

	"github.com/google/uuid"
)

// Triggers Pagemark emits today. Event sources are expected to check
// KnownTrigger before publishing; the transformer itself does not validate.
const (
	TriggerDocumentViewed     = "document.viewed"
	TriggerDocumentDownloaded = "document.downloaded"
	TriggerLinkCreated        = "link.created"
	TriggerLinkDeleted        = "link.deleted"
	TriggerDataroomViewed     = "dataroom.viewed"
)

var knownTriggers = map[string]struct{}{
	TriggerDocumentViewed:     {},
	TriggerDocumentDownloaded: {},
	TriggerLinkCreated:        {},
	TriggerLinkDeleted:        {},
	TriggerDataroomViewed:     {},
}

// KnownTrigger reports whether name is one of the triggers Pagemark emits.
func KnownTrigger(name string) bool {
	_, ok := knownTriggers[name]
	return ok
}

// Envelope is the canonical wire representation of one business event. The
// same envelope (same ID) is sent to every destination within one fan-out,
// so receivers with multiple registered endpoints can deduplicate by ID.
// Field order here is the wire order; signatures are computed over exactly
// this serialization.
type Envelope struct {
	ID        string `json:"id"`
	Event     string `json:"event"`
	CreatedAt string `json:"createdAt"` // RFC3339, UTC
	Data      any    `json:"data"`
}

// NewEnvelope builds an Envelope for the given trigger. Data is carried
// through untouched and is treated as immutable after construction.
func NewEnvelope(trigger string, data any) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Event:     trigger,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}
