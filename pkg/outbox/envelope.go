package outbox

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	"github.com/google/uuid"
)

// ActorRef identifies who produced the event. Scheduled jobs leave it nil.
type ActorRef struct {
	AccountID *uuid.UUID `json:"accountId,omitempty"`
	Role      enums.Role `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
