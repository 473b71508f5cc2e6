package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/tendering/core/events"
)

// Envelope is the wire body of every delivered event. Consumers deduplicate
// on TenderID and Event since delivery is at least once.
type Envelope struct {
	MessageID string          `json:"message_id"`
	Event     string          `json:"event"`
	TenderID  string          `json:"tender_id"`
	Published time.Time       `json:"published_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Encode wraps ev in a fresh Envelope and marshals it.
func Encode(ev events.Event, now time.Time) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Name(), err)
	}
	return json.Marshal(Envelope{
		MessageID: uuid.NewString(),
		Event:     ev.Name(),
		TenderID:  ev.Tender(),
		Published: now.UTC(),
		Payload:   body,
	})
}
