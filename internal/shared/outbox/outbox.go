package outbox

import "time"

const (
	StatusPending   = "pending"
	StatusPublished = "published"
)

// Message is an outbox row persisted next to the state change it describes.
// The worker relay reads pending rows in Sequence order and publishes them to
// the message bus.
type Message struct {
	OutboxID     string
	Sequence     int64
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}
