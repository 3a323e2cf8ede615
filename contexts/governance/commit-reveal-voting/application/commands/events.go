package commands

import (
	"encoding/json"
	"time"

	"commitreveal/contexts/governance/commit-reveal-voting/ports"
)

const (
	EventSessionStarted  = "voting_session.started"
	EventVoteCommitted   = "vote.committed"
	EventVoteRevealed    = "vote.revealed"
	EventSessionRevealed = "voting_session.revealed"
)

func newVotingEnvelope(
	eventID string,
	eventType string,
	sessionID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	// Every command-side event is partitioned by session so consumers see a
	// session's commits and reveals in order.
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "commit-reveal-voting",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "session_id",
		PartitionKey:     sessionID,
		Data:             payload,
	}, nil
}
