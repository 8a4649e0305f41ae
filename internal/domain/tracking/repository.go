package tracking

import (
	"context"
	"time"
)

// StoredEvent is an envelope as persisted by the collector
type StoredEvent struct {
	EventID    string         `json:"eventId"`
	Kind       EventKind      `json:"type"`
	SessionID  string         `json:"sessionId"`
	UserID     string         `json:"userId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Properties map[string]any `json:"properties"`
}

// ExportQuery selects stored events for export
type ExportQuery struct {
	Start time.Time
	End   time.Time
	Kinds []EventKind // empty means all kinds
}

// EventRepository persists delivered envelopes on the collector side
type EventRepository interface {
	// Save persists one envelope
	Save(ctx context.Context, env Envelope) error
	// FindRange returns stored events matching the export query, oldest first
	FindRange(ctx context.Context, query ExportQuery) ([]StoredEvent, error)
	// CountBySession returns the number of stored events for a session
	CountBySession(ctx context.Context, sessionID string) (int64, error)
}

// SessionBatchRepository persists flushed heatmap batches
type SessionBatchRepository interface {
	// Save persists one session batch
	Save(ctx context.Context, batch SessionBatch) error
	// FindBySession returns all batches recorded for a session, oldest first
	FindBySession(ctx context.Context, sessionID string) ([]SessionBatch, error)
}

// ExperimentRepository holds the experiments the collector serves to engines
// via the active-experiments endpoint
type ExperimentRepository interface {
	// Active returns the experiment -> variant map for currently running experiments
	Active(ctx context.Context) (map[string]string, error)
	// Upsert creates or updates an experiment definition
	Upsert(ctx context.Context, experimentID, variant string, active bool) error
}
