package dto

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/analytics/internal/domain/tracking"
)

// EnvelopeRequest is one tracked event posted by an engine. The shape mirrors
// the envelope the delivery queue sends, so the collector accepts the wire
// format unchanged
type EnvelopeRequest struct {
	EventID    uuid.UUID      `json:"eventId" binding:"required"`
	Kind       string         `json:"type" binding:"required,max=64"`
	Timestamp  int64          `json:"timestamp" binding:"required,gt=0"`
	SessionID  string         `json:"sessionId" binding:"required,max=64"`
	UserID     string         `json:"userId" binding:"omitempty,max=64"`
	Properties map[string]any `json:"properties"`
}

// ToEnvelope converts the request to the domain envelope
func (r EnvelopeRequest) ToEnvelope() tracking.Envelope {
	properties := r.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	return tracking.Envelope{
		EventID:    r.EventID,
		Kind:       tracking.EventKind(r.Kind),
		Timestamp:  r.Timestamp,
		SessionID:  r.SessionID,
		UserID:     r.UserID,
		Properties: properties,
	}
}

// IngestResponse reports the outcome of an event ingest
type IngestResponse struct {
	EventID   string `json:"eventId"`
	Duplicate bool   `json:"duplicate"`
}

// SessionBatchRequest is one flushed session recording batch
type SessionBatchRequest struct {
	SessionID       string                     `json:"sessionId" binding:"required,max=64"`
	UserID          string                     `json:"userId" binding:"omitempty,max=64"`
	Timestamp       int64                      `json:"timestamp" binding:"required,gt=0"`
	Page            string                     `json:"page" binding:"max=512"`
	MouseMovements  []tracking.MouseMoveSample `json:"mouseMovements"`
	Clicks          []tracking.ClickSample     `json:"clicks"`
	ScrollPositions []tracking.ScrollSample    `json:"scrollPositions"`
}

// ToSessionBatch converts the request to the domain batch
func (r SessionBatchRequest) ToSessionBatch() tracking.SessionBatch {
	return tracking.SessionBatch{
		SessionID:       r.SessionID,
		UserID:          r.UserID,
		Timestamp:       r.Timestamp,
		Page:            r.Page,
		MouseMovements:  r.MouseMovements,
		Clicks:          r.Clicks,
		ScrollPositions: r.ScrollPositions,
	}
}

// ExportRequest selects stored events by date range and optional kinds.
// Dates accept RFC 3339 timestamps or plain YYYY-MM-DD days
type ExportRequest struct {
	StartDate  string   `json:"startDate" binding:"required"`
	EndDate    string   `json:"endDate" binding:"required"`
	EventTypes []string `json:"eventTypes" binding:"omitempty,dive,max=64"`
}

// ToQuery parses the request into a domain export query. A day-only end date
// extends to the end of that day so the range is inclusive
func (r ExportRequest) ToQuery() (tracking.ExportQuery, error) {
	start, _, err := parseExportDate(r.StartDate)
	if err != nil {
		return tracking.ExportQuery{}, fmt.Errorf("startDate: %w", err)
	}

	end, endDayOnly, err := parseExportDate(r.EndDate)
	if err != nil {
		return tracking.ExportQuery{}, fmt.Errorf("endDate: %w", err)
	}
	if endDayOnly {
		end = end.Add(24 * time.Hour)
	}

	if end.Before(start) {
		return tracking.ExportQuery{}, fmt.Errorf("endDate precedes startDate")
	}

	kinds := make([]tracking.EventKind, len(r.EventTypes))
	for i, kind := range r.EventTypes {
		kinds[i] = tracking.EventKind(kind)
	}

	return tracking.ExportQuery{Start: start, End: end, Kinds: kinds}, nil
}

func parseExportDate(value string) (parsed time.Time, dayOnly bool, err error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, false, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("invalid date %q, want RFC 3339 or YYYY-MM-DD", value)
}

// ExportResponse carries the exported events
type ExportResponse struct {
	Events []tracking.StoredEvent `json:"events"`
	Count  int                    `json:"count"`
}

// ExperimentUpsertRequest creates or updates an experiment definition
type ExperimentUpsertRequest struct {
	Variant string `json:"variant" binding:"required,max=128"`
	Active  *bool  `json:"active" binding:"required"`
}
