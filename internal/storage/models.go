package storage

import (
	"errors"
	"time"

	"github.com/dayline/dayline/internal/status"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Job types understood by the dispatcher.
const (
	JobEnrichNote     = "enrich_note"
	JobEnrichTask     = "enrich_task"
	JobEnrichActivity = "enrich_activity"
)

// Note is a free-form text entry.
type Note struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Content          string        `json:"content"`
	Tags             string        `json:"tags"` // JSON array stored as text
	ProcessingStatus status.Status `json:"processing_status"`
	EnrichmentJSON   string        `json:"enrichment_data,omitempty"` // JSON object stored as text; empty until enriched
	ProcessedAt      *time.Time    `json:"processed_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Task is a to-do item with an optional due date.
type Task struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Details          string        `json:"details"`
	DueAt            *time.Time    `json:"due_at,omitempty"`
	Done             bool          `json:"done"`
	ProcessingStatus status.Status `json:"processing_status"`
	EnrichmentJSON   string        `json:"enrichment_data,omitempty"`
	ProcessedAt      *time.Time    `json:"processed_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Activity is a user-defined tracker described by a field schema.
type Activity struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	SchemaJSON       string        `json:"schema"` // field schema stored as JSON text
	ProcessingStatus status.Status `json:"processing_status"`
	EnrichmentJSON   string        `json:"enrichment_data,omitempty"`
	ProcessedAt      *time.Time    `json:"processed_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Job is one queued unit of background work.
type Job struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	PayloadJSON string    `json:"payload"`
	Status      string    `json:"status"` // "pending", "running", "completed", "failed"
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	RunAfter    time.Time `json:"run_after"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastError   string    `json:"last_error,omitempty"`
}
