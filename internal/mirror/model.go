package mirror

import (
	"errors"
	"time"
)

// Push error taxonomy. Client packages map transport-level failures onto
// these sentinels so the cycle can decide retry behavior without knowing
// either API's status codes.
var (
	// ErrNotFound indicates the remote entity no longer exists.
	ErrNotFound = errors.New("mirror: not found")
	// ErrTransient indicates a retryable failure (rate limit, timeout,
	// server error). The stored revision marker is not advanced so the next
	// cycle retries the push.
	ErrTransient = errors.New("mirror: transient api error")
	// ErrPermanent indicates an auth or permission failure that will not
	// resolve by retrying.
	ErrPermanent = errors.New("mirror: permanent api error")
	// ErrPayloadTooLarge indicates the destination rejected the message
	// body for size.
	ErrPayloadTooLarge = errors.New("mirror: payload too large")
)

// RecordStatus is the last-push status of a mirrored page.
type RecordStatus string

const (
	StatusSynced   RecordStatus = "synced"
	StatusFailed   RecordStatus = "failed"
	StatusSkipped  RecordStatus = "skipped"
	StatusArchived RecordStatus = "archived"
)

// Record is the persisted sync state for one source page. Records are never
// deleted: a page that disappears from the source is archived, preserving
// ledger history.
type Record struct {
	PageID            string       `gorm:"column:page_id;primaryKey;size:190;not null"`
	Title             string       `gorm:"column:title;size:320;not null;default:''"`
	RevisionAtSeconds int64        `gorm:"column:revision_at_s;not null;default:0"`
	MessageID         int64        `gorm:"column:message_id;not null;default:0"`
	Pinned            bool         `gorm:"column:pinned;not null;default:false"`
	Status            RecordStatus `gorm:"column:status;size:32;not null;default:''"`
	LastError         string       `gorm:"column:last_error;type:text;not null;default:''"`
	CreatedAtSeconds  int64        `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds  int64        `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "mirror_records"
}

// contentEqual ignores bookkeeping timestamps so unchanged records skip the
// write entirely.
func (r Record) contentEqual(other Record) bool {
	r.CreatedAtSeconds, other.CreatedAtSeconds = 0, 0
	r.UpdatedAtSeconds, other.UpdatedAtSeconds = 0, 0
	return r == other
}

// DiagnosticKind classifies entries in the per-page diagnostics log.
type DiagnosticKind string

const (
	DiagnosticUnsupportedBlock DiagnosticKind = "unsupported_block"
	DiagnosticTruncated        DiagnosticKind = "truncated"
	DiagnosticPinConflict      DiagnosticKind = "pin_conflict"
	DiagnosticPushFailed       DiagnosticKind = "push_failed"
	DiagnosticRevived          DiagnosticKind = "revived"
)

// Diagnostic is one durable operator-facing log entry for a page.
type Diagnostic struct {
	DiagnosticID      string         `gorm:"column:diagnostic_id;primaryKey;size:190;not null"`
	PageID            string         `gorm:"column:page_id;size:190;not null;index:idx_diagnostics_page_time,priority:1"`
	Kind              DiagnosticKind `gorm:"column:kind;size:64;not null"`
	Detail            string         `gorm:"column:detail;type:text;not null;default:''"`
	RecordedAtSeconds int64          `gorm:"column:recorded_at_s;not null;index:idx_diagnostics_page_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Diagnostic) TableName() string {
	return "mirror_diagnostics"
}

// LedgerRow is the snapshot of one record mirrored into the source-owned
// status table.
type LedgerRow struct {
	PageID     string
	Title      string
	PageURL    string
	MessageURL string
	UpdatedAt  time.Time
}
