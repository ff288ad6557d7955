// Package output provides JSONL output for pipeline runs.
//
// Output is structured as typed record envelopes covering item
// completions, idempotent skips, synchronization cycles, errors, and
// the final run summary. Each line is a self-contained JSON object
// that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: songlift.<type>.v<version>
const (
	// TypeItem identifies item completion records.
	TypeItem = "songlift.item.v1"

	// TypeSkip identifies idempotent skip records.
	TypeSkip = "songlift.skip.v1"

	// TypeError identifies error records.
	TypeError = "songlift.error.v1"

	// TypeSync identifies synchronization cycle records.
	TypeSync = "songlift.sync.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "songlift.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "songlift.item.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the correlation ID for this run.
	JobID string `json:"job_id"`

	// Source identifies the work-list source for this run.
	Source string `json:"source,omitempty"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// ItemRecord is the data payload for a completed item.
type ItemRecord struct {
	// Index is the item's position in the input work list.
	Index int `json:"index"`

	// Title is the item's title.
	Title string `json:"title"`

	// Artifact is the local artifact filename.
	Artifact string `json:"artifact"`

	// Cover reports whether cover art was captured.
	Cover bool `json:"cover"`

	// Lyrics is the number of lyric texts captured.
	Lyrics int `json:"lyrics,omitempty"`
}

// SkipRecord is the data payload for an idempotent skip.
type SkipRecord struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// Skip reasons.
const (
	// SkipReasonArtifact indicates the local artifact already exists.
	SkipReasonArtifact = "artifact_exists"

	// SkipReasonLedger indicates the ledger already records the item
	// with a remote reference.
	SkipReasonLedger = "ledger_complete"

	// SkipReasonWatermark indicates the item index is at or below
	// the resume watermark.
	SkipReasonWatermark = "below_watermark"
)

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the run, allowing
// the pipeline to reach the end of the work list even when individual
// items fail.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Index is the work-list index related to this error, or -1 when
	// the error is not item-scoped.
	Index int `json:"index"`

	// Title is the item title, if known.
	Title string `json:"title,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeFetch indicates the media fetcher failed for an item.
	ErrCodeFetch = "FETCH_FAILED"

	// ErrCodeEmbed indicates tag embedding failed for an item.
	ErrCodeEmbed = "EMBED_FAILED"

	// ErrCodeUpload indicates a remote asset upload failed.
	ErrCodeUpload = "UPLOAD_FAILED"

	// ErrCodePush indicates the version-control push failed.
	ErrCodePush = "PUSH_FAILED"

	// ErrCodeCredential indicates the remote store credential is missing.
	ErrCodeCredential = "MISSING_CREDENTIAL"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// SyncRecord is the data payload for one synchronization cycle.
type SyncRecord struct {
	// Cycle is the 1-based cycle number within this run.
	Cycle int `json:"cycle"`

	// Uploaded is the number of assets uploaded this cycle.
	Uploaded int `json:"uploaded"`

	// Existing is the number of assets already present remotely.
	Existing int `json:"existing"`

	// Reconciled is the number of ledger entries that gained a
	// remote reference this cycle.
	Reconciled int `json:"reconciled"`
}

// SummaryRecord is the data payload for the final run summary.
//
// A summary record is emitted once at the end of a run with
// aggregate statistics.
type SummaryRecord struct {
	// Items is the number of work-list items submitted.
	Items int64 `json:"items"`

	// Processed is the number of items fetched and embedded this run.
	Processed int64 `json:"processed"`

	// Skipped is the number of items skipped as already done.
	Skipped int64 `json:"skipped"`

	// Failed is the number of items abandoned for retry.
	Failed int64 `json:"failed"`

	// Cycles is the number of synchronization cycles performed.
	Cycles int64 `json:"cycles"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
