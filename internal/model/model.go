// Package model defines the core data types shared across procwatch.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is one step of the analysis pipeline, or one of its terminal markers.
type Status string

const (
	StatusQueued      Status = "QUEUED"
	StatusParsing     Status = "PARSING"
	StatusExtracting  Status = "EXTRACTING"
	StatusAggregating Status = "AGGREGATING"
	StatusEvaluating  Status = "EVALUATING"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
	StatusCanceled    Status = "CANCELED"
)

// NumPhases is the number of timed pipeline phases (PARSING through EVALUATING).
const NumPhases = 4

// ParseStatus normalizes a status string from the wire. Unknown strings are
// rejected rather than passed through.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusQueued:
		return StatusQueued, nil
	case StatusParsing:
		return StatusParsing, nil
	case StatusExtracting:
		return StatusExtracting, nil
	case StatusAggregating:
		return StatusAggregating, nil
	case StatusEvaluating:
		return StatusEvaluating, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusFailed:
		return StatusFailed, nil
	case StatusCanceled:
		return StatusCanceled, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// PhaseIndex returns the ordinal of a timed phase (PARSING=0 … EVALUATING=3),
// or -1 for QUEUED and the terminal statuses.
func (s Status) PhaseIndex() int {
	switch s {
	case StatusParsing:
		return 0
	case StatusExtracting:
		return 1
	case StatusAggregating:
		return 2
	case StatusEvaluating:
		return 3
	default:
		return -1
	}
}

// Phase reports whether s is one of the four timed pipeline phases.
func (s Status) Phase() bool {
	return s.PhaseIndex() >= 0
}

// Terminal reports whether s ends the run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// PhaseLabel returns a display name for a phase index.
func PhaseLabel(idx int) string {
	switch idx {
	case 0:
		return "Parsing"
	case 1:
		return "Extracting"
	case 2:
		return "Aggregating"
	case 3:
		return "Evaluating"
	default:
		return "unknown"
	}
}

// EventKind tags a StreamEvent variant.
type EventKind string

const (
	EventStatus     EventKind = "status"
	EventProgress   EventKind = "progress"
	EventMetrics    EventKind = "metrics"
	EventFileParsed EventKind = "file_parsed"
	EventThinking   EventKind = "thinking"
	EventError      EventKind = "error"
	EventOther      EventKind = "other"
)

// StreamEvent is one inbound push message, classified at the transport
// boundary. Immutable once created; the event log only grows, never edits.
type StreamEvent struct {
	Kind       EventKind
	ReceivedAt time.Time

	// Raw is the payload exactly as it arrived, kept for the inspector pane.
	Raw json.RawMessage

	// Decoded variant fields. Only the fields for Kind are meaningful.
	Status       Status         // EventStatus
	Progress     *ProgressInfo  // EventProgress
	Doc          *ParsedDocInfo // EventFileParsed
	ThinkingText string         // EventThinking, incremental delta
	ThinkingDone bool           // EventThinking, end-of-reasoning marker
	Message      string         // EventError, or free-form text on others
}

// ProgressInfo reports backend progress for the active phase.
type ProgressInfo struct {
	Stage   string  `json:"stage,omitempty"`
	Percent float64 `json:"percent,omitempty"`
	Detail  string  `json:"detail,omitempty"`
}

// ParsedDocInfo describes one uploaded document after the backend parses it.
type ParsedDocInfo struct {
	Filename      string `json:"filename"`
	Pages         int    `json:"pages,omitempty"`
	Format        string `json:"format,omitempty"`
	SizeBytes     int64  `json:"size_bytes,omitempty"`
	TokenEstimate int    `json:"token_estimate,omitempty"`
}

// PhaseTiming records when a phase became current and, once a later phase (or
// completion) arrived, when it stopped being current. End, once set, is never
// overwritten.
type PhaseTiming struct {
	Start time.Time
	End   *time.Time
}

// Open reports whether the phase is still running.
func (t PhaseTiming) Open() bool {
	return t.End == nil
}

// Duration returns the closed interval length, or the elapsed time since
// Start for a still-open phase.
func (t PhaseTiming) Duration(now time.Time) time.Duration {
	if t.End != nil {
		return t.End.Sub(t.Start)
	}
	return now.Sub(t.Start)
}

// Snapshot is an immutable point-in-time copy of accumulated stream state,
// captured when a run completes. It owns its containers: later mutation of
// the live session is not observable through it.
type Snapshot struct {
	AnalysisID  string
	FinalStatus Status
	ElapsedSec  int
	Events      []StreamEvent
	Thinking    [NumPhases]string
	Timings     [NumPhases]*PhaseTiming
	ParsedDocs  []ParsedDocInfo
}

// Analysis is one analysis run as reported by the backend REST API.
type Analysis struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Status    Status    `json:"status"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	DocCount  int       `json:"doc_count,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// ModelInfo is one entry of the backend's model catalog.
type ModelInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Provider      string `json:"provider,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
	Default       bool   `json:"default,omitempty"`
}
