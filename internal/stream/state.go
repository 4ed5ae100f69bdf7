package stream

import "github.com/marcobitx/procwatch/internal/model"

// State is the read-only view published to subscribers. Every publication is
// a fresh copy with its own containers; consumers can rely on reference
// inequality to detect change and must never mutate what they receive.
type State struct {
	AnalysisID string
	Status     model.Status

	// ErrorMessage is set when a FAILED status arrives, and otherwise empty.
	ErrorMessage string

	// ElapsedSec is wall-clock seconds since Start, ticking while live.
	ElapsedSec int

	// ThinkingLive is true between a thinking delta and its done marker.
	ThinkingLive bool

	// StreamEnded is true when the transport closed before any terminal
	// status arrived. The run's outcome is unknown; callers should treat
	// this as a failure for display purposes.
	StreamEnded bool

	Events     []model.StreamEvent
	Thinking   [model.NumPhases]string
	Timings    [model.NumPhases]*model.PhaseTiming
	ParsedDocs []model.ParsedDocInfo

	// Snapshot is non-nil once the run has completed successfully.
	Snapshot *model.Snapshot
}

// CurrentPhase returns the ordinal of the highest phase seen, or -1 before
// the first phase status.
func (st State) CurrentPhase() int {
	for i := model.NumPhases - 1; i >= 0; i-- {
		if st.Timings[i] != nil {
			return i
		}
	}
	return -1
}

// stateLocked builds a published copy of the live state. Callers hold s.mu.
func (s *Session) stateLocked() State {
	st := State{
		AnalysisID:   s.analysisID,
		Status:       s.status,
		ErrorMessage: s.errMsg,
		ElapsedSec:   s.elapsedSec,
		ThinkingLive: s.thinkingLive,
		StreamEnded:  s.streamEnded,
		Snapshot:     s.snapshot,
	}
	st.Events = append([]model.StreamEvent(nil), s.events...)
	for i := range s.thinking {
		st.Thinking[i] = s.thinking[i].String()
	}
	st.Timings = copyTimings(s.timings)
	st.ParsedDocs = append([]model.ParsedDocInfo(nil), s.parsedDocs...)
	return st
}

// copyTimings clones the timing table so a published copy cannot observe
// later mutation of the live records.
func copyTimings(in [model.NumPhases]*model.PhaseTiming) [model.NumPhases]*model.PhaseTiming {
	var out [model.NumPhases]*model.PhaseTiming
	for i, t := range in {
		if t == nil {
			continue
		}
		c := *t
		if t.End != nil {
			end := *t.End
			c.End = &end
		}
		out[i] = &c
	}
	return out
}
