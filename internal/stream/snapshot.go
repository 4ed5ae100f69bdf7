package stream

import "github.com/marcobitx/procwatch/internal/model"

// freezeLocked captures the review snapshot, exactly once per run, when the
// run reaches COMPLETED. The snapshot owns copies of every container so a
// stray late event on the live side can never show through it. FAILED and
// CANCELED runs are never frozen. Callers hold s.mu.
func (s *Session) freezeLocked() {
	if s.snapshot != nil {
		return
	}

	snap := &model.Snapshot{
		AnalysisID:  s.analysisID,
		FinalStatus: model.StatusCompleted,
		ElapsedSec:  s.elapsedSec,
	}
	snap.Events = append([]model.StreamEvent(nil), s.events...)
	for i := range s.thinking {
		snap.Thinking[i] = s.thinking[i].String()
	}
	snap.Timings = copyTimings(s.timings)
	snap.ParsedDocs = append([]model.ParsedDocInfo(nil), s.parsedDocs...)

	s.snapshot = snap
}
