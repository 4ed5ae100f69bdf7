package stream

import (
	"time"

	"github.com/marcobitx/procwatch/internal/model"
)

// openPhaseLocked records idx as current: its timing record opens on first
// sight, and every earlier still-open record closes. Closing by ordinal
// position back-fills intermediate phases the transport skipped, keeping the
// intervals contiguous and non-overlapping. Callers hold s.mu.
func (s *Session) openPhaseLocked(idx int, now time.Time) {
	if s.timings[idx] == nil {
		s.timings[idx] = &model.PhaseTiming{Start: now}
	}
	for i := 0; i < idx; i++ {
		closePhase(s.timings[i], now)
	}
}

// closeOpenPhasesLocked ends every still-running phase, used when the run
// reaches COMPLETED. Callers hold s.mu.
func (s *Session) closeOpenPhasesLocked(now time.Time) {
	for i := 0; i < model.NumPhases; i++ {
		closePhase(s.timings[i], now)
	}
}

// closePhase sets End on an open record. An End already set stays untouched.
func closePhase(t *model.PhaseTiming, now time.Time) {
	if t == nil || t.End != nil {
		return
	}
	end := now
	t.End = &end
}
