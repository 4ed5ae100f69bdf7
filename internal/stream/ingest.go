package stream

import (
	"encoding/json"
	"time"

	"github.com/marcobitx/procwatch/internal/model"
	"github.com/marcobitx/procwatch/internal/sse"
)

// handleEvent classifies one wire event and folds it into session state.
// Malformed payloads are dropped here; ingestion never surfaces an error.
func (s *Session) handleEvent(gen int, raw sse.Event) {
	ev, ok := decodeEvent(raw, time.Now())
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.cancel == nil {
		return
	}
	s.foldLocked(ev)
	s.publishLocked()
}

// foldLocked applies one decoded event. Thinking deltas feed the bounded
// per-phase buffer and stay out of the event log, which they would flood;
// every other kind is logged verbatim before any kind-specific handling.
func (s *Session) foldLocked(ev model.StreamEvent) {
	if ev.Kind == model.EventThinking {
		if ev.ThinkingDone {
			s.thinkingLive = false
			return
		}
		s.thinking[s.activePhaseLocked()].Append(ev.ThinkingText)
		s.thinkingLive = true
		return
	}

	s.events = append(s.events, ev)

	switch ev.Kind {
	case model.EventStatus:
		s.applyStatusLocked(ev)
	case model.EventFileParsed:
		if ev.Doc != nil && !s.seenDocs[ev.Doc.Filename] {
			s.seenDocs[ev.Doc.Filename] = true
			s.parsedDocs = append(s.parsedDocs, *ev.Doc)
		}
	}
}

// activePhaseLocked is the index thinking text accumulates under: the highest
// phase seen so far, or 0 if reasoning starts before the first phase status.
func (s *Session) activePhaseLocked() int {
	if s.maxPhase < 0 {
		return 0
	}
	return s.maxPhase
}

// applyStatusLocked advances the run status. Phase ordinals never regress
// within one run; terminal statuses release the connection and ticker.
func (s *Session) applyStatusLocked(ev model.StreamEvent) {
	st := ev.Status
	now := ev.ReceivedAt

	if st.Phase() {
		idx := st.PhaseIndex()
		if idx < s.maxPhase {
			return
		}
		s.status = st
		s.openPhaseLocked(idx, now)
		s.maxPhase = idx
		return
	}

	s.status = st
	switch st {
	case model.StatusCompleted:
		s.closeOpenPhasesLocked(now)
		s.elapsedSec = int(time.Since(s.startedAt) / time.Second)
		s.freezeLocked()
		s.stopLocked()
	case model.StatusFailed:
		// Timing records stay as they were; partial timing is still useful
		// for diagnosing where the run died.
		s.errMsg = ev.Message
		if s.errMsg == "" {
			s.errMsg = "analysis failed"
		}
		s.stopLocked()
	case model.StatusCanceled:
		s.stopLocked()
	}
}

// decodeEvent turns a raw push message into a typed StreamEvent. The second
// return is false for payloads that do not decode; callers drop those.
func decodeEvent(raw sse.Event, now time.Time) (model.StreamEvent, bool) {
	ev := model.StreamEvent{
		ReceivedAt: now,
		Raw:        append(json.RawMessage(nil), raw.Data...),
	}

	switch raw.Name {
	case "status":
		var p struct {
			Status    string `json:"status"`
			NewStatus string `json:"new_status"`
			Message   string `json:"message"`
		}
		if err := json.Unmarshal(raw.Data, &p); err != nil {
			return ev, false
		}
		str := p.Status
		if str == "" {
			str = p.NewStatus
		}
		st, err := model.ParseStatus(str)
		if err != nil {
			return ev, false
		}
		ev.Kind = model.EventStatus
		ev.Status = st
		ev.Message = p.Message

	case "progress":
		var p model.ProgressInfo
		if err := json.Unmarshal(raw.Data, &p); err != nil {
			return ev, false
		}
		ev.Kind = model.EventProgress
		ev.Progress = &p

	case "metrics":
		if !json.Valid(raw.Data) {
			return ev, false
		}
		ev.Kind = model.EventMetrics

	case "file_parsed":
		doc, ok := decodeDoc(raw.Data)
		if !ok {
			return ev, false
		}
		ev.Kind = model.EventFileParsed
		ev.Doc = doc

	case "thinking":
		var p struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw.Data, &p); err != nil {
			return ev, false
		}
		ev.Kind = model.EventThinking
		if p.Type == "thinking_done" {
			ev.ThinkingDone = true
		} else {
			ev.ThinkingText = p.Text
		}

	case "error_event":
		var p struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(raw.Data, &p); err != nil {
			return ev, false
		}
		ev.Kind = model.EventError
		ev.Message = p.Message
		if ev.Message == "" {
			ev.Message = p.Error
		}

	default:
		// Default channel: recognize the enveloped event_type shape the
		// backend also uses for status changes, otherwise keep the event
		// as an opaque log entry.
		var p struct {
			EventType string `json:"event_type"`
			NewStatus string `json:"new_status"`
			Message   string `json:"message"`
		}
		if err := json.Unmarshal(raw.Data, &p); err != nil {
			return ev, false
		}
		switch {
		case p.NewStatus != "" || p.EventType == "status_change":
			st, err := model.ParseStatus(p.NewStatus)
			if err != nil {
				return ev, false
			}
			ev.Kind = model.EventStatus
			ev.Status = st
			ev.Message = p.Message
		case p.EventType == "file_parsed":
			doc, ok := decodeDoc(raw.Data)
			if !ok {
				return ev, false
			}
			ev.Kind = model.EventFileParsed
			ev.Doc = doc
		default:
			ev.Kind = model.EventOther
			ev.Message = p.Message
		}
	}

	return ev, true
}

func decodeDoc(data []byte) (*model.ParsedDocInfo, bool) {
	var d model.ParsedDocInfo
	if err := json.Unmarshal(data, &d); err != nil || d.Filename == "" {
		return nil, false
	}
	return &d, true
}
