package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcobitx/procwatch/internal/model"
	"github.com/marcobitx/procwatch/internal/sse"
)

// fakeTransport hands each dial a fresh channel the test can feed directly.
type fakeTransport struct {
	mu     sync.Mutex
	dials  int
	lastID string
	ch     chan sse.Event
}

func (f *fakeTransport) Stream(ctx context.Context, analysisID string) (<-chan sse.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	f.lastID = analysisID
	ch := make(chan sse.Event, 64)
	f.ch = ch
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (f *fakeTransport) send(ev sse.Event) {
	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()
	ch <- ev
}

func (f *fakeTransport) stats() (int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials, f.lastID
}

func statusEvent(status string) sse.Event {
	return sse.Event{Name: "status", Data: []byte(fmt.Sprintf(`{"status":%q}`, status))}
}

func awaitStatus(t *testing.T, s *Session, want model.Status) State {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.State().Status == want
	}, 2*time.Second, 5*time.Millisecond, "never reached status %s", want)
	return s.State()
}

func TestStartTearsDownPreviousConnection(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)
	defer s.Stop()

	require.NoError(t, s.Start(context.Background(), "a1"))
	require.NoError(t, s.Start(context.Background(), "a2"))
	require.NoError(t, s.Start(context.Background(), "a3"))

	dials, lastID := ft.stats()
	assert.True(t, s.Active())
	assert.Equal(t, 3, dials)
	assert.Equal(t, "a3", lastID)
	assert.Equal(t, "a3", s.State().AnalysisID)
}

func TestStopIsIdempotent(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)

	// Stop with nothing active must be a no-op.
	s.Stop()
	assert.False(t, s.Active())

	require.NoError(t, s.Start(context.Background(), "a1"))
	ft.send(statusEvent("PARSING"))
	awaitStatus(t, s, model.StatusParsing)

	s.Stop()
	first := s.State()
	s.Stop()
	second := s.State()

	assert.False(t, s.Active())
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, len(first.Events), len(second.Events))
}

func TestMonotonicPhaseTiming(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)
	defer s.Stop()
	require.NoError(t, s.Start(context.Background(), "a1"))

	for _, st := range []string{"PARSING", "EXTRACTING", "AGGREGATING", "EVALUATING", "COMPLETED"} {
		ft.send(statusEvent(st))
	}
	state := awaitStatus(t, s, model.StatusCompleted)

	for i := 0; i < model.NumPhases; i++ {
		rec := state.Timings[i]
		require.NotNil(t, rec, "phase %d has no timing record", i)
		require.NotNil(t, rec.End, "phase %d still open", i)
		assert.False(t, rec.End.Before(rec.Start), "phase %d end before start", i)
		if i > 0 {
			prev := state.Timings[i-1]
			assert.False(t, prev.End.After(rec.Start),
				"phase %d ends after phase %d starts", i-1, i)
		}
	}
}

func TestSkippedStatusBackfill(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)
	defer s.Stop()
	require.NoError(t, s.Start(context.Background(), "a1"))

	ft.send(statusEvent("PARSING"))
	ft.send(statusEvent("AGGREGATING"))
	state := awaitStatus(t, s, model.StatusAggregating)

	require.NotNil(t, state.Timings[0])
	assert.NotNil(t, state.Timings[0].End, "PARSING should be closed by the jump")
	assert.Nil(t, state.Timings[1], "EXTRACTING was never seen and must stay unopened")
	require.NotNil(t, state.Timings[2])
	assert.Nil(t, state.Timings[2].End, "AGGREGATING should still be open")
	assert.Equal(t, 2, state.CurrentPhase())
}

func TestPhaseRegressionIgnored(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)
	defer s.Stop()
	require.NoError(t, s.Start(context.Background(), "a1"))

	ft.send(statusEvent("EXTRACTING"))
	awaitStatus(t, s, model.StatusExtracting)
	ft.send(statusEvent("PARSING"))
	ft.send(statusEvent("AGGREGATING"))
	state := awaitStatus(t, s, model.StatusAggregating)

	assert.Nil(t, state.Timings[0], "regressed PARSING must not open a record")
	require.NotNil(t, state.Timings[1])
	assert.NotNil(t, state.Timings[1].End)
}

func TestThinkingBufferBound(t *testing.T) {
	b := NewBoundedBuffer(100)
	for i := 0; i < 50; i++ {
		b.Append("0123456789")
	}
	assert.Equal(t, 100, b.Len())

	b.Reset()
	b.Append("aaaa")
	b.Append(string(make([]byte, 200)))
	assert.Equal(t, 100, b.Len(), "oversized chunk keeps only its tail")

	b.Reset()
	for i := 0; i < 30; i++ {
		b.Append(fmt.Sprintf("<%02d>", i))
	}
	got := b.String()
	assert.Equal(t, 100, len(got))
	assert.Contains(t, got, "<29>", "most recent content survives")
	assert.NotContains(t, got, "<00>", "oldest content is evicted from the front")
}

func TestThinkingDeltasAccumulateOutOfEventLog(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)
	defer s.Stop()
	require.NoError(t, s.Start(context.Background(), "a1"))

	ft.send(statusEvent("EXTRACTING"))
	ft.send(sse.Event{Name: "thinking", Data: []byte(`{"text":"weighing clause "}`)})
	ft.send(sse.Event{Name: "thinking", Data: []byte(`{"text":"7.2 against policy"}`)})

	require.Eventually(t, func() bool {
		return s.State().Thinking[1] == "weighing clause 7.2 against policy"
	}, 2*time.Second, 5*time.Millisecond)

	state := s.State()
	assert.True(t, state.ThinkingLive)
	assert.Len(t, state.Events, 1, "thinking deltas must not land in the event log")

	ft.send(sse.Event{Name: "thinking", Data: []byte(`{"type":"thinking_done"}`)})
	require.Eventually(t, func() bool {
		return !s.State().ThinkingLive
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSnapshotImmutability(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)
	defer s.Stop()
	require.NoError(t, s.Start(context.Background(), "a1"))

	ft.send(statusEvent("PARSING"))
	ft.send(statusEvent("COMPLETED"))
	state := awaitStatus(t, s, model.StatusCompleted)
	require.NotNil(t, state.Snapshot)
	frozen := len(state.Snapshot.Events)

	// A stray late event on the live side must not show through the snapshot.
	s.mu.Lock()
	s.events = append(s.events, model.StreamEvent{Kind: model.EventOther, ReceivedAt: time.Now()})
	s.mu.Unlock()

	assert.Equal(t, frozen, len(state.Snapshot.Events))
	assert.Equal(t, model.StatusCompleted, state.Snapshot.FinalStatus)
}

func TestParsedDocDedup(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)
	defer s.Stop()
	require.NoError(t, s.Start(context.Background(), "a1"))

	doc := `{"filename":"contract.pdf","pages":12,"format":"pdf"}`
	ft.send(sse.Event{Name: "file_parsed", Data: []byte(doc)})
	ft.send(sse.Event{Name: "file_parsed", Data: []byte(doc)})
	ft.send(sse.Event{Name: "file_parsed", Data: []byte(`{"filename":"annex.docx","pages":3}`)})

	require.Eventually(t, func() bool {
		return len(s.State().ParsedDocs) == 2
	}, 2*time.Second, 5*time.Millisecond)

	state := s.State()
	assert.Equal(t, "contract.pdf", state.ParsedDocs[0].Filename)
	assert.Equal(t, 12, state.ParsedDocs[0].Pages)
	assert.Equal(t, "annex.docx", state.ParsedDocs[1].Filename)
	// Both events were logged even though only one doc record exists.
	assert.Len(t, state.Events, 3)
}

func TestNoSnapshotOnFailure(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)
	defer s.Stop()
	require.NoError(t, s.Start(context.Background(), "a1"))

	ft.send(statusEvent("PARSING"))
	ft.send(sse.Event{Name: "status", Data: []byte(`{"status":"FAILED","message":"parser crashed on page 4"}`)})
	state := awaitStatus(t, s, model.StatusFailed)

	assert.Nil(t, state.Snapshot)
	assert.Equal(t, "parser crashed on page 4", state.ErrorMessage)
	assert.False(t, s.Active(), "FAILED must release the connection")
	// Partial timing survives for diagnostics.
	require.NotNil(t, state.Timings[0])
	assert.Nil(t, state.Timings[0].End)
}

func TestCanceledStopsQuietly(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)
	defer s.Stop()
	require.NoError(t, s.Start(context.Background(), "a1"))

	ft.send(statusEvent("CANCELED"))
	state := awaitStatus(t, s, model.StatusCanceled)

	assert.Empty(t, state.ErrorMessage)
	assert.Nil(t, state.Snapshot)
	assert.False(t, s.Active())
}

func TestMalformedPayloadsDropped(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)
	defer s.Stop()
	require.NoError(t, s.Start(context.Background(), "a1"))

	ft.send(sse.Event{Name: "status", Data: []byte(`{not json`)})
	ft.send(sse.Event{Name: "status", Data: []byte(`{"status":"NO_SUCH_PHASE"}`)})
	ft.send(sse.Event{Name: "file_parsed", Data: []byte(`{"pages":5}`)})
	ft.send(statusEvent("PARSING"))

	state := awaitStatus(t, s, model.StatusParsing)
	assert.Len(t, state.Events, 1, "malformed events must vanish silently")
	assert.Empty(t, state.ParsedDocs)
}

func TestTransportCloseWithoutTerminalStatus(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)
	require.NoError(t, s.Start(context.Background(), "a1"))

	ft.send(statusEvent("EXTRACTING"))
	awaitStatus(t, s, model.StatusExtracting)

	// Server drops the connection mid-run.
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	require.NotNil(t, cancel)
	cancel()

	require.Eventually(t, func() bool {
		return s.State().StreamEnded
	}, 2*time.Second, 5*time.Millisecond)

	state := s.State()
	assert.Equal(t, model.StatusExtracting, state.Status,
		"no terminal status may be synthesized for a dropped stream")
	assert.False(t, s.Active())
}

func TestAlternateStatusEnvelope(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)
	defer s.Stop()
	require.NoError(t, s.Start(context.Background(), "a1"))

	// Status change arriving on the default channel with the enveloped shape.
	ft.send(sse.Event{Data: []byte(`{"event_type":"status_change","new_status":"parsing"}`)})
	state := awaitStatus(t, s, model.StatusParsing)
	require.NotNil(t, state.Timings[0])
}

func TestSubscribePublishesCopies(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)
	defer s.Stop()

	ch, unsub := s.Subscribe()
	defer unsub()

	first := <-ch // primed with current state
	assert.Equal(t, model.StatusQueued, first.Status)

	require.NoError(t, s.Start(context.Background(), "a1"))
	ft.send(statusEvent("PARSING"))
	awaitStatus(t, s, model.StatusParsing)

	deadline := time.After(2 * time.Second)
	var last State
	for last.Status != model.StatusParsing {
		select {
		case st, ok := <-ch:
			require.True(t, ok)
			last = st
		case <-deadline:
			t.Fatal("never observed PARSING on the subscription")
		}
	}

	// Mutating the received copy must not leak into the session.
	if last.Timings[0] != nil {
		bogus := time.Now().Add(time.Hour)
		last.Timings[0].End = &bogus
	}
	assert.Nil(t, s.State().Timings[0].End)
}

func TestEndToEndScenario(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)
	defer s.Stop()
	require.NoError(t, s.Start(context.Background(), "a1"))

	ft.send(statusEvent("PARSING"))
	ft.send(sse.Event{Name: "file_parsed", Data: []byte(`{"filename":"doc.pdf","pages":5,"format":"pdf"}`)})
	ft.send(statusEvent("EXTRACTING"))
	ft.send(statusEvent("COMPLETED"))

	state := awaitStatus(t, s, model.StatusCompleted)

	require.Len(t, state.ParsedDocs, 1)
	assert.Equal(t, "doc.pdf", state.ParsedDocs[0].Filename)
	assert.Equal(t, 5, state.ParsedDocs[0].Pages)

	require.NotNil(t, state.Timings[0])
	require.NotNil(t, state.Timings[0].End)
	require.NotNil(t, state.Timings[1])
	require.NotNil(t, state.Timings[1].End)

	require.NotNil(t, state.Snapshot)
	assert.Equal(t, model.StatusCompleted, state.Snapshot.FinalStatus)
	assert.GreaterOrEqual(t, state.Snapshot.ElapsedSec, 0)
	assert.False(t, s.Active(), "COMPLETED must release the connection")
}

func TestDecodeEventVariants(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		in       sse.Event
		wantKind model.EventKind
		wantOK   bool
	}{
		{"status", sse.Event{Name: "status", Data: []byte(`{"status":"PARSING"}`)}, model.EventStatus, true},
		{"progress", sse.Event{Name: "progress", Data: []byte(`{"stage":"ocr","percent":40}`)}, model.EventProgress, true},
		{"metrics", sse.Event{Name: "metrics", Data: []byte(`{"tokens":1234}`)}, model.EventMetrics, true},
		{"metrics bad json", sse.Event{Name: "metrics", Data: []byte(`{{`)}, "", false},
		{"error event", sse.Event{Name: "error_event", Data: []byte(`{"error":"llm timeout"}`)}, model.EventError, true},
		{"default other", sse.Event{Data: []byte(`{"note":"hello"}`)}, model.EventOther, true},
		{"default garbage", sse.Event{Data: []byte(`no`)}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := decodeEvent(tt.in, now)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantKind, ev.Kind)
				assert.True(t, json.Valid(ev.Raw))
			}
		})
	}
}
