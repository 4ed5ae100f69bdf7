// Package stream maintains live state for one analysis run: it owns the push
// connection, folds inbound events into queryable state, tracks per-phase
// timing, and freezes a review snapshot when the run completes.
package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marcobitx/procwatch/internal/model"
	"github.com/marcobitx/procwatch/internal/sse"
)

// DefaultThinkingCap bounds each per-phase reasoning buffer.
const DefaultThinkingCap = 64 * 1024

// Transport opens the push stream for an analysis. The returned channel
// closes when the server ends the stream, the transport errors, or ctx is
// canceled; no error is delivered after the stream is established.
type Transport interface {
	Stream(ctx context.Context, analysisID string) (<-chan sse.Event, error)
}

// Session owns the single live connection and ticker for one analysis run.
// It is safe for concurrent use; all mutation happens through its own
// operations, and consumers only ever see copies via Subscribe or State.
type Session struct {
	transport   Transport
	thinkingCap int

	mu         sync.Mutex
	gen        int                // bumped on every Start; stale goroutines no-op
	cancel     context.CancelFunc // non-nil while the connection lives
	tickerDone chan struct{}      // non-nil while the ticker lives

	analysisID   string
	startedAt    time.Time
	status       model.Status
	errMsg       string
	elapsedSec   int
	streamEnded  bool // transport closed with no terminal status
	thinkingLive bool
	maxPhase     int // highest phase ordinal seen; -1 before the first
	events       []model.StreamEvent
	thinking     [model.NumPhases]*BoundedBuffer
	timings      [model.NumPhases]*model.PhaseTiming
	parsedDocs   []model.ParsedDocInfo
	seenDocs     map[string]bool
	snapshot     *model.Snapshot

	subs    map[int]chan State
	nextSub int
}

// NewSession creates an idle session using t for connections.
func NewSession(t Transport) *Session {
	s := &Session{
		transport:   t,
		thinkingCap: DefaultThinkingCap,
		subs:        make(map[int]chan State),
	}
	s.resetLocked("")
	return s
}

// SetThinkingCap overrides the per-phase reasoning buffer capacity. It only
// affects subsequent Start calls.
func (s *Session) SetThinkingCap(capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thinkingCap = capacity
}

// Start begins streaming for analysisID. Any previous connection and ticker
// are torn down first and all derived state is reset, so Start is always safe
// to call. The stream is consumed on background goroutines; progress is
// observed through Subscribe.
func (s *Session) Start(ctx context.Context, analysisID string) error {
	s.mu.Lock()
	s.stopLocked()
	s.resetLocked(analysisID)
	s.gen++
	gen := s.gen
	s.startedAt = time.Now()
	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	events, err := s.transport.Stream(sctx, analysisID)
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.stopLocked()
		}
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("opening stream for %s: %w", analysisID, err)
	}

	s.mu.Lock()
	if s.gen != gen || s.cancel == nil {
		// A newer Start or an explicit Stop won the race.
		s.mu.Unlock()
		cancel()
		return nil
	}
	done := make(chan struct{})
	s.tickerDone = done
	s.publishLocked()
	s.mu.Unlock()

	go s.readLoop(gen, events)
	go s.tickLoop(gen, done)
	return nil
}

// Stop tears down the connection and ticker if present. Idempotent; a no-op
// when nothing is active. Accumulated state is kept until the next Start.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil && s.tickerDone == nil {
		return
	}
	s.stopLocked()
	s.publishLocked()
}

// Active reports whether a connection currently exists.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Subscribe registers a consumer. The channel is primed with the current
// state and receives a fresh copy after every update; a slow consumer only
// misses intermediate copies, never the latest. The returned func
// unregisters and closes the channel.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan State, 1)
	ch <- s.stateLocked()
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// stopLocked releases the connection and ticker handles. Callers hold s.mu.
func (s *Session) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.tickerDone != nil {
		close(s.tickerDone)
		s.tickerDone = nil
	}
}

// resetLocked clears all derived state for a new run. Callers hold s.mu.
func (s *Session) resetLocked(analysisID string) {
	s.analysisID = analysisID
	s.status = model.StatusQueued
	s.errMsg = ""
	s.elapsedSec = 0
	s.streamEnded = false
	s.thinkingLive = false
	s.maxPhase = -1
	s.events = nil
	for i := range s.thinking {
		s.thinking[i] = NewBoundedBuffer(s.thinkingCap)
	}
	s.timings = [model.NumPhases]*model.PhaseTiming{}
	s.parsedDocs = nil
	s.seenDocs = make(map[string]bool)
	s.snapshot = nil
}

func (s *Session) readLoop(gen int, events <-chan sse.Event) {
	for ev := range events {
		s.handleEvent(gen, ev)
	}
	s.handleStreamClosed(gen)
}

// handleStreamClosed runs cleanup when the transport ends. A close without a
// prior terminal status is inconclusive: no status is synthesized, the
// StreamEnded flag is all the consumer gets.
func (s *Session) handleStreamClosed(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.cancel == nil {
		// A newer run took over, or Stop/terminal handling already cleaned up.
		return
	}
	s.stopLocked()
	if !s.status.Terminal() {
		s.streamEnded = true
	}
	s.publishLocked()
}

// tickLoop recomputes elapsed seconds once per second from the recorded start
// instant, so bursty event delivery cannot drift the clock.
func (s *Session) tickLoop(gen int, done <-chan struct{}) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			s.mu.Lock()
			if gen != s.gen {
				s.mu.Unlock()
				return
			}
			s.elapsedSec = int(time.Since(s.startedAt) / time.Second)
			s.publishLocked()
			s.mu.Unlock()
		}
	}
}

// publishLocked fans the current state out to subscribers. Sends are
// coalescing: a pending unread copy is replaced rather than waited on, so
// ingestion never blocks on a consumer. Callers hold s.mu.
func (s *Session) publishLocked() {
	if len(s.subs) == 0 {
		return
	}
	st := s.stateLocked()
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}
