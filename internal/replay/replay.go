// Package replay implements a local development server that plays a recorded
// event script over the same push endpoint the real analysis backend exposes.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/marcobitx/procwatch/internal/model"
	"github.com/marcobitx/procwatch/internal/sse"
)

// Step is one scripted push event. A zero Delay falls back to the server's
// default inter-event delay.
type Step struct {
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data"`
	Delay int             `json:"delay_ms,omitempty"`
}

// LoadScript reads a script file: one JSON object per line, blank lines and
// #-prefixed lines skipped.
func LoadScript(path string) ([]Step, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening script: %w", err)
	}
	defer f.Close()

	var steps []Step
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		var s Step
		if err := json.Unmarshal(line, &s); err != nil {
			return nil, fmt.Errorf("script line %d: %w", lineNo, err)
		}
		steps = append(steps, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return steps, nil
}

// DemoScript is a small built-in run used when no script file is given.
func DemoScript() []Step {
	raw := []struct{ event, data string }{
		{"status", `{"status":"QUEUED"}`},
		{"status", `{"status":"PARSING"}`},
		{"file_parsed", `{"filename":"framework-agreement.pdf","pages":42,"format":"pdf","size_bytes":1843201,"token_estimate":30500}`},
		{"file_parsed", `{"filename":"price-annex.docx","pages":6,"format":"docx","size_bytes":88412,"token_estimate":4100}`},
		{"status", `{"status":"EXTRACTING"}`},
		{"thinking", `{"text":"Locating the liability cap and indexation clauses. "}`},
		{"thinking", `{"text":"The cap in §11.2 references the annual contract value."}`},
		{"thinking", `{"type":"thinking_done"}`},
		{"progress", `{"stage":"clauses","percent":60,"detail":"18 of 30 clause groups"}`},
		{"status", `{"status":"AGGREGATING"}`},
		{"metrics", `{"prompt_tokens":18240,"completion_tokens":2210}`},
		{"status", `{"status":"EVALUATING"}`},
		{"thinking", `{"text":"Scoring supplier risk against the evaluation matrix."}`},
		{"thinking", `{"type":"thinking_done"}`},
		{"status", `{"status":"COMPLETED"}`},
	}
	steps := make([]Step, len(raw))
	for i, r := range raw {
		steps[i] = Step{Event: r.event, Data: json.RawMessage(r.data)}
	}
	return steps
}

// Server plays a script to any client that attaches to the stream endpoint.
type Server struct {
	addr   string
	steps  []Step
	delay  time.Duration
	mux    *http.ServeMux
	server *http.Server
}

// New creates a replay server. delay is the default pause between events.
func New(addr string, steps []Step, delay time.Duration) *Server {
	s := &Server{addr: addr, steps: steps, delay: delay}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/analyses", s.handleList)
	s.mux.HandleFunc("GET /api/analyses/{id}", s.handleGet)
	s.mux.HandleFunc("GET /api/analyses/{id}/stream", s.handleStream)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	log.Printf("replay server listening on %s (%d scripted events)", s.addr, len(s.steps))
	return s.server.ListenAndServe()
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": []model.Analysis{s.scriptedAnalysis("replay-1")},
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scriptedAnalysis(r.PathValue("id")))
}

// scriptedAnalysis synthesizes the record the real backend would return,
// using the last status in the script as the run's final state.
func (s *Server) scriptedAnalysis(id string) model.Analysis {
	a := model.Analysis{
		ID:        id,
		Name:      "replayed analysis",
		Status:    model.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	for _, step := range s.steps {
		switch step.Event {
		case "status":
			var p struct {
				Status string `json:"status"`
			}
			if json.Unmarshal(step.Data, &p) != nil {
				continue
			}
			if st, err := model.ParseStatus(p.Status); err == nil {
				a.Status = st
			}
		case "file_parsed":
			a.DocCount++
		}
	}
	return a
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	// Opening comment line, as the real backend sends to defeat proxy buffering.
	_ = sse.Heartbeat(w)
	flusher.Flush()

	id := r.PathValue("id")
	log.Printf("replaying %d events to %s for analysis %s", len(s.steps), r.RemoteAddr, id)

	for i, step := range s.steps {
		delay := s.delay
		if step.Delay > 0 {
			delay = time.Duration(step.Delay) * time.Millisecond
		}
		if i > 0 && delay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
		}
		ev := sse.Event{Name: step.Event, Data: step.Data, ID: fmt.Sprintf("%d", i+1)}
		if err := sse.WriteEvent(w, ev); err != nil {
			return
		}
		flusher.Flush()
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
