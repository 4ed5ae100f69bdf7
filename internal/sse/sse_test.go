package sse

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveRaw(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}))
}

func collect(t *testing.T, url string) []Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := &Client{}
	events, err := c.Stream(ctx, url)
	require.NoError(t, err)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	return got
}

func TestStreamParsesNamedEvents(t *testing.T) {
	srv := serveRaw(t, strings.Join([]string{
		"event: status",
		`data: {"status":"PARSING"}`,
		"",
		": keepalive comment",
		"",
		`data: {"event_type":"status_change","new_status":"EXTRACTING"}`,
		"",
	}, "\n"))
	defer srv.Close()

	got := collect(t, srv.URL)
	require.Len(t, got, 2)
	assert.Equal(t, "status", got[0].Name)
	assert.JSONEq(t, `{"status":"PARSING"}`, string(got[0].Data))
	assert.Equal(t, "", got[1].Name, "unnamed events arrive on the default channel")
}

func TestStreamMultiLineDataAndCRLF(t *testing.T) {
	srv := serveRaw(t, "event: thinking\r\ndata: line one\r\ndata: line two\r\n\r\n")
	defer srv.Close()

	got := collect(t, srv.URL)
	require.Len(t, got, 1)
	assert.Equal(t, "thinking", got[0].Name)
	assert.Equal(t, "line one\nline two", string(got[0].Data))
}

func TestStreamEventIDAndTrailingEvent(t *testing.T) {
	// No blank line after the last event; it must still be delivered.
	srv := serveRaw(t, "id: 42\ndata: tail\n")
	defer srv.Close()

	got := collect(t, srv.URL)
	require.Len(t, got, 1)
	assert.Equal(t, "42", got[0].ID)
	assert.Equal(t, "tail", string(got[0].Data))
}

func TestStreamRejectsNonStreamResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	c := &Client{}
	_, err := c.Stream(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestStreamContextCancelClosesChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{}
	events, err := c.Stream(ctx, srv.URL)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-events:
		assert.False(t, ok, "channel should close after cancellation")
	case <-time.After(5 * time.Second):
		t.Fatal("channel never closed after context cancel")
	}
}

func TestWriteEventRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEvent(&buf, Event{Name: "progress", ID: "7", Data: []byte("a\nb")}))

	out := buf.String()
	assert.Contains(t, out, "event: progress\n")
	assert.Contains(t, out, "id: 7\n")
	assert.Contains(t, out, "data: a\ndata: b\n")
	assert.True(t, strings.HasSuffix(out, "\n\n"), "events end with a blank line")
}
