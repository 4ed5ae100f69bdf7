// Package sse implements a client for the text/event-stream protocol used by
// the analysis backend's push endpoint.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Event is one decoded server-sent event.
type Event struct {
	// Name is the event: field, or "" for the default channel.
	Name string
	// Data is the joined data: payload (multi-line data joined with \n).
	Data []byte
	// ID is the last-event-id, if the server sent one.
	ID string
}

// Client opens event streams over HTTP.
type Client struct {
	// HTTPClient is used for requests. Nil means a client with no timeout,
	// since event streams are long-lived by design.
	HTTPClient *http.Client
}

// Stream issues a GET to url and delivers decoded events on the returned
// channel. The channel closes when the server ends the stream, the transport
// errors, or ctx is canceled. A non-2xx response or connect failure is
// reported immediately; errors after the stream is established are not — the
// caller observes them only as the channel closing.
func (c *Client) Stream(ctx context.Context, url string) (<-chan Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 0}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream endpoint returned %s", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected content type %q", ct)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		readLoop(ctx, resp.Body, events)
	}()
	return events, nil
}

func readLoop(ctx context.Context, body io.Reader, events chan<- Event) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		name    string
		data    [][]byte
		lastID  string
		anyData bool
	)
	flush := func() {
		if !anyData {
			// Per protocol, an event with no data: lines dispatches nothing.
			name = ""
			return
		}
		ev := Event{Name: name, Data: bytes.Join(data, []byte("\n")), ID: lastID}
		select {
		case events <- ev:
		case <-ctx.Done():
		}
		name = ""
		data = data[:0]
		anyData = false
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := bytes.TrimSuffix(scanner.Bytes(), []byte("\r"))

		switch {
		case len(line) == 0:
			flush()
		case line[0] == ':':
			// Comment / keepalive.
		default:
			field, value := splitField(line)
			switch field {
			case "event":
				name = value
			case "data":
				data = append(data, []byte(value))
				anyData = true
			case "id":
				lastID = value
			case "retry":
				// Reconnect hints are the caller's concern; ignored here.
			}
		}
	}
	// Trailing event without a final blank line still counts.
	flush()
}

// splitField splits "field: value", trimming the single optional space after
// the colon as the protocol specifies.
func splitField(line []byte) (string, string) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return string(line), ""
	}
	value := line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:i]), string(value)
}

// WriteEvent encodes one event in wire format to a flushing writer. It is the
// producer-side counterpart of Stream, used by the replay server and tests.
func WriteEvent(w io.Writer, ev Event) error {
	var b strings.Builder
	if ev.Name != "" {
		b.WriteString("event: ")
		b.WriteString(ev.Name)
		b.WriteByte('\n')
	}
	if ev.ID != "" {
		b.WriteString("id: ")
		b.WriteString(ev.ID)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(string(ev.Data), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := w.Write([]byte(b.String()))
	return err
}

// Heartbeat writes a comment line, keeping idle connections alive.
func Heartbeat(w io.Writer) error {
	_, err := w.Write([]byte(": ping " + time.Now().UTC().Format(time.RFC3339) + "\n\n"))
	return err
}
