package sse

import (
	"fmt"
	"io"
)

// Event types written on the stream.
const (
	// EventConnected is sent once when a client connects.
	EventConnected = "connected"
	// EventSnapshot carries the full state a client starts from.
	EventSnapshot = "snapshot"
	// EventChanges carries one batch of bound notifications.
	EventChanges = "changes"
	// EventPage carries the page response after a window is recut.
	EventPage = "page"
	// EventError reports a server side failure before the stream ends.
	EventError = "error"
)

// Event is one server-sent event.
type Event struct {
	Type string
	ID   string
	Data []byte
}

// WriteTo frames e in the text/event-stream format.
func (e Event) WriteTo(w io.Writer) (int64, error) {
	var total int64
	write := func(format string, args ...any) error {
		n, err := fmt.Fprintf(w, format, args...)
		total += int64(n)
		return err
	}
	if e.ID != "" {
		if err := write("id: %s\n", e.ID); err != nil {
			return total, err
		}
	}
	if e.Type != "" {
		if err := write("event: %s\n", e.Type); err != nil {
			return total, err
		}
	}
	err := write("data: %s\n\n", e.Data)
	return total, err
}
