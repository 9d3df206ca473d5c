// Package sse reads and writes server-sent event streams.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxLineSize bounds a single SSE line. Events carrying inline image data can be large.
const maxLineSize = 16 * 1024 * 1024

// Event represents a parsed SSE event.
type Event struct {
	ID    string
	Event string
	Data  string
}

// Handler is called for each complete event.
type Handler func(event Event) error

// Parse reads an SSE stream and calls handler for each event.
func Parse(reader io.Reader, handler Handler) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var event Event
	for scanner.Scan() {
		line := scanner.Text()

		// Empty line marks end of event
		if line == "" {
			if event.Event != "" || event.Data != "" {
				if err := handler(event); err != nil {
					return err
				}
				event = Event{}
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "id:"):
			event.ID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if event.Data != "" {
				event.Data += "\n" + data
			} else {
				event.Data = data
			}
		}
		// Comments (":" prefix) and unknown fields are ignored.
	}

	if event.Event != "" || event.Data != "" {
		if err := handler(event); err != nil {
			return err
		}
	}

	return scanner.Err()
}

// WriteData writes one data-only event.
func WriteData(w io.Writer, data []byte) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// WriteJSON marshals v and writes it as one data-only event.
func WriteJSON(w io.Writer, v any) error {
	data, err := marshal(v)
	if err != nil {
		return err
	}
	return WriteData(w, data)
}

// ErrorEvent formats the terminal error event relayed to stream consumers:
//
//	data: {"error": "<message>"}\n\n
func ErrorEvent(message string) []byte {
	quoted, err := marshal(message)
	if err != nil {
		quoted = []byte(`""`)
	}
	return []byte(fmt.Sprintf("data: {\"error\": %s}\n\n", quoted))
}

// marshal encodes without HTML escaping so relayed text stays readable.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
