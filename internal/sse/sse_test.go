package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataOnlyEvents(t *testing.T) {
	input := "data: {\"author\":\"sahabat_orchestrator\"}\n\n" +
		"data: {\"author\":\"specialist_text\"}\n\n"

	var events []Event
	err := Parse(strings.NewReader(input), func(e Event) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, `{"author":"sahabat_orchestrator"}`, events[0].Data)
	assert.Equal(t, `{"author":"specialist_text"}`, events[1].Data)
}

func TestParseMultilineDataAndNamedEvents(t *testing.T) {
	input := "event: delta\n" +
		"id: 7\n" +
		": keep-alive comment\n" +
		"data: first line\n" +
		"data: second line\n\n"

	var got Event
	err := Parse(strings.NewReader(input), func(e Event) error {
		got = e
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "delta", got.Event)
	assert.Equal(t, "7", got.ID)
	assert.Equal(t, "first line\nsecond line", got.Data)
}

func TestParseFlushesTrailingEventWithoutBlankLine(t *testing.T) {
	var count int
	err := Parse(strings.NewReader("data: tail"), func(e Event) error {
		count++
		assert.Equal(t, "tail", e.Data)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestParseStopsOnHandlerError(t *testing.T) {
	stop := errors.New("stop")
	var count int
	err := Parse(strings.NewReader("data: a\n\ndata: b\n\n"), func(e Event) error {
		count++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, count)
}

func TestErrorEventFormat(t *testing.T) {
	got := string(ErrorEvent("Agent service connection error: dial tcp: connection refused"))
	assert.Equal(t, "data: {\"error\": \"Agent service connection error: dial tcp: connection refused\"}\n\n", got)

	payload := strings.TrimSuffix(strings.TrimPrefix(got, "data: "), "\n\n")
	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	assert.Equal(t, "Agent service connection error: dial tcp: connection refused", decoded["error"])
}

func TestErrorEventEscapesQuotes(t *testing.T) {
	got := string(ErrorEvent(`Agent service error: 500 - {"detail":"<boom>"}`))
	assert.Equal(t, "data: {\"error\": \"Agent service error: 500 - {\\\"detail\\\":\\\"<boom>\\\"}\"}\n\n", got)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, map[string]string{"author": "specialist_text"}))
	assert.Equal(t, "data: {\"author\":\"specialist_text\"}\n\n", buf.String())
}
