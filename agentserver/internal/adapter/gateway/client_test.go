package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushEventDisabledWithoutURL(t *testing.T) {
	c := NewClient("", nil)
	assert.False(t, c.Enabled())

	delivered, err := c.PushEvent(context.Background(), "s1", map[string]string{"type": "turn_complete"})
	require.NoError(t, err)
	assert.False(t, delivered)
}

func TestPushEventPostsToInternalSend(t *testing.T) {
	var got SendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/send", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(SendResponse{OK: true, Delivered: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", srv.Client())
	delivered, err := c.PushEvent(context.Background(), "s1", map[string]string{"type": "turn_complete"})
	require.NoError(t, err)
	assert.True(t, delivered)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, map[string]interface{}{"type": "turn_complete"}, got.Event)
}

func TestPushEventReportsGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session_id is required", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	_, err := c.PushEvent(context.Background(), "", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "session_id is required")
}

func TestPushEventNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(SendResponse{OK: false})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	_, err := c.PushEvent(context.Background(), "s1", map[string]string{})
	assert.Error(t, err)
}
