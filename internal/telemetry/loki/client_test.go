package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"didlink/internal/telemetry"
)

func TestClient_PushEventJSON(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/push", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	raw, err := json.Marshal(telemetry.AuthEvent{
		EventType: telemetry.EventMethodActivated, Source: telemetry.Source,
		DID: "did:example:abc123", MethodType: "oauth:github", CreatedAt: at,
	})
	require.NoError(t, err)

	require.NoError(t, NewClient(srv.URL+"/").PushEventJSON(context.Background(), raw))
	require.Len(t, got.Streams, 1)
	s := got.Streams[0]
	assert.Equal(t, map[string]string{
		"job": "didlink", "event_type": "method_activated", "source": "didlink-auth", "method_type": "oauth:github",
	}, s.Stream)
	require.Len(t, s.Values, 1)
	assert.Equal(t, strconv.FormatInt(at.UnixNano(), 10), s.Values[0][0])
	assert.Equal(t, string(raw), s.Values[0][1])
}

func TestClient_PushErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	assert.Error(t, NewClient(srv.URL).PushEventJSON(context.Background(), []byte("not json")))
	assert.Error(t, NewClient("").PushEvent(context.Background(), time.Now(), "x", nil))
}
