package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/creatorlive/broadcaster/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "platform-token", 2*time.Second, zap.NewNop())
}

func TestCreateSession(t *testing.T) {
	var gotPath, gotAuth string
	var gotCfg models.StreamConfig
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotCfg))
		json.NewEncoder(w).Encode(models.StreamSession{
			SessionID:    "s1",
			StreamID:     "st1",
			BroadcastKey: "bk-secret",
			ICEServers:   []models.ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}},
		})
	})

	sess, err := client.CreateSession(context.Background(), models.StreamConfig{
		Title:          "friday night",
		Visibility:     "subscribers",
		PricePerMinute: 199,
	})
	require.NoError(t, err)
	require.Equal(t, "POST /streams/create", gotPath)
	require.Equal(t, "Bearer platform-token", gotAuth)
	require.Equal(t, "friday night", gotCfg.Title)
	require.Equal(t, "s1", sess.SessionID)
	require.Equal(t, "st1", sess.StreamID)
	require.Equal(t, "bk-secret", sess.BroadcastKey)
	require.Len(t, sess.ICEServers, 1)
}

func TestCreateSessionRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "title required"})
	})

	_, err := client.CreateSession(context.Background(), models.StreamConfig{})
	require.Error(t, err)
	var regErr *Error
	require.True(t, errors.As(err, &regErr))
	require.Equal(t, http.StatusUnprocessableEntity, regErr.StatusCode)
	require.Equal(t, "title required", regErr.Message)
}

func TestStartAndEndSession(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.StartSession(context.Background(), "s1"))
	require.NoError(t, client.EndSession(context.Background(), "s1"))
	require.Equal(t, []string{"POST /streams/s1/start", "POST /streams/s1/end"}, paths)
}

func TestEndSessionAlreadyEnded(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "session already ended"})
	})

	err := client.EndSession(context.Background(), "s1")
	var regErr *Error
	require.True(t, errors.As(err, &regErr))
	require.Equal(t, http.StatusConflict, regErr.StatusCode)
}

func TestStreamAnalytics(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "GET /streams/st1/analytics", r.Method+" "+r.URL.Path)
		json.NewEncoder(w).Encode(models.AnalyticsSnapshot{
			Engagement:  0.42,
			ViewerCount: 17,
			Revenue:     2500,
		})
	})

	snap, err := client.StreamAnalytics(context.Background(), "st1")
	require.NoError(t, err)
	require.Equal(t, 17, snap.ViewerCount)
	require.Equal(t, int64(2500), snap.Revenue)
	require.InDelta(t, 0.42, snap.Engagement, 1e-9)
}

func TestTransportFailure(t *testing.T) {
	client := New("http://127.0.0.1:1", "", 200*time.Millisecond, zap.NewNop())
	_, err := client.CreateSession(context.Background(), models.StreamConfig{Title: "x"})
	var regErr *Error
	require.True(t, errors.As(err, &regErr))
	require.Zero(t, regErr.StatusCode)
}
