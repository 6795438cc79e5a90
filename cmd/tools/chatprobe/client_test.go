package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &client{baseURL: srv.URL + "/", http: srv.Client()}
}

func TestChatDecodesReply(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "s1", body["session_id"])
		_, _ = fmt.Fprint(w, `{"reply":"hi","download":"/exports/a.txt"}`)
	})

	reply, err := c.chat(context.Background(), "s1", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, chatReply{Reply: "hi", Download: "/exports/a.txt"}, reply)
}

func TestAPIErrorCarriesMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = fmt.Fprint(w, `{"error":"upstream service failed"}`)
	})

	_, err := c.chat(context.Background(), "s1", "hello", "")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "upstream service failed", apiErr.Message)
}

func TestStreamParsesEvents(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s1", r.URL.Query().Get("session_id"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "event: start\ndata: {}\n\nevent: delta\ndata: {\"content\":\"a\"}\n\nevent: end\ndata: {}\n\n")
	})

	var events []string
	err := c.stream(context.Background(), "s1", "hi", "", func(event, _ string) {
		events = append(events, event)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "delta", "end"}, events)
}

func TestExportWritesAttachment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="s1_20240101_000000.txt"`)
		_, _ = fmt.Fprint(w, "User:\nhi\n\n")
	})

	dir := t.TempDir()
	path, err := c.export(context.Background(), "s1", "txt", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "s1_20240101_000000.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "User:\nhi\n\n", string(data))
}
