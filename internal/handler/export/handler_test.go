package export

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/synthesis-talk/backend/internal/service/chat"
	exportservice "github.com/zhouzirui/synthesis-talk/backend/internal/service/export"
	"github.com/zhouzirui/synthesis-talk/backend/internal/store/session"
)

func setup(t *testing.T) (*chi.Mux, *chatservice.Service, string) {
	t.Helper()
	log := zap.NewNop()
	store := session.NewMemoryStore(time.Hour, time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	sessions := chatservice.NewService(store, "system", log)

	dir := t.TempDir()
	exporter, err := exportservice.NewExporter(dir, sessions, log)
	require.NoError(t, err)

	r := chi.NewRouter()
	New(exporter, log).RegisterRoutes(r)
	return r, sessions, dir
}

func postExport(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/export", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestExportUnknownSession(t *testing.T) {
	r, _, dir := setup(t)

	rec := postExport(r, `{"session_id":"ghost","format":"pdf"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "session not found")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExportTextDownload(t *testing.T) {
	r, sessions, _ := setup(t)
	require.NoError(t, sessions.Update(context.Background(), "alice", func(s *chat.Session) error {
		s.Append(chat.UserMessage("hi"))
		s.Append(chat.AssistantMessage("hello"))
		return nil
	}))

	rec := postExport(r, `{"session_id":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User:\nhi\n\nAssistant:\nhello\n\n", rec.Body.String())
	disposition := rec.Header().Get("Content-Disposition")
	assert.True(t, strings.HasPrefix(disposition, `attachment; filename="alice_`), disposition)

	name := strings.TrimSuffix(strings.TrimPrefix(disposition, `attachment; filename="`), `"`)
	get := httptest.NewRecorder()
	r.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/exports/"+name, nil))
	assert.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, rec.Body.String(), get.Body.String())
}

func TestExportValidation(t *testing.T) {
	r, _, _ := setup(t)

	assert.Equal(t, http.StatusBadRequest, postExport(r, `{"format":"txt"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postExport(r, `{"session_id":"a","format":"docx"}`).Code)
}

func TestDownloadRejectsUnknownNames(t *testing.T) {
	r, _, _ := setup(t)

	for _, name := range []string{"missing_20240101_000000.txt", "..%2Fsecret.txt", "notes.md"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/exports/"+name, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, name)
	}
}
