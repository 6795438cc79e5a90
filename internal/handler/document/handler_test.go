package document

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	chatservice "github.com/zhouzirui/synthesis-talk/backend/internal/service/chat"
	docservice "github.com/zhouzirui/synthesis-talk/backend/internal/service/document"
	"github.com/zhouzirui/synthesis-talk/backend/internal/store/session"
)

func setup(t *testing.T, maxBytes int64) (*chi.Mux, *chatservice.Service) {
	t.Helper()
	log := zap.NewNop()
	store := session.NewMemoryStore(time.Hour, time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	sessions := chatservice.NewService(store, "system", log)

	docs, err := docservice.NewService(t.TempDir(), maxBytes, log)
	require.NoError(t, err)

	r := chi.NewRouter()
	New(docs, sessions, maxBytes, log).RegisterRoutes(r)
	return r, sessions
}

func upload(t *testing.T, r http.Handler, sessionID, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if sessionID != "" {
		require.NoError(t, writer.WriteField("session_id", sessionID))
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestUploadTextSetsPendingDocument(t *testing.T) {
	r, sessions := setup(t, 1<<20)

	rec := upload(t, r, "alice", "Notes.TXT", []byte("Revenue grew 10%."))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"File uploaded and processed","session_id":"alice"}`, rec.Body.String())

	sess, err := sessions.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, sess.PendingDocument)
	assert.Equal(t, "Revenue grew 10%.", *sess.PendingDocument)
}

func TestUploadUnsupportedType(t *testing.T) {
	r, sessions := setup(t, 1<<20)

	rec := upload(t, r, "bob", "slides.docx", []byte("x"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	_, err := sessions.Get(context.Background(), "bob")
	assert.ErrorIs(t, err, chatservice.ErrSessionNotFound)
}

func TestUploadCorruptPDF(t *testing.T) {
	r, _ := setup(t, 1<<20)

	rec := upload(t, r, "carol", "paper.pdf", []byte("not really a pdf"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUploadMissingFields(t *testing.T) {
	r, _ := setup(t, 1<<20)

	assert.Equal(t, http.StatusBadRequest, upload(t, r, "", "a.txt", []byte("x")).Code)
	assert.Equal(t, http.StatusBadRequest, upload(t, r, "dave", "", nil).Code)
}

func TestUploadTooLarge(t *testing.T) {
	r, _ := setup(t, 8)

	rec := upload(t, r, "erin", "big.txt", bytes.Repeat([]byte("a"), 64))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
