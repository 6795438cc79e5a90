package chat_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/apperr"
	model "github.com/zhouzirui/synthesis-talk/backend/internal/model/chat"
	chat "github.com/zhouzirui/synthesis-talk/backend/internal/service/chat"
	"github.com/zhouzirui/synthesis-talk/backend/internal/store/session"
)

const prompt = "You are a helpful research assistant."

func newService(t *testing.T) (*chat.Service, session.Store) {
	t.Helper()
	store := session.NewMemoryStore(time.Hour, time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	return chat.NewService(store, prompt, zap.NewNop()), store
}

func TestGetOrCreateInitializesSystemPrompt(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	sess, err := svc.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, sess.History, 1)
	assert.Equal(t, model.SystemMessage(prompt), sess.History[0])

	again, err := svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, sess.History, again.History)
}

func TestGetUnknownSession(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, chat.ErrSessionNotFound)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestEmptySessionIDRejected(t *testing.T) {
	svc, _ := newService(t)

	err := svc.AddNote(context.Background(), "  ", "x")
	require.ErrorIs(t, err, chat.ErrSessionIDRequired)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestNotesLifecycle(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	notes, err := svc.Notes(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, notes)
	_, err = svc.Get(ctx, "bob")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound, "reading notes must not create a session")

	require.NoError(t, svc.AddNote(ctx, "bob", "first"))
	require.NoError(t, svc.AddNote(ctx, "bob", "second"))
	notes, err = svc.Notes(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, notes)

	require.NoError(t, svc.ClearNotes(ctx, "bob"))
	notes, err = svc.Notes(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestCitationWithoutReplyLeavesCitationsUnchanged(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.AddCitation(ctx, "carol")
	require.ErrorIs(t, err, chat.ErrNoAssistantReply)

	cites, err := svc.Citations(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, cites)
}

func TestCitationUsesLatestReply(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddNote(ctx, "dave", "kept"))
	require.NoError(t, svc.Update(ctx, "dave", func(s *model.Session) error {
		s.Append(model.UserMessage("q1"))
		s.Append(model.AssistantMessage("a1"))
		s.Append(model.UserMessage("q2"))
		s.Append(model.AssistantMessage("a2"))
		return nil
	}))

	cited, err := svc.AddCitation(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, "a2", cited)

	require.NoError(t, svc.ClearCitations(ctx, "dave"))
	cites, err := svc.Citations(ctx, "dave")
	require.NoError(t, err)
	assert.Empty(t, cites)

	notes, err := svc.Notes(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, notes, "clearing citations must not touch notes")

	sess, err := svc.Get(ctx, "dave")
	require.NoError(t, err)
	assert.Len(t, sess.History, 5)
}

func TestUpdateSavesOnFailure(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := svc.Update(ctx, "erin", func(s *model.Session) error {
		s.Append(model.UserMessage("partial"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	sess, err := svc.Get(ctx, "erin")
	require.NoError(t, err)
	assert.Equal(t, "partial", sess.History[len(sess.History)-1].Content)
}

func TestUpdateReportsConcurrentWriter(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.AddNote(ctx, "fay", "first"))

	err := svc.Update(ctx, "fay", func(s *model.Session) error {
		// another process writes the same session mid-turn
		other, err := store.Get(ctx, "fay")
		require.NoError(t, err)
		other.Notes = append(other.Notes, "other")
		require.NoError(t, store.Save(ctx, other))

		s.Notes = append(s.Notes, "mine")
		return nil
	})
	require.ErrorIs(t, err, session.ErrVersionConflict)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, http.StatusConflict, apperr.StatusCode(err))

	notes, err := svc.Notes(ctx, "fay")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "other"}, notes)
}

func TestTranscriptFiltersSystemMessages(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Transcript(ctx, "nobody")
	require.ErrorIs(t, err, chat.ErrSessionNotFound)

	require.NoError(t, svc.Update(ctx, "frank", func(s *model.Session) error {
		s.InsertInstruction("be brief")
		s.Append(model.UserMessage("hi"))
		s.Append(model.AssistantMessage("hello"))
		return nil
	}))
	msgs, err := svc.Transcript(ctx, "frank")
	require.NoError(t, err)
	assert.Equal(t, []model.Message{model.UserMessage("hi"), model.AssistantMessage("hello")}, msgs)
}

func TestPendingDocumentReplaced(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetPendingDocument(ctx, "gina", "old"))
	require.NoError(t, svc.SetPendingDocument(ctx, "gina", "new"))

	sess, err := svc.Get(ctx, "gina")
	require.NoError(t, err)
	require.NotNil(t, sess.PendingDocument)
	assert.Equal(t, "new", *sess.PendingDocument)
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, svc.AddNote(ctx, "shared", fmt.Sprintf("note-%d", i)))
		}(i)
	}
	wg.Wait()

	notes, err := svc.Notes(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, notes, workers)
}
