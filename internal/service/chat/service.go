package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/apperr"
	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chat"
	"github.com/zhouzirui/synthesis-talk/backend/internal/store/session"
)

var (
	ErrSessionIDRequired = errors.New("session id is required")
	ErrSessionNotFound   = errors.New("session not found")
	ErrNoAssistantReply  = errors.New("no assistant reply to cite")
)

// Service encapsulates conversation state management. All mutations of one
// session key run under that key's lock.
type Service struct {
	store        session.Store
	systemPrompt string
	locks        *keyedMutex
	log          *zap.Logger
}

// NewService wires the session service on top of a store.
func NewService(store session.Store, systemPrompt string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:        store,
		systemPrompt: systemPrompt,
		locks:        newKeyedMutex(),
		log:          log,
	}
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.E(apperr.KindValidation, "session", ErrSessionIDRequired)
	}
	return nil
}

// Get returns a copy of an existing session without creating one.
func (s *Service) Get(ctx context.Context, id string) (*chat.Session, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.E(apperr.KindResource, "session.get", err)
	}
	if sess == nil {
		return nil, apperr.E(apperr.KindNotFound, "session.get", fmt.Errorf("%w: %s", ErrSessionNotFound, id))
	}
	return sess, nil
}

// GetOrCreate returns the session, initializing a new one whose history
// opens with the configured system prompt.
func (s *Service) GetOrCreate(ctx context.Context, id string) (*chat.Session, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(id)
	defer unlock()
	return s.loadOrInit(ctx, id, true)
}

func (s *Service) loadOrInit(ctx context.Context, id string, persist bool) (*chat.Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.E(apperr.KindResource, "session.get", err)
	}
	if sess != nil {
		return sess, nil
	}
	sess = chat.NewSession(id, s.systemPrompt)
	s.log.Info("session created", zap.String("session", id))
	if persist {
		if err := s.store.Save(ctx, sess); err != nil {
			return nil, saveError(err)
		}
	}
	return sess, nil
}

// Update loads (or creates) the session, hands it to fn and saves the
// result. The session is saved even when fn fails so partial progress is
// kept; fn's error is returned.
func (s *Service) Update(ctx context.Context, id string, fn func(*chat.Session) error) error {
	if err := validateID(id); err != nil {
		return err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.loadOrInit(ctx, id, false)
	if err != nil {
		return err
	}

	fnErr := fn(sess)
	sess.UpdatedAt = time.Now().UTC()
	// Save with a context that survives a cancelled request.
	if err := s.store.Save(context.WithoutCancel(ctx), sess); err != nil {
		s.log.Error("save session failed", zap.String("session", id), zap.Error(err))
		if fnErr == nil {
			return saveError(err)
		}
	}
	return fnErr
}

// updateExisting is Update for operations that must not create sessions.
func (s *Service) updateExisting(ctx context.Context, id string, fn func(*chat.Session)) error {
	if err := validateID(id); err != nil {
		return err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return apperr.E(apperr.KindResource, "session.get", err)
	}
	if sess == nil {
		return nil
	}
	fn(sess)
	sess.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(ctx, sess); err != nil {
		return saveError(err)
	}
	return nil
}

// saveError classifies a store write failure. A version conflict means
// another process wrote the session during this request.
func saveError(err error) error {
	if errors.Is(err, session.ErrVersionConflict) {
		return apperr.WithMessage(apperr.KindConflict, "session.save",
			"the session was changed by another request, please retry", err)
	}
	return apperr.E(apperr.KindResource, "session.save", err)
}

// AddNote appends text to the session's notes.
func (s *Service) AddNote(ctx context.Context, id, text string) error {
	return s.Update(ctx, id, func(sess *chat.Session) error {
		sess.Notes = append(sess.Notes, text)
		return nil
	})
}

// Notes lists the saved notes; unknown sessions have none.
func (s *Service) Notes(ctx context.Context, id string) ([]string, error) {
	sess, err := s.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return sess.Notes, nil
}

// ClearNotes empties the notes and leaves citations and history alone.
func (s *Service) ClearNotes(ctx context.Context, id string) error {
	return s.updateExisting(ctx, id, func(sess *chat.Session) {
		sess.Notes = []string{}
	})
}

// AddCitation stores the most recent assistant reply as a citation. When no
// reply exists the citations stay unchanged and ErrNoAssistantReply is
// returned.
func (s *Service) AddCitation(ctx context.Context, id string) (string, error) {
	var cited string
	err := s.Update(ctx, id, func(sess *chat.Session) error {
		reply, ok := sess.LastAssistantReply()
		if !ok {
			return ErrNoAssistantReply
		}
		sess.Citations = append(sess.Citations, reply)
		cited = reply
		return nil
	})
	return cited, err
}

// Citations lists saved citations; unknown sessions have none.
func (s *Service) Citations(ctx context.Context, id string) ([]string, error) {
	sess, err := s.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return sess.Citations, nil
}

// ClearCitations empties the citations.
func (s *Service) ClearCitations(ctx context.Context, id string) error {
	return s.updateExisting(ctx, id, func(sess *chat.Session) {
		sess.Citations = []string{}
	})
}

// SetPendingDocument stores extracted upload text for the next chat turn,
// replacing any document still pending.
func (s *Service) SetPendingDocument(ctx context.Context, id, text string) error {
	return s.Update(ctx, id, func(sess *chat.Session) error {
		sess.SetPendingDocument(text)
		return nil
	})
}

// Transcript returns the user and assistant turns of an existing session.
func (s *Service) Transcript(ctx context.Context, id string) ([]chat.Message, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.Transcript(), nil
}
