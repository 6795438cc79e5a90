package chat

import "time"

// Session holds the per-key conversation state: the chat history plus the
// notes, citations and pending document that live beside it.
type Session struct {
	ID              string    `json:"id"`
	History         []Message `json:"history"`
	Notes           []string  `json:"notes"`
	Citations       []string  `json:"citations"`
	PendingDocument *string   `json:"pendingDocument,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	// Version counts saves; stores reject a save whose Version is stale.
	Version int64 `json:"version"`
}

// NewSession starts a session whose history opens with the system prompt.
func NewSession(id, systemPrompt string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		History:   []Message{SystemMessage(systemPrompt)},
		Notes:     []string{},
		Citations: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so stores never share slices with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.History = append([]Message(nil), s.History...)
	out.Notes = append([]string(nil), s.Notes...)
	out.Citations = append([]string(nil), s.Citations...)
	if s.PendingDocument != nil {
		doc := *s.PendingDocument
		out.PendingDocument = &doc
	}
	return &out
}

// Append adds a message at the end of the history.
func (s *Session) Append(msg Message) {
	s.History = append(s.History, msg)
}

// InsertInstruction places a system instruction at index 1, right behind the
// system prompt. An identical system message already in the history is moved
// to index 1 instead of being inserted twice, so the latest instruction wins
// and the count stays bounded. The return value reports whether the history
// changed.
func (s *Session) InsertInstruction(content string) bool {
	if len(s.History) == 0 {
		s.History = []Message{SystemMessage(content)}
		return true
	}
	for i := 1; i < len(s.History); i++ {
		msg := s.History[i]
		if msg.Role != RoleSystem || msg.Content != content {
			continue
		}
		if i == 1 {
			return false
		}
		copy(s.History[2:i+1], s.History[1:i])
		s.History[1] = msg
		return true
	}
	s.History = append(s.History, Message{})
	copy(s.History[2:], s.History[1:])
	s.History[1] = SystemMessage(content)
	return true
}

// TakePendingDocument returns the pending document and clears the slot.
func (s *Session) TakePendingDocument() (string, bool) {
	if s.PendingDocument == nil {
		return "", false
	}
	doc := *s.PendingDocument
	s.PendingDocument = nil
	return doc, true
}

// SetPendingDocument replaces any previously pending document.
func (s *Session) SetPendingDocument(text string) {
	s.PendingDocument = &text
}

// LastAssistantReply searches the history from the end for an assistant turn.
func (s *Session) LastAssistantReply() (string, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == RoleAssistant {
			return s.History[i].Content, true
		}
	}
	return "", false
}

// UserMessages returns the content of every user turn in order.
func (s *Session) UserMessages() []string {
	out := make([]string, 0, len(s.History))
	for _, msg := range s.History {
		if msg.Role == RoleUser {
			out = append(out, msg.Content)
		}
	}
	return out
}

// Transcript returns only the user and assistant turns.
func (s *Session) Transcript() []Message {
	out := make([]Message, 0, len(s.History))
	for _, msg := range s.History {
		if msg.Role == RoleUser || msg.Role == RoleAssistant {
			out = append(out, msg)
		}
	}
	return out
}
