package command

import (
	"context"
	"errors"
	"strings"

	"github.com/zhouzirui/synthesis-talk/backend/internal/analysis/intent"
	chatsvc "github.com/zhouzirui/synthesis-talk/backend/internal/service/chat"
)

// Acknowledgements returned by the note and citation commands.
const (
	msgNoteSaved        = "Note saved."
	msgNoteEmpty        = "Nothing to note: add the text after \"take note\"."
	msgNoNotes          = "You have no notes yet."
	msgNotesCleared     = "All notes cleared."
	msgCitationSaved    = "Citation saved."
	msgNoRecentReply    = "There is no recent reply to cite yet."
	msgNoCitations      = "You have no citations yet."
	msgCitationsCleared = "All citations cleared."
)

func (d *Dispatcher) takeNote(ctx context.Context, req Request) (Reply, error) {
	text := intent.NoteText(req.Message)
	if text == "" {
		return Reply{Text: msgNoteEmpty}, nil
	}
	if err := d.deps.Sessions.AddNote(ctx, req.SessionID, text); err != nil {
		return Reply{}, err
	}
	return Reply{Text: msgNoteSaved}, nil
}

func (d *Dispatcher) showNotes(ctx context.Context, req Request) (Reply, error) {
	notes, err := d.deps.Sessions.Notes(ctx, req.SessionID)
	if err != nil {
		return Reply{}, err
	}
	if len(notes) == 0 {
		return Reply{Text: msgNoNotes}, nil
	}
	return Reply{Text: bulleted(notes)}, nil
}

func (d *Dispatcher) clearNotes(ctx context.Context, req Request) (Reply, error) {
	if err := d.deps.Sessions.ClearNotes(ctx, req.SessionID); err != nil {
		return Reply{}, err
	}
	return Reply{Text: msgNotesCleared}, nil
}

func (d *Dispatcher) cite(ctx context.Context, req Request) (Reply, error) {
	_, err := d.deps.Sessions.AddCitation(ctx, req.SessionID)
	if errors.Is(err, chatsvc.ErrNoAssistantReply) {
		return Reply{Text: msgNoRecentReply}, nil
	}
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: msgCitationSaved}, nil
}

func (d *Dispatcher) showCitations(ctx context.Context, req Request) (Reply, error) {
	cites, err := d.deps.Sessions.Citations(ctx, req.SessionID)
	if err != nil {
		return Reply{}, err
	}
	if len(cites) == 0 {
		return Reply{Text: msgNoCitations}, nil
	}
	return Reply{Text: bulleted(cites)}, nil
}

func (d *Dispatcher) clearCitations(ctx context.Context, req Request) (Reply, error) {
	if err := d.deps.Sessions.ClearCitations(ctx, req.SessionID); err != nil {
		return Reply{}, err
	}
	return Reply{Text: msgCitationsCleared}, nil
}

func bulleted(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}
