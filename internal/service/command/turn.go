package command

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/analysis/intent"
	"github.com/zhouzirui/synthesis-talk/backend/internal/apperr"
	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chat"
	"github.com/zhouzirui/synthesis-talk/backend/internal/service/ai"
)

// chat runs the default turn. The session lock is held for the whole turn
// and whatever state was reached is saved even when a step fails.
func (d *Dispatcher) chat(ctx context.Context, req Request, onDelta func(string)) (Reply, error) {
	var reply string
	err := d.deps.Sessions.Update(ctx, req.SessionID, func(sess *chat.Session) error {
		if intent.WantsChainOfThought(req.Message) {
			sess.InsertInstruction(ai.ChainOfThoughtInstruction)
		}
		if instruction, ok := ai.FormatInstruction(strings.ToLower(strings.TrimSpace(req.Format))); ok {
			sess.InsertInstruction(instruction)
		}
		if doc, ok := sess.TakePendingDocument(); ok {
			sess.Append(chat.SystemMessage(ai.DocumentContext(doc)))
		}

		summary, err := d.deps.Search.Summary(ctx, req.Message)
		if err != nil {
			return apperr.E(apperr.KindUpstream, "search", err)
		}
		if summary != "" {
			sess.Append(chat.SystemMessage(ai.SearchContext(summary)))
		}

		sess.Append(chat.UserMessage(req.Message))

		if onDelta != nil {
			reply, err = d.deps.Completer.CompleteStream(ctx, sess.History, onDelta)
		} else {
			reply, err = d.deps.Completer.Complete(ctx, sess.History)
		}
		if err != nil {
			return apperr.E(apperr.KindUpstream, "completion", err)
		}

		sess.Append(chat.AssistantMessage(reply))
		return nil
	})
	if err != nil {
		return Reply{}, err
	}

	d.log.Info("chat turn completed", zap.String("session", req.SessionID), zap.Int("reply_length", len(reply)))
	return Reply{Text: reply}, nil
}
