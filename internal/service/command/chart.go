package command

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/apperr"
	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chart"
	chatsvc "github.com/zhouzirui/synthesis-talk/backend/internal/service/chat"
)

const msgNoChartData = "no chart data could be extracted"

// chart gathers everything known about the conversation, extracts chart data
// from it and renders the chart type the caller asked for.
func (d *Dispatcher) chart(ctx context.Context, req Request, kind chart.Type) (Reply, error) {
	if d.deps.Charts == nil {
		return Reply{}, apperr.E(apperr.KindResource, "chart", errors.New("chart renderer not configured"))
	}

	text, err := d.gatherChartText(ctx, req)
	if err != nil {
		return Reply{}, err
	}

	data, err := d.deps.Completer.ExtractChartData(ctx, text)
	if err != nil {
		return Reply{}, apperr.WithMessage(apperr.KindUnprocessable, "chart", msgNoChartData, err)
	}
	data.Type = kind

	image, err := d.deps.Charts.Render(data)
	if err != nil {
		return Reply{}, apperr.WithMessage(apperr.KindUnprocessable, "chart", msgNoChartData, err)
	}
	return Reply{Chart: image}, nil
}

// gatherChartText concatenates the pending document (left in place), prior
// user messages, a web search on the message and the message itself.
func (d *Dispatcher) gatherChartText(ctx context.Context, req Request) (string, error) {
	var parts []string

	sess, err := d.deps.Sessions.Get(ctx, req.SessionID)
	switch {
	case errors.Is(err, chatsvc.ErrSessionNotFound):
	case err != nil:
		return "", err
	default:
		if sess.PendingDocument != nil {
			parts = append(parts, *sess.PendingDocument)
		}
		parts = append(parts, sess.UserMessages()...)
	}

	if summary, err := d.deps.Search.Summary(ctx, req.Message); err != nil {
		d.log.Warn("chart search skipped", zap.String("session", req.SessionID), zap.Error(err))
	} else if summary != "" {
		parts = append(parts, summary)
	}

	parts = append(parts, req.Message)
	return strings.Join(parts, "\n"), nil
}
