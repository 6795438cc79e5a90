// Package command routes a chat request to the branch it asks for and runs
// that branch against the session state.
package command

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/analysis/intent"
	"github.com/zhouzirui/synthesis-talk/backend/internal/apperr"
	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chart"
	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chat"
	chatsvc "github.com/zhouzirui/synthesis-talk/backend/internal/service/chat"
	"github.com/zhouzirui/synthesis-talk/backend/internal/service/export"
)

// Completer is the completion provider as the dispatcher uses it.
type Completer interface {
	Complete(ctx context.Context, history []chat.Message) (string, error)
	CompleteStream(ctx context.Context, history []chat.Message, onDelta func(string)) (string, error)
	ExtractChartData(ctx context.Context, text string) (chart.Data, error)
}

// Searcher returns a formatted web search summary, empty when nothing matched.
type Searcher interface {
	Summary(ctx context.Context, query string) (string, error)
}

// ChartRenderer turns chart data into an embeddable image.
type ChartRenderer interface {
	Render(data chart.Data) (string, error)
}

// Exporter writes a session transcript to a file.
type Exporter interface {
	Export(ctx context.Context, sessionID, format string) (export.Artifact, error)
}

// Request is one inbound chat message.
type Request struct {
	SessionID string
	Message   string
	Format    string
}

// Reply is the result of a handled request. Exactly one of Text or Chart is
// set; Download accompanies a successful export.
type Reply struct {
	Intent   intent.Intent `json:"-"`
	Text     string        `json:"reply,omitempty"`
	Chart    string        `json:"chart,omitempty"`
	Download string        `json:"download,omitempty"`
}

// Dependencies groups the collaborators of a Dispatcher.
type Dependencies struct {
	Sessions  *chatsvc.Service
	Completer Completer
	Search    Searcher
	Charts    ChartRenderer
	Exporter  Exporter
	// DownloadPrefix is prepended to export file names, e.g. "/exports/".
	DownloadPrefix string
	Logger         *zap.Logger
}

// Dispatcher handles chat requests.
type Dispatcher struct {
	deps Dependencies
	log  *zap.Logger
}

// NewDispatcher validates deps and builds a dispatcher.
func NewDispatcher(deps Dependencies) (*Dispatcher, error) {
	if deps.Sessions == nil || deps.Completer == nil {
		return nil, errors.New("sessions and completer are required")
	}
	if deps.Search == nil {
		deps.Search = noSearch{}
	}
	if deps.DownloadPrefix == "" {
		deps.DownloadPrefix = "/exports/"
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{deps: deps, log: log}, nil
}

type noSearch struct{}

func (noSearch) Summary(context.Context, string) (string, error) { return "", nil }

// Handle runs the request and returns the complete reply.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (Reply, error) {
	return d.HandleStream(ctx, req, nil)
}

// HandleStream is Handle with chat completion deltas forwarded to onDelta.
// Command branches never produce deltas.
func (d *Dispatcher) HandleStream(ctx context.Context, req Request, onDelta func(string)) (Reply, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return Reply{}, apperr.E(apperr.KindValidation, "chat", chatsvc.ErrSessionIDRequired)
	}
	if strings.TrimSpace(req.Message) == "" && !isChartHint(req.Format) {
		return Reply{}, apperr.E(apperr.KindValidation, "chat", errors.New("message is required"))
	}

	decision := intent.Classify(req.Message, req.Format)
	log := d.log.With(zap.String("session", req.SessionID), zap.String("intent", string(decision.Intent)))
	log.Debug("request classified")

	var (
		reply Reply
		err   error
	)
	switch decision.Intent {
	case intent.Note:
		reply, err = d.takeNote(ctx, req)
	case intent.ShowNotes:
		reply, err = d.showNotes(ctx, req)
	case intent.ClearNotes:
		reply, err = d.clearNotes(ctx, req)
	case intent.Citation:
		reply, err = d.cite(ctx, req)
	case intent.ShowCitations:
		reply, err = d.showCitations(ctx, req)
	case intent.ClearCitations:
		reply, err = d.clearCitations(ctx, req)
	case intent.Chart:
		reply, err = d.chart(ctx, req, decision.ChartType)
	case intent.Export:
		reply, err = d.export(ctx, req, decision.ExportFormat)
	default:
		reply, err = d.chat(ctx, req, onDelta)
	}
	if err != nil {
		log.Warn("request failed", zap.Error(err))
		return Reply{}, err
	}
	reply.Intent = decision.Intent
	return reply, nil
}

func isChartHint(format string) bool {
	_, ok := chart.ParseType(format)
	return ok
}
