package command

import (
	"context"
	"errors"

	"go.uber.org/zap"

	chatsvc "github.com/zhouzirui/synthesis-talk/backend/internal/service/chat"
)

const (
	msgExportReady   = "Your conversation has been exported."
	msgNothingExport = "There is no conversation to export for this session yet."
	msgExportFailed  = "The export could not be created. Please try again."
)

func (d *Dispatcher) export(ctx context.Context, req Request, format string) (Reply, error) {
	if d.deps.Exporter == nil {
		return Reply{Text: msgExportFailed}, nil
	}

	artifact, err := d.deps.Exporter.Export(ctx, req.SessionID, format)
	if errors.Is(err, chatsvc.ErrSessionNotFound) {
		return Reply{Text: msgNothingExport}, nil
	}
	if err != nil {
		d.log.Error("export failed", zap.String("session", req.SessionID), zap.String("format", format), zap.Error(err))
		return Reply{Text: msgExportFailed}, nil
	}
	return Reply{Text: msgExportReady, Download: d.deps.DownloadPrefix + artifact.Name}, nil
}
