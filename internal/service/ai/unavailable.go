package ai

import (
	"context"
	"errors"

	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chart"
	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chat"
	chartsvc "github.com/zhouzirui/synthesis-talk/backend/internal/service/chart"
)

// ErrNotConfigured is returned by Unavailable for every completion.
var ErrNotConfigured = errors.New("completion provider not configured")

// Unavailable stands in for Service when no Ark credentials are set, so the
// commands that need no model keep working.
type Unavailable struct{}

func (Unavailable) Complete(context.Context, []chat.Message) (string, error) {
	return "", ErrNotConfigured
}

func (Unavailable) CompleteStream(context.Context, []chat.Message, func(string)) (string, error) {
	return "", ErrNotConfigured
}

func (Unavailable) ExtractChartData(context.Context, string) (chart.Data, error) {
	return chart.Data{}, errors.Join(chartsvc.ErrExtraction, ErrNotConfigured)
}
