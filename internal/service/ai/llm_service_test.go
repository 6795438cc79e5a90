package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chart"
	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chat"
	"github.com/zhouzirui/synthesis-talk/backend/internal/service/ai/aitest"
	chartsvc "github.com/zhouzirui/synthesis-talk/backend/internal/service/chart"
)

func newTestService(t *testing.T, m *aitest.Model, opts Options) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), m, opts, zap.NewNop())
	require.NoError(t, err)
	return svc
}

var history = []chat.Message{
	chat.SystemMessage("You are a helpful research assistant."),
	chat.UserMessage("What is Go?"),
}

func TestCompleteSendsFullHistory(t *testing.T) {
	m := &aitest.Model{Reply: "A programming language."}
	svc := newTestService(t, m, Options{})

	reply, err := svc.Complete(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "A programming language.", reply)

	calls := m.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 2)
	assert.Equal(t, schema.System, calls[0][0].Role)
	assert.Equal(t, "What is Go?", calls[0][1].Content)
}

func TestCompleteProviderError(t *testing.T) {
	svc := newTestService(t, &aitest.Model{Err: errors.New("503")}, Options{})

	_, err := svc.Complete(context.Background(), history)
	assert.Error(t, err)
}

func TestCompleteEmptyReply(t *testing.T) {
	svc := newTestService(t, &aitest.Model{Reply: "  "}, Options{})

	_, err := svc.Complete(context.Background(), history)
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestCompleteStreamForwardsDeltas(t *testing.T) {
	m := &aitest.Model{Reply: "one two three"}
	svc := newTestService(t, m, Options{Streaming: true})

	var deltas []string
	reply, err := svc.CompleteStream(context.Background(), history, func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	assert.Equal(t, "one two three", reply)
	assert.Equal(t, []string{"one ", "two ", "three"}, deltas)
}

func TestCompleteStreamDisabledSendsSingleDelta(t *testing.T) {
	svc := newTestService(t, &aitest.Model{Reply: "one two"}, Options{})

	var deltas []string
	_, err := svc.CompleteStream(context.Background(), history, func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one two"}, deltas)
}

func TestSelfReflectionUsesRevision(t *testing.T) {
	m := &aitest.Model{Respond: func(input []*schema.Message) (string, error) {
		if len(input) == 2 && strings.Contains(input[1].Content, "Draft answer:") {
			assert.Contains(t, input[1].Content, "What is Go?")
			return "  Revised answer.  ", nil
		}
		return "Draft.", nil
	}}
	svc := newTestService(t, m, Options{SelfReflection: true})

	reply, err := svc.Complete(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "Revised answer.", reply)
	assert.Len(t, m.Calls(), 2)
}

func TestStreamWithReflectionDeliversOnlyRevision(t *testing.T) {
	m := &aitest.Model{Respond: func(input []*schema.Message) (string, error) {
		if len(input) == 2 && strings.Contains(input[1].Content, "Draft answer:") {
			return "Revised answer.", nil
		}
		return "Draft answer text.", nil
	}}
	svc := newTestService(t, m, Options{Streaming: true, SelfReflection: true})

	var deltas []string
	reply, err := svc.CompleteStream(context.Background(), history, func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	assert.Equal(t, "Revised answer.", reply)
	assert.Equal(t, []string{"Revised answer."}, deltas)
}

func TestReflectKeepsDraftWhenUnchanged(t *testing.T) {
	svc := newTestService(t, &aitest.Model{Reply: "\nSame answer.\n"}, Options{})

	out, err := svc.Reflect(context.Background(), "q", "Same answer.")
	require.NoError(t, err)
	assert.Equal(t, "Same answer.", out)
}

func TestExtractChartData(t *testing.T) {
	m := &aitest.Model{Reply: "Here you go: {\"type\": \"bar\", \"labels\": [\"A\", \"B\"], \"values\": [10, 20]}"}
	svc := newTestService(t, m, Options{})

	data, err := svc.ExtractChartData(context.Background(), "A is 10 and B is 20")
	require.NoError(t, err)
	assert.Equal(t, chart.Bar, data.Type)
	assert.Equal(t, []string{"A", "B"}, data.Labels)
	assert.Equal(t, []float64{10, 20}, data.Values)

	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0][0].Content, "data analyst")
	assert.Equal(t, "A is 10 and B is 20", calls[0][1].Content)
}

func TestExtractChartDataErrors(t *testing.T) {
	svc := newTestService(t, &aitest.Model{Reply: "null"}, Options{})
	_, err := svc.ExtractChartData(context.Background(), "nothing")
	assert.ErrorIs(t, err, chartsvc.ErrNoChartData)

	svc = newTestService(t, &aitest.Model{Err: errors.New("timeout")}, Options{})
	_, err = svc.ExtractChartData(context.Background(), "nothing")
	assert.ErrorIs(t, err, chartsvc.ErrExtraction)
}

func TestDocumentContextTruncatesRunes(t *testing.T) {
	doc := strings.Repeat("é", DocumentExcerptRunes+10)
	got := DocumentContext(doc)
	assert.True(t, strings.HasPrefix(got, "The user uploaded the following document:\n"))
	assert.Equal(t, DocumentExcerptRunes, len([]rune(strings.TrimPrefix(got, "The user uploaded the following document:\n"))))
}

func TestFormatInstruction(t *testing.T) {
	got, ok := FormatInstruction("bullet")
	assert.True(t, ok)
	assert.Equal(t, BulletInstruction, got)
	_, ok = FormatInstruction("bar")
	assert.False(t, ok)
}
