// Package aitest provides a scripted chat model for tests.
package aitest

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Model answers from Respond, or echoes a fixed reply, and records every
// call it receives.
type Model struct {
	mu      sync.Mutex
	Reply   string
	Err     error
	Respond func(input []*schema.Message) (string, error)
	calls   [][]*schema.Message
}

var _ model.BaseChatModel = (*Model)(nil)

func (m *Model) answer(input []*schema.Message) (string, error) {
	m.mu.Lock()
	copied := make([]*schema.Message, len(input))
	copy(copied, input)
	m.calls = append(m.calls, copied)
	respond := m.Respond
	m.mu.Unlock()

	if m.Err != nil {
		return "", m.Err
	}
	if respond != nil {
		return respond(input)
	}
	return m.Reply, nil
}

func (m *Model) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	content, err := m.answer(input)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(content, nil), nil
}

// Stream emits the reply word by word.
func (m *Model) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	content, err := m.answer(input)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitAfter(content, " ")
	chunks := make([]*schema.Message, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		chunks = append(chunks, schema.AssistantMessage(p, nil))
	}
	return schema.StreamReaderFromArray(chunks), nil
}

// Calls returns the inputs of every call so far.
func (m *Model) Calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*schema.Message(nil), m.calls...)
}
