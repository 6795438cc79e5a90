// Package ai talks to the completion provider: plain completions over a
// session history, the self-reflection pass and chart data extraction.
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chart"
	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chat"
	chartsvc "github.com/zhouzirui/synthesis-talk/backend/internal/service/chart"
)

// ErrEmptyReply is returned when the provider answers without content.
var ErrEmptyReply = errors.New("completion returned no content")

// Options tunes the completion behaviour.
type Options struct {
	Streaming      bool
	SelfReflection bool
}

// Service encapsulates AI-powered completion functionality.
type Service struct {
	chatModel model.BaseChatModel
	opts      Options
	reflect   compose.Runnable[map[string]any, *schema.Message]
	extract   compose.Runnable[map[string]any, *schema.Message]
	tracer    trace.Tracer
	log       *zap.Logger
}

// NewService compiles the reflection and extraction chains around chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel, opts Options, log *zap.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	reflect, err := compileTwoMessageChain(ctx, chatModel, "{instruction}", reflectionInput)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reflection chain: %w", err)
	}
	extract, err := compileTwoMessageChain(ctx, chatModel, "{instruction}", "{input}")
	if err != nil {
		return nil, fmt.Errorf("failed to compile extraction chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		opts:      opts,
		reflect:   reflect,
		extract:   extract,
		tracer:    otel.Tracer("synthesis-talk/ai"),
		log:       log,
	}, nil
}

func compileTwoMessageChain(ctx context.Context, chatModel model.BaseChatModel, system, user string) (compose.Runnable[map[string]any, *schema.Message], error) {
	tpl := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(tpl)
	chain.AppendChatModel(chatModel)
	return chain.Compile(ctx)
}

// StreamingEnabled 指示是否向调用方逐段推送回复。
func (s *Service) StreamingEnabled() bool {
	return s.opts.Streaming
}

// Complete sends the whole history and returns the first choice's content,
// after the optional self-reflection pass.
func (s *Service) Complete(ctx context.Context, history []chat.Message) (string, error) {
	ctx, span := s.tracer.Start(ctx, "ai.complete", trace.WithAttributes(attribute.Int("messages", len(history))))
	defer span.End()

	resp, err := s.chatModel.Generate(ctx, toSchema(history))
	if err != nil {
		recordErr(span, err)
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		recordErr(span, ErrEmptyReply)
		return "", ErrEmptyReply
	}

	reply := s.maybeReflect(ctx, history, resp.Content)
	s.log.Debug("completion generated", zap.Int("length", len(reply)))
	return reply, nil
}

// CompleteStream is Complete with deltas forwarded to onDelta as they
// arrive. The full reply is still returned. With streaming disabled, or when
// self-reflection may rewrite the draft, the final reply is delivered as a
// single delta so the deltas always add up to the returned text.
func (s *Service) CompleteStream(ctx context.Context, history []chat.Message, onDelta func(string)) (string, error) {
	if !s.StreamingEnabled() || s.opts.SelfReflection {
		reply, err := s.Complete(ctx, history)
		if err == nil && onDelta != nil {
			onDelta(reply)
		}
		return reply, err
	}

	ctx, span := s.tracer.Start(ctx, "ai.stream", trace.WithAttributes(attribute.Int("messages", len(history))))
	defer span.End()

	stream, err := s.chatModel.Stream(ctx, toSchema(history))
	if err != nil {
		recordErr(span, err)
		return "", fmt.Errorf("failed to stream completion: %w", err)
	}
	defer stream.Close()

	var chunks []*schema.Message
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			recordErr(span, recvErr)
			return "", fmt.Errorf("failed to read completion stream: %w", recvErr)
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" && onDelta != nil {
			onDelta(chunk.Content)
		}
	}
	if len(chunks) == 0 {
		recordErr(span, ErrEmptyReply)
		return "", ErrEmptyReply
	}

	full, err := schema.ConcatMessages(chunks)
	if err != nil {
		recordErr(span, err)
		return "", fmt.Errorf("failed to merge completion stream: %w", err)
	}
	if strings.TrimSpace(full.Content) == "" {
		return "", ErrEmptyReply
	}

	return full.Content, nil
}

func (s *Service) maybeReflect(ctx context.Context, history []chat.Message, draft string) string {
	if !s.opts.SelfReflection {
		return draft
	}
	revised, err := s.Reflect(ctx, lastUserMessage(history), draft)
	if err != nil {
		// The first reply stands when the review call fails.
		s.log.Warn("self reflection failed", zap.Error(err))
		return draft
	}
	return revised
}

// Reflect asks the model to critique and revise draft. The revision is used
// only when it differs from the draft after trimming whitespace.
func (s *Service) Reflect(ctx context.Context, question, draft string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "ai.reflect")
	defer span.End()

	resp, err := s.reflect.Invoke(ctx, map[string]any{
		"instruction": reflectionPrompt,
		"question":    question,
		"draft":       draft,
	})
	if err != nil {
		recordErr(span, err)
		return "", fmt.Errorf("failed to run reflection chain: %w", err)
	}

	revised := strings.TrimSpace(resp.Content)
	if revised == "" || revised == strings.TrimSpace(draft) {
		return draft, nil
	}
	span.SetAttributes(attribute.Bool("revised", true))
	return revised, nil
}

// ExtractChartData asks the model for {type, labels, values} found in text.
// Call failures wrap chartsvc.ErrExtraction; unusable payloads wrap
// chartsvc.ErrNoChartData.
func (s *Service) ExtractChartData(ctx context.Context, text string) (chart.Data, error) {
	ctx, span := s.tracer.Start(ctx, "ai.extract_chart", trace.WithAttributes(attribute.Int("input_length", len(text))))
	defer span.End()

	resp, err := s.extract.Invoke(ctx, map[string]any{
		"instruction": chartExtractionPrompt,
		"input":       text,
	})
	if err != nil {
		recordErr(span, err)
		return chart.Data{}, fmt.Errorf("%w: %v", chartsvc.ErrExtraction, err)
	}

	data, err := chartsvc.Parse(resp.Content)
	if err != nil {
		recordErr(span, err)
		s.log.Info("chart payload rejected", zap.Error(err))
		return chart.Data{}, err
	}
	return data, nil
}

func toSchema(history []chat.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chat.RoleSystem:
			out = append(out, schema.SystemMessage(msg.Content))
		case chat.RoleUser:
			out = append(out, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			out = append(out, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return out
}

func lastUserMessage(history []chat.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == chat.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

func recordErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
