// Package search fetches web results used to ground chat turns.
package search

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/synthesis-talk/backend/internal/config"
)

// Result is one organic search hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// Provider queries a concrete search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Service rate-limits a provider and formats its results for prompts.
type Service struct {
	provider   Provider
	limiter    *rate.Limiter
	maxResults int
	log        *zap.Logger
}

// NewService wraps provider. A nil provider yields a service whose searches
// always return no results.
func NewService(provider Provider, maxResults int, ratePerSec float64, log *zap.Logger) *Service {
	if maxResults <= 0 {
		maxResults = 3
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Service{
		provider:   provider,
		limiter:    rate.NewLimiter(limit, 1),
		maxResults: maxResults,
		log:        log,
	}
}

// NewFromConfig picks the provider named in cfg.
func NewFromConfig(cfg config.SearchConfig, log *zap.Logger) *Service {
	var provider Provider
	switch cfg.Provider {
	case config.SearchProviderSerpAPI:
		provider = NewSerpAPI(cfg.SerpAPIKey, cfg.BaseURL, cfg.Timeout)
	case config.SearchProviderDuckDuckGo:
		provider = NewDuckDuckGo(cfg.BaseURL, cfg.Timeout)
	}
	return NewService(provider, cfg.MaxResults, cfg.RatePerSec, log)
}

// Enabled reports whether a provider is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.provider != nil
}

// Search returns up to maxResults hits for query.
func (s *Service) Search(ctx context.Context, query string) ([]Result, error) {
	if !s.Enabled() || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	ctx, span := otel.Tracer("synthesis-talk/search").Start(ctx, "search."+s.provider.Name())
	defer span.End()
	span.SetAttributes(attribute.Int("search.limit", s.maxResults))

	if err := s.limiter.Wait(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("search rate limit: %w", err)
	}

	results, err := s.provider.Search(ctx, query, s.maxResults)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s search: %w", s.provider.Name(), err)
	}
	if len(results) > s.maxResults {
		results = results[:s.maxResults]
	}

	span.SetAttributes(attribute.Int("search.results", len(results)))
	s.log.Debug("web search completed",
		zap.String("provider", s.provider.Name()),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// Summary runs Search and formats the hits; an empty string means no results.
func (s *Service) Summary(ctx context.Context, query string) (string, error) {
	results, err := s.Search(ctx, query)
	if err != nil {
		return "", err
	}
	return FormatSummary(results), nil
}

// FormatSummary renders results as "title:\nsnippet\nlink" blocks separated
// by blank lines.
func FormatSummary(results []Result) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("%s:\n%s\n%s", r.Title, r.Snippet, r.Link))
	}
	return strings.Join(blocks, "\n\n")
}
