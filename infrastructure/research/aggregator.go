// Package research finds and summarizes material for ideal states: keyword
// searches against scholarly APIs and site-restricted web searches, and page
// summaries produced by loading a page in a headless browser.
package research

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"north-backend/application/ports"
	"north-backend/domain/tree"
	"north-backend/pkg/observability"
)

// DefaultMaxTextChars bounds the page text sent for summarization.
const DefaultMaxTextChars = 20000

// Config configures an Aggregator.
type Config struct {
	Endpoints    Endpoints
	HTTPTimeout  time.Duration
	Language     string
	MaxTextChars int
	// BreakerFailures is the number of consecutive failures that opens a
	// source's breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		Endpoints:       DefaultEndpoints(),
		HTTPTimeout:     15 * time.Second,
		Language:        "Japanese",
		MaxTextChars:    DefaultMaxTextChars,
		BreakerFailures: 5,
		BreakerTimeout:  time.Minute,
	}
}

// Aggregator implements ports.ResearchAggregator.
type Aggregator struct {
	cfg       Config
	client    *http.Client
	browser   Browser
	completer ports.Completer
	metrics   *observability.Metrics
	logger    *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

var _ ports.ResearchAggregator = (*Aggregator)(nil)

// NewAggregator creates an aggregator. browser may be nil when page loading
// is unavailable; site searches and Execute then fail.
func NewAggregator(cfg Config, browser Browser, completer ports.Completer, metrics *observability.Metrics, logger *zap.Logger) *Aggregator {
	def := DefaultConfig()
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = def.HTTPTimeout
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.MaxTextChars <= 0 {
		cfg.MaxTextChars = def.MaxTextChars
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	return &Aggregator{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.HTTPTimeout},
		browser:   browser,
		completer: completer,
		metrics:   metrics,
		logger:    logger,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
}

// fetcherFor picks the fetcher for a source. Sources without an API are
// searched through DuckDuckGo restricted to the source's site.
func (a *Aggregator) fetcherFor(source tree.Source) Fetcher {
	ep := a.cfg.Endpoints
	switch source {
	case tree.SourceOpenAlex:
		return &OpenAlex{BaseURL: ep.OpenAlex, Client: a.client}
	case tree.SourceSemanticScholar:
		return &SemanticScholar{BaseURL: ep.SemanticScholar, Client: a.client}
	case tree.SourceWikipedia:
		return &Wikipedia{BaseURL: ep.Wikipedia, Client: a.client}
	case tree.SourceArxiv:
		return &Arxiv{BaseURL: ep.Arxiv, Client: a.client}
	case tree.SourcePubMed:
		return &PubMed{BaseURL: ep.PubMed, Client: a.client}
	}
	return &SiteSearch{BaseURL: ep.DuckDuckGo, Site: SiteFor(string(source)), Browser: a.browser}
}

func (a *Aggregator) breaker(source string) *gobreaker.CircuitBreaker {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cb, ok := a.breakers[source]; ok {
		return cb
	}
	failures := a.cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "research:" + source,
		Timeout: a.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.logger.Warn("Research breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	a.breakers[source] = cb
	return cb
}

// Candidates searches the research spec's source with its keywords. Any failure is
// logged and yields an empty list.
func (a *Aggregator) Candidates(ctx context.Context, spec tree.ResearchSpec) []tree.SearchResultItem {
	source := string(spec.Source)
	query := strings.Join(spec.Keywords, " ")

	ctx, span := observability.StartSpan(ctx, "research.candidates",
		attribute.String("research.source", source))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if a.browser == nil && !hasAPI(spec.Source) {
		err = fmt.Errorf("source %s needs a browser", source)
		a.fetchFailed(source, err)
		return []tree.SearchResultItem{}
	}

	fetcher := a.fetcherFor(spec.Source)
	var out any
	out, err = a.breaker(source).Execute(func() (any, error) {
		return fetcher.Search(ctx, query)
	})
	if err != nil {
		a.fetchFailed(source, err)
		return []tree.SearchResultItem{}
	}

	items, _ := out.([]tree.SearchResultItem)
	if len(items) > MaxCandidates {
		items = items[:MaxCandidates]
	}
	if items == nil {
		items = []tree.SearchResultItem{}
	}
	a.metrics.RecordResearchFetch(source, "ok")
	a.logger.Debug("Research candidates fetched",
		zap.String("source", source),
		zap.Int("count", len(items)))
	return items
}

func (a *Aggregator) fetchFailed(source string, err error) {
	a.metrics.RecordResearchFetch(source, "error")
	a.logger.Warn("Research fetch failed",
		zap.String("source", source),
		zap.Error(err))
}

func hasAPI(source tree.Source) bool {
	switch source {
	case tree.SourceOpenAlex, tree.SourceSemanticScholar, tree.SourceWikipedia, tree.SourceArxiv, tree.SourcePubMed:
		return true
	}
	return false
}

// Execute loads url, extracts its readable text and asks the model for a
// summary in the configured language.
func (a *Aggregator) Execute(ctx context.Context, url string) (string, error) {
	if a.browser == nil {
		return "", fmt.Errorf("execute research: no browser configured")
	}

	ctx, span := observability.StartSpan(ctx, "research.execute",
		attribute.String("research.url", url))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	var doc string
	doc, err = a.browser.HTML(ctx, url)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", url, err)
	}

	text := truncateRunes(ExtractText(doc), a.cfg.MaxTextChars)
	var summary string
	summary, err = a.completer.CompleteText(ctx, SummaryPrompt(text, a.cfg.Language))
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", url, err)
	}
	return summary, nil
}

// SummaryPrompt builds the summarization prompt for page text.
func SummaryPrompt(text, language string) string {
	return fmt.Sprintf("You are a research assistant. Summarize the following content in %s, "+
		"focusing on key facts, actionable insights, and technical details relevant to the context.\n"+
		"Content:\n%s\n\nSummary:", language, text)
}
