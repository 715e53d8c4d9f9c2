// Package source adapts the retrieval backends into tools: each adapter
// fetches with retries, normalizes hits, applies recency heuristics and
// renders a plain text observation for the oracle.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nstogner/triangulum/pkg/backoff"
	"github.com/nstogner/triangulum/pkg/cache"
	"github.com/nstogner/triangulum/pkg/domain"
	"github.com/nstogner/triangulum/pkg/recency"
)

const (
	DefaultMaxResults   = 3
	DefaultSummaryChars = 250
)

// Config is shared by all adapters.
type Config struct {
	MaxResults   int
	Policy       backoff.Policy
	SummaryChars int
	// RecencyFilter drops live web hits that do not look recent.
	RecencyFilter bool
	// Cache is optional.
	Cache     cache.Store
	Extractor *recency.Extractor
	Sleeper   backoff.Sleeper
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		MaxResults:    DefaultMaxResults,
		Policy:        backoff.DefaultPolicy,
		SummaryChars:  DefaultSummaryChars,
		RecencyFilter: true,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.SummaryChars <= 0 {
		c.SummaryChars = DefaultSummaryChars
	}
	if c.Extractor == nil {
		c.Extractor = recency.New()
	}
	if c.Sleeper == nil {
		c.Sleeper = backoff.Sleep
	}
	return c
}

type fetchFunc func(ctx context.Context, query string, limit int) ([]domain.NormalizedResult, error)

// Adapter is a retrieval tool backed by one service.
type Adapter struct {
	name        string
	description string
	// backend names the service in error messages.
	backend string
	// header prefixes the rendered blocks, e.g. "Latest data for".
	header       string
	blockLabel   string
	summaryLabel string
	yearLabel    string
	web          bool

	fetch fetchFunc
	cfg   Config
}

// Name is the tool name the oracle uses.
func (a *Adapter) Name() string { return a.name }

// Description tells the oracle when to use the tool.
func (a *Adapter) Description() string { return a.description }

// Invoke runs a search with the configured result count. Backend failures
// that survive the retries come back as *domain.ToolError, whose message is
// the observation text. Cancellation returns ctx.Err().
func (a *Adapter) Invoke(ctx context.Context, query string) (string, error) {
	return a.run(ctx, query, a.cfg.MaxResults)
}

// Search is Invoke with an explicit result count and errors rendered as
// text.
func (a *Adapter) Search(ctx context.Context, query string, maxResults int) string {
	out, err := a.run(ctx, query, maxResults)
	if err != nil {
		var te *domain.ToolError
		if !errors.As(err, &te) {
			te = domain.NewToolError(a.name, a.backend, err)
		}
		return te.Error()
	}
	return out
}

func (a *Adapter) run(ctx context.Context, query string, maxResults int) (string, error) {
	query = strings.TrimSpace(query)
	if maxResults <= 0 {
		maxResults = a.cfg.MaxResults
	}

	key := cache.Key(a.name, maxResults, query)
	if a.cfg.Cache != nil {
		v, ok, err := a.cfg.Cache.Get(ctx, key)
		if err != nil {
			slog.Warn("Cache lookup failed", "tool", a.name, "error", err)
		} else if ok {
			slog.Debug("Cache hit", "tool", a.name, "query", query)
			return a.withHeader(query, v), nil
		}
	}

	backendQuery := query
	if a.web {
		backendQuery = a.augment(query)
	}

	results, err := backoff.Do(ctx, a.cfg.Policy, func(ctx context.Context) ([]domain.NormalizedResult, error) {
		return a.fetch(ctx, backendQuery, maxResults)
	},
		backoff.WithSleeper(a.cfg.Sleeper),
		backoff.WithRetryIf(func(error) bool { return ctx.Err() == nil }),
		backoff.WithNotify(func(attempt int, delay time.Duration, err error) {
			slog.Info("Retrying search", "tool", a.name, "attempt", attempt+1, "delay", delay, "error", err)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		te := domain.NewToolError(a.name, a.backend, err)
		slog.Warn("Search failed", "tool", a.name, "kind", te.Kind, "error", err)
		return "", te
	}

	results = a.normalize(results)
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	if len(results) == 0 {
		return "No results found for: " + query, nil
	}
	blocks := a.render(results)

	// Keys fold case, so the header is not cached with the blocks.
	if a.cfg.Cache != nil {
		if err := a.cfg.Cache.Set(ctx, key, blocks); err != nil {
			slog.Warn("Cache store failed", "tool", a.name, "error", err)
		}
	}
	return a.withHeader(query, blocks), nil
}

// augment steers live web searches towards current pages.
func (a *Adapter) augment(query string) string {
	return fmt.Sprintf("%s latest %d", query, a.cfg.Extractor.CurrentYear())
}

func (a *Adapter) normalize(in []domain.NormalizedResult) []domain.NormalizedResult {
	out := make([]domain.NormalizedResult, 0, len(in))
	for _, r := range in {
		r.Title = strings.TrimSpace(r.Title)
		r.Summary = strings.TrimSpace(r.Summary)
		if a.web && a.cfg.RecencyFilter && !a.cfg.Extractor.HasRecencyKeyword(r.Summary) {
			continue
		}
		if r.Year == "" {
			if y, ok := a.cfg.Extractor.ExtractYear(r.Title + " " + r.Summary); ok {
				r.Year = y
			} else {
				r.Year = domain.YearRecent
			}
		}
		r.Summary = Truncate(r.Summary, a.cfg.SummaryChars)
		out = append(out, r)
	}
	return out
}

func (a *Adapter) withHeader(query, blocks string) string {
	return a.header + ": " + query + "\n\n" + blocks
}

// render formats the result blocks without the query header.
func (a *Adapter) render(results []domain.NormalizedResult) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s %d:\n", a.blockLabel, i+1)
		title := r.Title
		if title == "" {
			title = "No title available"
		}
		fmt.Fprintf(&sb, "Title: %s\n", title)
		for _, f := range r.Extra {
			if f.Value != "" {
				fmt.Fprintf(&sb, "%s: %s\n", f.Label, f.Value)
			}
		}
		if r.Year != "" {
			fmt.Fprintf(&sb, "%s: %s\n", a.yearLabel, r.Year)
		}
		if r.Summary != "" {
			fmt.Fprintf(&sb, "%s: %s\n", a.summaryLabel, r.Summary)
		}
		if r.URL != "" {
			fmt.Fprintf(&sb, "URL: %s\n", r.URL)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Truncate shortens s to at most n runes, cutting back to a word boundary
// when one is close, and appends "...".
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:n])
	if i := strings.LastIndexAny(cut, " \t\n"); i > len(cut)*4/5 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \t\n.,;:") + "..."
}

func joinAuthors(names []string, max int) string {
	if len(names) == 0 {
		return ""
	}
	if max > 0 && len(names) > max {
		return strings.Join(names[:max], ", ") + " et al."
	}
	return strings.Join(names, ", ")
}
