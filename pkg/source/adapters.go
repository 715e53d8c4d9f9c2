package source

import (
	"context"
	"strconv"

	"github.com/nstogner/triangulum/pkg/backend"
	"github.com/nstogner/triangulum/pkg/domain"
)

// Tool names as the oracle sees them.
const (
	NameWikipedia  = "Wikipedia"
	NameDuckDuckGo = "DuckDuckGo"
	NameScholar    = "GoogleScholar"
	NameArXiv      = "ArXiv"
	NamePubMed     = "PubMed"
)

// WikipediaSearcher is implemented by backend.Wikipedia.
type WikipediaSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]backend.WikiPage, error)
}

// WebSearcher is implemented by backend.DuckDuckGo.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]backend.WebHit, error)
}

// PaperSearcher is implemented by backend.Scholar.
type PaperSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]backend.Paper, error)
}

// ArxivSearcher is implemented by backend.ArXiv.
type ArxivSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]backend.ArxivEntry, error)
}

// PubMedSearcher is implemented by backend.PubMed.
type PubMedSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]backend.PubMedArticle, error)
}

// NewWikipedia returns the encyclopedic lookup tool.
func NewWikipedia(c WikipediaSearcher, cfg Config) *Adapter {
	return &Adapter{
		name:         NameWikipedia,
		description:  "Useful for getting general information, historical data, and detailed explanations. Best for non-time-sensitive information.",
		backend:      "Wikipedia",
		header:       "Wikipedia results for",
		blockLabel:   "Source",
		summaryLabel: "Summary",
		yearLabel:    "Year",
		cfg:          cfg.withDefaults(),
		fetch: func(ctx context.Context, query string, limit int) ([]domain.NormalizedResult, error) {
			pages, err := c.Search(ctx, query, limit)
			if err != nil {
				return nil, err
			}
			out := make([]domain.NormalizedResult, 0, len(pages))
			for _, p := range pages {
				out = append(out, domain.NormalizedResult{
					Title:   p.Title,
					Summary: p.Extract,
					URL:     p.URL,
				})
			}
			return out, nil
		},
	}
}

// NewDuckDuckGo returns the live web search tool. Its query is biased
// towards current pages and, with the recency filter on, hits that do not
// mention anything recent are dropped.
func NewDuckDuckGo(c WebSearcher, cfg Config) *Adapter {
	return &Adapter{
		name:         NameDuckDuckGo,
		description:  "Useful for getting real-time data like current prices, market values, latest news, and live updates. Best for time-sensitive information.",
		backend:      "DuckDuckGo",
		header:       "Latest data for",
		blockLabel:   "Source",
		summaryLabel: "Details",
		yearLabel:    "Year",
		web:          true,
		cfg:          cfg.withDefaults(),
		fetch: func(ctx context.Context, query string, limit int) ([]domain.NormalizedResult, error) {
			// Ask for extra hits so the recency filter has something to
			// choose from.
			hits, err := c.Search(ctx, query, limit*3)
			if err != nil {
				return nil, err
			}
			out := make([]domain.NormalizedResult, 0, len(hits))
			for _, h := range hits {
				out = append(out, domain.NormalizedResult{
					Title:   h.Title,
					Summary: h.Snippet,
					URL:     h.URL,
				})
			}
			return out, nil
		},
	}
}

// NewScholar returns the citation search tool.
func NewScholar(c PaperSearcher, cfg Config) *Adapter {
	return &Adapter{
		name:         NameScholar,
		description:  "Useful for finding academic papers across all disciplines, citation counts, and scholarly impact. Best for academic research.",
		backend:      "Scholar",
		header:       "Scholar results for",
		blockLabel:   "Paper",
		summaryLabel: "Abstract",
		yearLabel:    "Year",
		cfg:          cfg.withDefaults(),
		fetch: func(ctx context.Context, query string, limit int) ([]domain.NormalizedResult, error) {
			papers, err := c.Search(ctx, query, limit)
			if err != nil {
				return nil, err
			}
			out := make([]domain.NormalizedResult, 0, len(papers))
			for _, p := range papers {
				r := domain.NormalizedResult{
					Title:   p.Title,
					Summary: p.Abstract,
					URL:     p.URL,
					Extra: []domain.Field{
						{Label: "Author(s)", Value: joinAuthors(p.Authors, 5)},
						{Label: "Venue", Value: p.Venue},
						{Label: "Citations", Value: strconv.FormatInt(p.Citations, 10)},
					},
				}
				if p.Year > 0 {
					r.Year = strconv.Itoa(p.Year)
				}
				out = append(out, r)
			}
			return out, nil
		},
	}
}

// NewArXiv returns the preprint search tool.
func NewArXiv(c ArxivSearcher, cfg Config) *Adapter {
	return &Adapter{
		name:         NameArXiv,
		description:  "Useful for finding scientific papers, especially in physics, mathematics, computer science, and related fields.",
		backend:      "ArXiv",
		header:       "ArXiv results for",
		blockLabel:   "Paper",
		summaryLabel: "Summary",
		yearLabel:    "Published",
		cfg:          cfg.withDefaults(),
		fetch: func(ctx context.Context, query string, limit int) ([]domain.NormalizedResult, error) {
			entries, err := c.Search(ctx, query, limit)
			if err != nil {
				return nil, err
			}
			out := make([]domain.NormalizedResult, 0, len(entries))
			for _, e := range entries {
				r := domain.NormalizedResult{
					Title:   e.Title,
					Summary: e.Summary,
					URL:     e.URL,
					Extra:   []domain.Field{{Label: "Authors", Value: joinAuthors(e.Authors, 5)}},
				}
				if !e.Published.IsZero() {
					r.Year = strconv.Itoa(e.Published.Year())
				}
				out = append(out, r)
			}
			return out, nil
		},
	}
}

// NewPubMed returns the biomedical literature tool.
func NewPubMed(c PubMedSearcher, cfg Config) *Adapter {
	return &Adapter{
		name:         NamePubMed,
		description:  "Useful for finding medical and life sciences research papers.",
		backend:      "PubMed",
		header:       "PubMed results for",
		blockLabel:   "Paper",
		summaryLabel: "Abstract",
		yearLabel:    "Year",
		cfg:          cfg.withDefaults(),
		fetch: func(ctx context.Context, query string, limit int) ([]domain.NormalizedResult, error) {
			arts, err := c.Search(ctx, query, limit)
			if err != nil {
				return nil, err
			}
			out := make([]domain.NormalizedResult, 0, len(arts))
			for _, a := range arts {
				out = append(out, domain.NormalizedResult{
					Title:   a.Title,
					Summary: a.Abstract,
					Year:    a.Year,
					URL:     a.URL(),
					Extra: []domain.Field{
						{Label: "Authors", Value: joinAuthors(a.Authors, 5)},
						{Label: "Journal", Value: a.Journal},
					},
				})
			}
			return out, nil
		},
	}
}
