package backend

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// ArxivEntry is an arXiv search hit.
type ArxivEntry struct {
	Title     string
	Authors   []string
	Published time.Time
	Summary   string
	URL       string
}

// ArXiv queries the arXiv export API.
type ArXiv struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// NewArXiv creates an arXiv client. arXiv asks API users to wait three
// seconds between calls.
func NewArXiv(opts Options) *ArXiv {
	return &ArXiv{
		client:  newRestClient(opts.baseURL("https://export.arxiv.org"), opts),
		limiter: opts.limiter(rate.Every(3 * time.Second)),
	}
}

// Search returns up to limit entries for query, by relevance.
func (a *ArXiv) Search(ctx context.Context, query string, limit int) ([]ArxivEntry, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"search_query": "all:" + query,
			"start":        "0",
			"max_results":  strconv.Itoa(limit),
			"sortBy":       "relevance",
		}).
		Get("/api/query")
	if err != nil {
		return nil, fmt.Errorf("arxiv request: %w", err)
	}
	if err := handleResponse("arxiv", resp); err != nil {
		return nil, err
	}
	return parseArXiv(resp.Body())
}

type arxivFeed struct {
	XMLName xml.Name `xml:"feed"`
	Entries []struct {
		ID        string `xml:"id"`
		Title     string `xml:"title"`
		Summary   string `xml:"summary"`
		Published string `xml:"published"`
		Authors   []struct {
			Name string `xml:"name"`
		} `xml:"author"`
	} `xml:"entry"`
}

func parseArXiv(body []byte) ([]ArxivEntry, error) {
	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("arxiv: parse feed: %w", err)
	}
	out := make([]ArxivEntry, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		// The API reports errors as a single entry titled "Error".
		if strings.EqualFold(strings.TrimSpace(e.Title), "error") {
			return nil, fmt.Errorf("arxiv: %s", collapse(e.Summary))
		}
		entry := ArxivEntry{
			Title:   collapse(e.Title),
			Summary: collapse(e.Summary),
			URL:     strings.TrimSpace(e.ID),
		}
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published)); err == nil {
			entry.Published = t
		}
		for _, au := range e.Authors {
			entry.Authors = append(entry.Authors, strings.TrimSpace(au.Name))
		}
		out = append(out, entry)
	}
	return out, nil
}

// collapse folds the hard wrapped whitespace arXiv uses in titles and
// abstracts.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
