package backend

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// Paper is an academic search hit.
type Paper struct {
	Title     string
	Authors   []string
	Year      int
	Citations int64
	Venue     string
	Abstract  string
	URL       string
}

// Scholar searches the Semantic Scholar graph API.
type Scholar struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// NewScholar creates a Semantic Scholar client. Unauthenticated callers share
// a small quota, so requests are limited to one per second by default.
func NewScholar(opts Options) *Scholar {
	c := newRestClient(opts.baseURL("https://api.semanticscholar.org"), opts)
	if opts.APIKey != "" {
		c.SetHeader("x-api-key", opts.APIKey)
	}
	return &Scholar{
		client:  c,
		limiter: opts.limiter(rate.Every(time.Second)),
	}
}

// Search returns up to limit papers for query, most relevant first.
func (s *Scholar) Search(ctx context.Context, query string, limit int) ([]Paper, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":  query,
			"limit":  strconv.Itoa(limit),
			"fields": "title,authors,year,citationCount,venue,abstract,url",
		}).
		Get("/graph/v1/paper/search")
	if err != nil {
		return nil, fmt.Errorf("semantic scholar request: %w", err)
	}
	if err := handleResponse("semantic scholar", resp); err != nil {
		return nil, err
	}
	return parseScholar(resp.Body())
}

func parseScholar(body []byte) ([]Paper, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("semantic scholar: invalid JSON response")
	}
	var papers []Paper
	gjson.GetBytes(body, "data").ForEach(func(_, p gjson.Result) bool {
		var authors []string
		for _, a := range p.Get("authors.#.name").Array() {
			if name := strings.TrimSpace(a.String()); name != "" {
				authors = append(authors, name)
			}
		}
		papers = append(papers, Paper{
			Title:     strings.TrimSpace(p.Get("title").String()),
			Authors:   authors,
			Year:      int(p.Get("year").Int()),
			Citations: p.Get("citationCount").Int(),
			Venue:     p.Get("venue").String(),
			Abstract:  p.Get("abstract").String(),
			URL:       p.Get("url").String(),
		})
		return true
	})
	return papers, nil
}
