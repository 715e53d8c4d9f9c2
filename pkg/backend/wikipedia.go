package backend

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// WikiPage is a Wikipedia search hit with its intro extract.
type WikiPage struct {
	Title   string
	Extract string
	URL     string
	index   int64
}

// Wikipedia searches the MediaWiki API.
type Wikipedia struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// NewWikipedia creates a Wikipedia client.
func NewWikipedia(opts Options) *Wikipedia {
	return &Wikipedia{
		client:  newRestClient(opts.baseURL("https://en.wikipedia.org"), opts),
		limiter: opts.limiter(rate.Inf),
	}
}

// Search returns up to limit pages matching query, best match first.
func (w *Wikipedia) Search(ctx context.Context, query string, limit int) ([]WikiPage, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := w.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"action":        "query",
			"format":        "json",
			"formatversion": "2",
			"generator":     "search",
			"gsrsearch":     query,
			"gsrlimit":      strconv.Itoa(limit),
			"prop":          "extracts|info",
			"exintro":       "1",
			"explaintext":   "1",
			"exlimit":       "max",
			"inprop":        "url",
		}).
		Get("/w/api.php")
	if err != nil {
		return nil, fmt.Errorf("wikipedia request: %w", err)
	}
	if err := handleResponse("wikipedia", resp); err != nil {
		return nil, err
	}
	return parseWikipedia(resp.Body())
}

func parseWikipedia(body []byte) ([]WikiPage, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("wikipedia: invalid JSON response")
	}
	res := gjson.ParseBytes(body)
	if e := res.Get("error.info"); e.Exists() {
		return nil, fmt.Errorf("wikipedia: %s", e.String())
	}

	var pages []WikiPage
	res.Get("query.pages").ForEach(func(_, p gjson.Result) bool {
		if p.Get("missing").Bool() {
			return true
		}
		pages = append(pages, WikiPage{
			Title:   p.Get("title").String(),
			Extract: p.Get("extract").String(),
			URL:     p.Get("fullurl").String(),
			index:   p.Get("index").Int(),
		})
		return true
	})
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].index < pages[j].index })
	return pages, nil
}
