package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// WebHit is a single web search result.
type WebHit struct {
	Title   string
	URL     string
	Snippet string
}

// DuckDuckGo scrapes the DuckDuckGo HTML endpoint.
type DuckDuckGo struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// NewDuckDuckGo creates a DuckDuckGo client. DuckDuckGo blocks aggressive
// callers, so requests are limited to one per second unless opts says
// otherwise.
func NewDuckDuckGo(opts Options) *DuckDuckGo {
	c := newRestClient(opts.baseURL("https://html.duckduckgo.com"), opts).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.5")
	return &DuckDuckGo{
		client:  c,
		limiter: opts.limiter(rate.Every(time.Second)),
	}
}

// Search returns up to limit results for query.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]WebHit, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		Get("/html/")
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request: %w", err)
	}
	// DuckDuckGo answers throttled clients with 202 and a challenge page.
	if resp.StatusCode() == http.StatusAccepted {
		return nil, rateLimitedStatus("duckduckgo")
	}
	if err := handleResponse("duckduckgo", resp); err != nil {
		return nil, err
	}
	return parseDuckDuckGo(resp.String(), limit)
}

func parseDuckDuckGo(body string, limit int) ([]WebHit, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: parse HTML: %w", err)
	}

	var hits []WebHit
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if limit > 0 && len(hits) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") && !hasClass(n, "result--ad") {
			if h := extractWebHit(n); h.Title != "" && h.URL != "" {
				hits = append(hits, h)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return hits, nil
}

func extractWebHit(n *html.Node) WebHit {
	var h WebHit
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a"):
				h.URL = resolveRedirect(attr(n, "href"))
				h.Title = textContent(n)
			case hasClass(n, "result__snippet"):
				h.Snippet = textContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return h
}

// resolveRedirect unwraps DuckDuckGo's //duckduckgo.com/l/?uddg=<target>
// links.
func resolveRedirect(href string) string {
	if !strings.Contains(href, "duckduckgo.com/l/") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
