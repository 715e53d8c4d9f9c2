// Package backend holds the HTTP clients for the retrieval services. The
// clients return raw hits; turning them into observations is the job of the
// source adapters.
package backend

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "Mozilla/5.0 (compatible; triangulum/1.0; +https://github.com/nstogner/triangulum)"
)

// Options configures a backend client. Zero values fall back to the
// service's public endpoint and sane defaults.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// RateLimit bounds requests per second. Zero keeps the client's default,
	// rate.Inf disables limiting.
	RateLimit rate.Limit
	// APIKey is sent to services that accept one.
	APIKey string
	// Email identifies the caller to services that ask for a contact.
	Email string
}

func (o Options) baseURL(def string) string {
	if o.BaseURL != "" {
		return o.BaseURL
	}
	return def
}

func (o Options) limiter(def rate.Limit) *rate.Limiter {
	l := o.RateLimit
	if l == 0 {
		l = def
	}
	return rate.NewLimiter(l, 1)
}

func newRestClient(baseURL string, opts Options) *resty.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", ua)
}

// StatusError is returned when a backend answers with a non success status.
type StatusError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Backend, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Backend, e.StatusCode, e.Body)
}

// HTTPStatusCode implements domain.StatusCoder.
func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

func handleResponse(backend string, resp *resty.Response) error {
	if resp.StatusCode() < 300 {
		return nil
	}
	body := resp.String()
	if runes := []rune(body); len(runes) > 200 {
		body = string(runes[:200])
	}
	return &StatusError{Backend: backend, StatusCode: resp.StatusCode(), Body: body}
}

// rateLimitedStatus lets services that signal throttling with an odd status
// report it as a plain 429.
func rateLimitedStatus(backend string) error {
	return &StatusError{Backend: backend, StatusCode: http.StatusTooManyRequests}
}
