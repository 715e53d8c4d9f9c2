package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nstogner/triangulum/pkg/backoff"
	"github.com/nstogner/triangulum/pkg/domain"
	"github.com/nstogner/triangulum/pkg/model"
	"github.com/nstogner/triangulum/pkg/tools"
)

// ErrEmptyQuery is returned by Run for queries that are empty after trimming.
var ErrEmptyQuery = errors.New("empty query")

const (
	DefaultMaxIterations   = 8
	DefaultMinAnswerLength = 10
)

// DefaultRateLimitPolicy paces retries of rate limited calls within a query.
var DefaultRateLimitPolicy = backoff.Policy{Retries: 3, BaseDelay: 2 * time.Second}

const (
	// FailedMessage is the answer of every failed run.
	FailedMessage = "I'm sorry, I couldn't find a reliable answer to that right now. The research services may be busy, please try again in a moment or rephrase your question."
	// AbortedMessage is the answer of a cancelled run.
	AbortedMessage = "Query aborted."
)

// Config tunes a Controller.
type Config struct {
	// MaxIterations bounds the oracle round trips of one query.
	MaxIterations int
	// MinAnswerLength is the rune count below which a final answer is
	// rejected.
	MinAnswerLength int
	// RateLimit is the per-query budget for retrying rate limited tool and
	// oracle calls. It does not consume iterations.
	RateLimit backoff.Policy
	Sleeper   backoff.Sleeper
	// OnTurn, if set, is called after every completed turn.
	OnTurn func(domain.AgentTurn)
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		MaxIterations:   DefaultMaxIterations,
		MinAnswerLength: DefaultMinAnswerLength,
		RateLimit:       DefaultRateLimitPolicy,
	}
}

// Registry is the part of tools.Registry the controller needs.
type Registry interface {
	Lookup(name string) (tools.Tool, error)
	List() []tools.Tool
}

// Result is the outcome of one query.
type Result struct {
	RunID      string
	State      domain.State
	Answer     string
	Turns      []domain.AgentTurn
	Iterations int
	// Reason explains a failed run. It is meant for logs, not users.
	Reason string
}

// Controller is the reasoning loop. It asks the oracle for the next step,
// dispatches tools and feeds their output back until the oracle answers or
// the iteration budget runs out.
type Controller struct {
	oracle   model.Oracle
	registry Registry
	infos    []model.ToolInfo
	cfg      Config
}

// New creates a new Controller. The registry is read once for the tool
// descriptions given to the oracle.
func New(oracle model.Oracle, registry Registry, cfg Config) *Controller {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MinAnswerLength < 0 {
		cfg.MinAnswerLength = 0
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = backoff.Sleep
	}

	var infos []model.ToolInfo
	for _, t := range registry.List() {
		infos = append(infos, model.ToolInfo{Name: t.Name, Description: t.Description})
	}
	return &Controller{
		oracle:   oracle,
		registry: registry,
		infos:    infos,
		cfg:      cfg,
	}
}

// Tools returns the tool descriptions in the order the oracle sees them.
func (c *Controller) Tools() []model.ToolInfo {
	out := make([]model.ToolInfo, len(c.infos))
	copy(out, c.infos)
	return out
}

// run is the state of a single query.
type run struct {
	id         string
	query      string
	state      domain.State
	turns      []domain.AgentTurn
	iterations int
	budget     *backoff.Budget
	log        *slog.Logger
}

// Run answers query. The only error it returns is ErrEmptyQuery, every
// other outcome is described by the Result.
func (c *Controller) Run(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{State: domain.StateIdle}, ErrEmptyQuery
	}

	id := uuid.New().String()
	r := &run{
		id:     id,
		query:  query,
		state:  domain.StateIdle,
		budget: backoff.NewBudget(c.cfg.RateLimit),
		log:    slog.With("runID", id),
	}
	r.log.Info("Controller run started", "query", query, "tools", len(c.infos))

	for r.iterations < c.cfg.MaxIterations {
		if ctx.Err() != nil {
			return c.abort(r), nil
		}

		r.state = domain.StateThinking
		d, err := c.think(ctx, r)
		if err != nil {
			if ctx.Err() != nil {
				return c.abort(r), nil
			}
			return c.fail(r, fmt.Sprintf("calling oracle: %v", err)), nil
		}
		r.iterations++

		switch d.Kind {
		case domain.DecisionFinal:
			return c.finish(r, d), nil

		case domain.DecisionAction:
			turn := domain.AgentTurn{
				Thought:  d.Thought,
				Tool:     d.Tool,
				Argument: d.Argument,
				CallID:   d.CallID,
				Raw:      d.Raw,
			}
			obs, err := c.dispatchTool(ctx, r, d)
			if err != nil {
				return c.abort(r), nil
			}
			turn.Observation = obs
			c.record(r, turn)

		default:
			r.log.Debug("Invalid oracle output", "reason", d.Reason)
			c.record(r, domain.AgentTurn{
				Thought:     d.Thought,
				Raw:         d.Raw,
				Observation: d.Reason,
			})
		}
	}

	return c.fail(r, fmt.Sprintf("iteration budget of %d exhausted", c.cfg.MaxIterations)), nil
}

// think asks the oracle for the next decision. Rate limited calls are retried
// while the query's rate limit budget lasts.
func (c *Controller) think(ctx context.Context, r *run) (domain.Decision, error) {
	req := model.Request{
		Query:      r.query,
		Transcript: r.turns,
		Tools:      c.infos,
	}
	for {
		d, err := c.oracle.Decide(ctx, req)
		if err == nil {
			return d, nil
		}
		if !domain.IsRateLimited(err) {
			return d, err
		}
		if err := c.waitRateLimit(ctx, r, c.oracle.Name(), err); err != nil {
			return d, err
		}
	}
}

// dispatchTool looks up and invokes the tool d asks for and returns the
// observation. Unknown tools and tool failures become observations. The
// error is only set when ctx is done.
func (c *Controller) dispatchTool(ctx context.Context, r *run, d domain.Decision) (string, error) {
	r.state = domain.StateToolDispatch
	tool, err := c.registry.Lookup(d.Tool)
	if err != nil {
		r.log.Debug("Oracle picked an unknown tool", "tool", d.Tool)
		return err.Error(), nil
	}

	r.state = domain.StateObserving
	for {
		start := time.Now()
		out, err := tool.Invoke(ctx, d.Argument)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err == nil {
			r.log.Debug("Tool call", "tool", tool.Name, "argument", d.Argument, "duration", time.Since(start))
			return out, nil
		}
		if !domain.IsRateLimited(err) {
			r.log.Warn("Tool call failed", "tool", tool.Name, "error", err)
			return err.Error(), nil
		}
		if werr := c.waitRateLimit(ctx, r, tool.Name, err); werr != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return err.Error(), nil
		}
	}
}

// waitRateLimit sleeps for the next delay of the query's rate limit budget.
// It returns cause once the budget is spent.
func (c *Controller) waitRateLimit(ctx context.Context, r *run, who string, cause error) error {
	delay, ok := r.budget.Next()
	if !ok {
		r.log.Warn("Rate limit retries exhausted", "caller", who, "error", cause)
		return cause
	}
	r.log.Info("Rate limited, waiting", "caller", who, "delay", delay, "retry", r.budget.Used())
	return c.cfg.Sleeper(ctx, delay)
}

func (c *Controller) record(r *run, turn domain.AgentTurn) {
	r.turns = append(r.turns, turn)
	if c.cfg.OnTurn != nil {
		c.cfg.OnTurn(turn)
	}
}

func (c *Controller) finish(r *run, d domain.Decision) Result {
	text := strings.TrimSpace(d.Text)
	if n := utf8.RuneCountInString(text); n < c.cfg.MinAnswerLength {
		return c.fail(r, fmt.Sprintf("final answer too short (%d runes)", n))
	}
	r.state = domain.StateFinished
	r.log.Info("Controller run finished", "iterations", r.iterations, "turns", len(r.turns))
	return c.result(r, FormatAnswer(text), "")
}

func (c *Controller) fail(r *run, reason string) Result {
	r.state = domain.StateFailed
	r.log.Warn("Controller run failed", "reason", reason, "iterations", r.iterations)
	return c.result(r, FailedMessage, reason)
}

func (c *Controller) abort(r *run) Result {
	r.state = domain.StateAborted
	r.log.Info("Controller run aborted", "iterations", r.iterations)
	return c.result(r, AbortedMessage, "aborted")
}

func (c *Controller) result(r *run, answer, reason string) Result {
	turns := make([]domain.AgentTurn, len(r.turns))
	copy(turns, r.turns)
	return Result{
		RunID:      r.id,
		State:      r.state,
		Answer:     answer,
		Turns:      turns,
		Iterations: r.iterations,
		Reason:     reason,
	}
}
