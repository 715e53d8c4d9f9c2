package model

import (
	"context"

	"github.com/nstogner/triangulum/pkg/domain"
)

// ToolInfo describes a tool to the oracle.
type ToolInfo struct {
	Name        string
	Description string
}

// Request is everything the oracle sees for one round trip.
type Request struct {
	// Query is the user's question.
	Query string
	// Transcript holds the completed turns of this query, oldest first.
	Transcript []domain.AgentTurn
	// Tools lists the tools the oracle may pick, in registry order.
	Tools []ToolInfo
}

// Oracle decides the next step of the reasoning loop.
type Oracle interface {
	// Name returns the oracle's identifier (e.g. "gemini").
	Name() string

	// Decide returns the next decision. Output the oracle cannot parse is
	// reported as a domain.DecisionInvalid decision, not an error. Errors
	// are reserved for failed model calls and should be classifiable with
	// domain.Classify.
	Decide(ctx context.Context, req Request) (domain.Decision, error)
}
