package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/nstogner/triangulum/pkg/domain"
	"github.com/nstogner/triangulum/pkg/model"
	"github.com/nstogner/triangulum/pkg/model/react"
)

// Mode selects how tool choices are exchanged with the model.
type Mode string

const (
	// ModeReAct asks for Thought/Action/Final Answer text and parses it.
	ModeReAct Mode = "react"
	// ModeFunctions declares each tool as a function and uses native
	// function calling.
	ModeFunctions Mode = "functions"
)

const DefaultModel = "gemini-2.0-flash"

// Config configures the Gemini oracle.
type Config struct {
	APIKey      string
	Model       string
	Mode        Mode
	Temperature float32
	// BaseURL overrides the API endpoint, mostly for tests.
	BaseURL    string
	HTTPClient *http.Client
}

// Oracle implements model.Oracle using the Google Gen AI SDK.
type Oracle struct {
	client *genai.Client
	cfg    Config
}

// Verify interface compliance.
var _ model.Oracle = (*Oracle)(nil)

// New creates a new Gemini oracle.
func New(ctx context.Context, cfg Config) (*Oracle, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeReAct
	case ModeReAct, ModeFunctions:
	default:
		return nil, fmt.Errorf("gemini: unknown mode %q", cfg.Mode)
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Oracle{client: client, cfg: cfg}, nil
}

// Name returns the oracle identifier.
func (o *Oracle) Name() string { return "gemini" }

// Model returns the model name requests are sent to.
func (o *Oracle) Model() string { return o.cfg.Model }

// Decide sends the query, transcript and tools to Gemini and returns its
// next decision.
func (o *Oracle) Decide(ctx context.Context, req model.Request) (domain.Decision, error) {
	slog.Debug("Gemini.Decide", "model", o.cfg.Model, "mode", o.cfg.Mode, "turns", len(req.Transcript))
	if o.cfg.Mode == ModeFunctions {
		return o.decideFunctions(ctx, req)
	}
	return o.decideReAct(ctx, req)
}

func (o *Oracle) decideReAct(ctx context.Context, req model.Request) (domain.Decision, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: react.Instructions(req.Tools)}},
		},
		Temperature:   genai.Ptr(o.cfg.Temperature),
		StopSequences: react.StopSequences,
	}
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: react.Prompt(req)}},
	}}

	resp, err := o.client.Models.GenerateContent(ctx, o.cfg.Model, contents, config)
	if err != nil {
		return domain.Decision{}, wrapError(err)
	}
	return react.Parse(responseText(resp)), nil
}

const functionsInstructions = `You are a research assistant. Use the available tools to gather evidence before answering. Prefer DuckDuckGo for prices, news and anything time-sensitive, the academic tools for papers and citations, and Wikipedia for background. When you have enough information, reply with the final answer as plain text. When the answer has several parts, write each on its own line as "Label: content".`

func (o *Oracle) decideFunctions(ctx context.Context, req model.Request) (domain.Decision, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: functionsInstructions}},
		},
		Temperature: genai.Ptr(o.cfg.Temperature),
		Tools:       buildToolDeclarations(req.Tools),
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
		},
	}

	resp, err := o.client.Models.GenerateContent(ctx, o.cfg.Model, buildContents(req), config)
	if err != nil {
		return domain.Decision{}, wrapError(err)
	}

	if calls := resp.FunctionCalls(); len(calls) > 0 {
		fc := calls[0]
		if len(calls) > 1 {
			slog.Debug("Gemini returned several function calls, using the first", "count", len(calls))
		}
		id := fc.ID
		if id == "" {
			id = "call-" + uuid.New().String()
		}
		arg, _ := fc.Args["query"].(string)
		return domain.Decision{
			Kind:     domain.DecisionAction,
			Thought:  responseText(resp),
			Tool:     fc.Name,
			Argument: strings.TrimSpace(arg),
			CallID:   id,
			Raw:      fmt.Sprintf("%s(%q)", fc.Name, arg),
		}, nil
	}

	text := responseText(resp)
	if text == "" {
		return domain.Decision{
			Kind:   domain.DecisionInvalid,
			Reason: "Empty response. Call one of the tools or reply with the final answer.",
		}, nil
	}
	return domain.Decision{Kind: domain.DecisionFinal, Text: text, Raw: text}, nil
}

// responseText joins the text parts of the first candidate. Unlike
// resp.Text it does not log when function calls are present.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// buildContents converts the transcript into alternating model function
// calls and user function responses. Turns without a call ID (invalid
// output) are replayed as plain text.
func buildContents(req model.Request) []*genai.Content {
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: req.Query}},
	}}
	for _, t := range req.Transcript {
		if t.CallID == "" {
			if t.Raw != "" {
				contents = append(contents, &genai.Content{
					Role:  genai.RoleModel,
					Parts: []*genai.Part{{Text: t.Raw}},
				})
			}
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: t.Observation}},
			})
			continue
		}

		var parts []*genai.Part
		if t.Thought != "" {
			parts = append(parts, &genai.Part{Text: t.Thought})
		}
		parts = append(parts, &genai.Part{
			FunctionCall: &genai.FunctionCall{
				ID:   t.CallID,
				Name: t.Tool,
				Args: map[string]any{"query": t.Argument},
			},
		})
		contents = append(contents,
			&genai.Content{Role: genai.RoleModel, Parts: parts},
			&genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       t.CallID,
						Name:     t.Tool,
						Response: map[string]any{"result": t.Observation},
					},
				}},
			},
		)
	}
	return contents
}

func buildToolDeclarations(tools []model.ToolInfo) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {Type: genai.TypeString, Description: "The search query."},
				},
				Required: []string{"query"},
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// wrapError attaches the HTTP status of a failed call so rate limits can be
// told apart from other failures without looking at the message.
func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &domain.OracleError{Kind: domain.KindFromStatus(apiErr.Code), StatusCode: apiErr.Code, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &domain.OracleError{Kind: domain.KindFromStatus(apiErrPtr.Code), StatusCode: apiErrPtr.Code, Err: err}
	}
	return &domain.OracleError{Kind: domain.Classify(err), Err: err}
}
