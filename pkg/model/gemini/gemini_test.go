package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/nstogner/triangulum/pkg/domain"
	"github.com/nstogner/triangulum/pkg/model"
)

var testTools = []model.ToolInfo{
	{Name: "Wikipedia", Description: "background"},
	{Name: "DuckDuckGo", Description: "live web"},
}

// fakeGemini serves generateContent with a fixed status and body and keeps
// the last request body.
type fakeGemini struct {
	status int
	body   string
	last   map[string]any
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, ":generateContent") {
		http.NotFound(w, r)
		return
	}
	b, _ := io.ReadAll(r.Body)
	f.last = map[string]any{}
	_ = json.Unmarshal(b, &f.last)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = io.WriteString(w, f.body)
}

func textResponse(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"role":  "model",
				"parts": []any{map[string]any{"text": text}},
			},
		}},
	})
	return string(b)
}

func setupOracle(t *testing.T, f *fakeGemini, mode Mode) *Oracle {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	o, err := New(context.Background(), Config{
		APIKey:  "test-key",
		Mode:    mode,
		BaseURL: srv.URL,
	})
	if err != nil {
		t.Fatalf("failed to create oracle: %v", err)
	}
	return o
}

func TestNewValidation(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)

	_, err = New(context.Background(), Config{APIKey: "k", Mode: "chat"})
	require.Error(t, err)

	o, err := New(context.Background(), Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, o.Model())
	assert.Equal(t, "gemini", o.Name())
}

func TestDecideReActAction(t *testing.T) {
	f := &fakeGemini{status: http.StatusOK, body: textResponse("Thought: need background\nAction: Wikipedia\nAction Input: Go")}
	o := setupOracle(t, f, ModeReAct)

	d, err := o.Decide(context.Background(), model.Request{Query: "What is Go?", Tools: testTools})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAction, d.Kind)
	assert.Equal(t, "Wikipedia", d.Tool)
	assert.Equal(t, "Go", d.Argument)

	// The prompt carries the question and the tool list.
	raw, _ := json.Marshal(f.last)
	assert.Contains(t, string(raw), "Question: What is Go?")
	assert.Contains(t, string(raw), "Wikipedia: background")
	assert.Contains(t, string(raw), "stopSequences")
}

func TestDecideReActFinal(t *testing.T) {
	f := &fakeGemini{status: http.StatusOK, body: textResponse("Thought: I now know the final answer\nFinal Answer: Go is a programming language.")}
	o := setupOracle(t, f, ModeReAct)

	d, err := o.Decide(context.Background(), model.Request{Query: "What is Go?", Tools: testTools})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionFinal, d.Kind)
	assert.Equal(t, "Go is a programming language.", d.Text)
}

func TestDecideFunctionCall(t *testing.T) {
	f := &fakeGemini{status: http.StatusOK, body: `{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"DuckDuckGo","args":{"query":"btc price"}}}]}}]}`}
	o := setupOracle(t, f, ModeFunctions)

	d, err := o.Decide(context.Background(), model.Request{Query: "bitcoin?", Tools: testTools})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAction, d.Kind)
	assert.Equal(t, "DuckDuckGo", d.Tool)
	assert.Equal(t, "btc price", d.Argument)
	assert.True(t, strings.HasPrefix(d.CallID, "call-"))

	raw, _ := json.Marshal(f.last)
	assert.Contains(t, string(raw), "functionDeclarations")
}

func TestDecideFunctionsFinalAndEmpty(t *testing.T) {
	f := &fakeGemini{status: http.StatusOK, body: textResponse("Bitcoin trades near $60,000.")}
	o := setupOracle(t, f, ModeFunctions)

	d, err := o.Decide(context.Background(), model.Request{Query: "bitcoin?", Tools: testTools})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionFinal, d.Kind)
	assert.Equal(t, "Bitcoin trades near $60,000.", d.Text)

	f.body = textResponse("   ")
	d, err = o.Decide(context.Background(), model.Request{Query: "bitcoin?", Tools: testTools})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionInvalid, d.Kind)
}

func TestDecideRateLimited(t *testing.T) {
	f := &fakeGemini{
		status: http.StatusTooManyRequests,
		body:   `{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`,
	}
	o := setupOracle(t, f, ModeReAct)

	_, err := o.Decide(context.Background(), model.Request{Query: "q", Tools: testTools})
	require.Error(t, err)

	var oe *domain.OracleError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, domain.KindRateLimited, oe.Kind)
	assert.Equal(t, http.StatusTooManyRequests, oe.StatusCode)
	assert.True(t, domain.IsRateLimited(err))
}

func TestDecideServerErrorIsTransient(t *testing.T) {
	f := &fakeGemini{status: http.StatusServiceUnavailable, body: `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`}
	o := setupOracle(t, f, ModeFunctions)

	_, err := o.Decide(context.Background(), model.Request{Query: "q", Tools: testTools})
	assert.Equal(t, domain.KindTransient, domain.Classify(err))
}

func TestBuildContents(t *testing.T) {
	contents := buildContents(model.Request{
		Query: "bitcoin?",
		Transcript: []domain.AgentTurn{
			{Raw: "gibberish", Observation: "Invalid Format"},
			{Thought: "search", Tool: "DuckDuckGo", Argument: "btc", CallID: "c1", Observation: "$60,000"},
		},
	})
	require.Len(t, contents, 5)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, "gibberish", contents[1].Parts[0].Text)
	assert.Equal(t, "Invalid Format", contents[2].Parts[0].Text)

	call := contents[3]
	assert.Equal(t, genai.RoleModel, call.Role)
	require.Len(t, call.Parts, 2)
	assert.Equal(t, "DuckDuckGo", call.Parts[1].FunctionCall.Name)
	assert.Equal(t, "btc", call.Parts[1].FunctionCall.Args["query"])

	resp := contents[4].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, "c1", resp.ID)
	assert.Equal(t, "$60,000", resp.Response["result"])
}

func TestBuildToolDeclarations(t *testing.T) {
	assert.Nil(t, buildToolDeclarations(nil))

	got := buildToolDeclarations(testTools)
	require.Len(t, got, 1)
	require.Len(t, got[0].FunctionDeclarations, 2)
	d := got[0].FunctionDeclarations[1]
	assert.Equal(t, "DuckDuckGo", d.Name)
	assert.Equal(t, []string{"query"}, d.Parameters.Required)
}

func TestGeminiIntegration(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set, skipping integration test")
	}

	for _, mode := range []Mode{ModeReAct, ModeFunctions} {
		t.Run(string(mode), func(t *testing.T) {
			o, err := New(context.Background(), Config{APIKey: apiKey, Mode: mode})
			if err != nil {
				t.Fatalf("failed to create oracle: %v", err)
			}
			d, err := o.Decide(context.Background(), model.Request{
				Query: "Who wrote the Go programming language?",
				Tools: testTools,
			})
			if err != nil {
				t.Fatalf("Decide failed: %v", err)
			}
			if d.Kind == domain.DecisionInvalid {
				t.Errorf("unexpected invalid decision: %s", d.Reason)
			}
		})
	}
}
