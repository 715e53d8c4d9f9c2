// Package react builds zero-shot ReAct prompts and parses the
// Thought/Action/Action Input/Final Answer format models answer with.
package react

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nstogner/triangulum/pkg/domain"
	"github.com/nstogner/triangulum/pkg/model"
)

const (
	// FinalAnswerPrefix marks the end of the reasoning.
	FinalAnswerPrefix = "Final Answer:"
	// ObservationPrefix precedes tool output in the scratchpad. Models must
	// stop generating before it.
	ObservationPrefix = "Observation:"
)

// StopSequences keeps the model from inventing observations.
var StopSequences = []string{"\n" + ObservationPrefix, "\n\t" + ObservationPrefix}

const prefix = `Answer the following questions as best you can. You have access to the following tools:`

const formatInstructions = `Use the following format:

Question: the input question you must answer
Thought: you should always think about what to do
Action: the action to take, should be one of [%s]
Action Input: the input to the action
Observation: the result of the action
... (this Thought/Action/Action Input/Observation can repeat N times)
Thought: I now know the final answer
Final Answer: the final answer to the original input question`

const guidance = `Prefer DuckDuckGo for prices, news and anything time-sensitive, the academic tools for papers and citations, and Wikipedia for background. When the answer has several parts, write each on its own line as "Label: content".`

// Instructions returns the system part of the prompt: tool descriptions and
// the answer format.
func Instructions(tools []model.ToolInfo) string {
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteString("\n\n")
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
		fmt.Fprintf(&sb, "%s: %s\n", t.Name, t.Description)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, formatInstructions, strings.Join(names, ", "))
	sb.WriteString("\n\n")
	sb.WriteString(guidance)
	return sb.String()
}

// Scratchpad renders the completed turns the way the model would have
// written them, each followed by its observation.
func Scratchpad(turns []domain.AgentTurn) string {
	var sb strings.Builder
	for _, t := range turns {
		log := strings.TrimSpace(t.Raw)
		if log == "" {
			log = fmt.Sprintf("%s\nAction: %s\nAction Input: %s", t.Thought, t.Tool, t.Argument)
		}
		sb.WriteString(log)
		sb.WriteString("\n")
		sb.WriteString(ObservationPrefix)
		sb.WriteString(" ")
		sb.WriteString(t.Observation)
		sb.WriteString("\nThought: ")
	}
	return sb.String()
}

// Prompt returns the user part of the prompt for req.
func Prompt(req model.Request) string {
	return "Begin!\n\nQuestion: " + req.Query + "\nThought: " + Scratchpad(req.Transcript)
}

var (
	actionRe        = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)
	actionOnlyRe    = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)`)
	actionInputRe   = regexp.MustCompile(`(?s)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)
	thoughtPrefixRe = regexp.MustCompile(`(?i)^\s*thought\s*:\s*`)
)

// Parse turns raw model output into a decision. Output that is neither a
// final answer nor a well formed action yields a DecisionInvalid whose
// Reason tells the model what to fix.
func Parse(raw string) domain.Decision {
	text := strings.TrimSpace(raw)
	d := domain.Decision{Raw: text}

	hasFinal := strings.Contains(text, FinalAnswerPrefix)
	m := actionRe.FindStringSubmatchIndex(text)

	switch {
	case m != nil && hasFinal && strings.Index(text, FinalAnswerPrefix) > m[0]:
		d.Kind = domain.DecisionInvalid
		d.Reason = "Parsing LLM output produced both a final answer and a parse-able action. Reply with either an Action or a Final Answer, not both."
		return d

	case m != nil && !hasFinal:
		d.Kind = domain.DecisionAction
		d.Thought = thought(text[:m[0]])
		d.Tool = strings.TrimSpace(text[m[2]:m[3]])
		d.Argument = cleanArgument(text[m[4]:m[5]])
		if d.Tool == "" {
			d.Kind = domain.DecisionInvalid
			d.Reason = "Invalid Format: Missing tool name after 'Action:'"
		}
		return d

	case hasFinal:
		i := strings.LastIndex(text, FinalAnswerPrefix)
		d.Kind = domain.DecisionFinal
		d.Thought = thought(text[:strings.Index(text, FinalAnswerPrefix)])
		d.Text = strings.TrimSpace(text[i+len(FinalAnswerPrefix):])
		return d
	}

	d.Kind = domain.DecisionInvalid
	switch {
	case !actionOnlyRe.MatchString(text):
		d.Reason = "Invalid Format: Missing 'Action:' after 'Thought:'"
	case !actionInputRe.MatchString(text):
		d.Reason = "Invalid Format: Missing 'Action Input:' after 'Action:'"
	default:
		d.Reason = "Invalid Format: could not parse the response"
	}
	return d
}

func thought(s string) string {
	return strings.TrimSpace(thoughtPrefixRe.ReplaceAllString(strings.TrimSpace(s), ""))
}

// cleanArgument strips quotes and anything the model wrote past the action
// input, such as a hallucinated observation.
func cleanArgument(s string) string {
	if i := strings.Index(s, "\n"+ObservationPrefix); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ObservationPrefix); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(strings.TrimSpace(s), " ")
	return strings.Trim(s, `"`)
}
