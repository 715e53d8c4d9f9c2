package controller

import (
	"regexp"
	"strings"
)

// sectionRe matches "Label: content" lines. The label has to start with a
// letter and be followed by whitespace so URLs and clock times are left
// alone.
var sectionRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 ()/&'.-]{0,39}):\s+(\S.*)$`)

// FormatAnswer lays out "Label: content" lines as a heading followed by the
// indented content. Lines after a heading that are not headings themselves
// are indented as its continuation. Text without any such line is returned
// trimmed and otherwise unchanged.
func FormatAnswer(text string) string {
	text = strings.TrimSpace(text)
	lines := strings.Split(text, "\n")

	found := false
	for _, l := range lines {
		if sectionRe.MatchString(strings.TrimSpace(l)) {
			found = true
			break
		}
	}
	if !found {
		return text
	}

	var sb strings.Builder
	inSection := false
	for i, l := range lines {
		if i > 0 {
			sb.WriteString("\n")
		}
		trimmed := strings.TrimSpace(l)
		if m := sectionRe.FindStringSubmatch(trimmed); m != nil {
			sb.WriteString(strings.TrimSpace(m[1]))
			sb.WriteString(":\n    ")
			sb.WriteString(strings.TrimSpace(m[2]))
			inSection = true
			continue
		}
		switch {
		case trimmed == "":
			inSection = false
		case inSection:
			sb.WriteString("    ")
			sb.WriteString(trimmed)
		default:
			sb.WriteString(l)
		}
	}
	return sb.String()
}
