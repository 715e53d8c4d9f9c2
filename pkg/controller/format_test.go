package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatAnswer(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text is trimmed",
			in:   "  Go was released in 2009.  ",
			want: "Go was released in 2009.",
		},
		{
			name: "sections",
			in:   "Price: $60,000\nSource: DuckDuckGo",
			want: "Price:\n    $60,000\nSource:\n    DuckDuckGo",
		},
		{
			name: "continuation lines are indented",
			in:   "Summary: Go is a language.\nIt has goroutines.\n\nSee also the tour.",
			want: "Summary:\n    Go is a language.\n    It has goroutines.\n\nSee also the tour.",
		},
		{
			name: "intro before first section",
			in:   "Here is what I found.\nYear: 2024",
			want: "Here is what I found.\nYear:\n    2024",
		},
		{
			name: "urls and times are not labels",
			in:   "https://go.dev was updated at 10:30 today.",
			want: "https://go.dev was updated at 10:30 today.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatAnswer(tc.in))
		})
	}
}
