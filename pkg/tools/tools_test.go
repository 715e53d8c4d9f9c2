package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/triangulum/pkg/source"
)

func echo(ctx context.Context, q string) (string, error) { return q, nil }

func TestRegistryOrderAndLookup(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"Wikipedia", "DuckDuckGo", "GoogleScholar"} {
		require.NoError(t, r.Register(Tool{Name: name, Description: name + " tool", Invoke: echo}))
	}

	assert.Equal(t, []string{"Wikipedia", "DuckDuckGo", "GoogleScholar"}, r.Names())
	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "DuckDuckGo tool", list[1].Description)

	got, err := r.Lookup("GoogleScholar")
	require.NoError(t, err)
	out, err := got.Invoke(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{Name: "Wikipedia", Invoke: echo}))

	err := r.Register(Tool{Name: "Wikipedia", Invoke: echo})
	require.ErrorIs(t, err, ErrDuplicateTool)
	assert.Equal(t, 1, r.Len())

	require.Error(t, r.Register(Tool{Name: "  ", Invoke: echo}))
	require.Error(t, r.Register(Tool{Name: "NoInvoke"}))
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{Name: "Wikipedia", Invoke: echo}))
	require.NoError(t, r.Register(Tool{Name: "ArXiv", Invoke: echo}))

	_, err := r.Lookup("Foo")
	require.ErrorIs(t, err, ErrUnknownTool)

	var ute *UnknownToolError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, "Foo", ute.Name)
	assert.Equal(t, `Unknown tool "Foo". Valid tools are: Wikipedia, ArXiv`, err.Error())
}

func TestListIsACopy(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{Name: "A", Invoke: echo}))
	l := r.List()
	l[0].Name = "changed"
	assert.Equal(t, []string{"A"}, r.Names())
}

func TestNewDefault(t *testing.T) {
	reg, err := NewDefault(Options{Source: source.DefaultConfig()})
	require.NoError(t, err)
	assert.Equal(t, []string{"Wikipedia", "DuckDuckGo", "GoogleScholar", "ArXiv"}, reg.Names(),
		"PubMed needs a contact email")

	reg, err = NewDefault(Options{Source: source.DefaultConfig(), PubMedEmail: "me@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Wikipedia", "DuckDuckGo", "GoogleScholar", "ArXiv", "PubMed"}, reg.Names())

	reg, err = NewDefault(Options{
		Source:      source.DefaultConfig(),
		PubMedEmail: "me@example.com",
		Disabled:    map[string]bool{"ArXiv": true, "PubMed": true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Wikipedia", "DuckDuckGo", "GoogleScholar"}, reg.Names())
}

func TestNewDefaultAllDisabled(t *testing.T) {
	_, err := NewDefault(Options{Disabled: map[string]bool{
		"Wikipedia": true, "DuckDuckGo": true, "GoogleScholar": true, "ArXiv": true, "PubMed": true,
	}})
	require.Error(t, err)
}
