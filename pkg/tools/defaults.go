package tools

import (
	"fmt"
	"log/slog"

	"github.com/nstogner/triangulum/pkg/backend"
	"github.com/nstogner/triangulum/pkg/source"
)

// Options selects and configures the built-in research tools.
type Options struct {
	Source source.Config
	// HTTP is shared by every backend client.
	HTTP backend.Options
	// Disabled lists tool names to leave out.
	Disabled map[string]bool

	ScholarAPIKey string
	PubMedEmail   string
	PubMedAPIKey  string
}

// NewDefault builds the registry of research tools. Wikipedia, DuckDuckGo
// and GoogleScholar come first, then ArXiv and PubMed. A tool that is
// disabled or lacks what its backend needs is left out and logged; it is
// never registered in a broken state.
func NewDefault(opts Options) (*Registry, error) {
	reg := NewRegistry()

	add := func(a *source.Adapter) error {
		if opts.Disabled[a.Name()] {
			slog.Info("Tool disabled", "tool", a.Name())
			return nil
		}
		return reg.Register(FromAdapter(a))
	}

	scholarHTTP := opts.HTTP
	scholarHTTP.APIKey = opts.ScholarAPIKey

	adapters := []*source.Adapter{
		source.NewWikipedia(backend.NewWikipedia(opts.HTTP), opts.Source),
		source.NewDuckDuckGo(backend.NewDuckDuckGo(opts.HTTP), opts.Source),
		source.NewScholar(backend.NewScholar(scholarHTTP), opts.Source),
		source.NewArXiv(backend.NewArXiv(opts.HTTP), opts.Source),
	}
	for _, a := range adapters {
		if err := add(a); err != nil {
			return nil, err
		}
	}

	pubmedHTTP := opts.HTTP
	pubmedHTTP.Email = opts.PubMedEmail
	pubmedHTTP.APIKey = opts.PubMedAPIKey
	pm, err := backend.NewPubMed(pubmedHTTP)
	switch {
	case opts.Disabled[source.NamePubMed]:
		slog.Info("Tool disabled", "tool", source.NamePubMed)
	case err != nil:
		slog.Warn("PubMed tool unavailable", "error", err)
	default:
		if err := add(source.NewPubMed(pm, opts.Source)); err != nil {
			return nil, err
		}
	}

	if reg.Len() == 0 {
		return nil, fmt.Errorf("no tools available")
	}
	return reg, nil
}

// FromAdapter wraps a source adapter as a registry tool.
func FromAdapter(a *source.Adapter) Tool {
	return Tool{
		Name:        a.Name(),
		Description: a.Description(),
		Invoke:      a.Invoke,
	}
}
