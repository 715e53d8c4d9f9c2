// Command triangulum is an interactive research assistant. A Gemini driven
// reasoning loop picks between encyclopedia, live web and academic search
// tools to answer each query.
//
// Usage:
//
//	export GEMINI_API_KEY="your-api-key"
//	go run ./cmd/triangulum          # line based REPL
//	go run ./cmd/triangulum tui      # full screen UI
//	go run ./cmd/triangulum tools    # list the registered tools
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nstogner/triangulum/pkg/config"
	"github.com/nstogner/triangulum/pkg/logging"
	"github.com/nstogner/triangulum/pkg/repl"
)

type flags struct {
	envFile       string
	model         string
	mode          string
	maxIterations int
	cache         string
	logLevel      string
	verbose       bool
	steps         bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("Triangulum failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:           "triangulum",
		Short:         "AI research assistant backed by Gemini and several search tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, f)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			return repl.New(a.controller, repl.Options{
				In:        cmd.InOrStdin(),
				Out:       out,
				Styled:    repl.IsTerminal(out),
				ShowSteps: f.steps,
			}).Run(cmd.Context())
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.envFile, "env-file", "", "dotenv file to read (default .env if present)")
	pf.StringVar(&f.model, "model", "", "Gemini model name")
	pf.StringVar(&f.mode, "mode", "", "tool selection mode: react or functions")
	pf.IntVar(&f.maxIterations, "max-iterations", 0, "maximum reasoning round trips per query")
	pf.StringVar(&f.cache, "cache", "", "tool response cache: none, memory or sqlite")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	cmd.Flags().BoolVar(&f.steps, "steps", false, "print the reasoning steps before each response")

	cmd.AddCommand(newTUICmd(f), newToolsCmd(f))
	return cmd
}

func newToolsCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools in the order the model sees them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, f)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			for i, t := range a.controller.Tools() {
				fmt.Fprintf(out, "%d. %s\n   %s\n", i+1, t.Name, t.Description)
			}
			return nil
		},
	}
}

// overrides turns the flags that were set into config overrides.
func (f *flags) overrides(cmd *cobra.Command) map[string]any {
	o := map[string]any{}
	changed := func(name string) bool {
		fl := cmd.Flag(name)
		return fl != nil && fl.Changed
	}
	if changed("model") {
		o["gemini.model"] = f.model
	}
	if changed("mode") {
		o["gemini.mode"] = f.mode
	}
	if changed("max-iterations") {
		o["agent.max_iterations"] = f.maxIterations
	}
	if changed("cache") {
		o["cache.backend"] = f.cache
	}
	if changed("log-level") {
		o["log.level"] = f.logLevel
	}
	if f.verbose {
		o["log.level"] = "debug"
	}
	return o
}

func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		EnvFile:   f.envFile,
		Overrides: f.overrides(cmd),
	})
	if err != nil {
		return nil, err
	}
	if err := logging.Setup(logging.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON}); err != nil {
		return nil, err
	}
	return cfg, nil
}
