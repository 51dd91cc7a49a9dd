// Package cli is the interpreter command line: the chat itself plus
// commands for saved conversations, configuration and the MCP server.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	_ "github.com/i2y/interpreter/anthropic" // Register Anthropic provider
	"github.com/i2y/interpreter/config"
	_ "github.com/i2y/interpreter/gemini" // Register Gemini provider
	"github.com/i2y/interpreter/interpreter"
	"github.com/i2y/interpreter/tools"
)

// app holds what the commands share for one invocation.
type app struct {
	version string
	in      io.Reader
	out     io.Writer
	errOut  io.Writer

	configFile string
	noHistory  bool
	resume     string

	settings *config.Settings
	logger   *slog.Logger
	closer   io.Closer
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interpreter [message]",
		Short: "Chat with a model that writes and runs code on your machine",
		Long: `interpreter lets a language model run code locally. The model answers
in text or asks to run code; the code is shown, run (after your approval
unless -y is given) and its output is sent back until the model is done.

With a message the interpreter answers it and exits. Without one it
starts an interactive chat.`,
		Version:           version(a.version),
		Args:              cobra.ArbitraryArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.cleanup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd.Context(), strings.Join(args, " "))
		},
	}
	cmd.SetIn(a.in)
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)
	cmd.CompletionOptions.DisableDefaultCmd = true

	flags := cmd.Flags()
	flags.BoolP("yes", "y", false, "Execute code without user confirmation")
	flags.String("model", interpreter.DefaultModel, "Chat model")
	flags.Float64("temperature", interpreter.DefaultTemperature, "Sampling temperature")
	flags.Int("max-output-chars", tools.DefaultMaxOutputChars, "Characters of code output sent back to the model")
	flags.String("system-message", "", "Markdown file replacing the built-in system message")
	flags.StringVar(&a.resume, "resume", "", "Continue a saved conversation (ID prefix, or latest when no value is given)")
	flags.Lookup("resume").NoOptDefVal = "latest"
	flags.BoolVar(&a.noHistory, "no-history", false, "Do not save this conversation")

	persistent := cmd.PersistentFlags()
	persistent.StringVar(&a.configFile, "config", "", "Config file (replaces the global and project config files)")
	persistent.String("log-level", "", "Set logging level (DEBUG, INFO, WARN, ERROR)")
	persistent.String("log-file", "", "Log file path (defaults to stderr)")

	cmd.AddCommand(
		newHistoryCommand(a),
		newConfigCommand(a),
		newMCPCommand(a),
	)
	return cmd
}

func version(v string) string {
	if v == "" {
		return "dev"
	}
	return v
}

// setup loads the settings and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	settings, err := config.Load(config.Options{
		File:      a.configFile,
		Flags:     cmd.Flags(),
		NoHistory: a.noHistory,
	})
	if err != nil {
		return err
	}

	logger, closer, err := config.SetupLogger(settings.Log, a.errOut)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	a.settings = settings
	a.logger = logger
	a.closer = closer
	return nil
}

func (a *app) cleanup() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

// Execute runs the command line and exits non-zero on failure. An
// interrupt cancels the running turn.
func Execute(v string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{version: v, in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	err := newRootCommand(a).ExecuteContext(ctx)
	if cerr := a.cleanup(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
