package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/i2y/interpreter/config"
	"github.com/i2y/interpreter/interpreter"
	"github.com/i2y/interpreter/llm"
	"github.com/i2y/interpreter/mcp"
	"github.com/i2y/interpreter/prompt"
	"github.com/i2y/interpreter/provider"
	"github.com/i2y/interpreter/render"
	"github.com/i2y/interpreter/store"
	"github.com/i2y/interpreter/tools"
)

const approvalBanner = "**Open Interpreter** will require approval before running code. Use `interpreter -y` to bypass this.\n\nPress `CTRL-C` to exit.\n"

const inputHistoryFile = "input_history"

// newRunner returns the execution backend: a persistent Python session, or
// a one-shot command when one is configured. stop releases it.
func (a *app) newRunner(echo io.Writer) (runner tools.CodeRunner, stop func()) {
	s := a.settings
	if len(s.Command) > 0 {
		return &tools.Runner{Command: s.Command, Timeout: s.Timeout, Echo: echo}, func() {}
	}
	session := &tools.Session{Python: s.Python, Timeout: s.Timeout, Echo: echo, Logger: a.logger}
	return session, func() { _ = session.Close() }
}

// runChat answers message, or chats interactively when it is empty.
func (a *app) runChat(ctx context.Context, message string) error {
	s := a.settings
	input := newLineInput(a.in, a.out, filepath.Join(config.DataDir(), inputHistoryFile))
	defer func() {
		if err := input.Close(); err != nil {
			a.logger.Warn("failed to save input history", "error", err)
		}
	}()

	runner, stop := a.newRunner(a.out)
	defer stop()
	registry := tools.NewRegistry(runner)
	clients := a.connectMCPServers(ctx, registry)
	defer func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}()

	opts := []interpreter.Option{
		interpreter.WithProviderName(s.Provider),
		interpreter.WithAPIKey(s.APIKey),
		interpreter.WithBaseURL(s.BaseURL),
		interpreter.WithPrompter(&secretPrompter{in: a.in, out: a.out, lines: input}),
		interpreter.WithModel(s.Model),
		interpreter.WithTemperature(s.Temperature),
		interpreter.WithMaxTokens(s.MaxTokens),
		interpreter.WithMaxOutputChars(s.MaxOutputChars),
		interpreter.WithRegistry(registry),
		interpreter.WithRenderer(render.Factory(a.out, a.renderOptions()...)),
		interpreter.WithInput(input),
		interpreter.WithOutput(a.out),
		interpreter.WithLogger(a.logger),
	}

	if s.SystemMessageFile != "" {
		p, err := prompt.Load(s.SystemMessageFile)
		if err != nil {
			return err
		}
		opts = append(opts, interpreter.WithSystemMessage(p.Content))
	}

	if !s.AutoRun {
		opts = append(opts, interpreter.WithApprover(&promptApprover{input: input}))
		fmt.Fprintln(a.out)
		fmt.Fprint(a.out, render.Markdown(approvalBanner, a.renderOptions()...))
		fmt.Fprintln(a.out)
	}

	var rec *recorder
	if s.History {
		st, err := store.Open(s.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		rec = &recorder{ctx: ctx, store: st, model: s.Model, logger: a.logger}
		opts = append(opts, interpreter.WithMessageHook(rec.record))
	}

	interp, err := interpreter.New(opts...)
	if err != nil {
		return err
	}

	if a.resume != "" {
		if rec == nil {
			return errors.New("--resume needs conversation history enabled")
		}
		if err := rec.resume(ctx, a.resume, interp); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Resuming conversation %s (%d messages)\n\n", rec.conversation.ShortID(), len(interp.Messages()))
	}

	_, err = interp.Chat(ctx, message, false)
	return err
}

func (a *app) renderOptions() []render.Option {
	live := isTerminal(a.out)
	opts := []render.Option{
		render.WithLive(live),
		render.WithWidth(terminalWidth(a.out)),
		render.WithLogger(a.logger),
	}
	if !live {
		opts = append(opts, render.WithStyle("notty"))
	}
	return opts
}

// connectMCPServers starts the configured MCP servers and registers their
// tools. A server that fails to start is skipped. Tools named like one
// already registered are skipped too, so run_code always stays local.
func (a *app) connectMCPServers(ctx context.Context, registry *llm.ToolRegistry) []*mcp.Client {
	names := make([]string, 0, len(a.settings.MCPServers))
	for name := range a.settings.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	var clients []*mcp.Client
	for _, name := range names {
		srv := a.settings.MCPServers[name]
		logger := a.logger.With("mcp_server", name)

		client, err := mcp.ConnectCommand(ctx, srv.Command, srv.Args)
		if err != nil {
			logger.Warn("failed to start MCP server", "error", err)
			continue
		}
		remote, err := client.Tools(ctx)
		if err != nil {
			logger.Warn("failed to list MCP tools", "error", err)
			_ = client.Close()
			continue
		}

		for _, t := range remote {
			if _, exists := registry.Get(t.Name()); exists {
				logger.Warn("skipping MCP tool with a taken name", "tool", t.Name())
				continue
			}
			registry.Register(t)
			logger.Debug("registered MCP tool", "tool", t.Name())
		}
		clients = append(clients, client)
	}
	return clients
}

// recorder saves every message of the chat. The conversation row is
// created with the first message so that chats with no messages leave
// nothing behind. Store failures are logged and the chat goes on.
type recorder struct {
	ctx          context.Context
	store        *store.Store
	model        string
	logger       *slog.Logger
	conversation *store.Conversation
}

func (r *recorder) record(m provider.Message) {
	if r.conversation == nil {
		conv, err := r.store.Create(r.ctx, r.model)
		if err != nil {
			r.logger.Warn("failed to save conversation", "error", err)
			return
		}
		r.conversation = conv
	}
	if err := r.store.Append(r.ctx, r.conversation.ID, m); err != nil {
		r.logger.Warn("failed to save message", "conversation", r.conversation.ShortID(), "error", err)
	}
}

// resume loads the conversation named by ref, an ID prefix or "latest",
// into interp. New messages are appended to it.
func (r *recorder) resume(ctx context.Context, ref string, interp *interpreter.Interpreter) error {
	var (
		conv *store.Conversation
		err  error
	)
	if ref == "latest" {
		conv, err = r.store.Latest(ctx)
	} else {
		conv, err = r.store.FindByPrefix(ctx, ref)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to find conversation %q", ref)
	}

	messages, err := r.store.Messages(ctx, conv.ID)
	if err != nil {
		return err
	}
	interp.Load(messages)
	r.conversation = conv
	return nil
}
