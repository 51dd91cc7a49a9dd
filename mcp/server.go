// Package mcp connects the interpreter to the Model Context Protocol. The
// server exposes run_code to MCP clients; the client adds the tools of
// external MCP servers as extra functions.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/i2y/interpreter/tools"
)

// ServerName identifies this implementation to MCP peers.
const ServerName = "interpreter"

// runCodeArgs mirrors tools.RunCodeInput. The MCP SDK reads plain
// descriptions from jsonschema tags.
type runCodeArgs struct {
	Code           string `json:"code" jsonschema:"The code to execute as a JSON decodable string. Standard Python; variables and imports persist between calls."`
	MaxOutputChars int    `json:"max_output_chars,omitempty" jsonschema:"Characters of output to keep. The server budget applies when unset or larger."`
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMaxOutputChars sets the output budget of each run.
func WithMaxOutputChars(n int) ServerOption {
	return func(s *Server) { s.maxOutputChars = n }
}

// WithVersion sets the version reported to clients.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// WithServerLogger sets the logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// Server serves run_code over MCP.
type Server struct {
	runner         tools.CodeRunner
	maxOutputChars int
	version        string
	logger         *slog.Logger
	server         *mcp.Server
}

// NewServer returns a Server executing code on runner.
func NewServer(runner tools.CodeRunner, opts ...ServerOption) *Server {
	s := &Server{
		runner:         runner,
		maxOutputChars: tools.DefaultMaxOutputChars,
		version:        "dev",
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: s.version,
	}, nil)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        tools.RunCodeName,
		Description: tools.RunCodeDescription,
	}, s.runCode)

	return s
}

func (s *Server) runCode(ctx context.Context, _ *mcp.CallToolRequest, args runCodeArgs) (*mcp.CallToolResult, any, error) {
	limit := s.maxOutputChars
	if args.MaxOutputChars > 0 && args.MaxOutputChars < limit {
		limit = args.MaxOutputChars
	}

	s.logger.Debug("mcp run_code", "chars", len(args.Code), "max_output_chars", limit)
	out, err := s.runner.Run(ctx, args.Code, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("running code: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: out}},
	}, nil, nil
}

// Run serves over stdin and stdout until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves a single session over transport.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, transport, nil)
}
