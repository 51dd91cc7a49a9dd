package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/i2y/interpreter/llm"
)

// DefaultCallTimeout bounds a single tool call.
const DefaultCallTimeout = 30 * time.Second

// Client is a session with an external MCP server.
type Client struct {
	session *mcp.ClientSession
	timeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCallTimeout sets the timeout for tool calls.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// Connect opens a session over transport.
func Connect(ctx context.Context, transport mcp.Transport, opts ...ClientOption) (*Client, error) {
	c := &Client{timeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(c)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: ServerName, Version: "dev"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to MCP server: %w", err)
	}
	c.session = session
	return c, nil
}

// ConnectCommand starts command and opens a session over its stdio.
func ConnectCommand(ctx context.Context, command string, args []string, opts ...ClientOption) (*Client, error) {
	return Connect(ctx, &mcp.CommandTransport{Command: exec.Command(command, args...)}, opts...)
}

// Tools returns the server's tools as functions the model can call.
func (c *Client) Tools(ctx context.Context) ([]llm.Tool, error) {
	result, err := c.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("listing MCP tools: %w", err)
	}

	tools := make([]llm.Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, &remoteTool{client: c, tool: t})
	}
	return tools, nil
}

// Close ends the session.
func (c *Client) Close() error {
	return c.session.Close()
}

// remoteTool is an MCP tool seen as an llm.Tool.
type remoteTool struct {
	client *Client
	tool   *mcp.Tool
}

func (t *remoteTool) Name() string        { return t.tool.Name }
func (t *remoteTool) Description() string { return t.tool.Description }

func (t *remoteTool) Parameters() *jsonschema.Schema {
	data, err := json.Marshal(t.tool.InputSchema)
	if err != nil {
		return &jsonschema.Schema{Type: "object"}
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil || s.Type == "" {
		return &jsonschema.Schema{Type: "object"}
	}
	return &s
}

func (t *remoteTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, t.client.timeout)
	defer cancel()

	var arguments map[string]any
	if err := json.Unmarshal(args, &arguments); err != nil {
		return nil, fmt.Errorf("parsing arguments: %w", err)
	}

	result, err := t.client.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      t.tool.Name,
		Arguments: arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("calling MCP tool: %w", err)
	}

	text := contentText(result.Content)
	if result.IsError {
		return nil, fmt.Errorf("MCP tool error: %s", text)
	}
	return text, nil
}

// contentText joins text content with newlines. Other content is described
// in brackets.
func contentText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch item := c.(type) {
		case *mcp.TextContent:
			parts = append(parts, item.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[Image: %s, %d bytes]", item.MIMEType, len(item.Data)))
		case *mcp.EmbeddedResource:
			if item.Resource != nil {
				parts = append(parts, fmt.Sprintf("[Resource: %s]", item.Resource.URI))
			} else {
				parts = append(parts, "[Resource: embedded]")
			}
		}
	}
	return strings.Join(parts, "\n")
}
