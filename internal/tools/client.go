package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Client is an MCP client session against a dotbox tool server.
type Client struct {
	name   string
	client *client.Client
	tools  []mcp.Tool
}

// Connect opens an in-process session to s.
func Connect(ctx context.Context, s *server.MCPServer) (*Client, error) {
	c, err := client.NewInProcessClient(s)
	if err != nil {
		return nil, fmt.Errorf("creating in-process client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting in-process session: %w", err)
	}
	return initialize(ctx, "in-process", c)
}

// Dial opens a session to a dotbox server's streamable HTTP endpoint,
// e.g. http://localhost:8080/mcp.
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	c, err := client.NewStreamableHttpClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP client for %s: %w", endpoint, err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting session with %s: %w", endpoint, err)
	}
	return initialize(ctx, endpoint, c)
}

func initialize(ctx context.Context, name string, c *client.Client) (*Client, error) {
	_, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "dotbox",
				Version: "0.1.0",
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing MCP session %s: %w", name, err)
	}

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("listing tools from %s: %w", name, err)
	}

	return &Client{name: name, client: c, tools: result.Tools}, nil
}

// ToolNames returns the names of the tools the server advertised.
func (c *Client) ToolNames() []string {
	names := make([]string, len(c.tools))
	for i, t := range c.tools {
		names[i] = t.Name
	}
	return names
}

// Tool returns the advertised definition of name.
func (c *Client) Tool(name string) (mcp.Tool, bool) {
	for _, t := range c.tools {
		if t.Name == name {
			return t, true
		}
	}
	return mcp.Tool{}, false
}

// Call invokes a tool and decodes its envelope.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) (*Envelope, error) {
	result, err := c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("calling tool %s on %s: %w", name, c.name, err)
	}
	return decodeEnvelope(result)
}

func decodeEnvelope(result *mcp.CallToolResult) (*Envelope, error) {
	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	var env Envelope
	if err := json.Unmarshal([]byte(strings.Join(parts, "\n")), &env); err != nil {
		return nil, fmt.Errorf("decoding tool result: %w", err)
	}
	return &env, nil
}

// Close ends the session.
func (c *Client) Close() error {
	return c.client.Close()
}
