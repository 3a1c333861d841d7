// Package mcpserver exposes the tool registry over the Model Context Protocol
// on stdio and bridges elicitation requests back to the connected client.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"toolbox/internal/domain"
	"toolbox/internal/elicitation"
	"toolbox/internal/tool"
)

// Server serves the registered tools to one MCP client.
type Server struct {
	mcp        *server.MCPServer
	dispatcher *tool.Dispatcher
	logger     *slog.Logger
}

// New builds the MCP server, registers every tool in the dispatcher's
// registry and points the dispatcher's elicitor at the client session.
func New(name, version string, d *tool.Dispatcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp: server.NewMCPServer(name, version,
			server.WithToolCapabilities(false),
			server.WithElicitation(),
			server.WithRecovery(),
		),
		dispatcher: d,
		logger:     logger,
	}

	for _, desc := range d.Registry().Descriptors() {
		s.mcp.AddTool(ToolDefinition(desc), s.handler(desc.Name))
	}
	d.SetElicitor(&Elicitor{requester: s.mcp})

	logger.Info("mcp server ready", "tools", d.Registry().Len())
	return s
}

// ToolDefinition renders a descriptor as the tool advertised in tools/list.
// Arguments are still validated by the registry before a handler runs.
func ToolDefinition(desc tool.Descriptor) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(desc.Description)}
	if desc.Title != "" {
		opts = append(opts, mcp.WithTitleAnnotation(desc.Title))
	}
	for _, f := range desc.Schema.Fields {
		opts = append(opts, fieldOption(f))
	}
	return mcp.NewTool(desc.Name, opts...)
}

func fieldOption(f tool.Field) mcp.ToolOption {
	var props []mcp.PropertyOption
	if f.Description != "" {
		props = append(props, mcp.Description(f.Description))
	}
	if f.Required {
		props = append(props, mcp.Required())
	}

	switch f.Type {
	case tool.TypeBoolean:
		if b, ok := f.Default.(bool); ok {
			props = append(props, mcp.DefaultBool(b))
		}
		return mcp.WithBoolean(f.Name, props...)

	case tool.TypeNumber, tool.TypeInteger:
		if f.Type == tool.TypeInteger {
			props = append(props, integerType)
		}
		if f.Min != nil {
			props = append(props, mcp.Min(*f.Min))
		}
		if f.Max != nil {
			props = append(props, mcp.Max(*f.Max))
		}
		switch n := f.Default.(type) {
		case int:
			props = append(props, mcp.DefaultNumber(float64(n)))
		case float64:
			props = append(props, mcp.DefaultNumber(n))
		}
		return mcp.WithNumber(f.Name, props...)
	}

	if f.MaxLength > 0 {
		props = append(props, mcp.MaxLength(f.MaxLength))
	}
	if len(f.Enum) > 0 {
		props = append(props, mcp.Enum(f.Enum...))
	}
	if s, ok := f.Default.(string); ok {
		props = append(props, mcp.DefaultString(s))
	}
	return mcp.WithString(f.Name, props...)
}

// integerType narrows a WithNumber property; mcp-go has no integer builder.
func integerType(schema map[string]any) {
	schema["type"] = "integer"
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toCallToolResult(s.dispatcher.Invoke(ctx, name, req.GetArguments())), nil
	}
}

func toCallToolResult(res *domain.Result) *mcp.CallToolResult {
	out := &mcp.CallToolResult{IsError: res.IsError}
	for _, c := range res.Content {
		out.Content = append(out.Content, mcp.NewTextContent(c.Text))
	}
	return out
}

// ServeStdio runs the protocol over in/out until ctx is done or the client
// disconnects.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("serving mcp on stdio")
	return stdio.Listen(ctx, in, out)
}

type elicitationRequester interface {
	RequestElicitation(ctx context.Context, request mcp.ElicitationRequest) (*mcp.ElicitationResult, error)
}

// Elicitor sends elicitation/create to the client that owns the current
// request context.
type Elicitor struct {
	requester elicitationRequester
}

var _ elicitation.Elicitor = (*Elicitor)(nil)

func (e *Elicitor) Elicit(ctx context.Context, message string, requestedSchema map[string]any) (*elicitation.Response, error) {
	res, err := e.requester.RequestElicitation(ctx, mcp.ElicitationRequest{
		Params: mcp.ElicitationParams{
			Message:         message,
			RequestedSchema: requestedSchema,
		},
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("empty elicitation response")
	}
	content, err := contentMap(res.Content)
	if err != nil {
		return nil, err
	}
	return &elicitation.Response{Action: string(res.Action), Content: content}, nil
}

func contentMap(v any) (map[string]any, error) {
	switch c := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return c, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode elicitation content: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("elicitation content is not an object: %w", err)
	}
	return m, nil
}
