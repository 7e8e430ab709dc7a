package freezer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/tabfreeze/kit"
)

// RegisterMCP registers the management tools on srv.
func (f *Freezer) RegisterMCP(srv *mcp.Server) {
	f.registerListTool(srv)
	f.registerRemoveTool(srv)
	f.registerResetTool(srv)
	f.registerIsFrozenTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func noArgs(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return &kit.MCPDecodeResult{}, nil
}

func (f *Freezer) register(srv *mcp.Server, tool *mcp.Tool, ep kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	kit.RegisterMCPTool(srv, tool, kit.Logging(f.logger, tool.Name)(ep), decode)
}

func (f *Freezer) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabfreeze_list",
		Description: "List frozen domains and the tabs blocked for each since startup.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	f.register(srv, tool, func(ctx context.Context, _ any) (any, error) {
		return map[string]any{
			"domains": f.Domains(ctx),
			"blocked": f.Blocked(),
		}, nil
	}, noArgs)
}

type domainReq struct {
	Domain string `json:"domain"`
}

func (f *Freezer) registerRemoveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabfreeze_remove",
		Description: "Unfreeze one domain (exact hostname).",
		InputSchema: inputSchema(map[string]any{
			"domain": map[string]any{"type": "string", "description": "Hostname, e.g. news.example.com"},
		}, []string{"domain"}),
	}
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r domainReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.Domain == "" {
			return nil, errors.New("domain is required")
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}
	f.register(srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*domainReq)
		domain, was, err := f.Remove(ctx, r.Domain)
		if err != nil {
			return nil, err
		}
		return map[string]any{"domain": domain, "was_frozen": was}, nil
	}, decode)
}

func (f *Freezer) registerResetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabfreeze_reset",
		Description: "Unfreeze every domain.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	f.register(srv, tool, func(ctx context.Context, _ any) (any, error) {
		if err := f.Reset(ctx); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	}, noArgs)
}

type urlReq struct {
	URL string `json:"url"`
}

func (f *Freezer) registerIsFrozenTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabfreeze_is_frozen",
		Description: "Report whether new tabs spawned from a page at this URL would be closed.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Page URL"},
		}, []string{"url"}),
	}
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r urlReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}
	f.register(srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*urlReq)
		return map[string]any{"url": r.URL, "frozen": f.IsFrozen(ctx, r.URL)}, nil
	}, decode)
}
