package harvest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/presse/kit"
)

// RegisterMCP registers all presse tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerExtract(srv)
	s.registerStats(srv)
	s.registerSweep(srv)
	s.registerCheckPaywall(srv)
	s.registerRenewCookies(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sc["required"] = required
	}
	return sc
}

func (s *Service) registerExtract(srv *mcp.Server) {
	type req struct {
		URL            string `json:"url"`
		Title          string `json:"title"`
		Force          bool   `json:"force"`
		SkipValidation bool   `json:"skip_validation"`
	}

	tool := &mcp.Tool{
		Name:        "presse_extract",
		Description: "Fetch a news article URL and extract its full text through the fetch and extraction cascades",
		InputSchema: inputSchema(map[string]any{
			"url":             map[string]any{"type": "string", "description": "Article URL"},
			"title":           map[string]any{"type": "string", "description": "Expected article title, improves validation"},
			"force":           map[string]any{"type": "boolean", "description": "Re-process even if already extracted"},
			"skip_validation": map[string]any{"type": "boolean", "description": "Accept the first non-empty fetch without quality checks"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if p.URL == "" {
			return nil, fmt.Errorf("url is required")
		}
		res := s.ProcessURL(ctx, URLInput{URL: p.URL, Title: p.Title}, Options{
			Force:          p.Force,
			SkipValidation: p.SkipValidation,
		})
		return res, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (s *Service) registerStats(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "presse_stats",
		Description: "Report processing totals by status and method plus selector cache counters",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.Stats(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (s *Service) registerSweep(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "presse_sweep_cache",
		Description: "Evict selector cache entries whose success rate fell below the configured threshold",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		removed, err := s.Sweep(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"removed": len(removed), "patterns": removed}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (s *Service) registerCheckPaywall(srv *mcp.Server) {
	type req struct {
		HTML string `json:"html"`
		URL  string `json:"url"`
	}

	tool := &mcp.Tool{
		Name:        "presse_check_paywall",
		Description: "Judge whether an HTML page is paywalled",
		InputSchema: inputSchema(map[string]any{
			"html": map[string]any{"type": "string", "description": "Raw page HTML"},
			"url":  map[string]any{"type": "string", "description": "Page URL, for logging"},
		}, []string{"html"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if p.HTML == "" {
			return nil, fmt.Errorf("html is required")
		}
		return map[string]any{"is_paywall": s.DetectPaywall(ctx, p.HTML, p.URL)}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (s *Service) registerRenewCookies(srv *mcp.Server) {
	type req struct {
		Domain string `json:"domain"`
	}

	tool := &mcp.Tool{
		Name:        "presse_renew_cookies",
		Description: "Renew stored authentication cookies for a domain by revisiting it in a browser session",
		InputSchema: inputSchema(map[string]any{
			"domain": map[string]any{"type": "string", "description": "Domain whose cookies to renew"},
		}, []string{"domain"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if p.Domain == "" {
			return nil, fmt.Errorf("domain is required")
		}
		if err := s.RenewCookies(ctx, p.Domain); err != nil {
			return nil, err
		}
		return map[string]any{"renewed": true, "domain": p.Domain}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
