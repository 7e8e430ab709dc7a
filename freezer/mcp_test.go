package freezer

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/tabfreeze/host"
	"github.com/hazyhaar/tabfreeze/policy"
)

var testMCPImpl = &mcp.Implementation{Name: "tabfreeze-test", Version: "0.1.0"}

func mcpSession(t *testing.T, f *Freezer) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	f.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func TestMCP_ListRemoveReset(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, policy.Domains{"a.com": true, "b.com": true})
	opener := fx.host.AddTab(host.TabRef{URL: "https://a.com/"})
	fx.f.Guard().Handle(ctx, fx.host.AddTab(host.TabRef{OpenerID: opener.ID, PendingURL: "https://x/"}))
	session := mcpSession(t, fx.f)

	var list struct {
		Domains []string       `json:"domains"`
		Blocked map[string]int `json:"blocked"`
	}
	if err := json.Unmarshal([]byte(mcpCallTool(t, session, "tabfreeze_list", map[string]any{})), &list); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(list.Domains, []string{"a.com", "b.com"}) {
		t.Fatalf("domains = %v", list.Domains)
	}
	if list.Blocked["a.com"] != 1 {
		t.Fatalf("blocked = %v", list.Blocked)
	}

	var removed struct {
		Domain    string `json:"domain"`
		WasFrozen bool   `json:"was_frozen"`
	}
	json.Unmarshal([]byte(mcpCallTool(t, session, "tabfreeze_remove", map[string]any{"domain": " A.COM"})), &removed)
	if !removed.WasFrozen || removed.Domain != "a.com" {
		t.Fatalf("remove = %+v, want a.com was frozen", removed)
	}
	item, _ := fx.host.Menu(ForceOpenMenuID)
	if !reflect.DeepEqual(item.Patterns, []string{"*://b.com/*"}) {
		t.Fatalf("menu patterns = %v", item.Patterns)
	}

	var frozen struct {
		Frozen bool `json:"frozen"`
	}
	json.Unmarshal([]byte(mcpCallTool(t, session, "tabfreeze_is_frozen", map[string]any{"url": "https://b.com/x"})), &frozen)
	if !frozen.Frozen {
		t.Fatal("b.com should be frozen")
	}

	mcpCallTool(t, session, "tabfreeze_reset", map[string]any{})
	if got := fx.f.Domains(ctx); len(got) != 0 {
		t.Fatalf("domains after reset = %v", got)
	}
}

func TestMCP_RemoveRequiresDomain(t *testing.T) {
	fx := newFixture(t, nil)
	session := mcpSession(t, fx.f)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "tabfreeze_remove",
		Arguments: map[string]any{"domain": ""},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for empty domain")
	}
}
