package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/echochamber/internal/composer"
	"github.com/starford/echochamber/internal/index"
	"github.com/starford/echochamber/internal/render"
	"github.com/starford/echochamber/internal/settings"
	"github.com/starford/echochamber/internal/storage"
	"github.com/starford/echochamber/internal/testutil"
	"github.com/starford/echochamber/internal/timeline"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testServer(t *testing.T) (*Server, string, *storage.FS) {
	t.Helper()
	return testServerWithCache(t, testutil.TestDB(t))
}

func testServerWithCache(t *testing.T, db index.HeaderCache) (*Server, string, *storage.FS) {
	t.Helper()

	vault, store := testutil.TestVault(t)
	cfg := testutil.TestSettings(t)
	logger := testutil.QuietLogger()

	tl := timeline.New(cfg, store, db, render.NewMarkdown(), timeline.WithLogger(logger))
	t.Cleanup(tl.Flush)
	comp := composer.New(cfg, store, tl, composer.WithLogger(logger))

	return New(tl, comp, cfg, store), vault, store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_posts":
		result, err = srv.listPosts(ctx, req)
	case "read_post":
		result, err = srv.readPost(ctx, req)
	case "compose_post":
		result, err = srv.composePost(ctx, req)
	case "toggle_like":
		result, err = srv.toggleLike(ctx, req)
	case "get_settings":
		result, err = srv.getSettings(ctx, req)
	case "get_post_format":
		result, err = srv.getPostFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestComposeAndReadPost(t *testing.T) {
	srv, _, _ := testServer(t)

	r := callTool(t, srv, "compose_post", map[string]any{"text": "hello from an agent"})
	text := resultText(r)
	if r.IsError || !strings.HasPrefix(text, "created: posts/") {
		t.Fatalf("compose result = %q", text)
	}
	path := strings.TrimPrefix(text, "created: ")

	r = callTool(t, srv, "read_post", map[string]any{"path": path})
	body := resultText(r)
	if !strings.HasPrefix(body, "---\n") || !strings.HasSuffix(body, "hello from an agent") {
		t.Errorf("read result = %q", body)
	}
	if !strings.Contains(body, "author_display_name: You") {
		t.Errorf("identity missing from header: %q", body)
	}
}

func TestComposeBlank(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "compose_post", map[string]any{"text": "   "})
	if !r.IsError {
		t.Error("expected error for blank text")
	}
}

func TestListPosts(t *testing.T) {
	srv, vault, _ := testServer(t)
	testutil.WritePost(t, vault, "posts/old.md", "old", baseTime)
	testutil.WritePost(t, vault, "posts/new.md", "---\nauthor_username: ada\n---\nnew", baseTime.Add(time.Minute))
	testutil.WritePost(t, vault, "elsewhere.md", "ignored", baseTime.Add(time.Hour))

	r := callTool(t, srv, "list_posts", map[string]any{})
	var res listResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.State != timeline.StateListed || len(res.Posts) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Posts[0].Path != "posts/new.md" || res.Posts[0].Username != "ada" {
		t.Errorf("first = %+v", res.Posts[0])
	}
	if res.Posts[1].DisplayName != "Unknown" {
		t.Errorf("fallback name = %q", res.Posts[1].DisplayName)
	}
}

func TestListPosts_MissingFolder(t *testing.T) {
	srv, _, _ := testServer(t)

	r := callTool(t, srv, "list_posts", map[string]any{})
	var res listResult
	_ = json.Unmarshal([]byte(resultText(r)), &res)
	if res.State != timeline.StateMissing || res.Message != `No posts at "posts".` {
		t.Errorf("result = %+v", res)
	}
}

func TestToggleLike(t *testing.T) {
	srv, vault, store := testServer(t)
	testutil.WritePost(t, vault, "posts/a.md", "body text", baseTime)

	r := callTool(t, srv, "toggle_like", map[string]any{"path": "posts/a.md"})
	if r.IsError {
		t.Fatalf("toggle failed: %s", resultText(r))
	}
	if text := resultText(r); text != `{"liked":true,"path":"posts/a.md"}` {
		t.Errorf("toggle result = %q", text)
	}

	data, err := store.Read("posts/a.md")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "---\nliked: true\n---\nbody text" {
		t.Errorf("persisted = %q", data)
	}
}

func TestToggleLike_NoCache(t *testing.T) {
	srv, vault, _ := testServerWithCache(t, nil)
	testutil.WritePost(t, vault, "posts/a.md", "---\nliked: true\nauthor_username: ada\n---\nbody", baseTime)

	r := callTool(t, srv, "toggle_like", map[string]any{"path": "posts/a.md"})
	if text := resultText(r); r.IsError || text != `{"liked":false,"path":"posts/a.md"}` {
		t.Fatalf("toggle result = %q", text)
	}

	var res listResult
	if err := json.Unmarshal([]byte(resultText(callTool(t, srv, "list_posts", map[string]any{}))), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Posts) != 1 || res.Posts[0].Liked || res.Posts[0].Username != "ada" {
		t.Errorf("posts = %+v", res.Posts)
	}
}

func TestToggleLike_Unknown(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "toggle_like", map[string]any{"path": "posts/ghost.md"})
	if !r.IsError {
		t.Error("expected error for unknown post")
	}
}

func TestReadPostMissing(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "read_post", map[string]any{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing post")
	}
}

func TestGetSettings(t *testing.T) {
	srv, _, _ := testServer(t)
	var got settings.Settings
	if err := json.Unmarshal([]byte(resultText(callTool(t, srv, "get_settings", nil))), &got); err != nil {
		t.Fatal(err)
	}
	if got != settings.Defaults() {
		t.Errorf("settings = %+v", got)
	}
}

func TestPostFormat(t *testing.T) {
	srv, _, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_post_format", nil))
	for _, want := range []string{"liked", "author_username", "author_display_name"} {
		if !strings.Contains(text, want) {
			t.Errorf("format missing %q", want)
		}
	}

	contents, err := srv.readPostFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc := contents[0].(mcp.TextResourceContents); tc.URI != postFormatURI {
		t.Errorf("uri = %q", tc.URI)
	}
}
