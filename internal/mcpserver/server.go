// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the feed to LLM agents via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/echochamber/internal/apperr"
	"github.com/starford/echochamber/internal/models"
	"github.com/starford/echochamber/internal/settings"
	"github.com/starford/echochamber/internal/storage"
	"github.com/starford/echochamber/internal/timeline"
)

const postFormatURI = "echochamber://post-format"

// Feed is the timeline as used by the tools.
type Feed interface {
	RenderFull(ctx context.Context) error
	View() timeline.View
	ToggleLike(path string) (bool, error)
	Flush()
}

// Poster creates posts.
type Poster interface {
	Submit(ctx context.Context, text string) (string, error)
}

// SettingsSource provides the current settings.
type SettingsSource interface {
	Get() settings.Settings
}

// Server wraps the MCP server with the feed tools.
type Server struct {
	mcp      *server.MCPServer
	feed     Feed
	poster   Poster
	settings SettingsSource
	store    storage.Provider
}

type postSummary struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
	Posted      string `json:"posted"`
	Liked       bool   `json:"liked"`
}

type listResult struct {
	State   timeline.State `json:"state"`
	Message string         `json:"message,omitempty"`
	Posts   []postSummary  `json:"posts"`
}

// New creates a new MCP server with all tools registered.
func New(feed Feed, poster Poster, cfg SettingsSource, store storage.Provider) *Server {
	s := &Server{feed: feed, poster: poster, settings: cfg, store: store}

	s.mcp = server.NewMCPServer(
		"echochamber",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_posts",
		mcp.WithDescription("List the posts on the timeline, newest first, with author, relative time and liked state."),
	), s.listPosts)

	s.mcp.AddTool(mcp.NewTool("read_post",
		mcp.WithDescription("Read the raw Markdown of a post, header block included."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path of the post (e.g. posts/2025-03-01T09-30-15-123Z.md)")),
	), s.readPost)

	s.mcp.AddTool(mcp.NewTool("compose_post",
		mcp.WithDescription("Publish a new post as the configured user. The text is the Markdown body; "+
			"the header block is added automatically. Blank text is rejected."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Markdown body of the post")),
	), s.composePost)

	s.mcp.AddTool(mcp.NewTool("toggle_like",
		mcp.WithDescription("Flip the liked state of a post on the timeline and return the new state."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path of the post")),
	), s.toggleLike)

	s.mcp.AddTool(mcp.NewTool("get_settings",
		mcp.WithDescription("Return the posts folder and the posting identity."),
	), s.getSettings)

	s.mcp.AddTool(mcp.NewTool("get_post_format",
		mcp.WithDescription("Returns the post format: header fields, naming and ordering rules. "+
			"Read it before writing post files directly."),
	), s.getPostFormat)

	s.mcp.AddResource(
		mcp.NewResource(postFormatURI, "Post Format",
			mcp.WithResourceDescription("On-disk format of echochamber posts."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPostFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listPosts(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// The stdio process runs without a watcher, so every listing starts from disk.
	_ = s.feed.RenderFull(ctx)
	v := s.feed.View()

	res := listResult{State: v.State, Message: v.Message, Posts: []postSummary{}}
	for _, e := range v.Entries {
		res.Posts = append(res.Posts, postSummary{
			Path:        e.Path,
			DisplayName: e.DisplayName,
			Username:    e.Username,
			Posted:      e.Posted,
			Liked:       e.Liked,
		})
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.store.Stat(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if info.Kind != models.KindFile {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	data, err := s.store.Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) composePost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := s.poster.Submit(ctx, text)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrEmptyPost):
			return mcp.NewToolResultError("text is blank"), nil
		case errors.Is(err, apperr.ErrNotFolder):
			return mcp.NewToolResultError("posts folder path is a file"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", path)), nil
}

func (s *Server) toggleLike(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	liked, err := s.feed.ToggleLike(path)
	if errors.Is(err, apperr.ErrNotFound) {
		// The post may be newer than the last render.
		_ = s.feed.RenderFull(ctx)
		liked, err = s.feed.ToggleLike(path)
	}
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not on the timeline: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.feed.Flush()

	out, _ := json.Marshal(map[string]any{"path": path, "liked": s.likedNow(path, liked)})
	return mcp.NewToolResultText(string(out)), nil
}

// likedNow reports the state after in-flight writes settled. A failed write
// reverts the visible state.
func (s *Server) likedNow(path string, fallback bool) bool {
	for _, e := range s.feed.View().Entries {
		if e.Path == path {
			return e.Liked
		}
	}
	return fallback
}

func (s *Server) getSettings(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, _ := json.MarshalIndent(s.settings.Get(), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getPostFormat(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PostFormat), nil
}

func (s *Server) readPostFormatResource(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      postFormatURI,
			MIMEType: "text/markdown",
			Text:     PostFormat,
		},
	}, nil
}
