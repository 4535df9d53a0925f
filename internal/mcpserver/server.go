// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes hibi tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/hibi/internal/apperr"
	"github.com/starford/hibi/internal/models"
	"github.com/starford/hibi/internal/noteservice"
)

// NoteFormatURI is the resource URI of the note format contract.
const NoteFormatURI = "hibi://note-format"

// Server wraps the MCP server with hibi tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all hibi tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"hibi",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("append_memo",
		mcp.WithDescription("Append a memo to today's daily note. URLs are previewed and an AI supplement is added, "+
			"exactly as for chat messages. Use attach_image first to embed pictures."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Memo text")),
		mcp.WithString("channel", mcp.Description("Channel identifier, subject to the configured allowlist")),
	), s.appendMemo)

	s.mcp.AddTool(mcp.NewTool("rollup_day",
		mcp.WithDescription("Summarize a day's memos, add tags and write topic notes. "+
			"Skipped when the day is already summarized or has no memos."),
		mcp.WithString("date", mcp.Description("Date as YYYY-MM-DD (default today)")),
	), s.rollupDay)

	s.mcp.AddTool(mcp.NewTool("read_daily_note",
		mcp.WithDescription("Read the full content of a daily note."),
		mcp.WithString("date", mcp.Description("Date as YYYY-MM-DD (default today)")),
	), s.readDailyNote)

	s.mcp.AddTool(mcp.NewTool("read_topic_note",
		mcp.WithDescription("Read the topic note written for a tag."),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag name without #")),
	), s.readTopicNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through daily and topic notes."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to a date (YYYY-MM-DD) or a topic tag."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Link target")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List tags with the number of notes carrying each."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("extract_topics",
		mcp.WithDescription("Extract up to five keywords from a text."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Source text")),
	), s.extractTopics)

	s.mcp.AddTool(mcp.NewTool("lookup_topic",
		mcp.WithDescription("Generate a short overview of a topic. Nothing is written to the notes."),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Topic or keyword")),
	), s.lookupTopic)

	s.mcp.AddTool(mcp.NewTool("attach_image",
		mcp.WithDescription("Store an image in the vault and return the ![[name]] embed to include in append_memo."),
		mcp.WithString("data", mcp.Required(), mcp.Description("Image as a base64 data URI (data:image/png;base64,...)")),
		mcp.WithString("filename", mcp.Description("Optional file name; generated when empty")),
	), s.attachImage)

	s.mcp.AddTool(mcp.NewTool("get_note_format",
		mcp.WithDescription("Returns the layout of hibi daily and topic notes. "+
			"Call this before interpreting note content."),
	), s.getNoteFormat)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource(NoteFormatURI, "Note Format",
			mcp.WithResourceDescription("Layout of daily notes, topic notes and stored images."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
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

// toolError turns a service error into a short tool error message.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found")
	case errors.Is(err, apperr.ErrAlreadyExists):
		return mcp.NewToolResultError("already exists")
	case apperr.IsStorage(err):
		return mcp.NewToolResultError("ノートの保存に失敗しました。")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) appendMemo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.AppendMessage(ctx, models.Message{
		Author:  "mcp",
		Channel: req.GetString("channel", ""),
		Text:    text,
	})
	if err != nil {
		return toolError(err), nil
	}
	if res.Ignored {
		return mcp.NewToolResultText("ignored: channel not allowed"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("appended to %s:\n%s", res.Path, res.Block)), nil
}

func (s *Server) rollupDay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.svc.Rollup(ctx, req.GetString("date", ""))
	if err != nil {
		if out.Message != "" {
			return mcp.NewToolResultError(out.Message), nil
		}
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"state":   out.State,
		"reason":  out.Reason,
		"date":    out.Date.Format(models.DateLayout),
		"message": out.Message,
		"topics":  out.Topics,
	}), nil
}

func (s *Server) readDailyNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	note, err := s.svc.DailyNote(ctx, req.GetString("date", ""))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) readTopicNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := req.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.TopicNote(ctx, strings.TrimPrefix(tag, "#"))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, target)
	if err != nil {
		return toolError(err), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) listTags(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.svc.Tags(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(tags), nil
}

func (s *Server) extractTopics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topics, err := s.svc.ExtractTopics(ctx, text)
	if err != nil {
		return toolError(err), nil
	}
	if len(topics.Items) == 0 {
		return mcp.NewToolResultText("no topics found"), nil
	}
	return mcp.NewToolResultText(strings.Join(topics.Items, "\n")), nil
}

func (s *Server) lookupTopic(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic, err := req.RequireString("topic")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := s.svc.LookupTopic(ctx, topic)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(text.Text), nil
}

func (s *Server) getNoteFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      NoteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
