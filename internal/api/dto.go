package api

import (
	"time"

	"github.com/starford/hibi/internal/index"
	"github.com/starford/hibi/internal/models"
	"github.com/starford/hibi/internal/noteservice"
	"github.com/starford/hibi/internal/selection"
)

// MessageRequest is one chat message to append to a daily note.
type MessageRequest struct {
	Author      string              `json:"author" example:"alice"`
	Channel     string              `json:"channel" example:"memo"`
	Text        string              `json:"text" example:"read https://go.dev/blog" validate:"required"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
	// Timestamp defaults to the time the request is handled.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

func (m MessageRequest) toModel() models.Message {
	return models.Message{
		Author:      m.Author,
		Channel:     m.Channel,
		Text:        m.Text,
		Attachments: m.Attachments,
		Timestamp:   m.Timestamp,
	}
}

// MessageResponse reports where a message was written.
type MessageResponse struct {
	Ignored bool   `json:"ignored"`
	Path    string `json:"path,omitempty" example:"memos/2025-03-01.md"`
	Block   string `json:"block,omitempty"`
}

// RollupRequest selects the day to roll up. An empty date means today.
type RollupRequest struct {
	Date string `json:"date" example:"2025-03-01"`
}

// RollupResponse is the outcome of a rollup.
type RollupResponse struct {
	State   string   `json:"state" example:"done" validate:"required"`
	Reason  string   `json:"reason,omitempty" example:"already_done"`
	Date    string   `json:"date" example:"2025-03-01" validate:"required"`
	Message string   `json:"message" validate:"required"`
	Topics  []string `json:"topics"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// BacklinksResponse lists the notes linking to a target.
type BacklinksResponse struct {
	Target    string   `json:"target" example:"2025-03-01" validate:"required"`
	Backlinks []string `json:"backlinks" validate:"required"`
}

// TagsResponse lists tags with their note counts.
type TagsResponse struct {
	Tags []index.TagCount `json:"tags" validate:"required"`
}

// TagNotesResponse lists the notes carrying a tag.
type TagNotesResponse struct {
	Tag   string          `json:"tag" validate:"required"`
	Notes []index.NoteRow `json:"notes" validate:"required"`
}

// SelectionRequest opens a topic selection for text.
type SelectionRequest struct {
	Text string `json:"text" validate:"required"`
}

// ChoiceRequest picks one candidate of a selection.
type ChoiceRequest struct {
	Index  int              `json:"index" example:"0"`
	Action selection.Action `json:"action" example:"add" validate:"required"`
}

// ChoiceResponse aliases the workflow result.
type ChoiceResponse = selection.ChoiceResult
