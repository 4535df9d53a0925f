// Package models defines the domain types for hibi.
package models

import (
	"strings"
	"time"
)

// Section markers of a daily note. They are part of the on-disk format.
const (
	MemoMarker    = "## メモ"
	SummaryMarker = "## まとめ"
	DetailMarker  = "## 詳細ノート"
)

// DateLayout is the calendar-date layout used for note names and wikilinks.
const DateLayout = "2006-01-02"

// NoteKind distinguishes daily notes from topic notes.
type NoteKind string

const (
	KindDaily NoteKind = "daily"
	KindTopic NoteKind = "topic"
)

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attachment is a file sent along with a chat message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// IsImage reports whether the attachment declares an image content type.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.ContentType, "image/")
}

// Message is one inbound chat event as delivered by the gateway.
type Message struct {
	Author      string       `json:"author"`
	Channel     string       `json:"channel"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// URLMetadata is the link preview for the first URL in a message.
type URLMetadata struct {
	URL         string
	Title       string
	Description string
	ImageURL    string
	// Failed is set when the page could not be fetched or parsed; Description
	// then holds the failure text.
	Failed bool
}

// Summary renders the preview as embedded in the memo block.
func (m URLMetadata) Summary() string {
	if m.Failed {
		return m.Description
	}
	return "タイトル: " + m.Title + "\n説明: " + m.Description
}

// MemoEntry is one message as rendered into the memo section. It is never
// persisted on its own.
type MemoEntry struct {
	Timestamp   time.Time
	Text        string
	Attachments []string
	URL         *URLMetadata
	Thumbnail   string
	Supplement  string
}

// Render returns the fixed text block appended to the daily note.
func (e MemoEntry) Render() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(e.Timestamp.Format("15:04"))
	b.WriteString(" -\n ")
	b.WriteString(e.Text)
	b.WriteString("\n")

	for _, name := range e.Attachments {
		b.WriteString("\n![[" + name + "]]\n")
	}
	if e.URL != nil {
		b.WriteString("\n> URLの概要:\n")
		b.WriteString(Quote(e.URL.Summary()))
		if e.Thumbnail != "" {
			b.WriteString("\n![[" + e.Thumbnail + "]]\n")
		}
	}
	if e.Supplement != "" {
		b.WriteString("\n> AI補足:\n")
		b.WriteString(Quote(e.Supplement))
	}
	return b.String()
}

// Quote prefixes every line of s with "> " and terminates it with a newline.
func Quote(s string) string {
	return "> " + strings.ReplaceAll(s, "\n", "\n> ") + "\n"
}

// Wikilink formats target as [[target]].
func Wikilink(target string) string {
	return "[[" + target + "]]"
}
