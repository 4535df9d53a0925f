// Package parser extracts sections, wikilinks, and tags from note content.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/hibi/internal/models"
)

// Tag lines equal to one of these mark a rollup whose annotation failed.
const (
	ErrorTag    = "#error"
	APILimitTag = "#api-limit-error"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_][\p{L}\p{N}_/-]*)`)
)

// Result holds the output of parsing a note file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Links       []string
	Tags        []string
	Title       string
}

// Parse extracts frontmatter, body, wikilinks, and tags from raw note bytes.
func Parse(data []byte) (*Result, error) {
	fm, body := splitFrontmatter(data)

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Links:       extractLinks(body),
		Tags:        extractTags(body, fm),
		Title:       deriveTitle(fm, body),
	}, nil
}

// SplitMemo returns the memo section of a daily note: the text between the
// first and second occurrence of the memo marker. ok is false when the
// marker is absent.
func SplitMemo(content string) (memo string, ok bool) {
	parts := strings.Split(content, models.MemoMarker)
	if len(parts) < 2 {
		return "", false
	}
	return parts[1], true
}

// HasSummary reports whether content already carries a rollup summary.
func HasSummary(content string) bool {
	return strings.Contains(content, models.SummaryMarker)
}

// IsFailureTagLine reports whether a rollup tag line is one of the machine
// markers rather than real tags.
func IsFailureTagLine(line string) bool {
	line = strings.TrimSpace(line)
	return line == ErrorTag || line == APILimitTag
}

// TagLine splits a space-separated "#a #b" line into tag names.
func TagLine(line string) []string {
	var out []string
	for _, f := range strings.Fields(line) {
		name := strings.TrimPrefix(f, "#")
		if name != "" && f != name {
			out = append(out, name)
		}
	}
	return out
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body. Daily notes carry a "---" rule after their navigation line,
// so only a file that starts with the delimiter has frontmatter.
func splitFrontmatter(data []byte) (map[string]interface{}, string) {
	const delim = "---"

	if !bytes.HasPrefix(data, []byte(delim+"\n")) {
		return nil, string(data)
	}
	rest := data[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	var fm map[string]interface{}
	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil {
		return nil, string(data)
	}
	body := strings.TrimLeft(string(rest[idx+1+len(delim):]), "\n\r")
	return fm, body
}

// extractLinks returns deduplicated wikilink targets, normalising aliases.
func extractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := m[1]
		// [[Target|Alias]] → Target.
		if i := strings.Index(target, "|"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// extractTags collects #tags from the body and the frontmatter "tags" field,
// skipping the rollup failure markers.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := map[string]struct{}{
		strings.TrimPrefix(ErrorTag, "#"):    {},
		strings.TrimPrefix(APILimitTag, "#"): {},
	}
	var out []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	if raw, ok := fm["tags"].([]interface{}); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter title, else the first H1 heading, else
// the first non-empty line (the date line of a daily note).
func deriveTitle(fm map[string]interface{}, body string) string {
	if s, ok := fm["title"].(string); ok && s != "" {
		return s
	}
	first := ""
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
		if first == "" && trimmed != "" {
			first = trimmed
		}
	}
	return first
}
