package annotate

import "strings"

const (
	sectionDelim = "---"
	tagPrefix    = "[TAG:"
)

// parseAnnotation splits a model response into summary, tag line, and per-tag
// explanations. It reports false when there is no tag line segment at all.
// Malformed or empty tag segments are skipped. A repeated tag keeps its first
// position and its last body.
func parseAnnotation(raw string) (Annotation, bool) {
	sections := strings.Split(strings.TrimSpace(raw), sectionDelim)
	if len(sections) < 2 {
		return Annotation{}, false
	}

	var a Annotation
	a.Summary = strings.TrimSpace(sections[0])
	a.TagLine = strings.TrimSpace(sections[1])

	pos := make(map[string]int)
	for _, sec := range sections[2:] {
		part := strings.TrimSpace(sec)
		if !strings.HasPrefix(part, tagPrefix) {
			continue
		}
		end := strings.Index(part, "]")
		if end < 0 {
			continue
		}
		tag := strings.TrimSpace(part[len(tagPrefix):end])
		if tag == "" {
			continue
		}
		body := strings.TrimSpace(part[end+1:])

		if i, ok := pos[tag]; ok {
			a.Explanations[i].Body = body
			continue
		}
		pos[tag] = len(a.Explanations)
		a.Explanations = append(a.Explanations, TagExplanation{Tag: tag, Body: body})
	}
	return a, true
}

// parseTopics splits a newline-separated keyword list. Lines are kept
// verbatim; blank lines are left for the caller to drop.
func parseTopics(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}
