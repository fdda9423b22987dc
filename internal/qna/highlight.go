package qna

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segment is a run of text, marked when it matched the search term.
// Renderers decide how to style matches; no markup is produced here.
type Segment struct {
	Text  string `json:"text"`
	Match bool   `json:"match"`
}

// Highlight splits text into segments around case-insensitive occurrences of
// term. The term is matched literally. An empty term yields one plain segment.
func Highlight(text, term string) []Segment {
	if text == "" {
		return nil
	}
	if term == "" {
		return []Segment{{Text: text}}
	}

	var segments []Segment
	pos := 0
	last := 0
	for pos < len(text) {
		n, ok := matchFold(text[pos:], term)
		if !ok {
			_, size := utf8.DecodeRuneInString(text[pos:])
			pos += size
			continue
		}
		if last < pos {
			segments = append(segments, Segment{Text: text[last:pos]})
		}
		segments = append(segments, Segment{Text: text[pos : pos+n], Match: true})
		pos += n
		last = pos
	}
	if last < len(text) {
		segments = append(segments, Segment{Text: text[last:]})
	}
	return segments
}

// matchFold reports whether s starts with term under simple case folding,
// returning the byte length consumed in s.
func matchFold(s, term string) (int, bool) {
	i := 0
	for _, tr := range term {
		if i >= len(s) {
			return 0, false
		}
		sr, size := utf8.DecodeRuneInString(s[i:])
		if sr != tr && unicode.ToLower(sr) != unicode.ToLower(tr) {
			return 0, false
		}
		i += size
	}
	return i, true
}

// PlainText joins segments back into the original text.
func PlainText(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}
