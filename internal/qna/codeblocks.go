package qna

import (
	"regexp"
	"strings"
)

// CodeKind distinguishes fenced blocks from inline spans.
type CodeKind string

const (
	CodeKindBlock  CodeKind = "block"
	CodeKindInline CodeKind = "inline"
)

// CodeBlock is one piece of code found in an answer.
type CodeBlock struct {
	ID       int      `json:"id"`
	Kind     CodeKind `json:"kind"`
	Language string   `json:"language"`
	Code     string   `json:"code"`
	Full     string   `json:"-"` // matched source including delimiters
}

// fencedBlockPattern matches ```lang\n ... ``` blocks. The language tag is optional.
var fencedBlockPattern = regexp.MustCompile("```(\\w+)?\\n([\\s\\S]*?)```")

// inlineCodePattern matches `code` spans.
var inlineCodePattern = regexp.MustCompile("`([^`]+)`")

// ExtractCodeBlocks returns every fenced block, then every inline span, with
// sequential ids across both. Inline spans inside a fenced block are skipped.
func ExtractCodeBlocks(text string) []CodeBlock {
	if text == "" {
		return nil
	}

	var blocks []CodeBlock
	fenced := fencedBlockPattern.FindAllStringSubmatchIndex(text, -1)
	ranges := make([][2]int, 0, len(fenced))
	for _, m := range fenced {
		// m: [fullStart, fullEnd, langStart, langEnd, bodyStart, bodyEnd]
		lang := "text"
		if m[2] >= 0 {
			lang = text[m[2]:m[3]]
		}
		blocks = append(blocks, CodeBlock{
			ID:       len(blocks),
			Kind:     CodeKindBlock,
			Language: lang,
			Code:     strings.TrimSpace(text[m[4]:m[5]]),
			Full:     text[m[0]:m[1]],
		})
		ranges = append(ranges, [2]int{m[0], m[1]})
	}

	for _, m := range inlineCodePattern.FindAllStringSubmatchIndex(maskRanges(text, ranges), -1) {
		blocks = append(blocks, CodeBlock{
			ID:       len(blocks),
			Kind:     CodeKindInline,
			Language: "text",
			Code:     text[m[2]:m[3]],
			Full:     text[m[0]:m[1]],
		})
	}

	return blocks
}

// HasCode reports whether text contains any code.
func HasCode(text string) bool {
	return len(ExtractCodeBlocks(text)) > 0
}

// maskRanges blanks the given byte ranges with spaces so that later scans
// keep their offsets but cannot pair a backtick across a fenced block.
func maskRanges(text string, ranges [][2]int) string {
	if len(ranges) == 0 {
		return text
	}
	masked := []byte(text)
	for _, r := range ranges {
		for i := r[0]; i < r[1]; i++ {
			masked[i] = ' '
		}
	}
	return string(masked)
}
