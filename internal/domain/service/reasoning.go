package service

import (
	"regexp"
	"strings"
)

// reasoningTagRe matches opening and closing reasoning tags emitted by
// thinking models, e.g. <think>, </thinking>, <thought>.
var reasoningTagRe = regexp.MustCompile(`(?i)<\s*(/?)\s*(?:think|thinking|thought|antthinking)\b[^<>]*>`)

// stripReasoning removes reasoning blocks from a completion. Tags inside
// fenced code blocks are left alone; an unclosed block drops the rest of
// the text.
func stripReasoning(text string) string {
	if !reasoningTagRe.MatchString(text) {
		return text
	}

	var out strings.Builder
	inReasoning := false
	for i, segment := range strings.Split(text, "```") {
		if i > 0 && !inReasoning {
			out.WriteString("```")
		}
		if i%2 == 1 {
			// inside a fence
			if !inReasoning {
				out.WriteString(segment)
			}
			continue
		}
		last := 0
		for _, m := range reasoningTagRe.FindAllStringSubmatchIndex(segment, -1) {
			closing := m[3] > m[2]
			if !inReasoning {
				out.WriteString(segment[last:m[0]])
				inReasoning = !closing
			} else if closing {
				inReasoning = false
			}
			last = m[1]
		}
		if !inReasoning {
			out.WriteString(segment[last:])
		}
	}
	return strings.TrimSpace(out.String())
}
