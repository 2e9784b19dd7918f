package chunker

import (
	"strings"

	"github.com/clipperhouse/uax29/v2/sentences"
)

// splitSentences tokenizes text into trimmed, non-empty UAX#29 sentences.
func splitSentences(text string) []string {
	var out []string
	seg := sentences.FromString(text)
	for seg.Next() {
		s := strings.TrimSpace(seg.Value())
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
