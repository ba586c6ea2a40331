// Package delivery turns a final reply into a human-paced sequence of chunks
// and sends them with presence signaling.
package delivery

import (
	"regexp"
	"strings"
)

// Protected atomic tokens are never split across chunks: URLs and long
// payment-style codes (PIX copy-paste strings, boleto lines).
var (
	urlPattern  = regexp.MustCompile(`(?:https?://|www\.)\S+`)
	codePattern = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9.+/=-]{24,}`)

	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
	sentenceEnd    = regexp.MustCompile(`[.!?…]+[\s]+`)
)

// Splitter splits reply text into chunks sized for natural reading.
type Splitter struct {
	// MinLength merges fragments shorter than this into the previous chunk.
	MinLength int
	// MaxLength triggers sentence-level splitting of long paragraphs.
	MaxLength int
}

// NewSplitter creates a splitter with the given bounds.
func NewSplitter(minLength, maxLength int) *Splitter {
	if minLength <= 0 {
		minLength = 40
	}
	if maxLength <= minLength {
		maxLength = minLength * 7
	}
	return &Splitter{MinLength: minLength, MaxLength: maxLength}
}

// Split divides text into chunks: paragraph boundaries first, then sentence
// boundaries inside over-long paragraphs, never inside a protected token, and
// fragments under MinLength merge into the previous chunk.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var fragments []string
	for _, para := range paragraphSplit.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= s.MaxLength {
			fragments = append(fragments, para)
			continue
		}
		fragments = append(fragments, splitSentences(para)...)
	}

	return s.merge(fragments)
}

// splitSentences splits a paragraph on sentence boundaries that do not fall
// inside a protected token.
func splitSentences(para string) []string {
	protected := protectedSpans(para)

	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(para, -1) {
		// loc[1] is the position right after the boundary whitespace; the
		// sentence ends at loc[1], trimmed later.
		if insideSpan(protected, loc[0]) || insideSpan(protected, loc[1]-1) {
			continue
		}
		out = append(out, strings.TrimSpace(para[start:loc[1]]))
		start = loc[1]
	}
	if rest := strings.TrimSpace(para[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

type span struct{ start, end int }

func protectedSpans(text string) []span {
	var spans []span
	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		spans = append(spans, span{loc[0], loc[1]})
	}
	for _, loc := range codePattern.FindAllStringIndex(text, -1) {
		spans = append(spans, span{loc[0], loc[1]})
	}
	return spans
}

func insideSpan(spans []span, pos int) bool {
	for _, sp := range spans {
		if pos >= sp.start && pos < sp.end {
			return true
		}
	}
	return false
}

// merge folds fragments shorter than MinLength into the previous chunk.
func (s *Splitter) merge(fragments []string) []string {
	var chunks []string
	for _, frag := range fragments {
		if len(chunks) > 0 && len(frag) < s.MinLength {
			chunks[len(chunks)-1] += "\n" + frag
			continue
		}
		chunks = append(chunks, frag)
	}
	return chunks
}
