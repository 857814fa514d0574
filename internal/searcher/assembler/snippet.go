package assembler

import (
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

const ellipsis = "..."

// flattener maps line breaks and tabs to spaces byte for byte, so
// highlight offsets computed on the original text stay valid. Invalid
// UTF-8 passes through untouched.
var flattener = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ")

// snippet cuts about length bytes of text around the first matching token,
// starting up to context bytes before it. Cuts fall on whitespace when
// possible. Highlight spans are byte offsets into the returned snippet.
func snippet(tok *tokenizer.Tokenizer, text string, m *matcher, length, context int) (string, []Span) {
	if text == "" {
		return "", nil
	}
	first, firstEnd := -1, 0
	for t := range tok.Tokens(text) {
		if m.match(t) {
			first, firstEnd = t.Start, t.End
			break
		}
	}

	start := 0
	if first > 0 {
		start = alignStart(text, max(0, first-context), first)
	}
	end := start + length
	if end >= len(text) {
		end = len(text)
	} else {
		end = alignEnd(text, end, min(max(firstEnd, start), end))
	}

	var b strings.Builder
	offset := 0
	if start > 0 {
		b.WriteString(ellipsis)
		offset = len(ellipsis)
	}
	b.WriteString(flattener.Replace(text[start:end]))
	if end < len(text) {
		b.WriteString(ellipsis)
	}
	return b.String(), highlight(tok, text, start, end, offset, m)
}

// alignStart moves start forward to a rune boundary and then past the
// first whitespace before limit, so the snippet opens on a whole word.
func alignStart(text string, start, limit int) int {
	for start < limit && !utf8.RuneStart(text[start]) {
		start++
	}
	if start == 0 {
		return 0
	}
	if i := strings.IndexAny(text[start:limit], " \t\r\n"); i >= 0 {
		return start + i + 1
	}
	return start
}

// alignEnd moves end back to a rune boundary and then to the last
// whitespace at or after floor.
func alignEnd(text string, end, floor int) int {
	for end > floor && !utf8.RuneStart(text[end]) {
		end--
	}
	if i := strings.LastIndexAny(text[floor:end], " \t\r\n"); i >= 0 {
		return floor + i
	}
	return end
}
