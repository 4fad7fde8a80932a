package render

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultChunkSize is the per-message ceiling in runes.
const DefaultChunkSize = 950

// split levels, coarsest first
const (
	levelSection = iota
	levelLine
	levelWord
	levelRune
)

// Chunk splits text into pieces of at most size runes. It prefers section
// boundaries, then lines, then whitespace; only a word longer than size is cut.
// strings.Join(Chunk(text, size), "") == text.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= size {
		return []string{text}
	}
	return pack(splitAt(text, levelSection), size, levelSection)
}

func pack(pieces []string, size, level int) []string {
	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if n > 0 {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, p := range pieces {
		pn := utf8.RuneCountInString(p)
		if pn > size {
			flush()
			sub := pack(splitAt(p, level+1), size, level+1)
			out = append(out, sub[:len(sub)-1]...)
			last := sub[len(sub)-1]
			cur.WriteString(last)
			n = utf8.RuneCountInString(last)
			continue
		}
		if n+pn > size {
			flush()
		}
		cur.WriteString(p)
		n += pn
	}
	flush()
	return out
}

// splitAt cuts s into consecutive pieces whose concatenation is s.
func splitAt(s string, level int) []string {
	switch level {
	case levelSection:
		return sections(s)
	case levelLine:
		return lines(s)
	case levelWord:
		return words(s)
	default:
		out := make([]string, 0, utf8.RuneCountInString(s))
		for _, r := range s {
			out = append(out, string(r))
		}
		return out
	}
}

func lines(s string) []string {
	out := strings.SplitAfter(s, "\n")
	if len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

// sections starts a new piece at every heading line and after every blank line.
func sections(s string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, ln := range lines(s) {
		if cur.Len() > 0 && isHeading(ln) {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.WriteString(ln)
		if strings.TrimSpace(ln) == "" {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func isHeading(line string) bool {
	return strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "*") && strings.HasSuffix(strings.TrimRight(line, "\n"), "*")
}

// words keeps each whitespace run attached to the word before it.
func words(s string) []string {
	var out []string
	start := 0
	inSpace := false
	for i, r := range s {
		sp := unicode.IsSpace(r)
		if inSpace && !sp {
			out = append(out, s[start:i])
			start = i
		}
		inSpace = sp
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
