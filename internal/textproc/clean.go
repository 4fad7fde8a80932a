package textproc

import (
	"strings"
	"unicode/utf8"
)

const (
	botMaxLen       = 260
	addressPostMax  = 90
	linkPostMax     = 140
	evidenceMinLen  = 6
	evidenceMaxLen  = 80
	defaultHumanMax = 360
)

// Clean strips links and collapses whitespace.
func Clean(text string) string {
	t := urlRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(spaceRE.ReplaceAllString(t, " "))
}

// StripPII blanks e-mail addresses and phone-like digit runs.
func StripPII(text string) string {
	return piiRE.ReplaceAllString(text, " ")
}

// HasPromo reports advertising or referral noise.
func HasPromo(text string) bool {
	return noiseRE.MatchString(text)
}

// CleanEvidence de-identifies a snippet for display. Returns "" when too little survives.
func CleanEvidence(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = evidenceMaxLen
	}
	t := Clean(text)
	if t == "" {
		return ""
	}
	t = StripPII(t)
	t = noiseRE.ReplaceAllString(t, " ")
	t = strings.TrimSpace(spaceRE.ReplaceAllString(t, " "))
	if utf8.RuneCountInString(t) < evidenceMinLen {
		return ""
	}
	return Truncate(t, maxLen)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// IsBotish flags templated alerts, stat blocks and link dumps.
// Short address-only messages are kept; people paste contracts by hand.
func IsBotish(text string) bool {
	s := strings.TrimSpace(text)
	if s == "" {
		return true
	}
	n := utf8.RuneCountInString(s)
	if n > botMaxLen {
		return true
	}
	if containsAny(s, boxDrawing) || containsAny(s, statMarkers) {
		return true
	}
	if evmRE.MatchString(s) || len(SolanaAddresses(s, DefaultAddressRules())) > 0 {
		return n > addressPostMax
	}
	if strings.Contains(s, "http://") || strings.Contains(s, "https://") {
		return n > linkPostMax
	}
	return containsAny(strings.ToLower(s), botFooters)
}

// Message is a raw chat line with its sender, used for bot filtering.
type Message struct {
	SenderID string
	Text     string
}

// HumanTexts drops bot senders and botish texts, cleans the rest and caps their length.
func HumanTexts(msgs []Message, botSenders map[string]struct{}, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = defaultHumanMax
	}
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if _, bot := botSenders[m.SenderID]; bot && m.SenderID != "" {
			continue
		}
		if IsBotish(m.Text) {
			continue
		}
		t := Clean(m.Text)
		if t == "" {
			continue
		}
		out = append(out, Truncate(t, maxLen))
	}
	return out
}
