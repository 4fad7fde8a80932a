package textproc

import "strings"

// Stance labels.
const (
	StanceBullish = "偏多"
	StanceBearish = "偏空"
	StanceMixed   = "分歧"
	StanceNeutral = "中性"
)

// Stance votes each text once per side and labels the balance.
func Stance(texts []string) string {
	pos, neg := 0, 0
	for _, t := range texts {
		low := strings.ToLower(t)
		if containsAny(t, positiveKeys) || containsAny(low, positiveKeys) {
			pos++
		}
		if containsAny(t, negativeKeys) || containsAny(low, negativeKeys) {
			neg++
		}
	}
	switch {
	case pos >= 2 && float64(pos) > float64(neg)*1.2:
		return StanceBullish
	case neg >= 2 && float64(neg) > float64(pos)*1.2:
		return StanceBearish
	case pos > 0 || neg > 0:
		return StanceMixed
	default:
		return StanceNeutral
	}
}

// ValidStance reports membership in the fixed label set.
func ValidStance(s string) bool {
	switch s {
	case StanceBullish, StanceBearish, StanceMixed, StanceNeutral:
		return true
	}
	return false
}
