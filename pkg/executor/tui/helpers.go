package tui

import (
	"fmt"
	"strings"
)

// formatTokenCount formats a token count with K/M suffixes for readability
func formatTokenCount(count int) string {
	if count >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(count)/1000000)
	}
	if count >= 1000 {
		return fmt.Sprintf("%.1fK", float64(count)/1000)
	}
	return fmt.Sprintf("%d", count)
}

// wordWrap wraps text to width while preserving paragraph breaks. Words
// longer than width are kept whole on their own line.
func wordWrap(text string, width int) string {
	if width <= 0 {
		width = 80
	}

	var result strings.Builder
	for i, para := range strings.Split(text, "\n") {
		if i > 0 {
			result.WriteString("\n")
		}

		lineLen := 0
		for _, word := range strings.Fields(para) {
			wordLen := len([]rune(word))
			if lineLen > 0 && lineLen+1+wordLen > width {
				result.WriteString("\n")
				lineLen = 0
			}
			if lineLen > 0 {
				result.WriteString(" ")
				lineLen++
			}
			result.WriteString(word)
			lineLen += wordLen
		}
	}
	return result.String()
}

// truncateMiddle shortens s to max runes by eliding its middle.
func truncateMiddle(s string, max int) string {
	r := []rune(s)
	if max < 5 || len(r) <= max {
		return s
	}
	keep := (max - 1) / 2
	return string(r[:keep]) + "…" + string(r[len(r)-(max-1-keep):])
}
