package agent

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Fixed user-facing messages. The turn executor never surfaces internal
// errors to the channel.
const (
	budgetExhaustedMessage = "I've hit my daily usage limit. Please try again tomorrow."
	degradedMessage        = "I'm having trouble thinking right now. Please try again in a moment."
)

const ellipsis = "…"

var multiBlankLines = regexp.MustCompile(`\n{3,}`)

// truncateChars enforces the outbound character ceiling, cutting at a
// rune boundary and appending an ellipsis marker.
func truncateChars(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + ellipsis
}

// postProcess normalizes outbound style for WhatsApp: trims edges and
// collapses runs of blank lines. Can lengthen text in pathological cases
// only in theory, but the ceiling is still re-applied after it.
func postProcess(s string) string {
	s = strings.TrimSpace(s)
	s = multiBlankLines.ReplaceAllString(s, "\n\n")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return s
}

// finalizeResponse applies the ceiling, post-processing, and the ceiling
// again, in that order.
func finalizeResponse(s string, maxChars int) string {
	s = truncateChars(s, maxChars)
	s = postProcess(s)
	return truncateChars(s, maxChars)
}
