package modelrouter

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// EstimateTokens counts tokens with the cl100k_base encoding, falling
// back to bytes/4 when the encoding cannot be loaded (offline builds).
// Close enough for routing thresholds on any modern tokenizer.
func EstimateTokens(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding == nil {
		return len(text) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}

// EstimateTurnTokens sizes a whole prompt: history plus the new message
// plus a fixed system-prompt overhead.
func EstimateTurnTokens(history []string, message string) int {
	const systemOverhead = 400
	total := systemOverhead + EstimateTokens(message)
	for _, h := range history {
		total += EstimateTokens(h)
	}
	return total
}
