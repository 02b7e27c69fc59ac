package ai

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodersMu sync.Mutex
	encoders   = map[string]*tiktoken.Tiktoken{}
)

// CountTokens counts tokens with the model's tiktoken encoding. When the
// encoding is unknown or cannot be loaded it falls back to estimateTokens.
func CountTokens(model string, texts ...string) int {
	enc := encoderFor(model)
	total := 0
	for _, text := range texts {
		if enc == nil {
			total += estimateTokens(text)
			continue
		}
		total += len(enc.Encode(text, nil, nil))
	}
	return total
}

func encoderFor(model string) *tiktoken.Tiktoken {
	encodersMu.Lock()
	defer encodersMu.Unlock()
	if enc, ok := encoders[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc = nil
	}
	encoders[model] = enc
	return enc
}

// estimateTokens counts one token per non-ASCII rune plus one per word.
func estimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}

func usageFromInfo(info map[string]any) int {
	if info == nil {
		return 0
	}
	switch v := info["TotalTokens"].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
