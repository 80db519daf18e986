// Package tokenizer provides token estimation for context entries, backed
// by tiktoken-go's cl100k_base encoding with a character-based heuristic
// fallback when the encoding cannot be initialized (e.g. offline hosts).
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	once     sync.Once
	encoding *tiktoken.Tiktoken
)

func initEncoding() {
	once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
}

// Tokenizer estimates token counts for document text.
type Tokenizer struct{}

// New creates a tokenizer, initializing the shared encoding on first use.
func New() *Tokenizer {
	initEncoding()
	return &Tokenizer{}
}

// Count returns the token count of text using cl100k_base when available,
// falling back to Estimate otherwise.
func (t *Tokenizer) Count(text string) int {
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return Estimate(text)
}

// Estimate returns a heuristic token estimate: max(runes/4, word count),
// with a minimum of 1 for non-empty text.
func Estimate(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	runes := len([]rune(trimmed))
	words := len(strings.Fields(trimmed))
	estimate := runes / 4
	if estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}
