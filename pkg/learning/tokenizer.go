package learning

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokenizer splits comment text into normalized word tokens
type Tokenizer struct {
	MinTokenLength int `json:"min_token_length" yaml:"min_token_length"`
	MaxTokenLength int `json:"max_token_length" yaml:"max_token_length"`
}

// DefaultTokenizer returns the tokenizer used unless configured otherwise
func DefaultTokenizer() Tokenizer {
	return Tokenizer{
		MinTokenLength: 3,
		MaxTokenLength: 12,
	}
}

// Tokenize lowercases text and splits it on every rune that is not a letter
// or digit. Tokens shorter than MinTokenLength are dropped; tokens longer
// than MaxTokenLength collapse into a "skip:<first rune> <length/10*10>"
// token. Each distinct token appears once, in order of first occurrence.
func (t Tokenizer) Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(words))
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		n := utf8.RuneCountInString(word)
		if n < t.MinTokenLength {
			continue
		}
		if t.MaxTokenLength > 0 && n > t.MaxTokenLength {
			first, _ := utf8.DecodeRuneInString(word)
			word = fmt.Sprintf("skip:%c %d", first, n/10*10)
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		tokens = append(tokens, word)
	}

	return tokens
}
