package context

import (
	"unicode/utf8"
)

// Message is a single entry in a history passed to a Tokenizer or
// Summarizer — a role-tagged chunk of content, optionally tied to a tool
// call and carrying a precomputed token count.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
	Importance float64
	Tokens     int
}

// Tokenizer counts the tokens a piece of text would cost against a
// model's context window.
type Tokenizer interface {
	Count(text string) int
}

// SimpleTokenizer estimates token count from character counts rather than
// running an actual tokenizer — English averages ~4 chars/token, CJK text
// averages ~2 chars/token.
type SimpleTokenizer struct {
	charsPerToken float64
}

// NewSimpleTokenizer creates a SimpleTokenizer with the default English
// chars-per-token ratio.
func NewSimpleTokenizer() *SimpleTokenizer {
	return &SimpleTokenizer{
		charsPerToken: 4.0,
	}
}

// Count estimates the token count of text.
func (t *SimpleTokenizer) Count(text string) int {
	cjkCount := 0
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			cjkCount++
		}
	}

	totalChars := utf8.RuneCountInString(text)
	otherChars := totalChars - cjkCount

	tokens := float64(cjkCount)/2.0 + float64(otherChars)/t.charsPerToken

	return int(tokens) + 1
}
