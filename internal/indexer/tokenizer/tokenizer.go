// Package tokenizer turns field text into normalised lexemes for the search
// engine. It lower-cases input, splits on non-alphanumeric boundaries, and
// optionally removes stop-words and applies a simple suffix stemmer. The
// indexing and the query side must share one Tokenizer so a query term is
// normalised exactly like the indexed text it is matched against.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/openfts/openfts/pkg/errors"
)

var defaultStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Config controls normalisation. The zero value gives the default stopword
// list, no stemming, and a minimum token length of 2.
type Config struct {
	// Stopwords replaces the built-in list when non-empty.
	Stopwords []string
	// DisableStopwords turns stopword removal off entirely.
	DisableStopwords bool
	// EnableStemming applies suffix stripping to every token. Off by
	// default so indexed lexemes stay literal substrings of the source
	// text, which keeps prefix matching intuitive.
	EnableStemming bool
	// MinTokenLength drops tokens with fewer runes than this.
	MinTokenLength int
}

// Token is a single normalised term and its word position within the
// original text. Positions count source words, so filtered words still
// advance the counter.
type Token struct {
	Term     string
	Position int
}

// Tokenizer is an immutable, reusable normalisation pipeline. Safe for
// concurrent use.
type Tokenizer struct {
	stopwords map[string]struct{}
	stemming  bool
	minLen    int
}

// New validates cfg and builds a Tokenizer.
func New(cfg Config) (*Tokenizer, error) {
	if cfg.MinTokenLength < 0 {
		return nil, fmt.Errorf("%w: minimum token length %d is negative",
			apperrors.ErrInvalidConfig, cfg.MinTokenLength)
	}
	minLen := cfg.MinTokenLength
	if minLen == 0 {
		minLen = 2
	}

	var stop map[string]struct{}
	switch {
	case cfg.DisableStopwords:
		stop = map[string]struct{}{}
	case len(cfg.Stopwords) > 0:
		stop = make(map[string]struct{}, len(cfg.Stopwords))
		for _, w := range cfg.Stopwords {
			stop[strings.ToLower(w)] = struct{}{}
		}
	default:
		stop = defaultStopwords
	}

	return &Tokenizer{
		stopwords: stop,
		stemming:  cfg.EnableStemming,
		minLen:    minLen,
	}, nil
}

// Tokenize breaks text into normalised Tokens. The result is deterministic
// for a given input and configuration.
func (t *Tokenizer) Tokenize(text string) []Token {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	for pos, word := range words {
		if len([]rune(word)) < t.minLen {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		term := word
		if t.stemming {
			term = stem(word)
		}
		if term == "" {
			continue
		}
		tokens = append(tokens, Token{
			Term:     term,
			Position: pos,
		})
	}
	return tokens
}

// stem applies a simple suffix-stripping stemmer to the given word.
func stem(word string) string {
	suffixes := []struct {
		suffix      string
		replacement string
		minLen      int
	}{
		{"ational", "ate", 2},
		{"tional", "tion", 2},
		{"encies", "ence", 2},
		{"ances", "ance", 2},
		{"ments", "ment", 2},
		{"izing", "ize", 2},
		{"ating", "ate", 2},
		{"iness", "y", 2},
		{"ously", "ous", 2},
		{"ively", "ive", 2},
		{"eness", "ene", 2},
		{"tion", "t", 3},
		{"sion", "s", 3},
		{"ying", "y", 2},
		{"ling", "l", 3},
		{"ies", "y", 2},
		{"ing", "", 3},
		{"ers", "er", 2},
		{"est", "", 3},
		{"ful", "", 3},
		{"ous", "", 3},
		{"ess", "", 3},
		{"ble", "", 3},
		{"ed", "", 3},
		{"er", "", 3},
		{"ly", "", 3},
		{"es", "", 3},
		{"ss", "ss", 2},
		{"s", "", 3},
	}
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
