package match

import (
	"context"
	"regexp"
	"strings"
)

// Scorer computes a base similarity score, on a 0–100 scale, between a query
// document and every trained layout. Implementations are interchangeable;
// the surrounding engine applies bonuses, filtering and ranking identically
// for all of them.
type Scorer interface {
	// Scores returns base scores keyed by layout code. Layouts absent from
	// the map scored zero.
	Scores(ctx context.Context, query string) (map[string]float64, error)
}

// tokenPattern splits on anything that is not a letter, digit, underscore or
// dash; \p{L} keeps accented characters whole, which matters for Portuguese
// bank vocabulary.
var tokenPattern = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

// tokenize lowercases, splits and drops tokens shorter than three characters.
func tokenize(text string) []string {
	if text == "" {
		return nil
	}
	var tokens []string
	for _, tok := range tokenPattern.Split(strings.ToLower(text), -1) {
		if len([]rune(tok)) >= 3 {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
