package match

import (
	"context"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/mfbarros/layout-identifier/internal/domain/catalog"
)

// KeywordScorer scores layouts by keyword overlap:
// matched/total * 100 per layout. All keywords of all layouts are compiled
// into a single Aho-Corasick matcher, so one pass over the document text
// finds every keyword of every layout regardless of catalog size.
type KeywordScorer struct {
	matcher *ahocorasick.Matcher
	// owners[i] lists which layouts own pattern i (layouts share keywords).
	owners        [][]string
	keywordCounts map[string]int
}

// NewKeywordScorer compiles the catalog's keyword sets. Layouts without
// keywords never score; that is not an error.
func NewKeywordScorer(layouts []catalog.Layout) *KeywordScorer {
	patternIndex := make(map[string]int)
	var patterns [][]byte
	var owners [][]string
	counts := make(map[string]int)

	for _, l := range layouts {
		seen := make(map[string]bool, len(l.Keywords))
		for _, kw := range l.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			counts[l.Code]++

			idx, exists := patternIndex[kw]
			if !exists {
				idx = len(patterns)
				patternIndex[kw] = idx
				patterns = append(patterns, []byte(kw))
				owners = append(owners, nil)
			}
			owners[idx] = append(owners[idx], l.Code)
		}
	}

	ks := &KeywordScorer{owners: owners, keywordCounts: counts}
	if len(patterns) > 0 {
		ks.matcher = ahocorasick.NewMatcher(patterns)
	}
	return ks
}

// Scores implements Scorer.
func (s *KeywordScorer) Scores(_ context.Context, query string) (map[string]float64, error) {
	if s.matcher == nil {
		return map[string]float64{}, nil
	}

	matched := make(map[string]int)
	for _, idx := range s.matcher.Match([]byte(strings.ToLower(query))) {
		if idx < 0 || idx >= len(s.owners) {
			continue
		}
		for _, code := range s.owners[idx] {
			matched[code]++
		}
	}

	scores := make(map[string]float64, len(matched))
	for code, n := range matched {
		if total := s.keywordCounts[code]; total > 0 {
			scores[code] = float64(n) / float64(total) * 100
		}
	}
	return scores, nil
}
