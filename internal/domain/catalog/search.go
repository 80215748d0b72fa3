package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// searchDocument is the indexed projection of a Layout.
type searchDocument struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	System      string `json:"system"`
	HeaderText  string `json:"header_text"`
}

// SearchResult is one catalog search hit.
type SearchResult struct {
	Layout Layout
	Score  float64
}

// SearchIndex provides full-text lookup over the catalog for the admin
// surface. The index is in-memory and rebuilt on every catalog (re)load.
type SearchIndex struct {
	mu      sync.RWMutex
	index   bleve.Index
	layouts map[string]Layout
}

// NewSearchIndex builds an in-memory index over the given layouts.
func NewSearchIndex(layouts []Layout) (*SearchIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating search index: %w", err)
	}

	byCode := make(map[string]Layout, len(layouts))
	batch := index.NewBatch()
	for _, l := range layouts {
		byCode[l.Code] = l
		doc := searchDocument{
			Code:        l.Code,
			Description: l.Description,
			System:      l.TargetSystem,
			HeaderText:  l.HeaderText,
		}
		if err := batch.Index(l.Code, doc); err != nil {
			return nil, fmt.Errorf("indexing layout %s: %w", l.Code, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("writing search batch: %w", err)
	}

	return &SearchIndex{index: index, layouts: byCode}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = simple.Name

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("code", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("description", textFieldMapping)
	docMapping.AddFieldMappingsAt("system", textFieldMapping)
	docMapping.AddFieldMappingsAt("header_text", textFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = simple.Name
	return indexMapping
}

// Search looks the query up in the index, falling back to fuzzy matching on
// descriptions when full-text search finds nothing (typos in bank names are
// common in hand-typed queries).
func (si *SearchIndex) Search(query string, limit int) ([]SearchResult, error) {
	si.mu.RLock()
	defer si.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(matchQuery, limit, 0, false)
	res, err := si.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching catalog: %w", err)
	}

	results := make([]SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if l, found := si.layouts[hit.ID]; found {
			results = append(results, SearchResult{Layout: l, Score: hit.Score})
		}
	}
	if len(results) > 0 {
		return results, nil
	}

	return si.fuzzyFallback(query, limit), nil
}

// fuzzyFallback ranks layouts by fuzzy similarity between the query and the
// description (and system) when the index had no hits.
func (si *SearchIndex) fuzzyFallback(query string, limit int) []SearchResult {
	type ranked struct {
		layout Layout
		rank   int
	}

	var hits []ranked
	for _, l := range si.layouts {
		target := l.Description + " " + l.TargetSystem
		r := fuzzy.RankMatchNormalizedFold(query, target)
		if r < 0 {
			continue
		}
		hits = append(hits, ranked{layout: l, rank: r})
	}

	// Lower rank is a closer match; ties resolve by code for determinism.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}
		return hits[i].layout.Code < hits[j].layout.Code
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, SearchResult{Layout: h.layout})
	}
	return results
}

// Close releases the underlying index.
func (si *SearchIndex) Close() error {
	si.mu.Lock()
	defer si.mu.Unlock()
	return si.index.Close()
}
