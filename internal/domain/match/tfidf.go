package match

import (
	"context"
	"math"
	"time"
)

// FitTFIDF fits a TF-IDF model over one pseudo-document per layout code.
// Each row is the L2-normalized tf·idf vector of that layout's aggregated
// training text; idf = ln(N/df) over the pseudo-document corpus.
func FitTFIDF(pseudoDocs map[string]string, order []string) *Artifacts {
	labels := make([]string, 0, len(order))
	tokenized := make([][]string, 0, len(order))
	for _, code := range order {
		labels = append(labels, code)
		tokenized = append(tokenized, tokenize(pseudoDocs[code]))
	}

	docFreq := make(map[string]int)
	termFreqs := make([]map[string]float64, len(tokenized))
	for i, tokens := range tokenized {
		termFreqs[i] = termFrequency(tokens)
		for term := range termFreqs[i] {
			docFreq[term]++
		}
	}

	total := float64(len(tokenized))
	idf := make(map[string]float64, len(docFreq))
	for term, df := range docFreq {
		// ln(N/df): terms present in every layout contribute nothing, which
		// is what keeps boilerplate bank vocabulary from dominating.
		idf[term] = math.Log(total / float64(df))
	}

	rows := make([]map[string]float64, len(tokenized))
	for i, tf := range termFreqs {
		row := make(map[string]float64, len(tf))
		for term, f := range tf {
			if w := f * idf[term]; w > 0 {
				row[term] = w
			}
		}
		rows[i] = l2Normalize(row)
	}

	return &Artifacts{
		Scorer:     "tfidf",
		Labels:     labels,
		Vocabulary: idf,
		Rows:       rows,
		TrainedAt:  time.Now().UTC(),
	}
}

// TFIDFScorer scores queries by cosine similarity against the fitted rows.
type TFIDFScorer struct {
	idf    map[string]float64
	rows   []map[string]float64
	labels []string
}

// NewTFIDFScorer builds a scorer from loaded artifacts.
func NewTFIDFScorer(a *Artifacts) *TFIDFScorer {
	return &TFIDFScorer{idf: a.Vocabulary, rows: a.Rows, labels: a.Labels}
}

// Scores implements Scorer. Cosine similarity lands in [0,1] because every
// weight is non-negative; the result is scaled to 0–100.
func (s *TFIDFScorer) Scores(_ context.Context, query string) (map[string]float64, error) {
	queryVec := l2Normalize(weigh(termFrequency(tokenize(query)), s.idf))
	if len(queryVec) == 0 {
		return map[string]float64{}, nil
	}

	scores := make(map[string]float64, len(s.labels))
	for i, row := range s.rows {
		if cos := dot(queryVec, row); cos > 0 {
			scores[s.labels[i]] = cos * 100
		}
	}
	return scores, nil
}

// termFrequency computes relative term frequencies for a token slice.
func termFrequency(tokens []string) map[string]float64 {
	if len(tokens) == 0 {
		return map[string]float64{}
	}
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	total := float64(len(tokens))
	freqs := make(map[string]float64, len(counts))
	for term, n := range counts {
		freqs[term] = float64(n) / total
	}
	return freqs
}

func weigh(tf map[string]float64, idf map[string]float64) map[string]float64 {
	vec := make(map[string]float64, len(tf))
	for term, f := range tf {
		if w, known := idf[term]; known && w > 0 {
			vec[term] = f * w
		}
	}
	return vec
}

func l2Normalize(vec map[string]float64) map[string]float64 {
	var sum float64
	for _, w := range vec {
		sum += w * w
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for term, w := range vec {
		vec[term] = w / norm
	}
	return vec
}

func dot(a, b map[string]float64) float64 {
	// Iterate the smaller vector.
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for term, w := range a {
		sum += w * b[term]
	}
	return sum
}
