package match

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	artifactsFile = "model.json"
	trainedAtFile = "trained_at.txt"
)

// Artifacts is the persisted fitted model: the vectorizer state (vocabulary
// with idf weights) or the embedding matrix, plus the labels sequence mapping
// row → layout code. The whole set is serialized as one document so the
// row-alignment invariant cannot be broken by a partial replace.
type Artifacts struct {
	Scorer string   `json:"scorer"`
	Labels []string `json:"labels"`

	// Vocabulary and Rows carry the TF-IDF model: term → idf weight, and one
	// sparse, L2-normalized term-weight vector per label.
	Vocabulary map[string]float64   `json:"vocabulary,omitempty"`
	Rows       []map[string]float64 `json:"rows,omitempty"`

	// Embeddings carries the dense model: one vector per label.
	Embeddings [][]float64 `json:"embeddings,omitempty"`

	TrainedAt time.Time `json:"trained_at"`
}

// Validate checks the row-alignment invariants.
func (a *Artifacts) Validate() error {
	switch a.Scorer {
	case "tfidf":
		if len(a.Rows) != len(a.Labels) {
			return fmt.Errorf("model artifacts corrupt: %d rows for %d labels", len(a.Rows), len(a.Labels))
		}
	case "embedding":
		if len(a.Embeddings) != len(a.Labels) {
			return fmt.Errorf("model artifacts corrupt: %d embeddings for %d labels", len(a.Embeddings), len(a.Labels))
		}
	case "keyword":
		// Keyword models carry only labels; the keywords live in the catalog.
	default:
		return fmt.Errorf("model artifacts carry unknown scorer %q", a.Scorer)
	}
	return nil
}

// SaveArtifacts persists the artifact set atomically: the document is written
// to a temp file and renamed into place, then the trained-at marker is
// refreshed. A crash mid-write leaves the previous model untouched.
func SaveArtifacts(dir string, a *Artifacts) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifacts dir %s: %w", dir, err)
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding model artifacts: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return fmt.Errorf("creating artifacts temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing model artifacts: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing artifacts temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, artifactsFile)); err != nil {
		return fmt.Errorf("replacing model artifacts: %w", err)
	}

	// Observability marker; losing it is harmless.
	marker := a.TrainedAt.Format(time.RFC3339) + "\n"
	if err := os.WriteFile(filepath.Join(dir, trainedAtFile), []byte(marker), 0o644); err != nil {
		return fmt.Errorf("writing trained-at marker: %w", err)
	}
	return nil
}

// LoadArtifacts reads and validates the persisted model. A missing file
// reports os.ErrNotExist so callers can distinguish "never trained".
func LoadArtifacts(dir string) (*Artifacts, error) {
	data, err := os.ReadFile(filepath.Join(dir, artifactsFile))
	if err != nil {
		return nil, err
	}

	var a Artifacts
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing model artifacts: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
