package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Store persists the catalog as one JSON array of layout records. Every
// update rewrites the file wholesale; there is no patching.
type Store struct {
	path string
}

// NewStore creates a store backed by the given JSON file.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads all layouts, sorted by code. A missing file is an empty catalog,
// not an error.
func (s *Store) Load() ([]Layout, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", s.path, err)
	}

	var layouts []Layout
	if err := json.Unmarshal(data, &layouts); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", s.path, err)
	}

	sort.SliceStable(layouts, func(i, j int) bool { return layouts[i].Code < layouts[j].Code })
	return layouts, nil
}

// LoadMap reads all layouts keyed by code.
func (s *Store) LoadMap() (map[string]Layout, error) {
	layouts, err := s.Load()
	if err != nil {
		return nil, err
	}
	m := make(map[string]Layout, len(layouts))
	for _, l := range layouts {
		m[l.Code] = l
	}
	return m, nil
}

// Save rewrites the catalog file with the given layouts, sorted by code so
// the file diffs cleanly between retrains.
func (s *Store) Save(layouts []Layout) error {
	sorted := make([]Layout, len(layouts))
	copy(sorted, layouts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".catalog-*.json")
	if err != nil {
		return fmt.Errorf("creating catalog temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing catalog temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing catalog %s: %w", s.path, err)
	}
	return nil
}

// Upsert merges the given layouts into the stored catalog by code and
// rewrites it. Existing layouts keep fields the update leaves zero-valued.
func (s *Store) Upsert(updates []Layout) error {
	existing, err := s.LoadMap()
	if err != nil {
		return err
	}

	for _, u := range updates {
		cur, found := existing[u.Code]
		if !found {
			existing[u.Code] = u
			continue
		}
		if u.Description != "" {
			cur.Description = u.Description
		}
		if u.FileFormat != FormatUnknown {
			cur.FileFormat = u.FileFormat
		}
		if u.TargetSystem != "" {
			cur.TargetSystem = u.TargetSystem
		}
		if u.ReportType != "" {
			cur.ReportType = u.ReportType
		}
		if len(u.Keywords) > 0 {
			cur.Keywords = u.Keywords
		}
		if u.HeaderText != "" {
			cur.HeaderText = u.HeaderText
		}
		if u.PreviewURL != "" {
			cur.PreviewURL = u.PreviewURL
		}
		existing[u.Code] = cur
	}

	merged := make([]Layout, 0, len(existing))
	for _, l := range existing {
		merged = append(merged, l)
	}
	return s.Save(merged)
}
