package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "layouts.json"))
}

func TestStore_LoadMissingFile(t *testing.T) {
	layouts, err := testStore(t).Load()
	require.NoError(t, err)
	assert.Empty(t, layouts)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := testStore(t)

	in := []Layout{
		{Code: "200", Description: "Itaú - Extrato", FileFormat: FormatPDF, Keywords: []string{"extrato", "lançamentos"}},
		{Code: "100", Description: "BB - Extrato", FileFormat: FormatExcel, ReportType: ReportTypeBanking},
	}
	require.NoError(t, store.Save(in))

	out, err := store.Load()
	require.NoError(t, err)
	require.Len(t, out, 2)

	// Sorted by code regardless of insertion order.
	assert.Equal(t, "100", out[0].Code)
	assert.Equal(t, "200", out[1].Code)
	assert.Equal(t, []string{"extrato", "lançamentos"}, out[1].Keywords)
}

func TestStore_SaveLargeCatalogStaysSorted(t *testing.T) {
	store := testStore(t)
	faker := gofakeit.New(42)

	in := make([]Layout, 0, 50)
	for i := 0; i < 50; i++ {
		in = append(in, Layout{
			Code:        fmt.Sprintf("%d", 1000+faker.Number(0, 8999)),
			Description: faker.Company() + " - Extrato Conta Corrente",
			FileFormat:  FormatPDF,
		})
	}
	require.NoError(t, store.Save(in))

	out, err := store.Load()
	require.NoError(t, err)
	assert.True(t, sort.SliceIsSorted(out, func(i, j int) bool { return out[i].Code < out[j].Code }))
}

func TestStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layouts.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewStore(path).Load()
	assert.Error(t, err)
}

func TestStore_Upsert(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Save([]Layout{
		{Code: "100", Description: "BB - Extrato", FileFormat: FormatPDF, Keywords: []string{"extrato"}, PreviewURL: "https://example.com/100.png"},
	}))

	t.Run("merges into existing layout keeping nonzero fields", func(t *testing.T) {
		require.NoError(t, store.Upsert([]Layout{
			{Code: "100", Keywords: []string{"extrato", "saldo"}},
		}))

		m, err := store.LoadMap()
		require.NoError(t, err)
		got := m["100"]
		assert.Equal(t, "BB - Extrato", got.Description)
		assert.Equal(t, FormatPDF, got.FileFormat)
		assert.Equal(t, []string{"extrato", "saldo"}, got.Keywords)
		assert.Equal(t, "https://example.com/100.png", got.PreviewURL)
	})

	t.Run("inserts unknown code", func(t *testing.T) {
		require.NoError(t, store.Upsert([]Layout{
			{Code: "300", Description: "Sicoob - Extrato", FileFormat: FormatText},
		}))

		layouts, err := store.Load()
		require.NoError(t, err)
		assert.Len(t, layouts, 2)
	})
}
