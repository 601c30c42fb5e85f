package keyword

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

func records() []vectorstore.Record {
	return []vectorstore.Record{
		{ID: "1", Content: "Paris is the capital of France.", Metadata: domain.Metadata{domain.MetaSourceFile: "france.txt"}},
		{ID: "2", Content: "Tokyo is the capital of Japan.", Metadata: domain.Metadata{domain.MetaSourceFile: "japan.txt"}},
		{ID: "3", Content: "France exports wine and cheese.", Metadata: domain.Metadata{domain.MetaSourceFile: "trade.txt"}},
	}
}

func TestIndex_SearchInMemory(t *testing.T) {
	idx, err := Open("", "docs")
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.Add(records()))

	hits, err := idx.Search("France", 5, "")
	require.NoError(t, err)
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	assert.ElementsMatch(t, []string{"1", "3"}, ids)

	hits, err = idx.Search("France", 5, "trade.txt")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "3", hits[0].ID)

	hits, err = idx.Search("France", 0, "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_PersistsAndClears(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir, "docs")
	require.NoError(t, err)
	require.NoError(t, idx.Add(records()))
	require.NoError(t, idx.Close())

	idx, err = Open(dir, "docs")
	require.NoError(t, err)
	defer idx.Close()

	n, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, idx.Clear())
	n, err = idx.Count()
	require.NoError(t, err)
	assert.Zero(t, n)

	hits, err := idx.Search("Tokyo", 3, "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}
