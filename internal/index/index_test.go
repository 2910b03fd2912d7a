package index

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func record(doc, text string, vec ...float32) Record {
	return Record{
		ID:           uuid.NewString(),
		Embedding:    vec,
		Text:         text,
		DocumentID:   doc,
		DocumentName: doc + ".pdf",
	}
}

func TestUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	require.NoError(t, idx.Upsert(ctx, record("a", "east", 1, 0)))
	require.NoError(t, idx.Upsert(ctx, record("a", "north", 0, 1)))
	require.NoError(t, idx.Upsert(ctx, record("a", "north-east", 1, 1)))

	matches, err := idx.Query(ctx, []float32{0, 2}, 3, "a")
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "north", matches[0].Text)
	assert.Equal(t, "north-east", matches[1].Text)
	assert.Equal(t, "east", matches[2].Text)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.InDelta(t, 0.7071, matches[1].Score, 1e-3)
	assert.InDelta(t, 0.0, matches[2].Score, 1e-6)
	assert.Equal(t, 2, idx.Dimension())
}

func TestQuery_FilterIsolation(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, idx.Upsert(ctx, record("a", fmt.Sprintf("a-%d", i), 1, float32(i))))
		require.NoError(t, idx.Upsert(ctx, record("b", fmt.Sprintf("b-%d", i), 1, float32(i))))
	}

	for _, q := range [][]float32{{1, 0}, {0, 1}, {-1, 3}} {
		matches, err := idx.Query(ctx, q, 10, "a")
		require.NoError(t, err)
		require.Len(t, matches, 5)
		for _, m := range matches {
			assert.Contains(t, m.Text, "a-")
		}
	}
}

func TestQuery_RespectsK(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	for i := 0; i < 4; i++ {
		require.NoError(t, idx.Upsert(ctx, record("a", fmt.Sprint(i), 1, float32(i))))
	}

	matches, err := idx.Query(ctx, []float32{1, 1}, 3, "a")
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	matches, err = idx.Query(ctx, []float32{1, 1}, 10, "a")
	require.NoError(t, err)
	assert.Len(t, matches, 4)

	_, err = idx.Query(ctx, []float32{1, 1}, 0, "a")
	assert.Error(t, err)
}

func TestQuery_NoMatches(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	matches, err := idx.Query(ctx, []float32{1, 0}, 3, "missing")
	require.NoError(t, err)
	assert.Empty(t, matches)

	require.NoError(t, idx.Upsert(ctx, record("a", "x", 1, 0)))
	matches, err = idx.Query(ctx, []float32{1, 0}, 3, "missing")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestQuery_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	for i := 0; i < 6; i++ {
		require.NoError(t, idx.Upsert(ctx, record("a", fmt.Sprint(i), 1, 0)))
	}

	matches, err := idx.Query(ctx, []float32{1, 0}, 4, "a")
	require.NoError(t, err)
	require.Len(t, matches, 4)
	for i, m := range matches {
		assert.Equal(t, fmt.Sprint(i), m.Text)
	}
}

func TestDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	require.NoError(t, idx.Upsert(ctx, record("a", "x", 1, 0, 0)))

	err := idx.Upsert(ctx, record("a", "y", 1, 0))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = idx.Query(ctx, []float32{1, 0}, 3, "a")
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Count)
}

func TestUpsert_InvalidRecord(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	assert.ErrorIs(t, idx.Upsert(ctx, Record{ID: "x", DocumentID: "a"}), ErrInvalidRecord)
	assert.ErrorIs(t, idx.Upsert(ctx, Record{ID: "x", Embedding: []float32{1}}), ErrInvalidRecord)
	assert.ErrorIs(t, idx.Upsert(ctx, Record{DocumentID: "a", Embedding: []float32{1}}), ErrInvalidRecord)
	assert.Zero(t, idx.Dimension())
}

func TestUpsert_DuplicateID(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	rec := record("a", "x", 1, 0)
	require.NoError(t, idx.Upsert(ctx, rec))
	assert.Error(t, idx.Upsert(ctx, rec))
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "index.db")

	idx, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, record("a", "kept", 0.5, 0.5)))
	require.NoError(t, idx.Close())

	idx, err = Open(path, nil)
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, 2, idx.Dimension())
	matches, err := idx.Query(ctx, []float32{1, 1}, 3, "a")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "kept", matches[0].Text)

	assert.ErrorIs(t, idx.Upsert(ctx, record("a", "bad", 1)), ErrDimensionMismatch)
}

func TestSharedFileBetweenHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	server, err := Open(path, nil)
	require.NoError(t, err)
	defer server.Close()
	cli, err := Open(path, nil)
	require.NoError(t, err)
	defer cli.Close()

	require.Zero(t, server.Dimension())
	require.NoError(t, cli.Upsert(ctx, record("a", "from cli", 1, 0)))

	matches, err := server.Query(ctx, []float32{1, 0}, 3, "a")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "from cli", matches[0].Text)
	assert.Equal(t, 2, server.Dimension())

	require.NoError(t, server.Upsert(ctx, record("a", "from server", 0, 1)))
	assert.ErrorIs(t, server.Upsert(ctx, record("a", "bad", 1, 0, 0)), ErrDimensionMismatch)

	st, err := cli.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, 2, st.Dimension)
}

func TestFirstUpsertRacesOtherHandle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	server, err := Open(path, nil)
	require.NoError(t, err)
	defer server.Close()
	cli, err := Open(path, nil)
	require.NoError(t, err)
	defer cli.Close()

	// both handles start with no dimension cached
	require.NoError(t, cli.Upsert(ctx, record("a", "first", 1, 0, 0)))
	assert.ErrorIs(t, server.Upsert(ctx, record("b", "second", 1, 0)), ErrDimensionMismatch)
	assert.Equal(t, 3, server.Dimension())

	st, err := server.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Count)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Count)
	assert.Empty(t, st.DocumentIDs)
	assert.Nil(t, st.SampleMetadata)

	require.NoError(t, idx.Upsert(ctx, record("b", "1", 1, 0)))
	require.NoError(t, idx.Upsert(ctx, record("a", "2", 1, 0)))
	require.NoError(t, idx.Upsert(ctx, record("b", "3", 1, 0)))

	st, err = idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Count)
	assert.Equal(t, 2, st.Dimension)
	assert.Equal(t, []string{"b", "a"}, st.DocumentIDs)
	require.NotNil(t, st.SampleMetadata)
	assert.Equal(t, Metadata{DocumentID: "b", DocumentName: "b.pdf"}, *st.SampleMetadata)
}

func TestConcurrentUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	const writers, perWriter = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(doc string) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, idx.Upsert(ctx, record(doc, doc, 1, float32(i))))
			}
		}(fmt.Sprintf("doc-%d", w))

		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := idx.Query(ctx, []float32{1, 1}, 3, "doc-0")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, st.Count)

	for w := 0; w < writers; w++ {
		doc := fmt.Sprintf("doc-%d", w)
		matches, err := idx.Query(ctx, []float32{1, 1}, perWriter*2, doc)
		require.NoError(t, err)
		require.Len(t, matches, perWriter)
		for _, m := range matches {
			assert.Equal(t, doc, m.Text)
		}
	}
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{2, 0}, []float32{5, 0}), 1e-6)
	assert.InDelta(t, -1.0, cosine([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, []float32{1.5, -2, 0}, bytesToFloat32Slice(float32SliceToBytes([]float32{1.5, -2, 0})))
}
