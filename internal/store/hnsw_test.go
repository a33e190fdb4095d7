package store

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWIndex_AddAndSearch(t *testing.T) {
	// Given: an index with a=[1,0,0,0], b=[0,1,0,0], c=[0.9,0.1,0,0]
	idx := NewHNSWIndex(DefaultIndexConfig(4))
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add([]string{"a", "b", "c"}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0.9, 0.1, 0, 0},
	}))

	// When: searching near a with k=2
	results, err := idx.Search([]float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)

	// Then: a then c
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.Greater(t, results[0].Score, float32(0.99))
}

func TestHNSWIndex_DimensionsFixedByFirstAdd(t *testing.T) {
	idx := NewHNSWIndex(DefaultIndexConfig(0))
	require.NoError(t, idx.Add([]string{"a"}, [][]float32{{1, 0, 0}}))
	assert.Equal(t, 3, idx.Dimensions())

	err := idx.Add([]string{"b"}, [][]float32{{1, 0}})
	var mismatch ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Expected)

	_, err = idx.Search([]float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestHNSWIndex_DeleteAndReplaceLeaveOrphans(t *testing.T) {
	// Given: two vectors
	idx := NewHNSWIndex(DefaultIndexConfig(4))
	require.NoError(t, idx.Add([]string{"a", "b"}, [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))

	// When: replacing a and deleting b
	require.NoError(t, idx.Add([]string{"a"}, [][]float32{{0, 0, 1, 0}}))
	require.NoError(t, idx.Delete([]string{"b", "missing"}))

	// Then: only a is live, two orphans remain in the graph
	assert.True(t, idx.Contains("a"))
	assert.False(t, idx.Contains("b"))
	assert.Equal(t, IndexStats{ValidIDs: 1, GraphNodes: 3, Orphans: 2}, idx.Stats())

	results, err := idx.Search([]float32{0, 1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestHNSWIndex_SaveLoadRoundTrip(t *testing.T) {
	// Given: a saved index with an orphan
	path := filepath.Join(t.TempDir(), "nested", IndexFileName)
	idx := NewHNSWIndex(DefaultIndexConfig(4))
	require.NoError(t, idx.Add([]string{"a", "b", "c"}, [][]float32{
		{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0},
	}))
	require.NoError(t, idx.Delete([]string{"b"}))
	require.NoError(t, idx.Save(path))

	// When: loading into a fresh index
	loaded := NewHNSWIndex(DefaultIndexConfig(4))
	require.NoError(t, loaded.Load(path))

	// Then: live IDs and search behave the same
	assert.Equal(t, 2, loaded.Count())
	assert.False(t, loaded.Contains("b"))
	results, err := loaded.Search([]float32{0, 0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c", results[0].ID)

	dims, err := ReadIndexDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 4, dims)
}

func TestHNSWIndex_LoadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, IndexFileName)

	idx := NewHNSWIndex(DefaultIndexConfig(4))
	err := idx.Load(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	dims, err := ReadIndexDimensions(path)
	require.NoError(t, err)
	assert.Zero(t, dims)

	require.NoError(t, os.WriteFile(path+".meta", []byte("not gob"), 0o644))
	assert.Error(t, idx.Load(path))
}

func TestHNSWIndex_ClosedIndex(t *testing.T) {
	idx := NewHNSWIndex(DefaultIndexConfig(4))
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	assert.Error(t, idx.Add([]string{"a"}, [][]float32{{1, 0, 0, 0}}))
	_, err := idx.Search([]float32{1, 0, 0, 0}, 1)
	assert.Error(t, err)
	assert.Error(t, idx.Save(filepath.Join(t.TempDir(), IndexFileName)))
	assert.Equal(t, IndexStats{}, idx.Stats())
}

func TestHNSWIndex_MismatchedIDsAndVectors(t *testing.T) {
	idx := NewHNSWIndex(DefaultIndexConfig(4))
	assert.Error(t, idx.Add([]string{"a", "b"}, [][]float32{{1, 0, 0, 0}}))
	assert.NoError(t, idx.Add(nil, nil))
}

func TestHNSWIndex_ConcurrentAddAndSearch(t *testing.T) {
	idx := NewHNSWIndex(DefaultIndexConfig(4))
	require.NoError(t, idx.Add([]string{"seed"}, [][]float32{{1, 1, 1, 1}}))

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := range 25 {
				id := string(rune('a'+w)) + string(rune('a'+i))
				_ = idx.Add([]string{id}, [][]float32{{float32(w + 1), float32(i + 1), 1, 0}})
			}
		}()
		go func() {
			defer wg.Done()
			for range 25 {
				_, _ = idx.Search([]float32{1, 0, 0, 0}, 3)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 101, idx.Count())
}

func TestNormalizeVectorInPlace(t *testing.T) {
	v := []float32{3, 4}
	normalizeVectorInPlace(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	normalizeVectorInPlace(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestDistanceToScore(t *testing.T) {
	assert.InDelta(t, 1.0, distanceToScore(0, "cos"), 1e-6)
	assert.InDelta(t, 0.0, distanceToScore(2, "cos"), 1e-6)
	assert.InDelta(t, 0.5, distanceToScore(1, "l2"), 1e-6)
	assert.False(t, math.IsNaN(float64(distanceToScore(1, ""))))
}
