package omap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAndInsert(t *testing.T) {
	tree := New[string, int](StringCompare)

	ok := tree.Insert("b", 2)
	assert.True(t, ok)
	ok = tree.Insert("a", 1)
	assert.True(t, ok)
	ok = tree.Insert("c", 3)
	assert.True(t, ok)

	v, found := tree.Find("a")
	require.True(t, found)
	assert.Equal(t, 1, v)

	_, found = tree.Find("missing")
	assert.False(t, found)
}

func TestInsertDuplicateIsSilentlyIgnored(t *testing.T) {
	tree := New[string, int](StringCompare)
	tree.Insert("a", 1)

	ok := tree.Insert("a", 999)
	assert.False(t, ok)

	v, _ := tree.Find("a")
	assert.Equal(t, 1, v, "duplicate insert must not overwrite the original value")
	assert.Equal(t, 1, tree.Len())
}

func TestSetOverwritesExistingBinding(t *testing.T) {
	tree := New[string, int](StringCompare)
	tree.Set("a", 1)
	tree.Set("a", 2)

	v, found := tree.Find("a")
	require.True(t, found)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, tree.Len())
}

func TestSetInsertsWhenAbsent(t *testing.T) {
	tree := New[string, int](StringCompare)
	tree.Set("a", 1)

	v, found := tree.Find("a")
	require.True(t, found)
	assert.Equal(t, 1, v)
}

func TestRemove(t *testing.T) {
	tree := New[string, int](StringCompare)
	tree.Insert("a", 1)
	tree.Insert("b", 2)

	assert.True(t, tree.Remove("a"))
	assert.False(t, tree.Remove("a"))
	_, found := tree.Find("a")
	assert.False(t, found)
	assert.Equal(t, 1, tree.Len())
}

func TestInOrderVisitsAscending(t *testing.T) {
	tree := New[int, string](func(a, b int) int { return Clamp(a - b) })
	for _, k := range []int{5, 3, 8, 1, 4, 7, 9, 2, 6} {
		tree.Insert(k, "")
	}

	var got []int
	tree.InOrder(func(k int, _ string) { got = append(got, k) })
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestForEachValuePtrMutatesInPlace(t *testing.T) {
	tree := New[string, int](StringCompare)
	tree.Insert("a", 1)
	tree.Insert("b", 2)
	tree.Insert("c", 3)

	tree.ForEachValuePtr(func(_ string, v *int) { *v *= 10 })

	var got []int
	tree.InOrder(func(_ string, v int) { got = append(got, v) })
	assert.Equal(t, []int{10, 20, 30}, got)
}

func TestReleaseEmptiesTree(t *testing.T) {
	tree := New[string, int](StringCompare)
	tree.Insert("a", 1)
	tree.Release()
	assert.Equal(t, 0, tree.Len())
	_, found := tree.Find("a")
	assert.False(t, found)
}
