package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocReturnsDistinctUsableCells(t *testing.T) {
	p := New[int](2)

	a := p.Alloc()
	a.Value = 1
	b := p.Alloc()
	b.Value = 2

	assert.Equal(t, 1, a.Value)
	assert.Equal(t, 2, b.Value)
	assert.True(t, a.InUse())
	assert.True(t, b.InUse())
}

func TestAllocGrowsPoolWhenFreeListExhausted(t *testing.T) {
	p := New[int](1)
	first := p.Alloc()
	require.Equal(t, 1, p.Len())

	second := p.Alloc()
	assert.Equal(t, 3, p.Len()) // grown by lastCount*growthFactor = 1*2
	assert.NotSame(t, first, second)
}

func TestFreeZeroesValueAndReturnsToFreeList(t *testing.T) {
	p := New[int](1)
	cell := p.Alloc()
	cell.Value = 42

	p.Free(cell)
	assert.False(t, cell.InUse())
	assert.Equal(t, 0, cell.Value)

	reused := p.Alloc()
	assert.Same(t, cell, reused)
	assert.Equal(t, 0, reused.Value)
}

func TestFreeOnAlreadyFreeCellIsANoOp(t *testing.T) {
	p := New[int](1)
	cell := p.Alloc()
	p.Free(cell)
	assert.NotPanics(t, func() { p.Free(cell) })
}

func TestScanVisitsEveryCellAcrossSlabs(t *testing.T) {
	p := New[int](1)
	p.Alloc()
	p.Alloc() // forces growth onto a second slab

	count := 0
	p.Scan(func(c *Cell[int]) { count++ })
	assert.Equal(t, p.Len(), count)
}
