package sim

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_CoversEveryIndexOnce(t *testing.T) {
	p := newWorkerPool(4, 1, 3)
	defer p.stop()

	for _, n := range []int{1, 5, 12, 13, 1000} {
		seen := make([]int, n)
		err := p.run(n, func(_, start, end int) error {
			for i := start; i < end; i++ {
				seen[i]++
			}
			return nil
		})
		require.NoError(t, err)
		for i, c := range seen {
			assert.Equal(t, 1, c, "n=%d index %d", n, i)
		}
	}
}

func TestWorkerPool_ChunkIDsInRange(t *testing.T) {
	p := newWorkerPool(3, 1, 2)
	defer p.stop()

	hits := make([]int, p.maxChunks())
	require.NoError(t, p.run(100, func(chunk, start, end int) error {
		hits[chunk] += end - start
		return nil
	}))
	total := 0
	for _, h := range hits {
		total += h
	}
	assert.Equal(t, 100, total)
}

func TestWorkerPool_InlineBelowThreshold(t *testing.T) {
	p := newWorkerPool(4, 50, 1)
	defer p.stop()

	calls := 0
	require.NoError(t, p.run(10, func(chunk, start, end int) error {
		calls++
		assert.Equal(t, 0, chunk)
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
		return nil
	}))
	assert.Equal(t, 1, calls)
	assert.False(t, p.running)
}

func TestWorkerPool_ReturnsLowestChunkError(t *testing.T) {
	p := newWorkerPool(4, 1, 2)
	defer p.stop()

	errBoom := errors.New("boom")
	err := p.run(80, func(chunk, start, end int) error {
		if chunk >= 2 {
			return fmt.Errorf("chunk %d: %w", chunk, errBoom)
		}
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBoom))
	assert.Equal(t, "chunk 2: boom", err.Error())

	// The pool stays usable after a failed pass
	assert.NoError(t, p.run(80, func(_, _, _ int) error { return nil }))
}

func TestWorkerPool_StopAndRestart(t *testing.T) {
	p := newWorkerPool(2, 1, 1)
	require.NoError(t, p.run(10, func(_, _, _ int) error { return nil }))
	assert.True(t, p.running)

	p.stop()
	assert.False(t, p.running)
	p.stop()

	require.NoError(t, p.run(10, func(_, _, _ int) error { return nil }))
	p.stop()
}

func TestWorkerPool_Defaults(t *testing.T) {
	p := newWorkerPool(0, 0, 0)
	assert.Greater(t, p.numWorkers, 0)
	assert.Equal(t, defaultParallelThreshold, p.threshold)
	assert.Equal(t, p.numWorkers, p.maxChunks())
}
