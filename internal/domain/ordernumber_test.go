package domain

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderNumbersAreUnique(t *testing.T) {
	g := NewOrderNumberGenerator(nil, nil)
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		n := g.Next()
		require.True(t, ValidOrderNumber(n), n)
		_, dup := seen[n]
		require.False(t, dup, "duplicate %s", n)
		seen[n] = struct{}{}
	}
}

func TestOrderNumbersUniqueWithFrozenClock(t *testing.T) {
	frozen := time.UnixMilli(1_714_567_890_123)
	g := NewOrderNumberGenerator(func() time.Time { return frozen }, func(int) int { return 7 })

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				n := g.Next()
				mu.Lock()
				seen[n] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 4000)
}

func TestOrderNumberShape(t *testing.T) {
	g := NewOrderNumberGenerator(func() time.Time { return time.UnixMilli(1_714_567_890_123) }, func(int) int { return 42 })
	assert.Equal(t, "FS67890123042", g.Next())

	assert.False(t, ValidOrderNumber("FS123"))
	assert.False(t, ValidOrderNumber("XX12345678901"))
}
