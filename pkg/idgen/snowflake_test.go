package idgen

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidWorker(t *testing.T) {
	_, err := New(-1)
	assert.Error(t, err)
	_, err = New(maxWorkerID + 1)
	assert.Error(t, err)
}

func TestGenerateIsUniqueAndIncreasing(t *testing.T) {
	g, err := New(3)
	require.NoError(t, err)

	prev := int64(0)
	for i := 0; i < 10000; i++ {
		id := g.Generate()
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestBillNumbersAreUniqueUnderConcurrency(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				no := GenerateEntryNo()
				mu.Lock()
				seen[no] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 4000)
	assert.True(t, strings.HasPrefix(GenerateBillNo(), "GFT"))
}

func TestGenerateSurvivesClockRollback(t *testing.T) {
	g, err := New(1)
	require.NoError(t, err)

	// 模拟上一次发号时的时钟比现在快
	g.timestamp = time.Now().UnixMilli() + 1000
	g.sequence = maxSequence - 1

	a := g.Generate()
	b := g.Generate()
	c := g.Generate()
	assert.Less(t, a, b)
	assert.Less(t, b, c)
}
