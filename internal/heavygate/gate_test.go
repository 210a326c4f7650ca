package heavygate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsHeavy(t *testing.T) {
	cases := map[string]bool{
		"qwen-32b-instruct":    true,
		"Llama-70B":            true,
		"mixtral-8x7b-32768":   true,
		"llama3.2:1b":          false,
		"gpt-4o-mini":          false,
	}
	for model, want := range cases {
		assert.Equal(t, want, IsHeavy(model), model)
	}
}

func TestSection_NonHeavyIsNoOp(t *testing.T) {
	g := New(1)
	release, err := g.Section(context.Background(), "llama3.2:1b")
	assert.NoError(t, err)
	release()
	assert.Equal(t, int64(0), g.Metrics().InUse)
}

func TestSection_AtMostOneConcurrentHeavy(t *testing.T) {
	g := New(1)
	var concurrent int32
	var maxConcurrent int32
	var wg sync.WaitGroup

	models := []string{"qwen-32b", "llama-70b", "mixtral-8x7b-32768"}
	for _, m := range models {
		wg.Add(1)
		go func(model string) {
			defer wg.Done()
			release, err := g.Section(context.Background(), model)
			assert.NoError(t, err)
			defer release()

			n := atomic.AddInt32(&concurrent, 1)
			for {
				old := atomic.LoadInt32(&maxConcurrent)
				if n <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&concurrent, -1)
		}(m)
	}
	wg.Wait()

	assert.LessOrEqual(t, maxConcurrent, int32(1))
}

func TestSection_ReleaseIsIdempotent(t *testing.T) {
	g := New(1)
	release, err := g.Section(context.Background(), "qwen32b")
	assert.NoError(t, err)
	release()
	release()
	assert.Equal(t, int64(0), g.Metrics().InUse)
}
