package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetThenGet(t *testing.T) {
	c := New[string, string]("test", 10, time.Hour)
	c.Set("k", "v")

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c := New[string, int]("test", 10, 50*time.Millisecond)
	c.Set("k", 1)

	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(120 * time.Millisecond)

	_, ok = c.Get("k")
	assert.False(t, ok, "entry should expire after ttl")
	assert.Equal(t, 0, c.Len(), "expired entry should be deleted")
}

func TestGetDoesNotExtendTTL(t *testing.T) {
	c := New[string, int]("test", 10, 200*time.Millisecond)
	c.Set("k", 1)

	time.Sleep(50 * time.Millisecond)
	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(200 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "reads must not slide the expiry")
}

func TestSetRefreshesTTL(t *testing.T) {
	c := New[string, int]("test", 10, 200*time.Millisecond)
	c.Set("k", 1)

	time.Sleep(120 * time.Millisecond)
	c.Set("k", 2)

	time.Sleep(120 * time.Millisecond)
	v, ok := c.Get("k")
	require.True(t, ok, "overwrite should reset the expiry")
	assert.Equal(t, 2, v)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int]("test", 3, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch a so b becomes the least recently used.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", 4)

	assert.Equal(t, 3, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok, "b should be evicted")
	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, "%s should survive", k)
	}
}

func TestOverwriteDoesNotGrow(t *testing.T) {
	c := New[string, int]("test", 2, time.Hour)
	c.Set("a", 1)
	c.Set("a", 2)
	c.Set("b", 3)

	assert.Equal(t, 2, c.Len())
	v, _ := c.Get("a")
	assert.Equal(t, 2, v)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[string, int]("test", 50, time.Hour)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := fmt.Sprintf("k%d", (g*200+i)%100)
				c.Set(k, i)
				c.Get(k)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
