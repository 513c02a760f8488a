package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiresOnceAfterSingleNotify(t *testing.T) {
	var mu sync.Mutex
	var fired []string

	d := New(50*time.Millisecond, func(path string) {
		mu.Lock()
		fired = append(fired, path)
		mu.Unlock()
	})

	d.Notify("a.txt")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"a.txt"}, fired)
	mu.Unlock()
}

func TestBurstCollapsesToOneFire(t *testing.T) {
	var mu sync.Mutex
	var fired []string

	d := New(80*time.Millisecond, func(path string) {
		mu.Lock()
		fired = append(fired, path)
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		d.Notify("a.txt")
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"a.txt"}, fired)
	mu.Unlock()
}

func TestIndependentPathsDebounceSeparately(t *testing.T) {
	var mu sync.Mutex
	fired := map[string]int{}

	d := New(30*time.Millisecond, func(path string) {
		mu.Lock()
		fired[path]++
		mu.Unlock()
	})

	d.Notify("a.txt")
	d.Notify("b.txt")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired["a.txt"] == 1 && fired["b.txt"] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCancelPreventsFire(t *testing.T) {
	var mu sync.Mutex
	fired := false

	d := New(30*time.Millisecond, func(path string) {
		mu.Lock()
		fired = true
		mu.Unlock()
	})

	d.Notify("a.txt")
	assert.True(t, d.Pending("a.txt"))
	d.Cancel("a.txt")
	assert.False(t, d.Pending("a.txt"))

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	assert.False(t, fired)
	mu.Unlock()
}
