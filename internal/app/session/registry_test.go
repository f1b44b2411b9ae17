package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/encore/internal/app/playback"
)

func countingFactory(created *atomic.Int32) Factory {
	return func(guildID string, release func(string)) *playback.Session {
		created.Add(1)
		return playback.New(guildID, playback.Config{}, nil, nil, release)
	}
}

func TestRegistry_GetOrCreate(t *testing.T) {
	var created atomic.Int32
	r := NewRegistry(countingFactory(&created))
	defer r.Close()

	s1, isNew := r.GetOrCreate("g1")
	require.True(t, isNew)
	s2, isNew := r.GetOrCreate("g1")
	require.False(t, isNew)

	assert.Same(t, s1, s2)
	assert.Equal(t, int32(1), created.Load())

	got, err := r.Get("g1")
	require.NoError(t, err)
	assert.Same(t, s1, got)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	var created atomic.Int32
	r := NewRegistry(countingFactory(&created))
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.GetOrCreate(fmt.Sprintf("g%d", i%4))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, r.Len())
	assert.Equal(t, int32(4), created.Load())
}

func TestRegistry_LeaveReleasesSlot(t *testing.T) {
	var created atomic.Int32
	r := NewRegistry(countingFactory(&created))
	defer r.Close()

	s, _ := r.GetOrCreate("g1")
	require.NoError(t, s.Leave())

	assert.Equal(t, 0, r.Len())
	_, err := r.Get("g1")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRegistry_StaleReleaseKeepsNewSession(t *testing.T) {
	var created atomic.Int32
	r := NewRegistry(countingFactory(&created))
	defer r.Close()

	old, _ := r.GetOrCreate("g1")
	r.Remove("g1")
	fresh, _ := r.GetOrCreate("g1")
	require.NotSame(t, old, fresh)

	// The old session leaving must not evict its replacement.
	require.NoError(t, old.Leave())

	got, err := r.Get("g1")
	require.NoError(t, err)
	assert.Same(t, fresh, got)
}

func TestRegistry_CloseLeavesAll(t *testing.T) {
	var created atomic.Int32
	r := NewRegistry(countingFactory(&created))

	a, _ := r.GetOrCreate("a")
	b, _ := r.GetOrCreate("b")

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].GuildID())

	r.Close()

	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	assert.Equal(t, 0, r.Len())
}
