package storage

import (
	"context"
	"os"
	"testing"

	"github.com/annel0/descent/internal/world"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackends(t *testing.T) {
	store, err := Open(Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	require.NoError(t, store.Close())

	store, err = Open(Config{Backend: "Badger", Path: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(Config{Backend: "cassandra"}, nil)
	assert.Error(t, err)
}

func TestOpenWrapsWithMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewStoreMetrics(reg)

	store, err := Open(Config{Backend: BackendMemory}, metrics)
	require.NoError(t, err)
	defer store.Close()

	instrumented, ok := store.(*InstrumentedStore)
	require.True(t, ok)
	assert.IsType(t, &MemoryStore{}, instrumented.Unwrap())

	ctx := context.Background()
	s, err := store.CreateSession(ctx, world.ThemeAlienHive, world.DifficultyEasy)
	require.NoError(t, err)
	_, _, err = store.LoadSession(ctx, s.ID)
	require.NoError(t, err)

	// отсутствующая сессия не считается сбоем бэкенда
	assert.ErrorIs(t, store.SaveArea(ctx, "missing", sampleArea("a")), ErrSessionNotFound)
	assert.Equal(t, 0, testutil.CollectAndCount(metrics.errors))

	// три операции: create_session, load_session, save_area
	assert.Equal(t, 3, testutil.CollectAndCount(metrics.duration))
}

func TestCachedStore(t *testing.T) {
	addr := os.Getenv("DESCENT_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	inner := NewMemoryStore()
	cached, err := NewCachedStore(inner, RedisConfig{Addr: addr, KeyPrefix: "descent_test:"})
	if err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}
	defer cached.Close()

	ctx := context.Background()
	s, err := cached.CreateSession(ctx, world.ThemeSpaceStation, world.DifficultyNormal)
	require.NoError(t, err)
	require.NoError(t, cached.SaveArea(ctx, s.ID, sampleArea("area-1")))
	require.NoError(t, cached.SavePlayerState(ctx, s.ID, samplePlayer()))

	// первый запрос промахивается, второй берётся из Redis
	for i := 0; i < 2; i++ {
		area, found, err := cached.GetArea(ctx, s.ID, "area-1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, sampleArea("area-1"), area)
	}
	stats := cached.Stats()
	assert.GreaterOrEqual(t, stats.Hits, int64(1))
	assert.GreaterOrEqual(t, stats.Misses, int64(1))

	loaded, found, err := cached.LoadSession(ctx, s.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, s, loaded)

	// запись сбрасывает закешированное значение
	s.Score = 77
	require.NoError(t, cached.SaveSession(ctx, s))
	loaded, _, err = cached.LoadSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 77, loaded.Score)

	ps, found, err := cached.LoadPlayerState(ctx, s.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, samplePlayer(), ps)

	require.NoError(t, cached.DeleteSession(ctx, s.ID))
	_, found, err = cached.GetArea(ctx, s.ID, "area-1")
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = cached.LoadPlayerState(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cached.Close())
	_, _, err = cached.LoadSession(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

// racingStore выполняет hook между чтением из хранилища и заполнением кеша
type racingStore struct {
	GameStore
	hook func()
}

func (r *racingStore) LoadSession(ctx context.Context, id string) (*world.Session, bool, error) {
	s, found, err := r.GameStore.LoadSession(ctx, id)
	if r.hook != nil {
		hook := r.hook
		r.hook = nil
		hook()
	}
	return s, found, err
}

func TestCachedStoreDeleteDuringLoadLeavesNoStaleEntry(t *testing.T) {
	addr := os.Getenv("DESCENT_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	inner := &racingStore{GameStore: NewMemoryStore()}
	cached, err := NewCachedStore(inner, RedisConfig{Addr: addr, KeyPrefix: "descent_test_race:"})
	if err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}
	defer cached.Close()

	ctx := context.Background()
	s, err := cached.CreateSession(ctx, world.ThemeSpaceStation, world.DifficultyNormal)
	require.NoError(t, err)

	// удаление успевает между чтением и записью в кеш
	inner.hook = func() {
		require.NoError(t, cached.DeleteSession(ctx, s.ID))
	}
	_, found, err := cached.LoadSession(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = cached.LoadSession(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(0), cached.Stats().Hits)
}
