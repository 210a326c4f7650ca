package companion

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupJournal(t *testing.T) (*Journal, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client), mr
}

func TestRecord_ThenRecent_NewestFirst(t *testing.T) {
	j, mr := setupJournal(t)
	defer mr.Close()

	ctx := context.Background()
	j.Record(ctx, "vote", "q1", "a1", false)
	j.Record(ctx, "vote", "q2", "a2", true)

	entries := j.Recent(ctx, 10)
	require.Len(t, entries, 2)
	assert.Equal(t, "q2", entries[0].Query)
	assert.Equal(t, "q1", entries[1].Query)
	assert.True(t, entries[0].CacheHit)
}

func TestRecord_TrimsToMaxEntries(t *testing.T) {
	j, mr := setupJournal(t)
	defer mr.Close()

	ctx := context.Background()
	for i := 0; i < maxEntries+10; i++ {
		j.Record(ctx, "route", "q", "a", false)
	}

	length, err := mr.Llen(journalKey)
	require.NoError(t, err)
	assert.Equal(t, maxEntries, length)
}

func TestRecent_DegradesSilentlyWhenRedisIsDown(t *testing.T) {
	j, mr := setupJournal(t)
	mr.Close()

	entries := j.Recent(context.Background(), 10)
	assert.Empty(t, entries)
}

func TestRecent_DefaultsToTwentyWhenNonPositive(t *testing.T) {
	j, mr := setupJournal(t)
	defer mr.Close()

	ctx := context.Background()
	for i := 0; i < 25; i++ {
		j.Record(ctx, "vote", "q", "a", false)
	}

	entries := j.Recent(ctx, 0)
	assert.Len(t, entries, 20)
}
