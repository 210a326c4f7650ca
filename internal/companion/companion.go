// Package companion is a best-effort journal of recent vote/route
// interactions, adapted from src/chat/session_store.go: the teacher's
// per-session message history becomes a single bounded Redis list of
// journal entries, since this system has no chat-session concept of its
// own — only individual vote() and route() calls. Journal writes are
// side effects of the HTTP handlers and never block or fail a request:
// every method degrades silently on a Redis error, same posture as
// internal/semcache.
package companion

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	journalKey   = "companion:journal"
	journalTTL   = 24 * time.Hour
	maxEntries   = 200
)

// Entry is one recorded interaction.
type Entry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // "vote" or "route"
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
}

// Journal records and replays recent interactions over a Redis list.
type Journal struct {
	client *redis.Client
}

// New constructs a Journal over an existing Redis client.
func New(client *redis.Client) *Journal {
	return &Journal{client: client}
}

// Record appends an entry, trimming the list to maxEntries and refreshing
// its TTL. Failures are swallowed: journaling is an enrichment, never a
// dependency the request path can fail on.
func (j *Journal) Record(ctx context.Context, kind, query, answer string, cacheHit bool) {
	entry := Entry{
		ID:        uuid.New().String(),
		Kind:      kind,
		Query:     query,
		Answer:    answer,
		CacheHit:  cacheHit,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	pipe := j.client.TxPipeline()
	pipe.LPush(ctx, journalKey, data)
	pipe.LTrim(ctx, journalKey, 0, maxEntries-1)
	pipe.Expire(ctx, journalKey, journalTTL)
	_, _ = pipe.Exec(ctx)
}

// Recent returns up to n most-recently recorded entries, newest first. On
// any backend error it returns an empty slice rather than an error.
func (j *Journal) Recent(ctx context.Context, n int) []Entry {
	if n <= 0 {
		n = 20
	}
	raw, err := j.client.LRange(ctx, journalKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil
	}

	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}
