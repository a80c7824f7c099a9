package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wricardo/wargame/game/service"
)

// redisSessionKey maps a session id to its metadata (a JSON snapshot without records).
func redisSessionKey(id string) string {
	return fmt.Sprintf("WARGAME:SESSION:%s", strings.ToLower(id))
}

// redisEventsKey maps a session id to its event log, one JSON record per list entry.
func redisEventsKey(id string) string {
	return fmt.Sprintf("WARGAME:EVENTS:%s", strings.ToLower(id))
}

// redisIndexKey is the set of every persisted session id.
func redisIndexKey() string {
	return "WARGAME:SESSIONS"
}

// maxSaveAttempts bounds the optimistic-lock retries of a single Save.
const maxSaveAttempts = 10

// RedisPersistence implements SessionPersistence on Redis. Metadata and the event list
// are written in one WATCH/MULTI transaction; the list only grows by the records Redis
// does not hold yet.
type RedisPersistence struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisPersistence wraps a client and checks the connection
func NewRedisPersistence(client *redis.Client) (*RedisPersistence, error) {
	rp := &RedisPersistence{client: client, timeout: 5 * time.Second}
	ctx, cancel := rp.context()
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return rp, nil
}

func (rp *RedisPersistence) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), rp.timeout)
}

// Save writes the session metadata and appends new log records
func (rp *RedisPersistence) Save(session *service.Session) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}
	ctx, cancel := rp.context()
	defer cancel()

	snap := session.Snapshot()
	records := snap.Records
	snap.Records = nil
	meta, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	encoded := make([][]byte, len(records))
	for i, rec := range records {
		bz, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record %d: %w", rec.Seq, err)
		}
		encoded[i] = bz
	}

	// The log length is watched so concurrent saves of one session never append the
	// same records twice; a save that loses the race re-reads the length and retries.
	eventsKey := redisEventsKey(snap.ID)
	appendNew := func(tx *redis.Tx) error {
		stored, err := tx.LLen(ctx, eventsKey).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisSessionKey(snap.ID), meta, 0)
			pipe.SAdd(ctx, redisIndexKey(), strings.ToLower(snap.ID))
			for i, rec := range records {
				if int64(rec.Seq) <= stored {
					continue
				}
				pipe.RPush(ctx, eventsKey, encoded[i])
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		err = rp.client.Watch(ctx, appendNew, eventsKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", snap.ID, err)
	}
	return nil
}

// Load reads metadata and the full log and replays it
func (rp *RedisPersistence) Load(id string) (*service.Session, error) {
	ctx, cancel := rp.context()
	defer cancel()

	meta, err := rp.client.Get(ctx, redisSessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var snap service.Snapshot
	if err := json.Unmarshal(meta, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}

	entries, err := rp.client.LRange(ctx, redisEventsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load event log of %s: %w", id, err)
	}
	snap.Records = make([]service.EventRecord, 0, len(entries))
	for i, entry := range entries {
		var rec service.EventRecord
		if err := json.Unmarshal([]byte(entry), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %d of %s: %w", i+1, id, err)
		}
		snap.Records = append(snap.Records, rec)
	}

	return service.RestoreSession(snap)
}

// Delete removes the session metadata, its log and its index entry
func (rp *RedisPersistence) Delete(id string) error {
	ctx, cancel := rp.context()
	defer cancel()

	pipe := rp.client.TxPipeline()
	deleted := pipe.Del(ctx, redisSessionKey(id), redisEventsKey(id))
	pipe.SRem(ctx, redisIndexKey(), strings.ToLower(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if deleted.Val() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListAll returns all persisted session IDs, sorted
func (rp *RedisPersistence) ListAll() ([]string, error) {
	ctx, cancel := rp.context()
	defer cancel()

	ids, err := rp.client.SMembers(ctx, redisIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Exists checks if the session metadata key exists
func (rp *RedisPersistence) Exists(id string) bool {
	ctx, cancel := rp.context()
	defer cancel()

	n, err := rp.client.Exists(ctx, redisSessionKey(id)).Result()
	return err == nil && n > 0
}
