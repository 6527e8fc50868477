package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/printworks/jobtrack/internal/model"
)

const redisPrefix = "jobtrack"

// RedisStore keeps each record as JSON, its history as an append-only list
// and a sorted-set index by creation time. Updates are guarded with
// WATCH/MULTI so a concurrent writer turns into a stale write.
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func jobKey(id string) string     { return fmt.Sprintf("%s:job:%s", redisPrefix, id) }
func historyKey(id string) string { return fmt.Sprintf("%s:job:%s:history", redisPrefix, id) }
func codeKey(code string) string  { return fmt.Sprintf("%s:code:%s", redisPrefix, code) }

var (
	indexKey    = redisPrefix + ":jobs"
	sequenceKey = redisPrefix + ":seq:display"
)

func (s *RedisStore) Create(ctx context.Context, job *model.JobRecord) error {
	ok, err := s.redis.SetNX(ctx, codeKey(job.DisplayCode), job.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve display code: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: display code %s", model.ErrDuplicate, job.DisplayCode)
	}

	data, err := marshalRecord(job)
	if err != nil {
		return err
	}
	ok, err = s.redis.SetNX(ctx, jobKey(job.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	if !ok {
		s.redis.Del(ctx, codeKey(job.DisplayCode))
		return fmt.Errorf("%w: id %s", model.ErrDuplicate, job.ID)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(job.CreatedAt.UnixNano()), Member: job.ID})
		return appendHistory(ctx, pipe, job.ID, job.StatusHistory)
	})
	if err != nil {
		return fmt.Errorf("failed to index job: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.JobRecord, error) {
	job, err := s.getRecord(ctx, s.redis, id)
	if err != nil {
		return nil, err
	}
	job.StatusHistory, err = s.History(ctx, id)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *RedisStore) List(ctx context.Context, filter model.JobFilter) ([]*model.JobRecord, error) {
	ids, err := s.redis.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}

	var out []*model.JobRecord
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var job model.JobRecord
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("failed to decode job: %w", err)
		}
		if filter.Matches(&job) {
			out = append(out, &job)
		}
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(out))
	for i, job := range out {
		cmds[i] = pipe.LRange(ctx, historyKey(job.ID), 0, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	for i, job := range out {
		job.StatusHistory, err = decodeHistory(cmds[i].Val())
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *RedisStore) Update(ctx context.Context, job *model.JobRecord, expectedVersion int64) error {
	key := jobKey(job.ID)
	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.getRecord(ctx, tx, job.ID)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return &model.StaleWriteError{JobID: job.ID, Expected: expectedVersion, Actual: current.Version}
		}
		stored, err := tx.LLen(ctx, historyKey(job.ID)).Result()
		if err != nil {
			return fmt.Errorf("failed to read history length: %w", err)
		}
		if int64(len(job.StatusHistory)) < stored {
			return fmt.Errorf("store: history of job %s would shrink", job.ID)
		}

		data, err := marshalRecord(job)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return appendHistory(ctx, pipe, job.ID, job.StatusHistory[stored:])
		})
		return err
	}, key, historyKey(job.ID))

	if errors.Is(err, redis.TxFailedErr) {
		return &model.StaleWriteError{JobID: job.ID, Expected: expectedVersion, Actual: -1}
	}
	return err
}

func (s *RedisStore) History(ctx context.Context, id string) ([]model.HistoryEntry, error) {
	raw, err := s.redis.LRange(ctx, historyKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return decodeHistory(raw)
}

func (s *RedisStore) NextSequence(ctx context.Context) (int64, error) {
	n, err := s.redis.Incr(ctx, sequenceKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate display code: %w", err)
	}
	return n, nil
}

// Close is a no-op; the redis client is shared and closed by its owner.
func (s *RedisStore) Close() error { return nil }

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) getRecord(ctx context.Context, c getter, id string) (*model.JobRecord, error) {
	data, err := c.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
		}
		return nil, err
	}
	var job model.JobRecord
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// marshalRecord stores everything but the history, which lives in its own list.
func marshalRecord(job *model.JobRecord) ([]byte, error) {
	c := *job
	c.StatusHistory = nil
	data, err := json.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}

func appendHistory(ctx context.Context, pipe redis.Pipeliner, id string, entries []model.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]interface{}, len(entries))
	for i, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal history entry: %w", err)
		}
		values[i] = data
	}
	pipe.RPush(ctx, historyKey(id), values...)
	return nil
}

func decodeHistory(raw []string) ([]model.HistoryEntry, error) {
	history := make([]model.HistoryEntry, 0, len(raw))
	for _, r := range raw {
		var e model.HistoryEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("failed to decode history entry: %w", err)
		}
		history = append(history, e)
	}
	return history, nil
}

// RedisIdempotency records idempotency keys as JSON with SET NX and a TTL.
type RedisIdempotency struct {
	redis *redis.Client
}

func NewRedisIdempotency(redisClient *redis.Client) *RedisIdempotency {
	return &RedisIdempotency{redis: redisClient}
}

func idemKey(key string) string { return fmt.Sprintf("%s:idem:%s", redisPrefix, key) }

func (r *RedisIdempotency) Lookup(ctx context.Context, key string) (IdempotencyRecord, bool, error) {
	var rec IdempotencyRecord
	data, err := r.redis.Get(ctx, idemKey(key)).Bytes()
	if err == redis.Nil {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, false, fmt.Errorf("failed to decode idempotency key: %w", err)
	}
	return rec, true, nil
}

func (r *RedisIdempotency) Remember(ctx context.Context, key string, rec IdempotencyRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency key: %w", err)
	}
	if err := r.redis.SetNX(ctx, idemKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	return nil
}
