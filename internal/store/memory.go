package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/printworks/jobtrack/internal/model"
)

// MemoryStore keeps immutable snapshots in a sync.Map. Readers never take a
// lock; writers swap whole snapshots with CompareAndSwap.
type MemoryStore struct {
	jobs  sync.Map // id -> *model.JobRecord, never mutated once stored
	codes sync.Map // display code -> id
	seq   atomic.Int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Create(_ context.Context, job *model.JobRecord) error {
	if _, loaded := s.codes.LoadOrStore(job.DisplayCode, job.ID); loaded {
		return fmt.Errorf("%w: display code %s", model.ErrDuplicate, job.DisplayCode)
	}
	if _, loaded := s.jobs.LoadOrStore(job.ID, job.Clone()); loaded {
		s.codes.Delete(job.DisplayCode)
		return fmt.Errorf("%w: id %s", model.ErrDuplicate, job.ID)
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.JobRecord, error) {
	v, ok := s.jobs.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return v.(*model.JobRecord).Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, filter model.JobFilter) ([]*model.JobRecord, error) {
	var out []*model.JobRecord
	s.jobs.Range(func(_, v any) bool {
		job := v.(*model.JobRecord)
		if filter.Matches(job) {
			out = append(out, job.Clone())
		}
		return true
	})
	sortOldestFirst(out)
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, job *model.JobRecord, expectedVersion int64) error {
	v, ok := s.jobs.Load(job.ID)
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrNotFound, job.ID)
	}
	current := v.(*model.JobRecord)
	if current.Version != expectedVersion {
		return &model.StaleWriteError{JobID: job.ID, Expected: expectedVersion, Actual: current.Version}
	}
	if len(job.StatusHistory) < len(current.StatusHistory) {
		return fmt.Errorf("store: history of job %s would shrink", job.ID)
	}
	if !s.jobs.CompareAndSwap(job.ID, current, job.Clone()) {
		latest, _ := s.jobs.Load(job.ID)
		return &model.StaleWriteError{JobID: job.ID, Expected: expectedVersion, Actual: latest.(*model.JobRecord).Version}
	}
	return nil
}

func (s *MemoryStore) History(ctx context.Context, id string) ([]model.HistoryEntry, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return job.StatusHistory, nil
}

func (s *MemoryStore) NextSequence(context.Context) (int64, error) {
	return s.seq.Add(1), nil
}

func (s *MemoryStore) Close() error { return nil }

func sortOldestFirst(jobs []*model.JobRecord) {
	sort.SliceStable(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
}

// idemSweepInterval bounds how often Remember walks the whole map.
const idemSweepInterval = time.Minute

// MemoryIdempotency is an in-process IdempotencyStore with expiry. Expired
// keys are dropped on lookup and by a sweep that runs at most once per
// idemSweepInterval.
type MemoryIdempotency struct {
	mu        sync.Mutex
	entries   map[string]idemEntry
	now       func() time.Time
	lastSweep time.Time
}

type idemEntry struct {
	rec     IdempotencyRecord
	expires time.Time
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{entries: make(map[string]idemEntry), now: time.Now}
}

func (m *MemoryIdempotency) Lookup(_ context.Context, key string) (IdempotencyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return IdempotencyRecord{}, false, nil
	}
	if m.now().After(e.expires) {
		delete(m.entries, key)
		return IdempotencyRecord{}, false, nil
	}
	return e.rec, true, nil
}

func (m *MemoryIdempotency) Remember(_ context.Context, key string, rec IdempotencyRecord, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if now.Sub(m.lastSweep) >= idemSweepInterval {
		for k, e := range m.entries {
			if now.After(e.expires) {
				delete(m.entries, k)
			}
		}
		m.lastSweep = now
	}
	if e, ok := m.entries[key]; ok && !now.After(e.expires) {
		return nil
	}
	m.entries[key] = idemEntry{rec: rec, expires: now.Add(ttl)}
	return nil
}
