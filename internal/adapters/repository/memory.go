package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/tierboard/internal/domain/model"
	"github.com/okian/tierboard/pkg/metrics"
)

// snapshot is one committed state. Committed snapshots are never mutated;
// writers work on a clone and swap it in on success.
type snapshot struct {
	submissions map[string]submissionRow
	ratings     map[string]ratingRow
	cooldowns   map[string]time.Time
	settings    *model.Settings
	seq         int64
}

type submissionRow struct {
	sub model.Submission
	seq int64
}

type ratingRow struct {
	r   model.Rating
	seq int64
}

func newSnapshot() *snapshot {
	return &snapshot{
		submissions: make(map[string]submissionRow),
		ratings:     make(map[string]ratingRow),
		cooldowns:   make(map[string]time.Time),
	}
}

func (s *snapshot) clone() *snapshot {
	c := &snapshot{
		submissions: make(map[string]submissionRow, len(s.submissions)),
		ratings:     make(map[string]ratingRow, len(s.ratings)),
		cooldowns:   make(map[string]time.Time, len(s.cooldowns)),
		seq:         s.seq,
	}
	for k, v := range s.submissions {
		c.submissions[k] = v
	}
	for k, v := range s.ratings {
		c.ratings[k] = v
	}
	for k, v := range s.cooldowns {
		c.cooldowns[k] = v
	}
	if s.settings != nil {
		st := *s.settings
		c.settings = &st
	}
	return c
}

// MemoryStore keeps the state in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	writer sync.Mutex
	cur    *snapshot
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cur: newSnapshot()}
}

// Update runs fn against a private copy and publishes it when fn succeeds.
func (m *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreTx("update", msSince(start), err != nil) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	m.writer.Lock()
	defer m.writer.Unlock()

	base, err := m.current()
	if err != nil {
		return err
	}
	work := base.clone()
	if err := fn(&memTx{s: work, writable: true}); err != nil {
		return err
	}

	m.mu.Lock()
	m.cur = work
	m.mu.Unlock()
	return nil
}

// View runs fn against the last committed snapshot.
func (m *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreTx("view", msSince(start), err != nil) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := m.current()
	if err != nil {
		return err
	}
	return fn(&memTx{s: snap})
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryStore) current() (*snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.cur, nil
}

type memTx struct {
	s        *snapshot
	writable bool
}

func (t *memTx) write(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.writable {
		return ErrReadOnly
	}
	return nil
}

func (t *memTx) Submission(ctx context.Context, id string) (model.Submission, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Submission{}, false, err
	}
	row, ok := t.s.submissions[id]
	return row.sub, ok, nil
}

func (t *memTx) PutSubmission(ctx context.Context, sub model.Submission) error {
	if err := t.write(ctx); err != nil {
		return err
	}
	if sub.Status == model.StatusPending {
		for id, other := range t.s.submissions {
			if id != sub.ID && other.sub.MemberID == sub.MemberID && other.sub.Status == model.StatusPending {
				return fmt.Errorf("put submission %s: %w", sub.ID, model.ErrDuplicateState)
			}
		}
	}
	row, ok := t.s.submissions[sub.ID]
	if !ok {
		t.s.seq++
		row.seq = t.s.seq
	}
	row.sub = sub
	t.s.submissions[sub.ID] = row
	return nil
}

func (t *memTx) PendingOf(ctx context.Context, memberID string) (model.Submission, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Submission{}, false, err
	}
	for _, row := range t.s.submissions {
		if row.sub.MemberID == memberID && row.sub.Status == model.StatusPending {
			return row.sub, true, nil
		}
	}
	return model.Submission{}, false, nil
}

func (t *memTx) Pending(ctx context.Context) ([]model.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := make([]submissionRow, 0)
	for _, row := range t.s.submissions {
		if row.sub.Status == model.StatusPending {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].sub.CreatedAt.Equal(rows[j].sub.CreatedAt) {
			return rows[i].sub.CreatedAt.After(rows[j].sub.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	out := make([]model.Submission, len(rows))
	for i, row := range rows {
		out[i] = row.sub
	}
	return out, nil
}

func (t *memTx) CountSubmissions(ctx context.Context) (map[model.Status]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[model.Status]int)
	for _, row := range t.s.submissions {
		out[row.sub.Status]++
	}
	return out, nil
}

func (t *memTx) PruneSubmissions(ctx context.Context, cutoff time.Time) (int, error) {
	if err := t.write(ctx); err != nil {
		return 0, err
	}
	n := 0
	for id, row := range t.s.submissions {
		if row.sub.Status.Terminal() && row.sub.CreatedAt.Before(cutoff) {
			delete(t.s.submissions, id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) Rating(ctx context.Context, memberID string) (model.Rating, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Rating{}, false, err
	}
	row, ok := t.s.ratings[memberID]
	return row.r, ok, nil
}

func (t *memTx) PutRating(ctx context.Context, r model.Rating) error {
	if err := t.write(ctx); err != nil {
		return err
	}
	row, ok := t.s.ratings[r.MemberID]
	if !ok {
		t.s.seq++
		row.seq = t.s.seq
	}
	row.r = r
	t.s.ratings[r.MemberID] = row
	return nil
}

func (t *memTx) DeleteRating(ctx context.Context, memberID string) (bool, error) {
	if err := t.write(ctx); err != nil {
		return false, err
	}
	if _, ok := t.s.ratings[memberID]; !ok {
		return false, nil
	}
	delete(t.s.ratings, memberID)
	return true, nil
}

func (t *memTx) Ratings(ctx context.Context) ([]model.Rating, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := make([]ratingRow, 0, len(t.s.ratings))
	for _, row := range t.s.ratings {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]model.Rating, len(rows))
	for i, row := range rows {
		out[i] = row.r
	}
	return out, nil
}

func (t *memTx) DeleteRatings(ctx context.Context) (int, error) {
	if err := t.write(ctx); err != nil {
		return 0, err
	}
	n := len(t.s.ratings)
	t.s.ratings = make(map[string]ratingRow)
	return n, nil
}

func (t *memTx) Cooldown(ctx context.Context, memberID string) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	at, ok := t.s.cooldowns[memberID]
	return at, ok, nil
}

func (t *memTx) PutCooldown(ctx context.Context, memberID string, at time.Time) error {
	if err := t.write(ctx); err != nil {
		return err
	}
	t.s.cooldowns[memberID] = at
	return nil
}

func (t *memTx) Settings(ctx context.Context) (model.Settings, error) {
	if err := ctx.Err(); err != nil {
		return model.Settings{}, err
	}
	if t.s.settings == nil {
		return model.DefaultSettings(), nil
	}
	return *t.s.settings, nil
}

func (t *memTx) PutSettings(ctx context.Context, s model.Settings) error {
	if err := t.write(ctx); err != nil {
		return err
	}
	t.s.settings = &s
	return nil
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
