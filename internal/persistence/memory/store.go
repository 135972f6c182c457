// Package memory provides in-process stores for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/analytics/internal/analytics"
	"example.com/analytics/internal/domain"
)

// Store keeps runs and score snapshots in maps. It implements
// domain.RunRepository, domain.SnapshotRepository and domain.UserLocker.
type Store struct {
	mu        sync.RWMutex
	runs      map[string][]analytics.Run
	snapshots map[string]map[string]domain.ScoreSnapshot

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		runs:      make(map[string][]analytics.Run),
		snapshots: make(map[string]map[string]domain.ScoreSnapshot),
		locks:     make(map[string]*sync.Mutex),
	}
}

// PutRun inserts or replaces a run by ID.
func (s *Store) PutRun(run analytics.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.Date = analytics.Day(run.Date)
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	runs := s.runs[run.UserID]
	for i := range runs {
		if runs[i].ID == run.ID {
			runs[i] = run
			return
		}
	}
	s.runs[run.UserID] = append(runs, run)
}

// DeleteRun removes a run. It reports whether the run existed.
func (s *Store) DeleteRun(userID, runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := s.runs[userID]
	for i := range runs {
		if runs[i].ID == runID {
			s.runs[userID] = append(runs[:i], runs[i+1:]...)
			return true
		}
	}
	return false
}

// ListByUser returns the user's runs ordered by date, creation time and ID.
func (s *Store) ListByUser(_ context.Context, userID string) ([]analytics.Run, error) {
	s.mu.RLock()
	out := append([]analytics.Run(nil), s.runs[userID]...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

// DistancesByDate sums the user's distance per run date.
func (s *Store) DistancesByDate(ctx context.Context, userID string) ([]analytics.Sample, error) {
	runs, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	samples := make([]analytics.Sample, 0, len(runs))
	for _, run := range runs {
		if n := len(samples); n > 0 && samples[n-1].Date.Equal(run.Date) {
			samples[n-1].Value += run.DistanceKm
			continue
		}
		samples = append(samples, analytics.Sample{Date: run.Date, Value: run.DistanceKm})
	}
	return samples, nil
}

// ListUserIDs returns users with at least one run, sorted.
func (s *Store) ListUserIDs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.runs))
	for id, runs := range s.runs {
		if len(runs) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// GetSnapshot returns nil when no snapshot exists for the date.
func (s *Store) GetSnapshot(_ context.Context, userID string, date time.Time) (*domain.ScoreSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[userID][snapshotKey(date)]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// UpsertSnapshot creates or overwrites the snapshot for (user, date).
func (s *Store) UpsertSnapshot(_ context.Context, snapshot domain.ScoreSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot.Date = analytics.Day(snapshot.Date)
	byDate, ok := s.snapshots[snapshot.UserID]
	if !ok {
		byDate = make(map[string]domain.ScoreSnapshot)
		s.snapshots[snapshot.UserID] = byDate
	}
	byDate[snapshotKey(snapshot.Date)] = snapshot
	return nil
}

// DeleteSnapshots removes all snapshots of the user.
func (s *Store) DeleteSnapshots(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.snapshots[userID]))
	delete(s.snapshots, userID)
	return n, nil
}

// ListSnapshots returns the user's snapshots ordered by date.
func (s *Store) ListSnapshots(_ context.Context, userID string) ([]domain.ScoreSnapshot, error) {
	s.mu.RLock()
	out := make([]domain.ScoreSnapshot, 0, len(s.snapshots[userID]))
	for _, snap := range s.snapshots[userID] {
		out = append(out, snap)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// InTx stages the writes fn makes through tx and applies them in one step when
// fn succeeds. Readers of the store see either none or all of them.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.SnapshotRepository) error) error {
	tx := &snapshotTx{
		store:   s,
		cleared: make(map[string]bool),
		pending: make(map[string]map[string]domain.ScoreSnapshot),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// WithUserLock runs fn while holding the user's mutex.
func (s *Store) WithUserLock(ctx context.Context, userID string, fn func(context.Context) error) error {
	s.locksMu.Lock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	s.locksMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

func snapshotKey(date time.Time) string {
	return analytics.Day(date).Format(time.DateOnly)
}

// snapshotTx overlays staged snapshot writes on top of the store.
type snapshotTx struct {
	store   *Store
	cleared map[string]bool
	pending map[string]map[string]domain.ScoreSnapshot
}

func (t *snapshotTx) GetSnapshot(ctx context.Context, userID string, date time.Time) (*domain.ScoreSnapshot, error) {
	if snap, ok := t.pending[userID][snapshotKey(date)]; ok {
		return &snap, nil
	}
	if t.cleared[userID] {
		return nil, nil
	}
	return t.store.GetSnapshot(ctx, userID, date)
}

func (t *snapshotTx) UpsertSnapshot(_ context.Context, snapshot domain.ScoreSnapshot) error {
	snapshot.Date = analytics.Day(snapshot.Date)
	byDate, ok := t.pending[snapshot.UserID]
	if !ok {
		byDate = make(map[string]domain.ScoreSnapshot)
		t.pending[snapshot.UserID] = byDate
	}
	byDate[snapshotKey(snapshot.Date)] = snapshot
	return nil
}

func (t *snapshotTx) DeleteSnapshots(ctx context.Context, userID string) (int64, error) {
	visible, err := t.ListSnapshots(ctx, userID)
	if err != nil {
		return 0, err
	}
	t.cleared[userID] = true
	delete(t.pending, userID)
	return int64(len(visible)), nil
}

func (t *snapshotTx) ListSnapshots(ctx context.Context, userID string) ([]domain.ScoreSnapshot, error) {
	merged := make(map[string]domain.ScoreSnapshot)
	if !t.cleared[userID] {
		committed, err := t.store.ListSnapshots(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, snap := range committed {
			merged[snapshotKey(snap.Date)] = snap
		}
	}
	for key, snap := range t.pending[userID] {
		merged[key] = snap
	}

	out := make([]domain.ScoreSnapshot, 0, len(merged))
	for _, snap := range merged {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (t *snapshotTx) InTx(_ context.Context, fn func(tx domain.SnapshotRepository) error) error {
	return fn(t)
}

func (t *snapshotTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for userID := range t.cleared {
		delete(t.store.snapshots, userID)
	}
	for userID, staged := range t.pending {
		byDate, ok := t.store.snapshots[userID]
		if !ok {
			byDate = make(map[string]domain.ScoreSnapshot)
			t.store.snapshots[userID] = byDate
		}
		for key, snap := range staged {
			byDate[key] = snap
		}
	}
}
