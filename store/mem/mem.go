// Copyright 2026 Prometheus Team
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mem provides an in-process Store. Alerts live in per-fingerprint
// slots so updates to different fingerprints never contend.
package mem

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/common/model"

	"github.com/alertcore/alertcore/store"
	"github.com/alertcore/alertcore/types"
)

type slot struct {
	sync.Mutex
	alert *types.ActiveAlert
	// removed is set once the slot has been dropped from the map. Holders of
	// a stale slot must look it up again.
	removed bool
}

// Store is an in-memory store.Store.
type Store struct {
	mtx   sync.RWMutex
	slots map[model.Fingerprint]*slot

	logMtx   sync.RWMutex
	history  []*types.HistoryRecord
	attempts []*types.NotificationAttempt
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{slots: make(map[model.Fingerprint]*slot)}
}

func (s *Store) slot(fp model.Fingerprint) *slot {
	s.mtx.RLock()
	sl, ok := s.slots[fp]
	s.mtx.RUnlock()
	if ok {
		return sl
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	if sl, ok = s.slots[fp]; !ok {
		sl = &slot{}
		s.slots[fp] = sl
	}
	return sl
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, fp model.Fingerprint) (*types.ActiveAlert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mtx.RLock()
	sl, ok := s.slots[fp]
	s.mtx.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}

	sl.Lock()
	defer sl.Unlock()
	if sl.alert == nil {
		return nil, store.ErrNotFound
	}
	return sl.alert.Clone(), nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, fp model.Fingerprint, fn store.UpdateFunc) (*types.ActiveAlert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for {
		sl := s.slot(fp)
		sl.Lock()
		if sl.removed {
			sl.Unlock()
			continue
		}
		next, err := fn(sl.alert.Clone())
		if err != nil {
			sl.Unlock()
			return nil, err
		}
		if next != nil {
			sl.alert = next.Clone()
		}
		res := sl.alert.Clone()
		sl.Unlock()
		if res == nil {
			s.dropEmpty(fp, sl)
		}
		return res, nil
	}
}

// dropEmpty removes a slot created by an update that stored nothing.
func (s *Store) dropEmpty(fp model.Fingerprint, sl *slot) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	sl.Lock()
	defer sl.Unlock()
	if sl.alert == nil && s.slots[fp] == sl {
		sl.removed = true
		delete(s.slots, fp)
	}
}

// DeleteIf implements store.Store.
func (s *Store) DeleteIf(ctx context.Context, fp model.Fingerprint, cond func(*types.ActiveAlert) bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()

	sl, ok := s.slots[fp]
	if !ok {
		return false, nil
	}
	sl.Lock()
	defer sl.Unlock()
	if sl.alert == nil || !cond(sl.alert.Clone()) {
		return false, nil
	}
	sl.removed = true
	delete(s.slots, fp)
	return true, nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context) ([]*types.ActiveAlert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := make([]*types.ActiveAlert, 0, len(s.slots))
	for _, sl := range s.slots {
		sl.Lock()
		if sl.alert != nil {
			res = append(res, sl.alert.Clone())
		}
		sl.Unlock()
	}
	return res, nil
}

// AppendHistory implements store.Store.
func (s *Store) AppendHistory(ctx context.Context, recs ...*types.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logMtx.Lock()
	defer s.logMtx.Unlock()

	for _, r := range recs {
		c := *r
		c.Outcomes = slices.Clone(r.Outcomes)
		s.history = append(s.history, &c)
	}
	return nil
}

// History implements store.Store.
func (s *Store) History(ctx context.Context, fp model.Fingerprint) ([]*types.HistoryRecord, error) {
	return s.filterHistory(ctx, func(r *types.HistoryRecord) bool { return r.Fingerprint == fp })
}

// HistorySince implements store.Store.
func (s *Store) HistorySince(ctx context.Context, since time.Time) ([]*types.HistoryRecord, error) {
	return s.filterHistory(ctx, func(r *types.HistoryRecord) bool { return !r.RecordedAt.Before(since) })
}

func (s *Store) filterHistory(ctx context.Context, keep func(*types.HistoryRecord) bool) ([]*types.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logMtx.RLock()
	defer s.logMtx.RUnlock()

	var res []*types.HistoryRecord
	for _, r := range s.history {
		if keep(r) {
			c := *r
			res = append(res, &c)
		}
	}
	return res, nil
}

// AppendAttempts implements store.Store.
func (s *Store) AppendAttempts(ctx context.Context, attempts ...*types.NotificationAttempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logMtx.Lock()
	defer s.logMtx.Unlock()

	for _, a := range attempts {
		c := *a
		s.attempts = append(s.attempts, &c)
	}
	return nil
}

// Attempts implements store.Store.
func (s *Store) Attempts(ctx context.Context, fp model.Fingerprint) ([]*types.NotificationAttempt, error) {
	return s.filterAttempts(ctx, func(a *types.NotificationAttempt) bool { return a.Fingerprint == fp })
}

// AttemptsSince implements store.Store.
func (s *Store) AttemptsSince(ctx context.Context, since time.Time) ([]*types.NotificationAttempt, error) {
	return s.filterAttempts(ctx, func(a *types.NotificationAttempt) bool { return !a.AttemptedAt.Before(since) })
}

func (s *Store) filterAttempts(ctx context.Context, keep func(*types.NotificationAttempt) bool) ([]*types.NotificationAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logMtx.RLock()
	defer s.logMtx.RUnlock()

	var res []*types.NotificationAttempt
	for _, a := range s.attempts {
		if keep(a) {
			c := *a
			res = append(res, &c)
		}
	}
	return res, nil
}

// Purge implements store.Store.
func (s *Store) Purge(ctx context.Context, before time.Time) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	s.logMtx.Lock()
	defer s.logMtx.Unlock()

	nh := len(s.history)
	s.history = slices.DeleteFunc(s.history, func(r *types.HistoryRecord) bool { return r.RecordedAt.Before(before) })
	na := len(s.attempts)
	s.attempts = slices.DeleteFunc(s.attempts, func(a *types.NotificationAttempt) bool { return a.AttemptedAt.Before(before) })
	return nh - len(s.history), na - len(s.attempts), nil
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }
