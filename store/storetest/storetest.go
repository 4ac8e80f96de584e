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

// Package storetest holds the behavioural tests every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/require"

	"github.com/alertcore/alertcore/store"
	"github.com/alertcore/alertcore/types"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// Run exercises a store created by newStore. Every subtest gets its own
// store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("ConcurrentUpdate", func(t *testing.T) { testConcurrentUpdate(t, newStore(t)) })
	t.Run("DeleteIf", func(t *testing.T) { testDeleteIf(t, newStore(t)) })
	t.Run("History", func(t *testing.T) { testHistory(t, newStore(t)) })
	t.Run("Attempts", func(t *testing.T) { testAttempts(t, newStore(t)) })
	t.Run("Purge", func(t *testing.T) { testPurge(t, newStore(t)) })
}

// Alert returns a FIRING alert for fp first seen at t0.
func Alert(fp model.Fingerprint) *types.ActiveAlert {
	return &types.ActiveAlert{
		Fingerprint: fp,
		IncidentID:  fmt.Sprintf("incident-%d", fp),
		Name:        "HighErrorRate",
		Labels:      model.LabelSet{"alertname": "HighErrorRate", "service": "api"},
		Annotations: map[string]string{"summary": "errors"},
		Status:      types.StatusFiring,
		Severity:    types.SeverityCritical,
		FirstSeenAt: t0,
		LastSeenAt:  t0,
	}
}

func set(a *types.ActiveAlert) store.UpdateFunc {
	return func(*types.ActiveAlert) (*types.ActiveAlert, error) { return a, nil }
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.Get(context.Background(), 1)
	require.ErrorIs(t, err, store.ErrNotFound)

	alerts, err := s.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func testUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()

	res, err := s.Update(ctx, 1, func(cur *types.ActiveAlert) (*types.ActiveAlert, error) {
		require.Nil(t, cur)
		return nil, nil
	})
	require.NoError(t, err)
	require.Nil(t, res)
	_, err = s.Get(ctx, 1)
	require.ErrorIs(t, err, store.ErrNotFound)

	until := t0.Add(time.Hour)
	a := Alert(1)
	a.SilenceUntil = &until
	a.LastNotifiedChannels = []string{"email", "sms"}
	res, err = s.Update(ctx, 1, set(a))
	require.NoError(t, err)
	require.Equal(t, a, res)

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, a.Fingerprint, got.Fingerprint)
	require.Equal(t, a.Labels, got.Labels)
	require.True(t, until.Equal(*got.SilenceUntil))
	require.Equal(t, []string{"email", "sms"}, got.LastNotifiedChannels)

	// The stored value is isolated from the caller.
	got.Status = types.StatusResolved
	again, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, types.StatusFiring, again.Status)

	// Returning nil keeps the stored state.
	res, err = s.Update(ctx, 1, func(cur *types.ActiveAlert) (*types.ActiveAlert, error) {
		require.NotNil(t, cur)
		cur.Status = types.StatusResolved
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, types.StatusFiring, res.Status)

	boom := errors.New("boom")
	_, err = s.Update(ctx, 1, func(cur *types.ActiveAlert) (*types.ActiveAlert, error) {
		cur.Status = types.StatusResolved
		return cur, boom
	})
	require.ErrorIs(t, err, boom)
	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, types.StatusFiring, got.Status)

	_, err = s.Update(ctx, 2, set(Alert(2)))
	require.NoError(t, err)
	alerts, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
}

func testConcurrentUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	const n = 32

	var (
		wg      sync.WaitGroup
		created sync.Map
		errs    = make(chan error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Update(ctx, 7, func(cur *types.ActiveAlert) (*types.ActiveAlert, error) {
				if cur == nil {
					created.Store(i, true)
					cur = Alert(7)
				}
				cur.NotificationCount++
				return cur, nil
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, n, got.NotificationCount)

	count := 0
	created.Range(func(_, _ any) bool { count++; return true })
	require.Equal(t, 1, count, "exactly one update must observe a missing alert")
}

func testDeleteIf(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.Update(ctx, 3, set(Alert(3)))
	require.NoError(t, err)

	ok, err := s.DeleteIf(ctx, 3, func(a *types.ActiveAlert) bool { return a.Status == types.StatusResolved })
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.DeleteIf(ctx, 3, func(a *types.ActiveAlert) bool { return a.Status == types.StatusFiring })
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.Get(ctx, 3)
	require.ErrorIs(t, err, store.ErrNotFound)

	ok, err = s.DeleteIf(ctx, 3, func(*types.ActiveAlert) bool { return true })
	require.NoError(t, err)
	require.False(t, ok)

	// The slot can be reused after deletion.
	_, err = s.Update(ctx, 3, set(Alert(3)))
	require.NoError(t, err)
	_, err = s.Get(ctx, 3)
	require.NoError(t, err)
}

func record(id string, fp model.Fingerprint, at time.Time, status types.AlertStatus) *types.HistoryRecord {
	return &types.HistoryRecord{
		ID:          id,
		Fingerprint: fp,
		IncidentID:  "incident",
		Trigger:     types.TriggerEvent,
		Event: &types.AlertEvent{
			Name:       "HighErrorRate",
			Labels:     model.LabelSet{"alertname": "HighErrorRate"},
			Severity:   types.SeverityCritical,
			Status:     types.EventFiring,
			ReceivedAt: at,
		},
		Status:     status,
		Severity:   types.SeverityCritical,
		Notified:   true,
		Outcomes:   []types.ChannelOutcome{{ChannelID: "email", Outcome: types.OutcomeSuccess, Attempts: 1}},
		RecordedAt: at,
	}
}

func testHistory(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.AppendHistory(ctx,
		record("a", 1, t0, types.StatusFiring),
		record("b", 2, t0.Add(time.Minute), types.StatusFiring),
	))
	require.NoError(t, s.AppendHistory(ctx, record("c", 1, t0.Add(2*time.Minute), types.StatusResolved)))

	recs, err := s.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "a", recs[0].ID)
	require.Equal(t, "c", recs[1].ID)
	require.Equal(t, types.StatusResolved, recs[1].Status)
	require.Equal(t, "HighErrorRate", recs[0].Event.Name)
	require.Equal(t, types.OutcomeSuccess, recs[0].Outcomes[0].Outcome)

	recs, err = s.HistorySince(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "b", recs[0].ID)

	recs, err = s.History(ctx, 99)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func attempt(id string, fp model.Fingerprint, ch string, n int, at time.Time, o types.Outcome) *types.NotificationAttempt {
	return &types.NotificationAttempt{ID: id, Fingerprint: fp, ChannelID: ch, Attempt: n, AttemptedAt: at, Outcome: o}
}

func testAttempts(t *testing.T, s store.Store) {
	ctx := context.Background()
	failed := attempt("1", 1, "sms", 1, t0, types.OutcomeFailed)
	failed.Error = "gateway timeout"
	require.NoError(t, s.AppendAttempts(ctx,
		failed,
		attempt("2", 1, "sms", 2, t0.Add(time.Second), types.OutcomeSuccess),
		attempt("3", 2, "email", 1, t0.Add(time.Minute), types.OutcomeSuccess),
	))

	got, err := s.Attempts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 1, got[0].Attempt)
	require.Equal(t, "gateway timeout", got[0].Error)
	require.Equal(t, types.OutcomeSuccess, got[1].Outcome)

	got, err = s.AttemptsSince(ctx, t0.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func testPurge(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.AppendHistory(ctx,
		record("old", 1, t0, types.StatusFiring),
		record("new", 1, t0.Add(48*time.Hour), types.StatusFiring),
	))
	require.NoError(t, s.AppendAttempts(ctx,
		attempt("old", 1, "sms", 1, t0, types.OutcomeSuccess),
		attempt("new", 1, "sms", 1, t0.Add(48*time.Hour), types.OutcomeSuccess),
	))

	h, a, err := s.Purge(ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, h)
	require.Equal(t, 1, a)

	recs, err := s.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "new", recs[0].ID)
}
