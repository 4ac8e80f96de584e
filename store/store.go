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

// Package store defines the persistence contract of the alert pipeline:
// active alerts keyed by fingerprint with atomic read-modify-write, plus the
// append-only history and notification attempt logs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/common/model"

	"github.com/alertcore/alertcore/types"
)

// ErrNotFound is returned if a Store cannot find the alert.
var ErrNotFound = errors.New("alert not found")

// UpdateFunc computes the next state of an alert from its current state.
// cur is nil if the fingerprint has no alert and must not be modified.
// Returning a nil alert leaves the stored state untouched. Returning an
// error aborts the update and is passed through to the caller of Update.
type UpdateFunc func(cur *types.ActiveAlert) (*types.ActiveAlert, error)

// Store holds active alerts and their history. Implementations must be safe
// for concurrent use, and Update must be atomic with respect to every other
// mutation of the same fingerprint, including those made by other processes
// sharing the backing storage.
type Store interface {
	// Get returns the alert with the given fingerprint or ErrNotFound.
	Get(ctx context.Context, fp model.Fingerprint) (*types.ActiveAlert, error)
	// Update atomically applies fn to the alert with the given fingerprint
	// and returns the resulting state, which is nil if the fingerprint still
	// has no alert.
	Update(ctx context.Context, fp model.Fingerprint, fn UpdateFunc) (*types.ActiveAlert, error)
	// DeleteIf atomically removes the alert if cond holds for it and reports
	// whether it was removed.
	DeleteIf(ctx context.Context, fp model.Fingerprint, cond func(*types.ActiveAlert) bool) (bool, error)
	// List returns every stored alert.
	List(ctx context.Context) ([]*types.ActiveAlert, error)

	// AppendHistory adds records to the history log.
	AppendHistory(ctx context.Context, recs ...*types.HistoryRecord) error
	// History returns the records of a fingerprint in append order.
	History(ctx context.Context, fp model.Fingerprint) ([]*types.HistoryRecord, error)
	// HistorySince returns all records written at or after since, in append
	// order.
	HistorySince(ctx context.Context, since time.Time) ([]*types.HistoryRecord, error)

	// AppendAttempts adds records to the notification attempt log.
	AppendAttempts(ctx context.Context, attempts ...*types.NotificationAttempt) error
	// Attempts returns the attempts of a fingerprint in append order.
	Attempts(ctx context.Context, fp model.Fingerprint) ([]*types.NotificationAttempt, error)
	// AttemptsSince returns all attempts made at or after since.
	AttemptsSince(ctx context.Context, since time.Time) ([]*types.NotificationAttempt, error)

	// Purge deletes history records and attempts older than before and
	// returns how many of each were removed.
	Purge(ctx context.Context, before time.Time) (history, attempts int, err error)

	Close() error
}
