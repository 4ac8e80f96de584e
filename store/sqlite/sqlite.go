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

// Package sqlite provides a store.Store backed by a SQLite database. Several
// processes may share one database file; updates take the database write
// lock for the whole read-modify-write.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/prometheus/common/model"
	_ "modernc.org/sqlite" // Registers the "sqlite" driver.

	"github.com/alertcore/alertcore/store"
	"github.com/alertcore/alertcore/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS active_alerts (
	fingerprint TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	severity    TEXT NOT NULL,
	last_seen   INTEGER NOT NULL,
	data        BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS alert_history (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	fingerprint TEXT NOT NULL,
	recorded_at INTEGER NOT NULL,
	data        BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS alert_history_fingerprint ON alert_history (fingerprint);
CREATE INDEX IF NOT EXISTS alert_history_recorded    ON alert_history (recorded_at);
CREATE TABLE IF NOT EXISTS notification_attempts (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL,
	fingerprint  TEXT NOT NULL,
	channel_id   TEXT NOT NULL,
	attempt      INTEGER NOT NULL,
	attempted_at INTEGER NOT NULL,
	outcome      TEXT NOT NULL,
	data         BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS notification_attempts_fingerprint ON notification_attempts (fingerprint);
CREATE INDEX IF NOT EXISTS notification_attempts_time        ON notification_attempts (attempted_at);
`

// Store is a SQLite store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer. One connection also keeps an in-memory
	// database alive for the lifetime of the Store.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func key(fp model.Fingerprint) string { return fp.String() }

func nanos(t time.Time) int64 { return t.UnixNano() }

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q querier, fp model.Fingerprint) (*types.ActiveAlert, error) {
	var data []byte
	err := q.QueryRowContext(ctx, `SELECT data FROM active_alerts WHERE fingerprint = ?`, key(fp)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query alert %s: %w", fp, err)
	}
	var a types.ActiveAlert
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode alert %s: %w", fp, err)
	}
	return &a, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, fp model.Fingerprint) (*types.ActiveAlert, error) {
	return get(ctx, s.db, fp)
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, fp model.Fingerprint, fn store.UpdateFunc) (*types.ActiveAlert, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update of %s: %w", fp, err)
	}
	defer tx.Rollback() //nolint:errcheck

	cur, err := get(ctx, tx, fp)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	next, err := fn(cur.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return cur, nil
	}

	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode alert %s: %w", fp, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO active_alerts (fingerprint, status, severity, last_seen, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			status = excluded.status,
			severity = excluded.severity,
			last_seen = excluded.last_seen,
			data = excluded.data`,
		key(fp), string(next.Status), string(next.Severity), nanos(next.LastSeenAt), data,
	)
	if err != nil {
		return nil, fmt.Errorf("write alert %s: %w", fp, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update of %s: %w", fp, err)
	}
	return next.Clone(), nil
}

// DeleteIf implements store.Store.
func (s *Store) DeleteIf(ctx context.Context, fp model.Fingerprint, cond func(*types.ActiveAlert) bool) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete of %s: %w", fp, err)
	}
	defer tx.Rollback() //nolint:errcheck

	cur, err := get(ctx, tx, fp)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !cond(cur) {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM active_alerts WHERE fingerprint = ?`, key(fp)); err != nil {
		return false, fmt.Errorf("delete alert %s: %w", fp, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete of %s: %w", fp, err)
	}
	return true, nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context) ([]*types.ActiveAlert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM active_alerts ORDER BY fingerprint`)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var res []*types.ActiveAlert
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		var a types.ActiveAlert
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode alert: %w", err)
		}
		res = append(res, &a)
	}
	return res, rows.Err()
}

// AppendHistory implements store.Store.
func (s *Store) AppendHistory(ctx context.Context, recs ...*types.HistoryRecord) error {
	return s.inTx(ctx, "append history", func(tx *sql.Tx) error {
		for _, r := range recs {
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("encode history record %s: %w", r.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO alert_history (id, fingerprint, recorded_at, data) VALUES (?, ?, ?, ?)`,
				r.ID, key(r.Fingerprint), nanos(r.RecordedAt), data,
			); err != nil {
				return fmt.Errorf("insert history record %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// History implements store.Store.
func (s *Store) History(ctx context.Context, fp model.Fingerprint) ([]*types.HistoryRecord, error) {
	return queryJSON[types.HistoryRecord](ctx, s.db,
		`SELECT data FROM alert_history WHERE fingerprint = ? ORDER BY seq`, key(fp))
}

// HistorySince implements store.Store.
func (s *Store) HistorySince(ctx context.Context, since time.Time) ([]*types.HistoryRecord, error) {
	return queryJSON[types.HistoryRecord](ctx, s.db,
		`SELECT data FROM alert_history WHERE recorded_at >= ? ORDER BY seq`, nanos(since))
}

// AppendAttempts implements store.Store.
func (s *Store) AppendAttempts(ctx context.Context, attempts ...*types.NotificationAttempt) error {
	return s.inTx(ctx, "append attempts", func(tx *sql.Tx) error {
		for _, a := range attempts {
			data, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("encode attempt %s: %w", a.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO notification_attempts
					(id, fingerprint, channel_id, attempt, attempted_at, outcome, data)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				a.ID, key(a.Fingerprint), a.ChannelID, a.Attempt, nanos(a.AttemptedAt), string(a.Outcome), data,
			); err != nil {
				return fmt.Errorf("insert attempt %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

// Attempts implements store.Store.
func (s *Store) Attempts(ctx context.Context, fp model.Fingerprint) ([]*types.NotificationAttempt, error) {
	return queryJSON[types.NotificationAttempt](ctx, s.db,
		`SELECT data FROM notification_attempts WHERE fingerprint = ? ORDER BY seq`, key(fp))
}

// AttemptsSince implements store.Store.
func (s *Store) AttemptsSince(ctx context.Context, since time.Time) ([]*types.NotificationAttempt, error) {
	return queryJSON[types.NotificationAttempt](ctx, s.db,
		`SELECT data FROM notification_attempts WHERE attempted_at >= ? ORDER BY seq`, nanos(since))
}

// Purge implements store.Store.
func (s *Store) Purge(ctx context.Context, before time.Time) (int, int, error) {
	var h, a int64
	err := s.inTx(ctx, "purge", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM alert_history WHERE recorded_at < ?`, nanos(before))
		if err != nil {
			return fmt.Errorf("purge history: %w", err)
		}
		if h, err = res.RowsAffected(); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, `DELETE FROM notification_attempts WHERE attempted_at < ?`, nanos(before))
		if err != nil {
			return fmt.Errorf("purge attempts: %w", err)
		}
		a, err = res.RowsAffected()
		return err
	})
	return int(h), int(a), err
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", op, err)
	}
	return nil
}

func queryJSON[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]*T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var res []*T
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		v := new(T)
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		res = append(res, v)
	}
	return res, rows.Err()
}
