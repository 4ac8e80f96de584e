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

// Package manager orchestrates the alert pipeline. Every inbound event is
// fingerprinted, checked against the dedup window, applied to the state
// machine, persisted and, when the transition calls for it, dispatched to
// the notification channels.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/model"
	"github.com/prometheus/common/promslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alertcore/alertcore/dedup"
	"github.com/alertcore/alertcore/notify"
	"github.com/alertcore/alertcore/state"
	"github.com/alertcore/alertcore/store"
	"github.com/alertcore/alertcore/types"
)

var tracer = otel.Tracer("github.com/alertcore/alertcore/manager")

const (
	DefaultResolvedRetention = 24 * time.Hour
	DefaultHistoryRetention  = 30 * 24 * time.Hour
)

// Action describes what ProcessAlert did with an event.
type Action string

const (
	// ActionProcessed means the event changed the alert and was recorded in
	// its history.
	ActionProcessed Action = "processed"
	// ActionSkipped means the event repeated the known state within the
	// dedup window.
	ActionSkipped Action = "skipped"
	// ActionIgnored means the event had no effect on the lifecycle, like a
	// resolved event for an unknown fingerprint.
	ActionIgnored Action = "ignored"
)

// ProcessResult is the outcome of processing one event.
type ProcessResult struct {
	Fingerprint model.Fingerprint
	Action      Action
	From        types.AlertStatus
	To          types.AlertStatus
	// Alert is the stored state after processing. It is nil if the
	// fingerprint has no alert.
	Alert *types.ActiveAlert
	// Dispatch is nil when no notification was attempted.
	Dispatch *notify.DispatchResult
}

// Notified reports whether at least one channel accepted a notification.
func (r *ProcessResult) Notified() bool {
	return r.Dispatch != nil && !r.Dispatch.Suppressed && len(r.Dispatch.Delivered()) > 0
}

// WebhookResult summarizes the processing of a webhook message.
type WebhookResult struct {
	Processed int
	Skipped   int
	Ignored   int
	// Rejected counts elements that failed validation. They are neither
	// persisted nor retried.
	Rejected int
	Errors   []error
	Results  []*ProcessResult
}

// Options configures a Manager.
type Options struct {
	Store  store.Store
	Router *notify.Router

	// Fingerprinter defaults to one without volatile labels.
	Fingerprinter *types.Fingerprinter
	// Deduplicator defaults to one using dedup.DefaultWindow.
	Deduplicator *dedup.Deduplicator
	Machine      *state.Machine

	// ResolvedRetention is how long resolved alerts and elapsed silences
	// are kept before garbage collection.
	ResolvedRetention time.Duration
	// HistoryRetention is how long history records and notification
	// attempts are kept.
	HistoryRetention time.Duration

	Clock   quartz.Clock
	Logger  *slog.Logger
	Metrics prometheus.Registerer
}

func (o *Options) validate() error {
	if o.Store == nil {
		return errors.New("missing alert store")
	}
	if o.Router == nil {
		return errors.New("missing notification router")
	}
	if o.ResolvedRetention < 0 {
		return fmt.Errorf("resolved retention must not be negative: %s", o.ResolvedRetention)
	}
	if o.HistoryRetention < 0 {
		return fmt.Errorf("history retention must not be negative: %s", o.HistoryRetention)
	}
	return nil
}

// Manager is the entry point of the alert pipeline. It is safe for
// concurrent use. Operations on the same fingerprint are serialized, all
// others run in parallel.
type Manager struct {
	store  store.Store
	router *notify.Router
	fp     *types.Fingerprinter
	dedup  *dedup.Deduplicator
	sm     *state.Machine
	locks  *fpLocks

	resolvedRetention time.Duration
	historyRetention  time.Duration

	clock   quartz.Clock
	logger  *slog.Logger
	metrics *metrics
}

// New returns a Manager for the given options.
func New(o Options) (*Manager, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.Fingerprinter == nil {
		o.Fingerprinter = types.NewFingerprinter()
	}
	if o.Deduplicator == nil {
		o.Deduplicator = dedup.New(dedup.DefaultWindow)
	}
	if o.Machine == nil {
		o.Machine = state.New()
	}
	if o.ResolvedRetention == 0 {
		o.ResolvedRetention = DefaultResolvedRetention
	}
	if o.HistoryRetention == 0 {
		o.HistoryRetention = DefaultHistoryRetention
	}
	if o.Clock == nil {
		o.Clock = quartz.NewReal()
	}
	if o.Logger == nil {
		o.Logger = promslog.NewNopLogger()
	}
	return &Manager{
		store:             o.Store,
		router:            o.Router,
		fp:                o.Fingerprinter,
		dedup:             o.Deduplicator,
		sm:                o.Machine,
		locks:             newFPLocks(),
		resolvedRetention: o.ResolvedRetention,
		historyRetention:  o.HistoryRetention,
		clock:             o.Clock,
		logger:            o.Logger,
		metrics:           newMetrics(o.Metrics),
	}, nil
}

// Fingerprint returns the identity key of e.
func (m *Manager) Fingerprint(e *types.AlertEvent) model.Fingerprint {
	return m.fp.Fingerprint(e)
}

// storeErr wraps err into a *types.StoreUnavailableError unless it is one of
// the typed errors produced by the pipeline itself.
func storeErr(op string, err error) error {
	var (
		verr *types.ValidationError
		nerr *types.NotFoundError
		serr *types.StoreUnavailableError
	)
	switch {
	case errors.As(err, &verr), errors.As(err, &nerr), errors.As(err, &serr),
		errors.Is(err, types.ErrInvalidTransition):
		return err
	}
	return &types.StoreUnavailableError{Op: op, Err: err}
}

// ProcessAlert runs a single event through the pipeline. The alert state,
// its history record and the notification attempts are persisted before it
// returns. Channel failures are reported in the dispatch result; the
// returned error is a *types.ValidationError for malformed events or a
// *types.StoreUnavailableError when the outcome could not be persisted.
func (m *Manager) ProcessAlert(ctx context.Context, e *types.AlertEvent) (*ProcessResult, error) {
	ctx, span := tracer.Start(ctx, "manager.Manager.ProcessAlert",
		trace.WithAttributes(
			attribute.String("alerting.alert.name", e.Name),
			attribute.String("alerting.event.status", string(e.Status)),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	if err := e.Validate(); err != nil {
		m.metrics.invalidTotal.Inc()
		span.SetStatus(codes.Error, "invalid event")
		span.RecordError(err)
		return nil, err
	}
	m.metrics.receivedTotal.WithLabelValues(string(e.Status)).Inc()

	fp := m.fp.Fingerprint(e)
	span.SetAttributes(attribute.String("alerting.alert.fingerprint", fp.String()))
	logger := m.logger.With("fingerprint", fp, "alertname", e.Name)

	unlock := m.locks.lock(fp)
	defer unlock()

	now := m.clock.Now()
	var (
		skipped bool
		tr      *state.Transition
	)
	alert, err := m.store.Update(ctx, fp, func(cur *types.ActiveAlert) (*types.ActiveAlert, error) {
		skipped, tr = false, nil
		if m.dedup.IsDuplicate(e, cur) {
			skipped = true
			if !e.ReceivedAt.After(cur.LastSeenAt) {
				return nil, nil
			}
			cur.LastSeenAt = e.ReceivedAt
			return cur, nil
		}
		t, err := m.sm.Apply(cur, state.EventInput(fp, e, now))
		if err != nil {
			return nil, err
		}
		tr = t
		return t.Alert, nil
	})
	if err != nil {
		err = storeErr("update", err)
		span.SetStatus(codes.Error, "store update failed")
		span.RecordError(err)
		return nil, err
	}

	res := &ProcessResult{Fingerprint: fp, Alert: normalize(alert, now)}
	switch {
	case skipped:
		m.metrics.skippedTotal.Inc()
		logger.Debug("duplicate event skipped", "status", e.Status)
		res.Action = ActionSkipped
		res.From, res.To = alert.Status, alert.Status
		return res, nil
	case tr.Ignored:
		m.metrics.ignoredTotal.Inc()
		logger.Debug("event ignored", "status", e.Status)
		res.Action = ActionIgnored
		res.From, res.To = tr.From, tr.To
		return res, nil
	}

	res.Action = ActionProcessed
	res.From, res.To = tr.From, tr.To
	span.SetAttributes(
		attribute.String("alerting.alert.from", string(tr.From)),
		attribute.String("alerting.alert.to", string(tr.To)),
	)

	a, d, err := m.commit(ctx, logger, tr, alert, e, now)
	if a != nil {
		res.Alert = normalize(a, now)
	}
	res.Dispatch = d
	if err != nil {
		span.SetStatus(codes.Error, "persisting outcome failed")
		span.RecordError(err)
		return res, err
	}
	return res, nil
}

// commit announces a stored transition when it calls for it and records the
// outcome. It returns the alert as stored afterwards.
func (m *Manager) commit(ctx context.Context, logger *slog.Logger, tr *state.Transition, alert *types.ActiveAlert, e *types.AlertEvent, now time.Time) (*types.ActiveAlert, *notify.DispatchResult, error) {
	m.metrics.transitionsTotal.WithLabelValues(string(tr.From), string(tr.To), string(tr.Trigger)).Inc()
	if tr.NewIncident {
		logger.Info("new incident", "incident", alert.IncidentID, "severity", alert.Severity)
	}

	var d *notify.DispatchResult
	if tr.Notify && !alert.Silenced(now) {
		// Notifications that started must be recorded even if the caller
		// goes away.
		var err error
		d, err = m.router.Dispatch(context.WithoutCancel(ctx), alert, e)
		if err != nil {
			logger.Error("dispatch failed", "err", err)
		}
	}

	if d != nil && !d.Suppressed {
		if delivered := d.Delivered(); len(delivered) > 0 {
			incident, status, at := alert.IncidentID, alert.Status, d.At
			next, err := m.store.Update(ctx, alert.Fingerprint, func(cur *types.ActiveAlert) (*types.ActiveAlert, error) {
				if cur == nil || cur.IncidentID != incident {
					return nil, nil
				}
				cur.NotificationCount++
				cur.LastNotifiedChannels = delivered
				cur.LastNotifiedAt = &at
				cur.LastNotifiedStatus = status
				return cur, nil
			})
			if err != nil {
				return alert, d, storeErr("update", err)
			}
			if next != nil {
				alert = next
			}
		}
	}

	rec := &types.HistoryRecord{
		ID:          ulid.Make().String(),
		Fingerprint: alert.Fingerprint,
		IncidentID:  alert.IncidentID,
		Trigger:     tr.Trigger,
		Event:       e,
		PrevStatus:  tr.From,
		Status:      tr.To,
		Severity:    alert.Severity,
		RecordedAt:  now,
	}
	if d != nil {
		rec.Outcomes = d.Outcomes()
		rec.Notified = !d.Suppressed && len(d.Delivered()) > 0
	}
	if err := m.store.AppendHistory(ctx, rec); err != nil {
		return alert, d, storeErr("append history", err)
	}
	if d != nil && len(d.Attempts) > 0 {
		if err := m.store.AppendAttempts(ctx, d.Attempts...); err != nil {
			return alert, d, storeErr("append attempts", err)
		}
	}
	return alert, d, nil
}

// ProcessWebhook processes every alert of a webhook message in order.
// Elements failing validation are counted as rejected and logged. Processing
// stops at the first store error, which is returned along with the results
// so far.
func (m *Manager) ProcessWebhook(ctx context.Context, msg *types.WebhookMessage) (*WebhookResult, error) {
	ctx, span := tracer.Start(ctx, "manager.Manager.ProcessWebhook",
		trace.WithAttributes(
			attribute.String("alerting.webhook.receiver", msg.Receiver),
			attribute.Int("alerting.webhook.alerts", len(msg.Alerts)),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	res := &WebhookResult{}
	for _, e := range msg.Events(m.clock.Now()) {
		r, err := m.ProcessAlert(ctx, e)
		if err != nil {
			var verr *types.ValidationError
			if errors.As(err, &verr) {
				m.logger.Warn("rejected invalid alert", "receiver", msg.Receiver, "alertname", e.Name, "err", err)
				res.Rejected++
				res.Errors = append(res.Errors, err)
				continue
			}
			span.SetStatus(codes.Error, "processing failed")
			span.RecordError(err)
			return res, err
		}
		res.Results = append(res.Results, r)
		switch r.Action {
		case ActionProcessed:
			res.Processed++
		case ActionSkipped:
			res.Skipped++
		case ActionIgnored:
			res.Ignored++
		}
	}
	return res, nil
}

// Silence suppresses notifications for fp until d has elapsed. Silencing a
// silenced alert replaces its expiry.
func (m *Manager) Silence(ctx context.Context, fp model.Fingerprint, d time.Duration) (*types.ActiveAlert, error) {
	ctx, span := tracer.Start(ctx, "manager.Manager.Silence",
		trace.WithAttributes(
			attribute.String("alerting.alert.fingerprint", fp.String()),
			attribute.String("alerting.silence.duration", d.String()),
		),
	)
	defer span.End()

	a, err := m.apply(ctx, fp, func(now time.Time) state.Input { return state.SilenceInput(fp, d, now) })
	if err != nil {
		span.SetStatus(codes.Error, "silence failed")
		span.RecordError(err)
	}
	return a, err
}

// Resolve resolves fp by hand and announces the resolution. Resolving a
// resolved alert has no effect.
func (m *Manager) Resolve(ctx context.Context, fp model.Fingerprint) (*types.ActiveAlert, error) {
	ctx, span := tracer.Start(ctx, "manager.Manager.Resolve",
		trace.WithAttributes(attribute.String("alerting.alert.fingerprint", fp.String())),
	)
	defer span.End()

	a, err := m.apply(ctx, fp, func(now time.Time) state.Input { return state.ResolveInput(fp, now) })
	if err != nil {
		span.SetStatus(codes.Error, "resolve failed")
		span.RecordError(err)
	}
	return a, err
}

func (m *Manager) apply(ctx context.Context, fp model.Fingerprint, input func(time.Time) state.Input) (*types.ActiveAlert, error) {
	unlock := m.locks.lock(fp)
	defer unlock()

	now := m.clock.Now()
	in := input(now)
	logger := m.logger.With("fingerprint", fp, "op", in.Kind)

	var tr *state.Transition
	alert, err := m.store.Update(ctx, fp, func(cur *types.ActiveAlert) (*types.ActiveAlert, error) {
		t, err := m.sm.Apply(cur, in)
		if err != nil {
			return nil, err
		}
		tr = t
		if t.Ignored {
			return nil, nil
		}
		return t.Alert, nil
	})
	if err != nil {
		return nil, storeErr(in.Kind.String(), err)
	}
	if tr.Ignored {
		logger.Debug("operation had no effect", "status", alert.Status)
		return normalize(alert, now), nil
	}

	logger.Info("alert updated by hand", "from", tr.From, "to", tr.To)
	a, _, err := m.commit(ctx, logger, tr, alert, nil, now)
	if err != nil {
		return nil, err
	}
	return normalize(a, now), nil
}

// Filter selects alerts in ListActive.
type Filter func(*types.ActiveAlert) bool

// WithSeverity selects alerts of the given severity.
func WithSeverity(sev types.Severity) Filter {
	return func(a *types.ActiveAlert) bool { return a.Severity == sev }
}

// WithService selects alerts of the given service.
func WithService(service string) Filter {
	return func(a *types.ActiveAlert) bool { return a.Service() == service }
}

// WithStatus selects alerts whose effective status is one of statuses.
func WithStatus(statuses ...types.AlertStatus) Filter {
	return func(a *types.ActiveAlert) bool { return slices.Contains(statuses, a.Status) }
}

// ListActive returns the stored alerts matching all filters, ordered by
// fingerprint. Resolved alerts are listed until they are garbage collected.
func (m *Manager) ListActive(ctx context.Context, filters ...Filter) ([]*types.ActiveAlert, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, storeErr("list", err)
	}
	now := m.clock.Now()
	res := make([]*types.ActiveAlert, 0, len(all))
Outer:
	for _, a := range all {
		a = a.Normalize(now)
		for _, f := range filters {
			if !f(a) {
				continue Outer
			}
		}
		res = append(res, a)
	}
	slices.SortFunc(res, func(x, y *types.ActiveAlert) int {
		return strings.Compare(x.Fingerprint.String(), y.Fingerprint.String())
	})
	return res, nil
}

// Get returns the alert with the given fingerprint.
func (m *Manager) Get(ctx context.Context, fp model.Fingerprint) (*types.ActiveAlert, error) {
	a, err := m.store.Get(ctx, fp)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &types.NotFoundError{Fingerprint: fp}
	}
	if err != nil {
		return nil, storeErr("get", err)
	}
	return a.Normalize(m.clock.Now()), nil
}

// GetStats counts alerts seen, history records written and notification
// attempts made within the last window.
func (m *Manager) GetStats(ctx context.Context, window time.Duration) (*types.AggregateStats, error) {
	if window <= 0 {
		return nil, &types.ValidationError{Field: "window", Reason: fmt.Sprintf("window must be positive, got %s", window)}
	}
	now := m.clock.Now()
	from := now.Add(-window)
	stats := types.NewAggregateStats(from, now)

	alerts, err := m.store.List(ctx)
	if err != nil {
		return nil, storeErr("list", err)
	}
	for _, a := range alerts {
		if a.LastSeenAt.Before(from) {
			continue
		}
		stats.Alerts++
		stats.BySeverity[a.Severity]++
		stats.ByStatus[a.EffectiveStatus(now)]++
	}

	recs, err := m.store.HistorySince(ctx, from)
	if err != nil {
		return nil, storeErr("read history", err)
	}
	stats.Events = len(recs)

	attempts, err := m.store.AttemptsSince(ctx, from)
	if err != nil {
		return nil, storeErr("read attempts", err)
	}
	for _, at := range attempts {
		stats.Notifications[at.Outcome]++
	}
	return stats, nil
}

// History returns the history of fp in the order it was written.
func (m *Manager) History(ctx context.Context, fp model.Fingerprint) ([]*types.HistoryRecord, error) {
	recs, err := m.store.History(ctx, fp)
	if err != nil {
		return nil, storeErr("read history", err)
	}
	return recs, nil
}

// Attempts returns the notification attempts made for fp.
func (m *Manager) Attempts(ctx context.Context, fp model.Fingerprint) ([]*types.NotificationAttempt, error) {
	attempts, err := m.store.Attempts(ctx, fp)
	if err != nil {
		return nil, storeErr("read attempts", err)
	}
	return attempts, nil
}

// expired reports whether a can be garbage collected at now.
func (m *Manager) expired(a *types.ActiveAlert, now time.Time) bool {
	horizon := now.Add(-m.resolvedRetention)
	switch a.Status {
	case types.StatusResolved:
		return a.ResolvedAt != nil && a.ResolvedAt.Before(horizon)
	case types.StatusSilenced:
		// An elapsed silence with no later event reads as FIRING, but
		// nothing is feeding it any more.
		return a.SilenceUntil != nil && a.SilenceUntil.Before(horizon) && a.LastSeenAt.Before(horizon)
	}
	return false
}

// GC removes resolved alerts and elapsed silences older than the resolved
// retention, and history and attempts older than the history retention. It
// returns the number of alerts removed.
func (m *Manager) GC(ctx context.Context) (int, error) {
	start := m.clock.Now()
	defer func() { m.metrics.gcDuration.Observe(m.clock.Since(start).Seconds()) }()

	alerts, err := m.store.List(ctx)
	if err != nil {
		return 0, storeErr("list", err)
	}
	var removed int
	for _, a := range alerts {
		if !m.expired(a, start) {
			continue
		}
		unlock := m.locks.lock(a.Fingerprint)
		ok, err := m.store.DeleteIf(ctx, a.Fingerprint, func(cur *types.ActiveAlert) bool {
			return m.expired(cur, start)
		})
		unlock()
		if err != nil {
			return removed, storeErr("delete", err)
		}
		if ok {
			removed++
		}
	}
	m.metrics.gcAlertsRemoved.Add(float64(removed))

	hist, attempts, err := m.store.Purge(ctx, start.Add(-m.historyRetention))
	if err != nil {
		return removed, storeErr("purge", err)
	}
	m.metrics.gcRecordsRemoved.Add(float64(hist + attempts))
	m.logger.Debug("gc done", "alerts", removed, "history", hist, "attempts", attempts)
	return removed, nil
}

// Maintenance runs GC every interval until stopc is closed.
func (m *Manager) Maintenance(interval time.Duration, stopc <-chan struct{}) {
	if interval <= 0 || stopc == nil {
		m.logger.Error("interval or stop signal are missing - not running maintenance")
		return
	}
	t := m.clock.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-stopc:
			return
		case <-t.C:
			m.metrics.maintenanceTotal.Inc()
			if _, err := m.GC(context.Background()); err != nil {
				m.metrics.maintenanceErrorsTotal.Inc()
				m.logger.Error("running maintenance failed", "err", err)
			}
		}
	}
}

// normalize folds an elapsed silence into FIRING. It accepts nil.
func normalize(a *types.ActiveAlert, now time.Time) *types.ActiveAlert {
	if a == nil {
		return nil
	}
	return a.Normalize(now)
}
