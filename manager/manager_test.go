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

package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/require"

	"github.com/alertcore/alertcore/dedup"
	"github.com/alertcore/alertcore/notify"
	"github.com/alertcore/alertcore/notify/notifytest"
	"github.com/alertcore/alertcore/store"
	"github.com/alertcore/alertcore/store/mem"
	"github.com/alertcore/alertcore/types"
)

type fixture struct {
	m     *Manager
	store store.Store
	clock *quartz.Mock
	reg   *prometheus.Registry
	push  *notifytest.Channel
	sms   *notifytest.Channel
	email *notifytest.Channel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: mem.New(),
		clock: quartz.NewMock(t),
		reg:   prometheus.NewRegistry(),
		push:  notifytest.New("dashboard", notify.KindPushSocket),
		sms:   notifytest.New("pager", notify.KindSMS),
		email: notifytest.New("oncall", notify.KindEmail),
	}
	return f.build(t)
}

func (f *fixture) build(t *testing.T) *fixture {
	t.Helper()
	registry := notify.NewRegistry()
	_, err := registry.Replace([]notify.Registration{{Channel: f.push}, {Channel: f.sms}, {Channel: f.email}}, nil)
	require.NoError(t, err)

	router, err := notify.NewRouter(notify.RouterOptions{
		Registry: registry,
		Retry:    notify.NewRetryPolicy(3, 10*time.Millisecond, 100*time.Millisecond, time.Second).WithSleep(notifytest.NoSleep),
		Window:   5 * time.Minute,
		Clock:    f.clock,
		Metrics:  f.reg,
	})
	require.NoError(t, err)

	f.m, err = New(Options{
		Store:             f.store,
		Router:            router,
		Fingerprinter:     types.NewFingerprinter("pod"),
		Deduplicator:      dedup.New(5 * time.Minute),
		ResolvedRetention: 24 * time.Hour,
		HistoryRetention:  7 * 24 * time.Hour,
		Clock:             f.clock,
		Metrics:           f.reg,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) event(name string, sev types.Severity, status types.EventStatus, labels model.LabelSet) *types.AlertEvent {
	ls := model.LabelSet{"alertname": model.LabelValue(name), "severity": model.LabelValue(sev)}
	for k, v := range labels {
		ls[k] = v
	}
	return &types.AlertEvent{
		Name:        name,
		Labels:      ls,
		Severity:    sev,
		Status:      status,
		Annotations: map[string]string{"summary": "error rate above 5%"},
		ReceivedAt:  f.clock.Now(),
	}
}

func (f *fixture) history(t *testing.T, fp model.Fingerprint) []*types.HistoryRecord {
	t.Helper()
	recs, err := f.m.History(context.Background(), fp)
	require.NoError(t, err)
	return recs
}

func TestAlertLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	t0 := f.clock.Now()
	labels := model.LabelSet{"service": "api", "pod": "api-7d9f"}

	// A new firing alert notifies every channel.
	res, err := f.m.ProcessAlert(ctx, f.event("HighErrorRate", types.SeverityCritical, types.EventFiring, labels))
	require.NoError(t, err)
	fp := res.Fingerprint
	require.Equal(t, ActionProcessed, res.Action)
	require.Equal(t, types.AlertStatus(""), res.From)
	require.Equal(t, types.StatusFiring, res.To)
	require.True(t, res.Notified())
	require.Equal(t, []string{"dashboard", "oncall", "pager"}, res.Dispatch.Delivered())
	for _, ch := range []*notifytest.Channel{f.push, f.sms, f.email} {
		require.Equal(t, 1, ch.Calls(), ch.ID())
	}
	require.Len(t, f.history(t, fp), 1)

	a, err := f.m.Get(ctx, fp)
	require.NoError(t, err)
	require.Equal(t, types.StatusFiring, a.Status)
	require.Equal(t, 1, a.NotificationCount)
	require.Equal(t, []string{"dashboard", "oncall", "pager"}, a.LastNotifiedChannels)
	require.Equal(t, types.StatusFiring, a.LastNotifiedStatus)
	require.NotEmpty(t, a.IncidentID)

	// The same event two minutes later is a duplicate. Only the last seen
	// time moves, even though a volatile label changed.
	f.clock.Advance(2 * time.Minute)
	res, err = f.m.ProcessAlert(ctx, f.event("HighErrorRate", types.SeverityCritical, types.EventFiring, model.LabelSet{"service": "api", "pod": "api-5c2a"}))
	require.NoError(t, err)
	require.Equal(t, fp, res.Fingerprint)
	require.Equal(t, ActionSkipped, res.Action)
	require.Nil(t, res.Dispatch)
	require.Equal(t, t0.Add(2*time.Minute), res.Alert.LastSeenAt)
	require.Equal(t, 1, f.email.Calls())
	require.Len(t, f.history(t, fp), 1)

	// Silenced for an hour from T0+3m.
	f.clock.Advance(time.Minute)
	a, err = f.m.Silence(ctx, fp, time.Hour)
	require.NoError(t, err)
	require.Equal(t, types.StatusSilenced, a.Status)
	require.Equal(t, t0.Add(63*time.Minute), *a.SilenceUntil)

	// Firing during the silence is recorded but not announced.
	f.clock.Advance(7 * time.Minute)
	res, err = f.m.ProcessAlert(ctx, f.event("HighErrorRate", types.SeverityCritical, types.EventFiring, labels))
	require.NoError(t, err)
	require.Equal(t, ActionProcessed, res.Action)
	require.Equal(t, types.StatusSilenced, res.To)
	require.Nil(t, res.Dispatch)
	require.False(t, res.Notified())
	require.Equal(t, 1, f.email.Calls())

	// Resolved after the silence elapsed: announced on every channel.
	f.clock.Advance(60 * time.Minute)
	res, err = f.m.ProcessAlert(ctx, f.event("HighErrorRate", types.SeverityCritical, types.EventResolved, labels))
	require.NoError(t, err)
	require.Equal(t, ActionProcessed, res.Action)
	require.Equal(t, types.StatusResolved, res.To)
	require.True(t, res.Notified())
	for _, ch := range []*notifytest.Channel{f.push, f.sms, f.email} {
		msgs := ch.Messages()
		require.Len(t, msgs, 2, ch.ID())
		require.Equal(t, types.StatusResolved, msgs[1].Status)
	}

	recs := f.history(t, fp)
	require.Len(t, recs, 4)
	want := []struct {
		trigger  types.Trigger
		status   types.AlertStatus
		notified bool
	}{
		{types.TriggerEvent, types.StatusFiring, true},
		{types.TriggerSilence, types.StatusSilenced, false},
		{types.TriggerEvent, types.StatusSilenced, false},
		{types.TriggerEvent, types.StatusResolved, true},
	}
	for i, w := range want {
		require.Equal(t, w.trigger, recs[i].Trigger, "record %d", i)
		require.Equal(t, w.status, recs[i].Status, "record %d", i)
		require.Equal(t, w.notified, recs[i].Notified, "record %d", i)
		require.Equal(t, a.IncidentID, recs[i].IncidentID, "record %d", i)
	}
	require.Nil(t, recs[1].Event)
	require.Equal(t, types.StatusFiring, recs[1].PrevStatus)
}

func TestInfoReachesPushSocketOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.m.ProcessAlert(ctx, f.event("DiskAlmostFull", types.SeverityInfo, types.EventFiring, model.LabelSet{"instance": "db-1"}))
	require.NoError(t, err)
	require.Equal(t, []string{"dashboard"}, res.Dispatch.Delivered())

	attempts, err := f.m.Attempts(ctx, res.Fingerprint)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, "dashboard", attempts[0].ChannelID)
	require.Zero(t, f.email.Calls())
	require.Zero(t, f.sms.Calls())
}

func TestResolveWithinDedupWindowIsNotSuppressed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	labels := model.LabelSet{"service": "checkout"}

	first, err := f.m.ProcessAlert(ctx, f.event("LatencyHigh", types.SeverityWarning, types.EventFiring, labels))
	require.NoError(t, err)
	f.clock.Advance(30 * time.Second)
	res, err := f.m.ProcessAlert(ctx, f.event("LatencyHigh", types.SeverityWarning, types.EventResolved, labels))
	require.NoError(t, err)
	require.Equal(t, first.Fingerprint, res.Fingerprint)
	require.Equal(t, ActionProcessed, res.Action)
	require.Equal(t, types.StatusResolved, res.To)
	require.True(t, res.Notified())

	// No alert is left firing and the incident has exactly two records.
	firing, err := f.m.ListActive(ctx, WithStatus(types.StatusFiring, types.StatusSilenced))
	require.NoError(t, err)
	require.Empty(t, firing)
	recs := f.history(t, res.Fingerprint)
	require.Len(t, recs, 2)
	require.Equal(t, recs[0].IncidentID, recs[1].IncidentID)

	// A repeated resolved event changes nothing.
	f.clock.Advance(time.Minute)
	res, err = f.m.ProcessAlert(ctx, f.event("LatencyHigh", types.SeverityWarning, types.EventResolved, labels))
	require.NoError(t, err)
	require.Equal(t, ActionSkipped, res.Action)
	require.Len(t, f.history(t, res.Fingerprint), 2)
}

func TestRefireStartsNewIncident(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	labels := model.LabelSet{"service": "api"}

	first, err := f.m.ProcessAlert(ctx, f.event("HighErrorRate", types.SeverityWarning, types.EventFiring, labels))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.m.ProcessAlert(ctx, f.event("HighErrorRate", types.SeverityWarning, types.EventResolved, labels))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	res, err := f.m.ProcessAlert(ctx, f.event("HighErrorRate", types.SeverityWarning, types.EventFiring, labels))
	require.NoError(t, err)

	require.Equal(t, types.StatusResolved, res.From)
	require.Equal(t, types.StatusFiring, res.To)
	require.True(t, res.Notified())
	require.NotEqual(t, first.Alert.IncidentID, res.Alert.IncidentID)
	require.Equal(t, 1, res.Alert.NotificationCount)
	require.Equal(t, 3, f.email.Calls())
}

func TestElapsedSilenceNotifiesAgain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	labels := model.LabelSet{"service": "api"}

	res, err := f.m.ProcessAlert(ctx, f.event("HighErrorRate", types.SeverityCritical, types.EventFiring, labels))
	require.NoError(t, err)
	_, err = f.m.Silence(ctx, res.Fingerprint, 10*time.Minute)
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	a, err := f.m.Get(ctx, res.Fingerprint)
	require.NoError(t, err)
	require.Equal(t, types.StatusFiring, a.Status, "elapsed silence reads as firing")

	res, err = f.m.ProcessAlert(ctx, f.event("HighErrorRate", types.SeverityCritical, types.EventFiring, labels))
	require.NoError(t, err)
	require.Equal(t, types.StatusSilenced, res.From)
	require.Equal(t, types.StatusFiring, res.To)
	require.True(t, res.Notified())
	require.Nil(t, res.Alert.SilenceUntil)
	require.Equal(t, 2, f.push.Calls())
}

func TestShortSilenceNotifiesAgain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	labels := model.LabelSet{"service": "api"}

	res, err := f.m.ProcessAlert(ctx, f.event("HighErrorRate", types.SeverityCritical, types.EventFiring, labels))
	require.NoError(t, err)
	require.True(t, res.Notified())
	_, err = f.m.Silence(ctx, res.Fingerprint, time.Minute)
	require.NoError(t, err)

	// The silence elapses well inside the router's idempotence window.
	f.clock.Advance(2 * time.Minute)
	res, err = f.m.ProcessAlert(ctx, f.event("HighErrorRate", types.SeverityCritical, types.EventFiring, labels))
	require.NoError(t, err)
	require.Equal(t, types.StatusSilenced, res.From)
	require.Equal(t, types.StatusFiring, res.To)
	require.NotNil(t, res.Dispatch)
	require.False(t, res.Dispatch.Suppressed)
	require.True(t, res.Notified())
	require.Equal(t, 2, f.push.Calls())
	require.Equal(t, 2, res.Alert.NotificationCount)
	require.Equal(t, 1, res.Alert.Rearms)
	require.NotNil(t, res.Alert.LastNotifiedAt)
	require.Equal(t, types.StatusFiring, res.Alert.LastNotifiedStatus)

	recs := f.history(t, res.Fingerprint)
	require.True(t, recs[len(recs)-1].Notified)
}

func TestSilenceReplacesExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := f.clock.Now()

	res, err := f.m.ProcessAlert(ctx, f.event("HighErrorRate", types.SeverityInfo, types.EventFiring, nil))
	require.NoError(t, err)
	_, err = f.m.Silence(ctx, res.Fingerprint, time.Hour)
	require.NoError(t, err)
	a, err := f.m.Silence(ctx, res.Fingerprint, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, now.Add(10*time.Minute), *a.SilenceUntil)

	_, err = f.m.Silence(ctx, res.Fingerprint, 0)
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestManualOperationsOnUnknownFingerprint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var nerr *types.NotFoundError
	_, err := f.m.Silence(ctx, 42, time.Hour)
	require.ErrorAs(t, err, &nerr)
	require.Equal(t, model.Fingerprint(42), nerr.Fingerprint)

	_, err = f.m.Resolve(ctx, 42)
	require.ErrorAs(t, err, &nerr)

	_, err = f.m.Get(ctx, 42)
	require.ErrorAs(t, err, &nerr)

	alerts, err := f.m.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, alerts)
	require.Empty(t, f.history(t, 42))
}

func TestManualResolve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.m.ProcessAlert(ctx, f.event("QueueBacklog", types.SeverityWarning, types.EventFiring, nil))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	a, err := f.m.Resolve(ctx, res.Fingerprint)
	require.NoError(t, err)
	require.Equal(t, types.StatusResolved, a.Status)
	require.Equal(t, f.clock.Now(), *a.ResolvedAt)
	require.Equal(t, 2, f.email.Calls())
	require.Zero(t, f.sms.Calls())

	// Resolving again is a no-op.
	a, err = f.m.Resolve(ctx, res.Fingerprint)
	require.NoError(t, err)
	require.Equal(t, types.StatusResolved, a.Status)
	require.Equal(t, 2, f.email.Calls())

	recs := f.history(t, res.Fingerprint)
	require.Len(t, recs, 2)
	require.Equal(t, types.TriggerResolve, recs[1].Trigger)
	require.True(t, recs[1].Notified)

	_, err = f.m.Silence(ctx, res.Fingerprint, time.Hour)
	require.ErrorIs(t, err, types.ErrInvalidTransition)
}

func TestConcurrentIdenticalEventsNotifyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const n = 20
	var (
		wg      sync.WaitGroup
		results = make([]*ProcessResult, n)
		errs    = make([]error, n)
	)
	for i := range n {
		e := f.event("HighErrorRate", types.SeverityCritical, types.EventFiring, model.LabelSet{"service": "api"})
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.m.ProcessAlert(ctx, e)
		}()
	}
	wg.Wait()

	var processed, skipped int
	for i := range n {
		require.NoError(t, errs[i])
		switch results[i].Action {
		case ActionProcessed:
			processed++
		case ActionSkipped:
			skipped++
		}
	}
	require.Equal(t, 1, processed)
	require.Equal(t, n-1, skipped)
	require.Equal(t, 1, f.sms.Calls())

	alerts, err := f.m.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Len(t, f.history(t, alerts[0].Fingerprint), 1)
	require.Zero(t, f.m.locks.len())
}

func TestChannelFailureIsContained(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sms.FailFirst(-1)

	res, err := f.m.ProcessAlert(ctx, f.event("HighErrorRate", types.SeverityCritical, types.EventFiring, nil))
	require.NoError(t, err)
	require.Equal(t, []string{"dashboard", "oncall"}, res.Dispatch.Delivered())
	require.Equal(t, 3, f.sms.Calls())
	require.Equal(t, []string{"dashboard", "oncall"}, res.Alert.LastNotifiedChannels)

	recs := f.history(t, res.Fingerprint)
	require.Len(t, recs, 1)
	require.True(t, recs[0].Notified)
	outcomes := map[string]types.Outcome{}
	for _, o := range recs[0].Outcomes {
		outcomes[o.ChannelID] = o.Outcome
	}
	require.Equal(t, map[string]types.Outcome{
		"dashboard": types.OutcomeSuccess,
		"oncall":    types.OutcomeSuccess,
		"pager":     types.OutcomeFailed,
	}, outcomes)

	attempts, err := f.m.Attempts(ctx, res.Fingerprint)
	require.NoError(t, err)
	require.Len(t, attempts, 5)
}

func TestInvalidEventIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e := f.event("HighErrorRate", types.SeverityCritical, types.EventFiring, nil)
	e.Severity = ""
	_, err := f.m.ProcessAlert(ctx, e)
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "severity", verr.Field)

	alerts, err := f.m.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, alerts)
	require.Equal(t, 1.0, testutil.ToFloat64(f.m.metrics.invalidTotal))
}

type brokenStore struct {
	store.Store
	err error
}

func (s *brokenStore) Update(context.Context, model.Fingerprint, store.UpdateFunc) (*types.ActiveAlert, error) {
	return nil, s.err
}

func (s *brokenStore) List(context.Context) ([]*types.ActiveAlert, error) {
	return nil, s.err
}

func TestStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	errDown := errors.New("connection refused")
	f := &fixture{
		store: &brokenStore{Store: mem.New(), err: errDown},
		clock: quartz.NewMock(t),
		reg:   prometheus.NewRegistry(),
		push:  notifytest.New("dashboard", notify.KindPushSocket),
		sms:   notifytest.New("pager", notify.KindSMS),
		email: notifytest.New("oncall", notify.KindEmail),
	}
	f.build(t)

	var serr *types.StoreUnavailableError
	_, err := f.m.ProcessAlert(ctx, f.event("HighErrorRate", types.SeverityCritical, types.EventFiring, nil))
	require.ErrorAs(t, err, &serr)
	require.ErrorIs(t, err, errDown)
	require.Zero(t, f.push.Calls())

	_, err = f.m.Silence(ctx, 1, time.Hour)
	require.ErrorAs(t, err, &serr)

	_, err = f.m.ListActive(ctx)
	require.ErrorAs(t, err, &serr)

	_, err = f.m.ProcessWebhook(ctx, &types.WebhookMessage{
		Receiver: "alertcore",
		Status:   "firing",
		Alerts: []types.WebhookAlert{
			{Labels: map[string]string{"alertname": "HighErrorRate", "severity": "critical"}},
		},
	})
	require.ErrorAs(t, err, &serr)
}

func TestProcessWebhook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.m.ProcessWebhook(ctx, &types.WebhookMessage{
		Receiver: "alertcore",
		Status:   "firing",
		Alerts: []types.WebhookAlert{
			{
				Status:      "firing",
				Labels:      map[string]string{"alertname": "HighErrorRate", "severity": "critical", "service": "api"},
				Annotations: map[string]string{"summary": "5xx above 5%"},
			},
			{
				Status: "firing",
				Labels: map[string]string{"alertname": "NoSeverity"},
			},
			{
				Status: "resolved",
				Labels: map[string]string{"alertname": "NeverFired", "severity": "info"},
			},
			{
				Status: "firing",
				Labels: map[string]string{"alertname": "HighErrorRate", "severity": "critical", "service": "api"},
			},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, 1, res.Ignored)
	require.Equal(t, 1, res.Rejected)
	require.Len(t, res.Errors, 1)
	require.Len(t, res.Results, 3)

	alerts, err := f.m.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "HighErrorRate", alerts[0].Name)
}

func TestListActiveFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, e := range []*types.AlertEvent{
		f.event("HighErrorRate", types.SeverityCritical, types.EventFiring, model.LabelSet{"service": "api"}),
		f.event("LatencyHigh", types.SeverityWarning, types.EventFiring, model.LabelSet{"service": "api"}),
		f.event("DiskAlmostFull", types.SeverityWarning, types.EventFiring, model.LabelSet{"instance": "db-1"}),
	} {
		_, err := f.m.ProcessAlert(ctx, e)
		require.NoError(t, err)
	}

	names := func(filters ...Filter) []string {
		alerts, err := f.m.ListActive(ctx, filters...)
		require.NoError(t, err)
		var res []string
		for _, a := range alerts {
			res = append(res, a.Name)
		}
		return res
	}
	require.Len(t, names(), 3)
	require.ElementsMatch(t, []string{"LatencyHigh", "DiskAlmostFull"}, names(WithSeverity(types.SeverityWarning)))
	require.ElementsMatch(t, []string{"HighErrorRate", "LatencyHigh"}, names(WithService("api")))
	require.Equal(t, []string{"LatencyHigh"}, names(WithService("api"), WithSeverity(types.SeverityWarning)))
	require.Equal(t, []string{"DiskAlmostFull"}, names(WithService("db-1")))
	require.Empty(t, names(WithStatus(types.StatusResolved)))
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sms.FailFirst(-1)

	_, err := f.m.ProcessAlert(ctx, f.event("Old", types.SeverityInfo, types.EventFiring, nil))
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.m.ProcessAlert(ctx, f.event("HighErrorRate", types.SeverityCritical, types.EventFiring, nil))
	require.NoError(t, err)
	res, err := f.m.ProcessAlert(ctx, f.event("LatencyHigh", types.SeverityWarning, types.EventFiring, nil))
	require.NoError(t, err)
	_, err = f.m.Silence(ctx, res.Fingerprint, time.Hour)
	require.NoError(t, err)

	stats, err := f.m.GetStats(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, f.clock.Now(), stats.To)
	require.Equal(t, f.clock.Now().Add(-time.Hour), stats.From)
	require.Equal(t, 2, stats.Alerts)
	require.Equal(t, 1, stats.BySeverity[types.SeverityCritical])
	require.Equal(t, 1, stats.BySeverity[types.SeverityWarning])
	require.Zero(t, stats.BySeverity[types.SeverityInfo])
	require.Equal(t, 1, stats.ByStatus[types.StatusFiring])
	require.Equal(t, 1, stats.ByStatus[types.StatusSilenced])
	require.Equal(t, 3, stats.Events)
	// critical: dashboard, oncall ok and three failed pager tries; warning:
	// dashboard and oncall.
	require.Equal(t, 4, stats.Notifications[types.OutcomeSuccess])
	require.Equal(t, 3, stats.Notifications[types.OutcomeFailed])

	stats, err = f.m.GetStats(ctx, 3*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Alerts)

	_, err = f.m.GetStats(ctx, 0)
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestGC(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	resolved, err := f.m.ProcessAlert(ctx, f.event("Resolved", types.SeverityInfo, types.EventFiring, nil))
	require.NoError(t, err)
	_, err = f.m.Resolve(ctx, resolved.Fingerprint)
	require.NoError(t, err)

	silenced, err := f.m.ProcessAlert(ctx, f.event("Silenced", types.SeverityInfo, types.EventFiring, nil))
	require.NoError(t, err)
	_, err = f.m.Silence(ctx, silenced.Fingerprint, time.Hour)
	require.NoError(t, err)

	firing, err := f.m.ProcessAlert(ctx, f.event("Firing", types.SeverityInfo, types.EventFiring, nil))
	require.NoError(t, err)

	// Nothing is old enough yet.
	n, err := f.m.GC(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	f.clock.Advance(26 * time.Hour)
	n, err = f.m.GC(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	alerts, err := f.m.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, firing.Fingerprint, alerts[0].Fingerprint)
	require.Len(t, f.history(t, resolved.Fingerprint), 2, "history outlives the alert")

	f.clock.Advance(7 * 24 * time.Hour)
	_, err = f.m.GC(ctx)
	require.NoError(t, err)
	require.Empty(t, f.history(t, resolved.Fingerprint))
	require.Empty(t, f.history(t, firing.Fingerprint))
	require.Equal(t, 2.0, testutil.ToFloat64(f.m.metrics.gcAlertsRemoved))
}

func TestMaintenance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.m.ProcessAlert(ctx, f.event("Resolved", types.SeverityInfo, types.EventFiring, nil))
	require.NoError(t, err)
	_, err = f.m.Resolve(ctx, res.Fingerprint)
	require.NoError(t, err)

	stopc := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.m.Maintenance(time.Hour, stopc)
	}()

	require.Eventually(t, func() bool {
		f.clock.Advance(time.Hour)
		_, err := f.store.Get(ctx, res.Fingerprint)
		return errors.Is(err, store.ErrNotFound)
	}, 5*time.Second, 10*time.Millisecond)

	close(stopc)
	<-done
	require.GreaterOrEqual(t, testutil.ToFloat64(f.m.metrics.maintenanceTotal), 1.0)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	require.EqualError(t, err, "missing alert store")

	_, err = New(Options{Store: mem.New()})
	require.EqualError(t, err, "missing notification router")
}
