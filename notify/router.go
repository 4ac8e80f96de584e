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

package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/model"
	"github.com/prometheus/common/promslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/alertcore/alertcore/template"
	"github.com/alertcore/alertcore/types"
)

var tracer = otel.Tracer("github.com/alertcore/alertcore/notify")

const defaultGuardSize = 4096

// ChannelResult is the delivery outcome for one channel.
type ChannelResult struct {
	ChannelID string
	Outcome   types.Outcome
	Attempts  int
	// Err is a *types.ChannelDispatchError for failed channels.
	Err error
}

// DispatchResult enumerates the outcome of a dispatch per channel.
type DispatchResult struct {
	Fingerprint model.Fingerprint
	Status      types.AlertStatus
	// Suppressed is set when the same fingerprint and status were already
	// delivered within the guard window. No channel was tried.
	Suppressed bool
	Channels   []ChannelResult
	Attempts   []*types.NotificationAttempt
	At         time.Time
}

// Delivered returns the sorted IDs of the channels that accepted the
// notification.
func (r *DispatchResult) Delivered() []string {
	var ids []string
	for _, c := range r.Channels {
		if c.Outcome == types.OutcomeSuccess {
			ids = append(ids, c.ChannelID)
		}
	}
	slices.Sort(ids)
	return ids
}

// Outcomes summarizes the result for the alert history.
func (r *DispatchResult) Outcomes() []types.ChannelOutcome {
	res := make([]types.ChannelOutcome, 0, len(r.Channels))
	for _, c := range r.Channels {
		o := types.ChannelOutcome{ChannelID: c.ChannelID, Outcome: c.Outcome, Attempts: c.Attempts}
		if c.Err != nil {
			o.Error = c.Err.Error()
		}
		res = append(res, o)
	}
	return res
}

type guardKey struct {
	fp       model.Fingerprint
	incident string
	rearms   int
	status   types.AlertStatus
}

func guardKeyOf(a *types.ActiveAlert) guardKey {
	return guardKey{fp: a.Fingerprint, incident: a.IncidentID, rearms: a.Rearms, status: a.Status}
}

// RouterOptions configures a Router.
type RouterOptions struct {
	Registry *Registry
	Retry    *RetryPolicy
	Template *template.Template
	// Window is the idempotence window: a fingerprint and status pair that
	// was delivered within it is not dispatched again.
	Window time.Duration
	// GuardSize bounds the number of recent deliveries remembered in
	// process.
	GuardSize int

	Clock   quartz.Clock
	Logger  *slog.Logger
	Metrics prometheus.Registerer
}

func (o *RouterOptions) validate() error {
	if o.Registry == nil {
		return errors.New("missing channel registry")
	}
	if o.Window < 0 {
		return fmt.Errorf("window must not be negative: %s", o.Window)
	}
	return nil
}

// Router selects the channels for an alert and delivers to all of them in
// parallel.
type Router struct {
	registry *Registry
	retry    *RetryPolicy
	tmpl     *template.Template
	window   time.Duration
	recent   *lru.Cache[guardKey, time.Time]
	clock    quartz.Clock
	logger   *slog.Logger
	metrics  *metrics
}

// NewRouter returns a Router for the given options.
func NewRouter(o RouterOptions) (*Router, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.Retry == nil {
		o.Retry = NewRetryPolicy(0, 0, 0, 0)
	}
	if o.Template == nil {
		t, err := template.New()
		if err != nil {
			return nil, err
		}
		o.Template = t
	}
	if o.GuardSize <= 0 {
		o.GuardSize = defaultGuardSize
	}
	if o.Clock == nil {
		o.Clock = quartz.NewReal()
	}
	if o.Retry.sleep == nil {
		o.Retry = o.Retry.WithSleep(ClockSleep(o.Clock))
	}
	if o.Logger == nil {
		o.Logger = promslog.NewNopLogger()
	}
	recent, err := lru.New[guardKey, time.Time](o.GuardSize)
	if err != nil {
		return nil, err
	}
	return &Router{
		registry: o.Registry,
		retry:    o.Retry,
		tmpl:     o.Template,
		window:   o.Window,
		recent:   recent,
		clock:    o.Clock,
		logger:   o.Logger,
		metrics:  newMetrics(o.Metrics),
	}, nil
}

// Suppressed reports whether a notification announcing the current status
// of a was already delivered within the idempotence window.
func (r *Router) Suppressed(a *types.ActiveAlert) bool {
	now := r.clock.Now()
	if a.LastNotifiedAt != nil && a.LastNotifiedStatus == a.Status &&
		len(a.LastNotifiedChannels) > 0 && now.Sub(*a.LastNotifiedAt) < r.window {
		return true
	}
	at, ok := r.recent.Get(guardKeyOf(a))
	return ok && now.Sub(at) < r.window
}

// Dispatch delivers a notification announcing the current status of a to
// every channel eligible for its severity. Channel failures are reported in
// the result. The only error is a *types.ConfigurationError when no channel
// is eligible.
func (r *Router) Dispatch(ctx context.Context, a *types.ActiveAlert, event *types.AlertEvent) (*DispatchResult, error) {
	ctx, span := tracer.Start(ctx, "notify.Router.Dispatch",
		trace.WithAttributes(
			attribute.String("alerting.alert.name", a.Name),
			attribute.String("alerting.alert.fingerprint", a.Fingerprint.String()),
			attribute.String("alerting.alert.status", string(a.Status)),
			attribute.String("alerting.alert.severity", string(a.Severity)),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	res := &DispatchResult{Fingerprint: a.Fingerprint, Status: a.Status, At: r.clock.Now()}
	logger := r.logger.With("fingerprint", a.Fingerprint, "alertname", a.Name, "status", a.Status)

	if r.Suppressed(a) {
		logger.Debug("notification already delivered within window")
		span.AddEvent("notification suppressed")
		r.metrics.suppressedTotal.Inc()
		res.Suppressed = true
		return res, nil
	}

	targets, err := r.registry.Select(a.Severity)
	if err != nil {
		span.SetStatus(codes.Error, "no channel resolvable")
		span.RecordError(err)
		return nil, err
	}

	msg, err := NewMessage(r.tmpl, a, event)
	if err != nil {
		logger.Error("failed to render notification", "err", err)
		span.RecordError(err)
		// Channels still get the bare alert.
		msg = &Message{
			Fingerprint: a.Fingerprint, IncidentID: a.IncidentID, AlertName: a.Name,
			Status: a.Status, Severity: a.Severity, Service: a.Service(), Labels: a.Labels,
			Annotations: a.Annotations, FirstSeenAt: a.FirstSeenAt, ResolvedAt: a.ResolvedAt,
			Title: fmt.Sprintf("[%s] %s", a.Status, a.Name),
		}
		msg.Text = msg.Title
	}

	results := make([]ChannelResult, len(targets))
	attempts := make([][]*types.NotificationAttempt, len(targets))

	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			results[i], attempts[i] = r.deliver(ctx, logger, t, msg)
			return nil
		})
	}
	// Failures are carried in results, so Wait never returns an error.
	_ = g.Wait()

	for i := range targets {
		res.Attempts = append(res.Attempts, attempts[i]...)
	}
	res.Channels = results
	slices.SortFunc(res.Channels, func(x, y ChannelResult) int { return strings.Compare(x.ChannelID, y.ChannelID) })

	delivered := res.Delivered()
	if len(delivered) > 0 {
		r.recent.Add(guardKeyOf(a), res.At)
	}
	span.SetAttributes(
		attribute.Int("alerting.notify.channels", len(targets)),
		attribute.Int("alerting.notify.delivered", len(delivered)),
	)
	if len(delivered) < len(targets) {
		span.SetStatus(codes.Error, "some channels failed")
	}
	logger.Debug("dispatch complete", "channels", len(targets), "delivered", len(delivered))
	return res, nil
}

func (r *Router) deliver(ctx context.Context, logger *slog.Logger, t *Target, msg *Message) (ChannelResult, []*types.NotificationAttempt) {
	ch := t.Channel
	id := ch.ID()
	logger = logger.With("channel", id)
	res := ChannelResult{ChannelID: id}

	if !t.Allow() {
		logger.Warn("channel rate limited, notification skipped")
		r.metrics.rateLimitedTotal.WithLabelValues(id).Inc()
		res.Outcome = types.OutcomeSkipped
		res.Err = &types.ChannelDispatchError{ChannelID: id, Err: errors.New("rate limited")}
		return res, []*types.NotificationAttempt{{
			ID:          uuid.NewString(),
			Fingerprint: msg.Fingerprint,
			ChannelID:   id,
			Attempt:     1,
			AttemptedAt: r.clock.Now(),
			Outcome:     types.OutcomeSkipped,
			Error:       "rate limited",
		}}
	}

	var attempts []*types.NotificationAttempt
	r.metrics.numNotifications.WithLabelValues(id).Inc()
	n, err := r.retry.Do(ctx, func(actx context.Context, attempt int) (bool, error) {
		start := r.clock.Now()
		retry, err := ch.Notify(actx, msg)
		r.metrics.latency.WithLabelValues(id).Observe(r.clock.Since(start).Seconds())
		r.metrics.numRequests.WithLabelValues(id).Inc()

		rec := &types.NotificationAttempt{
			ID:          uuid.NewString(),
			Fingerprint: msg.Fingerprint,
			ChannelID:   id,
			Attempt:     attempt,
			AttemptedAt: start,
			Outcome:     types.OutcomeSuccess,
		}
		if err != nil {
			r.metrics.numFailedRequests.WithLabelValues(id).Inc()
			rec.Outcome = types.OutcomeFailed
			rec.Error = err.Error()
			if actx.Err() != nil {
				rec.Error = fmt.Sprintf("%s: %s", err, context.Cause(actx))
			}
			logger.Debug("notification attempt failed", "attempt", attempt, "retry", retry, "err", err)
		}
		attempts = append(attempts, rec)
		return retry, err
	})
	res.Attempts = n
	if err != nil {
		r.metrics.numFailedNotifications.WithLabelValues(id).Inc()
		logger.Warn("notification failed", "attempts", n, "err", err)
		res.Outcome = types.OutcomeFailed
		res.Err = &types.ChannelDispatchError{ChannelID: id, Attempts: n, Err: err}
		return res, attempts
	}
	res.Outcome = types.OutcomeSuccess
	return res, attempts
}

type metrics struct {
	numNotifications       *prometheus.CounterVec
	numFailedNotifications *prometheus.CounterVec
	numRequests            *prometheus.CounterVec
	numFailedRequests      *prometheus.CounterVec
	latency                *prometheus.HistogramVec
	rateLimitedTotal       *prometheus.CounterVec
	suppressedTotal        prometheus.Counter
}

func newMetrics(r prometheus.Registerer) *metrics {
	return &metrics{
		numNotifications: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "alertcore_notifications_total",
			Help: "The total number of attempted notifications.",
		}, []string{"channel"}),
		numFailedNotifications: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "alertcore_notifications_failed_total",
			Help: "The total number of notifications that failed after all retries.",
		}, []string{"channel"}),
		numRequests: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "alertcore_notification_requests_total",
			Help: "The total number of attempted notification requests.",
		}, []string{"channel"}),
		numFailedRequests: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "alertcore_notification_requests_failed_total",
			Help: "The total number of failed notification requests.",
		}, []string{"channel"}),
		latency: promauto.With(r).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alertcore_notification_latency_seconds",
			Help:    "The latency of notification requests.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
		rateLimitedTotal: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "alertcore_notifications_rate_limited_total",
			Help: "The total number of notifications skipped by a channel rate limit.",
		}, []string{"channel"}),
		suppressedTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "alertcore_notifications_suppressed_total",
			Help: "The total number of dispatches refused because the same status was already delivered.",
		}),
	}
}
