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

// Package api serves the HTTP API of the alert pipeline: the inbound
// webhook, the management operations on active alerts and the push-socket
// subscriptions.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alecthomas/units"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/model"
	"github.com/prometheus/common/promslog"
	"github.com/prometheus/common/route"
	"github.com/rs/cors"

	"github.com/alertcore/alertcore/manager"
	"github.com/alertcore/alertcore/notify"
	"github.com/alertcore/alertcore/types"
)

// DefaultMaxBodySize limits webhook payloads when no limit is configured.
const DefaultMaxBodySize = 4 * units.MiB

const defaultStatsWindow = 24 * time.Hour

var errNoChannel = errors.New("no such channel")

// Options configures an API.
type Options struct {
	Manager *manager.Manager
	// Registry is searched for push-socket channels on every subscription,
	// so channels added by a reload are picked up.
	Registry *notify.Registry
	// MaxBodySize limits request bodies. Zero means DefaultMaxBodySize.
	MaxBodySize units.Base2Bytes

	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

func (o *Options) validate() error {
	if o.Manager == nil {
		return errors.New("missing alert manager")
	}
	if o.Registry == nil {
		return errors.New("missing channel registry")
	}
	if o.MaxBodySize < 0 {
		return fmt.Errorf("max body size must not be negative: %d", o.MaxBodySize)
	}
	return nil
}

// API provides registration of handlers for API routes.
type API struct {
	manager     *manager.Manager
	registry    *notify.Registry
	maxBodySize int64
	logger      *slog.Logger

	// Handler serves every route below /api/v1 with CORS enabled.
	Handler http.Handler
}

// New returns a new API.
func New(o Options) (*API, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.MaxBodySize == 0 {
		o.MaxBodySize = DefaultMaxBodySize
	}
	if o.Logger == nil {
		o.Logger = promslog.NewNopLogger()
	}
	api := &API{
		manager:     o.Manager,
		registry:    o.Registry,
		maxBodySize: int64(o.MaxBodySize),
		logger:      o.Logger,
	}

	duration := promauto.With(o.Registerer).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alertcore_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: []float64{.05, 0.1, .25, .5, .75, 1, 2, 5, 20, 60},
	}, []string{"handler", "method"})
	r := route.New().WithInstrumentation(func(name string, h http.HandlerFunc) http.HandlerFunc {
		return promhttp.InstrumentHandlerDuration(duration.MustCurryWith(prometheus.Labels{"handler": name}), h).ServeHTTP
	})
	api.Register(r.WithPrefix("/api/v1"))
	api.Handler = cors.Default().Handler(r)
	return api, nil
}

// Register registers the API handlers under their correct routes in the
// given router.
func (api *API) Register(r *route.Router) {
	r.Post("/webhook", api.webhook)

	r.Get("/alerts", api.listAlerts)
	r.Get("/alerts/:fingerprint", api.getAlert)
	r.Post("/alerts/:fingerprint/silence", api.silence)
	r.Post("/alerts/:fingerprint/resolve", api.resolve)
	r.Get("/alerts/:fingerprint/history", api.history)
	r.Get("/alerts/:fingerprint/attempts", api.attempts)

	r.Get("/stats", api.stats)
	r.Get("/channels", api.channels)
	r.Get("/ws", api.subscribe)
}

type status string

const (
	statusSuccess status = "success"
	statusError   status = "error"
)

type errorType string

const (
	errorBadData     errorType = "bad_data"
	errorNotFound    errorType = "not_found"
	errorConflict    errorType = "conflict"
	errorTooLarge    errorType = "too_large"
	errorUnavailable errorType = "unavailable"
	errorInternal    errorType = "server_error"
)

type response struct {
	Status    status      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	ErrorType errorType   `json:"errorType,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// classify maps err to the API error type and HTTP status it is reported
// with.
func classify(err error) (errorType, int) {
	var (
		verr  *types.ValidationError
		nerr  *types.NotFoundError
		serr  *types.StoreUnavailableError
		mberr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		return errorBadData, http.StatusBadRequest
	case errors.As(err, &nerr):
		return errorNotFound, http.StatusNotFound
	case errors.Is(err, errNoChannel):
		return errorNotFound, http.StatusNotFound
	case errors.Is(err, types.ErrInvalidTransition):
		return errorConflict, http.StatusConflict
	case errors.As(err, &mberr):
		return errorTooLarge, http.StatusRequestEntityTooLarge
	case errors.As(err, &serr):
		return errorUnavailable, http.StatusServiceUnavailable
	}
	return errorInternal, http.StatusInternalServerError
}

func (api *API) respond(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	b, err := json.Marshal(&response{
		Status: statusSuccess,
		Data:   data,
	})
	if err != nil {
		api.logger.Error("Error marshalling JSON", "err", err)
		return
	}
	if _, err := w.Write(b); err != nil {
		api.logger.Error("failed to write data to connection", "err", err)
	}
}

func (api *API) respondError(w http.ResponseWriter, err error) {
	typ, code := classify(err)
	if code >= http.StatusInternalServerError {
		api.logger.Error("API error", "err", err)
	} else {
		api.logger.Debug("API error", "err", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	b, merr := json.Marshal(&response{
		Status:    statusError,
		ErrorType: typ,
		Error:     err.Error(),
	})
	if merr != nil {
		return
	}
	_, _ = w.Write(b)
}

func (api *API) receive(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, api.maxBodySize))
	if err := dec.Decode(v); err != nil {
		api.logger.Debug("Decoding request failed", "err", err)
		var mberr *http.MaxBytesError
		if errors.As(err, &mberr) {
			return err
		}
		return &types.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func fingerprintParam(r *http.Request) (model.Fingerprint, error) {
	s := route.Param(r.Context(), "fingerprint")
	fp, err := model.ParseFingerprint(s)
	if err != nil {
		return 0, &types.ValidationError{Field: "fingerprint", Reason: fmt.Sprintf("invalid fingerprint %q", s)}
	}
	return fp, nil
}

type webhookResponse struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Ignored   int      `json:"ignored"`
	Rejected  int      `json:"rejected"`
	Errors    []string `json:"errors,omitempty"`
}

// webhook acknowledges every well formed payload, including one whose alerts
// fail validation, so that the sender does not retry it. Only store
// failures are reported as errors.
func (api *API) webhook(w http.ResponseWriter, r *http.Request) {
	var msg types.WebhookMessage
	if err := api.receive(w, r, &msg); err != nil {
		api.respondError(w, err)
		return
	}

	res, err := api.manager.ProcessWebhook(r.Context(), &msg)
	if err != nil {
		api.respondError(w, err)
		return
	}
	resp := webhookResponse{
		Processed: res.Processed,
		Skipped:   res.Skipped,
		Ignored:   res.Ignored,
		Rejected:  res.Rejected,
	}
	for _, e := range res.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	api.respond(w, resp)
}

func (api *API) listAlerts(w http.ResponseWriter, r *http.Request) {
	var filters []manager.Filter

	if s := r.FormValue("severity"); s != "" {
		sev, err := types.ParseSeverity(s)
		if err != nil {
			api.respondError(w, &types.ValidationError{Field: "severity", Reason: err.Error()})
			return
		}
		filters = append(filters, manager.WithSeverity(sev))
	}
	if s := r.FormValue("service"); s != "" {
		filters = append(filters, manager.WithService(s))
	}
	if s := r.FormValue("status"); s != "" {
		var statuses []types.AlertStatus
		for _, v := range strings.Split(s, ",") {
			st := types.AlertStatus(strings.ToUpper(strings.TrimSpace(v)))
			if !st.Valid() {
				api.respondError(w, &types.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", v)})
				return
			}
			statuses = append(statuses, st)
		}
		filters = append(filters, manager.WithStatus(statuses...))
	}

	alerts, err := api.manager.ListActive(r.Context(), filters...)
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respond(w, alerts)
}

func (api *API) getAlert(w http.ResponseWriter, r *http.Request) {
	fp, err := fingerprintParam(r)
	if err != nil {
		api.respondError(w, err)
		return
	}
	a, err := api.manager.Get(r.Context(), fp)
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respond(w, a)
}

type silenceRequest struct {
	DurationMinutes int `json:"duration_minutes"`
}

func (api *API) silence(w http.ResponseWriter, r *http.Request) {
	fp, err := fingerprintParam(r)
	if err != nil {
		api.respondError(w, err)
		return
	}
	var req silenceRequest
	if err := api.receive(w, r, &req); err != nil {
		api.respondError(w, err)
		return
	}
	a, err := api.manager.Silence(r.Context(), fp, time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respond(w, a)
}

func (api *API) resolve(w http.ResponseWriter, r *http.Request) {
	fp, err := fingerprintParam(r)
	if err != nil {
		api.respondError(w, err)
		return
	}
	a, err := api.manager.Resolve(r.Context(), fp)
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respond(w, a)
}

func (api *API) history(w http.ResponseWriter, r *http.Request) {
	fp, err := fingerprintParam(r)
	if err != nil {
		api.respondError(w, err)
		return
	}
	recs, err := api.manager.History(r.Context(), fp)
	if err != nil {
		api.respondError(w, err)
		return
	}
	if recs == nil {
		recs = []*types.HistoryRecord{}
	}
	api.respond(w, recs)
}

func (api *API) attempts(w http.ResponseWriter, r *http.Request) {
	fp, err := fingerprintParam(r)
	if err != nil {
		api.respondError(w, err)
		return
	}
	attempts, err := api.manager.Attempts(r.Context(), fp)
	if err != nil {
		api.respondError(w, err)
		return
	}
	if attempts == nil {
		attempts = []*types.NotificationAttempt{}
	}
	api.respond(w, attempts)
}

func (api *API) stats(w http.ResponseWriter, r *http.Request) {
	window := defaultStatsWindow
	if s := r.FormValue("window"); s != "" {
		d, err := model.ParseDuration(s)
		if err != nil {
			api.respondError(w, &types.ValidationError{Field: "window", Reason: err.Error()})
			return
		}
		window = time.Duration(d)
	}
	stats, err := api.manager.GetStats(r.Context(), window)
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respond(w, stats)
}

type channelStatus struct {
	ID   string      `json:"id"`
	Kind notify.Kind `json:"kind"`
}

func (api *API) channels(w http.ResponseWriter, _ *http.Request) {
	chs := api.registry.Channels()
	res := make([]channelStatus, 0, len(chs))
	for _, ch := range chs {
		res = append(res, channelStatus{ID: ch.ID(), Kind: ch.Kind()})
	}
	api.respond(w, res)
}

// subscribe upgrades the request to a websocket on the push-socket channel
// named by the channel parameter, or the first one registered.
func (api *API) subscribe(w http.ResponseWriter, r *http.Request) {
	id := r.FormValue("channel")
	for _, ch := range api.registry.Channels() {
		if ch.Kind() != notify.KindPushSocket || (id != "" && ch.ID() != id) {
			continue
		}
		if h, ok := ch.(http.Handler); ok {
			h.ServeHTTP(w, r)
			return
		}
	}
	if id == "" {
		api.respondError(w, fmt.Errorf("no push-socket channel configured: %w", errNoChannel))
		return
	}
	api.respondError(w, fmt.Errorf("push-socket channel %q: %w", id, errNoChannel))
}
