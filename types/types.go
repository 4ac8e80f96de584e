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

// Package types holds the data model shared by the alert pipeline: inbound
// alert events, the per-fingerprint active alert record, and the append-only
// history and notification attempt records.
package types

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/common/model"
)

// Severity is the urgency of an alert event.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Severities lists every known severity, most urgent first.
var Severities = []Severity{SeverityCritical, SeverityWarning, SeverityInfo}

// ParseSeverity returns the severity named by s. Matching ignores case and
// surrounding whitespace.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return slices.Contains(Severities, s)
}

// EventStatus is the status reported by the alert source.
type EventStatus string

const (
	EventFiring   EventStatus = "firing"
	EventResolved EventStatus = "resolved"
)

// Valid reports whether s is a known event status.
func (s EventStatus) Valid() bool {
	return s == EventFiring || s == EventResolved
}

// AlertStatus returns the lifecycle status an event of this status maps to.
func (s EventStatus) AlertStatus() AlertStatus {
	if s == EventResolved {
		return StatusResolved
	}
	return StatusFiring
}

// AlertStatus is the lifecycle state of an active alert.
type AlertStatus string

const (
	StatusFiring   AlertStatus = "FIRING"
	StatusResolved AlertStatus = "RESOLVED"
	StatusSilenced AlertStatus = "SILENCED"
)

// Valid reports whether s is a known lifecycle status.
func (s AlertStatus) Valid() bool {
	switch s {
	case StatusFiring, StatusResolved, StatusSilenced:
		return true
	}
	return false
}

// ServiceLabel names the label used to group alerts by service. Alerts
// without it fall back to their instance label.
const ServiceLabel model.LabelName = "service"

// InstanceLabel is the fallback for ServiceLabel.
const InstanceLabel model.LabelName = "instance"

// SeverityLabel carries the severity of alerts received over the webhook.
const SeverityLabel model.LabelName = "severity"

// AlertEvent is a single inbound observation of an alert.
type AlertEvent struct {
	Name         string            `json:"alertname"`
	Labels       model.LabelSet    `json:"labels"`
	Severity     Severity          `json:"severity"`
	Status       EventStatus       `json:"status"`
	Annotations  map[string]string `json:"annotations,omitempty"`
	ReceivedAt   time.Time         `json:"receivedAt"`
	StartsAt     time.Time         `json:"startsAt,omitzero"`
	EndsAt       time.Time         `json:"endsAt,omitzero"`
	GeneratorURL string            `json:"generatorURL,omitempty"`
	Receiver     string            `json:"receiver,omitempty"`
}

// Validate checks that the event carries a name, a known severity and a
// known status, and that its labels are well formed.
func (e *AlertEvent) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return &ValidationError{Field: "alertname", Reason: "missing alert name"}
	}
	if e.Severity == "" {
		return &ValidationError{Field: "severity", Reason: "missing severity"}
	}
	if !e.Severity.Valid() {
		return &ValidationError{Field: "severity", Reason: fmt.Sprintf("unrecognized severity %q", e.Severity)}
	}
	if !e.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unrecognized status %q", e.Status)}
	}
	if err := e.Labels.Validate(); err != nil {
		return &ValidationError{Field: "labels", Reason: err.Error()}
	}
	if e.ReceivedAt.IsZero() {
		return &ValidationError{Field: "receivedAt", Reason: "missing receive time"}
	}
	return nil
}

// Service returns the service the event belongs to.
func (e *AlertEvent) Service() string {
	return service(e.Labels)
}

func service(ls model.LabelSet) string {
	if v, ok := ls[ServiceLabel]; ok {
		return string(v)
	}
	return string(ls[InstanceLabel])
}

// ActiveAlert is the current state of an incident, keyed by fingerprint.
type ActiveAlert struct {
	Fingerprint model.Fingerprint `json:"fingerprint"`
	// IncidentID changes every time the fingerprint starts firing after
	// having been resolved.
	IncidentID  string            `json:"incidentId"`
	Name        string            `json:"alertname"`
	Labels      model.LabelSet    `json:"labels"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Status      AlertStatus       `json:"status"`
	Severity    Severity          `json:"severity"`

	FirstSeenAt  time.Time  `json:"firstSeenAt"`
	LastSeenAt   time.Time  `json:"lastSeenAt"`
	SilenceUntil *time.Time `json:"silenceUntil,omitempty"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty"`

	NotificationCount    int         `json:"notificationCount"`
	LastNotifiedChannels []string    `json:"lastNotifiedChannels,omitempty"`
	LastNotifiedAt       *time.Time  `json:"lastNotifiedAt,omitempty"`
	LastNotifiedStatus   AlertStatus `json:"lastNotifiedStatus,omitempty"`

	// Rearms counts the silences that elapsed during the incident.
	Rearms int `json:"rearms,omitempty"`
}

// Clone returns a deep copy of the alert.
func (a *ActiveAlert) Clone() *ActiveAlert {
	if a == nil {
		return nil
	}
	c := *a
	c.Labels = a.Labels.Clone()
	c.Annotations = maps.Clone(a.Annotations)
	c.LastNotifiedChannels = slices.Clone(a.LastNotifiedChannels)
	c.SilenceUntil = cloneTime(a.SilenceUntil)
	c.ResolvedAt = cloneTime(a.ResolvedAt)
	c.LastNotifiedAt = cloneTime(a.LastNotifiedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Silenced reports whether the alert is under a silence that has not yet
// elapsed at now.
func (a *ActiveAlert) Silenced(now time.Time) bool {
	return a.Status == StatusSilenced && a.SilenceUntil != nil && now.Before(*a.SilenceUntil)
}

// EffectiveStatus returns the status of the alert as seen at now. A silence
// that has elapsed reads as FIRING.
func (a *ActiveAlert) EffectiveStatus(now time.Time) AlertStatus {
	if a.Status == StatusSilenced && !a.Silenced(now) {
		return StatusFiring
	}
	return a.Status
}

// Normalize returns a copy of the alert with an elapsed silence folded back
// into the FIRING state. The alert itself is returned if nothing changes.
func (a *ActiveAlert) Normalize(now time.Time) *ActiveAlert {
	if a.Status != StatusSilenced || a.Silenced(now) {
		return a
	}
	c := a.Clone()
	c.Status = StatusFiring
	return c
}

// Service returns the service the alert belongs to.
func (a *ActiveAlert) Service() string {
	return service(a.Labels)
}

func (a *ActiveAlert) String() string {
	return fmt.Sprintf("%s[%s][%s]", a.Name, a.Fingerprint, a.Status)
}

// Trigger names what caused a history record to be written.
type Trigger string

const (
	TriggerEvent   Trigger = "event"
	TriggerSilence Trigger = "silence"
	TriggerResolve Trigger = "resolve"
)

// Outcome is the result of one notification attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
	OutcomeSkipped Outcome = "SKIPPED"
)

// ChannelOutcome summarizes the delivery of a notification to one channel.
type ChannelOutcome struct {
	ChannelID string  `json:"channelId"`
	Outcome   Outcome `json:"outcome"`
	Attempts  int     `json:"attempts"`
	Error     string  `json:"error,omitempty"`
}

// HistoryRecord is an immutable entry in the alert audit log.
type HistoryRecord struct {
	ID          string            `json:"id"`
	Fingerprint model.Fingerprint `json:"fingerprint"`
	IncidentID  string            `json:"incidentId"`
	Trigger     Trigger           `json:"trigger"`
	// Event is nil for records written by manual operations.
	Event      *AlertEvent      `json:"event,omitempty"`
	PrevStatus AlertStatus      `json:"prevStatus,omitempty"`
	Status     AlertStatus      `json:"status"`
	Severity   Severity         `json:"severity"`
	Notified   bool             `json:"notified"`
	Outcomes   []ChannelOutcome `json:"outcomes,omitempty"`
	RecordedAt time.Time        `json:"recordedAt"`
}

// NotificationAttempt records a single try to deliver a notification.
type NotificationAttempt struct {
	ID          string            `json:"id"`
	Fingerprint model.Fingerprint `json:"fingerprint"`
	ChannelID   string            `json:"channelId"`
	// Attempt is 1-based.
	Attempt     int       `json:"attempt"`
	AttemptedAt time.Time `json:"attemptedAt"`
	Outcome     Outcome   `json:"outcome"`
	Error       string    `json:"error,omitempty"`
}

// AggregateStats holds counts over a time window.
type AggregateStats struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	// Alerts counts active alerts last seen within the window.
	Alerts     int                 `json:"alerts"`
	BySeverity map[Severity]int    `json:"bySeverity"`
	ByStatus   map[AlertStatus]int `json:"byStatus"`

	// Events counts history records written within the window.
	Events        int             `json:"events"`
	Notifications map[Outcome]int `json:"notifications"`
}

// NewAggregateStats returns stats for the window [from, to] with every
// known severity, status and outcome present at zero.
func NewAggregateStats(from, to time.Time) *AggregateStats {
	s := &AggregateStats{
		From:          from,
		To:            to,
		BySeverity:    make(map[Severity]int, len(Severities)),
		ByStatus:      make(map[AlertStatus]int, 3),
		Notifications: make(map[Outcome]int, 3),
	}
	for _, sev := range Severities {
		s.BySeverity[sev] = 0
	}
	for _, st := range []AlertStatus{StatusFiring, StatusResolved, StatusSilenced} {
		s.ByStatus[st] = 0
	}
	for _, o := range []Outcome{OutcomeSuccess, OutcomeFailed, OutcomeSkipped} {
		s.Notifications[o] = 0
	}
	return s
}
