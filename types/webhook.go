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

package types

import (
	"strings"
	"time"

	"github.com/prometheus/common/model"
)

// WebhookMessage is the payload POSTed by a Prometheus compatible
// Alertmanager webhook receiver.
type WebhookMessage struct {
	Version           string            `json:"version"`
	GroupKey          string            `json:"groupKey"`
	TruncatedAlerts   uint64            `json:"truncatedAlerts"`
	Receiver          string            `json:"receiver"`
	Status            string            `json:"status"`
	Alerts            []WebhookAlert    `json:"alerts"`
	GroupLabels       map[string]string `json:"groupLabels,omitempty"`
	CommonLabels      map[string]string `json:"commonLabels,omitempty"`
	CommonAnnotations map[string]string `json:"commonAnnotations,omitempty"`
	ExternalURL       string            `json:"externalURL,omitempty"`
}

// WebhookAlert is one element of WebhookMessage.Alerts.
type WebhookAlert struct {
	// AlertName is optional; the alertname label is used when empty.
	AlertName    string            `json:"alertname,omitempty"`
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL"`
	Fingerprint  string            `json:"fingerprint"`
}

// Events converts every element of the message into an AlertEvent received
// at receivedAt. Conversion never fails; malformed elements produce events
// that do not pass Validate.
func (m *WebhookMessage) Events(receivedAt time.Time) []*AlertEvent {
	events := make([]*AlertEvent, 0, len(m.Alerts))
	for _, a := range m.Alerts {
		events = append(events, a.event(m, receivedAt))
	}
	return events
}

func (a *WebhookAlert) event(m *WebhookMessage, receivedAt time.Time) *AlertEvent {
	labels := make(model.LabelSet, len(a.Labels))
	for k, v := range a.Labels {
		labels[model.LabelName(k)] = model.LabelValue(v)
	}

	name := a.AlertName
	if name == "" {
		name = string(labels[model.AlertNameLabel])
	}
	status := a.Status
	if status == "" {
		status = m.Status
	}

	e := &AlertEvent{
		Name:         name,
		Labels:       labels,
		Severity:     Severity(strings.ToLower(strings.TrimSpace(string(labels[SeverityLabel])))),
		Status:       EventStatus(strings.ToLower(strings.TrimSpace(status))),
		Annotations:  a.Annotations,
		ReceivedAt:   receivedAt,
		StartsAt:     a.StartsAt,
		EndsAt:       a.EndsAt,
		GeneratorURL: a.GeneratorURL,
		Receiver:     m.Receiver,
	}
	if _, ok := labels[model.AlertNameLabel]; !ok && name != "" {
		e.Labels[model.AlertNameLabel] = model.LabelValue(name)
	}
	return e
}
