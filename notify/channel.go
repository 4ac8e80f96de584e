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

// Package notify routes alert notifications to channels. It holds the
// channel registry with its severity routing, the retry policy, and the
// router fanning a notification out to every eligible channel.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/common/model"

	"github.com/alertcore/alertcore/types"
)

// Kind is the transport family of a channel.
type Kind string

const (
	KindEmail      Kind = "email"
	KindSMS        Kind = "sms"
	KindPushSocket Kind = "pushsocket"
	KindWebhook    Kind = "webhook"
	KindTelegram   Kind = "telegram"
)

// Channel delivers notifications over one transport.
type Channel interface {
	// ID uniquely identifies the channel in the registry.
	ID() string
	Kind() Kind
	// Notify delivers msg. If delivery failed, retry reports whether a later
	// attempt may succeed.
	Notify(ctx context.Context, msg *Message) (retry bool, err error)
}

// Message is the rendered notification for one alert transition.
type Message struct {
	Fingerprint  model.Fingerprint `json:"fingerprint"`
	IncidentID   string            `json:"incidentId"`
	AlertName    string            `json:"alertname"`
	Status       types.AlertStatus `json:"status"`
	Severity     types.Severity    `json:"severity"`
	Service      string            `json:"service,omitempty"`
	Labels       model.LabelSet    `json:"labels"`
	Annotations  map[string]string `json:"annotations,omitempty"`
	FirstSeenAt  time.Time         `json:"firstSeenAt"`
	ResolvedAt   *time.Time        `json:"resolvedAt,omitempty"`
	GeneratorURL string            `json:"generatorURL,omitempty"`

	// Title is a one line summary suitable for subjects and SMS.
	Title string `json:"title"`
	// Text is the multi line body.
	Text string `json:"text"`
}

// Summary returns the summary annotation, falling back to the title.
func (m *Message) Summary() string {
	if s := m.Annotations["summary"]; s != "" {
		return s
	}
	return m.Title
}

func (m *Message) String() string {
	return fmt.Sprintf("%s[%s][%s]", m.AlertName, m.Fingerprint, m.Status)
}

// Truncate truncates a string to fit the given size in runes, appending an
// ellipsis if it was cut.
func Truncate(s string, n int) (string, bool) {
	r := []rune(s)
	if len(r) <= n {
		return s, false
	}
	if n <= 3 {
		return string(r[:n]), true
	}
	return string(r[:n-1]) + "…", true
}
