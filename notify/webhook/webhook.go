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

// Package webhook delivers notifications to Slack-compatible incoming
// webhooks.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	commoncfg "github.com/prometheus/common/config"

	"github.com/alertcore/alertcore/config"
	"github.com/alertcore/alertcore/notify"
	"github.com/alertcore/alertcore/tracing"
	"github.com/alertcore/alertcore/types"
)

// https://api.slack.com/reference/messaging/attachments#legacy_fields - 1024, no units given, assuming runes or characters.
const maxTitleLenRunes = 1024

var firingColors = map[types.Severity]string{
	types.SeverityCritical: "danger",
	types.SeverityWarning:  "warning",
	types.SeverityInfo:     "#439FE0",
}

const colorResolved = "good"

// Notifier implements a notify.Channel for chat webhooks.
type Notifier struct {
	id      string
	conf    *config.WebhookConfig
	logger  *slog.Logger
	client  *http.Client
	retrier *notify.Retrier
}

// New returns a new chat webhook channel.
func New(id string, conf *config.WebhookConfig, l *slog.Logger, httpOpts ...commoncfg.HTTPClientOption) (*Notifier, error) {
	httpConfig := commoncfg.DefaultHTTPClientConfig
	if conf.HTTPConfig != nil {
		httpConfig = *conf.HTTPConfig
	}
	client, err := commoncfg.NewClientFromConfig(httpConfig, "webhook", httpOpts...)
	if err != nil {
		return nil, err
	}
	client.Transport = tracing.Transport(client.Transport, id)
	return &Notifier{
		id:     id,
		conf:   conf,
		logger: l,
		client: client,
		// Chat services answer 429 when the webhook is rate limited.
		retrier: &notify.Retrier{RetryCodes: []int{http.StatusTooManyRequests}},
	}, nil
}

// ID implements notify.Channel.
func (n *Notifier) ID() string { return n.id }

// Kind implements notify.Channel.
func (n *Notifier) Kind() notify.Kind { return notify.KindWebhook }

// request is the incoming webhook payload.
type request struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	Title     string   `json:"title,omitempty"`
	TitleLink string   `json:"title_link,omitempty"`
	Text      string   `json:"text"`
	Fallback  string   `json:"fallback"`
	Footer    string   `json:"footer"`
	Color     string   `json:"color,omitempty"`
	Timestamp int64    `json:"ts,omitempty"`
	MrkdwnIn  []string `json:"mrkdwn_in,omitempty"`
}

func color(msg *notify.Message) string {
	if msg.Status == types.StatusResolved {
		return colorResolved
	}
	return firingColors[msg.Severity]
}

// Notify implements notify.Channel.
func (n *Notifier) Notify(ctx context.Context, msg *notify.Message) (bool, error) {
	title, truncated := notify.Truncate(msg.Title, maxTitleLenRunes)
	if truncated {
		n.logger.Warn("Truncated title", "channel", n.id, "max_runes", maxTitleLenRunes)
	}
	text := msg.Text
	if n.conf.MaxTextLength > 0 {
		if text, truncated = notify.Truncate(text, n.conf.MaxTextLength); truncated {
			n.logger.Warn("Truncated text", "channel", n.id, "max_runes", n.conf.MaxTextLength)
		}
	}

	req := &request{
		Channel:  n.conf.Channel,
		Username: n.conf.Username,
		Attachments: []attachment{{
			Title:     title,
			TitleLink: msg.GeneratorURL,
			Text:      text,
			Fallback:  title,
			Footer:    msg.Fingerprint.String(),
			Color:     color(msg),
			MrkdwnIn:  []string{"text"},
		}},
	}

	if !msg.FirstSeenAt.IsZero() {
		req.Attachments[0].Timestamp = msg.FirstSeenAt.Unix()
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return false, err
	}

	resp, err := notify.PostJSON(ctx, n.client, n.conf.URL.String(), &buf)
	if err != nil {
		return true, notify.RedactURL(err)
	}
	defer notify.Drain(resp)

	retry, err := n.retrier.Check(resp.StatusCode, resp.Body)
	if err != nil {
		n.logger.Debug("Webhook delivery failed", "channel", n.id, "status_code", resp.StatusCode, "err", err)
		return retry, err
	}
	n.logger.Debug("Webhook notification delivered", "channel", n.id, "alert", msg)
	return false, nil
}
