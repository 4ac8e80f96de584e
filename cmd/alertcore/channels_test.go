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

package main

import (
	"context"
	"testing"

	"github.com/prometheus/common/promslog"
	"github.com/stretchr/testify/require"

	"github.com/alertcore/alertcore/config"
	"github.com/alertcore/alertcore/notify"
	"github.com/alertcore/alertcore/notify/pushsocket"
	"github.com/alertcore/alertcore/template"
	"github.com/alertcore/alertcore/types"
)

const channelsYAML = `
severity_channel_map:
  warning: [oncall-mail, dashboard]
channels:
  - id: oncall-mail
    email_config:
      to: ['oncall@example.org']
      from: 'alertcore@example.org'
      smarthost: 'smtp.example.org:587'
  - id: dashboard
    rate_limit: 2
    pushsocket_config:
      send_buffer: 16
  - id: chat
    webhook_config:
      url: 'https://hooks.example.org/services/T000/B000/XXXX'
  - id: telegram
    telegram_config:
      bot_token: '123:abc'
      chat_id: -1001234
`

func loadConfig(t *testing.T, s string) *config.Config {
	t.Helper()
	conf, err := config.Load(s)
	require.NoError(t, err)
	return conf
}

func TestApplyChannels(t *testing.T) {
	ctx := context.Background()
	tmpl, err := template.New()
	require.NoError(t, err)
	registry := notify.NewRegistry()
	logger := promslog.NewNopLogger()

	conf := loadConfig(t, channelsYAML)
	require.NoError(t, applyChannels(ctx, conf, tmpl, registry, logger))

	kinds := map[string]notify.Kind{}
	for _, ch := range registry.Channels() {
		kinds[ch.ID()] = ch.Kind()
	}
	require.Equal(t, map[string]notify.Kind{
		"oncall-mail": notify.KindEmail,
		"dashboard":   notify.KindPushSocket,
		"chat":        notify.KindWebhook,
		"telegram":    notify.KindTelegram,
	}, kinds)

	targets, err := registry.Select(types.SeverityWarning)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	require.Equal(t, "oncall-mail", targets[0].Channel.ID())

	hub, ok := registry.Get("dashboard")
	require.True(t, ok)

	// An unchanged hub survives the reload, a changed one is replaced.
	require.NoError(t, applyChannels(ctx, loadConfig(t, channelsYAML), tmpl, registry, logger))
	same, _ := registry.Get("dashboard")
	require.Same(t, hub, same)

	changed := loadConfig(t, `
channels:
  - id: dashboard
    pushsocket_config:
      send_buffer: 32
`)
	require.NoError(t, applyChannels(ctx, changed, tmpl, registry, logger))
	next, ok := registry.Get("dashboard")
	require.True(t, ok)
	require.NotSame(t, hub, next)
	require.Equal(t, 32, next.(*pushsocket.Hub).Config().SendBuffer)
	require.Len(t, registry.Channels(), 1)

	// The old hub was closed when it was dropped.
	retry, err := hub.Notify(ctx, &notify.Message{Severity: types.SeverityInfo})
	require.Error(t, err)
	require.False(t, retry)
}

func TestApplyChannelsRejectsUnroutableConfig(t *testing.T) {
	ctx := context.Background()
	tmpl, err := template.New()
	require.NoError(t, err)
	registry := notify.NewRegistry()
	logger := promslog.NewNopLogger()

	require.NoError(t, applyChannels(ctx, loadConfig(t, channelsYAML), tmpl, registry, logger))

	// Info alerts default to push-socket channels, and there are none.
	err = applyChannels(ctx, loadConfig(t, `
channels:
  - id: chat
    webhook_config:
      url: 'https://hooks.example.org/services/T000/B000/XXXX'
`), tmpl, registry, logger)
	var cerr *types.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	require.Len(t, registry.Channels(), 4, "failed reload keeps the previous channels")
}

func TestRestartRequired(t *testing.T) {
	a := loadConfig(t, channelsYAML)
	b := loadConfig(t, channelsYAML)
	require.False(t, restartRequired(a, b))

	b.Channels = nil
	require.False(t, restartRequired(a, b))

	b.MaxRetryAttempts++
	require.True(t, restartRequired(a, b))

	c := loadConfig(t, channelsYAML)
	c.VolatileLabels = []string{"pod"}
	require.True(t, restartRequired(a, c))

	d := loadConfig(t, channelsYAML)
	d.Tracing.Endpoint = "otel:4317"
	require.True(t, restartRequired(a, d))
}
