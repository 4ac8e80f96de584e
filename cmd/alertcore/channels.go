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
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"

	"golang.org/x/time/rate"

	"github.com/alertcore/alertcore/config"
	"github.com/alertcore/alertcore/notify"
	"github.com/alertcore/alertcore/notify/email"
	"github.com/alertcore/alertcore/notify/pushsocket"
	"github.com/alertcore/alertcore/notify/sms"
	"github.com/alertcore/alertcore/notify/telegram"
	"github.com/alertcore/alertcore/notify/webhook"
	"github.com/alertcore/alertcore/template"
)

// buildChannels instantiates the channels of conf. Push-socket hubs of the
// current registry are kept when their configuration is unchanged so that
// connected subscribers survive a reload.
func buildChannels(ctx context.Context, conf *config.Config, tmpl *template.Template, current *notify.Registry, logger *slog.Logger) ([]notify.Registration, error) {
	regs := make([]notify.Registration, 0, len(conf.Channels))
	for _, cc := range conf.Channels {
		l := logger.With("channel", cc.ID)

		var (
			ch  notify.Channel
			err error
		)
		switch {
		case cc.EmailConfig != nil:
			ch = email.New(cc.ID, cc.EmailConfig, tmpl, l)
		case cc.SMSConfig != nil:
			ch, err = sms.New(ctx, cc.ID, cc.SMSConfig, l)
		case cc.PushSocketConfig != nil:
			ch = reuseHub(current, cc.ID, cc.PushSocketConfig)
			if ch == nil {
				ch = pushsocket.New(cc.ID, cc.PushSocketConfig, l)
			}
		case cc.WebhookConfig != nil:
			ch, err = webhook.New(cc.ID, cc.WebhookConfig, l)
		case cc.TelegramConfig != nil:
			ch, err = telegram.New(cc.ID, cc.TelegramConfig, l)
		default:
			err = errors.New("no transport configured")
		}
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", cc.ID, err)
		}
		regs = append(regs, notify.Registration{
			Channel:   ch,
			RateLimit: rate.Limit(cc.RateLimit),
			Burst:     cc.Burst,
		})
	}
	return regs, nil
}

func reuseHub(current *notify.Registry, id string, conf *config.PushSocketConfig) *pushsocket.Hub {
	if current == nil {
		return nil
	}
	ch, ok := current.Get(id)
	if !ok {
		return nil
	}
	hub, ok := ch.(*pushsocket.Hub)
	if !ok || hub.Config() != *conf {
		return nil
	}
	return hub
}

// applyChannels replaces the channels and routes of registry with those of
// conf and closes the channels that were dropped.
func applyChannels(ctx context.Context, conf *config.Config, tmpl *template.Template, registry *notify.Registry, logger *slog.Logger) error {
	regs, err := buildChannels(ctx, conf, tmpl, registry, logger)
	if err != nil {
		return err
	}
	dropped, err := registry.Replace(regs, conf.SeverityChannelMap)
	if err != nil {
		// Nothing was swapped in; release what was just built.
		var fresh []notify.Channel
		for _, r := range regs {
			if cur, ok := registry.Get(r.Channel.ID()); !ok || cur != r.Channel {
				fresh = append(fresh, r.Channel)
			}
		}
		if cerr := notify.Close(fresh...); cerr != nil {
			logger.Warn("failed to close unused channels", "err", cerr)
		}
		return err
	}
	if err := notify.Close(dropped...); err != nil {
		logger.Warn("failed to close dropped channels", "err", err)
	}
	ids := make([]string, 0, len(regs))
	for _, r := range regs {
		ids = append(ids, r.Channel.ID())
	}
	slices.Sort(ids)
	logger.Info("channels loaded", "channels", ids)
	return nil
}

// restartRequired reports whether b changes settings of a that are only
// read at startup.
func restartRequired(a, b *config.Config) bool {
	return a.DedupWindowMinutes != b.DedupWindowMinutes ||
		a.MaxRetryAttempts != b.MaxRetryAttempts ||
		a.RetryBackoffBaseMS != b.RetryBackoffBaseMS ||
		a.RetryBackoffMaxMS != b.RetryBackoffMaxMS ||
		a.PerChannelTimeoutMS != b.PerChannelTimeoutMS ||
		a.HistoryRetentionDays != b.HistoryRetentionDays ||
		a.ResolvedRetentionMinutes != b.ResolvedRetentionMinutes ||
		a.MaintenanceInterval != b.MaintenanceInterval ||
		a.Store != b.Store ||
		!slices.Equal(a.VolatileLabels, b.VolatileLabels) ||
		!slices.Equal(a.Templates, b.Templates) ||
		!reflect.DeepEqual(a.Tracing, b.Tracing)
}
