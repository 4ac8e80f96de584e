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

// Package telegram delivers notifications to a Telegram chat.
package telegram

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	commoncfg "github.com/prometheus/common/config"
	"gopkg.in/telebot.v3"

	"github.com/alertcore/alertcore/config"
	"github.com/alertcore/alertcore/notify"
)

// Telegram supports 4096 chars max.
const maxMessageLenRunes = 4096

// The bot API reports unknown failures as "telegram: <description> (<code>)".
var errorCodeRe = regexp.MustCompile(`\((\d{3})\)$`)

// Notifier implements a notify.Channel for Telegram notifications.
type Notifier struct {
	id     string
	conf   *config.TelegramConfig
	logger *slog.Logger
	client *telebot.Bot
}

// New returns a new Telegram channel.
func New(id string, conf *config.TelegramConfig, l *slog.Logger, httpOpts ...commoncfg.HTTPClientOption) (*Notifier, error) {
	httpConfig := commoncfg.DefaultHTTPClientConfig
	if conf.HTTPConfig != nil {
		httpConfig = *conf.HTTPConfig
	}
	httpclient, err := commoncfg.NewClientFromConfig(httpConfig, "telegram", httpOpts...)
	if err != nil {
		return nil, err
	}

	apiURL := ""
	if conf.APIUrl != nil {
		apiURL = conf.APIUrl.String()
	}
	client, err := createTelegramClient(conf.BotToken, apiURL, conf.ParseMode, httpclient)
	if err != nil {
		return nil, err
	}

	return &Notifier{
		id:     id,
		conf:   conf,
		logger: l,
		client: client,
	}, nil
}

// ID implements notify.Channel.
func (n *Notifier) ID() string { return n.id }

// Kind implements notify.Channel.
func (n *Notifier) Kind() notify.Kind { return notify.KindTelegram }

// Notify implements notify.Channel. The bot client does not take a context,
// so a canceled delivery returns early while the request finishes in the
// background.
func (n *Notifier) Notify(ctx context.Context, msg *notify.Message) (bool, error) {
	text := msg.Text
	if telebot.ParseMode(n.conf.ParseMode) == telebot.ModeHTML {
		text = html.EscapeString(text)
	}
	messageText, truncated := notify.Truncate(text, maxMessageLenRunes)
	if truncated {
		n.logger.Debug("truncated message", "channel", n.id, "alert", msg)
	}

	type result struct {
		m   *telebot.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := n.client.Send(telebot.ChatID(n.conf.ChatID), messageText, &telebot.SendOptions{
			DisableNotification:   n.conf.DisableNotifications,
			DisableWebPagePreview: true,
		})
		done <- result{m: m, err: err}
	}()

	select {
	case <-ctx.Done():
		return true, context.Cause(ctx)
	case res := <-done:
		if res.err != nil {
			return checkErr(res.err)
		}
		n.logger.Debug("Telegram message successfully published", "channel", n.id, "message_id", res.m.ID, "chat_id", res.m.Chat.ID)
		return false, nil
	}
}

// checkErr retries rate limiting and server errors. Failures without an API
// error code come from the transport and are retried too.
func checkErr(err error) (bool, error) {
	var flood telebot.FloodError
	if errors.As(err, &flood) {
		return true, err
	}
	code := 0
	var apiErr *telebot.Error
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	} else if m := errorCodeRe.FindStringSubmatch(err.Error()); m != nil {
		code, _ = strconv.Atoi(m[1])
	}
	if code == 0 {
		return true, err
	}
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError, err
}

func createTelegramClient(token commoncfg.Secret, apiURL, parseMode string, httpClient *http.Client) (*telebot.Bot, error) {
	bot, err := telebot.NewBot(telebot.Settings{
		Token:     string(token),
		URL:       apiURL,
		ParseMode: telebot.ParseMode(parseMode),
		Client:    httpClient,
		Offline:   true,
	})
	if err != nil {
		return nil, err
	}

	return bot, nil
}
