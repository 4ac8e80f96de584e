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

package config

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	commoncfg "github.com/prometheus/common/config"
)

var (
	// DefaultEmailConfig defines default values for email channels.
	DefaultEmailConfig = EmailConfig{
		Hello: "localhost",
	}

	// DefaultSMSConfig defines default values for SMS channels.
	DefaultSMSConfig = SMSConfig{
		SMSType: "Transactional",
	}

	// DefaultPushSocketConfig defines default values for push-socket
	// channels.
	DefaultPushSocketConfig = PushSocketConfig{
		SendBuffer: 64,
	}

	// DefaultWebhookConfig defines default values for chat webhook channels.
	DefaultWebhookConfig = WebhookConfig{
		MaxTextLength: 4000,
	}

	// DefaultTelegramConfig defines default values for Telegram channels.
	DefaultTelegramConfig = TelegramConfig{}

	defaultTelegramAPIURL = mustParseURL("https://api.telegram.org")

	channelIDRe = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)
	// E.164 phone numbers.
	phoneNumberRe = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)
)

func mustParseURL(s string) *URL {
	u, err := ParseURL(s)
	if err != nil {
		panic(err)
	}
	return u
}

// ChannelConfig configures one notification channel. Exactly one of the
// transport blocks must be set.
type ChannelConfig struct {
	ID string `yaml:"id" json:"id"`
	// RateLimit caps deliveries per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	Burst     int     `yaml:"burst,omitempty" json:"burst,omitempty"`

	EmailConfig      *EmailConfig      `yaml:"email_config,omitempty" json:"email_config,omitempty"`
	SMSConfig        *SMSConfig        `yaml:"sms_config,omitempty" json:"sms_config,omitempty"`
	PushSocketConfig *PushSocketConfig `yaml:"pushsocket_config,omitempty" json:"pushsocket_config,omitempty"`
	WebhookConfig    *WebhookConfig    `yaml:"webhook_config,omitempty" json:"webhook_config,omitempty"`
	TelegramConfig   *TelegramConfig   `yaml:"telegram_config,omitempty" json:"telegram_config,omitempty"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (c *ChannelConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain ChannelConfig
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	if c.ID == "" {
		return errors.New("missing id in channel config")
	}
	if !channelIDRe.MatchString(c.ID) {
		return fmt.Errorf("invalid channel id %q", c.ID)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("channel %q: rate_limit must not be negative", c.ID)
	}
	if c.Burst < 0 {
		return fmt.Errorf("channel %q: burst must not be negative", c.ID)
	}
	n := 0
	for _, set := range []bool{
		c.EmailConfig != nil,
		c.SMSConfig != nil,
		c.PushSocketConfig != nil,
		c.WebhookConfig != nil,
		c.TelegramConfig != nil,
	} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("channel %q must have exactly one transport config, got %d", c.ID, n)
	}
	return nil
}

// EmailConfig configures notifications via SMTP.
type EmailConfig struct {
	To           []string          `yaml:"to" json:"to"`
	From         string            `yaml:"from" json:"from"`
	Hello        string            `yaml:"hello,omitempty" json:"hello,omitempty"`
	Smarthost    HostPort          `yaml:"smarthost" json:"smarthost"`
	AuthUsername string            `yaml:"auth_username,omitempty" json:"auth_username,omitempty"`
	AuthPassword commoncfg.Secret  `yaml:"auth_password,omitempty" json:"auth_password,omitempty"`
	AuthIdentity string            `yaml:"auth_identity,omitempty" json:"auth_identity,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	// RequireTLS fails delivery when the server does not offer STARTTLS.
	RequireTLS bool                `yaml:"require_tls,omitempty" json:"require_tls,omitempty"`
	TLSConfig  commoncfg.TLSConfig `yaml:"tls_config,omitempty" json:"tls_config,omitempty"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (c *EmailConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultEmailConfig
	type plain EmailConfig
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	if len(c.To) == 0 {
		return errors.New("missing to address in email config")
	}
	for _, to := range c.To {
		if _, err := mail.ParseAddress(to); err != nil {
			return fmt.Errorf("invalid to address %q in email config: %w", to, err)
		}
	}
	if c.From == "" {
		return errors.New("missing from address in email config")
	}
	if _, err := mail.ParseAddress(c.From); err != nil {
		return fmt.Errorf("invalid from address %q in email config: %w", c.From, err)
	}
	if c.Smarthost.Host == "" {
		return errors.New("missing smarthost in email config")
	}
	// Header names are case-insensitive, check for collisions.
	normalizedHeaders := map[string]string{}
	for h, v := range c.Headers {
		if h == "" {
			return errors.New("empty header name in email config")
		}
		normalized := strings.ToUpper(h[:1]) + strings.ToLower(h[1:])
		if _, ok := normalizedHeaders[normalized]; ok {
			return fmt.Errorf("duplicate header %q in email config", normalized)
		}
		normalizedHeaders[normalized] = v
	}
	c.Headers = normalizedHeaders
	return nil
}

// SMSConfig configures text messages published through Amazon SNS.
type SMSConfig struct {
	Region    string           `yaml:"region,omitempty" json:"region,omitempty"`
	AccessKey string           `yaml:"access_key,omitempty" json:"access_key,omitempty"`
	SecretKey commoncfg.Secret `yaml:"secret_key,omitempty" json:"secret_key,omitempty"`
	Profile   string           `yaml:"profile,omitempty" json:"profile,omitempty"`
	// RoleARN is assumed through STS before publishing.
	RoleARN string `yaml:"role_arn,omitempty" json:"role_arn,omitempty"`
	// Endpoint overrides the SNS API endpoint.
	Endpoint     string   `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	PhoneNumbers []string `yaml:"phone_numbers" json:"phone_numbers"`
	SenderID     string   `yaml:"sender_id,omitempty" json:"sender_id,omitempty"`
	// SMSType is Transactional or Promotional.
	SMSType string `yaml:"sms_type,omitempty" json:"sms_type,omitempty"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (c *SMSConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultSMSConfig
	type plain SMSConfig
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	if len(c.PhoneNumbers) == 0 {
		return errors.New("missing phone_numbers in sms config")
	}
	for _, p := range c.PhoneNumbers {
		if !phoneNumberRe.MatchString(p) {
			return fmt.Errorf("phone number %q in sms config is not in E.164 format", p)
		}
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return errors.New("must provide both access_key and secret_key in sms config")
	}
	if c.SMSType != "Transactional" && c.SMSType != "Promotional" {
		return fmt.Errorf("unknown sms_type %q", c.SMSType)
	}
	return nil
}

// PushSocketConfig configures the websocket push channel.
type PushSocketConfig struct {
	// SendBuffer is the number of messages queued per subscriber before
	// it is considered too slow and dropped.
	SendBuffer int `yaml:"send_buffer,omitempty" json:"send_buffer,omitempty"`
	// RequireSubscribers fails delivery while nobody is connected.
	RequireSubscribers bool `yaml:"require_subscribers,omitempty" json:"require_subscribers,omitempty"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (c *PushSocketConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultPushSocketConfig
	type plain PushSocketConfig
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	if c.SendBuffer <= 0 {
		return errors.New("send_buffer must be positive in pushsocket config")
	}
	return nil
}

// WebhookConfig configures a Slack-compatible chat webhook.
type WebhookConfig struct {
	HTTPConfig *commoncfg.HTTPClientConfig `yaml:"http_config,omitempty" json:"http_config,omitempty"`

	URL      *SecretURL `yaml:"url" json:"url"`
	Channel  string     `yaml:"channel,omitempty" json:"channel,omitempty"`
	Username string     `yaml:"username,omitempty" json:"username,omitempty"`
	// MaxTextLength truncates the message text.
	MaxTextLength int `yaml:"max_text_length,omitempty" json:"max_text_length,omitempty"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (c *WebhookConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultWebhookConfig
	type plain WebhookConfig
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	if c.URL == nil || c.URL.URL == nil {
		return errors.New("missing url in webhook config")
	}
	if c.MaxTextLength <= 0 {
		return errors.New("max_text_length must be positive in webhook config")
	}
	if c.HTTPConfig == nil {
		c.HTTPConfig = &commoncfg.HTTPClientConfig{}
		*c.HTTPConfig = commoncfg.DefaultHTTPClientConfig
	}
	return c.HTTPConfig.Validate()
}

// TelegramConfig configures notifications via the Telegram bot API.
type TelegramConfig struct {
	HTTPConfig *commoncfg.HTTPClientConfig `yaml:"http_config,omitempty" json:"http_config,omitempty"`

	APIUrl               *URL             `yaml:"api_url,omitempty" json:"api_url,omitempty"`
	BotToken             commoncfg.Secret `yaml:"bot_token,omitempty" json:"bot_token,omitempty"`
	ChatID               int64            `yaml:"chat_id,omitempty" json:"chat_id,omitempty"`
	ParseMode            string           `yaml:"parse_mode,omitempty" json:"parse_mode,omitempty"`
	DisableNotifications bool             `yaml:"disable_notifications,omitempty" json:"disable_notifications,omitempty"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (c *TelegramConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultTelegramConfig
	type plain TelegramConfig
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	if c.BotToken == "" {
		return errors.New("missing bot_token on telegram_config")
	}
	if c.ChatID == 0 {
		return errors.New("missing chat_id on telegram_config")
	}
	switch c.ParseMode {
	case "", "Markdown", "MarkdownV2", "HTML":
	default:
		return errors.New("unknown parse_mode on telegram_config, must be Markdown, MarkdownV2, HTML or empty string")
	}
	if c.APIUrl == nil {
		c.APIUrl = defaultTelegramAPIURL.Copy()
	}
	if c.HTTPConfig == nil {
		c.HTTPConfig = &commoncfg.HTTPClientConfig{}
		*c.HTTPConfig = commoncfg.DefaultHTTPClientConfig
	}
	return c.HTTPConfig.Validate()
}
