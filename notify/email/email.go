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

// Package email delivers notifications over SMTP.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/textproto"
	"slices"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	commoncfg "github.com/prometheus/common/config"

	"github.com/alertcore/alertcore/config"
	"github.com/alertcore/alertcore/notify"
	"github.com/alertcore/alertcore/template"
)

// Email implements a notify.Channel for email notifications.
type Email struct {
	id     string
	conf   *config.EmailConfig
	tmpl   *template.Template
	logger *slog.Logger
	dialer net.Dialer
}

// New returns a new Email channel.
func New(id string, c *config.EmailConfig, t *template.Template, l *slog.Logger) *Email {
	return &Email{id: id, conf: c, tmpl: t, logger: l}
}

// ID implements notify.Channel.
func (n *Email) ID() string { return n.id }

// Kind implements notify.Channel.
func (n *Email) Kind() notify.Kind { return notify.KindEmail }

// auth picks a SASL mechanism the server supports.
func (n *Email) auth(c *smtp.Client) (sasl.Client, error) {
	username := n.conf.AuthUsername

	// If no username is set, keep going without authentication.
	if username == "" {
		n.logger.Debug("auth_username is not configured. Attempting to send email without authenticating", "channel", n.id)
		return nil, nil
	}
	password := string(n.conf.AuthPassword)
	if password == "" {
		return nil, errors.New("missing password for SMTP authentication")
	}
	switch {
	case c.SupportsAuth(sasl.Plain):
		return sasl.NewPlainClient(n.conf.AuthIdentity, username, password), nil
	case c.SupportsAuth(sasl.Login):
		return sasl.NewLoginClient(username, password), nil
	}
	return nil, fmt.Errorf("%q supports neither PLAIN nor LOGIN authentication", n.conf.Smarthost)
}

func (n *Email) tlsConfig() (*tls.Config, error) {
	tlsConfig, err := commoncfg.NewTLSConfig(&n.conf.TLSConfig)
	if err != nil {
		return nil, err
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = n.conf.Smarthost.Host
	}
	return tlsConfig, nil
}

func (n *Email) connect(ctx context.Context) (*smtp.Client, error) {
	conn, err := n.dialer.DialContext(ctx, "tcp", n.conf.Smarthost.String())
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
	}
	if n.conf.Smarthost.Port == "465" {
		tlsConfig, err := n.tlsConfig()
		if err != nil {
			conn.Close()
			return nil, err
		}
		conn = tls.Client(conn, tlsConfig)
	}
	return smtp.NewClient(conn), nil
}

// Notify implements notify.Channel.
func (n *Email) Notify(ctx context.Context, msg *notify.Message) (bool, error) {
	c, err := n.connect(ctx)
	if err != nil {
		return true, fmt.Errorf("establish connection to server: %w", err)
	}
	defer func() {
		if err := c.Quit(); err != nil {
			n.logger.Debug("failed to close SMTP connection", "channel", n.id, "err", err)
			c.Close()
		}
	}()

	if n.conf.Hello != "" {
		if err := c.Hello(n.conf.Hello); err != nil {
			return checkErr(fmt.Errorf("send EHLO command: %w", err))
		}
	}

	if ok, _ := c.Extension("STARTTLS"); ok && n.conf.Smarthost.Port != "465" {
		tlsConf, err := n.tlsConfig()
		if err != nil {
			return false, fmt.Errorf("parse TLS configuration: %w", err)
		}
		if err := c.StartTLS(tlsConf); err != nil {
			return true, fmt.Errorf("send STARTTLS command: %w", err)
		}
	} else if n.conf.RequireTLS && n.conf.Smarthost.Port != "465" {
		return true, fmt.Errorf("require_tls: true, but %q does not advertise the STARTTLS extension", n.conf.Smarthost)
	}

	if ok, _ := c.Extension("AUTH"); ok {
		auth, err := n.auth(c)
		if err != nil {
			return true, fmt.Errorf("find auth mechanism: %w", err)
		}
		if auth != nil {
			if err := c.Auth(auth); err != nil {
				return checkErr(fmt.Errorf("authenticate: %w", err))
			}
		}
	}

	from, err := mail.ParseAddress(n.conf.From)
	if err != nil {
		return false, fmt.Errorf("parse 'from' address: %w", err)
	}
	if err := c.Mail(from.Address, nil); err != nil {
		return checkErr(fmt.Errorf("send MAIL command: %w", err))
	}
	for _, to := range n.conf.To {
		addr, err := mail.ParseAddress(to)
		if err != nil {
			return false, fmt.Errorf("parse 'to' address: %w", err)
		}
		if err := c.Rcpt(addr.Address, nil); err != nil {
			return checkErr(fmt.Errorf("send RCPT command: %w", err))
		}
	}

	body, err := n.render(msg)
	if err != nil {
		return false, err
	}

	wc, err := c.Data()
	if err != nil {
		return checkErr(fmt.Errorf("send DATA command: %w", err))
	}
	if _, err := wc.Write(body); err != nil {
		wc.Close()
		return true, fmt.Errorf("write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return checkErr(fmt.Errorf("submit message: %w", err))
	}

	n.logger.Debug("Email sent", "channel", n.id, "alert", msg)
	return false, nil
}

// render builds the MIME message with a text and a html alternative.
func (n *Email) render(msg *notify.Message) ([]byte, error) {
	headers := map[string]string{
		"Subject": msg.Title,
		"To":      strings.Join(n.conf.To, ", "),
		"From":    n.conf.From,
	}
	for h, v := range n.conf.Headers {
		headers[h] = v
	}

	buffer := &bytes.Buffer{}
	names := make([]string, 0, len(headers))
	for h := range headers {
		names = append(names, h)
	}
	slices.Sort(names)
	for _, h := range names {
		fmt.Fprintf(buffer, "%s: %s\r\n", h, mime.QEncoding.Encode("utf-8", headers[h]))
	}

	multipartBuffer := &bytes.Buffer{}
	multipartWriter := multipart.NewWriter(multipartBuffer)

	fmt.Fprintf(buffer, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(buffer, "Message-Id: <%s.%s@alertcore>\r\n", msg.IncidentID, msg.Status)
	fmt.Fprintf(buffer, "Content-Type: multipart/alternative;  boundary=%s\r\n", multipartWriter.Boundary())
	fmt.Fprintf(buffer, "MIME-Version: 1.0\r\n\r\n")

	html, err := n.tmpl.ExecuteHTML(template.HTMLTemplate, msg)
	if err != nil {
		return nil, fmt.Errorf("execute html template: %w", err)
	}
	parts := []struct{ contentType, body string }{
		{"text/plain; charset=UTF-8", msg.Text},
		// Preferred alternative placed last per section 5.1.4 of RFC 2046.
		{"text/html; charset=UTF-8", html},
	}
	for _, p := range parts {
		w, err := multipartWriter.CreatePart(textproto.MIMEHeader{
			"Content-Transfer-Encoding": {"quoted-printable"},
			"Content-Type":              {p.contentType},
		})
		if err != nil {
			return nil, fmt.Errorf("create part: %w", err)
		}
		qw := quotedprintable.NewWriter(w)
		if _, err := qw.Write([]byte(p.body)); err != nil {
			return nil, err
		}
		if err := qw.Close(); err != nil {
			return nil, err
		}
	}
	if err := multipartWriter.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	buffer.Write(multipartBuffer.Bytes())
	return buffer.Bytes(), nil
}

// checkErr retries transient failures. Permanent SMTP replies (5xx) are not
// retried.
func checkErr(err error) (bool, error) {
	var se *smtp.SMTPError
	if errors.As(err, &se) {
		return se.Code < 500, err
	}
	return true, err
}
