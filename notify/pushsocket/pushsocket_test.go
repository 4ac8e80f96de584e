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

package pushsocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/common/model"
	"github.com/prometheus/common/promslog"
	"github.com/stretchr/testify/require"

	"github.com/alertcore/alertcore/config"
	"github.com/alertcore/alertcore/notify"
	"github.com/alertcore/alertcore/types"
)

func testMessage(sev types.Severity) *notify.Message {
	return &notify.Message{
		Fingerprint: model.Fingerprint(42),
		IncidentID:  "01J0000000000000000000000",
		AlertName:   "HighLatency",
		Status:      types.StatusFiring,
		Severity:    sev,
		Labels:      model.LabelSet{"alertname": "HighLatency"},
		Title:       "[FIRING] HighLatency",
	}
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func newHub(conf *config.PushSocketConfig) (*Hub, *httptest.Server) {
	h := New("dashboard", conf, promslog.NewNopLogger())
	return h, httptest.NewServer(h)
}

func TestHubBroadcast(t *testing.T) {
	h, srv := newHub(nil)
	defer srv.Close()
	defer h.Close()

	require.Equal(t, "dashboard", h.ID())
	require.Equal(t, notify.KindPushSocket, h.Kind())

	a := dial(t, srv, "")
	b := dial(t, srv, "?severity=critical")
	require.Eventually(t, func() bool { return h.Subscribers() == 2 }, 5*time.Second, 10*time.Millisecond)

	retry, err := h.Notify(context.Background(), testMessage(types.SeverityInfo))
	require.NoError(t, err)
	require.False(t, retry)
	retry, err = h.Notify(context.Background(), testMessage(types.SeverityCritical))
	require.NoError(t, err)
	require.False(t, retry)

	ev := readEvent(t, a)
	require.Equal(t, "alert", ev.Event)
	require.Equal(t, types.SeverityInfo, ev.Data.Severity)
	require.Equal(t, types.SeverityCritical, readEvent(t, a).Data.Severity)

	// b filtered out the info message.
	ev = readEvent(t, b)
	require.Equal(t, types.SeverityCritical, ev.Data.Severity)
	require.Equal(t, model.Fingerprint(42), ev.Data.Fingerprint)

	require.Equal(t, uint64(3), h.Delivered())
}

func TestHubWithoutSubscribers(t *testing.T) {
	h := New("dashboard", nil, promslog.NewNopLogger())
	retry, err := h.Notify(context.Background(), testMessage(types.SeverityInfo))
	require.NoError(t, err)
	require.False(t, retry)

	h = New("dashboard", &config.PushSocketConfig{SendBuffer: 1, RequireSubscribers: true}, promslog.NewNopLogger())
	retry, err = h.Notify(context.Background(), testMessage(types.SeverityInfo))
	require.ErrorIs(t, err, errNoSubscribers)
	require.True(t, retry)
}

func TestHubRejectsUnknownSeverityFilter(t *testing.T) {
	h, srv := newHub(nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?severity=fatal")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Zero(t, h.Subscribers())
}

func TestHubClose(t *testing.T) {
	h, srv := newHub(nil)
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Close())
	require.Zero(t, h.Subscribers())

	// The subscriber sees the connection go away.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	retry, err := h.Notify(context.Background(), testMessage(types.SeverityInfo))
	require.ErrorIs(t, err, errClosed)
	require.False(t, retry)
}

func TestHubNotifyCanceled(t *testing.T) {
	h := New("dashboard", nil, promslog.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	retry, err := h.Notify(ctx, testMessage(types.SeverityInfo))
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, retry)
}
