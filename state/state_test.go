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

package state

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/require"

	"github.com/alertcore/alertcore/types"
)

const fp = model.Fingerprint(0xabcdef)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestMachine() *Machine {
	n := 0
	return &Machine{newID: func() string {
		n++
		return fmt.Sprintf("incident-%d", n)
	}}
}

func event(status types.EventStatus, at time.Time) *types.AlertEvent {
	return &types.AlertEvent{
		Name:        "HighErrorRate",
		Labels:      model.LabelSet{"alertname": "HighErrorRate", "service": "api"},
		Severity:    types.SeverityCritical,
		Status:      status,
		Annotations: map[string]string{"summary": "errors"},
		ReceivedAt:  at,
	}
}

func alert(status types.AlertStatus) *types.ActiveAlert {
	a := &types.ActiveAlert{
		Fingerprint: fp,
		IncidentID:  "incident-0",
		Name:        "HighErrorRate",
		Status:      status,
		Severity:    types.SeverityCritical,
		FirstSeenAt: t0,
		LastSeenAt:  t0,
	}
	switch status {
	case types.StatusSilenced:
		until := t0.Add(time.Hour)
		a.SilenceUntil = &until
	case types.StatusResolved:
		at := t0
		a.ResolvedAt = &at
	}
	return a
}

func TestFiringEvents(t *testing.T) {
	m := newTestMachine()
	at := t0.Add(10 * time.Minute)

	cases := []struct {
		name        string
		current     *types.ActiveAlert
		now         time.Time
		to          types.AlertStatus
		notify      bool
		newIncident bool
	}{
		{name: "new fingerprint", current: nil, now: at, to: types.StatusFiring, notify: true, newIncident: true},
		{name: "firing escalation", current: alert(types.StatusFiring), now: at, to: types.StatusFiring, notify: true},
		{name: "silence in force", current: alert(types.StatusSilenced), now: at, to: types.StatusSilenced},
		{name: "silence elapsed", current: alert(types.StatusSilenced), now: t0.Add(2 * time.Hour), to: types.StatusFiring, notify: true},
		{name: "refire after resolve", current: alert(types.StatusResolved), now: at, to: types.StatusFiring, notify: true, newIncident: true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var before *types.ActiveAlert
			if c.current != nil {
				before = c.current.Clone()
			}
			tr, err := m.Apply(c.current, EventInput(fp, event(types.EventFiring, at), c.now))
			require.NoError(t, err)
			require.False(t, tr.Ignored)
			require.Equal(t, c.to, tr.To)
			require.Equal(t, c.to, tr.Alert.Status)
			require.Equal(t, c.notify, tr.Notify)
			require.Equal(t, c.newIncident, tr.NewIncident)
			require.Equal(t, types.TriggerEvent, tr.Trigger)
			require.Equal(t, at, tr.Alert.LastSeenAt)
			require.False(t, tr.Alert.LastSeenAt.Before(tr.Alert.FirstSeenAt))
			require.Equal(t, before, c.current, "Apply must not modify its input")

			if c.newIncident {
				require.NotEqual(t, "incident-0", tr.Alert.IncidentID)
				require.Equal(t, at, tr.Alert.FirstSeenAt)
				require.Nil(t, tr.Alert.ResolvedAt)
			} else {
				require.Equal(t, "incident-0", tr.Alert.IncidentID)
			}
			if tr.To == types.StatusFiring {
				require.Nil(t, tr.Alert.SilenceUntil)
			}
		})
	}
}

func TestResolvedEvents(t *testing.T) {
	m := newTestMachine()
	at := t0.Add(10 * time.Minute)

	for _, status := range []types.AlertStatus{types.StatusFiring, types.StatusSilenced} {
		tr, err := m.Apply(alert(status), EventInput(fp, event(types.EventResolved, at), at))
		require.NoError(t, err)
		require.Equal(t, status, tr.From)
		require.Equal(t, types.StatusResolved, tr.To)
		require.True(t, tr.Notify)
		require.Nil(t, tr.Alert.SilenceUntil)
		require.NotNil(t, tr.Alert.ResolvedAt)
		require.Equal(t, at, *tr.Alert.ResolvedAt)
	}

	tr, err := m.Apply(nil, EventInput(fp, event(types.EventResolved, at), at))
	require.NoError(t, err)
	require.True(t, tr.Ignored)
	require.Nil(t, tr.Alert)

	tr, err = m.Apply(alert(types.StatusResolved), EventInput(fp, event(types.EventResolved, at), at))
	require.NoError(t, err)
	require.True(t, tr.Ignored)
	require.False(t, tr.Notify)
	require.Equal(t, at, tr.Alert.LastSeenAt)
}

func TestSilence(t *testing.T) {
	m := newTestMachine()
	now := t0.Add(3 * time.Minute)

	tr, err := m.Apply(alert(types.StatusFiring), SilenceInput(fp, time.Hour, now))
	require.NoError(t, err)
	require.Equal(t, types.StatusSilenced, tr.To)
	require.False(t, tr.Notify)
	require.Equal(t, types.TriggerSilence, tr.Trigger)
	require.Equal(t, now.Add(time.Hour), *tr.Alert.SilenceUntil)

	// Silencing again replaces the expiry.
	tr, err = m.Apply(tr.Alert, SilenceInput(fp, 2*time.Hour, now.Add(time.Minute)))
	require.NoError(t, err)
	require.Equal(t, types.StatusSilenced, tr.From)
	require.Equal(t, now.Add(time.Minute+2*time.Hour), *tr.Alert.SilenceUntil)

	_, err = m.Apply(alert(types.StatusResolved), SilenceInput(fp, time.Hour, now))
	require.ErrorIs(t, err, types.ErrInvalidTransition)

	_, err = m.Apply(alert(types.StatusFiring), SilenceInput(fp, 0, now))
	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr))

	_, err = m.Apply(nil, SilenceInput(fp, time.Hour, now))
	var nf *types.NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, fp, nf.Fingerprint)
}

func TestElapsedSilenceRearmsNotification(t *testing.T) {
	m := newTestMachine()
	notified := t0.Add(time.Minute)

	cur := alert(types.StatusFiring)
	cur.NotificationCount = 1
	cur.LastNotifiedChannels = []string{"dashboard"}
	cur.LastNotifiedAt = &notified
	cur.LastNotifiedStatus = types.StatusFiring

	tr, err := m.Apply(cur, SilenceInput(fp, time.Minute, notified))
	require.NoError(t, err)
	require.Equal(t, notified, *tr.Alert.LastNotifiedAt, "silencing keeps the notification record")
	require.Zero(t, tr.Alert.Rearms)

	at := notified.Add(2 * time.Minute)
	tr, err = m.Apply(tr.Alert, EventInput(fp, event(types.EventFiring, at), at))
	require.NoError(t, err)
	require.Equal(t, types.StatusFiring, tr.To)
	require.True(t, tr.Notify)
	require.Equal(t, 1, tr.Alert.Rearms)
	require.Nil(t, tr.Alert.LastNotifiedAt)
	require.Empty(t, tr.Alert.LastNotifiedStatus)
	require.Equal(t, 1, tr.Alert.NotificationCount)
	require.Equal(t, []string{"dashboard"}, tr.Alert.LastNotifiedChannels)

	// A later firing event within the same incident leaves the counter alone.
	tr, err = m.Apply(tr.Alert, EventInput(fp, event(types.EventFiring, at.Add(time.Second)), at.Add(time.Second)))
	require.NoError(t, err)
	require.Equal(t, 1, tr.Alert.Rearms)

	// A new incident starts over.
	resolved := tr.Alert.Clone()
	resolved.Status = types.StatusResolved
	resolved.ResolvedAt = &at
	tr, err = m.Apply(resolved, EventInput(fp, event(types.EventFiring, at.Add(time.Hour)), at.Add(time.Hour)))
	require.NoError(t, err)
	require.True(t, tr.NewIncident)
	require.Zero(t, tr.Alert.Rearms)
}

func TestManualResolve(t *testing.T) {
	m := newTestMachine()
	now := t0.Add(time.Minute)

	for _, status := range []types.AlertStatus{types.StatusFiring, types.StatusSilenced} {
		tr, err := m.Apply(alert(status), ResolveInput(fp, now))
		require.NoError(t, err)
		require.Equal(t, types.StatusResolved, tr.To)
		require.True(t, tr.Notify)
		require.Equal(t, types.TriggerResolve, tr.Trigger)
		require.Equal(t, now, *tr.Alert.ResolvedAt)
	}

	tr, err := m.Apply(alert(types.StatusResolved), ResolveInput(fp, now))
	require.NoError(t, err)
	require.True(t, tr.Ignored)
	require.False(t, tr.Notify)

	_, err = m.Apply(nil, ResolveInput(fp, now))
	var nf *types.NotFoundError
	require.True(t, errors.As(err, &nf))
}

func TestOutOfOrderEventKeepsLastSeen(t *testing.T) {
	m := newTestMachine()
	cur := alert(types.StatusFiring)
	cur.LastSeenAt = t0.Add(5 * time.Minute)

	tr, err := m.Apply(cur, EventInput(fp, event(types.EventFiring, t0.Add(time.Minute)), t0.Add(6*time.Minute)))
	require.NoError(t, err)
	require.Equal(t, t0.Add(5*time.Minute), tr.Alert.LastSeenAt)
}

func TestNewIssuesULIDs(t *testing.T) {
	m := New()
	tr, err := m.Apply(nil, EventInput(fp, event(types.EventFiring, t0), t0))
	require.NoError(t, err)
	require.Len(t, tr.Alert.IncidentID, 26)
}
