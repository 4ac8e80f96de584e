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

// Package state implements the lifecycle of an active alert: FIRING,
// SILENCED and RESOLVED, and the transitions between them.
package state

import (
	"fmt"
	"maps"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/common/model"

	"github.com/alertcore/alertcore/types"
)

// InputKind identifies what is applied to an alert.
type InputKind int

const (
	// InputFiring is a firing event from the alert source.
	InputFiring InputKind = iota
	// InputResolved is a resolved event from the alert source.
	InputResolved
	// InputSilence is a manual silence.
	InputSilence
	// InputResolve is a manual resolution.
	InputResolve
)

func (k InputKind) String() string {
	switch k {
	case InputFiring:
		return "firing"
	case InputResolved:
		return "resolved"
	case InputSilence:
		return "silence"
	case InputResolve:
		return "resolve"
	}
	return fmt.Sprintf("InputKind(%d)", int(k))
}

// Input is an event or operation applied to the alert of one fingerprint.
type Input struct {
	Kind        InputKind
	Fingerprint model.Fingerprint
	Event       *types.AlertEvent
	Duration    time.Duration
	// Now is the time silences are evaluated against.
	Now time.Time
}

// EventInput wraps an inbound event observed at now.
func EventInput(fp model.Fingerprint, e *types.AlertEvent, now time.Time) Input {
	kind := InputFiring
	if e.Status == types.EventResolved {
		kind = InputResolved
	}
	return Input{Kind: kind, Fingerprint: fp, Event: e, Now: now}
}

// SilenceInput silences fp for d starting at now.
func SilenceInput(fp model.Fingerprint, d time.Duration, now time.Time) Input {
	return Input{Kind: InputSilence, Fingerprint: fp, Duration: d, Now: now}
}

// ResolveInput resolves fp by hand at now.
func ResolveInput(fp model.Fingerprint, now time.Time) Input {
	return Input{Kind: InputResolve, Fingerprint: fp, Now: now}
}

// Transition is the outcome of applying an Input.
type Transition struct {
	// From is empty if no alert existed.
	From types.AlertStatus
	To   types.AlertStatus
	// Alert is the next stored state. It is never the value passed to Apply.
	Alert   *types.ActiveAlert
	Trigger types.Trigger
	// Notify is set when the transition must be announced on the
	// notification channels.
	Notify bool
	// NewIncident is set when a new incident starts for the fingerprint.
	NewIncident bool
	// Ignored is set when the input has no effect on the lifecycle. Ignored
	// transitions are not recorded in the history.
	Ignored bool
}

// Machine applies inputs to alerts. It is stateless apart from the incident
// ID source and safe for concurrent use.
type Machine struct {
	newID func() string
}

// New returns a Machine issuing ULID incident IDs.
func New() *Machine {
	return &Machine{newID: func() string { return ulid.Make().String() }}
}

// Apply computes the transition of current under in. current is nil when the
// fingerprint has no alert; it is never modified.
func (m *Machine) Apply(current *types.ActiveAlert, in Input) (*Transition, error) {
	switch in.Kind {
	case InputFiring:
		return m.fire(current, in), nil
	case InputResolved:
		return m.resolvedEvent(current, in), nil
	case InputSilence:
		return m.silence(current, in)
	case InputResolve:
		return m.resolve(current, in)
	}
	return nil, fmt.Errorf("unknown input kind %v", in.Kind)
}

func from(current *types.ActiveAlert) types.AlertStatus {
	if current == nil {
		return ""
	}
	return current.Status
}

func (m *Machine) fire(current *types.ActiveAlert, in Input) *Transition {
	e := in.Event
	t := &Transition{From: from(current), Trigger: types.TriggerEvent}

	switch {
	case current == nil:
		t.Alert = &types.ActiveAlert{
			Fingerprint: in.Fingerprint,
			Status:      types.StatusFiring,
			FirstSeenAt: e.ReceivedAt,
			LastSeenAt:  e.ReceivedAt,
		}
		m.startIncident(t)

	case current.Status == types.StatusResolved:
		next := current.Clone()
		next.Status = types.StatusFiring
		next.FirstSeenAt = e.ReceivedAt
		next.LastSeenAt = e.ReceivedAt
		next.ResolvedAt = nil
		next.SilenceUntil = nil
		next.NotificationCount = 0
		next.LastNotifiedChannels = nil
		next.LastNotifiedAt = nil
		next.LastNotifiedStatus = ""
		next.Rearms = 0
		t.Alert = next
		m.startIncident(t)

	case current.Silenced(in.Now):
		next := current.Clone()
		touch(next, e.ReceivedAt)
		t.Alert = next

	default:
		// FIRING, or SILENCED with an elapsed silence.
		next := current.Clone()
		if current.Status == types.StatusSilenced {
			// A silence boundary re-arms the notification guard.
			next.Rearms++
			next.LastNotifiedAt = nil
			next.LastNotifiedStatus = ""
		}
		next.Status = types.StatusFiring
		next.SilenceUntil = nil
		touch(next, e.ReceivedAt)
		t.Alert = next
		t.Notify = true
	}

	refresh(t.Alert, e)
	t.To = t.Alert.Status
	return t
}

func (m *Machine) startIncident(t *Transition) {
	t.Alert.IncidentID = m.newID()
	t.NewIncident = true
	t.Notify = true
}

func (m *Machine) resolvedEvent(current *types.ActiveAlert, in Input) *Transition {
	t := &Transition{From: from(current), Trigger: types.TriggerEvent}
	if current == nil {
		t.Ignored = true
		return t
	}
	next := current.Clone()
	touch(next, in.Event.ReceivedAt)
	if current.Status == types.StatusResolved {
		t.Alert, t.To, t.Ignored = next, current.Status, true
		return t
	}
	refresh(next, in.Event)
	markResolved(next, in.Now)
	t.Alert, t.To, t.Notify = next, types.StatusResolved, true
	return t
}

func (m *Machine) silence(current *types.ActiveAlert, in Input) (*Transition, error) {
	if current == nil {
		return nil, &types.NotFoundError{Fingerprint: in.Fingerprint}
	}
	if in.Duration <= 0 {
		return nil, &types.ValidationError{Field: "duration", Reason: fmt.Sprintf("silence duration must be positive, got %s", in.Duration)}
	}
	if current.Status == types.StatusResolved {
		return nil, fmt.Errorf("cannot silence resolved alert %s: %w", in.Fingerprint, types.ErrInvalidTransition)
	}
	next := current.Clone()
	until := in.Now.Add(in.Duration)
	next.Status = types.StatusSilenced
	next.SilenceUntil = &until
	return &Transition{
		From:    current.Status,
		To:      types.StatusSilenced,
		Alert:   next,
		Trigger: types.TriggerSilence,
	}, nil
}

func (m *Machine) resolve(current *types.ActiveAlert, in Input) (*Transition, error) {
	if current == nil {
		return nil, &types.NotFoundError{Fingerprint: in.Fingerprint}
	}
	next := current.Clone()
	t := &Transition{From: current.Status, To: types.StatusResolved, Alert: next, Trigger: types.TriggerResolve}
	if current.Status == types.StatusResolved {
		t.Ignored = true
		return t, nil
	}
	markResolved(next, in.Now)
	t.Notify = true
	return t, nil
}

func markResolved(a *types.ActiveAlert, now time.Time) {
	a.Status = types.StatusResolved
	a.SilenceUntil = nil
	a.ResolvedAt = &now
}

// touch moves LastSeenAt forward. Out of order events never move it back.
func touch(a *types.ActiveAlert, seen time.Time) {
	if seen.After(a.LastSeenAt) {
		a.LastSeenAt = seen
	}
}

// refresh copies the descriptive fields of the latest event onto the alert.
func refresh(a *types.ActiveAlert, e *types.AlertEvent) {
	a.Name = e.Name
	a.Severity = e.Severity
	a.Labels = e.Labels.Clone()
	if len(e.Annotations) > 0 {
		a.Annotations = maps.Clone(e.Annotations)
	}
}
