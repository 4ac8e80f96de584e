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

package notify

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/alertcore/alertcore/types"
)

// DefaultKinds maps each severity to the channel kinds it reaches when the
// routing configuration names no channels for it. A nil entry selects every
// registered channel.
var DefaultKinds = map[types.Severity][]Kind{
	types.SeverityCritical: nil,
	types.SeverityWarning:  {KindEmail, KindPushSocket},
	types.SeverityInfo:     {KindPushSocket},
}

// Registration adds a channel to the registry.
type Registration struct {
	Channel Channel
	// RateLimit caps deliveries per second. Zero disables limiting.
	RateLimit rate.Limit
	// Burst defaults to 1 when a rate limit is set.
	Burst int
}

// Target is a channel selected for delivery.
type Target struct {
	Channel Channel
	limiter *rate.Limiter
	limit   rate.Limit
	burst   int
}

// Allow reports whether the channel's rate limit admits one more delivery.
func (t *Target) Allow() bool {
	return t.limiter == nil || t.limiter.Allow()
}

// snapshot is never modified once published.
type snapshot struct {
	byID   map[string]*Target
	order  []string
	routes map[types.Severity][]string
}

func (s *snapshot) channels() []Channel {
	res := make([]Channel, 0, len(s.order))
	for _, id := range s.order {
		res = append(res, s.byID[id].Channel)
	}
	return res
}

func (s *snapshot) selectTargets(sev types.Severity) ([]*Target, error) {
	var res []*Target
	if ids, ok := s.routes[sev]; ok && len(ids) > 0 {
		for _, id := range ids {
			if t, ok := s.byID[id]; ok {
				res = append(res, t)
			}
		}
	} else {
		kinds, known := DefaultKinds[sev]
		if !known {
			return nil, &types.ConfigurationError{Severity: sev, Reason: "unknown severity"}
		}
		for _, id := range s.order {
			t := s.byID[id]
			if kinds == nil || slices.Contains(kinds, t.Channel.Kind()) {
				res = append(res, t)
			}
		}
	}
	if len(res) == 0 {
		return nil, &types.ConfigurationError{Severity: sev, Reason: "no channel resolvable"}
	}
	return res, nil
}

func (s *snapshot) validate() error {
	for sev, ids := range s.routes {
		if !sev.Valid() {
			return &types.ConfigurationError{Severity: sev, Reason: "unknown severity in routing"}
		}
		for _, id := range ids {
			if _, ok := s.byID[id]; !ok {
				return &types.ConfigurationError{Severity: sev, Reason: fmt.Sprintf("unknown channel %q", id)}
			}
		}
	}
	var errs []error
	for _, sev := range types.Severities {
		if _, err := s.selectTargets(sev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Registry holds the notification channels and the severity routing. Reads
// work on an immutable snapshot and never block. Writers build a new
// snapshot and swap it in.
type Registry struct {
	mtx  sync.Mutex
	snap *atomic.Pointer[snapshot]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{snap: atomic.NewPointer(&snapshot{byID: map[string]*Target{}})}
	return r
}

func newTarget(reg Registration, prev *Target) *Target {
	t := &Target{Channel: reg.Channel, limit: reg.RateLimit, burst: reg.Burst}
	if t.limit <= 0 {
		return t
	}
	if t.burst <= 0 {
		t.burst = 1
	}
	// Keep the token bucket across reloads that do not change the limit.
	if prev != nil && prev.limiter != nil && prev.limit == t.limit && prev.burst == t.burst {
		t.limiter = prev.limiter
	} else {
		t.limiter = rate.NewLimiter(t.limit, t.burst)
	}
	return t
}

// Replace validates regs and routes and atomically makes them the current
// configuration. routes maps a severity to channel IDs; severities missing
// from it use DefaultKinds. On success the channels that were dropped are
// returned so the caller can close them.
func (r *Registry) Replace(regs []Registration, routes map[types.Severity][]string) ([]Channel, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	old := r.snap.Load()
	next := &snapshot{
		byID:   make(map[string]*Target, len(regs)),
		routes: make(map[types.Severity][]string, len(routes)),
	}
	for _, reg := range regs {
		id := reg.Channel.ID()
		if id == "" {
			return nil, &types.ConfigurationError{Reason: "channel without id"}
		}
		if _, dup := next.byID[id]; dup {
			return nil, &types.ConfigurationError{Reason: fmt.Sprintf("duplicate channel id %q", id)}
		}
		next.byID[id] = newTarget(reg, old.byID[id])
		next.order = append(next.order, id)
	}
	for sev, ids := range routes {
		next.routes[sev] = slices.Clone(ids)
	}
	if err := next.validate(); err != nil {
		return nil, err
	}
	r.snap.Store(next)

	var dropped []Channel
	for _, id := range old.order {
		if t, ok := next.byID[id]; !ok || t.Channel != old.byID[id].Channel {
			dropped = append(dropped, old.byID[id].Channel)
		}
	}
	return dropped, nil
}

// Register adds or replaces a single channel, keeping the routing.
func (r *Registry) Register(reg Registration) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	id := reg.Channel.ID()
	if id == "" {
		return &types.ConfigurationError{Reason: "channel without id"}
	}
	old := r.snap.Load()
	next := old.clone()
	if _, ok := next.byID[id]; !ok {
		next.order = append(next.order, id)
	}
	next.byID[id] = newTarget(reg, old.byID[id])
	r.snap.Store(next)
	return nil
}

// Unregister removes a channel and reports whether it was registered.
func (r *Registry) Unregister(id string) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	old := r.snap.Load()
	if _, ok := old.byID[id]; !ok {
		return false
	}
	next := old.clone()
	delete(next.byID, id)
	next.order = slices.DeleteFunc(next.order, func(o string) bool { return o == id })
	r.snap.Store(next)
	return true
}

func (s *snapshot) clone() *snapshot {
	c := &snapshot{
		byID:   make(map[string]*Target, len(s.byID)+1),
		order:  slices.Clone(s.order),
		routes: s.routes,
	}
	for k, v := range s.byID {
		c.byID[k] = v
	}
	return c
}

// Validate returns a ConfigurationError for every severity that resolves
// to no channel.
func (r *Registry) Validate() error {
	return r.snap.Load().validate()
}

// Select returns the channels eligible for sev in registration or routing
// order.
func (r *Registry) Select(sev types.Severity) ([]*Target, error) {
	return r.snap.Load().selectTargets(sev)
}

// Get returns the channel with the given ID.
func (r *Registry) Get(id string) (Channel, bool) {
	t, ok := r.snap.Load().byID[id]
	if !ok {
		return nil, false
	}
	return t.Channel, true
}

// Channels returns all channels in registration order.
func (r *Registry) Channels() []Channel {
	return r.snap.Load().channels()
}

// Close closes every given channel that holds resources.
func Close(chs ...Channel) error {
	var errs []error
	for _, ch := range chs {
		if c, ok := ch.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close channel %q: %w", ch.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}
