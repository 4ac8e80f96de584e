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

// Package dedup decides whether an inbound alert event repeats state that is
// already known.
package dedup

import (
	"time"

	"github.com/alertcore/alertcore/types"
)

// DefaultWindow is used when no positive window is configured.
const DefaultWindow = 5 * time.Minute

// Deduplicator classifies events against the stored state of their
// fingerprint. It holds no state of its own and is safe for concurrent use.
type Deduplicator struct {
	window time.Duration
}

// New returns a Deduplicator suppressing repeats within window.
func New(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Deduplicator{window: window}
}

// Window returns the dedup window.
func (d *Deduplicator) Window() time.Duration {
	return d.window
}

// IsDuplicate reports whether e repeats the stored status of existing within
// the dedup window. existing must be the stored record, not a normalized
// read: an elapsed silence is still SILENCED here so that the first firing
// event after it is processed as a re-fire.
func (d *Deduplicator) IsDuplicate(e *types.AlertEvent, existing *types.ActiveAlert) bool {
	if existing == nil {
		return false
	}
	if existing.Status != e.Status.AlertStatus() {
		return false
	}
	return e.ReceivedAt.Sub(existing.LastSeenAt) < d.window
}
