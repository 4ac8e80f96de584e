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

package types

import (
	"errors"
	"fmt"

	"github.com/prometheus/common/model"
)

// ErrInvalidTransition is returned when an operation is not allowed from the
// current state of an alert, such as silencing a resolved alert.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidationError reports a malformed inbound alert event.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid alert event: %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an operation against a fingerprint that has no
// active alert.
type NotFoundError struct {
	Fingerprint model.Fingerprint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("alert %s not found", e.Fingerprint)
}

// ChannelDispatchError reports a channel that failed every delivery attempt.
type ChannelDispatchError struct {
	ChannelID string
	Attempts  int
	Err       error
}

func (e *ChannelDispatchError) Error() string {
	return fmt.Sprintf("channel %q failed after %d attempt(s): %v", e.ChannelID, e.Attempts, e.Err)
}

func (e *ChannelDispatchError) Unwrap() error { return e.Err }

// StoreUnavailableError reports that the backing store could not serve a
// request. The state of the affected alert is unknown and the caller should
// retry the whole operation.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// ConfigurationError reports a routing configuration that cannot deliver
// notifications, for example a severity without any channel.
type ConfigurationError struct {
	Severity Severity
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Severity == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error for severity %q: %s", e.Severity, e.Reason)
}
