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

// Package notifytest provides a scriptable notify.Channel for tests.
package notifytest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alertcore/alertcore/notify"
)

// ErrSend is returned by failing Channel deliveries.
var ErrSend = errors.New("send failed")

// Channel records the messages it is asked to deliver.
type Channel struct {
	id   string
	kind notify.Kind

	mtx sync.Mutex
	// failFirst makes the first n deliveries fail; a negative value fails
	// all of them.
	failFirst int
	retry     bool
	block     bool
	msgs      []*notify.Message
	calls     int
}

// New returns a Channel that accepts every message.
func New(id string, kind notify.Kind) *Channel {
	return &Channel{id: id, kind: kind, retry: true}
}

// FailFirst makes the first n deliveries fail with a retryable error. A
// negative n fails every delivery.
func (c *Channel) FailFirst(n int) *Channel {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.failFirst = n
	return c
}

// Permanent makes failures non-retryable.
func (c *Channel) Permanent() *Channel {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.retry = false
	return c
}

// Block makes deliveries wait until their context is done.
func (c *Channel) Block() *Channel {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.block = true
	return c
}

func (c *Channel) ID() string        { return c.id }
func (c *Channel) Kind() notify.Kind { return c.kind }

// Notify implements notify.Channel.
func (c *Channel) Notify(ctx context.Context, msg *notify.Message) (bool, error) {
	c.mtx.Lock()
	c.calls++
	n, block, fail, retry := c.calls, c.block, c.failFirst, c.retry
	c.mtx.Unlock()

	if block {
		<-ctx.Done()
		return true, ctx.Err()
	}
	if fail < 0 || n <= fail {
		return retry, ErrSend
	}
	c.mtx.Lock()
	c.msgs = append(c.msgs, msg)
	c.mtx.Unlock()
	return false, nil
}

// Calls returns how many deliveries were attempted.
func (c *Channel) Calls() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.calls
}

// Messages returns the delivered messages.
func (c *Channel) Messages() []*notify.Message {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]*notify.Message(nil), c.msgs...)
}

// NoSleep is a notify.SleepFunc that returns immediately.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
