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

package manager

import (
	"sync"

	"github.com/prometheus/common/model"
)

// fpLocks serializes work on a fingerprint. Entries are reference counted
// and dropped once no goroutine holds or waits for them, so unrelated
// fingerprints never contend.
type fpLocks struct {
	mtx   sync.Mutex
	locks map[model.Fingerprint]*fpLock
}

type fpLock struct {
	sync.Mutex
	refs int
}

func newFPLocks() *fpLocks {
	return &fpLocks{locks: make(map[model.Fingerprint]*fpLock)}
}

// lock blocks until fp is held by the caller and returns the function
// releasing it.
func (l *fpLocks) lock(fp model.Fingerprint) func() {
	l.mtx.Lock()
	fl, ok := l.locks[fp]
	if !ok {
		fl = &fpLock{}
		l.locks[fp] = fl
	}
	fl.refs++
	l.mtx.Unlock()

	fl.Lock()
	return func() {
		fl.Unlock()
		l.mtx.Lock()
		fl.refs--
		if fl.refs == 0 {
			delete(l.locks, fp)
		}
		l.mtx.Unlock()
	}
}

func (l *fpLocks) len() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return len(l.locks)
}
