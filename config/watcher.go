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
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchSettle coalesces the burst of events editors produce for one save.
const watchSettle = 250 * time.Millisecond

// Watcher triggers a reload whenever the configuration file changes.
type Watcher struct {
	fileName string
	reload   func() error
	logger   *slog.Logger
}

// NewFileWatcher returns a Watcher calling reload on changes to fileName.
func NewFileWatcher(fileName string, reload func() error, l *slog.Logger) *Watcher {
	return &Watcher{
		fileName: filepath.Clean(fileName),
		reload:   reload,
		logger:   l,
	}
}

// Watch blocks until ctx is canceled. The containing directory is watched
// rather than the file itself: saving with most editors replaces the file,
// after which a watch on the old inode would be lost.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.fileName)); err != nil {
		return err
	}

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.fileName || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("Config file changed", "event", ev)
			if timer == nil {
				timer = time.NewTimer(watchSettle)
			} else {
				timer.Reset(watchSettle)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			w.logger.Info("Config file changed, attempting reload", "file", w.fileName)
			if err := w.reload(); err != nil {
				w.logger.Error("Error reloading config", "err", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Error watching config", "err", err)
		}
	}
}
