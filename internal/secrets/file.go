// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileStore reads secrets from a directory, one <id>.json file per secret.
// Contents are cached after first read; a filesystem watcher invalidates
// cache entries when secret files are rotated or removed.
type FileStore struct {
	dir     string
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu    sync.RWMutex
	cache map[string][]byte
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a directory-backed secret store and starts watching
// the directory for rotations. Close releases the watcher.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create secret watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch secret directory %s: %w", dir, err)
	}

	s := &FileStore{
		dir:     dir,
		logger:  logger,
		watcher: watcher,
		cache:   make(map[string][]byte),
	}
	go s.watch()
	return s, nil
}

// GetSecret returns the cached secret contents, reading the file on first
// use.
func (s *FileStore) GetSecret(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	cached, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, id)
		}
		return nil, fmt.Errorf("failed to read secret %s: %w", id, err)
	}

	s.mu.Lock()
	s.cache[id] = data
	s.mu.Unlock()
	return data, nil
}

// Close stops the directory watcher.
func (s *FileStore) Close() error {
	return s.watcher.Close()
}

// watch drops cache entries whose backing file changed. Runs until the
// watcher is closed.
func (s *FileStore) watch() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			id := strings.TrimSuffix(filepath.Base(event.Name), ".json")
			s.mu.Lock()
			if _, ok := s.cache[id]; ok {
				delete(s.cache, id)
				s.logger.Info("secret rotated, cache entry dropped", slog.String("secret_id", id))
			}
			s.mu.Unlock()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("secret watcher error", slog.Any("error", err))
		}
	}
}
