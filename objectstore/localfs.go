/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// LocalFS is a development/test Store backed by a directory tree: object
// keys map to file paths under root, with '/' kept as the path
// separator. rename uses os.Rename, which is atomic on the same
// filesystem (the single-writer assumption noted in the design's open
// questions).
type LocalFS struct {
	root string

	watchMu  sync.Mutex
	watcher  *fsnotify.Watcher
	watchers map[string][]chan string // prefix -> subscribers notified with the changed key
}

// NewLocalFS returns a Store rooted at dir, creating it if necessary.
func NewLocalFS(dir string) (*LocalFS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &IoError{Key: dir, Err: err}
	}
	return &LocalFS{root: dir, watchers: map[string][]chan string{}}, nil
}

func (l *LocalFS) path(key string) string {
	clean := filepath.Clean("/" + key)
	return filepath.Join(l.root, clean)
}

func (l *LocalFS) Put(_ context.Context, key string, data []byte) error {
	p := l.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return &IoError{Key: key, Err: err}
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &IoError{Key: key, Err: err}
	}
	if err := os.Rename(tmp, p); err != nil {
		return &IoError{Key: key, Err: err}
	}
	l.notify(key)
	return nil
}

func (l *LocalFS) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(l.path(key))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{Key: key}
	} else if err != nil {
		return nil, &IoError{Key: key, Err: err}
	}
	return data, nil
}

func (l *LocalFS) Head(_ context.Context, key string) (Meta, error) {
	info, err := os.Stat(l.path(key))
	if os.IsNotExist(err) {
		return Meta{}, &NotFoundError{Key: key}
	} else if err != nil {
		return Meta{}, &IoError{Key: key, Err: err}
	}
	return Meta{Key: key, SizeBytes: info.Size(), CreatedAtMs: uint64(info.ModTime().UnixMilli())}, nil
}

func (l *LocalFS) List(_ context.Context, prefix string, _ string) (ListResult, error) {
	var out []Meta
	walkRoot := l.path(prefix)
	base := filepath.Dir(walkRoot)
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return ListResult{}, nil
	}
	err := filepath.Walk(l.root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, relErr := filepath.Rel(l.root, p)
		if relErr != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			out = append(out, Meta{Key: key, SizeBytes: info.Size(), CreatedAtMs: uint64(info.ModTime().UnixMilli())})
		}
		return nil
	})
	if err != nil {
		return ListResult{}, &IoError{Key: prefix, Err: err}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return ListResult{Objects: out}, nil
}

func (l *LocalFS) Delete(_ context.Context, key string) error {
	err := os.Remove(l.path(key))
	if err != nil && !os.IsNotExist(err) {
		return &IoError{Key: key, Err: err}
	}
	return nil
}

func (l *LocalFS) Rename(_ context.Context, from, to string) error {
	src := l.path(from)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return &NotFoundError{Key: from}
	}
	dst := l.path(to)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &IoError{Key: to, Err: err}
	}
	if err := os.Rename(src, dst); err != nil {
		return &IoError{Key: to, Err: err}
	}
	l.notify(to)
	return nil
}

// Watch returns a channel that receives the key of every object put or
// renamed under prefix (typically "{dbprefix}/manifest/"), so a recovery
// coordinator can react to manifest publication instead of polling.
// Calling the returned stop function ends the watch and closes the channel.
func (l *LocalFS) Watch(prefix string) (ch <-chan string, stop func(), err error) {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()

	if l.watcher == nil {
		w, werr := fsnotify.NewWatcher()
		if werr != nil {
			return nil, nil, &IoError{Key: prefix, Err: werr}
		}
		if addErr := w.Add(l.root); addErr != nil {
			w.Close()
			return nil, nil, &IoError{Key: prefix, Err: addErr}
		}
		l.watcher = w
		go l.pump()
	}

	out := make(chan string, 16)
	l.watchers[prefix] = append(l.watchers[prefix], out)
	stopFn := func() {
		l.watchMu.Lock()
		defer l.watchMu.Unlock()
		subs := l.watchers[prefix]
		for i, c := range subs {
			if c == out {
				l.watchers[prefix] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(out)
	}
	return out, stopFn, nil
}

func (l *LocalFS) pump() {
	for event := range l.watcher.Events {
		rel, err := filepath.Rel(l.root, event.Name)
		if err != nil {
			continue
		}
		l.notify(filepath.ToSlash(rel))
	}
}

func (l *LocalFS) notify(key string) {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	for prefix, subs := range l.watchers {
		if strings.HasPrefix(key, prefix) {
			for _, ch := range subs {
				select {
				case ch <- key:
				default:
				}
			}
		}
	}
}

// Close releases the directory watcher, if one was ever started.
func (l *LocalFS) Close() error {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
