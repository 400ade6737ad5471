// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package indexing

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/securamem/smem/internal/codeindex"
)

// DefaultDebounce is the default coalescing window for watch-code events.
const DefaultDebounce = 400 * time.Millisecond

// RenameWindow is how long a deleted file's digest is remembered so a
// subsequent add with the same digest is treated as a rename rather than a
// delete+reindex (spec §4.8).
const RenameWindow = 5 * time.Second

// WatchOptions configures Watch.
type WatchOptions struct {
	Options
	Debounce time.Duration
}

// pendingDelete remembers a removed file's last known digest, for rename
// detection within RenameWindow.
type pendingDelete struct {
	digest string
	at     time.Time
}

// Watch observes root for file changes and incrementally reindexes, per
// spec §4.8. It blocks until ctx is canceled.
func (o *Orchestrator) Watch(ctx context.Context, root string, opts WatchOptions) error {
	if err := opts.Options.validate(); err != nil {
		return err
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addRecursive(watcher, root, opts.Options); err != nil {
		return err
	}

	var mu sync.Mutex
	pending := make(map[string]*time.Timer)
	deleted := make(map[string]pendingDelete)
	lastContent := make(map[string]string)

	debouncedReindex := func(path string) {
		mu.Lock()
		if t, ok := pending[path]; ok {
			t.Stop()
		}
		pending[path] = time.AfterFunc(debounce, func() {
			o.handleChange(ctx, root, path, opts, deleted, lastContent, &mu)
			mu.Lock()
			delete(pending, path)
			mu.Unlock()
		})
		mu.Unlock()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			o.handleEvent(event, root, opts, debouncedReindex, deleted, &mu)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			o.logger().Warn("watch-code: watcher error", slog.String("error", err.Error()))
		}
	}
}

func (o *Orchestrator) handleEvent(event fsnotify.Event, root string, opts WatchOptions, debouncedReindex func(string), deleted map[string]pendingDelete, mu *sync.Mutex) {
	rel, err := filepath.Rel(root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	switch {
	case event.Op&fsnotify.Remove != 0 || event.Op&fsnotify.Rename != 0:
		mu.Lock()
		if digest, ok, _ := o.Engine.GetFileDigest(context.Background(), rel); ok {
			deleted[rel] = pendingDelete{digest: digest, at: time.Now()}
		}
		mu.Unlock()
		_ = o.Engine.DeleteCodeByFile(context.Background(), rel)
	case event.Op&fsnotify.Write != 0 || event.Op&fsnotify.Create != 0:
		debouncedReindex(event.Name)
	}
}

// handleChange recomputes a changed/created file's digest, skips unchanged
// content, treats a same-digest add following a recent delete as a rename,
// and otherwise reindexes normally. When lastContent holds the file's prior
// snapshot, a unified-diff summary is logged describing what changed.
func (o *Orchestrator) handleChange(ctx context.Context, root, path string, opts WatchOptions, deleted map[string]pendingDelete, lastContent map[string]string, mu *sync.Mutex) {
	info, err := os.Stat(path)
	if err != nil {
		return // file vanished before the debounce fired; the remove handler covers it
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	content, err := os.ReadFile(path)
	if err != nil {
		o.logger().Warn("watch-code: read failed", slog.String("file", rel), slog.String("error", err.Error()))
		return
	}
	digest := codeindex.ContentSha256(string(content))

	mu.Lock()
	for oldPath, pd := range deleted {
		if pd.digest == digest && time.Since(pd.at) <= RenameWindow {
			delete(deleted, oldPath)
			delete(lastContent, oldPath)
			lastContent[rel] = string(content)
			mu.Unlock()
			if _, err := o.Engine.UpdateCodeFilePath(ctx, oldPath, rel); err != nil {
				o.logger().Warn("watch-code: rename update failed", slog.String("error", err.Error()))
			}
			_ = o.Engine.SetFileDigest(ctx, rel, digest)
			return
		}
	}
	mu.Unlock()

	if prev, ok, _ := o.Engine.GetFileDigest(ctx, rel); ok && prev == digest {
		return
	}

	mu.Lock()
	previous, hadPrevious := lastContent[rel]
	lastContent[rel] = string(content)
	mu.Unlock()
	if hadPrevious {
		if summary, diffErr := unifiedDiff(rel, previous, string(content)); diffErr == nil && summary != "" {
			o.logger().Debug("watch-code: change summary", slog.String("file", rel), slog.String("diff", summary))
		}
	}

	fe := codeindex.FileEntry{AbsPath: path, RelPath: rel, Size: info.Size()}
	localOpts := opts.Options
	localOpts.Diff = false
	if _, _, err := o.indexOneFile(ctx, fe, localOpts); err != nil {
		o.logger().Warn("watch-code: reindex failed", slog.String("file", rel), slog.String("error", err.Error()))
	}
}

// addRecursive registers every non-excluded directory under root with the
// watcher; fsnotify has no native recursive mode.
func addRecursive(watcher *fsnotify.Watcher, root string, opts Options) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if codeindex.ShouldSkipDir(rel, opts.Exclude, false) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
