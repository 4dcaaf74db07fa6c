package ib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/sjc5/kit/pkg/typed"
	"golang.org/x/sync/errgroup"
)

// OnBuildFunc is called after every build Watch runs.
type OnBuildFunc func(*Result, error)

// Watch builds once, then rebuilds whenever an input (or a file matching
// WatchPatterns) changes, until ctx is done. Every rebuild is a full build.
// Build failures are logged and watching continues.
func (c *Config) Watch(ctx context.Context, onBuild OnBuildFunc) error {
	if err := c.Validate(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating watcher: %v", err)
	}
	defer watcher.Close()

	if err := c.watchCSSDir(watcher); err != nil {
		return err
	}

	c.Logger.Infof("watching %d files in %s", len(c.Files), c.getCleanDirs().CSS)

	c.runWatchedBuild(ctx, onBuild)

	g, ctx := errgroup.WithContext(ctx)
	pending := make(chan struct{}, 1)

	debouncer := newDebouncer(c.Debounce, func(events []fsnotify.Event) {
		c.Logger.Infof("change detected (%d events), rebuilding", len(events))
		select {
		case pending <- struct{}{}:
		default: // a rebuild is already queued
		}
	})
	defer debouncer.stop()

	// event loop
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case evt, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if evt.Has(fsnotify.Create) {
					c.handleCreatedDir(watcher, evt.Name)
				}
				if c.getIsRelevantEvent(evt) {
					debouncer.addEvent(evt)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				c.Logger.Errorf("watcher error: %v", err)
			}
		}
	})

	// builder
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-pending:
				c.runWatchedBuild(ctx, onBuild)
			}
		}
	})

	return g.Wait()
}

func (c *Config) runWatchedBuild(ctx context.Context, onBuild OnBuildFunc) {
	result, err := c.Build(ctx)
	if err != nil {
		c.Logger.Errorf("build failed: %v", err)
	}
	if onBuild != nil {
		onBuild(result, err)
	}
}

// watchCSSDir watches CSSDir and every directory below it. While CSSDir does
// not exist, its nearest existing ancestor is watched so its creation is seen.
func (c *Config) watchCSSDir(watcher *fsnotify.Watcher) error {
	cssDir := c.getCleanDirs().CSS
	if getIsDir(cssDir) {
		return addDirs(watcher, cssDir)
	}

	dir := cssDir
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return fmt.Errorf("error watching %s: no existing parent directory", cssDir)
		}
		dir = parent
		if getIsDir(dir) {
			c.Logger.Errorf("%s does not exist yet, watching %s until it does", cssDir, dir)
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("error adding directory to watcher: %v", err)
			}
			return nil
		}
	}
}

// handleCreatedDir starts watching a directory created inside CSSDir, or
// moves one level closer to CSSDir when one of its missing ancestors appears.
func (c *Config) handleCreatedDir(watcher *fsnotify.Watcher, path string) {
	if !getIsDir(path) {
		return
	}
	path = filepath.Clean(path)
	cssDir := c.getCleanDirs().CSS

	var err error
	switch {
	case getIsWithin(cssDir, path):
		err = addDirs(watcher, path)
	case getIsWithin(path, cssDir):
		err = c.watchCSSDir(watcher)
	}
	if err != nil {
		c.Logger.Errorf("error watching new directory %s: %v", path, err)
	}
}

func addDirs(watcher *fsnotify.Watcher, path string) error {
	return filepath.Walk(path, func(walkedPath string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("error walking path: %v", err)
		}
		if info.IsDir() {
			if err := watcher.Add(walkedPath); err != nil {
				return fmt.Errorf("error adding directory to watcher: %v", err)
			}
		}
		return nil
	})
}

func getIsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// getIsWithin reports whether path is dir or below it.
func getIsWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (c *Config) getIsRelevantEvent(evt fsnotify.Event) bool {
	isSolelyCHMOD := !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) &&
		!evt.Has(fsnotify.Remove) && !evt.Has(fsnotify.Rename)
	if isSolelyCHMOD {
		return false
	}

	name := filepath.Clean(evt.Name)
	if name == c.ConcatenatedPath() || name == c.MinifiedPath() {
		return false
	}
	if ok, _ := filepath.Match(tmpFilePattern, filepath.Base(name)); ok {
		return false
	}

	for _, p := range c.InputPaths() {
		if name == p {
			return true
		}
	}

	rel, err := filepath.Rel(c.getCleanDirs().CSS, name)
	if err != nil {
		return false
	}
	for _, pattern := range c.WatchPatterns {
		if c.getIsMatch(pattern, rel) {
			return true
		}
	}
	return false
}

var matchResults = typed.SyncMap[string, bool]{}

func (c *Config) getIsMatch(pattern string, path string) bool {
	combined := pattern + "\x00" + path

	if hit, isCached := matchResults.Load(combined); isCached {
		return hit
	}

	matches, err := doublestar.Match(filepath.ToSlash(pattern), filepath.ToSlash(path))
	if err != nil {
		c.Logger.Errorf("error matching pattern %q: %v", pattern, err)
		return false
	}

	actualValue, _ := matchResults.LoadOrStore(combined, matches)
	return actualValue
}

type debouncer struct {
	mu     sync.Mutex
	delay  time.Duration
	events []fsnotify.Event
	timer  *time.Timer
	flush  func([]fsnotify.Event)
}

func newDebouncer(delay time.Duration, flush func([]fsnotify.Event)) *debouncer {
	return &debouncer{delay: delay, flush: flush}
}

func (d *debouncer) addEvent(evt fsnotify.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.events = append(d.events, evt)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *debouncer) fire() {
	d.mu.Lock()
	events := d.events
	d.events = nil
	d.timer = nil
	d.mu.Unlock()

	if len(events) > 0 {
		d.flush(events)
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.events = nil
}
