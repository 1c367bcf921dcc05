package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"ai-datalab/internal/logging"
)

var ErrOutsideDataDir = errors.New("path escapes data directory")

// Catalog lists the datasets available in the data directory. While Watch
// runs the listing is cached and refreshed on filesystem changes; otherwise
// every List call rescans the directory.
type Catalog struct {
	dir     string
	pattern string
	log     *zap.Logger

	mu       sync.RWMutex
	files    []string
	watching bool
}

func NewCatalog(dir, pattern string, logger *zap.Logger) *Catalog {
	if pattern == "" {
		pattern = "*.csv"
	}
	return &Catalog{dir: dir, pattern: pattern, log: logging.OrNop(logger).Named("catalog")}
}

func (c *Catalog) Dir() string { return c.dir }

// List returns dataset names relative to the data directory, sorted.
func (c *Catalog) List() ([]string, error) {
	c.mu.RLock()
	if c.watching {
		out := append([]string(nil), c.files...)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()
	return c.scan()
}

// First returns the dataset used when a request names none.
func (c *Catalog) First() (string, bool, error) {
	files, err := c.List()
	if err != nil || len(files) == 0 {
		return "", false, err
	}
	return files[0], true, nil
}

// Resolve maps a dataset name to a path inside the data directory.
func (c *Catalog) Resolve(name string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %s", ErrOutsideDataDir, name)
	}
	return filepath.Join(c.dir, name), nil
}

func (c *Catalog) scan() ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(c.dir), c.pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", c.dir, err)
	}
	for i, m := range matches {
		matches[i] = filepath.FromSlash(m)
	}
	sort.Strings(matches)
	return matches, nil
}

func (c *Catalog) refresh() {
	files, err := c.scan()
	if err != nil {
		c.log.Warn("dataset rescan failed", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.files = files
	c.mu.Unlock()
	c.log.Debug("dataset listing refreshed", zap.Int("files", len(files)))
}

// Watch keeps the cached listing in sync with the data directory until ctx
// is done. Subdirectories are watched too so recursive patterns stay fresh.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", c.dir, err)
	}

	c.refresh()
	c.mu.Lock()
	c.watching = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.watching = false
		c.mu.Unlock()
	}()
	c.log.Info("watching data directory", zap.String("dir", c.dir), zap.String("pattern", c.pattern))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
					if err := watcher.Add(ev.Name); err != nil {
						c.log.Warn("failed to watch new directory", zap.String("dir", ev.Name), zap.Error(err))
					}
				}
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				c.refresh()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.log.Warn("watcher error", zap.Error(err))
		}
	}
}

// Watching reports whether List is served from the watched cache.
func (c *Catalog) Watching() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watching
}
