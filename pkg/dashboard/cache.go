package dashboard

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/agentic-turing/atm/pkg/logger"
)

// reportCache keeps report files in memory until the watcher sees them change
type reportCache struct {
	dir string

	readFile func(string) ([]byte, error)

	mu      sync.RWMutex
	entries map[string][]byte
	// generation is bumped by every invalidation
	generation uint64
}

func newReportCache(dir string) *reportCache {
	return &reportCache{dir: dir, readFile: os.ReadFile, entries: make(map[string][]byte)}
}

// get returns the content of the report called name, reading it from disk on
// a miss. A read that races with an invalidation is returned but not cached.
func (c *reportCache) get(name string) ([]byte, error) {
	c.mu.RLock()
	data, ok := c.entries[name]
	gen := c.generation
	c.mu.RUnlock()
	if ok {
		return data, nil
	}

	data, err := c.readFile(filepath.Join(c.dir, name))
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.generation == gen {
		c.entries[name] = data
	}
	c.mu.Unlock()
	return data, nil
}

func (c *reportCache) invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.generation++
	c.mu.Unlock()
}

func (c *reportCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// watch drops cache entries whose files change until ctx is done
func (c *reportCache) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return errors.Wrapf(err, "failed to watch %s", c.dir)
	}
	log := logger.G(ctx).WithField("dir", c.dir)
	log.Debug("watching results directory")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				name := filepath.Base(event.Name)
				c.invalidate(name)
				log.WithField("report", name).Debug("report cache invalidated")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("file watcher error")
		}
	}
}
