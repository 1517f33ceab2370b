package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrAgentNotFound is matched by errors.Is on the error returned by Get.
var ErrAgentNotFound = errors.New("agent not found")

// NotFoundError names the missing agent and the ids that do exist.
type NotFoundError struct {
	ID        string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("agent %q not found; available agents: [%s]", e.ID, strings.Join(e.Available, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrAgentNotFound }

// Catalog holds the agents defined in a directory. It is empty until the
// first Reload.
type Catalog struct {
	dir    string
	logger *slog.Logger

	mu     sync.RWMutex
	agents map[string]*Definition
}

func NewCatalog(dir string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{dir: dir, logger: logger, agents: map[string]*Definition{}}
}

// Reload rescans the directory. Any invalid file fails the whole reload and
// the previous catalog stays in place.
func (c *Catalog) Reload() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read agents dir %s: %w", c.dir, err)
	}

	next := make(map[string]*Definition)
	for _, e := range entries {
		if e.IsDir() || !isAgentFile(e.Name()) {
			continue
		}
		def, err := ParseFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			return err
		}
		if _, dup := next[def.ID]; dup {
			return fmt.Errorf("agent %q defined more than once in %s", def.ID, c.dir)
		}
		next[def.ID] = def
	}

	c.mu.Lock()
	c.agents = next
	c.mu.Unlock()

	c.logger.Info("agent catalog loaded", "dir", c.dir, "agents", len(next))
	return nil
}

func (c *Catalog) Get(id string) (*Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.agents[id]
	if !ok {
		return nil, &NotFoundError{ID: id, Available: c.idsLocked()}
	}
	return def, nil
}

// List returns all agents sorted by id.
func (c *Catalog) List() []*Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Definition, 0, len(c.agents))
	for _, id := range c.idsLocked() {
		out = append(out, c.agents[id])
	}
	return out
}

func (c *Catalog) idsLocked() []string {
	ids := make([]string, 0, len(c.agents))
	for id := range c.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Watch reloads the catalog whenever an agent file in the directory changes,
// until ctx is done.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch agents dir %s: %w", c.dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isAgentFile(event.Name) || event.Has(fsnotify.Chmod) {
					continue
				}
				c.logger.Info("agent file changed, reloading", "file", event.Name, "op", event.Op.String())
				if err := c.Reload(); err != nil {
					c.logger.Error("failed to reload agent catalog", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}

func isAgentFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yml" || ext == ".yaml"
}
