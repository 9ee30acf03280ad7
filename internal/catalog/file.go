package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// FileCatalog reads items from a YAML file, reloading it when it changes.
type FileCatalog struct {
	logger zerolog.Logger
	path   string

	mu      sync.Mutex
	modTime time.Time
	items   []Item
}

type fileContents struct {
	Items []Item `yaml:"items"`
}

func NewFile(path string) *FileCatalog {
	return &FileCatalog{
		logger: log.With().Str("module", "catalog").Str("submodule", "file").Logger(),
		path:   path,
	}
}

func (c *FileCatalog) List(ctx context.Context) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := os.Stat(c.path)
	if err != nil {
		return nil, err
	}

	if c.items == nil || !info.ModTime().Equal(c.modTime) {
		if err := c.loadLocked(); err != nil {
			return nil, err
		}
		c.modTime = info.ModTime()
	}

	return append([]Item{}, c.items...), nil
}

func (c *FileCatalog) Get(ctx context.Context, id string) (*Item, error) {
	items, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	return find(items, id)
}

func (c *FileCatalog) loadLocked() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}

	contents := fileContents{}
	if err := yaml.Unmarshal(data, &contents); err != nil {
		return fmt.Errorf("unable to parse catalog %s: %w", c.path, err)
	}

	c.items = contents.Items
	if c.items == nil {
		c.items = []Item{}
	}

	c.logger.Info().Str("path", c.path).Int("items", len(c.items)).Msg("catalog loaded")
	return nil
}

func (c *FileCatalog) Update(ctx context.Context, id string, fn func(item *Item)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return errors.New("empty item id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// always start from what is on disk
	if err := c.loadLocked(); errors.Is(err, os.ErrNotExist) {
		c.items = []Item{}
	} else if err != nil {
		return err
	}

	index := -1
	for i := range c.items {
		if c.items[i].ID == id {
			index = i
			break
		}
	}

	if index < 0 {
		c.items = append(c.items, Item{ID: id})
		index = len(c.items) - 1
	}

	fn(&c.items[index])
	c.items[index].ID = id

	data, err := yaml.Marshal(fileContents{Items: c.items})
	if err != nil {
		return err
	}

	if err := c.writeLocked(data); err != nil {
		// reload on next read
		c.items = nil
		return fmt.Errorf("unable to write catalog %s: %w", c.path, err)
	}

	c.logger.Info().Str("id", id).Str("status", c.items[index].Status).Msg("catalog item updated")
	return nil
}

func (c *FileCatalog) writeLocked(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(c.path), "."+filepath.Base(c.path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return err
	}

	info, err := os.Stat(c.path)
	if err != nil {
		return err
	}
	c.modTime = info.ModTime()
	return nil
}
