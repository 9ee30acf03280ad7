package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

var (
	ErrNotFound    = errors.New("item not found")
	ErrNotPlayable = errors.New("item is not ready for playback")
	ErrReadOnly    = errors.New("catalog is read only")
)

const (
	StatusReady      = "READY"
	StatusProcessing = "PROCESSING"
	StatusSkipped    = "SKIPPED"
	StatusFailed     = "FAILED_TRANSCODE"

	DefaultProcessedPath = "processed"
	DefaultManifestName  = "master.m3u8"
)

type Item struct {
	ID           string `json:"id" yaml:"id"`
	Title        string `json:"title" yaml:"title"`
	Synopsis     string `json:"synopsis" yaml:"synopsis"`
	ThumbKey     string `json:"thumb_key" yaml:"thumb_key"`
	ThumbnailURL string `json:"thumbnailUrl" yaml:"thumbnail_url"`
	Status       string `json:"status" yaml:"status"`
}

// UnmarshalJSON accepts numeric ids, the listing service emits both.
func (i *Item) UnmarshalJSON(data []byte) error {
	type item Item
	aux := struct {
		*item
		ID json.RawMessage `json:"id"`
	}{item: (*item)(i)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	id := strings.TrimSpace(string(aux.ID))
	switch {
	case id == "" || id == "null":
		i.ID = ""
	case strings.HasPrefix(id, `"`):
		if err := json.Unmarshal(aux.ID, &i.ID); err != nil {
			return fmt.Errorf("invalid item id %s: %w", id, err)
		}
	default:
		i.ID = id
	}

	return nil
}

// Playable reports whether the item finished processing.
func (i Item) Playable() bool {
	return i.Status == "" || strings.EqualFold(i.Status, StatusReady)
}

type Catalog interface {
	List(ctx context.Context) ([]Item, error)
	Get(ctx context.Context, id string) (*Item, error)
}

// Writer is a catalog that records processing progress.
type Writer interface {
	Catalog

	// Update applies fn to the item with id, adding the item when missing.
	Update(ctx context.Context, id string, fn func(item *Item)) error
}

// NewWriter opens the configured catalog for updates.
func NewWriter(config *Config) (Writer, error) {
	source, err := New(config)
	if err != nil {
		return nil, err
	}

	writer, ok := source.(Writer)
	if !ok {
		return nil, ErrReadOnly
	}
	return writer, nil
}

type Config struct {
	ListingURL    string // JSON listing endpoint
	Token         string // bearer sent to the listing endpoint
	File          string // YAML catalog, used when no listing endpoint is set
	CDNBase       string
	ProcessedPath string
	ManifestName  string
}

func (c Config) withDefaultValues() Config {
	if c.ProcessedPath == "" {
		c.ProcessedPath = DefaultProcessedPath
	}
	if c.ManifestName == "" {
		c.ManifestName = DefaultManifestName
	}
	return c
}

// ManifestURL builds <cdn>/<processed>/<id>/<manifest>.
func ManifestURL(cdnBase, processedPath, id, manifestName string) (string, error) {
	if id == "" {
		return "", errors.New("empty item id")
	}

	if processedPath == "" {
		processedPath = DefaultProcessedPath
	}
	if manifestName == "" {
		manifestName = DefaultManifestName
	}

	base, err := url.Parse(strings.TrimRight(cdnBase, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid cdn base: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid cdn base %q: scheme and host required", cdnBase)
	}

	base.Path = path.Join("/", base.Path, strings.Trim(processedPath, "/"), id, manifestName)
	return base.String(), nil
}

// New picks the listing endpoint when configured, the file otherwise.
func New(config *Config) (Catalog, error) {
	switch {
	case config.ListingURL != "":
		return NewHTTP(config.ListingURL, config.Token, nil), nil
	case config.File != "":
		return NewFile(config.File), nil
	default:
		return nil, errors.New("either a listing url or a catalog file is required")
	}
}

// Resolver turns catalog ids into manifest addresses.
type Resolver struct {
	catalog Catalog
	config  Config
}

func NewResolver(catalog Catalog, config *Config) *Resolver {
	return &Resolver{
		catalog: catalog,
		config:  config.withDefaultValues(),
	}
}

func (r *Resolver) Catalog() Catalog {
	return r.catalog
}

// Resolve looks the item up and returns it with its manifest address.
func (r *Resolver) Resolve(ctx context.Context, id string) (*Item, string, error) {
	item, err := r.catalog.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	if !item.Playable() {
		return item, "", fmt.Errorf("%w: status %s", ErrNotPlayable, item.Status)
	}

	manifest, err := ManifestURL(r.config.CDNBase, r.config.ProcessedPath, item.ID, r.config.ManifestName)
	if err != nil {
		return item, "", err
	}

	return item, manifest, nil
}

func find(items []Item, id string) (*Item, error) {
	for i := range items {
		if items[i].ID == id {
			item := items[i]
			return &item, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}
