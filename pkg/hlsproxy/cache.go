package hlsproxy

import (
	"io"
	"mime"
	"strings"
	"time"

	"github.com/movieverse/vidstream/internal/utils"
)

// entryKind decides how long an upstream response stays cached.
type entryKind int

const (
	entrySegment entryKind = iota
	entryPlaylist
)

func (k entryKind) String() string {
	if k == entryPlaylist {
		return "playlist"
	}
	return "segment"
}

var playlistTypes = map[string]bool{
	"application/vnd.apple.mpegurl": true,
	"application/x-mpegurl":         true,
	"audio/mpegurl":                 true,
	"audio/x-mpegurl":               true,
}

// kindOf classifies an upstream response by its content type, the
// extension decides when the type is missing or generic.
func kindOf(contentType, ext string) entryKind {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && playlistTypes[strings.ToLower(mediaType)] {
		return entryPlaylist
	}
	if strings.EqualFold(ext, ".m3u8") {
		return entryPlaylist
	}
	return entrySegment
}

type cacheEntry struct {
	*utils.Cache

	kind        entryKind
	contentType string
}

func (m *ManagerCtx) expiration(kind entryKind) time.Duration {
	if kind == entryPlaylist {
		return m.config.PlaylistExpiration
	}
	return m.config.SegmentExpiration
}

func (m *ManagerCtx) lookup(key string) (*cacheEntry, bool) {
	m.cacheMu.RLock()
	entry, ok := m.cache[key]
	m.cacheMu.RUnlock()

	if !ok || entry.Expired() {
		m.logger.Debug().Str("key", key).Msg("cache miss")
		return nil, false
	}

	m.logger.Debug().Str("key", key).Str("kind", entry.kind.String()).Msg("cache hit")
	return entry, true
}

// store caches reader under key while it is still being read, so
// concurrent requests for the same key share one upstream transfer.
func (m *ManagerCtx) store(key string, kind entryKind, contentType string, reader io.Reader) *cacheEntry {
	entry := &cacheEntry{
		Cache:       utils.NewCache(time.Now().Add(m.expiration(kind))),
		kind:        kind,
		contentType: contentType,
	}

	m.cacheMu.Lock()
	m.cache[key] = entry
	m.cacheMu.Unlock()

	go func() {
		defer entry.Close()

		if _, err := io.Copy(entry, reader); err != nil {
			m.logger.Err(err).Str("key", key).Msg("upstream transfer interrupted")
			m.evict(key, entry)
		}

		if closer, ok := reader.(io.Closer); ok {
			closer.Close()
		}
	}()

	m.sweepStart()
	return entry
}

// evict removes key unless it was replaced by a newer entry meanwhile.
func (m *ManagerCtx) evict(key string, entry *cacheEntry) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	if m.cache[key] == entry {
		delete(m.cache, key)
	}
}

// evictRendition drops key together with every cached playlist next to it.
// A segment the origin no longer has means those playlists are stale.
func (m *ManagerCtx) evictRendition(key string) int {
	dir := directoryOf(key)
	removed := 0

	m.cacheMu.Lock()
	for k, entry := range m.cache {
		if k == key || (entry.kind == entryPlaylist && directoryOf(k) == dir) {
			delete(m.cache, k)
			removed++
		}
	}
	m.cacheMu.Unlock()

	if removed > 0 {
		m.logger.Debug().Str("key", key).Int("removed", removed).Msg("evicted stale rendition")
	}
	return removed
}

func directoryOf(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	return url[:strings.LastIndex(url, "/")+1]
}

// removeExpired returns how many entries are left.
func (m *ManagerCtx) removeExpired() int {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	for key, entry := range m.cache {
		if entry.Expired() {
			delete(m.cache, key)
			m.logger.Debug().Str("key", key).Str("kind", entry.kind.String()).Msg("cache cleanup remove expired")
		}
	}
	return len(m.cache)
}

func (m *ManagerCtx) cacheSize() int {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()

	return len(m.cache)
}

func (m *ManagerCtx) cached(kind entryKind) int {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()

	count := 0
	for _, entry := range m.cache {
		if entry.kind == kind {
			count++
		}
	}
	return count
}

// sweepStart runs the sweeper until the cache drains or the manager shuts down.
func (m *ManagerCtx) sweepStart() {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	if m.sweepStop != nil {
		return
	}

	stop := make(chan struct{})
	m.sweepStop = stop

	go func() {
		m.logger.Debug().Msg("cleanup started")

		ticker := time.NewTicker(m.config.CacheCleanupPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if m.sweepDrained(stop) {
					m.logger.Debug().Msg("cleanup stopped")
					return
				}
			}
		}
	}()
}

// sweepDrained removes expired entries and unregisters the sweeper once
// nothing is left. Holding sweepMu keeps a concurrent store from being missed.
func (m *ManagerCtx) sweepDrained(stop chan struct{}) bool {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	if m.removeExpired() > 0 {
		return false
	}

	if m.sweepStop == stop {
		m.sweepStop = nil
	}
	return true
}

func (m *ManagerCtx) sweepShutdown() {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	if m.sweepStop == nil {
		return
	}

	close(m.sweepStop)
	m.sweepStop = nil
}
