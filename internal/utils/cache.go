package utils

import (
	"io"
	"sync"
	"time"
)

// Cache is a write-once byte stream that any number of readers can
// replay, including while it is still being written.
type Cache struct {
	mu     sync.RWMutex
	chunks [][]byte
	length int
	closed bool
	notify chan struct{} // closed on every write and on close

	expires time.Time
}

func NewCache(expires time.Time) *Cache {
	return &Cache{
		notify:  make(chan struct{}),
		expires: expires,
	}
}

func (c *Cache) Write(p []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, io.ErrClosedPipe
	}

	// copy chunk
	dst := make([]byte, len(p))
	n = copy(dst, p)
	c.chunks = append(c.chunks, dst)
	c.length += n

	// wake up readers
	close(c.notify)
	c.notify = make(chan struct{})

	return
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.notify)
	return nil
}

// CopyTo replays everything written so far and then follows new writes
// until the cache is closed.
func (c *Cache) CopyTo(w io.Writer) error {
	index := 0

	for {
		c.mu.RLock()
		chunks := c.chunks[index:]
		closed, notify := c.closed, c.notify
		c.mu.RUnlock()

		if len(chunks) > 0 {
			for _, chunk := range chunks {
				if _, err := w.Write(chunk); err != nil {
					return err
				}
			}
			index += len(chunks)
			continue
		}

		if closed {
			return nil
		}

		<-notify
	}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.length
}

func (c *Cache) Expired() bool {
	return time.Now().After(c.expires)
}
