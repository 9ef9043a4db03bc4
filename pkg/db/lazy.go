package db

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// OpenFunc opens the durable store. It is called at most once per successful
// initialization.
type OpenFunc func(ctx context.Context) (*Client, error)

// Lazy hands out a shared Client, opening it on first use. Concurrent first
// callers share one open attempt. A failed attempt is not remembered, so the
// next caller tries again.
type Lazy struct {
	open  OpenFunc
	group singleflight.Group

	mu     sync.RWMutex
	client *Client
}

func NewLazy(open OpenFunc) *Lazy {
	return &Lazy{open: open}
}

// Get returns the opened client, initializing it if needed.
func (l *Lazy) Get(ctx context.Context) (*Client, error) {
	if c := l.loaded(); c != nil {
		return c, nil
	}

	v, err, _ := l.group.Do("open", func() (any, error) {
		if c := l.loaded(); c != nil {
			return c, nil
		}
		c, err := l.open(ctx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.client = c
		l.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client), nil
}

func (l *Lazy) loaded() *Client {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.client
}

// Close releases the client if one was opened.
func (l *Lazy) Close() error {
	l.mu.Lock()
	c := l.client
	l.client = nil
	l.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}
