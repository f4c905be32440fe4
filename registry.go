// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgchan

import (
	"context"
	"sync"
)

// Registry publishes every newly constructed connection, exactly once
// and in construction order, to whoever calls Next.
//
// A Registry is owned by the server bootstrap and handed to NewConn
// through Config.Registry. Register may be called concurrently.
type Registry struct {
	mu  sync.Mutex
	seq uint64
	q   *queue[*Conn]
}

// NewRegistry allocates and returns a new Registry.
func NewRegistry() *Registry {
	return &Registry{q: newQueue[*Conn](0)}
}

// Register assigns the connection its ID and publishes it. NewConn
// calls it, nobody else should.
func (r *Registry) Register(c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// id and position are assigned under one lock.
	c.id = r.seq + 1
	if _, err := r.q.tryPut(c); err != nil {
		c.id = 0
		return ErrRegistryClosed
	}
	r.seq++
	return nil
}

// Next returns the oldest unclaimed connection, waiting if there is none.
func (r *Registry) Next(ctx context.Context) (*Conn, error) {
	c, err := r.q.get(ctx)
	if err == errQueueClosed {
		return nil, ErrRegistryClosed
	}
	return c, err
}

// Close stops accepting registrations. Connections already published
// can still be taken with Next.
func (r *Registry) Close() {
	r.q.close(false)
}

// Len returns the number of connections waiting for pickup.
func (r *Registry) Len() int {
	return r.q.count()
}
