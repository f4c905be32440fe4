// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgchan

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Handler is the application logic of a connection. It usually loops
// on Receive and calls Send until the connection is closed.
type Handler interface {
	ServeConn(ctx context.Context, c *Conn)
}

// The HandlerFunc type is an adapter to allow the use of
// ordinary functions as connection handlers.
type HandlerFunc func(ctx context.Context, c *Conn)

// ServeConn calls f(ctx, c).
func (f HandlerFunc) ServeConn(ctx context.Context, c *Conn) {
	f(ctx, c)
}

// Watcher takes connections off a registry, in registration order, and
// serves each of them from its own goroutine.
type Watcher struct {
	r   *Registry
	h   Handler
	log *zap.Logger

	wg sync.WaitGroup
}

// NewWatcher allocates and returns a new Watcher. logger may be nil.
func NewWatcher(r *Registry, h Handler, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{r: r, h: h, log: logger}
}

// Run blocks until ctx is done or the registry is closed and drained,
// then waits for the running handlers. It returns nil when the registry
// was closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.wg.Wait()

	for {
		c, err := w.r.Next(ctx)
		if err == ErrRegistryClosed {
			return nil
		}
		if err != nil {
			return err
		}

		w.wg.Add(1)
		go w.serve(ctx, c)
	}
}

func (w *Watcher) serve(ctx context.Context, c *Conn) {
	defer w.wg.Done()
	defer func() {
		if e := recover(); e != nil {
			w.log.Error("handler panic",
				zap.Uint64("conn", c.ID()), zap.Any("panic", e), zap.Stack("stack"))
			c.Close()
		}
	}()

	w.h.ServeConn(ctx, c)
}

// Watch is a shortcut for NewWatcher(r, h, nil).Run(ctx).
func Watch(ctx context.Context, r *Registry, h Handler) error {
	return NewWatcher(r, h, nil).Run(ctx)
}
