// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgchan

import (
	"context"
	"sync"
)

// queue is a FIFO with an explicit closed state. It is unbounded when
// size is 0, otherwise put waits for space.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	size   int
	closed bool

	// closed and replaced on every put/get, to wake waiters.
	putC chan struct{}
	getC chan struct{}
}

func newQueue[T any](size int) *queue[T] {
	if size < 0 {
		size = 0
	}
	return &queue[T]{
		size: size,
		putC: make(chan struct{}),
		getC: make(chan struct{}),
	}
}

func (q *queue[T]) lenLocked() int {
	return len(q.items) - q.head
}

func (q *queue[T]) pushLocked(v T) {
	q.items = append(q.items, v)
	close(q.putC)
	q.putC = make(chan struct{})
}

func (q *queue[T]) popLocked() T {
	var zero T
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head >= 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	if !q.closed {
		close(q.getC)
		q.getC = make(chan struct{})
	}
	return v
}

// put appends v, waiting for space if the queue is bounded and full.
func (q *queue[T]) put(ctx context.Context, v T) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return errQueueClosed
		}
		if q.size == 0 || q.lenLocked() < q.size {
			q.pushLocked(v)
			q.mu.Unlock()
			return nil
		}
		wait := q.getC
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

func (q *queue[T]) tryPut(v T) (ok bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, errQueueClosed
	}
	if q.size > 0 && q.lenLocked() >= q.size {
		return false, nil
	}
	q.pushLocked(v)
	return true, nil
}

// get removes the oldest item, waiting until one is available. Items
// left in a closed queue are still returned before errQueueClosed.
func (q *queue[T]) get(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if q.lenLocked() > 0 {
			v := q.popLocked()
			q.mu.Unlock()
			return v, nil
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, errQueueClosed
		}
		wait := q.putC
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-wait:
		}
	}
}

func (q *queue[T]) tryGet() (v T, ok bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lenLocked() > 0 {
		return q.popLocked(), true, nil
	}
	if q.closed {
		return v, false, errQueueClosed
	}
	return v, false, nil
}

// close marks the queue closed and wakes all waiters. With discard set,
// pending items are dropped and their count returned.
func (q *queue[T]) close(discard bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	q.closed = true
	n := 0
	if discard {
		n = q.lenLocked()
		clear(q.items)
		q.items = nil
		q.head = 0
	}
	close(q.putC)
	close(q.getC)
	return n
}

func (q *queue[T]) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}
