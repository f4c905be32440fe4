// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgchan

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// Message is one structured value carried by a connection: a tree of
// nil, bool, int64, uint64, float64, string, []byte, []interface{} and
// map[string]interface{}. The channel never interprets it.
type Message = interface{}

// Stream is the byte-stream transport under a connection.
//
// A net.Conn satisfies it directly. Read and Write are issued from
// different goroutines, never concurrently with themselves.
type Stream interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

var (
	// ErrConnClosed is returned by Send and Receive once the connection
	// is torn down. It satisfies errors.Is(err, net.ErrClosed).
	ErrConnClosed = fmt.Errorf("msgchan: connection closed: %w", net.ErrClosed)

	// ErrRegistryClosed is returned by a closed registry.
	ErrRegistryClosed = errors.New("msgchan: registry closed")

	// ErrCorruptFrame is wrapped by every decode error caused by bytes
	// that do not follow the wire grammar.
	ErrCorruptFrame = errors.New("msgchan: corrupt frame")

	// ErrFrameTooLarge means a value was still incomplete after
	// MaxFrameSize bytes were buffered. It wraps ErrCorruptFrame.
	ErrFrameTooLarge = fmt.Errorf("%w: frame too large", ErrCorruptFrame)

	errQueueClosed  = errors.New("msgchan: queue closed")
	errUnknownPanic = errors.New("msgchan: unknown panic")
)
