// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgchan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/someonegg/gox/syncx"
	"go.uber.org/zap"
)

const (
	// DefaultReadChunkSize is the size of one socket read.
	DefaultReadChunkSize = 4096

	// DefaultMaxFrameSize bounds the bytes buffered for one value.
	DefaultMaxFrameSize = 32 * 1024 * 1024
)

// Config tunes a connection. Zero fields take their defaults, a nil
// *Config is the same as DefaultConfig().
type Config struct {
	// Codec defaults to MsgpackCodec.
	Codec Codec

	ReadChunkSize int
	MaxFrameSize  int

	// Queue capacities, 0 means unbounded. A full outbound queue makes
	// Send wait, a full inbound queue stops reading from the socket.
	InboundQueueSize  int
	OutboundQueueSize int

	// Registry, if not nil, gets every new connection.
	Registry *Registry

	Logger  *zap.Logger
	Metrics *Metrics
}

// DefaultConfig returns a Config with unbounded queues, the msgpack
// codec and no registry.
func DefaultConfig() *Config {
	return &Config{
		Codec:         MsgpackCodec,
		ReadChunkSize: DefaultReadChunkSize,
		MaxFrameSize:  DefaultMaxFrameSize,
		Logger:        zap.NewNop(),
	}
}

func (c *Config) withDefaults() Config {
	var conf Config
	if c != nil {
		conf = *c
	}
	if conf.Codec == nil {
		conf.Codec = MsgpackCodec
	}
	if conf.ReadChunkSize <= 0 {
		conf.ReadChunkSize = DefaultReadChunkSize
	}
	if conf.MaxFrameSize <= 0 {
		conf.MaxFrameSize = DefaultMaxFrameSize
	}
	if conf.Logger == nil {
		conf.Logger = zap.NewNop()
	}
	return conf
}

// State is the lifecycle state of a connection.
type State int32

const (
	StateActive State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type Statistics struct {
	// from the stream
	ReadCount int64
	ReadBytes int64

	// to the stream
	WrittenCount int64
	WrittenBytes int64

	// Send and Receive calls
	SendCount    int64
	ReceiveCount int64

	// unencodable, not fully written or discarded at teardown
	DroppedCount int64
}

// Conn turns a byte stream into two queues of messages. Its reading
// loop decodes the stream into the inbound queue, its writing loop
// encodes the outbound queue onto the stream.
//
// Conn supports concurrently access.
type Conn struct {
	id     uint64
	stream Stream
	remote net.Addr

	dec  Decoder
	enc  Encoder
	inQ  *queue[Message]
	outQ *queue[Message]

	chunk int

	state atomic.Int32
	errMu sync.Mutex
	err   error

	quitF context.CancelFunc
	stopD syncx.DoneChan
	rD    syncx.DoneChan
	wD    syncx.DoneChan

	stat Statistics

	log     *zap.Logger
	metrics *Metrics
}

// NewConn takes ownership of s, registers the new connection in
// cfg.Registry and starts its loops.
//
// Cancelling ctx tears the connection down.
func NewConn(ctx context.Context, s Stream, cfg *Config) *Conn {
	if ctx == nil {
		ctx = context.Background()
	}
	conf := cfg.withDefaults()

	c := &Conn{
		stream: s,
		remote: s.RemoteAddr(),

		dec:  conf.Codec.NewDecoder(conf.MaxFrameSize),
		enc:  conf.Codec.NewEncoder(),
		inQ:  newQueue[Message](conf.InboundQueueSize),
		outQ: newQueue[Message](conf.OutboundQueueSize),

		chunk: conf.ReadChunkSize,

		stopD: syncx.NewDoneChan(),
		rD:    syncx.NewDoneChan(),
		wD:    syncx.NewDoneChan(),

		metrics: conf.Metrics,
	}
	c.log = conf.Logger.With(zap.Stringer("remote", c.remote))
	ctx, c.quitF = context.WithCancel(ctx)

	if conf.Registry != nil {
		if err := conf.Registry.Register(c); err != nil {
			c.log.Warn("connection not registered", zap.Error(err))
			c.quitF()
		}
	}
	c.metrics.opened()

	go c.reading(ctx)
	go c.writing(ctx)
	go c.monitor(ctx)

	return c
}

func (c *Conn) logger() *zap.Logger {
	return c.log.With(zap.Uint64("conn", c.id))
}

func (c *Conn) monitor(ctx context.Context) {
	defer c.ending()

	select {
	case <-ctx.Done():
	case <-c.rD:
	case <-c.wD:
	}
}

func (c *Conn) ending() {
	c.state.CompareAndSwap(int32(StateActive), int32(StateClosing))

	// if ending from error.
	c.quitF()

	// unblocks the loops.
	c.stream.Close()
	dropped := c.outQ.close(true)

	<-c.rD
	<-c.wD

	c.inQ.close(false)
	if dropped > 0 {
		atomic.AddInt64(&c.stat.DroppedCount, int64(dropped))
		c.metrics.dropped(dropped)
	}
	c.state.Store(int32(StateClosed))

	err := c.Error()
	c.metrics.closed(err)
	if err != nil {
		c.logger().Warn("connection closed", zap.Error(err), zap.Int("dropped", dropped))
	} else {
		c.logger().Debug("connection closed", zap.Int("dropped", dropped))
	}

	c.stopD.SetDone()
}

// recovering records a panic of a loop as the teardown cause.
func (c *Conn) recovering(loop string) {
	e := recover()
	if e == nil {
		return
	}
	err, ok := e.(error)
	if !ok {
		err = errUnknownPanic
	}
	c.fail(fmt.Errorf("msgchan: %s panic: %w", loop, err))
	c.logger().Error("loop panic", zap.String("loop", loop), zap.Any("panic", e), zap.Stack("stack"))
}

// fail records the first teardown cause and starts the teardown.
func (c *Conn) fail(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
	c.shutdown()
}

func (c *Conn) shutdown() {
	c.state.CompareAndSwap(int32(StateActive), int32(StateClosing))
	c.quitF()
}

func (c *Conn) reading(ctx context.Context) {
	defer c.rD.SetDone()
	defer c.recovering("reading")

	buf := make([]byte, c.chunk)
	for {
		n, err := c.stream.Read(buf)
		if n > 0 {
			atomic.AddInt64(&c.stat.ReadBytes, int64(n))
			c.metrics.read(n)
			c.dec.Feed(buf[:n])
			if derr := c.drain(ctx); derr != nil {
				if errors.Is(derr, ErrCorruptFrame) {
					c.fail(derr)
				}
				return
			}
		}
		if err != nil {
			switch {
			case ctx.Err() != nil:
				// the stream was closed by ending.
			case errors.Is(err, io.EOF):
				c.logger().Debug("peer closed")
				c.shutdown()
			default:
				c.fail(fmt.Errorf("msgchan: read: %w", err))
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// drain moves every fully buffered value to the inbound queue.
func (c *Conn) drain(ctx context.Context) error {
	for {
		m, ok, err := c.dec.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := c.inQ.put(ctx, m); err != nil {
			return err
		}
		atomic.AddInt64(&c.stat.ReadCount, 1)
		c.metrics.message(directionIn)
	}
}

func (c *Conn) writing(ctx context.Context) {
	defer c.wD.SetDone()
	defer c.recovering("writing")

	for {
		m, err := c.outQ.get(ctx)
		if err != nil {
			return
		}

		p, err := c.enc.Encode(m)
		if err != nil {
			atomic.AddInt64(&c.stat.DroppedCount, 1)
			c.metrics.dropped(1)
			c.logger().Warn("unencodable message dropped", zap.Error(err))
			continue
		}

		if err := writeFull(c.stream, p); err != nil {
			atomic.AddInt64(&c.stat.DroppedCount, 1)
			c.metrics.dropped(1)
			if ctx.Err() == nil {
				c.fail(fmt.Errorf("msgchan: write: %w", err))
			}
			return
		}
		atomic.AddInt64(&c.stat.WrittenCount, 1)
		atomic.AddInt64(&c.stat.WrittenBytes, int64(len(p)))
		c.metrics.message(directionOut)
		c.metrics.written(len(p))
	}
}

// writeFull retries partial writes until p is written or an error occurs.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Send puts the message to the outbound queue, waiting for space if
// the queue is bounded. It returns ErrConnClosed if the connection is
// closing or closed, the message is dropped then.
//
// A nil error only means the message will be written in FIFO order
// relative to the other Send calls, not that the peer gets it.
func (c *Conn) Send(ctx context.Context, m Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.State() != StateActive {
		return ErrConnClosed
	}
	if err := c.outQ.put(ctx, m); err != nil {
		if err == errQueueClosed {
			return ErrConnClosed
		}
		return err
	}
	atomic.AddInt64(&c.stat.SendCount, 1)
	return nil
}

// TrySend tries to put the message to the outbound queue without
// waiting. It returns false if the queue is full or the connection
// is closing or closed.
func (c *Conn) TrySend(m Message) bool {
	if c.State() != StateActive {
		return false
	}
	ok, _ := c.outQ.tryPut(m)
	if ok {
		atomic.AddInt64(&c.stat.SendCount, 1)
	}
	return ok
}

// Receive returns the oldest decoded message, waiting until one is
// available. Messages decoded before teardown are still returned,
// after that it returns ErrConnClosed.
func (c *Conn) Receive(ctx context.Context) (Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	m, err := c.inQ.get(ctx)
	if err != nil {
		if err == errQueueClosed {
			return nil, ErrConnClosed
		}
		return nil, err
	}
	atomic.AddInt64(&c.stat.ReceiveCount, 1)
	return m, nil
}

// TryReceive returns the oldest decoded message without waiting.
func (c *Conn) TryReceive() (Message, bool) {
	m, ok, _ := c.inQ.tryGet()
	if ok {
		atomic.AddInt64(&c.stat.ReceiveCount, 1)
	}
	return m, ok
}

// Close requests to tear the connection down, it stops asynchronously.
// Queued outbound messages are discarded.
func (c *Conn) Close() error {
	c.shutdown()
	return nil
}

// StopD returns a done channel, it will be signaled when the connection
// is closed and both loops have exited.
func (c *Conn) StopD() syncx.DoneChanR {
	return c.stopD.R()
}

func (c *Conn) Stopped() bool {
	return c.stopD.R().Done()
}

func (c *Conn) State() State {
	return State(c.state.Load())
}

// Error returns the teardown cause. It is nil while active, and after
// an orderly peer close or a local Close.
func (c *Conn) Error() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// ID returns the sequence number assigned at registration, 0 if the
// connection was not registered.
func (c *Conn) ID() uint64 {
	return c.id
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.remote
}

func (c *Conn) Statistics() Statistics {
	return Statistics{
		ReadCount:    atomic.LoadInt64(&c.stat.ReadCount),
		ReadBytes:    atomic.LoadInt64(&c.stat.ReadBytes),
		WrittenCount: atomic.LoadInt64(&c.stat.WrittenCount),
		WrittenBytes: atomic.LoadInt64(&c.stat.WrittenBytes),
		SendCount:    atomic.LoadInt64(&c.stat.SendCount),
		ReceiveCount: atomic.LoadInt64(&c.stat.ReceiveCount),
		DroppedCount: atomic.LoadInt64(&c.stat.DroppedCount),
	}
}

// UnderlyingStream returns the stream owned by the connection.
func (c *Conn) UnderlyingStream() Stream {
	return c.stream
}
