// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgchan

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"
)

// WebsocketStream converts a WebSocket connection to a Stream.
//
// Every Write is sent as one binary message. Read concatenates the
// payloads of the binary messages, so values may span messages just
// like they span TCP segments. Text messages are skipped, control frames
// are answered and a close frame reads as io.EOF.
type WebsocketStream struct {
	conn  net.Conn
	state ws.State
	rd    *wsutil.Reader
	ctl   wsutil.FrameHandlerFunc
	inMsg bool

	wmu sync.Mutex
	// the peer's close frame was answered.
	closeSent atomic.Bool
}

// NewWebsocketStream wraps an established WebSocket connection. source
// is where frames are read from, conn itself unless the handshake left
// buffered bytes.
func NewWebsocketStream(conn net.Conn, source io.Reader, state ws.State) *WebsocketStream {
	s := &WebsocketStream{conn: conn, state: state}
	s.ctl = wsutil.ControlFrameHandler(lockedWriter{s}, state)
	s.rd = &wsutil.Reader{
		Source:         source,
		State:          state,
		OnIntermediate: s.ctl,
	}
	return s
}

// UpgradeWebsocket performs the server handshake on conn.
func UpgradeWebsocket(conn net.Conn) (*WebsocketStream, error) {
	if _, err := ws.Upgrade(conn); err != nil {
		return nil, err
	}
	return NewWebsocketStream(conn, conn, ws.StateServerSide), nil
}

// DialWebsocket connects to a ws:// or wss:// url.
func DialWebsocket(ctx context.Context, url string) (*WebsocketStream, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	var source io.Reader = conn
	if br != nil {
		source = &handshakeReader{br: br, conn: conn}
	}
	return NewWebsocketStream(conn, source, ws.StateClientSide), nil
}

// handshakeReader reads the frames buffered during the handshake, then
// releases the buffer and reads from the connection.
type handshakeReader struct {
	br   *bufio.Reader
	conn net.Conn
}

func (r *handshakeReader) Read(p []byte) (int, error) {
	if r.br != nil {
		if r.br.Buffered() > 0 {
			return r.br.Read(p)
		}
		ws.PutReader(r.br)
		r.br = nil
	}
	return r.conn.Read(p)
}

func (s *WebsocketStream) Read(p []byte) (int, error) {
	for {
		if !s.inMsg {
			hdr, err := s.rd.NextFrame()
			if err != nil {
				return 0, closedAsEOF(err)
			}
			if hdr.OpCode.IsControl() {
				err := s.ctl(hdr, s.rd)
				if hdr.OpCode == ws.OpClose {
					s.closeSent.Store(true)
					// the peer may be gone before the close reply
					return 0, io.EOF
				}
				if err != nil {
					return 0, closedAsEOF(err)
				}
				continue
			}
			if hdr.OpCode != ws.OpBinary {
				if err := s.rd.Discard(); err != nil {
					return 0, closedAsEOF(err)
				}
				continue
			}
			s.inMsg = true
		}

		n, err := s.rd.Read(p)
		if err == io.EOF {
			s.inMsg = false
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, closedAsEOF(err)
	}
}

func (s *WebsocketStream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if err := wsutil.WriteMessage(s.conn, s.state, ws.OpBinary, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame unless the peer's one was already answered
// or a write is in progress, then closes the underlying connection.
func (s *WebsocketStream) Close() error {
	if !s.closeSent.Load() && s.wmu.TryLock() {
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = wsutil.WriteMessage(s.conn, s.state, ws.OpClose, body)
		s.wmu.Unlock()
	}
	return s.conn.Close()
}

func (s *WebsocketStream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// lockedWriter serializes control frame replies with Write.
type lockedWriter struct {
	s *WebsocketStream
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.s.wmu.Lock()
	defer w.s.wmu.Unlock()
	return w.s.conn.Write(p)
}

func closedAsEOF(err error) error {
	var ce wsutil.ClosedError
	if errors.As(err, &ce) {
		return io.EOF
	}
	return err
}

// ServeWebsocket is Serve for WebSocket clients: every accepted socket
// is upgraded in its own goroutine, then becomes a connection.
func ServeWebsocket(ctx context.Context, l net.Listener, cfg *Config) error {
	conf := cfg.withDefaults()
	return accepting(ctx, l, conf.Logger, func(nc net.Conn) {
		go func() {
			s, err := UpgradeWebsocket(nc)
			if err != nil {
				conf.Logger.Debug("websocket upgrade",
					zap.Stringer("remote", nc.RemoteAddr()), zap.Error(err))
				nc.Close()
				return
			}
			NewConn(ctx, s, &conf)
		}()
	})
}
