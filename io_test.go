package msgchan

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

const testTimeout = 2 * time.Second

func encodeAll(test *testing.T, codec Codec, ms ...Message) []byte {
	test.Helper()
	enc := codec.NewEncoder()
	var b bytes.Buffer
	for _, m := range ms {
		p, err := enc.Encode(m)
		if err != nil {
			test.Fatal("encode", m, err)
		}
		b.Write(p)
	}
	return b.Bytes()
}

// decodeAll feeds p in chunks of size n (all at once if n <= 0).
func decodeAll(test *testing.T, codec Codec, p []byte, n int) []Message {
	test.Helper()
	dec := codec.NewDecoder(DefaultMaxFrameSize)
	if n <= 0 {
		n = len(p)
	}
	var ms []Message
	for len(p) > 0 {
		k := n
		if k > len(p) {
			k = len(p)
		}
		dec.Feed(p[:k])
		p = p[k:]
		for {
			m, ok, err := dec.Next()
			if err != nil {
				test.Fatal("decode", err)
			}
			if !ok {
				break
			}
			ms = append(ms, m)
		}
	}
	if dec.Buffered() != 0 {
		test.Fatal("decode leftover", dec.Buffered())
	}
	return ms
}

// readMessages decodes count messages from the peer side of a stream.
func readMessages(test *testing.T, r io.Reader, codec Codec, count int) []Message {
	test.Helper()
	dec := codec.NewDecoder(DefaultMaxFrameSize)
	buf := make([]byte, 7)
	var ms []Message
	for len(ms) < count {
		n, err := r.Read(buf)
		dec.Feed(buf[:n])
		for {
			m, ok, derr := dec.Next()
			if derr != nil {
				test.Fatal("peer decode", derr)
			}
			if !ok {
				break
			}
			ms = append(ms, m)
		}
		if err != nil && len(ms) < count {
			test.Fatal("peer read", err)
		}
	}
	return ms
}

func newPipeConn(test *testing.T, cfg *Config) (*Conn, net.Conn) {
	test.Helper()
	local, peer := net.Pipe()
	c := NewConn(context.Background(), local, cfg)
	test.Cleanup(func() {
		c.Close()
		peer.Close()
	})
	return c, peer
}

func waitStop(test *testing.T, c *Conn) {
	test.Helper()
	select {
	case <-c.StopD():
	case <-time.After(testTimeout):
		test.Fatal("connection did not stop, state", c.State())
	}
}

func receiveCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), testTimeout)
}

// mockStream reads from rC and writes to b, at most wmax bytes per call.
type mockStream struct {
	rC   chan []byte
	rbuf []byte

	mu   sync.Mutex
	b    bytes.Buffer
	wmax int
	wErr error

	closeOnce sync.Once
	closed    chan struct{}
}

func newMockStream() *mockStream {
	return &mockStream{rC: make(chan []byte, 16), closed: make(chan struct{})}
}

func (s *mockStream) Read(p []byte) (int, error) {
	if len(s.rbuf) == 0 {
		select {
		case b, ok := <-s.rC:
			if !ok {
				return 0, io.EOF
			}
			s.rbuf = b
		case <-s.closed:
			return 0, net.ErrClosed
		}
	}
	n := copy(p, s.rbuf)
	s.rbuf = s.rbuf[n:]
	return n, nil
}

func (s *mockStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wErr != nil {
		return 0, s.wErr
	}
	if s.wmax > 0 && len(p) > s.wmax {
		p = p[:s.wmax]
	}
	return s.b.Write(p)
}

func (s *mockStream) written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.b.Bytes()...)
}

func (s *mockStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *mockStream) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8888}
}
