package msgchan

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"time"
)

func sampleMessages() []Message {
	return []Message{
		nil,
		true,
		false,
		int64(-5),
		int64(1 << 40),
		1.5,
		"hello",
		[]byte{1, 2, 3},
		[]interface{}{int64(1), "a", nil},
		map[string]interface{}{"op": "ping"},
		map[string]interface{}{
			"method": "put",
			"args":   []interface{}{"k", []byte("v"), 2.25},
			"meta":   map[string]interface{}{"id": int64(7), "ok": true},
		},
		// multi-byte length headers
		strings.Repeat("s", 40),
		strings.Repeat("s", 300),
		strings.Repeat("s", 70000),
		bytes.Repeat([]byte{7}, 300),
		wideArray(20),
		wideMap(20),
		[]interface{}{},
		map[string]interface{}{},
	}
}

func wideArray(n int) []interface{} {
	a := make([]interface{}, n)
	for i := range a {
		a[i] = int64(i)
	}
	return a
}

func wideMap(n int) map[string]interface{} {
	m := make(map[string]interface{}, n)
	for i := 0; i < n; i++ {
		m[fmt.Sprintf("k%02d", i)] = int64(i)
	}
	return m
}

func testCodecs() []Codec {
	return []Codec{MsgpackCodec, CBORCodec}
}

func TestCodecRoundTrip(test *testing.T) {
	for _, codec := range testCodecs() {
		for _, m := range sampleMessages() {
			got := decodeAll(test, codec, encodeAll(test, codec, m), 0)
			if len(got) != 1 || !reflect.DeepEqual(got[0], m) {
				test.Fatalf("%s: round trip %#v => %#v", codec.Name(), m, got)
			}
		}
	}
}

func TestMsgpackUint64RoundTrip(test *testing.T) {
	m := uint64(1 << 63)
	got := decodeAll(test, MsgpackCodec, encodeAll(test, MsgpackCodec, m), 0)
	if len(got) != 1 || got[0] != m {
		test.Fatalf("round trip %#v", got)
	}
}

func TestCodecFragmentation(test *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	ms := sampleMessages()

	for _, codec := range testCodecs() {
		p := encodeAll(test, codec, ms...)
		whole := decodeAll(test, codec, p, 0)
		if !reflect.DeepEqual(whole, ms) {
			test.Fatalf("%s: whole stream %#v", codec.Name(), whole)
		}

		for _, n := range []int{1, 2, 3, 5, 64} {
			if got := decodeAll(test, codec, p, n); !reflect.DeepEqual(got, whole) {
				test.Fatalf("%s: chunk size %d: %#v", codec.Name(), n, got)
			}
		}

		// random chunk boundaries
		for i := 0; i < 20; i++ {
			dec := codec.NewDecoder(0)
			var got []Message
			rest := p
			for len(rest) > 0 {
				k := 1 + rnd.Intn(len(rest))
				dec.Feed(rest[:k])
				rest = rest[k:]
				for {
					m, ok, err := dec.Next()
					if err != nil {
						test.Fatal(err)
					}
					if !ok {
						break
					}
					got = append(got, m)
				}
			}
			if !reflect.DeepEqual(got, whole) {
				test.Fatalf("%s: random chunks %#v", codec.Name(), got)
			}
		}
	}
}

func TestCodecSplitPing(test *testing.T) {
	ping := map[string]interface{}{"op": "ping"}
	for _, codec := range testCodecs() {
		p := encodeAll(test, codec, ping)
		for i := 1; i < len(p); i++ {
			dec := codec.NewDecoder(DefaultMaxFrameSize)

			dec.Feed(p[:i])
			if _, ok, err := dec.Next(); ok || err != nil {
				test.Fatalf("%s: offset %d: early value, %v", codec.Name(), i, err)
			}
			if dec.Buffered() != i {
				test.Fatalf("%s: offset %d: buffer not intact", codec.Name(), i)
			}

			dec.Feed(p[i:])
			m, ok, err := dec.Next()
			if !ok || err != nil || !reflect.DeepEqual(m, ping) {
				test.Fatalf("%s: offset %d: %#v %v", codec.Name(), i, m, err)
			}
			if _, ok, _ := dec.Next(); ok {
				test.Fatalf("%s: offset %d: ping decoded twice", codec.Name(), i)
			}
		}
	}
}

func TestCodecNilMessage(test *testing.T) {
	for _, codec := range testCodecs() {
		dec := codec.NewDecoder(0)
		dec.Feed(encodeAll(test, codec, nil))
		m, ok, err := dec.Next()
		if !ok || err != nil || m != nil {
			test.Fatalf("%s: nil message %v %v %v", codec.Name(), m, ok, err)
		}
	}
}

func TestCodecCorrupt(test *testing.T) {
	cases := map[Codec][]byte{
		// 0xc1 is never used
		MsgpackCodec: {0xc1},
		// reserved additional information 28
		CBORCodec: {0x1c},
	}
	for codec, p := range cases {
		dec := codec.NewDecoder(0)
		dec.Feed(p)
		_, ok, err := dec.Next()
		if ok || !errors.Is(err, ErrCorruptFrame) {
			test.Fatalf("%s: corrupt frame not detected, %v", codec.Name(), err)
		}

		// permanent
		dec.Feed(encodeAll(test, codec, "later"))
		if _, ok, err := dec.Next(); ok || !errors.Is(err, ErrCorruptFrame) {
			test.Fatalf("%s: decoder resynchronized", codec.Name())
		}
	}
}

func TestCodecCorruptAfterValid(test *testing.T) {
	p := append(encodeAll(test, MsgpackCodec, "ok"), 0xc1)
	dec := MsgpackCodec.NewDecoder(0)
	dec.Feed(p)

	m, ok, err := dec.Next()
	if !ok || err != nil || m != "ok" {
		test.Fatal("valid prefix", m, err)
	}
	if _, _, err := dec.Next(); !errors.Is(err, ErrCorruptFrame) {
		test.Fatal("corrupt suffix", err)
	}
}

func TestCodecFrameTooLarge(test *testing.T) {
	// str32 header announcing 1 MiB
	p := []byte{0xdb, 0x00, 0x10, 0x00, 0x00}
	p = append(p, bytes.Repeat([]byte{'a'}, 32)...)

	dec := MsgpackCodec.NewDecoder(16)
	dec.Feed(p)
	_, ok, err := dec.Next()
	if ok || !errors.Is(err, ErrFrameTooLarge) || !errors.Is(err, ErrCorruptFrame) {
		test.Fatal("frame too large", err)
	}
}

func TestCodecDeterministic(test *testing.T) {
	m := map[string]interface{}{}
	for _, k := range []string{"z", "a", "m", "b", "y", "c", "x", "d"} {
		m[k] = k
	}
	for _, codec := range testCodecs() {
		first := encodeAll(test, codec, m)
		for i := 0; i < 10; i++ {
			if !bytes.Equal(first, encodeAll(test, codec, m)) {
				test.Fatalf("%s: encoding not deterministic", codec.Name())
			}
		}
	}
}

func TestCodecUnencodable(test *testing.T) {
	for _, codec := range testCodecs() {
		if _, err := codec.NewEncoder().Encode(make(chan int)); err == nil {
			test.Fatalf("%s: channel encoded", codec.Name())
		}
	}
}

func TestCodecByName(test *testing.T) {
	if CodecByName("") != MsgpackCodec || CodecByName("msgpack") != MsgpackCodec {
		test.Fatal("msgpack by name")
	}
	if CodecByName("cbor") != CBORCodec {
		test.Fatal("cbor by name")
	}
	if CodecByName("json") != nil {
		test.Fatal("unknown codec")
	}
}

func TestCodecEmptyBinary(test *testing.T) {
	for _, codec := range testCodecs() {
		got := decodeAll(test, codec, encodeAll(test, codec, []byte{}), 1)
		if len(got) != 1 {
			test.Fatalf("%s: %#v", codec.Name(), got)
		}
		if b, ok := got[0].([]byte); !ok || len(b) != 0 {
			test.Fatalf("%s: empty binary %#v", codec.Name(), got[0])
		}
	}
}

func TestCodecLargeValueParsedOnce(test *testing.T) {
	for _, codec := range testCodecs() {
		var head itemHeader
		var parse unmarshalFirst
		switch codec {
		case MsgpackCodec:
			head, parse = msgpackHeader, msgpackUnmarshal()
		case CBORCodec:
			dec := codec.NewDecoder(0).(*streamDecoder)
			head, parse = cborHeader, dec.parse
		}
		calls := 0
		dec := newStreamDecoder(DefaultMaxFrameSize, head, func(p []byte) (Message, int, error) {
			calls++
			return parse(p)
		})

		m := []interface{}{make([]byte, 4<<20), wideArray(50000), "tail"}
		p := encodeAll(test, codec, m)
		var got []Message
		for len(p) > 0 {
			k := min(DefaultReadChunkSize, len(p))
			dec.Feed(p[:k])
			p = p[k:]
			v, ok, err := dec.Next()
			if err != nil {
				test.Fatal(codec.Name(), err)
			}
			if ok {
				got = append(got, v)
			}
		}
		if len(got) != 1 || calls != 1 {
			test.Fatalf("%s: %d values, %d parse calls", codec.Name(), len(got), calls)
		}
	}
}

func TestCodecLargeValueTime(test *testing.T) {
	// re-parsing the whole buffer per chunk takes tens of seconds here
	const size = 16 << 20
	for _, codec := range testCodecs() {
		p := encodeAll(test, codec, make([]byte, size))
		dec := codec.NewDecoder(DefaultMaxFrameSize)

		start := time.Now()
		var got Message
		for len(p) > 0 {
			k := min(DefaultReadChunkSize, len(p))
			dec.Feed(p[:k])
			p = p[k:]
			m, ok, err := dec.Next()
			if err != nil {
				test.Fatal(codec.Name(), err)
			}
			if ok {
				got = m
			}
		}
		if b, ok := got.([]byte); !ok || len(b) != size {
			test.Fatal(codec.Name(), "value not decoded")
		}
		if d := time.Since(start); d > 3*time.Second {
			test.Fatal(codec.Name(), "too slow", d)
		}
	}
}

func TestFrameScannerHeaders(test *testing.T) {
	cases := []struct {
		name string
		head itemHeader
		p    []byte
		end  int
	}{
		{"msgpack str16", msgpackHeader, append([]byte{0xda, 0x00, 0x03}, "abc"...), 6},
		{"msgpack array16 of nil", msgpackHeader, []byte{0xdc, 0x00, 0x02, 0xc0, 0xc0}, 5},
		{"msgpack map16", msgpackHeader, []byte{0xde, 0x00, 0x01, 0xa1, 'k', 0x01}, 6},
		{"msgpack fixext4", msgpackHeader, []byte{0xd6, 0x01, 0, 0, 0, 0}, 6},
		{"msgpack empty fixarray", msgpackHeader, []byte{0x90}, 1},
		{"cbor indefinite array", cborHeader, []byte{0x9f, 0x01, 0x9f, 0xff, 0xff}, 5},
		{"cbor tag", cborHeader, []byte{0xc1, 0x1a, 0, 0, 0, 1}, 6},
		{"cbor uint64", cborHeader, []byte{0x1b, 0, 0, 0, 0, 0, 0, 0, 1}, 9},
		{"cbor float16", cborHeader, []byte{0xf9, 0x3c, 0x00}, 3},
	}
	for _, c := range cases {
		// trailing byte of a following value
		data := append(append([]byte(nil), c.p...), 0x00)
		s := newFrameScanner(c.head)
		for i := 1; i < len(c.p); i++ {
			if _, ok, err := s.scan(data[:i]); ok || err != nil {
				test.Fatal(c.name, "complete at", i, err)
			}
		}
		end, ok, err := s.scan(data)
		if !ok || err != nil || end != c.end {
			test.Fatal(c.name, end, ok, err)
		}
	}
}

func TestFrameScannerUnexpectedBreak(test *testing.T) {
	s := newFrameScanner(cborHeader)
	if _, _, err := s.scan([]byte{0x82, 0x01, 0xff}); err != errUnexpectedBreak {
		test.Fatal(err)
	}
}
