// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgchan

import "fmt"

// Codec creates the per-connection frame codec state. A connection
// owns one Decoder and one Encoder, both used from a single goroutine.
type Codec interface {
	Name() string
	NewDecoder(maxFrameSize int) Decoder
	NewEncoder() Encoder
}

// Decoder extracts self-delimiting values from an arbitrarily
// fragmented byte stream.
type Decoder interface {
	// Feed appends raw bytes to the internal buffer. It never fails.
	Feed(p []byte)

	// Next extracts one complete value. It returns ok == false, and
	// keeps the buffer intact, if a full value is not buffered yet.
	// A non-nil error wraps ErrCorruptFrame and is permanent.
	Next() (m Message, ok bool, err error)

	// Buffered returns the number of bytes not consumed yet.
	Buffered() int
}

// Encoder turns one value into its exact byte representation.
type Encoder interface {
	Encode(m Message) ([]byte, error)
}

// unmarshalFirst decodes the single value that fills data and reports
// how many bytes it used.
type unmarshalFirst func(data []byte) (m Message, n int, err error)

// streamDecoder is the buffering shared by the codecs. The scanner
// finds the end of the first value, parse runs once it is complete.
type streamDecoder struct {
	buf   []byte
	off   int
	max   int
	stale bool // nothing fed since the last incomplete attempt
	err   error
	scan  *frameScanner
	parse unmarshalFirst
}

func newStreamDecoder(maxFrameSize int, head itemHeader, parse unmarshalFirst) *streamDecoder {
	return &streamDecoder{max: maxFrameSize, scan: newFrameScanner(head), parse: parse}
}

func (d *streamDecoder) Feed(p []byte) {
	if len(p) == 0 {
		return
	}
	if d.off > 0 && d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	} else if d.off > 0 && d.off >= cap(d.buf)/2 {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.off = 0
	}
	d.buf = append(d.buf, p...)
	d.stale = false
}

func (d *streamDecoder) Next() (Message, bool, error) {
	if d.err != nil {
		return nil, false, d.err
	}
	data := d.buf[d.off:]
	if len(data) == 0 || d.stale {
		return nil, false, nil
	}

	end, ok, err := d.scan.scan(data)
	if err != nil {
		d.err = &corruptError{err}
		return nil, false, d.err
	}
	if !ok {
		if d.max > 0 && len(data) > d.max {
			d.err = ErrFrameTooLarge
			return nil, false, d.err
		}
		d.stale = true
		return nil, false, nil
	}

	m, n, err := d.parse(data[:end])
	if err == nil && n != end {
		err = fmt.Errorf("value used %d of %d bytes", n, end)
	}
	if err != nil {
		// a truncated value here is a grammar error too.
		d.err = &corruptError{fmt.Errorf("%v", err)}
		return nil, false, d.err
	}

	d.off += end
	return m, true, nil
}

func (d *streamDecoder) Buffered() int {
	return len(d.buf) - d.off
}

type corruptError struct {
	err error
}

func (e *corruptError) Error() string {
	return ErrCorruptFrame.Error() + ": " + e.err.Error()
}

func (e *corruptError) Unwrap() []error {
	return []error{ErrCorruptFrame, e.err}
}

// CodecByName returns a built-in codec, or nil.
func CodecByName(name string) Codec {
	switch name {
	case "", MsgpackCodec.Name():
		return MsgpackCodec
	case CBORCodec.Name():
		return CBORCodec
	}
	return nil
}
