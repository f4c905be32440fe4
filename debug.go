// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgchan

import (
	"fmt"
	"io"
	"sync"
)

// MessageDump is a debugging helper, it implements the Codec interface
// and dumps every decoded and encoded message of the wrapped codec.
//
// The dump format is:
//
//	R|W:EncodedSize\nMessage\n\n
//
// The read size is the number of bytes the decoder consumed.
type MessageDump struct {
	Codec Codec
	Dump  io.Writer

	// Filter can be nil. If nil, dump all messages.
	Filter func(m Message, read bool) bool

	mu sync.Mutex
}

func (d *MessageDump) needDump(m Message, read bool) bool {
	if d.Filter != nil {
		return d.Filter(m, read)
	}
	return true
}

func (d *MessageDump) dump(m Message, size int, read bool) {
	if !d.needDump(m, read) {
		return
	}

	rw := "W"
	if read {
		rw = "R"
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.Dump, "%v:%v\n%v\n\n", rw, size, m)
}

func (d *MessageDump) Name() string {
	return d.Codec.Name()
}

func (d *MessageDump) NewDecoder(maxFrameSize int) Decoder {
	return &dumpDecoder{Decoder: d.Codec.NewDecoder(maxFrameSize), d: d}
}

func (d *MessageDump) NewEncoder() Encoder {
	return &dumpEncoder{Encoder: d.Codec.NewEncoder(), d: d}
}

type dumpDecoder struct {
	Decoder
	d *MessageDump
}

func (dd *dumpDecoder) Next() (Message, bool, error) {
	before := dd.Buffered()
	m, ok, err := dd.Decoder.Next()
	if ok {
		dd.d.dump(m, before-dd.Buffered(), true)
	}
	return m, ok, err
}

type dumpEncoder struct {
	Encoder
	d *MessageDump
}

func (de *dumpEncoder) Encode(m Message) ([]byte, error) {
	p, err := de.Encoder.Encode(m)
	if err == nil {
		de.d.dump(m, len(p), false)
	}
	return p, err
}
