// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgchan

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec is the default wire codec.
//
// Map keys are written in sorted order so encoding is deterministic.
// Decoded integers are int64 or uint64, floats are float64 and maps
// are map[string]interface{}; maps with non-string keys are corrupt.
var MsgpackCodec Codec = msgpackCodec{}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) NewDecoder(maxFrameSize int) Decoder {
	return newStreamDecoder(maxFrameSize, msgpackHeader, msgpackUnmarshal())
}

func msgpackUnmarshal() unmarshalFirst {
	r := bytes.NewReader(nil)
	dec := msgpack.NewDecoder(r)

	return func(data []byte) (Message, int, error) {
		r.Reset(data)
		dec.Reset(r)
		dec.UseLooseInterfaceDecoding(true)
		m, err := dec.DecodeInterface()
		if err != nil {
			return nil, 0, err
		}
		return m, int(r.Size()) - r.Len(), nil
	}
}

func (msgpackCodec) NewEncoder() Encoder {
	e := &msgpackEncoder{}
	e.enc = msgpack.NewEncoder(&e.buf)
	e.enc.SetSortMapKeys(true)
	return e
}

type msgpackEncoder struct {
	buf bytes.Buffer
	enc *msgpack.Encoder
}

func (e *msgpackEncoder) Encode(m Message) ([]byte, error) {
	e.buf.Reset()
	if err := e.enc.Encode(m); err != nil {
		return nil, err
	}
	p := make([]byte, e.buf.Len())
	copy(p, e.buf.Bytes())
	return p, nil
}
