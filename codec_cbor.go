// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgchan

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBORCodec is an alternative self-delimiting codec (RFC 8949) using
// core deterministic encoding. Decoded integers are int64, so unsigned
// values above math.MaxInt64 are corrupt.
var CBORCodec Codec = newCBORCodec()

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() cborCodec {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return cborCodec{enc: em, dec: dm}
}

func (cborCodec) Name() string { return "cbor" }

func (c cborCodec) NewDecoder(maxFrameSize int) Decoder {
	return newStreamDecoder(maxFrameSize, cborHeader, func(data []byte) (Message, int, error) {
		var m interface{}
		rest, err := c.dec.UnmarshalFirst(data, &m)
		if err != nil {
			return nil, 0, err
		}
		return m, len(data) - len(rest), nil
	})
}

func (c cborCodec) NewEncoder() Encoder {
	return cborEncoder{c.enc}
}

type cborEncoder struct {
	em cbor.EncMode
}

func (e cborEncoder) Encode(m Message) ([]byte, error) {
	return e.em.Marshal(m)
}
