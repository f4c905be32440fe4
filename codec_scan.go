// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgchan

import (
	"errors"
)

// maxItemLen bounds any length or count announced by an item header.
const maxItemLen = 1 << 34

var (
	errReservedCode    = errors.New("msgchan: reserved item code")
	errUnexpectedBreak = errors.New("msgchan: unexpected break")
	errItemTooLong     = errors.New("msgchan: item length overflow")
)

// itemHeader inspects the item at the start of p. size counts the
// header and the payload bytes, 0 means the header is not complete yet.
// children is the number of nested items, -1 for an indefinite length
// container closed by a break.
type itemHeader func(p []byte) (size, children int, brk bool, err error)

// frameScanner finds where the first value of a growing buffer ends.
// It only reads the item headers and resumes where the previous call
// stopped, so the buffer is walked once however it is fed.
type frameScanner struct {
	head itemHeader
	pos  int
	open []int // remaining items of the open containers
	done bool
}

func newFrameScanner(head itemHeader) *frameScanner {
	return &frameScanner{head: head}
}

// scan returns the length of the first value of data once it is fully
// buffered. data must start at the same value on every call until the
// value is complete, and may only grow.
func (s *frameScanner) scan(data []byte) (int, bool, error) {
	for !s.done {
		if s.pos >= len(data) {
			return 0, false, nil
		}
		size, children, brk, err := s.head(data[s.pos:])
		if err != nil {
			return 0, false, err
		}
		if size == 0 {
			return 0, false, nil
		}
		s.pos += size

		switch {
		case brk:
			top := len(s.open) - 1
			if top < 0 || s.open[top] >= 0 {
				return 0, false, errUnexpectedBreak
			}
			s.open = s.open[:top]
			s.itemDone()
		case children != 0:
			s.open = append(s.open, children)
		default:
			s.itemDone()
		}
	}

	// the last payload may still be partial.
	if s.pos > len(data) {
		return 0, false, nil
	}
	end := s.pos
	s.pos, s.open, s.done = 0, s.open[:0], false
	return end, true, nil
}

func (s *frameScanner) itemDone() {
	for len(s.open) > 0 {
		top := len(s.open) - 1
		if s.open[top] < 0 {
			return
		}
		s.open[top]--
		if s.open[top] > 0 {
			return
		}
		s.open = s.open[:top]
	}
	s.done = true
}

// beUint reads a w-byte big-endian unsigned integer.
func beUint(p []byte, w int) (uint64, bool) {
	if len(p) < w {
		return 0, false
	}
	var n uint64
	for _, b := range p[:w] {
		n = n<<8 | uint64(b)
	}
	return n, true
}

func msgpackHeader(p []byte) (size, children int, brk bool, err error) {
	c := p[0]
	switch {
	case c <= 0x7f || c >= 0xe0:
		return 1, 0, false, nil
	case c <= 0x8f:
		return 1, 2 * int(c&0x0f), false, nil
	case c <= 0x9f:
		return 1, int(c&0x0f), false, nil
	case c <= 0xbf:
		return 1 + int(c&0x1f), 0, false, nil
	}

	// payload preceded by a w-byte length and extra type bytes
	sized := func(w, extra int) (int, int, bool, error) {
		n, ok := beUint(p[1:], w)
		if !ok {
			return 0, 0, false, nil
		}
		return 1 + w + extra + int(n), 0, false, nil
	}
	// container with a w-byte count of k items per entry
	container := func(w, k int) (int, int, bool, error) {
		n, ok := beUint(p[1:], w)
		if !ok {
			return 0, 0, false, nil
		}
		return 1 + w, k * int(n), false, nil
	}

	switch c {
	case 0xc0, 0xc2, 0xc3:
		return 1, 0, false, nil
	case 0xcc, 0xd0:
		return 2, 0, false, nil
	case 0xcd, 0xd1:
		return 3, 0, false, nil
	case 0xca, 0xce, 0xd2:
		return 5, 0, false, nil
	case 0xcb, 0xcf, 0xd3:
		return 9, 0, false, nil
	case 0xd4:
		return 3, 0, false, nil
	case 0xd5:
		return 4, 0, false, nil
	case 0xd6:
		return 6, 0, false, nil
	case 0xd7:
		return 10, 0, false, nil
	case 0xd8:
		return 18, 0, false, nil
	case 0xc4, 0xd9:
		return sized(1, 0)
	case 0xc5, 0xda:
		return sized(2, 0)
	case 0xc6, 0xdb:
		return sized(4, 0)
	case 0xc7:
		return sized(1, 1)
	case 0xc8:
		return sized(2, 1)
	case 0xc9:
		return sized(4, 1)
	case 0xdc:
		return container(2, 1)
	case 0xdd:
		return container(4, 1)
	case 0xde:
		return container(2, 2)
	case 0xdf:
		return container(4, 2)
	}
	return 0, 0, false, errReservedCode
}

func cborHeader(p []byte) (size, children int, brk bool, err error) {
	if p[0] == 0xff {
		return 1, 0, true, nil
	}
	major, ai := p[0]>>5, p[0]&0x1f

	hdr := 1
	var arg uint64
	switch {
	case ai < 24:
		arg = uint64(ai)
	case ai <= 27:
		w := 1 << (ai - 24)
		n, ok := beUint(p[1:], w)
		if !ok {
			return 0, 0, false, nil
		}
		hdr, arg = 1+w, n
	case ai == 31:
		switch major {
		case 2, 3, 4, 5:
			return 1, -1, false, nil
		}
		return 0, 0, false, errReservedCode
	default:
		return 0, 0, false, errReservedCode
	}

	switch major {
	case 0, 1, 7:
		return hdr, 0, false, nil
	}
	if arg > maxItemLen {
		return 0, 0, false, errItemTooLong
	}
	switch major {
	case 2, 3:
		return hdr + int(arg), 0, false, nil
	case 4:
		return hdr, int(arg), false, nil
	case 5:
		return hdr, 2 * int(arg), false, nil
	}
	// tag
	return hdr, 1, false, nil
}
