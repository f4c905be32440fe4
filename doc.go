// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package msgchan provides a bidirectional message channel over a byte
// stream.
//
// A Conn owns one stream (a TCP socket, a WebSocket, anything with Read,
// Write and Close). Its reading loop decodes the incoming bytes into
// messages and queues them for Receive, its writing loop encodes the
// messages queued by Send and writes them in order. Values may span any
// number of reads, a read may carry many values.
//
// The wire format is a plain concatenation of self-delimiting values,
// msgpack by default (MsgpackCodec), CBOR optionally (CBORCodec). Bytes
// that can not be decoded tear the connection down, a value that is
// only incomplete waits for more bytes.
//
// A Registry publishes every new connection exactly once, in the order
// they were constructed, to a Watcher that serves each one.
//
// Here is a quick example, an echo server.
//
//	func echo(ctx context.Context, c *msgchan.Conn) {
//		for {
//			m, err := c.Receive(ctx)
//			if err != nil {
//				return
//			}
//			if err := c.Send(ctx, m); err != nil {
//				return
//			}
//		}
//	}
//
//	func server(ctx context.Context) error {
//		l, err := net.Listen("tcp", TheAddr)
//		if err != nil {
//			return err
//		}
//
//		r := msgchan.NewRegistry()
//		defer r.Close()
//		go msgchan.Watch(ctx, r, msgchan.HandlerFunc(echo))
//
//		return msgchan.Serve(ctx, l, &msgchan.Config{Registry: r})
//	}
//
// And the client.
//
//	c, err := msgchan.Dial(ctx, "tcp", TheAddr, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	c.Send(ctx, map[string]interface{}{"op": "ping"})
//	m, err := c.Receive(ctx)
package msgchan
