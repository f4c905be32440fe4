// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgchan

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"
)

// A net.Conn is a Stream, the runtime netpoller parks the reading and
// writing goroutines until the socket is ready.
var _ Stream = net.Conn(nil)

// Serve accepts sockets from l and constructs one connection for each,
// until ctx is done or l fails. New connections are published through
// cfg.Registry and live under ctx.
//
// Serve closes l when ctx is done and then returns nil.
func Serve(ctx context.Context, l net.Listener, cfg *Config) error {
	conf := cfg.withDefaults()
	return accepting(ctx, l, conf.Logger, func(nc net.Conn) {
		NewConn(ctx, nc, &conf)
	})
}

func accepting(ctx context.Context, l net.Listener, logger *zap.Logger, accepted func(net.Conn)) error {
	log := logger.With(zap.Stringer("listen", l.Addr()))

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	log.Info("serving")
	for {
		nc, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warn("accept", zap.Error(err))
				continue
			}
			return err
		}
		accepted(nc)
	}
}

// Dial connects to the address on the named network and constructs a
// connection over it. ctx bounds the dial only, use Close to tear the
// connection down.
func Dial(ctx context.Context, network, addr string, cfg *Config) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return NewConn(context.WithoutCancel(ctx), nc, cfg), nil
}
