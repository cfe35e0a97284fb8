package transport

import (
	"context"
	"errors"
	"net"

	"github.com/muurk/hbootdbg/internal/logging"
	"go.uber.org/zap"
)

// AcceptTCP listens on addr and returns the first client that connects.
// The listener is closed once the client is accepted, so the bridge serves
// exactly one debugger at a time.
func AcceptTCP(ctx context.Context, addr string) (*Stream, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Endpoint: addr, Err: err}
	}
	defer ln.Close()

	logging.Info("Waiting for debugger", zap.String("addr", ln.Addr().String()))

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, net.ErrClosed) {
			return nil, ctx.Err()
		}
		return nil, &ConnectionError{Endpoint: addr, Err: err}
	}

	logging.LogConnection(conn.RemoteAddr().String(), "connection_accepted")
	return NewStream(conn, 0), nil
}
