package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/muurk/hbootdbg/internal/logging"
	"go.uber.org/zap"
)

// WebSocket carries the RSP byte stream in binary WebSocket messages. Message
// boundaries carry no meaning; Receive hands out the payload as a stream.
type WebSocket struct {
	conn    *websocket.Conn
	pending []byte
	mu      sync.Mutex // serializes writers
}

// NewWebSocket wraps an established connection.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn}
}

// Receive returns at most max bytes, reading a new message when the previous
// one has been consumed. A close frame is reported as io.EOF.
func (w *WebSocket) Receive(max int) ([]byte, error) {
	if max <= 0 {
		return nil, nil
	}
	for len(w.pending) == 0 {
		msgType, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, net.ErrClosed) {
				return nil, io.EOF
			}
			return nil, err
		}
		if msgType != websocket.BinaryMessage && msgType != websocket.TextMessage {
			continue
		}
		w.pending = data
	}

	n := min(max, len(w.pending))
	out := w.pending[:n:n]
	w.pending = w.pending[n:]
	return out, nil
}

// Send writes p as one binary message.
func (w *WebSocket) Send(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.BinaryMessage, p)
}

// Close sends a close frame and closes the connection.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	_ = w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	w.mu.Unlock()
	return w.conn.Close()
}

// AcceptWebSocket serves an HTTP endpoint at addr and upgrades the first
// request to path. Later requests are refused with 409 until the listener
// is torn down, which happens as soon as the first client is accepted.
func AcceptWebSocket(ctx context.Context, addr, path string) (*WebSocket, error) {
	if path == "" {
		path = "/"
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Endpoint: addr, Err: err}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	accepted := make(chan *websocket.Conn, 1)
	var taken atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(rw http.ResponseWriter, r *http.Request) {
		if !taken.CompareAndSwap(false, true) {
			http.Error(rw, "debugger already attached", http.StatusConflict)
			return
		}
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			logging.Warn("WebSocket upgrade failed",
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err),
			)
			taken.Store(false)
			return
		}
		accepted <- conn
	})

	srv := &http.Server{Handler: mux}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	// Upgraded connections are hijacked and survive the server close.
	defer srv.Close()

	logging.Info("Waiting for debugger",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", path),
	)

	select {
	case conn := <-accepted:
		logging.LogConnection(conn.RemoteAddr().String(), "websocket_upgraded")
		return NewWebSocket(conn), nil
	case err := <-serveErr:
		return nil, &ConnectionError{Endpoint: addr, Err: err}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
