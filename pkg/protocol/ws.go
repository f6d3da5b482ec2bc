package protocol

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// WebSocket wraps one client connection. Writes are serialized; reads must
// come from a single goroutine.
type WebSocket struct {
	mu     sync.Mutex
	conn   *ws.Conn
	closed bool

	url    string
	reconn time.Duration
}

func NewWebSocket(url string, reconn time.Duration) (*WebSocket, error) {
	log.Debug("init websocket protocol", "url", url)

	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Error("Failed to dial url", "url", url, "err", err)
		return nil, err
	}

	return &WebSocket{url: url, reconn: reconn, conn: conn}, nil
}

func (web *WebSocket) Write(payload []byte) error {
	web.mu.Lock()
	defer web.mu.Unlock()
	if web.closed {
		return ErrClosed
	}

	log.Debug("Write ws", "msg", string(payload))
	return web.conn.WriteMessage(ws.TextMessage, payload)
}

type WsIncomeKind uint

const (
	CONN_CLOSE WsIncomeKind = iota
	READ_FAILURE
	READ_OK
)

type Income struct {
	kind WsIncomeKind
	msg  []byte
	err  error
}

func (web *WebSocket) current() *ws.Conn {
	web.mu.Lock()
	defer web.mu.Unlock()
	return web.conn
}

func (web *WebSocket) Read() Income {
	_, msg, err := web.current().ReadMessage()
	if err != nil {
		if WsIsClosed(err) {
			return Income{kind: CONN_CLOSE, err: err}
		}
		return Income{kind: READ_FAILURE, err: err}
	}

	log.Debug("Read ws", "msg", string(msg))
	return Income{kind: READ_OK, msg: msg}
}

// TryReconn dials until it succeeds, ctx is done, or the socket is closed.
func (web *WebSocket) TryReconn(ctx context.Context) error {
	for {
		web.mu.Lock()
		closed := web.closed
		web.mu.Unlock()
		if closed {
			return ErrClosed
		}

		conn, _, err := ws.DefaultDialer.DialContext(ctx, web.url, nil)
		if err == nil {
			web.mu.Lock()
			if web.closed {
				web.mu.Unlock()
				_ = conn.Close()
				return ErrClosed
			}
			_ = web.conn.Close()
			web.conn = conn
			web.mu.Unlock()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(web.reconn):
		}
	}
}

func (web *WebSocket) Close() error {
	web.mu.Lock()
	defer web.mu.Unlock()
	if web.closed {
		return nil
	}
	web.closed = true
	return web.conn.Close()
}

func WsIsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
