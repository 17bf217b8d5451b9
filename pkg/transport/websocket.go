package transport

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/collab/pkg/logging"
	"github.com/DeBrosOfficial/collab/pkg/protocol"
)

// SocketPath is the Host's websocket endpoint.
const SocketPath = "/socket"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Peers are trusted LAN instances.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsConn struct {
	conn   *websocket.Conn
	opts   Options
	logger *logging.ColoredLogger

	send   chan []byte
	inbox  chan protocol.Message
	closed chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

// Upgrade accepts a websocket session on an HTTP request.
func Upgrade(w http.ResponseWriter, r *http.Request, opts Options, logger *logging.ColoredLogger) (Conn, error) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newWSConn(c, opts, logger), nil
}

func newWSConn(c *websocket.Conn, opts Options, logger *logging.ColoredLogger) *wsConn {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	opts = opts.withDefaults()
	wc := &wsConn{
		conn:   c,
		opts:   opts,
		logger: logger,
		send:   make(chan []byte, opts.SendQueueSize),
		inbox:  make(chan protocol.Message, opts.SendQueueSize),
		closed: make(chan struct{}),
	}
	go wc.writerLoop()
	go wc.readerLoop()
	return wc
}

func (c *wsConn) Send(msg protocol.Message) error {
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.closed:
		return ErrClosed
	default:
		c.logger.ComponentWarn(logging.ComponentHost, "Peer too slow, closing connection",
			zap.String("remote", c.RemoteAddr()),
			zap.String("event", string(msg.Event())))
		c.fail(ErrSlowConsumer)
		return ErrSlowConsumer
	}
}

func (c *wsConn) Inbox() <-chan protocol.Message { return c.inbox }

func (c *wsConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *wsConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *wsConn) Close() error {
	c.fail(ErrClosed)
	return nil
}

// fail records the first reason and tears the socket down so both loops exit.
func (c *wsConn) fail(reason error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = reason
		c.mu.Unlock()
		close(c.closed)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
	})
}

func (c *wsConn) writerLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.fail(err)
				return
			}

		case <-ticker.C:
			// Ping keepalive
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"),
				time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.fail(err)
				return
			}

		case <-c.closed:
			return
		}
	}
}

func (c *wsConn) readerLoop() {
	defer close(c.inbox)

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	readTimeout := 2 * c.opts.PingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.ComponentDebug(logging.ComponentGeneral, "Ignoring undecodable message",
				zap.String("remote", c.RemoteAddr()),
				zap.Error(err))
			continue
		}

		select {
		case c.inbox <- msg:
		case <-c.closed:
			return
		}
	}
}

// WebsocketDialer dials a Host's /socket endpoint.
type WebsocketDialer struct {
	Options          Options
	HandshakeTimeout time.Duration
	Logger           *logging.ColoredLogger
}

// Dial connects to addr (host:port).
func (d *WebsocketDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: SocketPath}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	c, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, &HandshakeError{Status: resp.StatusCode}
		}
		return nil, err
	}
	return newWSConn(c, d.Options, d.Logger), nil
}

// HandshakeError reports a non-101 upgrade response.
type HandshakeError struct {
	Status int
}

func (e *HandshakeError) Error() string {
	return "websocket handshake failed: " + http.StatusText(e.Status)
}
