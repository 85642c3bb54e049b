package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/log"
	"github.com/on-cure/oncare/internal/metrics"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	closeGracePeriod        = time.Second
)

// WSDialer dials the backend websocket endpoint, presenting the session
// cookie from Jar.
type WSDialer struct {
	URL              string
	Jar              http.CookieJar
	Header           http.Header
	HandshakeTimeout time.Duration
	// PingInterval enables keepalive pings. The connection is considered
	// dead after two missed pongs. Zero disables keepalive.
	PingInterval time.Duration
	Logger       *log.Logger
	Metrics      *metrics.Metrics
}

// Dial opens the websocket and starts its read loop.
func (d *WSDialer) Dial(ctx context.Context, handler Handler) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		Jar:              d.Jar,
	}

	ws, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		dialErr := errors.ChannelDial(d.URL, err)
		if resp != nil {
			dialErr.WithStatus(resp.StatusCode)
			resp.Body.Close()
		}
		return nil, dialErr
	}

	logger := d.Logger
	if logger == nil {
		logger = log.Discard()
	}

	c := &wsConn{
		ws:      ws,
		handler: handler,
		logger:  logger.WithComponent("realtime"),
		metrics: d.Metrics,
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}

	if d.PingInterval > 0 {
		deadline := 2 * d.PingInterval
		_ = ws.SetReadDeadline(time.Now().Add(deadline))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(deadline))
		})
		c.wg.Add(1)
		go c.pingLoop(d.PingInterval)
	}

	c.wg.Add(1)
	go c.readLoop()

	c.logger.Debug("realtime channel open", "url", d.URL)
	return c, nil
}

type wsConn struct {
	ws      *websocket.Conn
	handler Handler
	logger  *log.Logger
	metrics *metrics.Metrics

	writeMu   sync.Mutex
	closeOnce sync.Once
	wg        sync.WaitGroup
	stop      chan struct{}
	done      chan struct{}

	mu      sync.Mutex
	closing bool
	err     error
}

func (c *wsConn) Done() <-chan struct{} { return c.done }

func (c *wsConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()
		close(c.stop)

		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(closeGracePeriod))
		c.writeMu.Unlock()

		_ = c.ws.Close()
		c.wg.Wait()
	})
	<-c.done
	return nil
}

func (c *wsConn) readLoop() {
	defer c.wg.Done()
	defer c.finish()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if !c.closing {
				c.err = errors.Wrap(errors.ErrCodeChannelClosed, "realtime channel closed by peer", err)
			}
			c.mu.Unlock()
			_ = c.ws.Close()
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("dropping undecodable realtime frame", "error", err, "bytes", len(data))
			continue
		}
		msg.ReceivedAt = time.Now()
		c.metrics.RecordChannelMessage(msg.Type)
		if c.handler != nil {
			c.handler(msg)
		}
	}
}

func (c *wsConn) pingLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("realtime ping failed", "error", err)
				return
			}
		}
	}
}

func (c *wsConn) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}
