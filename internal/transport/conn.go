package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leoalsantos/custosmart-chat/internal/auth"
	"github.com/leoalsantos/custosmart-chat/internal/notify"
	"github.com/leoalsantos/custosmart-chat/internal/stats"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	defaultReconnectDelay = 3000 * time.Millisecond
	defaultMaxReconnects  = 5
)

var ErrNotConnected = errors.New("transport not connected")

type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Socket is the subset of *websocket.Conn the manager needs. Tests
// substitute an in-memory implementation.
type Socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type DialFunc func(ctx context.Context) (Socket, error)

// WebsocketDialer returns a DialFunc opening a gorilla websocket against
// serverURL with the session token and user id attached as handshake
// metadata.
func WebsocketDialer(serverURL, sessionToken string, identity auth.Identity) DialFunc {
	return func(ctx context.Context) (Socket, error) {
		u, err := url.Parse(serverURL)
		if err != nil {
			return nil, fmt.Errorf("parse server url: %w", err)
		}
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		}
		u.Path = "/ws"
		q := u.Query()
		q.Set("userId", strconv.Itoa(identity.UserId))
		u.RawQuery = q.Encode()

		header := http.Header{}
		header.Set("Authorization", "Bearer "+sessionToken)

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", u.String(), err)
		}
		return conn, nil
	}
}

// Conn owns the single bidirectional connection to the messaging server.
// It is explicitly constructed and injected; there is no package-level
// singleton. Inbound frames are decoded into ServerEvents and delivered
// on Events() for the sync engine to reduce.
type Conn struct {
	log      *log.Logger
	dial     DialFunc
	identity auth.Identity
	notifier notify.Notifier
	stats    stats.StatsProvider

	// ReconnectDelay is fixed, not backed off. Attempts are capped at
	// MaxReconnects, after which the connection settles in Failed.
	ReconnectDelay time.Duration
	MaxReconnects  int

	events chan *ServerEvent

	mu         sync.Mutex
	state      ConnState
	sock       Socket
	sendCh     chan []byte
	stopCh     chan struct{} // per-connection, closed on teardown
	retryTimer *time.Timer
	retries    int
	gen        int
	closed     bool // manual Disconnect, suppresses reconnection
}

func NewConn(l *log.Logger, dial DialFunc, identity auth.Identity, n notify.Notifier, sp stats.StatsProvider) *Conn {
	return &Conn{
		log:            l,
		dial:           dial,
		identity:       identity,
		notifier:       n,
		stats:          sp,
		ReconnectDelay: defaultReconnectDelay,
		MaxReconnects:  defaultMaxReconnects,
		events:         make(chan *ServerEvent, 256),
		sendCh:         make(chan []byte, 256),
	}
}

// Events delivers decoded inbound events until Disconnect.
func (c *Conn) Events() <-chan *ServerEvent {
	return c.events
}

func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) Connected() bool {
	return c.State() == Connected
}

// Connect opens the connection. It is a no-op when no authenticated
// identity is present and idempotent while a connection is open or
// being opened.
func (c *Conn) Connect() error {
	if c.identity.UserId == 0 {
		c.log.Println("no authenticated identity, skipping connect")
		return nil
	}

	c.mu.Lock()
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return nil
	}
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.closed = false
	c.state = Connecting
	c.mu.Unlock()

	return c.establish()
}

func (c *Conn) establish() error {
	sock, err := c.dial(context.Background())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if sock != nil {
			sock.Close()
		}
		return nil
	}

	if err != nil {
		c.log.Println("connect:", err)
		// a concurrent Connect may have won the race while this dial
		// was in flight; its connection stays authoritative
		if c.state != Connected {
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
		return err
	}

	c.gen++
	gen := c.gen
	// only one connection may be open; tear down any socket a racing
	// dial installed first
	if c.sock != nil {
		c.sock.Close()
	}
	if c.stopCh != nil {
		close(c.stopCh)
	}
	c.sock = sock
	c.state = Connected
	c.retries = 0
	stop := make(chan struct{})
	c.stopCh = stop
	c.mu.Unlock()

	c.stats.Incr(stats.Connects)
	c.log.Println("connected to chat server")

	go c.readPump(sock, gen)
	go c.writePump(sock, stop)

	return nil
}

// Disconnect closes the connection and cancels any pending reconnection
// attempt. The retry counter is reset.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.closed = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.retries = 0
	c.state = Disconnected
	sock := c.sock
	c.sock = nil
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	c.mu.Unlock()

	if sock != nil {
		sock.Close()
	}
}

// Emit queues an outbound event. Returns ErrNotConnected unless the
// connection is currently up.
func (c *Conn) Emit(ev *ClientEvent) error {
	if !c.Connected() {
		return ErrNotConnected
	}

	raw, err := ev.Encode()
	if err != nil {
		return err
	}

	select {
	case c.sendCh <- raw:
		c.stats.Incr(stats.MessagesSent)
		return nil
	default:
		return fmt.Errorf("send queue full")
	}
}

func (c *Conn) readPump(sock Socket, gen int) {
	defer c.handleDrop(gen)

	sock.SetReadLimit(maxMessageSize)
	sock.SetReadDeadline(time.Now().Add(pongWait))
	sock.SetPongHandler(func(appData string) error { sock.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			return
		}

		ev, err := DecodeServerEvent(raw)
		if err != nil {
			c.log.Println("dropping undecodable frame:", err)
			continue
		}

		if ev.Error != nil {
			// transport-level errors are non-fatal, surface and move on
			c.notifier.Notify(notify.Notification{
				Severity: notify.SeverityError,
				Title:    "Chat error",
				Detail:   ev.Error.Message,
			})
		}

		c.stats.Incr(stats.MessagesReceived)

		select {
		case c.events <- ev:
		default:
			c.log.Println("event queue full, dropping event")
		}
	}
}

func (c *Conn) writePump(sock Socket, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		sock.Close()
	}()

	for {
		select {
		case raw := <-c.sendCh:
			sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sock.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.log.Println("write message:", err)
				return
			}
		case <-ticker.C:
			sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// handleDrop runs when a connection's read pump exits. Unless the drop
// was a manual Disconnect, a reconnection attempt is scheduled.
func (c *Conn) handleDrop(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		// a newer connection already took over
		return
	}

	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}

	if c.closed {
		c.state = Disconnected
		return
	}

	c.stats.Incr(stats.Disconnects)
	c.log.Println("disconnected from chat server")
	c.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the fixed-delay retry timer, or settles
// in Failed once the attempt budget is spent. The counter only resets
// on a successful connect. Callers hold c.mu.
func (c *Conn) scheduleReconnectLocked() {
	if c.retries >= c.MaxReconnects {
		c.state = Failed
		c.notifier.Notify(notify.Notification{
			Severity: notify.SeverityError,
			Title:    "Connection error",
			Detail:   "Unable to re-establish the chat connection.",
			Sticky:   true,
		})
		return
	}

	c.state = Reconnecting
	c.retryTimer = time.AfterFunc(c.ReconnectDelay, func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.retries++
		attempt := c.retries
		// Connecting while the dial is in flight, so the Connect
		// idempotency guard covers the retry path too
		c.state = Connecting
		c.mu.Unlock()

		c.log.Printf("reconnect attempt %d of %d", attempt, c.MaxReconnects)
		c.stats.Incr(stats.ReconnectAttempts)
		c.establish()
	})
}
