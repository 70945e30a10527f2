package server

import (
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leoalsantos/custosmart-chat/internal/transport"
	"github.com/leoalsantos/custosmart-chat/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one websocket connection to the hub.
type Client struct {
	sessionId string
	conn      *websocket.Conn
	hub       *Hub
	log       *log.Logger
	user      types.ChatUser
	send      chan *transport.ServerEvent
	stop      chan struct{}
}

func NewClient(sessionId string, user types.ChatUser, conn *websocket.Conn, hub *Hub, l *log.Logger) *Client {
	return &Client{
		sessionId: sessionId,
		conn:      conn,
		hub:       hub,
		log:       l,
		user:      user,
		send:      make(chan *transport.ServerEvent, 256),
		stop:      make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}

			raw, err := transport.EncodeServerEvent(ev)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.hub.deregisterChan <- c
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		ev, err := transport.DecodeClientEvent(raw)
		if err != nil {
			c.log.Printf("session %s: invalid event: %v", c.sessionId, err)
			c.queueEvent(&transport.ServerEvent{Error: &transport.ServerError{Message: "invalid event"}})
			continue
		}

		select {
		case c.hub.eventChan <- &clientEvent{client: c, event: ev}:
		default:
			c.log.Printf("event channel full, dropping event from session %s", c.sessionId)
			c.queueEvent(&transport.ServerEvent{Error: &transport.ServerError{Message: "service unavailable"}})
		}
	}
}

func (c *Client) queueEvent(ev *transport.ServerEvent) bool {
	select {
	case c.send <- ev:
	default:
		c.log.Printf("send channel full for session %s", c.sessionId)
		return false
	}

	return true
}

func (c *Client) stopClient() {
	close(c.stop)
}
