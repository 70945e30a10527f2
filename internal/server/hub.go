package server

import (
	"log"

	"github.com/leoalsantos/custosmart-chat/internal/stats"
	"github.com/leoalsantos/custosmart-chat/internal/transport"
	"github.com/leoalsantos/custosmart-chat/internal/types"
)

type clientEvent struct {
	client *Client
	event  *transport.ClientEvent
}

// Hub routes events between connected clients. All room membership,
// presence and typing bookkeeping happens on the Run goroutine.
type Hub struct {
	log   *log.Logger
	store *Store
	stats stats.StatsProvider

	RegisterChan   chan *Client
	deregisterChan chan *Client
	eventChan      chan *clientEvent

	clients map[*Client]struct{}
	members map[int]map[*Client]struct{}
	typing  map[int]map[int]struct{}

	stop chan struct{}
	done chan struct{}
}

func NewHub(logger *log.Logger, store *Store, sp stats.StatsProvider) *Hub {
	return &Hub{
		log:            logger,
		store:          store,
		stats:          sp,
		RegisterChan:   make(chan *Client),
		deregisterChan: make(chan *Client),
		eventChan:      make(chan *clientEvent, 256),
		clients:        make(map[*Client]struct{}),
		members:        make(map[int]map[*Client]struct{}),
		typing:         make(map[int]map[int]struct{}),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.RegisterChan:
			h.log.Printf("adding connection %s from %q", client.sessionId, client.user.Username)
			h.clients[client] = struct{}{}
			h.stats.Incr(stats.Connects)
			h.broadcastOnline()
		case client := <-h.deregisterChan:
			h.log.Printf("removing connection %s from %q", client.sessionId, client.user.Username)
			h.removeClient(client)
			h.stats.Incr(stats.Disconnects)
			h.broadcastOnline()
		case ce := <-h.eventChan:
			h.handleEvent(ce)
		case <-h.stop:
			for client := range h.clients {
				client.stopClient()
			}
			close(h.done)
			return
		}
	}
}

func (h *Hub) Shutdown() {
	close(h.stop)
	<-h.done
}

func (h *Hub) handleEvent(ce *clientEvent) {
	switch {
	case ce.event.Join != nil:
		h.handleJoin(ce.client, ce.event.Join)
	case ce.event.Leave != nil:
		h.handleLeave(ce.client, ce.event.Leave)
	case ce.event.Send != nil:
		h.handleSend(ce.client, ce.event.Send)
	case ce.event.Typing != nil:
		h.handleTyping(ce.client, ce.event.Typing)
	case ce.event.Delete != nil:
		h.handleDelete(ce.client, ce.event.Delete)
	}
}

func (h *Hub) handleJoin(c *Client, join *transport.JoinRoom) {
	if _, ok := h.store.Room(join.RoomId); !ok {
		c.queueEvent(&transport.ServerEvent{Error: &transport.ServerError{Message: "room not found"}})
		return
	}

	if h.members[join.RoomId] == nil {
		h.members[join.RoomId] = make(map[*Client]struct{})
	}
	h.members[join.RoomId][c] = struct{}{}

	// history is pushed asynchronously after the join
	c.queueEvent(&transport.ServerEvent{RoomHistory: &transport.RoomHistory{
		RoomId:   join.RoomId,
		Messages: h.store.History(join.RoomId),
	}})
}

func (h *Hub) handleLeave(c *Client, leave *transport.LeaveRoom) {
	if members, ok := h.members[leave.RoomId]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.members, leave.RoomId)
		}
	}

	h.clearTyping(leave.RoomId, c.user.Id)
}

func (h *Hub) handleSend(c *Client, send *transport.SendMessage) {
	if _, ok := h.store.Room(send.RoomId); !ok {
		c.queueEvent(&transport.ServerEvent{Error: &transport.ServerError{Message: "room not found"}})
		return
	}

	sender := c.user
	msg := h.store.AppendMessage(types.ChatMessage{
		RoomId:        send.RoomId,
		UserId:        c.user.Id,
		Content:       send.Content,
		Type:          send.Type,
		Read:          true,
		CorrelationId: send.CorrelationId,
		Sender:        &sender,
	})

	h.stats.Incr(stats.MessagesReceived)
	h.broadcastToRoom(send.RoomId, &transport.ServerEvent{NewMessage: &msg})
	h.clearTyping(send.RoomId, c.user.Id)
}

func (h *Hub) handleTyping(c *Client, typing *transport.Typing) {
	if typing.IsTyping {
		if h.typing[typing.RoomId] == nil {
			h.typing[typing.RoomId] = make(map[int]struct{})
		}
		h.typing[typing.RoomId][c.user.Id] = struct{}{}
		h.broadcastTyping(typing.RoomId)
		return
	}

	h.clearTyping(typing.RoomId, c.user.Id)
}

func (h *Hub) handleDelete(c *Client, del *transport.DeleteRoom) {
	if !h.store.DeleteRoom(del.RoomId) {
		c.queueEvent(&transport.ServerEvent{Error: &transport.ServerError{Message: "room not found"}})
		return
	}

	delete(h.members, del.RoomId)
	delete(h.typing, del.RoomId)

	// every connected client mirrors the room list, so all of them
	// hear about the deletion
	for client := range h.clients {
		client.queueEvent(&transport.ServerEvent{RoomDeleted: &transport.RoomDeleted{RoomId: del.RoomId}})
	}
	c.queueEvent(&transport.ServerEvent{RoomDeleteSuccess: &transport.RoomDeleteSuccess{RoomId: del.RoomId}})
}

// clearTyping removes the user from the room's typing set and pushes
// the updated set when it changed.
func (h *Hub) clearTyping(roomId, userId int) {
	set, ok := h.typing[roomId]
	if !ok {
		return
	}
	if _, ok := set[userId]; !ok {
		return
	}

	delete(set, userId)
	if len(set) == 0 {
		delete(h.typing, roomId)
	}
	h.broadcastTyping(roomId)
}

func (h *Hub) broadcastTyping(roomId int) {
	users := make([]int, 0, len(h.typing[roomId]))
	for id := range h.typing[roomId] {
		users = append(users, id)
	}

	h.broadcastToRoom(roomId, &transport.ServerEvent{UserTyping: &transport.UserTyping{
		RoomId: roomId,
		Users:  users,
	}})
}

func (h *Hub) broadcastToRoom(roomId int, ev *transport.ServerEvent) {
	for client := range h.members[roomId] {
		client.queueEvent(ev)
	}
}

// broadcastOnline pushes the full online set to every client; presence
// is always a full replacement, never a patch.
func (h *Hub) broadcastOnline() {
	seen := make(map[int]struct{}, len(h.clients))
	userIds := make([]int, 0, len(h.clients))
	for client := range h.clients {
		if _, ok := seen[client.user.Id]; ok {
			continue
		}
		seen[client.user.Id] = struct{}{}
		userIds = append(userIds, client.user.Id)
	}

	for client := range h.clients {
		client.queueEvent(&transport.ServerEvent{OnlineUsers: &transport.OnlineUsers{UserIds: userIds}})
	}
}

func (h *Hub) removeClient(c *Client) {
	delete(h.clients, c)
	for roomId, members := range h.members {
		if _, ok := members[c]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.members, roomId)
			}
			h.clearTyping(roomId, c.user.Id)
		}
	}
}
