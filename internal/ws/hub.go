package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages stream subscriptions by bot ID.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

// message couples payload with bot identifier.
type message struct {
	botID   string
	payload []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	botID  string
	client Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.botID]; !ok {
				h.clients[sub.botID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.botID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.botID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.botID)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.botID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.botID)
				}
			}
		}
	}
}

// Register adds a client to a bot's event stream.
func (h *Hub) Register(botID string, client Subscriber) {
	h.register <- subscription{botID: botID, client: client}
}

// Unregister removes a client.
func (h *Hub) Unregister(botID string, client Subscriber) {
	h.unreg <- subscription{botID: botID, client: client}
}

// Broadcast sends payload to all clients subscribed to a bot.
func (h *Hub) Broadcast(botID string, payload []byte) {
	h.broadcast <- message{botID: botID, payload: payload}
}
