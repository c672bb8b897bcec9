package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"panicdesk/internal/utils"
	"panicdesk/pkg/logger"
)

// Hub fans console state changes out to every browser tab of the operator UI.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger

	commands CommandHandler
	welcome  func(operatorID string) interface{}
}

// Message is one frame sent to or received from a console UI client.
type Message struct {
	Type       string          `json:"type"`
	OperatorID string          `json:"operator_id,omitempty"`
	Timestamp  int64           `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// CommandHandler receives operator actions sent over the UI socket.
type CommandHandler interface {
	HandleCommand(operatorID, command string, data json.RawMessage)
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log.WithComponent("ui_hub"),
	}
}

// SetCommandHandler must be called before Run.
func (h *Hub) SetCommandHandler(handler CommandHandler) {
	h.commands = handler
}

// SetWelcomeProvider supplies the state sent to a client right after it joins.
// It must be called before Run.
func (h *Hub) SetWelcomeProvider(provider func(operatorID string) interface{}) {
	h.welcome = provider
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.sendToAll(message)
		}
	}
}

// Broadcast queues a typed message for every connected client.
func (h *Hub) Broadcast(messageType string, data interface{}) error {
	message, err := newMessage(messageType, "", data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- payload:
	default:
		h.logger.WithField("type", messageType).Warn("UI hub broadcast queue full, message dropped")
	}
	return nil
}

// ClientCount returns the number of connected UI clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	h.clients[client] = true
	h.mutex.Unlock()

	h.logger.WithOperatorID(client.OperatorID).Info("UI client registered")

	var data interface{} = map[string]interface{}{"message": "Connected successfully"}
	if h.welcome != nil {
		data = h.welcome(client.OperatorID)
	}
	welcomeMsg, err := newMessage(utils.MessageWelcome, client.OperatorID, data)
	if err != nil {
		h.logger.WithError(err).Error("Failed to build welcome message")
		return
	}
	payload, _ := json.Marshal(welcomeMsg)
	h.sendToClient(client, payload)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.logger.WithOperatorID(client.OperatorID).Info("UI client unregistered")
	}
}

func (h *Hub) sendToAll(payload []byte) {
	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		h.sendToClient(client, payload)
	}
}

// sendToClient runs on the Run goroutine only; a client that cannot keep up is dropped.
func (h *Hub) sendToClient(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		h.logger.WithOperatorID(client.OperatorID).Warn("UI client too slow, dropping")
		h.unregisterClient(client)
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) handleCommand(client *Client, msg Message) {
	if h.commands == nil {
		return
	}
	h.commands.HandleCommand(client.OperatorID, msg.Type, msg.Data)
}

func newMessage(messageType, operatorID string, data interface{}) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:       messageType,
		OperatorID: operatorID,
		Timestamp:  getCurrentTimestamp(),
		Data:       raw,
	}, nil
}

func getCurrentTimestamp() int64 {
	return time.Now().Unix()
}
