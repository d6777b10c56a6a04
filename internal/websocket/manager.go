package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// MessageHandler receives decoded client messages; the sync handler
// implements it to trigger runs from the status stream.
type MessageHandler interface {
	HandleWebSocketMessage(client *Client, msg *Message) error
}

// Manager fans sync status messages out to connected UI clients. A local
// app typically has one or two (main window plus quick-capture widget),
// so there is no per-user index.
type Manager struct {
	clients        map[string]*Client
	clientsMutex   sync.RWMutex
	Register       chan *Client
	Unregister     chan *Client
	HandleMessage  chan *ClientMessage
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	messageHandler MessageHandler
	logger         *slog.Logger
}

func NewManager(writeWait, pongWait, pingPeriod time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		clients:       make(map[string]*Client),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		HandleMessage: make(chan *ClientMessage),
		writeWait:     writeWait,
		pongWait:      pongWait,
		pingPeriod:    pingPeriod,
		logger:        logger.With("component", "websocket"),
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

func (m *Manager) Run() {
	for {
		select {
		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	m.clients[client.ID] = client
	m.logger.Info("client registered", "client_id", client.ID)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		close(client.Send)
		m.logger.Info("client unregistered", "client_id", client.ID)
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.logger.Warn("failed to unmarshal client message", "error", err)
		return
	}

	if m.messageHandler != nil {
		if err := m.messageHandler.HandleWebSocketMessage(clientMsg.Client, &msg); err != nil {
			m.logger.Warn("failed to handle client message", "error", err)
		}
	}
}

// Broadcast sends a message to every connected client. Clients with a
// full send buffer are dropped rather than blocking the broadcaster.
func (m *Manager) Broadcast(message *Message) error {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	for clientID, client := range m.clients {
		select {
		case client.Send <- messageBytes:
		default:
			m.logger.Warn("client send buffer full, closing", "client_id", clientID)
			go func(c *Client) { m.Unregister <- c }(client)
		}
	}
	return nil
}

// SendToClient delivers a message to one client, best effort.
func (m *Manager) SendToClient(clientID string, message *Message) error {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case client.Send <- messageBytes:
	default:
		m.logger.Warn("client send buffer full", "client_id", clientID)
	}
	return nil
}

func (m *Manager) ClientCount() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}
