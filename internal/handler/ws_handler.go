package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"quillsync/internal/service"
	"quillsync/internal/websocket"
)

// WebSocketHandler upgrades local UI connections onto the status stream.
// The endpoint binds to loopback only, so there is no token handshake;
// the stream carries no note content, only sync state.
type WebSocketHandler struct {
	manager  *websocket.Manager
	upgrader ws.Upgrader
	logger   *slog.Logger
}

func NewWebSocketHandler(manager *websocket.Manager, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		logger:  logger.With("component", "ws_handler"),
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	client := websocket.NewClient(uuid.New().String(), conn, h.manager)
	h.manager.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// WebSocketMessageHandler reacts to messages from connected UI clients.
type WebSocketMessageHandler struct {
	engine *service.SyncEngine
	logger *slog.Logger
}

func NewWebSocketMessageHandler(engine *service.SyncEngine, logger *slog.Logger) *WebSocketMessageHandler {
	return &WebSocketMessageHandler{
		engine: engine,
		logger: logger.With("component", "ws_messages"),
	}
}

func (h *WebSocketMessageHandler) HandleWebSocketMessage(client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeSyncRequest:
		return h.handleSyncRequest(client)

	case websocket.TypePing:
		return h.handlePing(client)

	default:
		h.logger.Warn("unknown message type", "type", msg.Type)
	}
	return nil
}

func (h *WebSocketMessageHandler) handleSyncRequest(client *websocket.Client) error {
	// Runs detached from any request; the status stream reports progress.
	go func() {
		result, err := h.engine.Synchronize(context.Background())
		if err != nil &&
			!errors.Is(err, service.ErrSyncInProgress) &&
			!errors.Is(err, service.ErrSyncDebounced) {
			h.logger.Warn("sync request failed", "error", err)
		}
		if result == nil {
			return
		}
		resultMsg, err := websocket.NewMessage(websocket.TypeSyncResult, &websocket.ResultPayload{Result: result})
		if err != nil {
			return
		}
		resultBytes, _ := json.Marshal(resultMsg)
		select {
		case client.Send <- resultBytes:
		default:
		}
	}()
	return nil
}

func (h *WebSocketMessageHandler) handlePing(client *websocket.Client) error {
	pongMsg, err := websocket.NewMessage(websocket.TypePong, nil)
	if err != nil {
		return err
	}

	pongBytes, _ := json.Marshal(pongMsg)
	select {
	case client.Send <- pongBytes:
	default:
	}
	return nil
}
