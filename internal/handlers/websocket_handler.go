package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fotastore/server/internal/observability"
	"github.com/fotastore/server/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams store change events to observers
type WebSocketHandler struct {
	hub    *services.WebSocketHub
	scope  *services.AccountScope
	logger *observability.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *services.WebSocketHub, scope *services.AccountScope) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		scope:  scope,
		logger: observability.GetLogger().WithField("component", "websocket"),
	}
}

// HandleConnection upgrades HTTP to WebSocket. The client is subscribed to
// account switches and, when given accountId or when an account is current,
// to that account's upgrade and transaction topics.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		if current := h.scope.Current(); current != nil {
			accountID = current.ID
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := h.hub.NewClient(uuid.New().String(), conn)
	h.hub.Register(client)

	h.hub.Subscribe(client, services.TopicAccounts)
	if accountID != "" {
		h.hub.Subscribe(client, services.AccountTopic(services.TopicUpgrades, accountID))
		h.hub.Subscribe(client, services.AccountTopic(services.TopicTransactions, accountID))
	}

	go client.WritePump()
	client.ReadPump(h.handleMessage)
}

// handleMessage processes subscribe, unsubscribe and ping frames
func (h *WebSocketHandler) handleMessage(client *services.WSClient, messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		return
	}

	var msg services.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.WithField("client_id", client.ID).WithError(err).Debug("Invalid WebSocket message")
		return
	}

	switch msg.Type {
	case services.WSTypeSubscribe:
		if topic := topicFromPayload(msg.Payload); topic != "" {
			h.hub.Subscribe(client, topic)
		}

	case services.WSTypeUnsubscribe:
		if topic := topicFromPayload(msg.Payload); topic != "" {
			h.hub.Unsubscribe(client, topic)
		}

	case services.WSTypePing:
		if data, err := json.Marshal(services.WSMessage{Type: services.WSTypePong}); err == nil {
			select {
			case client.Send <- data:
			default:
			}
		}

	default:
		h.logger.WithField("type", msg.Type).Debug("Unknown WebSocket message type")
	}
}

// topicFromPayload accepts either "topic" or {"topic": "..."}
func topicFromPayload(payload interface{}) string {
	switch p := payload.(type) {
	case string:
		return p
	case map[string]interface{}:
		if topic, ok := p["topic"].(string); ok {
			return topic
		}
	}
	return ""
}
