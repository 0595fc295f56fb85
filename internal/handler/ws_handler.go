package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/trailchat/internal/audit"
	"github.com/weiawesome/trailchat/internal/config"
	"github.com/weiawesome/trailchat/internal/connection"
	"github.com/weiawesome/trailchat/internal/hub"
	"github.com/weiawesome/trailchat/pkg/log"
	"github.com/weiawesome/trailchat/pkg/middleware"
	"github.com/weiawesome/trailchat/pkg/response"
)

// WSHandler terminates websocket connections.
type WSHandler struct {
	manager  *connection.Manager
	verifier middleware.Verifier
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(manager *connection.Manager, verifier middleware.Verifier, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		manager:  manager,
		verifier: verifier,
		wsCfg:    wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(wsCfg.AllowedOrigins) == 0 {
					return true
				}
				return slices.Contains(wsCfg.AllowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// RegisterRoutes registers the websocket endpoint and health check.
func (h *WSHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
}

// HandleWebSocket authenticates the handshake, upgrades it and serves the
// socket until it closes. Unauthenticated handshakes are refused with 401
// before anything is registered.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Keep the request logger but not its cancellation.
	ctx := context.WithoutCancel(r.Context())
	l := log.Ctx(ctx)

	token, err := middleware.BearerToken(r)
	if err != nil {
		writeUnauthorized(w, err.Error())
		return
	}
	identity, err := h.verifier.Verify(ctx, token)
	if err != nil {
		audit.LogWithDetail(ctx, audit.ActionAuthFailed, "", err.Error(), "websocket authentication failed")
		writeUnauthorized(w, "invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), identity.UserID, identity.Username, conn, h.wsCfg)
	ctx = log.With(log.With(ctx, log.FieldSocketID, client.ID), log.FieldUserID, identity.UserID)

	go client.WritePump()
	h.manager.Connect(ctx, client)
	client.ReadPump(func(c *hub.Client, frame []byte) {
		h.manager.HandleFrame(ctx, c, frame)
	})
	h.manager.Disconnect(ctx, client)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(response.Response{
		Success: false,
		Error:   &response.ErrorInfo{Code: response.CodeUnauthorized, Message: message},
	})
}
