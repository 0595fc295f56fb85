package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/trailchat/internal/audit"
	"github.com/weiawesome/trailchat/internal/dispatcher"
	"github.com/weiawesome/trailchat/internal/domain"
	"github.com/weiawesome/trailchat/internal/presence"
	"github.com/weiawesome/trailchat/internal/service"
	"github.com/weiawesome/trailchat/internal/store"
	"github.com/weiawesome/trailchat/pkg/log"
	"github.com/weiawesome/trailchat/pkg/middleware"
	"github.com/weiawesome/trailchat/pkg/response"
)

// MessageSender accepts messages for delivery.
type MessageSender interface {
	Send(ctx context.Context, req dispatcher.SendRequest) (*domain.Message, error)
}

// PresenceLookup resolves a user's presence across instances.
type PresenceLookup interface {
	Lookup(ctx context.Context, userID string) (presence.Record, error)
}

// Handler serves the request/response API.
type Handler struct {
	sender         MessageSender
	messages       store.MessageStore
	rooms          service.RoomService
	presence       PresenceLookup
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(
	sender MessageSender,
	messages store.MessageStore,
	rooms service.RoomService,
	presence PresenceLookup,
	authMiddleware *middleware.AuthMiddleware,
) *Handler {
	return &Handler{
		sender:         sender,
		messages:       messages,
		rooms:          rooms,
		presence:       presence,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api/v1", h.authMiddleware.RequireAuth())
	{
		messages := api.Group("/messages")
		{
			messages.POST("/send", h.SendMessage)
			messages.GET("/pending", h.ListPending)
			messages.POST("/delivered/:id", h.MarkDelivered)
			messages.POST("/read/:id", h.MarkRead)
			messages.DELETE("/cleanup/:id", h.Cleanup)
		}

		rooms := api.Group("/rooms")
		{
			rooms.GET("", h.ListRooms)
			rooms.POST("/create", h.CreateRoom)
			rooms.GET("/:id", h.GetRoom)
			rooms.POST("/:id/join", h.JoinRoom)
			rooms.POST("/:id/leave", h.LeaveRoom)
			rooms.POST("/:id/participants", h.AddParticipant)
			rooms.DELETE("/:id/participants/:userId", h.RemoveParticipant)
		}

		api.GET("/presence/:userId", h.GetPresence)
	}
}

// SendMessage persists a message and queues its delivery.
func (h *Handler) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	msg, err := h.sender.Send(ctx, dispatcher.SendRequest{
		SenderID:       middleware.GetUserID(c),
		SenderUsername: middleware.GetUsername(c),
		RecipientID:    req.RecipientID,
		RoomID:         req.RoomID,
		Content:        req.Content,
		Type:           req.MessageType,
	})
	if err != nil {
		h.fail(c, err, "failed to send message")
		return
	}

	response.Created(c, gin.H{"message": msg})
}

// ListPending returns the caller's backlog, oldest first.
func (h *Handler) ListPending(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.ListPendingRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	msgs, err := h.messages.ListPending(ctx, middleware.GetUserID(c), req.Limit)
	if err != nil {
		h.fail(c, err, "failed to list pending messages")
		return
	}

	response.Success(c, gin.H{"messages": msgs})
}

func (h *Handler) MarkDelivered(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.messages.MarkDelivered(ctx, c.Param("id"), middleware.GetUserID(c)); err != nil {
		h.fail(c, err, "failed to mark message delivered")
		return
	}
	response.Success(c, gin.H{"messageId": c.Param("id"), "status": domain.MessageStatusDelivered})
}

func (h *Handler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.messages.MarkRead(ctx, c.Param("id"), middleware.GetUserID(c)); err != nil {
		h.fail(c, err, "failed to mark message read")
		return
	}
	response.Success(c, gin.H{"messageId": c.Param("id"), "status": domain.MessageStatusRead})
}

// Cleanup deletes a message the caller has already received.
func (h *Handler) Cleanup(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	messageID := c.Param("id")

	if err := h.messages.Cleanup(ctx, messageID, userID); err != nil {
		h.fail(c, err, "failed to clean up message")
		return
	}

	audit.LogTarget(ctx, audit.ActionCleanupMessage, userID, messageID, "message cleaned up")
	response.Success(c, gin.H{"messageId": messageID})
}

func (h *Handler) ListRooms(c *gin.Context) {
	ctx := c.Request.Context()

	rooms, err := h.rooms.ListUserRooms(ctx, middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err, "failed to list rooms")
		return
	}

	response.Success(c, gin.H{"rooms": rooms})
}

func (h *Handler) CreateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create room request")
		response.BadRequest(c, err.Error())
		return
	}

	room, err := h.rooms.CreateRoom(ctx, domain.CreateRoomInput{
		CreatorID:    middleware.GetUserID(c),
		Name:         req.Name,
		Type:         req.Type,
		Participants: req.Participants,
		Settings:     req.Settings,
	})
	if err != nil {
		h.fail(c, err, "failed to create room")
		return
	}

	response.Created(c, room)
}

func (h *Handler) GetRoom(c *gin.Context) {
	room, err := h.rooms.GetRoom(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to get room")
		return
	}
	response.Success(c, room)
}

func (h *Handler) JoinRoom(c *gin.Context) {
	room, err := h.rooms.Join(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err, "failed to join room")
		return
	}
	response.Success(c, room)
}

func (h *Handler) LeaveRoom(c *gin.Context) {
	room, err := h.rooms.Leave(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err, "failed to leave room")
		return
	}
	response.Success(c, room)
}

func (h *Handler) AddParticipant(c *gin.Context) {
	var req domain.ParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	room, err := h.rooms.AddParticipant(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), req.UserID)
	if err != nil {
		h.fail(c, err, "failed to add participant")
		return
	}
	response.Success(c, room)
}

func (h *Handler) RemoveParticipant(c *gin.Context) {
	room, err := h.rooms.RemoveParticipant(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), c.Param("userId"))
	if err != nil {
		h.fail(c, err, "failed to remove participant")
		return
	}
	response.Success(c, room)
}

func (h *Handler) GetPresence(c *gin.Context) {
	rec, err := h.presence.Lookup(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, err, "failed to look up presence")
		return
	}
	response.Success(c, rec)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail maps domain errors onto HTTP responses. Anything unexpected is
// logged and reported as msg.
func (h *Handler) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		response.BadRequest(c, err.Error())
	case errors.Is(err, domain.ErrAuthenticationRequired):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, domain.ErrAuthorizationDenied):
		response.Forbidden(c, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrConflict):
		response.Conflict(c, err.Error())
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(msg)
		response.InternalError(c, msg)
	}
}
