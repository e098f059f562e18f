package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gbsr/chappy/internal/auth"
	"github.com/gbsr/chappy/internal/core"
	"github.com/gbsr/chappy/internal/logging"
	"github.com/gbsr/chappy/internal/models"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type APIHandler struct {
	users    *core.UserService
	channels *core.ChannelService
	messages *core.MessageService
	tokens   *auth.TokenManager
	db       Pinger
	logger   logging.Logger
}

func NewAPIHandler(
	users *core.UserService,
	channels *core.ChannelService,
	messages *core.MessageService,
	tokens *auth.TokenManager,
	db Pinger,
	logger logging.Logger,
) *APIHandler {
	return &APIHandler{
		users:    users,
		channels: channels,
		messages: messages,
		tokens:   tokens,
		db:       db,
		logger:   logger,
	}
}

func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Server is running"))
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Users

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message string            `json:"message"`
	Token   string            `json:"token"`
	User    models.PublicUser `json:"user"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "login", "Error during login", err)
		return
	}

	h.logger.Info(r.Context(), "attempting login", "email", req.Email)
	token, user, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, "login", "Error during login", err)
		return
	}

	h.logger.Info(r.Context(), "login successful", "user_id", user.ID)
	writeJSON(w, http.StatusOK, LoginResponse{Message: "Login successful", Token: token, User: user.Public()})
}

func (h *APIHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	var in core.RegisterInput
	if err := decode(r, &in); err != nil {
		h.fail(w, r, "user", "Error adding user", err)
		return
	}

	h.logger.Info(r.Context(), "attempting to add user", "userName", in.UserName)
	user, err := h.users.Register(r.Context(), in)
	if err != nil {
		h.fail(w, r, "user", "Error adding user", err)
		return
	}

	h.logger.Info(r.Context(), "user added", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (h *APIHandler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.fail(w, r, "user", "Error fetching users", err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *APIHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "user", "Error fetching user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "User found", "data": user})
}

func (h *APIHandler) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	user, err := h.users.Get(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, "user", "Error retrieving profile", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Profile retrieved successfully", "profile": user})
}

func (h *APIHandler) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch core.UserPatch
	if err := decode(r, &patch); err != nil {
		h.fail(w, r, "user", "Error updating user", err)
		return
	}

	h.logger.Info(r.Context(), "attempting to update user", "user_id", id)
	changed, err := h.users.Update(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, "user", "Error updating user", err)
		return
	}
	if !changed {
		writeMessage(w, http.StatusOK, "No changes were made.")
		return
	}
	writeMessage(w, http.StatusOK, "User updated successfully.")
}

func (h *APIHandler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.users.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "user", "Error deleting user", err)
		return
	}
	h.logger.Info(r.Context(), "user deleted", "user_id", id)
	writeMessage(w, http.StatusOK, "User deleted successfully")
}

// Channels

func (h *APIHandler) ListChannelsHandler(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channels.List(r.Context())
	if err != nil {
		h.fail(w, r, "channel", "Error fetching channels", err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (h *APIHandler) GetChannelHandler(w http.ResponseWriter, r *http.Request) {
	channel, err := h.channels.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "channel", "Error fetching channel", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Channel found", "data": channel})
}

func (h *APIHandler) AddChannelHandler(w http.ResponseWriter, r *http.Request) {
	var in core.ChannelInput
	if err := decode(r, &in); err != nil {
		h.fail(w, r, "channel", "Error adding channel", err)
		return
	}

	channel, err := h.channels.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, "channel", "Error adding channel", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"channel": channel})
}

func (h *APIHandler) UpdateChannelHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch core.ChannelPatch
	if err := decode(r, &patch); err != nil {
		h.fail(w, r, "channel", "Error updating channel", err)
		return
	}

	changed, err := h.channels.Update(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, "channel", "Error updating channel", err)
		return
	}
	if !changed {
		writeMessage(w, http.StatusOK, "No changes were made.")
		return
	}
	h.logger.Info(r.Context(), "channel updated", "channel_id", id)
	writeMessage(w, http.StatusOK, "Channel updated successfully.")
}

func (h *APIHandler) DeleteChannelHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.channels.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "channel", "Error deleting channel", err)
		return
	}
	h.logger.Info(r.Context(), "channel deleted", "channel_id", id)
	writeMessage(w, http.StatusOK, "Channel deleted successfully")
}

// Messages

func identity(r *http.Request) *auth.Identity {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		return nil
	}
	return id
}

// ChannelMessagesHandler serves both /channels/{id}/messages and
// /messages/channels/{channelId}/messages.
func (h *APIHandler) ChannelMessagesHandler(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelId")
	if channelID == "" {
		channelID = chi.URLParam(r, "id")
	}

	msgs, err := h.messages.ChannelMessages(r.Context(), channelID, identity(r))
	if err != nil {
		h.fail(w, r, "channel", "Error fetching messages", err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *APIHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var in core.MessageInput
	if err := decode(r, &in); err != nil {
		h.fail(w, r, "message", "Error sending message", err)
		return
	}

	caller := identity(r)
	h.logger.Info(r.Context(), "attempting to send message", "user_id", caller.UserID)
	msg, err := h.messages.Send(r.Context(), caller, in)
	if err != nil {
		h.fail(w, r, "message", "Error sending message", err)
		return
	}

	h.logger.Info(r.Context(), "message sent", "message_id", msg.ID, "direct", msg.IsDirect())
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Message sent successfully", "data": msg})
}

func (h *APIHandler) AllDirectMessagesHandler(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.messages.DirectMessages(r.Context(), identity(r), "")
	if err != nil {
		h.fail(w, r, "message", "Error fetching direct messages", err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *APIHandler) ConversationHandler(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.messages.DirectMessages(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "user", "Error fetching direct messages", err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}
