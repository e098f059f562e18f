package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gbsr/chappy/internal/access"
	"github.com/gbsr/chappy/internal/auth"
	"github.com/gbsr/chappy/internal/common"
	"github.com/gbsr/chappy/internal/logging"
	"github.com/gbsr/chappy/internal/models"
	"github.com/gbsr/chappy/internal/store"
	"github.com/gbsr/chappy/internal/validation"
)

// MessageInput is the payload of a send. Exactly one of ChannelID and
// RecipientID must be set. UserID may be omitted; the sender is always the
// authenticated caller.
type MessageInput struct {
	ChannelID   *string    `json:"channelId" validate:"omitnil,objectid"`
	UserID      string     `json:"userId" validate:"omitempty,objectid"`
	RecipientID *string    `json:"recipientId" validate:"omitnil,objectid"`
	Content     string     `json:"content" validate:"required"`
	TaggedUsers []string   `json:"taggedUsers" validate:"omitempty,dive,objectid"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

type MessageService struct {
	messages store.Messages
	channels store.Channels
	users    store.Users
	logger   logging.Logger
	now      func() time.Time
}

func NewMessageService(messages store.Messages, channels store.Channels, users store.Users, logger logging.Logger) *MessageService {
	return &MessageService{messages: messages, channels: channels, users: users, logger: logger.With("service", "messages"), now: time.Now}
}

// caller resolves the identity to a stored user. A token whose user has been
// deleted grants nothing.
func (s *MessageService) caller(ctx context.Context, id *auth.Identity) (*models.User, error) {
	if id == nil {
		return nil, nil
	}
	user, err := s.users.GetUserByID(ctx, id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("user %s no longer exists: %w", id.UserID, common.ErrAccessDenied)
	}
	return user, err
}

// authorizeChannel loads the channel and applies the access policy for the
// caller, who may be anonymous.
func (s *MessageService) authorizeChannel(ctx context.Context, channelID string, id *auth.Identity) (*models.Channel, error) {
	channel, err := s.channels.GetChannelByID(ctx, channelID)
	if err != nil {
		return nil, translate("Channel", err)
	}
	if !channel.IsLocked {
		return channel, nil
	}
	if id == nil {
		return nil, common.ErrAuthenticationRequired
	}

	user, err := s.caller(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanAccess(channel, user) {
		s.logger.Warn(ctx, "channel access denied", "channel_id", channelID, "user_id", id.UserID)
		return nil, common.ErrAccessDenied
	}
	return channel, nil
}

// ChannelMessages lists a channel's messages oldest first. Locked channels
// require an identity that passes the access policy.
func (s *MessageService) ChannelMessages(ctx context.Context, channelID string, id *auth.Identity) ([]models.Message, error) {
	if err := validation.ID(channelID); err != nil {
		return nil, err
	}
	if _, err := s.authorizeChannel(ctx, channelID, id); err != nil {
		return nil, err
	}
	return s.messages.ListChannelMessages(ctx, channelID)
}

func (s *MessageService) Send(ctx context.Context, id *auth.Identity, in MessageInput) (*models.Message, error) {
	if id == nil {
		return nil, common.ErrAuthenticationRequired
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	switch {
	case in.ChannelID != nil && in.RecipientID != nil:
		return nil, common.NewValidationError("channelId", `"channelId" and "recipientId" are mutually exclusive`)
	case in.ChannelID == nil && in.RecipientID == nil:
		return nil, common.NewValidationError("channelId", `one of "channelId" or "recipientId" is required`)
	}
	if in.UserID != "" && in.UserID != id.UserID {
		return nil, fmt.Errorf("sender %s does not match token: %w", in.UserID, common.ErrAccessDenied)
	}

	if in.ChannelID != nil {
		if _, err := s.authorizeChannel(ctx, *in.ChannelID, id); err != nil {
			return nil, err
		}
	} else {
		if _, err := s.caller(ctx, id); err != nil {
			return nil, err
		}
		if _, err := s.users.GetUserByID(ctx, *in.RecipientID); err != nil {
			return nil, translate("Recipient", err)
		}
	}

	tagged := slices.Clone(in.TaggedUsers)
	if tagged == nil {
		tagged = []string{}
	}
	now := s.now().UTC()
	msg := &models.Message{
		ID:          models.NewID(),
		ChannelID:   in.ChannelID,
		UserID:      id.UserID,
		RecipientID: in.RecipientID,
		Content:     in.Content,
		TaggedUsers: tagged,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, translate("Message", err)
	}
	return msg, nil
}

// DirectMessages lists the caller's direct messages, or only the
// conversation with peerID when it is non-empty.
func (s *MessageService) DirectMessages(ctx context.Context, id *auth.Identity, peerID string) ([]models.Message, error) {
	if id == nil {
		return nil, common.ErrAuthenticationRequired
	}
	if peerID != "" {
		if err := validation.ID(peerID); err != nil {
			return nil, err
		}
	}
	return s.messages.ListDirectMessages(ctx, id.UserID, peerID)
}
