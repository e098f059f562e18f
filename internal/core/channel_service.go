package core

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/gbsr/chappy/internal/logging"
	"github.com/gbsr/chappy/internal/models"
	"github.com/gbsr/chappy/internal/store"
	"github.com/gbsr/chappy/internal/validation"
)

type ChannelInput struct {
	ChannelName string     `json:"channelName" validate:"required"`
	Desc        *string    `json:"desc" validate:"omitnil,min=1"`
	CreatedBy   string     `json:"createdBy" validate:"required"`
	IsLocked    *bool      `json:"isLocked" validate:"required"`
	Members     []string   `json:"members" validate:"required"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// ChannelPatch holds the fields of a partial channel update; nil means
// unchanged. The id is immutable and not part of the patch.
type ChannelPatch struct {
	ChannelName *string   `json:"channelName" validate:"omitnil,min=1"`
	Desc        *string   `json:"desc" validate:"omitnil,min=1"`
	CreatedBy   *string   `json:"createdBy" validate:"omitnil,min=1"`
	IsLocked    *bool     `json:"isLocked"`
	Members     *[]string `json:"members"`
}

type ChannelService struct {
	channels store.Channels
	logger   logging.Logger
	now      func() time.Time
}

func NewChannelService(channels store.Channels, logger logging.Logger) *ChannelService {
	return &ChannelService{channels: channels, logger: logger.With("service", "channels"), now: time.Now}
}

func (s *ChannelService) Create(ctx context.Context, in ChannelInput) (*models.Channel, error) {
	in.ChannelName = strings.TrimSpace(in.ChannelName)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	var desc string
	if in.Desc != nil {
		desc = *in.Desc
	}

	now := s.now().UTC()
	channel := &models.Channel{
		ID:          models.NewID(),
		ChannelName: in.ChannelName,
		Desc:        desc,
		CreatedBy:   in.CreatedBy,
		IsLocked:    *in.IsLocked,
		Members:     slices.Clone(in.Members),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.channels.CreateChannel(ctx, channel); err != nil {
		return nil, translate("Channel", err)
	}
	s.logger.Info(ctx, "channel created", "channel_id", channel.ID, "channelName", channel.ChannelName)
	return channel, nil
}

func (s *ChannelService) Get(ctx context.Context, id string) (*models.Channel, error) {
	if err := validation.ID(id); err != nil {
		return nil, err
	}
	channel, err := s.channels.GetChannelByID(ctx, id)
	return channel, translate("Channel", err)
}

func (s *ChannelService) List(ctx context.Context) ([]models.Channel, error) {
	return s.channels.ListChannels(ctx)
}

// Update applies patch and reports whether any stored field changed.
func (s *ChannelService) Update(ctx context.Context, id string, patch ChannelPatch) (bool, error) {
	if err := validation.ID(id); err != nil {
		return false, err
	}
	if patch.ChannelName != nil {
		name := strings.TrimSpace(*patch.ChannelName)
		patch.ChannelName = &name
	}
	if err := validation.Struct(patch); err != nil {
		return false, err
	}

	channel, err := s.channels.GetChannelByID(ctx, id)
	if err != nil {
		return false, translate("Channel", err)
	}

	changed := false
	if patch.ChannelName != nil && *patch.ChannelName != channel.ChannelName {
		channel.ChannelName = *patch.ChannelName
		changed = true
	}
	if patch.Desc != nil && *patch.Desc != channel.Desc {
		channel.Desc = *patch.Desc
		changed = true
	}
	if patch.CreatedBy != nil && *patch.CreatedBy != channel.CreatedBy {
		channel.CreatedBy = *patch.CreatedBy
		changed = true
	}
	if patch.IsLocked != nil && *patch.IsLocked != channel.IsLocked {
		channel.IsLocked = *patch.IsLocked
		changed = true
	}
	if patch.Members != nil && !slices.Equal(*patch.Members, channel.Members) {
		channel.Members = slices.Clone(*patch.Members)
		if channel.Members == nil {
			channel.Members = []string{}
		}
		changed = true
	}
	if !changed {
		return false, nil
	}

	channel.UpdatedAt = s.now().UTC()
	if err := s.channels.UpdateChannel(ctx, channel); err != nil {
		return false, translate("Channel", err)
	}
	return true, nil
}

func (s *ChannelService) Delete(ctx context.Context, id string) error {
	if err := validation.ID(id); err != nil {
		return err
	}
	return translate("Channel", s.channels.DeleteChannel(ctx, id))
}
