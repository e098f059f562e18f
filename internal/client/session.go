package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gbsr/chappy/internal/access"
	"github.com/gbsr/chappy/internal/logging"
	"github.com/gbsr/chappy/internal/models"
)

// PollInterval is how often the session refreshes the selected feed.
const PollInterval = 250 * time.Millisecond

var (
	ErrUnknownChannel = errors.New("unknown channel")
	ErrUnknownUser    = errors.New("unknown user")
	ErrNoTarget       = errors.New("no channel or direct message selected")
)

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Channels        []models.Channel
	Users           []models.User
	CurrentUser     *models.User
	SelectedChannel *models.Channel
	SelectedDMUser  *models.User
	HasAccess       bool
	ChannelMessages []models.Message
	DirectMessages  []models.Message
}

// Session holds what the views render. Fetches have no fencing, so a slow
// response may overwrite a newer one.
type Session struct {
	client *Client
	logger logging.Logger

	mu    sync.Mutex
	state Snapshot
}

func NewSession(c *Client, logger logging.Logger) *Session {
	return &Session{client: c, logger: logger.With("component", "session")}
}

// Load fetches channels, users and, when logged in, the current profile.
// A stored token the server rejects is cleared.
func (s *Session) Load(ctx context.Context) error {
	var (
		channels []models.Channel
		users    []models.User
		me       *models.User
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		channels, err = s.client.Channels(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = s.client.Users(gctx)
		return err
	})
	if s.client.LoggedIn() {
		g.Go(func() error {
			profile, err := s.client.Profile(gctx)
			if IsStatus(err, http.StatusUnauthorized) || IsStatus(err, http.StatusForbidden) {
				s.logger.Warn(gctx, "stored session is no longer valid, continuing anonymously", "error", err)
				if clearErr := s.client.Logout(); clearErr != nil {
					s.logger.Warn(gctx, "failed to clear stored token", "error", clearErr)
				}
				return nil
			}
			me = profile
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Channels = channels
	s.state.Users = users
	s.state.CurrentUser = me
	return nil
}

// FindChannel matches an id or a channel name.
func (s *Session) FindChannel(ref string) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.Channels {
		c := &s.state.Channels[i]
		if c.ID == ref || c.ChannelName == ref {
			cp := *c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, ref)
}

// FindUser matches an id or a user name.
func (s *Session) FindUser(ref string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.Users {
		u := &s.state.Users[i]
		if u.ID == ref || u.UserName == ref {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownUser, ref)
}

// SelectChannel selects a channel and evaluates access locally. Messages are
// only fetched when access is granted; otherwise the feed is emptied.
func (s *Session) SelectChannel(ctx context.Context, ref string) (bool, error) {
	channel, err := s.FindChannel(ref)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	granted := access.CanAccess(channel, s.state.CurrentUser)
	s.state.SelectedChannel = channel
	s.state.SelectedDMUser = nil
	s.state.HasAccess = granted
	s.state.ChannelMessages = nil
	s.mu.Unlock()

	if !granted {
		return false, nil
	}
	return true, s.fetchChannelMessages(ctx, channel.ID)
}

// SelectDirect selects a direct message peer and fetches the DM set.
func (s *Session) SelectDirect(ctx context.Context, ref string) error {
	peer, err := s.FindUser(ref)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.state.SelectedDMUser = peer
	s.state.SelectedChannel = nil
	s.state.HasAccess = false
	s.state.ChannelMessages = nil
	s.mu.Unlock()

	return s.fetchDirectMessages(ctx)
}

func (s *Session) fetchChannelMessages(ctx context.Context, channelID string) error {
	msgs, err := s.client.ChannelMessages(ctx, channelID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.SelectedChannel != nil && s.state.SelectedChannel.ID == channelID {
		s.state.ChannelMessages = msgs
	}
	return nil
}

func (s *Session) fetchDirectMessages(ctx context.Context) error {
	msgs, err := s.client.DirectMessages(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.DirectMessages = msgs
	return nil
}

// Refresh re-fetches the selected channel when accessible, otherwise the DM
// set when a peer is selected.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	channel, peer, granted := s.state.SelectedChannel, s.state.SelectedDMUser, s.state.HasAccess
	s.mu.Unlock()

	switch {
	case channel != nil && granted:
		return s.fetchChannelMessages(ctx, channel.ID)
	case peer != nil:
		return s.fetchDirectMessages(ctx)
	}
	return nil
}

// Poll refreshes every interval until ctx is done, calling onUpdate after
// each successful refresh. Failed refreshes are logged and retried on the
// next tick.
func (s *Session) Poll(ctx context.Context, interval time.Duration, onUpdate func(Snapshot)) error {
	if interval <= 0 {
		interval = PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Warn(ctx, "refresh failed", "error", err)
				continue
			}
			if onUpdate != nil {
				onUpdate(s.Snapshot())
			}
		}
	}
}

// Send posts content to the selected channel or DM peer, then re-fetches
// the affected feed.
func (s *Session) Send(ctx context.Context, content string) (*models.Message, error) {
	s.mu.Lock()
	channel, peer, me := s.state.SelectedChannel, s.state.SelectedDMUser, s.state.CurrentUser
	s.mu.Unlock()

	req := SendRequest{Content: content, TaggedUsers: []string{}}
	if me != nil {
		req.UserID = me.ID
	}
	switch {
	case channel != nil:
		id := channel.ID
		req.ChannelID = &id
	case peer != nil:
		id := peer.ID
		req.RecipientID = &id
	default:
		return nil, ErrNoTarget
	}

	msg, err := s.client.SendMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.RecipientID != nil {
		err = s.fetchDirectMessages(ctx)
	} else {
		err = s.fetchChannelMessages(ctx, channel.ID)
	}
	return msg, err
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.state
	snap.Channels = slices.Clone(s.state.Channels)
	snap.Users = slices.Clone(s.state.Users)
	snap.ChannelMessages = slices.Clone(s.state.ChannelMessages)
	snap.DirectMessages = slices.Clone(s.state.DirectMessages)
	return snap
}

func (s *Session) DisplayMessages() []models.Message {
	return DisplayMessages(s.Snapshot())
}

// DisplayMessages derives the feed: the channel's messages when a channel is
// selected, otherwise the direct messages between the current user and the
// selected peer.
func DisplayMessages(snap Snapshot) []models.Message {
	if snap.SelectedChannel != nil {
		return snap.ChannelMessages
	}
	if snap.SelectedDMUser == nil || snap.CurrentUser == nil {
		return nil
	}

	me, peer := snap.CurrentUser.ID, snap.SelectedDMUser.ID
	var out []models.Message
	for _, m := range snap.DirectMessages {
		if m.RecipientID == nil {
			continue
		}
		if (m.UserID == me && *m.RecipientID == peer) || (m.UserID == peer && *m.RecipientID == me) {
			out = append(out, m)
		}
	}
	return out
}
