package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/gbsr/chappy/internal/models"
)

// MemoryStore keeps everything in process. Values are copied in and out so
// callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]models.User
	channels map[string]models.Channel
	messages []models.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]models.User),
		channels: make(map[string]models.Channel),
	}
}

func (s *MemoryStore) Ping(context.Context) error  { return nil }
func (s *MemoryStore) Close(context.Context) error { return nil }

func (s *MemoryStore) userConflict(u *models.User) error {
	for id, other := range s.users {
		if id == u.ID {
			continue
		}
		if other.UserName == u.UserName {
			return &DuplicateError{Field: "userName"}
		}
		if other.Email == u.Email {
			return &DuplicateError{Field: "email"}
		}
	}
	return nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return &DuplicateError{Field: "_id"}
	}
	if err := s.userConflict(user); err != nil {
		return err
	}
	s.users[user.ID] = *user
	return nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListUsers(context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return ErrNotFound
	}
	if err := s.userConflict(user); err != nil {
		return err
	}
	s.users[user.ID] = *user
	return nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func cloneChannel(c models.Channel) models.Channel {
	c.Members = slices.Clone(c.Members)
	if c.Members == nil {
		c.Members = []string{}
	}
	return c
}

func (s *MemoryStore) channelConflict(c *models.Channel) error {
	for id, other := range s.channels {
		if id == c.ID {
			continue
		}
		if other.ChannelName == c.ChannelName {
			return &DuplicateError{Field: "channelName"}
		}
		if c.Desc != "" && other.Desc == c.Desc {
			return &DuplicateError{Field: "desc"}
		}
	}
	return nil
}

func (s *MemoryStore) CreateChannel(_ context.Context, channel *models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[channel.ID]; ok {
		return &DuplicateError{Field: "_id"}
	}
	if err := s.channelConflict(channel); err != nil {
		return err
	}
	s.channels[channel.ID] = cloneChannel(*channel)
	return nil
}

func (s *MemoryStore) GetChannelByID(_ context.Context, id string) (*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[id]
	if !ok {
		return nil, ErrNotFound
	}
	c = cloneChannel(c)
	return &c, nil
}

func (s *MemoryStore) ListChannels(context.Context) ([]models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	channels := make([]models.Channel, 0, len(s.channels))
	for _, c := range s.channels {
		channels = append(channels, cloneChannel(c))
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })
	return channels, nil
}

func (s *MemoryStore) UpdateChannel(_ context.Context, channel *models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[channel.ID]; !ok {
		return ErrNotFound
	}
	if err := s.channelConflict(channel); err != nil {
		return err
	}
	s.channels[channel.ID] = cloneChannel(*channel)
	return nil
}

func (s *MemoryStore) DeleteChannel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[id]; !ok {
		return ErrNotFound
	}
	delete(s.channels, id)
	return nil
}

func cloneMessage(m models.Message) models.Message {
	if m.ChannelID != nil {
		v := *m.ChannelID
		m.ChannelID = &v
	}
	if m.RecipientID != nil {
		v := *m.RecipientID
		m.RecipientID = &v
	}
	m.TaggedUsers = slices.Clone(m.TaggedUsers)
	if m.TaggedUsers == nil {
		m.TaggedUsers = []string{}
	}
	return m
}

func (s *MemoryStore) CreateMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, cloneMessage(*msg))
	return nil
}

func (s *MemoryStore) filterMessages(keep func(*models.Message) bool) []models.Message {
	out := []models.Message{}
	for i := range s.messages {
		if keep(&s.messages[i]) {
			out = append(out, cloneMessage(s.messages[i]))
		}
	}
	sortMessages(out)
	return out
}

func (s *MemoryStore) ListChannelMessages(_ context.Context, channelID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterMessages(func(m *models.Message) bool {
		return m.ChannelID != nil && *m.ChannelID == channelID
	}), nil
}

func (s *MemoryStore) ListDirectMessages(_ context.Context, userID, peerID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterMessages(func(m *models.Message) bool {
		return isDirectBetween(m, userID, peerID)
	}), nil
}

func isDirectBetween(m *models.Message, userID, peerID string) bool {
	if m.RecipientID == nil {
		return false
	}
	sender, recipient := m.UserID, *m.RecipientID
	if peerID == "" {
		return sender == userID || recipient == userID
	}
	return (sender == userID && recipient == peerID) || (sender == peerID && recipient == userID)
}

// sortMessages orders by createdAt, breaking ties on id. Object ids are
// time-prefixed so the tie break follows insertion order.
func sortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}
