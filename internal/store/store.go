// Package store persists users, channels and messages. Backends are selected
// by the scheme of the connection string passed to Open.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gbsr/chappy/internal/models"
)

var ErrNotFound = errors.New("record not found")

// DuplicateError is returned when a write violates a uniqueness constraint.
// Field is the JSON name of the offending attribute.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate key on %s", e.Field)
}

type Users interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	// UpdateUser replaces every mutable field of the stored user.
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id string) error
}

type Channels interface {
	CreateChannel(ctx context.Context, channel *models.Channel) error
	GetChannelByID(ctx context.Context, id string) (*models.Channel, error)
	ListChannels(ctx context.Context) ([]models.Channel, error)
	UpdateChannel(ctx context.Context, channel *models.Channel) error
	DeleteChannel(ctx context.Context, id string) error
}

type Messages interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	// ListChannelMessages returns the channel's messages by createdAt, then id.
	ListChannelMessages(ctx context.Context, channelID string) ([]models.Message, error)
	// ListDirectMessages returns direct messages sent or received by userID.
	// A non-empty peerID narrows the set to the conversation with that user.
	ListDirectMessages(ctx context.Context, userID, peerID string) ([]models.Message, error)
}

type Store interface {
	Users
	Channels
	Messages
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open connects to the backend named by connString's scheme and prepares its
// schema (indexes for Mongo, goose migrations for SQL).
func Open(ctx context.Context, connString, dbName string) (Store, error) {
	scheme, rest, _ := strings.Cut(connString, "://")
	switch strings.ToLower(scheme) {
	case "mongodb", "mongodb+srv":
		return NewMongoStore(ctx, connString, dbName)
	case "postgres", "postgresql":
		return NewSQLStore(ctx, DialectPostgres, connString)
	case "sqlite":
		return NewSQLStore(ctx, DialectSQLite, rest)
	case "memory":
		return NewMemoryStore(), nil
	}
	if strings.HasPrefix(connString, "file:") {
		return NewSQLStore(ctx, DialectSQLite, connString)
	}
	return nil, fmt.Errorf("unsupported connection string scheme %q", scheme)
}
