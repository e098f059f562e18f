package models

import "time"

type User struct {
	ID           string    `json:"_id"`
	UserName     string    `json:"userName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Channel struct {
	ID          string    `json:"_id"`
	ChannelName string    `json:"channelName"`
	Desc        string    `json:"desc"`
	CreatedBy   string    `json:"createdBy"`
	IsLocked    bool      `json:"isLocked"`
	Members     []string  `json:"members"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Message is either a channel message (ChannelID set) or a direct message
// (RecipientID set), never both.
type Message struct {
	ID          string    `json:"_id"`
	ChannelID   *string   `json:"channelId"`
	UserID      string    `json:"userId"`
	RecipientID *string   `json:"recipientId"`
	Content     string    `json:"content"`
	TaggedUsers []string  `json:"taggedUsers"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsDirect reports whether the message belongs to a direct conversation.
func (m *Message) IsDirect() bool {
	return m.ChannelID == nil
}

// PublicUser is the subset of user fields returned on login.
type PublicUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	UserName string `json:"userName"`
	IsAdmin  bool   `json:"isAdmin"`
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, UserName: u.UserName, IsAdmin: u.IsAdmin}
}
