package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gbsr/chappy/internal/models"
)

func TestCanAccess(t *testing.T) {
	member := &models.User{ID: "64b7f0c2a1b2c3d4e5f60001"}
	stranger := &models.User{ID: "64b7f0c2a1b2c3d4e5f60002"}
	admin := &models.User{ID: "64b7f0c2a1b2c3d4e5f60003", IsAdmin: true}

	open := &models.Channel{IsLocked: false}
	locked := &models.Channel{IsLocked: true, Members: []string{member.ID}}

	tests := []struct {
		name    string
		channel *models.Channel
		user    *models.User
		want    bool
	}{
		{"open channel anonymous", open, nil, true},
		{"open channel stranger", open, stranger, true},
		{"locked channel anonymous", locked, nil, false},
		{"locked channel stranger", locked, stranger, false},
		{"locked channel member", locked, member, true},
		{"locked channel admin", locked, admin, true},
		{"locked channel no members", &models.Channel{IsLocked: true}, stranger, false},
		{"nil channel", nil, admin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAccess(tt.channel, tt.user))
		})
	}
}
