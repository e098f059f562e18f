// Package access holds the channel access policy. The server applies it to
// channel reads and writes; the client evaluates it before fetching.
package access

import "github.com/gbsr/chappy/internal/models"

// CanAccess decides whether user may read and write channel. A nil user is
// an anonymous caller.
func CanAccess(channel *models.Channel, user *models.User) bool {
	if channel == nil {
		return false
	}
	if !channel.IsLocked {
		return true
	}
	if user == nil {
		return false
	}
	if user.IsAdmin {
		return true
	}
	for _, member := range channel.Members {
		if member == user.ID {
			return true
		}
	}
	return false
}
