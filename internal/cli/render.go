package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gbsr/chappy/internal/client"
	"github.com/gbsr/chappy/internal/models"
)

// renderChannels prints the channel list. The selected channel is marked
// with ">" and locked channels with a lock tag.
func renderChannels(w io.Writer, channels []models.Channel, selectedID string) {
	if len(channels) == 0 {
		fmt.Fprintln(w, "No channels.")
		return
	}
	for _, c := range channels {
		marker := " "
		if c.ID == selectedID {
			marker = ">"
		}
		lock := ""
		if c.IsLocked {
			lock = " [locked]"
		}
		line := fmt.Sprintf("%s #%s%s", marker, c.ChannelName, lock)
		if c.Desc != "" {
			line += " - " + c.Desc
		}
		fmt.Fprintf(w, "%s  (%s)\n", line, c.ID)
	}
}

func renderMembers(w io.Writer, users []models.User, me *models.User) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users.")
		return
	}
	for _, u := range users {
		line := "  @" + u.UserName
		if u.IsAdmin {
			line += " [admin]"
		}
		if me != nil && u.ID == me.ID {
			line += " (you)"
		}
		fmt.Fprintf(w, "%s  (%s)\n", line, u.ID)
	}
}

func userNames(users []models.User) map[string]string {
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.UserName
	}
	return names
}

func renderMessage(w io.Writer, m models.Message, names map[string]string, now time.Time) {
	sender, ok := names[m.UserID]
	if !ok {
		sender = m.UserID
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", humanize.RelTime(m.CreatedAt, now, "ago", "from now"), sender, m.Content)
}

// renderFeed prints the header and the messages the session displays.
func renderFeed(w io.Writer, snap client.Snapshot, now time.Time) {
	switch {
	case snap.SelectedChannel != nil:
		fmt.Fprintf(w, "#%s\n", snap.SelectedChannel.ChannelName)
		if !snap.HasAccess {
			fmt.Fprintln(w, "Access restricted.")
			return
		}
	case snap.SelectedDMUser != nil:
		fmt.Fprintf(w, "@%s\n", snap.SelectedDMUser.UserName)
	}

	msgs := client.DisplayMessages(snap)
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages.")
		return
	}
	names := userNames(snap.Users)
	for _, m := range msgs {
		renderMessage(w, m, names, now)
	}
}
