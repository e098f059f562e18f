package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gbsr/chappy/internal/client"
)

func newMessagesCmd(a *app) *cobra.Command {
	var withChannels bool
	cmd := &cobra.Command{
		Use:   "messages <channel>",
		Short: "Show a channel's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.session(ctx)
			if err != nil {
				return err
			}
			if _, err := s.SelectChannel(ctx, args[0]); err != nil {
				return err
			}
			snap := s.Snapshot()
			if withChannels {
				renderChannels(a.out, snap.Channels, snap.SelectedChannel.ID)
				fmt.Fprintln(a.out)
			}
			renderFeed(a.out, snap, a.now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&withChannels, "with-channels", false, "print the channel list above the feed")
	return cmd
}

// directSession loads a session and selects ref as the DM peer.
func (a *app) directSession(ctx context.Context, ref string) (*client.Session, error) {
	s, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	if s.Snapshot().CurrentUser == nil {
		return nil, errLoginRequired
	}
	if err := s.SelectDirect(ctx, ref); err != nil {
		return nil, err
	}
	return s, nil
}

func newDMCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dm <user>",
		Short: "Show the direct conversation with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.directSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renderFeed(a.out, s.Snapshot(), a.now())
			return nil
		},
	}
}

func newSendCmd(a *app) *cobra.Command {
	var channel, to string
	cmd := &cobra.Command{
		Use:   "send (--channel <channel> | --to <user>) <message>...",
		Short: "Post a message to a channel or a user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (channel == "") == (to == "") {
				return errors.New("exactly one of --channel or --to is required")
			}
			ctx := cmd.Context()

			var (
				s   *client.Session
				err error
			)
			if to != "" {
				s, err = a.directSession(ctx, to)
			} else {
				s, err = a.session(ctx)
				if err == nil {
					var granted bool
					granted, err = s.SelectChannel(ctx, channel)
					if err == nil && !granted {
						err = fmt.Errorf("#%s: access restricted", channel)
					}
				}
			}
			if err != nil {
				return err
			}

			msg, err := s.Send(ctx, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			fmt.Fprintf(a.out, "Sent (%s).\n", msg.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel name or id")
	cmd.Flags().StringVar(&to, "to", "", "recipient user name or id")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		dm       string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch (<channel> | --dm <user>)",
		Short: "Follow a feed until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (dm != "") {
				return errors.New("give either a channel or --dm <user>")
			}
			ctx := cmd.Context()

			var (
				s   *client.Session
				err error
			)
			if dm != "" {
				s, err = a.directSession(ctx, dm)
			} else {
				s, err = a.session(ctx)
				if err == nil {
					_, err = s.SelectChannel(ctx, args[0])
				}
			}
			if err != nil {
				return err
			}

			snap := s.Snapshot()
			renderFeed(a.out, snap, a.now())
			if snap.SelectedChannel != nil && !snap.HasAccess {
				return nil
			}

			seen := make(map[string]bool)
			for _, m := range client.DisplayMessages(snap) {
				seen[m.ID] = true
			}
			return s.Poll(ctx, interval, func(snap client.Snapshot) {
				names := userNames(snap.Users)
				for _, m := range client.DisplayMessages(snap) {
					if seen[m.ID] {
						continue
					}
					seen[m.ID] = true
					renderMessage(a.out, m, names, a.now())
				}
			})
		},
	}
	cmd.Flags().StringVar(&dm, "dm", "", "follow the direct conversation with this user")
	cmd.Flags().DurationVar(&interval, "interval", client.PollInterval, "refresh interval")
	return cmd
}
