package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/gbsr/chappy/internal/client"
)

func newUsersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			snap := s.Snapshot()
			renderMembers(a.out, snap.Users, snap.CurrentUser)
			return nil
		},
	}
}

func newChannelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			renderChannels(a.out, s.Snapshot().Channels, "")
			return nil
		},
	}
}

func newChannelCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Create, update or delete channels",
	}
	cmd.AddCommand(newChannelCreateCmd(a), newChannelUpdateCmd(a), newChannelDeleteCmd(a))
	return cmd
}

// resolveUsers maps user names or ids to ids.
func resolveUsers(s *client.Session, refs []string) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		u, err := s.FindUser(ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func newChannelCreateCmd(a *app) *cobra.Command {
	var (
		desc    string
		locked  bool
		members []string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.session(ctx)
			if err != nil {
				return err
			}
			me := s.Snapshot().CurrentUser
			if me == nil {
				return errLoginRequired
			}
			ids, err := resolveUsers(s, members)
			if err != nil {
				return err
			}
			// The creator stays able to read a locked channel.
			if locked && !slices.Contains(ids, me.ID) {
				ids = append(ids, me.ID)
			}

			ch, err := a.client.CreateChannel(ctx, client.ChannelRequest{
				ChannelName: args[0],
				Desc:        desc,
				CreatedBy:   me.ID,
				IsLocked:    locked,
				Members:     ids,
			})
			if err != nil {
				return fmt.Errorf("create channel: %w", err)
			}
			fmt.Fprintf(a.out, "Created #%s (%s).\n", ch.ChannelName, ch.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&desc, "desc", "", "channel description")
	cmd.Flags().BoolVar(&locked, "locked", false, "restrict the channel to its members")
	cmd.Flags().StringSliceVar(&members, "member", nil, "member user name or id (repeatable)")
	return cmd
}

func newChannelUpdateCmd(a *app) *cobra.Command {
	var (
		name    string
		desc    string
		locked  bool
		members []string
	)
	cmd := &cobra.Command{
		Use:   "update <channel>",
		Short: "Change channel fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.session(ctx)
			if err != nil {
				return err
			}
			ch, err := s.FindChannel(args[0])
			if err != nil {
				return err
			}

			var upd client.ChannelUpdate
			flags := cmd.Flags()
			if flags.Changed("name") {
				upd.ChannelName = &name
			}
			if flags.Changed("desc") {
				upd.Desc = &desc
			}
			if flags.Changed("locked") {
				upd.IsLocked = &locked
			}
			if flags.Changed("member") {
				ids, err := resolveUsers(s, members)
				if err != nil {
					return err
				}
				upd.Members = &ids
			}

			msg, err := a.client.UpdateChannel(ctx, ch.ID, upd)
			if err != nil {
				return fmt.Errorf("update channel: %w", err)
			}
			fmt.Fprintln(a.out, msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new channel name")
	cmd.Flags().StringVar(&desc, "desc", "", "new description")
	cmd.Flags().BoolVar(&locked, "locked", false, "lock or unlock (--locked=false) the channel")
	cmd.Flags().StringSliceVar(&members, "member", nil, "replace the member list (repeatable)")
	return cmd
}

func newChannelDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <channel>",
		Short: "Delete a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.session(ctx)
			if err != nil {
				return err
			}
			ch, err := s.FindChannel(args[0])
			if err != nil {
				return err
			}
			msg, err := a.client.DeleteChannel(ctx, ch.ID)
			if err != nil {
				return fmt.Errorf("delete channel: %w", err)
			}
			fmt.Fprintln(a.out, msg)
			return nil
		},
	}
}
