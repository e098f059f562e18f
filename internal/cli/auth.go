package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gbsr/chappy/internal/client"
)

var errLoginRequired = errors.New("not logged in, run `chatcli login` first")

func newRegisterCmd(a *app) *cobra.Command {
	var req client.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if req.UserName == "" {
				if req.UserName, err = promptLine(a.in, a.out, "Username: "); err != nil {
					return err
				}
			}
			if req.Email == "" {
				if req.Email, err = promptLine(a.in, a.out, "Email: "); err != nil {
					return err
				}
			}
			if req.Password, err = promptPassword(a.in, a.out); err != nil {
				return err
			}

			user, err := a.client.Register(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Fprintf(a.out, "Registered %s (%s).\n", user.UserName, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.UserName, "username", "", "user name")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	cmd.Flags().BoolVar(&req.IsAdmin, "admin", false, "create an admin account")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and keep the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if email == "" {
				if email, err = promptLine(a.in, a.out, "Email: "); err != nil {
					return err
				}
			}
			password, err := promptPassword(a.in, a.out)
			if err != nil {
				return err
			}

			res, err := a.client.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			fmt.Fprintf(a.out, "Logged in as %s.\n", res.User.UserName)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.client.LoggedIn() {
				fmt.Fprintln(a.out, "Not logged in.")
				return nil
			}
			me, err := a.client.Profile(cmd.Context())
			if err != nil {
				return fmt.Errorf("profile: %w", err)
			}
			line := fmt.Sprintf("%s <%s>", me.UserName, me.Email)
			if me.IsAdmin {
				line += " [admin]"
			}
			fmt.Fprintln(a.out, line)
			return nil
		},
	}
}
