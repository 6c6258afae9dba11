package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// credentials prompts for whatever userName leaves open. The returned
// password must be wiped by the caller.
func (a *App) credentials(userName string) (string, []byte, error) {
	if userName == "" {
		var err error
		userName, err = getSimpleText(a.reader, "Enter user name", a.out)
		if err != nil {
			return "", nil, err
		}
	}
	password, err := getPassword(a.out)
	if err != nil {
		return "", nil, err
	}
	return userName, password, nil
}

func (a *App) registerCmd() *cobra.Command {
	var userName string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.Register(cmd.Context(), userName)
		},
	}
	cmd.Flags().StringVarP(&userName, "user", "u", "", "user name")
	return cmd
}

// Register creates an account. It does not sign in.
func (a *App) Register(ctx context.Context, userName string) error {
	userName, password, err := a.credentials(userName)
	if err != nil {
		return err
	}
	defer wipe(password)

	id, err := a.api.Register(ctx, userName, string(password))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "registered %s (%s)\n", userName, id)
	return nil
}

func (a *App) loginCmd() *cobra.Command {
	var userName string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.Login(cmd.Context(), userName)
		},
	}
	cmd.Flags().StringVarP(&userName, "user", "u", "", "user name")
	return cmd
}

// Login signs in and persists the session in the local database.
func (a *App) Login(ctx context.Context, userName string) error {
	userName, password, err := a.credentials(userName)
	if err != nil {
		return err
	}
	defer wipe(password)

	t, err := a.api.Login(ctx, userName, string(password))
	if err != nil {
		return err
	}
	if err := a.saveTokens(ctx, t); err != nil {
		return err
	}
	if err := a.meta.Set(ctx, keyUserName, []byte(userName)); err != nil {
		return err
	}
	a.userName = userName
	a.logger.Info(ctx, "signed in", "user", t.UserID)
	fmt.Fprintf(a.out, "signed in as %s\n", userName)
	return nil
}

func (a *App) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.clearSession(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "signed out")
			return nil
		},
	}
}
