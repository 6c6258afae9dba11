package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the command tree bound to a. A fresh tree is built
// for every execution so flag values never leak between shell lines.
func NewRootCommand(a *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "altair",
		Short:         "Altair: capture, triage and one quest at a time",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.out)

	root.AddCommand(
		a.registerCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.captureCmd(),
		a.inboxCmd(),
		a.triageCmd(),
		a.discardCmd(),
		a.questCmd(),
		a.budgetCmd(),
		a.routineCmd(),
		a.syncCmd(),
		a.statusCmd(),
		a.conflictsCmd(),
		a.shellCmd(),
	)
	return root
}

// Execute runs the command tree with args.
func (a *App) Execute(ctx context.Context, args []string) error {
	root := NewRootCommand(a)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func exactID(name string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <%s-id>", cmd.CommandPath(), name)
		}
		return nil
	}
}
