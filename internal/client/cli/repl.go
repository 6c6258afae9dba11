package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/altair/internal/client/client"
	"github.com/spf13/cobra"
)

func (a *App) shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session with a connectivity watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if a.config != nil && a.config.OnlineCheckInterval > 0 {
				go a.engine.WatchConnectivity(ctx, a.config.OnlineCheckInterval)
			}
			fmt.Fprintln(a.out, "Altair shell (type 'help' for commands, 'exit' to leave)")
			return a.runREPL(ctx)
		},
	}
}

// runREPL reads lines from the app input and executes each one against a
// fresh command tree. Command errors are printed and the loop continues.
// It returns on EOF, "exit" or "quit".
func (a *App) runREPL(ctx context.Context) error {
	for {
		fmt.Fprintf(a.out, "altair %s> ", a.status())
		line, err := a.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := err != nil

		parts := strings.Fields(line)
		if len(parts) > 0 {
			switch parts[0] {
			case "exit", "quit":
				fmt.Fprintln(a.out, "Bye!")
				return nil
			case "shell":
				fmt.Fprintln(a.out, "already in the shell")
			default:
				if err := a.Execute(ctx, parts); err != nil {
					fmt.Fprintln(a.out, "error:", describe(err))
				}
			}
		}
		if eof {
			fmt.Fprintln(a.out)
			return nil
		}
	}
}

// describe adds a hint to errors a user can act on.
func describe(err error) string {
	if errors.Is(err, client.ErrNotLoggedIn) {
		return err.Error() + " (run 'login')"
	}
	return err.Error()
}
