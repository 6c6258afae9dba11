package cli

import (
	"fmt"
	"sort"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/syncer"
	"github.com/spf13/cobra"
)

func (a *App) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push local changes and pull the server's",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			report, err := a.engine.Sync(cmd.Context(), userID)
			if err != nil {
				return err
			}

			types := make([]string, 0, len(report.Types))
			for t := range report.Types {
				types = append(types, string(t))
			}
			sort.Strings(types)
			for _, t := range types {
				r := report.Types[models.EntityType(t)]
				if r.Pushed+r.Pulled == 0 {
					continue
				}
				fmt.Fprintf(a.out, "%-16s pushed %d (accepted %d, conflicts %d), pulled %d (applied %d)\n",
					t, r.Pushed, r.Accepted, r.Conflicts, r.Pulled, r.Applied)
			}
			if n := report.Conflicts(); n > 0 {
				fmt.Fprintf(a.out, "%d conflict(s); see 'altair conflicts'\n", n)
			} else {
				fmt.Fprintln(a.out, "in sync")
			}
			return nil
		},
	}
}

func (a *App) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync state of this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			userID, err := a.userID()
			if err != nil {
				return err
			}
			a.engine.Probe(ctx)

			st, err := a.engine.Status(ctx, userID)
			if err != nil {
				return err
			}
			last := "never"
			if st.LastSyncAt != nil {
				last = st.LastSyncAt.In(a.quests.Location).Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(a.out, "state: %s\npending: %d\nconflicts: %d\nlast sync: %s\n", st.State, st.Pending, st.Conflicts, last)
			if st.LastFailedAt != nil {
				fmt.Fprintf(a.out, "last attempt failed: %s\n", st.LastFailedAt.In(a.quests.Location).Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func (a *App) conflictsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List conflicts found by sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			cs, err := a.engine.Conflicts(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if len(cs) == 0 {
				fmt.Fprintln(a.out, "no conflicts")
				return nil
			}
			for _, c := range cs {
				fmt.Fprintf(a.out, "%s %s  server v%d, local v%d  %s\n", c.EntityType, c.EntityID, c.ServerVersion, c.ClientVersion, c.Message)
			}
			return nil
		},
	}

	var keep string
	resolve := &cobra.Command{
		Use:   "resolve <type> <id>",
		Short: "Settle a conflict by keeping the local or the server copy",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			t := models.EntityType(args[0])
			if !t.Valid() {
				return common.Validation("type", "unknown entity type "+args[0])
			}
			id, err := common.ParseID(args[1])
			if err != nil {
				return err
			}
			var res syncer.Resolution
			switch keep {
			case "local":
				res = syncer.KeepLocal
			case "remote", "server":
				res = syncer.KeepRemote
			default:
				return common.Validation("keep", "expected local or remote")
			}
			if err := a.engine.ResolveConflict(cmd.Context(), userID, t, id, res); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "conflict on %s %s resolved, kept %s\n", t, id, keep)
			return nil
		},
	}
	resolve.Flags().StringVar(&keep, "keep", "", "local or remote")
	_ = resolve.MarkFlagRequired("keep")

	cmd.AddCommand(resolve)
	return cmd
}
