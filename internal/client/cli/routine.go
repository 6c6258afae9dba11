package cli

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/spf13/cobra"
)

func (a *App) routineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routine",
		Short: "Recurring quests spawned by the server",
	}

	var (
		schedule    string
		energy      int
		description string
	)
	add := &cobra.Command{
		Use:   "add <title...>",
		Short: "Create a routine from a five-field cron schedule",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			now := a.now()
			r := &models.Routine{
				Title:       strings.Join(args, " "),
				Description: description,
				Schedule:    schedule,
				EnergyCost:  energy,
				Active:      true,
			}
			r.UserID = userID
			r.Touch(now)
			if r.NextDue, err = r.NextAfter(now); err != nil {
				return err
			}
			if err := r.Validate(); err != nil {
				return err
			}
			if err := a.store.Repos().Routines.Create(cmd.Context(), r); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "routine %s next due %s\n", r.ID, r.NextDue.In(a.quests.Location).Format("2006-01-02 15:04"))
			return nil
		},
	}
	add.Flags().StringVar(&schedule, "schedule", "0 8 * * *", "cron schedule")
	add.Flags().IntVarP(&energy, "energy", "e", common.MinEnergyCost, "energy cost of spawned quests (1-5)")
	add.Flags().StringVarP(&description, "description", "d", "", "description of spawned quests")

	list := &cobra.Command{
		Use:   "list",
		Short: "List routines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			rs, err := a.store.Repos().Routines.GetAllForUser(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if len(rs) == 0 {
				fmt.Fprintln(a.out, "no routines")
				return nil
			}
			for _, r := range rs {
				state := "active"
				if !r.Active {
					state = "paused"
				}
				fmt.Fprintf(a.out, "%s  %-6s %-12s %s\n", r.ID, state, r.Schedule, r.Title)
			}
			return nil
		},
	}

	pause := a.routineToggleCmd("pause", false)
	resume := a.routineToggleCmd("resume", true)

	cmd.AddCommand(add, list, pause, resume)
	return cmd
}

func (a *App) routineToggleCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <routine-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a routine",
		Args:  exactID("routine"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.userID()
			if err != nil {
				return err
			}
			id, err := common.ParseID(args[0])
			if err != nil {
				return err
			}
			r, err := a.store.Repos().Routines.GetByID(ctx, userID, id)
			if err != nil {
				return err
			}
			now := a.now()
			r.Active = active
			if active {
				// resuming does not replay missed occurrences
				if r.NextDue, err = r.NextAfter(now); err != nil {
					return err
				}
			}
			r.Touch(now)
			if err := a.store.Repos().Routines.Update(ctx, r); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "routine %s %sd\n", r.ID, use)
			return nil
		},
	}
}
