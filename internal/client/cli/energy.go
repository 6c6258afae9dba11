package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/spf13/cobra"
)

func printBudget(a *App, e *models.EnergyBudget) {
	fmt.Fprintf(a.out, "%s  spent %d of %d  (%d left)\n", e.Date, e.Spent, e.Budget, e.Remaining())
}

func (a *App) budgetCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:     "budget",
		Aliases: []string{"energy"},
		Short:   "Show the energy budget of a day",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			if date == "" {
				date = a.quests.Today()
			}
			e, err := a.quests.Budget(cmd.Context(), userID, date)
			if err != nil {
				return err
			}
			printBudget(a, e)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&date, "date", "", "day as YYYY-MM-DD; defaults to today")

	cmd.AddCommand(&cobra.Command{
		Use:   "set <budget>",
		Short: "Set the budget of a day (1-10)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.userID()
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return common.Validation("budget", "must be a number")
			}
			if date == "" {
				date = a.quests.Today()
			}
			e, err := a.quests.SetDailyBudget(ctx, userID, date, n)
			if err != nil {
				return err
			}
			printBudget(a, e)

			// budgets are not part of sync; tell the server directly
			if _, err := a.api.SetDailyBudget(ctx, date, n); err != nil {
				if errors.Is(err, common.ErrConnectionFailed) || errors.Is(err, common.ErrTimeout) {
					fmt.Fprintln(a.out, "server unreachable, saved on this device only")
					return nil
				}
				return err
			}
			return nil
		},
	})
	return cmd
}
