package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/spf13/cobra"
)

type questAction func(ctx context.Context, userID string, id common.ID) (*models.Quest, error)

func (a *App) questCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "quest",
		Aliases: []string{"q"},
		Short:   "Quest lifecycle: one active quest at a time",
	}
	cmd.AddCommand(
		a.questListCmd(),
		a.questShowCmd(),
		a.questMoveCmd("start", "Make a backlog quest the active one", a.quests.Start),
		a.questMoveCmd("complete", "Finish the active quest and spend its energy", a.quests.Complete),
		a.questMoveCmd("abandon", "Give up on the active quest", a.quests.Abandon),
		a.questMoveCmd("backlog", "Put the active quest back in the backlog", a.quests.Backlog),
		a.questMoveCmd("reopen", "Move a finished quest back to the backlog", a.quests.Reopen),
		a.checkpointCmd(),
	)
	return cmd
}

func (a *App) questMoveCmd(use, short string, action questAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <quest-id>",
		Short: short,
		Args:  exactID("quest"),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			id, err := common.ParseID(args[0])
			if err != nil {
				return err
			}
			q, err := action(cmd.Context(), userID, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s  %s  %s\n", q.ID, q.Status, q.Title)
			return nil
		},
	}
}

func (a *App) questListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List quests, the active one first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			userID, err := a.userID()
			if err != nil {
				return err
			}
			repo := a.store.Repos().Quests

			var quests []*models.Quest
			if status != "" {
				s := models.QuestStatus(strings.ToUpper(status))
				if !s.Valid() {
					return common.Validation("status", "unknown status "+status)
				}
				quests, err = repo.ListByStatus(ctx, userID, s)
			} else {
				quests, err = repo.GetAllForUser(ctx, userID)
			}
			if err != nil {
				return err
			}
			if len(quests) == 0 {
				fmt.Fprintln(a.out, "no quests")
				return nil
			}
			for _, q := range activeFirst(quests) {
				fmt.Fprintf(a.out, "%s  %-9s %d  %s\n", q.ID, q.Status, q.EnergyCost, q.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only quests in this status")
	return cmd
}

func activeFirst(qs []*models.Quest) []*models.Quest {
	out := make([]*models.Quest, 0, len(qs))
	for _, q := range qs {
		if q.Status == models.QuestActive {
			out = append(out, q)
		}
	}
	for _, q := range qs {
		if q.Status != models.QuestActive {
			out = append(out, q)
		}
	}
	return out
}

func (a *App) questShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <quest-id>",
		Short: "Show a quest with its checkpoints",
		Args:  exactID("quest"),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			id, err := common.ParseID(args[0])
			if err != nil {
				return err
			}
			q, err := a.store.Repos().Quests.GetByID(cmd.Context(), userID, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s\n  status: %s\n  energy: %d\n", q.Title, q.Status, q.EnergyCost)
			if q.Description != "" {
				fmt.Fprintf(a.out, "  %s\n", q.Description)
			}
			for _, cp := range q.Checkpoints {
				mark := " "
				if cp.Completed {
					mark = "x"
				}
				fmt.Fprintf(a.out, "  [%s] %s  %s\n", mark, cp.ID, cp.Title)
			}
			return nil
		},
	}
}

func (a *App) checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage quest checkpoints",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <quest-id> <title...>",
			Short: "Append a checkpoint",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				userID, err := a.userID()
				if err != nil {
					return err
				}
				questID, err := common.ParseID(args[0])
				if err != nil {
					return err
				}
				cp, err := a.quests.AddCheckpoint(cmd.Context(), userID, questID, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "checkpoint %s added\n", cp.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "toggle <quest-id> <checkpoint-id>",
			Short: "Flip a checkpoint between done and open",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				userID, err := a.userID()
				if err != nil {
					return err
				}
				questID, err := common.ParseID(args[0])
				if err != nil {
					return err
				}
				cpID, err := common.ParseID(args[1])
				if err != nil {
					return err
				}
				cp, err := a.quests.ToggleCheckpoint(cmd.Context(), userID, questID, cpID)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "checkpoint %s completed=%t\n", cp.ID, cp.Completed)
				return nil
			},
		},
	)
	return cmd
}
