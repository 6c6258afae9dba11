package cli

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/triage"
	"github.com/spf13/cobra"
)

type triageOptions struct {
	as          string
	title       string
	description string
	energy      int
	quantity    int
	sourceType  string
	uri         string
	checkpoints []string
}

// target builds the triage target. Missing titles fall back to the first
// line of the inbox content.
func (o triageOptions) target(item *models.InboxItem) (triage.Target, error) {
	title := strings.TrimSpace(o.title)
	if title == "" {
		title = strings.TrimSpace(strings.SplitN(item.Content, "\n", 2)[0])
	}
	t := triage.Target{Kind: triage.Kind(o.as)}

	switch t.Kind {
	case triage.KindQuest:
		q := &models.Quest{Title: title, Description: o.description, EnergyCost: o.energy}
		for _, cp := range o.checkpoints {
			q.Checkpoints = append(q.Checkpoints, models.Checkpoint{Title: cp})
		}
		t.Quest = q
	case triage.KindNote:
		content := o.description
		if content == "" {
			content = item.Content
		}
		t.Note = &models.Note{Title: title, Content: content}
	case triage.KindItem:
		t.Item = &models.Item{Name: title, Description: o.description, Quantity: o.quantity}
	case triage.KindSourceDocument, "source", "source_document":
		t.Kind = triage.KindSourceDocument
		st := models.SourceType(o.sourceType)
		if st == "" {
			st = models.SourceTypeText
			if o.uri != "" {
				st = models.SourceTypeURL
			}
		}
		t.SourceDocument = &models.SourceDocument{Title: title, SourceType: st, URI: o.uri, Excerpt: o.description}
	default:
		return t, common.Validation("as", fmt.Sprintf("unknown target %q", o.as))
	}
	return t, nil
}

func (a *App) triageCmd() *cobra.Command {
	var o triageOptions
	cmd := &cobra.Command{
		Use:   "triage <item-id>",
		Short: "Turn an inbox item into a quest, note, item or source",
		Args:  exactID("item"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.userID()
			if err != nil {
				return err
			}
			itemID, err := common.ParseID(args[0])
			if err != nil {
				return err
			}
			item, err := a.store.Repos().Inbox.GetByID(ctx, userID, itemID)
			if err != nil {
				return err
			}
			target, err := o.target(item)
			if err != nil {
				return err
			}
			id, err := a.triage.Triage(ctx, userID, itemID, target)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s created\n", target.Kind, id)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.as, "as", string(triage.KindQuest), "target: quest, note, item or source")
	f.StringVarP(&o.title, "title", "t", "", "title or item name; defaults to the captured text")
	f.StringVarP(&o.description, "description", "d", "", "description, note body or excerpt")
	f.IntVarP(&o.energy, "energy", "e", common.MinEnergyCost, "quest energy cost (1-5)")
	f.StringArrayVar(&o.checkpoints, "checkpoint", nil, "quest checkpoint, repeatable")
	f.IntVar(&o.quantity, "quantity", 1, "item quantity")
	f.StringVar(&o.sourceType, "type", "", "source type: url, file or text")
	f.StringVar(&o.uri, "uri", "", "source location")
	return cmd
}
