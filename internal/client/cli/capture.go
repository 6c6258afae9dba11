package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/filex"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/netx"
	"github.com/spf13/cobra"
)

// uploadFn is a test seam for netx.UploadToPresignedURL.
var uploadFn = netx.UploadToPresignedURL

func (a *App) captureCmd() *cobra.Command {
	var (
		source string
		file   string
		multi  bool
	)
	cmd := &cobra.Command{
		Use:   "capture [text...]",
		Short: "Put a thought into the inbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.Join(args, " ")
			if multi {
				text, err := GetMultiline(a.reader, "Enter text", a.out)
				if err != nil {
					return err
				}
				content = text
			}
			item, err := a.Capture(cmd.Context(), content, models.CaptureSource(source), file)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "captured %s\n", item.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "capture source (keyboard, voice, camera, share, widget, watch)")
	cmd.Flags().StringVar(&file, "file", "", "attach a file; needs the server")
	cmd.Flags().BoolVarP(&multi, "multiline", "m", false, "read the text from input until an empty line")
	return cmd
}

// Capture stores a new inbox item locally. With a file, the item is synced
// so the server knows it, the file is uploaded to a presigned URL and a
// second sync brings the attachment back.
func (a *App) Capture(ctx context.Context, content string, source models.CaptureSource, file string) (*models.InboxItem, error) {
	userID, err := a.userID()
	if err != nil {
		return nil, err
	}

	var (
		data        []byte
		contentType string
	)
	if file != "" {
		data, contentType, err = filex.ReadAttachment(file)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(content) == "" {
			content = filepath.Base(file)
		}
	}
	if source == "" {
		source = defaultSource(contentType)
	}

	item := &models.InboxItem{Content: strings.TrimSpace(content), Source: source}
	item.UserID = userID
	item.Touch(a.now())
	if err := item.Validate(); err != nil {
		return nil, err
	}
	if err := a.store.Repos().Inbox.Create(ctx, item); err != nil {
		return nil, err
	}
	a.logger.Info(ctx, "captured", "item", item.ID, "source", source)

	if file == "" {
		return item, nil
	}
	if err := a.attach(ctx, userID, item.ID, data, contentType); err != nil {
		return item, fmt.Errorf("item %s captured, attachment failed: %w", item.ID, err)
	}
	return a.store.Repos().Inbox.GetByID(ctx, userID, item.ID)
}

func (a *App) attach(ctx context.Context, userID string, itemID common.ID, data []byte, contentType string) error {
	if _, err := a.engine.Sync(ctx, userID); err != nil {
		return err
	}
	p, err := a.api.PresignAttachment(ctx, itemID, contentType)
	if err != nil {
		return err
	}
	if err := uploadFn(ctx, p.URL, contentType, data); err != nil {
		return err
	}
	a.logger.Info(ctx, "attachment uploaded", "item", itemID, "attachment", p.AttachmentID, "bytes", len(data))
	_, err = a.engine.Sync(ctx, userID)
	return err
}

func defaultSource(contentType string) models.CaptureSource {
	switch {
	case contentType == "":
		return models.SourceKeyboard
	case strings.HasPrefix(contentType, "image/"):
		return models.SourceCamera
	default:
		return models.SourceShare
	}
}

func (a *App) inboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "inbox",
		Aliases: []string{"ls"},
		Short:   "List untriaged inbox items",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			items, err := a.store.Repos().Inbox.GetAllForUser(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(a.out, "inbox is empty")
				return nil
			}
			for _, i := range items {
				att := ""
				if n := len(i.AttachmentIDs); n > 0 {
					att = fmt.Sprintf(" [%d attachment(s)]", n)
				}
				fmt.Fprintf(a.out, "%s  %-8s %s%s\n", i.ID, i.Source, firstLine(i.Content), att)
			}
			return nil
		},
	}
}

func (a *App) discardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard <item-id>",
		Short: "Drop an inbox item without creating anything",
		Args:  exactID("item"),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			id, err := common.ParseID(args[0])
			if err != nil {
				return err
			}
			if err := a.triage.Discard(cmd.Context(), userID, id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "discarded %s\n", id)
			return nil
		},
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
