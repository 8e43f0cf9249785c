package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/spf13/cobra"
)

func newAttachCmd(get appFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "attach",
		Aliases: []string{"a"},
		Short:   "Manage file attachments",
	}
	cmd.AddCommand(
		newAttachAddCmd(get),
		newAttachListCmd(get),
		newAttachURLCmd(get),
		newAttachDeleteCmd(get),
	)
	return cmd
}

func newAttachAddCmd(get appFunc) *cobra.Command {
	var (
		friendID string
		mimeType string
		name     string
		tagRefs  []string
	)
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Store a file locally; it is uploaded on the next sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := get()
			ctx := cmd.Context()

			if friendID != "" {
				if _, err := app.friends.Get(ctx, friendID); err != nil {
					return err
				}
			}
			tagIDs := make([]string, 0, len(tagRefs))
			for _, ref := range tagRefs {
				t, err := app.tags.Resolve(ctx, ref)
				if err != nil {
					return err
				}
				tagIDs = append(tagIDs, t.ID)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if name == "" {
				name = filepath.Base(args[0])
			}
			id, err := app.files.Store(ctx, f, models.AttachmentMeta{
				Filename:   name,
				MimeType:   mimeType,
				FriendID:   friendID,
				RecordTags: tagIDs,
			})
			if err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout()).Success("stored %s as attachment %s (pending upload)", name, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&friendID, "friend", "", "friend id the file belongs to")
	cmd.Flags().StringVar(&mimeType, "mime", "", "mime type (guessed from the extension when empty)")
	cmd.Flags().StringVar(&name, "name", "", "file name to record (defaults to the base name of path)")
	cmd.Flags().StringSliceVar(&tagRefs, "tag", nil, "tag id or name (repeatable)")
	return cmd
}

func newAttachListCmd(get appFunc) *cobra.Command {
	var friendID string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List attachments",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := get().files.List(cmd.Context(), friendID)
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())
			if len(list) == 0 {
				p.Warn("no attachments")
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, a := range list {
				friend := a.FriendID
				if friend == "" {
					friend = "-"
				}
				rows = append(rows, []string{a.ID, a.Filename, a.MimeType, strconv.FormatInt(a.Size, 10), string(a.UploadStatus), friend})
			}
			p.Table([]string{"ID", "FILENAME", "MIME", "SIZE", "STATUS", "FRIEND"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&friendID, "friend", "", "only attachments of this friend")
	return cmd
}

func newAttachURLCmd(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "url <id>",
		Short: "Print the remote URL of an uploaded attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, ok, err := get().files.FileURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("attachment %s is not uploaded yet; run sync", args[0])
			}
			newPrinter(cmd.OutOrStdout()).Println(url)
			return nil
		},
	}
}

func newAttachDeleteCmd(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an attachment and its local copy",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := get().files.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout()).Success("deleted attachment %s", args[0])
			return nil
		},
	}
}
