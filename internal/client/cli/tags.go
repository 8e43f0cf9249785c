package cli

import (
	"github.com/spf13/cobra"
)

func newTagsCmd(get appFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tags",
		Aliases: []string{"t"},
		Short:   "Manage tags",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Create a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := get().tags.Create(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout()).Success("added tag %s (%s)", t.Name, t.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tags, most recently changed first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := get().tags.List(cmd.Context())
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())
			if len(list) == 0 {
				p.Warn("no tags")
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, t := range list {
				rows = append(rows, []string{t.ID, t.Name, formatMillis(t.UpdatedAt)})
			}
			p.Table([]string{"ID", "NAME", "UPDATED"}, rows)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a tag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := get().tags.Rename(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout()).Success("renamed tag %s to %s", t.ID, t.Name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a tag",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := get().tags.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout()).Success("deleted tag %s", args[0])
			return nil
		},
	})

	return cmd
}
