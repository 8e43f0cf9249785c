package cli

import (
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/dmitrijs2005/offsync/internal/client/services"
	"github.com/spf13/cobra"
)

func newFriendsCmd(get appFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "friends",
		Aliases: []string{"f"},
		Short:   "Manage friends",
	}
	cmd.AddCommand(
		newFriendsAddCmd(get),
		newFriendsListCmd(get),
		newFriendsUpdateCmd(get),
		newFriendsDeleteCmd(get),
		newFriendsRangeCmd(get),
		newFriendsTagCmd(get, true),
		newFriendsTagCmd(get, false),
	)
	return cmd
}

func newFriendsAddCmd(get appFunc) *cobra.Command {
	var (
		age  int
		tags []string
	)
	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Add a friend (prompts when no name is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := get()
			out := cmd.OutOrStdout()

			var name string
			if len(args) == 1 {
				name = args[0]
			} else {
				var err error
				if name, err = GetSimpleText(app.reader, "Enter name", out); err != nil {
					return err
				}
				if !cmd.Flags().Changed("age") {
					if age, err = GetInt(app.reader, "Enter age (empty for 0)", 0, out); err != nil {
						return err
					}
				}
			}

			f, err := app.friends.Add(cmd.Context(), name, age, tags)
			if err != nil {
				return err
			}
			newPrinter(out).Success("added friend %s (%s)", f.Name, f.ID)
			return nil
		},
	}
	cmd.Flags().IntVar(&age, "age", 0, "age in years")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag id or name (repeatable)")
	return cmd
}

func newFriendsListCmd(get appFunc) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "l"},
		Short:   "List friends",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := get()
			list, err := app.friends.List(cmd.Context(), all)
			if err != nil {
				return err
			}
			return printFriends(cmd, app, list)
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include soft-deleted friends")
	return cmd
}

func newFriendsRangeCmd(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "range <min> <max>",
		Short: "List live friends whose age is within [min, max]",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lo, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid min age %q", args[0])
			}
			hi, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid max age %q", args[1])
			}
			app := get()
			list, err := app.friends.ListByAgeRange(cmd.Context(), lo, hi)
			if err != nil {
				return err
			}
			return printFriends(cmd, app, list)
		},
	}
}

func printFriends(cmd *cobra.Command, app *App, list []*models.Friend) error {
	p := newPrinter(cmd.OutOrStdout())
	if len(list) == 0 {
		p.Warn("no friends")
		return nil
	}

	names, err := tagNameIndex(cmd, app)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(list))
	for _, f := range list {
		state := "live"
		if !f.Live() {
			state = "deleted"
		}
		rows = append(rows, []string{f.ID, f.Name, strconv.Itoa(f.Age), tagNames(f.RecordTags, names), formatMillis(f.UpdatedAt), state})
	}
	p.Table([]string{"ID", "NAME", "AGE", "TAGS", "UPDATED", "STATE"}, rows)
	return nil
}

func tagNameIndex(cmd *cobra.Command, app *App) (map[string]string, error) {
	tags, err := app.tags.List(cmd.Context())
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(tags))
	for _, t := range tags {
		names[t.ID] = t.Name
	}
	return names, nil
}

func newFriendsUpdateCmd(get appFunc) *cobra.Command {
	var (
		name string
		age  int
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a friend's name or age",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch services.FriendPatch
			if cmd.Flags().Changed("name") {
				patch.Name = &name
			}
			if cmd.Flags().Changed("age") {
				patch.Age = &age
			}
			if patch.Name == nil && patch.Age == nil {
				return fmt.Errorf("nothing to update: pass --name and/or --age")
			}

			f, err := get().friends.Update(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout()).Success("updated friend %s: %s, %d", f.ID, f.Name, f.Age)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().IntVar(&age, "age", 0, "new age")
	return cmd
}

func newFriendsDeleteCmd(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a friend",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := get().friends.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout()).Success("deleted friend %s", args[0])
			return nil
		},
	}
}

func newFriendsTagCmd(get appFunc, attach bool) *cobra.Command {
	use, short := "tag <id> <tag>", "Attach a tag (id or name) to a friend"
	if !attach {
		use, short = "untag <id> <tag>", "Remove a tag from a friend"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := get()
			var (
				f   *models.Friend
				err error
			)
			if attach {
				f, err = app.friends.Tag(cmd.Context(), args[0], args[1])
			} else {
				f, err = app.friends.Untag(cmd.Context(), args[0], args[1])
			}
			if err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout()).Success("friend %s now has %d tag(s)", f.ID, len(f.RecordTags))
			return nil
		},
	}
}
