package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
)

func newShellCmd(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell with periodic background sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := get()

			ctx, cancel := context.WithCancel(cmd.Context())
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				app.StartSyncLoop(ctx, app.config.SyncInterval)
			}()
			defer func() {
				cancel()
				wg.Wait()
			}()

			printlnFn("offsync shell (type 'help' for commands)")
			out := cmd.OutOrStdout()
			runREPL(ctx, func(ctx context.Context, args []string) error {
				return app.execLine(ctx, args, out)
			}, app.status, app.reader)
			return nil
		},
	}
}

// execLine runs one shell line through a fresh command tree bound to a.
func (a *App) execLine(ctx context.Context, args []string, out io.Writer) error {
	root := &cobra.Command{
		Use:           "offsync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addCommands(root, func() *App { return a }, true)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}

// status is the shell prompt: reachability and outbox size.
func (a *App) status() string {
	st, err := a.engine.Status(context.Background())
	if err != nil {
		return fmt.Sprintf("(%s)", a.Mode())
	}
	return fmt.Sprintf("(%s, %d pending)", a.Mode(), st.Pending+int64(st.Backlog))
}
