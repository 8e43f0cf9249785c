package cli

import (
	"context"
	"os"

	"github.com/dmitrijs2005/offsync/internal/client/config"
	"github.com/dmitrijs2005/offsync/internal/logging"
	"github.com/spf13/cobra"
)

// appFunc hands commands the App of the current invocation. The App is built
// in PersistentPreRunE, after flags are parsed, so commands look it up lazily.
type appFunc func() *App

// session owns the App opened for one execution of the root command.
type session struct {
	app *App
}

func (s *session) get() *App { return s.app }

// close is idempotent: cobra skips post-run hooks when RunE fails, so the
// caller closes again after Execute.
func (s *session) close(ctx context.Context) error {
	if s.app == nil {
		return nil
	}
	err := s.app.Close(ctx)
	s.app = nil
	return err
}

// NewRootCmd builds the offsync command tree. The returned func releases the
// local store and must be called once execution is over.
func NewRootCmd() (*cobra.Command, func(context.Context) error) {
	s := &session{}

	root := &cobra.Command{
		Use:   "offsync",
		Short: "offsync - local-first friends list that syncs when it can",
		Long: `offsync keeps friends, tags and attachments in a local database and
records every change in an outbox. "offsync sync" uploads pending files,
pushes the outbox and pulls remote changes; everything else works offline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if !needsApp(cmd) {
			return nil
		}
		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		log, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		app, err := NewApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		app.SetInput(cmd.InOrStdin())
		s.app = app
		return nil
	}
	root.PersistentPostRunE = func(cmd *cobra.Command, _ []string) error {
		return s.close(context.WithoutCancel(cmd.Context()))
	}

	addCommands(root, s.get, false)
	return root, s.close
}

// needsApp is false for help and completion commands.
func needsApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

// addCommands attaches the command groups to root. The shell gets a nested
// tree without itself.
func addCommands(root *cobra.Command, get appFunc, nested bool) {
	root.AddCommand(
		newFriendsCmd(get),
		newTagsCmd(get),
		newAttachCmd(get),
		newSyncCmd(get),
		newStatusCmd(get),
	)
	if !nested {
		root.AddCommand(newShellCmd(get))
	}
}

// Execute runs the command tree with os.Args and returns the process exit
// code.
func Execute(ctx context.Context) int {
	root, closeApp := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if cerr := closeApp(context.WithoutCancel(ctx)); err == nil {
		err = cerr
	}
	if err != nil {
		newPrinter(os.Stderr).Error(err)
		return 1
	}
	return 0
}
