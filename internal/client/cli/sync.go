package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload pending files, push local changes and pull remote ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := get().Sync(cmd.Context())
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())
			p.Success("sync done")
			p.Println(fmt.Sprintf("uploads:  %d uploaded, %d failed, %d skipped", res.Uploads.Uploaded, res.Uploads.Failed, res.Uploads.Skipped))
			if res.PushDeferred {
				p.Warn("push:     deferred (retry window not reached)")
			} else {
				p.Println(fmt.Sprintf("push:     %d acknowledged, %d not acknowledged", res.Pushed, res.Unacked))
			}
			p.Println(fmt.Sprintf("pull:     %d applied, %d skipped in %d batch(es), cursor %d", res.Applied, res.Skipped, res.Batches, res.Cursor))
			return nil
		},
	}
}

func newStatusCmd(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show outbox and cursor state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := get().engine.Status(cmd.Context())
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())
			p.Println(fmt.Sprintf("collection: %s", st.Collection))
			p.Println(fmt.Sprintf("cursor:     %d", st.Cursor))
			p.Println(fmt.Sprintf("pending:    %d", st.Pending))
			if st.Backlog > 0 {
				p.Warn("backlog:    %d (not yet persisted)", st.Backlog)
			}
			if h := st.Head; h != nil {
				p.Println(fmt.Sprintf("oldest:     %s %s/%s at %s", h.Op, h.Table, h.PrimaryKey, formatMillis(h.TS)))
				if h.Attempts > 0 {
					p.Warn("attempts:   %d, next at %s, last error: %s", h.Attempts, formatMillis(h.NextAttemptAt), h.LastError)
				}
			}
			return nil
		},
	}
}
