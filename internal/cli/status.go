package cli

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func StatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "shows the job the daemon is tracking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.callContext(cmd)
			defer cancel()
			job, err := g.client().Active(ctx)
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
				fmt.Fprintln(cmd.OutOrStdout(), "no active job")
				return nil
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
}

func CancelCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "cancels the active job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.callContext(cmd)
			defer cancel()
			reply, err := g.client().Cancel(ctx, args[0])
			if err != nil {
				return err
			}
			if reply.RemoteError != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: worker pool did not confirm cancellation: %s\n", reply.RemoteError)
			}
			return printJSON(cmd.OutOrStdout(), reply)
		},
	}
}
