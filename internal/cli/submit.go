package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/events"
)

// ErrJobFailed is returned by submit --wait when the job ends without output.
var ErrJobFailed = errors.New("generation job did not complete")

func SubmitCmd(g *globalFlags) *cobra.Command {
	var (
		format string
		prompt string
		refs   []string
		wait   bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "submits a generation job to the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := domain.ParseFormat(format)
			if err != nil {
				return err
			}
			req := domain.SubmitRequest{Format: f, Prompt: prompt, ReferenceImages: refs}
			if err := req.Validate(); err != nil {
				return err
			}
			client := g.client()
			out := cmd.OutOrStdout()

			if !wait {
				ctx, cancel := g.callContext(cmd)
				defer cancel()
				reply, err := client.Submit(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(out, reply)
			}

			// Subscribe first so a fast completion is not missed.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			stream, err := client.Events(ctx)
			if err != nil {
				return err
			}
			defer stream.Close()

			callCtx, callCancel := g.callContext(cmd)
			reply, err := client.Submit(callCtx, req)
			callCancel()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "submitted %s\n", reply.JobID)
			return follow(out, stream, reply.JobID)
		},
	}
	cmd.Flags().StringVar(&format, "format", "image-fast", "generation format (image-fast, image-high, video-fast, video-high)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "generation prompt")
	cmd.Flags().StringSliceVar(&refs, "ref", nil, "reference image URL (repeatable)")
	cmd.Flags().BoolVar(&wait, "wait", false, "stream progress until the job finishes")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

type eventSource interface {
	Next() (events.Event, error)
}

// follow prints events for jobID until it reaches a terminal state.
func follow(out io.Writer, stream eventSource, jobID string) error {
	for {
		ev, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("event stream closed before job %s finished", jobID)
			}
			return err
		}
		if ev.JobID != jobID {
			continue
		}
		done, err := report(out, ev)
		if done {
			return err
		}
	}
}

// report prints one event and says whether it ends the job.
func report(out io.Writer, ev events.Event) (bool, error) {
	switch ev.Type {
	case events.TypeStarted, events.TypeProgress:
		if ev.Job != nil {
			fmt.Fprintf(out, "%s %s %d%% (eta %s)\n", ev.JobID, ev.Job.Status, ev.Job.Progress, ev.Job.EstimatedTimeRemaining)
		}
		return false, nil
	case events.TypeCompleted:
		return true, printJSON(out, ev.Completion)
	case events.TypeFailed:
		if ev.Failure != nil {
			fmt.Fprintf(out, "%s failed (%s): %s\n", ev.JobID, ev.Failure.Reason, ev.Failure.Message)
		}
		return true, ErrJobFailed
	case events.TypeCancelled:
		fmt.Fprintf(out, "%s cancelled\n", ev.JobID)
		return true, ErrJobFailed
	}
	return false, nil
}
