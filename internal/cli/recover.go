package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/bootstrap"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/events"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra"
)

// RecoverCmd resumes the persisted job in-process, without a daemon, and
// follows it to a terminal state.
func RecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "resumes the persisted job and waits for it to finish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := infra.LoadConfig()
			if err != nil {
				return err
			}
			logger := infra.NewLogger(cfg.AppEnv)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := bootstrap.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			listenCtx, cancelListen := context.WithCancel(ctx)
			defer cancelListen()
			go func() {
				if err := rt.Listen(listenCtx); err != nil && listenCtx.Err() == nil {
					logger.Warn().Err(err).Msg("realtime listener stopped")
				}
			}()

			// Recover may finish the job synchronously, so subscribe first.
			feed := rt.Bus.Subscribe(ctx)
			if err := rt.Jobs.Recover(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			job, ok := rt.Jobs.Active()
			if !ok {
				return drain(cmd, feed)
			}
			fmt.Fprintf(out, "resumed %s (%s, %d%%)\n", job.ID, job.Status, job.Progress)

			// The lifecycle timeout fires first; the extra minute only guards
			// against a wedged process.
			wait := time.NewTimer(cfg.GenerationTimeout + time.Minute)
			defer wait.Stop()
			for {
				select {
				case ev, open := <-feed:
					if !open {
						return ctx.Err()
					}
					if ev.JobID != job.ID {
						continue
					}
					if done, err := report(out, ev); done {
						return err
					}
				case <-wait.C:
					return fmt.Errorf("job %s still running after %s", job.ID, cfg.GenerationTimeout)
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		},
	}
}

// drain reports events emitted while recovering a job that had already
// finished.
func drain(cmd *cobra.Command, feed <-chan events.Event) error {
	out := cmd.OutOrStdout()
	for {
		select {
		case ev, open := <-feed:
			if !open {
				return nil
			}
			if done, err := report(out, ev); done {
				return err
			}
		default:
			fmt.Fprintln(out, "no job to recover")
			return nil
		}
	}
}
