package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cadenza.click/internal/config"
	"cadenza.click/internal/playback"
	"cadenza.click/internal/source"
	"cadenza.click/internal/state"
	"cadenza.click/internal/tracking"
	"cadenza.click/internal/transport"
	"github.com/spf13/cobra"
)

// newPlayCommand creates the play subcommand
func newPlayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play <locator>",
		Short: "Play an audio program",
		Long:  "Play a local file or stream locator, reporting progress until playback finishes or is interrupted.",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlayE,
	}

	cmd.Flags().Duration("offset", 0, "Start playback at this offset")
	cmd.Flags().Float64("speed", 0, "Playback speed multiplier (0 = config default)")
	cmd.Flags().Bool("resume", false, "Resume from the last recorded position")
	cmd.Flags().Bool("paused", false, "Connect paused instead of auto-playing")

	return cmd
}

func runPlayE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}
	setupLogging(cli, cfg, cmd.ErrOrStderr())

	req := state.MediaRequest{URL: args[0]}

	offset, _ := cmd.Flags().GetDuration("offset")
	speed, _ := cmd.Flags().GetFloat64("speed")
	resume, _ := cmd.Flags().GetBool("resume")
	paused, _ := cmd.Flags().GetBool("paused")

	if speed == 0 {
		speed = cfg.PlaybackSpeed
	}

	// The ledger is best-effort: playback proceeds without it.
	ledger := openLedger(cli, cfg)
	if ledger != nil {
		defer ledger.Close()
	}

	if resume && ledger != nil {
		positionMS, found, err := tracking.LastPosition(ledger, req.URL)
		if err != nil {
			slog.Warn("resume lookup failed", "url", req.URL, "error", err)
		} else if found {
			offset = time.Duration(positionMS) * time.Millisecond
			cmd.Printf("Resuming at %s\n", offset.Round(time.Second))
		}
	}

	store := state.NewStore()
	if ledger != nil {
		recorder := tracking.NewRecorder(ledger)
		recorder.SampleInterval = time.Duration(cfg.ProgressSampleSec) * time.Second
		defer recorder.Attach(store)()
	}

	choreographer := playback.New(store, source.NewResolver(), transport.NewBeep(), nil, playback.Options{
		TickInterval:     time.Duration(cfg.TickIntervalMS) * time.Millisecond,
		ReadyWaitTimeout: time.Duration(cfg.ReadyWaitTimeoutMS) * time.Millisecond,
	})
	defer choreographer.Deinit()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshots := choreographer.StateChanges(ctx)

	if err := choreographer.BeginPlayback(ctx, req, playback.Config{
		InitialOffset:          offset,
		IsAutoPlay:             cfg.IsAutoPlay && !paused,
		MaxDurationDiscrepancy: cfg.MaxDurationDiscrepancy,
	}); err != nil {
		cmd.PrintErrf("Error: cannot play %s: %v\n", req.URL, err)
		return err
	}

	if speed != 1.0 {
		choreographer.SetPlaybackSpeed(speed)
	}
	choreographer.SetSkipDistance(time.Duration(cfg.SkipDistanceMS) * time.Millisecond)

	cmd.Printf("Playing %s\n", req.URL)
	return cli.watchPlayback(cmd, snapshots)
}

// watchPlayback drains state snapshots until playback stops, fails, or the
// context is cancelled.
func (c *CLI) watchPlayback(cmd *cobra.Command, snapshots <-chan state.State) error {
	interactive := c.isInteractiveTerminal(int(os.Stdout.Fd()))

	var lastErr error
	for snapshot := range snapshots {
		// Errors are retained in state; only a new one is worth reporting.
		if snapshot.Err != nil && snapshot.Err != lastErr {
			lastErr = snapshot.Err
			cmd.PrintErrf("Error: %v\n", snapshot.Err)
			if code, ok := playback.CodeOf(snapshot.Err); ok && code == playback.CodePlaybackStartFailure {
				return snapshot.Err
			}
			continue
		}

		info := snapshot.PlaybackInfo
		if info == nil {
			continue
		}

		if interactive && info.DurationMS > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "\r%s / %s (%s)",
				(time.Duration(info.PositionMS) * time.Millisecond).Round(time.Second),
				(time.Duration(info.DurationMS) * time.Millisecond).Round(time.Second),
				info.State)
		}

		if info.State == state.PlaybackStopped {
			if interactive {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			cmd.Printf("Finished at %s\n",
				(time.Duration(info.PositionMS) * time.Millisecond).Round(time.Second))
			return nil
		}
	}

	// Channel closed: interrupted before playback finished.
	if interactive {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	cmd.Println("Playback interrupted")
	return nil
}

// openLedger opens the session ledger database, degrading gracefully when it
// cannot be created.
func openLedger(cli *CLI, cfg *config.Config) *sql.DB {
	ledgerPath := cli.configManager.LedgerPathFor(cfg)
	db, err := tracking.NewDatabase(ledgerPath)
	if err != nil {
		slog.Warn("session ledger unavailable, continuing without tracking",
			"path", ledgerPath, "error", err)
		return nil
	}
	slog.Debug("session ledger opened", "path", ledgerPath)
	return db
}
