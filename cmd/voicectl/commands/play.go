package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"voice-dashboard/pkg/audio"
	"voice-dashboard/pkg/playback"
)

var playMuted bool

var playCmd = &cobra.Command{
	Use:   "play <id>",
	Short: "Play a recording and follow its progress",
	Long: `Load a recording into the player and play it to the end. Loading
failures are reported with the reason the stored file could not be played.

Examples:
  voicectl play 6f1c...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		// Only the latest state matters; older ones are dropped.
		states := make(chan playback.State, 1)
		onChange := func(s playback.State) {
			select {
			case states <- s:
			default:
				select {
				case <-states:
				default:
				}
				select {
				case states <- s:
				default:
				}
			}
		}

		lib, err := a.library(onChange)
		if err != nil {
			return err
		}
		defer lib.Close()

		rec, err := a.persistence.Get(ctx, args[0])
		if err != nil {
			return err
		}
		lib.Prepend(rec)
		player, err := lib.SelectForPlayback(ctx, rec.ID)
		if err != nil {
			return err
		}
		if player == nil {
			return fmt.Errorf("recording %s has no playable file", rec.ID)
		}
		if playMuted {
			player.ToggleMute()
		}

		out := cmd.ErrOrStderr()
		fmt.Fprintf(out, "%s\n", rec.Title)
		return followPlayback(ctx, player, states, func(s playback.State) {
			fmt.Fprintf(out, "\r%s / %s", audio.FormatTime(s.Elapsed), audio.FormatTime(s.Duration))
		}, func() { fmt.Fprintln(out) })
	},
}

// followPlayback starts the player once it is ready and returns when the
// clip ended, failed or ctx is done.
func followPlayback(ctx context.Context, player *playback.Player, states <-chan playback.State, progress func(playback.State), done func()) error {
	defer done()

	started := false
	check := func(s playback.State) (bool, error) {
		switch s.Status {
		case playback.StatusError:
			if s.Err == nil {
				return true, fmt.Errorf("playback failed")
			}
			return true, s.Err
		case playback.StatusReady:
			if !started {
				started = true
				if err := player.TogglePlay(ctx); err != nil {
					return true, err
				}
			}
		case playback.StatusPlaying:
			progress(s)
		case playback.StatusPaused:
			if started {
				return true, nil
			}
		}
		return false, nil
	}

	// The player may have become ready before anyone listened.
	if end, err := check(player.State()); end {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-states:
			if end, err := check(s); end {
				return err
			}
		}
	}
}

func init() {
	playCmd.Flags().BoolVar(&playMuted, "muted", false, "start muted")

	rootCmd.AddCommand(playCmd)
}
