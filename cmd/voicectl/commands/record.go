package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voice-dashboard/pkg/audio"
	"voice-dashboard/pkg/capture"
	"voice-dashboard/pkg/domain"
	"voice-dashboard/pkg/microphone"
)

var (
	recordTitle       string
	recordDescription string
	recordPublic      bool
	recordFor         time.Duration
	recordKeep        string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record from the microphone and save the clip",
	Long: `Record from the default input device until Enter is pressed, Ctrl+C is
hit or --for elapses, then upload the clip as a new recording. If the upload
fails the clip is kept under the config directory in unsaved/.

Examples:
  voicectl record --title "Standup notes"
  voicectl record --for 30s --title "Quick memo" --keep memo.wav`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		format, err := a.cfg.Format()
		if err != nil {
			return err
		}
		mic, err := microphone.New(format)
		if err != nil {
			return err
		}
		defer mic.Terminate()

		uploader, err := a.uploader()
		if err != nil {
			return err
		}
		lib, err := a.library(nil)
		if err != nil {
			return err
		}
		defer lib.Close()

		sess, err := capture.NewSession(capture.Config{
			Device:   mic,
			Uploader: uploader,
			Library:  lib,
			Identity: a.identity,
			Handles:  a.handles,
			Format:   format,
		})
		if err != nil {
			return err
		}
		defer sess.Close()

		if err := sess.Start(ctx); err != nil {
			return err
		}
		out := cmd.ErrOrStderr()
		fmt.Fprintln(out, "Recording... press Enter to stop.")
		waitForStop(ctx, cmd, sess, recordFor)

		clip, err := sess.Stop()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\rRecorded %s\n", audio.FormatTime(float64(clip.Duration)))

		if recordKeep != "" {
			if err := os.WriteFile(recordKeep, clip.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", recordKeep, err)
			}
		}

		title := strings.TrimSpace(recordTitle)
		if title == "" {
			title = "Recording " + time.Now().Format("2006-01-02 15:04")
		}
		// Saving is not cancelled by the Ctrl+C that ended the capture.
		rec, err := saveClip(context.WithoutCancel(ctx), out, sess, clip, filepath.Join(a.cfg.Dir, unsavedDir), title, capture.SaveOptions{
			Description: recordDescription,
			IsPublic:    recordPublic,
		})
		if err != nil {
			return err
		}
		return printRecording(cmd.OutOrStdout(), rec)
	},
}

// unsavedDir holds clips whose upload failed, relative to the config directory.
const unsavedDir = "unsaved"

type clipSaver interface {
	Save(ctx context.Context, title string, opts capture.SaveOptions) (domain.Recording, error)
}

// saveClip persists clip through s. When that fails the clip is written to
// dir before the session releases it, and the error names the file so it
// can be uploaded later.
func saveClip(ctx context.Context, out io.Writer, s clipSaver, clip capture.Clip, dir, title string, opts capture.SaveOptions) (domain.Recording, error) {
	rec, err := s.Save(ctx, title, opts)
	if err == nil {
		fmt.Fprintf(out, "Saved %q\n", rec.Title)
		return rec, nil
	}

	path, keepErr := keepClip(dir, clip, time.Now())
	if keepErr != nil {
		log.Printf("record: keep unsaved clip: %v", keepErr)
		return domain.Recording{}, fmt.Errorf("save failed and the clip could not be kept: %w", err)
	}
	fmt.Fprintf(out, "Save failed, clip kept at %s\n", path)
	fmt.Fprintf(out, "Retry with: voicectl upload %q --title %q\n", path, title)
	return domain.Recording{}, fmt.Errorf("save recording (clip kept at %s): %w", path, err)
}

func keepClip(dir string, clip capture.Clip, now time.Time) (string, error) {
	if len(clip.Data) == 0 {
		return "", capture.ErrNoClip
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "recording-"+now.Format("20060102-150405")+".wav")
	if err := os.WriteFile(path, clip.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// waitForStop blocks until Enter, an interrupt or max elapses, printing the
// elapsed time every tick.
func waitForStop(ctx context.Context, cmd *cobra.Command, sess *capture.Session, max time.Duration) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	enter := make(chan struct{})
	go func() {
		bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		close(enter)
	}()

	var limit <-chan time.Time
	if max > 0 {
		t := time.NewTimer(max)
		defer t.Stop()
		limit = t.C
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-enter:
			return
		case <-ctx.Done():
			return
		case <-limit:
			return
		case <-ticker.C:
			fmt.Fprintf(cmd.ErrOrStderr(), "\r%s", audio.FormatTime(float64(sess.Elapsed())))
		}
	}
}

func init() {
	recordCmd.Flags().StringVarP(&recordTitle, "title", "t", "", "recording title (default: date and time)")
	recordCmd.Flags().StringVar(&recordDescription, "description", "", "recording description")
	recordCmd.Flags().BoolVar(&recordPublic, "public", false, "make the recording public")
	recordCmd.Flags().DurationVar(&recordFor, "for", 0, "stop automatically after this long")
	recordCmd.Flags().StringVar(&recordKeep, "keep", "", "also write the WAV clip to this file")

	rootCmd.AddCommand(recordCmd)
}
