package commands

import (
	"bytes"
	"fmt"
	"math"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"voice-dashboard/pkg/audio"
	"voice-dashboard/pkg/domain"
	"voice-dashboard/pkg/gateway"
)

var (
	listStatus string
	listSearch string
	listLimit  int
	listOffset int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your recordings, newest first",
	Long: `List recordings of the signed-in user.

Examples:
  voicectl list
  voicectl list --search standup --status completed
  voicectl list --limit 20 --offset 20 -o yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		filter, err := listFilter(a.pageFilter())
		if err != nil {
			return err
		}
		lib, err := a.library(nil)
		if err != nil {
			return err
		}
		defer lib.Close()

		if err := lib.SetFilter(ctx, filter); err != nil {
			return err
		}
		return printRecordings(cmd.OutOrStdout(), lib.Items())
	},
}

// listFilter applies the list flags over base.
func listFilter(base domain.ListFilter) (domain.ListFilter, error) {
	f := base
	if listStatus != "" {
		f.Status = domain.ProcessingStatus(strings.ToLower(listStatus))
		if !f.Status.Valid() {
			return f, fmt.Errorf("unknown status %q (pending, processing, completed, failed)", listStatus)
		}
	}
	f.Search = listSearch
	if listLimit > 0 {
		f.Limit = listLimit
	}
	f.Offset = listOffset
	return f.Normalize(), nil
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a recording with its transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.persistence.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printRecording(cmd.OutOrStdout(), rec)
	},
}

var (
	uploadTitle       string
	uploadDescription string
	uploadPublic      bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an audio file as a new recording",
	Long: `Upload an existing audio file. WAV and MP3 files get their exact length.

Examples:
  voicectl upload interview.wav --title "Interview"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		uploader, err := a.uploader()
		if err != nil {
			return err
		}
		ident, _ := a.identity.Current()

		title := uploadTitle
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}
		contentType := contentTypeOf(args[0], data)
		res, err := uploader.Upload(ctx, gateway.UploadRequest{
			OwnerID:     ident.ID,
			File:        bytes.NewReader(data),
			Size:        int64(len(data)),
			FileName:    filepath.Base(args[0]),
			ContentType: contentType,
			Title:       title,
			Description: uploadDescription,
			IsPublic:    uploadPublic,
			Duration:    audioSeconds(data, contentType),
		})
		if err != nil {
			return err
		}
		return printRecording(cmd.OutOrStdout(), res.Recording)
	},
}

func contentTypeOf(name string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

// audioSeconds is the rounded length of a WAV or MP3 file, 0 for anything else.
func audioSeconds(data []byte, contentType string) int {
	pcm, err := audio.Decode(data, contentType)
	if err != nil {
		return 0
	}
	return int(math.Round(pcm.Duration().Seconds()))
}

var (
	updateTitle       string
	updateDescription string
	updateTranscript  string
	updateTags        []string
	updatePublic      bool
	updateStatus      string
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of a recording",
	Long: `Change the title, description, transcript, tags, visibility or
processing status of one of your recordings. Only the given flags are written.

Examples:
  voicectl update <id> --title "Renamed" --tags work,weekly
  voicectl update <id> --public=false`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		upd, err := recordingUpdate(cmd)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.persistence.Update(cmd.Context(), args[0], upd)
		if err != nil {
			return err
		}
		return printRecording(cmd.OutOrStdout(), rec)
	},
}

func recordingUpdate(cmd *cobra.Command) (domain.RecordingUpdate, error) {
	var upd domain.RecordingUpdate
	flags := cmd.Flags()
	if flags.Changed("title") {
		upd.Title = &updateTitle
	}
	if flags.Changed("description") {
		upd.Description = &updateDescription
	}
	if flags.Changed("transcript") {
		upd.Transcript = &updateTranscript
	}
	if flags.Changed("tags") {
		upd.Tags = make([]string, 0, len(updateTags))
		for _, t := range updateTags {
			if t = strings.TrimSpace(t); t != "" {
				upd.Tags = append(upd.Tags, t)
			}
		}
	}
	if flags.Changed("public") {
		upd.IsPublic = &updatePublic
	}
	if flags.Changed("status") {
		status := domain.ProcessingStatus(strings.ToLower(updateStatus))
		if !status.Valid() {
			return upd, fmt.Errorf("unknown status %q", updateStatus)
		}
		upd.ProcessingStatus = &status
	}
	if len(upd.Fields()) == 0 {
		return upd, fmt.Errorf("nothing to update; pass at least one field flag")
	}
	return upd, nil
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete recordings and their stored audio",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		lib, err := a.library(nil)
		if err != nil {
			return err
		}
		defer lib.Close()

		var failed int
		for _, id := range args {
			if err := lib.Delete(ctx, id); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d deletes failed", failed, len(args))
		}
		return nil
	},
}

var downloadDir string

var downloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Save the audio of a recording to a local file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		lib, err := a.library(nil)
		if err != nil {
			return err
		}
		defer lib.Close()

		rec, err := a.persistence.Get(ctx, args[0])
		if err != nil {
			return err
		}
		lib.Prepend(rec)
		path, err := lib.Download(ctx, rec.ID, downloadDir)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "only recordings in this processing status")
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "match title or transcript")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "page size (default from config)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "skip this many recordings")

	uploadCmd.Flags().StringVarP(&uploadTitle, "title", "t", "", "recording title (default: file name)")
	uploadCmd.Flags().StringVar(&uploadDescription, "description", "", "recording description")
	uploadCmd.Flags().BoolVar(&uploadPublic, "public", false, "make the recording public")

	updateCmd.Flags().StringVar(&updateTitle, "title", "", "new title")
	updateCmd.Flags().StringVar(&updateDescription, "description", "", "new description")
	updateCmd.Flags().StringVar(&updateTranscript, "transcript", "", "new transcript")
	updateCmd.Flags().StringSliceVar(&updateTags, "tags", nil, "comma separated tags, replacing the current ones")
	updateCmd.Flags().BoolVar(&updatePublic, "public", false, "visibility")
	updateCmd.Flags().StringVar(&updateStatus, "status", "", "processing status")

	downloadCmd.Flags().StringVarP(&downloadDir, "dir", "d", ".", "directory to write the file to")

	rootCmd.AddCommand(listCmd, showCmd, uploadCmd, updateCmd, deleteCmd, downloadCmd)
}
