package commands

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"voice-dashboard/pkg/parser"
	"voice-dashboard/pkg/podcastimportservice"
)

var (
	importMax  int
	importFile string
)

var importCmd = &cobra.Command{
	Use:   "import [source-url]...",
	Short: "Import podcast episodes as recordings",
	Long: `Import the audio episodes of podcast feeds. A source is a feed URL or
a site page linking its feed. Episodes imported before are skipped; a
transcript published with an episode is attached to its recording.

Examples:
  voicectl import https://podcast.example.com/feed.xml --max 10
  voicectl import --file sources.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sources := args
		if importFile != "" {
			listed, err := parser.ReadSourceList(importFile)
			if err != nil {
				return err
			}
			sources = append(sources, listed...)
		}
		if len(sources) == 0 {
			return fmt.Errorf("no source given; pass a URL or --file")
		}

		ctx := cmd.Context()
		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		svc, err := a.importService()
		if err != nil {
			return err
		}

		var total podcastimportservice.Stats
		var failedSources int
		for _, src := range sources {
			start := time.Now()
			stats, err := svc.Import(ctx, src, importMax)
			if err != nil {
				log.Printf("Import %s failed: %v", src, err)
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", src, err)
				failedSources++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d found, %d imported (%d with transcript), %d skipped, %d failed in %s\n",
				src, stats.Found, stats.Imported, stats.WithTranscript, stats.Skipped, stats.Failed,
				time.Since(start).Round(time.Millisecond))
			total.Found += stats.Found
			total.Imported += stats.Imported
			total.WithTranscript += stats.WithTranscript
			total.Skipped += stats.Skipped
			total.Failed += stats.Failed
		}

		if len(sources) > 1 {
			fmt.Fprintf(cmd.OutOrStdout(), "Total: %d imported (%d with transcript), %d failed\n",
				total.Imported, total.WithTranscript, total.Failed)
		}
		if failedSources == len(sources) {
			return fmt.Errorf("all %d sources failed", len(sources))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().IntVar(&importMax, "max", 0, "import at most this many new episodes per source (<=0 means no limit)")
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "file with one source URL per line")

	rootCmd.AddCommand(importCmd)
}
