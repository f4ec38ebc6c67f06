package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-yaml"

	"voice-dashboard/pkg/audio"
	"voice-dashboard/pkg/domain"
)

// printValue writes v as yaml or json. Table output falls back to yaml for
// values without a table layout.
func printValue(w io.Writer, v any) error {
	switch formatOutput {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "table", "":
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown output format %q", formatOutput)
	}
}

func printRecordings(w io.Writer, recs []domain.Recording) error {
	if formatOutput != "table" {
		return printValue(w, recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "No recordings.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tLENGTH\tSTATUS\tTITLE")
	for _, r := range recs {
		created := ""
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, created, audio.FormatTime(float64(r.Duration)), r.ProcessingStatus, oneLine(r.Title, 60))
	}
	return tw.Flush()
}

func printRecording(w io.Writer, r domain.Recording) error {
	if formatOutput != "table" {
		return printValue(w, r)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", r.ID)
	fmt.Fprintf(tw, "Title:\t%s\n", r.Title)
	if r.Description != "" {
		fmt.Fprintf(tw, "Description:\t%s\n", oneLine(r.Description, 200))
	}
	fmt.Fprintf(tw, "Length:\t%s\n", audio.FormatTime(float64(r.Duration)))
	fmt.Fprintf(tw, "Size:\t%s\n", formatBytes(r.FileSize))
	fmt.Fprintf(tw, "Status:\t%s\n", r.ProcessingStatus)
	fmt.Fprintf(tw, "Public:\t%t\n", r.IsPublic)
	if len(r.Tags) > 0 {
		fmt.Fprintf(tw, "Tags:\t%s\n", strings.Join(r.Tags, ", "))
	}
	fmt.Fprintf(tw, "URL:\t%s\n", r.FileURL)
	if r.Metadata.SourceURL != "" {
		fmt.Fprintf(tw, "Source:\t%s\n", r.Metadata.SourceURL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if r.Transcript != "" {
		fmt.Fprintf(w, "\n%s\n", r.Transcript)
	}
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// oneLine collapses whitespace and cuts s to max runes.
func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
