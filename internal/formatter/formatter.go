// package formatter renders sync runs as terminal reports, JSON, and CSV
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
)

// RenderRun writes a styled summary of run to w: one block per playlist followed by run totals.
func RenderRun(w io.Writer, run *models.SyncRun) error {
	var b strings.Builder

	title := "Sync run " + run.ID
	if run.DryRun {
		title += " (dry run)"
	}
	b.WriteString(styles.title.Render(title))
	b.WriteString("\n")

	for _, o := range run.Outcomes {
		renderOutcome(&b, o)
	}

	added, notFound, failed := run.Totals()
	totals := fmt.Sprintf("%d playlists, %d added, %d not found, %d failed in %s",
		len(run.Outcomes), added, notFound, failed, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	b.WriteString(styles.status(failed > 0, notFound).Render(totals))
	b.WriteString("\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func renderOutcome(b *strings.Builder, o *models.SyncOutcome) {
	mark := "✓"
	if o.Failed {
		mark = "✗"
	}

	dest := o.DestinationID
	switch {
	case dest == "" && o.DryRun:
		dest = "(would create)"
	case dest == "":
		dest = "(none)"
	case o.Created:
		dest += " (created)"
	}

	header := fmt.Sprintf("%s %s → %s", mark, o.Pair.Label(), dest)
	b.WriteString(styles.status(o.Failed, len(o.NotFound)).Render(header))
	b.WriteString("\n")

	verb := "added"
	if o.DryRun {
		verb = "to add"
	}
	fmt.Fprintf(b, "   source: %d  existing: %d  skipped: %d  %s: %d  not found: %d\n",
		o.SourceCount, o.ExistingCount, o.SkippedCount, verb, o.AddedCount, len(o.NotFound))

	if msg := o.ErrorMessage(); msg != "" {
		b.WriteString("   ")
		b.WriteString(styles.err.Render(msg))
		b.WriteString("\n")
	}

	for _, tr := range o.FailedTracks {
		b.WriteString("   ! " + tr.String() + " " + styles.err.Render("(add failed)") + "\n")
	}

	failedSearch := make(map[string]struct{}, len(o.SearchFailed))
	for _, tr := range o.SearchFailed {
		failedSearch[tr.String()] = struct{}{}
	}
	for _, tr := range o.NotFound {
		line := "   - " + tr.String()
		if _, ok := failedSearch[tr.String()]; ok {
			line += " " + styles.help.Render("(search failed)")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
}

// RunJSON encodes run with its outcomes.
func RunJSON(run *models.SyncRun, pretty bool) ([]byte, error) {
	return shared.MarshalJSON(run, pretty)
}

// NotFoundCSV lists every unresolved track of run with columns: Playlist, Destination, Title, Artists, Search Failed
func NotFoundCSV(run *models.SyncRun) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Playlist", "Destination", "Title", "Artists", "Search Failed"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, o := range run.Outcomes {
		failedSearch := make(map[string]struct{}, len(o.SearchFailed))
		for _, tr := range o.SearchFailed {
			failedSearch[tr.String()] = struct{}{}
		}

		for _, tr := range o.NotFound {
			_, searchFailed := failedSearch[tr.String()]
			record := []string{
				o.Pair.Label(),
				o.DestinationID,
				tr.Title,
				strings.Join(tr.Artists, "; "),
				strconv.FormatBool(searchFailed),
			}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteReport saves run to path: the full run as JSON for a .json path, otherwise the not-found CSV.
func WriteReport(run *models.SyncRun, path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty report path", shared.ErrInvalidArgument)
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = RunJSON(run, true)
	} else {
		data, err = NotFoundCSV(run)
	}
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

// RenderHistory writes the run history as a bordered table, newest first.
func RenderHistory(w io.Writer, runs []*repositories.RunSummary) error {
	if len(runs) == 0 {
		if _, err := io.WriteString(w, styles.help.Render("No sync runs recorded yet.")+"\n"); err != nil {
			return fmt.Errorf("failed to write history: %w", err)
		}
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.help).
		Headers("#", "Started", "Duration", "Playlists", "Added", "Not Found", "Failed", "Mode")

	for _, r := range runs {
		mode := "live"
		if r.DryRun {
			mode = "dry run"
		}
		t.Row(
			strconv.Itoa(r.Sequence),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Duration().Round(time.Millisecond).String(),
			strconv.Itoa(r.Playlists),
			strconv.Itoa(r.Added),
			strconv.Itoa(r.NotFound),
			strconv.Itoa(r.Failed),
			mode,
		)
	}

	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return styles.title.UnsetMarginBottom().Padding(0, 1)
		}
		return lipgloss.NewStyle().Padding(0, 1)
	})

	if _, err := io.WriteString(w, t.Render()+"\n"); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}
