package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/richinex/verity/analysis"
	"github.com/richinex/verity/storage"
)

const maxPreviewLen = 48

// HistoryList prints the newest records as a table, or as JSON.
func HistoryList(ctx context.Context, out io.Writer, limit int, asJSON bool, opts Options) error {
	return withHistory(opts, func(store storage.HistoryStorage) error {
		records, err := store.List(ctx, limit)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(out, records)
		}
		return renderHistory(out, records)
	})
}

// HistoryShow prints one record's full result. ref is an id or a unique id
// prefix.
func HistoryShow(ctx context.Context, out io.Writer, ref string, asJSON bool, opts Options) error {
	return withHistory(opts, func(store storage.HistoryStorage) error {
		id, err := storage.ResolveID(ctx, store, ref)
		if err != nil {
			return err
		}
		rec, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(out, rec)
		}
		_, _ = fmt.Fprintf(out, "%s  %s\n", headerStyle.Render(rec.ID), dimStyle.Render(rec.CreatedAt.Format(time.RFC3339)))
		if rec.Text != "" {
			_, _ = fmt.Fprintln(out, rec.Text)
		}
		if rec.SourceURL != "" {
			_, _ = fmt.Fprintln(out, dimStyle.Render(rec.SourceURL))
		}
		return NewRenderer(out, false).Result(rec.Result)
	})
}

// HistoryDelete removes one record. ref is an id or a unique id prefix.
func HistoryDelete(ctx context.Context, out io.Writer, ref string, opts Options) error {
	return withHistory(opts, func(store storage.HistoryStorage) error {
		id, err := storage.ResolveID(ctx, store, ref)
		if err != nil {
			return err
		}
		if err := store.Delete(ctx, id); err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s deleted %s\n", successIcon, id)
		return err
	})
}

// HistoryClear removes every record.
func HistoryClear(ctx context.Context, out io.Writer, opts Options) error {
	return withHistory(opts, func(store storage.HistoryStorage) error {
		n, err := store.Clear(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s removed %d records\n", successIcon, n)
		return err
	})
}

func withHistory(opts Options, fn func(storage.HistoryStorage) error) error {
	e, err := loadEnv(opts)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	store, err := openHistory(e.settings)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func renderHistory(out io.Writer, records []storage.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, dimStyle.Render("no analyses recorded"))
		return err
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.ID,
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			verdictCell(rec),
			truncateString(preview(rec), maxPreviewLen),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return dimStyle
			}
			return lipgloss.NewStyle()
		}).
		Headers("ID", "When", "Verdict", "Content").
		Rows(rows...)

	_, err := fmt.Fprintln(out, t)
	return err
}

func verdictCell(rec storage.Record) string {
	if !rec.Success {
		return errorIcon.String() + " failed"
	}
	if rec.Probability == nil {
		return "?"
	}
	return fmt.Sprintf("%s %.0f%%", analysis.VerdictType(rec.VerdictType), *rec.Probability*100)
}

func preview(rec storage.Record) string {
	text := strings.Join(strings.Fields(rec.Text), " ")
	if text == "" && rec.ImageCount > 0 {
		return fmt.Sprintf("[%d images]", rec.ImageCount)
	}
	return text
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
