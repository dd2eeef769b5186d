// Package format renders audit reports for the terminal.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/obsidianstack/threadwork/pkg/export"
	"github.com/obsidianstack/threadwork/pkg/types"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatProm  = "prom"
)

// Options controls rendering.
type Options struct {
	Format string
	Color  bool
	// Width caps table rows; 0 leaves them unbounded.
	Width int
}

// WriteReport writes r to w in the requested format.
func WriteReport(w io.Writer, r *types.Report, opts Options) error {
	switch strings.ToLower(opts.Format) {
	case "", FormatTable:
		return writeTable(w, r, opts)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatProm:
		return export.Write(w, []*types.Report{r})
	default:
		return fmt.Errorf("unsupported format: %s", opts.Format)
	}
}

func writeTable(w io.Writer, r *types.Report, opts Options) error {
	if _, err := fmt.Fprintf(w, "%s  (%s, %s)\n", r.PageURL(), r.GatherMode, r.ThrottlingMethod); err != nil {
		return err
	}
	if r.RuntimeError != nil {
		msg := fmt.Sprintf("Runtime error %s: %s", r.RuntimeError.Code, r.RuntimeError.Message)
		if opts.Color {
			msg = text.Colors{text.FgRed, text.Bold}.Sprint(msg)
		}
		if _, err := fmt.Fprintln(w, msg); err != nil {
			return err
		}
	}

	tw := newWriter(w, opts)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 48},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 60},
	})
	tw.AppendHeader(table.Row{"Audit", "Title", "Score", "Value"})

	ids := make([]string, 0, len(r.Audits))
	for id := range r.Audits {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a := r.Audits[id]
		value := a.DisplayValue
		if a.ScoreDisplayMode == types.DisplayError {
			value = a.ErrorMessage
		}
		tw.AppendRow(table.Row{id, a.Title, scoreCell(a, opts.Color), value})
	}
	if len(ids) == 0 {
		tw.AppendRow(table.Row{"-", "(no audits)", "-", "-"})
	}
	tw.Render()

	wb := r.Audit(types.AuditWorkBreakdown)
	if wb == nil || wb.Details == nil || len(wb.Details.Items) == 0 {
		return nil
	}
	bw := newWriter(w, opts)
	bw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignCenter},
	})
	bw.Style().Format.Footer = text.FormatDefault
	bw.AppendHeader(table.Row{"Category", "Time Spent"})
	for _, it := range wb.Details.Items {
		label, _ := it["categoryLabel"].(string)
		ms, _ := it["duration"].(float64)
		bw.AppendRow(table.Row{label, formatMs(ms)})
	}
	bw.AppendFooter(table.Row{"Total", formatMs(wb.NumericValue)})
	bw.Render()
	return nil
}

func newWriter(w io.Writer, opts Options) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateHeader = true
	tw.Style().Options.DrawBorder = true
	if opts.Width > 0 {
		tw.SetAllowedRowLength(opts.Width)
	}
	return tw
}

func scoreCell(a *types.AuditResult, color bool) string {
	switch a.ScoreDisplayMode {
	case types.DisplayError:
		return paint("error", text.FgRed, color)
	case types.DisplayNotApplicable:
		return "n/a"
	}
	if a.Score == nil {
		return "-"
	}
	s := strconv.FormatFloat(*a.Score, 'f', 2, 64)
	switch {
	case *a.Score >= 0.9:
		return paint(s, text.FgGreen, color)
	case *a.Score >= 0.5:
		return paint(s, text.FgYellow, color)
	default:
		return paint(s, text.FgRed, color)
	}
}

func paint(s string, c text.Color, enabled bool) string {
	if !enabled {
		return s
	}
	return c.Sprint(s)
}

func formatMs(ms float64) string {
	return strconv.FormatFloat(ms, 'f', 1, 64) + " ms"
}

// ColorEnabled reports whether out is a terminal that should get colour.
// NO_COLOR disables it.
func ColorEnabled(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Width returns the terminal width of out, else $COLUMNS, else 0.
func Width(out io.Writer) int {
	if file, ok := out.(*os.File); ok {
		if w, _, err := term.GetSize(int(file.Fd())); err == nil && w > 0 {
			return w
		}
	}
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if v, err := strconv.Atoi(cols); err == nil && v > 0 {
			return v
		}
	}
	return 0
}
