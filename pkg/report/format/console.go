// Package format provides console rendering for classification snapshots.
// It adapts column widths to the terminal and supports color and truncation.
package format

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"

	"github.com/greg-hellings/datasettool/pkg/dataset"
)

// ConsoleFormatter renders snapshots and instances as terminal tables.
type ConsoleFormatter struct {
	// MaxNameColWidth constrains the component and light columns. If 0, a
	// dynamic width is chosen based on terminal width.
	MaxNameColWidth int

	// MaxImagesColWidth constrains the image list column of RenderInstance.
	// If 0, the remaining terminal width is used.
	MaxImagesColWidth int

	// EnableColors toggles ANSI color output for status cells.
	EnableColors bool
}

// NewConsoleFormatter creates a formatter with sensible defaults.
func NewConsoleFormatter() *ConsoleFormatter {
	return &ConsoleFormatter{EnableColors: true}
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = false
	tw.Style().Options.SeparateColumns = false
	tw.Style().Options.DrawBorder = true
	return tw
}

// RenderSnapshot writes one row per component/light with bucket counts,
// followed by the panel totals.
func (f *ConsoleFormatter) RenderSnapshot(snap *dataset.Snapshot, w io.Writer) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}

	tw := newTable(w)
	header := table.Row{"Component", "Light", "Ready"}
	for _, b := range dataset.AllBuckets() {
		header = append(header, b.String())
	}
	tw.AppendHeader(header)

	if width := f.nameWidth(snap, w); width > 0 {
		tw.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, WidthMax: width, Transformer: truncTransformer(width)},
			{Number: 2, WidthMax: width, Transformer: truncTransformer(width)},
		})
	}

	for _, name := range snap.Components() {
		comp, err := snap.Component(name)
		if err != nil {
			return err
		}
		if comp.Len() == 0 {
			tw.AppendRow(table.Row{name, f.color("—", text.FgHiBlack), f.readyCell(false)})
			continue
		}
		for _, light := range comp.Lights() {
			in, err := comp.Light(light)
			if err != nil {
				return err
			}
			row := table.Row{name, light, f.readyCell(in.Ready)}
			for _, b := range dataset.AllBuckets() {
				row = append(row, in.Len(b))
			}
			tw.AppendRow(row)
		}
	}
	tw.Render()

	if _, err := fmt.Fprintf(w, "\nExport: %s (%d components)\n", snap.ExportID, snap.Len()); err != nil {
		return fmt.Errorf("failed writing export line: %w", err)
	}
	return f.RenderTotals(snap.Info, w)
}

// RenderInstance writes the images of each bucket followed by any warnings.
func (f *ConsoleFormatter) RenderInstance(in dataset.Instance, w io.Writer) error {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Bucket", "Count", "Images"})

	if width := f.imagesWidth(w); width > 0 {
		tw.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, WidthMax: width, Transformer: truncTransformer(width)},
		})
	}

	for _, b := range dataset.AllBuckets() {
		tw.AppendRow(table.Row{b.String(), in.Len(b), strings.Join(in.IDs(b), ", ")})
	}
	tw.Render()

	ready := "no"
	if in.Ready {
		ready = "yes"
	}
	if _, err := fmt.Fprintf(w, "\nReady: %s\n", ready); err != nil {
		return fmt.Errorf("failed writing ready line: %w", err)
	}

	warnings := in.Warnings()
	if len(warnings) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "\nWarnings:\n"); err != nil {
		return fmt.Errorf("failed writing warnings header: %w", err)
	}
	for _, msg := range warnings {
		if _, err := fmt.Fprintf(w, "  %s\n", f.color(msg, text.FgYellow)); err != nil {
			return fmt.Errorf("failed writing warning: %w", err)
		}
	}
	return nil
}

// RenderTotals writes the Train/Val totals of the whole export and whether
// it can be converted. Zero counts are highlighted.
func (f *ConsoleFormatter) RenderTotals(info dataset.PanelInfo, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "\nPanel totals:\n"); err != nil {
		return fmt.Errorf("failed writing totals header: %w", err)
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"", "Pass", "NG"})
	for _, row := range totalsRows {
		tw.AppendRow(table.Row{row.label, f.countCell(info.Count(row.pass)), f.countCell(info.Count(row.ng))})
	}
	tw.Render()

	status := f.color("ready", text.FgGreen)
	if !info.Convertible() {
		status = f.color("blocked (every train/val bucket needs an image)", text.FgRed)
	}
	if _, err := fmt.Fprintf(w, "Convert: %s\n", status); err != nil {
		return fmt.Errorf("failed writing convert line: %w", err)
	}
	return nil
}

// totalsRows lays out the four tracked buckets as a Train/Val by Pass/NG grid.
var totalsRows = []struct {
	label    string
	pass, ng dataset.Bucket
}{
	{"Train", dataset.TrainPass, dataset.TrainNG},
	{"Val", dataset.ValPass, dataset.ValNG},
}

func (f *ConsoleFormatter) countCell(n int) string {
	s := strconv.Itoa(n)
	if n == 0 {
		return f.color(s, text.FgRed)
	}
	return s
}

func (f *ConsoleFormatter) readyCell(ready bool) string {
	if ready {
		return f.color("✓", text.FgGreen)
	}
	return f.color("✗", text.FgRed)
}

// nameWidth picks the width of the name columns to fit the terminal.
func (f *ConsoleFormatter) nameWidth(snap *dataset.Snapshot, w io.Writer) int {
	if f.MaxNameColWidth > 0 {
		return f.MaxNameColWidth
	}
	termWidth := detectTerminalWidth(w)
	if termWidth <= 0 {
		return 0
	}
	if termWidth < 60 {
		termWidth = 60
	}

	longest := 0
	for _, name := range snap.Components() {
		longest = max(longest, utf8.RuneCountInString(name))
		comp, err := snap.Component(name)
		if err != nil {
			continue
		}
		for _, light := range comp.Lights() {
			longest = max(longest, utf8.RuneCountInString(light))
		}
	}

	// ready + six count columns at roughly 10 each
	available := (termWidth - 3 - 7*10) / 2
	if available < 10 {
		available = 10
	}
	return minInt(longest, available)
}

func (f *ConsoleFormatter) imagesWidth(w io.Writer) int {
	if f.MaxImagesColWidth > 0 {
		return f.MaxImagesColWidth
	}
	termWidth := detectTerminalWidth(w)
	if termWidth <= 0 {
		return 0
	}
	return max(termWidth-30, 20)
}

// detectTerminalWidth attempts to get terminal width if writer is a file (stdout/stderr).
func detectTerminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			return width
		}
	}
	return -1
}

// truncTransformer returns a text.Transformer to ellipsize overly wide cells.
func truncTransformer(max int) text.Transformer {
	return func(val interface{}) string {
		s := fmt.Sprint(val)
		if runeLen := utf8.RuneCountInString(s); runeLen > max {
			if max <= 1 {
				return "…"
			}
			return truncateRunes(s, max)
		}
		return s
	}
}

// truncateRunes truncates a string to (max) runes with ellipsis.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	var b strings.Builder
	count := 0
	for _, r := range s {
		if count >= max-1 {
			break
		}
		b.WriteRune(r)
		count++
	}
	b.WriteRune('…')
	return b.String()
}

func (f *ConsoleFormatter) color(s string, c text.Color) string {
	if !f.EnableColors {
		return s
	}
	return text.Colors{c}.Sprint(s)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// RenderConsole renders the snapshot to the writer using the default console
// formatter.
func RenderConsole(snap *dataset.Snapshot, w io.Writer) error {
	return NewConsoleFormatter().RenderSnapshot(snap, w)
}
