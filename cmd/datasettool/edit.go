package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/greg-hellings/datasettool/pkg/backend"
	"github.com/greg-hellings/datasettool/pkg/dataset"
	consolefmt "github.com/greg-hellings/datasettool/pkg/report/format"
	"github.com/greg-hellings/datasettool/pkg/session"
	"github.com/greg-hellings/datasettool/pkg/state"
)

const editHelp = `Commands:
  ls                          list components
  lights                      list light sources of the selected component
  select <component>          select a component
  light <name>                select a light source
  show                        show the selected instance (or the export)
  totals                      show panel totals and the convert gate
  move <from> <i> <to> [j]    move image i of bucket <from> to position j of <to>
                              buckets: train_PASS train_NG val_PASS val_NG
                                       train_GOLDEN train_DELETE
  ratio [pass ng]             show the ratio preset, or split Train/Val by percentage
  save                        save the selected instance
  discard                     drop unsaved changes
  refresh                     reload the export
  convert                     start dataset conversion
  quit                        leave`

func newEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Interactively classify the images of the export",
		Long: strings.TrimSpace(`
Open an interactive session on the export. Images are moved between
buckets and Train/Val ratios adjusted locally; nothing reaches the service
until "save". Leaving a light source, a component or the session itself
with unsaved changes asks for confirmation first, including on Ctrl-C and
SIGTERM. A hangup closes the session without saving.`),
		Args: cobra.NoArgs,
		RunE: runEdit,
	}
}

func runEdit(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.engine.Load(ctx, a.exportID); err != nil {
		return fmt.Errorf("failed to load export: %w", err)
	}

	st := loadState(a.cfg)
	restoreSelection(a.engine, st, a.exportID)
	st.AppendRecentExport(a.exportID)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	r := newREPL(a.engine, cmd.InOrStdin(), cmd.OutOrStdout(), a.projectID)
	defer r.close()
	err = r.run(ctx, signals)

	sel := a.engine.Selection()
	st.RememberSelection(sel.Component, sel.Light)
	persistState(a.cfg, st)
	return err
}

// restoreSelection reopens the component and light last viewed on the same
// export. Names that no longer exist are skipped.
func restoreSelection(eng *session.Engine, st *state.SessionState, exportID string) {
	if st.LastExport != exportID || st.LastSelection.Component == "" {
		return
	}
	if err := eng.SelectComponent(st.LastSelection.Component); err != nil {
		slog.Debug("Previous component unavailable", "component", st.LastSelection.Component, "error", err)
		return
	}
	if st.LastSelection.Light == "" {
		return
	}
	if err := eng.SelectLight(st.LastSelection.Light); err != nil {
		slog.Debug("Previous light unavailable", "light", st.LastSelection.Light, "error", err)
	}
}

// repl is the line-oriented edit loop. All input, including answers to
// confirmation prompts, flows through the lines channel.
type repl struct {
	eng       *session.Engine
	out       io.Writer
	lines     <-chan string
	done      chan struct{}
	prompt    Prompter
	formatter *consolefmt.ConsoleFormatter
	projectID string
}

func newREPL(eng *session.Engine, in io.Reader, out io.Writer, projectID string) *repl {
	lines := make(chan string)
	done := make(chan struct{})
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
	}()

	f := consolefmt.NewConsoleFormatter()
	f.EnableColors = !flagNoColor
	return &repl{
		eng:       eng,
		out:       out,
		lines:     lines,
		done:      done,
		prompt:    newPrompter(&lineReader{lines: lines}, out, true),
		formatter: f,
		projectID: projectID,
	}
}

func (r *repl) close() {
	close(r.done)
}

func (r *repl) run(ctx context.Context, signals <-chan os.Signal) error {
	fmt.Fprintf(r.out, "Export %s: %d components. Type \"help\" for commands.\n",
		r.eng.ExportID(), len(r.eng.Components()))

	for {
		fmt.Fprint(r.out, r.promptText())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-signals:
			fmt.Fprintln(r.out)
			slog.Debug("Received signal", "signal", sig)
			if sig == syscall.SIGHUP {
				// the terminal is gone, nobody can answer a prompt
				if r.eng.Dirty() {
					sel := r.eng.Selection()
					slog.Warn("Terminal closed; unsaved changes dropped",
						"component", sel.Component,
						"light", sel.Light)
					fmt.Fprintln(r.out, "Terminal closed; unsaved changes were not saved.")
				}
				return nil
			}
			if r.leave() {
				return nil
			}
		case line, ok := <-r.lines:
			if !ok {
				if r.eng.Dirty() {
					fmt.Fprintln(r.out, "\nInput closed; unsaved changes were not saved.")
				}
				return nil
			}
			quit, err := r.exec(ctx, line)
			if err != nil {
				fmt.Fprintf(r.out, "error: %s\n", backend.Diagnostic(err))
			}
			if quit {
				return nil
			}
		}
	}
}

func (r *repl) promptText() string {
	sel := r.eng.Selection()
	where := "-"
	switch {
	case sel.Light != "":
		where = sel.Component + "/" + sel.Light
	case sel.Component != "":
		where = sel.Component
	}
	if r.eng.Dirty() {
		where += "*"
	}
	return "[" + where + "]> "
}

// leave reports whether the session may close, asking first when there are
// unsaved changes.
func (r *repl) leave() bool {
	if !r.eng.BeforeClose() {
		return true
	}
	ok, err := r.prompt.Confirm(session.LeaveDialog())
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return false
	}
	return ok
}

func (r *repl) exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprintln(r.out, editHelp)
	case "ls", "components":
		r.listComponents()
	case "lights":
		return false, r.listLights()
	case "select", "cd":
		if len(args) != 1 {
			return false, errors.New("usage: select <component>")
		}
		return false, r.navigate(func() error { return r.eng.SelectComponent(args[0]) })
	case "light":
		if len(args) != 1 {
			return false, errors.New("usage: light <name>")
		}
		return false, r.navigate(func() error { return r.eng.SelectLight(args[0]) })
	case "show":
		return false, renderConsoleWith(r.formatter, r.eng, r.out)
	case "totals":
		return false, r.formatter.RenderTotals(r.eng.Snapshot().Info, r.out)
	case "move", "mv":
		return false, r.move(args)
	case "ratio":
		return false, r.ratio(args)
	case "save":
		return false, r.save(ctx)
	case "discard":
		if err := r.eng.Discard(); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "Changes discarded.")
	case "refresh":
		if err := r.eng.Refresh(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "Export reloaded.")
	case "convert":
		if r.projectID == "" {
			return false, errors.New("project UUID is required for conversion")
		}
		if err := r.eng.Convert(ctx, r.projectID); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "Conversion started.")
	case "quit", "exit", "q":
		return r.leave(), nil
	default:
		return false, fmt.Errorf("unknown command %q (try \"help\")", cmd)
	}
	return false, nil
}

func (r *repl) listComponents() {
	snap := r.eng.Snapshot()
	sel := r.eng.Selection()
	for _, name := range snap.Components() {
		comp, err := snap.Component(name)
		if err != nil {
			continue
		}
		marker := " "
		if name == sel.Component {
			marker = "*"
		}
		ready := "✗"
		if comp.Ready() {
			ready = "✓"
		}
		fmt.Fprintf(r.out, "%s %s %s (%d lights)\n", marker, ready, name, comp.Len())
	}
}

func (r *repl) listLights() error {
	sel := r.eng.Selection()
	if sel.Component == "" {
		return session.ErrNoComponent
	}
	comp, err := r.eng.Snapshot().Component(sel.Component)
	if err != nil {
		return err
	}
	for _, name := range comp.Lights() {
		in, _ := comp.Light(name)
		marker := " "
		if name == sel.Light {
			marker = "*"
		}
		ready := "✗"
		if in.Ready {
			ready = "✓"
		}
		fmt.Fprintf(r.out, "%s %s %s (%d images)\n", marker, ready, name, in.Total())
	}
	return nil
}

// navigate runs a selection change, resolving a deferred navigation with
// the leave dialog.
func (r *repl) navigate(fn func() error) error {
	err := fn()
	if !errors.Is(err, session.ErrNavigationDeferred) {
		return err
	}
	ok, err := r.prompt.Confirm(session.LeaveDialog())
	if err != nil {
		r.eng.CancelLeave()
		return err
	}
	if !ok {
		r.eng.CancelLeave()
		fmt.Fprintln(r.out, "Staying; unsaved changes kept.")
		return nil
	}
	return r.eng.ConfirmLeave()
}

func (r *repl) move(args []string) error {
	if len(args) != 3 && len(args) != 4 {
		return errors.New("usage: move <from> <index> <to> [index]")
	}
	in, ok := r.eng.Current()
	if !ok {
		return session.ErrNoInstance
	}
	srcIndex, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid source index %q", args[1])
	}
	dest := dataset.Location{DroppableID: args[2]}
	if len(args) == 4 {
		if dest.Index, err = strconv.Atoi(args[3]); err != nil {
			return fmt.Errorf("invalid destination index %q", args[3])
		}
	} else {
		addr, err := dataset.ParseAddress(args[2])
		if err != nil {
			return err
		}
		b, err := addr.Bucket()
		if err != nil {
			return err
		}
		dest.Index = in.Len(b)
	}

	return r.eng.Drop(dataset.DragEvent{
		Source:      dataset.Location{DroppableID: args[0], Index: srcIndex},
		Destination: &dest,
	})
}

func (r *repl) ratio(args []string) error {
	in, ok := r.eng.Current()
	if !ok {
		return session.ErrNoInstance
	}
	if len(args) == 0 {
		p := in.RatioPreset()
		fmt.Fprintf(r.out, "Pass: train %d%% / val %d%%\nNG:   train %d%% / val %d%%\n",
			p.TrainPass, p.ValPass, p.TrainNG, p.ValNG)
		return nil
	}
	if len(args) != 2 {
		return errors.New("usage: ratio [trainPass trainNG]")
	}
	pass, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid pass percentage %q", args[0])
	}
	ng, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid ng percentage %q", args[1])
	}
	return r.eng.AdjustRatio(pass, ng)
}

func (r *repl) save(ctx context.Context) error {
	if _, ok := r.eng.Current(); !ok {
		return session.ErrNoInstance
	}
	if !r.eng.Dirty() {
		fmt.Fprintln(r.out, "Nothing to save.")
		return nil
	}
	ok, err := r.prompt.Confirm(session.SaveDialog())
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return saveWithProgress(ctx, r.eng, r.out)
}

// lineReader feeds huh's accessible prompts from the repl's line channel.
type lineReader struct {
	lines <-chan string
	buf   []byte
}

func (l *lineReader) Read(p []byte) (int, error) {
	if len(l.buf) == 0 {
		line, ok := <-l.lines
		if !ok {
			return 0, io.EOF
		}
		l.buf = []byte(line + "\n")
	}
	n := copy(p, l.buf)
	l.buf = l.buf[n:]
	return n, nil
}
