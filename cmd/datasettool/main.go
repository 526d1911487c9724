package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/greg-hellings/datasettool/pkg/backend"
	"github.com/greg-hellings/datasettool/pkg/config"
	"github.com/greg-hellings/datasettool/pkg/dataset"
	consolefmt "github.com/greg-hellings/datasettool/pkg/report/format"
	"github.com/greg-hellings/datasettool/pkg/services"
	"github.com/greg-hellings/datasettool/pkg/session"
	"github.com/greg-hellings/datasettool/pkg/state"
)

// build-time override (e.g. -ldflags "-X main.version=1.2.3")
var version = "dev"

// Global (root-level) flag variables
var (
	flagVerbose bool
	flagDebug   bool
	flagConfig  string
	flagExport  string
	flagProject string
	flagTimeout time.Duration
	flagNoColor bool
)

// show command flags
type showFlags struct {
	outputFormat string
	nameColWidth int
	jsonIndent   bool
}

// ratio command flags
type ratioFlags struct {
	trainPass int
	trainNG   int
	yes       bool
	dryRun    bool
}

var (
	shFlags showFlags
	rtFlags ratioFlags
)

// newPrompter builds the confirmation prompter; tests replace it.
var newPrompter = func(in io.Reader, out io.Writer, accessible bool) Prompter {
	return &huhPrompter{in: in, out: out, accessible: accessible}
}

func main() {
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root Cobra command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datasettool",
		Short: "Dataset attribute classification tool",
		Long: strings.TrimSpace(`
datasettool - classify inspection images of an export into Train/Val
Pass/NG, Golden and Delete buckets and synchronize them with the
panel-dataset service.

The configuration file names the service endpoint and the project and
export to work on; --export and --project override it.`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose (info) logging")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging (overrides --verbose)")
	cmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "datasettool.yaml", "Configuration file (.yaml, .yml or .toml)")
	cmd.PersistentFlags().StringVar(&flagExport, "export", "", "Export UUID (overrides the configuration file)")
	cmd.PersistentFlags().StringVar(&flagProject, "project", "", "Project UUID (overrides the configuration file)")
	cmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable ANSI colors in console output")
	cmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 2*time.Minute, "Timeout for the whole command (0 = none; edit ignores it)")
	cmd.Version = version

	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newRatioCmd())
	cmd.AddCommand(newConvertCmd())
	cmd.AddCommand(newEditCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newStateCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// newVersionCmd prints version info.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "datasettool version: %s\n", version)
		},
	}
}

func newShowCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "show [component [light]]",
		Short: "Show the classification snapshot of the export",
		Long: strings.TrimSpace(`
Show the classification snapshot of the configured export. Without
arguments every component and light source is listed with its bucket
counts; with a component and light the images of that instance are shown.

Formats:
  console (default) - adaptive terminal table
  json              - machine-readable JSON

Examples:
  datasettool show
  datasettool show R1 white
  datasettool show --format json --json-indent`),
		Args: cobra.RangeArgs(0, 2),
		RunE: runShow,
	}
	c.Flags().StringVarP(&shFlags.outputFormat, "format", "f", "console", "Output format: console|json")
	c.Flags().IntVar(&shFlags.nameColWidth, "name-col-width", 0, "Max width of component/light columns (console format; 0=auto)")
	c.Flags().BoolVar(&shFlags.jsonIndent, "json-indent", false, "Pretty-print JSON output")
	return c
}

func newRatioCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "ratio <component> <light>",
		Short: "Redistribute Train/Val of one instance and save it",
		Long: strings.TrimSpace(`
Split the Pass and NG images of one instance between Train and Val by
percentage and save the result. Without --train-pass/--train-ng the
percentages last used are applied.

Examples:
  datasettool ratio R1 white --train-pass 80 --train-ng 70
  datasettool ratio R1 white --train-pass 50 --dry-run`),
		Args: cobra.ExactArgs(2),
		RunE: runRatio,
	}
	c.Flags().IntVar(&rtFlags.trainPass, "train-pass", -1, "Percentage of Pass images kept in Train (0-100)")
	c.Flags().IntVar(&rtFlags.trainNG, "train-ng", -1, "Percentage of NG images kept in Train (0-100)")
	c.Flags().BoolVarP(&rtFlags.yes, "yes", "y", false, "Save without asking for confirmation")
	c.Flags().BoolVar(&rtFlags.dryRun, "dry-run", false, "Show the result without saving")
	return c
}

func newConvertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert",
		Short: "Start dataset conversion for the export",
		Long: strings.TrimSpace(`
Trigger the zip conversion of the export. Conversion is only possible when
the whole export has at least one image in each of Train Pass, Train NG,
Val Pass and Val NG.`),
		Args: cobra.NoArgs,
		RunE: runConvert,
	}
}

func initLogging() {
	var level slog.Level
	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	default:
		level = slog.LevelWarn
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging initialized", "level", level.String())
}

// app bundles what every command needs.
type app struct {
	cfg       *config.Config
	engine    *session.Engine
	exportID  string
	projectID string
}

// newApp loads configuration and creates a session over the HTTP backend.
func newApp() (*app, error) {
	cfg, err := config.LoadFromFile(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := state.NewFileCredentialStore("")
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	token, err := state.ResolveBackendToken(cfg.Backend.Token, store, cfg.Backend.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}
	bc, err := cfg.BackendConfig(token)
	if err != nil {
		return nil, err
	}
	client, err := backend.NewHTTPClient(bc)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	a := &app{
		cfg:       cfg,
		engine:    session.New(client),
		exportID:  cfg.Project.ExportUUID,
		projectID: cfg.Project.ProjectUUID,
	}
	if flagExport != "" {
		a.exportID = flagExport
	}
	if flagProject != "" {
		a.projectID = flagProject
	}
	if a.exportID == "" {
		return nil, errors.New("export UUID is required (set project.exportUUID or --export)")
	}

	slog.Info("Configured backend",
		"baseURL", bc.BaseURL,
		"token", state.RedactToken(bc.Token),
		"export", a.exportID)
	return a, nil
}

func commandContext() (context.Context, context.CancelFunc) {
	if flagTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), flagTimeout)
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	if err := a.engine.Load(ctx, a.exportID); err != nil {
		return fmt.Errorf("failed to load export: %w", err)
	}
	if len(args) > 0 {
		if err := a.engine.SelectComponent(args[0]); err != nil {
			return err
		}
	}
	if len(args) > 1 {
		if err := a.engine.SelectLight(args[1]); err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	switch strings.ToLower(shFlags.outputFormat) {
	case "console":
		return renderConsole(a.engine, w)
	case "json":
		return renderJSON(a.engine, w)
	default:
		return fmt.Errorf("unsupported format: %s", shFlags.outputFormat)
	}
}

func newFormatter() *consolefmt.ConsoleFormatter {
	f := consolefmt.NewConsoleFormatter()
	f.EnableColors = !flagNoColor
	if shFlags.nameColWidth > 0 {
		f.MaxNameColWidth = shFlags.nameColWidth
	}
	return f
}

// renderConsole shows the selected instance, or the whole snapshot when no
// light is selected.
func renderConsole(eng *session.Engine, w io.Writer) error {
	return renderConsoleWith(newFormatter(), eng, w)
}

func renderConsoleWith(f *consolefmt.ConsoleFormatter, eng *session.Engine, w io.Writer) error {
	if in, ok := eng.Current(); ok {
		sel := eng.Selection()
		fmt.Fprintf(w, "%s / %s\n\n", sel.Component, sel.Light)
		return f.RenderInstance(in, w)
	}
	return f.RenderSnapshot(eng.Snapshot(), w)
}

// jsonOutput is the structured JSON shape emitted by show.
type jsonOutput struct {
	Version     string               `json:"cliVersion"`
	GeneratedAt time.Time            `json:"generatedAt"`
	ExportUUID  string               `json:"exportUUID"`
	Convertible bool                 `json:"convertible"`
	Info        dataset.PanelInfo    `json:"info"`
	Data        *dataset.Snapshot    `json:"data,omitempty"`
	Component   string               `json:"component,omitempty"`
	Light       string               `json:"light,omitempty"`
	Instance    *dataset.Instance    `json:"instance,omitempty"`
	Warnings    []string             `json:"warnings,omitempty"`
	Preset      *dataset.RatioPreset `json:"ratioPreset,omitempty"`
}

func renderJSON(eng *session.Engine, w io.Writer) error {
	snap := eng.Snapshot()
	payload := jsonOutput{
		Version:     version,
		GeneratedAt: time.Now().UTC(),
		ExportUUID:  snap.ExportID,
		Convertible: eng.CanConvert(),
		Info:        snap.Info,
	}
	if in, ok := eng.Current(); ok {
		sel := eng.Selection()
		preset := in.RatioPreset()
		payload.Component = sel.Component
		payload.Light = sel.Light
		payload.Instance = &in
		payload.Warnings = in.Warnings()
		payload.Preset = &preset
	} else {
		payload.Data = snap
	}

	var data []byte
	var err error
	if shFlags.jsonIndent {
		data, err = json.MarshalIndent(payload, "", "  ")
	} else {
		data, err = json.Marshal(payload)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n"))
	return nil
}

func runRatio(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	st := loadState(a.cfg)
	pass, ng := rtFlags.trainPass, rtFlags.trainNG
	if pass < 0 {
		pass = st.Ratio.TrainPass
	}
	if ng < 0 {
		ng = st.Ratio.TrainNG
	}

	if err := a.engine.Load(ctx, a.exportID); err != nil {
		return fmt.Errorf("failed to load export: %w", err)
	}
	if err := a.engine.SelectComponent(args[0]); err != nil {
		return err
	}
	if err := a.engine.SelectLight(args[1]); err != nil {
		return err
	}
	if err := a.engine.AdjustRatio(pass, ng); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Train share: pass %d%%, ng %d%%\n\n", pass, ng)
	if err := renderConsole(a.engine, w); err != nil {
		return err
	}
	if rtFlags.dryRun {
		fmt.Fprintln(w, "\nDry run: nothing saved.")
		return nil
	}

	if !rtFlags.yes {
		ok, err := newPrompter(cmd.InOrStdin(), w, !isTerminal()).Confirm(session.SaveDialog())
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(w, "Not saved.")
			return nil
		}
	}

	if err := saveWithProgress(ctx, a.engine, w); err != nil {
		return err
	}

	st.AppendRecentExport(a.exportID)
	st.RememberSelection(args[0], args[1])
	st.Ratio = state.RatioDefaults{TrainPass: pass, TrainNG: ng}
	persistState(a.cfg, st)
	return nil
}

// saveWithProgress saves through the async service, printing one line per
// finished bucket write.
func saveWithProgress(ctx context.Context, eng *session.Engine, w io.Writer) error {
	ch, handle, err := services.NewSyncService(eng).RunSave(ctx, services.SaveOptions{EmitAggregateEvents: true})
	if err != nil {
		return err
	}
	for p := range ch {
		switch {
		case p.Aggregate && p.Phase == services.PhaseRefresh:
			fmt.Fprintln(w, "Refreshing snapshot...")
		case p.Aggregate:
			continue
		case p.Phase == services.PhaseComplete:
			fmt.Fprintf(w, "  %-10s saved\n", p.Bucket)
		case p.Phase == services.PhaseError:
			fmt.Fprintf(w, "  %-10s failed: %s\n", p.Bucket, backend.Diagnostic(p.Error))
		}
	}
	if err := handle.Result(); err != nil {
		var saveErr *session.SaveError
		if errors.As(err, &saveErr) {
			return fmt.Errorf("save failed for %d bucket(s); edits kept, retry the save", len(saveErr.Failures))
		}
		return err
	}
	fmt.Fprintln(w, "Saved.")
	return nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	if err := a.engine.Load(ctx, a.exportID); err != nil {
		return fmt.Errorf("failed to load export: %w", err)
	}
	if a.projectID == "" {
		return errors.New("project UUID is required for conversion (set project.projectUUID or --project)")
	}
	if err := a.engine.Convert(ctx, a.projectID); err != nil {
		if errors.Is(err, session.ErrConvertNotReady) {
			f := newFormatter()
			_ = f.RenderTotals(a.engine.Snapshot().Info, cmd.OutOrStdout())
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Conversion started for export %s.\n", a.exportID)
	return nil
}

// loadState reads the session state, falling back to defaults on error.
func loadState(cfg *config.Config) *state.SessionState {
	st, err := state.LoadSessionState(cfg.Session.StatePath)
	if err != nil {
		slog.Warn("Ignoring session state", "error", err)
		return state.NewDefaultSessionState()
	}
	return st
}

func persistState(cfg *config.Config, st *state.SessionState) {
	if err := state.SaveSessionState(st, cfg.Session.StatePath); err != nil {
		slog.Warn("Failed to save session state", "error", err)
	}
}
