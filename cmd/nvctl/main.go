// main.go - command line tool for running and exporting analyses
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/term"

	"nerdvision/internal"
	"nerdvision/internal/analytics"
	"nerdvision/internal/database"
	"nerdvision/internal/datasource"
	"nerdvision/internal/export"
	"nerdvision/internal/jobs"
	"nerdvision/internal/seeder"
	"nerdvision/internal/timeframe"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&RunCommand{},
	&ExportCommand{},
	&SeedCommand{},
	&MigrateCommand{},
	&CleanupCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	// Commands decide for themselves whether they can run without an app
	app, err := internal.NewApp()
	if err != nil {
		log.Printf("Warning: Failed to initialize app: %v", err)
		log.Println("Proceeding with limited functionality...")
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// analysisFlags are the period and threshold overrides shared by run and export
type analysisFlags struct {
	currentStart, currentEnd   *string
	previousStart, previousEnd *string
	threshold                  *float64
	topN                       *int
	bounceHigh, bounceLow      *float64
	reports                    *string
}

func registerAnalysisFlags(fs *flag.FlagSet, app *internal.Application) *analysisFlags {
	periods := app.Config.Periods()
	restrictions := internal.RestrictionsFromConfig(app.Config)
	return &analysisFlags{
		currentStart:  fs.String("current-start", periods.Current.Start, "first day of the current period"),
		currentEnd:    fs.String("current-end", periods.Current.End, "last day of the current period"),
		previousStart: fs.String("previous-start", periods.Previous.Start, "first day of the previous period"),
		previousEnd:   fs.String("previous-end", periods.Previous.End, "last day of the previous period"),
		threshold:     fs.Float64("threshold", restrictions.ThresholdPct, "minimum page view change in percent"),
		topN:          fs.Int("top", restrictions.TopN, "number of pages per selection"),
		bounceHigh:    fs.Float64("bounce-high", restrictions.BounceHigh, "bounce rate at or above which a page is high"),
		bounceLow:     fs.Float64("bounce-low", restrictions.BounceLow, "bounce rate at or below which a page is low"),
		reports:       fs.String("reports", "", "comma separated reports to build (default all)"),
	}
}

func (f *analysisFlags) periods() timeframe.Periods {
	return timeframe.Periods{
		Current:  timeframe.Period{Start: *f.currentStart, End: *f.currentEnd},
		Previous: timeframe.Period{Start: *f.previousStart, End: *f.previousEnd},
	}
}

func (f *analysisFlags) restrictions() analytics.Restrictions {
	return analytics.Restrictions{
		ThresholdPct: *f.threshold,
		TopN:         *f.topN,
		BounceHigh:   *f.bounceHigh,
		BounceLow:    *f.bounceLow,
	}
}

func (f *analysisFlags) reportNames() []string {
	if strings.TrimSpace(*f.reports) == "" {
		return nil
	}
	var names []string
	for _, name := range strings.Split(*f.reports, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (f *analysisFlags) analyze(ctx context.Context, app *internal.Application) (*analytics.AnalysisReport, error) {
	return app.Analyze(ctx, f.periods(), f.restrictions(), f.reportNames())
}

// RunCommand runs an analysis and prints it
type RunCommand struct{}

func (c *RunCommand) Name() string        { return "run" }
func (c *RunCommand) Description() string { return "Runs the analysis and prints the report tables" }

func (c *RunCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run analysis")
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	flags := registerAnalysisFlags(fs, app)
	format := fs.String("format", "auto", "output format: auto, table or json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	report, err := flags.analyze(ctx, app)
	if err != nil {
		return err
	}

	switch resolveFormat(*format, os.Stdout) {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	case "table":
		if err := printSheets(os.Stdout, export.Sheets(report)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format: %s", *format)
	}

	return failuresError(report)
}

// resolveFormat prints tables to a terminal and JSON to pipes and files
func resolveFormat(format string, out *os.File) string {
	if format != "auto" {
		return format
	}
	if term.IsTerminal(int(out.Fd())) {
		return "table"
	}
	return "json"
}

func printSheets(w io.Writer, sheets []export.Sheet) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range sheets {
		fmt.Fprintf(tw, "== %s (%d rows)\n", s.Name, len(s.Rows))
		fmt.Fprintln(tw, strings.Join(s.Headers(), "\t"))
		for i := range s.Rows {
			fmt.Fprintln(tw, strings.Join(s.Record(i), "\t"))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func failuresError(report *analytics.AnalysisReport) error {
	if !report.Failed() {
		return nil
	}
	failed := report.FailedReports()
	for _, name := range failed {
		log.Printf("Report %s failed: %v", name, report.Err(name))
	}
	return fmt.Errorf("%d report(s) failed: %s", len(failed), strings.Join(failed, ", "))
}

// ExportCommand runs an analysis and writes its tables to disk
type ExportCommand struct{}

func (c *ExportCommand) Name() string { return "export" }
func (c *ExportCommand) Description() string {
	return "Runs the analysis and writes CSV files, a workbook and a PDF summary"
}

func (c *ExportCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run analysis")
	}

	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	flags := registerAnalysisFlags(fs, app)
	dir := fs.String("dir", app.Config.ExportDirectory, "directory to write the files into")
	if err := fs.Parse(args); err != nil {
		return err
	}

	report, err := flags.analyze(ctx, app)
	if err != nil {
		return err
	}

	files, err := export.NewService(app.Logger).ExportAll(*dir, report)
	if err != nil {
		return err
	}

	for _, path := range files.CSV {
		fmt.Println(path)
	}
	fmt.Println(files.Workbook)
	fmt.Println(files.Summary)

	return failuresError(report)
}

// SeedCommand populates the warehouse with synthetic traffic
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the warehouse with sample traffic" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	days := fs.Int("days", 70, "number of days to generate, ending yesterday")
	seed := fs.Uint64("seed", 0, "random seed (0 picks one)")
	hostname := fs.String("hostname", "www.example.com", "hostname recorded on every row")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	warehouse := datasource.NewWarehouse(app.DBManager, timeframe.NewResolver(app.Config.Location()), app.Logger)
	se := seeder.NewSeeder(warehouse, app.Logger, *days, *seed)
	se.Hostname = *hostname
	se.Location = app.Config.Location()

	if err := se.Run(ctx); err != nil {
		return err
	}
	return app.DBManager.Optimize(ctx)
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run migrations")
	}

	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// CleanupCommand applies the retention period immediately
type CleanupCommand struct{}

func (c *CleanupCommand) Name() string { return "cleanup" }
func (c *CleanupCommand) Description() string {
	return "Deletes warehouse rows older than the retention period"
}

func (c *CleanupCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run cleanup")
	}
	job := jobs.NewCleanupJob(app.DBManager, app.Config.RetentionDays, app.Config.Location(), app.Logger)
	if err := job.Run(); err != nil {
		return err
	}
	return app.DBManager.Optimize(ctx)
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

// Name returns the command name
func (c *StatusCommand) Name() string {
	return "status"
}

// Description returns the command description
func (c *StatusCommand) Description() string {
	return "Shows the current system status"
}

// Execute implements the status command
func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("cannot check status: app initialization failed")
	}

	db := app.DBManager.GetConnection()

	span, err := database.ReadSpan(ctx, db)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Data source: %s", app.Config.DataSource)
	log.Printf("- Warehouse rows: %d", span.Rows)
	if !span.Empty() {
		log.Printf("- Warehouse days: %s to %s", span.FirstDay, span.LastDay)
	}
	log.Printf("- Rules: %s", app.Rules)
	log.Printf("- Current period: %s", app.Config.Periods().Current)
	log.Printf("- Previous period: %s", app.Config.Periods().Previous)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	log.Printf("- Idle: %d", sqlDB.Stats().Idle)

	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

// Name returns the command name
func (c *HelpCommand) Name() string {
	return "help"
}

// Description returns the command description
func (c *HelpCommand) Description() string {
	return "Shows usage information"
}

// Execute implements the help command
func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

// Helper functions

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := os.Args[1:]
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: nvctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
