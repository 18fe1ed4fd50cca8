package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goodtune/timerflow/internal/analysis"
	"github.com/goodtune/timerflow/internal/config"
	"github.com/goodtune/timerflow/internal/session"
	"github.com/goodtune/timerflow/internal/storage"
	"github.com/goodtune/timerflow/internal/storage/bolt"
	"github.com/goodtune/timerflow/internal/storage/fallback"
	"github.com/goodtune/timerflow/internal/storage/redis"
	"github.com/goodtune/timerflow/internal/timespan"
)

// defaultListLimit is the page size of sessions list.
const defaultListLimit = 20

var (
	listName    string
	listOutcome string
	listSince   string
	listUntil   string
	listLimit   int
	listOffset  int

	exportFormat string
	exportOutput string

	statsFrom string
	statsTo   string

	migrateFrom string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect recorded timer sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one session with its events and analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Correct the timer name of a session",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionsRename,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsExportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Export sessions as JSON, YAML or TOML",
	Example: `  timerflow sessions export --format yaml --since 2024-03-01 -o march.yaml`,
	Args:    cobra.NoArgs,
	RunE:    runSessionsExport,
}

var sessionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show daily totals and an overall summary",
	Args:  cobra.NoArgs,
	RunE:  runSessionsStats,
}

var sessionsMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move sessions kept in the local fallback store into redis",
	Long: `Copy every session from the local bolt fallback store into the configured
redis store, rebuilding daily summaries there, and remove them locally.`,
	Args: cobra.NoArgs,
	RunE: runSessionsMigrate,
}

func init() {
	for _, cmd := range []*cobra.Command{sessionsListCmd, sessionsExportCmd} {
		cmd.Flags().StringVar(&listName, "name", "", "Only sessions with this timer name")
		cmd.Flags().StringVar(&listOutcome, "outcome", "", "Only sessions with this outcome")
		cmd.Flags().StringVar(&listSince, "since", "", "Only sessions started on or after this date (YYYY-MM-DD or RFC 3339)")
		cmd.Flags().StringVar(&listUntil, "until", "", "Only sessions started before this date (YYYY-MM-DD or RFC 3339)")
		cmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of sessions (list shows 20 unless set)")
		cmd.Flags().IntVar(&listOffset, "offset", 0, "Number of sessions to skip")
	}

	sessionsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Output format (json, yaml, toml)")
	sessionsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")

	sessionsStatsCmd.Flags().StringVar(&statsFrom, "from", "", "First day (YYYY-MM-DD, default 6 days before --to)")
	sessionsStatsCmd.Flags().StringVar(&statsTo, "to", "", "Last day (YYYY-MM-DD, default today)")

	sessionsMigrateCmd.Flags().StringVar(&migrateFrom, "from", "", "Local bolt file to migrate (default storage.fallback_path)")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsRenameCmd, sessionsDeleteCmd, sessionsExportCmd, sessionsStatsCmd, sessionsMigrateCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// withSessions runs fn against the configured session store.
func withSessions(fn func(ctx context.Context, sessions storage.SessionStore) error) error {
	_, store, err := loadStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return fn(ctx, store.Sessions())
}

func listFilter() (storage.SessionFilter, error) {
	filter := storage.SessionFilter{
		TimerName: strings.TrimSpace(listName),
		Limit:     listLimit,
		Offset:    listOffset,
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return filter, fmt.Errorf("limit and offset must not be negative")
	}

	outcome, err := session.ParseOutcome(listOutcome)
	if err != nil {
		return filter, err
	}
	filter.Outcome = outcome

	if filter.Since, err = parseDateFlag("since", listSince); err != nil {
		return filter, err
	}
	if filter.Until, err = parseDateFlag("until", listUntil); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(storage.DateFormat, value, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q (expected YYYY-MM-DD or RFC 3339)", name, value)
	}
	return &t, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("limit") {
		listLimit = defaultListLimit
	}
	filter, err := listFilter()
	if err != nil {
		return err
	}

	return withSessions(func(ctx context.Context, sessions storage.SessionStore) error {
		logs, err := sessions.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		writeSessionTable(cmd.OutOrStdout(), logs)
		return nil
	})
}

func writeSessionTable(out io.Writer, logs []session.TimerLog) {
	if len(logs) == 0 {
		fmt.Fprintln(out, "No sessions found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tNAME\tPLANNED\tELAPSED\tPAUSES\tOVERAGE\tOUTCOME")
	for _, log := range logs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			log.ID,
			log.StartTime.Local().Format("2006-01-02 15:04"),
			log.TimerName,
			timespan.FromSeconds(log.InitialDuration),
			timespan.FromSeconds(log.ActualDuration),
			log.PauseCount,
			timespan.FromSeconds(log.OverageTime),
			outcomeText(log.Outcome),
		)
	}
	_ = w.Flush()
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	return withSessions(func(ctx context.Context, sessions storage.SessionStore) error {
		log, err := sessions.Get(ctx, args[0])
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("session %s not found", args[0])
			}
			return fmt.Errorf("failed to get session: %w", err)
		}

		out := cmd.OutOrStdout()
		analyzed := analysis.Analyze(*log)
		printSessionSummary(out, analyzed)
		if analyzed.OutcomeNote != "" {
			fmt.Fprintf(out, "  note:         %s\n", analyzed.OutcomeNote)
		}

		_, _ = color.New(color.Bold).Fprintln(out, "Events")
		for _, event := range analyzed.Events {
			fmt.Fprintf(out, "  %s  %-13s %s\n",
				event.Timestamp.Local().Format("15:04:05"),
				event.Type,
				event.TimeData,
			)
		}
		return nil
	})
}

func runSessionsRename(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[1])
	if name == "" {
		return fmt.Errorf("timer name must not be empty")
	}

	return withSessions(func(ctx context.Context, sessions storage.SessionStore) error {
		if err := sessions.Rename(ctx, args[0], name); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("session %s not found", args[0])
			}
			return fmt.Errorf("failed to rename session: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", args[0], name)
		return nil
	})
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	return withSessions(func(ctx context.Context, sessions storage.SessionStore) error {
		if err := sessions.Delete(ctx, args[0]); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("session %s not found", args[0])
			}
			return fmt.Errorf("failed to delete session: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	})
}

func runSessionsExport(cmd *cobra.Command, args []string) error {
	filter, err := listFilter()
	if err != nil {
		return err
	}

	return withSessions(func(ctx context.Context, sessions storage.SessionStore) error {
		logs, err := sessions.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		out := cmd.OutOrStdout()
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", exportOutput, err)
			}
			defer f.Close()
			out = f
		}

		return exportSessions(out, exportFormat, logs)
	})
}

// sessionExport is the document written by the export command.
type sessionExport struct {
	ExportedAt time.Time          `json:"exportedAt" yaml:"exportedAt" toml:"exportedAt"`
	Count      int                `json:"count" yaml:"count" toml:"count"`
	Sessions   []session.TimerLog `json:"sessions" yaml:"sessions" toml:"sessions"`
}

func exportSessions(out io.Writer, format string, logs []session.TimerLog) error {
	doc := sessionExport{
		ExportedAt: time.Now().UTC().Truncate(time.Second),
		Count:      len(logs),
		Sessions:   logs,
	}
	if doc.Sessions == nil {
		doc.Sessions = []session.TimerLog{}
	}

	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case "toml":
		return toml.NewEncoder(out).Encode(doc)
	default:
		return fmt.Errorf("unsupported export format: %s (must be json, yaml or toml)", format)
	}
}

func runSessionsStats(cmd *cobra.Command, args []string) error {
	to := statsTo
	if to == "" {
		to = time.Now().Format(storage.DateFormat)
	}
	end, err := storage.ParseDate(to)
	if err != nil {
		return err
	}
	from := statsFrom
	if from == "" {
		from = end.AddDate(0, 0, -6).Format(storage.DateFormat)
	}
	start, err := storage.ParseDate(from)
	if err != nil {
		return err
	}

	return withSessions(func(ctx context.Context, sessions storage.SessionStore) error {
		days, err := sessions.ListDaily(ctx, from, to)
		if err != nil {
			return fmt.Errorf("failed to list daily summaries: %w", err)
		}

		until := end.AddDate(0, 0, 1)
		logs, err := sessions.List(ctx, storage.SessionFilter{Since: &start, Until: &until})
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		writeStats(cmd.OutOrStdout(), days, analysis.Summarize(logs))
		return nil
	})
}

func writeStats(out io.Writer, days []storage.DailySummary, summary analysis.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tSESSIONS\tCOMPLETED\tACTIVE\tPAUSED\tOVERAGE")
	for _, day := range days {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n",
			day.Date,
			day.Sessions,
			day.Completed,
			timespan.FromSeconds(day.ActiveSeconds),
			timespan.FromSeconds(day.PauseSeconds),
			timespan.FromSeconds(day.OverageSeconds),
		)
	}
	_ = w.Flush()

	fmt.Fprintln(out)
	_, _ = color.New(color.Bold).Fprintln(out, "Summary")
	fmt.Fprintf(out, "  sessions:     %d (%d completed, %d canceled)\n", summary.Sessions, summary.Completed, summary.Canceled)
	fmt.Fprintf(out, "  planned:      %s\n", timespan.FromSeconds(summary.PlannedSeconds))
	fmt.Fprintf(out, "  active:       %s\n", timespan.FromSeconds(summary.ActiveSeconds))
	fmt.Fprintf(out, "  paused:       %s\n", timespan.FromSeconds(summary.PauseSeconds))
	fmt.Fprintf(out, "  overage:      %s\n", timespan.FromSeconds(summary.OverageSeconds))
	fmt.Fprintf(out, "  efficiency:   %s\n", percentText(summary.AverageEfficiency))
	for _, outcome := range session.Outcomes {
		if n := summary.Outcomes[outcome]; n > 0 {
			fmt.Fprintf(out, "  %-13s %d\n", string(outcome)+":", n)
		}
	}
	if summary.Unclassified > 0 {
		fmt.Fprintf(out, "  %-13s %d\n", "undefined:", summary.Unclassified)
	}
}

func runSessionsMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Storage.Type != "redis" {
		return fmt.Errorf("migrate needs redis storage, configured type is %s", cfg.Storage.Type)
	}
	path := migrateFrom
	if path == "" {
		path = cfg.Storage.FallbackPath
	}
	if path == "" {
		return fmt.Errorf("no local store to migrate (set storage.fallback_path or --from)")
	}

	local, err := bolt.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer local.Close()

	remote, err := redis.Open(cfg.Storage.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer remote.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	migrated, err := fallback.Migrate(ctx, local.Sessions(), remote.Sessions())
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d sessions from %s\n", migrated, path)
	return err
}
