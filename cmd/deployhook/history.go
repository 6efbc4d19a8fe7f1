package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"deployhook/internal/history"
	"deployhook/pkg/fileutil"

	"github.com/spf13/cobra"
)

var historyFlags struct {
	db     string
	limit  int
	status string
	json   bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent webhook triggers",
	Long: `List the most recent webhook deliveries recorded in the trigger history database,
newest first, followed by a per-status summary.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyFlags.db, "db", "", "SQLite trigger history database (default: configured history_db)")
	f.IntVarP(&historyFlags.limit, "limit", "n", 20, "Maximum number of records to show")
	f.StringVar(&historyFlags.status, "status", "", "Only show records with this status (started, skipped, rejected, launch_failed)")
	f.BoolVar(&historyFlags.json, "json", false, "Output records as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	dbPath := historyFlags.db
	if dbPath == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		dbPath = cfg.HistoryDB
	}
	if dbPath == "" {
		return fmt.Errorf("trigger history is disabled; set history_db or pass --db")
	}
	if !fileutil.FileExists(dbPath) {
		return fmt.Errorf("history database not found: %s", dbPath)
	}

	if historyFlags.limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", historyFlags.limit)
	}
	switch historyFlags.status {
	case "", history.StatusStarted, history.StatusSkipped, history.StatusRejected, history.StatusLaunchFailed:
	default:
		return fmt.Errorf("unknown status %q", historyFlags.status)
	}

	hist, err := history.NewHistory(dbPath)
	if err != nil {
		return err
	}
	defer hist.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var records []history.TriggerRecord
	if historyFlags.status != "" {
		records, err = hist.RecentByStatus(ctx, historyFlags.status, historyFlags.limit)
	} else {
		records, err = hist.Recent(ctx, historyFlags.limit)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyFlags.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No triggers recorded.")
		return nil
	}
	printRecords(out, records)

	counts, err := hist.CountByStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, formatCounts(counts))
	return nil
}

func printRecords(out io.Writer, records []history.TriggerRecord) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tSTATUS\tREF\tCOMMIT\tPID\tDEPLOY ID\tREMOTE")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Status,
			orDash(r.Ref),
			shortHash(deref(r.CommitHash)),
			pidString(r.PID),
			orDash(deref(r.DeployID)),
			r.RemoteAddr,
		)
	}
	tw.Flush()
}

// formatCounts renders "total N: status=n ..." with statuses in name order
func formatCounts(counts map[string]int) string {
	statuses := make([]string, 0, len(counts))
	total := 0
	for status, n := range counts {
		statuses = append(statuses, status)
		total += n
	}
	sort.Strings(statuses)

	s := fmt.Sprintf("total %d:", total)
	for _, status := range statuses {
		s += fmt.Sprintf(" %s=%d", status, counts[status])
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortHash(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return orDash(s)
}

func pidString(pid *int) string {
	if pid == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *pid)
}
