package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"terminwatch/lib/serviceutil"
	"terminwatch/lib/sqliteutil"
	"terminwatch/lib/timezone"
	"terminwatch/services/watches"
	"terminwatch/services/watches/db"
)

func init() {
	targetsCmd.AddCommand(targetsEnableCmd)
	targetsCmd.AddCommand(targetsDisableCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(watchesCmd)
}

func openStore() watches.Service {
	cfg, err := loadConfig()
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	sqlite, err := sqliteutil.OpenDB(db.Schema, cfg.Database.Path)
	if err != nil {
		serviceutil.Fatal("open database", err)
	}
	return watches.NewService(sqlite)
}

func formatUnix(value int64, valid bool) string {
	if !valid {
		return "never"
	}
	return time.Unix(value, 0).In(timezone.Location).Format("02.01.2006 15:04")
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Prints the monitored service catalog with check statistics.",
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		targets, err := store.ListTargets(cmd.Context())
		if err != nil {
			serviceutil.Fatal("list targets", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Category", "Service", "Qty", "Active", "Checks", "Last check", "Last slots"})
		for _, target := range targets {
			t.AppendRow(table.Row{
				target.ID,
				target.Category,
				target.Service,
				target.Quantity,
				target.Active == 1,
				target.TotalChecks,
				formatUnix(target.LastCheckAt.Int64, target.LastCheckAt.Valid),
				formatUnix(target.LastSlotsAt.Int64, target.LastSlotsAt.Valid),
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

var targetsEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Puts a target back into the scheduler's rotation.",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setTargetActive(cmd, args[0], true) },
}

var targetsDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Takes a target out of rotation without touching its watches.",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setTargetActive(cmd, args[0], false) },
}

func setTargetActive(cmd *cobra.Command, arg string, active bool) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("target id must be numeric: %w", err)
	}
	store := openStore()
	if err := store.SetTargetActive(cmd.Context(), id, active); err != nil {
		return err
	}
	fmt.Printf("target %d active=%v\n", id, active)
	return nil
}

var watchesCmd = &cobra.Command{
	Use:   "watches",
	Short: "Prints every watch across all users.",
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		rows, err := store.ListAllWatches(cmd.Context())
		if err != nil {
			serviceutil.Fatal("list watches", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "User", "Category", "Service", "Interval", "Active", "Last probe", "Last outcome", "Consec. failures"})
		for _, row := range rows {
			user := row.Username
			if user == "" {
				user = "?"
			}
			t.AppendRow(table.Row{
				row.ID,
				user,
				row.Category,
				row.Service,
				(time.Duration(row.IntervalSeconds) * time.Second).String(),
				row.Active == 1,
				formatUnix(row.LastProbeAt.Int64, row.LastProbeAt.Valid),
				row.LastOutcomeKind,
				row.ConsecutiveFailures,
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
