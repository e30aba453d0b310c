package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mselser95/polymarket-updown/internal/watchdog"
	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/statefile"
)

//nolint:gochecknoglobals // Cobra boilerplate
var (
	reportList bool

	reportCmd = &cobra.Command{
		Use:   "report",
		Short: "Show watchdog stop reports",
		Long: `Prints the most recent automation stop report from the state
directory, or lists every retained report with --list. Reports are
written whenever the watchdog halts trading and explain which limit
tripped.`,
		RunE: runReport,
	}
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	reportCmd.Flags().BoolVar(&reportList, "list", false, "list retained reports instead of printing the latest")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := config.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	state, err := statefile.New(cfg.StateDir, logger)
	if err != nil {
		return fmt.Errorf("open state directory: %w", err)
	}

	names, err := state.List("reports")
	if err != nil {
		return fmt.Errorf("list reports: %w", err)
	}
	if len(names) == 0 {
		fmt.Println("No stop reports. The watchdog has not halted automation.")
		return nil
	}

	if reportList {
		for _, name := range names {
			var r watchdog.Report
			if err := state.Load(name, &r); err != nil {
				fmt.Printf("%s  (unreadable: %v)\n", name, err)
				continue
			}
			fmt.Printf("%s  %-16s %s\n", strings.TrimPrefix(name, "reports/"), r.Reason, r.Detail)
		}
		return nil
	}

	text, err := state.ReadText(names[0])
	if err != nil {
		return fmt.Errorf("read report %s: %w", names[0], err)
	}
	fmt.Print(text)

	return nil
}
