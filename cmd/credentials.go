package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/statefile"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Show the persisted API credential rotation state",
	Long: `Reads the credential pool that the engine persists under the state
directory and prints each credential's rotation status. Secrets are
never printed, only key prefixes.`,
	RunE: runCredentials,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(credentialsCmd)
}

func runCredentials(cmd *cobra.Command, args []string) error {
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

	var pool types.CredentialPool
	found, err := state.LoadOr("credentials", &pool)
	if err != nil {
		return fmt.Errorf("load credential pool: %w", err)
	}
	if !found || len(pool.Credentials) == 0 {
		fmt.Println("No persisted credential pool. Run the engine once, or derive-api-creds.")
		return nil
	}

	now := time.Now()
	table := tablewriter.NewTable(os.Stdout)
	table.Header("ID", "API Key", "Active", "Status", "Last Error")
	for i := range pool.Credentials {
		cred := &pool.Credentials[i]
		active := ""
		if i == pool.ActiveIndex {
			active = "*"
		}
		status := "ready"
		if cred.Exhausted(now) {
			status = fmt.Sprintf("cooling down (%s)", time.Until(cred.ExhaustedUntil).Round(time.Second))
		}
		if err := table.Append(cred.ID, shortID(cred.APIKey), active, status, cred.LastError); err != nil {
			return fmt.Errorf("render credentials: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render credentials: %w", err)
	}
	fmt.Printf("\nUpdated: %s\n", pool.UpdatedAt.Format(time.RFC3339))

	return nil
}
