package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clumio-code/bulk-restore/internal/engine"
	"github.com/clumio-code/bulk-restore/internal/fs"
	"github.com/clumio-code/bulk-restore/internal/report"
	"github.com/clumio-code/bulk-restore/internal/tui"
)

var (
	discoverInputPath  string
	discoverOutputPath string
	discoverFormat     string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List the backups a restore definition would restore, without restoring",
	Long: `Run discovery only: resolve every restore set's filters against the
backup catalog and print the matched backups. Nothing is dispatched.

Useful as a dry run before committing to a bulk restore.

Examples:
  bulk-restore discover --input plan.yaml
  bulk-restore discover --input plan.yaml --format json --output inventory.json`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().StringVarP(&discoverInputPath, "input", "i", "", "Restore definition document (JSON or YAML)")
	discoverCmd.Flags().StringVarP(&discoverOutputPath, "output", "o", "", "Inventory destination (default stdout)")
	discoverCmd.Flags().StringVar(&discoverFormat, "format", "table", "Output format (table, json)")
	_ = discoverCmd.MarkFlagRequired("input")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	applyPersistentFlags(cmd)
	ctx := cmd.Context()

	def, err := loadDefinition(discoverInputPath)
	if err != nil {
		return err
	}
	client, err := newProviderClient(ctx, def)
	if err != nil {
		return err
	}

	eng := engine.New(client, log, engine.Options{DiscoverOnly: true})
	inventory := eng.Discover(ctx, def)

	if discoverFormat == "json" {
		return writeInventoryJSON(inventory)
	}

	for _, inv := range inventory {
		fmt.Println(tui.HeaderStyle.Render(inv.Set.Name))
		switch {
		case inv.Set.Cancelled:
			fmt.Println(tui.DimStyle.Render("  cancelled, skipped"))
		case len(inv.Assets) == 0 && len(inv.Failures) == 0:
			fmt.Println(tui.DimStyle.Render("  no matching backups"))
		default:
			for _, d := range inv.Assets {
				fmt.Printf("  %-16s %-24s %-12s backup %s taken %s\n",
					d.Type, d.ResourceID, d.Region, d.BackupID,
					d.StartTime.Format("2006-01-02 15:04"))
			}
			for _, t := range inv.NoMatches {
				fmt.Println(tui.DimStyle.Render("  " + t + ": no matching backups"))
			}
			for _, f := range inv.Failures {
				fmt.Println(tui.ErrorStyle.Render("  [FAIL] " + f.AssetType + ": " + f.Error))
			}
		}
	}
	return nil
}

func writeInventoryJSON(inventory []engine.SetInventory) error {
	type setOut struct {
		Name      string                `json:"name"`
		Cancelled bool                  `json:"cancelled,omitempty"`
		Error     string                `json:"error,omitempty"`
		Assets    any                   `json:"assets"`
		NoMatches []string              `json:"no_match_asset_types,omitempty"`
		Failures  []report.AssetFailure `json:"discovery_failures,omitempty"`
	}
	out := make([]setOut, 0, len(inventory))
	for _, inv := range inventory {
		s := setOut{
			Name:      inv.Set.Name,
			Cancelled: inv.Set.Cancelled,
			Assets:    inv.Assets,
			NoMatches: inv.NoMatches,
			Failures:  inv.Failures,
		}
		if inv.Err != nil {
			s.Error = inv.Err.Error()
		}
		out = append(out, s)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if discoverOutputPath != "" {
		return fs.WriteFile(discoverOutputPath, append(data, '\n'), 0644)
	}
	fmt.Println(string(data))
	return nil
}
