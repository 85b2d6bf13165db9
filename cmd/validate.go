package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clumio-code/bulk-restore/internal/tui"
)

var validateInputPath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a restore definition without contacting the provider",
	Long: `Parse and validate a restore definition document. Checks filter
styles, target coverage, and required per-asset-type fields, and reports the
first problem found. No provider calls are made.

Examples:
  bulk-restore validate --input plan.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateInputPath, "input", "i", "", "Restore definition document (JSON or YAML)")
	_ = validateCmd.MarkFlagRequired("input")
}

func runValidate(cmd *cobra.Command, args []string) error {
	applyPersistentFlags(cmd)

	def, err := loadDefinition(validateInputPath)
	if err != nil {
		return err
	}

	fmt.Println(tui.SuccessStyle.Render(fmt.Sprintf(
		"[OK] %s: %d restore set(s) valid", validateInputPath, len(def.RestoreSets))))
	for _, set := range def.RestoreSets {
		status := ""
		if set.Cancelled {
			status = tui.DimStyle.Render(" (cancelled)")
		}
		fmt.Printf("  %s: %s -> %s, asset types: %v%s\n",
			set.Name, set.SourceAccount, set.Targets.TargetAccount,
			set.AssetTypes(), status)
	}
	return nil
}
