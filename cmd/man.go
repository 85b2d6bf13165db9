package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

var manOutputDir string

var manCmd = &cobra.Command{
	Use:   "man",
	Short: "Generate man pages for bulk-restore",
	Long: `Generate Unix manual (man) pages for all bulk-restore commands.

Man pages are generated in standard groff format and can be viewed with the
'man' command or installed system-wide.

Examples:
  # Generate to current directory
  bulk-restore man

  # Generate and install system-wide
  bulk-restore man --output /tmp/man && \
    sudo cp /tmp/man/*.1 /usr/local/share/man/man1/ && \
    sudo mandb`,
	RunE: runGenerateMan,
}

func init() {
	rootCmd.AddCommand(manCmd)
	manCmd.Flags().StringVarP(&manOutputDir, "output", "o", "./man", "Output directory for man pages")
}

func runGenerateMan(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(manOutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	header := &doc.GenManHeader{
		Title:   "BULK-RESTORE",
		Section: "1",
		Source:  "bulk-restore " + cfg.Version,
		Manual:  "Bulk Restore Manual",
	}
	if err := doc.GenManTree(rootCmd, header, manOutputDir); err != nil {
		return fmt.Errorf("failed to generate man pages: %w", err)
	}

	fmt.Printf("Man pages generated in %s\n", manOutputDir)
	return nil
}
