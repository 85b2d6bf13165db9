// Package cmd - version command showing build and system info
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var versionOutputFormat string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and build information",
	Long: `Display version information including:

  - bulk-restore version, build time, and git commit
  - Go runtime version
  - Operating system and architecture

Useful for troubleshooting and bug reports.

Examples:
  # Show version info
  bulk-restore version

  # JSON output for scripts
  bulk-restore version --format json

  # Short version only
  bulk-restore version --format short`,
	Run: runVersionCmd,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().StringVar(&versionOutputFormat, "format", "table", "Output format (table, json, short)")
}

type versionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

func runVersionCmd(cmd *cobra.Command, args []string) {
	info := versionInfo{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		GitCommit: cfg.GitCommit,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}

	switch versionOutputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(info)
	case "short":
		fmt.Printf("bulk-restore %s\n", info.Version)
	default:
		fmt.Printf("bulk-restore %s\n", info.Version)
		fmt.Printf("  build time: %s\n", info.BuildTime)
		fmt.Printf("  git commit: %s\n", info.GitCommit)
		fmt.Printf("  go version: %s\n", info.GoVersion)
		fmt.Printf("  platform:   %s/%s\n", info.OS, info.Arch)
	}
}
