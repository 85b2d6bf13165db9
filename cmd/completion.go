package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for bulk-restore commands.

Installation:

Bash:
  # Add to ~/.bashrc or ~/.bash_profile:
  source <(bulk-restore completion bash)

Zsh:
  # Add to ~/.zshrc:
  source <(bulk-restore completion zsh)

Fish:
  bulk-restore completion fish > ~/.config/fish/completions/bulk-restore.fish

PowerShell:
  bulk-restore completion powershell | Out-String | Invoke-Expression

After installation, restart your shell or source the completion file.`,
	ValidArgs:          []string{"bash", "zsh", "fish", "powershell"},
	Args:               cobra.ExactArgs(1),
	DisableFlagParsing: true,
	Run: func(cmd *cobra.Command, args []string) {
		switch args[0] {
		case "bash":
			_ = rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			_ = rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			_ = rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			_ = rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
