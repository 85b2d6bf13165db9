// Package cmd implements the bulk-restore command line interface
package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clumio-code/bulk-restore/internal/api"
	"github.com/clumio-code/bulk-restore/internal/config"
	"github.com/clumio-code/bulk-restore/internal/fs"
	"github.com/clumio-code/bulk-restore/internal/logger"
	"github.com/clumio-code/bulk-restore/internal/plan"
)

var (
	cfg *config.Config
	log logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bulk-restore",
	Short: "Discover cloud backups in bulk and restore them into declared targets",
	Long: `bulk-restore discovers backups across AWS accounts and regions by
tag, time window, and asset filters, then restores each one into a declared
target environment with bounded concurrency.

A single restore definition (JSON or YAML) declares one or more restore
sets. Each set names a source account, asset filters, and per-asset-type
target specs; fields left unset in a target inherit from the backup's
recorded configuration.

Supported asset types: EBS, EC2, RDS, DynamoDB, ProtectionGroup (S3).

Examples:
  # Validate a restore definition without touching the provider
  bulk-restore validate --input plan.yaml

  # Discover what would be restored
  bulk-restore discover --input plan.yaml

  # Run the full restore and write the report
  bulk-restore restore --input plan.yaml --output report.json`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with shared configuration and logging
func Execute(ctx context.Context, c *config.Config, l logger.Logger) error {
	cfg = c
	log = l
	if cfg.NoColor {
		color.NoColor = true
	}
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("base-url", "", "Backup service endpoint (overrides BULKRESTORE_BASE_URL)")
	pf.String("token", "", "API bearer token (overrides BULKRESTORE_TOKEN)")
	pf.Bool("no-color", false, "Disable colored output")
	pf.Bool("debug", false, "Enable debug logging")
}

// applyPersistentFlags folds global flag overrides into the configuration
func applyPersistentFlags(cmd *cobra.Command) {
	if v, _ := cmd.Flags().GetString("base-url"); v != "" {
		cfg.BaseURL = v
	}
	if v, _ := cmd.Flags().GetString("token"); v != "" {
		cfg.Token = v
	}
	if v, _ := cmd.Flags().GetBool("no-color"); v {
		cfg.NoColor = true
		color.NoColor = true
	}
	if v, _ := cmd.Flags().GetBool("debug"); v {
		cfg.Debug = true
	}
}

// loadDefinition reads and validates the restore definition document
func loadDefinition(path string) (*plan.Definition, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading restore definition %s: %w", path, err)
	}
	return plan.Load(data)
}

// newProviderClient builds the authenticated provider client. An explicit
// token (flag, env, or definition document) wins; otherwise the token is
// fetched from Secrets Manager.
func newProviderClient(ctx context.Context, def *plan.Definition) (*api.Client, error) {
	baseURL := cfg.BaseURL
	if def != nil && def.BaseURL != "" && baseURL == config.DefaultBaseURL {
		baseURL = def.BaseURL
	}
	cfg.BaseURL = baseURL

	token := cfg.Token
	if token == "" && def != nil {
		token = def.Token
	}
	if token == "" {
		sm, err := api.NewSecretsClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		token, err = api.FetchToken(ctx, sm, cfg.TokenSecret)
		if err != nil {
			return nil, err
		}
	}

	retry := api.DefaultRetryConfig()
	retry.MaxRetries = cfg.DiscoveryMaxRetries
	retry.InitialInterval = cfg.DiscoveryInitialBackoff
	retry.MaxInterval = cfg.DiscoveryMaxBackoff
	return api.NewClient(api.ClientConfig{
		Host:  cfg.APIHost(),
		Token: token,
		Retry: retry,
	}, log), nil
}
