package cli

import (
	"fmt"

	"cadenza.click/internal/download"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// newCacheCommand creates the cache subcommand group
func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the download cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "size",
		Short: "Report the download cache size",
		RunE:  runCacheSizeE,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all cached downloads",
		RunE:  runCacheClearE,
	})

	return cmd
}

func runCacheSizeE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}
	setupLogging(cli, cfg, cmd.ErrOrStderr())

	cacheDir := cli.configManager.CacheDirPath(cfg)
	size, err := download.CacheUsage(afero.NewOsFs(), cacheDir)
	if err != nil {
		return fmt.Errorf("failed to measure cache: %w", err)
	}

	cmd.Printf("%s: %s\n", cacheDir, formatBytes(size))
	return nil
}

func runCacheClearE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}
	setupLogging(cli, cfg, cmd.ErrOrStderr())

	cacheDir := cli.configManager.CacheDirPath(cfg)
	if err := download.ClearCache(afero.NewOsFs(), cacheDir); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	cmd.Printf("Cleared %s\n", cacheDir)
	return nil
}

// formatBytes renders a byte count with a binary unit suffix
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
