package cli

import (
	"fmt"

	"cadenza.click/internal/source"
	"cadenza.click/internal/state"
	"github.com/spf13/cobra"
)

// newInspectCommand creates the inspect subcommand
func newInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <locator>",
		Short: "Classify a media locator",
		Long:  "Report how a locator would be resolved: HLS stream, progressive download, or unsupported.",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspectE,
	}

	cmd.Flags().String("extension", "", "Override the locator's file extension")

	return cmd
}

func runInspectE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}
	setupLogging(cli, cfg, cmd.ErrOrStderr())

	extension, _ := cmd.Flags().GetString("extension")
	req := state.MediaRequest{URL: args[0]}

	contentType := source.Classify(req, extension)
	cmd.Printf("locator:      %s\n", req.URL)
	cmd.Printf("content type: %s\n", contentType)

	switch contentType {
	case source.ContentTypeHLS:
		cmd.Println("delivery:     segmented stream")
	case source.ContentTypeProgressive:
		cmd.Println("delivery:     single-file download")
	default:
		return fmt.Errorf("unsupported locator: %s", req.URL)
	}
	return nil
}
