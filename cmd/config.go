package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"recordbridge/internal/bootstrap"
	"recordbridge/internal/bootstrap/logging"
	"recordbridge/internal/errs"
	"recordbridge/internal/usecase/pipeline"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage field configurations",
}

var configImportCmd = &cobra.Command{
	Use:   "import <profile.toml>",
	Short: "Import a TOML ruleset profile as the new active configuration",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service, _ *pipeline.Dispatcher) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		path := cmd.Flags().Args()[0]
		raw, err := os.ReadFile(path)
		if err != nil {
			return errs.Wrapf(err, "read profile %s", path)
		}
		view, err := svc.ImportConfigProfile(ctx, raw)
		if err != nil {
			return errs.Wrap(err, "import configuration profile")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "configuration v%d active for org %d %s (%d rules)\n",
			view.Version, view.OrganizationID, view.RecordType, len(view.Rules)); err != nil {
			return errs.Wrap(err, "write config output")
		}
		return nil
	}),
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active configuration for an organization and record type",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service, _ *pipeline.Dispatcher) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		orgID, _ := cmd.Flags().GetUint64("org")
		recordType, _ := cmd.Flags().GetString("record-type")
		view, err := svc.GetActiveFieldConfig(ctx, orgID, recordType)
		if err != nil {
			return errs.Wrap(err, "get active configuration")
		}

		out, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return errs.Wrap(err, "encode configuration")
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(out)); err != nil {
			return errs.Wrap(err, "write config output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configImportCmd, configShowCmd)

	configShowCmd.Flags().Uint64("org", 0, "Organization id")
	configShowCmd.Flags().String("record-type", "", "Record type")
	_ = configShowCmd.MarkFlagRequired("org")
	_ = configShowCmd.MarkFlagRequired("record-type")
}
