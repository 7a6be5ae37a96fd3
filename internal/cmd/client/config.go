package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/pulse/internal/config"
)

// NewConfigCommand constructs `config`, which documents and resolves the
// server configuration.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration helpers"}
	cmd.AddCommand(&cobra.Command{
		Use:   "env",
		Short: "List supported environment variables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), cfgpkg.EnvUsage())
			return err
		},
	})
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := cfgpkg.Load(path)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
	show.Flags().String("config", "", "Config file (.json, .yaml)")
	cmd.AddCommand(show)
	return cmd
}
