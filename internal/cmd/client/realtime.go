package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzbill/pulse/internal/cmd/client/transports"
)

// NewPublishCommand constructs `publish`, which posts a mutation hook.
func NewPublishCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Invalidate a dashboard topic and notify subscribers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			topic, _ := cmd.Flags().GetString("topic")
			org, _ := cmd.Flags().GetString("org")
			entity, _ := cmd.Flags().GetString("entity")
			token, _ := cmd.Flags().GetString("token")
			if topic == "" {
				return fmt.Errorf("--topic is required")
			}
			inv := transports.Invalidation{Topic: topic, OrganizationID: org, EntityID: entity}
			if err := httpTransport(baseURL, token).Invalidate(cmd.Context(), inv); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "accepted")
			return nil
		},
	}
	cmd.Flags().String("topic", "", "Topic: projects|clients|files")
	cmd.Flags().String("org", "", "Organization id (defaults to the token's organization)")
	cmd.Flags().String("entity", "", "Optional entity id")
	cmd.Flags().String("token", "", "Bearer token (default $PULSE_TOKEN)")
	return cmd
}

// NewSubscribeCommand constructs `subscribe`, which follows the SSE stream
// and prints one JSON line per frame.
func NewSubscribeCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Follow realtime invalidation events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			org, _ := cmd.Flags().GetString("org")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			pings, _ := cmd.Flags().GetBool("pings")
			token, _ := cmd.Flags().GetString("token")

			enc := json.NewEncoder(cmd.OutOrStdout())
			req := transports.SubscribeRequest{OrganizationID: org, Filter: filter, Limit: limit}
			return httpTransport(baseURL, token).Subscribe(cmd.Context(), req, func(f transports.Frame) error {
				if f.Event == "ping" && !pings {
					return nil
				}
				return enc.Encode(f)
			})
		},
	}
	cmd.Flags().String("org", "", "Organization id (defaults to the token's organization)")
	cmd.Flags().String("filter", "", "Filter expression over topic, entityId, organizationId")
	cmd.Flags().Int("limit", 0, "Stop after N events (0 = follow)")
	cmd.Flags().Bool("pings", false, "Print heartbeat frames")
	cmd.Flags().String("token", "", "Bearer token (default $PULSE_TOKEN)")
	return cmd
}

// NewStatusCommand constructs `status`, which prints the broker mode.
func NewStatusCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show broker mode and live sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := httpTransport(baseURL, "").Status(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
}

// NewHealthCommand constructs `health`, which queries the gRPC health service.
func NewHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, _ := cmd.Flags().GetString("service")
			st, err := healthTransport().Health(cmd.Context(), service)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", st)
			return nil
		},
	}
	cmd.Flags().String("service", "pulse.realtime", "Health service name")
	return cmd
}
