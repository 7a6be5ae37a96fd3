package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/pulse/internal/config"
	"github.com/rzbill/pulse/internal/membership"
	pebblestore "github.com/rzbill/pulse/internal/storage/pebble"
)

// StoreDirFunc maps a data directory to its Pebble directory.
type StoreDirFunc func(dataDir string) string

// NewMemberCommand constructs `member`, which edits memberships and tokens
// directly in the store. With the Pebble backend the server must be stopped,
// since the store is locked by its owner.
func NewMemberCommand(storeDir StoreDirFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "member", Short: "Membership and token administration"}
	cmd.PersistentFlags().String("data-dir", "", "Data directory (default from config)")
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL URL (default $PULSE_DATABASE_URL)")

	cmd.AddCommand(newMemberGrantCommand(storeDir))
	cmd.AddCommand(newMemberRevokeCommand(storeDir))
	cmd.AddCommand(newMemberListCommand(storeDir))
	cmd.AddCommand(newMemberTokenCommand(storeDir))
	cmd.AddCommand(newMemberRevokeTokenCommand(storeDir))
	return cmd
}

// withMembers opens the configured membership store for the duration of fn.
func withMembers(cmd *cobra.Command, storeDir StoreDirFunc, fn func(context.Context, membership.Admin) error) error {
	cfg := cfgpkg.Default()
	if err := cfgpkg.FromEnv(&cfg); err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("database-url"); v != "" {
		cfg.DatabaseURL = v
	}
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var db *pebblestore.DB
	if cfg.DatabaseURL == "" {
		var err error
		db, err = pebblestore.Open(pebblestore.Options{DataDir: storeDir(cfg.DataDir), Fsync: pebblestore.FsyncModeAlways})
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() { _ = db.Close() }()
	}
	members, err := membership.Open(ctx, cfg.DatabaseURL, db)
	if err != nil {
		return err
	}
	defer func() { _ = members.Close() }()
	return fn(ctx, members)
}

func newMemberGrantCommand(storeDir StoreDirFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Add a user to an organization or change their role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, _ := cmd.Flags().GetString("user")
			org, _ := cmd.Flags().GetString("org")
			roleName, _ := cmd.Flags().GetString("role")
			role, err := membership.ParseRole(roleName)
			if err != nil {
				return err
			}
			return withMembers(cmd, storeDir, func(ctx context.Context, m membership.Admin) error {
				got, err := m.Grant(ctx, membership.Membership{UserID: user, OrganizationID: org, Role: role})
				if err != nil {
					return err
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(got)
			})
		},
	}
	cmd.Flags().String("user", "", "User id")
	cmd.Flags().String("org", "", "Organization id")
	cmd.Flags().String("role", "", "OWNER|ADMIN|MEMBER (default OWNER)")
	return cmd
}

func newMemberRevokeCommand(storeDir StoreDirFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Remove a user from an organization",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, _ := cmd.Flags().GetString("user")
			org, _ := cmd.Flags().GetString("org")
			return withMembers(cmd, storeDir, func(ctx context.Context, m membership.Admin) error {
				if err := m.Revoke(ctx, user, org); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "revoked:", user, org)
				return nil
			})
		},
	}
	cmd.Flags().String("user", "", "User id")
	cmd.Flags().String("org", "", "Organization id")
	return cmd
}

func newMemberListCommand(storeDir StoreDirFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's organizations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, _ := cmd.Flags().GetString("user")
			return withMembers(cmd, storeDir, func(ctx context.Context, m membership.Admin) error {
				list, err := m.List(ctx, user)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, ms := range list {
					if err := enc.Encode(ms); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().String("user", "", "User id")
	return cmd
}

func newMemberTokenCommand(storeDir StoreDirFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token; it is printed once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, _ := cmd.Flags().GetString("user")
			org, _ := cmd.Flags().GetString("org")
			return withMembers(cmd, storeDir, func(ctx context.Context, m membership.Admin) error {
				tok, err := m.IssueToken(ctx, user, org)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			})
		},
	}
	cmd.Flags().String("user", "", "User id")
	cmd.Flags().String("org", "", "Default organization id")
	return cmd
}

func newMemberRevokeTokenCommand(storeDir StoreDirFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke-token",
		Short: "Invalidate a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, _ := cmd.Flags().GetString("token")
			return withMembers(cmd, storeDir, func(ctx context.Context, m membership.Admin) error {
				if err := m.RevokeToken(ctx, tok); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "revoked")
				return nil
			})
		},
	}
	cmd.Flags().String("token", "", "Raw token")
	return cmd
}
