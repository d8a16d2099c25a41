package iam

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mappa-gov/portal-iam/cmd/mappaiam/cmd/cmdutil"
)

var grantPermissionCmd = &cobra.Command{
	Use:   "grant-permission <permission-code>...",
	Short: "Grant permissions directly to a user",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := requireUser()
		if err != nil {
			return err
		}
		return cmdutil.WithIAMServiceBundle(func(ctx context.Context, b *cmdutil.IAMServiceBundle) error {
			for _, code := range args {
				if err := b.Admin.GrantPermission(ctx, userID, code, actor()); err != nil {
					return fmt.Errorf("failed to grant '%s' to user '%s': %w", code, userID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Granted '%s' to user '%s'\n", code, userID)
			}
			return nil
		})
	},
}

var revokePermissionCmd = &cobra.Command{
	Use:   "revoke-permission <permission-code>...",
	Short: "Revoke direct permission grants from a user",
	Long:  `Revokes direct grants only. Permissions the user holds through a role are unaffected.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := requireUser()
		if err != nil {
			return err
		}
		return cmdutil.WithIAMServiceBundle(func(ctx context.Context, b *cmdutil.IAMServiceBundle) error {
			for _, code := range args {
				if err := b.Admin.RevokePermission(ctx, userID, code); err != nil {
					return fmt.Errorf("failed to revoke '%s' from user '%s': %w", code, userID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Revoked '%s' from user '%s'\n", code, userID)
			}
			return nil
		})
	},
}
