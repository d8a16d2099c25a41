package iam

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mappa-gov/portal-iam/cmd/mappaiam/cmd/cmdutil"
)

var assignRoleCmd = &cobra.Command{
	Use:   "assign-role <role-code>...",
	Short: "Assign one or more roles to a user",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := requireUser()
		if err != nil {
			return err
		}
		return cmdutil.WithIAMServiceBundle(func(ctx context.Context, b *cmdutil.IAMServiceBundle) error {
			for _, code := range args {
				if err := b.Admin.AssignRole(ctx, userID, code, actor()); err != nil {
					return fmt.Errorf("failed to assign role '%s' to user '%s': %w", code, userID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Assigned role '%s' to user '%s'\n", code, userID)
			}
			return nil
		})
	},
}

var revokeRoleCmd = &cobra.Command{
	Use:   "revoke-role <role-code>...",
	Short: "Remove one or more roles from a user",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := requireUser()
		if err != nil {
			return err
		}
		return cmdutil.WithIAMServiceBundle(func(ctx context.Context, b *cmdutil.IAMServiceBundle) error {
			for _, code := range args {
				if err := b.Admin.RevokeRole(ctx, userID, code); err != nil {
					return fmt.Errorf("failed to revoke role '%s' from user '%s': %w", code, userID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Revoked role '%s' from user '%s'\n", code, userID)
			}
			return nil
		})
	},
}

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "List the roles defined in the portal",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdutil.WithIAMServiceBundle(func(ctx context.Context, b *cmdutil.IAMServiceBundle) error {
			roles, err := b.Repos.Roles.List(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME\tACTIVE")
			for _, role := range roles {
				fmt.Fprintf(w, "%s\t%s\t%t\n", role.Code, role.Name, role.Status.Active())
			}
			return w.Flush()
		})
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the roles and effective permissions of a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := requireUser()
		if err != nil {
			return err
		}
		return cmdutil.WithIAMServiceBundle(func(ctx context.Context, b *cmdutil.IAMServiceBundle) error {
			roles := b.Resolver.GetUserRoles(ctx, userID)
			perms := b.Resolver.GetEffectivePermissions(ctx, userID)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User:        %s\n", userID)
			fmt.Fprintf(out, "Roles:       %s\n", strings.Join(roles.RoleCodes, ", "))
			fmt.Fprintf(out, "Permissions: %d\n", len(perms.PermissionCodes))
			for _, code := range perms.PermissionCodes {
				fmt.Fprintf(out, "  - %s\n", code)
			}
			return nil
		})
	},
}
