package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mappa-gov/portal-iam/cmd/mappaiam/cmd/cmdutil"
	"github.com/mappa-gov/portal-iam/internal/logging"
	"github.com/mappa-gov/portal-iam/internal/services/iam"
)

var (
	whoamiAuthUID string
	whoamiEmail   string
	whoamiJSON    bool
	whoamiChecks  []string
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Resolve the identity of a principal",
	Long: `Resolves the identity the portal would build for the given principal,
reading the same profile, role, permission and department data as the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(whoamiAuthUID) == "" {
			return fmt.Errorf("--auth-uid flag is required")
		}

		ctx := context.Background()
		session := iam.StaticSessionReader{Principal: iam.Principal{AuthUID: whoamiAuthUID, Email: whoamiEmail}}
		bundle, err := cmdutil.NewIAMServiceBundle(ctx, cfg, session, logging.New(cfg.Debug))
		if err != nil {
			return err
		}
		defer bundle.Close()

		provider := iam.NewIdentityProvider(bundle.Resolver)
		view, err := provider.Refresh(ctx, iam.ResolveOptions{Force: true})
		if err != nil {
			return fmt.Errorf("failed to resolve identity: %w", err)
		}

		out := cmd.OutOrStdout()
		if whoamiJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}
		printView(out, view, whoamiChecks)
		return nil
	},
}

func printView(out io.Writer, view *iam.View, checks []string) {
	if !view.Authenticated() {
		fmt.Fprintln(out, "Not authenticated")
		return
	}

	fmt.Fprintln(out, "----------------------------------------")
	fmt.Fprintf(out, "Auth UID:     %s\n", view.AuthUID())
	fmt.Fprintf(out, "User ID:      %s\n", view.UserID())
	fmt.Fprintf(out, "Email:        %s\n", view.Email())
	fmt.Fprintf(out, "Primary role: %s\n", view.PrimaryRoleCode())
	fmt.Fprintf(out, "Roles:        %s\n", strings.Join(view.RoleCodes(), ", "))
	fmt.Fprintf(out, "Super admin:  %t\n", view.IsSuperAdmin())
	fmt.Fprintf(out, "Admin:        %t\n", view.IsAdmin())
	if id := view.DepartmentID(); id != nil {
		fmt.Fprintf(out, "Department:   %s", *id)
		if path := view.DepartmentPath(); path != nil {
			fmt.Fprintf(out, " (%s", *path)
			if level := view.DepartmentLevel(); level != nil {
				fmt.Fprintf(out, ", level %d", *level)
			}
			fmt.Fprint(out, ")")
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "Permissions:  %d\n", len(view.PermissionCodes()))
	for _, code := range view.PermissionCodes() {
		fmt.Fprintf(out, "  - %s\n", code)
	}
	for _, code := range checks {
		mark := "✗"
		if view.HasPerm(code) {
			mark = "✓"
		}
		fmt.Fprintf(out, "%s %s\n", mark, code)
	}
	fmt.Fprintln(out, "----------------------------------------")
}

func init() {
	whoamiCmd.Flags().StringVar(&whoamiAuthUID, "auth-uid", "", "Auth provider subject of the principal (required)")
	whoamiCmd.Flags().StringVar(&whoamiEmail, "email", "", "Email reported by the auth provider, used as a fallback key")
	whoamiCmd.Flags().BoolVar(&whoamiJSON, "json", false, "Print the identity as JSON")
	whoamiCmd.Flags().StringSliceVar(&whoamiChecks, "check", nil, "Permission code(s) to test against the identity")

	rootCmd.AddCommand(whoamiCmd)
}
