package iam

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	userIDFlag string
	actorFlag  string
)

// IamCmd is the parent command for role and permission management
var IamCmd = &cobra.Command{
	Use:   "iam",
	Short: "Manage role assignments and direct permission grants",
	Long: `Commands for assigning roles and granting permissions to portal users.
Every change clears the identity cache; with the redis backend this reaches
every running server.`,
}

func init() {
	for _, c := range []*cobra.Command{assignRoleCmd, revokeRoleCmd, grantPermissionCmd, revokePermissionCmd, inspectCmd} {
		c.Flags().StringVar(&userIDFlag, "user", "", "Application user ID (required)")
		IamCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{assignRoleCmd, grantPermissionCmd} {
		c.Flags().StringVar(&actorFlag, "by", "", "User ID recorded as the author of the change")
	}
	IamCmd.AddCommand(rolesCmd)
}

func requireUser() (string, error) {
	userID := strings.TrimSpace(userIDFlag)
	if userID == "" {
		return "", fmt.Errorf("--user flag is required")
	}
	return userID, nil
}

func actor() *string {
	by := strings.TrimSpace(actorFlag)
	if by == "" {
		return nil
	}
	return &by
}
