package users

import "github.com/spf13/cobra"

// UsersCmd is the parent command for user management operations
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage portal users",
	Long:  `Commands for managing portal user records directly from the server.`,
}

func init() {
	createCmd.Flags().StringVar(&idFlag, "id", "", "User ID, normally the auth provider subject (generated when empty)")
	createCmd.Flags().StringVar(&emailFlag, "email", "", "Email address of the user (required)")
	createCmd.Flags().StringVar(&nameFlag, "name", "", "Display name of the user")
	createCmd.Flags().StringVar(&departmentFlag, "department", "", "Department ID the user belongs to")
	createCmd.Flags().StringSliceVar(&rolesInput, "role", []string{}, "Role code(s) to assign to the user")

	UsersCmd.AddCommand(createCmd)
	UsersCmd.AddCommand(listCmd)
}
