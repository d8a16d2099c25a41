package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mappa-gov/portal-iam/cmd/mappaiam/cmd/cmdutil"
	"github.com/mappa-gov/portal-iam/internal/db/bunx"
	"github.com/mappa-gov/portal-iam/internal/db/models"
	"github.com/mappa-gov/portal-iam/internal/repository"
)

var (
	idFlag         string
	emailFlag      string
	nameFlag       string
	departmentFlag string
	rolesInput     []string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a portal user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if emailFlag == "" {
			return fmt.Errorf("--email flag is required")
		}
		if _, err := mail.ParseAddress(emailFlag); err != nil {
			return fmt.Errorf("invalid email format: %w", err)
		}

		return cmdutil.WithIAMServiceBundle(func(ctx context.Context, b *cmdutil.IAMServiceBundle) error {
			existing, err := b.Repos.Users.GetByEmail(ctx, emailFlag)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("failed to check email uniqueness: %w", err)
			}
			if existing != nil {
				return fmt.Errorf("user with email %q already exists", emailFlag)
			}

			user := &models.User{
				ID:       strings.TrimSpace(idFlag),
				Email:    emailFlag,
				FullName: nameFlag,
			}
			if user.ID == "" {
				user.ID = bunx.NewUUIDv7()
			}
			if dep := strings.TrimSpace(departmentFlag); dep != "" {
				if _, err := b.Repos.Departments.GetByID(ctx, dep); err != nil {
					return fmt.Errorf("unknown department %q: %w", dep, err)
				}
				user.DepartmentID = &dep
			}

			if err := b.Repos.Users.Create(ctx, user); err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			if user.DepartmentID != nil {
				if err := b.Repos.Departments.AddMember(ctx, user.ID, *user.DepartmentID); err != nil {
					return fmt.Errorf("failed to add department membership: %w", err)
				}
			}

			for _, code := range rolesInput {
				if err := b.Admin.AssignRole(ctx, user.ID, code, nil); err != nil {
					return fmt.Errorf("failed to assign role '%s': %w", code, err)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "User created successfully!")
			fmt.Fprintln(out, "----------------------------------------")
			fmt.Fprintf(out, "User ID: %s\n", user.ID)
			fmt.Fprintf(out, "Email: %s\n", user.Email)
			if user.FullName != "" {
				fmt.Fprintf(out, "Name: %s\n", user.FullName)
			}
			if len(rolesInput) > 0 {
				fmt.Fprintf(out, "Roles: %s\n", strings.Join(rolesInput, ", "))
			}
			fmt.Fprintln(out, "----------------------------------------")
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List portal users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdutil.WithIAMServiceBundle(func(ctx context.Context, b *cmdutil.IAMServiceBundle) error {
			users, err := b.Repos.Users.List(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tNAME")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.Email, u.FullName)
			}
			return w.Flush()
		})
	},
}
