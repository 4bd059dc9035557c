package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (cli *commandLine) newAddUserCommand() *cobra.Command {
	var name, uname, email string
	var isAdmin bool

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a staff user, or reactivate an existing one with a new password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if uname == "" && email == "" {
				_ = cmd.Usage()
				return errHelp
			}
			pwd, err := cli.readPassword("Enter password:")
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			c, err := cli.container(ctx)
			if err != nil {
				return err
			}
			usr, err := c.UserSvc.AddOrUpdate(ctx, name, uname, email, pwd, isAdmin)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "user %s saved\n", usr.Identity())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&uname, "username", "", "username")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "grant every role")
	return cmd
}

func (cli *commandLine) newResetPasswordCommand() *cobra.Command {
	var uname string

	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password; the password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if uname == "" {
				_ = cmd.Usage()
				return errHelp
			}
			pwd, err := cli.readPassword("Enter password:")
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			c, err := cli.container(ctx)
			if err != nil {
				return err
			}
			return c.UserSvc.ResetPassword(ctx, uname, pwd)
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "the user's username or email")
	return cmd
}
