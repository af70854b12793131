package main

import (
	"context"
	"fmt"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/user"
)

// addUser creates or updates a verified account.
func (cli *commandLine) addUser(ctx context.Context, email, display, pwd string, isAdmin bool) error {
	app, err := cli.getApp(ctx)
	if err != nil {
		return err
	}
	role := core.RoleStudent
	if isAdmin {
		role = core.RoleAdmin
	}
	usr, created, err := app.Users.CreateOrUpdate(ctx, user.AdminUser{Email: email, Display: display, Password: pwd, Role: role})
	if err != nil {
		return err
	}
	action := "updated"
	if created {
		action = "created"
	}
	_, _ = fmt.Fprintf(cli.out, "%s %s (%s)\n", action, usr.Email, usr.Role)
	return nil
}

func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	app, err := cli.getApp(ctx)
	if err != nil {
		return err
	}
	if err := app.Users.SetPassword(ctx, email, pwd); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "password reset for %s\n", core.CleanString(email, true /* lower */))
	return nil
}
