package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/cadence-academy/backend/core"
	"github.com/cadence-academy/backend/core/user"
)

// createSuperuser updates or creates an active superuser.
func (cli *commandLine) createSuperuser(uname, email, pwd string, role user.Role) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	if errors.Cause(err) == user.ErrNotFound {
		usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	}
	exists := err == nil
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return err
	}

	now := time.Now().UTC()
	if !exists {
		usr = user.User{CreatedAt: now}
	}
	usr.Username = uname
	usr.Email = email
	usr.Role = role
	usr.IsSuperuser = true
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	return err
}

// deleteUser removes the user along with their profile, token, results & class memberships.
func (cli *commandLine) deleteUser(uname string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
	if err != nil {
		return err
	}
	return cli.usrRepo.DeleteUser(ctx, usr.ID)
}
