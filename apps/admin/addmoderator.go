package main

import (
	"context"
	"time"

	"github.com/trezcool/minimoodle/core/account"
)

// addModerator creates a moderator account. Moderators cannot register through the API.
func (cli *commandLine) addModerator(name, uname, email, pwd string) error {
	_, err := cli.accSvc.CreateModerator(context.Background(), account.Credentials{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
	}, time.Now())
	return err
}
