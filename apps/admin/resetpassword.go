package main

import (
	"context"
	"time"

	"github.com/trezcool/minimoodle/core/account"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	_, err := cli.accSvc.ResetPassword(context.Background(), uname, account.ResetPassword{
		Password:        pwd,
		PasswordConfirm: pwd,
	}, time.Now())
	return err
}
