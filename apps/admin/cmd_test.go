package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/access"
	"github.com/trezcool/minimoodle/core/account"
	"github.com/trezcool/minimoodle/tests"
)

const newPwd = "N3w-Str0ng&Pass"

func setup(t *testing.T) (*commandLine, *testutil.Env) {
	env := testutil.NewEnv()
	return &commandLine{accSvc: env.AccountSvc}, env
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantErrFn  func(err error) bool
	extra      interface{}
}

func isValidationErr(err error) bool {
	vErr := new(core.ValidationError)
	return errors.As(err, &vErr)
}

func isAccountNotFound(err error) bool {
	return core.IsNotFoundEntity(err, account.Entity)
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		if pwd == "" {
			return nil, nil
		}
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "submission_files", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				assert.EqualError(t, err, tt.wantErrStr)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_addModerator(t *testing.T) {
	cli, env := setup(t)
	testutil.CreateStudent(t, env.Accounts, "taken01")

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"addmoderator"}, wantErr: errHelp},
		{name: "no email", args: []string{"addmoderator", "-username", "moderator"}, extra: newPwd, wantErr: errHelp},
		{name: "no password", args: []string{"addmoderator", "-username", "moderator", "-email", "mod@test.cd"}, wantErr: errHelp},
		{name: "username taken", args: []string{"addmoderator", "-username", "taken01", "-email", "mod@test.cd"}, extra: newPwd, wantErrFn: isValidationErr},
		{name: "create", args: []string{"addmoderator", "-username", "moderator", "-email", "mod@test.cd", "-name", "Mod"}, extra: newPwd},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrFn != nil:
				assert.True(t, tt.wantErrFn(err), "unexpected error: %v", err)
			default:
				assert.NoError(t, err)
			}
		})
	}

	mod, err := env.AccountSvc.Authenticate(context.Background(), "mod@test.cd", newPwd, access.RoleModerator, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Mod", mod.Name)
	assert.Equal(t, account.StateActive, mod.State())
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, env := setup(t)
	acc := testutil.CreateStudent(t, env.Accounts, "student1")

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "account not found", args: []string{"resetpassword", "-username", "lol"}, extra: newPwd, wantErrFn: isAccountNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", acc.Username}, extra: newPwd},
		{name: "reset with email", args: []string{"resetpassword", "-username", acc.Email}, extra: newPwd + "!"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrFn != nil:
				assert.True(t, tt.wantErrFn(err), "unexpected error: %v", err)
			default:
				require.NoError(t, err)
				refreshed, err := env.AccountSvc.GetByID(context.Background(), acc.ID)
				require.NoError(t, err)
				assert.False(t, bytes.Equal(refreshed.PasswordHash, acc.PasswordHash), "failed to update new password")
				assert.NoError(t, refreshed.CheckPassword(pwd))
			}
		})
	}
}
