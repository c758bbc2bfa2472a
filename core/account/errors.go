package account

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/minimoodle/core/access"
)

var (
	ErrInvalidCredentials = errors.New("invalid username/email or password")
	ErrUsernameExists     = errors.New("an account with this username already exists")
	ErrEmailExists        = errors.New("an account with this email already exists")
	ErrNotInstructor      = errors.New("only instructor accounts go through approval")
)

// RoleMismatchError is returned when an account logs in through another role's entry point.
type RoleMismatchError struct {
	Expected access.Role
	Actual   access.Role
}

func (err RoleMismatchError) Error() string {
	return fmt.Sprintf("account is not a %s (found %s)", err.Expected, err.Actual)
}

// PendingApprovalError is returned when an instructor that is not approved tries to log in.
type PendingApprovalError struct {
	AccountID string
	Revoked   bool
}

func (err PendingApprovalError) Error() string {
	if err.Revoked {
		return "instructor account approval was revoked"
	}
	return "instructor account is pending approval"
}

func AsRoleMismatchError(err error) (*RoleMismatchError, bool) {
	var rmErr *RoleMismatchError
	if errors.As(err, &rmErr) {
		return rmErr, true
	}
	return nil, false
}

func AsPendingApprovalError(err error) (*PendingApprovalError, bool) {
	var paErr *PendingApprovalError
	if errors.As(err, &paErr) {
		return paErr, true
	}
	return nil, false
}
