package account

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/access"
)

// Entity names accounts in core.NotFoundError.
const Entity = "account"

type Repository interface {
	// CheckUniqueness returns ErrUsernameExists or ErrEmailExists if another account,
	// not listed in excludedIDs, already uses uname or email.
	CheckUniqueness(ctx context.Context, uname, email string, excludedIDs ...string) error
	CreateAccount(ctx context.Context, acc Account) (Account, error)
	// GetAccount returns a *core.NotFoundError if no account matches.
	GetAccount(ctx context.Context, filter GetFilter) (Account, error)
	QueryAccounts(ctx context.Context, filter QueryFilter) ([]Account, error)
	// UpdateAccount runs fn on the stored account and saves the result, atomically.
	// Nothing is saved if fn returns an error.
	UpdateAccount(ctx context.Context, id string, fn func(acc *Account) error) (Account, error)
}

type Service struct {
	repo Repository
	log  core.Logger
}

func NewService(repo Repository, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{repo: repo, log: logger}
}

// uniquenessError maps ErrUsernameExists and ErrEmailExists, wrapped or not, to a field *core.ValidationError.
// It returns nil for any other error.
func uniquenessError(err error) *core.ValidationError {
	var field string
	cause := errors.Cause(err)
	switch cause {
	case ErrUsernameExists:
		field = "username"
	case ErrEmailExists:
		field = "email"
	default:
		return nil
	}
	return &core.ValidationError{Err: cause, Fields: []core.FieldError{{Field: field, Error: cause.Error()}}}
}

func (svc *Service) checkUniqueness(ctx context.Context, uname, email string, excludedIDs ...string) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, excludedIDs...); err != nil {
		if vErr := uniquenessError(err); vErr != nil {
			return vErr
		}
		return err
	}
	return nil
}

func (svc *Service) create(ctx context.Context, creds Credentials, department string, profile Profile, now time.Time) (Account, error) {
	creds.Clean()
	if err := core.Validate.Struct(creds); err != nil {
		return Account{}, err
	}
	if err := svc.checkUniqueness(ctx, creds.Username, creds.Email); err != nil {
		return Account{}, err
	}

	now = now.UTC()
	acc := Account{
		Name:       creds.Name,
		Username:   creds.Username,
		Email:      creds.Email,
		Department: core.CleanString(department),
		Profile:    profile,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := acc.SetPassword(creds.Password); err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}

	acc, err := svc.repo.CreateAccount(ctx, acc)
	if err != nil {
		// a concurrent registration can take the username or email after the check
		if vErr := uniquenessError(err); vErr != nil {
			return Account{}, vErr
		}
		return Account{}, errors.Wrap(err, "creating account")
	}
	svc.log.Info("account created", map[string]interface{}{"account": acc.ID, "role": acc.Role(), "state": acc.State()})
	return acc, nil
}

// RegisterStudent creates an ACTIVE student account.
func (svc *Service) RegisterStudent(ctx context.Context, creds Credentials, department string, now time.Time) (Account, error) {
	return svc.create(ctx, creds, department, StudentProfile{}, now)
}

// RegisterInstructor creates an instructor account PENDING_APPROVAL by a moderator.
func (svc *Service) RegisterInstructor(ctx context.Context, creds Credentials, department string, now time.Time) (Account, error) {
	return svc.create(ctx, creds, department, InstructorProfile{}, now)
}

// CreateModerator creates a moderator account. Moderators never register themselves.
func (svc *Service) CreateModerator(ctx context.Context, creds Credentials, now time.Time) (Account, error) {
	return svc.create(ctx, creds, "", ModeratorProfile{}, now)
}

// Approve moves an instructor account to ACTIVE. Approving an active account is a no-op.
func (svc *Service) Approve(ctx context.Context, actor access.Actor, id string, now time.Time) (Account, error) {
	return svc.setApproval(ctx, actor, access.ActionApproveAccount, id, true, now)
}

// Revoke moves an instructor account to REVOKED. It can be approved again later.
func (svc *Service) Revoke(ctx context.Context, actor access.Actor, id string, now time.Time) (Account, error) {
	return svc.setApproval(ctx, actor, access.ActionRevokeAccount, id, false, now)
}

func (svc *Service) setApproval(ctx context.Context, actor access.Actor, action access.Action, id string, approved bool, now time.Time) (Account, error) {
	if err := access.Check(actor, action, access.Resource{}); err != nil {
		return Account{}, err
	}

	acc, err := svc.repo.UpdateAccount(ctx, id, func(acc *Account) error {
		prof, ok := acc.Profile.(InstructorProfile)
		if !ok {
			return core.NewValidationError(ErrNotInstructor, core.FieldError{Field: "role", Error: ErrNotInstructor.Error()})
		}
		if prof.Approved == approved {
			return nil
		}
		prof.Approved = approved
		prof.EverApproved = prof.EverApproved || approved
		acc.Profile = prof
		acc.UpdatedAt = now.UTC()
		return nil
	})
	if err != nil {
		return Account{}, errors.Wrapf(err, "%s %s", action, id)
	}
	svc.log.Info(string(action), map[string]interface{}{"account": acc.ID, "moderator": actor.ID, "state": acc.State()})
	return acc, nil
}

// Authenticate checks the credentials of the account logging in through the entry point of role entry.
// Failures are reported in this order: ErrInvalidCredentials, *RoleMismatchError, *PendingApprovalError.
func (svc *Service) Authenticate(ctx context.Context, usernameOrEmail, pwd string, entry access.Role, now time.Time) (Account, error) {
	acc, err := svc.GetByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		if core.IsNotFound(err) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}
	if err := acc.CheckPassword(pwd); err != nil {
		return Account{}, ErrInvalidCredentials
	}

	if acc.Role() != entry {
		return Account{}, &RoleMismatchError{Expected: entry, Actual: acc.Role()}
	}
	if !acc.IsApproved() {
		return Account{}, &PendingApprovalError{AccountID: acc.ID, Revoked: acc.State() == StateRevoked}
	}

	acc, err = svc.repo.UpdateAccount(ctx, acc.ID, func(acc *Account) error {
		acc.LastLogin = now.UTC()
		return nil
	})
	if err != nil {
		return Account{}, errors.Wrap(err, "recording last login")
	}
	return acc, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (Account, error) {
	uname := core.CleanString(usernameOrEmail, true /* lower */)
	if uname == "" {
		return Account{}, core.NewNotFoundError(Entity, "")
	}
	return svc.repo.GetAccount(ctx, GetFilter{UsernameOrEmail: uname})
}

// PendingInstructors lists the instructor accounts waiting for approval (or re-approval).
func (svc *Service) PendingInstructors(ctx context.Context, actor access.Actor) ([]Account, error) {
	if err := access.Check(actor, access.ActionApproveAccount, access.Resource{}); err != nil {
		return nil, err
	}
	approved := false
	return svc.repo.QueryAccounts(ctx, QueryFilter{Role: access.RoleInstructor, Approved: &approved})
}

// ResetPassword replaces the password of the account identified by usernameOrEmail.
func (svc *Service) ResetPassword(ctx context.Context, usernameOrEmail string, rp ResetPassword, now time.Time) (Account, error) {
	acc, err := svc.GetByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		return Account{}, err
	}
	rp.attrs = []string{acc.Name, acc.Username, acc.Email}
	if err := core.Validate.Struct(rp); err != nil {
		return Account{}, err
	}

	var hashed Account
	if err := hashed.SetPassword(rp.Password); err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}
	acc, err = svc.repo.UpdateAccount(ctx, acc.ID, func(acc *Account) error {
		acc.PasswordHash = hashed.PasswordHash
		acc.UpdatedAt = now.UTC()
		return nil
	})
	if err != nil {
		return Account{}, errors.Wrap(err, "resetting password")
	}
	svc.log.Info("password reset", map[string]interface{}{"account": acc.ID})
	return acc, nil
}
