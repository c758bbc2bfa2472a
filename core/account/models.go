package account

import (
	"encoding/json"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/access"
)

// State is the position of an account in the approval lifecycle.
type State string

const (
	// StateRegistered is an account whose profile has not been created yet.
	StateRegistered      State = "registered"
	StatePendingApproval State = "pending_approval"
	StateActive          State = "active"
	// StateRevoked is an instructor that was approved once and has since been removed by a moderator.
	StateRevoked State = "revoked"
)

// Profile is the role-specific extension of an Account.
// Exactly one of StudentProfile, InstructorProfile or ModeratorProfile.
type Profile interface {
	Role() access.Role
	isProfile()
}

type StudentProfile struct{}

type InstructorProfile struct {
	Approved     bool
	EverApproved bool
}

type ModeratorProfile struct{}

func (StudentProfile) Role() access.Role    { return access.RoleStudent }
func (InstructorProfile) Role() access.Role { return access.RoleInstructor }
func (ModeratorProfile) Role() access.Role  { return access.RoleModerator }

func (StudentProfile) isProfile()    {}
func (InstructorProfile) isProfile() {}
func (ModeratorProfile) isProfile()  {}

// ProfileFrom rebuilds a Profile from its stored columns. An unknown role yields no profile.
func ProfileFrom(role access.Role, approved, everApproved bool) Profile {
	switch role {
	case access.RoleStudent:
		return StudentProfile{}
	case access.RoleInstructor:
		return InstructorProfile{Approved: approved, EverApproved: everApproved || approved}
	case access.RoleModerator:
		return ModeratorProfile{}
	}
	return nil
}

type Account struct {
	ID           string
	Name         string
	Username     string
	Email        string
	Department   string
	Profile      Profile
	PasswordHash []byte
	CreatedAt    time.Time // UTC
	UpdatedAt    time.Time // UTC
	LastLogin    time.Time // UTC
}

func (a Account) Role() access.Role {
	if a.Profile == nil {
		return access.RoleNone
	}
	return a.Profile.Role()
}

// IsApproved is true for students and moderators, and for instructors a moderator approved.
func (a Account) IsApproved() bool {
	switch p := a.Profile.(type) {
	case StudentProfile, ModeratorProfile:
		return true
	case InstructorProfile:
		return p.Approved
	}
	return false
}

func (a Account) EverApproved() bool {
	if p, ok := a.Profile.(InstructorProfile); ok {
		return p.EverApproved
	}
	return a.IsApproved()
}

func (a Account) State() State {
	switch p := a.Profile.(type) {
	case StudentProfile, ModeratorProfile:
		return StateActive
	case InstructorProfile:
		if p.Approved {
			return StateActive
		}
		if p.EverApproved {
			return StateRevoked
		}
		return StatePendingApproval
	}
	return StateRegistered
}

// Actor is the access.Actor acting on behalf of this account.
func (a Account) Actor() access.Actor {
	return access.Actor{ID: a.ID, Role: a.Role(), Approved: a.IsApproved()}
}

func (a Account) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID         string      `json:"id"`
		Name       string      `json:"name"`
		Username   string      `json:"username"`
		Email      string      `json:"email"`
		Department string      `json:"department,omitempty"`
		Role       access.Role `json:"role"`
		IsApproved bool        `json:"is_approved"`
		State      State       `json:"state"`
		CreatedAt  time.Time   `json:"created_at"`
		UpdatedAt  time.Time   `json:"updated_at"`
		LastLogin  *time.Time  `json:"last_login"`
	}{
		ID:         a.ID,
		Name:       a.Name,
		Username:   a.Username,
		Email:      a.Email,
		Department: a.Department,
		Role:       a.Role(),
		IsApproved: a.IsApproved(),
		State:      a.State(),
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
		LastLogin:  timePtr(a.LastLogin),
	})
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (a *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

func (a *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd))
}

// Credentials contains the information needed to register a new Account.
type Credentials struct {
	Name            string `json:"name" validate:"required,notblank,max=150"`
	Username        string `json:"username" validate:"required,min=6,max=150,alphanum_"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (c *Credentials) Clean() {
	c.Name = core.CleanString(c.Name)
	c.Username = core.CleanString(c.Username, true /* lower */)
	c.Email = core.CleanString(c.Email, true /* lower */)
}

type GetFilter struct {
	ID              string
	UsernameOrEmail string
}

type QueryFilter struct {
	Role     access.Role
	Approved *bool
}

func (qf QueryFilter) Match(a Account) bool {
	if qf.Role != access.RoleNone && a.Role() != qf.Role {
		return false
	}
	if qf.Approved != nil && a.IsApproved() != *qf.Approved {
		return false
	}
	return true
}

// ResetPassword is a new password chosen for an existing Account.
type ResetPassword struct {
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	attrs           []string
}
