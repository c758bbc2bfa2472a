// Package access holds the single capability check consulted before every mutating or listing operation.
package access

import (
	"fmt"

	"github.com/pkg/errors"
)

// Role is the kind of account acting on the engine.
type Role string

const (
	// RoleNone is the role of an account that has no profile yet.
	RoleNone       Role = ""
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleModerator  Role = "moderator"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleInstructor || r == RoleModerator
}

func (r Role) String() string {
	if r == RoleNone {
		return "none"
	}
	return string(r)
}

// Actor is the account on whose behalf an operation runs.
// It is always passed explicitly, never looked up mid-operation.
type Actor struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	Approved bool   `json:"is_approved"`
}

type Action string

const (
	ActionCreateCourse      Action = "create course"
	ActionEditCourse        Action = "edit course"
	ActionDeleteCourse      Action = "delete course"
	ActionAddLesson         Action = "add lesson"
	ActionAddAssignment     Action = "add assignment"
	ActionRequestEnrollment Action = "request enrollment"
	ActionApproveEnrollment Action = "approve enrollment"
	ActionRemoveEnrollment  Action = "remove enrollment"
	ActionViewEnrollments   Action = "view enrollments"
	ActionCompleteLesson    Action = "complete lesson"
	ActionApproveAccount    Action = "approve account"
	ActionRevokeAccount     Action = "revoke account"
	ActionSubmitAssignment  Action = "submit assignment"
	ActionViewSubmissions   Action = "view submissions"
	ActionGradeSubmission   Action = "grade submission"
	ActionViewProgress      Action = "view progress"
)

// Resource identifies who owns the record an action targets:
// the course owner for course scoped actions, the enrolled student for completion tracking.
type Resource struct {
	OwnerID string
}

func Owned(ownerID string) Resource {
	return Resource{OwnerID: ownerID}
}

// Reason says why an action was denied.
type Reason string

const (
	NotOwner    Reason = "not_owner"
	NotApproved Reason = "not_approved"
	WrongRole   Reason = "wrong_role"
)

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func Allow() Decision              { return Decision{Allowed: true} }
func Deny(reason Reason) Decision { return Decision{Reason: reason} }

// Err converts the decision to an *AuthorizationError if not allowed.
func (d Decision) Err(action Action) error {
	if d.Allowed {
		return nil
	}
	return &AuthorizationError{Action: action, Reason: d.Reason}
}

// AuthorizationError is returned when an actor lacks the role, approval or ownership an action requires.
type AuthorizationError struct {
	Action Action
	Reason Reason
}

func (err AuthorizationError) Error() string {
	return fmt.Sprintf("not allowed to %s: %s", err.Action, err.Reason)
}

// AsAuthorizationError returns the *AuthorizationError in err's chain, if any.
func AsAuthorizationError(err error) (*AuthorizationError, bool) {
	var authErr *AuthorizationError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

// Authorize decides whether actor may perform action on res.
func Authorize(actor Actor, action Action, res Resource) Decision {
	switch action {
	case ActionCreateCourse:
		if d := requireRole(actor, RoleInstructor); !d.Allowed {
			return d
		}
		if !actor.Approved {
			return Deny(NotApproved)
		}
		return Allow()

	case ActionEditCourse, ActionDeleteCourse,
		ActionAddLesson, ActionAddAssignment,
		ActionApproveEnrollment, ActionRemoveEnrollment, ActionViewEnrollments,
		ActionViewSubmissions, ActionGradeSubmission:
		return requireOwner(actor, res)

	case ActionApproveAccount, ActionRevokeAccount:
		return requireRole(actor, RoleModerator)

	case ActionSubmitAssignment, ActionRequestEnrollment:
		return requireRole(actor, RoleStudent)

	case ActionCompleteLesson, ActionViewProgress:
		if d := requireRole(actor, RoleStudent); !d.Allowed {
			return d
		}
		return requireOwner(actor, res)
	}

	// unknown actions are never allowed
	return Deny(WrongRole)
}

// Check is a shortcut for Authorize(actor, action, res).Err(action).
func Check(actor Actor, action Action, res Resource) error {
	return Authorize(actor, action, res).Err(action)
}

func requireRole(actor Actor, role Role) Decision {
	if actor.Role != role {
		return Deny(WrongRole)
	}
	return Allow()
}

func requireOwner(actor Actor, res Resource) Decision {
	if actor.ID == "" || actor.ID != res.OwnerID {
		return Deny(NotOwner)
	}
	return Allow()
}
