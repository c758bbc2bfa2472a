package enrollment

import (
	"sort"
	"time"

	"github.com/trezcool/minimoodle/core/access"
	"github.com/trezcool/minimoodle/core/course"
	"github.com/trezcool/minimoodle/core/window"
)

const Entity = "enrollment"

// State is the position of an enrollment in the approval lifecycle.
// REMOVED enrollments are deleted, so stored enrollments are only ever pending or approved.
type State string

const (
	StateRequested State = "requested"
	StatePending   State = "pending"
	StateApproved  State = "approved"
	StateRemoved   State = "removed"
)

type Enrollment struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	CourseID   string    `json:"course_id"`
	EnrolledAt time.Time `json:"enrolled_at"` // UTC
	IsApproved bool      `json:"is_approved"`
	// ApprovedAt is set on first approval.
	ApprovedAt time.Time `json:"approved_at"` // UTC
	// CompletedLessons holds lesson ids, sorted and unique.
	CompletedLessons []string `json:"completed_lessons"`
}

func (e Enrollment) State() State {
	if e.IsApproved {
		return StateApproved
	}
	return StatePending
}

// Resource is the target of completion tracking: owned by the enrolled student.
func (e Enrollment) Resource() access.Resource {
	return access.Owned(e.StudentID)
}

func (e Enrollment) HasCompleted(lessonID string) bool {
	i := sort.SearchStrings(e.CompletedLessons, lessonID)
	return i < len(e.CompletedLessons) && e.CompletedLessons[i] == lessonID
}

// Complete adds lessonID to the completed lessons. It reports whether the set changed.
func (e *Enrollment) Complete(lessonID string) bool {
	i := sort.SearchStrings(e.CompletedLessons, lessonID)
	if i < len(e.CompletedLessons) && e.CompletedLessons[i] == lessonID {
		return false
	}
	e.CompletedLessons = append(e.CompletedLessons, "")
	copy(e.CompletedLessons[i+1:], e.CompletedLessons[i:])
	e.CompletedLessons[i] = lessonID
	return true
}

// Uncomplete removes lessonID from the completed lessons. It reports whether the set changed.
func (e *Enrollment) Uncomplete(lessonID string) bool {
	i := sort.SearchStrings(e.CompletedLessons, lessonID)
	if i >= len(e.CompletedLessons) || e.CompletedLessons[i] != lessonID {
		return false
	}
	e.CompletedLessons = append(e.CompletedLessons[:i], e.CompletedLessons[i+1:]...)
	return true
}

// Seats counts a course's enrollments at the time of a transition.
type Seats struct {
	Capacity int `json:"capacity"` // 0 is unlimited
	Approved int `json:"approved"`
	Pending  int `json:"pending"`
}

func (s Seats) Full() bool {
	return s.Capacity > 0 && s.Approved >= s.Capacity
}

type QueryFilter struct {
	StudentID string
	CourseIDs []string
	Approved  *bool
}

func (qf QueryFilter) Match(e Enrollment) bool {
	if qf.StudentID != "" && e.StudentID != qf.StudentID {
		return false
	}
	if qf.Approved != nil && e.IsApproved != *qf.Approved {
		return false
	}
	if qf.CourseIDs != nil {
		for _, id := range qf.CourseIDs {
			if id == e.CourseID {
				return true
			}
		}
		return false
	}
	return true
}

// AccessExpiry is the end of e's access window in c. Past expiries are valid results.
func AccessExpiry(e Enrollment, c course.Course) time.Time {
	return window.Expiry(e.EnrolledAt, c.DurationDays)
}

// DaysUntilExpiry returns the whole days left in e's access window, negative once expired.
// It is undefined (ok is false) when either record is missing or they do not belong together.
func DaysUntilExpiry(e *Enrollment, c *course.Course, now time.Time) (days int, ok bool) {
	if e == nil || c == nil || e.CourseID != c.ID {
		return 0, false
	}
	return window.DaysUntil(AccessExpiry(*e, *c), now), true
}

// IsActive reports whether e grants access to c at now: approved and not expired.
func IsActive(e Enrollment, c course.Course, now time.Time) bool {
	return e.IsApproved && e.CourseID == c.ID && window.Open(AccessExpiry(e, c), now)
}

// AssignmentDueDate is a's deadline for the student enrolled through e.
// It is undefined (ok is false) without an enrollment in the assignment's course.
func AssignmentDueDate(e *Enrollment, a course.Assignment) (due time.Time, ok bool) {
	if e == nil || e.CourseID != a.CourseID {
		return time.Time{}, false
	}
	return window.DueDate(e.EnrolledAt, a.RelativeDueDays), true
}

// DaysUntil returns the whole days left until due, negative once passed. A zero due date is undefined.
func DaysUntil(due, now time.Time) (days int, ok bool) {
	if due.IsZero() {
		return 0, false
	}
	return window.DaysUntil(due, now), true
}
