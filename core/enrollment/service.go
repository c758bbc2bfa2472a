package enrollment

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/access"
	"github.com/trezcool/minimoodle/core/course"
)

var ErrCourseFull = errors.New("course has no seats left")

type Repository interface {
	// GetOrCreateEnrollment returns the enrollment of e.StudentID in e.CourseID, storing e if there is none yet.
	// created reports whether e was stored.
	GetOrCreateEnrollment(ctx context.Context, e Enrollment) (enr Enrollment, created bool, err error)
	GetEnrollment(ctx context.Context, id string) (Enrollment, error)
	FindEnrollment(ctx context.Context, studentID, courseID string) (Enrollment, error)
	QueryEnrollments(ctx context.Context, filter QueryFilter) ([]Enrollment, error)
	// UpdateEnrollment runs fn on the stored enrollment and saves the result, atomically.
	// seats counts the enrollments of the same course, as seen inside the transaction.
	UpdateEnrollment(ctx context.Context, id string, fn func(e *Enrollment, seats Seats) error) (Enrollment, error)
	DeleteEnrollment(ctx context.Context, id string) error
	CountSeats(ctx context.Context, courseID string) (Seats, error)
}

// CourseReader is the part of the course catalogue enrollments depend on.
type CourseReader interface {
	GetCourse(ctx context.Context, id string) (course.Course, error)
	QueryCourses(ctx context.Context, filter course.QueryFilter) ([]course.Course, error)
	GetLesson(ctx context.Context, id string) (course.Lesson, error)
}

// InactiveError is returned when an operation needs an active enrollment
// and the enrollment is still pending or its access window has closed.
type InactiveError struct {
	EnrollmentID string
	State        State
	Expiry       time.Time
}

func (err InactiveError) Error() string {
	if err.State != StateApproved {
		return "enrollment is " + string(err.State)
	}
	return "course access expired on " + err.Expiry.Format(time.RFC3339)
}

func AsInactiveError(err error) (*InactiveError, bool) {
	var iErr *InactiveError
	if errors.As(err, &iErr) {
		return iErr, true
	}
	return nil, false
}

type Service struct {
	repo    Repository
	courses CourseReader
	log     core.Logger
}

func NewService(repo Repository, courses CourseReader, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(courses, "courses"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{repo: repo, courses: courses, log: logger}
}

// Request enrolls a student in a course, pending the instructor's approval.
// Requesting again returns the existing enrollment, whatever its state, with created false.
func (svc *Service) Request(ctx context.Context, actor access.Actor, courseID string, now time.Time) (e Enrollment, created bool, err error) {
	if err := access.Check(actor, access.ActionRequestEnrollment, access.Resource{}); err != nil {
		return Enrollment{}, false, err
	}
	c, err := svc.courses.GetCourse(ctx, courseID)
	if err != nil {
		return Enrollment{}, false, err
	}

	e, created, err = svc.repo.GetOrCreateEnrollment(ctx, Enrollment{
		StudentID:  actor.ID,
		CourseID:   c.ID,
		EnrolledAt: now.UTC(),
	})
	if err != nil {
		return Enrollment{}, false, errors.Wrap(err, "requesting enrollment")
	}
	if created {
		svc.log.Info("enrollment requested", map[string]interface{}{"enrollment": e.ID, "course": c.ID, "student": actor.ID})
	}
	return e, created, nil
}

// ownedEnrollment loads an enrollment and checks that actor owns its course.
func (svc *Service) ownedEnrollment(ctx context.Context, actor access.Actor, action access.Action, id string) (Enrollment, course.Course, error) {
	e, err := svc.repo.GetEnrollment(ctx, id)
	if err != nil {
		return Enrollment{}, course.Course{}, err
	}
	c, err := svc.courses.GetCourse(ctx, e.CourseID)
	if err != nil {
		return Enrollment{}, course.Course{}, errors.Wrap(err, "finding enrollment course")
	}
	if err := access.Check(actor, action, c.Resource()); err != nil {
		return Enrollment{}, course.Course{}, err
	}
	return e, c, nil
}

// Approve grants the student access to the course. Approving an approved enrollment is a no-op.
// A course with MaxStudents set rejects approvals once its seats are taken.
func (svc *Service) Approve(ctx context.Context, actor access.Actor, id string, now time.Time) (Enrollment, error) {
	if _, _, err := svc.ownedEnrollment(ctx, actor, access.ActionApproveEnrollment, id); err != nil {
		return Enrollment{}, err
	}

	var approved bool
	e, err := svc.repo.UpdateEnrollment(ctx, id, func(e *Enrollment, seats Seats) error {
		if e.IsApproved {
			return nil
		}
		if seats.Full() {
			return core.NewValidationError(ErrCourseFull, core.FieldError{Field: "max_students", Error: ErrCourseFull.Error()})
		}
		e.IsApproved = true
		if e.ApprovedAt.IsZero() {
			e.ApprovedAt = now.UTC()
		}
		approved = true
		return nil
	})
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "approving enrollment")
	}
	if approved {
		svc.log.Info("enrollment approved", map[string]interface{}{"enrollment": e.ID, "course": e.CourseID, "instructor": actor.ID})
	}
	return e, nil
}

// Remove deletes the enrollment and its completed lessons. The student may request again afterwards.
func (svc *Service) Remove(ctx context.Context, actor access.Actor, id string) error {
	e, _, err := svc.ownedEnrollment(ctx, actor, access.ActionRemoveEnrollment, id)
	if err != nil {
		return err
	}
	if err := svc.repo.DeleteEnrollment(ctx, id); err != nil {
		return errors.Wrap(err, "removing enrollment")
	}
	svc.log.Info("enrollment removed", map[string]interface{}{"enrollment": e.ID, "course": e.CourseID, "instructor": actor.ID})
	return nil
}

func (svc *Service) Get(ctx context.Context, id string) (Enrollment, error) {
	return svc.repo.GetEnrollment(ctx, id)
}

// Find returns the enrollment of a student in a course, or a *core.NotFoundError.
func (svc *Service) Find(ctx context.Context, studentID, courseID string) (Enrollment, error) {
	return svc.repo.FindEnrollment(ctx, studentID, courseID)
}

func (svc *Service) ForStudent(ctx context.Context, studentID string) ([]Enrollment, error) {
	return svc.repo.QueryEnrollments(ctx, QueryFilter{StudentID: studentID})
}

// CourseEnrollments lists every enrollment of a course to its owner.
func (svc *Service) CourseEnrollments(ctx context.Context, actor access.Actor, courseID string) ([]Enrollment, error) {
	c, err := svc.courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := access.Check(actor, access.ActionViewEnrollments, c.Resource()); err != nil {
		return nil, err
	}
	return svc.repo.QueryEnrollments(ctx, QueryFilter{CourseIDs: []string{c.ID}})
}

// PendingRequests lists the enrollments waiting for actor's approval across all of actor's courses.
func (svc *Service) PendingRequests(ctx context.Context, actor access.Actor) ([]Enrollment, error) {
	if err := access.Check(actor, access.ActionViewEnrollments, access.Owned(actor.ID)); err != nil {
		return nil, err
	}
	courses, err := svc.courses.QueryCourses(ctx, course.QueryFilter{OwnerID: actor.ID})
	if err != nil {
		return nil, errors.Wrap(err, "finding instructor courses")
	}
	if len(courses) == 0 {
		return []Enrollment{}, nil
	}
	ids := make([]string, 0, len(courses))
	for _, c := range courses {
		ids = append(ids, c.ID)
	}
	approved := false
	return svc.repo.QueryEnrollments(ctx, QueryFilter{CourseIDs: ids, Approved: &approved})
}

func (svc *Service) Seats(ctx context.Context, courseID string) (Seats, error) {
	if _, err := svc.courses.GetCourse(ctx, courseID); err != nil {
		return Seats{}, err
	}
	return svc.repo.CountSeats(ctx, courseID)
}

// Active returns the student's enrollment in a course and the course itself,
// or an *InactiveError if the enrollment does not grant access at now.
func (svc *Service) Active(ctx context.Context, studentID, courseID string, now time.Time) (Enrollment, course.Course, error) {
	c, err := svc.courses.GetCourse(ctx, courseID)
	if err != nil {
		return Enrollment{}, course.Course{}, err
	}
	e, err := svc.repo.FindEnrollment(ctx, studentID, courseID)
	if err != nil {
		return Enrollment{}, course.Course{}, err
	}
	if err := checkActive(e, c, now); err != nil {
		return Enrollment{}, course.Course{}, err
	}
	return e, c, nil
}

func checkActive(e Enrollment, c course.Course, now time.Time) error {
	if IsActive(e, c, now) {
		return nil
	}
	return &InactiveError{EnrollmentID: e.ID, State: e.State(), Expiry: AccessExpiry(e, c)}
}

// CompleteLesson marks a lesson of the enrollment's course as completed. It needs an active enrollment.
func (svc *Service) CompleteLesson(ctx context.Context, actor access.Actor, enrollmentID, lessonID string, now time.Time) (Enrollment, error) {
	return svc.trackLesson(ctx, actor, enrollmentID, lessonID, now, (*Enrollment).Complete)
}

func (svc *Service) UncompleteLesson(ctx context.Context, actor access.Actor, enrollmentID, lessonID string, now time.Time) (Enrollment, error) {
	return svc.trackLesson(ctx, actor, enrollmentID, lessonID, now, (*Enrollment).Uncomplete)
}

func (svc *Service) trackLesson(ctx context.Context, actor access.Actor, enrollmentID, lessonID string, now time.Time, mark func(e *Enrollment, lessonID string) bool) (Enrollment, error) {
	e, err := svc.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return Enrollment{}, err
	}
	if err := access.Check(actor, access.ActionCompleteLesson, e.Resource()); err != nil {
		return Enrollment{}, err
	}
	l, err := svc.courses.GetLesson(ctx, lessonID)
	if err != nil {
		return Enrollment{}, err
	}
	if l.CourseID != e.CourseID {
		return Enrollment{}, core.NewNotFoundError(course.LessonEntity, lessonID)
	}
	c, err := svc.courses.GetCourse(ctx, e.CourseID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "finding enrollment course")
	}

	e, err = svc.repo.UpdateEnrollment(ctx, enrollmentID, func(e *Enrollment, _ Seats) error {
		if err := checkActive(*e, c, now); err != nil {
			return err
		}
		mark(e, l.ID)
		return nil
	})
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "tracking lesson")
	}
	return e, nil
}

// DueDate is the due date of a for the student, derived from the student's enrollment date.
// ok is false when the student is not enrolled in the assignment's course.
func (svc *Service) DueDate(ctx context.Context, studentID string, a course.Assignment) (due time.Time, ok bool, err error) {
	e, err := svc.repo.FindEnrollment(ctx, studentID, a.CourseID)
	if err != nil {
		if core.IsNotFoundEntity(err, Entity) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	due, ok = AssignmentDueDate(&e, a)
	return due, ok, nil
}
