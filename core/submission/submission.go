// Package submission records the work students hand in for assignments and its grading.
package submission

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/access"
	"github.com/trezcool/minimoodle/core/course"
	"github.com/trezcool/minimoodle/core/enrollment"
)

const Entity = "submission"

type Submission struct {
	ID           string    `json:"id"`
	AssignmentID string    `json:"assignment_id"`
	StudentID    string    `json:"student_id"`
	Content      string    `json:"content"`
	SubmittedAt  time.Time `json:"submitted_at"` // UTC
	Grade        *float64  `json:"grade"`
	Feedback     string    `json:"feedback,omitempty"`
	GradedAt     time.Time `json:"graded_at"` // UTC
}

func (s Submission) IsGraded() bool {
	return s.Grade != nil
}

// NewSubmission is the text body of the work or a reference to an external attachment.
type NewSubmission struct {
	Content string `json:"content" validate:"required,notblank"`
}

type Grade struct {
	Grade    *float64 `json:"grade" validate:"required,gte=0,lte=100"`
	Feedback string   `json:"feedback" validate:"max=5000"`
}

type QueryFilter struct {
	AssignmentIDs []string
	StudentID     string
}

func (qf QueryFilter) Match(s Submission) bool {
	if qf.StudentID != "" && s.StudentID != qf.StudentID {
		return false
	}
	if qf.AssignmentIDs != nil {
		for _, id := range qf.AssignmentIDs {
			if id == s.AssignmentID {
				return true
			}
		}
		return false
	}
	return true
}

type Repository interface {
	CreateSubmission(ctx context.Context, s Submission) (Submission, error)
	GetSubmission(ctx context.Context, id string) (Submission, error)
	// QuerySubmissions returns the matching submissions sorted by SubmittedAt.
	QuerySubmissions(ctx context.Context, filter QueryFilter) ([]Submission, error)
	UpdateSubmission(ctx context.Context, id string, fn func(s *Submission) error) (Submission, error)
}

// Enrollments is the part of the enrollment engine submissions depend on.
type Enrollments interface {
	Active(ctx context.Context, studentID, courseID string, now time.Time) (enrollment.Enrollment, course.Course, error)
}

// Assignments looks assignments and their courses up.
type Assignments interface {
	GetAssignment(ctx context.Context, id string) (course.Assignment, error)
	GetCourse(ctx context.Context, id string) (course.Course, error)
}

type Service struct {
	repo        Repository
	assignments Assignments
	enrollments Enrollments
	log         core.Logger
}

func NewService(repo Repository, assignments Assignments, enrollments Enrollments, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(assignments, "assignments"),
		vala.IsNotNil(enrollments, "enrollments"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{repo: repo, assignments: assignments, enrollments: enrollments, log: logger}
}

// Submit hands work in for an assignment. The student needs an active enrollment in the assignment's course.
// Late submissions are accepted.
func (svc *Service) Submit(ctx context.Context, actor access.Actor, assignmentID string, ns NewSubmission, now time.Time) (Submission, error) {
	if err := access.Check(actor, access.ActionSubmitAssignment, access.Resource{}); err != nil {
		return Submission{}, err
	}
	a, err := svc.assignments.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Submission{}, err
	}
	if _, _, err := svc.enrollments.Active(ctx, actor.ID, a.CourseID, now); err != nil {
		return Submission{}, err
	}
	ns.Content = core.CleanString(ns.Content)
	if err := core.Validate.Struct(ns); err != nil {
		return Submission{}, err
	}

	s, err := svc.repo.CreateSubmission(ctx, Submission{
		AssignmentID: a.ID,
		StudentID:    actor.ID,
		Content:      ns.Content,
		SubmittedAt:  now.UTC(),
	})
	if err != nil {
		return Submission{}, errors.Wrap(err, "creating submission")
	}
	svc.log.Info("assignment submitted", map[string]interface{}{"submission": s.ID, "assignment": a.ID, "student": actor.ID})
	return s, nil
}

func (svc *Service) ownedAssignment(ctx context.Context, actor access.Actor, action access.Action, assignmentID string) (course.Assignment, error) {
	a, err := svc.assignments.GetAssignment(ctx, assignmentID)
	if err != nil {
		return course.Assignment{}, err
	}
	c, err := svc.assignments.GetCourse(ctx, a.CourseID)
	if err != nil {
		return course.Assignment{}, errors.Wrap(err, "finding assignment course")
	}
	if err := access.Check(actor, action, c.Resource()); err != nil {
		return course.Assignment{}, err
	}
	return a, nil
}

// List returns the submissions of an assignment to the owner of its course.
func (svc *Service) List(ctx context.Context, actor access.Actor, assignmentID string) ([]Submission, error) {
	a, err := svc.ownedAssignment(ctx, actor, access.ActionViewSubmissions, assignmentID)
	if err != nil {
		return nil, err
	}
	return svc.repo.QuerySubmissions(ctx, QueryFilter{AssignmentIDs: []string{a.ID}})
}

// ForStudent returns the submissions of a student, optionally limited to some assignments.
func (svc *Service) ForStudent(ctx context.Context, studentID string, assignmentIDs ...string) ([]Submission, error) {
	return svc.repo.QuerySubmissions(ctx, QueryFilter{StudentID: studentID, AssignmentIDs: assignmentIDs})
}

// Grade records a grade (0 to 100) and feedback. Grading again overwrites both.
func (svc *Service) Grade(ctx context.Context, actor access.Actor, id string, g Grade, now time.Time) (Submission, error) {
	s, err := svc.repo.GetSubmission(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	if _, err := svc.ownedAssignment(ctx, actor, access.ActionGradeSubmission, s.AssignmentID); err != nil {
		return Submission{}, err
	}
	g.Feedback = core.CleanString(g.Feedback)
	if err := core.Validate.Struct(g); err != nil {
		return Submission{}, err
	}

	s, err = svc.repo.UpdateSubmission(ctx, id, func(s *Submission) error {
		grade := *g.Grade
		s.Grade = &grade
		s.Feedback = g.Feedback
		s.GradedAt = now.UTC()
		return nil
	})
	if err != nil {
		return Submission{}, errors.Wrap(err, "grading submission")
	}
	return s, nil
}
