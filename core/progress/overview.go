package progress

import (
	"context"
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/minimoodle/core/access"
	"github.com/trezcool/minimoodle/core/course"
	"github.com/trezcool/minimoodle/core/enrollment"
	"github.com/trezcool/minimoodle/core/submission"
)

// Snapshot is one enrollment with the course data it is measured against.
type Snapshot struct {
	Enrollment  enrollment.Enrollment
	Course      course.Course
	Lessons     []course.Lesson
	Assignments []course.Assignment
}

func (s Snapshot) Active(now time.Time) bool {
	return enrollment.IsActive(s.Enrollment, s.Course, now)
}

// PendingAssignments returns the assignments of active enrollments the student has not submitted, distinct by id.
// submitted holds the ids of the assignments the student already submitted.
func PendingAssignments(snaps []Snapshot, submitted map[string]bool, now time.Time) []course.Assignment {
	seen := make(map[string]bool)
	pending := make([]course.Assignment, 0)
	for _, s := range snaps {
		if !s.Active(now) {
			continue
		}
		for _, a := range s.Assignments {
			if a.CourseID != s.Course.ID || submitted[a.ID] || seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			pending = append(pending, a)
		}
	}
	return pending
}

func PendingAssignmentCount(snaps []Snapshot, submitted map[string]bool, now time.Time) int {
	return len(PendingAssignments(snaps, submitted, now))
}

// TotalRemainingLessons sums the lessons left over active enrollments.
func TotalRemainingLessons(snaps []Snapshot, now time.Time) int {
	var n int
	for _, s := range snaps {
		if s.Active(now) {
			n += RemainingLessons(s.Enrollment, s.Lessons)
		}
	}
	return n
}

type EnrollmentSummary struct {
	EnrollmentID     string           `json:"enrollment_id"`
	CourseID         string           `json:"course_id"`
	CourseTitle      string           `json:"course_title"`
	State            enrollment.State `json:"state"`
	Active           bool             `json:"active"`
	EnrolledAt       time.Time        `json:"enrolled_at"`
	AccessExpiry     time.Time        `json:"access_expiry"`
	DaysUntilExpiry  int              `json:"days_until_expiry"`
	Progress         int              `json:"progress"`
	CompletedLessons int              `json:"completed_lessons"`
	RemainingLessons int              `json:"remaining_lessons"`
}

type PendingAssignment struct {
	course.Assignment
	CourseTitle  string    `json:"course_title"`
	DueDate      time.Time `json:"due_date"`
	DaysUntilDue int       `json:"days_until_due"`
}

// Overview is a student's dashboard. Totals only cover active enrollments.
type Overview struct {
	StudentID              string              `json:"student_id"`
	Enrollments            []EnrollmentSummary `json:"enrollments"`
	PendingAssignments     []PendingAssignment `json:"pending_assignments"`
	ActiveEnrollments      int                 `json:"active_enrollments"`
	PendingAssignmentCount int                 `json:"pending_assignment_count"`
	TotalRemainingLessons  int                 `json:"total_remaining_lessons"`
}

type (
	Enrollments interface {
		ForStudent(ctx context.Context, studentID string) ([]enrollment.Enrollment, error)
	}

	Courses interface {
		GetCourse(ctx context.Context, id string) (course.Course, error)
		QueryLessons(ctx context.Context, courseID string) ([]course.Lesson, error)
		QueryAssignments(ctx context.Context, courseIDs ...string) ([]course.Assignment, error)
	}

	Submissions interface {
		ForStudent(ctx context.Context, studentID string, assignmentIDs ...string) ([]submission.Submission, error)
	}
)

type Service struct {
	enrollments Enrollments
	courses     Courses
	submissions Submissions
}

func NewService(enrollments Enrollments, courses Courses, submissions Submissions) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(enrollments, "enrollments"),
		vala.IsNotNil(courses, "courses"),
		vala.IsNotNil(submissions, "submissions"),
	).CheckAndPanic()

	return &Service{enrollments: enrollments, courses: courses, submissions: submissions}
}

// Snapshots loads every enrollment of a student with its course data.
func (svc *Service) Snapshots(ctx context.Context, studentID string) ([]Snapshot, error) {
	enrs, err := svc.enrollments.ForStudent(ctx, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "finding enrollments")
	}

	snaps := make([]Snapshot, 0, len(enrs))
	for _, e := range enrs {
		c, err := svc.courses.GetCourse(ctx, e.CourseID)
		if err != nil {
			return nil, errors.Wrap(err, "finding course")
		}
		lessons, err := svc.courses.QueryLessons(ctx, c.ID)
		if err != nil {
			return nil, errors.Wrap(err, "finding lessons")
		}
		assignments, err := svc.courses.QueryAssignments(ctx, c.ID)
		if err != nil {
			return nil, errors.Wrap(err, "finding assignments")
		}
		snaps = append(snaps, Snapshot{Enrollment: e, Course: c, Lessons: lessons, Assignments: assignments})
	}
	return snaps, nil
}

func (svc *Service) Overview(ctx context.Context, studentID string, now time.Time) (Overview, error) {
	snaps, err := svc.Snapshots(ctx, studentID)
	if err != nil {
		return Overview{}, err
	}
	subs, err := svc.submissions.ForStudent(ctx, studentID)
	if err != nil {
		return Overview{}, errors.Wrap(err, "finding submissions")
	}
	submitted := make(map[string]bool, len(subs))
	for _, s := range subs {
		submitted[s.AssignmentID] = true
	}
	return buildOverview(studentID, snaps, submitted, now), nil
}

// Dashboard is the Overview of the acting student.
func (svc *Service) Dashboard(ctx context.Context, actor access.Actor, now time.Time) (Overview, error) {
	if err := access.Check(actor, access.ActionViewProgress, access.Owned(actor.ID)); err != nil {
		return Overview{}, err
	}
	return svc.Overview(ctx, actor.ID, now)
}

func buildOverview(studentID string, snaps []Snapshot, submitted map[string]bool, now time.Time) Overview {
	ov := Overview{
		StudentID:          studentID,
		Enrollments:        make([]EnrollmentSummary, 0, len(snaps)),
		PendingAssignments: make([]PendingAssignment, 0),
	}

	titles := make(map[string]string, len(snaps))
	byCourse := make(map[string]enrollment.Enrollment, len(snaps))
	for _, s := range snaps {
		e, c := s.Enrollment, s.Course
		days, _ := enrollment.DaysUntilExpiry(&e, &c, now)
		active := s.Active(now)
		if active {
			ov.ActiveEnrollments++
		}
		titles[c.ID] = c.Title
		byCourse[c.ID] = e

		ov.Enrollments = append(ov.Enrollments, EnrollmentSummary{
			EnrollmentID:     e.ID,
			CourseID:         c.ID,
			CourseTitle:      c.Title,
			State:            e.State(),
			Active:           active,
			EnrolledAt:       e.EnrolledAt,
			AccessExpiry:     enrollment.AccessExpiry(e, c),
			DaysUntilExpiry:  days,
			Progress:         LessonProgress(e, s.Lessons),
			CompletedLessons: CompletedCount(e, s.Lessons),
			RemainingLessons: RemainingLessons(e, s.Lessons),
		})
	}

	for _, a := range PendingAssignments(snaps, submitted, now) {
		e := byCourse[a.CourseID]
		due, _ := enrollment.AssignmentDueDate(&e, a)
		days, _ := enrollment.DaysUntil(due, now)
		ov.PendingAssignments = append(ov.PendingAssignments, PendingAssignment{
			Assignment:   a,
			CourseTitle:  titles[a.CourseID],
			DueDate:      due,
			DaysUntilDue: days,
		})
	}
	sort.SliceStable(ov.PendingAssignments, func(i, j int) bool {
		return ov.PendingAssignments[i].DueDate.Before(ov.PendingAssignments[j].DueDate)
	})

	ov.PendingAssignmentCount = len(ov.PendingAssignments)
	ov.TotalRemainingLessons = TotalRemainingLessons(snaps, now)
	return ov
}
