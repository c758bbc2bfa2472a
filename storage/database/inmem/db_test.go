package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/account"
	"github.com/trezcool/minimoodle/core/course"
	"github.com/trezcool/minimoodle/core/enrollment"
	"github.com/trezcool/minimoodle/core/submission"
)

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(NewDB())

	acc, err := repo.CreateAccount(ctx, account.Account{Username: "jane", Email: "jane@test.cd", Profile: account.StudentProfile{}})
	require.NoError(t, err)
	assert.NotEmpty(t, acc.ID)

	_, err = repo.CreateAccount(ctx, account.Account{Username: "jane", Email: "other@test.cd"})
	assert.Equal(t, account.ErrUsernameExists, err)
	assert.Equal(t, account.ErrEmailExists, repo.CheckUniqueness(ctx, "bob", "jane@test.cd"))
	assert.NoError(t, repo.CheckUniqueness(ctx, "jane", "jane@test.cd", acc.ID))

	byEmail, err := repo.GetAccount(ctx, account.GetFilter{UsernameOrEmail: "jane@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, acc.ID, byEmail.ID)
	_, err = repo.GetAccount(ctx, account.GetFilter{})
	assert.True(t, core.IsNotFound(err))

	_, err = repo.UpdateAccount(ctx, acc.ID, func(acc *account.Account) error {
		acc.Name = "changed"
		return assert.AnError
	})
	assert.Equal(t, assert.AnError, err)
	unchanged, err := repo.GetAccount(ctx, account.GetFilter{ID: acc.ID})
	require.NoError(t, err)
	assert.Empty(t, unchanged.Name)
}

func TestEnrollmentRepository_isolation(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	courses := NewCourseRepository(db)
	repo := NewEnrollmentRepository(db)

	c, err := courses.CreateCourse(ctx, course.Course{OwnerID: "i1", Title: "Go", DurationDays: 30, MaxStudents: 3})
	require.NoError(t, err)

	e, created, err := repo.GetOrCreateEnrollment(ctx, enrollment.Enrollment{StudentID: "s1", CourseID: c.ID, EnrolledAt: time.Now()})
	require.NoError(t, err)
	require.True(t, created)

	// returned values do not alias the stored row
	e.Complete("l1")
	stored, err := repo.GetEnrollment(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.CompletedLessons)

	_, err = repo.UpdateEnrollment(ctx, e.ID, func(e *enrollment.Enrollment, seats enrollment.Seats) error {
		assert.Equal(t, enrollment.Seats{Capacity: 3, Pending: 1}, seats)
		e.StudentID = "someone else"
		e.Complete("l1")
		return nil
	})
	require.NoError(t, err)
	stored, err = repo.FindEnrollment(ctx, "s1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"l1"}, stored.CompletedLessons)

	_, _, err = repo.GetOrCreateEnrollment(ctx, enrollment.Enrollment{StudentID: "s1", CourseID: "nope"})
	assert.True(t, core.IsNotFoundEntity(err, course.Entity))
}

func TestCourseRepository_DeleteCourse(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	courses := NewCourseRepository(db)
	enrollments := NewEnrollmentRepository(db)
	submissions := NewSubmissionRepository(db)

	c, err := courses.CreateCourse(ctx, course.Course{OwnerID: "i1", Title: "Go", DurationDays: 30})
	require.NoError(t, err)
	keep, err := courses.CreateCourse(ctx, course.Course{OwnerID: "i1", Title: "Rust", DurationDays: 30})
	require.NoError(t, err)
	l, err := courses.CreateLesson(ctx, course.Lesson{CourseID: c.ID, Title: "Intro"})
	require.NoError(t, err)
	a, err := courses.CreateAssignment(ctx, course.Assignment{CourseID: c.ID, Title: "Essay", RelativeDueDays: 3})
	require.NoError(t, err)
	kept, err := courses.CreateAssignment(ctx, course.Assignment{CourseID: keep.ID, Title: "Essay", RelativeDueDays: 3})
	require.NoError(t, err)
	_, _, err = enrollments.GetOrCreateEnrollment(ctx, enrollment.Enrollment{StudentID: "s1", CourseID: c.ID})
	require.NoError(t, err)
	_, err = submissions.CreateSubmission(ctx, submission.Submission{AssignmentID: a.ID, StudentID: "s1"})
	require.NoError(t, err)
	_, err = submissions.CreateSubmission(ctx, submission.Submission{AssignmentID: kept.ID, StudentID: "s1"})
	require.NoError(t, err)

	require.NoError(t, courses.DeleteCourse(ctx, c.ID))
	assert.True(t, core.IsNotFound(courses.DeleteCourse(ctx, c.ID)))

	_, err = courses.GetLesson(ctx, l.ID)
	assert.True(t, core.IsNotFoundEntity(err, course.LessonEntity))
	_, err = courses.GetAssignment(ctx, a.ID)
	assert.True(t, core.IsNotFoundEntity(err, course.AssignmentEntity))
	enrs, err := enrollments.QueryEnrollments(ctx, enrollment.QueryFilter{StudentID: "s1"})
	require.NoError(t, err)
	assert.Empty(t, enrs)
	subs, err := submissions.QuerySubmissions(ctx, submission.QueryFilter{StudentID: "s1"})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, kept.ID, subs[0].AssignmentID)
}
