package enrollment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/access"
	"github.com/trezcool/minimoodle/core/course"
	"github.com/trezcool/minimoodle/core/enrollment"
	"github.com/trezcool/minimoodle/tests"
)

func TestService_Request(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	now := time.Now()

	owner := testutil.CreateInstructor(t, env.Accounts, "owner1", true)
	student := testutil.CreateStudent(t, env.Accounts, "student")
	c := testutil.CreateCourse(t, env.Courses, owner, "Go", 30, 0)

	first, created, err := env.EnrollmentSvc.Request(ctx, student.Actor(), c.ID, now)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, enrollment.StatePending, first.State())
	assert.Equal(t, now.UTC(), first.EnrolledAt)

	second, created, err := env.EnrollmentSvc.Request(ctx, student.Actor(), c.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.EnrolledAt, second.EnrolledAt)

	_, _, err = env.EnrollmentSvc.Request(ctx, owner.Actor(), c.ID, now)
	authErr, ok := access.AsAuthorizationError(err)
	require.True(t, ok)
	assert.Equal(t, access.WrongRole, authErr.Reason)

	_, _, err = env.EnrollmentSvc.Request(ctx, student.Actor(), "nope", now)
	assert.True(t, core.IsNotFoundEntity(err, course.Entity))
}

func TestService_Request_concurrent(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	owner := testutil.CreateInstructor(t, env.Accounts, "owner1", true)
	student := testutil.CreateStudent(t, env.Accounts, "student")
	c := testutil.CreateCourse(t, env.Courses, owner, "Go", 30, 0)

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, _, err := env.EnrollmentSvc.Request(ctx, student.Actor(), c.ID, time.Now())
			if assert.NoError(t, err) {
				ids[i] = e.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	enrs, err := env.EnrollmentSvc.ForStudent(ctx, student.ID)
	require.NoError(t, err)
	assert.Len(t, enrs, 1)
}

func TestService_Approve(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	now := time.Now()

	owner := testutil.CreateInstructor(t, env.Accounts, "owner1", true)
	other := testutil.CreateInstructor(t, env.Accounts, "other1", true)
	student := testutil.CreateStudent(t, env.Accounts, "student")
	c := testutil.CreateCourse(t, env.Courses, owner, "Go", 30, 0)
	e := testutil.CreateEnrollment(t, env.Enrollments, student, c, now, false)

	_, err := env.EnrollmentSvc.Approve(ctx, other.Actor(), e.ID, now)
	authErr, ok := access.AsAuthorizationError(err)
	require.True(t, ok)
	assert.Equal(t, access.NotOwner, authErr.Reason)

	once, err := env.EnrollmentSvc.Approve(ctx, owner.Actor(), e.ID, now)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StateApproved, once.State())
	assert.Equal(t, now.UTC(), once.ApprovedAt)

	twice, err := env.EnrollmentSvc.Approve(ctx, owner.Actor(), e.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, once, twice)

	_, err = env.EnrollmentSvc.Approve(ctx, owner.Actor(), "nope", now)
	assert.True(t, core.IsNotFoundEntity(err, enrollment.Entity))
}

func TestService_Approve_seats(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	now := time.Now()

	owner := testutil.CreateInstructor(t, env.Accounts, "owner1", true)
	c := testutil.CreateCourse(t, env.Courses, owner, "Go", 30, 2)
	s1 := testutil.CreateStudent(t, env.Accounts, "student1")
	s2 := testutil.CreateStudent(t, env.Accounts, "student2")
	s3 := testutil.CreateStudent(t, env.Accounts, "student3")
	e1 := testutil.CreateEnrollment(t, env.Enrollments, s1, c, now, false)
	e2 := testutil.CreateEnrollment(t, env.Enrollments, s2, c, now, false)
	e3 := testutil.CreateEnrollment(t, env.Enrollments, s3, c, now, false)

	_, err := env.EnrollmentSvc.Approve(ctx, owner.Actor(), e1.ID, now)
	require.NoError(t, err)
	_, err = env.EnrollmentSvc.Approve(ctx, owner.Actor(), e2.ID, now)
	require.NoError(t, err)

	_, err = env.EnrollmentSvc.Approve(ctx, owner.Actor(), e3.ID, now)
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "max_students", vErr.Fields[0].Field)

	// approving an approved enrollment does not need a seat
	_, err = env.EnrollmentSvc.Approve(ctx, owner.Actor(), e1.ID, now)
	assert.NoError(t, err)

	seats, err := env.EnrollmentSvc.Seats(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.Seats{Capacity: 2, Approved: 2, Pending: 1}, seats)

	// removing frees a seat
	require.NoError(t, env.EnrollmentSvc.Remove(ctx, owner.Actor(), e1.ID))
	_, err = env.EnrollmentSvc.Approve(ctx, owner.Actor(), e3.ID, now)
	assert.NoError(t, err)
}

func TestService_Remove(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	now := time.Now()

	owner := testutil.CreateInstructor(t, env.Accounts, "owner1", true)
	other := testutil.CreateInstructor(t, env.Accounts, "other1", true)
	student := testutil.CreateStudent(t, env.Accounts, "student")
	c := testutil.CreateCourse(t, env.Courses, owner, "Go", 30, 0)
	e := testutil.CreateEnrollment(t, env.Enrollments, student, c, now, true)

	err := env.EnrollmentSvc.Remove(ctx, other.Actor(), e.ID)
	_, ok := access.AsAuthorizationError(err)
	assert.True(t, ok)

	require.NoError(t, env.EnrollmentSvc.Remove(ctx, owner.Actor(), e.ID))
	_, err = env.EnrollmentSvc.Get(ctx, e.ID)
	assert.True(t, core.IsNotFoundEntity(err, enrollment.Entity))

	// a new request starts over
	again, created, err := env.EnrollmentSvc.Request(ctx, student.Actor(), c.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, e.ID, again.ID)
	assert.False(t, again.IsApproved)
}

func TestService_listings(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	now := time.Now()

	owner := testutil.CreateInstructor(t, env.Accounts, "owner1", true)
	other := testutil.CreateInstructor(t, env.Accounts, "other1", true)
	s1 := testutil.CreateStudent(t, env.Accounts, "student1")
	s2 := testutil.CreateStudent(t, env.Accounts, "student2")
	c1 := testutil.CreateCourse(t, env.Courses, owner, "Go", 30, 0)
	c2 := testutil.CreateCourse(t, env.Courses, owner, "Rust", 30, 0)
	c3 := testutil.CreateCourse(t, env.Courses, other, "Cooking", 30, 0)
	pending1 := testutil.CreateEnrollment(t, env.Enrollments, s1, c1, now, false)
	testutil.CreateEnrollment(t, env.Enrollments, s2, c1, now.Add(time.Minute), true)
	pending2 := testutil.CreateEnrollment(t, env.Enrollments, s2, c2, now.Add(2*time.Minute), false)
	testutil.CreateEnrollment(t, env.Enrollments, s1, c3, now, false)

	pending, err := env.EnrollmentSvc.PendingRequests(ctx, owner.Actor())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, pending1.ID, pending[0].ID)
	assert.Equal(t, pending2.ID, pending[1].ID)

	enrs, err := env.EnrollmentSvc.CourseEnrollments(ctx, owner.Actor(), c1.ID)
	require.NoError(t, err)
	assert.Len(t, enrs, 2)

	_, err = env.EnrollmentSvc.CourseEnrollments(ctx, other.Actor(), c1.ID)
	_, ok := access.AsAuthorizationError(err)
	assert.True(t, ok)

	enrs, err = env.EnrollmentSvc.ForStudent(ctx, s1.ID)
	require.NoError(t, err)
	assert.Len(t, enrs, 2)
}

func TestService_CompleteLesson(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	enrolledAt := time.Date(2021, time.March, 1, 9, 0, 0, 0, time.UTC)
	now := enrolledAt.Add(24 * time.Hour)

	owner := testutil.CreateInstructor(t, env.Accounts, "owner1", true)
	student := testutil.CreateStudent(t, env.Accounts, "student")
	intruder := testutil.CreateStudent(t, env.Accounts, "intruder")
	c := testutil.CreateCourse(t, env.Courses, owner, "Go", 30, 0)
	otherCourse := testutil.CreateCourse(t, env.Courses, owner, "Rust", 30, 0)
	l1 := testutil.CreateLesson(t, env.Courses, c, "Intro", 1)
	l2 := testutil.CreateLesson(t, env.Courses, c, "Types", 2)
	foreign := testutil.CreateLesson(t, env.Courses, otherCourse, "Ownership", 1)
	e := testutil.CreateEnrollment(t, env.Enrollments, student, c, enrolledAt, true)

	e, err := env.EnrollmentSvc.CompleteLesson(ctx, student.Actor(), e.ID, l2.ID, now)
	require.NoError(t, err)
	e, err = env.EnrollmentSvc.CompleteLesson(ctx, student.Actor(), e.ID, l1.ID, now)
	require.NoError(t, err)
	e, err = env.EnrollmentSvc.CompleteLesson(ctx, student.Actor(), e.ID, l1.ID, now)
	require.NoError(t, err)
	assert.Len(t, e.CompletedLessons, 2)

	_, err = env.EnrollmentSvc.CompleteLesson(ctx, intruder.Actor(), e.ID, l1.ID, now)
	authErr, ok := access.AsAuthorizationError(err)
	require.True(t, ok)
	assert.Equal(t, access.NotOwner, authErr.Reason)

	_, err = env.EnrollmentSvc.CompleteLesson(ctx, student.Actor(), e.ID, foreign.ID, now)
	assert.True(t, core.IsNotFoundEntity(err, course.LessonEntity))

	e, err = env.EnrollmentSvc.UncompleteLesson(ctx, student.Actor(), e.ID, l2.ID, now)
	require.NoError(t, err)
	assert.Equal(t, []string{l1.ID}, e.CompletedLessons)

	t.Run("expired", func(t *testing.T) {
		_, err := env.EnrollmentSvc.CompleteLesson(ctx, student.Actor(), e.ID, l2.ID, enrolledAt.Add(31*24*time.Hour))
		iErr, ok := enrollment.AsInactiveError(err)
		require.True(t, ok)
		assert.Equal(t, enrollment.StateApproved, iErr.State)
		assert.Equal(t, enrolledAt.Add(30*24*time.Hour), iErr.Expiry)
	})

	t.Run("pending", func(t *testing.T) {
		pending := testutil.CreateEnrollment(t, env.Enrollments, intruder, c, enrolledAt, false)
		_, err := env.EnrollmentSvc.CompleteLesson(ctx, intruder.Actor(), pending.ID, l1.ID, now)
		iErr, ok := enrollment.AsInactiveError(err)
		require.True(t, ok)
		assert.Equal(t, enrollment.StatePending, iErr.State)
	})

	t.Run("deleted lessons leave the completion set", func(t *testing.T) {
		require.NoError(t, env.CourseSvc.DeleteLesson(ctx, owner.Actor(), l1.ID))
		e, err := env.EnrollmentSvc.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.Empty(t, e.CompletedLessons)
	})
}

func TestService_DueDate(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	enrolledAt := time.Date(2021, time.March, 1, 9, 0, 0, 0, time.UTC)

	owner := testutil.CreateInstructor(t, env.Accounts, "owner1", true)
	student := testutil.CreateStudent(t, env.Accounts, "student")
	stranger := testutil.CreateStudent(t, env.Accounts, "stranger")
	c := testutil.CreateCourse(t, env.Courses, owner, "Go", 30, 0)
	a := testutil.CreateAssignment(t, env.Courses, c, "Essay", 7)
	testutil.CreateEnrollment(t, env.Enrollments, student, c, enrolledAt, false)

	due, ok, err := env.EnrollmentSvc.DueDate(ctx, student.ID, a)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, enrolledAt.Add(7*24*time.Hour), due)

	_, ok, err = env.EnrollmentSvc.DueDate(ctx, stranger.ID, a)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_durationEdit(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	enrolledAt := time.Date(2021, time.March, 1, 9, 0, 0, 0, time.UTC)
	now := enrolledAt.Add(15 * 24 * time.Hour)

	owner := testutil.CreateInstructor(t, env.Accounts, "owner1", true)
	student := testutil.CreateStudent(t, env.Accounts, "student")
	c := testutil.CreateCourse(t, env.Courses, owner, "Go", 30, 0)
	testutil.CreateEnrollment(t, env.Enrollments, student, c, enrolledAt, true)

	e, c, err := env.EnrollmentSvc.Active(ctx, student.ID, c.ID, now)
	require.NoError(t, err)
	days, _ := enrollment.DaysUntilExpiry(&e, &c, now)
	assert.Equal(t, 15, days)

	ten := 10
	_, err = env.CourseSvc.Update(ctx, owner.Actor(), c.ID, course.UpdateCourse{DurationDays: &ten}, now)
	require.NoError(t, err)

	_, _, err = env.EnrollmentSvc.Active(ctx, student.ID, c.ID, now)
	_, ok := enrollment.AsInactiveError(err)
	assert.True(t, ok)

	c, err = env.CourseSvc.Get(ctx, c.ID)
	require.NoError(t, err)
	days, _ = enrollment.DaysUntilExpiry(&e, &c, now)
	assert.Equal(t, -5, days)
}
