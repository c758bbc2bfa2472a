package sqlxrepos_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/account"
	"github.com/trezcool/minimoodle/core/course"
	"github.com/trezcool/minimoodle/core/enrollment"
	"github.com/trezcool/minimoodle/core/submission"
	"github.com/trezcool/minimoodle/storage/database"
	"github.com/trezcool/minimoodle/storage/database/sqlx"
	"github.com/trezcool/minimoodle/tests"
)

// newEnv wires the services on the PostgreSQL database at TEST_DATABASE_URL, emptied first.
func newEnv(t *testing.T) *testutil.Env {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	db, err := database.OpenURL(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db.DB))
	_, err = db.Exec(`TRUNCATE account, course, lesson, assignment, enrollment, completed_lesson, submission CASCADE`)
	require.NoError(t, err)

	return testutil.NewEnvWith(testutil.Repositories{
		Accounts:    sqlxrepos.NewAccountRepository(db),
		Courses:     sqlxrepos.NewCourseRepository(db),
		Enrollments: sqlxrepos.NewEnrollmentRepository(db),
		Submissions: sqlxrepos.NewSubmissionRepository(db),
	})
}

func TestAccountRepository(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	now := time.Date(2021, time.March, 1, 9, 0, 0, 0, time.UTC)

	jane := testutil.CreateInstructor(t, env.Accounts, "janedoe", false)
	_, err := env.Accounts.CreateAccount(ctx, account.Account{Username: "janedoe", Email: "other@test.cd"})
	assert.Equal(t, account.ErrUsernameExists, err)
	assert.Equal(t, account.ErrEmailExists, env.Accounts.CheckUniqueness(ctx, "bobsmith", "janedoe@test.cd"))
	assert.NoError(t, env.Accounts.CheckUniqueness(ctx, "janedoe", "janedoe@test.cd", jane.ID))
	assert.Equal(t, account.ErrUsernameExists, env.Accounts.CheckUniqueness(ctx, "janedoe", "bob@test.cd", "not-a-uuid"))

	_, err = env.AccountSvc.RegisterStudent(ctx, account.Credentials{
		Name: "Jane Again", Username: "janedoe", Email: "jane.again@test.cd",
		Password: testutil.Pwd, PasswordConfirm: testutil.Pwd,
	}, "", now)
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "got %v", err)
	assert.Equal(t, "username", vErr.Fields[0].Field)

	_, err = env.Accounts.GetAccount(ctx, account.GetFilter{ID: "not-a-uuid"})
	assert.True(t, core.IsNotFoundEntity(err, account.Entity))

	mod := testutil.CreateModerator(t, env.Accounts, "moderator")
	pending, err := env.AccountSvc.PendingInstructors(ctx, mod.Actor())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, jane.ID, pending[0].ID)

	approved, err := env.AccountSvc.Approve(ctx, mod.Actor(), jane.ID, now)
	require.NoError(t, err)
	assert.Equal(t, account.StateActive, approved.State())
	revoked, err := env.AccountSvc.Revoke(ctx, mod.Actor(), jane.ID, now)
	require.NoError(t, err)
	assert.Equal(t, account.StateRevoked, revoked.State())

	stored, err := env.AccountSvc.GetByID(ctx, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, account.StateRevoked, stored.State())
	assert.Equal(t, revoked.UpdatedAt, stored.UpdatedAt)

	acc, err := env.AccountSvc.Authenticate(ctx, "moderator@test.cd", testutil.Pwd, mod.Role(), now)
	require.NoError(t, err)
	assert.Equal(t, now, acc.LastLogin)
}

func TestEnrollmentLifecycle(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	enrolledAt := time.Date(2021, time.March, 1, 9, 0, 0, 0, time.UTC)
	now := enrolledAt.Add(24 * time.Hour)

	owner := testutil.CreateInstructor(t, env.Accounts, "owner1", true)
	s1 := testutil.CreateStudent(t, env.Accounts, "student1")
	s2 := testutil.CreateStudent(t, env.Accounts, "student2")
	c := testutil.CreateCourse(t, env.Courses, owner, "Go", 30, 1)
	intro := testutil.CreateLesson(t, env.Courses, c, "Intro", 1)
	types := testutil.CreateLesson(t, env.Courses, c, "Types", 2)
	quiz := testutil.CreateAssignment(t, env.Courses, c, "Quiz", 2)

	e1, created, err := env.EnrollmentSvc.Request(ctx, s1.Actor(), c.ID, enrolledAt)
	require.NoError(t, err)
	require.True(t, created)
	again, created, err := env.EnrollmentSvc.Request(ctx, s1.Actor(), c.ID, now)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, e1.ID, again.ID)
	assert.Equal(t, enrolledAt, again.EnrolledAt)
	e2, _, err := env.EnrollmentSvc.Request(ctx, s2.Actor(), c.ID, enrolledAt)
	require.NoError(t, err)

	e1, err = env.EnrollmentSvc.Approve(ctx, owner.Actor(), e1.ID, enrolledAt)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StateApproved, e1.State())
	_, err = env.EnrollmentSvc.Approve(ctx, owner.Actor(), e2.ID, enrolledAt)
	vErr := new(core.ValidationError)
	require.True(t, errors.As(err, &vErr))

	seats, err := env.EnrollmentSvc.Seats(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.Seats{Capacity: 1, Approved: 1, Pending: 1}, seats)

	_, err = env.EnrollmentSvc.CompleteLesson(ctx, s1.Actor(), e1.ID, types.ID, now)
	require.NoError(t, err)
	e1, err = env.EnrollmentSvc.CompleteLesson(ctx, s1.Actor(), e1.ID, intro.ID, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{intro.ID, types.ID}, e1.CompletedLessons)

	ov, err := env.ProgressSvc.Overview(ctx, s1.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 0, ov.TotalRemainingLessons)
	if assert.Len(t, ov.PendingAssignments, 1) {
		assert.Equal(t, quiz.ID, ov.PendingAssignments[0].ID)
	}

	// deleting a lesson drops it from the completed lessons
	require.NoError(t, env.CourseSvc.DeleteLesson(ctx, owner.Actor(), types.ID))
	e1, err = env.EnrollmentSvc.Get(ctx, e1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{intro.ID}, e1.CompletedLessons)

	grade := 90.0
	sub, err := env.SubmissionSvc.Submit(ctx, s1.Actor(), quiz.ID, submission.NewSubmission{Content: "done"}, now)
	require.NoError(t, err)
	sub, err = env.SubmissionSvc.Grade(ctx, owner.Actor(), sub.ID, submission.Grade{Grade: &grade}, now)
	require.NoError(t, err)
	assert.Equal(t, 90.0, *sub.Grade)
	_, err = env.SubmissionSvc.Grade(ctx, owner.Actor(), sub.ID, submission.Grade{}, now)
	var vErrs validator.ValidationErrors
	assert.True(t, errors.As(err, &vErrs))

	ov, err = env.ProgressSvc.Overview(ctx, s1.ID, now)
	require.NoError(t, err)
	assert.Empty(t, ov.PendingAssignments)

	require.NoError(t, env.CourseSvc.Delete(ctx, owner.Actor(), c.ID))
	_, err = env.EnrollmentSvc.Get(ctx, e1.ID)
	assert.True(t, core.IsNotFoundEntity(err, enrollment.Entity))
	subs, err := env.SubmissionSvc.ForStudent(ctx, s1.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestEnrollmentRepository_concurrentRequests(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	owner := testutil.CreateInstructor(t, env.Accounts, "owner1", true)
	student := testutil.CreateStudent(t, env.Accounts, "student")
	c := testutil.CreateCourse(t, env.Courses, owner, "Go", 30, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ids := make(map[string]bool)
	createdCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, created, err := env.EnrollmentSvc.Request(ctx, student.Actor(), c.ID, time.Now())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[e.ID] = true
			if created {
				createdCount++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, createdCount)
}

func TestCourseRepository(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	owner := testutil.CreateInstructor(t, env.Accounts, "owner1", true)
	goCourse, err := env.CourseSvc.Create(ctx, owner.Actor(), course.NewCourse{Title: "Go", Description: "Concurrency", Category: "Programming"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 30, goCourse.DurationDays)
	_, err = env.CourseSvc.Create(ctx, owner.Actor(), course.NewCourse{Title: "Bread", Category: "Cooking"}, time.Now())
	require.NoError(t, err)

	found, err := env.CourseSvc.Query(ctx, course.QueryFilter{Search: "concurr"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, goCourse.ID, found[0].ID)
	found, err = env.CourseSvc.Query(ctx, course.QueryFilter{Category: "cooking"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Bread", found[0].Title)
	found, err = env.CourseSvc.Query(ctx, course.QueryFilter{OwnerID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = env.Courses.CreateLesson(ctx, course.Lesson{CourseID: owner.ID, Title: "orphan"})
	assert.True(t, core.IsNotFoundEntity(err, course.Entity))

	second := testutil.CreateLesson(t, env.Courses, goCourse, "Second", 2)
	first := testutil.CreateLesson(t, env.Courses, goCourse, "First", 1)
	lessons, err := env.CourseSvc.Lessons(ctx, goCourse.ID)
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	assert.Equal(t, []string{first.ID, second.ID}, []string{lessons[0].ID, lessons[1].ID})
}
