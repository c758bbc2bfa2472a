package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/account"
	"github.com/trezcool/minimoodle/core/course"
	"github.com/trezcool/minimoodle/core/enrollment"
	"github.com/trezcool/minimoodle/core/progress"
	"github.com/trezcool/minimoodle/core/submission"
	"github.com/trezcool/minimoodle/storage/database/inmem"
)

// Pwd satisfies the password policy and is not similar to any fixture attribute.
const Pwd = "Tr0ub4dor&3x"

// Repositories is the storage an Env runs on.
type Repositories struct {
	Accounts    account.Repository
	Courses     course.Repository
	Enrollments enrollment.Repository
	Submissions submission.Repository
}

// Env wires every service on top of a set of repositories.
type Env struct {
	Repositories

	AccountSvc    *account.Service
	CourseSvc     *course.Service
	EnrollmentSvc *enrollment.Service
	SubmissionSvc *submission.Service
	ProgressSvc   *progress.Service
}

// NewEnv wires the services on a fresh in-memory database.
func NewEnv() *Env {
	db := inmemdb.NewDB()
	return NewEnvWith(Repositories{
		Accounts:    inmemdb.NewAccountRepository(db),
		Courses:     inmemdb.NewCourseRepository(db),
		Enrollments: inmemdb.NewEnrollmentRepository(db),
		Submissions: inmemdb.NewSubmissionRepository(db),
	})
}

func NewEnvWith(repos Repositories) *Env {
	env := &Env{Repositories: repos}
	logger := core.NopLogger{}
	env.AccountSvc = account.NewService(env.Accounts, logger)
	env.CourseSvc = course.NewService(env.Courses, core.CourseConfig{DefaultDurationDays: 30, DueDateGraceDays: 5}, logger)
	env.EnrollmentSvc = enrollment.NewService(env.Enrollments, env.Courses, logger)
	env.SubmissionSvc = submission.NewService(env.Submissions, env.Courses, env.EnrollmentSvc, logger)
	env.ProgressSvc = progress.NewService(env.EnrollmentSvc, env.Courses, env.SubmissionSvc)
	return env
}

func CreateAccount(
	tb testing.TB,
	repo account.Repository,
	name, uname, email, pwd string,
	profile account.Profile,
	createdAt ...time.Time,
) account.Account {
	tb.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	acc := account.Account{
		Name:      name,
		Username:  uname,
		Email:     email,
		Profile:   profile,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := acc.SetPassword(pwd); err != nil {
			tb.Fatalf("CreateAccount() failed: %v", err)
		}
	}
	acc, err := repo.CreateAccount(context.Background(), acc)
	if err != nil {
		tb.Fatalf("CreateAccount() failed: %v", err)
	}
	return acc
}

func CreateStudent(tb testing.TB, repo account.Repository, uname string) account.Account {
	tb.Helper()
	return CreateAccount(tb, repo, "Student "+uname, uname, uname+"@test.cd", Pwd, account.StudentProfile{})
}

func CreateInstructor(tb testing.TB, repo account.Repository, uname string, approved bool) account.Account {
	tb.Helper()
	return CreateAccount(tb, repo, "Instructor "+uname, uname, uname+"@test.cd", Pwd, account.InstructorProfile{Approved: approved, EverApproved: approved})
}

func CreateModerator(tb testing.TB, repo account.Repository, uname string) account.Account {
	tb.Helper()
	return CreateAccount(tb, repo, "Moderator "+uname, uname, uname+"@test.cd", Pwd, account.ModeratorProfile{})
}

func CreateCourse(tb testing.TB, repo course.Repository, owner account.Account, title string, durationDays, maxStudents int) course.Course {
	tb.Helper()
	now := time.Now().UTC()
	c, err := repo.CreateCourse(context.Background(), course.Course{
		OwnerID:      owner.ID,
		Title:        title,
		DurationDays: durationDays,
		MaxStudents:  maxStudents,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		tb.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

func CreateLesson(tb testing.TB, repo course.Repository, c course.Course, title string, order int) course.Lesson {
	tb.Helper()
	l, err := repo.CreateLesson(context.Background(), course.Lesson{
		CourseID:  c.ID,
		Title:     title,
		Order:     order,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		tb.Fatalf("CreateLesson() failed: %v", err)
	}
	return l
}

func CreateAssignment(tb testing.TB, repo course.Repository, c course.Course, title string, relativeDueDays int) course.Assignment {
	tb.Helper()
	a, err := repo.CreateAssignment(context.Background(), course.Assignment{
		CourseID:        c.ID,
		Title:           title,
		RelativeDueDays: relativeDueDays,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		tb.Fatalf("CreateAssignment() failed: %v", err)
	}
	return a
}

func CreateEnrollment(tb testing.TB, repo enrollment.Repository, student account.Account, c course.Course, enrolledAt time.Time, approved bool) enrollment.Enrollment {
	tb.Helper()
	ctx := context.Background()
	e, _, err := repo.GetOrCreateEnrollment(ctx, enrollment.Enrollment{
		StudentID:  student.ID,
		CourseID:   c.ID,
		EnrolledAt: enrolledAt.UTC(),
	})
	if err != nil {
		tb.Fatalf("CreateEnrollment() failed: %v", err)
	}
	if approved {
		e, err = repo.UpdateEnrollment(ctx, e.ID, func(e *enrollment.Enrollment, _ enrollment.Seats) error {
			e.IsApproved = true
			e.ApprovedAt = enrolledAt.UTC()
			return nil
		})
		if err != nil {
			tb.Fatalf("CreateEnrollment() failed: %v", err)
		}
	}
	return e
}

func CreateSubmission(tb testing.TB, repo submission.Repository, student account.Account, a course.Assignment, submittedAt time.Time) submission.Submission {
	tb.Helper()
	s, err := repo.CreateSubmission(context.Background(), submission.Submission{
		AssignmentID: a.ID,
		StudentID:    student.ID,
		Content:      "my work",
		SubmittedAt:  submittedAt.UTC(),
	})
	if err != nil {
		tb.Fatalf("CreateSubmission() failed: %v", err)
	}
	return s
}
