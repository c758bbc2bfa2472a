package course

import (
	"context"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/access"
)

type Repository interface {
	CreateCourse(ctx context.Context, c Course) (Course, error)
	GetCourse(ctx context.Context, id string) (Course, error)
	// QueryCourses applies AND operation on available QueryFilter fields.
	// QueryFilter.Search does a case-insensitive match on Course.Title or Course.Description.
	QueryCourses(ctx context.Context, filter QueryFilter) ([]Course, error)
	UpdateCourse(ctx context.Context, id string, fn func(c *Course) error) (Course, error)
	// DeleteCourse also deletes the course lessons, assignments, enrollments and submissions.
	DeleteCourse(ctx context.Context, id string) error

	CreateLesson(ctx context.Context, l Lesson) (Lesson, error)
	GetLesson(ctx context.Context, id string) (Lesson, error)
	// QueryLessons returns the lessons of a course sorted by Order, then CreatedAt.
	QueryLessons(ctx context.Context, courseID string) ([]Lesson, error)
	// DeleteLesson also removes the lesson from every enrollment's completed lessons.
	DeleteLesson(ctx context.Context, id string) error

	CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
	GetAssignment(ctx context.Context, id string) (Assignment, error)
	// QueryAssignments returns the assignments of the given courses sorted by CreatedAt.
	QueryAssignments(ctx context.Context, courseIDs ...string) ([]Assignment, error)
	DeleteAssignment(ctx context.Context, id string) error
}

type Service struct {
	repo Repository
	conf core.CourseConfig
	log  core.Logger
}

func NewService(repo Repository, conf core.CourseConfig, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	if conf.DefaultDurationDays <= 0 {
		conf.DefaultDurationDays = 30
	}
	return &Service{repo: repo, conf: conf, log: logger}
}

func (svc *Service) Create(ctx context.Context, actor access.Actor, nc NewCourse, now time.Time) (Course, error) {
	if err := access.Check(actor, access.ActionCreateCourse, access.Resource{}); err != nil {
		return Course{}, err
	}
	nc.Clean()
	if err := core.Validate.Struct(nc); err != nil {
		return Course{}, err
	}
	if nc.DurationDays == 0 {
		nc.DurationDays = svc.conf.DefaultDurationDays
	}

	now = now.UTC()
	c, err := svc.repo.CreateCourse(ctx, Course{
		OwnerID:      actor.ID,
		Title:        nc.Title,
		Description:  nc.Description,
		Category:     nc.Category,
		DurationDays: nc.DurationDays,
		MaxStudents:  nc.MaxStudents,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Course{}, errors.Wrap(err, "creating course")
	}
	svc.log.Info("course created", map[string]interface{}{"course": c.ID, "owner": actor.ID})
	return c, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Course, error) {
	filter.Clean()
	return svc.repo.QueryCourses(ctx, filter)
}

// Update edits a course. A new duration applies to every enrollment's window at once;
// existing assignments are not checked against it again.
func (svc *Service) Update(ctx context.Context, actor access.Actor, id string, uc UpdateCourse, now time.Time) (Course, error) {
	uc.Clean()
	if err := core.Validate.Struct(uc); err != nil {
		return Course{}, err
	}

	c, err := svc.repo.UpdateCourse(ctx, id, func(c *Course) error {
		if err := access.Check(actor, access.ActionEditCourse, c.Resource()); err != nil {
			return err
		}
		uc.apply(c)
		c.UpdatedAt = now.UTC()
		return nil
	})
	if err != nil {
		return Course{}, errors.Wrap(err, "updating course")
	}
	return c, nil
}

func (svc *Service) Delete(ctx context.Context, actor access.Actor, id string) error {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return err
	}
	if err := access.Check(actor, access.ActionDeleteCourse, c.Resource()); err != nil {
		return err
	}
	if err := svc.repo.DeleteCourse(ctx, id); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	svc.log.Info("course deleted", map[string]interface{}{"course": id, "owner": actor.ID})
	return nil
}

func (svc *Service) AddLesson(ctx context.Context, actor access.Actor, courseID string, nl NewLesson, now time.Time) (Lesson, error) {
	c, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return Lesson{}, err
	}
	if err := access.Check(actor, access.ActionAddLesson, c.Resource()); err != nil {
		return Lesson{}, err
	}
	nl.Clean()
	if err := core.Validate.Struct(nl); err != nil {
		return Lesson{}, err
	}

	l, err := svc.repo.CreateLesson(ctx, Lesson{
		CourseID:  c.ID,
		Title:     nl.Title,
		Content:   nl.Content,
		VideoURL:  nl.VideoURL,
		Order:     nl.Order,
		CreatedAt: now.UTC(),
	})
	if err != nil {
		return Lesson{}, errors.Wrap(err, "creating lesson")
	}
	return l, nil
}

func (svc *Service) Lessons(ctx context.Context, courseID string) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, courseID)
}

func (svc *Service) DeleteLesson(ctx context.Context, actor access.Actor, id string) error {
	l, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return err
	}
	c, err := svc.repo.GetCourse(ctx, l.CourseID)
	if err != nil {
		return err
	}
	if err := access.Check(actor, access.ActionEditCourse, c.Resource()); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteLesson(ctx, id), "deleting lesson")
}

// MaxRelativeDueDays is the latest relative due date an assignment of c may have.
func (svc *Service) MaxRelativeDueDays(c Course) int {
	return c.DurationDays + svc.conf.DueDateGraceDays
}

// AddAssignment creates an assignment whose relative due date falls at most
// DueDateGraceDays after the course access window.
func (svc *Service) AddAssignment(ctx context.Context, actor access.Actor, courseID string, na NewAssignment, now time.Time) (Assignment, error) {
	c, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return Assignment{}, err
	}
	if err := access.Check(actor, access.ActionAddAssignment, c.Resource()); err != nil {
		return Assignment{}, err
	}
	na.Clean()
	if err := core.Validate.Struct(na); err != nil {
		return Assignment{}, err
	}
	if max := svc.MaxRelativeDueDays(c); na.RelativeDueDays > max {
		msg := fmt.Sprintf("must be at most %d days (course duration + %d)", max, svc.conf.DueDateGraceDays)
		return Assignment{}, core.NewValidationError(nil, core.FieldError{Field: "relative_due_days", Error: msg})
	}

	a, err := svc.repo.CreateAssignment(ctx, Assignment{
		CourseID:        c.ID,
		Title:           na.Title,
		Description:     na.Description,
		RelativeDueDays: na.RelativeDueDays,
		CreatedAt:       now.UTC(),
	})
	if err != nil {
		return Assignment{}, errors.Wrap(err, "creating assignment")
	}
	return a, nil
}

func (svc *Service) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	return svc.repo.GetAssignment(ctx, id)
}

func (svc *Service) Assignments(ctx context.Context, courseIDs ...string) ([]Assignment, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	return svc.repo.QueryAssignments(ctx, courseIDs...)
}

func (svc *Service) DeleteAssignment(ctx context.Context, actor access.Actor, id string) error {
	a, err := svc.repo.GetAssignment(ctx, id)
	if err != nil {
		return err
	}
	c, err := svc.repo.GetCourse(ctx, a.CourseID)
	if err != nil {
		return err
	}
	if err := access.Check(actor, access.ActionEditCourse, c.Resource()); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteAssignment(ctx, id), "deleting assignment")
}
