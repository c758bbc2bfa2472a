package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/minimoodle/core/course"
)

func (s *server) registerCourseAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	cg := g.Group("/courses")

	// the catalogue is public. authed routes take their middleware one by one:
	// a grouped middleware would also claim the public catalogue route.
	cg.GET("", s.queryCourses)
	cg.GET("/:id", s.retrieveCourse)
	cg.POST("", s.createCourse, authed...)
	cg.PUT("/:id", s.updateCourse, authed...)
	cg.DELETE("/:id", s.destroyCourse, authed...)
	cg.GET("/:id/lessons", s.queryLessons, authed...)
	cg.POST("/:id/lessons", s.createLesson, authed...)
	cg.GET("/:id/assignments", s.queryAssignments, authed...)
	cg.POST("/:id/assignments", s.createAssignment, authed...)

	lg := g.Group("/lessons", authed...)
	lg.DELETE("/:id", s.destroyLesson)
}

func (s *server) queryCourses(ctx echo.Context) error {
	var filter course.QueryFilter
	if err := bind(ctx, &filter, "QueryFilter"); err != nil {
		return err
	}
	courses, err := s.deps.CourseSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (s *server) retrieveCourse(ctx echo.Context) error {
	c, err := s.deps.CourseSvc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (s *server) createCourse(ctx echo.Context) error {
	var data course.NewCourse
	if err := bind(ctx, &data, "NewCourse"); err != nil {
		return err
	}
	c, err := s.deps.CourseSvc.Create(ctx.Request().Context(), contextActor(ctx), data, s.now())
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (s *server) updateCourse(ctx echo.Context) error {
	var data course.UpdateCourse
	if err := bind(ctx, &data, "UpdateCourse"); err != nil {
		return err
	}
	c, err := s.deps.CourseSvc.Update(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"), data, s.now())
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (s *server) destroyCourse(ctx echo.Context) error {
	if err := s.deps.CourseSvc.Delete(ctx.Request().Context(), contextActor(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *server) queryLessons(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	if _, err := s.deps.CourseSvc.Get(reqCtx, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "finding course")
	}
	lessons, err := s.deps.CourseSvc.Lessons(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (s *server) createLesson(ctx echo.Context) error {
	var data course.NewLesson
	if err := bind(ctx, &data, "NewLesson"); err != nil {
		return err
	}
	l, err := s.deps.CourseSvc.AddLesson(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"), data, s.now())
	if err != nil {
		return errors.Wrap(err, "adding lesson")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (s *server) destroyLesson(ctx echo.Context) error {
	if err := s.deps.CourseSvc.DeleteLesson(ctx.Request().Context(), contextActor(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *server) queryAssignments(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	if _, err := s.deps.CourseSvc.Get(reqCtx, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "finding course")
	}
	assignments, err := s.deps.CourseSvc.Assignments(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (s *server) createAssignment(ctx echo.Context) error {
	var data course.NewAssignment
	if err := bind(ctx, &data, "NewAssignment"); err != nil {
		return err
	}
	a, err := s.deps.CourseSvc.AddAssignment(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"), data, s.now())
	if err != nil {
		return errors.Wrap(err, "adding assignment")
	}
	return ctx.JSON(http.StatusCreated, a)
}
