package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func (s *server) registerEnrollmentAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	cg := g.Group("/courses")
	cg.POST("/:id/enroll", s.requestEnrollment, authed...)
	cg.GET("/:id/enrollments", s.courseEnrollments, authed...)
	cg.GET("/:id/seats", s.courseSeats, authed...)

	eg := g.Group("/enrollments", authed...)
	eg.GET("", s.myEnrollments)
	eg.GET("/pending", s.pendingEnrollments)
	eg.POST("/:id/approve", s.approveEnrollment)
	eg.DELETE("/:id", s.removeEnrollment)
	eg.PUT("/:id/lessons/:lessonID", s.completeLesson)
	eg.DELETE("/:id/lessons/:lessonID", s.uncompleteLesson)
}

func (s *server) requestEnrollment(ctx echo.Context) error {
	e, created, err := s.deps.EnrollmentSvc.Request(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"), s.now())
	if err != nil {
		return errors.Wrap(err, "requesting enrollment")
	}
	if created {
		return ctx.JSON(http.StatusCreated, e)
	}
	return ctx.JSON(http.StatusOK, e)
}

func (s *server) courseEnrollments(ctx echo.Context) error {
	enrs, err := s.deps.EnrollmentSvc.CourseEnrollments(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying course enrollments")
	}
	return ctx.JSON(http.StatusOK, enrs)
}

func (s *server) courseSeats(ctx echo.Context) error {
	seats, err := s.deps.EnrollmentSvc.Seats(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "counting seats")
	}
	return ctx.JSON(http.StatusOK, seats)
}

func (s *server) myEnrollments(ctx echo.Context) error {
	enrs, err := s.deps.EnrollmentSvc.ForStudent(ctx.Request().Context(), contextActor(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	return ctx.JSON(http.StatusOK, enrs)
}

func (s *server) pendingEnrollments(ctx echo.Context) error {
	enrs, err := s.deps.EnrollmentSvc.PendingRequests(ctx.Request().Context(), contextActor(ctx))
	if err != nil {
		return errors.Wrap(err, "querying pending enrollments")
	}
	return ctx.JSON(http.StatusOK, enrs)
}

func (s *server) approveEnrollment(ctx echo.Context) error {
	e, err := s.deps.EnrollmentSvc.Approve(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"), s.now())
	if err != nil {
		return errors.Wrap(err, "approving enrollment")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (s *server) removeEnrollment(ctx echo.Context) error {
	if err := s.deps.EnrollmentSvc.Remove(ctx.Request().Context(), contextActor(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "removing enrollment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *server) completeLesson(ctx echo.Context) error {
	e, err := s.deps.EnrollmentSvc.CompleteLesson(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"), ctx.Param("lessonID"), s.now())
	if err != nil {
		return errors.Wrap(err, "completing lesson")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (s *server) uncompleteLesson(ctx echo.Context) error {
	e, err := s.deps.EnrollmentSvc.UncompleteLesson(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"), ctx.Param("lessonID"), s.now())
	if err != nil {
		return errors.Wrap(err, "uncompleting lesson")
	}
	return ctx.JSON(http.StatusOK, e)
}
