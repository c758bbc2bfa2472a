package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/minimoodle/core/submission"
)

func (s *server) registerSubmissionAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	ag := g.Group("/assignments", authed...)
	ag.GET("/:id", s.retrieveAssignment)
	ag.DELETE("/:id", s.destroyAssignment)
	ag.POST("/:id/submissions", s.submit)
	ag.GET("/:id/submissions", s.querySubmissions)

	sg := g.Group("/submissions", authed...)
	sg.GET("", s.mySubmissions)
	sg.POST("/:id/grade", s.grade)

	g.GET("/dashboard", s.dashboard, authed...)
}

func (s *server) retrieveAssignment(ctx echo.Context) error {
	a, err := s.deps.CourseSvc.GetAssignment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (s *server) destroyAssignment(ctx echo.Context) error {
	if err := s.deps.CourseSvc.DeleteAssignment(ctx.Request().Context(), contextActor(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *server) submit(ctx echo.Context) error {
	var data submission.NewSubmission
	if err := bind(ctx, &data, "NewSubmission"); err != nil {
		return err
	}
	sub, err := s.deps.SubmissionSvc.Submit(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"), data, s.now())
	if err != nil {
		return errors.Wrap(err, "submitting assignment")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (s *server) querySubmissions(ctx echo.Context) error {
	subs, err := s.deps.SubmissionSvc.List(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (s *server) mySubmissions(ctx echo.Context) error {
	subs, err := s.deps.SubmissionSvc.ForStudent(ctx.Request().Context(), contextActor(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (s *server) grade(ctx echo.Context) error {
	var data submission.Grade
	if err := bind(ctx, &data, "Grade"); err != nil {
		return err
	}
	sub, err := s.deps.SubmissionSvc.Grade(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"), data, s.now())
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (s *server) dashboard(ctx echo.Context) error {
	ov, err := s.deps.ProgressSvc.Dashboard(ctx.Request().Context(), contextActor(ctx), s.now())
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, ov)
}
