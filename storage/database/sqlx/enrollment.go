package sqlxrepos

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/account"
	"github.com/trezcool/minimoodle/core/course"
	"github.com/trezcool/minimoodle/core/enrollment"
)

type enrollmentRow struct {
	ID         string    `db:"id"`
	StudentID  string    `db:"student_id"`
	CourseID   string    `db:"course_id"`
	EnrolledAt time.Time `db:"enrolled_at"`
	IsApproved bool      `db:"is_approved"`
	ApprovedAt null.Time `db:"approved_at"`
}

func toEnrollmentRow(e enrollment.Enrollment) enrollmentRow {
	return enrollmentRow{
		ID:         e.ID,
		StudentID:  e.StudentID,
		CourseID:   e.CourseID,
		EnrolledAt: e.EnrolledAt.UTC(),
		IsApproved: e.IsApproved,
		ApprovedAt: null.NewTime(e.ApprovedAt.UTC(), !e.ApprovedAt.IsZero()),
	}
}

func (row enrollmentRow) enrollment(completed []string) enrollment.Enrollment {
	e := enrollment.Enrollment{
		ID:               row.ID,
		StudentID:        row.StudentID,
		CourseID:         row.CourseID,
		EnrolledAt:       row.EnrolledAt.UTC(),
		IsApproved:       row.IsApproved,
		CompletedLessons: completed,
	}
	if row.ApprovedAt.Valid {
		e.ApprovedAt = row.ApprovedAt.Time.UTC()
	}
	return e
}

type enrollmentRepository struct {
	db *sqlx.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *sqlx.DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

// completedLessons loads the completed lesson ids of each enrollment, sorted.
func completedLessons(ctx context.Context, q sqlx.QueryerContext, enrollmentIDs ...string) (map[string][]string, error) {
	completed := make(map[string][]string, len(enrollmentIDs))
	for _, id := range enrollmentIDs {
		completed[id] = []string{}
	}
	if len(enrollmentIDs) == 0 {
		return completed, nil
	}

	var rows []struct {
		EnrollmentID string `db:"enrollment_id"`
		LessonID     string `db:"lesson_id"`
	}
	err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT enrollment_id, lesson_id FROM completed_lesson WHERE enrollment_id::text = ANY($1)`,
		pq.Array(enrollmentIDs))
	if err != nil {
		return nil, errors.Wrap(err, "querying completed lessons")
	}
	for _, row := range rows {
		completed[row.EnrollmentID] = append(completed[row.EnrollmentID], row.LessonID)
	}
	for _, ids := range completed {
		sort.Strings(ids)
	}
	return completed, nil
}

func (repo *enrollmentRepository) load(ctx context.Context, q sqlx.QueryerContext, rows ...enrollmentRow) ([]enrollment.Enrollment, error) {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	completed, err := completedLessons(ctx, q, ids...)
	if err != nil {
		return nil, err
	}
	enrs := make([]enrollment.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrs = append(enrs, row.enrollment(completed[row.ID]))
	}
	return enrs, nil
}

func (repo *enrollmentRepository) loadOne(ctx context.Context, q sqlx.QueryerContext, row enrollmentRow) (enrollment.Enrollment, error) {
	enrs, err := repo.load(ctx, q, row)
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	return enrs[0], nil
}

// saveCompleted replaces the completed lessons of enrollmentID with lessonIDs.
func saveCompleted(ctx context.Context, tx *sqlx.Tx, enrollmentID string, lessonIDs []string) error {
	ids := idArray(lessonIDs)
	_, err := tx.ExecContext(ctx,
		`DELETE FROM completed_lesson WHERE enrollment_id = $1 AND NOT (lesson_id::text = ANY($2))`,
		enrollmentID, ids)
	if err != nil {
		return errors.Wrap(err, "deleting completed lessons")
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO completed_lesson (enrollment_id, lesson_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING`,
		enrollmentID, ids)
	if _, ok := pqError(err, foreignKeyViolation); ok {
		return core.NewNotFoundError(course.LessonEntity, "")
	}
	return errors.Wrap(err, "inserting completed lessons")
}

func (repo *enrollmentRepository) GetOrCreateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, bool, error) {
	if !validID(e.CourseID) {
		return enrollment.Enrollment{}, false, core.NewNotFoundError(course.Entity, e.CourseID)
	}
	if !validID(e.StudentID) {
		return enrollment.Enrollment{}, false, core.NewNotFoundError(account.Entity, e.StudentID)
	}

	var enr enrollment.Enrollment
	var created bool
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		e.ID = newID()
		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO enrollment (id, student_id, course_id, enrolled_at, is_approved, approved_at)
			VALUES (:id, :student_id, :course_id, :enrolled_at, :is_approved, :approved_at)
			ON CONFLICT (student_id, course_id) DO NOTHING`, toEnrollmentRow(e))
		if err != nil {
			if pqErr, ok := pqError(err, foreignKeyViolation); ok {
				if pqErr.Constraint == "enrollment_student_id_fkey" {
					return core.NewNotFoundError(account.Entity, e.StudentID)
				}
				return core.NewNotFoundError(course.Entity, e.CourseID)
			}
			return errors.Wrap(err, "inserting enrollment")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "counting affected rows")
		}
		if created = n > 0; created {
			if err = saveCompleted(ctx, tx, e.ID, e.CompletedLessons); err != nil {
				return err
			}
		}

		var row enrollmentRow
		err = tx.GetContext(ctx, &row,
			`SELECT * FROM enrollment WHERE student_id = $1 AND course_id = $2`, e.StudentID, e.CourseID)
		if err != nil {
			return errors.Wrap(err, "finding enrollment")
		}
		enr, err = repo.loadOne(ctx, tx, row)
		return err
	})
	if err != nil {
		return enrollment.Enrollment{}, false, err
	}
	return enr, created, nil
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, id string) (enrollment.Enrollment, error) {
	if !validID(id) {
		return enrollment.Enrollment{}, core.NewNotFoundError(enrollment.Entity, id)
	}
	var row enrollmentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM enrollment WHERE id = $1`, id); err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.Entity, id, "finding enrollment")
	}
	return repo.loadOne(ctx, repo.db, row)
}

func (repo *enrollmentRepository) FindEnrollment(ctx context.Context, studentID, courseID string) (enrollment.Enrollment, error) {
	if !validID(studentID) || !validID(courseID) {
		return enrollment.Enrollment{}, core.NewNotFoundError(enrollment.Entity, "")
	}
	var row enrollmentRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT * FROM enrollment WHERE student_id = $1 AND course_id = $2`, studentID, courseID)
	if err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.Entity, "", "finding enrollment")
	}
	return repo.loadOne(ctx, repo.db, row)
}

func (repo *enrollmentRepository) QueryEnrollments(ctx context.Context, filter enrollment.QueryFilter) ([]enrollment.Enrollment, error) {
	var w where
	if filter.StudentID != "" {
		if !validID(filter.StudentID) {
			return []enrollment.Enrollment{}, nil
		}
		w.add("student_id = ?", filter.StudentID)
	}
	if filter.CourseIDs != nil {
		w.add("course_id::text = ANY(?)", pq.Array(filter.CourseIDs))
	}
	if filter.Approved != nil {
		w.add("is_approved = ?", *filter.Approved)
	}

	var rows []enrollmentRow
	if err := repo.db.SelectContext(ctx, &rows, w.query("SELECT * FROM enrollment", "ORDER BY enrolled_at, id"), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return repo.load(ctx, repo.db, rows...)
}

const countSeats = `
SELECT c.max_students AS capacity,
	count(e.id) FILTER (WHERE e.is_approved) AS approved,
	count(e.id) FILTER (WHERE NOT e.is_approved) AS pending
FROM course c
LEFT JOIN enrollment e ON e.course_id = c.id
WHERE c.id = $1
GROUP BY c.id`

type seatsRow struct {
	Capacity int `db:"capacity"`
	Approved int `db:"approved"`
	Pending  int `db:"pending"`
}

func seats(ctx context.Context, q sqlx.QueryerContext, courseID string) (enrollment.Seats, error) {
	var row seatsRow
	if err := sqlx.GetContext(ctx, q, &row, countSeats, courseID); err != nil {
		if err == sql.ErrNoRows {
			return enrollment.Seats{}, nil
		}
		return enrollment.Seats{}, errors.Wrap(err, "counting seats")
	}
	return enrollment.Seats(row), nil
}

func (repo *enrollmentRepository) UpdateEnrollment(ctx context.Context, id string, fn func(e *enrollment.Enrollment, seats enrollment.Seats) error) (enrollment.Enrollment, error) {
	if !validID(id) {
		return enrollment.Enrollment{}, core.NewNotFoundError(enrollment.Entity, id)
	}

	var e enrollment.Enrollment
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		// the course row serializes the transitions of its enrollments so that seats stay accurate
		var courseID string
		err := tx.GetContext(ctx, &courseID, `
			SELECT c.id FROM course c JOIN enrollment e ON e.course_id = c.id
			WHERE e.id = $1 FOR NO KEY UPDATE OF c`, id)
		if err != nil {
			return trapNoRowsErr(err, enrollment.Entity, id, "locking course")
		}
		var row enrollmentRow
		if err = tx.GetContext(ctx, &row, `SELECT * FROM enrollment WHERE id = $1 FOR UPDATE`, id); err != nil {
			return trapNoRowsErr(err, enrollment.Entity, id, "locking enrollment")
		}
		if e, err = repo.loadOne(ctx, tx, row); err != nil {
			return err
		}
		s, err := seats(ctx, tx, courseID)
		if err != nil {
			return err
		}

		if err = fn(&e, s); err != nil {
			return err
		}
		e.ID, e.StudentID, e.CourseID = row.ID, row.StudentID, row.CourseID
		_, err = tx.NamedExecContext(ctx, `
			UPDATE enrollment SET enrolled_at = :enrolled_at, is_approved = :is_approved, approved_at = :approved_at
			WHERE id = :id`, toEnrollmentRow(e))
		if err != nil {
			return errors.Wrap(err, "updating enrollment")
		}
		return saveCompleted(ctx, tx, e.ID, e.CompletedLessons)
	})
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	if e.CompletedLessons == nil {
		e.CompletedLessons = []string{}
	}
	return e, nil
}

func (repo *enrollmentRepository) DeleteEnrollment(ctx context.Context, id string) error {
	if !validID(id) {
		return core.NewNotFoundError(enrollment.Entity, id)
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM enrollment WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	return checkAffected(res, enrollment.Entity, id)
}

func (repo *enrollmentRepository) CountSeats(ctx context.Context, courseID string) (enrollment.Seats, error) {
	if !validID(courseID) {
		return enrollment.Seats{}, nil
	}
	return seats(ctx, repo.db, courseID)
}
