package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/course"
)

type courseRow struct {
	ID           string      `db:"id"`
	OwnerID      string      `db:"owner_id"`
	Title        string      `db:"title"`
	Description  string      `db:"description"`
	Category     null.String `db:"category"`
	DurationDays int         `db:"duration_days"`
	MaxStudents  int         `db:"max_students"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func toCourseRow(c course.Course) courseRow {
	return courseRow{
		ID:           c.ID,
		OwnerID:      c.OwnerID,
		Title:        c.Title,
		Description:  c.Description,
		Category:     null.NewString(c.Category, c.Category != ""),
		DurationDays: c.DurationDays,
		MaxStudents:  c.MaxStudents,
		CreatedAt:    c.CreatedAt.UTC(),
		UpdatedAt:    c.UpdatedAt.UTC(),
	}
}

func (row courseRow) course() course.Course {
	return course.Course{
		ID:           row.ID,
		OwnerID:      row.OwnerID,
		Title:        row.Title,
		Description:  row.Description,
		Category:     row.Category.String,
		DurationDays: row.DurationDays,
		MaxStudents:  row.MaxStudents,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

type lessonRow struct {
	ID        string      `db:"id"`
	CourseID  string      `db:"course_id"`
	Title     string      `db:"title"`
	Content   string      `db:"content"`
	VideoURL  null.String `db:"video_url"`
	Order     int         `db:"order"`
	CreatedAt time.Time   `db:"created_at"`
}

func (row lessonRow) lesson() course.Lesson {
	return course.Lesson{
		ID:        row.ID,
		CourseID:  row.CourseID,
		Title:     row.Title,
		Content:   row.Content,
		VideoURL:  row.VideoURL.String,
		Order:     row.Order,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

type assignmentRow struct {
	ID              string    `db:"id"`
	CourseID        string    `db:"course_id"`
	Title           string    `db:"title"`
	Description     string    `db:"description"`
	RelativeDueDays int       `db:"relative_due_days"`
	CreatedAt       time.Time `db:"created_at"`
}

func (row assignmentRow) assignment() course.Assignment {
	return course.Assignment{
		ID:              row.ID,
		CourseID:        row.CourseID,
		Title:           row.Title,
		Description:     row.Description,
		RelativeDueDays: row.RelativeDueDays,
		CreatedAt:       row.CreatedAt.UTC(),
	}
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

// trapCourseFKErr maps a missing parent course to a *core.NotFoundError.
func trapCourseFKErr(err error, courseID, msg string) error {
	if _, ok := pqError(err, foreignKeyViolation); ok {
		return core.NewNotFoundError(course.Entity, courseID)
	}
	return errors.Wrap(err, msg)
}

const insertCourse = `
INSERT INTO course (id, owner_id, title, description, category, duration_days, max_students, created_at, updated_at)
VALUES (:id, :owner_id, :title, :description, :category, :duration_days, :max_students, :created_at, :updated_at)`

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	c.ID = newID()
	row := toCourseRow(c)
	if _, err := repo.db.NamedExecContext(ctx, insertCourse, row); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return row.course(), nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	if !validID(id) {
		return course.Course{}, core.NewNotFoundError(course.Entity, id)
	}
	var row courseRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM course WHERE id = $1`, id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.Entity, id, "finding course")
	}
	return row.course(), nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter course.QueryFilter) ([]course.Course, error) {
	var w where
	if filter.OwnerID != "" {
		if !validID(filter.OwnerID) {
			return []course.Course{}, nil
		}
		w.add("owner_id = ?", filter.OwnerID)
	}
	if filter.Category != "" {
		w.add("lower(category) = lower(?)", filter.Category)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		w.add("(title ILIKE ? OR description ILIKE ?)", pattern, pattern)
	}

	var rows []courseRow
	if err := repo.db.SelectContext(ctx, &rows, w.query("SELECT * FROM course", "ORDER BY created_at DESC, id"), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.course())
	}
	return courses, nil
}

const updateCourse = `
UPDATE course SET
	title = :title, description = :description, category = :category,
	duration_days = :duration_days, max_students = :max_students, updated_at = :updated_at
WHERE id = :id`

func (repo *courseRepository) UpdateCourse(ctx context.Context, id string, fn func(c *course.Course) error) (course.Course, error) {
	if !validID(id) {
		return course.Course{}, core.NewNotFoundError(course.Entity, id)
	}

	var c course.Course
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var row courseRow
		if err := tx.GetContext(ctx, &row, `SELECT * FROM course WHERE id = $1 FOR UPDATE`, id); err != nil {
			return trapNoRowsErr(err, course.Entity, id, "locking course")
		}
		c = row.course()
		if err := fn(&c); err != nil {
			return err
		}
		c.ID, c.OwnerID = row.ID, row.OwnerID
		if _, err := tx.NamedExecContext(ctx, updateCourse, toCourseRow(c)); err != nil {
			return errors.Wrap(err, "updating course")
		}
		return nil
	})
	if err != nil {
		return course.Course{}, err
	}
	return c, nil
}

// DeleteCourse relies on the ON DELETE CASCADE foreign keys for the dependent records.
func (repo *courseRepository) DeleteCourse(ctx context.Context, id string) error {
	if !validID(id) {
		return core.NewNotFoundError(course.Entity, id)
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM course WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return checkAffected(res, course.Entity, id)
}

func (repo *courseRepository) CreateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	if !validID(l.CourseID) {
		return course.Lesson{}, core.NewNotFoundError(course.Entity, l.CourseID)
	}
	l.ID = newID()
	row := lessonRow{
		ID:        l.ID,
		CourseID:  l.CourseID,
		Title:     l.Title,
		Content:   l.Content,
		VideoURL:  null.NewString(l.VideoURL, l.VideoURL != ""),
		Order:     l.Order,
		CreatedAt: l.CreatedAt.UTC(),
	}
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO lesson (id, course_id, title, content, video_url, "order", created_at)
		VALUES (:id, :course_id, :title, :content, :video_url, :order, :created_at)`, row)
	if err != nil {
		return course.Lesson{}, trapCourseFKErr(err, l.CourseID, "inserting lesson")
	}
	return row.lesson(), nil
}

func (repo *courseRepository) GetLesson(ctx context.Context, id string) (course.Lesson, error) {
	if !validID(id) {
		return course.Lesson{}, core.NewNotFoundError(course.LessonEntity, id)
	}
	var row lessonRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM lesson WHERE id = $1`, id); err != nil {
		return course.Lesson{}, trapNoRowsErr(err, course.LessonEntity, id, "finding lesson")
	}
	return row.lesson(), nil
}

func (repo *courseRepository) QueryLessons(ctx context.Context, courseID string) ([]course.Lesson, error) {
	lessons := make([]course.Lesson, 0)
	if !validID(courseID) {
		return lessons, nil
	}
	var rows []lessonRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM lesson WHERE course_id = $1 ORDER BY "order", created_at, id`, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	for _, row := range rows {
		lessons = append(lessons, row.lesson())
	}
	return lessons, nil
}

// DeleteLesson relies on the completed_lesson foreign key to drop the lesson from enrollments.
func (repo *courseRepository) DeleteLesson(ctx context.Context, id string) error {
	if !validID(id) {
		return core.NewNotFoundError(course.LessonEntity, id)
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM lesson WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return checkAffected(res, course.LessonEntity, id)
}

func (repo *courseRepository) CreateAssignment(ctx context.Context, a course.Assignment) (course.Assignment, error) {
	if !validID(a.CourseID) {
		return course.Assignment{}, core.NewNotFoundError(course.Entity, a.CourseID)
	}
	a.ID = newID()
	row := assignmentRow{
		ID:              a.ID,
		CourseID:        a.CourseID,
		Title:           a.Title,
		Description:     a.Description,
		RelativeDueDays: a.RelativeDueDays,
		CreatedAt:       a.CreatedAt.UTC(),
	}
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO assignment (id, course_id, title, description, relative_due_days, created_at)
		VALUES (:id, :course_id, :title, :description, :relative_due_days, :created_at)`, row)
	if err != nil {
		return course.Assignment{}, trapCourseFKErr(err, a.CourseID, "inserting assignment")
	}
	return row.assignment(), nil
}

func (repo *courseRepository) GetAssignment(ctx context.Context, id string) (course.Assignment, error) {
	if !validID(id) {
		return course.Assignment{}, core.NewNotFoundError(course.AssignmentEntity, id)
	}
	var row assignmentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM assignment WHERE id = $1`, id); err != nil {
		return course.Assignment{}, trapNoRowsErr(err, course.AssignmentEntity, id, "finding assignment")
	}
	return row.assignment(), nil
}

func (repo *courseRepository) QueryAssignments(ctx context.Context, courseIDs ...string) ([]course.Assignment, error) {
	assignments := make([]course.Assignment, 0)
	ids := validIDs(courseIDs)
	if len(ids) == 0 {
		return assignments, nil
	}
	var rows []assignmentRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM assignment WHERE course_id::text = ANY($1) ORDER BY created_at, id`, idArray(ids))
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	for _, row := range rows {
		assignments = append(assignments, row.assignment())
	}
	return assignments, nil
}

// DeleteAssignment relies on the submission foreign key to drop the assignment's submissions.
func (repo *courseRepository) DeleteAssignment(ctx context.Context, id string) error {
	if !validID(id) {
		return core.NewNotFoundError(course.AssignmentEntity, id)
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM assignment WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return checkAffected(res, course.AssignmentEntity, id)
}
