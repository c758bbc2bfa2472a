package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/account"
	"github.com/trezcool/minimoodle/core/course"
	"github.com/trezcool/minimoodle/core/submission"
)

type submissionRow struct {
	ID           string       `db:"id"`
	AssignmentID string       `db:"assignment_id"`
	StudentID    string       `db:"student_id"`
	Content      string       `db:"content"`
	SubmittedAt  time.Time    `db:"submitted_at"`
	Grade        null.Float64 `db:"grade"`
	Feedback     null.String  `db:"feedback"`
	GradedAt     null.Time    `db:"graded_at"`
}

func toSubmissionRow(s submission.Submission) submissionRow {
	return submissionRow{
		ID:           s.ID,
		AssignmentID: s.AssignmentID,
		StudentID:    s.StudentID,
		Content:      s.Content,
		SubmittedAt:  s.SubmittedAt.UTC(),
		Grade:        null.Float64FromPtr(s.Grade),
		Feedback:     null.NewString(s.Feedback, s.Feedback != ""),
		GradedAt:     null.NewTime(s.GradedAt.UTC(), !s.GradedAt.IsZero()),
	}
}

func (row submissionRow) submission() submission.Submission {
	s := submission.Submission{
		ID:           row.ID,
		AssignmentID: row.AssignmentID,
		StudentID:    row.StudentID,
		Content:      row.Content,
		SubmittedAt:  row.SubmittedAt.UTC(),
		Grade:        row.Grade.Ptr(),
		Feedback:     row.Feedback.String,
	}
	if row.GradedAt.Valid {
		s.GradedAt = row.GradedAt.Time.UTC()
	}
	return s
}

type submissionRepository struct {
	db *sqlx.DB
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *sqlx.DB) submission.Repository {
	return &submissionRepository{db: db}
}

func (repo *submissionRepository) CreateSubmission(ctx context.Context, s submission.Submission) (submission.Submission, error) {
	if !validID(s.AssignmentID) {
		return submission.Submission{}, core.NewNotFoundError(course.AssignmentEntity, s.AssignmentID)
	}
	if !validID(s.StudentID) {
		return submission.Submission{}, core.NewNotFoundError(account.Entity, s.StudentID)
	}
	s.ID = newID()
	row := toSubmissionRow(s)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO submission (id, assignment_id, student_id, content, submitted_at, grade, feedback, graded_at)
		VALUES (:id, :assignment_id, :student_id, :content, :submitted_at, :grade, :feedback, :graded_at)`, row)
	if err != nil {
		if pqErr, ok := pqError(err, foreignKeyViolation); ok {
			if pqErr.Constraint == "submission_student_id_fkey" {
				return submission.Submission{}, core.NewNotFoundError(account.Entity, s.StudentID)
			}
			return submission.Submission{}, core.NewNotFoundError(course.AssignmentEntity, s.AssignmentID)
		}
		return submission.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return row.submission(), nil
}

func (repo *submissionRepository) GetSubmission(ctx context.Context, id string) (submission.Submission, error) {
	if !validID(id) {
		return submission.Submission{}, core.NewNotFoundError(submission.Entity, id)
	}
	var row submissionRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM submission WHERE id = $1`, id); err != nil {
		return submission.Submission{}, trapNoRowsErr(err, submission.Entity, id, "finding submission")
	}
	return row.submission(), nil
}

func (repo *submissionRepository) QuerySubmissions(ctx context.Context, filter submission.QueryFilter) ([]submission.Submission, error) {
	var w where
	if filter.StudentID != "" {
		if !validID(filter.StudentID) {
			return []submission.Submission{}, nil
		}
		w.add("student_id = ?", filter.StudentID)
	}
	if filter.AssignmentIDs != nil {
		w.add("assignment_id::text = ANY(?)", pq.Array(filter.AssignmentIDs))
	}

	var rows []submissionRow
	if err := repo.db.SelectContext(ctx, &rows, w.query("SELECT * FROM submission", "ORDER BY submitted_at, id"), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]submission.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.submission())
	}
	return subs, nil
}

func (repo *submissionRepository) UpdateSubmission(ctx context.Context, id string, fn func(s *submission.Submission) error) (submission.Submission, error) {
	if !validID(id) {
		return submission.Submission{}, core.NewNotFoundError(submission.Entity, id)
	}

	var s submission.Submission
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var row submissionRow
		if err := tx.GetContext(ctx, &row, `SELECT * FROM submission WHERE id = $1 FOR UPDATE`, id); err != nil {
			return trapNoRowsErr(err, submission.Entity, id, "locking submission")
		}
		s = row.submission()
		if err := fn(&s); err != nil {
			return err
		}
		s.ID, s.AssignmentID, s.StudentID = row.ID, row.AssignmentID, row.StudentID
		_, err := tx.NamedExecContext(ctx, `
			UPDATE submission SET
				content = :content, submitted_at = :submitted_at,
				grade = :grade, feedback = :feedback, graded_at = :graded_at
			WHERE id = :id`, toSubmissionRow(s))
		return errors.Wrap(err, "updating submission")
	})
	if err != nil {
		return submission.Submission{}, err
	}
	return s, nil
}
