package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/course"
	"github.com/trezcool/minimoodle/core/submission"
)

type submissionRepository struct {
	db *DB
}

var _ submission.Repository = (*submissionRepository)(nil)

func NewSubmissionRepository(db *DB) submission.Repository {
	return &submissionRepository{db: db}
}

func (repo *submissionRepository) CreateSubmission(_ context.Context, s submission.Submission) (submission.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.assignments[s.AssignmentID]; !ok {
		return submission.Submission{}, core.NewNotFoundError(course.AssignmentEntity, s.AssignmentID)
	}
	s.ID = newID()
	stored := copySubmission(s)
	repo.db.submissions[s.ID] = &stored
	return s, nil
}

func (repo *submissionRepository) GetSubmission(_ context.Context, id string) (submission.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.submissions[id]; ok {
		return copySubmission(*s), nil
	}
	return submission.Submission{}, core.NewNotFoundError(submission.Entity, id)
}

func (repo *submissionRepository) QuerySubmissions(_ context.Context, filter submission.QueryFilter) ([]submission.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subs := make([]submission.Submission, 0)
	for _, s := range repo.db.submissions {
		if filter.Match(*s) {
			subs = append(subs, copySubmission(*s))
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].SubmittedAt.Equal(subs[j].SubmittedAt) {
			return subs[i].ID < subs[j].ID
		}
		return subs[i].SubmittedAt.Before(subs[j].SubmittedAt)
	})
	return subs, nil
}

func (repo *submissionRepository) UpdateSubmission(_ context.Context, id string, fn func(s *submission.Submission) error) (submission.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.submissions[id]
	if !ok {
		return submission.Submission{}, core.NewNotFoundError(submission.Entity, id)
	}
	s := copySubmission(*orig)
	if err := fn(&s); err != nil {
		return submission.Submission{}, err
	}
	s.ID, s.AssignmentID, s.StudentID = orig.ID, orig.AssignmentID, orig.StudentID
	stored := copySubmission(s)
	repo.db.submissions[id] = &stored
	return s, nil
}
