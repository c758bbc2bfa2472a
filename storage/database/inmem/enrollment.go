package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/course"
	"github.com/trezcool/minimoodle/core/enrollment"
)

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func (repo *enrollmentRepository) find(studentID, courseID string) *enrollment.Enrollment {
	for _, e := range repo.db.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			return e
		}
	}
	return nil
}

func (repo *enrollmentRepository) GetOrCreateEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[e.CourseID]; !ok {
		return enrollment.Enrollment{}, false, core.NewNotFoundError(course.Entity, e.CourseID)
	}
	if existing := repo.find(e.StudentID, e.CourseID); existing != nil {
		return copyEnrollment(*existing), false, nil
	}
	e.ID = newID()
	e = copyEnrollment(e)
	stored := copyEnrollment(e)
	repo.db.enrollments[e.ID] = &stored
	return e, true, nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, id string) (enrollment.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if e, ok := repo.db.enrollments[id]; ok {
		return copyEnrollment(*e), nil
	}
	return enrollment.Enrollment{}, core.NewNotFoundError(enrollment.Entity, id)
}

func (repo *enrollmentRepository) FindEnrollment(_ context.Context, studentID, courseID string) (enrollment.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if e := repo.find(studentID, courseID); e != nil {
		return copyEnrollment(*e), nil
	}
	return enrollment.Enrollment{}, core.NewNotFoundError(enrollment.Entity, "")
}

func (repo *enrollmentRepository) QueryEnrollments(_ context.Context, filter enrollment.QueryFilter) ([]enrollment.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	enrs := make([]enrollment.Enrollment, 0)
	for _, e := range repo.db.enrollments {
		if filter.Match(*e) {
			enrs = append(enrs, copyEnrollment(*e))
		}
	}
	sort.Slice(enrs, func(i, j int) bool {
		if enrs[i].EnrolledAt.Equal(enrs[j].EnrolledAt) {
			return enrs[i].ID < enrs[j].ID
		}
		return enrs[i].EnrolledAt.Before(enrs[j].EnrolledAt)
	})
	return enrs, nil
}

func (repo *enrollmentRepository) seats(courseID string) enrollment.Seats {
	var seats enrollment.Seats
	if c, ok := repo.db.courses[courseID]; ok {
		seats.Capacity = c.MaxStudents
	}
	for _, e := range repo.db.enrollments {
		if e.CourseID != courseID {
			continue
		}
		if e.IsApproved {
			seats.Approved++
		} else {
			seats.Pending++
		}
	}
	return seats
}

func (repo *enrollmentRepository) UpdateEnrollment(_ context.Context, id string, fn func(e *enrollment.Enrollment, seats enrollment.Seats) error) (enrollment.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.enrollments[id]
	if !ok {
		return enrollment.Enrollment{}, core.NewNotFoundError(enrollment.Entity, id)
	}
	e := copyEnrollment(*orig)
	if err := fn(&e, repo.seats(orig.CourseID)); err != nil {
		return enrollment.Enrollment{}, err
	}
	e.ID, e.StudentID, e.CourseID = orig.ID, orig.StudentID, orig.CourseID
	stored := copyEnrollment(e)
	repo.db.enrollments[id] = &stored
	return e, nil
}

func (repo *enrollmentRepository) DeleteEnrollment(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.enrollments[id]; !ok {
		return core.NewNotFoundError(enrollment.Entity, id)
	}
	delete(repo.db.enrollments, id)
	return nil
}

func (repo *enrollmentRepository) CountSeats(_ context.Context, courseID string) (enrollment.Seats, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.seats(courseID), nil
}
