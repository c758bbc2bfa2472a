package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c.ID = newID()
	repo.db.courses[c.ID] = &c
	return c, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return *c, nil
	}
	return course.Course{}, core.NewNotFoundError(course.Entity, id)
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter course.QueryFilter) ([]course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	courses := make([]course.Course, 0)
	for _, c := range repo.db.courses {
		if filter.OwnerID != "" && c.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(c.Category, filter.Category) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Title), search) &&
			!strings.Contains(strings.ToLower(c.Description), search) {
			continue
		}
		courses = append(courses, *c)
	}
	sort.Slice(courses, func(i, j int) bool {
		if courses[i].CreatedAt.Equal(courses[j].CreatedAt) {
			return courses[i].ID < courses[j].ID
		}
		return courses[i].CreatedAt.After(courses[j].CreatedAt)
	})
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(_ context.Context, id string, fn func(c *course.Course) error) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.courses[id]
	if !ok {
		return course.Course{}, core.NewNotFoundError(course.Entity, id)
	}
	c := *orig
	if err := fn(&c); err != nil {
		return course.Course{}, err
	}
	c.ID, c.OwnerID = orig.ID, orig.OwnerID
	repo.db.courses[id] = &c
	return c, nil
}

func (repo *courseRepository) DeleteCourse(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[id]; !ok {
		return core.NewNotFoundError(course.Entity, id)
	}
	delete(repo.db.courses, id)
	for lid, l := range repo.db.lessons {
		if l.CourseID == id {
			delete(repo.db.lessons, lid)
		}
	}
	for aid, a := range repo.db.assignments {
		if a.CourseID == id {
			repo.deleteAssignment(aid)
		}
	}
	for eid, e := range repo.db.enrollments {
		if e.CourseID == id {
			delete(repo.db.enrollments, eid)
		}
	}
	return nil
}

func (repo *courseRepository) CreateLesson(_ context.Context, l course.Lesson) (course.Lesson, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[l.CourseID]; !ok {
		return course.Lesson{}, core.NewNotFoundError(course.Entity, l.CourseID)
	}
	l.ID = newID()
	repo.db.lessons[l.ID] = &l
	return l, nil
}

func (repo *courseRepository) GetLesson(_ context.Context, id string) (course.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if l, ok := repo.db.lessons[id]; ok {
		return *l, nil
	}
	return course.Lesson{}, core.NewNotFoundError(course.LessonEntity, id)
}

func (repo *courseRepository) QueryLessons(_ context.Context, courseID string) ([]course.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	lessons := make([]course.Lesson, 0)
	for _, l := range repo.db.lessons {
		if l.CourseID == courseID {
			lessons = append(lessons, *l)
		}
	}
	sort.Slice(lessons, func(i, j int) bool {
		li, lj := lessons[i], lessons[j]
		switch {
		case li.Order != lj.Order:
			return li.Order < lj.Order
		case !li.CreatedAt.Equal(lj.CreatedAt):
			return li.CreatedAt.Before(lj.CreatedAt)
		}
		return li.ID < lj.ID
	})
	return lessons, nil
}

func (repo *courseRepository) DeleteLesson(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	l, ok := repo.db.lessons[id]
	if !ok {
		return core.NewNotFoundError(course.LessonEntity, id)
	}
	delete(repo.db.lessons, id)
	for _, e := range repo.db.enrollments {
		if e.CourseID == l.CourseID {
			e.Uncomplete(id)
		}
	}
	return nil
}

func (repo *courseRepository) CreateAssignment(_ context.Context, a course.Assignment) (course.Assignment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[a.CourseID]; !ok {
		return course.Assignment{}, core.NewNotFoundError(course.Entity, a.CourseID)
	}
	a.ID = newID()
	repo.db.assignments[a.ID] = &a
	return a, nil
}

func (repo *courseRepository) GetAssignment(_ context.Context, id string) (course.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.assignments[id]; ok {
		return *a, nil
	}
	return course.Assignment{}, core.NewNotFoundError(course.AssignmentEntity, id)
}

func (repo *courseRepository) QueryAssignments(_ context.Context, courseIDs ...string) ([]course.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := make(map[string]bool, len(courseIDs))
	for _, id := range courseIDs {
		ids[id] = true
	}
	assignments := make([]course.Assignment, 0)
	for _, a := range repo.db.assignments {
		if ids[a.CourseID] {
			assignments = append(assignments, *a)
		}
	}
	sort.Slice(assignments, func(i, j int) bool {
		if assignments[i].CreatedAt.Equal(assignments[j].CreatedAt) {
			return assignments[i].ID < assignments[j].ID
		}
		return assignments[i].CreatedAt.Before(assignments[j].CreatedAt)
	})
	return assignments, nil
}

func (repo *courseRepository) DeleteAssignment(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.assignments[id]; !ok {
		return core.NewNotFoundError(course.AssignmentEntity, id)
	}
	repo.deleteAssignment(id)
	return nil
}

// deleteAssignment removes an assignment and its submissions. The caller holds the lock.
func (repo *courseRepository) deleteAssignment(id string) {
	delete(repo.db.assignments, id)
	for sid, s := range repo.db.submissions {
		if s.AssignmentID == id {
			delete(repo.db.submissions, sid)
		}
	}
}
