// Package inmemdb keeps every table in process memory. It backs the tests and local runs without PostgreSQL.
package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/minimoodle/core/account"
	"github.com/trezcool/minimoodle/core/course"
	"github.com/trezcool/minimoodle/core/enrollment"
	"github.com/trezcool/minimoodle/core/submission"
)

// DB guards all tables with a single lock so that every read-modify-write,
// including the cascades, is atomic across tables.
type DB struct {
	mutex       sync.RWMutex
	accounts    map[string]*account.Account
	courses     map[string]*course.Course
	lessons     map[string]*course.Lesson
	assignments map[string]*course.Assignment
	enrollments map[string]*enrollment.Enrollment
	submissions map[string]*submission.Submission
}

func NewDB() *DB {
	return &DB{
		accounts:    make(map[string]*account.Account),
		courses:     make(map[string]*course.Course),
		lessons:     make(map[string]*course.Lesson),
		assignments: make(map[string]*course.Assignment),
		enrollments: make(map[string]*enrollment.Enrollment),
		submissions: make(map[string]*submission.Submission),
	}
}

func newID() string {
	return uuid.New().String()
}

func copyStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append(make([]string, 0, len(s)), s...)
}

func copyEnrollment(e enrollment.Enrollment) enrollment.Enrollment {
	e.CompletedLessons = copyStrings(e.CompletedLessons)
	return e
}

func copySubmission(s submission.Submission) submission.Submission {
	if s.Grade != nil {
		g := *s.Grade
		s.Grade = &g
	}
	return s
}
