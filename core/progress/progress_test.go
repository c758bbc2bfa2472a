package progress

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/minimoodle/core/course"
	"github.com/trezcool/minimoodle/core/enrollment"
)

func lessons(courseID string, n int) []course.Lesson {
	ls := make([]course.Lesson, n)
	for i := range ls {
		ls[i] = course.Lesson{ID: fmt.Sprintf("%s-l%d", courseID, i), CourseID: courseID, Order: i}
	}
	return ls
}

func TestLessonCounts(t *testing.T) {
	tests := []struct {
		name          string
		lessons       []course.Lesson
		completed     []string
		wantCompleted int
		wantRemaining int
		wantProgress  int
	}{
		{name: "no lessons", wantProgress: 0},
		{name: "no lessons, stale completions", completed: []string{"gone"}, wantProgress: 0},
		{name: "none completed", lessons: lessons("c1", 4), wantRemaining: 4},
		{name: "one of three", lessons: lessons("c1", 3), completed: []string{"c1-l1"}, wantCompleted: 1, wantRemaining: 2, wantProgress: 33},
		{name: "two of three", lessons: lessons("c1", 3), completed: []string{"c1-l0", "c1-l2"}, wantCompleted: 2, wantRemaining: 1, wantProgress: 66},
		{name: "all", lessons: lessons("c1", 2), completed: []string{"c1-l0", "c1-l1"}, wantCompleted: 2, wantProgress: 100},
		{name: "deleted lesson ignored", lessons: lessons("c1", 2), completed: []string{"c1-l0", "c1-l9"}, wantCompleted: 1, wantRemaining: 1, wantProgress: 50},
		{name: "other course lessons ignored", lessons: append(lessons("c1", 2), lessons("c2", 2)...), completed: []string{"c1-l0", "c2-l0"}, wantCompleted: 1, wantRemaining: 1, wantProgress: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := enrollment.Enrollment{CourseID: "c1"}
			for _, id := range tt.completed {
				e.Complete(id)
			}
			assert.Equal(t, tt.wantCompleted, CompletedCount(e, tt.lessons))
			assert.Equal(t, tt.wantRemaining, RemainingLessons(e, tt.lessons))
			assert.Equal(t, tt.wantProgress, LessonProgress(e, tt.lessons))

			var courseLessons int
			for _, l := range tt.lessons {
				if l.CourseID == e.CourseID {
					courseLessons++
				}
			}
			assert.Equal(t, courseLessons, CompletedCount(e, tt.lessons)+RemainingLessons(e, tt.lessons))
		})
	}
}

func TestPendingAssignments(t *testing.T) {
	enrolledAt := time.Date(2021, time.March, 1, 9, 0, 0, 0, time.UTC)
	now := enrolledAt.Add(5 * 24 * time.Hour)

	active := Snapshot{
		Enrollment: enrollment.Enrollment{ID: "e1", CourseID: "c1", EnrolledAt: enrolledAt, IsApproved: true},
		Course:     course.Course{ID: "c1", Title: "Go", DurationDays: 30},
		Lessons:    lessons("c1", 3),
		Assignments: []course.Assignment{
			{ID: "a1", CourseID: "c1", RelativeDueDays: 10},
			{ID: "a2", CourseID: "c1", RelativeDueDays: 3},
			{ID: "a3", CourseID: "c1", RelativeDueDays: 20},
			{ID: "a1", CourseID: "c1", RelativeDueDays: 10},
		},
	}
	pending := Snapshot{
		Enrollment:  enrollment.Enrollment{ID: "e2", CourseID: "c2", EnrolledAt: enrolledAt},
		Course:      course.Course{ID: "c2", Title: "Rust", DurationDays: 30},
		Lessons:     lessons("c2", 2),
		Assignments: []course.Assignment{{ID: "b1", CourseID: "c2", RelativeDueDays: 5}},
	}
	expired := Snapshot{
		Enrollment:  enrollment.Enrollment{ID: "e3", CourseID: "c3", EnrolledAt: enrolledAt.Add(-60 * 24 * time.Hour), IsApproved: true},
		Course:      course.Course{ID: "c3", Title: "Cooking", DurationDays: 30},
		Lessons:     lessons("c3", 2),
		Assignments: []course.Assignment{{ID: "d1", CourseID: "c3", RelativeDueDays: 5}},
	}
	snaps := []Snapshot{active, pending, expired}
	submitted := map[string]bool{"a3": true}

	got := PendingAssignments(snaps, submitted, now)
	ids := make([]string, 0, len(got))
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"a1", "a2"}, ids)
	assert.Equal(t, 2, PendingAssignmentCount(snaps, submitted, now))
	assert.Equal(t, 3, TotalRemainingLessons(snaps, now))

	t.Run("overview", func(t *testing.T) {
		ov := buildOverview("s1", snaps, submitted, now)

		assert.Equal(t, "s1", ov.StudentID)
		assert.Equal(t, 1, ov.ActiveEnrollments)
		assert.Equal(t, 2, ov.PendingAssignmentCount)
		assert.Equal(t, 3, ov.TotalRemainingLessons)
		if assert.Len(t, ov.Enrollments, 3) {
			assert.Equal(t, enrollment.StateApproved, ov.Enrollments[0].State)
			assert.True(t, ov.Enrollments[0].Active)
			assert.Equal(t, 25, ov.Enrollments[0].DaysUntilExpiry)
			assert.Equal(t, enrollment.StatePending, ov.Enrollments[1].State)
			assert.False(t, ov.Enrollments[1].Active)
			assert.False(t, ov.Enrollments[2].Active)
			assert.Equal(t, -35, ov.Enrollments[2].DaysUntilExpiry)
		}
		if assert.Len(t, ov.PendingAssignments, 2) {
			// sorted by due date
			assert.Equal(t, "a2", ov.PendingAssignments[0].ID)
			assert.Equal(t, enrolledAt.Add(3*24*time.Hour), ov.PendingAssignments[0].DueDate)
			assert.Equal(t, -2, ov.PendingAssignments[0].DaysUntilDue)
			assert.Equal(t, "a1", ov.PendingAssignments[1].ID)
			assert.Equal(t, 5, ov.PendingAssignments[1].DaysUntilDue)
			assert.Equal(t, "Go", ov.PendingAssignments[1].CourseTitle)
		}
	})
}
