// Package progress derives read-only progress facts from enrollments, lessons and submissions.
// Nothing here is stored: every figure is recomputed from current data.
package progress

import (
	"github.com/trezcool/minimoodle/core/course"
	"github.com/trezcool/minimoodle/core/enrollment"
)

// CompletedCount is the number of the course's current lessons e has completed.
// Completions of lessons that no longer exist do not count.
func CompletedCount(e enrollment.Enrollment, lessons []course.Lesson) int {
	var n int
	for _, l := range lessons {
		if l.CourseID == e.CourseID && e.HasCompleted(l.ID) {
			n++
		}
	}
	return n
}

// RemainingLessons is the number of lessons left to complete. Never negative.
func RemainingLessons(e enrollment.Enrollment, lessons []course.Lesson) int {
	return courseLessons(e, lessons) - CompletedCount(e, lessons)
}

// LessonProgress is the completed share of the course lessons as a percentage rounded down.
// A course without lessons is at 0.
func LessonProgress(e enrollment.Enrollment, lessons []course.Lesson) int {
	total := courseLessons(e, lessons)
	if total == 0 {
		return 0
	}
	return 100 * CompletedCount(e, lessons) / total
}

func courseLessons(e enrollment.Enrollment, lessons []course.Lesson) int {
	var n int
	for _, l := range lessons {
		if l.CourseID == e.CourseID {
			n++
		}
	}
	return n
}
