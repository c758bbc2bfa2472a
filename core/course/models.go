package course

import (
	"time"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/access"
)

const (
	Entity           = "course"
	LessonEntity     = "lesson"
	AssignmentEntity = "assignment"
)

type Course struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category,omitempty"`
	// DurationDays is the length of every enrollment's access window.
	DurationDays int `json:"duration_days"`
	// MaxStudents caps the approved enrollments. 0 is unlimited.
	MaxStudents int       `json:"max_students"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// Resource is the target of course scoped actions: owned by the course instructor.
func (c Course) Resource() access.Resource {
	return access.Owned(c.OwnerID)
}

type Lesson struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	VideoURL string `json:"video_url,omitempty"`
	// Order is the display position; lessons sharing it are shown by creation time.
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type Assignment struct {
	ID          string `json:"id"`
	CourseID    string `json:"course_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	// RelativeDueDays is counted from the student's enrollment date.
	RelativeDueDays int       `json:"relative_due_days"`
	CreatedAt       time.Time `json:"created_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title        string `json:"title" validate:"required,notblank,max=200"`
	Description  string `json:"description"`
	Category     string `json:"category" validate:"max=100"`
	DurationDays int    `json:"duration_days" validate:"gte=0"`
	MaxStudents  int    `json:"max_students" validate:"gte=0"`
}

func (nc *NewCourse) Clean() {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Category = core.CleanString(nc.Category)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// Nil fields are left unchanged.
type UpdateCourse struct {
	Title        *string `json:"title" validate:"omitempty,notblank,max=200"`
	Description  *string `json:"description"`
	Category     *string `json:"category" validate:"omitempty,max=100"`
	DurationDays *int    `json:"duration_days" validate:"omitempty,gt=0"`
	MaxStudents  *int    `json:"max_students" validate:"omitempty,gte=0"`
}

func (uc *UpdateCourse) Clean() {
	for _, s := range []*string{uc.Title, uc.Description, uc.Category} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
}

func (uc UpdateCourse) apply(c *Course) {
	if uc.Title != nil {
		c.Title = *uc.Title
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.Category != nil {
		c.Category = *uc.Category
	}
	if uc.DurationDays != nil {
		c.DurationDays = *uc.DurationDays
	}
	if uc.MaxStudents != nil {
		c.MaxStudents = *uc.MaxStudents
	}
}

type NewLesson struct {
	Title    string `json:"title" validate:"required,notblank,max=200"`
	Content  string `json:"content"`
	VideoURL string `json:"video_url" validate:"omitempty,url"`
	Order    int    `json:"order" validate:"gte=0"`
}

func (nl *NewLesson) Clean() {
	nl.Title = core.CleanString(nl.Title)
	nl.VideoURL = core.CleanString(nl.VideoURL)
}

type NewAssignment struct {
	Title           string `json:"title" validate:"required,notblank,max=200"`
	Description     string `json:"description"`
	RelativeDueDays int    `json:"relative_due_days" validate:"gt=0"`
}

func (na *NewAssignment) Clean() {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
}

type QueryFilter struct {
	OwnerID  string `query:"owner"`
	Search   string `query:"search"`
	Category string `query:"category"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Category = core.CleanString(qf.Category)
}
