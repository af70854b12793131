package review

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/coursereview/core"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
)

const (
	MinRating     = 1
	MaxRating     = 5
	MaxTextLength = 1200
)

// Review is one student's evaluation of one course.
// Only Status changes after creation, and only when the review is approved.
type Review struct {
	ID          string    `json:"id"`
	CourseType  string    `json:"course_type"`
	FacultyCode string    `json:"faculty"`
	FacultyName string    `json:"faculty_name"`
	CourseCode  string    `json:"course_code"`
	CourseName  string    `json:"course_name"`
	Rating      int       `json:"rating"`
	Text        string    `json:"text"`
	Author      string    `json:"author,omitempty"` // hidden from public views
	CreatedAt   time.Time `json:"created_at"` // UTC, second precision
	Status      Status    `json:"status"`
}

// NewReview contains the information a student provides to review a course.
type NewReview struct {
	CourseCode string `json:"course_code" validate:"required,coursecode"`
	Rating     int    `json:"rating" validate:"required,min=1,max=5"`
	Text       string `json:"text" validate:"max=1200,nocontrol"`
}

func (nr *NewReview) Validate(validate *validator.Validate) error {
	nr.CourseCode = core.CleanString(nr.CourseCode)
	nr.Text = core.CleanString(nr.Text)
	return validate.Struct(nr)
}

// Collections is a snapshot of both review collections.
// Version is the store version the snapshot was read at; Stale is set when it was served from a fallback cache.
type Collections struct {
	Version  int64
	Pending  []Review
	Approved []Review
	Stale    bool
}

func (cols Collections) find(id string) (Review, bool) {
	for _, r := range cols.Pending {
		if r.ID == id {
			return r, true
		}
	}
	for _, r := range cols.Approved {
		if r.ID == id {
			return r, true
		}
	}
	return Review{}, false
}

// Result reports the outcome of a moderation decision.
// Ids absent from the pending collection are reported in NotFound; they never abort a batch.
type Result struct {
	Processed []string `json:"processed"`
	NotFound  []string `json:"not_found"`
}

type Page struct {
	Reviews []Review `json:"results"`
	Total   int      `json:"total"`
	Stale   bool     `json:"stale"`
}

type SummaryPage struct {
	Rows  []SummaryRow `json:"results"`
	Stale bool         `json:"stale"`
}

type Counts struct {
	Pending  int  `json:"pending"`
	Approved int  `json:"approved"`
	Stale    bool `json:"stale"`
}
