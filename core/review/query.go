package review

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core"
)

type Sort string

const (
	SortNewest     Sort = "-created_at"
	SortOldest     Sort = "created_at"
	SortRatingHigh Sort = "-rating"
	SortRatingLow  Sort = "rating"

	DefaultSort = SortNewest
)

const (
	orderingField  = "ordering"
	minRatingField = "min_rating"
)

var (
	errUnknownOrdering = errors.New("unknown ordering")
	errBadMinRating    = errors.New("min_rating must be between 0 and 5")
)

// ParseSort parses an ordering query value; the empty string selects DefaultSort.
func ParseSort(s string) (Sort, error) {
	ords := core.ParseOrdering(s)
	if len(ords) == 0 {
		return DefaultSort, nil
	}
	if len(ords) > 1 {
		return "", core.NewValidationError(errUnknownOrdering, core.FieldError{Field: orderingField, Error: "only one ordering is supported"})
	}
	switch srt := Sort(ords[0].String()); srt {
	case SortNewest, SortOldest, SortRatingHigh, SortRatingLow:
		return srt, nil
	default:
		return "", core.NewValidationError(errUnknownOrdering, core.FieldError{
			Field: orderingField,
			Error: "ordering must be one of: created_at, -created_at, rating, -rating",
		})
	}
}

// Filter selects reviews. Empty fields match everything; MinRating 0 means unset.
type Filter struct {
	CourseType  string `query:"course_type"`
	FacultyCode string `query:"faculty"`
	CourseCode  string `query:"course_code"`
	MinRating   int    `query:"min_rating"`
	Text        string `query:"q"`
}

func (f *Filter) Clean() {
	f.CourseType = core.CleanString(f.CourseType)
	f.FacultyCode = core.CleanString(f.FacultyCode)
	f.CourseCode = core.CleanString(f.CourseCode)
	f.Text = core.CleanString(f.Text)
}

func (f Filter) Validate() error {
	if f.MinRating < 0 || f.MinRating > MaxRating {
		return core.NewValidationError(errBadMinRating, core.FieldError{Field: minRatingField, Error: errBadMinRating.Error()})
	}
	return nil
}

// Match reports whether r satisfies every predicate of f.
// Text matches case-insensitively as a substring of the review text, course name or course code.
func (f Filter) Match(r Review) bool {
	if f.CourseType != "" && r.CourseType != f.CourseType {
		return false
	}
	if f.FacultyCode != "" && r.FacultyCode != f.FacultyCode {
		return false
	}
	if f.CourseCode != "" && r.CourseCode != f.CourseCode {
		return false
	}
	if f.MinRating > 0 && r.Rating < f.MinRating {
		return false
	}
	if f.Text != "" {
		q := strings.ToLower(f.Text)
		if !strings.Contains(strings.ToLower(r.Text), q) &&
			!strings.Contains(strings.ToLower(r.CourseName), q) &&
			!strings.Contains(strings.ToLower(r.CourseCode), q) {
			return false
		}
	}
	return true
}

// Apply returns the subset of reviews matching f, in their original order.
func (f Filter) Apply(reviews []Review) []Review {
	res := make([]Review, 0, len(reviews))
	for _, r := range reviews {
		if f.Match(r) {
			res = append(res, r)
		}
	}
	return res
}

// SortReviews returns a sorted copy of reviews. Ties keep their original order.
func SortReviews(reviews []Review, srt Sort) []Review {
	res := make([]Review, len(reviews))
	copy(res, reviews)

	var less func(i, j int) bool
	switch srt {
	case SortOldest:
		less = func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) }
	case SortRatingHigh:
		less = func(i, j int) bool { return res[i].Rating > res[j].Rating }
	case SortRatingLow:
		less = func(i, j int) bool { return res[i].Rating < res[j].Rating }
	default:
		less = func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) }
	}
	sort.SliceStable(res, less)
	return res
}

// Query is a filtered, sorted view over a collection.
type Query struct {
	Filter Filter
	Sort   Sort
}

// NewQuery cleans and validates a filter and an ordering value.
func NewQuery(f Filter, ordering string) (Query, error) {
	f.Clean()
	if err := f.Validate(); err != nil {
		return Query{}, err
	}
	srt, err := ParseSort(ordering)
	if err != nil {
		return Query{}, err
	}
	return Query{Filter: f, Sort: srt}, nil
}

func (q Query) Run(reviews []Review) []Review {
	return SortReviews(q.Filter.Apply(reviews), q.Sort)
}
