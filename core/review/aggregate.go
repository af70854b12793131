package review

import (
	"math"
	"sort"
	"strings"
)

// CourseKey identifies a distinct course in aggregates.
type CourseKey struct {
	CourseType  string `json:"course_type"`
	FacultyCode string `json:"faculty"`
	CourseCode  string `json:"course_code"`
	CourseName  string `json:"course_name"`
}

type Stats struct {
	Count   int     `json:"count"`
	Sum     int     `json:"sum"`
	Average float64 `json:"average"`
}

// Aggregate computes per-course rating statistics from scratch.
// Courses without reviews are absent from the result.
func Aggregate(reviews []Review) map[CourseKey]Stats {
	stats := make(map[CourseKey]Stats)
	for _, r := range reviews {
		key := CourseKey{CourseType: r.CourseType, FacultyCode: r.FacultyCode, CourseCode: r.CourseCode, CourseName: r.CourseName}
		s := stats[key]
		s.Count++
		s.Sum += r.Rating
		stats[key] = s
	}
	for key, s := range stats {
		s.Average = float64(s.Sum) / float64(s.Count)
		stats[key] = s
	}
	return stats
}

// SummaryRow is one line of the course overview table.
type SummaryRow struct {
	CourseKey
	FacultyName string  `json:"faculty_name"`
	Count       int     `json:"count"`
	Average     float64 `json:"average"` // rounded to 2 decimals
	Stars       string  `json:"stars"`
}

// Summarize aggregates reviews into overview rows sorted by course type, faculty, course code and name.
func Summarize(reviews []Review) []SummaryRow {
	facultyNames := make(map[CourseKey]string)
	for _, r := range reviews {
		key := CourseKey{CourseType: r.CourseType, FacultyCode: r.FacultyCode, CourseCode: r.CourseCode, CourseName: r.CourseName}
		if _, ok := facultyNames[key]; !ok {
			facultyNames[key] = r.FacultyName
		}
	}

	rows := make([]SummaryRow, 0, len(facultyNames))
	for key, s := range Aggregate(reviews) {
		rows = append(rows, SummaryRow{
			CourseKey:   key,
			FacultyName: facultyNames[key],
			Count:       s.Count,
			Average:     math.Round(s.Average*100) / 100,
			Stars:       StarString(int(math.Round(s.Average))),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].CourseKey, rows[j].CourseKey
		if a.CourseType != b.CourseType {
			return a.CourseType < b.CourseType
		}
		if a.FacultyCode != b.FacultyCode {
			return a.FacultyCode < b.FacultyCode
		}
		if a.CourseCode != b.CourseCode {
			return a.CourseCode < b.CourseCode
		}
		return a.CourseName < b.CourseName
	})
	return rows
}

// StarString renders n filled stars out of MaxRating.
func StarString(n int) string {
	if n < 0 {
		n = 0
	} else if n > MaxRating {
		n = MaxRating
	}
	return strings.Repeat("★", n) + strings.Repeat("☆", MaxRating-n)
}
