package review

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Export formats
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// CSVHeader is the column order of exported and persisted review rows.
var CSVHeader = []string{
	"id", "course_type", "faculty", "faculty_name", "course_code", "course_name",
	"rating", "text", "author", "created_at", "status",
}

// Row encodes r in CSVHeader order.
func (r Review) Row() []string {
	return []string{
		r.ID, r.CourseType, r.FacultyCode, r.FacultyName, r.CourseCode, r.CourseName,
		strconv.Itoa(r.Rating), r.Text, r.Author, r.CreatedAt.UTC().Format(time.RFC3339), string(r.Status),
	}
}

// WriteCSV writes reviews with a header row.
func WriteCSV(w io.Writer, reviews []Review) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, r := range reviews {
		if err := cw.Write(r.Row()); err != nil {
			return errors.Wrapf(err, "writing review %s", r.ID)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}

type jsonDump struct {
	ExportedAt time.Time `json:"exported_at"`
	Pending    []Review  `json:"pending_reviews"`
	Approved   []Review  `json:"approved_reviews"`
}

// WriteJSON dumps both collections. Accounts are never part of the dump.
func WriteJSON(w io.Writer, cols Collections, exportedAt time.Time) error {
	dump := jsonDump{ExportedAt: exportedAt.UTC().Truncate(time.Second), Pending: cols.Pending, Approved: cols.Approved}
	if dump.Pending == nil {
		dump.Pending = []Review{}
	}
	if dump.Approved == nil {
		dump.Approved = []Review{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(dump), "encoding json dump")
}
