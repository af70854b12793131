package sheetstore

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/review"
	"github.com/trezcool/coursereview/core/user"
	"github.com/trezcool/coursereview/storage"
)

// Sheet names
const (
	sheetPending  = "pending"
	sheetApproved = "approved"
	sheetUsers    = "users"
	sheetTokens   = "tokens"
	sheetMeta     = "meta"
)

var (
	errUnrepresentable = errors.New("value contains characters a worksheet cell cannot hold")

	userHeader  = []string{"email", "password_salt", "password_hash", "role", "display", "is_verified", "created_at"}
	tokenHeader = []string{"token", "email", "kind", "used", "created_at"}
	metaHeader  = []string{"key", "value"}
)

// encode renders doc as an xlsx workbook. Ratings and the version are written as numbers, flags as booleans.
func encode(doc storage.Document) ([]byte, error) {
	f := excelize.NewFile()
	//goland:noinspection GoUnhandledErrorResult
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetPending); err != nil {
		return nil, errors.Wrap(err, "naming sheet")
	}
	for _, name := range []string{sheetApproved, sheetUsers, sheetTokens, sheetMeta} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, errors.Wrapf(err, "creating sheet %s", name)
		}
	}

	if err := writeRows(f, sheetPending, review.CSVHeader, reviewRows(doc.Pending)); err != nil {
		return nil, err
	}
	if err := writeRows(f, sheetApproved, review.CSVHeader, reviewRows(doc.Approved)); err != nil {
		return nil, err
	}

	users := make([][]interface{}, 0, len(doc.Users))
	for _, u := range doc.Users {
		users = append(users, []interface{}{u.Email, u.PasswordSalt, u.PasswordHash, u.Role, u.Display, u.IsVerified, formatTime(u.CreatedAt)})
	}
	if err := writeRows(f, sheetUsers, userHeader, users); err != nil {
		return nil, err
	}

	tokens := make([][]interface{}, 0, len(doc.Tokens))
	for _, t := range doc.Tokens {
		tokens = append(tokens, []interface{}{t.Token, t.Email, t.Kind, t.Used, formatTime(t.CreatedAt)})
	}
	if err := writeRows(f, sheetTokens, tokenHeader, tokens); err != nil {
		return nil, err
	}

	if err := writeRows(f, sheetMeta, metaHeader, [][]interface{}{{"version", doc.Version}}); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "writing workbook")
	}
	return buf.Bytes(), nil
}

func reviewRows(reviews []review.Review) [][]interface{} {
	rows := make([][]interface{}, 0, len(reviews))
	for _, r := range reviews {
		rows = append(rows, []interface{}{
			r.ID, r.CourseType, r.FacultyCode, r.FacultyName, r.CourseCode, r.CourseName,
			r.Rating, r.Text, r.Author, formatTime(r.CreatedAt), string(r.Status),
		})
	}
	return rows
}

func writeRows(f *excelize.File, sheet string, header []string, rows [][]interface{}) error {
	hdr := make([]interface{}, len(header))
	for i, h := range header {
		hdr[i] = h
	}
	for i, row := range append([][]interface{}{hdr}, rows...) {
		for j, v := range row {
			if str, ok := v.(string); ok && !core.IsPlainText(str) {
				return errors.Wrapf(errUnrepresentable, "%s row %d column %d", sheet, i+1, j+1)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.Wrapf(err, "%s row %d", sheet, i+1)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Wrapf(err, "writing %s row %d", sheet, i+1)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// decode parses a workbook written by encode or edited by hand.
// Columns are matched by header name; missing optional sheets decode as empty collections.
func decode(data []byte) (storage.Document, error) {
	var doc storage.Document
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return doc, errors.Wrap(err, "opening workbook")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer f.Close()

	if doc.Pending, err = decodeReviews(f, sheetPending); err != nil {
		return doc, err
	}
	if doc.Approved, err = decodeReviews(f, sheetApproved); err != nil {
		return doc, err
	}

	rows, err := readTable(f, sheetUsers, userHeader)
	if err != nil {
		return doc, err
	}
	for _, row := range rows {
		u := user.User{
			Email:        row.str("email"),
			PasswordSalt: row.str("password_salt"),
			PasswordHash: row.str("password_hash"),
			Role:         row.str("role"),
			Display:      row.str("display"),
		}
		if u.IsVerified, err = row.bool("is_verified"); err != nil {
			return doc, err
		}
		if u.CreatedAt, err = row.time("created_at"); err != nil {
			return doc, err
		}
		doc.Users = append(doc.Users, u)
	}

	if rows, err = readTable(f, sheetTokens, tokenHeader); err != nil {
		return doc, err
	}
	for _, row := range rows {
		t := user.Token{Token: row.str("token"), Email: row.str("email"), Kind: row.str("kind")}
		if t.Used, err = row.bool("used"); err != nil {
			return doc, err
		}
		if t.CreatedAt, err = row.time("created_at"); err != nil {
			return doc, err
		}
		doc.Tokens = append(doc.Tokens, t)
	}

	if rows, err = readTable(f, sheetMeta, metaHeader); err != nil {
		return doc, err
	}
	for _, row := range rows {
		if row.str("key") == "version" {
			v, err := parseInt(row.str("value"))
			if err != nil {
				return doc, errors.Wrapf(err, "%s row %d: version", sheetMeta, row.num)
			}
			doc.Version = v
		}
	}

	doc.Normalize()
	return doc, nil
}

func decodeReviews(f *excelize.File, sheet string) ([]review.Review, error) {
	rows, err := readTable(f, sheet, review.CSVHeader)
	if err != nil {
		return nil, err
	}
	reviews := make([]review.Review, 0, len(rows))
	for _, row := range rows {
		r := review.Review{
			ID:          row.str("id"),
			CourseType:  row.str("course_type"),
			FacultyCode: row.str("faculty"),
			FacultyName: row.str("faculty_name"),
			CourseCode:  row.str("course_code"),
			CourseName:  row.str("course_name"),
			Text:        row.str("text"),
			Author:      row.str("author"),
			Status:      review.Status(row.str("status")),
		}
		rating, err := parseInt(row.str("rating"))
		if err != nil || rating < review.MinRating || rating > review.MaxRating {
			return nil, errors.Errorf("%s row %d: bad rating %q", sheet, row.num, row.str("rating"))
		}
		r.Rating = int(rating)
		if r.Status == "" {
			r.Status = review.Status(sheet)
		}
		if r.CreatedAt, err = row.time("created_at"); err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}
	return reviews, nil
}

type tableRow struct {
	sheet  string
	num    int // 1-based, as displayed by spreadsheet tools
	cols   map[string]int
	values []string
}

func (r tableRow) str(col string) string {
	idx, ok := r.cols[col]
	if !ok || idx >= len(r.values) {
		return ""
	}
	return r.values[idx]
}

func (r tableRow) bool(col string) (bool, error) {
	b, err := parseBool(r.str(col))
	return b, errors.Wrapf(err, "%s row %d: %s", r.sheet, r.num, col)
}

func (r tableRow) time(col string) (time.Time, error) {
	s := strings.TrimSpace(r.str(col))
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "%s row %d: %s", r.sheet, r.num, col)
	}
	return t.UTC(), nil
}

// readTable returns the data rows of sheet, skipping blank rows.
// Every column of required must be present in the header row.
func readTable(f *excelize.File, sheet string, required []string) ([]tableRow, error) {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "looking up sheet %s", sheet)
	}
	if idx < 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "reading sheet %s", sheet)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, errors.Errorf("sheet %s: missing column %q", sheet, name)
		}
	}

	res := make([]tableRow, 0, len(rows)-1)
	for i, values := range rows[1:] {
		if blank(values) {
			continue
		}
		res = append(res, tableRow{sheet: sheet, num: i + 2, cols: cols, values: values})
	}
	return res, nil
}

func blank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseInt accepts integers written as numbers or text: "5", " 5 ", "5.0".
func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Errorf("not a number: %q", s)
	}
	if f != math.Trunc(f) {
		return 0, errors.Errorf("not an integer: %q", s)
	}
	return int64(f), nil
}

// parseBool accepts booleans written as TRUE/FALSE cells or as text; blank is false.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y":
		return true, nil
	case "false", "0", "no", "n", "":
		return false, nil
	}
	return false, errors.Errorf("not a boolean: %q", s)
}
