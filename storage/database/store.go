package database

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/review"
	"github.com/trezcool/coursereview/core/user"
	"github.com/trezcool/coursereview/storage"
)

var reviewColumns = []string{
	"id", "position", "course_type", "faculty", "faculty_name", "course_code", "course_name",
	"rating", "text", "author", "created_at", "status",
}

var userColumns = []string{"email", "position", "password_salt", "password_hash", "role", "display", "is_verified", "created_at"}

var tokenColumns = []string{"token", "position", "email", "kind", "used", "created_at"}

type (
	reviewRow struct {
		ID          string `db:"id"`
		Position    int64  `db:"position"`
		CourseType  string `db:"course_type"`
		FacultyCode string `db:"faculty"`
		FacultyName string `db:"faculty_name"`
		CourseCode  string `db:"course_code"`
		CourseName  string `db:"course_name"`
		Rating      int    `db:"rating"`
		Text        string `db:"text"`
		Author      string `db:"author"`
		CreatedAt   string `db:"created_at"`
		Status      string `db:"status"`
	}

	userRow struct {
		Email        string `db:"email"`
		Position     int64  `db:"position"`
		PasswordSalt string `db:"password_salt"`
		PasswordHash string `db:"password_hash"`
		Role         string `db:"role"`
		Display      string `db:"display"`
		IsVerified   bool   `db:"is_verified"`
		CreatedAt    string `db:"created_at"`
	}

	tokenRow struct {
		Token     string `db:"token"`
		Position  int64  `db:"position"`
		Email     string `db:"email"`
		Kind      string `db:"kind"`
		Used      bool   `db:"used"`
		CreatedAt string `db:"created_at"`
	}
)

// Store keeps each collection in its own table; meta holds the document version.
type Store struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

var _ storage.Backend = (*Store)(nil)

func New(db *sqlx.DB) *Store {
	var ph sq.PlaceholderFormat = sq.Dollar
	if db.DriverName() == "sqlite" {
		ph = sq.Question
	}
	return &Store{db: db, sb: sq.StatementBuilder.PlaceholderFormat(ph)}
}

func (s *Store) Load(ctx context.Context) (storage.Document, error) {
	var doc storage.Document
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return doc, classify("load", err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer tx.Rollback()

	if doc, err = s.load(ctx, tx); err != nil {
		return doc, classify("load", err)
	}
	if err := tx.Commit(); err != nil {
		return doc, classify("load", err)
	}
	return doc, nil
}

func (s *Store) load(ctx context.Context, tx *sqlx.Tx) (storage.Document, error) {
	var doc storage.Document
	version, err := s.version(ctx, tx)
	if err != nil {
		return doc, err
	}
	doc.Version = version

	var reviews []reviewRow
	if err := s.selectRows(ctx, tx, &reviews, s.sb.Select(reviewColumns...).From("reviews").OrderBy("position", "id")); err != nil {
		return doc, errors.Wrap(err, "selecting reviews")
	}
	for _, row := range reviews {
		r, err := row.review()
		if err != nil {
			return doc, err
		}
		if r.Status == review.StatusApproved {
			doc.Approved = append(doc.Approved, r)
		} else {
			doc.Pending = append(doc.Pending, r)
		}
	}

	var users []userRow
	if err := s.selectRows(ctx, tx, &users, s.sb.Select(userColumns...).From("users").OrderBy("position", "email")); err != nil {
		return doc, errors.Wrap(err, "selecting users")
	}
	for _, row := range users {
		createdAt, err := parseTime(row.CreatedAt)
		if err != nil {
			return doc, errors.Wrapf(err, "user %s", row.Email)
		}
		doc.Users = append(doc.Users, user.User{
			Email:        row.Email,
			PasswordSalt: row.PasswordSalt,
			PasswordHash: row.PasswordHash,
			Role:         row.Role,
			Display:      row.Display,
			IsVerified:   row.IsVerified,
			CreatedAt:    createdAt,
		})
	}

	var tokens []tokenRow
	if err := s.selectRows(ctx, tx, &tokens, s.sb.Select(tokenColumns...).From("tokens").OrderBy("position", "token")); err != nil {
		return doc, errors.Wrap(err, "selecting tokens")
	}
	for _, row := range tokens {
		createdAt, err := parseTime(row.CreatedAt)
		if err != nil {
			return doc, errors.Wrap(err, "token")
		}
		doc.Tokens = append(doc.Tokens, user.Token{Token: row.Token, Email: row.Email, Kind: row.Kind, Used: row.Used, CreatedAt: createdAt})
	}

	doc.Normalize()
	return doc, nil
}

func (s *Store) version(ctx context.Context, tx *sqlx.Tx) (int64, error) {
	query, args, err := s.sb.Select("version").From("meta").Where(sq.Eq{"id": 1}).ToSql()
	if err != nil {
		return 0, err
	}
	var version int64
	if err := tx.GetContext(ctx, &version, query, args...); err != nil {
		return 0, errors.Wrap(err, "reading version")
	}
	return version, nil
}

func (s *Store) selectRows(ctx context.Context, tx *sqlx.Tx, dest interface{}, b sq.SelectBuilder) error {
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	return tx.SelectContext(ctx, dest, query, args...)
}

// Save bumps the version only if it is still doc.Version, then upserts every record and deletes the
// ones absent from doc, all in one transaction.
func (s *Store) Save(ctx context.Context, doc storage.Document) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("save", err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer tx.Rollback()

	if err := s.bumpVersion(ctx, tx, doc.Version); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return err
		}
		return classify("save", err)
	}
	if err := s.saveReviews(ctx, tx, doc); err != nil {
		return classify("save", err)
	}
	if err := s.saveUsers(ctx, tx, doc.Users); err != nil {
		return classify("save", err)
	}
	if err := s.saveTokens(ctx, tx, doc.Tokens); err != nil {
		return classify("save", err)
	}
	if err := tx.Commit(); err != nil {
		return classify("save", err)
	}
	return nil
}

func (s *Store) bumpVersion(ctx context.Context, tx *sqlx.Tx, version int64) error {
	res, err := s.sb.Update("meta").
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": 1, "version": version}).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return errors.Wrap(err, "updating version")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "updating version")
	}
	if n == 0 {
		stored, err := s.version(ctx, tx)
		if err != nil {
			return err
		}
		return storage.CheckVersion(stored, version)
	}
	return nil
}

func (s *Store) saveReviews(ctx context.Context, tx *sqlx.Tx, doc storage.Document) error {
	all := make([]review.Review, 0, len(doc.Pending)+len(doc.Approved))
	all = append(all, doc.Pending...)
	all = append(all, doc.Approved...)

	ids := make([]string, 0, len(all))
	for i, r := range all {
		_, err := s.sb.Insert("reviews").Columns(reviewColumns...).
			Values(r.ID, i, r.CourseType, r.FacultyCode, r.FacultyName, r.CourseCode, r.CourseName,
				r.Rating, r.Text, r.Author, formatTime(r.CreatedAt), string(r.Status)).
			Suffix(upsertSuffix("id", reviewColumns)).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return errors.Wrapf(err, "upserting review %s", r.ID)
		}
		ids = append(ids, r.ID)
	}
	return s.deleteMissing(ctx, tx, "reviews", "id", ids)
}

func (s *Store) saveUsers(ctx context.Context, tx *sqlx.Tx, users []user.User) error {
	emails := make([]string, 0, len(users))
	for i, u := range users {
		_, err := s.sb.Insert("users").Columns(userColumns...).
			Values(u.Email, i, u.PasswordSalt, u.PasswordHash, u.Role, u.Display, u.IsVerified, formatTime(u.CreatedAt)).
			Suffix(upsertSuffix("email", userColumns)).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return errors.Wrapf(err, "upserting user %s", u.Email)
		}
		emails = append(emails, u.Email)
	}
	return s.deleteMissing(ctx, tx, "users", "email", emails)
}

func (s *Store) saveTokens(ctx context.Context, tx *sqlx.Tx, tokens []user.Token) error {
	keys := make([]string, 0, len(tokens))
	for i, t := range tokens {
		_, err := s.sb.Insert("tokens").Columns(tokenColumns...).
			Values(t.Token, i, t.Email, t.Kind, t.Used, formatTime(t.CreatedAt)).
			Suffix(upsertSuffix("token", tokenColumns)).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return errors.Wrap(err, "upserting token")
		}
		keys = append(keys, t.Token)
	}
	return s.deleteMissing(ctx, tx, "tokens", "token", keys)
}

// deleteMissing removes the rows of table whose key is not in keys. An empty keys deletes every row.
func (s *Store) deleteMissing(ctx context.Context, tx *sqlx.Tx, table, key string, keys []string) error {
	_, err := s.sb.Delete(table).Where(sq.NotEq{key: keys}).RunWith(tx).ExecContext(ctx)
	return errors.Wrapf(err, "deleting from %s", table)
}

// upsertSuffix builds the ON CONFLICT clause updating every column but the key.
func upsertSuffix(key string, columns []string) string {
	suffix := "ON CONFLICT (" + key + ") DO UPDATE SET "
	first := true
	for _, col := range columns {
		if col == key {
			continue
		}
		if !first {
			suffix += ", "
		}
		suffix += col + " = EXCLUDED." + col
		first = false
	}
	return suffix
}

func (s *Store) Close() error { return s.db.Close() }

func (row reviewRow) review() (review.Review, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return review.Review{}, errors.Wrapf(err, "review %s", row.ID)
	}
	return review.Review{
		ID:          row.ID,
		CourseType:  row.CourseType,
		FacultyCode: row.FacultyCode,
		FacultyName: row.FacultyName,
		CourseCode:  row.CourseCode,
		CourseName:  row.CourseName,
		Rating:      row.Rating,
		Text:        row.Text,
		Author:      row.Author,
		CreatedAt:   createdAt,
		Status:      review.Status(row.Status),
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
