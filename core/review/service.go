package review

import (
	"context"
	"fmt"
	"io"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core"
)

const defaultMaxRetries = 3

var (
	errStaleSnapshot = errors.New("store unreachable: only a cached snapshot is available")
	errNoIDs         = errors.New("no review ids provided")
	errUnknownFormat = errors.New("unknown export format")

	nowFunc = time.Now // mockable
	newID   = func() string { return uuid.NewString() }
)

type (
	// Repository loads and saves both review collections as one document.
	// Save fails with core.ErrConflict when the store changed since Collections.Version was read.
	Repository interface {
		Load(ctx context.Context) (Collections, error)
		Save(ctx context.Context, cols Collections) error
	}

	// Recorder observes moderation activity.
	Recorder interface {
		ReviewSubmitted(courseType string)
		ReviewsModerated(decision string, n int)
	}

	ServiceDeps struct {
		Repo       Repository
		Courses    CourseResolver
		Validate   *validator.Validate
		Translator ut.Translator
		Logger     core.Logger
		Recorder   Recorder // optional
		MaxRetries int      // retries on core.ErrConflict
	}

	Service struct {
		repo       Repository
		courses    CourseResolver
		validate   *validator.Validate
		translator ut.Translator
		logger     core.Logger
		recorder   Recorder
		maxRetries int
	}
)

type decision string

const (
	decisionApprove decision = "approve"
	decisionReject  decision = "reject"
)

func NewService(deps ServiceDeps) *Service {
	svc := &Service{
		repo:       deps.Repo,
		courses:    deps.Courses,
		validate:   deps.Validate,
		translator: deps.Translator,
		logger:     deps.Logger,
		recorder:   deps.Recorder,
		maxRetries: deps.MaxRetries,
	}
	if svc.maxRetries <= 0 {
		svc.maxRetries = defaultMaxRetries
	}
	if svc.recorder == nil {
		svc.recorder = nopRecorder{}
	}
	return svc
}

// mutate loads a fresh snapshot, applies fn and saves the result.
// fn is re-run on a fresh snapshot whenever the save loses a race with another writer.
// Nothing is saved when fn reports no change.
func (svc *Service) mutate(ctx context.Context, fn func(cols *Collections) (bool, error)) error {
	for attempt := 0; ; attempt++ {
		cols, err := svc.repo.Load(ctx)
		if err != nil {
			return errors.Wrap(err, "loading reviews")
		}
		if cols.Stale {
			return core.NewStoreError("load", errStaleSnapshot, false)
		}

		changed, err := fn(&cols)
		if err != nil || !changed {
			return err
		}

		err = svc.repo.Save(ctx, cols)
		if err == nil {
			return nil
		}
		if !errors.Is(err, core.ErrConflict) || attempt >= svc.maxRetries {
			return errors.Wrap(err, "saving reviews")
		}
		svc.logger.Warn(fmt.Sprintf("review store conflict, retrying (%d/%d)", attempt+1, svc.maxRetries))
	}
}

// Submit validates nr and appends a new pending review authored by p.
func (svc *Service) Submit(ctx context.Context, p core.Principal, nr NewReview) (Review, error) {
	if err := nr.Validate(svc.validate); err != nil {
		return Review{}, core.TranslateValidationErrors(err, svc.translator)
	}
	course, ok := svc.courses.Lookup(nr.CourseCode)
	if !ok { // catalog changed under the validator
		return Review{}, core.NewValidationError(nil, core.FieldError{Field: "course_code", Error: "course_code must be a known course code"})
	}

	var rev Review
	err := svc.mutate(ctx, func(cols *Collections) (bool, error) {
		id := newID()
		for _, exists := cols.find(id); exists; _, exists = cols.find(id) {
			id = newID()
		}
		rev = Review{
			ID:          id,
			CourseType:  course.Type,
			FacultyCode: course.FacultyCode,
			FacultyName: course.FacultyName,
			CourseCode:  course.Code,
			CourseName:  course.Name,
			Rating:      nr.Rating,
			Text:        nr.Text,
			Author:      p.Author(),
			CreatedAt:   nowFunc().UTC().Truncate(time.Second),
			Status:      StatusPending,
		}
		cols.Pending = append(append(make([]Review, 0, len(cols.Pending)+1), cols.Pending...), rev)
		return true, nil
	})
	if err != nil {
		return Review{}, err
	}
	svc.recorder.ReviewSubmitted(rev.CourseType)
	return rev, nil
}

func (svc *Service) Approve(ctx context.Context, p core.Principal, id string) (Result, error) {
	return svc.moderate(ctx, p, decisionApprove, []string{id})
}

func (svc *Service) Reject(ctx context.Context, p core.Principal, id string) (Result, error) {
	return svc.moderate(ctx, p, decisionReject, []string{id})
}

func (svc *Service) ApproveMany(ctx context.Context, p core.Principal, ids []string) (Result, error) {
	return svc.moderate(ctx, p, decisionApprove, ids)
}

func (svc *Service) RejectMany(ctx context.Context, p core.Principal, ids []string) (Result, error) {
	return svc.moderate(ctx, p, decisionReject, ids)
}

// moderate applies d to every pending review in ids and persists the whole batch with a single save.
func (svc *Service) moderate(ctx context.Context, p core.Principal, d decision, ids []string) (Result, error) {
	if !p.IsAdmin() {
		return Result{}, core.ErrPermissionDenied
	}
	ids = cleanIDs(ids)
	if len(ids) == 0 {
		return Result{}, core.NewValidationError(errNoIDs, core.FieldError{Field: "ids", Error: "this field is required"})
	}

	var res Result
	err := svc.mutate(ctx, func(cols *Collections) (bool, error) {
		wanted := make(map[string]bool, len(ids))
		for _, id := range ids {
			wanted[id] = true
		}

		found := make(map[string]bool, len(ids))
		pending := make([]Review, 0, len(cols.Pending))
		approved := append(make([]Review, 0, len(cols.Approved)+len(ids)), cols.Approved...)
		for _, r := range cols.Pending {
			if !wanted[r.ID] {
				pending = append(pending, r)
				continue
			}
			found[r.ID] = true
			if d == decisionApprove {
				r.Status = StatusApproved
				approved = append(approved, r)
			}
		}

		res = Result{Processed: make([]string, 0, len(found)), NotFound: make([]string, 0)}
		for _, id := range ids {
			if found[id] {
				res.Processed = append(res.Processed, id)
			} else {
				res.NotFound = append(res.NotFound, id)
			}
		}
		if len(res.Processed) == 0 {
			return false, nil
		}
		cols.Pending = pending
		cols.Approved = approved
		return true, nil
	})
	if err != nil {
		return Result{}, err
	}

	if n := len(res.Processed); n > 0 {
		svc.recorder.ReviewsModerated(string(d), n)
		svc.logger.Info(
			fmt.Sprintf("reviews moderated: %s %d", d, n),
			map[string]interface{}{"decision": string(d), "ids": res.Processed, "not_found": res.NotFound},
			p,
		)
	}
	return res, nil
}

// cleanIDs trims ids and drops blanks and duplicates, keeping the first occurrence order.
func cleanIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		id = core.CleanString(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		res = append(res, id)
	}
	return res
}

// Pending returns the moderator's view of the pending collection.
func (svc *Service) Pending(ctx context.Context, p core.Principal, q Query) (Page, error) {
	if !p.IsAdmin() {
		return Page{}, core.ErrPermissionDenied
	}
	cols, err := svc.repo.Load(ctx)
	if err != nil {
		return Page{}, errors.Wrap(err, "loading reviews")
	}
	return newPage(q.Run(cols.Pending), cols.Stale), nil
}

// Approved returns the public view of the approved collection. Authors are left out.
func (svc *Service) Approved(ctx context.Context, q Query) (Page, error) {
	cols, err := svc.repo.Load(ctx)
	if err != nil {
		return Page{}, errors.Wrap(err, "loading reviews")
	}
	reviews := q.Run(cols.Approved)
	for i := range reviews {
		reviews[i].Author = ""
	}
	return newPage(reviews, cols.Stale), nil
}

func newPage(reviews []Review, stale bool) Page {
	return Page{Reviews: reviews, Total: len(reviews), Stale: stale}
}

// Summary aggregates the approved reviews matching q.
func (svc *Service) Summary(ctx context.Context, q Query) (SummaryPage, error) {
	cols, err := svc.repo.Load(ctx)
	if err != nil {
		return SummaryPage{}, errors.Wrap(err, "loading reviews")
	}
	return SummaryPage{Rows: Summarize(q.Filter.Apply(cols.Approved)), Stale: cols.Stale}, nil
}

func (svc *Service) Counts(ctx context.Context) (Counts, error) {
	cols, err := svc.repo.Load(ctx)
	if err != nil {
		return Counts{}, errors.Wrap(err, "loading reviews")
	}
	return Counts{Pending: len(cols.Pending), Approved: len(cols.Approved), Stale: cols.Stale}, nil
}

// Export writes a point-in-time snapshot: the approved collection as CSV, or both collections as JSON.
// A cached snapshot is refused like a write: an export must reflect the store.
func (svc *Service) Export(ctx context.Context, p core.Principal, format string, w io.Writer) error {
	if !p.IsAdmin() {
		return core.ErrPermissionDenied
	}
	if format != FormatCSV && format != FormatJSON {
		return core.NewValidationError(errUnknownFormat, core.FieldError{Field: "format", Error: "format must be one of: csv, json"})
	}
	cols, err := svc.repo.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "loading reviews")
	}
	if cols.Stale {
		return core.NewStoreError("export", errStaleSnapshot, false)
	}
	if format == FormatCSV {
		return WriteCSV(w, cols.Approved)
	}
	return WriteJSON(w, cols, nowFunc())
}

type nopRecorder struct{}

func (nopRecorder) ReviewSubmitted(string)       {}
func (nopRecorder) ReviewsModerated(string, int) {}
