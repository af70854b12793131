package echoapi

import (
	"context"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/review"
	logsvc "github.com/trezcool/coursereview/services/logger"
	"github.com/trezcool/coursereview/storage"
	cachestore "github.com/trezcool/coursereview/storage/cache"
)

// failingBackend fails every call with the stored error, if any.
type failingBackend struct {
	storage.Backend
	err atomic.Pointer[error]
}

func (b *failingBackend) fail(err error) { b.err.Store(&err) }

func (b *failingBackend) current() error {
	if err := b.err.Load(); err != nil {
		return *err
	}
	return nil
}

func (b *failingBackend) Load(ctx context.Context) (storage.Document, error) {
	if err := b.current(); err != nil {
		return storage.Document{}, err
	}
	return b.Backend.Load(ctx)
}

func (b *failingBackend) Save(ctx context.Context, doc storage.Document) error {
	if err := b.current(); err != nil {
		return err
	}
	return b.Backend.Save(ctx, doc)
}

type requestLog struct {
	method, path string
	status       int
}

type fakeHTTPRecorder struct {
	mu       sync.Mutex
	requests []requestLog
}

func (r *fakeHTTPRecorder) HTTPRequest(method, path string, status int, _ time.Duration) {
	r.mu.Lock()
	r.requests = append(r.requests, requestLog{method: method, path: path, status: status})
	r.mu.Unlock()
}

func TestServer_home(t *testing.T) {
	env := setup(t)
	rec := env.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to the Course Review API!", rec.Body.String())
}

func TestServer_storeUnavailable(t *testing.T) {
	var flaky *failingBackend
	env := setup(t, func(_ *core.Config, _ *ServerDeps, backend *storage.Backend) {
		flaky = &failingBackend{Backend: *backend}
		*backend = flaky
	})
	admin := env.createUser(t, "boss@test.ac.th", core.RoleAdmin)
	token := env.getToken(t, admin)

	t.Run("unavailable", func(t *testing.T) {
		flaky.fail(core.NewStoreError("load", errors.New("connection refused"), false))
		for _, tt := range []struct{ method, path, token string }{
			{http.MethodGet, "/api/reviews", ""},
			{http.MethodGet, "/api/reviews/counts", ""},
			{http.MethodPost, "/api/reviews", ""},
			{http.MethodGet, "/api/admin/reviews/pending", token},
			{http.MethodPost, "/api/admin/reviews/r-1/approve", token},
		} {
			rec := env.do(tt.method, tt.path, tt.token, []byte(`{"course_code": "SCMA101", "rating": 3}`))
			checkCodeAndData(t, httpTest{
				wantCode: http.StatusServiceUnavailable,
				wantData: marshallObj(t, httpErr{Error: "the review store is unreachable, please retry later"}),
			}, rec)
			assert.Equal(t, "5", rec.Header().Get("Retry-After"), tt.path)
		}
	})

	t.Run("fatal", func(t *testing.T) {
		flaky.fail(core.NewStoreError("load", errors.New("no such table: reviews"), true))
		rec := env.do(http.MethodGet, "/api/reviews", "")
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusInternalServerError,
			wantData: marshallObj(t, httpErr{Error: http.StatusText(http.StatusInternalServerError)}),
		}, rec)
		assert.Empty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("recovery", func(t *testing.T) {
		flaky.fail(nil)
		rec := env.do(http.MethodGet, "/api/reviews/counts", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

// conflictingBackend loses every save race.
type conflictingBackend struct {
	storage.Backend
	saves atomic.Int32
}

func (b *conflictingBackend) Save(context.Context, storage.Document) error {
	b.saves.Add(1)
	return errors.Wrap(core.ErrConflict, "stale version")
}

func TestServer_conflict(t *testing.T) {
	var cb *conflictingBackend
	env := setup(t, func(conf *core.Config, _ *ServerDeps, backend *storage.Backend) {
		conf.Store.MaxRetries = 2
		cb = &conflictingBackend{Backend: *backend}
		*backend = cb
	})

	rec := env.do(http.MethodPost, "/api/reviews", "", []byte(`{"course_code": "SCMA101", "rating": 3}`))
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusConflict,
		wantData: marshallObj(t, httpErr{Error: "the data changed concurrently, please retry"}),
	}, rec)
	assert.Equal(t, int32(3), cb.saves.Load(), "first attempt and 2 retries")
}

func TestServer_staleSnapshot(t *testing.T) {
	var flaky *failingBackend
	env := setup(t, func(conf *core.Config, _ *ServerDeps, backend *storage.Backend) {
		flaky = &failingBackend{Backend: *backend}
		*backend = cachestore.New(flaky, cachestore.Options{
			Snapshots: cachestore.NewMemorySnapshots(),
			Logger:    logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf),
		})
	})
	admin := env.createUser(t, "boss@test.ac.th", core.RoleAdmin)
	token := env.getToken(t, admin)

	rec := env.do(http.MethodGet, "/api/reviews", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(staleHeader))

	flaky.fail(core.NewStoreError("load", errors.New("connection refused"), false))

	t.Run("reads are served stale", func(t *testing.T) {
		for _, path := range []string{"/api/reviews", "/api/reviews/counts", "/api/reviews/summary", "/api/admin/reviews/pending"} {
			rec := env.do(http.MethodGet, path, token)
			require.Equal(t, http.StatusOK, rec.Code, path)
			assert.Equal(t, "true", rec.Header().Get(staleHeader), path)
		}

		rec := env.do(http.MethodGet, "/api/reviews", "")
		var page review.Page
		decode(t, rec, &page)
		assert.True(t, page.Stale)
		assert.Equal(t, []string{"r-5", "r-4", "r-3"}, reviewIDs(page.Reviews))
	})

	t.Run("writes are refused", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/reviews", "", []byte(`{"course_code": "SCMA101", "rating": 3}`))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "5", rec.Header().Get("Retry-After"))

		rec = env.do(http.MethodPost, "/api/admin/reviews/approve", token, []byte(`{"ids": ["r-1"]}`))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		rec = env.do(http.MethodGet, "/api/admin/reviews/export.csv", token)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	})

	t.Run("open breaker keeps serving the snapshot", func(t *testing.T) {
		flaky.fail(nil)
		rec := env.do(http.MethodGet, "/api/reviews", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "true", rec.Header().Get(staleHeader))
	})
}
