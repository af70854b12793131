package echoapi

import (
	"encoding/csv"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/review"
)

func Test_adminApi_access(t *testing.T) {
	env := setup(t)
	student := env.createUser(t, "somsak@test.ac.th", core.RoleStudent)
	studentToken := env.getToken(t, student)

	var tests []httpTest
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/admin/reviews/pending"},
		{http.MethodPost, "/api/admin/reviews/approve"},
		{http.MethodPost, "/api/admin/reviews/reject"},
		{http.MethodPost, "/api/admin/reviews/r-1/approve"},
		{http.MethodPost, "/api/admin/reviews/r-1/reject"},
		{http.MethodGet, "/api/admin/reviews/summary"},
		{http.MethodGet, "/api/admin/reviews/export.csv"},
		{http.MethodGet, "/api/admin/reviews/export.json"},
	} {
		tests = append(tests,
			httpTest{
				name:     route.method + " " + route.path + " no token",
				method:   route.method,
				path:     route.path,
				wantCode: http.StatusUnauthorized,
				wantData: marshallObj(t, httpErr{Error: "missing or malformed jwt"}),
			},
			httpTest{
				name:     route.method + " " + route.path + " student",
				method:   route.method,
				path:     route.path,
				token:    studentToken,
				wantCode: http.StatusForbidden,
				wantData: marshallObj(t, httpErr{Error: "permission denied"}),
			},
		)
	}
	// the account is checked, not just the role the token claims
	demoted := env.createUser(t, "former-boss@test.ac.th", core.RoleAdmin)
	demotedToken := env.getToken(t, demoted)
	env.createUser(t, demoted.Email, core.RoleStudent)
	ghost := demoted
	ghost.Email = "ghost@test.ac.th"
	tests = append(tests,
		httpTest{
			name:     "demoted admin",
			path:     "/api/admin/reviews/pending",
			token:    demotedToken,
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		httpTest{
			name:     "deleted admin",
			method:   http.MethodPost,
			path:     "/api/admin/reviews/r-1/approve",
			token:    env.getToken(t, ghost),
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
	)
	runHTTPTests(t, env, tests)

	doc, err := env.backend.Load(t.Context())
	require.NoError(t, err)
	assert.Len(t, doc.Pending, 2, "refused requests must not moderate anything")
}

func Test_adminApi_moderation(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "boss@test.ac.th", core.RoleAdmin)
	token := env.getToken(t, admin)

	rec := env.do(http.MethodGet, "/api/admin/reviews/pending?ordering=created_at", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page review.Page
	decode(t, rec, &page)
	assert.Equal(t, []string{"r-1", "r-2"}, reviewIDs(page.Reviews))

	runHTTPTests(t, env, []httpTest{
		{
			name:     "approve many with unknown id",
			method:   http.MethodPost,
			path:     "/api/admin/reviews/approve",
			body:     []byte(`{"ids": ["r-1", "r-9", "r-1", " "]}`),
			token:    token,
			wantCode: http.StatusOK,
			wantData: marshallObj(t, review.Result{Processed: []string{"r-1"}, NotFound: []string{"r-9"}}),
		},
		{
			name:     "approve already approved",
			method:   http.MethodPost,
			path:     "/api/admin/reviews/r-1/approve",
			token:    token,
			wantCode: http.StatusOK,
			wantData: marshallObj(t, review.Result{Processed: []string{}, NotFound: []string{"r-1"}}),
		},
		{
			name:     "no ids",
			method:   http.MethodPost,
			path:     "/api/admin/reviews/reject",
			body:     []byte(`{"ids": []}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"ids": "this field is required"}),
		},
		{
			name:     "reject by id",
			method:   http.MethodPost,
			path:     "/api/admin/reviews/r-2/reject",
			token:    token,
			wantCode: http.StatusOK,
			wantData: marshallObj(t, review.Result{Processed: []string{"r-2"}, NotFound: []string{}}),
		},
	})

	doc, err := env.backend.Load(t.Context())
	require.NoError(t, err)
	assert.Empty(t, doc.Pending)
	approved := reviewIDs(doc.Approved)
	assert.Equal(t, []string{"r-3", "r-4", "r-5", "r-1"}, approved)
	assert.Equal(t, review.StatusApproved, doc.Approved[3].Status)

	// approved reviews are public right away
	rec = env.do(http.MethodGet, "/api/reviews?course_code=SCMA101", "")
	decode(t, rec, &page)
	assert.Equal(t, []string{"r-1"}, reviewIDs(page.Reviews))
}

func Test_adminApi_export(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "boss@test.ac.th", core.RoleAdmin)
	token := env.getToken(t, admin)

	t.Run("csv", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/admin/reviews/export.csv", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get(echo.HeaderContentType))
		assert.Equal(t, `attachment; filename="reviews.csv"`, rec.Header().Get(echo.HeaderContentDisposition))

		rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 4)
		assert.Equal(t, review.CSVHeader, rows[0])
		assert.Equal(t, "r-3", rows[1][0])
		assert.Equal(t, "อาจารย์สอนดีมาก", rows[1][7])
	})

	t.Run("json", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/admin/reviews/export.json", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, echo.MIMEApplicationJSONCharsetUTF8, rec.Header().Get(echo.HeaderContentType))
		assert.Equal(t, `attachment; filename="reviews.json"`, rec.Header().Get(echo.HeaderContentDisposition))

		var dump struct {
			Pending  []review.Review `json:"pending_reviews"`
			Approved []review.Review `json:"approved_reviews"`
		}
		decode(t, rec, &dump)
		assert.Equal(t, []string{"r-1", "r-2"}, reviewIDs(dump.Pending))
		assert.Equal(t, []string{"r-3", "r-4", "r-5"}, reviewIDs(dump.Approved))
		assert.NotContains(t, rec.Body.String(), "password_hash")
	})
}
