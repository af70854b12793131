package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coursereview/core/catalog"
)

func Test_catalogApi(t *testing.T) {
	env := setup(t)
	cat := env.app.Catalog
	notFound := marshallObj(t, httpErr{Error: "not found"})

	sciFacs, err := cat.ListFaculties("SCI")
	require.NoError(t, err)
	scmaCourses, err := cat.ListCourses("SCI", "SCMA")
	require.NoError(t, err)
	calculus, _ := cat.Lookup("SCMA101")

	runHTTPTests(t, env, []httpTest{
		{name: "types", path: "/api/catalog/types", wantCode: http.StatusOK, wantData: marshallObj(t, cat.ListTypes())},
		{name: "faculties", path: "/api/catalog/types/SCI/faculties", wantCode: http.StatusOK, wantData: marshallObj(t, sciFacs)},
		{name: "faculties of unknown type", path: "/api/catalog/types/LOL/faculties", wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "courses", path: "/api/catalog/types/SCI/faculties/SCMA/courses",
			wantCode: http.StatusOK, wantData: marshallObj(t, scmaCourses),
		},
		{name: "courses of unknown faculty", path: "/api/catalog/types/SCI/faculties/LOL/courses", wantCode: http.StatusNotFound, wantData: notFound},
		{name: "lookup", path: "/api/catalog/courses/SCMA101", wantCode: http.StatusOK, wantData: marshallObj(t, calculus)},
		{name: "lookup unknown", path: "/api/catalog/courses/SCMA999", wantCode: http.StatusNotFound, wantData: notFound},
		{name: "trailing slash", path: "/api/catalog/types/", wantCode: http.StatusOK, wantData: marshallObj(t, cat.ListTypes())},
		{name: "bad year", path: "/api/catalog/courses?year=lol", wantCode: http.StatusBadRequest},
	})

	t.Run("filter", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/catalog/courses?type=SCI&faculty=SCMA&year=2", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var got struct {
			Results []catalog.Course `json:"results"`
			Years   []int            `json:"years"`
		}
		decode(t, rec, &got)
		assert.Equal(t, cat.Filter(catalog.Query{Type: "SCI", Faculty: "SCMA", Year: 2}), got.Results)
		assert.Equal(t, cat.Years("SCI", "SCMA"), got.Years)
		for _, c := range got.Results {
			assert.Equal(t, 2, c.Year)
		}
	})
}
