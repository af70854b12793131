package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/storage"
	testutil "github.com/trezcool/coursereview/tests"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "data.json"))
	require.NoError(t, err)
	return s
}

func TestStore(t *testing.T) {
	testutil.TestBackend(t, func(t *testing.T) storage.Backend { return openTemp(t) })
}

func TestStore_format(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Save(context.Background(), testutil.SampleDocument()))

	raw, err := os.ReadFile(s.path)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, float64(1), got["version"])
	assert.Contains(t, got, "pending_reviews")
	assert.Contains(t, got, "approved_reviews")
	assert.Contains(t, got, "users")
	assert.Contains(t, got, "tokens")

	rev := got["approved_reviews"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(5), rev["rating"], "ratings are integers")
	assert.Equal(t, "SCPY", rev["faculty"])
	usr := got["users"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, true, usr["is_verified"])

	entries, err := os.ReadDir(filepath.Dir(s.path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file is left behind")
}

func TestStore_Load_errors(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantFatal bool
	}{
		{name: "empty file", content: "  \n"},
		{name: "legacy file without accounts", content: `{"pending_reviews": [], "approved_reviews": []}`},
		{name: "not json", content: "{lol", wantFatal: true},
		{name: "missing collections", content: `{"version": 1}`, wantFatal: true},
		{name: "rating out of range", content: `{"pending_reviews": [{"id": "1", "course_type": "SCI", "faculty": "SCMA", "course_code": "SCMA101", "rating": 6, "created_at": "2025-01-01T00:00:00Z", "status": "pending"}], "approved_reviews": []}`, wantFatal: true},
		{name: "rating as string", content: `{"pending_reviews": [{"id": "1", "course_type": "SCI", "faculty": "SCMA", "course_code": "SCMA101", "rating": "5", "created_at": "2025-01-01T00:00:00Z", "status": "pending"}], "approved_reviews": []}`, wantFatal: true},
		{name: "unknown status", content: `{"pending_reviews": [{"id": "1", "course_type": "SCI", "faculty": "SCMA", "course_code": "SCMA101", "rating": 5, "created_at": "2025-01-01T00:00:00Z", "status": "rejected"}], "approved_reviews": []}`, wantFatal: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTemp(t)
			require.NoError(t, os.WriteFile(s.path, []byte(tt.content), 0o600))

			doc, err := s.Load(context.Background())
			if tt.wantFatal {
				assert.True(t, core.IsStoreFatal(err), "Load() error = %v; want fatal", err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, doc.Pending)
			assert.NotNil(t, doc.Users)
		})
	}
}
