package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/review"
	"github.com/trezcool/coursereview/core/user"
	"github.com/trezcool/coursereview/storage"
)

var createdAt = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

// SampleDocument returns a document exercising every field encoding: quoted and multi-line text,
// non-ASCII text, every rating and both boolean values.
func SampleDocument() storage.Document {
	return storage.Document{
		Pending: []review.Review{
			{
				ID: "r-1", CourseType: "SCI", FacultyCode: "SCMA", FacultyName: "Mathematics",
				CourseCode: "SCMA101", CourseName: "Calculus I", Rating: 1,
				Text: "too \"fast\", too many proofs\nsecond line", Author: core.AnonymousID,
				CreatedAt: createdAt, Status: review.StatusPending,
			},
			{
				ID: "r-2", CourseType: "GEN", FacultyCode: "GELA", FacultyName: "Languages",
				CourseCode: "GELA101", CourseName: "Academic English I", Rating: 3,
				Text: "", Author: "somchai@test.ac.th",
				CreatedAt: createdAt.Add(time.Minute), Status: review.StatusPending,
			},
		},
		Approved: []review.Review{
			{
				ID: "r-3", CourseType: "SCI", FacultyCode: "SCPY", FacultyName: "Physics",
				CourseCode: "SCPY101", CourseName: "Mechanics I", Rating: 5,
				Text: "อาจารย์สอนดีมาก", Author: "anong@test.ac.th",
				CreatedAt: createdAt.Add(time.Hour), Status: review.StatusApproved,
			},
			{
				ID: "r-4", CourseType: "SCI", FacultyCode: "SCPY", FacultyName: "Physics",
				CourseCode: "SCPY101", CourseName: "Mechanics I", Rating: 4,
				Text: "=1+1", Author: "anong@test.ac.th",
				CreatedAt: createdAt.Add(2 * time.Hour), Status: review.StatusApproved,
			},
			{
				ID: "r-5", CourseType: "SCI", FacultyCode: "SCMA", FacultyName: "Mathematics",
				CourseCode: "SCMA201", CourseName: "Calculus II", Rating: 2,
				Text: "ok", Author: core.AnonymousID,
				CreatedAt: createdAt.Add(3 * time.Hour), Status: review.StatusApproved,
			},
		},
		Users: []user.User{
			{
				Email: "admin@test.ac.th", PasswordSalt: "c2FsdHNhbHRzYWx0c2FsdA==", PasswordHash: "aGFzaA==",
				Role: core.RoleAdmin, Display: "Admin", IsVerified: true, CreatedAt: createdAt,
			},
			{
				Email: "somchai@test.ac.th", PasswordSalt: "c2FsdA==", PasswordHash: "aGFzaDI=",
				Role: core.RoleStudent, Display: "สมชาย", IsVerified: false, CreatedAt: createdAt.Add(time.Minute),
			},
		},
		Tokens: []user.Token{
			{Token: "tok-1", Email: "somchai@test.ac.th", Kind: user.TokenVerify, Used: false, CreatedAt: createdAt},
			{Token: "tok-2", Email: "admin@test.ac.th", Kind: user.TokenReset, Used: true, CreatedAt: createdAt.Add(time.Second)},
		},
	}
}

// TestBackend runs the behaviour every storage.Backend must share against a fresh, empty backend.
func TestBackend(t *testing.T, open func(t *testing.T) storage.Backend) {
	t.Run("empty", func(t *testing.T) {
		b := open(t)
		doc, err := b.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(0), doc.Version)
		assert.Empty(t, doc.Pending)
		assert.Empty(t, doc.Approved)
		assert.Empty(t, doc.Users)
		assert.Empty(t, doc.Tokens)
		assert.False(t, doc.Stale)
	})

	t.Run("round trip", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		want := SampleDocument()
		require.NoError(t, b.Save(ctx, want))

		got, err := b.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, want.Pending, got.Pending)
		assert.Equal(t, want.Approved, got.Approved)
		assert.Equal(t, want.Users, got.Users)
		assert.Equal(t, want.Tokens, got.Tokens)
	})

	t.Run("conflict", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		require.NoError(t, b.Save(ctx, SampleDocument()))

		stale := SampleDocument() // still at version 0
		stale.Pending = stale.Pending[:1]
		assert.ErrorIs(t, b.Save(ctx, stale), core.ErrConflict)

		got, err := b.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, got.Pending, 2, "a conflicting save must not be applied")
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("removals and updates", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		require.NoError(t, b.Save(ctx, SampleDocument()))

		doc, err := b.Load(ctx)
		require.NoError(t, err)
		moved := doc.Pending[0]
		moved.Status = review.StatusApproved
		doc.Pending = doc.Pending[1:]
		doc.Approved = append(doc.Approved, moved)
		doc.Users[1].IsVerified = true
		doc.Tokens = doc.Tokens[1:]
		require.NoError(t, b.Save(ctx, doc))

		got, err := b.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		assert.Equal(t, []string{"r-2"}, reviewIDs(got.Pending))
		assert.Equal(t, []string{"r-3", "r-4", "r-5", "r-1"}, reviewIDs(got.Approved))
		assert.Equal(t, review.StatusApproved, got.Approved[3].Status)
		assert.True(t, got.Users[1].IsVerified)
		assert.Equal(t, []user.Token{SampleDocument().Tokens[1]}, got.Tokens)
	})

	t.Run("loads are copies", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		require.NoError(t, b.Save(ctx, SampleDocument()))

		doc, err := b.Load(ctx)
		require.NoError(t, err)
		doc.Pending[0].Rating = 5

		got, err := b.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Pending[0].Rating)
	})
}

func reviewIDs(revs []review.Review) []string {
	ids := make([]string, 0, len(revs))
	for _, r := range revs {
		ids = append(ids, r.ID)
	}
	return ids
}
