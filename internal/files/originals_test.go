package files

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framevault/internal/apperrors"
	"github.com/framevault/internal/dbtest"
	"github.com/framevault/internal/models"
)

func seedOriginal(t *testing.T, s *OriginalStore, userID uuid.UUID, name, mime string) *models.OriginalFile {
	t.Helper()
	f, err := s.Create(context.Background(), &models.OriginalFile{
		UserID:   userID,
		FileName: name,
		MimeType: mime,
		FileURL:  "http://localhost:9000/frame-files/" + userID.String() + "/originals/" + name,
		FileSize: 2048,
	})
	require.NoError(t, err)
	return f
}

func TestOriginalStore_CreateAndFind(t *testing.T) {
	db := dbtest.Open(t)
	userID := dbtest.SeedUser(t, db, 0)
	s := NewOriginalStore(db)
	ctx := context.Background()

	f := seedOriginal(t, s, userID, "orig.png", "image/png")

	got, err := s.FindByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.FileURL, got.FileURL)

	_, err = s.FindByID(ctx, uuid.New())
	assert.True(t, apperrors.ErrNotFound.Has(err))
}

func TestOriginalStore_ListPaginated(t *testing.T) {
	db := dbtest.Open(t)
	userID := dbtest.SeedUser(t, db, 0)
	s := NewOriginalStore(db)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		seedOriginal(t, s, userID, fmt.Sprintf("img%d.png", i), "image/png")
	}
	seedOriginal(t, s, userID, "clip.mp4", "video/mp4")

	tests := []struct {
		name       string
		mimePrefix string
		wantTotal  int
	}{
		{"不过滤返回全部", "", 5},
		{"按image前缀过滤", "image/", 4},
		{"按video前缀过滤", "video/", 1},
		{"无匹配前缀", "audio/", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.ListPaginated(ctx, userID, 1, 10, tt.mimePrefix)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, page.Pagination.Total)
			assert.Len(t, page.Files, tt.wantTotal)
		})
	}
}

func TestOriginalStore_DeleteByIDs(t *testing.T) {
	db := dbtest.Open(t)
	userID := dbtest.SeedUser(t, db, 0)
	s := NewOriginalStore(db)
	ctx := context.Background()

	a := seedOriginal(t, s, userID, "a.png", "image/png")
	b := seedOriginal(t, s, userID, "b.png", "image/png")

	count, err := s.DeleteByIDs(ctx, []uuid.UUID{a.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := s.FindManyByIDs(ctx, []uuid.UUID{a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)
}
