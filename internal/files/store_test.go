package files

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framevault/internal/apperrors"
	"github.com/framevault/internal/dbtest"
	"github.com/framevault/internal/models"
)

func newTestStore(t *testing.T) (*Store, *sql.DB, uuid.UUID) {
	db := dbtest.Open(t)
	userID := dbtest.SeedUser(t, db, 0)
	return NewStore(db), db, userID
}

func seedFile(t *testing.T, s *Store, userID uuid.UUID, name string, status models.FileStatus) *models.UserFile {
	t.Helper()
	ctx := context.Background()

	f, err := s.Create(ctx, &models.UserFile{
		UserID:   userID,
		FileName: name,
		MimeType: "image/png",
		FileType: models.TypeImage,
		FileURL:  "http://localhost:9000/frame-files/" + userID.String() + "/" + name,
		FileSize: 1024,
	})
	require.NoError(t, err)

	switch status {
	case models.StatusArchived:
		require.NoError(t, s.Archive(ctx, f.ID))
	case models.StatusTrashed:
		require.NoError(t, s.Trash(ctx, f.ID))
	}
	return f
}

func TestStore_CreateAndFind(t *testing.T) {
	s, _, userID := newTestStore(t)
	ctx := context.Background()

	f := seedFile(t, s, userID, "frame_1_2024-06-01_12-00-00.png", models.StatusActive)

	got, err := s.FindByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Nil(t, got.ArchivedAt)
	assert.Nil(t, got.TrashedAt)

	_, err = s.FindByID(ctx, uuid.New())
	assert.True(t, apperrors.ErrNotFound.Has(err))
}

func TestStore_StateMachine(t *testing.T) {
	ctx := context.Background()

	t.Run("active到archived再回到active", func(t *testing.T) {
		s, _, userID := newTestStore(t)
		f := seedFile(t, s, userID, "a.png", models.StatusActive)

		require.NoError(t, s.Archive(ctx, f.ID))
		got, _ := s.FindByID(ctx, f.ID)
		assert.Equal(t, models.StatusArchived, got.Status)
		assert.NotNil(t, got.ArchivedAt)

		// 重复归档被拒绝
		err := s.Archive(ctx, f.ID)
		assert.True(t, apperrors.ErrValidation.Has(err))

		require.NoError(t, s.Unarchive(ctx, f.ID))
		got, _ = s.FindByID(ctx, f.ID)
		assert.Equal(t, models.StatusActive, got.Status)
		assert.Nil(t, got.ArchivedAt)

		// 未归档的文件不能取消归档
		err = s.Unarchive(ctx, f.ID)
		assert.True(t, apperrors.ErrValidation.Has(err))
	})

	t.Run("回收站内只允许restore和purge", func(t *testing.T) {
		s, _, userID := newTestStore(t)
		f := seedFile(t, s, userID, "b.png", models.StatusTrashed)

		// 已在回收站的文件再归档/再删除均失败且不产生任何修改
		err := s.Archive(ctx, f.ID)
		assert.True(t, apperrors.ErrValidation.Has(err))
		err = s.Trash(ctx, f.ID)
		assert.True(t, apperrors.ErrValidation.Has(err))

		got, _ := s.FindByID(ctx, f.ID)
		assert.Equal(t, models.StatusTrashed, got.Status)
		require.NotNil(t, got.TrashedAt)

		// restore 恢复到 archived 而不是 active
		require.NoError(t, s.Restore(ctx, f.ID))
		got, _ = s.FindByID(ctx, f.ID)
		assert.Equal(t, models.StatusArchived, got.Status)
		assert.Nil(t, got.TrashedAt)
		assert.NotNil(t, got.ArchivedAt)

		// 不在回收站的文件不能 restore
		err = s.Restore(ctx, f.ID)
		assert.True(t, apperrors.ErrValidation.Has(err))
	})

	t.Run("archived可以直接进回收站", func(t *testing.T) {
		s, _, userID := newTestStore(t)
		f := seedFile(t, s, userID, "c.png", models.StatusArchived)

		require.NoError(t, s.Trash(ctx, f.ID))
		got, _ := s.FindByID(ctx, f.ID)
		assert.Equal(t, models.StatusTrashed, got.Status)
	})
}

// 批量操作对不满足前置条件的 id 静默跳过，只报告生效数量
func TestStore_BulkTransitions(t *testing.T) {
	s, _, userID := newTestStore(t)
	ctx := context.Background()

	active := seedFile(t, s, userID, "active.png", models.StatusActive)
	trashed := seedFile(t, s, userID, "trashed.png", models.StatusTrashed)
	missing := uuid.New()

	count, err := s.TrashMany(ctx, userID, []uuid.UUID{active.ID, trashed.ID, missing})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// 其余两个未被触碰
	got, err := s.FindByID(ctx, trashed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTrashed, got.Status)
	_, err = s.FindByID(ctx, missing)
	assert.True(t, apperrors.ErrNotFound.Has(err))
}

func TestStore_BulkArchiveRestore(t *testing.T) {
	s, _, userID := newTestStore(t)
	ctx := context.Background()

	a := seedFile(t, s, userID, "a.png", models.StatusActive)
	b := seedFile(t, s, userID, "b.png", models.StatusActive)
	tr := seedFile(t, s, userID, "t.png", models.StatusTrashed)

	count, err := s.ArchiveMany(ctx, userID, []uuid.UUID{a.ID, b.ID, tr.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.UnarchiveMany(ctx, userID, []uuid.UUID{a.ID, tr.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = s.RestoreMany(ctx, userID, []uuid.UUID{a.ID, b.ID, tr.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, _ := s.FindByID(ctx, tr.ID)
	assert.Equal(t, models.StatusArchived, got.Status)
}

// 批量操作只作用于本人的文件，他人的 id 不生效
func TestStore_BulkScopedToOwner(t *testing.T) {
	s, db, userID := newTestStore(t)
	ctx := context.Background()

	mine := seedFile(t, s, userID, "mine.png", models.StatusActive)
	other := dbtest.SeedUser(t, db, 0)
	theirs := seedFile(t, s, other, "theirs.png", models.StatusActive)

	count, err := s.ArchiveMany(ctx, userID, []uuid.UUID{mine.ID, theirs.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, _ := s.FindByID(ctx, theirs.ID)
	assert.Equal(t, models.StatusActive, got.Status)
}

func TestStore_ListByUser(t *testing.T) {
	s, db, userID := newTestStore(t)
	ctx := context.Background()

	var created []*models.UserFile
	for i := 0; i < 3; i++ {
		created = append(created, seedFile(t, s, userID, fmt.Sprintf("f%d.png", i), models.StatusActive))
	}
	// 时间戳拉开，保证倒序可断言
	for i, f := range created {
		_, err := db.Exec(`UPDATE users_files SET created_at = $1 WHERE id = $2`,
			time.Now().Add(time.Duration(i)*time.Minute), f.ID)
		require.NoError(t, err)
	}

	got, err := s.ListByUser(ctx, userID, models.StatusActive)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, created[2].ID, got[0].ID)
	assert.Equal(t, created[0].ID, got[2].ID)

	// 其它状态的列表为空
	trashed, err := s.ListByUser(ctx, userID, models.StatusTrashed)
	require.NoError(t, err)
	assert.Empty(t, trashed)
}

func TestStore_ListPaginated(t *testing.T) {
	s, _, userID := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		seedFile(t, s, userID, fmt.Sprintf("f%d.png", i), models.StatusActive)
	}

	page, err := s.ListPaginated(ctx, userID, models.StatusActive, 2, 3)
	require.NoError(t, err)
	assert.Len(t, page.Files, 3)
	assert.Equal(t, 7, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.CurrentPage)
	assert.Equal(t, 3, page.Pagination.Limit)
	assert.Equal(t, 3, page.Pagination.Pages)

	// 超出范围的页返回空页但 total 为 0（窗口计数无行可计）
	empty, err := s.ListPaginated(ctx, userID, models.StatusTrashed, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, empty.Files)
	assert.Equal(t, 0, empty.Pagination.Total)
	assert.Equal(t, 0, empty.Pagination.Pages)
}

func TestStore_LatestFrameNumber(t *testing.T) {
	s, _, userID := newTestStore(t)
	ctx := context.Background()

	n, err := s.LatestFrameNumber(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	seedFile(t, s, userID, "frame_2_2024-06-01_12-00-00.png", models.StatusActive)
	seedFile(t, s, userID, "frame_10_2024-06-01_12-30-00.png", models.StatusActive)
	seedFile(t, s, userID, "holiday.png", models.StatusActive)

	n, err = s.LatestFrameNumber(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestStore_ExpiredTrashedIDs(t *testing.T) {
	s, db, userID := newTestStore(t)
	ctx := context.Background()

	old := seedFile(t, s, userID, "old.png", models.StatusTrashed)
	recent := seedFile(t, s, userID, "recent.png", models.StatusTrashed)

	// 将一个文件的删除时间拨回 31 天前
	_, err := db.Exec(`UPDATE users_files SET trashed_at = $1 WHERE id = $2`,
		time.Now().Add(-31*24*time.Hour), old.ID)
	require.NoError(t, err)

	ids, err := s.ExpiredTrashedIDs(ctx, userID, time.Now().Add(-TrashRetention))
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, old.ID, ids[0])

	// 没有过期文件时为空，重复调用无副作用
	none, err := s.ExpiredTrashedIDs(ctx, userID, time.Now().Add(-365*24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)

	_ = recent
}

func TestStore_DeleteByIDs(t *testing.T) {
	s, _, userID := newTestStore(t)
	ctx := context.Background()

	f := seedFile(t, s, userID, "gone.png", models.StatusTrashed)

	count, err := s.DeleteByIDs(ctx, []uuid.UUID{f.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = s.FindByID(ctx, f.ID)
	assert.True(t, apperrors.ErrNotFound.Has(err))
}
