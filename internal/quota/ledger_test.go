package quota

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framevault/internal/apperrors"
	"github.com/framevault/internal/dbtest"
	"github.com/framevault/internal/models"
)

// fakeInvalidator 记录被失效的缓存键
type fakeInvalidator struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeInvalidator) Del(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
}

func newTestLedger(t *testing.T, limit int64) (*Ledger, *fakeInvalidator, uuid.UUID) {
	db := dbtest.Open(t)
	userID := dbtest.SeedUser(t, db, 0)
	inv := &fakeInvalidator{}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewLedger(db, limit, inv, logger), inv, userID
}

func TestLedger_CheckAvailable(t *testing.T) {
	ledger, _, userID := newTestLedger(t, 1_000_000)
	ctx := context.Background()

	tests := []struct {
		name      string
		used      int64
		requested int64
		allowed   bool
		available int64
	}{
		{name: "空账本允许上传", used: 0, requested: 400_000, allowed: true, available: 1_000_000},
		{name: "恰好用满", used: 600_000, requested: 400_000, allowed: true, available: 400_000},
		{name: "超出上限被拒绝", used: 400_000, requested: 700_000, allowed: false, available: 600_000},
		{name: "请求 0 字节总是允许", used: 1_000_000, requested: 0, allowed: true, available: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.db.ExecContext(ctx, `UPDATE users SET storage_used = $1 WHERE id = $2`, tt.used, userID)
			require.NoError(t, err)

			got, err := ledger.CheckAvailable(ctx, userID, tt.requested)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, got.Allowed)
			assert.Equal(t, tt.available, got.AvailableBytes)
			assert.Equal(t, tt.used, got.UsedBytes)
			assert.Equal(t, int64(1_000_000), got.TotalBytes)
		})
	}
}

func TestLedger_CheckAvailable_NeverOverCommits(t *testing.T) {
	ledger, _, userID := newTestLedger(t, 1000)
	ctx := context.Background()

	for used := int64(0); used <= 1000; used += 250 {
		_, err := ledger.db.ExecContext(ctx, `UPDATE users SET storage_used = $1 WHERE id = $2`, used, userID)
		require.NoError(t, err)

		for requested := int64(0); requested <= 1500; requested += 300 {
			got, err := ledger.CheckAvailable(ctx, userID, requested)
			require.NoError(t, err)
			if got.Allowed {
				assert.LessOrEqual(t, used+requested, int64(1000))
			}
		}
	}
}

func TestLedger_CheckAvailable_Errors(t *testing.T) {
	ledger, _, userID := newTestLedger(t, 1000)
	ctx := context.Background()

	_, err := ledger.CheckAvailable(ctx, userID, -1)
	assert.True(t, apperrors.ErrValidation.Has(err))

	_, err = ledger.CheckAvailable(ctx, uuid.New(), 10)
	assert.True(t, apperrors.ErrNotFound.Has(err))
}

func TestLedger_Adjust(t *testing.T) {
	ledger, inv, userID := newTestLedger(t, 1_000_000)
	ctx := context.Background()

	used, err := ledger.Adjust(ctx, userID, 400_000, Increase)
	require.NoError(t, err)
	assert.Equal(t, int64(400_000), used)

	used, err = ledger.Adjust(ctx, userID, 150_000, Decrease)
	require.NoError(t, err)
	assert.Equal(t, int64(250_000), used)

	// 减少永不下溢，钳制到 0
	used, err = ledger.Adjust(ctx, userID, 900_000, Decrease)
	require.NoError(t, err)
	assert.Equal(t, int64(0), used)

	// 每次成功调整都使缓存失效
	assert.Equal(t, []string{
		models.UserCacheKey(userID),
		models.UserCacheKey(userID),
		models.UserCacheKey(userID),
	}, inv.keys)
}

func TestLedger_Adjust_Errors(t *testing.T) {
	ledger, inv, userID := newTestLedger(t, 1000)
	ctx := context.Background()

	_, err := ledger.Adjust(ctx, userID, -5, Increase)
	assert.True(t, apperrors.ErrValidation.Has(err))

	_, err = ledger.Adjust(ctx, userID, 5, Direction("sideways"))
	assert.True(t, apperrors.ErrValidation.Has(err))

	_, err = ledger.Adjust(ctx, uuid.New(), 5, Increase)
	assert.True(t, apperrors.ErrNotFound.Has(err))

	// 失败的调整不触发缓存失效
	assert.Empty(t, inv.keys)
}

// 并发增减不丢失任何一次更新；最终值为带下限钳制的有符号增量之和
func TestLedger_Adjust_NoLostUpdates(t *testing.T) {
	ledger, _, userID := newTestLedger(t, 1<<40)
	ctx := context.Background()

	const workers = 8
	const rounds = 25

	// 预置足够余额，确保任何交错下减少都不会触发零下限钳制，
	// 这样最终值必须精确等于初始值加上有符号增量之和
	initial := int64(workers * rounds * 40)
	_, err := ledger.db.ExecContext(ctx, `UPDATE users SET storage_used = $1 WHERE id = $2`, initial, userID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				_, err := ledger.Adjust(ctx, userID, 100, Increase)
				assert.NoError(t, err)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				_, err := ledger.Adjust(ctx, userID, 40, Decrease)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	got, err := ledger.CheckAvailable(ctx, userID, 0)
	require.NoError(t, err)
	assert.Equal(t, initial+int64(workers*rounds*(100-40)), got.UsedBytes)
}
