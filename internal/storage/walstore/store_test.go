package walstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/storage"
	"github.com/vadiminshakov/infbuy/internal/storage/storagetest"
	"go.uber.org/zap"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "test_wal_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestStores(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Stores {
		s, err := Open(zap.NewNop(), tempDir(t))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s.Stores()
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := tempDir(t)

	s, err := Open(zap.NewNop(), dir)
	require.NoError(t, err)

	posID, err := s.Create(ctx, storagetest.NewPosition(t, "SOXL"))
	require.NoError(t, err)
	goneID, err := s.Create(ctx, storagetest.NewPosition(t, "TQQQ"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, goneID))

	date := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		tx, err := domain.NewTransaction(domain.TxBuy, decimal.NewFromInt(int64(i+1)), decimal.NewFromInt(10), decimal.Zero, date.AddDate(0, 0, i), "")
		require.NoError(t, err)
		id, err := s.Transactions().Add(ctx, posID, tx)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, s.Transactions().Delete(ctx, ids[1]))

	capital := decimal.RequireFromString("10012.5")
	require.NoError(t, s.Update(ctx, posID, domain.PositionPatch{Capital: &capital}))
	require.NoError(t, s.Ledgers().Put(ctx, posID, domain.Ledger{{TransactionID: ids[2], Delta: decimal.RequireFromString("12.5")}}))
	require.NoError(t, s.Close())

	reopened, err := Open(zap.NewNop(), dir)
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, posID, all[0].ID)
	require.True(t, all[0].Capital.Equal(capital))

	txs, err := reopened.Transactions().GetByPositionID(ctx, posID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, ids[0], txs[0].ID)
	require.Equal(t, ids[2], txs[1].ID)

	ledger, err := reopened.Ledgers().Get(ctx, posID)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	require.NoError(t, ledger.Verify(all[0]))
}

func TestStore_NilGuard(t *testing.T) {
	var s *Store
	require.Error(t, s.append("position_x", nil))
	require.NoError(t, s.Close())
}

func TestStore_ApplyRecordRejectsUnknownKeys(t *testing.T) {
	s, err := Open(zap.NewNop(), tempDir(t))
	require.NoError(t, err)
	defer s.Close()

	err = s.applyRecord("order_1", []byte("{}"))
	require.ErrorContains(t, err, `unknown record key "order_1"`)

	require.Error(t, s.applyRecord(positionKeyPrefix+"1", []byte("not json")))
	require.NoError(t, s.applyRecord(deleteKeyPrefix+positionKeyPrefix+"1", tombstone))
}
