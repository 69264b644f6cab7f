package store

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolwager/internal/models"
)

var (
	lottery = models.MustParseAddress("0x00000000000000000000000000000000000000c0")
	alice   = models.MustParseAddress("0x00000000000000000000000000000000000000a1")
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "receipts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func receipt(id string, block uint64, ts time.Time) models.Receipt {
	return models.Receipt{
		TxID:        id,
		Contract:    lottery,
		From:        alice,
		Method:      "enter",
		Value:       models.MustParseEther("0.02"),
		BlockNumber: block,
		Timestamp:   ts,
		Status:      models.StatusSuccess,
		Events: []models.Event{
			{Name: models.EventEntered, Player: alice, Amount: models.MustParseEther("0.02")},
		},
	}
}

func TestWriteAndListReceipts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.WriteReceipt(ctx, receipt("tx-1", 1, now)))
	reverted := receipt("tx-2", 2, now.Add(time.Second))
	reverted.Status = models.StatusReverted
	reverted.Reason = "insufficient stake"
	reverted.Events = nil
	reverted.Value = big.NewInt(1)
	require.NoError(t, s.WriteReceipt(ctx, reverted))

	// duplicate ids are ignored
	require.NoError(t, s.WriteReceipt(ctx, receipt("tx-1", 9, now)))

	got, err := s.ListReceipts(ctx, lottery)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "tx-1", got[0].TxID)
	assert.Equal(t, uint64(1), got[0].BlockNumber)
	assert.Equal(t, now, got[0].Timestamp)
	assert.Equal(t, lottery, got[0].Contract)
	assert.Equal(t, "0.02", models.FormatEther(got[0].Value))
	require.Len(t, got[0].Events, 1)
	assert.Equal(t, alice, got[0].Events[0].Player)

	assert.Equal(t, models.StatusReverted, got[1].Status)
	assert.Equal(t, "insufficient stake", got[1].Reason)
	assert.Nil(t, got[1].Events)

	other, err := s.ListReceipts(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestPruneBefore(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.WriteReceipt(ctx, receipt("old", 1, now.Add(-2*time.Hour))))
	require.NoError(t, s.WriteReceipt(ctx, receipt("new", 2, now)))

	n, err := s.PruneBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.ListReceipts(ctx, lottery)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].TxID)
}
