package infergate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ig "github.com/ineyio/infergate"
	"github.com/ineyio/infergate/clock"
	"github.com/ineyio/infergate/ledger"
)

func TestLedger_AppendAssignsIdentity(t *testing.T) {
	l := ig.NewLedger(ledger.NewMemoryStore(), clock.NewFake(epoch))

	e, err := l.Append(context.Background(), ig.LedgerEntry{
		UserID:    "u1",
		EventType: ig.EventPurchase,
		AmountUSD: 4.99,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, epoch, e.CreatedAt)
}

func TestLedger_RejectsUnknownEventType(t *testing.T) {
	store := ledger.NewMemoryStore()
	l := ig.NewLedger(store, nil)

	_, err := l.Append(context.Background(), ig.LedgerEntry{EventType: "refund"})
	assert.ErrorIs(t, err, ig.ErrInvalidRequest)

	entries, _ := store.Recent(context.Background(), 10)
	assert.Empty(t, entries)
}

func TestLedger_ReadWindow(t *testing.T) {
	l := ig.NewLedger(ledger.NewMemoryStore(), clock.NewFake(epoch))
	ctx := context.Background()

	for i := range 5 {
		_, err := l.Append(ctx, ig.LedgerEntry{
			UserID:    "u1",
			EventType: ig.EventGeneration,
			AmountUSD: float64(i),
		})
		require.NoError(t, err)
	}

	got, err := l.Read(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 2.0, got[0].AmountUSD, "oldest of the window first")
	assert.Equal(t, 4.0, got[2].AmountUSD)

	got, err = l.Read(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSummarize(t *testing.T) {
	sum := ig.Summarize([]ig.LedgerEntry{
		{EventType: ig.EventGeneration, AmountUSD: 0.25},
		{EventType: ig.EventGeneration, AmountUSD: 0.0001},
		{EventType: ig.EventQuotaExceeded},
		{EventType: ig.EventAdRevenue, AmountUSD: 1.5},
		{EventType: ig.EventQuotaExceeded},
	})

	assert.Equal(t, 5, sum.Count)
	assert.InDelta(t, 1.7501, sum.RevenueUSD, 1e-9)
	assert.Equal(t, 2, sum.QuotaViolations)
	assert.Equal(t, 2, sum.ByType[ig.EventGeneration])
	assert.Equal(t, 1, sum.ByType[ig.EventAdRevenue])

	empty := ig.Summarize(nil)
	assert.Zero(t, empty.Count)
	assert.Zero(t, empty.RevenueUSD)
}

func TestEventType_Valid(t *testing.T) {
	for _, et := range []ig.EventType{
		ig.EventGeneration, ig.EventPurchase, ig.EventUpload, ig.EventQuotaExceeded,
		ig.EventAdImpression, ig.EventAdRevenue, ig.EventAffiliateClick,
		ig.EventWebhookCharge, ig.EventDatasetPublish,
	} {
		assert.True(t, et.Valid(), et)
	}
	assert.False(t, ig.EventType("").Valid())
	assert.False(t, ig.EventType("GENERATION").Valid())
}
