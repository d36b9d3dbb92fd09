package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"verdant-vault/vault-portal-backend/internal/ledger"
)

func TestRefreshTableCoversAllEvents(t *testing.T) {
	for _, name := range ledger.AllEvents() {
		_, ok := RefreshTable[name]
		assert.True(t, ok, "event %s has no refresh mapping", name)
	}
	assert.Len(t, RefreshTable, len(ledger.AllEvents()))
}

func TestMonitorInvalidatesMappedScopes(t *testing.T) {
	reader := &gatedReader{sets: map[int]snapSet{0: {tag: "v1"}}}
	rec := NewReconciler(reader, zap.NewNop())
	l := ledger.NewMemoryLedger("0xAdmin")
	mon := NewMonitor(l, rec, zap.NewNop())
	mon.Start()
	defer mon.Stop()

	// CampaignCreated touches only the counter
	l.Emit(ledger.Event{Name: ledger.EventCampaignCreated, CampaignID: 1, TxID: "tx-1"})
	assert.True(t, rec.cache.TakeCountStale())
	assert.Empty(t, rec.cache.TakeStale())

	// Campaign-scoped events mark that campaign's snapshot
	l.Emit(ledger.Event{Name: ledger.EventInvestmentMade, CampaignID: 3, TxID: "tx-2"})
	stale := rec.cache.TakeStale()
	require.Len(t, stale, 1)
	assert.Equal(t, uint64(3), stale[0])
	assert.False(t, rec.cache.TakeCountStale())

	l.Emit(ledger.Event{Name: ledger.EventMilestoneApproved, CampaignID: 5, MilestoneIndex: 2, TxID: "tx-3"})
	stale = rec.cache.TakeStale()
	require.Len(t, stale, 1)
	assert.Equal(t, uint64(5), stale[0])
}

// Duplicate delivery of the same event causes at most one extra refresh and
// no client-side accumulation: values are always re-read from the ledger.
func TestDuplicateEventDeliveryIsIdempotent(t *testing.T) {
	reader := &gatedReader{sets: map[int]snapSet{0: {tag: "v1", raised: 40}}}
	rec := NewReconciler(reader, zap.NewNop())
	l := ledger.NewMemoryLedger("0xAdmin")
	mon := NewMonitor(l, rec, zap.NewNop())
	mon.Start()
	defer mon.Stop()

	ctx := context.WithValue(context.Background(), setKey{}, 0)
	_, err := rec.Refresh(ctx, 1)
	require.NoError(t, err)
	before := reader.readCount()

	dup := ledger.Event{Name: ledger.EventInvestmentMade, CampaignID: 1, Actor: "0xInvestorA", Amount: 40, TxID: "tx-dup"}
	l.Emit(dup)
	l.Emit(dup)
	rec.ProcessStale(ctx)

	assert.Equal(t, before+1, reader.readCount())

	snap, ok := rec.Get(1)
	require.True(t, ok)
	// RaisedAmount comes from the read, not from summing event payloads
	assert.Equal(t, uint64(40), snap.Campaign.RaisedAmount)
}

func TestMonitorStopReleasesSubscriptions(t *testing.T) {
	reader := &gatedReader{sets: map[int]snapSet{0: {tag: "v1"}}}
	rec := NewReconciler(reader, zap.NewNop())
	l := ledger.NewMemoryLedger("0xAdmin")
	mon := NewMonitor(l, rec, zap.NewNop())
	mon.Start()
	mon.Stop()

	l.Emit(ledger.Event{Name: ledger.EventInvestmentMade, CampaignID: 9, TxID: "tx-4"})
	assert.Empty(t, rec.cache.TakeStale())
}
