package reconcile

import (
	"go.uber.org/zap"

	"verdant-vault/vault-portal-backend/internal/ledger"
)

// RefreshScope names the cached entities an event makes stale
type RefreshScope struct {
	Counter     bool
	Campaign    bool
	Milestones  bool
	Investments bool
}

// RefreshTable is the fixed event-to-invalidation mapping. The campaign,
// milestone and investment segments live in one snapshot, so any
// campaign-scoped staleness refreshes that campaign's snapshot wholesale;
// the table still records which entities an event actually touches.
var RefreshTable = map[ledger.EventName]RefreshScope{
	ledger.EventCampaignCreated:         {Counter: true},
	ledger.EventInvestmentMade:          {Campaign: true, Investments: true},
	ledger.EventMilestoneProofSubmitted: {Milestones: true},
	ledger.EventMilestoneApproved:       {Campaign: true, Milestones: true},
	ledger.EventFundsReleased:           {Campaign: true},
	ledger.EventCarbonCreditsMinted:     {Investments: true},
	ledger.EventCarbonCreditsClaimed:    {Investments: true},
}

// Monitor subscribes to ledger events and turns them into staleness marks
// on the reconciler. Duplicate deliveries are harmless: invalidation is
// idempotent and values are always re-read from the ledger, never applied
// from event payloads.
type Monitor struct {
	events     ledger.Events
	reconciler *Reconciler
	logger     *zap.Logger
	subs       []ledger.SubscriptionID
}

// NewMonitor creates a monitor feeding the given reconciler
func NewMonitor(events ledger.Events, reconciler *Reconciler, logger *zap.Logger) *Monitor {
	return &Monitor{
		events:     events,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Start subscribes to every event in the refresh table
func (m *Monitor) Start() {
	for name := range RefreshTable {
		sub := m.events.Subscribe(name, ledger.EventFilter{}, m.HandleEvent)
		m.subs = append(m.subs, sub)
	}
	m.logger.Info("event monitor started", zap.Int("subscriptions", len(m.subs)))
}

// Stop releases all subscriptions. Required on teardown so callbacks stop
// firing against a dismantled reconciler.
func (m *Monitor) Stop() {
	for _, sub := range m.subs {
		m.events.Unsubscribe(sub)
	}
	m.subs = nil
	m.logger.Info("event monitor stopped")
}

// HandleEvent applies the refresh table to one event arrival
func (m *Monitor) HandleEvent(e ledger.Event) {
	scope, ok := RefreshTable[e.Name]
	if !ok {
		m.logger.Debug("ignoring unmapped event", zap.String("event", string(e.Name)))
		return
	}

	if scope.Counter {
		m.reconciler.InvalidateCount()
	}
	if scope.Campaign || scope.Milestones || scope.Investments {
		m.reconciler.Invalidate(e.CampaignID)
	}
}
