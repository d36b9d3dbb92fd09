package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"verdant-vault/vault-portal-backend/internal/campaign"
	"verdant-vault/vault-portal-backend/pkg/workflows"
)

// Ledger-side rejection errors. These mirror the contract's revert reasons.
var (
	ErrCampaignNotFound = errors.New("ledger: campaign not found")
	ErrWriteRejected    = errors.New("ledger: transaction rejected")
)

// Default milestone plan applied to every campaign at creation. Percentages
// sum to 100; the ledger enforces this at creation time.
var defaultMilestones = []campaign.Milestone{
	{Index: 0, Description: "Land preparation", FundPercentage: 25},
	{Index: 1, Description: "Planting", FundPercentage: 25},
	{Index: 2, Description: "Growth verification", FundPercentage: 25},
	{Index: 3, Description: "Harvest and impact report", FundPercentage: 25},
}

type campaignState struct {
	data        campaign.Campaign
	milestones  []campaign.Milestone
	investments []campaign.Investment
	released    uint64
}

type subscription struct {
	id       SubscriptionID
	name     EventName
	filter   EventFilter
	callback func(Event)
}

// MemoryLedger is an in-process ledger implementing the VerdantVault
// contract semantics. It backs development and tests; production deploys
// point at the real chain through the same interfaces.
type MemoryLedger struct {
	mu        sync.Mutex
	now       func() time.Time
	approver  string
	counter   uint64
	states    map[uint64]*campaignState
	subs      map[SubscriptionID]*subscription
	lifecycle *workflows.StateMachine
}

// NewMemoryLedger creates an empty ledger with the given authorized approver
func NewMemoryLedger(approver string) *MemoryLedger {
	return &MemoryLedger{
		now:       time.Now,
		approver:  approver,
		states:    make(map[uint64]*campaignState),
		subs:      make(map[SubscriptionID]*subscription),
		lifecycle: campaign.NewStateMachine(),
	}
}

// setStatus applies a lifecycle transition, enforcing the transition table.
// Callers hold l.mu.
func (l *MemoryLedger) setStatus(st *campaignState, to campaign.Status) error {
	from := st.data.Status
	if !l.lifecycle.CanTransition(from.String(), to.String()) {
		return fmt.Errorf("%w: illegal transition %s -> %s", ErrWriteRejected, from, to)
	}
	st.data.Status = to
	return nil
}

// SetClock overrides the ledger's time source, for tests
func (l *MemoryLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Reader

func (l *MemoryLedger) GetCampaign(ctx context.Context, id uint64) (campaign.Campaign, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[id]
	if !ok {
		return campaign.Campaign{}, fmt.Errorf("%w: %d", ErrCampaignNotFound, id)
	}
	return st.data, nil
}

func (l *MemoryLedger) GetMilestones(ctx context.Context, id uint64) ([]campaign.Milestone, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrCampaignNotFound, id)
	}
	out := make([]campaign.Milestone, len(st.milestones))
	copy(out, st.milestones)
	return out, nil
}

func (l *MemoryLedger) GetInvestments(ctx context.Context, id uint64) ([]campaign.Investment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrCampaignNotFound, id)
	}
	out := make([]campaign.Investment, len(st.investments))
	copy(out, st.investments)
	return out, nil
}

func (l *MemoryLedger) GetCampaignCount(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counter, nil
}

func (l *MemoryLedger) GetAuthorizedApprover(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.approver, nil
}

// Writer

func (l *MemoryLedger) CreateCampaign(ctx context.Context, caller, metadataRef string, fundingGoal uint64, durationDays int, estimatedCO2 uint64) *WriteHandle {
	if caller == "" || metadataRef == "" || fundingGoal == 0 || durationDays <= 0 {
		return failedWrite(fmt.Errorf("%w: invalid campaign parameters", ErrWriteRejected))
	}

	l.mu.Lock()
	l.counter++
	id := l.counter
	milestones := make([]campaign.Milestone, len(defaultMilestones))
	copy(milestones, defaultMilestones)
	deadline := l.now().Add(time.Duration(durationDays) * 24 * time.Hour)
	l.states[id] = &campaignState{
		data: campaign.Campaign{
			ID:               id,
			Owner:            caller,
			MetadataRef:      metadataRef,
			FundingGoal:      fundingGoal,
			Deadline:         deadline,
			EstimatedCO2Tons: estimatedCO2,
			Status:           campaign.StatusActive,
		},
		milestones: milestones,
	}
	events := []Event{{
		Name:       EventCampaignCreated,
		CampaignID: id,
		Actor:      caller,
		Amount:     fundingGoal,
		TxID:       newTxID(),
	}}
	l.mu.Unlock()

	l.dispatch(events)
	return confirmedWrite()
}

func (l *MemoryLedger) Invest(ctx context.Context, caller string, id uint64, amount uint64) *WriteHandle {
	l.mu.Lock()
	st, ok := l.states[id]
	if !ok {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: %d", ErrCampaignNotFound, id))
	}
	if st.data.Status != campaign.StatusActive {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: campaign not active", ErrWriteRejected))
	}
	if !l.now().Before(st.data.Deadline) {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: deadline passed", ErrWriteRejected))
	}
	if amount == 0 || caller == "" {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: invalid investment", ErrWriteRejected))
	}

	st.investments = append(st.investments, campaign.Investment{
		Investor: caller,
		Amount:   amount,
	})
	st.data.RaisedAmount += amount
	if st.data.RaisedAmount >= st.data.FundingGoal {
		if err := l.setStatus(st, campaign.StatusFunded); err != nil {
			l.mu.Unlock()
			return failedWrite(err)
		}
	}
	events := []Event{{
		Name:       EventInvestmentMade,
		CampaignID: id,
		Actor:      caller,
		Amount:     amount,
		TxID:       newTxID(),
	}}
	l.mu.Unlock()

	l.dispatch(events)
	return confirmedWrite()
}

func (l *MemoryLedger) SubmitMilestoneProof(ctx context.Context, caller string, id uint64, index int, proofRef string) *WriteHandle {
	l.mu.Lock()
	st, ok := l.states[id]
	if !ok {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: %d", ErrCampaignNotFound, id))
	}
	if !strings.EqualFold(st.data.Owner, caller) {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: caller is not the farmer", ErrWriteRejected))
	}
	if st.data.Status != campaign.StatusFunded {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: campaign not funded", ErrWriteRejected))
	}
	if index < 0 || index >= len(st.milestones) {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: milestone index out of range", ErrWriteRejected))
	}
	if st.milestones[index].Completed {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: proof already submitted", ErrWriteRejected))
	}
	if proofRef == "" {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: empty proof reference", ErrWriteRejected))
	}

	st.milestones[index].ProofRef = proofRef
	st.milestones[index].Completed = true
	events := []Event{{
		Name:           EventMilestoneProofSubmitted,
		CampaignID:     id,
		MilestoneIndex: index,
		Actor:          caller,
		TxID:           newTxID(),
	}}
	l.mu.Unlock()

	l.dispatch(events)
	return confirmedWrite()
}

func (l *MemoryLedger) ApproveMilestone(ctx context.Context, caller string, id uint64, index int) *WriteHandle {
	l.mu.Lock()
	st, ok := l.states[id]
	if !ok {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: %d", ErrCampaignNotFound, id))
	}
	if !strings.EqualFold(l.approver, caller) {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: caller is not the approver", ErrWriteRejected))
	}
	if index < 0 || index >= len(st.milestones) {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: milestone index out of range", ErrWriteRejected))
	}
	if !st.milestones[index].Completed {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: no proof submitted", ErrWriteRejected))
	}
	if st.milestones[index].Approved {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: already approved", ErrWriteRejected))
	}

	txID := newTxID()
	st.milestones[index].Approved = true
	release := st.data.FundingGoal * uint64(st.milestones[index].FundPercentage) / 100
	st.released += release

	events := []Event{
		{Name: EventMilestoneApproved, CampaignID: id, MilestoneIndex: index, Actor: caller, TxID: txID},
		{Name: EventFundsReleased, CampaignID: id, Amount: release, TxID: txID},
	}

	if allApproved(st.milestones) {
		if err := l.setStatus(st, campaign.StatusCompleted); err != nil {
			l.mu.Unlock()
			return failedWrite(err)
		}
		var minted uint64
		for i := range st.investments {
			inv := &st.investments[i]
			if st.data.RaisedAmount > 0 {
				inv.CreditsEarned = st.data.EstimatedCO2Tons * inv.Amount / st.data.RaisedAmount
			}
			minted += inv.CreditsEarned
		}
		events = append(events, Event{
			Name:       EventCarbonCreditsMinted,
			CampaignID: id,
			Amount:     minted,
			TxID:       txID,
		})
	}
	l.mu.Unlock()

	l.dispatch(events)
	return confirmedWrite()
}

func (l *MemoryLedger) ClaimRefund(ctx context.Context, caller string, id uint64) *WriteHandle {
	l.mu.Lock()
	st, ok := l.states[id]
	if !ok {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: %d", ErrCampaignNotFound, id))
	}
	if st.data.Status != campaign.StatusActive {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: campaign not active", ErrWriteRejected))
	}
	if l.now().Before(st.data.Deadline) {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: deadline not reached", ErrWriteRejected))
	}
	if !l.isStakeholder(st, caller) {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: caller has no stake", ErrWriteRejected))
	}

	if err := l.setStatus(st, campaign.StatusFailed); err != nil {
		l.mu.Unlock()
		return failedWrite(err)
	}
	l.mu.Unlock()

	// The contract emits no dedicated refund event; the claiming client
	// refreshes on write confirmation.
	return confirmedWrite()
}

func (l *MemoryLedger) ClaimCredits(ctx context.Context, caller string, id uint64) *WriteHandle {
	l.mu.Lock()
	st, ok := l.states[id]
	if !ok {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: %d", ErrCampaignNotFound, id))
	}

	var claimed uint64
	for i := range st.investments {
		inv := &st.investments[i]
		if strings.EqualFold(inv.Investor, caller) && inv.CreditsEarned > 0 && !inv.CreditsClaimed {
			inv.CreditsClaimed = true
			claimed += inv.CreditsEarned
		}
	}
	if claimed == 0 {
		l.mu.Unlock()
		return failedWrite(fmt.Errorf("%w: nothing to claim", ErrWriteRejected))
	}
	events := []Event{{
		Name:       EventCarbonCreditsClaimed,
		CampaignID: id,
		Actor:      caller,
		Amount:     claimed,
		TxID:       newTxID(),
	}}
	l.mu.Unlock()

	l.dispatch(events)
	return confirmedWrite()
}

// Events

func (l *MemoryLedger) Subscribe(name EventName, filter EventFilter, callback func(Event)) SubscriptionID {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := SubscriptionID(uuid.New().String())
	l.subs[id] = &subscription{id: id, name: name, filter: filter, callback: callback}
	return id
}

func (l *MemoryLedger) Unsubscribe(id SubscriptionID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, id)
}

// Emit re-delivers an event to subscribers. Tests use it to simulate
// duplicate deliveries from a reconnecting monitor.
func (l *MemoryLedger) Emit(e Event) {
	l.dispatch([]Event{e})
}

// dispatch delivers events to matching subscribers outside the state lock,
// so callbacks may issue reads without deadlocking.
func (l *MemoryLedger) dispatch(events []Event) {
	l.mu.Lock()
	subs := make([]*subscription, 0, len(l.subs))
	for _, s := range l.subs {
		subs = append(subs, s)
	}
	l.mu.Unlock()

	for _, e := range events {
		for _, s := range subs {
			if s.name != "" && s.name != e.Name {
				continue
			}
			if !s.filter.Matches(e) {
				continue
			}
			s.callback(e)
		}
	}
}

func (l *MemoryLedger) isStakeholder(st *campaignState, caller string) bool {
	if strings.EqualFold(l.approver, caller) {
		return true
	}
	for _, inv := range st.investments {
		if strings.EqualFold(inv.Investor, caller) {
			return true
		}
	}
	return false
}

func allApproved(milestones []campaign.Milestone) bool {
	for _, m := range milestones {
		if !m.Approved {
			return false
		}
	}
	return len(milestones) > 0
}

func newTxID() string {
	return uuid.New().String()
}
