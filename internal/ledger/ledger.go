package ledger

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"verdant-vault/vault-portal-backend/internal/campaign"
)

// EventName identifies a domain event emitted by the ledger
type EventName string

const (
	EventCampaignCreated         EventName = "CampaignCreated"
	EventInvestmentMade          EventName = "InvestmentMade"
	EventMilestoneProofSubmitted EventName = "MilestoneProofSubmitted"
	EventMilestoneApproved       EventName = "MilestoneApproved"
	EventFundsReleased           EventName = "FundsReleased"
	EventCarbonCreditsMinted     EventName = "CarbonCreditsMinted"
	EventCarbonCreditsClaimed    EventName = "CarbonCreditsClaimed"
)

// AllEvents lists every domain event the ledger emits
func AllEvents() []EventName {
	return []EventName{
		EventCampaignCreated,
		EventInvestmentMade,
		EventMilestoneProofSubmitted,
		EventMilestoneApproved,
		EventFundsReleased,
		EventCarbonCreditsMinted,
		EventCarbonCreditsClaimed,
	}
}

// Event is a single domain event notification. TxID identifies the
// originating transaction; duplicate deliveries share a TxID.
type Event struct {
	Name           EventName `json:"name"`
	CampaignID     uint64    `json:"campaign_id"`
	MilestoneIndex int       `json:"milestone_index,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	Amount         uint64    `json:"amount,omitempty"`
	TxID           string    `json:"tx_id"`
}

// EventFilter narrows a subscription to a campaign and/or investor
type EventFilter struct {
	CampaignID *uint64
	Investor   string
}

// Matches reports whether an event passes the filter
func (f EventFilter) Matches(e Event) bool {
	if f.CampaignID != nil && e.CampaignID != *f.CampaignID {
		return false
	}
	if f.Investor != "" && !strings.EqualFold(f.Investor, e.Actor) {
		return false
	}
	return true
}

// SubscriptionID identifies an active event subscription
type SubscriptionID string

// Reader issues point-in-time queries against the ledger. Each call returns
// a consistent snapshot of the requested entity.
type Reader interface {
	GetCampaign(ctx context.Context, id uint64) (campaign.Campaign, error)
	GetMilestones(ctx context.Context, id uint64) ([]campaign.Milestone, error)
	GetInvestments(ctx context.Context, id uint64) ([]campaign.Investment, error)
	GetCampaignCount(ctx context.Context) (uint64, error)
	GetAuthorizedApprover(ctx context.Context) (string, error)
}

// Writer submits state-changing transactions. Every write returns a handle
// that later resolves to confirmed or failed; a write that never confirms
// stays pending and is never rolled back client-side.
type Writer interface {
	CreateCampaign(ctx context.Context, caller, metadataRef string, fundingGoal uint64, durationDays int, estimatedCO2 uint64) *WriteHandle
	Invest(ctx context.Context, caller string, id uint64, amount uint64) *WriteHandle
	SubmitMilestoneProof(ctx context.Context, caller string, id uint64, index int, proofRef string) *WriteHandle
	ApproveMilestone(ctx context.Context, caller string, id uint64, index int) *WriteHandle
	ClaimRefund(ctx context.Context, caller string, id uint64) *WriteHandle
	ClaimCredits(ctx context.Context, caller string, id uint64) *WriteHandle
}

// Events is the ledger's event subscription surface. An empty name
// subscribes to every event.
type Events interface {
	Subscribe(name EventName, filter EventFilter, callback func(Event)) SubscriptionID
	Unsubscribe(id SubscriptionID)
}

// Ledger is the full client-facing ledger surface
type Ledger interface {
	Reader
	Writer
	Events
}

// WriteStatus is the resolution state of a submitted write
type WriteStatus int

const (
	WritePending WriteStatus = iota
	WriteConfirmed
	WriteFailed
)

// WriteHandle tracks a submitted write until the ledger confirms or rejects
// it. Done is closed exactly once, on resolution.
type WriteHandle struct {
	ID string

	mu     sync.Mutex
	done   chan struct{}
	status WriteStatus
	err    error
}

// NewWriteHandle creates a pending write handle
func NewWriteHandle() *WriteHandle {
	return &WriteHandle{
		ID:   uuid.New().String(),
		done: make(chan struct{}),
	}
}

// Done returns a channel closed when the write resolves
func (h *WriteHandle) Done() <-chan struct{} {
	return h.done
}

// Status returns the current resolution state
func (h *WriteHandle) Status() WriteStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Err returns the rejection error after a failed resolution
func (h *WriteHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Resolve marks the handle confirmed (err == nil) or failed. Subsequent
// calls are no-ops.
func (h *WriteHandle) Resolve(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status != WritePending {
		return
	}
	if err != nil {
		h.status = WriteFailed
		h.err = err
	} else {
		h.status = WriteConfirmed
	}
	close(h.done)
}

// failedWrite returns a handle already resolved as failed
func failedWrite(err error) *WriteHandle {
	h := NewWriteHandle()
	h.Resolve(err)
	return h
}

// confirmedWrite returns a handle already resolved as confirmed
func confirmedWrite() *WriteHandle {
	h := NewWriteHandle()
	h.Resolve(nil)
	return h
}
