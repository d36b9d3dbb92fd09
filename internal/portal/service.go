package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"verdant-vault/vault-portal-backend/internal/campaign"
	"verdant-vault/vault-portal-backend/internal/ledger"
	"verdant-vault/vault-portal-backend/internal/pinning"
	"verdant-vault/vault-portal-backend/internal/reconcile"
)

// CampaignView is a snapshot plus the derived values the UI renders.
// Derived values are recomputed on every call, never cached.
type CampaignView struct {
	campaign.Campaign
	StatusLabel          string                `json:"status_label"`
	ProgressPercent      float64               `json:"progress_percent"`
	IsExpired            bool                  `json:"is_expired"`
	NextPendingMilestone *int                  `json:"next_pending_milestone,omitempty"`
	Milestones           []campaign.Milestone  `json:"milestones"`
	Investments          []campaign.Investment `json:"investments"`
	ObservedAt           time.Time             `json:"observed_at"`
}

// Service orchestrates reads through the reconciler and gates writes
// against the campaign state machine before they reach the ledger.
type Service struct {
	led        ledger.Ledger
	reconciler *reconcile.Reconciler
	pins       *pinning.Service
	logger     *zap.Logger
	clock      func() time.Time
}

// NewService creates the portal service
func NewService(led ledger.Ledger, reconciler *reconcile.Reconciler, pins *pinning.Service, logger *zap.Logger) *Service {
	return &Service{
		led:        led,
		reconciler: reconciler,
		pins:       pins,
		logger:     logger,
		clock:      time.Now,
	}
}

// SetClock overrides the service time source, for tests
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

func (s *Service) view(snap *reconcile.Snapshot) *CampaignView {
	v := &CampaignView{
		Campaign:        snap.Campaign,
		StatusLabel:     snap.Campaign.Status.String(),
		ProgressPercent: campaign.ProgressPercent(&snap.Campaign),
		IsExpired:       campaign.IsExpired(&snap.Campaign, s.clock()),
		Milestones:      snap.Milestones,
		Investments:     snap.Investments,
		ObservedAt:      snap.ObservedAt,
	}
	if idx, ok := campaign.NextPendingMilestoneIndex(snap.Milestones); ok {
		v.NextPendingMilestone = &idx
	}
	return v
}

// GetCampaign returns the current view of one campaign
func (s *Service) GetCampaign(ctx context.Context, id uint64) (*CampaignView, error) {
	snap, err := s.reconciler.GetOrRefresh(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(snap), nil
}

// ListCampaigns returns views for every campaign on the ledger. Campaigns
// whose read fails are skipped so one bad read does not blank the list.
func (s *Service) ListCampaigns(ctx context.Context) ([]*CampaignView, error) {
	count, err := s.reconciler.CampaignCount(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]*CampaignView, 0, count)
	for id := uint64(1); id <= count; id++ {
		snap, err := s.reconciler.GetOrRefresh(ctx, id)
		if err != nil {
			s.logger.Warn("skipping unreadable campaign", zap.Uint64("campaign_id", id), zap.Error(err))
			continue
		}
		views = append(views, s.view(snap))
	}
	return views, nil
}

// Role classifies the caller by scanning campaign ownership
func (s *Service) Role(ctx context.Context, identity string) (campaign.Role, error) {
	views, err := s.ListCampaigns(ctx)
	if err != nil {
		return "", err
	}
	campaigns := make([]campaign.Campaign, len(views))
	for i, v := range views {
		campaigns[i] = v.Campaign
	}
	return campaign.ClassifyRole(identity, campaigns), nil
}

// Approver returns the authorized milestone approver
func (s *Service) Approver(ctx context.Context) (string, error) {
	return s.led.GetAuthorizedApprover(ctx)
}

// CreateCampaign pins nothing itself: the caller must already hold a
// metadata reference from the upload gateway.
func (s *Service) CreateCampaign(ctx context.Context, caller, metadataRef string, fundingGoal uint64, durationDays int, estimatedCO2 uint64) (*ledger.WriteHandle, error) {
	if metadataRef == "" {
		return nil, fmt.Errorf("metadata reference is required")
	}
	if fundingGoal == 0 {
		return nil, campaign.ErrInvalidAmount
	}
	h := s.led.CreateCampaign(ctx, caller, metadataRef, fundingGoal, durationDays, estimatedCO2)
	s.afterConfirm(h, func() {
		s.reconciler.InvalidateCount()
	})
	return h, nil
}

// Invest gates and submits an investment
func (s *Service) Invest(ctx context.Context, caller string, id uint64, amount uint64) (*ledger.WriteHandle, error) {
	snap, err := s.reconciler.GetOrRefresh(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := campaign.CanInvest(&snap.Campaign, amount, s.clock()); err != nil {
		return nil, err
	}
	h := s.led.Invest(ctx, caller, id, amount)
	s.invalidateOnConfirm(h, id)
	return h, nil
}

// SubmitProof gates and submits a milestone proof reference
func (s *Service) SubmitProof(ctx context.Context, caller string, id uint64, index int, proofRef string) (*ledger.WriteHandle, error) {
	if proofRef == "" {
		return nil, fmt.Errorf("proof reference is required")
	}
	snap, err := s.reconciler.GetOrRefresh(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := campaign.CanSubmitProof(&snap.Campaign, snap.Milestones, index, caller); err != nil {
		return nil, err
	}
	h := s.led.SubmitMilestoneProof(ctx, caller, id, index, proofRef)
	s.invalidateOnConfirm(h, id)
	return h, nil
}

// SubmitProofEvidence uploads proof metadata and files through the pinning
// gateway and then submits the resulting reference. An upload failure
// aborts the whole flow; no ledger write is attempted.
func (s *Service) SubmitProofEvidence(ctx context.Context, caller string, id uint64, index int, note string, files []pinning.UploadFile) (string, *ledger.WriteHandle, error) {
	snap, err := s.reconciler.GetOrRefresh(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if err := campaign.CanSubmitProof(&snap.Campaign, snap.Milestones, index, caller); err != nil {
		return "", nil, err
	}

	metadata, err := encodeProofMetadata(id, index, note)
	if err != nil {
		return "", nil, err
	}
	cid, err := s.pins.Upload(ctx, metadata, files, caller)
	if err != nil {
		return "", nil, fmt.Errorf("proof upload failed, submission aborted: %w", err)
	}

	h := s.led.SubmitMilestoneProof(ctx, caller, id, index, cid)
	s.invalidateOnConfirm(h, id)
	return cid, h, nil
}

// ApproveMilestone gates and submits a milestone approval
func (s *Service) ApproveMilestone(ctx context.Context, caller string, id uint64, index int) (*ledger.WriteHandle, error) {
	snap, err := s.reconciler.GetOrRefresh(ctx, id)
	if err != nil {
		return nil, err
	}
	approver, err := s.led.GetAuthorizedApprover(ctx)
	if err != nil {
		return nil, err
	}
	if err := campaign.CanApproveMilestone(snap.Milestones, index, caller, approver); err != nil {
		return nil, err
	}
	h := s.led.ApproveMilestone(ctx, caller, id, index)
	s.invalidateOnConfirm(h, id)
	return h, nil
}

// ClaimRefund gates and submits a refund claim. Eligibility is derived
// from status and deadline together, never from status alone.
func (s *Service) ClaimRefund(ctx context.Context, caller string, id uint64) (*ledger.WriteHandle, error) {
	snap, err := s.reconciler.GetOrRefresh(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := campaign.CanClaimRefund(&snap.Campaign, s.clock()); err != nil {
		return nil, err
	}
	h := s.led.ClaimRefund(ctx, caller, id)
	s.invalidateOnConfirm(h, id)
	return h, nil
}

// ClaimCredits gates and submits a carbon credit claim
func (s *Service) ClaimCredits(ctx context.Context, caller string, id uint64) (*ledger.WriteHandle, error) {
	snap, err := s.reconciler.GetOrRefresh(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := campaign.CanClaimCredits(snap.Investments, caller); err != nil {
		return nil, err
	}
	h := s.led.ClaimCredits(ctx, caller, id)
	s.invalidateOnConfirm(h, id)
	return h, nil
}

// invalidateOnConfirm refreshes a campaign once its write confirms. A
// write that never resolves keeps its pending state forever; there is no
// timeout rollback.
func (s *Service) invalidateOnConfirm(h *ledger.WriteHandle, id uint64) {
	s.afterConfirm(h, func() {
		s.reconciler.Invalidate(id)
	})
}

func (s *Service) afterConfirm(h *ledger.WriteHandle, fn func()) {
	go func() {
		<-h.Done()
		if h.Status() == ledger.WriteConfirmed {
			fn()
		}
	}()
}

func encodeProofMetadata(id uint64, index int, note string) ([]byte, error) {
	m := campaign.ProofMetadata{
		Schema:         campaign.SchemaMilestoneProofV1,
		CampaignID:     id,
		MilestoneIndex: index,
		Note:           note,
	}
	return json.Marshal(m)
}
