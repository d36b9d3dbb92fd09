package campaign

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Admissibility errors returned before any ledger write is attempted.
var (
	ErrCampaignNotActive    = errors.New("campaign is not accepting investments")
	ErrCampaignExpired      = errors.New("campaign deadline has passed")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrNotCampaignOwner     = errors.New("only the campaign owner may submit milestone proofs")
	ErrCampaignNotFunded    = errors.New("campaign is not fully funded")
	ErrMilestoneOutOfRange  = errors.New("milestone index out of range")
	ErrMilestoneCompleted   = errors.New("milestone proof already submitted")
	ErrMilestoneNotComplete = errors.New("milestone has no submitted proof")
	ErrMilestoneApproved    = errors.New("milestone already approved")
	ErrNotApprover          = errors.New("caller is not the authorized approver")
	ErrRefundNotAvailable   = errors.New("refunds are only available for expired active campaigns")
	ErrNoClaimableCredits   = errors.New("no unclaimed credits for this investor")
	ErrMilestonePercentage  = errors.New("milestone fund percentages must sum to 100")
	ErrApprovedWithoutProof = errors.New("milestone approved without a submitted proof")
)

// CanInvest gates an investment before the write is issued. The ledger
// enforces the same rules; failing here avoids the round-trip.
func CanInvest(c *Campaign, amount uint64, now time.Time) error {
	if c.Status != StatusActive {
		return fmt.Errorf("%w (status %s)", ErrCampaignNotActive, c.Status)
	}
	if !now.Before(c.Deadline) {
		return ErrCampaignExpired
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	return nil
}

// CanSubmitProof gates a milestone proof submission by the campaign owner.
func CanSubmitProof(c *Campaign, milestones []Milestone, index int, caller string) error {
	if !IsOwner(c, caller) {
		return ErrNotCampaignOwner
	}
	if c.Status != StatusFunded {
		return fmt.Errorf("%w (status %s)", ErrCampaignNotFunded, c.Status)
	}
	if index < 0 || index >= len(milestones) {
		return ErrMilestoneOutOfRange
	}
	if milestones[index].Completed {
		return ErrMilestoneCompleted
	}
	return nil
}

// CanApproveMilestone gates milestone approval by the authorized approver.
func CanApproveMilestone(milestones []Milestone, index int, caller, approver string) error {
	if !sameIdentity(caller, approver) {
		return ErrNotApprover
	}
	if index < 0 || index >= len(milestones) {
		return ErrMilestoneOutOfRange
	}
	if !milestones[index].Completed {
		return ErrMilestoneNotComplete
	}
	if milestones[index].Approved {
		return ErrMilestoneApproved
	}
	return nil
}

// CanClaimRefund gates a refund claim. Refund eligibility is never derived
// from status alone: the campaign must still be Active and past its
// deadline. A Funded campaign past its deadline is not refundable.
func CanClaimRefund(c *Campaign, now time.Time) error {
	if c.Status != StatusActive || now.Before(c.Deadline) {
		return ErrRefundNotAvailable
	}
	return nil
}

// CanClaimCredits gates a carbon credit claim by an investor.
func CanClaimCredits(investments []Investment, caller string) error {
	for _, inv := range investments {
		if sameIdentity(inv.Investor, caller) && inv.CreditsEarned > 0 && !inv.CreditsClaimed {
			return nil
		}
	}
	return ErrNoClaimableCredits
}

func sameIdentity(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
