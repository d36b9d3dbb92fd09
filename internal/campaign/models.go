package campaign

import (
	"time"
)

// Status is the lifecycle status of a campaign as reported by the ledger.
// The numeric values match the on-ledger encoding and must not be reordered.
type Status uint8

const (
	StatusActive Status = iota
	StatusFunded
	StatusCompleted
	StatusFailed
	StatusCanceled
)

var statusNames = map[Status]string{
	StatusActive:    "Active",
	StatusFunded:    "Funded",
	StatusCompleted: "Completed",
	StatusFailed:    "Failed",
	StatusCanceled:  "Canceled",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Valid reports whether the status is one of the known lifecycle statuses
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Campaign represents a funding campaign as read from the ledger.
// Monetary amounts are in the ledger's base unit.
type Campaign struct {
	ID               uint64    `json:"id"`
	Owner            string    `json:"owner"`
	MetadataRef      string    `json:"metadata_ref"`
	FundingGoal      uint64    `json:"funding_goal"`
	RaisedAmount     uint64    `json:"raised_amount"`
	Deadline         time.Time `json:"deadline"`
	EstimatedCO2Tons uint64    `json:"estimated_co2_tons"`
	Status           Status    `json:"status"`
}

// Milestone is one step in a campaign's delivery plan. Milestones form an
// ordered, fixed-size list owned by exactly one campaign.
type Milestone struct {
	Index          int    `json:"index"`
	Description    string `json:"description"`
	FundPercentage int    `json:"fund_percentage"`
	ProofRef       string `json:"proof_ref,omitempty"`
	Completed      bool   `json:"completed"`
	Approved       bool   `json:"approved"`
}

// Investment is one contribution to a campaign. Rows are append-only.
type Investment struct {
	Investor       string `json:"investor"`
	Amount         uint64 `json:"amount"`
	CreditsEarned  uint64 `json:"credits_earned"`
	CreditsClaimed bool   `json:"credits_claimed"`
}

// ValidateMilestones sanity-checks invariants the ledger enforces at
// creation: percentages sum to 100 and approval implies completion.
func ValidateMilestones(milestones []Milestone) error {
	sum := 0
	for _, m := range milestones {
		if m.FundPercentage < 0 || m.FundPercentage > 100 {
			return ErrMilestonePercentage
		}
		if m.Approved && !m.Completed {
			return ErrApprovedWithoutProof
		}
		sum += m.FundPercentage
	}
	if len(milestones) > 0 && sum != 100 {
		return ErrMilestonePercentage
	}
	return nil
}
