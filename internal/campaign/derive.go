package campaign

import (
	"time"
)

// Role classifies what a wallet is to the platform, derived from on-ledger
// ownership. A wallet owning at least one campaign is a farmer; anything
// else is treated as an investor.
type Role string

const (
	RoleFarmer   Role = "farmer"
	RoleInvestor Role = "investor"
)

// ProgressPercent returns funding progress clamped to [0, 100] for display.
// A zero funding goal yields 0.
func ProgressPercent(c *Campaign) float64 {
	if c.FundingGoal == 0 {
		return 0
	}
	pct := float64(c.RaisedAmount) / float64(c.FundingGoal) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// IsExpired reports whether the campaign deadline has passed
func IsExpired(c *Campaign, now time.Time) bool {
	return !now.Before(c.Deadline)
}

// IsOwner compares identities case-insensitively (hex addresses vary in case)
func IsOwner(c *Campaign, identity string) bool {
	return sameIdentity(c.Owner, identity)
}

// NextPendingMilestoneIndex returns the index of the first milestone without
// a submitted proof, or -1 and false when every milestone is completed.
func NextPendingMilestoneIndex(milestones []Milestone) (int, bool) {
	for i, m := range milestones {
		if !m.Completed {
			return i, true
		}
	}
	return -1, false
}

// ClassifyRole scans the full campaign set for ownership
func ClassifyRole(identity string, campaigns []Campaign) Role {
	for i := range campaigns {
		if IsOwner(&campaigns[i], identity) {
			return RoleFarmer
		}
	}
	return RoleInvestor
}
