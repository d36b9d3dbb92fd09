package campaign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name   string
		goal   uint64
		raised uint64
		want   float64
	}{
		{"partially funded", 100, 40, 40},
		{"fully funded", 100, 100, 100},
		{"overfunded clamps to 100", 100, 150, 100},
		{"nothing raised", 100, 0, 0},
		{"zero goal", 0, 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Campaign{FundingGoal: tt.goal, RaisedAmount: tt.raised}
			assert.InDelta(t, tt.want, ProgressPercent(c), 1e-9)
		})
	}
}

func TestIsExpired(t *testing.T) {
	c := &Campaign{Deadline: deadline}

	assert.False(t, IsExpired(c, deadline.Add(-time.Second)))
	assert.True(t, IsExpired(c, deadline))
	assert.True(t, IsExpired(c, deadline.Add(time.Second)))
}

func TestIsOwner(t *testing.T) {
	c := &Campaign{Owner: "0xAbCdEf"}

	assert.True(t, IsOwner(c, "0xAbCdEf"))
	assert.True(t, IsOwner(c, "0xabcdef"))
	assert.True(t, IsOwner(c, "0XABCDEF"))
	assert.False(t, IsOwner(c, "0x123456"))
	assert.False(t, IsOwner(c, ""))
}

func TestNextPendingMilestoneIndex(t *testing.T) {
	idx, ok := NextPendingMilestoneIndex([]Milestone{
		{Index: 0, Completed: true},
		{Index: 1, Completed: true},
		{Index: 2},
		{Index: 3},
	})
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	idx, ok = NextPendingMilestoneIndex([]Milestone{
		{Index: 0, Completed: true},
		{Index: 1, Completed: true},
	})
	assert.False(t, ok)
	assert.Equal(t, -1, idx)

	_, ok = NextPendingMilestoneIndex(nil)
	assert.False(t, ok)
}

func TestClassifyRole(t *testing.T) {
	campaigns := []Campaign{
		{ID: 1, Owner: "0xFarmerAAA"},
		{ID: 2, Owner: "0xFarmerBBB"},
	}

	assert.Equal(t, RoleFarmer, ClassifyRole("0xfarmeraaa", campaigns))
	assert.Equal(t, RoleFarmer, ClassifyRole("0xFarmerBBB", campaigns))
	assert.Equal(t, RoleInvestor, ClassifyRole("0xSomeoneElse", campaigns))
	assert.Equal(t, RoleInvestor, ClassifyRole("0xFarmerAAA", nil))
}

func TestValidateMilestones(t *testing.T) {
	assert.NoError(t, ValidateMilestones([]Milestone{
		{FundPercentage: 25}, {FundPercentage: 25}, {FundPercentage: 25}, {FundPercentage: 25},
	}))
	assert.NoError(t, ValidateMilestones([]Milestone{
		{FundPercentage: 60, Completed: true, Approved: true}, {FundPercentage: 40},
	}))
	assert.NoError(t, ValidateMilestones(nil))

	assert.ErrorIs(t, ValidateMilestones([]Milestone{
		{FundPercentage: 50}, {FundPercentage: 40},
	}), ErrMilestonePercentage)
	assert.ErrorIs(t, ValidateMilestones([]Milestone{
		{FundPercentage: 120}, {FundPercentage: -20},
	}), ErrMilestonePercentage)
	assert.ErrorIs(t, ValidateMilestones([]Milestone{
		{FundPercentage: 100, Approved: true},
	}), ErrApprovedWithoutProof)
}
