package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"verdant-vault/vault-portal-backend/internal/campaign"
	"verdant-vault/vault-portal-backend/internal/ledger"
	"verdant-vault/vault-portal-backend/internal/pinning"
	"verdant-vault/vault-portal-backend/internal/reconcile"
)

const (
	testApprover = "0xA11CE0000000000000000000000000000000AAAA"
	testFarmer   = "0xFa12340000000000000000000000000000000001"
	testInvestor = "0xBEEF000000000000000000000000000000000002"
	testOther    = "0xCAFE000000000000000000000000000000000003"
)

// stubPinner hands out sequential CIDs and remembers what it pinned
type stubPinner struct {
	counter  int
	files    []string
	jsonDocs []map[string]interface{}
	fail     bool
}

func (p *stubPinner) PinFile(ctx context.Context, name string, content io.Reader) (string, error) {
	if p.fail {
		return "", errors.New("pinning service unavailable")
	}
	io.Copy(io.Discard, content)
	p.counter++
	p.files = append(p.files, name)
	return fmt.Sprintf("QmFile%04d", p.counter), nil
}

func (p *stubPinner) PinJSON(ctx context.Context, payload interface{}) (string, error) {
	if p.fail {
		return "", errors.New("pinning service unavailable")
	}
	p.counter++
	if doc, ok := payload.(map[string]interface{}); ok {
		p.jsonDocs = append(p.jsonDocs, doc)
	}
	return fmt.Sprintf("QmJson%04d", p.counter), nil
}

type portalFixture struct {
	service *Service
	ledger  *ledger.MemoryLedger
	rec     *reconcile.Reconciler
	pinner  *stubPinner
	now     time.Time
}

func newPortalFixture(t *testing.T) *portalFixture {
	t.Helper()
	logger := zap.NewNop()
	led := ledger.NewMemoryLedger(testApprover)
	rec := reconcile.NewReconciler(led, logger)
	pinner := &stubPinner{}
	pins := pinning.NewService(pinner, nil, logger)
	svc := NewService(led, rec, pins, logger)

	f := &portalFixture{service: svc, ledger: led, rec: rec, pinner: pinner,
		now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	f.setNow(f.now)
	return f
}

func (f *portalFixture) setNow(now time.Time) {
	f.now = now
	f.ledger.SetClock(func() time.Time { return now })
	f.service.SetClock(func() time.Time { return now })
}

// write resolves a handle and forces a fresh snapshot so assertions never
// race the async invalidation goroutine
func (f *portalFixture) confirm(t *testing.T, h *ledger.WriteHandle, id uint64) {
	t.Helper()
	<-h.Done()
	require.NoError(t, h.Err())
	if id > 0 {
		_, err := f.rec.Refresh(context.Background(), id)
		require.NoError(t, err)
	}
}

func (f *portalFixture) createCampaign(t *testing.T, goal uint64) uint64 {
	t.Helper()
	h, err := f.service.CreateCampaign(context.Background(), testFarmer, "QmCampaignMeta", goal, 30, 500)
	require.NoError(t, err)
	<-h.Done()
	require.NoError(t, h.Err())
	count, err := f.rec.RefreshCount(context.Background())
	require.NoError(t, err)
	return count
}

func TestInvestmentProgressAndFundingGate(t *testing.T) {
	f := newPortalFixture(t)
	ctx := context.Background()
	id := f.createCampaign(t, 100)

	h, err := f.service.Invest(ctx, testInvestor, id, 40)
	require.NoError(t, err)
	f.confirm(t, h, id)

	view, err := f.service.GetCampaign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusActive, view.Status)
	assert.InDelta(t, 40.0, view.ProgressPercent, 0.001)
	assert.Equal(t, uint64(40), view.RaisedAmount)

	h, err = f.service.Invest(ctx, testOther, id, 60)
	require.NoError(t, err)
	f.confirm(t, h, id)

	view, err = f.service.GetCampaign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusFunded, view.Status)
	assert.InDelta(t, 100.0, view.ProgressPercent, 0.001)

	// Reaching the goal closes the investment window
	_, err = f.service.Invest(ctx, testInvestor, id, 10)
	assert.ErrorIs(t, err, campaign.ErrCampaignNotActive)
}

func TestProofEvidenceFlow(t *testing.T) {
	f := newPortalFixture(t)
	ctx := context.Background()
	id := f.createCampaign(t, 100)

	h, err := f.service.Invest(ctx, testInvestor, id, 100)
	require.NoError(t, err)
	f.confirm(t, h, id)

	files := []pinning.UploadFile{
		{Name: "site-photo.jpg", Size: 11, Content: strings.NewReader("jpeg bytes!")},
		{Name: "soil-report.pdf", Size: 9, Content: strings.NewReader("pdf bytes")},
	}
	cid, h, err := f.service.SubmitProofEvidence(ctx, testFarmer, id, 0, "planting complete", files)
	require.NoError(t, err)
	f.confirm(t, h, id)

	// One content id references everything; the pinned JSON carries the
	// file refs and proof schema
	require.Len(t, f.pinner.jsonDocs, 1)
	doc := f.pinner.jsonDocs[0]
	assert.Equal(t, campaign.SchemaMilestoneProofV1, doc["schema"])
	refs, ok := doc["files"].([]string)
	require.True(t, ok)
	require.Len(t, refs, 2)
	for _, ref := range refs {
		assert.True(t, strings.HasPrefix(ref, "ipfs://"))
	}

	view, err := f.service.GetCampaign(ctx, id)
	require.NoError(t, err)
	require.Len(t, view.Milestones, 4)
	assert.Equal(t, cid, view.Milestones[0].ProofRef)
	assert.True(t, view.Milestones[0].Completed)
	assert.False(t, view.Milestones[0].Approved)
}

func TestUploadFailureAbortsSubmission(t *testing.T) {
	f := newPortalFixture(t)
	ctx := context.Background()
	id := f.createCampaign(t, 100)

	h, err := f.service.Invest(ctx, testInvestor, id, 100)
	require.NoError(t, err)
	f.confirm(t, h, id)

	f.pinner.fail = true
	_, _, err = f.service.SubmitProofEvidence(ctx, testFarmer, id, 0, "note",
		[]pinning.UploadFile{{Name: "a.jpg", Size: 1, Content: strings.NewReader("x")}})
	require.Error(t, err)

	// No ledger write happened: the milestone is untouched
	view, err := f.service.GetCampaign(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, view.Milestones[0].ProofRef)
	assert.False(t, view.Milestones[0].Completed)
}

func TestMilestoneApprovalLifecycle(t *testing.T) {
	f := newPortalFixture(t)
	ctx := context.Background()
	id := f.createCampaign(t, 1000)

	h, err := f.service.Invest(ctx, testInvestor, id, 600)
	require.NoError(t, err)
	f.confirm(t, h, id)
	h, err = f.service.Invest(ctx, testOther, id, 400)
	require.NoError(t, err)
	f.confirm(t, h, id)

	// Approving before a proof exists is rejected at the gate
	_, err = f.service.ApproveMilestone(ctx, testApprover, id, 0)
	assert.ErrorIs(t, err, campaign.ErrMilestoneNotComplete)

	for i := 0; i < 4; i++ {
		h, err = f.service.SubmitProof(ctx, testFarmer, id, i, fmt.Sprintf("QmProof%d", i))
		require.NoError(t, err)
		f.confirm(t, h, id)

		// Only the authorized approver may approve
		_, err = f.service.ApproveMilestone(ctx, testFarmer, id, i)
		assert.ErrorIs(t, err, campaign.ErrNotApprover)

		h, err = f.service.ApproveMilestone(ctx, testApprover, id, i)
		require.NoError(t, err)
		f.confirm(t, h, id)
	}

	view, err := f.service.GetCampaign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusCompleted, view.Status)
	assert.Nil(t, view.NextPendingMilestone)

	// Completion minted credits proportional to each stake
	require.Len(t, view.Investments, 2)
	var minted uint64
	for _, inv := range view.Investments {
		minted += inv.CreditsEarned
	}
	assert.Equal(t, uint64(500), minted)

	h, err = f.service.ClaimCredits(ctx, testInvestor, id)
	require.NoError(t, err)
	f.confirm(t, h, id)

	_, err = f.service.ClaimCredits(ctx, testInvestor, id)
	assert.ErrorIs(t, err, campaign.ErrNoClaimableCredits)
}

func TestRefundRequiresExpiredActiveCampaign(t *testing.T) {
	f := newPortalFixture(t)
	ctx := context.Background()
	id := f.createCampaign(t, 100)

	h, err := f.service.Invest(ctx, testInvestor, id, 30)
	require.NoError(t, err)
	f.confirm(t, h, id)

	// Active and before the deadline: no refund
	_, err = f.service.ClaimRefund(ctx, testInvestor, id)
	assert.ErrorIs(t, err, campaign.ErrRefundNotAvailable)

	f.setNow(f.now.Add(31 * 24 * time.Hour))

	// Expired campaigns no longer accept investments
	_, err = f.service.Invest(ctx, testOther, id, 10)
	assert.ErrorIs(t, err, campaign.ErrCampaignExpired)

	h, err = f.service.ClaimRefund(ctx, testInvestor, id)
	require.NoError(t, err)
	f.confirm(t, h, id)

	view, err := f.service.GetCampaign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusFailed, view.Status)
	assert.True(t, view.IsExpired)

	_, err = f.service.Invest(ctx, testOther, id, 10)
	assert.ErrorIs(t, err, campaign.ErrCampaignNotActive)
}

func TestRoleClassification(t *testing.T) {
	f := newPortalFixture(t)
	ctx := context.Background()
	f.createCampaign(t, 100)

	role, err := f.service.Role(ctx, testFarmer)
	require.NoError(t, err)
	assert.Equal(t, campaign.RoleFarmer, role)

	// Ownership comparison ignores address casing
	role, err = f.service.Role(ctx, strings.ToLower(testFarmer))
	require.NoError(t, err)
	assert.Equal(t, campaign.RoleFarmer, role)

	role, err = f.service.Role(ctx, testInvestor)
	require.NoError(t, err)
	assert.Equal(t, campaign.RoleInvestor, role)
}

func TestCreateCampaignValidation(t *testing.T) {
	f := newPortalFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateCampaign(ctx, testFarmer, "", 100, 30, 500)
	assert.ErrorContains(t, err, "metadata reference")

	_, err = f.service.CreateCampaign(ctx, testFarmer, "QmMeta", 0, 30, 500)
	assert.ErrorIs(t, err, campaign.ErrInvalidAmount)
}

func TestGetCampaignUnknownID(t *testing.T) {
	f := newPortalFixture(t)
	_, err := f.service.GetCampaign(context.Background(), 42)
	assert.ErrorIs(t, err, ledger.ErrCampaignNotFound)
}
