package portal

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"verdant-vault/vault-portal-backend/internal/auth"
	"verdant-vault/vault-portal-backend/internal/campaign"
	"verdant-vault/vault-portal-backend/internal/ledger"
	"verdant-vault/vault-portal-backend/internal/pinning"
)

// confirmWait bounds how long a request waits for its write to resolve
// before responding 202. The write itself is never abandoned.
const confirmWait = 5 * time.Second

// Handler exposes the portal API
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates the portal handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the portal API under the given route group
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/campaigns", h.ListCampaigns)
	api.GET("/campaigns/:id", h.GetCampaign)
	api.GET("/campaigns/:id/milestones", h.GetMilestones)
	api.GET("/campaigns/:id/investments", h.GetInvestments)
	api.GET("/role", h.Role)
	api.GET("/approver", h.Approver)

	writes := api.Group("", auth.RequireIdentity())
	writes.POST("/campaigns", h.CreateCampaign)
	writes.POST("/campaigns/:id/invest", h.Invest)
	writes.POST("/campaigns/:id/milestones/:index/proof", h.SubmitProof)
	writes.POST("/campaigns/:id/milestones/:index/evidence", h.SubmitProofEvidence)
	writes.POST("/campaigns/:id/milestones/:index/approve", h.ApproveMilestone)
	writes.POST("/campaigns/:id/refund", h.ClaimRefund)
	writes.POST("/campaigns/:id/credits/claim", h.ClaimCredits)
}

func (h *Handler) ListCampaigns(c *gin.Context) {
	views, err := h.service.ListCampaigns(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": views, "count": len(views)})
}

func (h *Handler) GetCampaign(c *gin.Context) {
	id, ok := h.campaignID(c)
	if !ok {
		return
	}
	view, err := h.service.GetCampaign(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) GetMilestones(c *gin.Context) {
	id, ok := h.campaignID(c)
	if !ok {
		return
	}
	view, err := h.service.GetCampaign(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": view.Milestones})
}

func (h *Handler) GetInvestments(c *gin.Context) {
	id, ok := h.campaignID(c)
	if !ok {
		return
	}
	view, err := h.service.GetCampaign(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"investments": view.Investments})
}

func (h *Handler) Role(c *gin.Context) {
	identity := auth.Identity(c)
	if identity == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet identity required"})
		return
	}
	role, err := h.service.Role(c.Request.Context(), identity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": role})
}

func (h *Handler) Approver(c *gin.Context) {
	approver, err := h.service.Approver(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"approver": approver})
}

type createCampaignRequest struct {
	MetadataRef      string `json:"metadata_ref" binding:"required"`
	FundingGoal      uint64 `json:"funding_goal" binding:"required"`
	DurationDays     int    `json:"duration_days" binding:"required"`
	EstimatedCO2Tons uint64 `json:"estimated_co2_tons"`
}

func (h *Handler) CreateCampaign(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	handle, err := h.service.CreateCampaign(c.Request.Context(), auth.Identity(c),
		req.MetadataRef, req.FundingGoal, req.DurationDays, req.EstimatedCO2Tons)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondWrite(c, handle)
}

type investRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

func (h *Handler) Invest(c *gin.Context) {
	id, ok := h.campaignID(c)
	if !ok {
		return
	}
	var req investRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	handle, err := h.service.Invest(c.Request.Context(), auth.Identity(c), id, req.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondWrite(c, handle)
}

type submitProofRequest struct {
	ProofRef string `json:"proof_ref" binding:"required"`
}

func (h *Handler) SubmitProof(c *gin.Context) {
	id, ok := h.campaignID(c)
	if !ok {
		return
	}
	index, ok := h.milestoneIndex(c)
	if !ok {
		return
	}
	var req submitProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	handle, err := h.service.SubmitProof(c.Request.Context(), auth.Identity(c), id, index, req.ProofRef)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondWrite(c, handle)
}

// SubmitProofEvidence accepts a multipart body with a `note` field and
// `files` parts, pins them and submits the resulting reference in one flow
func (h *Handler) SubmitProofEvidence(c *gin.Context) {
	id, ok := h.campaignID(c)
	if !ok {
		return
	}
	index, ok := h.milestoneIndex(c)
	if !ok {
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected multipart form data"})
		return
	}

	var files []pinning.UploadFile
	var closers []interface{ Close() error }
	defer func() {
		for _, f := range closers {
			f.Close()
		}
	}()
	for _, header := range form.File["files"] {
		f, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file part: " + header.Filename})
			return
		}
		closers = append(closers, f)
		files = append(files, pinning.UploadFile{Name: header.Filename, Size: header.Size, Content: f})
	}

	cid, handle, err := h.service.SubmitProofEvidence(c.Request.Context(), auth.Identity(c),
		id, index, c.PostForm("note"), files)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondWriteWith(c, handle, gin.H{"proof_ref": cid})
}

func (h *Handler) ApproveMilestone(c *gin.Context) {
	id, ok := h.campaignID(c)
	if !ok {
		return
	}
	index, ok := h.milestoneIndex(c)
	if !ok {
		return
	}
	handle, err := h.service.ApproveMilestone(c.Request.Context(), auth.Identity(c), id, index)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondWrite(c, handle)
}

func (h *Handler) ClaimRefund(c *gin.Context) {
	id, ok := h.campaignID(c)
	if !ok {
		return
	}
	handle, err := h.service.ClaimRefund(c.Request.Context(), auth.Identity(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondWrite(c, handle)
}

func (h *Handler) ClaimCredits(c *gin.Context) {
	id, ok := h.campaignID(c)
	if !ok {
		return
	}
	handle, err := h.service.ClaimCredits(c.Request.Context(), auth.Identity(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondWrite(c, handle)
}

func (h *Handler) campaignID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) milestoneIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid milestone index"})
		return 0, false
	}
	return index, true
}

// respondWrite waits briefly for the write to resolve. A still-pending
// write answers 202 and stays pending; the client may poll or retry.
func (h *Handler) respondWrite(c *gin.Context, handle *ledger.WriteHandle) {
	h.respondWriteWith(c, handle, gin.H{})
}

func (h *Handler) respondWriteWith(c *gin.Context, handle *ledger.WriteHandle, extra gin.H) {
	payload := gin.H{"write_id": handle.ID}
	for k, v := range extra {
		payload[k] = v
	}

	select {
	case <-handle.Done():
		if handle.Status() == ledger.WriteFailed {
			payload["error"] = handle.Err().Error()
			c.JSON(http.StatusUnprocessableEntity, payload)
			return
		}
		payload["status"] = "confirmed"
		c.JSON(http.StatusOK, payload)
	case <-time.After(confirmWait):
		payload["status"] = "pending"
		c.JSON(http.StatusAccepted, payload)
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrCampaignNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, campaign.ErrNotCampaignOwner), errors.Is(err, campaign.ErrNotApprover):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, campaign.ErrCampaignNotActive),
		errors.Is(err, campaign.ErrCampaignExpired),
		errors.Is(err, campaign.ErrInvalidAmount),
		errors.Is(err, campaign.ErrCampaignNotFunded),
		errors.Is(err, campaign.ErrMilestoneOutOfRange),
		errors.Is(err, campaign.ErrMilestoneCompleted),
		errors.Is(err, campaign.ErrMilestoneNotComplete),
		errors.Is(err, campaign.ErrMilestoneApproved),
		errors.Is(err, campaign.ErrRefundNotAvailable),
		errors.Is(err, campaign.ErrNoClaimableCredits):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
