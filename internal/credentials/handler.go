package credentials

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler exposes the engine's trigger operations over HTTP. Scheduling and
// retries live with the callers; every endpoint is safe to invoke repeatedly.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a credentials handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers credential routes.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	credentials := router.Group("/credentials")
	{
		credentials.POST("/proposals/:id/issue", h.issueForProposal)
		credentials.POST("/rewards/:id/issue", h.issueForReward)
		credentials.POST("/batches", h.recordBatchSubmission)
		credentials.POST("/pending/:hash/reconcile", h.reconcile)
		credentials.GET("/pending", h.listPending)
		credentials.GET("/subjects/:kind/:id/issued", h.listIssued)
	}
}

// issueForProposal handles POST /api/v1/credentials/proposals/:id/issue
func (h *Handler) issueForProposal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal id"})
		return
	}

	result, err := h.service.IssueForProposal(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to issue proposal credentials")
		return
	}
	c.JSON(http.StatusOK, result)
}

// issueForReward handles POST /api/v1/credentials/rewards/:id/issue
func (h *Handler) issueForReward(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid application id"})
		return
	}

	result, err := h.service.IssueForReward(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to issue reward credentials")
		return
	}
	c.JSON(http.StatusOK, result)
}

// recordBatchSubmission handles POST /api/v1/credentials/batches
func (h *Handler) recordBatchSubmission(c *gin.Context) {
	var req BatchSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pending, err := h.service.RecordBatchSubmission(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err, "Failed to record batch submission")
		return
	}
	c.JSON(http.StatusCreated, pending)
}

// reconcile handles POST /api/v1/credentials/pending/:hash/reconcile
func (h *Handler) reconcile(c *gin.Context) {
	chainID, err := strconv.ParseInt(c.Query("chain_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chain_id"})
		return
	}

	result, err := h.service.Reconcile(c.Request.Context(), chainID, c.Param("hash"))
	if err != nil {
		h.respondError(c, err, "Failed to reconcile pending transaction")
		return
	}
	c.JSON(http.StatusOK, result)
}

// listPending handles GET /api/v1/credentials/pending
func (h *Handler) listPending(c *gin.Context) {
	pending, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to list pending transactions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending})
}

// listIssued handles GET /api/v1/credentials/subjects/:kind/:id/issued
func (h *Handler) listIssued(c *gin.Context) {
	kind := CredentialKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credential kind"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subject id"})
		return
	}

	issued, err := h.service.ListIssued(c.Request.Context(), kind, id)
	if err != nil {
		h.respondError(c, err, "Failed to list issued credentials")
		return
	}
	c.JSON(http.StatusOK, gin.H{"issued": issued})
}

func (h *Handler) respondError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrSigningKeyUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error(message, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
