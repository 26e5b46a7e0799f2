package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmtrace/internal/domain/models"
	"github.com/mamadbah2/farmtrace/internal/service/costing"
	"github.com/mamadbah2/farmtrace/internal/service/reporting"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

// CostingService is the part of the costing service exposed over HTTP.
type CostingService interface {
	CostLineage(ctx context.Context, rootID string) (*models.CostReport, error)
	SaveCostEntry(ctx context.Context, nodeID string, entry models.CostEntry) error
	RunAll(ctx context.Context) ([]*models.CostReport, error)
}

// CostingHandler serves lineage costs and cost entry updates.
type CostingHandler struct {
	svc    CostingService
	logger *zap.Logger
}

// NewCostingHandler constructs the costing HTTP adapter.
func NewCostingHandler(svc CostingService, logger *zap.Logger) *CostingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CostingHandler{svc: svc, logger: logger}
}

// Register mounts the costing routes.
func (h *CostingHandler) Register(r gin.IRoutes) {
	r.GET("/lineages/:rootID/costs", h.GetLineageCosts)
	r.POST("/lineages/costs/run", h.RunAll)
	r.PUT("/batches/:nodeID/costs", h.PutCostEntry)
}

// GetLineageCosts returns the cost report of a lineage, as JSON or, with
// ?format=text, as a rendered tree.
func (h *CostingHandler) GetLineageCosts(c *gin.Context) {
	rootID := c.Param("rootID")

	report, err := h.svc.CostLineage(c.Request.Context(), rootID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if c.Query("format") == "text" {
		c.String(http.StatusOK, reporting.RenderTree(report))
		return
	}
	c.JSON(http.StatusOK, report)
}

// PutCostEntry replaces the cost entry of a batch. The body is the entry form
// as submitted; numeric strings are accepted.
func (h *CostingHandler) PutCostEntry(c *gin.Context) {
	nodeID := c.Param("nodeID")

	var form map[string]interface{}
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	entry, err := models.DecodeCostEntry(form)
	if err != nil {
		h.logger.Warn("invalid cost entry", zap.String("node_id", nodeID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.SaveCostEntry(c.Request.Context(), nodeID, entry); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"node_id": nodeID, "entry": entry, "total": entry.Total()})
}

// RunAll costs every lineage now. Partial failures are counted next to the
// reports that succeeded; their details only go to the log.
func (h *CostingHandler) RunAll(c *gin.Context) {
	reports, err := h.svc.RunAll(c.Request.Context())
	if err != nil && len(reports) == 0 {
		h.respondError(c, err)
		return
	}

	body := gin.H{"reports": len(reports)}
	if err != nil {
		failures := 1
		var merr *multierror.Error
		if errors.As(err, &merr) {
			failures = len(merr.Errors)
		}
		h.logger.Warn("costing run finished with errors",
			zap.Error(err),
			zap.Int("failures", failures),
			zap.String("request_id", c.GetString(RequestIDKey)),
		)
		body["failures"] = failures
	}
	c.JSON(http.StatusOK, body)
}

func (h *CostingHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, costing.ErrEmptyRootID), errors.Is(err, models.ErrNonFiniteCost):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrBatchNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrCyclicLineage):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("costing request failed", zap.Error(err), zap.String("request_id", c.GetString(RequestIDKey)))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
