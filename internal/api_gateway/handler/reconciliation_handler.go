package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bank-reconciliation/internal/api_gateway/service"
	"github.com/bank-reconciliation/internal/domain/reconciliation"
	"github.com/bank-reconciliation/internal/domain/shared"
	"github.com/bank-reconciliation/internal/settlement"
)

// ReconciliationHandler handles HTTP requests for the review queue and the
// operator actions on a reconciliation
type ReconciliationHandler struct {
	reconciliationService service.ReconciliationService
	logger                *slog.Logger
}

// NewReconciliationHandler creates a new reconciliation handler
func NewReconciliationHandler(logger *slog.Logger, reconciliationService service.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciliationService: reconciliationService,
		logger:                logger,
	}
}

// List returns one page of a company's reconciliations filtered by status.
// Defaults to the manual review queue.
func (h *ReconciliationHandler) List(c *gin.Context) {
	companyID, err := uuid.Parse(c.Query("company_id"))
	if err != nil {
		RespondBadRequest(c, "Invalid company ID")
		return
	}

	status := shared.ReconciliationStatus(c.DefaultQuery("status", string(shared.ReconciliationStatusManual)))
	switch status {
	case shared.ReconciliationStatusPending, shared.ReconciliationStatusMatched,
		shared.ReconciliationStatusPartial, shared.ReconciliationStatusManual,
		shared.ReconciliationStatusIgnored:
	default:
		RespondBadRequest(c, "Invalid status filter")
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	recs, total, err := h.reconciliationService.List(c.Request.Context(), companyID, status, pagination.Page, pagination.PerPage)
	if err != nil {
		h.logger.Error("Failed to list reconciliations", "company_id", companyID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]ReconciliationResponse, 0, len(recs))
	for _, rec := range recs {
		responses = append(responses, mapReconciliationToResponse(rec, nil))
	}
	RespondWithPaginatedData(c, http.StatusOK, responses, pagination.Page, pagination.PerPage, int(total))
}

// GetByID returns a reconciliation with its splits, 404 when unknown
func (h *ReconciliationHandler) GetByID(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	rec, splits, err := h.reconciliationService.Get(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get reconciliation", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}
	if rec == nil {
		RespondNotFound(c, "Reconciliation not found")
		return
	}

	RespondOK(c, mapReconciliationToResponse(rec, splits))
}

// Match records the operator's invoice selection
func (h *ReconciliationHandler) Match(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req ManualMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	invoiceID, _ := uuid.Parse(req.InvoiceID)
	matchedBy, _ := uuid.Parse(req.MatchedBy)

	rec, err := h.reconciliationService.SelectInvoice(c.Request.Context(), id, invoiceID, matchedBy)
	if err != nil {
		h.respondActionError(c, id, "select invoice", err)
		return
	}

	RespondOK(c, mapReconciliationToResponse(rec, nil))
}

// Splits replaces the reconciliation's unposted allocations
func (h *ReconciliationHandler) Splits(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req SplitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	allocations := make([]settlement.Allocation, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		amount, err := decimal.NewFromString(a.Amount)
		if err != nil {
			RespondBadRequest(c, "Invalid allocation amount: "+a.Amount)
			return
		}
		invoiceID, _ := uuid.Parse(a.InvoiceID)
		allocations = append(allocations, settlement.Allocation{InvoiceID: invoiceID, Amount: amount})
	}

	splits, err := h.reconciliationService.Allocate(c.Request.Context(), id, allocations)
	if err != nil {
		h.respondActionError(c, id, "allocate splits", err)
		return
	}

	responses := make([]SplitResponse, 0, len(splits))
	for _, split := range splits {
		responses = append(responses, mapSplitToResponse(split))
	}
	RespondOK(c, responses)
}

// Approve posts the reconciliation's allocations as payments
func (h *ReconciliationHandler) Approve(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	rec, payments, err := h.reconciliationService.Approve(c.Request.Context(), id)
	if err != nil {
		h.respondActionError(c, id, "approve", err)
		return
	}

	paymentResponses := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		paymentResponses = append(paymentResponses, mapPaymentToResponse(p))
	}
	RespondOK(c, gin.H{
		"reconciliation": mapReconciliationToResponse(rec, nil),
		"payments":       paymentResponses,
	})
}

// Ignore parks the transaction permanently
func (h *ReconciliationHandler) Ignore(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.reconciliationService.Ignore(c.Request.Context(), id); err != nil {
		h.respondActionError(c, id, "ignore", err)
		return
	}
	RespondNoContent(c)
}

// Feedback appends a verdict feeding the offline weight calibration
func (h *ReconciliationHandler) Feedback(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	var correctInvoiceID *uuid.UUID
	if req.CorrectInvoiceID != "" {
		parsed, err := uuid.Parse(req.CorrectInvoiceID)
		if err != nil {
			RespondBadRequest(c, "Invalid correct invoice ID")
			return
		}
		correctInvoiceID = &parsed
	}
	submittedBy, _ := uuid.Parse(req.SubmittedBy)

	fb, err := h.reconciliationService.SubmitFeedback(c.Request.Context(), id, shared.FeedbackVerdict(req.Verdict), correctInvoiceID, submittedBy)
	if err != nil {
		h.respondActionError(c, id, "record feedback", err)
		return
	}

	RespondCreated(c, fb)
}

func (h *ReconciliationHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid reconciliation ID")
		return uuid.Nil, false
	}
	return id, true
}

// respondActionError maps domain failures of a review action onto HTTP
// statuses. Unknown rows yield 404, rejections by the state machine or
// the allocator yield 409, everything else is a 500.
func (h *ReconciliationHandler) respondActionError(c *gin.Context, id uuid.UUID, action string, err error) {
	var notFound reconciliation.ErrReconciliationNotFound
	if errors.As(err, &notFound) {
		RespondNotFound(c, "Reconciliation not found")
		return
	}

	var (
		invalidAllocation settlement.ErrInvalidAllocation
		exceedsDue        settlement.ErrAllocationExceedsDue
		overAllocation    settlement.ErrOverAllocation
		companyMismatch   service.ErrInvoiceCompanyMismatch
	)
	if errors.Is(err, reconciliation.ErrInvalidTransition) ||
		errors.Is(err, reconciliation.ErrFeedbackNotReviewable) ||
		errors.As(err, &invalidAllocation) ||
		errors.As(err, &exceedsDue) ||
		errors.As(err, &overAllocation) ||
		errors.As(err, &companyMismatch) {
		RespondConflict(c, err.Error())
		return
	}

	h.logger.Error("Reconciliation action failed",
		"reconciliation_id", id.String(),
		"action", action,
		"error", err,
	)
	RespondInternalError(c)
}
