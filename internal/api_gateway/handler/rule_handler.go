package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bank-reconciliation/internal/api_gateway/service"
	"github.com/bank-reconciliation/internal/domain/matchingrule"
)

// RuleHandler handles HTTP requests for matching rule management
type RuleHandler struct {
	ruleService service.RuleService
	logger      *slog.Logger
}

// NewRuleHandler creates a new rule handler
func NewRuleHandler(logger *slog.Logger, ruleService service.RuleService) *RuleHandler {
	return &RuleHandler{
		ruleService: ruleService,
		logger:      logger,
	}
}

// Create stores a new matching rule for a company
func (h *RuleHandler) Create(c *gin.Context) {
	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	companyID, _ := uuid.Parse(req.CompanyID)

	rule, err := h.ruleService.Create(c.Request.Context(), companyID, req.Name, req.Priority, req.Conditions, req.Actions)
	if err != nil {
		if isRuleValidationError(err) {
			RespondBadRequest(c, err.Error())
			return
		}
		h.logger.Error("Failed to create rule", "company_id", req.CompanyID, "error", err)
		RespondInternalError(c)
		return
	}

	RespondCreated(c, mapRuleToResponse(rule))
}

// List returns all rules of a company, active and inactive
func (h *RuleHandler) List(c *gin.Context) {
	companyID, err := uuid.Parse(c.Query("company_id"))
	if err != nil {
		RespondBadRequest(c, "Invalid company ID")
		return
	}

	rules, err := h.ruleService.List(c.Request.Context(), companyID)
	if err != nil {
		h.logger.Error("Failed to list rules", "company_id", companyID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]RuleResponse, 0, len(rules))
	for _, rule := range rules {
		responses = append(responses, mapRuleToResponse(rule))
	}
	RespondOK(c, responses)
}

// GetByID returns one rule, 404 when unknown
func (h *RuleHandler) GetByID(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	rule, err := h.ruleService.Get(c.Request.Context(), id)
	if err != nil {
		h.respondRuleError(c, id, err)
		return
	}
	RespondOK(c, mapRuleToResponse(rule))
}

// Update replaces a rule's definition
func (h *RuleHandler) Update(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	rule, err := h.ruleService.Update(c.Request.Context(), id, req.Name, req.Priority, req.Active, req.Conditions, req.Actions)
	if err != nil {
		if isRuleValidationError(err) {
			RespondBadRequest(c, err.Error())
			return
		}
		h.respondRuleError(c, id, err)
		return
	}
	RespondOK(c, mapRuleToResponse(rule))
}

// Delete removes a rule; already recorded rule matches keep their audit
// trail
func (h *RuleHandler) Delete(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.ruleService.Delete(c.Request.Context(), id); err != nil {
		h.respondRuleError(c, id, err)
		return
	}
	RespondNoContent(c)
}

func (h *RuleHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid rule ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *RuleHandler) respondRuleError(c *gin.Context, id uuid.UUID, err error) {
	var notFound matchingrule.ErrRuleNotFound
	if errors.As(err, &notFound) {
		RespondNotFound(c, "Rule not found")
		return
	}
	h.logger.Error("Rule operation failed", "rule_id", id.String(), "error", err)
	RespondInternalError(c)
}

func isRuleValidationError(err error) bool {
	return errors.Is(err, matchingrule.ErrEmptyRuleName) ||
		errors.Is(err, matchingrule.ErrNegativePriority) ||
		errors.Is(err, matchingrule.ErrNoConditions) ||
		errors.Is(err, matchingrule.ErrNoActions)
}
