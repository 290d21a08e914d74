package handler

import (
	"strconv"

	"fintrack/internal/apperr"
	"fintrack/internal/config"
	"fintrack/internal/infrastructure/lock"
	"fintrack/internal/model"
	"fintrack/internal/service"
	"fintrack/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	ModeSuggest = "suggest"
	ModeApply   = "apply"
)

// Handler holds every service the HTTP surface calls.
type Handler struct {
	ruleService           *service.RuleService
	patternService        *service.PatternService
	classificationService *service.ClassificationService
	subscriptionService   *service.SubscriptionService
	reviewService         *service.ReviewService
}

// NewHandler builds every service on top of db and locker.
func NewHandler(db *gorm.DB, locker lock.Locker, cfg *config.Config, log zerolog.Logger) *Handler {
	classification := service.NewClassificationService(db, cfg, log)
	return &Handler{
		ruleService:           service.NewRuleService(db, locker, cfg, log),
		patternService:        service.NewPatternService(db, cfg, log),
		classificationService: classification,
		subscriptionService:   service.NewSubscriptionService(db, cfg, log),
		reviewService:         service.NewReviewService(db, cfg, classification, log),
	}
}

// idParam parses a positive path id.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// intQuery reads an optional integer query parameter, returning def when absent.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		response.ParamError(c, name+" must be an integer")
		return 0, false
	}
	return v, true
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return false
	}
	return true
}

func fail(c *gin.Context, err error) {
	if response.CodeOf(err) == response.CodeServerError {
		requestLogger(c).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	response.FromError(c, err)
}

// ============================================================
// Rules
// ============================================================

// ListRules GET /api/v1/rules
func (h *Handler) ListRules(c *gin.Context) {
	list, err := h.ruleService.List(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// GetRule GET /api/v1/rules/:id
func (h *Handler) GetRule(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	rule, err := h.ruleService.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, rule)
}

// CreateRule POST /api/v1/rules
func (h *Handler) CreateRule(c *gin.Context) {
	var req service.RuleRequest
	if !bind(c, &req) {
		return
	}
	rule, err := h.ruleService.Create(c.Request.Context(), userID(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, rule)
}

// UpdateRule PUT /api/v1/rules/:id
func (h *Handler) UpdateRule(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.RuleRequest
	if !bind(c, &req) {
		return
	}
	rule, err := h.ruleService.Update(c.Request.Context(), userID(c), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, rule)
}

// DeleteRule DELETE /api/v1/rules/:id
func (h *Handler) DeleteRule(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.ruleService.Delete(c.Request.Context(), userID(c), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, "deleted": true})
}

// TestRule POST /api/v1/rules/:id/test, body optional.
func (h *Handler) TestRule(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.TestRuleRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	res, err := h.ruleService.Test(c.Request.Context(), userID(c), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// ApplyRule POST /api/v1/rules/:id/apply
func (h *Handler) ApplyRule(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := h.ruleService.ApplyToExisting(c.Request.Context(), userID(c), id)
	if err != nil {
		if res != nil {
			// committed chunks stay applied; report how far the run got
			response.ErrorWithData(c, response.CodeOf(err), err.Error(), res)
			return
		}
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// ReorderRequest lists every rule id, highest priority first.
type ReorderRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

// ReorderRules POST /api/v1/rules/reorder
func (h *Handler) ReorderRules(c *gin.Context) {
	var req ReorderRequest
	if !bind(c, &req) {
		return
	}
	list, err := h.ruleService.Reorder(c.Request.Context(), userID(c), req.IDs)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// MoveRequest moves the rule at position From to position To.
type MoveRequest struct {
	From *int `json:"from" binding:"required"`
	To   *int `json:"to" binding:"required"`
}

// MoveRule POST /api/v1/rules/move
func (h *Handler) MoveRule(c *gin.Context) {
	var req MoveRequest
	if !bind(c, &req) {
		return
	}
	list, err := h.ruleService.Move(c.Request.Context(), userID(c), *req.From, *req.To)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// ============================================================
// Patterns
// ============================================================

// ListPatterns GET /api/v1/patterns
func (h *Handler) ListPatterns(c *gin.Context) {
	list, err := h.patternService.List(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// GetPattern GET /api/v1/patterns/:id
func (h *Handler) GetPattern(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	p, err := h.patternService.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, p)
}

// CreatePattern POST /api/v1/patterns
func (h *Handler) CreatePattern(c *gin.Context) {
	var req service.PatternRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.patternService.Create(c.Request.Context(), userID(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, p)
}

// UpdatePattern PUT /api/v1/patterns/:id
func (h *Handler) UpdatePattern(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.PatternRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.patternService.Update(c.Request.Context(), userID(c), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, p)
}

// DeletePattern DELETE /api/v1/patterns/:id
func (h *Handler) DeletePattern(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.patternService.Delete(c.Request.Context(), userID(c), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, "deleted": true})
}

// MatchRequest is a raw description to look up.
type MatchRequest struct {
	Description string `json:"description" binding:"required"`
}

// MatchPattern POST /api/v1/patterns/match
func (h *Handler) MatchPattern(c *gin.Context) {
	var req MatchRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.patternService.Match(c.Request.Context(), userID(c), req.Description)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// ============================================================
// Transactions
// ============================================================

// ClassifyTransaction POST /api/v1/transactions/:id/classify?mode=suggest|apply
func (h *Handler) ClassifyTransaction(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var (
		out *service.Classification
		err error
	)
	switch mode := c.DefaultQuery("mode", ModeSuggest); mode {
	case ModeSuggest:
		out, err = h.classificationService.Suggest(c.Request.Context(), userID(c), id)
	case ModeApply:
		out, err = h.classificationService.Apply(c.Request.Context(), userID(c), id)
	default:
		err = apperr.Validation("mode", "must be suggest or apply, got %q", mode)
	}
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, out)
}

// AcceptSuggestion POST /api/v1/transactions/:id/accept
func (h *Handler) AcceptSuggestion(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.AcceptRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.patternService.AcceptSuggestion(c.Request.Context(), userID(c), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// ============================================================
// Subscriptions
// ============================================================

// DetectSubscriptions GET /api/v1/subscriptions/detect?lookback_days=
func (h *Handler) DetectSubscriptions(c *gin.Context) {
	days, ok := intQuery(c, "lookback_days", 0)
	if !ok {
		return
	}
	cands, err := h.subscriptionService.Detect(c.Request.Context(), userID(c), days)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, cands)
}

// ListSubscriptions GET /api/v1/subscriptions
func (h *Handler) ListSubscriptions(c *gin.Context) {
	subs, err := h.subscriptionService.List(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, subs)
}

// GetSubscription GET /api/v1/subscriptions/:id
func (h *Handler) GetSubscription(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	sub, err := h.subscriptionService.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, sub)
}

// CreateSubscription POST /api/v1/subscriptions, body is a detected candidate.
func (h *Handler) CreateSubscription(c *gin.Context) {
	var cand model.SubscriptionCandidate
	if !bind(c, &cand) {
		return
	}
	sub, err := h.subscriptionService.Create(c.Request.Context(), userID(c), &cand)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, sub)
}

// UpcomingRenewals GET /api/v1/subscriptions/upcoming?days=
func (h *Handler) UpcomingRenewals(c *gin.Context) {
	days, ok := intQuery(c, "days", 0)
	if !ok {
		return
	}
	list, err := h.subscriptionService.Upcoming(c.Request.Context(), userID(c), days)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// MissedPayments GET /api/v1/subscriptions/missed?grace_days=
func (h *Handler) MissedPayments(c *gin.Context) {
	grace, ok := intQuery(c, "grace_days", -1)
	if !ok {
		return
	}
	list, err := h.subscriptionService.Missed(c.Request.Context(), userID(c), grace)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// ============================================================
// Extraction review
// ============================================================

// ListExtractions GET /api/v1/extractions?status=
func (h *Handler) ListExtractions(c *gin.Context) {
	list, err := h.reviewService.List(c.Request.Context(), userID(c), c.Query("status"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// IngestExtraction POST /api/v1/extractions
func (h *Handler) IngestExtraction(c *gin.Context) {
	var req service.IngestRequest
	if !bind(c, &req) {
		return
	}
	e, err := h.reviewService.Ingest(c.Request.Context(), userID(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, e)
}

// ApproveExtraction POST /api/v1/extractions/:id/approve, body holds optional overrides.
func (h *Handler) ApproveExtraction(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var overrides *service.Overrides
	if c.Request.ContentLength > 0 {
		overrides = &service.Overrides{}
		if !bind(c, overrides) {
			return
		}
	}
	out, err := h.reviewService.Approve(c.Request.Context(), userID(c), id, overrides)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, out)
}

// RejectExtraction POST /api/v1/extractions/:id/reject
func (h *Handler) RejectExtraction(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	out, err := h.reviewService.Reject(c.Request.Context(), userID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, out)
}

// BulkReviewRequest applies one action ("approve" or "reject") to many extractions.
type BulkReviewRequest struct {
	Action string  `json:"action" binding:"required"`
	IDs    []int64 `json:"ids" binding:"required"`
}

// BulkReview POST /api/v1/extractions/bulk
func (h *Handler) BulkReview(c *gin.Context) {
	var req BulkReviewRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.reviewService.Bulk(c.Request.Context(), userID(c), req.Action, req.IDs)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

// AutoApproveRequest overrides the configured threshold when Threshold is set.
type AutoApproveRequest struct {
	Threshold *float64 `json:"threshold"`
}

// AutoApprove POST /api/v1/extractions/auto-approve
func (h *Handler) AutoApprove(c *gin.Context) {
	var req AutoApproveRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	res, err := h.reviewService.AutoApprove(c.Request.Context(), userID(c), req.Threshold)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}
