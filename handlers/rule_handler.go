package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/upb/tenant-rules-admin/middleware"
	"github.com/upb/tenant-rules-admin/models"
	"github.com/upb/tenant-rules-admin/services/rules"
	"github.com/upb/tenant-rules-admin/utils"
	"go.uber.org/zap"
)

const maxBodyBytes = 4 << 20

var errInvalidBody = errors.New("invalid request body")

// RuleService defines the rule operations served over HTTP
type RuleService interface {
	List(ctx context.Context, tenantID string) ([]*models.TenantRule, error)
	Get(ctx context.Context, tenantID, ruleID string) (*models.TenantRule, error)
	Create(ctx context.Context, tenantID, actor string, in models.RuleInput) (*models.TenantRule, error)
	Update(ctx context.Context, tenantID, ruleID, actor string, patch models.RulePatch, expectedVersion int) (*models.TenantRule, error)
	Delete(ctx context.Context, tenantID, ruleID string) error
	SetEnabled(ctx context.Context, tenantID, ruleID string, enabled bool) (*models.TenantRule, error)

	Validate(ctx context.Context, tenantID string, in models.RuleInput) (*models.RuleValidation, error)
	Test(ctx context.Context, tenantID string, req models.RuleTestRequest) (*models.RuleTestResult, error)

	History(ctx context.Context, tenantID, ruleID string) ([]*models.RuleVersion, error)
	GetVersion(ctx context.Context, tenantID, ruleID string, version int) (*models.TenantRule, error)
	Rollback(ctx context.Context, tenantID, ruleID, actor string, version int, reason string) (*models.TenantRule, error)

	Import(ctx context.Context, tenantID, actor string, batch rules.ImportBatch) (*models.ImportResult, error)
	Export(ctx context.Context, tenantID string, ruleIDs []string, includeDisabled bool) ([]*models.TenantRule, error)
}

// RuleHandler handles tenant rule HTTP requests
type RuleHandler struct {
	service RuleService
	logger  *zap.Logger
}

// NewRuleHandler creates a new RuleHandler
func NewRuleHandler(service RuleService, logger *zap.Logger) *RuleHandler {
	return &RuleHandler{
		service: service,
		logger:  logger,
	}
}

// Routes mounts the handlers under /api/v1/tenants/{tenantId}/rules.
// Static segments are registered alongside /{ruleId}; chi prefers them.
func (h *RuleHandler) Routes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)
	r.Post("/validate", h.HandleValidate)
	r.Post("/test", h.HandleTest)
	r.Post("/import", h.HandleImport)
	r.Get("/export", h.HandleExport)

	r.Route("/{ruleId}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Put("/", h.HandleUpdate)
		r.Delete("/", h.HandleDelete)
		r.Patch("/status", h.HandleSetStatus)
		r.Get("/history", h.HandleHistory)
		r.Get("/versions/{version}", h.HandleGetVersion)
		r.Post("/rollback/{version}", h.HandleRollback)
	})
}

// HandleList handles GET /rules
func (h *RuleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := tenantFromRequest(r)

	h.logger.Debug("listing rules",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("tenant_id", tenantID))

	list, err := h.service.List(ctx, tenantID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.writeOK(w, nonNil(list))
}

// HandleCreate handles POST /rules
func (h *RuleHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	tenantID := tenantFromRequest(r)

	var in models.RuleInput
	if err := decodeBody(w, r, &in); err != nil {
		h.logger.Warn("invalid request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	rule, err := h.service.Create(ctx, tenantID, middleware.ActorFromContext(ctx), in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("rule created",
		zap.String("request_id", requestID),
		zap.String("tenant_id", tenantID),
		zap.String("rule_id", rule.ID))

	if err := utils.WriteCreated(w, rule); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleGet handles GET /rules/{ruleId}
func (h *RuleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rule, err := h.service.Get(r.Context(), tenantFromRequest(r), middleware.PathParam(r, "ruleId"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	h.writeOK(w, rule)
}

// HandleUpdate handles PUT /rules/{ruleId}. An If-Match header holding the
// expected version makes the update conditional.
func (h *RuleHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	tenantID := tenantFromRequest(r)
	ruleID := middleware.PathParam(r, "ruleId")

	expected, err := parseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	var patch models.RulePatch
	if err := decodeBody(w, r, &patch); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&patch); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	rule, err := h.service.Update(ctx, tenantID, ruleID, middleware.ActorFromContext(ctx), patch, expected)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("rule updated",
		zap.String("request_id", requestID),
		zap.String("tenant_id", tenantID),
		zap.String("rule_id", ruleID),
		zap.Int("version", rule.Version))

	h.writeOK(w, rule)
}

// HandleDelete handles DELETE /rules/{ruleId}
func (h *RuleHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := tenantFromRequest(r)
	ruleID := middleware.PathParam(r, "ruleId")

	if err := h.service.Delete(ctx, tenantID, ruleID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("rule deleted",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("tenant_id", tenantID),
		zap.String("rule_id", ruleID))

	utils.WriteNoContent(w)
}

// HandleSetStatus handles PATCH /rules/{ruleId}/status
func (h *RuleHandler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req models.StatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	rule, err := h.service.SetEnabled(r.Context(), tenantFromRequest(r), middleware.PathParam(r, "ruleId"), *req.Enabled)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	h.writeOK(w, rule)
}

// HandleValidate handles POST /rules/validate. An invalid candidate is a
// 200 with is_valid=false; only undecodable bodies are rejected.
func (h *RuleHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var in models.RuleInput
	if err := decodeBody(w, r, &in); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	res, err := h.service.Validate(r.Context(), tenantFromRequest(r), in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	h.writeOK(w, res)
}

// HandleTest handles POST /rules/test
func (h *RuleHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.RuleTestRequest
	if err := decodeBody(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	res, err := h.service.Test(ctx, tenantFromRequest(r), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Debug("dry run completed",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.Int("triggered", len(res.TriggeredRules)),
		zap.Bool("blocked", res.IsBlocked))

	h.writeOK(w, res)
}

// HandleHistory handles GET /rules/{ruleId}/history
func (h *RuleHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	versions, err := h.service.History(r.Context(), tenantFromRequest(r), middleware.PathParam(r, "ruleId"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	h.writeOK(w, nonNil(versions))
}

// HandleGetVersion handles GET /rules/{ruleId}/versions/{version}
func (h *RuleHandler) HandleGetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := utils.ParsePositiveInt(middleware.PathParam(r, "version"), "version")
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	rule, err := h.service.GetVersion(r.Context(), tenantFromRequest(r), middleware.PathParam(r, "ruleId"), version)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	h.writeOK(w, rule)
}

// HandleRollback handles POST /rules/{ruleId}/rollback/{version}
func (h *RuleHandler) HandleRollback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := tenantFromRequest(r)
	ruleID := middleware.PathParam(r, "ruleId")

	version, err := utils.ParsePositiveInt(middleware.PathParam(r, "version"), "version")
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	// The reason is optional, so is the body
	var req models.RollbackRequest
	if err := decodeOptionalBody(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	rule, err := h.service.Rollback(ctx, tenantID, ruleID, middleware.ActorFromContext(ctx), version, req.Reason)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("rule rolled back",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("tenant_id", tenantID),
		zap.String("rule_id", ruleID),
		zap.Int("target_version", version),
		zap.Int("version", rule.Version))

	h.writeOK(w, rule)
}

// HandleImport handles POST /rules/import
func (h *RuleHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := tenantFromRequest(r)

	var batch rules.ImportBatch
	if err := decodeBody(w, r, &batch); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if batch.Rules == nil {
		_ = utils.WriteBadRequest(w, "Validation failed", []models.FieldMessage{
			{Field: "rules", Message: "rules is required"},
		})
		return
	}

	res, err := h.service.Import(ctx, tenantID, middleware.ActorFromContext(ctx), batch)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("rules imported",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("tenant_id", tenantID),
		zap.Int("imported", res.Imported),
		zap.Int("failed", res.Failed))

	h.writeOK(w, res)
}

// HandleExport handles GET /rules/export?rule_ids=a,b&include_disabled=true&format=csv
func (h *RuleHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	format := models.ExportFormat(strings.ToLower(q.Get("format")))
	if format == "" {
		format = models.ExportFormatJSON
	}
	if format != models.ExportFormatJSON && format != models.ExportFormatCSV {
		_ = utils.WriteBadRequest(w, "Validation failed", []models.FieldMessage{
			{Field: "format", Message: "format must be one of: json csv"},
		})
		return
	}

	includeDisabled := false
	if v := q.Get("include_disabled"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			_ = utils.WriteBadRequest(w, "Validation failed", []models.FieldMessage{
				{Field: "include_disabled", Message: "include_disabled must be a boolean"},
			})
			return
		}
		includeDisabled = b
	}

	list, err := h.service.Export(r.Context(), tenantFromRequest(r), splitIDs(q.Get("rule_ids")), includeDisabled)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if format == models.ExportFormatJSON {
		h.writeOK(w, nonNil(list))
		return
	}

	var buf bytes.Buffer
	if err := rules.WriteCSV(&buf, list); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="rules-export.csv"`)
	if err := utils.WriteRaw(w, http.StatusOK, "text/csv; charset=utf-8", buf.Bytes()); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func (h *RuleHandler) writeOK(w http.ResponseWriter, data interface{}) {
	if err := utils.WriteOK(w, data); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// tenantFromRequest prefers the tenant authorised by RequireTenantAccess
// and falls back to the path when auth is disabled
func tenantFromRequest(r *http.Request) string {
	if tenantID := middleware.GetTenantIDFromContext(r.Context()); tenantID != "" {
		return tenantID
	}
	return middleware.PathParam(r, "tenantId")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return bodyError(err)
	}
	return nil
}

func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return bodyError(err)
}

// bodyError keeps model decoding errors readable and hides the rest
func bodyError(err error) error {
	switch {
	case errors.Is(err, models.ErrConditionTypeMismatch),
		errors.Is(err, models.ErrUnknownRuleType),
		errors.Is(err, models.ErrMissingConditions),
		errors.Is(err, models.ErrFieldNotClearable):
		return err
	default:
		return errInvalidBody
	}
}

// parseIfMatch accepts "3", "\"3\"" and W/"3". Empty means unconditional.
func parseIfMatch(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "*" {
		return 0, nil
	}
	value = strings.TrimPrefix(value, "W/")
	if unquoted, err := strconv.Unquote(value); err == nil {
		value = unquoted
	}
	return utils.ParsePositiveInt(value, "If-Match")
}

func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
