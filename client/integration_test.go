package client_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/tenant-rules-admin/app"
	"github.com/upb/tenant-rules-admin/auth"
	"github.com/upb/tenant-rules-admin/client"
	"github.com/upb/tenant-rules-admin/config"
	"github.com/upb/tenant-rules-admin/models"
	"github.com/upb/tenant-rules-admin/routes"
	"github.com/upb/tenant-rules-admin/services"
	"github.com/upb/tenant-rules-admin/services/rules"
	"go.uber.org/zap/zaptest"
)

const (
	backendSecret = "client-integration-secret"
	backendIssuer = "tenant-rules-mock"
	tenant        = rules.SeedTenantID
)

func startBackend(t *testing.T) string {
	t.Helper()
	cfg := &config.Config{
		Environment: "test",
		Client:      config.ClientConfig{BaseURL: "http://localhost:8000", Timeout: 10 * time.Second},
		Auth:        config.AuthConfig{JWTSecret: backendSecret, Issuer: backendIssuer, TokenTTL: time.Hour},
		Mock:        config.MockConfig{Seed: true, RequireAuth: true},
		Observability: config.ObservabilityConfig{
			LogLevel:  "error",
			LogFormat: "json",
		},
	}

	deps, err := app.NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	ts := httptest.NewServer(routes.SetupRoutes(deps))
	t.Cleanup(ts.Close)
	return ts.URL
}

func tokenSource(tenantID string) *auth.HMACTokenSource {
	return &auth.HMACTokenSource{
		Secret:   []byte(backendSecret),
		Issuer:   backendIssuer,
		Subject:  "ops-1",
		Email:    "ops@acme.com",
		TenantID: tenantID,
	}
}

func newClient(t *testing.T, baseURL string, creds auth.CredentialProvider) *client.Client {
	t.Helper()
	c, err := client.New(client.Config{BaseURL: baseURL, Credentials: creds, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return c
}

func hardBlock(name string, keywords ...string) models.RuleInput {
	return models.NewRuleInput(name, 10, models.HardBlockCondition{Keywords: keywords})
}

func keywords(t *testing.T, r *models.TenantRule) []string {
	t.Helper()
	hb, ok := r.Conditions.Condition.(models.HardBlockCondition)
	require.True(t, ok, "conditions are %T", r.Conditions.Condition)
	return hb.Keywords
}

func TestRuleLifecycle(t *testing.T) {
	c := newClient(t, startBackend(t), tokenSource(tenant))
	ctx := context.Background()

	created, err := c.CreateRule(ctx, tenant, hardBlock("Block Secrets", "secret"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, tenant, created.TenantID)
	assert.Equal(t, models.SchemaVersion, created.SchemaVersion)
	assert.Equal(t, 1, created.Version)
	assert.False(t, created.CreatedDate.IsZero())
	assert.Equal(t, "ops@acme.com", created.CreatedBy)
	assert.Equal(t, models.RuleTypeHardBlock, created.Type())

	fetched, err := c.GetRule(ctx, tenant, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, created.Conditions, fetched.Conditions)

	conds := models.NewConditions(models.HardBlockCondition{Keywords: []string{"secret", "token"}})
	updated, err := c.UpdateRule(ctx, tenant, created.ID, models.RulePatch{Conditions: &conds}, client.WithExpectedVersion(1))
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, []string{"secret", "token"}, keywords(t, updated))

	_, err = c.UpdateRule(ctx, tenant, created.ID, models.RulePatch{Conditions: &conds}, client.WithExpectedVersion(1))
	assert.True(t, services.IsConflictError(err))

	history, err := c.RuleHistory(ctx, tenant, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].Version)
	assert.Equal(t, 1, history[1].Version)
	assert.Equal(t, "ops@acme.com", history[1].ChangedBy)
	assert.Equal(t, "Initial rule creation", history[1].ChangeDescription)

	v1, err := c.GetRuleVersion(ctx, tenant, created.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"secret"}, keywords(t, v1))

	rolled, err := c.RollbackRule(ctx, tenant, created.ID, 1, "too broad")
	require.NoError(t, err)
	assert.Equal(t, 3, rolled.Version)
	assert.Equal(t, []string{"secret"}, keywords(t, rolled))

	history, err = c.RuleHistory(ctx, tenant, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "Rolled back to version 1: too broad", history[0].ChangeDescription)

	disabled, err := c.SetRuleEnabled(ctx, tenant, created.ID, false)
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)
	assert.Equal(t, 3, disabled.Version)

	require.NoError(t, c.DeleteRule(ctx, tenant, created.ID))
	_, err = c.GetRule(ctx, tenant, created.ID)
	assert.True(t, services.IsNotFoundError(err))
	assert.True(t, services.IsNotFoundError(c.DeleteRule(ctx, tenant, created.ID)))
}

func TestCreateRejectsInvalidRule(t *testing.T) {
	c := newClient(t, startBackend(t), tokenSource(tenant))

	_, err := c.CreateRule(context.Background(), tenant, hardBlock("", "x"))
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
	assert.NotEmpty(t, services.GetFieldErrors(err))
}

func TestTenantIsolation(t *testing.T) {
	c := newClient(t, startBackend(t), tokenSource("tenant-other"))

	_, err := c.ListRules(context.Background(), tenant)
	assert.True(t, services.IsForbiddenError(err))
}

func TestExpiredTokenIsRefreshed(t *testing.T) {
	baseURL := startBackend(t)

	var minted int32
	src := tokenSource(tenant)
	src.Now = func() time.Time {
		// the first token is minted already expired
		if atomic.AddInt32(&minted, 1) == 1 {
			return time.Now().Add(-2 * time.Hour)
		}
		return time.Now()
	}

	list, err := newClient(t, baseURL, src).ListRules(context.Background(), tenant)
	require.NoError(t, err)
	assert.Len(t, list, 6)
	assert.Equal(t, int32(2), atomic.LoadInt32(&minted))
}

func TestValidateAndDryRun(t *testing.T) {
	c := newClient(t, startBackend(t), tokenSource(tenant))
	ctx := context.Background()

	res, err := c.ValidateRule(ctx, tenant, hardBlock("Daily Token Limit", "x"))
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.NotEmpty(t, res.Warnings)

	res, err = c.ValidateRule(ctx, tenant, models.NewRuleInput("Broken", 1, models.TokenLimitCondition{LimitType: "weekly", Scope: "user"}))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.NotEmpty(t, res.Errors)

	out, err := c.TestRules(ctx, tenant, models.RuleTestRequest{SamplePrompt: "here is my password"})
	require.NoError(t, err)
	assert.True(t, out.IsBlocked)
	assert.True(t, out.Triggered("rule-4"))

	list, err := c.ListRules(ctx, tenant)
	require.NoError(t, err)
	assert.Len(t, list, 6)

	pre, err := c.Preflight(ctx, tenant, hardBlock("Block Keys", "apikey"), models.RuleTestRequest{SamplePrompt: "hello"})
	require.NoError(t, err)
	assert.True(t, pre.Validation.IsValid)
	assert.False(t, pre.Test.IsBlocked)
}

func TestImportExport(t *testing.T) {
	c := newClient(t, startBackend(t), tokenSource(tenant))
	ctx := context.Background()

	res, err := c.ImportRules(ctx, tenant, models.ImportRequest{Rules: []models.RuleInput{
		hardBlock("Imported Block", "leak"),
		models.NewRuleInput("Broken", 1, models.TokenLimitCondition{LimitType: "weekly", Scope: "user"}),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Broken", res.Errors[0].RuleName)

	exported, err := c.ExportRules(ctx, tenant, models.ExportOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.ExportFormatJSON, exported.Format)
	assert.Len(t, exported.Rules, 6)
	for _, r := range exported.Rules {
		assert.True(t, r.Enabled)
	}

	csv, err := c.ExportRules(ctx, tenant, models.ExportOptions{Format: models.ExportFormatCSV, RuleIDs: []string{"rule-5"}, IncludeDisabled: true})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(csv.Raw), "id,name,type"))
	assert.Contains(t, string(csv.Raw), "rule-5")
	assert.Contains(t, csv.ContentType, "text/csv")
}
