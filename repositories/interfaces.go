package repositories

import (
	"context"

	"github.com/upb/tenant-rules-admin/models"
)

// TransactionManager groups repository calls into one atomic unit
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents an open unit of work
type Transaction interface {
	// Commit makes the changes visible
	Commit() error

	// Rollback discards every change made since Begin
	Rollback() error

	// Context returns the transaction context. Repository calls made with it
	// join the transaction.
	Context() context.Context
}

// RuleRepository stores tenant rules and their version history
type RuleRepository interface {
	// List returns the tenant's rules ordered by priority ascending, ties in
	// insertion order
	List(ctx context.Context, tenantID string) ([]*models.TenantRule, error)

	// GetByID retrieves a rule. Returns services.ErrRuleNotFound when absent.
	GetByID(ctx context.Context, tenantID, ruleID string) (*models.TenantRule, error)

	// GetByName retrieves a rule by exact name. Returns services.ErrRuleNotFound
	// when absent.
	GetByName(ctx context.Context, tenantID, name string) (*models.TenantRule, error)

	// Create stores a new rule
	Create(ctx context.Context, rule *models.TenantRule) error

	// Update replaces a stored rule
	Update(ctx context.Context, rule *models.TenantRule) error

	// Delete removes a rule and its history
	Delete(ctx context.Context, tenantID, ruleID string) error

	// AppendVersion records a history entry for a rule
	AppendVersion(ctx context.Context, tenantID string, version *models.RuleVersion) error

	// ListVersions returns a rule's history, newest first
	ListVersions(ctx context.Context, tenantID, ruleID string) ([]*models.RuleVersion, error)
}
