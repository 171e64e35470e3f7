// Package memory keeps tenant rules in process memory. It backs the mock API
// and tests; state is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/upb/tenant-rules-admin/models"
	"github.com/upb/tenant-rules-admin/repositories"
	"github.com/upb/tenant-rules-admin/services"
	"go.uber.org/zap"
)

var (
	_ repositories.RuleRepository     = (*Store)(nil)
	_ repositories.TransactionManager = (*Store)(nil)
)

type ruleEntry struct {
	seq  int64
	rule models.TenantRule
}

type state struct {
	nextSeq int64
	rules   map[string]*ruleEntry
	history map[string][]models.RuleVersion // oldest first
}

func newState() *state {
	return &state{
		rules:   make(map[string]*ruleEntry),
		history: make(map[string][]models.RuleVersion),
	}
}

func (st *state) clone() *state {
	out := &state{
		nextSeq: st.nextSeq,
		rules:   make(map[string]*ruleEntry, len(st.rules)),
		history: make(map[string][]models.RuleVersion, len(st.history)),
	}
	for k, e := range st.rules {
		out.rules[k] = &ruleEntry{seq: e.seq, rule: e.rule.Clone()}
	}
	for k, versions := range st.history {
		cp := make([]models.RuleVersion, len(versions))
		for i, v := range versions {
			cp[i] = v
			cp[i].Snapshot = v.Snapshot.Clone()
		}
		out.history[k] = cp
	}
	return out
}

// Store is an in-memory RuleRepository and TransactionManager. Calls made
// with a transaction context run under that transaction's lock.
type Store struct {
	sem    chan struct{}
	data   *state
	logger *zap.Logger
}

// NewStore creates an empty store
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		sem:    make(chan struct{}, 1),
		data:   newState(),
		logger: logger,
	}
}

func ruleKey(tenantID, ruleID string) string {
	return tenantID + "/" + ruleID
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() {
	<-s.sem
}

// Ping reports whether the store can be locked before ctx ends
func (s *Store) Ping(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	s.release()
	return nil
}

// enter joins the caller's transaction or locks the store for a single call
func (s *Store) enter(ctx context.Context) (func(), error) {
	if tx, ok := transactionFromContext(ctx); ok && tx.store == s && !tx.done {
		return func() {}, nil
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	return s.release, nil
}

// List returns the tenant's rules ordered by priority, ties by insertion
func (s *Store) List(ctx context.Context, tenantID string) ([]*models.TenantRule, error) {
	leave, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	entries := make([]*ruleEntry, 0)
	for _, e := range s.data.rules {
		if e.rule.TenantID == tenantID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].rule.Priority != entries[j].rule.Priority {
			return entries[i].rule.Priority < entries[j].rule.Priority
		}
		return entries[i].seq < entries[j].seq
	})

	rules := make([]*models.TenantRule, len(entries))
	for i, e := range entries {
		r := e.rule.Clone()
		rules[i] = &r
	}
	return rules, nil
}

// GetByID retrieves a rule by ID
func (s *Store) GetByID(ctx context.Context, tenantID, ruleID string) (*models.TenantRule, error) {
	leave, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	e, ok := s.data.rules[ruleKey(tenantID, ruleID)]
	if !ok {
		return nil, services.NewRuleNotFound(ruleID)
	}
	r := e.rule.Clone()
	return &r, nil
}

// GetByName retrieves a rule by exact name
func (s *Store) GetByName(ctx context.Context, tenantID, name string) (*models.TenantRule, error) {
	leave, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	var found *ruleEntry
	for _, e := range s.data.rules {
		if e.rule.TenantID == tenantID && e.rule.Name == name {
			if found == nil || e.seq < found.seq {
				found = e
			}
		}
	}
	if found == nil {
		return nil, services.NewDomainError(services.ErrorTypeNotFound, services.ErrRuleNotFound.Message, nil).WithDetail("name", name)
	}
	r := found.rule.Clone()
	return &r, nil
}

// Create stores a new rule
func (s *Store) Create(ctx context.Context, rule *models.TenantRule) error {
	leave, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	key := ruleKey(rule.TenantID, rule.ID)
	if _, exists := s.data.rules[key]; exists {
		return fmt.Errorf("rule %s already exists", rule.ID)
	}
	s.data.nextSeq++
	s.data.rules[key] = &ruleEntry{seq: s.data.nextSeq, rule: rule.Clone()}

	s.logger.Debug("rule stored",
		zap.String("tenant_id", rule.TenantID),
		zap.String("rule_id", rule.ID),
	)
	return nil
}

// Update replaces a stored rule, keeping its insertion order
func (s *Store) Update(ctx context.Context, rule *models.TenantRule) error {
	leave, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	e, ok := s.data.rules[ruleKey(rule.TenantID, rule.ID)]
	if !ok {
		return services.NewRuleNotFound(rule.ID)
	}
	e.rule = rule.Clone()
	return nil
}

// Delete removes a rule and its history
func (s *Store) Delete(ctx context.Context, tenantID, ruleID string) error {
	leave, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	key := ruleKey(tenantID, ruleID)
	if _, ok := s.data.rules[key]; !ok {
		return services.NewRuleNotFound(ruleID)
	}
	delete(s.data.rules, key)
	delete(s.data.history, key)
	return nil
}

// AppendVersion records a history entry
func (s *Store) AppendVersion(ctx context.Context, tenantID string, version *models.RuleVersion) error {
	leave, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	key := ruleKey(tenantID, version.RuleID)
	if _, ok := s.data.rules[key]; !ok {
		return services.NewRuleNotFound(version.RuleID)
	}
	v := *version
	v.Snapshot = version.Snapshot.Clone()
	s.data.history[key] = append(s.data.history[key], v)
	return nil
}

// ListVersions returns a rule's history, newest first
func (s *Store) ListVersions(ctx context.Context, tenantID, ruleID string) ([]*models.RuleVersion, error) {
	leave, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	key := ruleKey(tenantID, ruleID)
	if _, ok := s.data.rules[key]; !ok {
		return nil, services.NewRuleNotFound(ruleID)
	}

	history := s.data.history[key]
	out := make([]*models.RuleVersion, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		v := history[i]
		v.Snapshot = history[i].Snapshot.Clone()
		out = append(out, &v)
	}
	return out, nil
}
