// Package memory provides the in-memory implementation of the simulation
// persistence store, used directly for tests and ephemeral environments and
// embedded by the durable sqlite and postgres stores.
package memory

import (
	"cloudlab/pkg/domain"
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Resource aliases domain.Resource for persistence operations.
	Resource = domain.Resource
	// ResourceType aliases domain.ResourceType.
	ResourceType = domain.ResourceType
	// Scope aliases domain.Scope.
	Scope = domain.Scope
	// Progress aliases domain.Progress.
	Progress = domain.Progress
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type scopeState struct {
	resources map[ResourceType]map[string]Resource
	progress  *Progress
}

func newScopeState() *scopeState {
	return &scopeState{resources: make(map[ResourceType]map[string]Resource)}
}

func (s *scopeState) clone() *scopeState {
	cloned := newScopeState()
	for t, byKey := range s.resources {
		bucket := make(map[string]Resource, len(byKey))
		for k, r := range byKey {
			bucket[k] = r.Clone()
		}
		cloned.resources[t] = bucket
	}
	if s.progress != nil {
		p := s.progress.Clone()
		cloned.progress = &p
	}
	return cloned
}

// Store keeps every scope's resources and progress in memory, applying
// mutations through cloned-snapshot transactions so a failed or blocked
// transaction never leaves partial state behind.
type Store struct {
	mu     sync.RWMutex
	scopes map[string]*scopeState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		scopes: make(map[string]*scopeState),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the transaction clock. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

type transaction struct {
	scope   Scope
	state   *scopeState
	changes []Change
	now     time.Time
}

var _ Transaction = (*transaction)(nil)

func (tx *transaction) Scope() Scope { return tx.scope }

func (tx *transaction) recordChange(change Change) {
	change.Scope = tx.scope
	tx.changes = append(tx.changes, change)
}

// CreateResource stores a new resource, enforcing natural-key uniqueness at
// write time.
func (tx *transaction) CreateResource(state domain.ResourceState) (Resource, error) {
	t := state.Kind()
	key := state.NaturalKey()
	bucket, ok := tx.state.resources[t]
	if !ok {
		bucket = make(map[string]Resource)
		tx.state.resources[t] = bucket
	}
	if _, exists := bucket[key]; exists {
		return Resource{}, domain.DuplicateKeyError{Type: t, Key: key}
	}
	res := Resource{
		ID:        newID(),
		Scope:     tx.scope,
		Type:      t,
		CreatedAt: tx.now,
		UpdatedAt: tx.now,
		State:     state.CloneState(),
	}
	bucket[key] = res.Clone()
	tx.recordChange(Change{Entity: t, Action: domain.ActionCreate, After: res.Clone()})
	return res, nil
}

// UpdateResource mutates the identified resource. A vanished target fails
// with NotFoundError so callers can distinguish "nothing changed" from
// "target doesn't exist".
func (tx *transaction) UpdateResource(t ResourceType, key string, mutator func(*Resource) error) (Resource, error) {
	bucket := tx.state.resources[t]
	current, ok := bucket[key]
	if !ok {
		return Resource{}, domain.NotFoundError{Kind: "resource", ID: string(t) + "/" + key}
	}
	before := current.Clone()
	working := current.Clone()
	if err := mutator(&working); err != nil {
		return Resource{}, err
	}
	working.ID = current.ID
	working.Scope = tx.scope
	working.Type = t
	working.CreatedAt = current.CreatedAt
	working.UpdatedAt = tx.now
	newKey := working.Key()
	if newKey != key {
		if _, exists := bucket[newKey]; exists {
			return Resource{}, domain.DuplicateKeyError{Type: t, Key: newKey}
		}
		delete(bucket, key)
	}
	bucket[newKey] = working.Clone()
	tx.recordChange(Change{Entity: t, Action: domain.ActionUpdate, Before: before, After: working.Clone()})
	return working, nil
}

// DeleteResource removes the identified resource or fails with NotFoundError.
func (tx *transaction) DeleteResource(t ResourceType, key string) error {
	bucket := tx.state.resources[t]
	current, ok := bucket[key]
	if !ok {
		return domain.NotFoundError{Kind: "resource", ID: string(t) + "/" + key}
	}
	delete(bucket, key)
	tx.recordChange(Change{Entity: t, Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}

func (tx *transaction) FindResource(t ResourceType, key string) (Resource, bool) {
	r, ok := tx.state.resources[t][key]
	if !ok {
		return Resource{}, false
	}
	return r.Clone(), true
}

func (tx *transaction) ListResources(t ResourceType) []Resource {
	return listBucket(tx.state, t)
}

func (tx *transaction) Progress() (Progress, bool) {
	if tx.state.progress == nil {
		return Progress{}, false
	}
	return tx.state.progress.Clone(), true
}

func (tx *transaction) PutProgress(p Progress) {
	p.Scope = tx.scope
	cp := p.Clone()
	tx.state.progress = &cp
}

// view exposes a read-only snapshot of a scope's state.
type view struct {
	state *scopeState
}

var _ TransactionView = view{}

func (v view) FindResource(t ResourceType, key string) (Resource, bool) {
	r, ok := v.state.resources[t][key]
	if !ok {
		return Resource{}, false
	}
	return r.Clone(), true
}

func (v view) ListResources(t ResourceType) []Resource {
	return listBucket(v.state, t)
}

func (v view) ListAllResources() []Resource {
	return listAll(v.state)
}

func (v view) Progress() (Progress, bool) {
	if v.state.progress == nil {
		return Progress{}, false
	}
	return v.state.progress.Clone(), true
}

func listBucket(state *scopeState, t ResourceType) []Resource {
	bucket := state.resources[t]
	out := make([]Resource, 0, len(bucket))
	for _, r := range bucket {
		out = append(out, r.Clone())
	}
	sortResources(out)
	return out
}

func listAll(state *scopeState) []Resource {
	var out []Resource
	for _, t := range domain.ResourceTypes() {
		out = append(out, listBucket(state, t)...)
	}
	return out
}

func sortResources(rs []Resource) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Type != rs[j].Type {
			return rs[i].Type < rs[j].Type
		}
		return rs[i].Key() < rs[j].Key()
	})
}

// RunInScope executes fn within a transactional copy of the scope state.
// Writes across all scopes are serialized by the store mutex; a blocked or
// failed transaction leaves committed state untouched.
func (s *Store) RunInScope(ctx context.Context, scope Scope, fn func(Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	committed, ok := s.scopes[scope.Key()]
	if !ok {
		committed = newScopeState()
	}
	tx := &transaction{
		scope: scope,
		state: committed.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, view{state: tx.state}, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.scopes[scope.Key()] = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the scope state.
func (s *Store) View(ctx context.Context, scope Scope, fn func(TransactionView) error) error {
	s.mu.RLock()
	committed, ok := s.scopes[scope.Key()]
	var snapshot *scopeState
	if ok {
		snapshot = committed.clone()
	} else {
		snapshot = newScopeState()
	}
	s.mu.RUnlock()
	return fn(view{state: snapshot})
}

// ResetScope atomically drops every resource and the progress record for the
// scope. Unknown scopes are a no-op.
func (s *Store) ResetScope(_ context.Context, scope Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scopes, scope.Key())
	return nil
}

// GetProgress retrieves the scope's progress record from committed state.
func (s *Store) GetProgress(scope Scope) (Progress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.scopes[scope.Key()]
	if !ok || state.progress == nil {
		return Progress{}, false
	}
	return state.progress.Clone(), true
}

// ListResources returns all committed resources of one type in the scope.
func (s *Store) ListResources(scope Scope, t ResourceType) []Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.scopes[scope.Key()]
	if !ok {
		return nil
	}
	return listBucket(state, t)
}

// ListAllResources returns every committed resource in the scope in stable order.
func (s *Store) ListAllResources(scope Scope) []Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.scopes[scope.Key()]
	if !ok {
		return nil
	}
	return listAll(state)
}
