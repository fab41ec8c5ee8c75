package domain

import "context"

// Transaction exposes the scope-qualified operations a persistence
// implementation must support within an atomic unit. A transaction is always
// opened against exactly one scope; cross-scope access is impossible by
// construction.
type Transaction interface {
	Scope() Scope

	// CreateResource stores a new resource. Fails with DuplicateKeyError when
	// the state's natural key already exists for that type in the scope.
	CreateResource(state ResourceState) (Resource, error)
	// UpdateResource mutates the resource identified by type and natural key.
	// Fails with NotFoundError rather than silently succeeding.
	UpdateResource(t ResourceType, key string, mutator func(*Resource) error) (Resource, error)
	// DeleteResource removes the resource. Fails with NotFoundError when the
	// target does not exist.
	DeleteResource(t ResourceType, key string) error
	FindResource(t ResourceType, key string) (Resource, bool)
	ListResources(t ResourceType) []Resource

	// Progress returns the scope's progress record, if started.
	Progress() (Progress, bool)
	// PutProgress replaces the scope's progress record.
	PutProgress(Progress)
}

// TransactionView provides read-only snapshot access for reads and rules.
type TransactionView interface {
	RuleView
	Progress() (Progress, bool)
}

// PersistentStore is the minimal abstraction over durable backends. All
// writes within one RunInScope call commit atomically per scope; concurrent
// calls against the same scope are serialized by the implementation.
type PersistentStore interface {
	// RunInScope executes fn within a transactional copy of the scope state,
	// evaluates registered rules over the recorded changes, and commits only
	// when no blocking violation is present.
	RunInScope(ctx context.Context, scope Scope, fn func(Transaction) error) (Result, error)
	// View executes fn against a consistent read-only snapshot of the scope.
	View(ctx context.Context, scope Scope, fn func(TransactionView) error) error
	// ResetScope atomically removes every resource and the progress record
	// for the scope. Resetting an unknown scope is a no-op.
	ResetScope(ctx context.Context, scope Scope) error

	GetProgress(scope Scope) (Progress, bool)
	ListResources(scope Scope, t ResourceType) []Resource
	ListAllResources(scope Scope) []Resource
}
