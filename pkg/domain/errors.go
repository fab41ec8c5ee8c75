package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable machine-readable classification returned to callers.
type ErrorCode string

// Error codes cover every expected non-fatal outcome plus storage failures.
const (
	CodeValidationMismatch   ErrorCode = "VALIDATION_MISMATCH"
	CodeResourceState        ErrorCode = "RESOURCE_STATE"
	CodeReferentialIntegrity ErrorCode = "REFERENTIAL_INTEGRITY"
	CodeDuplicateKey         ErrorCode = "DUPLICATE_KEY"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodePersistence          ErrorCode = "PERSISTENCE"
)

// DuplicateKeyError reports a natural-key collision within a scope and type.
type DuplicateKeyError struct {
	Type ResourceType
	Key  string
}

func (e DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s %q already exists in scope", e.Type, e.Key)
}

// Code returns the stable classification for the error.
func (e DuplicateKeyError) Code() ErrorCode { return CodeDuplicateKey }

// NotFoundError reports an unknown lab, step, resource, or scope.
type NotFoundError struct {
	Kind string // "lab", "step", "resource", "scope"
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Code returns the stable classification for the error.
func (e NotFoundError) Code() ErrorCode { return CodeNotFound }

// ResourceStateError reports an illegal state-machine transition.
type ResourceStateError struct {
	Type   ResourceType
	Key    string
	From   string
	To     string
	Reason string
}

func (e ResourceStateError) Error() string {
	msg := fmt.Sprintf("%s %q cannot transition from %s to %s", e.Type, e.Key, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Code returns the stable classification for the error.
func (e ResourceStateError) Code() ErrorCode { return CodeResourceState }

// ReferentialIntegrityError reports a reference to a nonexistent resource.
type ReferentialIntegrityError struct {
	Type    ResourceType // type being created or mutated
	RefType ResourceType // type of the missing referenced resource
	RefKey  string
}

func (e ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("%s references %s %q which does not exist in scope", e.Type, e.RefType, e.RefKey)
}

// Code returns the stable classification for the error.
func (e ReferentialIntegrityError) Code() ErrorCode { return CodeReferentialIntegrity }

// ValidationMismatchError reports an action that does not satisfy the current
// step's rule. Non-fatal; the user may retry.
type ValidationMismatchError struct {
	StepID  string
	Message string
}

func (e ValidationMismatchError) Error() string {
	return fmt.Sprintf("step %s: %s", e.StepID, e.Message)
}

// Code returns the stable classification for the error.
func (e ValidationMismatchError) Code() ErrorCode { return CodeValidationMismatch }

// PersistenceError wraps a storage failure. Fatal for the call, safe to retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

// Code returns the stable classification for the error.
func (e PersistenceError) Code() ErrorCode { return CodePersistence }

type coded interface{ Code() ErrorCode }

// CodeOf classifies an arbitrary error into the taxonomy. Unrecognized errors
// are treated as persistence failures so they surface as generic server errors.
func CodeOf(err error) ErrorCode {
	var c coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodePersistence
}
