package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloudlab/internal/blob"
	"cloudlab/internal/telemetry"
	"cloudlab/pkg/domain"
)

// Service is the session and progress tracker. It composes the persistent
// store, the lab catalog, the lifecycle manager and step validation into the
// operations the HTTP surface exposes.
type Service struct {
	store     domain.PersistentStore
	catalog   Catalog
	artifacts blob.Store
	log       *telemetry.Logger
	metrics   *telemetry.Metrics
	nowFn     func() time.Time
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithArtifactStore wires the blob store uploaded artifacts are kept in.
func WithArtifactStore(s blob.Store) Option {
	return func(svc *Service) { svc.artifacts = s }
}

// WithLogger attaches a structured logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(svc *Service) { svc.log = l }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(svc *Service) { svc.metrics = m }
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(svc *Service) { svc.nowFn = now }
}

// NewService builds a Service over the given store and catalog.
func NewService(store domain.PersistentStore, catalog Catalog, opts ...Option) *Service {
	svc := &Service{
		store:   store,
		catalog: catalog,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.log == nil {
		svc.log = telemetry.NewLogger(nil, "info", "")
	}
	return svc
}

// StepStatus pairs a catalog step with the scope's completion flag.
type StepStatus struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Instruction string `json:"instruction,omitempty"`
	Completed   bool   `json:"completed"`
}

// Session is the client-facing view of a scope returned by start and reset.
type Session struct {
	LabID     string            `json:"lab_id"`
	LabTitle  string            `json:"lab_title"`
	Service   string            `json:"service"`
	Resumed   bool              `json:"resumed"`
	Progress  domain.Progress   `json:"progress"`
	Steps     []StepStatus      `json:"steps"`
	Resources []domain.Resource `json:"resources"`
}

// Submission is the graded result of submitting a lab.
type Submission struct {
	Score            float64      `json:"score"`
	SubmittedAt      time.Time    `json:"submitted_at"`
	AlreadySubmitted bool         `json:"already_submitted"`
	Steps            []StepStatus `json:"steps"`
}

// ValidationRequest is one action reported by the console client. An empty
// StepID marks an adhoc action: the mutation applies but no step is graded.
type ValidationRequest struct {
	StepID  string
	Action  ActionType
	Payload domain.Payload
}

// StartLab starts a session for the scope, or resumes the existing one
// without replaying anything. Virtual inventory and completed steps survive
// reconnects untouched.
func (svc *Service) StartLab(ctx context.Context, scope domain.Scope) (Session, error) {
	lab, ok := svc.catalog.Lab(scope.LabID)
	if !ok {
		return Session{}, domain.NotFoundError{Kind: "lab", ID: scope.LabID}
	}

	var progress domain.Progress
	resumed := false
	_, err := svc.store.RunInScope(ctx, scope, func(tx domain.Transaction) error {
		if existing, ok := tx.Progress(); ok {
			progress = existing
			resumed = true
			return nil
		}
		progress = domain.Progress{
			Scope:          scope,
			CurrentStepID:  lab.FirstIncompleteStep(nil),
			CompletedSteps: []string{},
			StartedAt:      svc.nowFn(),
		}
		tx.PutProgress(progress)
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	svc.metrics.RecordSessionStarted(scope.LabID, resumed)
	svc.log.WithScope(scope.UserID, scope.LabID).WithField("resumed", resumed).Info("lab session started")
	return svc.session(lab, scope, progress, resumed), nil
}

// ResetLab discards the scope's inventory, progress and uploaded artifacts,
// then starts a fresh session.
func (svc *Service) ResetLab(ctx context.Context, scope domain.Scope) (Session, error) {
	if _, ok := svc.catalog.Lab(scope.LabID); !ok {
		return Session{}, domain.NotFoundError{Kind: "lab", ID: scope.LabID}
	}
	if err := svc.store.ResetScope(ctx, scope); err != nil {
		return Session{}, err
	}
	if svc.artifacts != nil {
		if err := blob.DeletePrefix(ctx, svc.artifacts, artifactPrefix(scope)); err != nil {
			svc.log.WithScope(scope.UserID, scope.LabID).WithError(err).Warn("failed to clear artifacts on reset")
		}
	}
	svc.metrics.RecordSessionReset(scope.LabID)
	svc.log.WithScope(scope.UserID, scope.LabID).Info("lab session reset")
	return svc.StartLab(ctx, scope)
}

// SubmitLab finalizes the scope and computes its score as the completed
// fraction of catalog steps. Submitting twice returns the recorded result
// unchanged.
func (svc *Service) SubmitLab(ctx context.Context, scope domain.Scope) (Submission, error) {
	lab, ok := svc.catalog.Lab(scope.LabID)
	if !ok {
		return Submission{}, domain.NotFoundError{Kind: "lab", ID: scope.LabID}
	}

	var sub Submission
	_, err := svc.store.RunInScope(ctx, scope, func(tx domain.Transaction) error {
		progress, ok := tx.Progress()
		if !ok {
			return domain.NotFoundError{Kind: "scope", ID: scope.Key()}
		}
		if progress.IsSubmitted {
			sub = svc.submission(lab, progress, true)
			return nil
		}
		now := svc.nowFn()
		progress.IsSubmitted = true
		progress.SubmittedAt = &now
		if len(lab.Steps) > 0 {
			progress.Score = 100 * float64(len(progress.CompletedSteps)) / float64(len(lab.Steps))
		}
		tx.PutProgress(progress)
		sub = svc.submission(lab, progress, false)
		return nil
	})
	if err != nil {
		return Submission{}, err
	}

	if !sub.AlreadySubmitted {
		svc.metrics.RecordSubmission(scope.LabID)
		svc.log.WithScope(scope.UserID, scope.LabID).WithField("score", sub.Score).Info("lab submitted")
	}
	return sub, nil
}

// Validate applies one reported action against the scope. The lifecycle
// mutation and any progress update commit in the same transaction, so a
// crash can never record a completed step whose resources are missing.
//
// A rule mismatch is not a transaction failure: the mutation still commits
// and the verdict reports the mismatch, matching real consoles where a wrong
// but legal action really happens.
func (svc *Service) Validate(ctx context.Context, scope domain.Scope, req ValidationRequest) (Verdict, error) {
	lab, ok := svc.catalog.Lab(scope.LabID)
	if !ok {
		return Verdict{}, domain.NotFoundError{Kind: "lab", ID: scope.LabID}
	}

	var step domain.Step
	if req.StepID != "" {
		if step, ok = lab.StepByID(req.StepID); !ok {
			return Verdict{}, domain.NotFoundError{Kind: "step", ID: req.StepID}
		}
	} else if !IsLifecycleAction(req.Action) {
		return Verdict{}, fmt.Errorf("adhoc action %q does not mutate inventory", req.Action)
	}

	var verdict Verdict
	_, err := svc.store.RunInScope(ctx, scope, func(tx domain.Transaction) error {
		progress, ok := tx.Progress()
		if !ok {
			return domain.NotFoundError{Kind: "scope", ID: scope.Key()}
		}
		if req.StepID != "" && progress.IsSubmitted {
			verdict = Verdict{
				Success:       false,
				Code:          domain.CodeValidationMismatch,
				Message:       "lab already submitted",
				CurrentStepID: progress.CurrentStepID,
			}
			return nil
		}

		var mutated *domain.Resource
		if IsLifecycleAction(req.Action) {
			res, err := ApplyAction(tx, req.Action, req.Payload)
			svc.metrics.RecordAction(string(req.Action), err)
			if err != nil {
				return err
			}
			mutated = &res
		}

		if req.StepID == "" {
			verdict = Verdict{
				Success:       true,
				Message:       "action applied",
				CurrentStepID: progress.CurrentStepID,
				Resource:      mutated,
			}
			return nil
		}

		matched, reason := matchRule(step.Rule, req.Payload, mutated)
		if !matched {
			verdict = Verdict{
				Success:       false,
				Code:          domain.CodeValidationMismatch,
				Message:       domain.ValidationMismatchError{StepID: step.ID, Message: reason}.Error(),
				CurrentStepID: progress.CurrentStepID,
				Resource:      mutated,
			}
			return nil
		}

		progress.CompleteStep(step.ID)
		for _, implied := range step.Implies {
			progress.CompleteStep(implied)
		}
		progress.CurrentStepID = lab.FirstIncompleteStep(progress.CompletedSteps)
		tx.PutProgress(progress)

		verdict = Verdict{
			Success:       true,
			Message:       "step completed",
			StepCompleted: true,
			CurrentStepID: progress.CurrentStepID,
			Resource:      mutated,
		}
		return nil
	})
	if err != nil {
		code := domain.CodeOf(err)
		svc.metrics.RecordError(string(code))
		svc.log.WithScope(scope.UserID, scope.LabID).WithError(err).WithField("step", req.StepID).Debug("validation rejected")
		return Verdict{}, err
	}

	if req.StepID != "" {
		svc.metrics.RecordValidation(scope.LabID, verdict.Success)
	}
	if verdict.Success && verdict.StepCompleted {
		svc.storeArtifacts(ctx, scope, step, req.Payload)
	}
	return verdict, nil
}

// ListResources returns the scope's inventory, optionally filtered by type.
// The type filter uses the wire-level type names.
func (svc *Service) ListResources(ctx context.Context, scope domain.Scope, typeFilter string) ([]domain.Resource, error) {
	var out []domain.Resource
	err := svc.store.View(ctx, scope, func(view domain.TransactionView) error {
		if typeFilter == "" {
			out = view.ListAllResources()
			return nil
		}
		t := domain.ResourceType(strings.ToUpper(typeFilter))
		if !domain.KnownResourceType(t) {
			return domain.NotFoundError{Kind: "resource", ID: typeFilter}
		}
		out = view.ListResources(t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Progress returns the scope's progress record.
func (svc *Service) Progress(scope domain.Scope) (domain.Progress, bool) {
	return svc.store.GetProgress(scope)
}

// Labs lists the catalog's labs.
func (svc *Service) Labs() []domain.Lab {
	return svc.catalog.Labs()
}

func (svc *Service) session(lab domain.Lab, scope domain.Scope, progress domain.Progress, resumed bool) Session {
	return Session{
		LabID:     lab.ID,
		LabTitle:  lab.Title,
		Service:   lab.Service,
		Resumed:   resumed,
		Progress:  progress,
		Steps:     stepStatuses(lab, progress),
		Resources: svc.store.ListAllResources(scope),
	}
}

func (svc *Service) submission(lab domain.Lab, progress domain.Progress, already bool) Submission {
	at := progress.StartedAt
	if progress.SubmittedAt != nil {
		at = *progress.SubmittedAt
	}
	return Submission{
		Score:            progress.Score,
		SubmittedAt:      at,
		AlreadySubmitted: already,
		Steps:            stepStatuses(lab, progress),
	}
}

func stepStatuses(lab domain.Lab, progress domain.Progress) []StepStatus {
	out := make([]StepStatus, 0, len(lab.Steps))
	for _, s := range lab.Steps {
		out = append(out, StepStatus{
			ID:          s.ID,
			Title:       s.Title,
			Instruction: s.Instruction,
			Completed:   progress.HasCompleted(s.ID),
		})
	}
	return out
}

// storeArtifacts persists file descriptors attached to a completed upload
// step. Failures are logged, not surfaced: the step already committed.
func (svc *Service) storeArtifacts(ctx context.Context, scope domain.Scope, step domain.Step, p domain.Payload) {
	if svc.artifacts == nil || step.Rule == nil || step.Rule.RuleKind() != domain.RuleFileUpload {
		return
	}
	for _, fd := range p.Files() {
		raw, err := json.Marshal(fd)
		if err != nil {
			continue
		}
		key := artifactPrefix(scope) + step.ID + "/" + fd.Name
		if _, err := svc.artifacts.Put(ctx, key, strings.NewReader(string(raw)), blob.PutOptions{
			ContentType: "application/json",
			Metadata:    map[string]string{"step": step.ID},
		}); err != nil {
			svc.log.WithScope(scope.UserID, scope.LabID).WithError(err).Warnf("failed to store artifact %s", key)
		}
	}
}

func artifactPrefix(scope domain.Scope) string {
	return scope.UserID + "/" + scope.LabID + "/"
}
