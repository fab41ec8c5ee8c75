package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"cloudlab/pkg/domain"
)

var (
	scopeA = domain.Scope{UserID: "alice", LabID: "ec2-basics"}
	scopeB = domain.Scope{UserID: "bob", LabID: "ec2-basics"}
)

func createVPC(t *testing.T, s *Store, scope domain.Scope, vpcID string) {
	t.Helper()
	_, err := s.RunInScope(context.Background(), scope, func(tx Transaction) error {
		_, err := tx.CreateResource(domain.VPCState{VPCID: vpcID, CIDRBlock: "10.0.0.0/16"})
		return err
	})
	if err != nil {
		t.Fatalf("create vpc: %v", err)
	}
}

func TestScopeIsolation(t *testing.T) {
	s := NewStore(nil)
	createVPC(t, s, scopeA, "vpc-aaaa1111")

	if got := s.ListAllResources(scopeB); len(got) != 0 {
		t.Fatalf("scope B sees %d resources from scope A", len(got))
	}
	if got := s.ListResources(scopeA, domain.ResourceVPC); len(got) != 1 {
		t.Fatalf("scope A lists %d VPCs, want 1", len(got))
	}
}

func TestDuplicateNaturalKey(t *testing.T) {
	s := NewStore(nil)
	createVPC(t, s, scopeA, "vpc-aaaa1111")

	_, err := s.RunInScope(context.Background(), scopeA, func(tx Transaction) error {
		_, err := tx.CreateResource(domain.VPCState{VPCID: "vpc-aaaa1111"})
		return err
	})
	var dup domain.DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateKeyError, got %v", err)
	}

	// Same key in another scope is fine.
	createVPC(t, s, scopeB, "vpc-aaaa1111")
}

func TestUpdateMissingResource(t *testing.T) {
	s := NewStore(nil)
	_, err := s.RunInScope(context.Background(), scopeA, func(tx Transaction) error {
		_, err := tx.UpdateResource(domain.ResourceVPC, "vpc-nope", func(*Resource) error { return nil })
		return err
	})
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	s := NewStore(nil)
	boom := errors.New("boom")
	_, err := s.RunInScope(context.Background(), scopeA, func(tx Transaction) error {
		if _, err := tx.CreateResource(domain.VPCState{VPCID: "vpc-ephemeral"}); err != nil {
			return err
		}
		tx.PutProgress(domain.Progress{Scope: scopeA})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error back, got %v", err)
	}
	if got := s.ListAllResources(scopeA); len(got) != 0 {
		t.Fatalf("aborted transaction committed %d resources", len(got))
	}
	if _, ok := s.GetProgress(scopeA); ok {
		t.Fatal("aborted transaction committed progress")
	}
}

type blockEverything struct{}

func (blockEverything) Name() string { return "block_everything" }

func (blockEverything) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, c := range changes {
		res.Violations = append(res.Violations, domain.Violation{
			Rule: "block_everything", Severity: domain.SeverityBlock, Message: "no", Entity: c.Entity,
		})
	}
	return res, nil
}

func TestBlockingViolationPreventsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockEverything{})
	s := NewStore(engine)

	_, err := s.RunInScope(context.Background(), scopeA, func(tx Transaction) error {
		_, err := tx.CreateResource(domain.VPCState{VPCID: "vpc-blocked"})
		return err
	})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if got := s.ListAllResources(scopeA); len(got) != 0 {
		t.Fatalf("blocked transaction committed %d resources", len(got))
	}
}

func TestUpdateKeyRename(t *testing.T) {
	s := NewStore(nil)
	createVPC(t, s, scopeA, "vpc-old")
	_, err := s.RunInScope(context.Background(), scopeA, func(tx Transaction) error {
		_, err := tx.UpdateResource(domain.ResourceVPC, "vpc-old", func(r *Resource) error {
			state := r.State.(domain.VPCState)
			state.VPCID = "vpc-new"
			r.State = state
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	vpcs := s.ListResources(scopeA, domain.ResourceVPC)
	if len(vpcs) != 1 || vpcs[0].Key() != "vpc-new" {
		t.Fatalf("after rename got %v", vpcs)
	}
}

func TestResetScope(t *testing.T) {
	s := NewStore(nil)
	createVPC(t, s, scopeA, "vpc-aaaa1111")
	createVPC(t, s, scopeB, "vpc-bbbb2222")

	if err := s.ResetScope(context.Background(), scopeA); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := s.ListAllResources(scopeA); len(got) != 0 {
		t.Fatalf("reset scope still holds %d resources", len(got))
	}
	if got := s.ListAllResources(scopeB); len(got) != 1 {
		t.Fatal("reset leaked into another scope")
	}
	// Unknown scope reset is a no-op.
	if err := s.ResetScope(context.Background(), domain.Scope{UserID: "nobody", LabID: "none"}); err != nil {
		t.Fatalf("reset unknown scope: %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := NewStore(nil)
	createVPC(t, s, scopeA, "vpc-aaaa1111")
	createVPC(t, s, scopeB, "vpc-bbbb2222")
	_, err := s.RunInScope(context.Background(), scopeA, func(tx Transaction) error {
		_, err := tx.CreateResource(domain.BucketState{BucketName: "assets"})
		if err != nil {
			return err
		}
		tx.PutProgress(domain.Progress{Scope: scopeA, CurrentStepID: "s2", CompletedSteps: []string{"s1"}})
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	snapshot := s.ExportState()
	restored := NewStore(nil)
	restored.ImportState(snapshot)

	if !reflect.DeepEqual(snapshot, restored.ExportState()) {
		t.Fatal("snapshot is not stable across import/export")
	}
	progress, ok := restored.GetProgress(scopeA)
	if !ok || progress.CurrentStepID != "s2" || !progress.HasCompleted("s1") {
		t.Fatalf("restored progress = %+v", progress)
	}
	if got := restored.ListAllResources(scopeA); len(got) != 2 {
		t.Fatalf("restored scope A has %d resources, want 2", len(got))
	}
}

func TestViewIsSnapshot(t *testing.T) {
	s := NewStore(nil)
	createVPC(t, s, scopeA, "vpc-aaaa1111")
	err := s.View(context.Background(), scopeA, func(v TransactionView) error {
		if _, ok := v.FindResource(domain.ResourceVPC, "vpc-aaaa1111"); !ok {
			t.Fatal("view missing committed resource")
		}
		if got := v.ListAllResources(); len(got) != 1 {
			t.Fatalf("view lists %d resources", len(got))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
