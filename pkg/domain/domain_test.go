package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

func TestResourceJSONRoundTrip(t *testing.T) {
	res := Resource{
		ID:        "abc123",
		Scope:     Scope{UserID: "u1", LabID: "ec2-basics"},
		Type:      ResourceEC2Instance,
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC),
		State: InstanceState{
			InstanceID:   "i-0123456789abcdef0",
			Status:       InstanceRunning,
			AMI:          "ami-al2023",
			InstanceType: "t2.micro",
			Storage:      []VolumeMount{{VolumeID: "vol-11112222", Device: "/dev/sdf"}},
		},
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Resource
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	state, ok := decoded.State.(InstanceState)
	if !ok {
		t.Fatalf("decoded state has type %T, want InstanceState", decoded.State)
	}
	if !reflect.DeepEqual(res.State, state) {
		t.Fatalf("state mismatch: got %+v want %+v", state, res.State)
	}
	if decoded.Key() != "i-0123456789abcdef0" {
		t.Fatalf("unexpected natural key %q", decoded.Key())
	}
}

func TestResourceJSONUnknownType(t *testing.T) {
	raw := []byte(`{"id":"x","scope":{"user_id":"u","lab_id":"l"},"type":"FLUX_CAPACITOR","state":{}}`)
	var decoded Resource
	if err := json.Unmarshal(raw, &decoded); err == nil {
		t.Fatal("expected error for unknown resource type")
	}
}

func TestProgressCompleteStepIsSetLike(t *testing.T) {
	p := Progress{Scope: Scope{UserID: "u", LabID: "l"}}
	if !p.CompleteStep("step-2") {
		t.Fatal("first add should report change")
	}
	if !p.CompleteStep("step-1") {
		t.Fatal("second add should report change")
	}
	if p.CompleteStep("step-2") {
		t.Fatal("re-adding must be a no-op")
	}
	want := []string{"step-1", "step-2"}
	if !reflect.DeepEqual(p.CompletedSteps, want) {
		t.Fatalf("completed steps = %v, want sorted %v", p.CompletedSteps, want)
	}
	if !p.HasCompleted("step-1") || p.HasCompleted("step-3") {
		t.Fatal("HasCompleted gave wrong answer")
	}
}

func TestLabFirstIncompleteStep(t *testing.T) {
	lab := Lab{ID: "l", Steps: []Step{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	if got := lab.FirstIncompleteStep(nil); got != "a" {
		t.Fatalf("fresh lab current step = %q, want a", got)
	}
	if got := lab.FirstIncompleteStep([]string{"a", "c"}); got != "b" {
		t.Fatalf("current step = %q, want b", got)
	}
	if got := lab.FirstIncompleteStep([]string{"a", "b", "c"}); got != "c" {
		t.Fatalf("fully complete lab should stay on last step, got %q", got)
	}
	empty := Lab{ID: "e"}
	if got := empty.FirstIncompleteStep(nil); got != "" {
		t.Fatalf("stepless lab current step = %q, want empty", got)
	}
}

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{DuplicateKeyError{Type: ResourceS3Bucket, Key: "b"}, CodeDuplicateKey},
		{NotFoundError{Kind: "lab", ID: "x"}, CodeNotFound},
		{ResourceStateError{Type: ResourceEC2Instance, Key: "i-1"}, CodeResourceState},
		{ReferentialIntegrityError{Type: ResourceSubnet, RefType: ResourceVPC, RefKey: "vpc-1"}, CodeReferentialIntegrity},
		{ValidationMismatchError{StepID: "s", Message: "m"}, CodeValidationMismatch},
		{PersistenceError{Op: "write", Err: errors.New("disk")}, CodePersistence},
		{fmt.Errorf("wrapped: %w", NotFoundError{Kind: "step", ID: "s"}), CodeNotFound},
		{errors.New("anything"), CodePersistence},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.want {
			t.Fatalf("CodeOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestPayloadAccessors(t *testing.T) {
	p := Payload{
		"name":   "web",
		"size":   float64(16),
		"port":   "443",
		"groups": []any{"sg-1", "sg-2", 3},
		"files": []any{
			"plain.txt",
			map[string]any{"name": "index.html", "size_bytes": float64(120), "content_type": "text/html"},
		},
	}
	if got := p.String("name"); got != "web" {
		t.Fatalf("String = %q", got)
	}
	if got := p.String("size"); got != "16" {
		t.Fatalf("numeric String = %q", got)
	}
	if got := p.Int("size"); got != 16 {
		t.Fatalf("Int = %d", got)
	}
	if got := p.Int("port"); got != 443 {
		t.Fatalf("string Int = %d", got)
	}
	if got := p.Strings("groups"); !reflect.DeepEqual(got, []string{"sg-1", "sg-2"}) {
		t.Fatalf("Strings = %v", got)
	}
	files := p.Files()
	if len(files) != 2 {
		t.Fatalf("Files returned %d entries", len(files))
	}
	if files[0].Name != "plain.txt" {
		t.Fatalf("bare filename entry = %+v", files[0])
	}
	if files[1].SizeBytes != 120 || files[1].ContentType != "text/html" {
		t.Fatalf("descriptor entry = %+v", files[1])
	}
}

func TestResourceTypesStable(t *testing.T) {
	a := ResourceTypes()
	b := ResourceTypes()
	if !reflect.DeepEqual(a, b) {
		t.Fatal("ResourceTypes order must be stable")
	}
	for _, rt := range a {
		if !KnownResourceType(rt) {
			t.Fatalf("listed type %s not known", rt)
		}
	}
	if KnownResourceType("FLUX_CAPACITOR") {
		t.Fatal("unknown type reported as known")
	}
}
