package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloudlab/pkg/domain"
)

func TestBuiltinCatalog(t *testing.T) {
	c, err := Builtin()
	if err != nil {
		t.Fatalf("builtin: %v", err)
	}
	labs := c.Labs()
	if len(labs) < 2 {
		t.Fatalf("builtin catalog has %d labs", len(labs))
	}

	ec2, ok := c.Lab("ec2-basics")
	if !ok {
		t.Fatal("ec2-basics missing")
	}
	if ec2.Service != "EC2" || len(ec2.Steps) == 0 {
		t.Fatalf("ec2 lab = %+v", ec2)
	}
	launch, ok := ec2.StepByID("launch-instance")
	if !ok {
		t.Fatal("launch-instance step missing")
	}
	rule, ok := launch.Rule.(domain.ResourceCreated)
	if !ok || rule.ResourceType != domain.ResourceEC2Instance {
		t.Fatalf("launch rule = %#v", launch.Rule)
	}
	if len(launch.Implies) != 2 {
		t.Fatalf("launch implies = %v", launch.Implies)
	}

	s3, ok := c.Lab("s3-static-site")
	if !ok {
		t.Fatal("s3-static-site missing")
	}
	upload, ok := s3.StepByID("upload-index")
	if !ok {
		t.Fatal("upload-index step missing")
	}
	if _, ok := upload.Rule.(domain.FileUpload); !ok {
		t.Fatalf("upload rule = %#v", upload.Rule)
	}
}

func TestParseLabRejectsBadDefinitions(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			"missing lab id",
			"service: EC2\nsteps: []\n",
			"lab id is required",
		},
		{
			"duplicate step id",
			"id: l\nsteps:\n  - id: a\n    validation: {type: FILE_UPLOAD}\n  - id: a\n    validation: {type: FILE_UPLOAD}\n",
			"duplicate step id",
		},
		{
			"unknown rule type",
			"id: l\nsteps:\n  - id: a\n    validation: {type: MIND_READ}\n",
			"unknown validation type",
		},
		{
			"unknown resource type",
			"id: l\nsteps:\n  - id: a\n    validation: {type: RESOURCE_CREATED, resourceType: FLUX}\n",
			"unknown resource type",
		},
		{
			"implies unknown step",
			"id: l\nsteps:\n  - id: a\n    validation: {type: FILE_UPLOAD}\n    implies: [ghost]\n",
			"implies unknown step",
		},
		{
			"input without field",
			"id: l\nsteps:\n  - id: a\n    validation: {type: INPUT_VALUE, value: x}\n",
			"requires field and value",
		},
	}
	for _, tc := range cases {
		_, err := ParseLab([]byte(tc.yaml))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err = %v, want substring %q", tc.name, err, tc.want)
		}
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	lab := `id: custom-lab
service: IAM
title: Create a user
steps:
  - id: create-user
    title: Create an IAM user
    validation:
      type: RESOURCE_CREATED
      resourceType: IAM_USER
`
	if err := os.WriteFile(filepath.Join(dir, "custom.yaml"), []byte(lab), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	labs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(labs) != 1 || labs[0].ID != "custom-lab" {
		t.Fatalf("loaded labs = %+v", labs)
	}
}

func TestNewRejectsDuplicateLabIDs(t *testing.T) {
	_, err := New(domain.Lab{ID: "x"}, domain.Lab{ID: "x"})
	if err == nil {
		t.Fatal("duplicate lab id accepted")
	}
}
