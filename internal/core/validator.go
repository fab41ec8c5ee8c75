package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"cloudlab/pkg/domain"
)

// Verdict is the outcome of validating one action.
type Verdict struct {
	Success       bool             `json:"success"`
	Code          domain.ErrorCode `json:"code,omitempty"`
	Message       string           `json:"message"`
	StepCompleted bool             `json:"step_completed,omitempty"`
	CurrentStepID string           `json:"current_step_id,omitempty"`
	Resource      *domain.Resource `json:"resource,omitempty"`
}

// matchRule judges whether the action satisfies the step rule. The mutated
// resource is non-nil only when a lifecycle mutation ran and succeeded; rule
// matching never mutates anything itself. The type switch is exhaustive over
// the sealed StepRule union.
func matchRule(rule domain.StepRule, p domain.Payload, mutated *domain.Resource) (bool, string) {
	switch r := rule.(type) {
	case domain.URLContains:
		if strings.Contains(p.String("url"), r.Value) {
			return true, ""
		}
		return false, fmt.Sprintf("url does not contain %q", r.Value)
	case domain.ClickButton:
		if p.String("value") == r.Value {
			return true, ""
		}
		return false, fmt.Sprintf("expected click on %q", r.Value)
	case domain.InputValue:
		if p.String("field") == r.Field && p.String("value") == r.Value {
			return true, ""
		}
		return false, fmt.Sprintf("field %q must equal %q", r.Field, r.Value)
	case domain.SelectValue:
		if p.String("field") == r.Field && p.String("value") == r.Value {
			return true, ""
		}
		return false, fmt.Sprintf("selection %q must equal %q", r.Field, r.Value)
	case domain.ResourceCreated:
		if mutated == nil {
			return false, "no resource mutation was performed"
		}
		if mutated.Type != r.ResourceType {
			return false, fmt.Sprintf("expected a %s, got %s", r.ResourceType, mutated.Type)
		}
		return true, ""
	case domain.ConfigChange:
		if mutated == nil {
			return false, "no resource mutation was performed"
		}
		got, ok := stateAttribute(mutated.State, r.Setting)
		if !ok {
			return false, fmt.Sprintf("resource has no attribute %q", r.Setting)
		}
		if got != r.Value {
			return false, fmt.Sprintf("attribute %q is %q, expected %q", r.Setting, got, r.Value)
		}
		return true, ""
	case domain.FileUpload:
		if len(p.Files()) > 0 {
			return true, ""
		}
		return false, "no file attached"
	default:
		return false, fmt.Sprintf("unsupported rule kind %q", rule.RuleKind())
	}
}

// stateAttribute resolves a named attribute on a state bag through its JSON
// representation, so catalog settings use the same field names clients see.
func stateAttribute(state domain.ResourceState, setting string) (string, bool) {
	if state == nil {
		return "", false
	}
	data, err := json.Marshal(state)
	if err != nil {
		return "", false
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", false
	}
	v, ok := fields[setting]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return fmt.Sprintf("%t", t), true
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t)), true
		}
		return fmt.Sprintf("%g", t), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}
