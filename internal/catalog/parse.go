package catalog

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"cloudlab/pkg/domain"
)

type labSpec struct {
	ID      string     `yaml:"id"`
	Service string     `yaml:"service"`
	Title   string     `yaml:"title"`
	Steps   []stepSpec `yaml:"steps"`
}

type stepSpec struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Instruction string   `yaml:"instruction"`
	Validation  ruleSpec `yaml:"validation"`
	Implies     []string `yaml:"implies"`
}

// ruleSpec is the YAML shape of the validation union. Only the fields the
// declared type needs may be set; extras are rejected so definitions stay
// honest about what they check.
type ruleSpec struct {
	Type         string `yaml:"type"`
	Value        string `yaml:"value"`
	Field        string `yaml:"field"`
	ResourceType string `yaml:"resourceType"`
	Setting      string `yaml:"setting"`
}

// ParseLab decodes one YAML lab definition and validates its internal
// consistency: non-empty ids, unique step ids, known rule kinds and resource
// types, and implies lists that reference real steps.
func ParseLab(raw []byte) (domain.Lab, error) {
	var spec labSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return domain.Lab{}, err
	}
	if spec.ID == "" {
		return domain.Lab{}, fmt.Errorf("lab id is required")
	}
	lab := domain.Lab{ID: spec.ID, Service: spec.Service, Title: spec.Title}

	seen := make(map[string]struct{}, len(spec.Steps))
	for _, s := range spec.Steps {
		if s.ID == "" {
			return domain.Lab{}, fmt.Errorf("lab %s: step id is required", spec.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return domain.Lab{}, fmt.Errorf("lab %s: duplicate step id %q", spec.ID, s.ID)
		}
		seen[s.ID] = struct{}{}
		rule, err := s.Validation.toRule()
		if err != nil {
			return domain.Lab{}, fmt.Errorf("lab %s step %s: %w", spec.ID, s.ID, err)
		}
		lab.Steps = append(lab.Steps, domain.Step{
			ID:          s.ID,
			Title:       s.Title,
			Instruction: s.Instruction,
			Rule:        rule,
			Implies:     s.Implies,
		})
	}
	for _, s := range lab.Steps {
		for _, implied := range s.Implies {
			if _, ok := seen[implied]; !ok {
				return domain.Lab{}, fmt.Errorf("lab %s step %s: implies unknown step %q", spec.ID, s.ID, implied)
			}
			if implied == s.ID {
				return domain.Lab{}, fmt.Errorf("lab %s step %s: implies itself", spec.ID, s.ID)
			}
		}
	}
	return lab, nil
}

func (r ruleSpec) toRule() (domain.StepRule, error) {
	switch domain.RuleKind(r.Type) {
	case domain.RuleURLContains:
		if r.Value == "" {
			return nil, fmt.Errorf("URL_CONTAINS requires value")
		}
		return domain.URLContains{Value: r.Value}, nil
	case domain.RuleClickButton:
		if r.Value == "" {
			return nil, fmt.Errorf("CLICK_BUTTON requires value")
		}
		return domain.ClickButton{Value: r.Value}, nil
	case domain.RuleInputValue:
		if r.Field == "" || r.Value == "" {
			return nil, fmt.Errorf("INPUT_VALUE requires field and value")
		}
		return domain.InputValue{Field: r.Field, Value: r.Value}, nil
	case domain.RuleSelectValue:
		if r.Field == "" || r.Value == "" {
			return nil, fmt.Errorf("SELECT_VALUE requires field and value")
		}
		return domain.SelectValue{Field: r.Field, Value: r.Value}, nil
	case domain.RuleResourceCreated:
		t := domain.ResourceType(r.ResourceType)
		if !domain.KnownResourceType(t) {
			return nil, fmt.Errorf("RESOURCE_CREATED names unknown resource type %q", r.ResourceType)
		}
		return domain.ResourceCreated{ResourceType: t}, nil
	case domain.RuleConfigChange:
		if r.Setting == "" {
			return nil, fmt.Errorf("CONFIG_CHANGE requires setting")
		}
		return domain.ConfigChange{Setting: r.Setting, Value: r.Value}, nil
	case domain.RuleFileUpload:
		return domain.FileUpload{}, nil
	default:
		return nil, fmt.Errorf("unknown validation type %q", r.Type)
	}
}
