package domain

// RuleKind discriminates step validation rule variants.
type RuleKind string

// Supported validation rule kinds.
const (
	RuleURLContains     RuleKind = "URL_CONTAINS"
	RuleClickButton     RuleKind = "CLICK_BUTTON"
	RuleInputValue      RuleKind = "INPUT_VALUE"
	RuleSelectValue     RuleKind = "SELECT_VALUE"
	RuleResourceCreated RuleKind = "RESOURCE_CREATED"
	RuleConfigChange    RuleKind = "CONFIG_CHANGE"
	RuleFileUpload      RuleKind = "FILE_UPLOAD"
)

// StepRule is the declarative rule attached to a step. It is a sealed union:
// each variant carries only the fields its kind needs, so evaluation is an
// exhaustive type switch rather than optional-field probing.
type StepRule interface {
	RuleKind() RuleKind
}

// URLContains passes when the reported URL contains Value.
type URLContains struct {
	Value string
}

// RuleKind implements StepRule.
func (URLContains) RuleKind() RuleKind { return RuleURLContains }

// ClickButton passes when the clicked control matches Value exactly.
type ClickButton struct {
	Value string
}

// RuleKind implements StepRule.
func (ClickButton) RuleKind() RuleKind { return RuleClickButton }

// InputValue passes when the named field holds the expected value exactly.
// No normalization is applied.
type InputValue struct {
	Field string
	Value string
}

// RuleKind implements StepRule.
func (InputValue) RuleKind() RuleKind { return RuleInputValue }

// SelectValue passes when the named selector holds the expected value exactly.
type SelectValue struct {
	Field string
	Value string
}

// RuleKind implements StepRule.
func (SelectValue) RuleKind() RuleKind { return RuleSelectValue }

// ResourceCreated passes when the delegated lifecycle mutation succeeds and
// the created resource's type matches.
type ResourceCreated struct {
	ResourceType ResourceType
}

// RuleKind implements StepRule.
func (ResourceCreated) RuleKind() RuleKind { return RuleResourceCreated }

// ConfigChange passes when the named resource attribute changed to the
// expected value as a side effect of the mutation.
type ConfigChange struct {
	Setting string
	Value   string
}

// RuleKind implements StepRule.
func (ConfigChange) RuleKind() RuleKind { return RuleConfigChange }

// FileUpload passes when the payload attaches at least one file descriptor.
type FileUpload struct{}

// RuleKind implements StepRule.
func (FileUpload) RuleKind() RuleKind { return RuleFileUpload }

// Step is one checkable sub-task of a lab. Implies lists step ids that a
// composite action satisfying this step completes as well; it replaces the
// old title-substring heuristic with an explicit declaration.
type Step struct {
	ID          string
	Title       string
	Instruction string
	Rule        StepRule
	Implies     []string
}

// Lab is an ordered, read-only training scenario supplied by the catalog.
type Lab struct {
	ID      string
	Service string
	Title   string
	Steps   []Step
}

// StepByID returns the step with the given id.
func (l Lab) StepByID(id string) (Step, bool) {
	for _, s := range l.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// FirstIncompleteStep returns the id of the first step in lab order not in
// the completed set. When every step is complete it returns the last step's
// id; when the lab has no steps it returns "".
func (l Lab) FirstIncompleteStep(completed []string) string {
	if len(l.Steps) == 0 {
		return ""
	}
	done := make(map[string]struct{}, len(completed))
	for _, id := range completed {
		done[id] = struct{}{}
	}
	for _, s := range l.Steps {
		if _, ok := done[s.ID]; !ok {
			return s.ID
		}
	}
	return l.Steps[len(l.Steps)-1].ID
}
