package core

import (
	"context"
	"fmt"

	"cloudlab/pkg/domain"
)

// LifecycleTransitionRule blocks illegal state values and transitions out of
// terminal states on stateful resources.
func LifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

type lifecycleMachine struct {
	entity    domain.ResourceType
	label     string
	terminal  map[string]struct{}
	valid     map[string]struct{}
	extractor func(payload any) (id string, state string, ok bool)
}

var lifecycleMachines = map[domain.ResourceType]lifecycleMachine{
	domain.ResourceEC2Instance: {
		entity:   domain.ResourceEC2Instance,
		label:    "instance",
		terminal: toSet(string(domain.InstanceTerminated)),
		valid: toSet(
			string(domain.InstancePending),
			string(domain.InstanceRunning),
			string(domain.InstanceStopping),
			string(domain.InstanceStopped),
			string(domain.InstanceTerminating),
			string(domain.InstanceTerminated),
		),
		extractor: func(payload any) (string, string, bool) {
			state, ok := resourceState[domain.InstanceState](payload)
			if !ok {
				return "", "", false
			}
			return state.InstanceID, string(state.Status), true
		},
	},
	domain.ResourceEBSVolume: {
		entity:   domain.ResourceEBSVolume,
		label:    "volume",
		terminal: map[string]struct{}{},
		valid: toSet(
			string(domain.VolumeCreating),
			string(domain.VolumeAvailable),
			string(domain.VolumeInUse),
		),
		extractor: func(payload any) (string, string, bool) {
			state, ok := resourceState[domain.VolumeState](payload)
			if !ok {
				return "", "", false
			}
			return state.VolumeID, string(state.Status), true
		},
	},
}

func resourceState[T domain.ResourceState](payload any) (T, bool) {
	var zero T
	res, ok := payload.(domain.Resource)
	if !ok {
		return zero, false
	}
	state, ok := res.State.(T)
	if !ok {
		return zero, false
	}
	return state, true
}

func (lifecycleTransitionRule) Name() string { return "lifecycle_transition" }

func (lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		machine, ok := lifecycleMachines[change.Entity]
		if !ok {
			continue
		}

		afterID, newState, ok := machine.extractor(change.After)
		if ok {
			if _, valid := machine.valid[newState]; !valid {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "lifecycle_transition",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("%s %s is set to invalid state %s", machine.label, afterID, newState),
					Entity:   machine.entity,
					EntityID: afterID,
				})
				continue
			}
		}

		beforeID, beforeState, ok := machine.extractor(change.Before)
		if !ok {
			continue
		}
		if _, ok := machine.terminal[beforeState]; !ok {
			continue
		}
		afterID, afterState, ok := machine.extractor(change.After)
		if !ok {
			continue
		}
		if afterState != beforeState {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "lifecycle_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cannot move %s %s from terminal state %s to %s", machine.label, beforeID, beforeState, afterState),
				Entity:   machine.entity,
				EntityID: afterID,
			})
		}
	}
	return res, nil
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
