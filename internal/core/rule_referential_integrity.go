package core

import (
	"context"
	"fmt"

	"cloudlab/pkg/domain"
)

// ReferentialIntegrityRule verifies that every cross-reference written during
// the transaction points at a resource that exists in the same scope.
// References are natural keys, so each check is an explicit lookup.
func ReferentialIntegrityRule() domain.Rule {
	return referentialIntegrityRule{}
}

type referentialIntegrityRule struct{}

func (referentialIntegrityRule) Name() string { return "referential_integrity" }

func (referentialIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	report := func(entity domain.ResourceType, entityID string, refType domain.ResourceType, refKey string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "referential_integrity",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s %s references missing %s %s", entity, entityID, refType, refKey),
			Entity:   entity,
			EntityID: entityID,
		})
	}
	require := func(entity domain.ResourceType, entityID string, refType domain.ResourceType, refKey string) {
		if refKey == "" {
			return
		}
		if _, ok := view.FindResource(refType, refKey); !ok {
			report(entity, entityID, refType, refKey)
		}
	}

	for _, change := range changes {
		if change.Action == domain.ActionDelete {
			continue
		}
		after, ok := change.After.(domain.Resource)
		if !ok || after.State == nil {
			continue
		}
		switch state := after.State.(type) {
		case domain.SubnetState:
			require(change.Entity, state.SubnetID, domain.ResourceVPC, state.VPCID)
		case domain.SecurityGroupState:
			require(change.Entity, state.GroupID, domain.ResourceVPC, state.VPCID)
		case domain.InstanceState:
			require(change.Entity, state.InstanceID, domain.ResourceVPC, state.VPCID)
			require(change.Entity, state.InstanceID, domain.ResourceSubnet, state.SubnetID)
			for _, g := range state.SecurityGroups {
				require(change.Entity, state.InstanceID, domain.ResourceSecurityGroup, g)
			}
		case domain.VolumeState:
			if state.Attachment != nil {
				require(change.Entity, state.VolumeID, domain.ResourceEC2Instance, state.Attachment.InstanceID)
			}
		case domain.IAMGroupState:
			for _, m := range state.Members {
				require(change.Entity, state.GroupName, domain.ResourceIAMUser, m)
			}
		}
	}
	return res, nil
}
