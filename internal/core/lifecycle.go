package core

import (
	"fmt"

	"cloudlab/pkg/domain"
)

// ApplyAction translates a high-level console action into repository
// mutations within the supplied transaction, enforcing per-type preconditions
// and state-machine legality. Multi-resource mutations (attach, detach, group
// membership) happen inside the one transaction, so either every field
// updates or none do.
//
// Re-invoking an already-satisfied transition (starting a running instance,
// detaching an available volume) is an idempotent no-op success.
func ApplyAction(tx domain.Transaction, action ActionType, p domain.Payload) (domain.Resource, error) {
	switch action {
	case ActionCreateVPC:
		return applyCreateVPC(tx, p)
	case ActionCreateSubnet:
		return applyCreateSubnet(tx, p)
	case ActionCreateSecurityGroup:
		return applyCreateSecurityGroup(tx, p)
	case ActionClickFinalLaunch:
		return applyLaunchInstance(tx, p)
	case ActionStartInstance:
		return applyInstanceTransition(tx, p, domain.InstanceRunning)
	case ActionStopInstance:
		return applyInstanceTransition(tx, p, domain.InstanceStopped)
	case ActionTerminateInstance:
		return applyInstanceTransition(tx, p, domain.InstanceTerminated)
	case ActionCreateVolume:
		return applyCreateVolume(tx, p)
	case ActionAttachVolume:
		return applyAttachVolume(tx, p)
	case ActionDetachVolume:
		return applyDetachVolume(tx, p)
	case ActionCreateBucket:
		return applyCreateBucket(tx, p)
	case ActionDeleteBucket:
		return applyDeleteBucket(tx, p)
	case ActionPutBucketObject:
		return applyPutBucketObject(tx, p)
	case ActionCreateIAMUser:
		return createNamed(tx, p, "userName", func(name string) domain.ResourceState {
			return domain.IAMUserState{UserName: name}
		})
	case ActionCreateIAMRole:
		return createNamed(tx, p, "roleName", func(name string) domain.ResourceState {
			return domain.IAMRoleState{RoleName: name, TrustPolicy: p.String("trustPolicy")}
		})
	case ActionCreateIAMPolicy:
		return createNamed(tx, p, "policyName", func(name string) domain.ResourceState {
			return domain.IAMPolicyState{PolicyName: name, Document: p.String("document")}
		})
	case ActionCreateIAMGroup:
		return createNamed(tx, p, "groupName", func(name string) domain.ResourceState {
			return domain.IAMGroupState{GroupName: name}
		})
	case ActionAddUserToGroup:
		return applyAddUserToGroup(tx, p)
	case ActionCreateSecret:
		return createNamed(tx, p, "secretName", func(name string) domain.ResourceState {
			return domain.SecretState{SecretName: name, Description: p.String("description")}
		})
	case ActionCreateLogGroup:
		return createNamed(tx, p, "logGroupName", func(name string) domain.ResourceState {
			return domain.LogGroupState{LogGroupName: name, RetentionDays: p.Int("retentionDays")}
		})
	default:
		return domain.Resource{}, fmt.Errorf("unknown lifecycle action %q", action)
	}
}

// createNamed creates a resource whose natural key arrives in the payload.
// A missing key fails the action rather than minting a blank-keyed resource.
func createNamed(tx domain.Transaction, p domain.Payload, field string, build func(string) domain.ResourceState) (domain.Resource, error) {
	name := p.String(field)
	if name == "" {
		return domain.Resource{}, fmt.Errorf("payload field %q is required", field)
	}
	return tx.CreateResource(build(name))
}

func applyCreateVPC(tx domain.Transaction, p domain.Payload) (domain.Resource, error) {
	cidr := p.String("cidrBlock")
	if cidr == "" {
		cidr = "10.0.0.0/16"
	}
	return tx.CreateResource(domain.VPCState{
		VPCID:     newVPCID(),
		CIDRBlock: cidr,
		Name:      p.String("name"),
	})
}

func applyCreateSubnet(tx domain.Transaction, p domain.Payload) (domain.Resource, error) {
	vpcID := p.String("vpcId")
	if _, ok := tx.FindResource(domain.ResourceVPC, vpcID); !ok {
		return domain.Resource{}, domain.ReferentialIntegrityError{
			Type: domain.ResourceSubnet, RefType: domain.ResourceVPC, RefKey: vpcID,
		}
	}
	return tx.CreateResource(domain.SubnetState{
		SubnetID:         newSubnetID(),
		VPCID:            vpcID,
		CIDRBlock:        p.String("cidrBlock"),
		AvailabilityZone: p.String("az"),
	})
}

func applyCreateSecurityGroup(tx domain.Transaction, p domain.Payload) (domain.Resource, error) {
	vpcID := p.String("vpcId")
	if _, ok := tx.FindResource(domain.ResourceVPC, vpcID); !ok {
		return domain.Resource{}, domain.ReferentialIntegrityError{
			Type: domain.ResourceSecurityGroup, RefType: domain.ResourceVPC, RefKey: vpcID,
		}
	}
	state := domain.SecurityGroupState{
		GroupID:     newGroupID(),
		GroupName:   p.String("groupName"),
		VPCID:       vpcID,
		Description: p.String("description"),
	}
	if proto := p.String("protocol"); proto != "" {
		state.Ingress = append(state.Ingress, domain.SecurityGroupRule{
			Protocol: proto,
			Port:     p.Int("port"),
			Source:   p.String("source"),
		})
	}
	return tx.CreateResource(state)
}

func applyLaunchInstance(tx domain.Transaction, p domain.Payload) (domain.Resource, error) {
	vpcID := p.String("vpcId")
	if vpcID != "" {
		if _, ok := tx.FindResource(domain.ResourceVPC, vpcID); !ok {
			return domain.Resource{}, domain.ReferentialIntegrityError{
				Type: domain.ResourceEC2Instance, RefType: domain.ResourceVPC, RefKey: vpcID,
			}
		}
	}
	subnetID := p.String("subnetId")
	if subnetID != "" {
		if _, ok := tx.FindResource(domain.ResourceSubnet, subnetID); !ok {
			return domain.Resource{}, domain.ReferentialIntegrityError{
				Type: domain.ResourceEC2Instance, RefType: domain.ResourceSubnet, RefKey: subnetID,
			}
		}
	}
	groups := p.Strings("securityGroups")
	for _, g := range groups {
		if _, ok := tx.FindResource(domain.ResourceSecurityGroup, g); !ok {
			return domain.Resource{}, domain.ReferentialIntegrityError{
				Type: domain.ResourceEC2Instance, RefType: domain.ResourceSecurityGroup, RefKey: g,
			}
		}
	}
	created, err := tx.CreateResource(domain.InstanceState{
		InstanceID:     newInstanceID(),
		Status:         domain.InstancePending,
		AMI:            p.String("ami"),
		InstanceType:   p.String("instanceType"),
		VPCID:          vpcID,
		SubnetID:       subnetID,
		SecurityGroups: groups,
	})
	if err != nil {
		return domain.Resource{}, err
	}
	// The simulated boot completes within the launch action; the client's
	// poll is a plain read and never drives server-side transitions.
	return tx.UpdateResource(domain.ResourceEC2Instance, created.Key(), func(r *domain.Resource) error {
		state := r.State.(domain.InstanceState)
		state.Status = domain.InstanceRunning
		r.State = state
		return nil
	})
}

// instanceTransitions maps a desired terminal-of-action status to the set of
// statuses the instance may currently hold.
var instanceTransitions = map[domain.InstanceStatus]map[domain.InstanceStatus]struct{}{
	domain.InstanceRunning:    {domain.InstancePending: {}, domain.InstanceStopped: {}},
	domain.InstanceStopped:    {domain.InstanceRunning: {}, domain.InstanceStopping: {}},
	domain.InstanceTerminated: {domain.InstanceRunning: {}, domain.InstanceStopped: {}, domain.InstanceTerminating: {}},
}

func applyInstanceTransition(tx domain.Transaction, p domain.Payload, target domain.InstanceStatus) (domain.Resource, error) {
	instanceID := p.String("instanceId")
	current, ok := tx.FindResource(domain.ResourceEC2Instance, instanceID)
	if !ok {
		return domain.Resource{}, domain.NotFoundError{Kind: "resource", ID: string(domain.ResourceEC2Instance) + "/" + instanceID}
	}
	status := current.State.(domain.InstanceState).Status
	if status == target {
		return current, nil
	}
	if _, legal := instanceTransitions[target][status]; !legal {
		return domain.Resource{}, domain.ResourceStateError{
			Type: domain.ResourceEC2Instance, Key: instanceID,
			From: string(status), To: string(target),
		}
	}
	return tx.UpdateResource(domain.ResourceEC2Instance, instanceID, func(r *domain.Resource) error {
		state := r.State.(domain.InstanceState)
		state.Status = target
		r.State = state
		return nil
	})
}

func applyCreateVolume(tx domain.Transaction, p domain.Payload) (domain.Resource, error) {
	size := p.Int("size")
	if size <= 0 {
		size = 8
	}
	// Volumes are usable as soon as creation commits, mirroring the launch
	// behavior above.
	return tx.CreateResource(domain.VolumeState{
		VolumeID:         newVolumeID(),
		Status:           domain.VolumeAvailable,
		SizeGiB:          size,
		AvailabilityZone: p.String("az"),
	})
}

func applyAttachVolume(tx domain.Transaction, p domain.Payload) (domain.Resource, error) {
	volumeID := p.String("volumeId")
	volume, ok := tx.FindResource(domain.ResourceEBSVolume, volumeID)
	if !ok {
		return domain.Resource{}, domain.NotFoundError{Kind: "resource", ID: string(domain.ResourceEBSVolume) + "/" + volumeID}
	}
	instanceID := p.String("instanceId")
	instance, ok := tx.FindResource(domain.ResourceEC2Instance, instanceID)
	if !ok {
		return domain.Resource{}, domain.ReferentialIntegrityError{
			Type: domain.ResourceEBSVolume, RefType: domain.ResourceEC2Instance, RefKey: instanceID,
		}
	}
	volState := volume.State.(domain.VolumeState)
	if volState.Status != domain.VolumeAvailable {
		return domain.Resource{}, domain.ResourceStateError{
			Type: domain.ResourceEBSVolume, Key: volumeID,
			From: string(volState.Status), To: string(domain.VolumeInUse),
			Reason: "volume must be available to attach",
		}
	}
	instStatus := instance.State.(domain.InstanceState).Status
	if instStatus != domain.InstanceRunning {
		return domain.Resource{}, domain.ResourceStateError{
			Type: domain.ResourceEBSVolume, Key: volumeID,
			From: string(volState.Status), To: string(domain.VolumeInUse),
			Reason: fmt.Sprintf("target instance %s is %s, not running", instanceID, instStatus),
		}
	}
	device := p.String("device")
	if device == "" {
		device = "/dev/sdf"
	}
	attachment := domain.VolumeAttachment{InstanceID: instanceID, Device: device}

	updated, err := tx.UpdateResource(domain.ResourceEBSVolume, volumeID, func(r *domain.Resource) error {
		state := r.State.(domain.VolumeState)
		state.Status = domain.VolumeInUse
		state.Attachment = &attachment
		r.State = state
		return nil
	})
	if err != nil {
		return domain.Resource{}, err
	}
	if _, err := tx.UpdateResource(domain.ResourceEC2Instance, instanceID, func(r *domain.Resource) error {
		state := r.State.(domain.InstanceState)
		state.Storage = append(state.Storage, domain.VolumeMount{VolumeID: volumeID, Device: device})
		r.State = state
		return nil
	}); err != nil {
		return domain.Resource{}, err
	}
	return updated, nil
}

func applyDetachVolume(tx domain.Transaction, p domain.Payload) (domain.Resource, error) {
	volumeID := p.String("volumeId")
	volume, ok := tx.FindResource(domain.ResourceEBSVolume, volumeID)
	if !ok {
		return domain.Resource{}, domain.NotFoundError{Kind: "resource", ID: string(domain.ResourceEBSVolume) + "/" + volumeID}
	}
	volState := volume.State.(domain.VolumeState)
	if volState.Status == domain.VolumeAvailable {
		return volume, nil
	}
	if volState.Status != domain.VolumeInUse {
		return domain.Resource{}, domain.ResourceStateError{
			Type: domain.ResourceEBSVolume, Key: volumeID,
			From: string(volState.Status), To: string(domain.VolumeAvailable),
		}
	}
	attachedTo := ""
	if volState.Attachment != nil {
		attachedTo = volState.Attachment.InstanceID
	}
	updated, err := tx.UpdateResource(domain.ResourceEBSVolume, volumeID, func(r *domain.Resource) error {
		state := r.State.(domain.VolumeState)
		state.Status = domain.VolumeAvailable
		state.Attachment = nil
		r.State = state
		return nil
	})
	if err != nil {
		return domain.Resource{}, err
	}
	if attachedTo != "" {
		if _, ok := tx.FindResource(domain.ResourceEC2Instance, attachedTo); ok {
			if _, err := tx.UpdateResource(domain.ResourceEC2Instance, attachedTo, func(r *domain.Resource) error {
				state := r.State.(domain.InstanceState)
				kept := state.Storage[:0]
				for _, att := range state.Storage {
					if att.VolumeID != volumeID {
						kept = append(kept, att)
					}
				}
				state.Storage = kept
				r.State = state
				return nil
			}); err != nil {
				return domain.Resource{}, err
			}
		}
	}
	return updated, nil
}

func applyCreateBucket(tx domain.Transaction, p domain.Payload) (domain.Resource, error) {
	return createNamed(tx, p, "bucketName", func(name string) domain.ResourceState {
		return domain.BucketState{
			BucketName: name,
			Region:     p.String("region"),
			Versioning: p.String("versioning") == "enabled",
		}
	})
}

func applyDeleteBucket(tx domain.Transaction, p domain.Payload) (domain.Resource, error) {
	name := p.String("bucketName")
	bucket, ok := tx.FindResource(domain.ResourceS3Bucket, name)
	if !ok {
		return domain.Resource{}, domain.NotFoundError{Kind: "resource", ID: string(domain.ResourceS3Bucket) + "/" + name}
	}
	if objs := bucket.State.(domain.BucketState).Objects; len(objs) > 0 {
		return domain.Resource{}, domain.ResourceStateError{
			Type: domain.ResourceS3Bucket, Key: name,
			From: "non-empty", To: "deleted",
			Reason: fmt.Sprintf("bucket holds %d objects", len(objs)),
		}
	}
	if err := tx.DeleteResource(domain.ResourceS3Bucket, name); err != nil {
		return domain.Resource{}, err
	}
	return bucket, nil
}

func applyPutBucketObject(tx domain.Transaction, p domain.Payload) (domain.Resource, error) {
	name := p.String("bucketName")
	if _, ok := tx.FindResource(domain.ResourceS3Bucket, name); !ok {
		return domain.Resource{}, domain.NotFoundError{Kind: "resource", ID: string(domain.ResourceS3Bucket) + "/" + name}
	}
	obj := domain.BucketObject{Key: p.String("key"), SizeBytes: int64(p.Int("size"))}
	return tx.UpdateResource(domain.ResourceS3Bucket, name, func(r *domain.Resource) error {
		state := r.State.(domain.BucketState)
		replaced := false
		for i, existing := range state.Objects {
			if existing.Key == obj.Key {
				state.Objects[i] = obj
				replaced = true
				break
			}
		}
		if !replaced {
			state.Objects = append(state.Objects, obj)
		}
		r.State = state
		return nil
	})
}

func applyAddUserToGroup(tx domain.Transaction, p domain.Payload) (domain.Resource, error) {
	groupName := p.String("groupName")
	if _, ok := tx.FindResource(domain.ResourceIAMGroup, groupName); !ok {
		return domain.Resource{}, domain.ReferentialIntegrityError{
			Type: domain.ResourceIAMGroup, RefType: domain.ResourceIAMGroup, RefKey: groupName,
		}
	}
	userName := p.String("userName")
	if _, ok := tx.FindResource(domain.ResourceIAMUser, userName); !ok {
		return domain.Resource{}, domain.ReferentialIntegrityError{
			Type: domain.ResourceIAMGroup, RefType: domain.ResourceIAMUser, RefKey: userName,
		}
	}
	updated, err := tx.UpdateResource(domain.ResourceIAMGroup, groupName, func(r *domain.Resource) error {
		state := r.State.(domain.IAMGroupState)
		for _, m := range state.Members {
			if m == userName {
				return nil
			}
		}
		state.Members = append(state.Members, userName)
		r.State = state
		return nil
	})
	if err != nil {
		return domain.Resource{}, err
	}
	if _, err := tx.UpdateResource(domain.ResourceIAMUser, userName, func(r *domain.Resource) error {
		state := r.State.(domain.IAMUserState)
		for _, g := range state.Groups {
			if g == groupName {
				return nil
			}
		}
		state.Groups = append(state.Groups, groupName)
		r.State = state
		return nil
	}); err != nil {
		return domain.Resource{}, err
	}
	return updated, nil
}
