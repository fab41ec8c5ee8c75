// Package domain defines the simulated cloud entities, progress records, and
// rule evaluation primitives used by cloudlab.
package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Scope partitions all mutable state. No resource or progress record is
// visible outside its scope.
type Scope struct {
	UserID string `json:"user_id"`
	LabID  string `json:"lab_id"`
}

// Key returns the storage key for the scope.
func (s Scope) Key() string { return s.UserID + "/" + s.LabID }

func (s Scope) String() string { return s.Key() }

// ResourceType identifies the type of simulated resource stored per scope.
type ResourceType string

// Supported resource type identifiers used in Change records and persistence buckets.
const (
	// ResourceEC2Instance identifies a simulated EC2 instance.
	ResourceEC2Instance ResourceType = "EC2_INSTANCE"
	// ResourceEBSVolume identifies a simulated EBS volume.
	ResourceEBSVolume ResourceType = "EBS_VOLUME"
	// ResourceS3Bucket identifies a simulated S3 bucket.
	ResourceS3Bucket ResourceType = "S3_BUCKET"
	// ResourceVPC identifies a simulated VPC.
	ResourceVPC ResourceType = "VPC"
	// ResourceSubnet identifies a simulated subnet.
	ResourceSubnet ResourceType = "SUBNET"
	// ResourceSecurityGroup identifies a simulated security group.
	ResourceSecurityGroup ResourceType = "SECURITY_GROUP"
	// ResourceIAMUser identifies a simulated IAM user.
	ResourceIAMUser ResourceType = "IAM_USER"
	// ResourceIAMRole identifies a simulated IAM role.
	ResourceIAMRole ResourceType = "IAM_ROLE"
	// ResourceIAMPolicy identifies a simulated IAM policy.
	ResourceIAMPolicy ResourceType = "IAM_POLICY"
	// ResourceIAMGroup identifies a simulated IAM group.
	ResourceIAMGroup ResourceType = "IAM_GROUP"
	// ResourceSecret identifies a simulated Secrets Manager secret.
	ResourceSecret ResourceType = "SECRETS_MANAGER_SECRET"
	// ResourceLogGroup identifies a simulated CloudWatch log group.
	ResourceLogGroup ResourceType = "CLOUDWATCH_LOG_GROUP"
)

// ResourceTypes lists every supported type in stable order.
func ResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceEC2Instance, ResourceEBSVolume, ResourceS3Bucket,
		ResourceVPC, ResourceSubnet, ResourceSecurityGroup,
		ResourceIAMUser, ResourceIAMRole, ResourceIAMPolicy, ResourceIAMGroup,
		ResourceSecret, ResourceLogGroup,
	}
}

// KnownResourceType reports whether t is part of the closed enum.
func KnownResourceType(t ResourceType) bool {
	for _, rt := range ResourceTypes() {
		if rt == t {
			return true
		}
	}
	return false
}

// InstanceStatus enumerates the EC2 instance state machine.
type InstanceStatus string

// Canonical instance statuses. Terminated is terminal.
const (
	InstancePending     InstanceStatus = "pending"
	InstanceRunning     InstanceStatus = "running"
	InstanceStopping    InstanceStatus = "stopping"
	InstanceStopped     InstanceStatus = "stopped"
	InstanceTerminating InstanceStatus = "terminating"
	InstanceTerminated  InstanceStatus = "terminated"
)

// VolumeStatus enumerates the EBS volume state machine.
type VolumeStatus string

// Canonical volume statuses. in-use is entered only through an attach action.
const (
	VolumeCreating  VolumeStatus = "creating"
	VolumeAvailable VolumeStatus = "available"
	VolumeInUse     VolumeStatus = "in-use"
)

// ResourceState is the type-specific attribute bag carried by a Resource.
// Cross-references are stored by the referenced resource's natural key, never
// by internal pointer.
type ResourceState interface {
	Kind() ResourceType
	NaturalKey() string
	CloneState() ResourceState
}

// VolumeAttachment records, on the volume side, which instance a volume is
// attached to.
type VolumeAttachment struct {
	InstanceID string `json:"instance_id"`
	Device     string `json:"device"`
}

// VolumeMount is the instance-side record of an attached volume. Each side of
// an attachment names the other resource by its natural key.
type VolumeMount struct {
	VolumeID string `json:"volume_id"`
	Device   string `json:"device"`
}

// InstanceState holds simulated EC2 instance attributes.
type InstanceState struct {
	InstanceID     string             `json:"instance_id"`
	Status         InstanceStatus     `json:"status"`
	AMI            string             `json:"ami,omitempty"`
	InstanceType   string             `json:"instance_type,omitempty"`
	VPCID          string             `json:"vpc_id,omitempty"`
	SubnetID       string             `json:"subnet_id,omitempty"`
	SecurityGroups []string           `json:"security_groups,omitempty"`
	Storage        []VolumeMount      `json:"storage,omitempty"`
}

func (s InstanceState) Kind() ResourceType { return ResourceEC2Instance }
func (s InstanceState) NaturalKey() string { return s.InstanceID }
func (s InstanceState) CloneState() ResourceState {
	cp := s
	cp.SecurityGroups = append([]string(nil), s.SecurityGroups...)
	cp.Storage = append([]VolumeMount(nil), s.Storage...)
	return cp
}

// VolumeState holds simulated EBS volume attributes.
type VolumeState struct {
	VolumeID         string            `json:"volume_id"`
	Status           VolumeStatus      `json:"status"`
	SizeGiB          int               `json:"size_gib"`
	AvailabilityZone string            `json:"availability_zone,omitempty"`
	Attachment       *VolumeAttachment `json:"attachment,omitempty"`
}

func (s VolumeState) Kind() ResourceType { return ResourceEBSVolume }
func (s VolumeState) NaturalKey() string { return s.VolumeID }
func (s VolumeState) CloneState() ResourceState {
	cp := s
	if s.Attachment != nil {
		att := *s.Attachment
		cp.Attachment = &att
	}
	return cp
}

// BucketObject describes a stored object inside a simulated bucket.
type BucketObject struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
}

// BucketState holds simulated S3 bucket attributes.
type BucketState struct {
	BucketName string         `json:"bucket_name"`
	Region     string         `json:"region,omitempty"`
	Versioning bool           `json:"versioning"`
	Objects    []BucketObject `json:"objects,omitempty"`
}

func (s BucketState) Kind() ResourceType { return ResourceS3Bucket }
func (s BucketState) NaturalKey() string { return s.BucketName }
func (s BucketState) CloneState() ResourceState {
	cp := s
	cp.Objects = append([]BucketObject(nil), s.Objects...)
	return cp
}

// VPCState holds simulated VPC attributes.
type VPCState struct {
	VPCID     string `json:"vpc_id"`
	CIDRBlock string `json:"cidr_block"`
	Name      string `json:"name,omitempty"`
}

func (s VPCState) Kind() ResourceType        { return ResourceVPC }
func (s VPCState) NaturalKey() string        { return s.VPCID }
func (s VPCState) CloneState() ResourceState { return s }

// SubnetState holds simulated subnet attributes. VPCID references the owning
// VPC by natural key.
type SubnetState struct {
	SubnetID         string `json:"subnet_id"`
	VPCID            string `json:"vpc_id"`
	CIDRBlock        string `json:"cidr_block"`
	AvailabilityZone string `json:"availability_zone,omitempty"`
}

func (s SubnetState) Kind() ResourceType        { return ResourceSubnet }
func (s SubnetState) NaturalKey() string        { return s.SubnetID }
func (s SubnetState) CloneState() ResourceState { return s }

// SecurityGroupRule describes one ingress rule on a security group.
type SecurityGroupRule struct {
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
	Source   string `json:"source"`
}

// SecurityGroupState holds simulated security group attributes.
type SecurityGroupState struct {
	GroupID     string              `json:"group_id"`
	GroupName   string              `json:"group_name,omitempty"`
	VPCID       string              `json:"vpc_id"`
	Description string              `json:"description,omitempty"`
	Ingress     []SecurityGroupRule `json:"ingress,omitempty"`
}

func (s SecurityGroupState) Kind() ResourceType { return ResourceSecurityGroup }
func (s SecurityGroupState) NaturalKey() string { return s.GroupID }
func (s SecurityGroupState) CloneState() ResourceState {
	cp := s
	cp.Ingress = append([]SecurityGroupRule(nil), s.Ingress...)
	return cp
}

// IAMUserState holds simulated IAM user attributes.
type IAMUserState struct {
	UserName string   `json:"user_name"`
	Groups   []string `json:"groups,omitempty"`
}

func (s IAMUserState) Kind() ResourceType { return ResourceIAMUser }
func (s IAMUserState) NaturalKey() string { return s.UserName }
func (s IAMUserState) CloneState() ResourceState {
	cp := s
	cp.Groups = append([]string(nil), s.Groups...)
	return cp
}

// IAMRoleState holds simulated IAM role attributes.
type IAMRoleState struct {
	RoleName    string `json:"role_name"`
	TrustPolicy string `json:"trust_policy,omitempty"`
}

func (s IAMRoleState) Kind() ResourceType        { return ResourceIAMRole }
func (s IAMRoleState) NaturalKey() string        { return s.RoleName }
func (s IAMRoleState) CloneState() ResourceState { return s }

// IAMPolicyState holds simulated IAM policy attributes.
type IAMPolicyState struct {
	PolicyName string `json:"policy_name"`
	Document   string `json:"document,omitempty"`
}

func (s IAMPolicyState) Kind() ResourceType        { return ResourceIAMPolicy }
func (s IAMPolicyState) NaturalKey() string        { return s.PolicyName }
func (s IAMPolicyState) CloneState() ResourceState { return s }

// IAMGroupState holds simulated IAM group attributes. Members reference IAM
// users by natural key.
type IAMGroupState struct {
	GroupName string   `json:"group_name"`
	Members   []string `json:"members,omitempty"`
}

func (s IAMGroupState) Kind() ResourceType { return ResourceIAMGroup }
func (s IAMGroupState) NaturalKey() string { return s.GroupName }
func (s IAMGroupState) CloneState() ResourceState {
	cp := s
	cp.Members = append([]string(nil), s.Members...)
	return cp
}

// SecretState holds simulated Secrets Manager secret metadata. The secret
// value itself is never stored.
type SecretState struct {
	SecretName  string `json:"secret_name"`
	Description string `json:"description,omitempty"`
}

func (s SecretState) Kind() ResourceType        { return ResourceSecret }
func (s SecretState) NaturalKey() string        { return s.SecretName }
func (s SecretState) CloneState() ResourceState { return s }

// LogGroupState holds simulated CloudWatch log group attributes.
type LogGroupState struct {
	LogGroupName  string `json:"log_group_name"`
	RetentionDays int    `json:"retention_days,omitempty"`
}

func (s LogGroupState) Kind() ResourceType        { return ResourceLogGroup }
func (s LogGroupState) NaturalKey() string        { return s.LogGroupName }
func (s LogGroupState) CloneState() ResourceState { return s }

// Resource is a simulated cloud object stored within a scope. The natural key
// (State.NaturalKey) is unique per scope and resource type.
type Resource struct {
	ID        string        `json:"id"`
	Scope     Scope         `json:"scope"`
	Type      ResourceType  `json:"type"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	State     ResourceState `json:"state"`
}

// Key returns the resource's natural key.
func (r Resource) Key() string {
	if r.State == nil {
		return ""
	}
	return r.State.NaturalKey()
}

// Clone returns a deep copy of the resource.
func (r Resource) Clone() Resource {
	cp := r
	if r.State != nil {
		cp.State = r.State.CloneState()
	}
	return cp
}

type resourceAlias Resource

// MarshalJSON emits the state bag as raw JSON alongside the discriminating type.
func (r Resource) MarshalJSON() ([]byte, error) {
	type payload struct {
		resourceAlias
		State ResourceState `json:"state"`
	}
	return json.Marshal(payload{resourceAlias: resourceAlias(r), State: r.State})
}

// UnmarshalJSON hydrates the concrete state struct selected by the type field.
func (r *Resource) UnmarshalJSON(data []byte) error {
	type payload struct {
		resourceAlias
		State json.RawMessage `json:"state"`
	}
	var aux payload
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Resource(aux.resourceAlias)
	state, err := decodeState(aux.Type, aux.State)
	if err != nil {
		return err
	}
	r.State = state
	return nil
}

func decodeState(t ResourceType, raw json.RawMessage) (ResourceState, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	unmarshal := func(dst ResourceState) (ResourceState, error) {
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, err
		}
		return dst, nil
	}
	switch t {
	case ResourceEC2Instance:
		s, err := unmarshal(&InstanceState{})
		if err != nil {
			return nil, err
		}
		return *s.(*InstanceState), nil
	case ResourceEBSVolume:
		s, err := unmarshal(&VolumeState{})
		if err != nil {
			return nil, err
		}
		return *s.(*VolumeState), nil
	case ResourceS3Bucket:
		s, err := unmarshal(&BucketState{})
		if err != nil {
			return nil, err
		}
		return *s.(*BucketState), nil
	case ResourceVPC:
		s, err := unmarshal(&VPCState{})
		if err != nil {
			return nil, err
		}
		return *s.(*VPCState), nil
	case ResourceSubnet:
		s, err := unmarshal(&SubnetState{})
		if err != nil {
			return nil, err
		}
		return *s.(*SubnetState), nil
	case ResourceSecurityGroup:
		s, err := unmarshal(&SecurityGroupState{})
		if err != nil {
			return nil, err
		}
		return *s.(*SecurityGroupState), nil
	case ResourceIAMUser:
		s, err := unmarshal(&IAMUserState{})
		if err != nil {
			return nil, err
		}
		return *s.(*IAMUserState), nil
	case ResourceIAMRole:
		s, err := unmarshal(&IAMRoleState{})
		if err != nil {
			return nil, err
		}
		return *s.(*IAMRoleState), nil
	case ResourceIAMPolicy:
		s, err := unmarshal(&IAMPolicyState{})
		if err != nil {
			return nil, err
		}
		return *s.(*IAMPolicyState), nil
	case ResourceIAMGroup:
		s, err := unmarshal(&IAMGroupState{})
		if err != nil {
			return nil, err
		}
		return *s.(*IAMGroupState), nil
	case ResourceSecret:
		s, err := unmarshal(&SecretState{})
		if err != nil {
			return nil, err
		}
		return *s.(*SecretState), nil
	case ResourceLogGroup:
		s, err := unmarshal(&LogGroupState{})
		if err != nil {
			return nil, err
		}
		return *s.(*LogGroupState), nil
	default:
		return nil, fmt.Errorf("unknown resource type %q", t)
	}
}

// Progress tracks a scope's position in its lab.
type Progress struct {
	Scope          Scope      `json:"scope"`
	CurrentStepID  string     `json:"current_step_id,omitempty"`
	CompletedSteps []string   `json:"completed_steps"`
	StartedAt      time.Time  `json:"started_at"`
	IsSubmitted    bool       `json:"is_submitted"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	Score          float64    `json:"score"`
}

// Clone returns a deep copy of the progress record.
func (p Progress) Clone() Progress {
	cp := p
	cp.CompletedSteps = append([]string(nil), p.CompletedSteps...)
	if p.SubmittedAt != nil {
		at := *p.SubmittedAt
		cp.SubmittedAt = &at
	}
	return cp
}

// HasCompleted reports whether the step is already in the completed set.
func (p Progress) HasCompleted(stepID string) bool {
	for _, id := range p.CompletedSteps {
		if id == stepID {
			return true
		}
	}
	return false
}

// CompleteStep adds a step to the completed set. Re-adding an already-present
// id is a no-op; the set is kept sorted so serialized progress is stable.
func (p *Progress) CompleteStep(stepID string) bool {
	if p.HasCompleted(stepID) {
		return false
	}
	p.CompletedSteps = append(p.CompletedSteps, stepID)
	sort.Strings(p.CompletedSteps)
	return true
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity ResourceType
	Action Action
	Scope  Scope
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   ResourceType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
