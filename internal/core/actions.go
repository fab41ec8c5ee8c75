package core

// ActionType names a user-initiated console action. Lifecycle actions map to
// resource mutations; anything else is a pure UI action judged only against
// the step rule.
type ActionType string

// Console actions understood by the lifecycle manager.
const (
	ActionCreateVPC           ActionType = "CREATE_VPC"
	ActionCreateSubnet        ActionType = "CREATE_SUBNET"
	ActionCreateSecurityGroup ActionType = "CREATE_SECURITY_GROUP"
	ActionClickFinalLaunch    ActionType = "CLICK_FINAL_LAUNCH"
	ActionStartInstance       ActionType = "START_INSTANCE"
	ActionStopInstance        ActionType = "STOP_INSTANCE"
	ActionTerminateInstance   ActionType = "TERMINATE_INSTANCE"
	ActionCreateVolume        ActionType = "CREATE_VOLUME"
	ActionAttachVolume        ActionType = "ATTACH_VOLUME"
	ActionDetachVolume        ActionType = "DETACH_VOLUME"
	ActionCreateBucket        ActionType = "CREATE_BUCKET"
	ActionDeleteBucket        ActionType = "DELETE_BUCKET"
	ActionPutBucketObject     ActionType = "PUT_BUCKET_OBJECT"
	ActionCreateIAMUser       ActionType = "CREATE_IAM_USER"
	ActionCreateIAMRole       ActionType = "CREATE_IAM_ROLE"
	ActionCreateIAMPolicy     ActionType = "CREATE_IAM_POLICY"
	ActionCreateIAMGroup      ActionType = "CREATE_IAM_GROUP"
	ActionAddUserToGroup      ActionType = "ADD_USER_TO_GROUP"
	ActionCreateSecret        ActionType = "CREATE_SECRET"
	ActionCreateLogGroup      ActionType = "CREATE_LOG_GROUP"
)

var lifecycleActions = map[ActionType]struct{}{
	ActionCreateVPC:           {},
	ActionCreateSubnet:        {},
	ActionCreateSecurityGroup: {},
	ActionClickFinalLaunch:    {},
	ActionStartInstance:       {},
	ActionStopInstance:        {},
	ActionTerminateInstance:   {},
	ActionCreateVolume:        {},
	ActionAttachVolume:        {},
	ActionDetachVolume:        {},
	ActionCreateBucket:        {},
	ActionDeleteBucket:        {},
	ActionPutBucketObject:     {},
	ActionCreateIAMUser:       {},
	ActionCreateIAMRole:       {},
	ActionCreateIAMPolicy:     {},
	ActionCreateIAMGroup:      {},
	ActionAddUserToGroup:      {},
	ActionCreateSecret:        {},
	ActionCreateLogGroup:      {},
}

// IsLifecycleAction reports whether the action mutates simulated resources.
func IsLifecycleAction(a ActionType) bool {
	_, ok := lifecycleActions[a]
	return ok
}
