package api

import (
	"github.com/clumio-code/bulk-restore/internal/asset"
)

// Environment is one connected (account, region) pair known to the provider
type Environment struct {
	ID      string `json:"id"`
	Account string `json:"account_native_id"`
	Region  string `json:"aws_region"`
}

// Task statuses reported by the provider
const (
	TaskQueued     = "queued"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
	TaskAborted    = "aborted"
)

// Task is the provider's view of one running restore
type Task struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Terminal reports whether the task status is final
func (t Task) Terminal() bool {
	switch t.Status {
	case TaskCompleted, TaskFailed, TaskAborted:
		return true
	}
	return false
}

// Query is one paged discovery query against the backup catalog
type Query struct {
	Type   asset.Type
	Filter string // provider filter expression, JSON
	Sort   string // e.g. "-start_timestamp"
	Limit  int
}

// BackupPage is one page of discovery results
type BackupPage struct {
	Items      []asset.Discovered
	TotalPages int
	TotalCount int
}

// RestoreRequest is one fully-resolved restore-start request. Exactly one
// target block is non-nil, matching Type. Requests serialize losslessly so
// a written report can be replayed without re-running discovery.
type RestoreRequest struct {
	Type     asset.Type `json:"resource_type"`
	BackupID string     `json:"backup_id"`
	RunToken string     `json:"run_token,omitempty"`

	EBS             *EBSRestoreTarget             `json:"ebs,omitempty"`
	EC2             *EC2RestoreTarget             `json:"ec2,omitempty"`
	RDS             *RDSRestoreTarget             `json:"rds,omitempty"`
	DynamoDB        *DynamoDBRestoreTarget        `json:"dynamodb,omitempty"`
	ProtectionGroup *ProtectionGroupRestoreTarget `json:"protection_group,omitempty"`
}

// EBSRestoreTarget is the wire-level EBS restore target
type EBSRestoreTarget struct {
	EnvironmentID string      `json:"environment_id"`
	AZ            string      `json:"aws_az"`
	VolumeType    string      `json:"type,omitempty"`
	IOPS          int64       `json:"iops,omitempty"`
	KMSKeyID      string      `json:"kms_key_native_id,omitempty"`
	Tags          []asset.Tag `json:"tags,omitempty"`
}

// EC2RestoreTarget is the wire-level EC2 instance restore target
type EC2RestoreTarget struct {
	EnvironmentID     string               `json:"environment_id"`
	AZ                string               `json:"aws_az"`
	AMIID             string               `json:"ami_native_id,omitempty"`
	VPCID             string               `json:"vpc_native_id"`
	SubnetID          string               `json:"subnet_native_id"`
	KeyPairName       string               `json:"key_pair_name,omitempty"`
	IAMProfileName    string               `json:"iam_instance_profile_name,omitempty"`
	ShouldPowerOn     bool                 `json:"should_power_on"`
	Tags              []asset.Tag          `json:"tags,omitempty"`
	BlockDevices      []EC2BlockDevice     `json:"ebs_block_device_mappings"`
	NetworkInterfaces []EC2RestoreENI      `json:"network_interfaces"`
}

// EC2BlockDevice is one restored EBS attachment
type EC2BlockDevice struct {
	Name           string      `json:"name"`
	VolumeNativeID string      `json:"volume_native_id"`
	KMSKeyID       string      `json:"kms_key_native_id,omitempty"`
	Tags           []asset.Tag `json:"tags,omitempty"`
}

// EC2RestoreENI is one restored network interface
type EC2RestoreENI struct {
	DeviceIndex      int      `json:"device_index"`
	SubnetNativeID   string   `json:"subnet_native_id"`
	SecurityGroupIDs []string `json:"security_group_native_ids"`
	RestoreDefault   bool     `json:"restore_default"`
}

// RDSRestoreTarget is the wire-level RDS restore target
type RDSRestoreTarget struct {
	EnvironmentID    string      `json:"environment_id"`
	Name             string      `json:"name"`
	SubnetGroupName  string      `json:"subnet_group_name,omitempty"`
	KMSKeyID         string      `json:"kms_key_native_id,omitempty"`
	SecurityGroupIDs []string    `json:"security_group_native_ids,omitempty"`
	Tags             []asset.Tag `json:"tags,omitempty"`
}

// DynamoDBRestoreTarget is the wire-level DynamoDB table restore target
type DynamoDBRestoreTarget struct {
	EnvironmentID string      `json:"environment_id"`
	TableName     string      `json:"table_name"`
	Tags          []asset.Tag `json:"tags,omitempty"`
}

// ProtectionGroupRestoreTarget is the wire-level protection-group (S3)
// restore target
type ProtectionGroupRestoreTarget struct {
	EnvironmentID              string         `json:"environment_id"`
	BucketID                   string         `json:"bucket_id"`
	Prefix                     string         `json:"prefix,omitempty"`
	Overwrite                  bool           `json:"overwrite"`
	RestoreOriginalStorageClass bool          `json:"restore_original_storage_class"`
	AssetIDs                   []string       `json:"protection_group_s3_asset_ids"`
	ObjectFilters              *ObjectFilters `json:"object_filters,omitempty"`
}

// ObjectFilters narrows a protection-group restore to matching objects
type ObjectFilters struct {
	LatestVersionOnly bool     `json:"latest_version_only"`
	PrefixFilters     []string `json:"prefix_filters,omitempty"`
	StorageClasses    []string `json:"storage_classes,omitempty"`
}
