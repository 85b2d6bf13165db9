// Package asset defines the asset types covered by bulk restore and the
// discovered-backup records exchanged between discovery, target resolution,
// and dispatch.
package asset

import (
	"fmt"
	"time"
)

// Type identifies one restorable asset type
type Type string

const (
	TypeEBS             Type = "EBS"
	TypeEC2             Type = "EC2"
	TypeRDS             Type = "RDS"
	TypeDynamoDB        Type = "DynamoDB"
	TypeProtectionGroup Type = "ProtectionGroup"
)

// AllTypes lists every supported asset type in stable order
func AllTypes() []Type {
	return []Type{TypeEBS, TypeEC2, TypeRDS, TypeDynamoDB, TypeProtectionGroup}
}

// ParseType validates an asset-type name from user input
func ParseType(name string) (Type, error) {
	switch Type(name) {
	case TypeEBS, TypeEC2, TypeRDS, TypeDynamoDB, TypeProtectionGroup:
		return Type(name), nil
	}
	return "", fmt.Errorf("unknown asset type %q", name)
}

// Tag is one AWS resource tag
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// TagMap converts a tag list into a key/value map
func TagMap(tags []Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[t.Key] = t.Value
	}
	return m
}

// AppendTags merges extra key/value pairs into a tag list. Existing keys
// keep their original values.
func AppendTags(tags []Tag, extra map[string]string) []Tag {
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		seen[t.Key] = true
	}
	out := append([]Tag(nil), tags...)
	for k, v := range extra {
		if !seen[k] {
			out = append(out, Tag{Key: k, Value: v})
		}
	}
	return out
}

// Discovered is one backup point matched by a discovery query, bound to one
// source resource. It is immutable value data: the target resolver and the
// dispatcher only read it.
//
// Exactly one of the per-type record fields is non-nil, matching Type.
type Discovered struct {
	Type       Type      `json:"resource_type"`
	Account    string    `json:"source_account"`
	Region     string    `json:"source_region"`
	ResourceID string    `json:"resource_id"`
	BackupID   string    `json:"backup_id"`
	StartTime  time.Time `json:"start_timestamp"`
	ExpireTime time.Time `json:"expiration_timestamp,omitempty"`

	EBS             *EBSBackup             `json:"ebs,omitempty"`
	EC2             *EC2Backup             `json:"ec2,omitempty"`
	RDS             *RDSBackup             `json:"rds,omitempty"`
	DynamoDB        *DynamoDBBackup        `json:"dynamodb,omitempty"`
	ProtectionGroup *ProtectionGroupBackup `json:"protection_group,omitempty"`
}

// Key identifies the source resource for deduplication
func (d Discovered) Key() string {
	return string(d.Type) + "/" + d.ResourceID
}

// Tags returns the recorded source tags for the backup, or nil when the
// asset type carries none
func (d Discovered) Tags() []Tag {
	switch {
	case d.EBS != nil:
		return d.EBS.Tags
	case d.EC2 != nil:
		return d.EC2.Tags
	case d.RDS != nil:
		return d.RDS.Tags
	case d.DynamoDB != nil:
		return d.DynamoDB.Tags
	}
	return nil
}

// EBSBackup is the recorded configuration of an EBS volume backup
type EBSBackup struct {
	VolumeID   string `json:"source_volume_id"`
	AZ         string `json:"source_az"`
	VolumeType string `json:"source_volume_type"`
	IOPS       int64  `json:"source_iops"`
	KMSKeyID   string `json:"source_kms"`
	Encrypted  bool   `json:"source_encrypted_flag"`
	Tags       []Tag  `json:"source_volume_tags"`
}

// EC2Backup is the recorded configuration of an EC2 instance backup
type EC2Backup struct {
	InstanceID         string               `json:"source_instance_id"`
	AZ                 string               `json:"source_az"`
	VPCID              string               `json:"source_vpc_id"`
	KeyPairName        string               `json:"source_key_pair_name"`
	IAMProfileName     string               `json:"source_iam_instance_profile_name"`
	KMSKeyID           string               `json:"source_kms"`
	SecurityGroupIDs   []string             `json:"source_security_group_native_ids"`
	Tags               []Tag                `json:"source_instance_tags"`
	BlockDevices       []BlockDeviceMapping `json:"source_ebs_storage_list"`
	NetworkInterfaces  []NetworkInterface   `json:"source_network_interface_list"`
}

// BlockDeviceMapping is one attached EBS volume recorded in an EC2 backup
type BlockDeviceMapping struct {
	Name           string `json:"name"`
	VolumeNativeID string `json:"volume_native_id"`
	KMSKeyID       string `json:"kms_key_native_id"`
	Tags           []Tag  `json:"tags"`
}

// NetworkInterface is one ENI recorded in an EC2 backup
type NetworkInterface struct {
	DeviceIndex      int      `json:"device_index"`
	SubnetNativeID   string   `json:"subnet_native_id"`
	SecurityGroupIDs []string `json:"security_group_native_ids"`
}

// RDSBackup is the recorded configuration of an RDS resource backup
type RDSBackup struct {
	ResourceName     string   `json:"source_resource_name"`
	SubnetGroupName  string   `json:"source_subnet_group_name"`
	KMSKeyID         string   `json:"source_kms"`
	SecurityGroupIDs []string `json:"source_security_group_native_ids"`
	Tags             []Tag    `json:"source_rds_tags"`
}

// DynamoDBBackup is the recorded configuration of a DynamoDB table backup
type DynamoDBBackup struct {
	TableID     string `json:"source_table_id"`
	TableName   string `json:"source_table_name"`
	BillingMode string `json:"source_billing_mode,omitempty"`
	TableClass  string `json:"source_table_class,omitempty"`
	Tags        []Tag  `json:"source_ddn_tags"`
}

// ProtectionGroupBackup is the recorded configuration of a protection-group
// (S3) backup
type ProtectionGroupBackup struct {
	GroupName   string   `json:"pg_name"`
	GroupID     string   `json:"pg_id"`
	AssetIDs    []string `json:"protection_group_s3_asset_ids"`
	BucketNames []string `json:"pg_bucket_names,omitempty"`
}
